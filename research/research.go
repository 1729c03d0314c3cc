// Package research implements the Research Orchestrator: a bounded
// directed graph — Planner, Dispatcher, Reflector, Synthesizer — built
// on the teacher's generic workflow.StateGraph reducer machinery. Each
// node is a pure function of state; all mutation happens through
// Channel.Update between nodes, and a bounded step scheduler (not
// recursion) prevents unbounded loops.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/omniboxhq/omnibox/llm"
	"github.com/omniboxhq/omnibox/orchestrator"
	"github.com/omniboxhq/omnibox/types"
	"github.com/omniboxhq/omnibox/workflow"
)

// TaskState is the research task's top-level lifecycle state.
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskPlanning   TaskState = "planning"
	TaskRunning    TaskState = "running"
	TaskReflecting TaskState = "reflecting"
	TaskCompleted  TaskState = "completed"
	TaskError      TaskState = "error"
)

// maxSteps bounds the Planner/Dispatcher/Reflector loop so a
// pathological query can never run forever.
const maxSteps = 6

// maxReformulationsPerSubQuery caps how many times the Reflector may ask
// for the same sub-query to be retried in a reformulated shape.
const maxReformulationsPerSubQuery = 2

// StepRecord is one timestamped entry in the execution log.
type StepRecord struct {
	Step      int       `json:"step"`
	Kind      string    `json:"kind"` // "plan", "dispatch", "reflect", "synthesize"
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// StashEntry is one named prior result accumulated across dispatch
// steps.
type StashEntry struct {
	Name   string              `json:"name"`
	Query  string              `json:"query"`
	Result orchestrator.Result `json:"result"`
}

// Event is emitted through the caller-supplied callback as the research
// graph progresses — the research_start|step|panel|analysis|complete|error
// finer-grained node events from the Streaming Channel's message kinds.
type Event struct {
	Type    string `json:"type"`
	TaskID  string `json:"task_id"`
	Payload any    `json:"payload,omitempty"`
}

// Callback receives research events as they're produced. Implementations
// must not block significantly — the graph awaits each call.
type Callback func(Event)

// Report is the Research Orchestrator's terminal output.
type Report struct {
	State   TaskState               `json:"state"`
	Query   string                  `json:"query"`
	Stash   map[string]StashEntry   `json:"stash"`
	Steps   []StepRecord            `json:"steps"`
	Summary string                  `json:"summary,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

// planDecision is the Planner's LLM-produced output.
type planDecision struct {
	Synthesize bool     `json:"synthesize"`
	SubQueries []string `json:"sub_queries"`
	Reasoning  string   `json:"reasoning"`
}

// reflectDecision is the Reflector's LLM-produced output.
type reflectDecision struct {
	NeedsMore  bool     `json:"needs_more"`
	SubQueries []string `json:"sub_queries"`
	Reasoning  string   `json:"reasoning"`
}

// Orchestrator runs the research graph over the Simple Orchestrator's
// single-shot pipeline.
type Orchestrator struct {
	simple   *orchestrator.Simple
	provider llm.Provider
	model    string
	logger   *zap.Logger
}

// New constructs a research Orchestrator.
func New(simple *orchestrator.Simple, provider llm.Provider, model string, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{simple: simple, provider: provider, model: model, logger: logger.With(zap.String("component", "research_orchestrator"))}
}

// Research executes the bounded plan -> dispatch -> reflect -> synthesize
// graph for one task, emitting events via cb as it progresses. It always
// returns a Report — a reflector error triggers one retry, a second
// error terminates the task with TaskError, never a panic or a dropped
// task.
func (o *Orchestrator) Research(ctx context.Context, taskID, query string, opts orchestrator.Options, cb Callback) Report {
	if cb == nil {
		cb = func(Event) {}
	}
	cb(Event{Type: "research_start", TaskID: taskID, Payload: query})

	sg := workflow.NewStateGraph()
	stashCh := workflow.NewChannel("stash", map[string]StashEntry{}, workflow.WithReducer(workflow.MergeMapReducer[string, StashEntry]()))
	stepsCh := workflow.NewChannel[[]StepRecord]("steps", nil, workflow.WithReducer(workflow.AppendReducer[StepRecord]()))
	workflow.RegisterChannel(sg, stashCh)
	workflow.RegisterChannel(sg, stepsCh)

	reformulations := make(map[string]int)
	pendingQueries := []string{query}

	for step := 1; step <= maxSteps; step++ {
		plan, err := o.plan(ctx, query, stashCh.Get())
		if err != nil {
			o.logger.Error("planner failed", zap.Error(err))
			return o.errorReport(query, stashCh.Get(), stepsCh.Get(), err)
		}
		stepsCh.Update([]StepRecord{{Step: step, Kind: "plan", Detail: plan.Reasoning, Timestamp: time.Now()}})
		cb(Event{Type: "research_step", TaskID: taskID, Payload: plan})

		if plan.Synthesize || len(plan.SubQueries) == 0 {
			break
		}
		pendingQueries = plan.SubQueries

		// Sub-queries within one step are independent of each other — each
		// dispatches against the Simple Orchestrator on its own and only
		// joins back into the shared stash — so they fan out concurrently
		// via errgroup rather than one at a time. stashCh/stepsCh's own
		// locking (workflow.Channel.Update) makes concurrent Update calls
		// safe; MergeMapReducer keeps a late writer from clobbering an
		// earlier one's entry.
		g, gctx := errgroup.WithContext(ctx)
		for i, sq := range pendingQueries {
			i, sq := i, sq
			g.Go(func() error {
				result := o.simple.Process(gctx, sq, opts)
				name := fmt.Sprintf("panel_%d_%d", step, i+1)
				entry := StashEntry{Name: name, Query: sq, Result: result}
				stashCh.Update(map[string]StashEntry{name: entry})
				stepsCh.Update([]StepRecord{{Step: step, Kind: "dispatch", Detail: sq, Timestamp: time.Now()}})
				cb(Event{Type: "research_panel", TaskID: taskID, Payload: entry})
				return nil
			})
		}
		_ = g.Wait() // o.simple.Process never returns an error worth aborting the panel for

		reflection, err := o.reflectWithRetry(ctx, query, stashCh.Get())
		if err != nil {
			o.logger.Error("reflector failed twice, terminating task", zap.Error(err))
			return o.errorReport(query, stashCh.Get(), stepsCh.Get(), err)
		}
		stepsCh.Update([]StepRecord{{Step: step, Kind: "reflect", Detail: reflection.Reasoning, Timestamp: time.Now()}})

		if !reflection.NeedsMore {
			break
		}

		// bound per-sub-query reformulation attempts
		var bounded []string
		for _, sq := range reflection.SubQueries {
			if reformulations[sq] >= maxReformulationsPerSubQuery {
				o.logger.Warn("sub-query exceeded reformulation budget, dropping", zap.String("sub_query", sq))
				continue
			}
			reformulations[sq]++
			bounded = append(bounded, sq)
		}
		if len(bounded) == 0 {
			break
		}
	}

	summary, err := o.synthesize(ctx, query, stashCh.Get())
	if err != nil {
		o.logger.Error("synthesis failed", zap.Error(err))
		return o.errorReport(query, stashCh.Get(), stepsCh.Get(), err)
	}
	stepsCh.Update([]StepRecord{{Step: maxSteps, Kind: "synthesize", Detail: "final report produced", Timestamp: time.Now()}})
	cb(Event{Type: "research_analysis", TaskID: taskID, Payload: summary})
	cb(Event{Type: "research_complete", TaskID: taskID, Payload: summary})

	return Report{State: TaskCompleted, Query: query, Stash: stashCh.Get(), Steps: stepsCh.Get(), Summary: summary}
}

func (o *Orchestrator) errorReport(query string, stash map[string]StashEntry, steps []StepRecord, err error) Report {
	return Report{State: TaskError, Query: query, Stash: stash, Steps: steps, Error: err.Error()}
}

func (o *Orchestrator) reflectWithRetry(ctx context.Context, query string, stash map[string]StashEntry) (reflectDecision, error) {
	decision, err := o.reflect(ctx, query, stash)
	if err == nil {
		return decision, nil
	}
	o.logger.Warn("reflector failed, retrying once", zap.Error(err))
	return o.reflect(ctx, query, stash)
}

func (o *Orchestrator) plan(ctx context.Context, query string, stash map[string]StashEntry) (planDecision, error) {
	resp, err := o.complete(ctx, planSystemPrompt, renderPlanPrompt(query, stash))
	if err != nil {
		return planDecision{}, err
	}
	var pd planDecision
	if err := json.Unmarshal([]byte(resp), &pd); err != nil {
		return planDecision{}, fmt.Errorf("parse plan decision: %w", err)
	}
	return pd, nil
}

func (o *Orchestrator) reflect(ctx context.Context, query string, stash map[string]StashEntry) (reflectDecision, error) {
	resp, err := o.complete(ctx, reflectSystemPrompt, renderReflectPrompt(query, stash))
	if err != nil {
		return reflectDecision{}, err
	}
	var rd reflectDecision
	if err := json.Unmarshal([]byte(resp), &rd); err != nil {
		return reflectDecision{}, fmt.Errorf("parse reflect decision: %w", err)
	}
	return rd, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, query string, stash map[string]StashEntry) (string, error) {
	return o.complete(ctx, synthesizeSystemPrompt, renderSynthesizePrompt(query, stash))
}

func (o *Orchestrator) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := o.provider.Completion(ctx, &llm.ChatRequest{
		Model: o.model,
		Messages: []types.Message{
			types.NewMessage(types.RoleSystem, system),
			types.NewMessage(types.RoleUser, user),
		},
		Temperature: 0,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", fmt.Errorf("llm completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
