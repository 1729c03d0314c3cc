// Package intent classifies an incoming query into the Simple or
// Research Orchestrator, honoring an explicit mode override and
// falling back to an LLM classifier when the caller asks for "auto",
// grounded on the teacher's llm/providers chat-completion call pattern
// reused here for a single-token classification prompt.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/omniboxhq/omnibox/llm"
	"github.com/omniboxhq/omnibox/types"
)

// Mode is the caller-supplied routing hint.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeSimple   Mode = "simple"
	ModeResearch Mode = "research"
)

// classifierConfidenceThreshold is the minimum confidence required for
// an "auto" classification of complex_research to actually route to
// the Research Orchestrator; anything below it routes to Simple.
const classifierConfidenceThreshold = 0.6

const classifierSystemPrompt = `Classify the user's query as one of:
- "simple_query": answerable by fetching data from a single backend source with extracted parameters.
- "complex_research": requires gathering and synthesizing data from multiple sources or multiple steps of reasoning.
Respond with a single strict JSON object and nothing else:
{"label": "simple_query", "confidence": 0.0-1.0, "reasoning": "..."}`

// Decision is the router's classification result.
type Decision struct {
	Route      Mode    `json:"route"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

type classifierResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Router classifies queries into ModeSimple or ModeResearch.
type Router struct {
	provider        llm.Provider
	model           string
	researchEnabled bool
	logger          *zap.Logger
}

// New constructs a Router. researchEnabled reflects whether the
// research subsystem was wired up at boot; when false, any request
// classified or hinted toward research falls through to Simple with a
// logged warning instead of referencing a nil research orchestrator.
func New(provider llm.Provider, model string, researchEnabled bool, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{provider: provider, model: model, researchEnabled: researchEnabled, logger: logger.With(zap.String("component", "intent_router"))}
}

// Classify resolves (query, modeHint) to a routing Decision. It never
// returns ModeResearch when the research subsystem is disabled.
func (r *Router) Classify(ctx context.Context, query string, modeHint Mode) Decision {
	switch modeHint {
	case ModeSimple:
		return Decision{Route: ModeSimple, Confidence: 1, Reasoning: "explicit mode_hint=simple"}
	case ModeResearch:
		return r.guardResearch(Decision{Route: ModeResearch, Confidence: 1, Reasoning: "explicit mode_hint=research"})
	case ModeAuto, "":
		return r.guardResearch(r.classifyAuto(ctx, query))
	default:
		r.logger.Warn("unrecognized mode_hint, treating as auto", zap.String("mode_hint", string(modeHint)))
		return r.guardResearch(r.classifyAuto(ctx, query))
	}
}

// guardResearch downgrades a research decision to Simple when the
// research subsystem is unavailable, logging a warning — the router
// must never return a Research decision a disabled caller would then
// dereference as nil.
func (r *Router) guardResearch(d Decision) Decision {
	if d.Route == ModeResearch && !r.researchEnabled {
		r.logger.Warn("research subsystem disabled, falling back to simple orchestrator", zap.String("original_reasoning", d.Reasoning))
		return Decision{Route: ModeSimple, Confidence: d.Confidence, Reasoning: "research subsystem disabled, falling back from: " + d.Reasoning}
	}
	return d
}

func (r *Router) classifyAuto(ctx context.Context, query string) Decision {
	resp, err := r.provider.Completion(ctx, &llm.ChatRequest{
		Model: r.model,
		Messages: []types.Message{
			types.NewMessage(types.RoleSystem, classifierSystemPrompt),
			types.NewMessage(types.RoleUser, query),
		},
		Temperature: 0,
		MaxTokens:   200,
	})
	if err != nil {
		r.logger.Warn("intent classifier call failed, defaulting to simple", zap.Error(err))
		return Decision{Route: ModeSimple, Confidence: 0, Reasoning: fmt.Sprintf("classifier error: %v", err)}
	}
	if len(resp.Choices) == 0 {
		return Decision{Route: ModeSimple, Confidence: 0, Reasoning: "classifier returned no choices"}
	}

	raw := extractJSONObject(resp.Choices[0].Message.Content)
	var cr classifierResponse
	if err := json.Unmarshal([]byte(raw), &cr); err != nil {
		r.logger.Warn("intent classifier output unparseable, defaulting to simple", zap.Error(err))
		return Decision{Route: ModeSimple, Confidence: 0, Reasoning: "unparseable classifier output"}
	}

	if cr.Label == "complex_research" && cr.Confidence >= classifierConfidenceThreshold {
		return Decision{Route: ModeResearch, Confidence: cr.Confidence, Reasoning: cr.Reasoning}
	}
	return Decision{Route: ModeSimple, Confidence: cr.Confidence, Reasoning: cr.Reasoning}
}

func extractJSONObject(raw string) string {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
