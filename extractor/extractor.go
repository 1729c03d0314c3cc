// Package extractor implements the Parameter Extractor: prompts an LLM
// with the original query and a bounded set of candidate routes, and
// parses its answer into a structured Query Plan. The LLM is never
// trusted blindly — its output is parsed and validated, and a single
// narrowed retry is permitted before the call is marked failed.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/omniboxhq/omnibox/catalog"
	"github.com/omniboxhq/omnibox/llm"
	"github.com/omniboxhq/omnibox/omnicache"
	"github.com/omniboxhq/omnibox/types"
)

// Status is the outcome of one extraction call.
type Status string

const (
	StatusSuccess            Status = "success"
	StatusNeedsClarification Status = "needs_clarification"
	StatusError              Status = "error"
)

// candidateBudget bounds how much of a route's JSON-serialized
// definition is handed to the model, so a handful of verbose
// descriptions can't blow the prompt budget.
const candidateBudget = 2000

// maxCandidates is the upper bound on K candidates accepted per call.
const maxCandidates = 5

// Plan is the Parameter Extractor's output.
type Plan struct {
	Status        Status            `json:"status"`
	RouteID       string            `json:"route_id,omitempty"`
	Parameters    map[string]string `json:"parameters,omitempty"`
	Reasoning     string            `json:"reasoning,omitempty"`
	GeneratedPath string            `json:"generated_path,omitempty"`
}

// llmPlan is the shape the model is asked to emit. Separated from Plan
// so a malformed model response never partially populates the real
// struct before validation runs.
type llmPlan struct {
	Status     string            `json:"status"`
	RouteID    string            `json:"route_id"`
	Parameters map[string]string `json:"parameters"`
	Reasoning  string            `json:"reasoning"`
}

// Extractor turns a query plus candidate routes into a Plan via an LLM.
type Extractor struct {
	provider llm.Provider
	model    string
	cache    *omnicache.CompletionCache
	logger   *zap.Logger
}

// New constructs an Extractor. model is the model identifier passed on
// every ChatRequest (provider-specific, e.g. "claude-sonnet-4" or
// "gpt-4o-mini").
func New(provider llm.Provider, model string, cache *omnicache.CompletionCache, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		provider: provider,
		model:    model,
		cache:    cache,
		logger:   logger.With(zap.String("component", "extractor")),
	}
}

// Extract selects a route and fills its parameters for query, given up
// to maxCandidates candidate routes ordered by retrieval score.
func (e *Extractor) Extract(ctx context.Context, query string, candidates []catalog.Route) (Plan, error) {
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	candidateIDs := routeIDs(candidates)

	if e.cache != nil {
		var cached Plan
		if e.cache.Get(ctx, query, candidateIDs, &cached) {
			return cached, nil
		}
	}

	plan, err := e.extractOnce(ctx, query, candidates, buildPrompt(query, candidates))
	if err != nil {
		e.logger.Warn("extraction parse failed, retrying with narrowed prompt", zap.Error(err))
		plan, err = e.extractOnce(ctx, query, candidates, buildNarrowedPrompt(query, candidates))
		if err != nil {
			e.logger.Error("extraction failed after retry", zap.Error(err))
			return Plan{Status: StatusError, Reasoning: err.Error()}, nil
		}
	}

	if e.cache != nil && plan.Status != StatusError {
		e.cache.Set(ctx, query, candidateIDs, plan)
	}
	return plan, nil
}

func (e *Extractor) extractOnce(ctx context.Context, query string, candidates []catalog.Route, prompt string) (Plan, error) {
	resp, err := e.provider.Completion(ctx, &llm.ChatRequest{
		Model: e.model,
		Messages: []types.Message{
			types.NewMessage(types.RoleSystem, systemPrompt),
			types.NewMessage(types.RoleUser, prompt),
		},
		Temperature: 0,
		MaxTokens:   800,
	})
	if err != nil {
		return Plan{}, fmt.Errorf("llm completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Plan{}, fmt.Errorf("llm returned no choices")
	}

	raw, err := extractJSONObject(resp.Choices[0].Message.Content)
	if err != nil {
		return Plan{}, err
	}

	var lp llmPlan
	if err := json.Unmarshal([]byte(raw), &lp); err != nil {
		return Plan{}, fmt.Errorf("parse extraction json: %w", err)
	}

	return validate(lp, candidates)
}

// validate checks the model's chosen route actually exists among the
// candidates it was shown and demotes to needs_clarification when the
// model couldn't commit to a route or parameter set.
func validate(lp llmPlan, candidates []catalog.Route) (Plan, error) {
	switch Status(lp.Status) {
	case StatusNeedsClarification:
		return Plan{Status: StatusNeedsClarification, Reasoning: lp.Reasoning}, nil
	case StatusSuccess:
		// fall through to route validation below
	default:
		return Plan{}, fmt.Errorf("unrecognized status %q", lp.Status)
	}

	var chosen *catalog.Route
	for i := range candidates {
		if candidates[i].ID == lp.RouteID {
			chosen = &candidates[i]
			break
		}
	}
	if chosen == nil {
		return Plan{}, fmt.Errorf("model selected route_id %q not among candidates", lp.RouteID)
	}

	path, err := fillPath(chosen.PathTemplate, lp.Parameters)
	if err != nil {
		// A route was chosen but required parameters are missing —
		// that's a clarification case, not a parse failure.
		return Plan{Status: StatusNeedsClarification, RouteID: chosen.ID, Parameters: lp.Parameters, Reasoning: err.Error()}, nil
	}

	return Plan{
		Status:        StatusSuccess,
		RouteID:       chosen.ID,
		Parameters:    lp.Parameters,
		Reasoning:     lp.Reasoning,
		GeneratedPath: path,
	}, nil
}

// fillPath substitutes :name placeholders in template with params,
// erroring if any required slot is absent.
func fillPath(template string, params map[string]string) (string, error) {
	path := template
	for key, val := range params {
		path = strings.ReplaceAll(path, ":"+key, val)
	}
	if strings.Contains(path, ":") {
		return "", fmt.Errorf("path template %q left unfilled slots after substitution", template)
	}
	return path, nil
}

func routeIDs(routes []catalog.Route) []string {
	ids := make([]string, len(routes))
	for i, r := range routes {
		ids[i] = r.ID
	}
	return ids
}
