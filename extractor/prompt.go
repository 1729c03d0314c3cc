package extractor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/omniboxhq/omnibox/catalog"
)

const systemPrompt = `You select one backend route for a user query and fill in its parameters.
Respond with a single strict JSON object and nothing else — no markdown fences, no commentary.

Shape:
{"status": "success", "route_id": "<id>", "parameters": {"<name>": "<value>"}, "reasoning": "<short>"}
or
{"status": "needs_clarification", "reasoning": "<what is missing or ambiguous>"}

For parameters of type entity_ref it is legitimate to emit a human-friendly name rather than a
platform identifier — a later resolution step maps names to identifiers. Only choose a route_id
that appears in the candidate list you were given.`

// candidateView is the budget-capped JSON shape shown to the model for
// one route — enough to choose and fill parameters, nothing more.
type candidateView struct {
	ID           string             `json:"id"`
	Description  string             `json:"description"`
	PathTemplate string             `json:"path_template"`
	Parameters   []paramView        `json:"parameters"`
}

type paramView struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Example  string `json:"example,omitempty"`
}

func renderCandidate(r catalog.Route) string {
	params := make([]paramView, len(r.Parameters))
	for i, p := range r.Parameters {
		params[i] = paramView{Name: p.Name, Type: string(p.Type), Required: p.Required, Example: p.Example}
	}
	view := candidateView{ID: r.ID, Description: r.Description, PathTemplate: r.PathTemplate, Parameters: params}

	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Sprintf(`{"id":%q,"description":"(unserializable)"}`, r.ID)
	}
	if len(raw) > candidateBudget {
		raw = raw[:candidateBudget]
	}
	return string(raw)
}

func buildPrompt(query string, candidates []catalog.Route) string {
	var sb strings.Builder
	sb.WriteString("Query: ")
	sb.WriteString(query)
	sb.WriteString("\n\nCandidate routes:\n")
	for _, c := range candidates {
		sb.WriteString(renderCandidate(c))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// buildNarrowedPrompt is used on the single allowed retry after a parse
// failure: it restates the requirement more bluntly and drops nothing
// from the candidate set, since the failure was in formatting, not
// candidate selection.
func buildNarrowedPrompt(query string, candidates []catalog.Route) string {
	return buildPrompt(query, candidates) +
		"\nYour previous answer could not be parsed as the required JSON object. " +
		"Respond again with ONLY the JSON object, no surrounding text."
}

// extractJSONObject pulls the first top-level {...} span out of raw
// model output, tolerating stray prose or markdown fences around it.
func extractJSONObject(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in model output")
	}
	return raw[start : end+1], nil
}
