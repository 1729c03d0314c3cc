package research

import (
	"encoding/json"
	"strings"
)

const planSystemPrompt = `You plan a multi-step research task over a set of backend data sources.
Given the original query and a summary of results gathered so far, decide whether enough
has been gathered to write a final report, or what sub-queries to dispatch next.
Respond with a single strict JSON object and nothing else:
{"synthesize": false, "sub_queries": ["..."], "reasoning": "..."}
Set "synthesize": true and omit sub_queries once you have enough to answer the original query.`

const reflectSystemPrompt = `You inspect the newest research results and decide whether more
sub-queries are needed before a final report can be written. Respond with a single strict
JSON object and nothing else:
{"needs_more": false, "sub_queries": ["..."], "reasoning": "..."}`

const synthesizeSystemPrompt = `You write a final natural-language report answering the
original research query, drawing only on the accumulated data stash provided. Be concise
and cite which panel each claim came from.`

func renderPlanPrompt(query string, stash map[string]StashEntry) string {
	var sb strings.Builder
	sb.WriteString("Original query: ")
	sb.WriteString(query)
	sb.WriteString("\n\nStash so far:\n")
	sb.WriteString(renderStashSummary(stash))
	return sb.String()
}

func renderReflectPrompt(query string, stash map[string]StashEntry) string {
	return renderPlanPrompt(query, stash)
}

func renderSynthesizePrompt(query string, stash map[string]StashEntry) string {
	var sb strings.Builder
	sb.WriteString("Original query: ")
	sb.WriteString(query)
	sb.WriteString("\n\nStash:\n")
	sb.WriteString(renderStashSummary(stash))
	return sb.String()
}

func renderStashSummary(stash map[string]StashEntry) string {
	if len(stash) == 0 {
		return "(empty)"
	}
	var sb strings.Builder
	for name, entry := range stash {
		sb.WriteString(name)
		sb.WriteString(": query=")
		sb.WriteString(entry.Query)
		sb.WriteString(" status=")
		sb.WriteString(string(entry.Result.Status))
		if entry.Result.Fetch != nil {
			b, _ := json.Marshal(entry.Result.Fetch.Records)
			sb.WriteString(" records=")
			sb.Write(b)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
