package fetch

import (
	"encoding/json"
	"fmt"
)

// rawFeed is the wire shape the backend feed service returns. Records
// are deliberately left as map[string]any — normalization into a
// per-platform shape is the adapter layer's responsibility, not the
// Fetch Executor's.
type rawFeed struct {
	Title string           `json:"title"`
	Items []map[string]any `json:"items"`
}

func parseFeedBody(body []byte, origin Origin) (Result, error) {
	var rf rawFeed
	if err := json.Unmarshal(body, &rf); err != nil {
		return Result{}, fmt.Errorf("parse feed response: %w", err)
	}
	return Result{Title: rf.Title, Records: rf.Items, Origin: origin}, nil
}
