// Package catalog holds the Route Catalog: the read-only collection of
// backend route definitions that the rest of the pipeline selects from and
// fills in. A route never carries live connection state — it is pure
// metadata describing one RSSHub-shaped endpoint.
package catalog

import "time"

// ParamType constrains how a path parameter's raw value should be
// interpreted before it reaches the Fetch Executor.
type ParamType string

const (
	ParamTypeString    ParamType = "string"
	ParamTypeEntityRef ParamType = "entity_ref" // must pass through entity resolution
	ParamTypeEnum      ParamType = "enum"
	ParamTypeNumber    ParamType = "number"
	ParamTypeDate      ParamType = "date"
)

// Parameter describes one path segment placeholder in a Route's template,
// e.g. `:uid` in `/bilibili/user/video/:uid`.
type Parameter struct {
	Name        string    `json:"name" yaml:"name"`
	Type        ParamType `json:"type" yaml:"type"`
	Required    bool      `json:"required" yaml:"required"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	// Example is a sample raw value, surfaced to the Parameter Extractor's
	// prompt so the LLM sees the expected shape of the slot.
	Example string `json:"example,omitempty" yaml:"example,omitempty"`
	// EntityFieldKey is the key into a resolved Subscription's Identifiers
	// map this parameter's value comes from once resolution succeeds (e.g.
	// "owner" and "repo" on a GitHub route both resolve against the same
	// entity but pull distinct identifier keys). Only meaningful when
	// Type == ParamTypeEntityRef; defaults to Name when left unset.
	EntityFieldKey string `json:"entity_field_key,omitempty" yaml:"entity_field_key,omitempty"`
	// Enum lists the allowed raw values when Type == ParamTypeEnum.
	Enum []string `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// Route is one backend endpoint's declarative definition: a human- or
// heuristically-tagged description of what data it serves and how its
// path template is filled in. Routes are immutable once built into a
// Catalog snapshot — callers never mutate a Route in place.
type Route struct {
	ID       string `json:"id" yaml:"id"`
	Platform string `json:"platform" yaml:"platform"`
	// EntityType narrows what kind of named entity this route's
	// entity_ref parameters resolve against (e.g. "bilibili_uploader",
	// "repo"). Filters subscription lookups together with Platform.
	EntityType   string      `json:"entity_type" yaml:"entity_type"`
	Category     string      `json:"category" yaml:"category"`
	Name         string      `json:"name" yaml:"name"`
	Description  string      `json:"description" yaml:"description"`
	PathTemplate string      `json:"path_template" yaml:"path_template"`
	Parameters   []Parameter `json:"parameters" yaml:"parameters"`
	// Confidence records how the route was tagged: 1.0 for human-authored
	// tags, lower for heuristic fallback (see catalog.Builder).
	Confidence float64  `json:"confidence" yaml:"confidence"`
	Tags       []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// EmbeddingText renders the text the Semantic Retriever embeds for this
// route — name, description, platform/category, and parameter names, so
// a query mentioning any of them scores the route's vector.
func (r Route) EmbeddingText() string {
	text := r.Name + ". " + r.Description + ". platform: " + r.Platform + ", category: " + r.Category
	if r.EntityType != "" {
		text += ", entity: " + r.EntityType
	}
	for _, p := range r.Parameters {
		text += ", param: " + p.Name
		if p.Example != "" {
			text += " (e.g. " + p.Example + ")"
		}
	}
	return text
}

// RequiredEntityParams returns the subset of Parameters that require
// entity resolution before a path can be filled in.
func (r Route) RequiredEntityParams() []Parameter {
	var out []Parameter
	for _, p := range r.Parameters {
		if p.Type == ParamTypeEntityRef {
			out = append(out, p)
		}
	}
	return out
}

// Snapshot is an immutable, versioned view of the catalog used to serve
// reads while a rebuild is in progress elsewhere.
type Snapshot struct {
	Routes    []Route
	BuiltAt   time.Time
	Version   int64
	ByID      map[string]Route
}

func newSnapshot(routes []Route, version int64) *Snapshot {
	byID := make(map[string]Route, len(routes))
	for _, r := range routes {
		byID[r.ID] = r
	}
	return &Snapshot{Routes: routes, BuiltAt: time.Now(), Version: version, ByID: byID}
}
