package catalog

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// fileRoute is the on-disk shape of a catalog entry, before tag
// enrichment. Authors may omit Tags/Confidence entirely and let the
// Builder derive them heuristically.
type fileRoute struct {
	ID           string      `yaml:"id"`
	Platform     string      `yaml:"platform"`
	EntityType   string      `yaml:"entity_type"`
	Category     string      `yaml:"category"`
	Name         string      `yaml:"name"`
	Description  string      `yaml:"description"`
	PathTemplate string      `yaml:"path_template"`
	Parameters   []Parameter `yaml:"parameters"`
	Tags         []string    `yaml:"tags"`
}

type fileCatalog struct {
	Routes []fileRoute `yaml:"routes"`
}

// Catalog serves reads of the current Route Catalog snapshot while
// allowing atomic, whole-snapshot rebuilds in the background. Reads
// never block on a rebuild and never observe a half-built snapshot —
// the invariant spec.md calls out explicitly for this component.
type Catalog struct {
	snapshot atomic.Pointer[Snapshot]
	path     string
	logger   *zap.Logger
}

// New creates an empty Catalog. Call Load or Reload to populate it.
func New(path string, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{path: path, logger: logger.With(zap.String("component", "catalog"))}
	c.snapshot.Store(newSnapshot(nil, 0))
	return c
}

// Reload reads the catalog file from disk, enriches and tags every
// entry, and swaps the served snapshot atomically. A failed reload
// leaves the previously-served snapshot untouched.
func (c *Catalog) Reload() error {
	routes, err := c.build()
	if err != nil {
		return fmt.Errorf("catalog reload: %w", err)
	}

	next := newSnapshot(routes, c.Version()+1)
	c.snapshot.Store(next)

	c.logger.Info("catalog reloaded",
		zap.Int64("version", next.Version),
		zap.Int("routes", len(routes)),
	)
	return nil
}

func (c *Catalog) build() ([]Route, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	routes := make([]Route, 0, len(fc.Routes))
	for _, fr := range fc.Routes {
		routes = append(routes, enrich(fr, c.logger))
	}
	return routes, nil
}

// enrich fills in Platform/EntityType/Tags/Confidence when an author
// didn't supply them. Human-authored values are always preferred and
// pass through untouched at full confidence; anything the heuristic had
// to fill in drops the route's confidence and is logged, per spec.md
// §4.1's "heuristic entries are marked low-confidence and logged".
func enrich(fr fileRoute, logger *zap.Logger) Route {
	route := Route{
		ID:           fr.ID,
		Platform:     fr.Platform,
		EntityType:   fr.EntityType,
		Category:     fr.Category,
		Name:         fr.Name,
		Description:  fr.Description,
		PathTemplate: fr.PathTemplate,
		Parameters:   fr.Parameters,
		Tags:         fr.Tags,
		Confidence:   1.0,
	}
	for i, p := range route.Parameters {
		if p.EntityFieldKey == "" {
			route.Parameters[i].EntityFieldKey = p.Name
		}
	}

	heuristic := false
	if route.Platform == "" {
		route.Platform = platformFromPathTemplate(fr.PathTemplate)
		heuristic = true
	}
	if route.EntityType == "" {
		route.EntityType = entityTypeFromParameters(route.Parameters)
		heuristic = true
	}
	if len(route.Tags) == 0 {
		route.Tags = heuristicTags(route)
		heuristic = true
	}

	if heuristic {
		route.Confidence = 0.5
		logger.Warn("route tagged heuristically, human-authored tags incomplete",
			zap.String("route_id", fr.ID),
			zap.String("platform", route.Platform),
			zap.String("entity_type", route.EntityType),
			zap.Strings("tags", route.Tags),
		)
	}
	return route
}

// platformFromPathTemplate infers a route's platform from the first path
// segment of its path template, e.g. "/bilibili/user/video/:uid" → "bilibili".
func platformFromPathTemplate(pathTemplate string) string {
	trimmed := strings.TrimPrefix(pathTemplate, "/")
	if trimmed == "" {
		return ""
	}
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}

// entityParamHints maps common entity_ref parameter-name conventions to
// the entity-type they imply, per spec.md §4.1's literal examples.
var entityParamHints = map[string]string{
	"uid":       "user",
	"column_id": "column",
}

// entityTypeFromParameters infers a route's entity-type from its
// entity_ref parameter names. A route carrying both "owner" and "repo"
// implies a "repo" entity (the two parameters identify one GitHub-style
// repository together); otherwise the first recognized single-parameter
// convention wins.
func entityTypeFromParameters(params []Parameter) string {
	names := make(map[string]bool, len(params))
	for _, p := range params {
		if p.Type == ParamTypeEntityRef {
			names[p.Name] = true
		}
	}
	if names["owner"] && names["repo"] {
		return "repo"
	}
	for _, p := range params {
		if p.Type != ParamTypeEntityRef {
			continue
		}
		if hint, ok := entityParamHints[p.Name]; ok {
			return hint
		}
	}
	return ""
}

// heuristicTags builds a fallback tag set from platform/category plus a
// crude keyword scan of the description, for routes with no
// human-authored tags.
func heuristicTags(route Route) []string {
	tags := []string{route.Platform, route.Category}
	lower := strings.ToLower(route.Description + " " + route.Name)
	for _, kw := range []string{"video", "user", "channel", "feed", "post", "release", "repo", "issue"} {
		if strings.Contains(lower, kw) {
			tags = append(tags, kw)
		}
	}
	return tags
}

// Version returns the currently-served snapshot's version number.
func (c *Catalog) Version() int64 {
	return c.snapshot.Load().Version
}

// All returns every route in the currently-served snapshot.
func (c *Catalog) All() []Route {
	return c.snapshot.Load().Routes
}

// Get looks up a single route by ID in the currently-served snapshot.
func (c *Catalog) Get(id string) (Route, bool) {
	snap := c.snapshot.Load()
	r, ok := snap.ByID[id]
	return r, ok
}

// Snapshot returns the currently-served snapshot for callers (like the
// Semantic Retriever) that need a consistent view across multiple
// lookups within one operation.
func (c *Catalog) Snapshot() *Snapshot {
	return c.snapshot.Load()
}
