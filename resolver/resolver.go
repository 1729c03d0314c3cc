// Package resolver implements the Entity Resolver: maps human-friendly
// names carried in entity_ref parameters to platform identifiers, using
// the subscription store for exact lookups and a semantic fallback over
// subscription embeddings. It never collapses its two result channels
// (effective parameters, resolution status) into one map — callers must
// inspect resolution status before treating a plan as fully resolved.
package resolver

import (
	"context"
	"fmt"
	"unicode"

	"go.uber.org/zap"

	"github.com/omniboxhq/omnibox/catalog"
	"github.com/omniboxhq/omnibox/llm/embedding"
	"github.com/omniboxhq/omnibox/omnicache"
	"github.com/omniboxhq/omnibox/rag"
	"github.com/omniboxhq/omnibox/subscription"
)

// semanticThreshold is the minimum cosine similarity a subscription
// embedding match must clear to be accepted as a resolution.
const semanticThreshold = 0.7

// Resolver resolves entity_ref parameters against a subscription store,
// falling back to semantic search when no exact name/alias match exists.
type Resolver struct {
	store    *subscription.Store
	embedder embedding.Provider
	subIndex rag.VectorStore // separate collection from the route index
	cache    *omnicache.ResolutionCache
	logger   *zap.Logger
}

// New constructs a Resolver. subIndex must be a distinct VectorStore (or
// distinct collection) from the one IndexCatalog populates — subscription
// and route embeddings are never mixed in search.
func New(store *subscription.Store, embedder embedding.Provider, subIndex rag.VectorStore, cache *omnicache.ResolutionCache, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:    store,
		embedder: embedder,
		subIndex: subIndex,
		cache:    cache,
		logger:   logger.With(zap.String("component", "resolver")),
	}
}

// Resolve walks route's entity_ref parameters and resolves each against
// userScope's subscriptions. It returns the filled-in parameter map
// (entity_ref values replaced by identifiers where resolution succeeded)
// and a status map recording, per parameter name, whether resolution
// actually happened — never inferred from map key presence alone.
func (r *Resolver) Resolve(ctx context.Context, userScope string, route catalog.Route, rawParams map[string]string) (map[string]string, map[string]bool, error) {
	effective := make(map[string]string, len(rawParams))
	status := make(map[string]bool, len(rawParams))
	for k, v := range rawParams {
		effective[k] = v
	}

	for _, p := range route.Parameters {
		raw, present := rawParams[p.Name]
		if !present {
			continue
		}

		requiresResolution := p.Type == catalog.ParamTypeEntityRef
		if p.Type == "" && route.EntityType == "" {
			// Schema-incomplete fallback: no parameter_type tag at all.
			requiresResolution = looksLikeName(raw)
			r.logger.Warn("parameter missing type tag, applying schema-incomplete heuristic",
				zap.String("route_id", route.ID), zap.String("param", p.Name), zap.Bool("treated_as_name", requiresResolution))
		}

		if !requiresResolution {
			// literal/enum parameters bypass the resolver entirely.
			continue
		}

		fieldKey := p.EntityFieldKey
		if fieldKey == "" {
			fieldKey = p.Name
		}

		resolvedValue, resolved, err := r.resolveOne(ctx, userScope, route.Platform, route.EntityType, fieldKey, raw)
		if err != nil {
			return nil, nil, err
		}
		if resolved {
			effective[p.Name] = resolvedValue
		}
		status[p.Name] = resolved
	}

	return effective, status, nil
}

func (r *Resolver) resolveOne(ctx context.Context, userScope, platform, entityType, fieldKey, rawName string) (string, bool, error) {
	if r.cache != nil {
		var cached struct {
			Identifier string `json:"identifier"`
		}
		if r.cache.Get(ctx, platform, entityType, fieldKey+":"+rawName, &cached) {
			return cached.Identifier, true, nil
		}
	}

	sub, ok, err := r.store.FindByNameOrAlias(ctx, userScope, platform, entityType, rawName)
	if err != nil {
		return "", false, err
	}
	if ok {
		identifier, found := sub.Identifiers[fieldKey]
		if !found {
			r.logger.Warn("subscription matched but lacks the parameter's entity-field key",
				zap.String("platform", platform), zap.String("entity_type", entityType), zap.String("field_key", fieldKey))
			return "", false, nil
		}
		r.cacheResolution(ctx, platform, entityType, fieldKey, rawName, identifier)
		return identifier, true, nil
	}

	if r.embedder == nil || r.subIndex == nil {
		return "", false, nil
	}

	queryVec, err := r.embedder.EmbedQuery(ctx, rawName)
	if err != nil {
		r.logger.Warn("embedding raw name for semantic resolution failed", zap.Error(err))
		return "", false, nil
	}

	results, err := r.subIndex.Search(ctx, queryVec, 5)
	if err != nil {
		r.logger.Warn("semantic subscription search failed", zap.Error(err))
		return "", false, nil
	}

	for _, res := range results {
		if res.Document.Metadata["platform"] != platform || res.Document.Metadata["entity_type"] != entityType {
			continue
		}
		if res.Score < semanticThreshold {
			break // results are score-descending; nothing further clears the bar
		}
		identifiers, _ := res.Document.Metadata["identifiers"].(map[string]string)
		identifier := identifiers[fieldKey]
		if identifier == "" {
			continue
		}
		r.cacheResolution(ctx, platform, entityType, fieldKey, rawName, identifier)
		return identifier, true, nil
	}

	return "", false, nil
}

func (r *Resolver) cacheResolution(ctx context.Context, platform, entityType, fieldKey, rawName, identifier string) {
	if r.cache == nil {
		return
	}
	r.cache.Set(ctx, platform, entityType, fieldKey+":"+rawName, struct {
		Identifier string `json:"identifier"`
	}{Identifier: identifier})
}

// IndexSubscription (re-)embeds sub and upserts it into the semantic
// subscription index, so the embedder-fallback path in resolveOne can
// find it even when a query's raw name doesn't exactly match its display
// name or any alias. Called from subscription.Store's OnWrite hook on
// create/update.
func (r *Resolver) IndexSubscription(ctx context.Context, sub subscription.Subscription) error {
	if r.embedder == nil || r.subIndex == nil {
		return nil
	}
	text := sub.EmbeddingText()
	vec, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return fmt.Errorf("embed subscription: %w", err)
	}
	doc := rag.Document{
		ID:        subscriptionDocID(sub.ID),
		Content:   text,
		Embedding: vec,
		Metadata: map[string]any{
			"platform":    sub.Platform,
			"entity_type": sub.EntityType,
			"identifiers": map[string]string(sub.Identifiers),
		},
	}
	// Delete-then-add rather than UpdateDocument: InMemoryVectorStore's
	// UpdateDocument errors when the id isn't already present, so it
	// can't double as an upsert for a subscription's first embedding.
	if err := r.subIndex.DeleteDocuments(ctx, []string{doc.ID}); err != nil {
		r.logger.Debug("subscription index delete-before-add found nothing to delete", zap.Error(err))
	}
	if err := r.subIndex.AddDocuments(ctx, []rag.Document{doc}); err != nil {
		return fmt.Errorf("index subscription: %w", err)
	}
	return nil
}

// RemoveSubscription drops sub's entry from the semantic subscription
// index. Called from subscription.Store's OnWrite hook on delete.
func (r *Resolver) RemoveSubscription(ctx context.Context, sub subscription.Subscription) error {
	if r.subIndex == nil {
		return nil
	}
	if err := r.subIndex.DeleteDocuments(ctx, []string{subscriptionDocID(sub.ID)}); err != nil {
		return fmt.Errorf("remove subscription from index: %w", err)
	}
	return nil
}

func subscriptionDocID(id uint) string {
	return fmt.Sprintf("sub-%d", id)
}

// looksLikeName applies the schema-incomplete heuristic: pure-digit
// values are treated as already-resolved identifiers; anything
// containing CJK characters is treated as a name requiring resolution.
// Values matching neither rule default to requiring resolution, since an
// untagged entity_ref slot is far more likely to hold a name than a raw
// identifier.
func looksLikeName(raw string) bool {
	if raw == "" {
		return false
	}
	allDigits := true
	for _, r := range raw {
		if !unicode.IsDigit(r) {
			allDigits = false
			break
		}
	}
	if allDigits {
		return false
	}
	for _, r := range raw {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return true
}
