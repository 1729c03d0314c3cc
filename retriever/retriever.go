// Package retriever implements the Semantic Retriever: given a natural
// language query, returns the catalog's candidate routes ordered by
// embedding similarity, with each candidate's full definition intact so
// downstream stages never have to re-derive metadata from a path
// template.
package retriever

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/omniboxhq/omnibox/catalog"
	"github.com/omniboxhq/omnibox/llm/embedding"
	"github.com/omniboxhq/omnibox/omnicache"
	"github.com/omniboxhq/omnibox/rag"
)

// Candidate is one scored route returned by Retrieve, ordered highest
// score first.
type Candidate struct {
	Route catalog.Route
	Score float64
}

// Retriever embeds queries and searches a vector store of indexed routes.
// The store is swappable — InMemoryVectorStore for small catalogs, any of
// rag's Qdrant/Milvus/Weaviate/Pinecone-backed stores for larger ones —
// since both satisfy rag.VectorStore.
type Retriever struct {
	embedder embedding.Provider
	store    rag.VectorStore
	cache    *omnicache.EmbeddingCache
	logger   *zap.Logger
}

// New constructs a Retriever. store should already be indexed via
// IndexCatalog before the first Retrieve call.
func New(embedder embedding.Provider, store rag.VectorStore, cache *omnicache.EmbeddingCache, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		cache:    cache,
		logger:   logger.With(zap.String("component", "retriever")),
	}
}

// IndexCatalog (re-)embeds every route in the given snapshot and loads it
// into the vector store. Called after catalog.Catalog.Reload so the
// vector index tracks the enriched catalog. If the store supports
// Clearable, old entries are cleared first so a shrinking catalog
// doesn't leave stale routes searchable.
func (r *Retriever) IndexCatalog(ctx context.Context, snap *catalog.Snapshot) error {
	if clearable, ok := r.store.(rag.Clearable); ok {
		if err := clearable.ClearAll(ctx); err != nil {
			return fmt.Errorf("clear route index: %w", err)
		}
	}

	if len(snap.Routes) == 0 {
		return nil
	}

	texts := make([]string, len(snap.Routes))
	for i, route := range snap.Routes {
		texts[i] = route.EmbeddingText()
	}

	embeddings, err := r.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed routes: %w", err)
	}

	docs := make([]rag.Document, len(snap.Routes))
	for i, route := range snap.Routes {
		docs[i] = rag.Document{
			ID:        route.ID,
			Content:   texts[i],
			Embedding: embeddings[i],
			Metadata: map[string]any{
				"platform": route.Platform,
				"category": route.Category,
			},
		}
	}

	if err := r.store.AddDocuments(ctx, docs); err != nil {
		return fmt.Errorf("index routes: %w", err)
	}

	r.logger.Info("route index rebuilt", zap.Int("routes", len(docs)), zap.Int64("catalog_version", snap.Version))
	return nil
}

// Retrieve returns the top-k candidate routes for query, ordered by
// descending score. snap is used to resolve each match back to its full
// Route definition — the vector store only needs to know IDs.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, snap *catalog.Snapshot) ([]Candidate, error) {
	queryEmbedding, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.store.Search(ctx, queryEmbedding, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	candidates := make([]Candidate, 0, len(results))
	for _, res := range results {
		route, ok := snap.ByID[res.Document.ID]
		if !ok {
			// Index and catalog snapshot drifted (index not yet rebuilt
			// after a catalog reload). Skip rather than surface a
			// half-populated Route.
			r.logger.Warn("retrieved route id not present in current catalog snapshot", zap.String("route_id", res.Document.ID))
			continue
		}
		candidates = append(candidates, Candidate{Route: route, Score: res.Score})
	}
	return candidates, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float64, error) {
	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, query); ok {
			return cached, nil
		}
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(ctx, query, vec)
	}
	return vec, nil
}
