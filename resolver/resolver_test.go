//go:build cgo
// +build cgo

package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/omniboxhq/omnibox/catalog"
	"github.com/omniboxhq/omnibox/llm/embedding"
	"github.com/omniboxhq/omnibox/rag"
	"github.com/omniboxhq/omnibox/subscription"
)

// stubEmbedder returns a fixed vector for every query, so tests control
// similarity purely through the documents they seed into the index.
type stubEmbedder struct {
	vector []float64
}

func (e *stubEmbedder) Embed(ctx context.Context, req *embedding.EmbeddingRequest) (*embedding.EmbeddingResponse, error) {
	return nil, nil
}
func (e *stubEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return e.vector, nil
}
func (e *stubEmbedder) EmbedDocuments(ctx context.Context, docs []string) ([][]float64, error) {
	out := make([][]float64, len(docs))
	for i := range docs {
		out[i] = e.vector
	}
	return out, nil
}
func (e *stubEmbedder) Name() string      { return "stub" }
func (e *stubEmbedder) Dimensions() int   { return len(e.vector) }
func (e *stubEmbedder) MaxBatchSize() int { return 100 }

var bilibiliRoute = catalog.Route{
	ID:         "bilibili.user.video",
	Platform:   "bilibili",
	EntityType: "bilibili_uploader",
	Parameters: []catalog.Parameter{
		{Name: "uid", Type: catalog.ParamTypeEntityRef, Required: true, EntityFieldKey: "uid"},
	},
}

var githubRepoRoute = catalog.Route{
	ID:         "github.repo.releases",
	Platform:   "github",
	EntityType: "repo",
	Parameters: []catalog.Parameter{
		{Name: "owner", Type: catalog.ParamTypeEntityRef, Required: true, EntityFieldKey: "owner"},
		{Name: "repo", Type: catalog.ParamTypeEntityRef, Required: true, EntityFieldKey: "repo"},
	},
}

func setupStore(t *testing.T) *subscription.Store {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, subscription.Migrate(db))
	return subscription.New(db)
}

func TestResolveExactMatch(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	_, err := store.Create(ctx, subscription.Subscription{
		UserScope: "default", DisplayName: "老番茄", Platform: "bilibili", EntityType: "bilibili_uploader",
		Identifiers: subscription.StringMap{"uid": "546195"},
	})
	require.NoError(t, err)

	r := New(store, nil, nil, nil, nil)
	effective, status, err := r.Resolve(ctx, "default", bilibiliRoute, map[string]string{"uid": "老番茄"})
	require.NoError(t, err)
	assert.True(t, status["uid"])
	assert.Equal(t, "546195", effective["uid"])
}

func TestResolveSemanticFallback(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	embedder := &stubEmbedder{vector: []float64{1, 0, 0}}

	index := rag.NewInMemoryVectorStore(nil)
	require.NoError(t, index.AddDocuments(ctx, []rag.Document{{
		ID:        "sub-1",
		Embedding: []float64{1, 0, 0},
		Metadata: map[string]any{
			"platform": "bilibili", "entity_type": "bilibili_uploader",
			"identifiers": map[string]string{"uid": "998877"},
		},
	}}))

	r := New(store, embedder, index, nil, nil)
	effective, status, err := r.Resolve(ctx, "default", bilibiliRoute, map[string]string{"uid": "不存在的人"})
	require.NoError(t, err)
	assert.True(t, status["uid"])
	assert.Equal(t, "998877", effective["uid"])
}

func TestResolveFailsBelowThreshold(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	embedder := &stubEmbedder{vector: []float64{1, 0, 0}}

	index := rag.NewInMemoryVectorStore(nil)
	require.NoError(t, index.AddDocuments(ctx, []rag.Document{{
		ID:        "sub-1",
		Embedding: []float64{0, 1, 0}, // orthogonal, similarity 0
		Metadata: map[string]any{
			"platform": "bilibili", "entity_type": "bilibili_uploader",
			"identifiers": map[string]string{"uid": "998877"},
		},
	}}))

	r := New(store, embedder, index, nil, nil)
	_, status, err := r.Resolve(ctx, "default", bilibiliRoute, map[string]string{"uid": "不存在的人"})
	require.NoError(t, err)
	assert.False(t, status["uid"])
}

func TestResolveMultipleEntityRefParamsOnOneRoute(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	_, err := store.Create(ctx, subscription.Subscription{
		UserScope: "default", DisplayName: "go", Platform: "github", EntityType: "repo",
		Identifiers: subscription.StringMap{"owner": "golang", "repo": "go"},
	})
	require.NoError(t, err)

	r := New(store, nil, nil, nil, nil)
	effective, status, err := r.Resolve(ctx, "default", githubRepoRoute, map[string]string{"owner": "go", "repo": "go"})
	require.NoError(t, err)
	assert.True(t, status["owner"])
	assert.True(t, status["repo"])
	assert.Equal(t, "golang", effective["owner"], "owner param pulls the owner identifier key, not repo's")
	assert.Equal(t, "go", effective["repo"], "repo param pulls the repo identifier key, not owner's")
}

func TestResolveBypassesLiteralParameters(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	literalRoute := catalog.Route{
		ID:       "github.repo.releases",
		Platform: "github",
		Parameters: []catalog.Parameter{
			{Name: "owner", Type: catalog.ParamTypeString, Required: true},
		},
	}

	r := New(store, nil, nil, nil, nil)
	effective, status, err := r.Resolve(ctx, "default", literalRoute, map[string]string{"owner": "golang"})
	require.NoError(t, err)
	assert.Equal(t, "golang", effective["owner"])
	_, tracked := status["owner"]
	assert.False(t, tracked, "literal parameters never enter resolution_status")
}
