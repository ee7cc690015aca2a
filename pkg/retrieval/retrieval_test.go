package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/consolidato/pkg/cache"
	"github.com/soundprediction/consolidato/pkg/config"
	"github.com/soundprediction/consolidato/pkg/graph"
	"github.com/soundprediction/consolidato/pkg/types"
)

// stubVectors serves a fixed ranked list.
type stubVectors struct {
	entities []*types.Entity
	scores   []float64
	err      error
}

func (s *stubVectors) SearchEntitiesByEmbedding(ctx context.Context, namespace string, vector []float32, limit int) ([]*types.Entity, []float64, error) {
	return s.entities, s.scores, s.err
}

// stubGraph serves a fixed ranked list.
type stubGraph struct {
	hits []graph.Hit
	err  error
}

func (s *stubGraph) Search(ctx context.Context, namespace, query string, maxDepth, limit int) ([]graph.Hit, error) {
	return s.hits, s.err
}

func (s *stubGraph) Neighbors(ctx context.Context, namespace, entityID string, maxDepth int) ([]graph.Hit, error) {
	return nil, nil
}

func entity(id, name string) *types.Entity {
	return &types.Entity{ID: id, Namespace: "acme", EntityType: types.EntityTypeSystem, CanonicalName: name}
}

func newTestRetriever(vectors *stubVectors, traverser *stubGraph, resultCache *cache.ResultCache) *Retriever {
	return New(vectors, traverser, resultCache, nil, config.RetrievalConfig{}, nil)
}

func TestSearchFusesBothBranches(t *testing.T) {
	vectors := &stubVectors{
		entities: []*types.Entity{entity("A", "Opera PMS"), entity("B", "Booking Engine")},
		scores:   []float64{0.95, 0.80},
	}
	traverser := &stubGraph{hits: []graph.Hit{
		{EntityID: "B", Name: "Booking Engine", EntityType: types.EntityTypeSystem, Score: 1.0, Depth: 1, Via: []types.RelationshipType{types.RelDependsOn}},
		{EntityID: "C", Name: "Payment Gateway", EntityType: types.EntityTypeSystem, Score: 0.5, Depth: 2},
	}}
	r := newTestRetriever(vectors, traverser, nil)

	res, err := r.Search(context.Background(), Query{
		Namespace: "acme",
		Text:      "booking",
		Embedding: []float32{1, 0},
	})
	require.NoError(t, err)
	assert.False(t, res.Partial)
	assert.False(t, res.Cached)
	require.Len(t, res.Items, 3)

	// B appears at rank 2 in the vector list and rank 1 in the graph list:
	// 0.5/62 + 0.5/61 beats A's 0.5/61 and C's 0.5/62.
	assert.Equal(t, "B", res.Items[0].EntityID)
	assert.Equal(t, "both", res.Items[0].Source)
	assert.Equal(t, 1, res.Items[0].Depth)
	assert.Equal(t, []types.RelationshipType{types.RelDependsOn}, res.Items[0].Via)
	assert.InDelta(t, 0.5/62+0.5/61, res.Items[0].Score, 1e-12)

	assert.Equal(t, "A", res.Items[1].EntityID)
	assert.Equal(t, "vector", res.Items[1].Source)
	assert.Equal(t, "C", res.Items[2].EntityID)
	assert.Equal(t, "graph", res.Items[2].Source)
}

func TestSearchVectorOnlyMatchesRawRanking(t *testing.T) {
	vectors := &stubVectors{
		entities: []*types.Entity{entity("A", "Opera PMS"), entity("B", "Booking Engine"), entity("C", "Payroll")},
		scores:   []float64{0.9, 0.7, 0.4},
	}
	traverser := &stubGraph{err: errors.New("must not be called")}
	r := newTestRetriever(vectors, traverser, nil)

	res, err := r.Search(context.Background(), Query{
		Namespace:    "acme",
		Embedding:    []float32{1, 0},
		VectorWeight: 1.0,
	})
	require.NoError(t, err)
	assert.False(t, res.Partial, "graph branch is skipped at zero weight")
	require.Len(t, res.Items, 3)
	for i, want := range []string{"A", "B", "C"} {
		assert.Equal(t, want, res.Items[i].EntityID)
	}
	assert.InDelta(t, 0.9, res.Items[0].RawSimilarity, 1e-9)
}

func TestSearchDegradesWhenOneBranchFails(t *testing.T) {
	vectors := &stubVectors{err: errors.New("vector index down")}
	traverser := &stubGraph{hits: []graph.Hit{
		{EntityID: "C", Name: "Payment Gateway", EntityType: types.EntityTypeSystem, Score: 0.5, Depth: 1},
	}}
	r := newTestRetriever(vectors, traverser, nil)

	res, err := r.Search(context.Background(), Query{
		Namespace: "acme",
		Text:      "payments",
		Embedding: []float32{1, 0},
	})
	require.NoError(t, err)
	assert.True(t, res.Partial)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "C", res.Items[0].EntityID)
}

func TestSearchFailsWhenBothBranchesFail(t *testing.T) {
	vectors := &stubVectors{err: errors.New("vector index down")}
	traverser := &stubGraph{err: errors.New("graph down")}
	r := newTestRetriever(vectors, traverser, nil)

	_, err := r.Search(context.Background(), Query{
		Namespace: "acme",
		Embedding: []float32{1, 0},
	})
	require.Error(t, err)
}

func TestSearchRequiresEmbeddingOrEmbedder(t *testing.T) {
	r := newTestRetriever(&stubVectors{}, &stubGraph{}, nil)

	_, err := r.Search(context.Background(), Query{Namespace: "acme", Text: "checkout"})
	assert.ErrorIs(t, err, ErrNoQueryEmbedding)

	_, err = r.Search(context.Background(), Query{Text: "checkout"})
	assert.ErrorIs(t, err, types.ErrEmptyNamespace)
}

func TestSearchCachesAndInvalidates(t *testing.T) {
	resultCache, err := cache.New("", time.Minute)
	require.NoError(t, err)
	defer resultCache.Close()

	vectors := &stubVectors{
		entities: []*types.Entity{entity("A", "Opera PMS")},
		scores:   []float64{0.9},
	}
	r := newTestRetriever(vectors, &stubGraph{}, resultCache)

	q := Query{Namespace: "acme", Text: "opera", Embedding: []float32{1, 0}}

	first, err := r.Search(context.Background(), q)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := r.Search(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Items, second.Items)

	// Consolidation bumps the epoch; the next query recomputes.
	require.NoError(t, resultCache.Invalidate("acme"))
	third, err := r.Search(context.Background(), q)
	require.NoError(t, err)
	assert.False(t, third.Cached)
}

func TestSearchPartialResultsNotCached(t *testing.T) {
	resultCache, err := cache.New("", time.Minute)
	require.NoError(t, err)
	defer resultCache.Close()

	vectors := &stubVectors{err: errors.New("vector index down")}
	traverser := &stubGraph{hits: []graph.Hit{
		{EntityID: "C", Name: "Payment Gateway", EntityType: types.EntityTypeSystem, Score: 0.5},
	}}
	r := newTestRetriever(vectors, traverser, resultCache)

	q := Query{Namespace: "acme", Text: "payments", Embedding: []float32{1, 0}}
	first, err := r.Search(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, first.Partial)

	second, err := r.Search(context.Background(), q)
	require.NoError(t, err)
	assert.False(t, second.Cached, "degraded results are never cached")
}

func TestSearchHonorsTopK(t *testing.T) {
	vectors := &stubVectors{
		entities: []*types.Entity{entity("A", "a"), entity("B", "b"), entity("C", "c")},
		scores:   []float64{0.9, 0.8, 0.7},
	}
	r := newTestRetriever(vectors, &stubGraph{}, nil)

	res, err := r.Search(context.Background(), Query{
		Namespace:    "acme",
		Embedding:    []float32{1, 0},
		VectorWeight: 1.0,
		TopK:         2,
	})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
}

func TestFuseTieBreaks(t *testing.T) {
	// Same fused score at the same rank in disjoint branches: higher raw
	// similarity wins, then lexicographic id.
	items := fuse(
		[]*types.Entity{entity("B", "b")}, []float64{0.4},
		[]graph.Hit{{EntityID: "A", Name: "a", Score: 0.9}},
		0.5, 0.5, defaultRankConstant)
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].EntityID, "raw similarity breaks the tie")

	items = fuse(
		[]*types.Entity{entity("B", "b")}, []float64{0.9},
		[]graph.Hit{{EntityID: "A", Name: "a", Score: 0.9}},
		0.5, 0.5, defaultRankConstant)
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].EntityID, "id breaks the remaining tie")
}

func TestSearchHonorsRankConstant(t *testing.T) {
	vectors := &stubVectors{
		entities: []*types.Entity{entity("A", "a")},
		scores:   []float64{0.9},
	}
	r := New(vectors, &stubGraph{}, nil, nil,
		config.RetrievalConfig{RankConstant: 10}, nil)

	res, err := r.Search(context.Background(), Query{
		Namespace:    "acme",
		Embedding:    []float32{1, 0},
		VectorWeight: 1.0,
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.InDelta(t, 1.0/11, res.Items[0].Score, 1e-9)
}
