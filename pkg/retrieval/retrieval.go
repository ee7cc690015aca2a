// Package retrieval fuses vector similarity search and graph traversal into
// one ranked result. The two branches run concurrently under a deadline; a
// failed branch degrades the result instead of failing the query. Retrieval
// is read-only: cancellation abandons in-flight calls without retry.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soundprediction/consolidato/pkg/cache"
	"github.com/soundprediction/consolidato/pkg/config"
	"github.com/soundprediction/consolidato/pkg/embedder"
	"github.com/soundprediction/consolidato/pkg/graph"
	"github.com/soundprediction/consolidato/pkg/store"
	"github.com/soundprediction/consolidato/pkg/types"
)

// defaultRankConstant is the reciprocal rank fusion constant used when the
// configuration leaves it unset.
const defaultRankConstant = 60

// branchLimit bounds how many results each branch contributes to fusion.
const branchLimit = 50

// ErrNoQueryEmbedding is returned when the query has no embedding and no
// embedding client is wired to compute one.
var ErrNoQueryEmbedding = errors.New("query embedding missing and no embedder configured")

// Query is one retrieval request.
type Query struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
	Namespace string    `json:"namespace"`
	TopK      int       `json:"top_k"`
	// VectorWeight and GraphWeight default to 0.5 each when both are zero.
	VectorWeight float64 `json:"vector_weight"`
	GraphWeight  float64 `json:"graph_weight"`
}

// Item is one fused result.
type Item struct {
	EntityID   string           `json:"entity_id"`
	Name       string           `json:"name"`
	EntityType types.EntityType `json:"entity_type"`

	Score float64 `json:"score"`
	// RawSimilarity is the branch-native score used for tie-breaks: cosine
	// similarity from the vector branch, traversal score from the graph one.
	RawSimilarity float64 `json:"raw_similarity"`
	// Source records which branches produced the item: vector, graph, both.
	Source string `json:"source"`

	// Graph payload, present when the graph branch saw the entity.
	Depth int                      `json:"depth,omitempty"`
	Via   []types.RelationshipType `json:"via,omitempty"`
}

// Result is the outcome of one search.
type Result struct {
	Items []Item `json:"items"`
	// Partial marks that one branch failed or timed out and the items come
	// from the surviving branch alone.
	Partial bool `json:"partial"`
	// Cached marks a result served from the fused-result cache.
	Cached bool `json:"cached"`
}

// Retriever runs hybrid search over the knowledge store and graph index.
type Retriever struct {
	vectors  store.VectorSearcher
	graph    graph.Traverser
	cache    *cache.ResultCache
	embedder embedder.Client
	logger   *slog.Logger
	cfg      config.RetrievalConfig
}

// New creates a retriever. resultCache and embedClient may be nil; without a
// cache every query recomputes, without an embedder queries must carry their
// own embedding.
func New(vectors store.VectorSearcher, traverser graph.Traverser, resultCache *cache.ResultCache, embedClient embedder.Client, cfg config.RetrievalConfig, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RankConstant <= 0 {
		cfg.RankConstant = defaultRankConstant
	}
	return &Retriever{
		vectors:  vectors,
		graph:    traverser,
		cache:    resultCache,
		embedder: embedClient,
		logger:   logger,
		cfg:      cfg,
	}
}

// Search runs both branches, fuses their rankings, and returns the top
// results. Fused results are cached per (namespace, normalized query,
// weights); consolidation invalidates the namespace by epoch.
func (r *Retriever) Search(ctx context.Context, q Query) (*Result, error) {
	if q.Namespace == "" {
		return nil, types.ErrEmptyNamespace
	}
	if q.TopK <= 0 {
		q.TopK = r.cfg.TopK
	}
	if q.VectorWeight == 0 && q.GraphWeight == 0 {
		q.VectorWeight, q.GraphWeight = 0.5, 0.5
	}

	var cacheKey string
	if r.cache != nil {
		cacheKey = r.cache.Key(q.Namespace, q.Text, q.VectorWeight, q.GraphWeight)
		if payload, ok, err := r.cache.Get(cacheKey); err == nil && ok {
			var items []Item
			if err := json.Unmarshal(payload, &items); err == nil {
				return &Result{Items: truncate(items, q.TopK), Cached: true}, nil
			}
		}
	}

	if len(q.Embedding) == 0 && q.VectorWeight > 0 {
		if r.embedder == nil {
			return nil, ErrNoQueryEmbedding
		}
		vec, err := r.embedder.EmbedSingle(ctx, q.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		q.Embedding = vec
	}

	branchCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var (
		vectorEntities []*types.Entity
		vectorScores   []float64
		vectorErr      error
		graphHits      []graph.Hit
		graphErr       error
	)

	// Branch errors degrade the result rather than cancel the sibling, so
	// the group only joins the goroutines.
	var g errgroup.Group
	if q.VectorWeight > 0 {
		g.Go(func() error {
			vectorEntities, vectorScores, vectorErr = r.vectors.SearchEntitiesByEmbedding(branchCtx, q.Namespace, q.Embedding, branchLimit)
			return nil
		})
	}
	if q.GraphWeight > 0 {
		g.Go(func() error {
			graphHits, graphErr = r.graph.Search(branchCtx, q.Namespace, q.Text, r.cfg.MaxDepth, branchLimit)
			return nil
		})
	}
	_ = g.Wait()

	if vectorErr != nil && graphErr != nil {
		return nil, fmt.Errorf("both retrieval branches failed in %s: vector: %v; graph: %v",
			q.Namespace, vectorErr, graphErr)
	}
	partial := false
	if q.VectorWeight > 0 && vectorErr != nil {
		partial = true
		r.logger.WarnContext(ctx, "vector branch failed, degrading to graph results",
			"namespace", q.Namespace, "error", vectorErr)
	}
	if q.GraphWeight > 0 && graphErr != nil {
		partial = true
		r.logger.WarnContext(ctx, "graph branch failed, degrading to vector results",
			"namespace", q.Namespace, "error", graphErr)
	}

	items := fuse(vectorEntities, vectorScores, graphHits, q.VectorWeight, q.GraphWeight, r.cfg.RankConstant)

	if r.cache != nil && !partial {
		if payload, err := json.Marshal(items); err == nil {
			if err := r.cache.Set(cacheKey, payload); err != nil {
				r.logger.WarnContext(ctx, "failed to cache retrieval result",
					"namespace", q.Namespace, "error", err)
			}
		}
	}

	return &Result{Items: truncate(items, q.TopK), Partial: partial}, nil
}

// fuse merges the two ranked lists with reciprocal rank fusion. A key present
// in both keeps the graph payload, which carries relational context, under
// the fused score.
func fuse(vectorEntities []*types.Entity, vectorScores []float64, graphHits []graph.Hit, vectorWeight, graphWeight float64, rankConstant int) []Item {
	merged := make(map[string]*Item)

	for i, entity := range vectorEntities {
		raw := 0.0
		if i < len(vectorScores) {
			raw = vectorScores[i]
		}
		merged[entity.ID] = &Item{
			EntityID:      entity.ID,
			Name:          entity.CanonicalName,
			EntityType:    entity.EntityType,
			Score:         vectorWeight / float64(i+1+rankConstant),
			RawSimilarity: raw,
			Source:        "vector",
		}
	}

	for i, hit := range graphHits {
		contribution := graphWeight / float64(i+1+rankConstant)
		if existing, ok := merged[hit.EntityID]; ok {
			existing.Score += contribution
			existing.Source = "both"
			existing.Depth = hit.Depth
			existing.Via = hit.Via
			if hit.Score > existing.RawSimilarity {
				existing.RawSimilarity = hit.Score
			}
			continue
		}
		merged[hit.EntityID] = &Item{
			EntityID:      hit.EntityID,
			Name:          hit.Name,
			EntityType:    hit.EntityType,
			Score:         contribution,
			RawSimilarity: hit.Score,
			Source:        "graph",
			Depth:         hit.Depth,
			Via:           hit.Via,
		}
	}

	items := make([]Item, 0, len(merged))
	for _, item := range merged {
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if items[i].RawSimilarity != items[j].RawSimilarity {
			return items[i].RawSimilarity > items[j].RawSimilarity
		}
		return items[i].EntityID < items[j].EntityID
	})
	return items
}

func truncate(items []Item, topK int) []Item {
	if topK > 0 && len(items) > topK {
		return items[:topK]
	}
	return items
}
