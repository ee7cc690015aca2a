package graph

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/soundprediction/consolidato/pkg/types"
	"github.com/soundprediction/consolidato/pkg/utils"
)

type memoryNode struct {
	id         string
	name       string
	normalized string
	entityType types.EntityType
}

type memoryEdge struct {
	peerID   string
	relType  types.RelationshipType
	strength float64
}

// MemoryGraph is an in-process adjacency-list GraphIndex for tests and
// embedded runs.
type MemoryGraph struct {
	mu    sync.RWMutex
	nodes map[string]map[string]*memoryNode  // namespace -> id
	edges map[string]map[string][]memoryEdge // namespace -> id -> adjacency
}

// NewMemoryGraph creates an empty in-memory graph index.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		nodes: make(map[string]map[string]*memoryNode),
		edges: make(map[string]map[string][]memoryEdge),
	}
}

// UpsertNode implements NodeMirror.
func (g *MemoryGraph) UpsertNode(ctx context.Context, entity *types.Entity) error {
	if err := entity.ValidateForCreate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ns, ok := g.nodes[entity.Namespace]
	if !ok {
		ns = make(map[string]*memoryNode)
		g.nodes[entity.Namespace] = ns
	}
	ns[entity.ID] = &memoryNode{
		id:         entity.ID,
		name:       entity.CanonicalName,
		normalized: utils.NormalizeName(entity.CanonicalName),
		entityType: entity.EntityType,
	}
	return nil
}

// UpsertEdge implements EdgeMirror.
func (g *MemoryGraph) UpsertEdge(ctx context.Context, rel *types.Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ns, ok := g.edges[rel.Namespace]
	if !ok {
		ns = make(map[string][]memoryEdge)
		g.edges[rel.Namespace] = ns
	}
	upsert := func(from, to string) {
		adj := ns[from]
		for i := range adj {
			if adj[i].peerID == to && adj[i].relType == rel.Type {
				adj[i].strength = rel.Strength
				return
			}
		}
		ns[from] = append(adj, memoryEdge{peerID: to, relType: rel.Type, strength: rel.Strength})
	}
	// Traversal is undirected regardless of relationship direction.
	upsert(rel.Entity1ID, rel.Entity2ID)
	upsert(rel.Entity2ID, rel.Entity1ID)
	return nil
}

// Search implements Traverser.
func (g *MemoryGraph) Search(ctx context.Context, namespace, query string, maxDepth, limit int) ([]Hit, error) {
	tokens := strings.Fields(utils.NormalizeName(query))
	if len(tokens) == 0 {
		return nil, nil
	}
	if maxDepth < 0 {
		maxDepth = 0
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	// Seed by keyword match, scored by the fraction of query tokens hit.
	seeds := make(map[string]float64)
	for id, node := range g.nodes[namespace] {
		matched := 0
		for _, token := range tokens {
			if strings.Contains(node.normalized, token) {
				matched++
			}
		}
		if matched > 0 {
			seeds[id] = float64(matched) / float64(len(tokens))
		}
	}

	best := make(map[string]Hit)
	for seedID, seedScore := range seeds {
		g.walk(namespace, seedID, seedScore, maxDepth, best)
	}

	hits := make([]Hit, 0, len(best))
	for _, h := range best {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].EntityID < hits[j].EntityID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// walk runs a bounded BFS from one seed, keeping the best score per node.
// Scores decay with depth and edge strength.
func (g *MemoryGraph) walk(namespace, seedID string, seedScore float64, maxDepth int, best map[string]Hit) {
	type frontier struct {
		id    string
		score float64
		depth int
		via   []types.RelationshipType
	}
	queue := []frontier{{id: seedID, score: seedScore, depth: 0}}
	visited := map[string]bool{seedID: true}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		node, ok := g.nodes[namespace][cur.id]
		if !ok {
			continue
		}
		if existing, ok := best[cur.id]; !ok || cur.score > existing.Score {
			best[cur.id] = Hit{
				EntityID:   cur.id,
				Name:       node.name,
				EntityType: node.entityType,
				Score:      cur.score,
				Depth:      cur.depth,
				Via:        cur.via,
			}
		}
		if cur.depth >= maxDepth {
			continue
		}
		for _, edge := range g.edges[namespace][cur.id] {
			if visited[edge.peerID] {
				continue
			}
			visited[edge.peerID] = true
			via := append(append([]types.RelationshipType{}, cur.via...), edge.relType)
			queue = append(queue, frontier{
				id:    edge.peerID,
				score: cur.score * edge.strength / float64(cur.depth+2),
				depth: cur.depth + 1,
				via:   via,
			})
		}
	}
}

// Neighbors implements Traverser.
func (g *MemoryGraph) Neighbors(ctx context.Context, namespace, entityID string, maxDepth int) ([]Hit, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	best := make(map[string]Hit)
	g.walk(namespace, entityID, 1.0, maxDepth, best)
	delete(best, entityID)

	hits := make([]Hit, 0, len(best))
	for _, h := range best {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Depth != hits[j].Depth {
			return hits[i].Depth < hits[j].Depth
		}
		return hits[i].EntityID < hits[j].EntityID
	})
	return hits, nil
}

// Close implements GraphIndex.
func (g *MemoryGraph) Close(ctx context.Context) error { return nil }

var _ GraphIndex = (*MemoryGraph)(nil)
