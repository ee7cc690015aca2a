// Package graph defines the graph-traversable index over consolidated
// entities and relationships. The contract is traversal semantics only:
// seed nodes by keyword match, walk relationships to a bounded depth, and
// rank what was reached. How a backend stores or indexes the graph is its
// own concern.
package graph

import (
	"context"

	"github.com/soundprediction/consolidato/pkg/types"
)

// Hit is one ranked traversal result. Depth 0 marks a seed node.
type Hit struct {
	EntityID   string           `json:"entity_id"`
	Name       string           `json:"name"`
	EntityType types.EntityType `json:"entity_type"`
	Score      float64          `json:"score"`
	Depth      int              `json:"depth"`
	// Via lists the relationship types walked from the seed to this node.
	Via []types.RelationshipType `json:"via,omitempty"`
}

// NodeMirror accepts entity write-through from the resolver so traversal
// sees consolidated state.
type NodeMirror interface {
	// UpsertNode creates or updates the node for an entity.
	UpsertNode(ctx context.Context, entity *types.Entity) error
}

// EdgeMirror accepts relationship write-through from the discoverer.
type EdgeMirror interface {
	// UpsertEdge creates or updates the edge for a relationship.
	UpsertEdge(ctx context.Context, rel *types.Relationship) error
}

// Traverser provides bounded-depth relationship search.
type Traverser interface {
	// Search seeds nodes in the namespace by keyword match against the
	// query text, walks relationships up to maxDepth, and returns ranked
	// hits (best first), truncated to limit.
	Search(ctx context.Context, namespace, query string, maxDepth, limit int) ([]Hit, error)

	// Neighbors returns the nodes reachable from entityID within maxDepth.
	Neighbors(ctx context.Context, namespace, entityID string, maxDepth int) ([]Hit, error)
}

// GraphIndex composes the full index contract.
type GraphIndex interface {
	NodeMirror
	EdgeMirror
	Traverser

	// Close releases index resources.
	Close(ctx context.Context) error
}
