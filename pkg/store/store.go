package store

import (
	"context"
	"errors"

	"github.com/soundprediction/consolidato/pkg/types"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when an optimistic version check fails;
	// callers retry with a fresh read.
	ErrVersionConflict = errors.New("optimistic version conflict")
	// ErrDuplicateID is returned when a create collides with an existing id.
	ErrDuplicateID = errors.New("duplicate id")
)

// This file defines focused interfaces following the Interface Segregation
// Principle. KnowledgeStore composes them; consumers should depend on the
// smallest interface that meets their needs.

// EntityStore provides entity persistence. Only the entity resolver mutates
// entities; updates carry the version read to detect write conflicts.
type EntityStore interface {
	// GetEntity retrieves one entity by id within a namespace.
	GetEntity(ctx context.Context, namespace, id string) (*types.Entity, error)

	// ListEntities retrieves all entities of one (namespace, entity_type)
	// partition.
	ListEntities(ctx context.Context, namespace string, entityType types.EntityType) ([]*types.Entity, error)

	// ListEntitiesByType retrieves entities of one type across namespaces.
	ListEntitiesByType(ctx context.Context, entityType types.EntityType) ([]*types.Entity, error)

	// CreateEntity persists a new entity at version 1.
	CreateEntity(ctx context.Context, entity *types.Entity) error

	// UpdateEntity persists entity if its stored version still equals
	// expectedVersion, bumping the version; otherwise ErrVersionConflict.
	UpdateEntity(ctx context.Context, entity *types.Entity, expectedVersion int64) error
}

// RelationshipStore provides relationship persistence. Only the relationship
// discoverer (and the resolver, for possible_duplicate_of links) mutates
// relationships.
type RelationshipStore interface {
	// GetRelationship retrieves one relationship by id.
	GetRelationship(ctx context.Context, namespace, id string) (*types.Relationship, error)

	// GetRelationshipByKey retrieves the relationship with the given
	// normalized upsert key, or ErrNotFound.
	GetRelationshipByKey(ctx context.Context, namespace string, relType types.RelationshipType, entity1ID, entity2ID string) (*types.Relationship, error)

	// ListRelationships retrieves all relationships touching an entity.
	ListRelationships(ctx context.Context, namespace, entityID string) ([]*types.Relationship, error)

	// CreateRelationship persists a new relationship at version 1.
	CreateRelationship(ctx context.Context, rel *types.Relationship) error

	// UpdateRelationship persists rel under an optimistic version check.
	UpdateRelationship(ctx context.Context, rel *types.Relationship, expectedVersion int64) error
}

// PatternStore provides pattern persistence. Only the periodic pattern
// recognizer mutates patterns.
type PatternStore interface {
	// GetPattern retrieves one pattern by id.
	GetPattern(ctx context.Context, id string) (*types.Pattern, error)

	// ListPatterns retrieves all patterns, highest priority first.
	ListPatterns(ctx context.Context) ([]*types.Pattern, error)

	// UpsertPattern creates or replaces a pattern by id.
	UpsertPattern(ctx context.Context, pattern *types.Pattern) error
}

// AuditStore provides the append-only consolidation audit trail. Records are
// immutable; an external governance consumer reads them.
type AuditStore interface {
	// AppendAudit appends one immutable audit record.
	AppendAudit(ctx context.Context, record *types.AuditRecord) error

	// GetAudit retrieves one audit record by id.
	GetAudit(ctx context.Context, id string) (*types.AuditRecord, error)

	// ListAudits retrieves the most recent audit records for a namespace.
	ListAudits(ctx context.Context, namespace string, limit int) ([]*types.AuditRecord, error)
}

// VectorSearcher ranks entities of a namespace by embedding similarity.
type VectorSearcher interface {
	// SearchEntitiesByEmbedding returns up to limit entities ranked by
	// cosine similarity of their description embeddings against vector,
	// along with the raw similarity scores.
	SearchEntitiesByEmbedding(ctx context.Context, namespace string, vector []float32, limit int) ([]*types.Entity, []float64, error)
}

// NamespaceStats summarizes one namespace of the store.
type NamespaceStats struct {
	Namespace     string `json:"namespace"`
	Entities      int    `json:"entities"`
	Relationships int    `json:"relationships"`
	AuditRecords  int    `json:"audit_records"`
}

// Admin provides maintenance operations.
type Admin interface {
	// Stats summarizes a namespace.
	Stats(ctx context.Context, namespace string) (*NamespaceStats, error)

	// Close releases store resources.
	Close() error
}

// KnowledgeStore is the shared, namespace-partitioned repository of
// consolidated knowledge: entities, relationships, patterns, and the audit
// trail. It is the sole mutable shared resource; all coordination happens
// through per-key locks in the owners plus the optimistic version checks
// here, never a global lock.
type KnowledgeStore interface {
	EntityStore
	RelationshipStore
	PatternStore
	AuditStore
	VectorSearcher
	Admin
}
