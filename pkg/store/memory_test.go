package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/consolidato/pkg/types"
)

func testEntity(id, namespace, name string) *types.Entity {
	return &types.Entity{
		ID:            id,
		Namespace:     namespace,
		EntityType:    types.EntityTypeSystem,
		CanonicalName: name,
	}
}

func TestMemoryStoreEntityLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	entity := testEntity("e1", "acme", "SAP")
	require.NoError(t, s.CreateEntity(ctx, entity))
	assert.Equal(t, int64(1), entity.Version)

	require.Error(t, s.CreateEntity(ctx, testEntity("e1", "acme", "SAP")))

	got, err := s.GetEntity(ctx, "acme", "e1")
	require.NoError(t, err)
	assert.Equal(t, "SAP", got.CanonicalName)

	// Mutating the returned copy must not leak into the store.
	got.CanonicalName = "mutated"
	again, err := s.GetEntity(ctx, "acme", "e1")
	require.NoError(t, err)
	assert.Equal(t, "SAP", again.CanonicalName)

	_, err = s.GetEntity(ctx, "acme", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetEntity(ctx, "other", "e1")
	assert.ErrorIs(t, err, ErrNotFound, "namespaces must be isolated")
}

func TestMemoryStoreOptimisticVersioning(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	entity := testEntity("e1", "acme", "SAP")
	require.NoError(t, s.CreateEntity(ctx, entity))

	entity.Description = "enterprise resource planning"
	require.NoError(t, s.UpdateEntity(ctx, entity, 1))
	assert.Equal(t, int64(2), entity.Version)

	stale := testEntity("e1", "acme", "SAP")
	err := s.UpdateEntity(ctx, stale, 1)
	assert.ErrorIs(t, err, ErrVersionConflict)

	err = s.UpdateEntity(ctx, testEntity("ghost", "acme", "x"), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListEntitiesPartition(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateEntity(ctx, testEntity("e1", "acme", "SAP")))
	require.NoError(t, s.CreateEntity(ctx, testEntity("e2", "acme", "Oracle")))
	other := testEntity("e3", "acme", "Slow Checkout")
	other.EntityType = types.EntityTypePainPoint
	require.NoError(t, s.CreateEntity(ctx, other))
	require.NoError(t, s.CreateEntity(ctx, testEntity("e4", "globex", "SAP")))

	systems, err := s.ListEntities(ctx, "acme", types.EntityTypeSystem)
	require.NoError(t, err)
	assert.Len(t, systems, 2)

	painPoints, err := s.ListEntitiesByType(ctx, types.EntityTypePainPoint)
	require.NoError(t, err)
	assert.Len(t, painPoints, 1)
}

func TestMemoryStoreRelationshipKeyCollapse(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rel := &types.Relationship{
		ID:        "r1",
		Namespace: "acme",
		Type:      types.RelCoordinatesWith,
		Entity1ID: "b",
		Entity2ID: "a",
	}
	require.NoError(t, s.CreateRelationship(ctx, rel))

	// Symmetric type: (a,b) and (b,a) are the same record.
	got, err := s.GetRelationshipByKey(ctx, "acme", types.RelCoordinatesWith, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)

	dup := &types.Relationship{
		ID:        "r2",
		Namespace: "acme",
		Type:      types.RelCoordinatesWith,
		Entity1ID: "a",
		Entity2ID: "b",
	}
	assert.ErrorIs(t, s.CreateRelationship(ctx, dup), ErrDuplicateID)

	// Directional type with reversed endpoints is a different record.
	directional := &types.Relationship{
		ID:        "r3",
		Namespace: "acme",
		Type:      types.RelCauses,
		Entity1ID: "b",
		Entity2ID: "a",
	}
	require.NoError(t, s.CreateRelationship(ctx, directional))
	reversed := &types.Relationship{
		ID:        "r4",
		Namespace: "acme",
		Type:      types.RelCauses,
		Entity1ID: "a",
		Entity2ID: "b",
	}
	require.NoError(t, s.CreateRelationship(ctx, reversed))
}

func TestMemoryStoreAudits(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, s.AppendAudit(ctx, &types.AuditRecord{
			ID:        id,
			Namespace: "acme",
			Decision:  types.DecisionNew,
		}))
	}
	require.NoError(t, s.AppendAudit(ctx, &types.AuditRecord{
		ID:        "b1",
		Namespace: "globex",
		Decision:  types.DecisionNew,
	}))

	audits, err := s.ListAudits(ctx, "acme", 2)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, "a3", audits[0].ID, "most recent first")
	assert.Equal(t, "a2", audits[1].ID)

	got, err := s.GetAudit(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "globex", got.Namespace)
}

func TestMemoryStoreVectorSearch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	near := testEntity("e1", "acme", "Booking Engine")
	near.DescriptionEmbedding = []float32{1, 0}
	far := testEntity("e2", "acme", "Payroll")
	far.DescriptionEmbedding = []float32{0, 1}
	noVec := testEntity("e3", "acme", "Unembedded")
	require.NoError(t, s.CreateEntity(ctx, near))
	require.NoError(t, s.CreateEntity(ctx, far))
	require.NoError(t, s.CreateEntity(ctx, noVec))

	entities, scores, err := s.SearchEntitiesByEmbedding(ctx, "acme", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, entities, 2, "entities without embeddings are excluded")
	assert.Equal(t, "e1", entities[0].ID)
	assert.InDelta(t, 1.0, scores[0], 1e-9)
	assert.Equal(t, "e2", entities[1].ID)

	entities, _, err = s.SearchEntitiesByEmbedding(ctx, "acme", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestMemoryStorePatterns(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	low := &types.Pattern{ID: "p1", MemberEntityIDs: []string{"a"}, PriorityScore: 2}
	high := &types.Pattern{ID: "p2", MemberEntityIDs: []string{"b"}, PriorityScore: 9}
	require.NoError(t, s.UpsertPattern(ctx, low))
	require.NoError(t, s.UpsertPattern(ctx, high))

	// Upsert replaces in place.
	low.PriorityScore = 3
	require.NoError(t, s.UpsertPattern(ctx, low))

	patterns, err := s.ListPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	assert.Equal(t, "p2", patterns[0].ID, "highest priority first")
	assert.Equal(t, float64(3), patterns[1].PriorityScore)
}

func TestNewStoreFactory(t *testing.T) {
	s, err := New(&Config{Type: BackendMemory})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = New(&Config{Type: "bogus"})
	require.Error(t, err)

	_, err = New(&Config{Type: BackendSQLite})
	require.Error(t, err, "sqlite requires a DSN")

	_, err = New(nil)
	require.Error(t, err)
}
