package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/consolidato/pkg/types"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLStore("sqlite", filepath.Join(t.TempDir(), "test.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLStoreEntityRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	entity := &types.Entity{
		ID:            "e1",
		Namespace:     "acme",
		EntityType:    types.EntityTypeSystem,
		CanonicalName: "Opera PMS",
		Description:   "property management system",
		Attributes: types.Attributes{
			Numeric:     map[string]float64{"satisfaction": 8},
			Categorical: map[string]string{"vendor": "Oracle"},
			Sets:        map[string][]string{"modules": {"reservations", "billing"}},
		},
		Observations: map[string]types.Attributes{
			"doc1": {Numeric: map[string]float64{"satisfaction": 8}},
		},
		MentionedIn:          []string{"doc1"},
		SourceCount:          1,
		ConsensusConfidence:  1,
		DescriptionEmbedding: []float32{0.1, 0.2},
		CreatedAt:            time.Now().UTC(),
		LastEnrichedAt:       time.Now().UTC(),
	}
	require.NoError(t, s.CreateEntity(ctx, entity))
	assert.ErrorIs(t, s.CreateEntity(ctx, entity), ErrDuplicateID)

	got, err := s.GetEntity(ctx, "acme", "e1")
	require.NoError(t, err)
	assert.Equal(t, "Opera PMS", got.CanonicalName)
	assert.Equal(t, float64(8), got.Attributes.Numeric["satisfaction"])
	assert.Equal(t, []string{"reservations", "billing"}, got.Attributes.Sets["modules"])
	assert.Equal(t, []string{"doc1"}, got.MentionedIn)
	assert.Len(t, got.DescriptionEmbedding, 2)
	assert.Equal(t, int64(1), got.Version)

	got.Description = "updated"
	require.NoError(t, s.UpdateEntity(ctx, got, 1))
	assert.Equal(t, int64(2), got.Version)

	stale := *got
	assert.ErrorIs(t, s.UpdateEntity(ctx, &stale, 1), ErrVersionConflict)

	_, err = s.GetEntity(ctx, "acme", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreRelationshipRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	rel := &types.Relationship{
		ID:             "r1",
		Namespace:      "acme",
		Type:           types.RelCoordinatesWith,
		Entity1ID:      "b",
		Entity2ID:      "a",
		Strength:       0.1,
		SourceRefs:     []string{"doc14"},
		ValidationType: types.ValidationSingleSource,
		Confidence:     0.7,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, s.CreateRelationship(ctx, rel))
	// Symmetric endpoints are stored normalized.
	assert.Equal(t, "a", rel.Entity1ID)
	assert.Equal(t, "b", rel.Entity2ID)

	got, err := s.GetRelationshipByKey(ctx, "acme", types.RelCoordinatesWith, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)

	got.SourceRefs = append(got.SourceRefs, "doc21")
	got.Validated = true
	got.ValidationType = types.ValidationCrossValidated
	got.Confidence = 0.95
	require.NoError(t, s.UpdateRelationship(ctx, got, 1))

	listed, err := s.ListRelationships(ctx, "acme", "a")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].Validated)
	assert.Equal(t, []string{"doc14", "doc21"}, listed[0].SourceRefs)
}

func TestSQLStorePatternUpsert(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	p := &types.Pattern{
		ID:              "p1",
		PatternType:     types.PatternRecurringConcept,
		MemberEntityIDs: []string{"e1", "e2", "e3"},
		Frequency:       3,
		PriorityScore:   5,
		CreatedAt:       time.Now().UTC(),
		LastUpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.UpsertPattern(ctx, p))

	p.Frequency = 4
	p.PriorityScore = 6
	require.NoError(t, s.UpsertPattern(ctx, p))

	got, err := s.GetPattern(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Frequency)

	patterns, err := s.ListPatterns(ctx)
	require.NoError(t, err)
	assert.Len(t, patterns, 1)
}

func TestSQLStoreAuditsAndStats(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	record := &types.AuditRecord{
		ID:                "a1",
		Namespace:         "acme",
		Timestamp:         time.Now().UTC(),
		MergedEntityIDs:   []string{"e1"},
		ResultingEntityID: "e1",
		SimilarityScore:   0.93,
		Decision:          types.DecisionMerge,
		RollbackSnapshot:  []byte(`{"id":"e1"}`),
	}
	require.NoError(t, s.AppendAudit(ctx, record))

	got, err := s.GetAudit(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, types.DecisionMerge, got.Decision)
	assert.JSONEq(t, `{"id":"e1"}`, string(got.RollbackSnapshot))

	stats, err := s.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AuditRecords)
	assert.Equal(t, 0, stats.Entities)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: "postgres"}
	lite := &SQLStore{driver: "sqlite"}

	q := "SELECT * FROM t WHERE a = ? AND b = ?"
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}
