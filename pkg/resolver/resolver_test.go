package resolver

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/consolidato/pkg/config"
	"github.com/soundprediction/consolidato/pkg/similarity"
	"github.com/soundprediction/consolidato/pkg/store"
	"github.com/soundprediction/consolidato/pkg/types"
)

func newTestResolver(st Store) *Resolver {
	return New(st, similarity.NewScorer(), nil, nil, config.ConsolidationConfig{}, nil)
}

func candidate(name, sourceRef string) *types.CandidateEntity {
	return &types.CandidateEntity{
		EntityType:    types.EntityTypeSystem,
		Namespace:     "acme",
		SourceRef:     sourceRef,
		CanonicalName: name,
	}
}

func TestResolveNewThenMergeOnNameMatch(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := newTestResolver(st)

	a := candidate("SAP", "doc1")
	a.Attributes.Categorical = map[string]string{"vendor": "SAP SE"}
	first, err := r.Resolve(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionNew, first.Decision)
	assert.NotEmpty(t, first.EntityID)
	assert.NotEmpty(t, first.AuditID)

	b := candidate("S.A.P.", "doc2")
	b.Attributes.Categorical = map[string]string{"vendor": "sap se"}
	second, err := r.Resolve(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionMerge, second.Decision)
	assert.Equal(t, first.EntityID, second.EntityID)
	assert.Equal(t, 1.0, second.Similarity)
	assert.False(t, second.Contradiction)

	entity, err := st.GetEntity(ctx, "acme", first.EntityID)
	require.NoError(t, err)
	assert.Equal(t, "SAP", entity.CanonicalName, "merge keeps the existing canonical name")
	assert.Equal(t, 2, entity.SourceCount)
	assert.Equal(t, []string{"doc1", "doc2"}, entity.MentionedIn)
	assert.GreaterOrEqual(t, entity.ConsensusConfidence, 0.9)
	assert.Equal(t, "SAP SE", entity.Attributes.Categorical["vendor"], "first-seen spelling wins")
}

func TestResolveNewEntityStartsAtBaseConfidence(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := newTestResolver(st)

	res, err := r.Resolve(ctx, candidate("Oracle Fusion", "doc1"))
	require.NoError(t, err)
	require.Equal(t, types.DecisionNew, res.Decision)

	entity, err := st.GetEntity(ctx, "acme", res.EntityID)
	require.NoError(t, err)
	assert.Equal(t, 1, entity.SourceCount)
	assert.Equal(t, 0.5, entity.ConsensusConfidence, "a single source carries no consensus evidence")
}

func TestResolveMergeIsIdempotentPerSource(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := newTestResolver(st)

	a := candidate("Opera PMS", "doc1")
	a.Attributes.Numeric = map[string]float64{"satisfaction": 8}
	first, err := r.Resolve(ctx, a)
	require.NoError(t, err)

	b := candidate("Opera PMS", "doc2")
	b.Attributes.Numeric = map[string]float64{"satisfaction": 8}
	_, err = r.Resolve(ctx, b)
	require.NoError(t, err)

	before, err := st.GetEntity(ctx, "acme", first.EntityID)
	require.NoError(t, err)

	// Re-resolving the same assertion from the same source must not shift
	// any derived state.
	_, err = r.Resolve(ctx, b)
	require.NoError(t, err)

	after, err := st.GetEntity(ctx, "acme", first.EntityID)
	require.NoError(t, err)
	assert.Equal(t, before.SourceCount, after.SourceCount)
	assert.Equal(t, before.MentionedIn, after.MentionedIn)
	assert.Equal(t, before.ConsensusConfidence, after.ConsensusConfidence)
	assert.Equal(t, before.Attributes.Numeric, after.Attributes.Numeric)
	assert.Equal(t, before.HasContradictions, after.HasContradictions)
}

func TestResolveMergeDetectsContradiction(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := newTestResolver(st)

	a := candidate("Opera PMS", "doc1")
	a.Attributes.Numeric = map[string]float64{"satisfaction": 3}
	first, err := r.Resolve(ctx, a)
	require.NoError(t, err)

	// |3-8| = 5 exceeds half the larger magnitude (4).
	b := candidate("Opera PMS", "doc2")
	b.Attributes.Numeric = map[string]float64{"satisfaction": 8}
	second, err := r.Resolve(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionMerge, second.Decision)
	assert.True(t, second.Contradiction)

	entity, err := st.GetEntity(ctx, "acme", first.EntityID)
	require.NoError(t, err)
	assert.True(t, entity.HasContradictions)
	require.Len(t, entity.ContradictionDetails, 1)
	assert.True(t, strings.HasPrefix(entity.ContradictionDetails[0], "satisfaction:"))
	// Tie between the two values breaks toward the earliest source.
	assert.Equal(t, float64(3), entity.Attributes.Numeric["satisfaction"])
	// One of two sources disagrees with the majority: 0.5+0.2+0.4*0.5.
	assert.InDelta(t, 0.9, entity.ConsensusConfidence, 1e-9)
}

func TestResolveLinkCreatesPossibleDuplicate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := newTestResolver(st)

	a := candidate("Check-In Process", "doc1")
	a.Attributes.Sets = map[string][]string{
		"steps": {"id check", "key card", "payment", "welcome"},
	}
	first, err := r.Resolve(ctx, a)
	require.NoError(t, err)

	// Jaccard 4/5 = 0.8: at the link threshold but below merge.
	b := candidate("Guest Arrival Handling", "doc2")
	b.Attributes.Sets = map[string][]string{
		"steps": {"id check", "key card", "payment", "welcome", "upsell"},
	}
	second, err := r.Resolve(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionLink, second.Decision)
	assert.NotEqual(t, first.EntityID, second.EntityID)
	assert.Equal(t, first.EntityID, second.MatchedEntityID)
	assert.InDelta(t, 0.8, second.Similarity, 1e-9)

	rel, err := st.GetRelationshipByKey(ctx, "acme", types.RelPossibleDuplicateOf, second.EntityID, first.EntityID)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, rel.Strength, 1e-9)
	assert.InDelta(t, 0.8, rel.Confidence, 1e-9)
	assert.False(t, rel.Validated)
	assert.Equal(t, types.ValidationSingleSource, rel.ValidationType)
	assert.Equal(t, []string{"doc2"}, rel.SourceRefs)
}

func TestResolveRejectsInvalidCandidate(t *testing.T) {
	r := newTestResolver(store.NewMemoryStore())

	bad := candidate("SAP", "doc1")
	bad.Namespace = ""
	_, err := r.Resolve(context.Background(), bad)
	require.Error(t, err)
}

type conflictingStore struct {
	Store
}

func (s *conflictingStore) UpdateEntity(ctx context.Context, entity *types.Entity, expectedVersion int64) error {
	return store.ErrVersionConflict
}

func TestResolveRetriesThenGivesUp(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	st := &conflictingStore{Store: mem}
	r := newTestResolver(st)

	_, err := r.Resolve(ctx, candidate("SAP", "doc1"))
	require.NoError(t, err, "create path does not update")

	_, err = r.Resolve(ctx, candidate("SAP", "doc2"))
	require.Error(t, err)
	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
}

func TestRollbackRestoresPreMergeState(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := newTestResolver(st)

	a := candidate("Opera PMS", "doc1")
	a.Attributes.Numeric = map[string]float64{"satisfaction": 8}
	first, err := r.Resolve(ctx, a)
	require.NoError(t, err)

	b := candidate("Opera PMS", "doc2")
	b.Attributes.Numeric = map[string]float64{"satisfaction": 2}
	second, err := r.Resolve(ctx, b)
	require.NoError(t, err)
	require.Equal(t, types.DecisionMerge, second.Decision)

	require.NoError(t, r.Rollback(ctx, "acme", second.AuditID))

	entity, err := st.GetEntity(ctx, "acme", first.EntityID)
	require.NoError(t, err)
	assert.Equal(t, 1, entity.SourceCount)
	assert.Equal(t, []string{"doc1"}, entity.MentionedIn)
	assert.False(t, entity.HasContradictions)
	assert.Equal(t, float64(8), entity.Attributes.Numeric["satisfaction"])

	// A create audit carries no snapshot and cannot be rolled back.
	err = r.Rollback(ctx, "acme", first.AuditID)
	require.Error(t, err)

	// Namespace must match the audit record.
	err = r.Rollback(ctx, "globex", second.AuditID)
	require.Error(t, err)
}
