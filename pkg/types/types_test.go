package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityValidate(t *testing.T) {
	valid := Entity{
		Namespace:     "acme",
		EntityType:    EntityTypeSystem,
		CanonicalName: "SAP",
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Entity)
		want   error
	}{
		{"missing name", func(e *Entity) { e.CanonicalName = "" }, ErrEmptyName},
		{"missing namespace", func(e *Entity) { e.Namespace = "" }, ErrEmptyNamespace},
		{"missing type", func(e *Entity) { e.EntityType = "" }, ErrEmptyEntityType},
		{"unknown type", func(e *Entity) { e.EntityType = "spaceship" }, ErrUnknownType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			assert.ErrorIs(t, e.Validate(), tt.want)
		})
	}

	assert.ErrorIs(t, valid.ValidateForCreate(), ErrEmptyID)
	withID := valid
	withID.ID = "e1"
	assert.NoError(t, withID.ValidateForCreate())
}

func TestCandidateEntityValidate(t *testing.T) {
	valid := CandidateEntity{
		EntityType:    EntityTypeSystem,
		Namespace:     "acme",
		SourceRef:     "doc1",
		CanonicalName: "SAP",
	}
	assert.NoError(t, valid.Validate())

	noRef := valid
	noRef.SourceRef = ""
	assert.ErrorIs(t, noRef.Validate(), ErrEmptySourceRef)

	badType := valid
	badType.EntityType = "spaceship"
	assert.ErrorIs(t, badType.Validate(), ErrUnknownType)
}

func TestRelationshipValidate(t *testing.T) {
	valid := Relationship{
		Namespace: "acme",
		Type:      RelCauses,
		Entity1ID: "a",
		Entity2ID: "b",
	}
	assert.NoError(t, valid.Validate())

	selfLoop := valid
	selfLoop.Entity2ID = "a"
	assert.ErrorIs(t, selfLoop.Validate(), ErrSameEntity)

	badType := valid
	badType.Type = "frenemies"
	assert.ErrorIs(t, badType.Validate(), ErrUnknownRelationType)
}

func TestNormalizePair(t *testing.T) {
	// Symmetric types order endpoints lexicographically.
	relType, e1, e2 := NormalizePair(RelCoordinatesWith, "b", "a")
	assert.Equal(t, RelCoordinatesWith, relType)
	assert.Equal(t, "a", e1)
	assert.Equal(t, "b", e2)

	// Directional types keep the given order.
	_, e1, e2 = NormalizePair(RelCauses, "b", "a")
	assert.Equal(t, "b", e1)
	assert.Equal(t, "a", e2)
}

func TestAttributesClone(t *testing.T) {
	original := Attributes{
		Numeric:     map[string]float64{"satisfaction": 8},
		Categorical: map[string]string{"vendor": "Oracle"},
		Sets:        map[string][]string{"modules": {"hr", "finance"}},
	}
	clone := original.Clone()

	clone.Numeric["satisfaction"] = 1
	clone.Categorical["vendor"] = "SAP"
	clone.Sets["modules"][0] = "crm"

	assert.Equal(t, float64(8), original.Numeric["satisfaction"])
	assert.Equal(t, "Oracle", original.Categorical["vendor"])
	assert.Equal(t, "hr", original.Sets["modules"][0])
}

func TestAttributesIsEmpty(t *testing.T) {
	assert.True(t, Attributes{}.IsEmpty())
	assert.True(t, Attributes{Extra: map[string]interface{}{"note": "x"}}.IsEmpty(),
		"extra fields are not comparable evidence")
	assert.False(t, Attributes{Numeric: map[string]float64{"n": 1}}.IsEmpty())
}

func TestSnapshotRoundTrip(t *testing.T) {
	entity := &Entity{
		ID:            "e1",
		Namespace:     "acme",
		EntityType:    EntityTypeSystem,
		CanonicalName: "SAP",
		SourceCount:   2,
		MentionedIn:   []string{"doc1", "doc2"},
		Observations: map[string]Attributes{
			"doc1": {Numeric: map[string]float64{"seats": 100}},
		},
		Version: 3,
	}

	raw, err := Snapshot(entity)
	require.NoError(t, err)

	restored, err := RestoreSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, entity, restored)

	_, err = RestoreSnapshot([]byte("{broken"))
	require.Error(t, err)
}
