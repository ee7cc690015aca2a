package types

import (
	"errors"
	"time"
)

var (
	ErrSameEntity          = errors.New("relationship endpoints must differ")
	ErrUnknownRelationType = errors.New("unknown relationship type")
)

// RelationshipType is the fixed vocabulary of relationship kinds.
type RelationshipType string

const (
	RelCoordinatesWith     RelationshipType = "coordinates_with"
	RelCauses              RelationshipType = "causes"
	RelDependsOn           RelationshipType = "depends_on"
	RelSharesPainPoint     RelationshipType = "shares_pain_point"
	RelUses                RelationshipType = "uses"
	RelOwns                RelationshipType = "owns"
	RelParticipatesIn      RelationshipType = "participates_in"
	RelFeedsInto           RelationshipType = "feeds_into"
	RelPossibleDuplicateOf RelationshipType = "possible_duplicate_of"
)

// symmetricTypes holds relationship kinds where (A,B) and (B,A) are the same
// assertion and must collapse onto one record.
var symmetricTypes = map[RelationshipType]bool{
	RelCoordinatesWith:     true,
	RelSharesPainPoint:     true,
	RelPossibleDuplicateOf: true,
}

// AllRelationshipTypes lists the fixed relationship vocabulary.
var AllRelationshipTypes = []RelationshipType{
	RelCoordinatesWith, RelCauses, RelDependsOn, RelSharesPainPoint,
	RelUses, RelOwns, RelParticipatesIn, RelFeedsInto, RelPossibleDuplicateOf,
}

// ValidRelationshipType reports whether t is part of the fixed vocabulary.
func ValidRelationshipType(t RelationshipType) bool {
	for _, known := range AllRelationshipTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Symmetric reports whether the type is order-insensitive.
func (t RelationshipType) Symmetric() bool {
	return symmetricTypes[t]
}

// ValidationType records how a relationship earned its confidence.
type ValidationType string

const (
	ValidationSingleSource   ValidationType = "single_source"
	ValidationCrossValidated ValidationType = "cross_validated"
)

// Relationship is a consolidated edge between two entities.
type Relationship struct {
	ID        string           `json:"id"`
	Namespace string           `json:"namespace"`
	Type      RelationshipType `json:"type"`
	Entity1ID string           `json:"entity1_id"`
	Entity2ID string           `json:"entity2_id"`

	Strength       float64        `json:"strength"`
	SourceRefs     []string       `json:"source_refs,omitempty"`
	Validated      bool           `json:"validated"`
	ValidationType ValidationType `json:"validation_type"`
	Confidence     float64        `json:"confidence"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Version int64 `json:"version"`
}

// Validate checks the fields required on every relationship.
func (r *Relationship) Validate() error {
	if r.Namespace == "" {
		return ErrEmptyNamespace
	}
	if !ValidRelationshipType(r.Type) {
		return ErrUnknownRelationType
	}
	if r.Entity1ID == "" || r.Entity2ID == "" {
		return ErrEmptyID
	}
	if r.Entity1ID == r.Entity2ID {
		return ErrSameEntity
	}
	return nil
}

// UpsertKey returns the identity key (type, entity1, entity2) with symmetric
// types normalized so (A,B) and (B,A) collapse.
func (r *Relationship) UpsertKey() (RelationshipType, string, string) {
	return NormalizePair(r.Type, r.Entity1ID, r.Entity2ID)
}

// NormalizePair orders symmetric endpoints lexicographically; directional
// types keep their order.
func NormalizePair(t RelationshipType, e1, e2 string) (RelationshipType, string, string) {
	if t.Symmetric() && e2 < e1 {
		return t, e2, e1
	}
	return t, e1, e2
}

// HasSourceRef reports whether ref is already recorded on the relationship.
func (r *Relationship) HasSourceRef(ref string) bool {
	for _, existing := range r.SourceRefs {
		if existing == ref {
			return true
		}
	}
	return false
}
