package types

import (
	"errors"
	"time"
)

// Validation errors
var (
	ErrEmptyName       = errors.New("canonical_name cannot be empty")
	ErrEmptyNamespace  = errors.New("namespace cannot be empty")
	ErrEmptyEntityType = errors.New("entity_type cannot be empty")
	ErrUnknownType     = errors.New("unknown entity_type")
	ErrEmptyID         = errors.New("id cannot be empty")
	ErrEmptySourceRef  = errors.New("source_ref cannot be empty")
	ErrInvalidTopK     = errors.New("top_k must be positive")
)

// EntityType identifies the business concept kind of an entity.
type EntityType string

const (
	EntityTypeSystem               EntityType = "system"
	EntityTypeProcess              EntityType = "process"
	EntityTypePainPoint            EntityType = "pain_point"
	EntityTypeRole                 EntityType = "role"
	EntityTypeDepartment           EntityType = "department"
	EntityTypeTeam                 EntityType = "team"
	EntityTypeCommunicationChannel EntityType = "communication_channel"
	EntityTypeMeeting              EntityType = "meeting"
	EntityTypeDocumentType         EntityType = "document_type"
	EntityTypeTool                 EntityType = "tool"
	EntityTypeVendor               EntityType = "vendor"
	EntityTypeMetric               EntityType = "metric"
	EntityTypeGoal                 EntityType = "goal"
	EntityTypeProject              EntityType = "project"
	EntityTypePolicy               EntityType = "policy"
	EntityTypeDataAsset            EntityType = "data_asset"
	EntityTypeIntegration          EntityType = "integration"
)

// AllEntityTypes lists the fixed vocabulary of business concept kinds.
var AllEntityTypes = []EntityType{
	EntityTypeSystem, EntityTypeProcess, EntityTypePainPoint, EntityTypeRole,
	EntityTypeDepartment, EntityTypeTeam, EntityTypeCommunicationChannel,
	EntityTypeMeeting, EntityTypeDocumentType, EntityTypeTool, EntityTypeVendor,
	EntityTypeMetric, EntityTypeGoal, EntityTypeProject, EntityTypePolicy,
	EntityTypeDataAsset, EntityTypeIntegration,
}

// ValidEntityType reports whether t is part of the fixed vocabulary.
func ValidEntityType(t EntityType) bool {
	for _, known := range AllEntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Attributes holds the structured fields of an entity, partitioned by value
// kind so that consolidation can compare them generically. Fields that are
// not part of the declared schema for the entity type live in Extra.
type Attributes struct {
	Numeric     map[string]float64     `json:"numeric,omitempty"`
	Categorical map[string]string      `json:"categorical,omitempty"`
	Sets        map[string][]string    `json:"sets,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// IsEmpty reports whether no structured fields are present.
func (a Attributes) IsEmpty() bool {
	return len(a.Numeric) == 0 && len(a.Categorical) == 0 && len(a.Sets) == 0
}

// ScalarFieldCount returns the number of scalar (numeric + categorical) fields.
func (a Attributes) ScalarFieldCount() int {
	return len(a.Numeric) + len(a.Categorical)
}

// Clone returns a deep copy of the attributes.
func (a Attributes) Clone() Attributes {
	out := Attributes{}
	if a.Numeric != nil {
		out.Numeric = make(map[string]float64, len(a.Numeric))
		for k, v := range a.Numeric {
			out.Numeric[k] = v
		}
	}
	if a.Categorical != nil {
		out.Categorical = make(map[string]string, len(a.Categorical))
		for k, v := range a.Categorical {
			out.Categorical[k] = v
		}
	}
	if a.Sets != nil {
		out.Sets = make(map[string][]string, len(a.Sets))
		for k, v := range a.Sets {
			vals := make([]string, len(v))
			copy(vals, v)
			out.Sets[k] = vals
		}
	}
	if a.Extra != nil {
		out.Extra = make(map[string]interface{}, len(a.Extra))
		for k, v := range a.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Entity is a consolidated business concept within a namespace.
type Entity struct {
	ID            string     `json:"id"`
	Namespace     string     `json:"namespace"`
	EntityType    EntityType `json:"entity_type"`
	CanonicalName string     `json:"canonical_name"`
	Description   string     `json:"description,omitempty"`

	Attributes Attributes `json:"attributes"`

	// Observations keeps each source's scalar assertions so that consensus
	// and contradiction checks can be recomputed on every merge.
	Observations map[string]Attributes `json:"observations,omitempty"`

	MentionedIn          []string `json:"mentioned_in,omitempty"`
	SourceCount          int      `json:"source_count"`
	ConsensusConfidence  float64  `json:"consensus_confidence"`
	HasContradictions    bool     `json:"has_contradictions"`
	ContradictionDetails []string `json:"contradiction_details,omitempty"`

	DescriptionEmbedding []float32 `json:"description_embedding,omitempty"`
	NameEmbedding        []float32 `json:"name_embedding,omitempty"`

	CreatedAt       time.Time `json:"created_at"`
	LastEnrichedAt  time.Time `json:"last_enriched_at"`
	EnrichmentCount int       `json:"enrichment_count"`

	// Version is the optimistic concurrency column maintained by the store.
	Version int64 `json:"version"`
}

// Validate checks the fields required on every entity.
func (e *Entity) Validate() error {
	if e.CanonicalName == "" {
		return ErrEmptyName
	}
	if e.Namespace == "" {
		return ErrEmptyNamespace
	}
	if e.EntityType == "" {
		return ErrEmptyEntityType
	}
	if !ValidEntityType(e.EntityType) {
		return ErrUnknownType
	}
	return nil
}

// ValidateForCreate additionally requires an ID.
func (e *Entity) ValidateForCreate() error {
	if e.ID == "" {
		return ErrEmptyID
	}
	return e.Validate()
}

// MentionedBy reports whether sourceRef is already recorded on the entity.
func (e *Entity) MentionedBy(sourceRef string) bool {
	for _, ref := range e.MentionedIn {
		if ref == sourceRef {
			return true
		}
	}
	return false
}

// CandidateEntity is a single extraction's pre-consolidation assertion about
// a concept. Candidates arrive from an external extraction pipeline; the
// embedding, when present, was computed upstream.
type CandidateEntity struct {
	EntityType    EntityType `json:"entity_type"`
	Namespace     string     `json:"namespace"`
	SourceRef     string     `json:"source_ref"`
	CanonicalName string     `json:"canonical_name"`
	Description   string     `json:"description,omitempty"`
	Attributes    Attributes `json:"attributes"`
	Embedding     []float32  `json:"embedding_vector,omitempty"`
}

// Validate rejects malformed candidates before any store access.
func (c *CandidateEntity) Validate() error {
	if c.Namespace == "" {
		return ErrEmptyNamespace
	}
	if c.EntityType == "" {
		return ErrEmptyEntityType
	}
	if !ValidEntityType(c.EntityType) {
		return ErrUnknownType
	}
	if c.CanonicalName == "" {
		return ErrEmptyName
	}
	if c.SourceRef == "" {
		return ErrEmptySourceRef
	}
	return nil
}

// CandidateMention links the entities observed together in one source.
type CandidateMention struct {
	SourceRef string   `json:"source_ref"`
	EntityIDs []string `json:"entity_ids"`
	// Label optionally carries a directional relationship label from
	// extraction, e.g. "causes" or "depends_on".
	Label string `json:"label,omitempty"`
}
