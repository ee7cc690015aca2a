package types

import "time"

// PatternType identifies what kind of recurring structure a pattern captures.
type PatternType string

const (
	// PatternRecurringConcept marks a cluster of near-identical concepts
	// asserted independently across sources.
	PatternRecurringConcept PatternType = "recurring_concept"
)

// Pattern is a recurring structure surfaced by the periodic recognition pass.
// Patterns are mutated only by that pass.
type Pattern struct {
	ID          string      `json:"id"`
	PatternType PatternType `json:"pattern_type"`
	Description string      `json:"description"`

	Frequency          int      `json:"frequency"`
	MemberEntityIDs    []string `json:"member_entity_ids"`
	NamespacesInvolved []string `json:"namespaces_involved"`
	PriorityScore      float64  `json:"priority_score"`
	RecommendedAction  string   `json:"recommended_action,omitempty"`
	Confidence         float64  `json:"confidence"`

	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// Validate checks the fields required on every pattern.
func (p *Pattern) Validate() error {
	if p.ID == "" {
		return ErrEmptyID
	}
	if len(p.MemberEntityIDs) == 0 {
		return ErrEmptyID
	}
	return nil
}
