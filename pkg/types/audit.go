package types

import (
	"encoding/json"
	"time"
)

// Decision is the outcome of one resolve call.
type Decision string

const (
	DecisionNew   Decision = "new"
	DecisionMerge Decision = "merge"
	DecisionLink  Decision = "link"
)

// AuditRecord is the immutable trail of one consolidation decision. Records
// are append-only; an external governance consumer reads them, and merges can
// be rolled back from the stored snapshot.
type AuditRecord struct {
	ID                string    `json:"id"`
	Namespace         string    `json:"namespace"`
	Timestamp         time.Time `json:"timestamp"`
	MergedEntityIDs   []string  `json:"merged_entity_ids,omitempty"`
	ResultingEntityID string    `json:"resulting_entity_id"`
	SimilarityScore   float64   `json:"similarity_score"`
	Decision          Decision  `json:"decision"`

	// RollbackSnapshot holds the JSON-encoded pre-merge entity; empty for
	// decisions that created a fresh entity.
	RollbackSnapshot json.RawMessage `json:"rollback_snapshot,omitempty"`
}

// Snapshot encodes the pre-merge state of an entity for later rollback.
func Snapshot(e *Entity) (json.RawMessage, error) {
	return json.Marshal(e)
}

// RestoreSnapshot decodes a rollback snapshot back into an entity.
func RestoreSnapshot(raw json.RawMessage) (*Entity, error) {
	var e Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
