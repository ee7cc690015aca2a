package resolver

import (
	"encoding/json"
	"fmt"

	jsonrepair "github.com/kaptinlin/jsonrepair"

	"github.com/soundprediction/consolidato/pkg/types"
)

// ParseCandidate decodes a candidate payload from an extraction pipeline.
// Extraction output is LLM-adjacent and occasionally arrives as almost-JSON;
// a failed decode gets one repair pass before giving up.
func ParseCandidate(raw []byte) (*types.CandidateEntity, error) {
	var c types.CandidateEntity
	if err := json.Unmarshal(raw, &c); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(string(raw))
		if rerr != nil {
			return nil, fmt.Errorf("invalid candidate payload: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &c); err != nil {
			return nil, fmt.Errorf("candidate payload unrecoverable: %w", err)
		}
	}
	return &c, nil
}

// ParseCandidateBatch decodes a JSON array of candidate payloads, applying
// the same repair pass as ParseCandidate.
func ParseCandidateBatch(raw []byte) ([]*types.CandidateEntity, error) {
	var batch []*types.CandidateEntity
	if err := json.Unmarshal(raw, &batch); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(string(raw))
		if rerr != nil {
			return nil, fmt.Errorf("invalid candidate batch: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &batch); err != nil {
			return nil, fmt.Errorf("candidate batch unrecoverable: %w", err)
		}
	}
	return batch, nil
}
