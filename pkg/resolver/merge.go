package resolver

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/consolidato/pkg/types"
	"github.com/soundprediction/consolidato/pkg/utils"
)

// entityFromCandidate builds a fresh entity from a candidate's assertion.
func entityFromCandidate(c *types.CandidateEntity, now time.Time) *types.Entity {
	entity := &types.Entity{
		ID:                   uuid.New().String(),
		Namespace:            c.Namespace,
		EntityType:           c.EntityType,
		CanonicalName:        c.CanonicalName,
		Description:          c.Description,
		Attributes:           c.Attributes.Clone(),
		Observations:         map[string]types.Attributes{c.SourceRef: scalarAssertions(c.Attributes)},
		MentionedIn:          []string{c.SourceRef},
		SourceCount:          1,
		DescriptionEmbedding: c.Embedding,
		CreatedAt:            now,
		LastEnrichedAt:       now,
		EnrichmentCount:      0,
	}
	for field, values := range entity.Attributes.Sets {
		entity.Attributes.Sets[field] = utils.UnionNormalized(nil, values)
	}
	// A single assertion carries no cross-source evidence; confidence starts
	// at the base and only the merge path applies the consensus formula.
	entity.ConsensusConfidence = 0.5
	return entity
}

// applyCandidate folds one candidate assertion into the target entity.
// Consensus, contradictions, and scalar majorities are recomputed from the
// full observation history, so re-applying the same (candidate, source)
// leaves the derived state unchanged.
func applyCandidate(target *types.Entity, c *types.CandidateEntity, tolerance float64, now time.Time) {
	if target.Observations == nil {
		target.Observations = make(map[string]types.Attributes)
	}
	target.Observations[c.SourceRef] = scalarAssertions(c.Attributes)

	if !target.MentionedBy(c.SourceRef) {
		target.MentionedIn = append(target.MentionedIn, c.SourceRef)
	}
	target.SourceCount = len(target.MentionedIn)

	for field, values := range c.Attributes.Sets {
		if target.Attributes.Sets == nil {
			target.Attributes.Sets = make(map[string][]string)
		}
		target.Attributes.Sets[field] = utils.UnionNormalized(target.Attributes.Sets[field], values)
	}
	for key, value := range c.Attributes.Extra {
		if target.Attributes.Extra == nil {
			target.Attributes.Extra = make(map[string]interface{})
		}
		if _, ok := target.Attributes.Extra[key]; !ok {
			target.Attributes.Extra[key] = value
		}
	}

	recomputeScalars(target)

	details := detectContradictions(target, tolerance)
	target.HasContradictions = len(details) > 0
	target.ContradictionDetails = details

	agreement := agreementScore(target)
	target.ConsensusConfidence = consensusConfidence(target.SourceCount, agreement)

	if target.Description == "" {
		target.Description = c.Description
	}
	if len(target.DescriptionEmbedding) == 0 {
		target.DescriptionEmbedding = c.Embedding
	}

	target.LastEnrichedAt = now
	target.EnrichmentCount++
}

// consensusConfidence implements the confidence heuristic: a 0.5 base, up to
// 0.4 for source count, and up to 0.4 for cross-source agreement, capped at 1.
func consensusConfidence(sourceCount int, agreement float64) float64 {
	countTerm := math.Min(0.4, 0.1*float64(sourceCount))
	return math.Min(1.0, 0.5+countTerm+0.4*agreement)
}

// scalarAssertions keeps only the scalar fields of an observation.
func scalarAssertions(a types.Attributes) types.Attributes {
	out := types.Attributes{}
	if len(a.Numeric) > 0 {
		out.Numeric = make(map[string]float64, len(a.Numeric))
		for k, v := range a.Numeric {
			out.Numeric[k] = v
		}
	}
	if len(a.Categorical) > 0 {
		out.Categorical = make(map[string]string, len(a.Categorical))
		for k, v := range a.Categorical {
			out.Categorical[k] = v
		}
	}
	return out
}

// recomputeScalars rewrites the entity's scalar attributes as the per-field
// majority over all observations. Ties break toward the earliest source.
func recomputeScalars(target *types.Entity) {
	numeric := make(map[string]float64)
	categorical := make(map[string]string)

	for _, field := range observedNumericFields(target) {
		if v, ok := majorityNumeric(target, field); ok {
			numeric[field] = v
		}
	}
	for _, field := range observedCategoricalFields(target) {
		if v, ok := majorityCategorical(target, field); ok {
			categorical[field] = v
		}
	}

	if len(numeric) > 0 {
		target.Attributes.Numeric = numeric
	} else {
		target.Attributes.Numeric = nil
	}
	if len(categorical) > 0 {
		target.Attributes.Categorical = categorical
	} else {
		target.Attributes.Categorical = nil
	}
}

func observedNumericFields(target *types.Entity) []string {
	seen := make(map[string]bool)
	for _, obs := range target.Observations {
		for field := range obs.Numeric {
			seen[field] = true
		}
	}
	return sortedKeys(seen)
}

func observedCategoricalFields(target *types.Entity) []string {
	seen := make(map[string]bool)
	for _, obs := range target.Observations {
		for field := range obs.Categorical {
			seen[field] = true
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// majorityNumeric returns the most asserted value for a numeric field,
// walking sources in mention order for deterministic tie-breaks.
func majorityNumeric(target *types.Entity, field string) (float64, bool) {
	counts := make(map[float64]int)
	order := make([]float64, 0)
	for _, ref := range target.MentionedIn {
		obs, ok := target.Observations[ref]
		if !ok {
			continue
		}
		if v, ok := obs.Numeric[field]; ok {
			if counts[v] == 0 {
				order = append(order, v)
			}
			counts[v]++
		}
	}
	if len(order) == 0 {
		return 0, false
	}
	best := order[0]
	for _, v := range order[1:] {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best, true
}

// majorityCategorical votes on normalized values but returns the first-seen
// original spelling of the winner.
func majorityCategorical(target *types.Entity, field string) (string, bool) {
	counts := make(map[string]int)
	spelling := make(map[string]string)
	order := make([]string, 0)
	for _, ref := range target.MentionedIn {
		obs, ok := target.Observations[ref]
		if !ok {
			continue
		}
		if v, ok := obs.Categorical[field]; ok {
			norm := utils.NormalizeValue(v)
			if counts[norm] == 0 {
				order = append(order, norm)
				spelling[norm] = v
			}
			counts[norm]++
		}
	}
	if len(order) == 0 {
		return "", false
	}
	best := order[0]
	for _, norm := range order[1:] {
		if counts[norm] > counts[best] {
			best = norm
		}
	}
	return spelling[best], true
}

// detectContradictions scans the observation history for scalar assertions
// that cannot coexist: numeric values differing by more than the tolerance
// fraction of the larger magnitude, and categorical values that normalize
// differently.
func detectContradictions(target *types.Entity, tolerance float64) []string {
	var details []string

	for _, field := range observedNumericFields(target) {
		values, refs := distinctNumeric(target, field)
		for i := 0; i < len(values); i++ {
			for j := i + 1; j < len(values); j++ {
				larger := math.Max(math.Abs(values[i]), math.Abs(values[j]))
				if larger == 0 {
					continue
				}
				if math.Abs(values[i]-values[j]) > tolerance*larger {
					details = append(details, fmt.Sprintf(
						"%s: %v (%s) vs %v (%s)", field, values[i], refs[i], values[j], refs[j]))
				}
			}
		}
	}

	for _, field := range observedCategoricalFields(target) {
		values, refs := distinctCategorical(target, field)
		for i := 0; i < len(values); i++ {
			for j := i + 1; j < len(values); j++ {
				details = append(details, fmt.Sprintf(
					"%s: %q (%s) vs %q (%s)", field, values[i], refs[i], values[j], refs[j]))
			}
		}
	}

	return details
}

// distinctNumeric collects the distinct values asserted for a field along
// with the first source asserting each, in mention order.
func distinctNumeric(target *types.Entity, field string) ([]float64, []string) {
	var values []float64
	var refs []string
	seen := make(map[float64]bool)
	for _, ref := range target.MentionedIn {
		obs, ok := target.Observations[ref]
		if !ok {
			continue
		}
		if v, ok := obs.Numeric[field]; ok && !seen[v] {
			seen[v] = true
			values = append(values, v)
			refs = append(refs, ref)
		}
	}
	return values, refs
}

func distinctCategorical(target *types.Entity, field string) ([]string, []string) {
	var values []string
	var refs []string
	seen := make(map[string]bool)
	for _, ref := range target.MentionedIn {
		obs, ok := target.Observations[ref]
		if !ok {
			continue
		}
		if v, ok := obs.Categorical[field]; ok {
			norm := utils.NormalizeValue(v)
			if !seen[norm] {
				seen[norm] = true
				values = append(values, v)
				refs = append(refs, ref)
			}
		}
	}
	return values, refs
}

// agreementScore returns the fraction of observing sources whose scalar
// assertions all match the post-merge majority. Sources asserting no scalars
// count as agreeing.
func agreementScore(target *types.Entity) float64 {
	if target.SourceCount == 0 {
		return 1.0
	}
	agreeing := 0
	for _, ref := range target.MentionedIn {
		obs, ok := target.Observations[ref]
		if !ok || sourceAgrees(target, obs) {
			agreeing++
		}
	}
	return float64(agreeing) / float64(target.SourceCount)
}

func sourceAgrees(target *types.Entity, obs types.Attributes) bool {
	for field, v := range obs.Numeric {
		if majority, ok := target.Attributes.Numeric[field]; ok && majority != v {
			return false
		}
	}
	for field, v := range obs.Categorical {
		if majority, ok := target.Attributes.Categorical[field]; ok &&
			utils.NormalizeValue(majority) != utils.NormalizeValue(v) {
			return false
		}
	}
	return true
}
