// Package similarity scores how likely two same-typed entities describe the
// same real-world concept. Scoring is tiered: exact normalized-name match,
// then semantic similarity over description embeddings, then structured
// attribute overlap.
package similarity

import (
	"math"

	"github.com/soundprediction/consolidato/pkg/types"
	"github.com/soundprediction/consolidato/pkg/utils"
)

// DefaultSemanticShortCircuit is the semantic similarity above which the
// semantic tier answers on its own.
const DefaultSemanticShortCircuit = 0.9

// Subject is the comparable view of an entity or candidate.
type Subject struct {
	Name       string
	Embedding  []float32
	Attributes types.Attributes
}

// FromEntity builds a comparable view of a consolidated entity.
func FromEntity(e *types.Entity) Subject {
	return Subject{
		Name:       e.CanonicalName,
		Embedding:  e.DescriptionEmbedding,
		Attributes: e.Attributes,
	}
}

// FromCandidate builds a comparable view of an extraction candidate.
func FromCandidate(c *types.CandidateEntity) Subject {
	return Subject{
		Name:       c.CanonicalName,
		Embedding:  c.Embedding,
		Attributes: c.Attributes,
	}
}

// Scorer computes multi-tier similarity between two subjects of the same
// entity type. Scores are symmetric and bounded to [0, 1].
type Scorer struct {
	// SemanticShortCircuit is the cosine similarity at which the semantic
	// tier returns directly without consulting attributes.
	SemanticShortCircuit float64
}

// NewScorer returns a scorer with the default short-circuit threshold.
func NewScorer() *Scorer {
	return &Scorer{SemanticShortCircuit: DefaultSemanticShortCircuit}
}

// Score returns the similarity between a and b.
//
// Tier 1: equal non-empty normalized names score 1.0.
// Tier 2: cosine of description embeddings; >= the short-circuit threshold
// answers directly.
// Tier 3: weighted attribute overlap, blended 0.5/0.5 with the semantic
// score when one exists.
//
// Two subjects with no embeddings and no attributes on either side score 0:
// without comparable evidence nothing may merge.
func (s *Scorer) Score(a, b Subject) float64 {
	normA := utils.NormalizeName(a.Name)
	normB := utils.NormalizeName(b.Name)
	if normA != "" && normA == normB {
		return 1.0
	}

	semantic := -1.0
	if len(a.Embedding) > 0 && len(b.Embedding) > 0 {
		semantic = clamp01(utils.CosineSimilarity(a.Embedding, b.Embedding))
		if semantic >= s.SemanticShortCircuit {
			return semantic
		}
	}

	attrsComparable := !a.Attributes.IsEmpty() || !b.Attributes.IsEmpty()
	if !attrsComparable {
		if semantic >= 0 {
			return semantic
		}
		return 0
	}

	overlap := attributeOverlap(a.Attributes, b.Attributes)
	if semantic >= 0 {
		return 0.5*semantic + 0.5*overlap
	}
	return overlap
}

// attributeOverlap averages per-field agreement over the union of structured
// fields: intersection-over-union for set fields, equality for scalars.
// Fields present on only one side contribute 0.
func attributeOverlap(a, b types.Attributes) float64 {
	var total, sum float64

	for field := range unionKeys(keysNumeric(a), keysNumeric(b)) {
		total++
		av, aok := a.Numeric[field]
		bv, bok := b.Numeric[field]
		if aok && bok && av == bv {
			sum++
		}
	}

	for field := range unionKeys(keysCategorical(a), keysCategorical(b)) {
		total++
		av, aok := a.Categorical[field]
		bv, bok := b.Categorical[field]
		if aok && bok && utils.NormalizeValue(av) == utils.NormalizeValue(bv) {
			sum++
		}
	}

	for field := range unionKeys(keysSets(a), keysSets(b)) {
		total++
		sum += utils.JaccardOverlap(a.Sets[field], b.Sets[field])
	}

	if total == 0 {
		return 0
	}
	return sum / total
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func keysNumeric(a types.Attributes) []string {
	out := make([]string, 0, len(a.Numeric))
	for k := range a.Numeric {
		out = append(out, k)
	}
	return out
}

func keysCategorical(a types.Attributes) []string {
	out := make([]string, 0, len(a.Categorical))
	for k := range a.Categorical {
		out = append(out, k)
	}
	return out
}

func keysSets(a types.Attributes) []string {
	out := make([]string, 0, len(a.Sets))
	for k := range a.Sets {
		out = append(out, k)
	}
	return out
}

func unionKeys(lists ...[]string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, list := range lists {
		for _, k := range list {
			out[k] = struct{}{}
		}
	}
	return out
}
