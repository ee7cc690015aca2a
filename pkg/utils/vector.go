// Package utils provides shared helpers for the consolidato project.
package utils

import "math"

// CosineSimilarity calculates the cosine similarity between two float32
// vectors. Returns 0 if vectors have different lengths, are empty, or either
// has zero magnitude. The result is in the range [-1, 1].
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// JaccardOverlap returns intersection-over-union of two string sets after
// normalization. Both empty yields 1.0 so that absent fields on both sides
// never count against agreement.
func JaccardOverlap(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]bool, len(a))
	for _, s := range a {
		setA[NormalizeValue(s)] = true
	}
	setB := make(map[string]bool, len(b))
	for _, s := range b {
		setB[NormalizeValue(s)] = true
	}

	intersection := 0
	for s := range setA {
		if setB[s] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}
