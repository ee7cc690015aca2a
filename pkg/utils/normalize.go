package utils

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N} ]+`)

	// accentStripper decomposes characters and drops combining marks, so
	// "São" and "Sao" normalize to the same key.
	accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// NormalizeName casefolds a name, strips accents and punctuation, and
// collapses whitespace so equal concepts map to the same key. "S.A.P." and
// "sap" both normalize to "sap".
func NormalizeName(name string) string {
	lowered := strings.ToLower(name)
	stripped, _, err := transform.String(accentStripper, lowered)
	if err != nil {
		stripped = lowered
	}
	stripped = punctRe.ReplaceAllString(stripped, "")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(stripped, " "))
}

// NormalizeValue normalizes a scalar or set member for deduplication; same
// treatment as names but punctuation is kept, since values like "v2.1"
// are meaningful.
func NormalizeValue(value string) string {
	lowered := strings.ToLower(value)
	stripped, _, err := transform.String(accentStripper, lowered)
	if err != nil {
		stripped = lowered
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(stripped, " "))
}

// UnionNormalized merges two string slices, deduplicating by normalized
// value while keeping the first-seen original spelling and order.
func UnionNormalized(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			key := NormalizeValue(v)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, v)
		}
	}
	return out
}
