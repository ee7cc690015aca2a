package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/consolidato/pkg/types"
)

func TestParseCandidate(t *testing.T) {
	c, err := ParseCandidate([]byte(`{
		"entity_type": "system",
		"namespace": "acme",
		"source_ref": "doc1",
		"canonical_name": "Opera PMS",
		"attributes": {"numeric": {"satisfaction": 8}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, types.EntityTypeSystem, c.EntityType)
	assert.Equal(t, "Opera PMS", c.CanonicalName)
	assert.Equal(t, float64(8), c.Attributes.Numeric["satisfaction"])
}

func TestParseCandidateRepairsAlmostJSON(t *testing.T) {
	// Single quotes and a trailing comma, as extraction pipelines emit.
	c, err := ParseCandidate([]byte(`{
		'entity_type': 'system',
		'namespace': 'acme',
		'source_ref': 'doc1',
		'canonical_name': 'Opera PMS',
	}`))
	require.NoError(t, err)
	assert.Equal(t, "Opera PMS", c.CanonicalName)
	assert.Equal(t, "doc1", c.SourceRef)
}

func TestParseCandidateBatch(t *testing.T) {
	batch, err := ParseCandidateBatch([]byte(`[
		{"entity_type": "system", "namespace": "acme", "source_ref": "doc1", "canonical_name": "SAP"},
		{"entity_type": "role", "namespace": "acme", "source_ref": "doc1", "canonical_name": "Controller"}
	]`))
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, types.EntityTypeRole, batch[1].EntityType)
}
