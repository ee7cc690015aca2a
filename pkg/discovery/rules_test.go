package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/consolidato/pkg/types"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRules(t *testing.T) {
	path := writeRules(t, `
rules:
  - entity_types: [role, system]
    relationship: uses
  - entity_types: [vendor, system]
    relationship: owns
`)
	rules, err := LoadRules(path)
	require.NoError(t, err)

	relType, swapped, ok := rules.Lookup(types.EntityTypeVendor, types.EntityTypeSystem)
	require.True(t, ok)
	assert.Equal(t, types.RelOwns, relType)
	assert.False(t, swapped)

	// Loaded tables replace the defaults entirely.
	_, _, ok = rules.Lookup(types.EntityTypeProcess, types.EntityTypePainPoint)
	assert.False(t, ok)
}

func TestLoadRulesRejectsUnknownVocabulary(t *testing.T) {
	path := writeRules(t, `
rules:
  - entity_types: [role, system]
    relationship: frenemies
`)
	_, err := LoadRules(path)
	assert.ErrorIs(t, err, types.ErrUnknownRelationType)

	path = writeRules(t, `
rules:
  - entity_types: [spaceship, system]
    relationship: uses
`)
	_, err = LoadRules(path)
	assert.ErrorIs(t, err, types.ErrUnknownType)
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
