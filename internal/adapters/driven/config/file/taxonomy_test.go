package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const taxonomyYAML = `
content_type:
  - id: textbook
    label: Textbook
  - id: report
    label: Report
domain:
  - id: thermodynamics
    label: Thermodynamics
artifact_role:
  - id: statement
    label: Statement
chunk_role:
  - id: definition
    label: Definition
  - id: derivation
    label: Derivation
trust_level:
  - id: high
    label: High
    rank: 1
  - id: medium
    label: Medium
    rank: 2
  - id: low
    label: Low
    rank: 3
`

func writeTaxonomy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestTaxonomyLoad(t *testing.T) {
	store := NewTaxonomyStore(writeTaxonomy(t, taxonomyYAML))

	tax, err := store.Load()
	require.NoError(t, err)

	assert.Len(t, tax.ContentTypes, 2)
	assert.Equal(t, "thermodynamics", tax.Domains[0].ID)
	assert.Equal(t, "low", tax.LowestTrust())
	assert.Equal(t, "medium", tax.DefaultTrust())
	assert.True(t, tax.ValidTrust("high"))
	assert.False(t, tax.ValidTrust("bogus"))
}

func TestTaxonomyLoadRejectsMissingTrustLevels(t *testing.T) {
	store := NewTaxonomyStore(writeTaxonomy(t, "content_type:\n  - id: textbook\n"))

	_, err := store.Load()
	assert.Error(t, err)
}

func TestTaxonomyLoadRejectsEmptyID(t *testing.T) {
	store := NewTaxonomyStore(writeTaxonomy(t, `
trust_level:
  - id: ""
    label: Broken
`))

	_, err := store.Load()
	assert.Error(t, err)
}
