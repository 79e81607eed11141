package file

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dachslabs/qaforge/internal/core/domain"
)

// TaxonomyStore loads the label vocabulary from a single YAML file.
type TaxonomyStore struct {
	path string
}

// NewTaxonomyStore creates a store reading the given YAML file.
func NewTaxonomyStore(path string) *TaxonomyStore {
	return &TaxonomyStore{path: path}
}

// Load reads and validates the taxonomy file.
func (s *TaxonomyStore) Load() (*domain.Taxonomy, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}

	var tax domain.Taxonomy
	if err := yaml.Unmarshal(data, &tax); err != nil {
		return nil, fmt.Errorf("parse taxonomy %s: %w", s.path, err)
	}

	if len(tax.TrustLevels) == 0 {
		return nil, fmt.Errorf("taxonomy %s: %w: no trust levels defined", s.path, domain.ErrInvalidInput)
	}
	for _, group := range [][]domain.TaxonomyEntry{
		tax.ContentTypes, tax.Domains, tax.ArtifactRoles, tax.ChunkRoles, tax.TrustLevels,
	} {
		for _, e := range group {
			if e.ID == "" {
				return nil, fmt.Errorf("taxonomy %s: %w: entry with empty id", s.path, domain.ErrInvalidInput)
			}
		}
	}
	return &tax, nil
}
