package driven

import "github.com/dachslabs/qaforge/internal/core/domain"

// TaxonomyStore loads the closed label vocabulary used to constrain
// semantic annotation.
type TaxonomyStore interface {
	Load() (*domain.Taxonomy, error)
}
