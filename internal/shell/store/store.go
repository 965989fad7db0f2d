package store

import (
	"context"

	"github.com/maestrohq/maestro/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for templates. Implementations
// must keep (namespace, id) unique and enumerate a namespace in a stable
// order so repeated reconciliations behave identically.
type Store interface {
	// CreateTemplate persists a new template. Returns ErrDuplicateID when
	// (namespace, id) already exists.
	CreateTemplate(ctx context.Context, template *domain.Template) error

	// GetTemplate fetches one template by (namespace, id).
	GetTemplate(ctx context.Context, namespace, id string) (*domain.Template, error)

	// UpdateTemplate replaces the content of an existing template. The
	// record's identity and CreatedAt are preserved.
	UpdateTemplate(ctx context.Context, template *domain.Template) error

	// DeleteTemplate removes one template by (namespace, id).
	DeleteTemplate(ctx context.Context, namespace, id string) error

	// ListByNamespace returns every template persisted under the namespace,
	// in the store's enumeration order.
	ListByNamespace(ctx context.Context, namespace string) ([]domain.Template, error)

	// ListDistinctNamespaces returns the sorted set of namespaces that have
	// at least one template.
	ListDistinctNamespaces(ctx context.Context) ([]string, error)

	// SearchTemplates returns a page of templates matching the options,
	// plus the total match count for pagination.
	SearchTemplates(ctx context.Context, opts SearchOptions) ([]domain.Template, int, error)

	// WithTx executes fn against a transactional view of the store.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// SearchOptions defines filtering and pagination for template search.
type SearchOptions struct {
	// Query matches a substring of the template id or description.
	Query string

	// Namespace filters by namespace prefix (a namespace matches itself
	// and any of its child namespaces).
	Namespace string

	Limit  int
	Offset int
}

// DefaultSearchOptions returns default search options.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures search options have valid values.
func (o SearchOptions) Normalize() SearchOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
