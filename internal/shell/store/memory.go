package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maestrohq/maestro/internal/core/domain"
)

// =============================================================================
// MemoryStore
// =============================================================================

// MemoryStore implements Store with an in-process map. It backs tests and
// embedded use where durability is not needed. Namespace enumeration is
// ordered by id, matching the SQLite implementation.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]map[string]domain.Template // namespace -> id -> template
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[string]map[string]domain.Template),
	}
}

func (s *MemoryStore) CreateTemplate(ctx context.Context, template *domain.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.templates[template.Namespace]
	if !ok {
		ns = make(map[string]domain.Template)
		s.templates[template.Namespace] = ns
	}
	if _, exists := ns[template.ID]; exists {
		return NewStoreError("CreateTemplate", template.Namespace, template.ID, "template already exists", ErrDuplicateID)
	}

	stored := *template
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	ns[template.ID] = stored
	return nil
}

func (s *MemoryStore) GetTemplate(ctx context.Context, namespace, id string) (*domain.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.templates[namespace][id]; ok {
		copy := t
		return &copy, nil
	}
	return nil, NewStoreError("GetTemplate", namespace, id, "template not found", ErrNotFound)
}

func (s *MemoryStore) UpdateTemplate(ctx context.Context, template *domain.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.templates[template.Namespace][template.ID]
	if !ok {
		return NewStoreError("UpdateTemplate", template.Namespace, template.ID, "template not found", ErrNotFound)
	}

	updated := *template
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	s.templates[template.Namespace][template.ID] = updated
	return nil
}

func (s *MemoryStore) DeleteTemplate(ctx context.Context, namespace, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[namespace][id]; !ok {
		return NewStoreError("DeleteTemplate", namespace, id, "template not found", ErrNotFound)
	}
	delete(s.templates[namespace], id)
	if len(s.templates[namespace]) == 0 {
		delete(s.templates, namespace)
	}
	return nil
}

func (s *MemoryStore) ListByNamespace(ctx context.Context, namespace string) ([]domain.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns := s.templates[namespace]
	templates := make([]domain.Template, 0, len(ns))
	for _, t := range ns {
		templates = append(templates, t)
	}
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].ID < templates[j].ID
	})
	return templates, nil
}

func (s *MemoryStore) ListDistinctNamespaces(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	namespaces := make([]string, 0, len(s.templates))
	for ns := range s.templates {
		namespaces = append(namespaces, ns)
	}
	return domain.SortedNamespaces(namespaces), nil
}

func (s *MemoryStore) SearchTemplates(ctx context.Context, opts SearchOptions) ([]domain.Template, int, error) {
	opts = opts.Normalize()

	s.mu.RLock()
	var matches []domain.Template
	for ns, templates := range s.templates {
		if opts.Namespace != "" && ns != opts.Namespace && !strings.HasPrefix(ns, opts.Namespace+".") {
			continue
		}
		for _, t := range templates {
			if opts.Query != "" &&
				!strings.Contains(t.ID, opts.Query) &&
				!strings.Contains(t.Description, opts.Query) {
				continue
			}
			matches = append(matches, t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Namespace != matches[j].Namespace {
			return matches[i].Namespace < matches[j].Namespace
		}
		return matches[i].ID < matches[j].ID
	})

	total := len(matches)
	if opts.Offset >= total {
		return []domain.Template{}, total, nil
	}
	end := opts.Offset + opts.Limit
	if end > total {
		end = total
	}
	return matches[opts.Offset:end], total, nil
}

// WithTx runs fn against the store directly. The memory store has no
// transaction isolation; it exists for tests and embedded use.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(Store) error) error {
	return fn(s)
}

func (s *MemoryStore) Close() error {
	return nil
}
