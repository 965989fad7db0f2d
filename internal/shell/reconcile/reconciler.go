// Package reconcile makes the persisted contents of a template namespace
// match a desired set of templates. It is part of the Imperative Shell: the
// checks are pure, but the delete and upsert passes mutate the store.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maestrohq/maestro/internal/core/domain"
	"github.com/maestrohq/maestro/internal/shell/store"
)

// Reconciler applies a desired template set to a namespace.
type Reconciler struct {
	store  store.Store
	logger *slog.Logger
}

// NewReconciler creates a reconciler. A nil logger falls back to slog.Default.
func NewReconciler(s store.Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: s, logger: logger}
}

// Reconcile makes the stored templates of namespace match desired.
//
// It first rejects the whole request if any template carries a different
// namespace, or if ids repeat. Only then does it mutate: with deleteMissing
// set, persisted templates absent from desired are deleted, then every
// desired template is created or updated in input order. The returned slice
// is the deleted templates followed by the upserted ones, as persisted.
//
// The two mutation passes are not transactional with each other. A store
// error aborts the run where it happened and earlier writes stand.
func (r *Reconciler) Reconcile(ctx context.Context, namespace string, desired []domain.Template, deleteMissing bool) ([]domain.Template, error) {
	if err := domain.ValidateNamespace(namespace); err != nil {
		return nil, fmt.Errorf("namespace %q: %w", namespace, err)
	}

	if err := checkNamespaces(namespace, desired); err != nil {
		return nil, err
	}
	if err := checkDuplicateIDs(namespace, desired); err != nil {
		return nil, err
	}

	var deleted []domain.Template
	if deleteMissing {
		var err error
		deleted, err = r.deleteMissing(ctx, namespace, desired)
		if err != nil {
			return nil, err
		}
	}

	upserted, err := r.upsertAll(ctx, namespace, desired)
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "namespace reconciled",
		"namespace", namespace,
		"deleted", len(deleted),
		"upserted", len(upserted),
		"delete_missing", deleteMissing,
	)

	return append(deleted, upserted...), nil
}

// checkNamespaces collects every template whose namespace differs from the
// target. All offenders are reported at once.
func checkNamespaces(namespace string, desired []domain.Template) error {
	var violations []domain.Violation
	for _, t := range desired {
		if t.Namespace != namespace {
			violations = append(violations, domain.Violation{
				Field:   "template.namespace",
				Message: fmt.Sprintf("template %q belongs to namespace %q, not %q", t.ID, t.Namespace, namespace),
				Value:   t.Namespace,
			})
		}
	}
	if len(violations) > 0 {
		return &NamespaceMismatchError{Namespace: namespace, Violations: violations}
	}
	return nil
}

func checkDuplicateIDs(namespace string, desired []domain.Template) error {
	ids := make([]string, len(desired))
	for i, t := range desired {
		ids[i] = t.ID
	}
	distinct := domain.DistinctIDs(desired)
	if len(distinct) < len(ids) {
		return &DuplicateIDError{Namespace: namespace, IDs: ids, Distinct: distinct}
	}
	return nil
}

// deleteMissing removes persisted templates whose id is not in desired,
// walking the store's enumeration order.
func (r *Reconciler) deleteMissing(ctx context.Context, namespace string, desired []domain.Template) ([]domain.Template, error) {
	existing, err := r.store.ListByNamespace(ctx, namespace)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]struct{}, len(desired))
	for _, t := range desired {
		keep[t.ID] = struct{}{}
	}

	var deleted []domain.Template
	for _, t := range existing {
		if _, ok := keep[t.ID]; ok {
			continue
		}
		if err := r.store.DeleteTemplate(ctx, namespace, t.ID); err != nil {
			return nil, err
		}
		r.logger.DebugContext(ctx, "template deleted", "namespace", namespace, "id", t.ID)
		deleted = append(deleted, t)
	}
	return deleted, nil
}

// upsertAll creates or updates every desired template in input order and
// returns them as persisted.
func (r *Reconciler) upsertAll(ctx context.Context, namespace string, desired []domain.Template) ([]domain.Template, error) {
	upserted := make([]domain.Template, 0, len(desired))
	for i := range desired {
		t := desired[i]

		_, err := r.store.GetTemplate(ctx, namespace, t.ID)
		switch {
		case err == nil:
			if err := r.store.UpdateTemplate(ctx, &t); err != nil {
				return nil, err
			}
		case store.IsNotFound(err):
			if err := r.store.CreateTemplate(ctx, &t); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}

		persisted, err := r.store.GetTemplate(ctx, namespace, t.ID)
		if err != nil {
			return nil, err
		}
		upserted = append(upserted, *persisted)
	}
	return upserted, nil
}
