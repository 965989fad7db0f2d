package reconcile

import (
	"fmt"
	"strings"

	"github.com/maestrohq/maestro/internal/core/domain"
)

// =============================================================================
// Error types
// =============================================================================

// NamespaceMismatchError reports every template in a reconcile request whose
// namespace differs from the target namespace. It is returned before any
// store mutation happens.
type NamespaceMismatchError struct {
	Namespace  string
	Violations []domain.Violation
}

func (e *NamespaceMismatchError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("invalid templates for namespace %q: %s", e.Namespace, strings.Join(parts, "; "))
}

// DuplicateIDError reports duplicated template ids in a reconcile request.
// IDs carries the full input id list, Distinct the deduplicated one, so the
// caller can see which ids collapsed.
type DuplicateIDError struct {
	Namespace string
	IDs       []string
	Distinct  []string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf(
		"duplicate template ids in namespace %q: got [%s], distinct [%s]",
		e.Namespace,
		strings.Join(e.IDs, ", "),
		strings.Join(e.Distinct, ", "),
	)
}
