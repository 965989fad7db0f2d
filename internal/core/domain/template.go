// Package domain contains the core domain types and validation logic.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ID validation errors
	ErrIDRequired     = errors.New("id is required")
	ErrIDTooLong      = errors.New("id must be at most 100 characters")
	ErrIDInvalidChars = errors.New("id can only contain alphanumeric characters, underscores, and hyphens")

	// Namespace validation errors
	ErrNamespaceRequired      = errors.New("namespace is required")
	ErrNamespaceInvalidFormat = errors.New("namespace must be dot-separated segments of alphanumeric characters, underscores, and hyphens")

	// Task validation errors
	ErrTasksRequired = errors.New("at least one task is required")
)

// =============================================================================
// Task
// =============================================================================

// Task is one entry of a template's task list. The registry treats task
// content as opaque beyond the id and type keys.
type Task map[string]any

// ID returns the task's id key, or "" if absent.
func (t Task) ID() string {
	if v, ok := t["id"].(string); ok {
		return v
	}
	return ""
}

// Type returns the task's type key, or "" if absent.
func (t Task) Type() string {
	if v, ok := t["type"].(string); ok {
		return v
	}
	return ""
}

// =============================================================================
// Template
// =============================================================================

// Template is a namespaced, reusable workflow-template definition.
// The pair (Namespace, ID) uniquely identifies a template in the store.
type Template struct {
	ID          string            `json:"id" yaml:"id"`
	Namespace   string            `json:"namespace" yaml:"namespace"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Labels      map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Tasks       []Task            `json:"tasks" yaml:"tasks"`
	CreatedAt   time.Time         `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time         `json:"updated_at" yaml:"-"`
}

// NewTemplate creates a new template with the given namespace, id, and tasks.
// Returns an error if the identity fields fail validation.
func NewTemplate(namespace, id string, tasks []Task) (*Template, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Template{
		ID:        id,
		Namespace: namespace,
		Tasks:     tasks,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// FQN returns the fully qualified name "namespace.id". Template ids cannot
// contain dots, so the id is always the segment after the last dot.
func (t *Template) FQN() string {
	return t.Namespace + "." + t.ID
}

// SplitFQN splits a fully qualified name into namespace and id.
// Returns an error when the name has no dot or an empty side.
func SplitFQN(fqn string) (namespace, id string, err error) {
	idx := strings.LastIndex(fqn, ".")
	if idx <= 0 || idx == len(fqn)-1 {
		return "", "", fmt.Errorf("invalid template name %q: want namespace.id", fqn)
	}
	return fqn[:idx], fqn[idx+1:], nil
}

// =============================================================================
// Constraint Violations
// =============================================================================

// Violation is a single semantic validation failure tied to a field path.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

// ConstraintError aggregates constraint violations for one entity or one
// call. Callers branch on the violation set rather than on message text.
type ConstraintError struct {
	Violations []Violation
}

func (e *ConstraintError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return strings.Join(msgs, "; ")
}

// NewConstraintError builds a ConstraintError from violations, or returns
// nil when there are none.
func NewConstraintError(violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}
	return &ConstraintError{Violations: violations}
}

// =============================================================================
// Validation Functions (Pure)
// =============================================================================

var (
	idRegex        = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	namespaceRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+(\.[a-zA-Z0-9_-]+)*$`)
)

// ValidateID validates a template id.
func ValidateID(id string) error {
	if id == "" {
		return ErrIDRequired
	}
	if len(id) > 100 {
		return ErrIDTooLong
	}
	if !idRegex.MatchString(id) {
		return ErrIDInvalidChars
	}
	return nil
}

// ValidateNamespace validates a namespace.
func ValidateNamespace(namespace string) error {
	if namespace == "" {
		return ErrNamespaceRequired
	}
	if !namespaceRegex.MatchString(namespace) {
		return ErrNamespaceInvalidFormat
	}
	return nil
}

// DistinctIDs returns the distinct template ids in input order.
func DistinctIDs(templates []Template) []string {
	seen := make(map[string]bool, len(templates))
	distinct := make([]string, 0, len(templates))
	for _, t := range templates {
		if !seen[t.ID] {
			seen[t.ID] = true
			distinct = append(distinct, t.ID)
		}
	}
	return distinct
}

// SortedNamespaces returns a sorted copy of the given namespaces.
func SortedNamespaces(namespaces []string) []string {
	out := make([]string, len(namespaces))
	copy(out, namespaces)
	sort.Strings(out)
	return out
}
