package validation

import (
	"fmt"

	"github.com/maestrohq/maestro/internal/core/domain"
)

// =============================================================================
// Validator
// =============================================================================

// Validator checks semantic constraints on parsed templates.
// The zero value is ready to use.
type Validator struct{}

// NewValidator creates a model validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all semantic constraints on a template and returns a
// *domain.ConstraintError aggregating every violation found, or nil when the
// template is valid. Violations are collected, not short-circuited, so a
// caller sees the full picture in one pass.
func (v *Validator) Validate(template *domain.Template) error {
	var violations []domain.Violation

	if err := domain.ValidateID(template.ID); err != nil {
		violations = append(violations, domain.Violation{
			Field:   "template.id",
			Message: err.Error(),
			Value:   template.ID,
		})
	}
	if err := domain.ValidateNamespace(template.Namespace); err != nil {
		violations = append(violations, domain.Violation{
			Field:   "template.namespace",
			Message: err.Error(),
			Value:   template.Namespace,
		})
	}

	if len(template.Tasks) == 0 {
		violations = append(violations, domain.Violation{
			Field:   "template.tasks",
			Message: domain.ErrTasksRequired.Error(),
		})
	}

	violations = append(violations, validateTasks(template.Tasks)...)

	return domain.NewConstraintError(violations)
}

// validateTasks checks per-task invariants: every task needs an id and a
// type, and task ids must be unique within the template.
func validateTasks(tasks []domain.Task) []domain.Violation {
	var violations []domain.Violation
	seen := make(map[string]bool, len(tasks))

	for i, task := range tasks {
		field := fmt.Sprintf("template.tasks[%d]", i)

		id := task.ID()
		if id == "" {
			violations = append(violations, domain.Violation{
				Field:   field + ".id",
				Message: "task id is required",
			})
		} else if seen[id] {
			violations = append(violations, domain.Violation{
				Field:   field + ".id",
				Message: "duplicate task id",
				Value:   id,
			})
		} else {
			seen[id] = true
		}

		if task.Type() == "" {
			violations = append(violations, domain.Violation{
				Field:   field + ".type",
				Message: "task type is required",
			})
		}
	}

	return violations
}
