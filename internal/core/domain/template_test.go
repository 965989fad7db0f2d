package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ID Validation Tests
// =============================================================================

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{"valid simple", "extract-users", nil},
		{"valid underscore", "daily_report", nil},
		{"valid mixed case", "DailyReport01", nil},
		{"empty", "", ErrIDRequired},
		{"contains dot", "daily.report", ErrIDInvalidChars},
		{"contains space", "daily report", ErrIDInvalidChars},
		{"too long", string(make([]byte, 101)), ErrIDTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateNamespace(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		wantErr   error
	}{
		{"single segment", "prod", nil},
		{"dotted", "company.team.prod", nil},
		{"empty", "", ErrNamespaceRequired},
		{"leading dot", ".team", ErrNamespaceInvalidFormat},
		{"trailing dot", "team.", ErrNamespaceInvalidFormat},
		{"double dot", "company..team", ErrNamespaceInvalidFormat},
		{"invalid char", "company/team", ErrNamespaceInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNamespace(tt.namespace)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

// =============================================================================
// Template Tests
// =============================================================================

func TestNewTemplate(t *testing.T) {
	tasks := []Task{{"id": "hello", "type": "log"}}

	template, err := NewTemplate("company.team", "greeting", tasks)
	require.NoError(t, err)
	assert.Equal(t, "company.team", template.Namespace)
	assert.Equal(t, "greeting", template.ID)
	assert.Equal(t, tasks, template.Tasks)
	assert.False(t, template.CreatedAt.IsZero())
	assert.Equal(t, template.CreatedAt, template.UpdatedAt)
}

func TestNewTemplate_InvalidIdentity(t *testing.T) {
	_, err := NewTemplate("", "greeting", nil)
	assert.ErrorIs(t, err, ErrNamespaceRequired)

	_, err = NewTemplate("company.team", "bad id", nil)
	assert.ErrorIs(t, err, ErrIDInvalidChars)
}

func TestFQN_RoundTrip(t *testing.T) {
	template := &Template{ID: "greeting", Namespace: "company.team"}
	fqn := template.FQN()
	assert.Equal(t, "company.team.greeting", fqn)

	namespace, id, err := SplitFQN(fqn)
	require.NoError(t, err)
	assert.Equal(t, "company.team", namespace)
	assert.Equal(t, "greeting", id)
}

func TestSplitFQN_Invalid(t *testing.T) {
	for _, fqn := range []string{"", "nodot", ".leading", "trailing."} {
		_, _, err := SplitFQN(fqn)
		assert.Error(t, err, "fqn %q", fqn)
	}
}

func TestTask_Accessors(t *testing.T) {
	task := Task{"id": "hello", "type": "log", "message": "hi"}
	assert.Equal(t, "hello", task.ID())
	assert.Equal(t, "log", task.Type())

	empty := Task{"message": "hi"}
	assert.Equal(t, "", empty.ID())
	assert.Equal(t, "", empty.Type())
}

// =============================================================================
// Constraint Violation Tests
// =============================================================================

func TestNewConstraintError(t *testing.T) {
	assert.NoError(t, NewConstraintError(nil))

	err := NewConstraintError([]Violation{
		{Field: "template.id", Message: "id is required"},
		{Field: "template.tasks", Message: "at least one task is required"},
	})
	require.Error(t, err)

	var cerr *ConstraintError
	require.ErrorAs(t, err, &cerr)
	assert.Len(t, cerr.Violations, 2)
	assert.Equal(t, "template.id: id is required; template.tasks: at least one task is required", err.Error())
}

func TestDistinctIDs(t *testing.T) {
	templates := []Template{
		{ID: "a"}, {ID: "b"}, {ID: "a"}, {ID: "c"}, {ID: "b"},
	}
	assert.Equal(t, []string{"a", "b", "c"}, DistinctIDs(templates))
	assert.Empty(t, DistinctIDs(nil))
}

func TestSortedNamespaces(t *testing.T) {
	in := []string{"prod", "company.team", "dev"}
	out := SortedNamespaces(in)
	assert.Equal(t, []string{"company.team", "dev", "prod"}, out)
	// input untouched
	assert.Equal(t, []string{"prod", "company.team", "dev"}, in)
}
