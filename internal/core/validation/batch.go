package validation

import (
	"github.com/maestrohq/maestro/internal/core/parser"
)

// =============================================================================
// Batch Validation
// =============================================================================

// Result is the outcome for one document of a multi-document blob.
// An empty Constraints means the document parsed and validated cleanly.
// FlowID and Namespace are only populated when parsing succeeded, so a
// validation failure still identifies the offending template.
type Result struct {
	Index       int    `json:"index"`
	FlowID      string `json:"flow_id,omitempty"`
	Namespace   string `json:"namespace,omitempty"`
	Constraints string `json:"constraints,omitempty"`
}

// Valid reports whether the document passed both parsing and validation.
func (r Result) Valid() bool {
	return r.Constraints == ""
}

// ValidateAll splits a raw multi-document blob and validates each document
// independently. It always returns exactly one Result per split segment, in
// input order with gap-free indices: a malformed or empty segment produces a
// failed Result rather than aborting the batch or being skipped.
func (v *Validator) ValidateAll(raw string) []Result {
	segments := parser.Split(raw)
	results := make([]Result, 0, len(segments))

	for i, segment := range segments {
		result := Result{Index: i}

		template, err := parser.Parse(segment)
		if err != nil {
			result.Constraints = err.Error()
			results = append(results, result)
			continue
		}

		result.FlowID = template.ID
		result.Namespace = template.Namespace

		if err := v.Validate(template); err != nil {
			result.Constraints = err.Error()
		}

		results = append(results, result)
	}

	return results
}
