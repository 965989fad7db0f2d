// Package validation provides pure semantic validation for templates.
//
// This package contains the functional core logic for checking template
// constraints beyond what the parser enforces structurally. All functions
// are pure (no I/O, no side effects).
//
// Two entry points:
//
//   - Validator.Validate: semantic constraints for a single parsed template,
//     reported as an aggregated set of field-path violations
//   - Validator.ValidateAll: the batch pipeline over a multi-document blob,
//     producing one Result per document and never failing as a whole
package validation
