// Package parser turns YAML template documents into domain entities.
// This is part of the Functional Core - no I/O beyond the supplied text.
package parser

import (
	"errors"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maestrohq/maestro/internal/core/domain"
)

// Separator is the literal multi-document separator. Splitting happens on
// the raw marker, matching how submitted blobs are assembled by clients.
const Separator = "---"

// =============================================================================
// Errors
// =============================================================================

// ParseError reports a malformed template document.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err is a ParseError.
func IsParseError(err error) bool {
	var perr *ParseError
	return errors.As(err, &perr)
}

// =============================================================================
// Parsing
// =============================================================================

// Parse decodes a single YAML document into a Template. Unknown fields are
// rejected so typos surface as parse failures rather than silently dropped
// content. An empty or null document is a parse failure, not a zero value.
func Parse(text string) (*domain.Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{Message: "template document is empty"}
	}

	dec := yaml.NewDecoder(strings.NewReader(text))
	dec.KnownFields(true)

	var template domain.Template
	if err := dec.Decode(&template); err != nil {
		return nil, &ParseError{Message: "invalid template document", Err: err}
	}

	return &template, nil
}

// Split cuts a multi-document blob into individual document texts on the
// literal separator. Empty segments (leading, trailing, or doubled
// separators) are kept so every position in the input yields a result.
func Split(raw string) []string {
	return strings.Split(raw, Separator)
}

// Marshal renders a template back to its YAML document form.
func Marshal(template *domain.Template) (string, error) {
	out, err := yaml.Marshal(template)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
