// Package resources provides JSON:API resource implementations for the
// Maestro API.
package resources

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/manyminds/api2go"
	"github.com/manyminds/api2go/jsonapi"

	"github.com/maestrohq/maestro/internal/core/domain"
	"github.com/maestrohq/maestro/internal/core/validation"
	"github.com/maestrohq/maestro/internal/shell/store"
)

// =============================================================================
// Template JSON:API Model
// =============================================================================

// Template wraps domain.Template for JSON:API marshaling. The resource id
// is the fully qualified name "namespace.id"; template ids cannot contain
// dots, so the two halves split unambiguously on the last dot.
type Template struct {
	ID          string            `json:"-"`
	TemplateID  string            `json:"template_id"`
	Namespace   string            `json:"namespace"`
	Description string            `json:"description,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Tasks       []domain.Task     `json:"tasks"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// GetID returns the fully qualified name for JSON:API.
func (t Template) GetID() string {
	return t.ID
}

// SetID sets the fully qualified name for JSON:API.
func (t *Template) SetID(id string) error {
	t.ID = id
	return nil
}

// GetName returns the JSON:API resource type name.
func (t Template) GetName() string {
	return "templates"
}

// GetReferences returns the relationships this resource has.
func (t Template) GetReferences() []jsonapi.Reference {
	return nil
}

// GetReferencedIDs returns IDs of referenced resources.
func (t Template) GetReferencedIDs() []jsonapi.ReferenceID {
	return nil
}

// GetReferencedStructs returns referenced objects for compound documents.
func (t Template) GetReferencedStructs() []jsonapi.MarshalIdentifier {
	return nil
}

// =============================================================================
// Conversion Functions
// =============================================================================

// TemplateFromDomain converts a domain.Template to a JSON:API Template.
func TemplateFromDomain(t *domain.Template) Template {
	return Template{
		ID:          t.FQN(),
		TemplateID:  t.ID,
		Namespace:   t.Namespace,
		Description: t.Description,
		Labels:      t.Labels,
		Tasks:       t.Tasks,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// ToDomain converts the JSON:API Template to a domain.Template. When the
// attributes omit template_id or namespace, both are recovered from the
// resource id.
func (t Template) ToDomain() (*domain.Template, error) {
	id, namespace := t.TemplateID, t.Namespace
	if id == "" && namespace == "" && t.ID != "" {
		ns, tid, err := domain.SplitFQN(t.ID)
		if err != nil {
			return nil, err
		}
		namespace, id = ns, tid
	}
	return &domain.Template{
		ID:          id,
		Namespace:   namespace,
		Description: t.Description,
		Labels:      t.Labels,
		Tasks:       t.Tasks,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}, nil
}

// =============================================================================
// TemplateResource - CRUD Operations
// =============================================================================

// TemplateResource implements the api2go resource interface for templates.
type TemplateResource struct {
	Store     store.Store
	Validator *validation.Validator
}

// NewTemplateResource creates a new template resource handler.
func NewTemplateResource(s store.Store, v *validation.Validator) *TemplateResource {
	if v == nil {
		v = validation.NewValidator()
	}
	return &TemplateResource{Store: s, Validator: v}
}

// FindAll returns templates with optional namespace filter and pagination.
// GET /api/v1/templates
func (r TemplateResource) FindAll(req api2go.Request) (api2go.Responder, error) {
	opts := store.DefaultSearchOptions()

	if ns, ok := req.QueryParams["filter[namespace]"]; ok && len(ns) > 0 {
		opts.Namespace = ns[0]
	}
	if limit, ok := req.QueryParams["page[size]"]; ok && len(limit) > 0 {
		if l, err := strconv.Atoi(limit[0]); err == nil {
			opts.Limit = l
		}
	}
	if offset, ok := req.QueryParams["page[offset]"]; ok && len(offset) > 0 {
		if o, err := strconv.Atoi(offset[0]); err == nil {
			opts.Offset = o
		}
	}
	// Also support page[number] style
	if pageNum, ok := req.QueryParams["page[number]"]; ok && len(pageNum) > 0 {
		if pn, err := strconv.Atoi(pageNum[0]); err == nil && pn > 0 {
			opts.Offset = (pn - 1) * opts.Limit
		}
	}

	ctx := req.PlainRequest.Context()
	templates, total, err := r.Store.SearchTemplates(ctx, opts)
	if err != nil {
		return &Response{Code: http.StatusInternalServerError}, err
	}

	result := make([]Template, 0, len(templates))
	for i := range templates {
		result = append(result, TemplateFromDomain(&templates[i]))
	}

	return &Response{
		Code: http.StatusOK,
		Res:  result,
		Meta: map[string]interface{}{
			"total":  total,
			"limit":  opts.Limit,
			"offset": opts.Offset,
		},
	}, nil
}

// FindOne returns a single template by fully qualified name.
// GET /api/v1/templates/{fqn}
func (r TemplateResource) FindOne(fqn string, req api2go.Request) (api2go.Responder, error) {
	namespace, id, err := domain.SplitFQN(fqn)
	if err != nil {
		return notFoundResponse()
	}

	template, err := r.Store.GetTemplate(req.PlainRequest.Context(), namespace, id)
	if err != nil {
		if store.IsNotFound(err) {
			return notFoundResponse()
		}
		return &Response{Code: http.StatusInternalServerError}, err
	}

	return &Response{
		Code: http.StatusOK,
		Res:  TemplateFromDomain(template),
	}, nil
}

// Create creates a new template.
// POST /api/v1/templates
func (r TemplateResource) Create(obj interface{}, req api2go.Request) (api2go.Responder, error) {
	template, ok := obj.(Template)
	if !ok {
		return badRequestResponse("Invalid request body")
	}

	domainTemplate, err := template.ToDomain()
	if err != nil {
		return badRequestResponse(err.Error())
	}

	if err := r.Validator.Validate(domainTemplate); err != nil {
		return unprocessableResponse(err)
	}

	if err := r.Store.CreateTemplate(req.PlainRequest.Context(), domainTemplate); err != nil {
		if store.IsDuplicateID(err) {
			return &Response{Code: http.StatusConflict}, api2go.NewHTTPError(
				fmt.Errorf("template %s already exists", domainTemplate.FQN()),
				"Template already exists",
				http.StatusConflict,
			)
		}
		return &Response{Code: http.StatusInternalServerError}, err
	}

	persisted, err := r.Store.GetTemplate(req.PlainRequest.Context(), domainTemplate.Namespace, domainTemplate.ID)
	if err != nil {
		return &Response{Code: http.StatusInternalServerError}, err
	}

	return &Response{
		Code: http.StatusCreated,
		Res:  TemplateFromDomain(persisted),
	}, nil
}

// Update replaces the content of an existing template. The identity comes
// from the resource id; CreatedAt is preserved by the store.
// PATCH /api/v1/templates/{fqn}
func (r TemplateResource) Update(obj interface{}, req api2go.Request) (api2go.Responder, error) {
	template, ok := obj.(Template)
	if !ok {
		return badRequestResponse("Invalid request body")
	}

	namespace, id, err := domain.SplitFQN(template.ID)
	if err != nil {
		return notFoundResponse()
	}

	domainTemplate, err := template.ToDomain()
	if err != nil {
		return badRequestResponse(err.Error())
	}
	domainTemplate.Namespace = namespace
	domainTemplate.ID = id

	if err := r.Validator.Validate(domainTemplate); err != nil {
		return unprocessableResponse(err)
	}

	ctx := req.PlainRequest.Context()
	if err := r.Store.UpdateTemplate(ctx, domainTemplate); err != nil {
		if store.IsNotFound(err) {
			return notFoundResponse()
		}
		return &Response{Code: http.StatusInternalServerError}, err
	}

	persisted, err := r.Store.GetTemplate(ctx, namespace, id)
	if err != nil {
		return &Response{Code: http.StatusInternalServerError}, err
	}

	return &Response{
		Code: http.StatusOK,
		Res:  TemplateFromDomain(persisted),
	}, nil
}

// Delete removes a template by fully qualified name.
// DELETE /api/v1/templates/{fqn}
func (r TemplateResource) Delete(fqn string, req api2go.Request) (api2go.Responder, error) {
	namespace, id, err := domain.SplitFQN(fqn)
	if err != nil {
		return notFoundResponse()
	}

	if err := r.Store.DeleteTemplate(req.PlainRequest.Context(), namespace, id); err != nil {
		if store.IsNotFound(err) {
			return notFoundResponse()
		}
		return &Response{Code: http.StatusInternalServerError}, err
	}

	return &Response{Code: http.StatusNoContent}, nil
}

// =============================================================================
// Response Helper
// =============================================================================

// Response implements api2go.Responder for custom responses.
type Response struct {
	Code int
	Res  interface{}
	Meta map[string]interface{}
}

// Metadata returns additional metadata for the response.
func (r *Response) Metadata() map[string]interface{} {
	return r.Meta
}

// Result returns the response data.
func (r *Response) Result() interface{} {
	return r.Res
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int {
	return r.Code
}

// =============================================================================
// Helper Functions
// =============================================================================

func notFoundResponse() (api2go.Responder, error) {
	return &Response{Code: http.StatusNotFound}, api2go.NewHTTPError(
		fmt.Errorf("template not found"),
		"Template not found",
		http.StatusNotFound,
	)
}

func badRequestResponse(detail string) (api2go.Responder, error) {
	return &Response{Code: http.StatusBadRequest}, api2go.NewHTTPError(
		errors.New(detail),
		detail,
		http.StatusBadRequest,
	)
}

// unprocessableResponse renders a ConstraintError as one JSON:API error
// per violation.
func unprocessableResponse(err error) (api2go.Responder, error) {
	httpErr := api2go.NewHTTPError(err, "Template validation failed", http.StatusUnprocessableEntity)

	var constraintErr *domain.ConstraintError
	if errors.As(err, &constraintErr) {
		for _, v := range constraintErr.Violations {
			httpErr.Errors = append(httpErr.Errors, api2go.Error{
				Status: strconv.Itoa(http.StatusUnprocessableEntity),
				Title:  "Constraint violation",
				Detail: v.String(),
				Source: &api2go.ErrorSource{Pointer: "/data/attributes/" + v.Field},
			})
		}
	}

	return &Response{Code: http.StatusUnprocessableEntity}, httpErr
}
