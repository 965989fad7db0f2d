package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/maestrohq/maestro/internal/core/domain"
	"github.com/maestrohq/maestro/internal/core/validation"
	"github.com/maestrohq/maestro/internal/shell/reconcile"
	"github.com/maestrohq/maestro/internal/shell/store"
)

// maxValidateBodyBytes caps the multi-document YAML body accepted by the
// validate endpoint.
const maxValidateBodyBytes = 4 << 20

// =============================================================================
// Template Handlers - custom actions beyond JSON:API CRUD
// =============================================================================

// TemplateHandlers serves the non-CRUD template endpoints: search, namespace
// listing, whole-namespace reconciliation and batch validation.
type TemplateHandlers struct {
	store      store.Store
	reconciler *reconcile.Reconciler
	validator  *validation.Validator
	logger     *slog.Logger
}

// NewTemplateHandlers creates the custom template handlers.
func NewTemplateHandlers(s store.Store, r *reconcile.Reconciler, v *validation.Validator, logger *slog.Logger) *TemplateHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	if v == nil {
		v = validation.NewValidator()
	}
	return &TemplateHandlers{store: s, reconciler: r, validator: v, logger: logger}
}

// =============================================================================
// Search
// =============================================================================

// searchResponse is the paged search payload.
type searchResponse struct {
	Results []templatePayload `json:"results"`
	Total   int               `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}

// templatePayload is the plain-JSON shape of a template.
type templatePayload struct {
	ID          string            `json:"id"`
	Namespace   string            `json:"namespace"`
	Description string            `json:"description,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Tasks       []domain.Task     `json:"tasks"`
	CreatedAt   string            `json:"created_at,omitempty"`
	UpdatedAt   string            `json:"updated_at,omitempty"`
}

func payloadFromDomain(t *domain.Template) templatePayload {
	p := templatePayload{
		ID:          t.ID,
		Namespace:   t.Namespace,
		Description: t.Description,
		Labels:      t.Labels,
		Tasks:       t.Tasks,
	}
	if !t.CreatedAt.IsZero() {
		p.CreatedAt = t.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !t.UpdatedAt.IsZero() {
		p.UpdatedAt = t.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return p
}

// Search handles GET /api/v1/templates/search.
// Query parameters: q (substring on id and description), namespace (the
// namespace itself plus its dotted children), limit, offset.
func (h *TemplateHandlers) Search(w http.ResponseWriter, r *http.Request) {
	opts := store.DefaultSearchOptions()
	opts.Query = r.URL.Query().Get("q")
	opts.Namespace = r.URL.Query().Get("namespace")

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}
	opts = opts.Normalize()

	templates, total, err := h.store.SearchTemplates(r.Context(), opts)
	if err != nil {
		h.logger.Error("template search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "search failed")
		return
	}

	results := make([]templatePayload, 0, len(templates))
	for i := range templates {
		results = append(results, payloadFromDomain(&templates[i]))
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Results: results,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// =============================================================================
// Namespaces
// =============================================================================

// ListNamespaces handles GET /api/v1/templates/namespaces.
func (h *TemplateHandlers) ListNamespaces(w http.ResponseWriter, r *http.Request) {
	namespaces, err := h.store.ListDistinctNamespaces(r.Context())
	if err != nil {
		h.logger.Error("namespace listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "namespace listing failed")
		return
	}
	writeJSON(w, http.StatusOK, namespaces)
}

// =============================================================================
// Reconcile
// =============================================================================

// ReconcileNamespace handles POST /api/v1/templates/namespaces/{namespace}.
// The body is a JSON array of templates, the desired complete state of the
// namespace. With delete=true (the default) templates missing from the body
// are removed. The response lists deleted templates first, then upserts in
// input order.
func (h *TemplateHandlers) ReconcileNamespace(w http.ResponseWriter, r *http.Request) {
	namespace := mux.Vars(r)["namespace"]

	deleteMissing := true
	if raw := r.URL.Query().Get("delete"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Bad Request", "delete must be a boolean")
			return
		}
		deleteMissing = parsed
	}

	var payloads []templatePayload
	if err := json.NewDecoder(r.Body).Decode(&payloads); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "body must be a JSON array of templates")
		return
	}

	desired := make([]domain.Template, len(payloads))
	for i, p := range payloads {
		desired[i] = domain.Template{
			ID:          p.ID,
			Namespace:   p.Namespace,
			Description: p.Description,
			Labels:      p.Labels,
			Tasks:       p.Tasks,
		}
	}

	result, err := h.reconciler.Reconcile(r.Context(), namespace, desired, deleteMissing)
	if err != nil {
		h.writeReconcileError(w, namespace, err)
		return
	}

	results := make([]templatePayload, 0, len(result))
	for i := range result {
		results = append(results, payloadFromDomain(&result[i]))
	}
	writeJSON(w, http.StatusOK, results)
}

// writeReconcileError maps reconciler errors to HTTP responses. Request
// shape problems come back as 422 with per-template details; anything else
// is a 500.
func (h *TemplateHandlers) writeReconcileError(w http.ResponseWriter, namespace string, err error) {
	var mismatch *reconcile.NamespaceMismatchError
	if errors.As(err, &mismatch) {
		details := make([]string, len(mismatch.Violations))
		for i, v := range mismatch.Violations {
			details[i] = v.Message
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "namespace mismatch",
			"namespace":  namespace,
			"violations": details,
		})
		return
	}

	var dup *reconcile.DuplicateIDError
	if errors.As(err, &dup) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     "duplicate template ids",
			"namespace": namespace,
			"ids":       dup.IDs,
			"distinct":  dup.Distinct,
		})
		return
	}

	if errors.Is(err, domain.ErrNamespaceRequired) || errors.Is(err, domain.ErrNamespaceInvalidFormat) {
		writeError(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
		return
	}

	h.logger.Error("namespace reconcile failed", "namespace", namespace, "error", err)
	writeError(w, http.StatusInternalServerError, "Internal Server Error", "reconcile failed")
}

// =============================================================================
// Validate
// =============================================================================

// Validate handles POST /api/v1/templates/validate. The body is raw YAML,
// possibly several documents separated by "---". Every segment yields one
// result; the endpoint itself never fails on invalid documents.
func (h *TemplateHandlers) Validate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxValidateBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "failed to read request body")
		return
	}

	results := h.validator.ValidateAll(string(body))
	writeJSON(w, http.StatusOK, results)
}

// =============================================================================
// JSON helpers
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, title, detail string) {
	writeJSON(w, status, map[string]any{
		"errors": []map[string]string{
			{
				"status": strconv.Itoa(status),
				"title":  title,
				"detail": detail,
			},
		},
	})
}
