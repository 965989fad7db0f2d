package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/maestrohq/maestro/internal/core/domain"
	"github.com/maestrohq/maestro/internal/core/validation"
	"github.com/maestrohq/maestro/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

// newTestAPI creates the full router backed by an in-memory store.
func newTestAPI(t *testing.T) (http.Handler, *store.MemoryStore) {
	t.Helper()

	s := store.NewMemoryStore()
	t.Cleanup(func() {
		s.Close()
	})
	handler := SetupAPI(APIConfig{Store: s})
	return handler, s
}

// jsonBody encodes a value to JSON and returns a reader.
func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, json.NewEncoder(buf).Encode(v))
	return buf
}

// parseResponse parses a JSON response body into the given type.
func parseResponse[T any](t *testing.T, body io.Reader) T {
	t.Helper()
	var result T
	require.NoError(t, json.NewDecoder(body).Decode(&result))
	return result
}

// createTestTemplate creates a valid template for testing.
func createTestTemplate(namespace, id string) *domain.Template {
	return &domain.Template{
		ID:        id,
		Namespace: namespace,
		Tasks: []domain.Task{
			{"id": "main", "type": "io.maestro.tasks.Log"},
		},
	}
}

func seedTemplates(t *testing.T, s store.Store, namespace string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.CreateTemplate(context.Background(), createTestTemplate(namespace, id)))
	}
}

// =============================================================================
// Health Endpoint Tests
// =============================================================================

func TestHealth_Success(t *testing.T) {
	h, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse[map[string]string](t, w.Body)
	assert.Equal(t, "healthy", resp["status"])
}

func TestReady_Success(t *testing.T) {
	h, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse[map[string]any](t, w.Body)
	assert.Equal(t, "ready", resp["status"])
}

// =============================================================================
// Search and Namespace Tests
// =============================================================================

func TestSearch_ByNamespacePrefix(t *testing.T) {
	h, s := newTestAPI(t)
	seedTemplates(t, s, "io.maestro", "deploy")
	seedTemplates(t, s, "io.maestro.prod", "release")
	seedTemplates(t, s, "io.other", "cleanup")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates/search?namespace=io.maestro", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse[searchResponse](t, w.Body)
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "deploy", resp.Results[0].ID)
	assert.Equal(t, "release", resp.Results[1].ID)
}

func TestSearch_Pagination(t *testing.T) {
	h, s := newTestAPI(t)
	seedTemplates(t, s, "io.maestro", "a", "b", "c")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates/search?limit=2&offset=2", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse[searchResponse](t, w.Body)
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "c", resp.Results[0].ID)
}

func TestListNamespaces(t *testing.T) {
	h, s := newTestAPI(t)
	seedTemplates(t, s, "io.zeta", "one")
	seedTemplates(t, s, "io.alpha", "one")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates/namespaces", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse[[]string](t, w.Body)
	assert.Equal(t, []string{"io.alpha", "io.zeta"}, resp)
}

// =============================================================================
// Reconcile Endpoint Tests
// =============================================================================

func TestReconcileNamespace_ReplacesContents(t *testing.T) {
	h, s := newTestAPI(t)
	seedTemplates(t, s, "io.maestro", "a", "b", "c")

	body := jsonBody(t, []templatePayload{
		{ID: "b", Namespace: "io.maestro", Tasks: []domain.Task{{"id": "main", "type": "log"}}},
		{ID: "c", Namespace: "io.maestro", Tasks: []domain.Task{{"id": "main", "type": "log"}}},
		{ID: "d", Namespace: "io.maestro", Tasks: []domain.Task{{"id": "main", "type": "log"}}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/templates/namespaces/io.maestro", body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse[[]templatePayload](t, w.Body)
	require.Len(t, resp, 4)
	assert.Equal(t, "a", resp[0].ID)
	assert.Equal(t, "b", resp[1].ID)
	assert.Equal(t, "c", resp[2].ID)
	assert.Equal(t, "d", resp[3].ID)

	remaining, err := s.ListByNamespace(context.Background(), "io.maestro")
	require.NoError(t, err)
	require.Len(t, remaining, 3)
}

func TestReconcileNamespace_DeleteFalse(t *testing.T) {
	h, s := newTestAPI(t)
	seedTemplates(t, s, "io.maestro", "a")

	body := jsonBody(t, []templatePayload{
		{ID: "b", Namespace: "io.maestro", Tasks: []domain.Task{{"id": "main", "type": "log"}}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/templates/namespaces/io.maestro?delete=false", body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	remaining, err := s.ListByNamespace(context.Background(), "io.maestro")
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestReconcileNamespace_NamespaceMismatch(t *testing.T) {
	h, s := newTestAPI(t)
	seedTemplates(t, s, "io.maestro", "a")

	body := jsonBody(t, []templatePayload{
		{ID: "b", Namespace: "io.other", Tasks: []domain.Task{{"id": "main", "type": "log"}}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/templates/namespaces/io.maestro", body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := parseResponse[map[string]any](t, w.Body)
	assert.Equal(t, "namespace mismatch", resp["error"])

	// Nothing was mutated.
	remaining, err := s.ListByNamespace(context.Background(), "io.maestro")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestReconcileNamespace_DuplicateIDs(t *testing.T) {
	h, _ := newTestAPI(t)

	body := jsonBody(t, []templatePayload{
		{ID: "b", Namespace: "io.maestro", Tasks: []domain.Task{{"id": "main", "type": "log"}}},
		{ID: "b", Namespace: "io.maestro", Tasks: []domain.Task{{"id": "main", "type": "log"}}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/templates/namespaces/io.maestro", body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := parseResponse[map[string]any](t, w.Body)
	assert.Equal(t, "duplicate template ids", resp["error"])
}

func TestReconcileNamespace_InvalidBody(t *testing.T) {
	h, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/templates/namespaces/io.maestro", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcileNamespace_InvalidDeleteParam(t *testing.T) {
	h, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/templates/namespaces/io.maestro?delete=maybe", strings.NewReader("[]"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcileNamespace_AdminKeyRequired(t *testing.T) {
	s := store.NewMemoryStore()
	t.Cleanup(func() {
		s.Close()
	})
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-key"), bcrypt.MinCost)
	require.NoError(t, err)
	h := SetupAPI(APIConfig{Store: s, AdminKeyHash: string(hash)})

	body := `[{"id": "a", "namespace": "io.maestro", "tasks": [{"id": "main", "type": "log"}]}]`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/templates/namespaces/io.maestro", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/templates/namespaces/io.maestro", strings.NewReader(body))
	req.Header.Set("X-Admin-Key", "admin-key")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// =============================================================================
// Validate Endpoint Tests
// =============================================================================

func TestValidate_MultiDocument(t *testing.T) {
	h, _ := newTestAPI(t)

	body := `id: docA
namespace: io.maestro
tasks:
  - id: main
    type: log
---
:::broken:::
---
id: docC
namespace: io.maestro
tasks:
  - id: main
    type: log
`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/templates/validate", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	results := parseResponse[[]validation.Result](t, w.Body)
	require.Len(t, results, 3)

	assert.Equal(t, 0, results[0].Index)
	assert.True(t, results[0].Valid())
	assert.Equal(t, "docA", results[0].FlowID)

	assert.Equal(t, 1, results[1].Index)
	assert.False(t, results[1].Valid())

	assert.Equal(t, 2, results[2].Index)
	assert.True(t, results[2].Valid())
	assert.Equal(t, "docC", results[2].FlowID)
}

func TestValidate_EmptyBody(t *testing.T) {
	h, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/templates/validate", strings.NewReader(""))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	results := parseResponse[[]validation.Result](t, w.Body)
	require.Len(t, results, 1)
	assert.False(t, results[0].Valid())
}

// =============================================================================
// Middleware Tests
// =============================================================================

func TestRequestID_Generated(t *testing.T) {
	h, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestID_Propagated(t *testing.T) {
	h, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-from-client")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "req-from-client", w.Header().Get("X-Request-ID"))
}

func TestGatewaySecret_Enforced(t *testing.T) {
	s := store.NewMemoryStore()
	t.Cleanup(func() {
		s.Close()
	})
	h := SetupAPI(APIConfig{Store: s, AuthSharedSecret: "s3cret"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates/namespaces", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/templates/namespaces", nil)
	req.Header.Set("X-Gateway-Secret", "s3cret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOpenAPI_Served(t *testing.T) {
	h, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	spec := parseResponse[map[string]any](t, w.Body)
	assert.Equal(t, "3.0.3", spec["openapi"])
}
