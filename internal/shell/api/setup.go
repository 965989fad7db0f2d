// Package api provides the HTTP surface of the Maestro template registry:
// JSON:API CRUD via api2go plus custom endpoints for search, namespace
// listing, reconciliation and batch validation.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/manyminds/api2go"

	"github.com/maestrohq/maestro/internal/core/validation"
	"github.com/maestrohq/maestro/internal/shell/api/middleware"
	"github.com/maestrohq/maestro/internal/shell/api/openapi"
	"github.com/maestrohq/maestro/internal/shell/api/resources"
	"github.com/maestrohq/maestro/internal/shell/reconcile"
	"github.com/maestrohq/maestro/internal/shell/store"
)

// =============================================================================
// API Setup
// =============================================================================

// APIConfig holds configuration for the API setup.
type APIConfig struct {
	Store      store.Store
	Reconciler *reconcile.Reconciler
	Validator  *validation.Validator
	Logger     *slog.Logger

	// AuthSharedSecret validates X-Gateway-Secret when set.
	AuthSharedSecret string

	// AdminKeyHash is the bcrypt hash guarding namespace reconciliation.
	// When empty the reconcile endpoint is open.
	AdminKeyHash string

	// Version is reported in the OpenAPI document.
	Version string
}

// SetupAPI creates the complete API router. Returns an http.Handler that
// can be used as the server's main handler.
func SetupAPI(cfg APIConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Validator == nil {
		cfg.Validator = validation.NewValidator()
	}
	if cfg.Reconciler == nil {
		cfg.Reconciler = reconcile.NewReconciler(cfg.Store, cfg.Logger)
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}

	router := mux.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(requestIDMiddleware)
	router.Use(recoveryMiddleware(cfg.Logger))

	authMW := middleware.NewAuthMiddleware(middleware.AuthConfig{
		SharedSecret: cfg.AuthSharedSecret,
		AdminKeyHash: cfg.AdminKeyHash,
		Logger:       cfg.Logger,
	})
	router.Use(authMW.Handler)

	// Health endpoints (not JSON:API, just simple JSON)
	router.HandleFunc("/health", healthHandler).Methods("GET")
	router.HandleFunc("/ready", readyHandler(cfg.Store)).Methods("GET")

	// JSON:API resources
	jsonAPI := api2go.NewAPIWithResolver("v1", api2go.NewStaticResolver("/api"))
	jsonAPI.ContentType = "application/vnd.api+json"

	templateResource := resources.NewTemplateResource(cfg.Store, cfg.Validator)
	jsonAPI.AddResource(resources.Template{}, templateResource)

	// Custom routes must be registered before the /api prefix handler so
	// the api2go catch-all does not swallow them. The reconcile endpoint
	// additionally requires the admin key when one is configured.
	handlers := NewTemplateHandlers(cfg.Store, cfg.Reconciler, cfg.Validator, cfg.Logger)
	router.Handle("/api/v1/templates/search",
		http.HandlerFunc(handlers.Search)).Methods("GET")
	router.Handle("/api/v1/templates/validate",
		http.HandlerFunc(handlers.Validate)).Methods("POST")
	router.Handle("/api/v1/templates/namespaces",
		http.HandlerFunc(handlers.ListNamespaces)).Methods("GET")
	reconcileHandler := http.Handler(http.HandlerFunc(handlers.ReconcileNamespace))
	if cfg.AdminKeyHash != "" {
		reconcileHandler = authMW.RequireAdmin(reconcileHandler)
	}
	router.Handle("/api/v1/templates/namespaces/{namespace}", reconcileHandler).Methods("POST")

	// OpenAPI document
	openapiGen := openapi.NewGenerator(
		openapi.WithTitle("Maestro API"),
		openapi.WithVersion(cfg.Version),
		openapi.WithDescription("Namespaced template registry with whole-namespace reconciliation and batch validation"),
		openapi.WithServer("/api/v1"),
	)
	openapiGen.RegisterResource(openapi.ResourceInfo{
		Name:           "templates",
		Model:          resources.Template{},
		SupportsFind:   true,
		SupportsCreate: true,
		SupportsUpdate: true,
		SupportsDelete: true,
	})
	openapiGen.RegisterOperation(openapi.OperationInfo{
		Method:      http.MethodGet,
		Path:        "/templates/search",
		OperationID: "searchTemplates",
		Summary:     "Search templates by id, description or namespace prefix",
		Tags:        []string{"Templates"},
	})
	openapiGen.RegisterOperation(openapi.OperationInfo{
		Method:      http.MethodGet,
		Path:        "/templates/namespaces",
		OperationID: "listTemplateNamespaces",
		Summary:     "List distinct template namespaces",
		Tags:        []string{"Templates"},
	})
	openapiGen.RegisterOperation(openapi.OperationInfo{
		Method:      http.MethodPost,
		Path:        "/templates/namespaces/{namespace}",
		OperationID: "reconcileNamespace",
		Summary:     "Replace the full template set of a namespace",
		Tags:        []string{"Templates"},
	})
	openapiGen.RegisterOperation(openapi.OperationInfo{
		Method:      http.MethodPost,
		Path:        "/templates/validate",
		OperationID: "validateTemplates",
		Summary:     "Validate a multi-document template payload",
		Tags:        []string{"Templates"},
	})
	router.HandleFunc("/openapi.json", openapiGen.Handler()).Methods("GET")

	// api2go expects paths without the /api prefix (e.g. /v1/templates,
	// not /api/v1/templates), so strip it before delegating.
	router.PathPrefix("/api").Handler(http.StripPrefix("/api", jsonAPI.Handler()))

	return router
}

// =============================================================================
// Middleware
// =============================================================================

// requestIDMiddleware propagates or generates a request ID.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from panics and returns a 500 error.
func recoveryMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered", "error", err, "path", r.URL.Path)
					w.Header().Set("Content-Type", "application/vnd.api+json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]interface{}{
						"errors": []map[string]interface{}{
							{
								"status": "500",
								"title":  "Internal Server Error",
								"detail": "An unexpected error occurred",
							},
						},
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// Health Handlers
// =============================================================================

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func readyHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		checks := make(map[string]string)

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if _, err := s.ListDistinctNamespaces(ctx); err != nil {
			checks["database"] = "failed"
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "not_ready",
				"checks": checks,
			})
			return
		}
		checks["database"] = "ok"

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ready",
			"checks": checks,
		})
	}
}
