// Package middleware provides HTTP middleware for the Maestro API.
package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// Header names checked by the auth middleware. The gateway injects the
// shared secret on every proxied request; the admin key is presented by
// operators calling mutating namespace endpoints directly.
const (
	HeaderGatewaySecret = "X-Gateway-Secret"
	HeaderAdminKey      = "X-Admin-Key"
)

// =============================================================================
// Auth Configuration
// =============================================================================

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// SharedSecret is an optional secret to validate X-Gateway-Secret.
	// If empty, secret validation is skipped.
	SharedSecret string

	// AdminKeyHash is the bcrypt hash of the admin API key. If empty,
	// RequireAdmin rejects every request.
	AdminKeyHash string

	// Logger for auth middleware logging.
	Logger *slog.Logger
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware validates gateway and admin credentials.
type AuthMiddleware struct {
	config AuthConfig
}

// NewAuthMiddleware creates a new auth middleware with the given config.
func NewAuthMiddleware(cfg AuthConfig) *AuthMiddleware {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AuthMiddleware{config: cfg}
}

// Handler validates the gateway shared secret when one is configured.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.config.SharedSecret != "" &&
			r.Header.Get(HeaderGatewaySecret) != m.config.SharedSecret {
			m.reject(w, r, http.StatusForbidden, "Forbidden", "Invalid gateway secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin checks X-Admin-Key against the configured bcrypt hash.
// Use it on endpoints that mutate whole namespaces. Must be used after
// Handler.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.adminKeyValid(r.Header.Get(HeaderAdminKey)) {
			m.reject(w, r, http.StatusUnauthorized, "Unauthorized", "Valid admin key required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) adminKeyValid(key string) bool {
	if m.config.AdminKeyHash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(m.config.AdminKeyHash), []byte(key)) == nil
}

// =============================================================================
// JSON Error Response
// =============================================================================

type jsonAPIError struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// reject logs the denied request and writes a JSON:API error body.
func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	m.config.Logger.Warn("request rejected",
		"status", status,
		"remote_addr", r.RemoteAddr,
		"method", r.Method,
		"path", r.URL.Path,
	)

	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string][]jsonAPIError{
		"errors": {{
			Status: strconv.Itoa(status),
			Title:  title,
			Detail: detail,
		}},
	})
}
