// Package handler exposes the issuer's HTTP surface: key discovery,
// token minting for sibling edge services, and the authenticated
// session endpoint, all composed through the middleware pipeline.
package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/loomcast/edgeauth/pkg/config"
	"github.com/loomcast/edgeauth/pkg/middleware"
	"github.com/loomcast/edgeauth/pkg/problem"
	"github.com/loomcast/edgeauth/pkg/signer"
	"github.com/loomcast/edgeauth/pkg/store"
	"github.com/loomcast/edgeauth/pkg/types"
	"github.com/loomcast/edgeauth/pkg/validator"
)

// MaxRequestBody bounds token minting request bodies.
const MaxRequestBody = 64 * 1024

// Handler wires the route handlers to their collaborators.
type Handler struct {
	cfg         *config.Config
	keyMaterial string
	signing     *signer.Cache
	verifier    validator.TokenVerifierInterface
	kv          store.Store
}

// New creates the HTTP handler set. keyMaterial is the issuer's
// private JWK; empty on resource-server deployments that only verify.
func New(cfg *config.Config, keyMaterial string, signing *signer.Cache, verifier validator.TokenVerifierInterface, kv store.Store) *Handler {
	return &Handler{
		cfg:         cfg,
		keyMaterial: keyMaterial,
		signing:     signing,
		verifier:    verifier,
		kv:          kv,
	}
}

// Routes assembles the middleware pipeline and routes. Order matters:
// CORS runs before anything that can fail so error responses stay
// visible to browser callers.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.CORS(h.cfg))
	r.Use(middleware.Recoverer)

	if h.cfg.RateLimit != nil && h.cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimit(h.kv, h.cfg.RateLimit.Limit, h.cfg.RateLimit.Window))
	}

	r.Get("/healthz", h.Health)
	r.Get("/.well-known/jwks.json", h.JWKS)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/tokens", h.IssueToken)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.verifier))
			r.Use(middleware.EncryptResponses)
			r.Get("/session", h.Session)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		problem.NotFound(r.URL.Path).Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		problem.MethodNotAllowed(r.URL.Path).Write(w)
	})

	return r
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// JWKS publishes the issuer's public key set. Resource servers poll
// this endpoint through their remote key store.
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	signingCtx, err := h.signing.Context(h.keyMaterial)
	if err != nil {
		slog.Error("Signing context unavailable for JWKS endpoint", slog.String("error", err.Error()))
		problem.From(err, r.URL.Path).Write(w)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=600")
	respondJSON(w, http.StatusOK, signingCtx.PublicJWKS())
}

// TokenRequest is the body accepted by the minting endpoint.
type TokenRequest struct {
	Subject     string   `json:"sub"`
	CustomerID  string   `json:"customerId"`
	DisplayName string   `json:"displayName,omitempty"`
	Channel     string   `json:"channel,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
}

// TokenResponse carries a freshly minted session token.
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueToken mints a session token for a subject a sibling edge
// service has already authenticated (the login flow itself lives
// elsewhere). The caller authenticates with the configured service
// token over the private network path.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeService(r) {
		problem.Forbidden(r.URL.Path).Write(w)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBody))
	if err != nil {
		problem.BadRequest("failed to read request body", r.URL.Path).Write(w)
		return
	}

	var req TokenRequest
	if err := json.Unmarshal(body, &req); err != nil {
		problem.BadRequest("invalid JSON in request body", r.URL.Path).Write(w)
		return
	}
	if req.Subject == "" || req.CustomerID == "" {
		problem.BadRequest("sub and customerId are required", r.URL.Path).Write(w)
		return
	}

	signingCtx, err := h.signing.Context(h.keyMaterial)
	if err != nil {
		slog.Error("Signing context unavailable for token minting", slog.String("error", err.Error()))
		problem.From(err, r.URL.Path).Write(w)
		return
	}

	now := time.Now()
	expiresAt := now.Add(h.cfg.TokenTTL)
	claims := &types.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    h.cfg.Issuer,
			Subject:   req.Subject,
			Audience:  jwt.ClaimStrings{h.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		CustomerID:  req.CustomerID,
		DisplayName: req.DisplayName,
		Channel:     req.Channel,
		Scopes:      req.Scopes,
	}

	token, err := signingCtx.Sign(claims)
	if err != nil {
		slog.Error("Failed to sign session token",
			slog.String("requestId", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		problem.Internal(r.URL.Path).Write(w)
		return
	}

	slog.Info("Session token issued",
		slog.String("requestId", middleware.RequestIDFromContext(r.Context())),
		slog.Group("session",
			slog.String("sub", req.Subject),
			slog.String("customerId", req.CustomerID),
			slog.String("jti", claims.ID),
		),
	)

	respondJSON(w, http.StatusCreated, TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
	})
}

// Session returns the caller's verified claims. The response is sealed
// to the caller's bearer token by the encryption middleware.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		problem.Unauthorized(r.URL.Path).Write(w)
		return
	}
	respondJSON(w, http.StatusOK, claims)
}

// authorizeService checks the shared service credential with a
// constant-time comparison. An unset credential disables the endpoint.
func (h *Handler) authorizeService(r *http.Request) bool {
	if h.cfg.ServiceToken == "" {
		return false
	}
	presented := r.Header.Get("Authorization")
	expected := "Bearer " + h.cfg.ServiceToken
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		slog.Error("Failed to encode response", "error", err)
	}
}
