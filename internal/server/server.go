// Package server exposes the HTTP API: auth pass-through, recipe and
// ingredient browsing, pantry matching, saved recipes, profile and image
// uploads, all backed by the hosted platform through the app services.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"cooksmart/internal/app"
	"cooksmart/internal/ratelimit"
	"cooksmart/internal/resilience"
	"cooksmart/internal/session"
	"cooksmart/internal/supa"
	"cooksmart/internal/util"
	"cooksmart/pkg/storage"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                     *app.App
	Verifier                *session.Verifier
	Monitor                 *session.Monitor
	Store                   storage.ObjectStore
	Redis                   *redis.Client
	AuthRateLimitPerMinute  int
	WriteRateLimitPerMinute int
	MaxUploadBytes          int64
	AllowedExtensions       []string
	TrustedProxies          *util.TrustedProxies
	CORSAllowedOrigins      []string
}

// Server exposes HTTP endpoints for the recipe API.
type Server struct {
	app               *app.App
	verifier          *session.Verifier
	monitor           *session.Monitor
	store             storage.ObjectStore
	mux               *http.ServeMux
	authLimiter       *ratelimit.FixedWindowLimiter
	writeLimiter      *ratelimit.FixedWindowLimiter
	maxUploadBytes    int64
	allowedExtensions map[string]struct{}
	trustedProxies    *util.TrustedProxies
	corsOrigins       []string
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	authLimit := cfg.AuthRateLimitPerMinute
	if authLimit <= 0 {
		authLimit = 10
	}
	writeLimit := cfg.WriteRateLimitPerMinute
	if writeLimit <= 0 {
		writeLimit = 30
	}
	authLimiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, "cooksmart:ratelimit:auth", authLimit, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("init auth limiter: %w", err)
	}
	writeLimiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, "cooksmart:ratelimit:write", writeLimit, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("init write limiter: %w", err)
	}
	s := &Server{
		app:               cfg.App,
		verifier:          cfg.Verifier,
		monitor:           cfg.Monitor,
		store:             cfg.Store,
		mux:               http.NewServeMux(),
		authLimiter:       authLimiter,
		writeLimiter:      writeLimiter,
		maxUploadBytes:    normalizeMaxBytes(cfg.MaxUploadBytes),
		allowedExtensions: normalizeExtensions(cfg.AllowedExtensions),
		trustedProxies:    cfg.TrustedProxies,
		corsOrigins:       cfg.CORSAllowedOrigins,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	var h http.Handler = s.mux
	h = c.Handler(h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog(h)
	h = util.WithRequestID(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/api/auth/oauth/google", s.handleOAuthGoogle)
	s.mux.Handle("/api/users/me", s.authenticated(s.handleMe))
	s.mux.HandleFunc("/api/session/wake", s.handleWake)

	// recipes & pantry
	s.mux.HandleFunc("/api/recipes", s.handleRecipes)
	s.mux.HandleFunc("/api/recipes/", s.handleRecipeSubroutes)
	s.mux.HandleFunc("/api/pantry/search", s.handlePantrySearch)

	// ingredients
	s.mux.HandleFunc("/api/ingredients", s.handleIngredients)
	s.mux.Handle("/api/ingredients/", s.adminOnly(s.handleIngredientByID))

	// saved recipes & uploads
	s.mux.Handle("/api/saved-recipes", s.authenticated(s.handleSavedRecipes))
	s.mux.Handle("/api/uploads/recipe-image", s.authenticated(s.handleUploadRecipeImage))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"session": s.monitor.State().String(),
	})
}

// authHandler receives the caller's bearer token and resolved identity.
type authHandler func(http.ResponseWriter, *http.Request, string, session.Identity)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, identity, ok := s.authorize(w, r)
		if !ok {
			return
		}
		next(w, r, token, identity)
	})
}

// adminOnly gates a route on the advisory admin role. Row-level security
// on the platform remains the authoritative check.
func (s *Server) adminOnly(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, identity, ok := s.authorize(w, r)
		if !ok {
			return
		}
		if !identity.IsAdmin() {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, token, identity)
	})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (string, session.Identity, bool) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", session.Identity{}, false
	}
	identity, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		s.writeServiceError(w, r, err)
		return "", session.Identity{}, false
	}
	return token, identity, true
}

// maybeIdentity resolves the identity when a bearer token is present, and
// falls back to anonymous otherwise. Public routes use it so logged-in
// callers get personalized responses.
func (s *Server) maybeIdentity(r *http.Request) (string, session.Identity) {
	token, ok := bearerToken(r)
	if !ok {
		return "", session.Identity{}
	}
	identity, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		return "", session.Identity{}
	}
	return token, identity
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

// writeServiceError maps service-layer failures onto HTTP statuses. The
// envelope is always {"error": message}; validation details never leak
// past the boundary in any other shape.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := util.LoggerFromContext(r.Context())
	var partial *app.PartialWriteError
	var apiErr *supa.APIError
	switch {
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrNoToken),
		errors.Is(err, session.ErrTokenExpired),
		errors.Is(err, session.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.As(err, &partial):
		logger.Error("partial recipe write", "recipe_id", partial.RecipeID, "error", partial.Err)
		writeError(w, http.StatusBadGateway, "recipe could not be fully created; cleanup scheduled")
	case errors.Is(err, resilience.ErrStaleConnection):
		logger.Error("platform unreachable", "error", err)
		writeError(w, http.StatusGatewayTimeout, "upstream timed out")
	case errors.As(err, &apiErr):
		writeError(w, apiErr.Status, apiErr.Message)
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusBadGateway, "upstream unavailable")
	}
}

func decodeBody(r *http.Request, out any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(out)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 10 * 1024 * 1024
	}
	return value
}

func normalizeExtensions(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = []string{".jpg", ".jpeg", ".png", ".webp"}
	}
	out := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}

func (s *Server) isExtensionAllowed(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	_, ok := s.allowedExtensions[ext]
	return ok
}
