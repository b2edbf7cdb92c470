package server

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"cooksmart/internal/app"
	"cooksmart/internal/session"
)

// auth handlers

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.authLimiter, "too many signup attempts") {
		return
	}
	var req app.SignUpInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess, err := s.app.SignUp(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.authLimiter, "too many login attempts") {
		return
	}
	var req app.Credentials
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess, err := s.app.SignIn(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.monitor.SetSession(sess.AccessToken, session.Identity{User: sess.User})
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.authLimiter, "too many refresh attempts") {
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess, err := s.app.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.monitor.SetSession(sess.AccessToken, session.Identity{User: sess.User})
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.SignOut(r.Context(), token); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.monitor.ClearSession()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOAuthGoogle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	redirectTo := r.URL.Query().Get("redirect_to")
	writeJSON(w, http.StatusOK, map[string]string{
		"url": s.app.OAuthURL("google", redirectTo),
	})
}

func (s *Server) handleWake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	// The probe can trigger a client reinit, so it gets the same budget as
	// the auth endpoints.
	if !s.allowRate(w, r, s.authLimiter, "too many wake probes") {
		return
	}
	if err := s.monitor.Wake(r.Context()); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session": s.monitor.State().String()})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, token string, identity session.Identity) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, identity)
	case http.MethodPatch:
		var req app.ProfileInput
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		profile, err := s.app.UpdateProfile(r.Context(), token, identity.User.ID, req)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	default:
		methodNotAllowed(w)
	}
}

// recipe handlers

func (s *Server) handleRecipes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		token, _ := s.maybeIdentity(r)
		recipes, err := s.app.ListRecipes(r.Context(), token, parseRecipeFilters(r))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": recipes,
			"count": len(recipes),
		})
	case http.MethodPost:
		s.adminOnly(s.handleCreateRecipe).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateRecipe(w http.ResponseWriter, r *http.Request, token string, identity session.Identity) {
	if !s.allowRate(w, r, s.writeLimiter, "too many write requests") {
		return
	}
	var req app.RecipeInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	recipe, err := s.app.CreateRecipe(r.Context(), token, identity.User.ID, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, recipe)
}

// handleRecipeSubroutes dispatches /api/recipes/{slug}, /api/recipes/{id}
// and /api/recipes/{id}/save.
func (s *Server) handleRecipeSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/recipes/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if tail, found := strings.CutSuffix(rest, "/save"); found && !strings.Contains(tail, "/") {
		s.authenticated(func(w http.ResponseWriter, r *http.Request, token string, identity session.Identity) {
			s.handleSaveToggle(w, r, token, identity, tail)
		}).ServeHTTP(w, r)
		return
	}
	if strings.Contains(rest, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleRecipeBySlug(w, r, rest)
	case http.MethodPatch, http.MethodDelete:
		s.adminOnly(func(w http.ResponseWriter, r *http.Request, token string, _ session.Identity) {
			s.handleRecipeWrite(w, r, token, rest)
		}).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleRecipeBySlug(w http.ResponseWriter, r *http.Request, recipeSlug string) {
	token, identity := s.maybeIdentity(r)
	detail, err := s.app.GetRecipeBySlug(r.Context(), token, identity.User.ID, recipeSlug)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleRecipeWrite(w http.ResponseWriter, r *http.Request, token, recipeID string) {
	if !s.allowRate(w, r, s.writeLimiter, "too many write requests") {
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var req app.RecipeInput
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		recipe, err := s.app.UpdateRecipe(r.Context(), token, recipeID, req)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, recipe)
	case http.MethodDelete:
		if err := s.app.DeleteRecipe(r.Context(), token, recipeID); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleSaveToggle(w http.ResponseWriter, r *http.Request, token string, identity session.Identity, recipeID string) {
	switch r.Method {
	case http.MethodPut:
		if err := s.app.SaveRecipe(r.Context(), token, identity.User.ID, recipeID); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
	case http.MethodDelete:
		if err := s.app.UnsaveRecipe(r.Context(), token, identity.User.ID, recipeID); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"saved": false})
	case http.MethodPost:
		saved, err := s.app.ToggleSave(r.Context(), token, identity.User.ID, recipeID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"saved": saved})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handlePantrySearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		IngredientIDs []string `json:"ingredient_ids"`
	}
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token, _ := s.maybeIdentity(r)
	matches, err := s.app.SearchByIngredients(r.Context(), token, req.IngredientIDs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": matches,
		"count": len(matches),
	})
}

// ingredient handlers

func (s *Server) handleIngredients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		token, _ := s.maybeIdentity(r)
		query := r.URL.Query().Get("q")
		var err error
		var ingredients any
		if query != "" {
			ingredients, err = s.app.SearchIngredients(r.Context(), token, query)
		} else {
			ingredients, err = s.app.ListIngredients(r.Context(), token)
		}
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": ingredients})
	case http.MethodPost:
		s.adminOnly(s.handleCreateIngredient).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateIngredient(w http.ResponseWriter, r *http.Request, token string, _ session.Identity) {
	if !s.allowRate(w, r, s.writeLimiter, "too many write requests") {
		return
	}
	var req app.IngredientInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ingredient, err := s.app.CreateIngredient(r.Context(), token, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ingredient)
}

func (s *Server) handleIngredientByID(w http.ResponseWriter, r *http.Request, token string, _ session.Identity) {
	id := strings.TrimPrefix(r.URL.Path, "/api/ingredients/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		ingredient, err := s.app.GetIngredient(r.Context(), token, id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ingredient)
	case http.MethodPatch:
		var req app.IngredientInput
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		ingredient, err := s.app.UpdateIngredient(r.Context(), token, id, req)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ingredient)
	case http.MethodDelete:
		if err := s.app.DeleteIngredient(r.Context(), token, id); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

// saved recipes & uploads

func (s *Server) handleSavedRecipes(w http.ResponseWriter, r *http.Request, token string, identity session.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	listings, err := s.app.ListSaved(r.Context(), token, identity.User.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": listings,
		"count": len(listings),
	})
}

func (s *Server) handleUploadRecipeImage(w http.ResponseWriter, r *http.Request, token string, identity session.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.writeLimiter, "too many uploads") {
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	if !s.isExtensionAllowed(header.Filename) {
		writeError(w, http.StatusBadRequest, "unsupported file type")
		return
	}

	key := identity.User.ID + "/" + uuid.NewString() + strings.ToLower(filepath.Ext(header.Filename))
	contentType := header.Header.Get("Content-Type")
	if err := s.store.Put(r.Context(), token, key, file, header.Size, contentType); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	url, err := s.store.PublicURL(r.Context(), key, 24*time.Hour)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

func parseRecipeFilters(r *http.Request) app.RecipeFilters {
	q := r.URL.Query()
	f := app.RecipeFilters{
		Search:     strings.TrimSpace(q.Get("search")),
		Difficulty: strings.TrimSpace(q.Get("difficulty")),
		PrepTime:   strings.TrimSpace(q.Get("prep_time")),
		AuthorID:   strings.TrimSpace(q.Get("author_id")),
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		f.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		f.Offset = v
	}
	return f
}
