package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"cooksmart/internal/app"
	"cooksmart/internal/resilience"
	"cooksmart/internal/session"
	"cooksmart/internal/supa"
	"cooksmart/pkg/domain"
)

type fakeStore struct {
	keys []string
}

func (f *fakeStore) Put(_ context.Context, _, key string, r io.Reader, _ int64, _ string) error {
	_, _ = io.Copy(io.Discard, r)
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeStore) PublicURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://cdn.example/" + key, nil
}

func (f *fakeStore) Delete(_ context.Context, _, key string) error {
	return nil
}

type testEnv struct {
	server   *Server
	handler  http.Handler
	platform *http.ServeMux
	store    *fakeStore
}

func newTestEnv(t *testing.T, authLimit int) *testEnv {
	t.Helper()

	platform := http.NewServeMux()
	platformSrv := httptest.NewServer(platform)
	t.Cleanup(platformSrv.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	a := app.New(app.Config{
		Client: supa.New(supa.Config{BaseURL: platformSrv.URL, APIKey: "anon-key"}),
		Resilience: resilience.Config{
			Timeout:    500 * time.Millisecond,
			MaxRetries: 1,
			BaseDelay:  time.Millisecond,
			MaxDelay:   time.Millisecond,
		},
	})
	monitor := session.NewMonitor(session.MonitorConfig{Interval: time.Hour})
	store := &fakeStore{}
	srv, err := New(Config{
		App:                    a,
		Verifier:               session.NewVerifier(a),
		Monitor:                monitor,
		Store:                  store,
		Redis:                  rdb,
		AuthRateLimitPerMinute: authLimit,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testEnv{server: srv, handler: srv.Router(), platform: platform, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func testToken(t *testing.T, subject string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("platform"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (e *testEnv) stubIdentity(userID string, role domain.UserRole) {
	e.platform.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.User{ID: userID, Email: userID + "@example.com"})
	})
	e.platform.HandleFunc("/rest/v1/profiles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.Profile{ID: userID, Role: role})
	})
}

func TestHealthzReportsSessionState(t *testing.T) {
	env := newTestEnv(t, 0)
	rec := env.do(t, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" || body["session"] != "uninitialized" {
		t.Fatalf("unexpected body: %v", body)
	}
	if got := rec.Header().Get("X-Request-Id"); got == "" {
		t.Fatal("expected request id header")
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatal("expected security headers")
	}
}

func TestListRecipesEnvelope(t *testing.T) {
	env := newTestEnv(t, 0)
	env.platform.HandleFunc("/rest/v1/recipes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []domain.Recipe{{ID: "r1", Title: "Баница", Slug: "banitsa"}})
	})

	rec := env.do(t, http.MethodGet, "/api/recipes?difficulty=Easy", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Items []domain.Recipe `json:"items"`
		Count int             `json:"count"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Count != 1 || len(body.Items) != 1 || body.Items[0].Slug != "banitsa" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestCreateRecipeRequiresAuth(t *testing.T) {
	env := newTestEnv(t, 0)
	rec := env.do(t, http.MethodPost, "/api/recipes", "", `{"title":"x"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateRecipeRequiresAdminRole(t *testing.T) {
	env := newTestEnv(t, 0)
	env.stubIdentity("u1", domain.RoleUser)

	rec := env.do(t, http.MethodPost, "/api/recipes", testToken(t, "u1"), `{"title":"x"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateRecipeAsAdmin(t *testing.T) {
	env := newTestEnv(t, 0)
	env.stubIdentity("u1", domain.RoleAdmin)
	env.platform.HandleFunc("/rest/v1/recipes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, []domain.Recipe{{ID: "r1", Title: "Мусака", Slug: "musaka"}})
	})

	body := `{"title":"Мусака","servings":4,"prep_time":60,"difficulty":"Medium"}`
	rec := env.do(t, http.MethodPost, "/api/recipes", testToken(t, "u1"), body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRecipeBySlugNotFound(t *testing.T) {
	env := newTestEnv(t, 0)
	env.platform.HandleFunc("/rest/v1/rpc/get_recipe_with_ingredients", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotAcceptable, map[string]string{"code": supa.CodeNoRows, "message": "no rows"})
	})

	rec := env.do(t, http.MethodGet, "/api/recipes/nyama", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] == "" {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}
}

func TestPantrySearchEmptySelection(t *testing.T) {
	env := newTestEnv(t, 0)
	var platformCalls int
	env.platform.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		platformCalls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	rec := env.do(t, http.MethodPost, "/api/pantry/search", "", `{"ingredient_ids":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if platformCalls != 0 {
		t.Fatalf("expected no platform calls, got %d", platformCalls)
	}
	var body struct {
		Items []app.RecipeMatch `json:"items"`
		Count int               `json:"count"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Count != 0 || body.Items == nil {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t, 2)
	env.platform.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, supa.Session{AccessToken: "at", User: domain.User{ID: "u1"}})
	})

	body := `{"email":"ana@example.com","password":"secret123"}`
	for i := 0; i < 2; i++ {
		if rec := env.do(t, http.MethodPost, "/api/auth/login", "", body); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}
	rec := env.do(t, http.MethodPost, "/api/auth/login", "", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After header, got %q", got)
	}
}

func TestWakeRateLimited(t *testing.T) {
	env := newTestEnv(t, 2)

	for i := 0; i < 2; i++ {
		if rec := env.do(t, http.MethodPost, "/api/session/wake", "", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}
	rec := env.do(t, http.MethodPost, "/api/session/wake", "", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestUploadRejectsUnknownExtension(t *testing.T) {
	env := newTestEnv(t, 0)
	env.stubIdentity("u1", domain.RoleUser)

	body := &strings.Builder{}
	body.WriteString("--boundary\r\n")
	body.WriteString("Content-Disposition: form-data; name=\"file\"; filename=\"evil.exe\"\r\n")
	body.WriteString("Content-Type: application/octet-stream\r\n\r\n")
	body.WriteString("payload\r\n--boundary--\r\n")

	req := httptest.NewRequest(http.MethodPost, "/api/uploads/recipe-image", strings.NewReader(body.String()))
	req.Header.Set("Authorization", "Bearer "+testToken(t, "u1"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=boundary")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(env.store.keys) != 0 {
		t.Fatalf("expected nothing stored, got %v", env.store.keys)
	}
}

func TestUploadStoresImageAndReturnsURL(t *testing.T) {
	env := newTestEnv(t, 0)
	env.stubIdentity("u1", domain.RoleUser)

	body := &strings.Builder{}
	body.WriteString("--boundary\r\n")
	body.WriteString("Content-Disposition: form-data; name=\"file\"; filename=\"banitsa.jpg\"\r\n")
	body.WriteString("Content-Type: image/jpeg\r\n\r\n")
	body.WriteString("jpegdata\r\n--boundary--\r\n")

	req := httptest.NewRequest(http.MethodPost, "/api/uploads/recipe-image", strings.NewReader(body.String()))
	req.Header.Set("Authorization", "Bearer "+testToken(t, "u1"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=boundary")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(env.store.keys) != 1 || !strings.HasPrefix(env.store.keys[0], "u1/") || !strings.HasSuffix(env.store.keys[0], ".jpg") {
		t.Fatalf("unexpected stored keys: %v", env.store.keys)
	}
	var resp map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if !strings.HasPrefix(resp["url"], "https://cdn.example/") {
		t.Fatalf("unexpected url: %q", resp["url"])
	}
}

func TestSaveToggleRoundTrip(t *testing.T) {
	env := newTestEnv(t, 0)
	env.stubIdentity("u1", domain.RoleUser)

	saved := false
	env.platform.HandleFunc("/rest/v1/saved_recipes", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if saved {
				writeJSON(w, http.StatusOK, map[string]string{"id": "s1"})
				return
			}
			writeJSON(w, http.StatusNotAcceptable, map[string]string{"code": supa.CodeNoRows, "message": "no rows"})
		case http.MethodPost:
			saved = true
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			saved = false
			w.WriteHeader(http.StatusNoContent)
		}
	})

	token := testToken(t, "u1")
	rec := env.do(t, http.MethodPut, "/api/recipes/r1/save", token, "")
	if rec.Code != http.StatusOK || !saved {
		t.Fatalf("save failed: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodDelete, "/api/recipes/r1/save", token, "")
	if rec.Code != http.StatusOK || saved {
		t.Fatalf("unsave failed: %d %s", rec.Code, rec.Body.String())
	}
}
