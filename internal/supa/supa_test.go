package supa

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

type capturedRequest struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   string
}

func newCaptureServer(t *testing.T, status int, response string) (*Client, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.query = r.URL.Query()
		captured.header = r.Header.Clone()
		captured.body = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	client := New(Config{BaseURL: srv.URL, APIKey: "anon-key", Timeout: 2 * time.Second})
	return client, captured
}

func TestQueryFilterEncoding(t *testing.T) {
	client, captured := newCaptureServer(t, http.StatusOK, `[]`)

	var out []map[string]any
	err := client.From("recipes").
		Select("*").
		Eq("difficulty", "Easy").
		Ilike("title", "%боб%").
		Lte("prep_time", 30).
		Order("created_at", false).
		Limit(10).
		Offset(20).
		Get(context.Background(), "", &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if captured.path != "/rest/v1/recipes" {
		t.Fatalf("path = %q", captured.path)
	}
	q := captured.query
	for key, want := range map[string]string{
		"select":     "*",
		"difficulty": "eq.Easy",
		"title":      "ilike.%боб%",
		"prep_time":  "lte.30",
		"order":      "created_at.desc",
		"limit":      "10",
		"offset":     "20",
	} {
		if got := q.Get(key); got != want {
			t.Errorf("param %s = %q, want %q", key, got, want)
		}
	}
}

func TestQueryOrEncoding(t *testing.T) {
	client, captured := newCaptureServer(t, http.StatusOK, `[]`)

	var out []map[string]any
	err := client.From("ingredients").
		Or("name_bg.ilike.%cheese%,name_en.ilike.%cheese%").
		Get(context.Background(), "", &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := captured.query.Get("or"); got != "(name_bg.ilike.%cheese%,name_en.ilike.%cheese%)" {
		t.Fatalf("or param = %q", got)
	}
}

func TestAnonymousCallsBearTheAPIKey(t *testing.T) {
	client, captured := newCaptureServer(t, http.StatusOK, `[]`)

	var out []map[string]any
	if err := client.From("recipes").Get(context.Background(), "", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := captured.header.Get("apikey"); got != "anon-key" {
		t.Fatalf("apikey header = %q", got)
	}
	if got := captured.header.Get("Authorization"); got != "Bearer anon-key" {
		t.Fatalf("Authorization = %q, want anon key fallback", got)
	}
}

func TestUserTokenOverridesBearer(t *testing.T) {
	client, captured := newCaptureServer(t, http.StatusOK, `[]`)

	var out []map[string]any
	if err := client.From("recipes").Get(context.Background(), "user-token", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := captured.header.Get("Authorization"); got != "Bearer user-token" {
		t.Fatalf("Authorization = %q", got)
	}
	if got := captured.header.Get("apikey"); got != "anon-key" {
		t.Fatalf("apikey header = %q", got)
	}
}

func TestSingleSetsObjectAccept(t *testing.T) {
	client, captured := newCaptureServer(t, http.StatusOK, `{"id":"r1"}`)

	var out map[string]any
	if err := client.From("recipes").Eq("id", "r1").Single().Get(context.Background(), "", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := captured.header.Get("Accept"); got != "application/vnd.pgrst.object+json" {
		t.Fatalf("Accept = %q", got)
	}
}

func TestInsertRequestsRepresentation(t *testing.T) {
	client, captured := newCaptureServer(t, http.StatusCreated, `[{"id":"r1"}]`)

	var out []map[string]any
	err := client.From("recipes").Insert(context.Background(), "tok", map[string]string{"title": "Мусака"}, &out)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if captured.method != http.MethodPost {
		t.Fatalf("method = %s", captured.method)
	}
	if got := captured.header.Get("Prefer"); got != "return=representation" {
		t.Fatalf("Prefer = %q", got)
	}
	if !strings.Contains(captured.body, "Мусака") {
		t.Fatalf("body = %q", captured.body)
	}
	if len(out) != 1 || out[0]["id"] != "r1" {
		t.Fatalf("out = %v", out)
	}
}

func TestUpdateAndDeleteRequireFilters(t *testing.T) {
	client, _ := newCaptureServer(t, http.StatusOK, `[]`)

	if err := client.From("recipes").Update(context.Background(), "tok", map[string]string{"title": "x"}, nil); err == nil {
		t.Fatal("unfiltered update should be rejected locally")
	}
	if err := client.From("recipes").Delete(context.Background(), "tok"); err == nil {
		t.Fatal("unfiltered delete should be rejected locally")
	}
}

func TestRpcPostsArgs(t *testing.T) {
	client, captured := newCaptureServer(t, http.StatusOK, `[{"id":"r1"}]`)

	var out []map[string]any
	err := client.Rpc(context.Background(), "tok", "search_recipes_by_ingredients", map[string]any{"ingredient_ids": []string{"i1"}}, &out)
	if err != nil {
		t.Fatalf("rpc: %v", err)
	}
	if captured.path != "/rest/v1/rpc/search_recipes_by_ingredients" {
		t.Fatalf("path = %q", captured.path)
	}
	if !strings.Contains(captured.body, "ingredient_ids") {
		t.Fatalf("body = %q", captured.body)
	}
}

func TestErrorEnvelopeDecoding(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		response string
		wantMsg  string
		wantCode string
	}{
		{"message field", 400, `{"message":"bad filter","code":"22P02"}`, "bad filter", "22P02"},
		{"msg field", 401, `{"msg":"invalid token"}`, "invalid token", ""},
		{"error field", 400, `{"error":"invalid_grant"}`, "invalid_grant", ""},
		{"empty body", 502, ``, "502 Bad Gateway", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newCaptureServer(t, tc.status, tc.response)

			var out []map[string]any
			err := client.From("recipes").Get(context.Background(), "", &out)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.Status != tc.status {
				t.Errorf("status = %d, want %d", apiErr.Status, tc.status)
			}
			if apiErr.Message != tc.wantMsg {
				t.Errorf("message = %q, want %q", apiErr.Message, tc.wantMsg)
			}
			if apiErr.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", apiErr.Code, tc.wantCode)
			}
		})
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(&APIError{Status: 406, Code: CodeNoRows}) {
		t.Fatal("no-rows code should be recognized")
	}
	if IsNoRows(&APIError{Status: 500, Code: "XX000"}) {
		t.Fatal("other codes are real errors")
	}
	if IsNoRows(errors.New("network down")) {
		t.Fatal("non-API errors are never no-rows")
	}
}

func TestSignInWithPassword(t *testing.T) {
	client, captured := newCaptureServer(t, http.StatusOK, `{"access_token":"at","refresh_token":"rt","user":{"id":"u1","email":"a@b.bg"}}`)

	sess, err := client.SignInWithPassword(context.Background(), "a@b.bg", "secret123")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if captured.path != "/auth/v1/token" {
		t.Fatalf("path = %q", captured.path)
	}
	if got := captured.query.Get("grant_type"); got != "password" {
		t.Fatalf("grant_type = %q", got)
	}
	if sess.AccessToken != "at" || sess.User.ID != "u1" {
		t.Fatalf("session = %+v", sess)
	}
}

func TestRefreshSession(t *testing.T) {
	client, captured := newCaptureServer(t, http.StatusOK, `{"access_token":"at2","refresh_token":"rt2"}`)

	sess, err := client.RefreshSession(context.Background(), "rt1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := captured.query.Get("grant_type"); got != "refresh_token" {
		t.Fatalf("grant_type = %q", got)
	}
	if !strings.Contains(captured.body, "rt1") {
		t.Fatalf("body = %q", captured.body)
	}
	if sess.AccessToken != "at2" {
		t.Fatalf("access token = %q", sess.AccessToken)
	}
}

func TestSignUpCarriesDisplayNameMetadata(t *testing.T) {
	client, captured := newCaptureServer(t, http.StatusOK, `{"access_token":"at","user":{"id":"u1"}}`)

	if _, err := client.SignUp(context.Background(), "a@b.bg", "secret123", "Иван"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if captured.path != "/auth/v1/signup" {
		t.Fatalf("path = %q", captured.path)
	}
	if !strings.Contains(captured.body, `"display_name":"Иван"`) {
		t.Fatalf("body = %q", captured.body)
	}
}

func TestOAuthURL(t *testing.T) {
	client := New(Config{BaseURL: "https://proj.example.com", APIKey: "k"})
	got := client.OAuthURL("google", "https://app.example.com/cb")
	if !strings.HasPrefix(got, "https://proj.example.com/auth/v1/authorize?") {
		t.Fatalf("url = %q", got)
	}
	if !strings.Contains(got, "provider=google") {
		t.Fatalf("url = %q", got)
	}
}

func TestReinitReturnsFreshHandle(t *testing.T) {
	client := New(Config{BaseURL: "https://proj.example.com", APIKey: "k", Timeout: time.Second})
	fresh := client.Reinit()
	if fresh == client {
		t.Fatal("reinit must return a new instance")
	}
	if fresh.httpClient == client.httpClient {
		t.Fatal("reinit must replace the transport handle")
	}
	if fresh.baseURL != client.baseURL || fresh.apiKey != client.apiKey || fresh.timeout != client.timeout {
		t.Fatal("reinit must preserve connection settings")
	}
}

func TestBucketStorePut(t *testing.T) {
	client, captured := newCaptureServer(t, http.StatusOK, `{"Key":"recipe-images/u1/a.jpg"}`)

	store := client.Bucket("recipe-images")
	err := store.Put(context.Background(), "tok", "u1/a.jpg", strings.NewReader("jpegdata"), 8, "image/jpeg")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if captured.path != "/storage/v1/object/recipe-images/u1/a.jpg" {
		t.Fatalf("path = %q", captured.path)
	}
	if got := captured.header.Get("Content-Type"); got != "image/jpeg" {
		t.Fatalf("content type = %q", got)
	}
	if got := captured.header.Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("Authorization = %q", got)
	}
	if captured.body != "jpegdata" {
		t.Fatalf("body = %q", captured.body)
	}
}

func TestBucketStorePublicURL(t *testing.T) {
	client := New(Config{BaseURL: "https://proj.example.com", APIKey: "k"})
	got, err := client.Bucket("recipe-images").PublicURL(context.Background(), "u1/снимка 1.jpg", time.Hour)
	if err != nil {
		t.Fatalf("public url: %v", err)
	}
	want := "https://proj.example.com/storage/v1/object/public/recipe-images/u1/%D1%81%D0%BD%D0%B8%D0%BC%D0%BA%D0%B0%201.jpg"
	if got != want {
		t.Fatalf("url = %q, want %q", got, want)
	}
}

func TestBucketStoreDelete(t *testing.T) {
	client, captured := newCaptureServer(t, http.StatusOK, `{}`)

	if err := client.Bucket("recipe-images").Delete(context.Background(), "tok", "u1/a.jpg"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if captured.method != http.MethodDelete {
		t.Fatalf("method = %s", captured.method)
	}
	if captured.path != "/storage/v1/object/recipe-images/u1/a.jpg" {
		t.Fatalf("path = %q", captured.path)
	}
}
