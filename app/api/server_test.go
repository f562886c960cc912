package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/storysift/storysift/app/database"
	"github.com/storysift/storysift/app/sources"
)

type stubProvider struct {
	snapshot []sources.Source
}

func (s *stubProvider) Snapshot() []sources.Source {
	return s.snapshot
}

func (s *stubProvider) Get(id string) (sources.Source, bool) {
	for _, src := range s.snapshot {
		if src.ID == id {
			return src, true
		}
	}
	return sources.Source{}, false
}

type stubPinger struct {
	err error
}

func (p *stubPinger) Ping() error {
	return p.err
}

type stubArticles struct {
	count int
}

func (s *stubArticles) UpsertArticle(article database.Article) (string, error) { return "", nil }
func (s *stubArticles) AddArticleSource(ref database.ArticleSource) error     { return nil }
func (s *stubArticles) MarkRepresentative(articleID string) error              { return nil }
func (s *stubArticles) GetArticle(articleID string) (*database.Article, error) { return nil, nil }
func (s *stubArticles) GetArticleSources(articleID string) ([]database.ArticleSource, error) {
	return nil, nil
}
func (s *stubArticles) GetArticleCount() (int, error) { return s.count, nil }

func testSnapshot() []sources.Source {
	lastSuccess := time.Now().Add(-10 * time.Minute)

	return []sources.Source{
		{
			Config: sources.Config{
				ID:              "outlet-a",
				Name:            "Outlet A",
				Kind:            sources.KindFeed,
				URL:             "https://a.example.com/feed.xml",
				IntervalSeconds: 900,
				Weight:          1,
				Active:          true,
			},
			LastSuccessAt: &lastSuccess,
		},
		{
			Config: sources.Config{
				ID:              "outlet-b",
				Name:            "Outlet B",
				Kind:            sources.KindPage,
				URL:             "https://b.example.com/news",
				IntervalSeconds: 1800,
				Weight:          2,
				Active:          false,
			},
		},
	}
}

func testServer(t *testing.T, apiKey string, pinger *stubPinger, reload func() error) *gin.Engine {
	t.Helper()

	if pinger == nil {
		pinger = &stubPinger{}
	}
	if reload == nil {
		reload = func() error { return nil }
	}

	handler := NewHandler(&stubProvider{snapshot: testSnapshot()}, &stubArticles{count: 42}, pinger, reload)

	return NewServer(handler, apiKey, "test")
}

func doRequest(t *testing.T, engine *gin.Engine, method, path string, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var body map[string]interface{}
	if len(w.Body.Bytes()) > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode response body: %v", err)
		}
	}

	return w, body
}

func TestGetHealth(t *testing.T) {
	engine := testServer(t, "", nil, nil)

	w, body := doRequest(t, engine, "GET", "/health", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body["database"] != "ok" {
		t.Errorf("database = %v, want ok", body["database"])
	}
	if body["articles"] != float64(42) {
		t.Errorf("articles = %v, want 42", body["articles"])
	}
	if body["sources"] != float64(2) {
		t.Errorf("sources = %v, want 2", body["sources"])
	}
	if body["active_sources"] != float64(1) {
		t.Errorf("active_sources = %v, want 1", body["active_sources"])
	}
}

func TestGetHealthDatabaseDown(t *testing.T) {
	engine := testServer(t, "", &stubPinger{err: errors.New("connection refused")}, nil)

	w, body := doRequest(t, engine, "GET", "/health", nil)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if body["database"] != "unreachable" {
		t.Errorf("database = %v, want unreachable", body["database"])
	}
}

func TestListSourcesRequiresAuth(t *testing.T) {
	engine := testServer(t, "secret", nil, nil)

	w, _ := doRequest(t, engine, "GET", "/api/sources", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status without key = %d, want 401", w.Code)
	}

	w, _ = doRequest(t, engine, "GET", "/api/sources", map[string]string{"X-API-Key": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status with wrong key = %d, want 401", w.Code)
	}

	w, _ = doRequest(t, engine, "GET", "/api/sources", map[string]string{"X-API-Key": "secret"})
	if w.Code != http.StatusOK {
		t.Errorf("status with key header = %d, want 200", w.Code)
	}

	w, _ = doRequest(t, engine, "GET", "/api/sources", map[string]string{"Authorization": "Bearer secret"})
	if w.Code != http.StatusOK {
		t.Errorf("status with bearer token = %d, want 200", w.Code)
	}
}

func TestListSources(t *testing.T) {
	engine := testServer(t, "secret", nil, nil)

	w, body := doRequest(t, engine, "GET", "/api/sources", map[string]string{"X-API-Key": "secret"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body["total"] != float64(2) {
		t.Fatalf("total = %v, want 2", body["total"])
	}

	list, ok := body["sources"].([]interface{})
	if !ok || len(list) != 2 {
		t.Fatalf("sources = %v, want 2 entries", body["sources"])
	}

	first, _ := list[0].(map[string]interface{})
	if first["id"] != "outlet-a" {
		t.Errorf("first source id = %v, want outlet-a", first["id"])
	}
	if first["due"] != true {
		t.Errorf("outlet-a due = %v, want true", first["due"])
	}
	if _, ok := first["last_error"]; ok {
		t.Error("healthy source should not render last_error")
	}
}

func TestGetSource(t *testing.T) {
	engine := testServer(t, "secret", nil, nil)

	w, body := doRequest(t, engine, "GET", "/api/sources/outlet-b", map[string]string{"X-API-Key": "secret"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body["kind"] != "page" {
		t.Errorf("kind = %v, want page", body["kind"])
	}
	if body["active"] != false {
		t.Errorf("active = %v, want false", body["active"])
	}
}

func TestGetSourceNotFound(t *testing.T) {
	engine := testServer(t, "secret", nil, nil)

	w, _ := doRequest(t, engine, "GET", "/api/sources/nope", map[string]string{"X-API-Key": "secret"})

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestReloadSources(t *testing.T) {
	reloads := 0
	engine := testServer(t, "secret", nil, func() error {
		reloads++
		return nil
	})

	w, body := doRequest(t, engine, "POST", "/api/sources/reload", map[string]string{"X-API-Key": "secret"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if reloads != 1 {
		t.Errorf("reload calls = %d, want 1", reloads)
	}
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
}

func TestReloadSourcesFailure(t *testing.T) {
	engine := testServer(t, "secret", nil, func() error {
		return errors.New("sources file defines no sources")
	})

	w, body := doRequest(t, engine, "POST", "/api/sources/reload", map[string]string{"X-API-Key": "secret"})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	details, _ := body["details"].(string)
	if details == "" {
		t.Error("expected failure details in the response")
	}
}

func TestAPIDisabledWithoutKey(t *testing.T) {
	engine := testServer(t, "", nil, nil)

	w, _ := doRequest(t, engine, "GET", "/api/sources", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when the API is disabled", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	engine := testServer(t, "", nil, nil)

	w, _ := doRequest(t, engine, "GET", "/metrics", nil)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
