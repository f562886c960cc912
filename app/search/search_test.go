package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientUpsert(t *testing.T) {
	var gotMethod, gotPath string
	var gotDoc map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotDoc); err != nil {
			t.Fatalf("failed to decode document: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(server.URL, "articles", 5*time.Second)

	err := client.Upsert(context.Background(), Document{
		URLHash:  "abc123",
		URL:      "https://example.com/articles/transit",
		Title:    "Council approves transit overhaul",
		Language: "en",
		SourceID: "wire",
		Sources:  []string{"wire"},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if gotPath != "/articles/_doc/abc123" {
		t.Errorf("path = %q, want /articles/_doc/abc123", gotPath)
	}
	if gotDoc["title"] != "Council approves transit overhaul" {
		t.Errorf("document title = %v", gotDoc["title"])
	}
	if gotDoc["source_id"] != "wire" {
		t.Errorf("document source_id = %v", gotDoc["source_id"])
	}
	if _, present := gotDoc["sentiment"]; present {
		t.Error("expected sentiment to be omitted when nil")
	}
}

func TestClientUpsertSameHashSamePath(t *testing.T) {
	var paths []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
	}))
	defer server.Close()

	client := NewClient(server.URL, "articles", 5*time.Second)
	doc := Document{URLHash: "abc123", URL: "https://example.com/a"}

	for i := 0; i < 2; i++ {
		if err := client.Upsert(context.Background(), doc); err != nil {
			t.Fatalf("Upsert() #%d error = %v", i, err)
		}
	}

	if len(paths) != 2 || paths[0] != paths[1] {
		t.Errorf("paths = %v, want the same document path twice", paths)
	}
}

func TestClientUpsertServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "articles", 5*time.Second)

	err := client.Upsert(context.Background(), Document{URLHash: "abc123"})
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestClientUpsertMissingHash(t *testing.T) {
	client := NewClient("http://localhost:9200", "articles", time.Second)

	err := client.Upsert(context.Background(), Document{URL: "https://example.com/a"})
	if err == nil {
		t.Fatal("expected error for document without url hash")
	}
}

func TestNoopUpsert(t *testing.T) {
	if err := (Noop{}).Upsert(context.Background(), Document{URLHash: "abc123"}); err != nil {
		t.Errorf("Upsert() error = %v, want nil", err)
	}
}
