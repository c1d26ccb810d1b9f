package collect

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/signal-bridge/internal/platform/config"
)

func newTestSearchBackend(t *testing.T, handler http.HandlerFunc) (*SearchBackend, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := zerolog.Nop()

	cfg := &config.Config{
		NewsAPIBaseURL: srv.URL,
		NewsAPIKey:     "test-key",
		NewsAPITimeout: 5 * time.Second,
	}

	return NewSearchBackend(cfg, &logger), srv
}

func TestSearchMapsArticles(t *testing.T) {
	var gotQuery, gotPageSize, gotKey string

	backend, _ := newTestSearchBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/everything" {
			t.Errorf("path = %q, want /everything", r.URL.Path)
		}

		q := r.URL.Query()
		gotQuery = q.Get("q")
		gotPageSize = q.Get("pageSize")
		gotKey = q.Get("apiKey")

		if q.Get("language") != "en" || q.Get("sortBy") != "relevancy" {
			t.Errorf("unexpected search params: %v", q)
		}

		if q.Get("from") == "" || q.Get("to") == "" {
			t.Error("missing date window params")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"totalResults": 3,
			"articles": [
				{
					"source": {"id": "reuters", "name": "NewsAPI - Reuters"},
					"title": "Chipmaker announces partnership",
					"description": "A new alliance in datacenter silicon.",
					"url": "https://example.com/chip",
					"publishedAt": "2026-08-20T10:30:00Z",
					"content": "full text"
				},
				{
					"source": {"id": "", "name": "Wire Service"},
					"title": "No description here",
					"description": "",
					"url": "https://example.com/wire",
					"publishedAt": "not-a-date",
					"content": "content stands in for description"
				},
				{
					"source": {"id": "", "name": "Broken"},
					"title": "Missing URL is skipped",
					"description": "d",
					"url": "",
					"publishedAt": "",
					"content": ""
				}
			]
		}`))
	})

	docs, err := backend.Search(context.Background(), "chip partnership", 7*24*time.Hour, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotQuery != "chip partnership" || gotPageSize != "10" || gotKey != "test-key" {
		t.Errorf("request params = (%q, %q, %q)", gotQuery, gotPageSize, gotKey)
	}

	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}

	first := docs[0]
	if first.Source != "Reuters" {
		t.Errorf("vendor prefix not stripped: %q", first.Source)
	}

	if first.Body != "A new alliance in datacenter silicon." {
		t.Errorf("body = %q", first.Body)
	}

	if first.PublishedAt == nil || !first.PublishedAt.Equal(time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("publishedAt = %v", first.PublishedAt)
	}

	if first.BackendMeta["query"] != "chip partnership" {
		t.Errorf("query meta = %q", first.BackendMeta["query"])
	}

	second := docs[1]
	if second.Body != "content stands in for description" {
		t.Errorf("empty description did not fall back to content: %q", second.Body)
	}

	if second.PublishedAt != nil {
		t.Errorf("unparseable publishedAt should stay nil, got %v", second.PublishedAt)
	}
}

func TestSearchZeroBudgetSkipsRequest(t *testing.T) {
	backend, _ := newTestSearchBackend(t, func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected for a zero budget")
	})

	docs, err := backend.Search(context.Background(), "anything", time.Hour, 0)
	if err != nil || docs != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", docs, err)
	}
}

func TestSearchCapsResults(t *testing.T) {
	backend, _ := newTestSearchBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ok", "totalResults": 3, "articles": [
			{"title": "a", "url": "https://example.com/1"},
			{"title": "b", "url": "https://example.com/2"},
			{"title": "c", "url": "https://example.com/3"}
		]}`))
	})

	docs, err := backend.Search(context.Background(), "q", time.Hour, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
}

func TestSearchPageSizeClamped(t *testing.T) {
	backend, _ := newTestSearchBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("pageSize"); got != "100" {
			t.Errorf("pageSize = %q, want 100", got)
		}

		_, _ = w.Write([]byte(`{"status": "ok", "articles": []}`))
	})

	if _, err := backend.Search(context.Background(), "q", time.Hour, 500); err != nil {
		t.Fatalf("Search: %v", err)
	}
}

func TestSearchRateLimited(t *testing.T) {
	backend, _ := newTestSearchBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := backend.Search(context.Background(), "q", time.Hour, 5)
	if !errors.Is(err, errSearchRateLimited) {
		t.Fatalf("err = %v, want rate limited", err)
	}
}

func TestSearchErrorPayload(t *testing.T) {
	backend, _ := newTestSearchBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status": "error", "code": "apiKeyInvalid", "message": "Your API key is invalid"}`))
	})

	_, err := backend.Search(context.Background(), "q", time.Hour, 5)
	if !errors.Is(err, errSearchAPIError) {
		t.Fatalf("err = %v, want api error", err)
	}
}

func TestSearchUnexpectedStatus(t *testing.T) {
	backend, _ := newTestSearchBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := backend.Search(context.Background(), "q", time.Hour, 5)
	if !errors.Is(err, errSearchStatus) {
		t.Fatalf("err = %v, want status error", err)
	}
}
