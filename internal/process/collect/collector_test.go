package collect

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
)

func testParams(maxDocs int) domain.CollectionParams {
	return domain.CollectionParams{
		MaxDocsPerPIR:    maxDocs,
		Threshold:        0.5,
		Timeout:          time.Minute,
		EvalBatchSize:    30,
		MaxSignalsPerPIR: 25,
	}
}

func poolDoc(title, url string) domain.Document {
	return domain.Document{
		Title:   title,
		URL:     url,
		Source:  "Pool Feed",
		Backend: domain.BackendFeed,
	}
}

func TestCollectMergesSearchAndPool(t *testing.T) {
	stub := &stubLLM{response: `{"queries": ["alpha", "beta"]}`}

	backend, _ := newTestSearchBackend(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		_, _ = fmt.Fprintf(w, `{"status": "ok", "articles": [{"title": "hit for %s", "url": "https://example.com/%s"}]}`, q, q)
	})

	c := newTestCollector(stub, backend)

	pool := []domain.Document{
		poolDoc("stale duplicate", "https://example.com/alpha"),
		poolDoc("pool one", "https://example.com/pool-1"),
		poolDoc("pool two", "https://example.com/pool-2"),
	}

	res := c.Collect(context.Background(), Input{
		PIR:      testPIR(),
		Strategy: testStrategy(),
		Params:   testParams(8),
		Window:   7 * 24 * time.Hour,
		Pool:     pool,
	})

	if res.QueryFallback {
		t.Fatal("unexpected query fallback")
	}

	if res.Errors != 0 {
		t.Fatalf("errors = %d, want 0", res.Errors)
	}

	if len(res.Documents) != 4 {
		t.Fatalf("got %d documents, want 4: %+v", len(res.Documents), res.Documents)
	}

	// The search hit for "alpha" came first, so it wins the shared URL.
	byURL := make(map[string]domain.Document, len(res.Documents))
	for _, doc := range res.Documents {
		byURL[doc.URL] = doc
	}

	alpha, ok := byURL["https://example.com/alpha"]
	if !ok || alpha.Title != "hit for alpha" || alpha.Backend != domain.BackendSearch {
		t.Errorf("first occurrence did not win the duplicate URL: %+v", alpha)
	}

	if _, ok := byURL["https://example.com/pool-2"]; !ok {
		t.Error("pool document missing from the merge")
	}
}

func TestCollectPoolCappedAtHalfBudget(t *testing.T) {
	stub := &stubLLM{response: `{"queries": ["unused"]}`}
	c := newTestCollector(stub, nil)

	pool := []domain.Document{
		poolDoc("one", "https://example.com/1"),
		poolDoc("two", "https://example.com/2"),
		poolDoc("three", "https://example.com/3"),
		poolDoc("four", "https://example.com/4"),
		poolDoc("five", "https://example.com/5"),
	}

	res := c.Collect(context.Background(), Input{
		PIR:      testPIR(),
		Strategy: testStrategy(),
		Params:   testParams(4),
		Window:   time.Hour,
		Pool:     pool,
	})

	if len(res.Documents) != 2 {
		t.Fatalf("got %d documents, want the pool capped at 2", len(res.Documents))
	}

	if res.Documents[0].Title != "one" || res.Documents[1].Title != "two" {
		t.Errorf("pool order not preserved: %+v", res.Documents)
	}
}

func TestCollectBudgetDividesAcrossAllGeneratedQueries(t *testing.T) {
	stub := &stubLLM{response: `{"queries": ["q1", "q2", "q3", "q4", "q5"]}`}

	var (
		mu       sync.Mutex
		queries  []string
		pageSize []string
	)

	backend, _ := newTestSearchBackend(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("q"))
		pageSize = append(pageSize, r.URL.Query().Get("pageSize"))
		mu.Unlock()

		_, _ = w.Write([]byte(`{"status": "ok", "articles": []}`))
	})

	c := newTestCollector(stub, backend)

	res := c.Collect(context.Background(), Input{
		PIR:      testPIR(),
		Strategy: testStrategy(),
		Params:   testParams(30),
		Window:   time.Hour,
	})

	if res.Errors != 0 {
		t.Fatalf("errors = %d, want 0", res.Errors)
	}

	// Half of 30 split across all five generated queries, but only the
	// first three queries actually run.
	if len(queries) != 3 {
		t.Fatalf("search calls = %d, want 3", len(queries))
	}

	for i, want := range []string{"q1", "q2", "q3"} {
		if queries[i] != want {
			t.Errorf("query %d = %q, want %q", i, queries[i], want)
		}

		if pageSize[i] != "3" {
			t.Errorf("pageSize %d = %q, want 3", i, pageSize[i])
		}
	}
}

func TestCollectCountsSearchFailures(t *testing.T) {
	stub := &stubLLM{response: `{"queries": ["q1", "q2"]}`}

	backend, _ := newTestSearchBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("backend exploded"))
	})

	c := newTestCollector(stub, backend)

	res := c.Collect(context.Background(), Input{
		PIR:      testPIR(),
		Strategy: testStrategy(),
		Params:   testParams(10),
		Window:   time.Hour,
		Pool:     []domain.Document{poolDoc("survivor", "https://example.com/pool")},
	})

	if res.Errors != 2 {
		t.Fatalf("errors = %d, want 2", res.Errors)
	}

	if len(res.Documents) != 1 || res.Documents[0].Title != "survivor" {
		t.Fatalf("pool documents should survive search failures: %+v", res.Documents)
	}
}

func TestDedupeByURL(t *testing.T) {
	docs := []domain.Document{
		{Title: "first", URL: "https://example.com/a"},
		{Title: "no url"},
		{Title: "second", URL: "https://example.com/b"},
		{Title: "dup of first", URL: "https://example.com/a"},
	}

	got := dedupeByURL(docs)

	if len(got) != 2 {
		t.Fatalf("got %d docs, want 2", len(got))
	}

	if got[0].Title != "first" || got[1].Title != "second" {
		t.Errorf("dedupe changed order or winner: %+v", got)
	}
}
