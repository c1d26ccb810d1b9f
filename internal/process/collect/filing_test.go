package collect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
	"github.com/lueurxax/signal-bridge/internal/platform/config"
)

const testTickerDirectory = `{
	"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."},
	"1": {"cik_str": 789019, "ticker": "MSFT", "title": "Microsoft Corp"}
}`

func newTestFilingBackend(t *testing.T, mux http.Handler, fetchBodies bool) (*FilingBackend, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	logger := zerolog.Nop()

	cfg := &config.Config{
		FilingBaseURL:     srv.URL,
		FilingUserAgent:   "test-agent",
		FilingTimeout:     5 * time.Second,
		FilingFetchBodies: fetchBodies,
	}

	return NewFilingBackend(cfg, &logger), srv
}

func atomEntry(title, href, updated, summary string) string {
	var b strings.Builder

	b.WriteString("<entry><title>")
	b.WriteString(title)
	b.WriteString("</title>")

	if href != "" {
		b.WriteString(`<link rel="alternate" type="text/html" href="` + href + `"/>`)
	}

	b.WriteString("<updated>")
	b.WriteString(updated)
	b.WriteString("</updated><summary>")
	b.WriteString(summary)
	b.WriteString("</summary></entry>")

	return b.String()
}

func atomFeed(entries ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"><title>EDGAR filings</title>` + strings.Join(entries, "") + `</feed>`
}

func TestFilingsByTicker(t *testing.T) {
	var (
		mu        sync.Mutex
		listQuery url.Values
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/files/company_tickers.json", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("user agent = %q", got)
		}

		_, _ = w.Write([]byte(testTickerDirectory))
	})
	mux.HandleFunc("/cgi-bin/browse-edgar", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		listQuery = r.URL.Query()
		mu.Unlock()

		base := "http://" + r.Host

		_, _ = w.Write([]byte(atomFeed(
			atomEntry("10-Q - Quarterly report (Q3)", base+"/Archives/10q-index.htm",
				time.Now().UTC().Add(-24*time.Hour).Format(time.RFC3339), "Quarterly results"),
			atomEntry("8-K - Current report", base+"/Archives/8k-index.htm",
				time.Now().UTC().Add(-48*time.Hour).Format(time.RFC3339), "Material agreement"),
			atomEntry("10-K - Annual report", base+"/Archives/10k-index.htm",
				time.Now().UTC().Add(-90*24*time.Hour).Format(time.RFC3339), "Outside the window"),
			atomEntry("No link on this entry", "",
				time.Now().UTC().Format(time.RFC3339), "Skipped"),
			atomEntry("Bad date", base+"/Archives/bad-index.htm", "not a date", "Skipped"),
		)))
	})

	backend, srv := newTestFilingBackend(t, mux, false)

	docs, failed := backend.Filings(context.Background(), []string{"aapl"}, 30*24*time.Hour, 10)

	if failed != 0 {
		t.Fatalf("failed = %d, want 0", failed)
	}

	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2: %+v", len(docs), docs)
	}

	if listQuery.Get("CIK") != "0000320193" {
		t.Errorf("CIK param = %q, want the zero-padded identifier", listQuery.Get("CIK"))
	}

	if listQuery.Get("output") != "atom" || listQuery.Get("count") != "100" || len(listQuery.Get("dateb")) != 8 {
		t.Errorf("unexpected list params: %v", listQuery)
	}

	newest := docs[0]
	if newest.Title != "Apple Inc. - 10-Q: 10-Q - Quarterly report (Q3)" {
		t.Errorf("title = %q", newest.Title)
	}

	if newest.Body != "Quarterly Report - Quarterly results" {
		t.Errorf("body = %q", newest.Body)
	}

	if newest.Source != "SEC EDGAR - Apple Inc." {
		t.Errorf("source = %q", newest.Source)
	}

	if newest.URL != srv.URL+"/Archives/10q-index.htm" {
		t.Errorf("url = %q", newest.URL)
	}

	if newest.Backend != domain.BackendFiling {
		t.Errorf("backend = %q", newest.Backend)
	}

	if newest.BackendMeta[metaFormType] != "10-Q" || newest.BackendMeta[metaCIK] != "0000320193" || newest.BackendMeta[metaIssuer] != "Apple Inc." {
		t.Errorf("meta = %v", newest.BackendMeta)
	}

	if docs[1].BackendMeta[metaFormType] != "8-K" {
		t.Errorf("docs not sorted newest first: %+v", docs)
	}

	if docs[1].Body != "Current Report (Material Events) - Material agreement" {
		t.Errorf("8-K body = %q", docs[1].Body)
	}
}

func TestFilingsMatchesCompanyName(t *testing.T) {
	var (
		mu  sync.Mutex
		cik string
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/files/company_tickers.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testTickerDirectory))
	})
	mux.HandleFunc("/cgi-bin/browse-edgar", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		cik = r.URL.Query().Get("CIK")
		mu.Unlock()

		_, _ = w.Write([]byte(atomFeed()))
	})

	backend, _ := newTestFilingBackend(t, mux, false)

	docs, failed := backend.Filings(context.Background(), []string{"microsoft"}, time.Hour, 10)

	if failed != 0 || len(docs) != 0 {
		t.Fatalf("got %d docs (failed=%d), want an empty list", len(docs), failed)
	}

	if cik != "0000789019" {
		t.Errorf("company-name match requested CIK %q, want 0000789019", cik)
	}
}

func TestFilingsUnknownIssuerCounted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/company_tickers.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testTickerDirectory))
	})
	mux.HandleFunc("/cgi-bin/browse-edgar", func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("no filing list expected for an unknown issuer")
	})

	backend, _ := newTestFilingBackend(t, mux, false)

	docs, failed := backend.Filings(context.Background(), []string{"ZZZZ"}, time.Hour, 10)

	if failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}

	if len(docs) != 0 {
		t.Fatalf("got %d docs, want 0", len(docs))
	}
}

func TestFilingsCapsNewestFirst(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/company_tickers.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testTickerDirectory))
	})
	mux.HandleFunc("/cgi-bin/browse-edgar", func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host

		_, _ = w.Write([]byte(atomFeed(
			atomEntry("8-K - second", base+"/b.htm", time.Now().UTC().Add(-2*time.Hour).Format(time.RFC3339), "s"),
			atomEntry("8-K - newest", base+"/a.htm", time.Now().UTC().Add(-1*time.Hour).Format(time.RFC3339), "s"),
			atomEntry("8-K - oldest", base+"/c.htm", time.Now().UTC().Add(-3*time.Hour).Format(time.RFC3339), "s"),
		)))
	})

	backend, _ := newTestFilingBackend(t, mux, false)

	docs, _ := backend.Filings(context.Background(), []string{"AAPL"}, 24*time.Hour, 2)

	if len(docs) != 2 {
		t.Fatalf("got %d docs, want the cap of 2", len(docs))
	}

	if !strings.Contains(docs[0].Title, "newest") || !strings.Contains(docs[1].Title, "second") {
		t.Errorf("cap did not keep the newest filings: %q, %q", docs[0].Title, docs[1].Title)
	}
}

func TestFilingsFetchBodies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/company_tickers.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testTickerDirectory))
	})
	mux.HandleFunc("/cgi-bin/browse-edgar", func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host

		_, _ = w.Write([]byte(atomFeed(
			atomEntry("8-K - Current report", base+"/Archives/idx.htm",
				time.Now().UTC().Format(time.RFC3339), "Summary only"),
		)))
	})
	mux.HandleFunc("/Archives/idx.htm", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><table>
			<tr><td><a href="/logo.png">logo</a></td></tr>
			<tr><td><a href="/Archives/d8k.htm">d8k.htm</a></td></tr>
		</table></body></html>`))
	})
	mux.HandleFunc("/Archives/d8k.htm", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>Entry into a material definitive agreement with a supplier.</p></body></html>`))
	})

	backend, _ := newTestFilingBackend(t, mux, true)

	docs, failed := backend.Filings(context.Background(), []string{"AAPL"}, 24*time.Hour, 10)

	if failed != 0 || len(docs) != 1 {
		t.Fatalf("got %d docs (failed=%d), want 1", len(docs), failed)
	}

	if !strings.Contains(docs[0].Body, "material definitive agreement") {
		t.Errorf("body not enriched from the primary document: %q", docs[0].Body)
	}

	if strings.Contains(docs[0].Body, "<") {
		t.Errorf("body kept markup: %q", docs[0].Body)
	}
}

func TestFormType(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"10-K - Annual report", "10-K"},
		{"10-Q/A - Amended quarterly report", "10-Q"},
		{"8-K - Current report", "8-K"},
		{"DEF 14A - Proxy statement", "DEF 14A"},
		{"SC 13D/A - Ownership amendment", "SC 13D"},
		{"424B2 - Prospectus supplement", "424B"},
		{"4 - Statement of changes in beneficial ownership", "OTHER"},
		{"", "OTHER"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := formType(tt.title); got != tt.want {
				t.Errorf("formType(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestPrimaryDocumentURL(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		want    string
		wantErr bool
	}{
		{
			name: "relative link joined with base",
			page: `<html><body><a href="/Archives/doc.htm">doc</a></body></html>`,
			want: "https://edgar.test/Archives/doc.htm",
		},
		{
			name: "absolute link kept",
			page: `<html><body><a href="https://files.test/doc.txt">doc</a></body></html>`,
			want: "https://files.test/doc.txt",
		},
		{
			name: "skips non-document links",
			page: `<html><body><a href="/a.pdf">pdf</a><a href="/b.txt">txt</a></body></html>`,
			want: "https://edgar.test/b.txt",
		},
		{
			name:    "no document link",
			page:    `<html><body><a href="/logo.png">logo</a></body></html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := primaryDocumentURL([]byte(tt.page), "https://edgar.test")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}

				return
			}

			if err != nil {
				t.Fatalf("primaryDocumentURL: %v", err)
			}

			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
