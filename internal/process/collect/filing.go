package collect

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
	"github.com/lueurxax/signal-bridge/internal/platform/config"
)

const (
	cikDirectoryPath = "/files/company_tickers.json"
	filingListFmt    = "%s/cgi-bin/browse-edgar?action=getcompany&CIK=%s&dateb=%s&count=%d&output=atom"
	filingDateFormat = "20060102"
	filingListCount  = 100
	maxFilings       = 50
	filingBodyMaxLen = 5000
	filingTimeout    = 30 * time.Second

	formTypeOther    = "OTHER"
	formDescDefault  = "Other Filing"
	metaFormType     = "form_type"
	metaCIK          = "cik"
	metaIssuer       = "issuer"
	filingSourceName = "SEC EDGAR - "
)

// formTypes is matched in order against the upper-cased entry title; the
// first containment wins.
var formTypes = []string{
	"10-K",
	"10-Q",
	"8-K",
	"DEF 14A",
	"13F-HR",
	"SC 13G",
	"SC 13D",
	"424B",
	"S-1",
}

var formDescriptions = map[string]string{
	"10-K":    "Annual Report",
	"10-Q":    "Quarterly Report",
	"8-K":     "Current Report (Material Events)",
	"DEF 14A": "Proxy Statement",
	"13F-HR":  "Institutional Holdings",
	"SC 13G":  "Beneficial Ownership Report",
	"SC 13D":  "Beneficial Ownership Report (>5%)",
	"424B":    "Prospectus",
	"S-1":     "Registration Statement",
}

// FilingBackend pulls regulatory filings from the EDGAR full-text index. The
// ticker directory is fetched once and cached for the life of the process.
type FilingBackend struct {
	baseURL     string
	userAgent   string
	fetchBodies bool
	client      *http.Client
	logger      *zerolog.Logger

	mu        sync.Mutex
	directory []cikEntry
}

type cikEntry struct {
	CIK    int    `json:"cik_str"` //nolint:tagliatelle // EDGAR field name
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

func NewFilingBackend(cfg *config.Config, logger *zerolog.Logger) *FilingBackend {
	timeout := cfg.FilingTimeout
	if timeout <= 0 {
		timeout = filingTimeout
	}

	return &FilingBackend{
		baseURL:     strings.TrimSuffix(cfg.FilingBaseURL, "/"),
		userAgent:   cfg.FilingUserAgent,
		fetchBodies: cfg.FilingFetchBodies,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Filings resolves each issuer to its registry identifier and pulls that
// issuer's filings from the lookback window, newest first, capped at maxDocs.
// The second return value counts issuers that could not be resolved or
// fetched.
func (b *FilingBackend) Filings(ctx context.Context, issuers []string, window time.Duration, maxDocs int) ([]domain.Document, int) {
	if maxDocs <= 0 || len(issuers) == 0 {
		return nil, 0
	}

	var docs []domain.Document

	failed := 0

	for _, issuer := range issuers {
		if ctx.Err() != nil {
			break
		}

		cik, company, err := b.lookupCIK(ctx, issuer)
		if err != nil {
			failed++

			b.logger.Warn().Err(err).Str(logKeyIssuer, issuer).Msg("Issuer lookup failed")

			continue
		}

		filings, err := b.companyFilings(ctx, cik, company, window)
		if err != nil {
			failed++

			b.logger.Warn().Err(err).Str(logKeyIssuer, issuer).Msg("Filing fetch failed")

			continue
		}

		docs = append(docs, filings...)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].PublishedAt.After(*docs[j].PublishedAt)
	})

	if limit := min(maxDocs, maxFilings); len(docs) > limit {
		docs = docs[:limit]
	}

	if b.fetchBodies {
		b.enrichBodies(ctx, docs)
	}

	return docs, failed
}

// lookupCIK matches an issuer ticker or name against the registry directory
// and returns the zero-padded identifier plus the registered company name.
func (b *FilingBackend) lookupCIK(ctx context.Context, issuer string) (string, string, error) {
	directory, err := b.loadDirectory(ctx)
	if err != nil {
		return "", "", err
	}

	upper := strings.ToUpper(strings.TrimSpace(issuer))
	if upper == "" {
		return "", "", fmt.Errorf("empty issuer")
	}

	for _, entry := range directory {
		if upper == strings.ToUpper(entry.Ticker) || strings.Contains(strings.ToUpper(entry.Title), upper) {
			return fmt.Sprintf("%010d", entry.CIK), coalesce(entry.Title, issuer), nil
		}
	}

	return "", "", fmt.Errorf("no registry match for %q", issuer)
}

// loadDirectory fetches the ticker directory on first use. A failed load is
// retried on the next call.
func (b *FilingBackend) loadDirectory(ctx context.Context) ([]cikEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.directory != nil {
		return b.directory, nil
	}

	body, err := b.get(ctx, b.baseURL+cikDirectoryPath)
	if err != nil {
		return nil, fmt.Errorf("fetch ticker directory: %w", err)
	}

	// The directory is an object keyed by row index, not an array.
	var rows map[string]cikEntry
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("parse ticker directory: %w", err)
	}

	directory := make([]cikEntry, 0, len(rows))
	for _, entry := range rows {
		directory = append(directory, entry)
	}

	// Exact-ticker matches must not depend on map iteration order.
	sort.Slice(directory, func(i, j int) bool { return directory[i].CIK < directory[j].CIK })

	b.directory = directory

	return directory, nil
}

type filingFeed struct {
	Entries []filingEntry `xml:"entry"`
}

type filingEntry struct {
	Title   string     `xml:"title"`
	Link    filingLink `xml:"link"`
	Updated string     `xml:"updated"`
	Summary string     `xml:"summary"`
}

type filingLink struct {
	Href string `xml:"href,attr"`
}

func (b *FilingBackend) companyFilings(ctx context.Context, cik, company string, window time.Duration) ([]domain.Document, error) {
	listURL := fmt.Sprintf(filingListFmt, b.baseURL, cik, time.Now().UTC().Format(filingDateFormat), filingListCount)

	body, err := b.get(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("fetch filing list: %w", err)
	}

	var feed filingFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse filing list: %w", err)
	}

	cutoff := time.Now().UTC().Add(-window)
	docs := make([]domain.Document, 0, len(feed.Entries))

	for _, entry := range feed.Entries {
		if entry.Title == "" || entry.Link.Href == "" {
			continue
		}

		filed, err := dateparse.ParseAny(entry.Updated)
		if err != nil {
			continue
		}

		filed = filed.UTC()
		if filed.Before(cutoff) {
			continue
		}

		docs = append(docs, filingDoc(entry, filed, cik, company))
	}

	return docs, nil
}

func filingDoc(entry filingEntry, filed time.Time, cik, company string) domain.Document {
	form := formType(entry.Title)

	desc, ok := formDescriptions[form]
	if !ok {
		desc = formDescDefault
	}

	return domain.Document{
		Title:       company + " - " + form + ": " + entry.Title,
		Body:        normalizeWhitespace(desc + " - " + entry.Summary),
		URL:         entry.Link.Href,
		Source:      filingSourceName + company,
		PublishedAt: &filed,
		Backend:     domain.BackendFiling,
		BackendMeta: map[string]string{
			metaFormType: form,
			metaCIK:      cik,
			metaIssuer:   company,
		},
	}
}

func formType(title string) string {
	upper := strings.ToUpper(title)

	for _, form := range formTypes {
		if strings.Contains(upper, form) {
			return form
		}
	}

	return formTypeOther
}

// enrichBodies replaces each document's summary body with readable text from
// the primary filing document. Failures keep the summary.
func (b *FilingBackend) enrichBodies(ctx context.Context, docs []domain.Document) {
	for i := range docs {
		if ctx.Err() != nil {
			return
		}

		body, err := b.filingBody(ctx, docs[i].URL)
		if err != nil {
			b.logger.Debug().Err(err).Str(logKeyURL, docs[i].URL).Msg("Filing body fetch failed")

			continue
		}

		if body != "" {
			docs[i].Body = body
		}
	}
}

// filingBody fetches the filing index page, follows the first .htm or .txt
// document link, and extracts its readable text.
func (b *FilingBackend) filingBody(ctx context.Context, pageURL string) (string, error) {
	page, err := b.get(ctx, pageURL)
	if err != nil {
		return "", err
	}

	docURL, err := primaryDocumentURL(page, b.baseURL)
	if err != nil {
		return "", err
	}

	raw, err := b.get(ctx, docURL)
	if err != nil {
		return "", err
	}

	return truncateText(readableText(docURL, raw), filingBodyMaxLen), nil
}

// primaryDocumentURL finds the first anchor on a filing index page pointing
// at an .htm or .txt document.
func primaryDocumentURL(page []byte, baseURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page)))
	if err != nil {
		return "", fmt.Errorf("parse filing page: %w", err)
	}

	var href string

	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		candidate, _ := sel.Attr("href")

		lower := strings.ToLower(candidate)
		if strings.HasSuffix(lower, ".htm") || strings.HasSuffix(lower, ".txt") {
			href = candidate

			return false
		}

		return true
	})

	if href == "" {
		return "", fmt.Errorf("no document link on filing page")
	}

	if u, err := url.Parse(href); err == nil && u.IsAbs() {
		return href, nil
	}

	return baseURL + href, nil
}

func (b *FilingBackend) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set(headerUserAgent, b.userAgent)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
