// Package collect gathers candidate documents for each intelligence
// requirement from three backends: a keyword news API driven by
// model-generated queries, validated feeds, and a regulatory-filing index.
// Backend failures are counted and logged, never fatal.
package collect

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
	"github.com/lueurxax/signal-bridge/internal/core/llm"
	"github.com/lueurxax/signal-bridge/internal/platform/config"
	"github.com/lueurxax/signal-bridge/internal/platform/observability"
)

const (
	searchQueryLimit = 3
	searchPause      = 100 * time.Millisecond

	statusOK    = "ok"
	statusError = "error"

	logKeyPIR    = "pir"
	logKeyURL    = "url"
	logKeyCount  = "count"
	logKeyQuery  = "query"
	logKeyIssuer = "issuer"
)

// Collector assembles one PIR's candidate documents: keyword-API hits for
// the PIR's generated queries, topped up from the campaign's shared feed and
// filing pool.
type Collector struct {
	search *SearchBackend
	client llm.Client
	cfg    *config.Config
	logger *zerolog.Logger
}

// New builds a collector. A nil search backend disables the keyword API for
// every PIR (no key configured).
func New(client llm.Client, search *SearchBackend, cfg *config.Config, logger *zerolog.Logger) *Collector {
	return &Collector{
		search: search,
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Input carries everything one PIR's collection needs. Pool holds the
// campaign's feed and filing documents, shared read-only across PIRs so every
// requirement sees the same candidates.
type Input struct {
	PIR      domain.PIR
	Strategy *domain.Strategy
	Params   domain.CollectionParams
	Window   time.Duration
	Pool     []domain.Document
}

// Result reports what was collected for one PIR and how.
type Result struct {
	Documents     []domain.Document
	Queries       []string
	QueryFallback bool
	Errors        int
}

// Collect runs query generation and the search calls, merges in the shared
// pool, dedupes by URL with the first occurrence winning, and truncates to
// the per-PIR document budget.
func (c *Collector) Collect(ctx context.Context, in Input) Result {
	logger := c.logger.With().Str(logKeyPIR, in.PIR.PIRID).Logger()

	queries, fallback := c.generateQueries(ctx, in.Strategy, in.PIR)
	res := Result{Queries: queries, QueryFallback: fallback}

	half := in.Params.MaxDocsPerPIR / 2

	searchDocs, searchErrs := c.runSearches(ctx, &logger, queries, in.Window, half)
	res.Errors += searchErrs

	observability.DocumentsCollected.WithLabelValues(domain.BackendSearch).Add(float64(len(searchDocs)))

	pooled := in.Pool
	if len(pooled) > half {
		pooled = pooled[:half]
	}

	merged := make([]domain.Document, 0, len(searchDocs)+len(pooled))
	merged = append(merged, searchDocs...)
	merged = append(merged, pooled...)

	docs := dedupeByURL(merged)
	if len(docs) > in.Params.MaxDocsPerPIR {
		docs = docs[:in.Params.MaxDocsPerPIR]
	}

	res.Documents = docs

	logger.Info().
		Int("search_docs", len(searchDocs)).
		Int("pooled_docs", len(pooled)).
		Int(logKeyCount, len(docs)).
		Msg("PIR collection complete")

	return res
}

// runSearches spends the search half of the budget, one call per query,
// pausing briefly between calls. The budget divides across every generated
// query even though only the first three run.
func (c *Collector) runSearches(ctx context.Context, logger *zerolog.Logger, queries []string, window time.Duration, budget int) ([]domain.Document, int) {
	if c.search == nil || budget <= 0 || len(queries) == 0 {
		return nil, 0
	}

	perQuery := budget / len(queries)

	if len(queries) > searchQueryLimit {
		queries = queries[:searchQueryLimit]
	}

	var docs []domain.Document

	errs := 0

	for i, query := range queries {
		if ctx.Err() != nil {
			break
		}

		found, err := c.search.Search(ctx, query, window, perQuery)
		if err != nil {
			errs++

			observability.CollectionErrors.WithLabelValues(domain.BackendSearch).Inc()
			logger.Warn().Err(err).Str(logKeyQuery, query).Msg("Search failed")
		} else {
			docs = append(docs, found...)
		}

		if i < len(queries)-1 {
			select {
			case <-ctx.Done():
				return docs, errs
			case <-time.After(searchPause):
			}
		}
	}

	return docs, errs
}

// dedupeByURL keeps the first document seen for each URL, preserving order.
// Documents without a URL are dropped.
func dedupeByURL(docs []domain.Document) []domain.Document {
	seen := make(map[string]bool, len(docs))
	out := make([]domain.Document, 0, len(docs))

	for _, doc := range docs {
		if doc.URL == "" || seen[doc.URL] {
			continue
		}

		seen[doc.URL] = true

		out = append(out, doc)
	}

	return out
}

// complete runs one LLM request and records its latency and outcome.
func (c *Collector) complete(ctx context.Context, req llm.Request) (string, error) {
	start := time.Now()

	raw, err := c.client.CompleteJSON(ctx, req)

	observability.LLMRequestDuration.WithLabelValues(string(req.Task)).Observe(time.Since(start).Seconds())

	if err != nil {
		observability.LLMRequests.WithLabelValues(string(req.Task), statusError).Inc()

		return "", err
	}

	observability.LLMRequests.WithLabelValues(string(req.Task), statusOK).Inc()

	return raw, nil
}
