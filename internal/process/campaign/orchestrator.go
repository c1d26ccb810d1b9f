// Package campaign drives one collection run end to end: load the strategic
// context and its PIRs, plan, discover sources, collect, evaluate, persist
// signals, and analyze across PIRs. The run is a linear state machine. Only
// a missing context, an unusable PIR set, or a planning failure aborts it;
// everything after planning is soft, logged, counted, and carried into the
// summary.
package campaign

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
	"github.com/lueurxax/signal-bridge/internal/core/errkind"
	"github.com/lueurxax/signal-bridge/internal/platform/config"
	"github.com/lueurxax/signal-bridge/internal/platform/observability"
	"github.com/lueurxax/signal-bridge/internal/process/collect"
	"github.com/lueurxax/signal-bridge/internal/process/discovery"
	"github.com/lueurxax/signal-bridge/internal/process/evaluate"
	"github.com/lueurxax/signal-bridge/internal/process/plan"
)

const (
	maxParallelPIRs = 5

	statusCompleted = "completed"
	statusPartial   = "partial"
	statusFailed    = "failed"
	statusProcessed = "processed"
	statusSkipped   = "skipped"

	logKeyCampaign = "campaign"
	logKeyState    = "state"
	logKeySession  = "session"
	logKeyPIR      = "pir"
	logKeyCount    = "count"

	// methodKnown labels sources that came from the sources table rather
	// than this campaign's discovery pass.
	methodKnown = "known"
)

// State names the orchestrator's position in the campaign lifecycle.
type State string

const (
	StateInit          State = "init"
	StateContextLoaded State = "context_loaded"
	StatePlanReady     State = "plan_ready"
	StateSourcesReady  State = "sources_ready"
	StateCollecting    State = "collecting"
	StateEvaluating    State = "evaluating"
	StateSummarized    State = "summarized"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Store is the slice of storage one campaign needs.
type Store interface {
	LatestStrategicContext(ctx context.Context, sessionID string) (*domain.StrategicContext, error)
	PIRsBySession(ctx context.Context, sessionID string) ([]domain.PIR, error)
	FeedSourcesDue(ctx context.Context, minInterval time.Duration) ([]domain.SignalSource, error)
	TouchSource(ctx context.Context, id string) error
	evaluate.SignalStore
}

// Deps carries the constructed pipeline stages. All fields are required
// except Filings, which may be nil when no filing source is configured.
type Deps struct {
	Store     Store
	Planner   *plan.Planner
	Discovery *discovery.Discovery
	Collector *collect.Collector
	Feeds     *collect.FeedBackend
	Filings   *collect.FilingBackend
	Evaluator *evaluate.Evaluator
	Writer    *evaluate.Writer
}

// Orchestrator wires the campaign stages together and owns the run loop.
type Orchestrator struct {
	deps   Deps
	cfg    *config.Config
	logger *zerolog.Logger
}

func New(deps Deps, cfg *config.Config, logger *zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
	}
}

// run is the mutable state of a single campaign execution.
type run struct {
	o        *Orchestrator
	logger   zerolog.Logger
	state    State
	window   time.Duration
	knownIDs []string
	summary  *domain.CampaignSummary
}

// pirWork carries one PIR through the collect and evaluate phases.
type pirWork struct {
	pir        domain.PIR
	collected  collect.Result
	scored     []evaluate.Scored
	evalFailed int
	written    evaluate.WriteResult
}

// Run executes one campaign over the given lookback window. The returned
// summary is always non-nil; the error is non-nil only for hard failures
// (no strategic context, no usable PIRs, planning failure). A blown
// deadline does not fail the run, it marks the summary partial.
func (o *Orchestrator) Run(ctx context.Context, window time.Duration) (*domain.CampaignSummary, error) {
	r := &run{
		o:      o,
		logger: o.logger.With().Str(logKeyCampaign, uuid.NewString()).Logger(),
		state:  StateInit,
		window: window,
		summary: &domain.CampaignSummary{
			StartedAt:   time.Now().UTC(),
			ErrorCounts: make(map[string]int),
		},
	}

	summary, err := r.execute(ctx)

	summary.Duration = time.Since(summary.StartedAt)
	observability.CampaignDuration.Observe(summary.Duration.Seconds())
	observability.CampaignsTotal.WithLabelValues(campaignStatus(summary, err)).Inc()

	r.report(summary, err)

	return summary, err
}

func (r *run) execute(ctx context.Context) (*domain.CampaignSummary, error) {
	sctx, pirs, err := r.loadContext(ctx)
	if err != nil {
		return r.fail(err)
	}

	r.advance(StateContextLoaded)

	strategy, params, err := r.plan(ctx, sctx, pirs)
	if err != nil {
		return r.fail(err)
	}

	r.advance(StatePlanReady)

	sources, issuers := r.discover(ctx, strategy, sctx)

	r.advance(StateSourcesReady)

	// The derived timeout is a hard deadline over pool building, collection,
	// evaluation, and the cross-PIR pass. Work in flight when it fires is
	// canceled and the summary reports what finished.
	cctx, cancel := context.WithTimeout(ctx, params.Timeout)
	defer cancel()

	r.advance(StateCollecting)

	pool := r.buildPool(cctx, sources, issuers, params)
	work := r.collectAll(cctx, pirs, strategy, params, pool)

	r.advance(StateEvaluating)

	r.evaluateAll(cctx, work, pirs, strategy, params)

	r.summary.CrossPIR = r.o.deps.Evaluator.CrossPIR(cctx, strategy, pirs, topScoringDocs(work, params.Threshold))

	r.assemble(work)

	if cctx.Err() != nil {
		r.summary.Partial = true
		r.countErrors(errkind.DeadlineExceeded, 1)
		r.logger.Warn().Dur("timeout", params.Timeout).Msg("Campaign deadline hit, summary is partial")
	}

	r.advance(StateSummarized)
	r.advance(StateDone)

	return r.summary, nil
}

// loadContext resolves the strategic context and its PIRs. PIRs too short
// to mean anything are skipped with a warning; a session with no usable PIR
// left is a hard failure.
func (r *run) loadContext(ctx context.Context) (*domain.StrategicContext, []domain.PIR, error) {
	sctx, err := r.o.deps.Store.LatestStrategicContext(ctx, r.o.cfg.SessionID)
	if err != nil {
		return nil, nil, errkind.Wrap(errkind.Planning, fmt.Errorf("load strategic context: %w", err))
	}

	r.summary.SessionID = sctx.SessionID
	r.logger.Info().Str(logKeySession, sctx.SessionID).Msg("Strategic context loaded")

	pirs, err := r.o.deps.Store.PIRsBySession(ctx, sctx.SessionID)
	if err != nil {
		return nil, nil, errkind.Wrap(errkind.Planning, fmt.Errorf("load PIRs: %w", err))
	}

	valid := make([]domain.PIR, 0, len(pirs))

	for _, pir := range pirs {
		if utf8.RuneCountInString(strings.TrimSpace(pir.Text)) < domain.MinPIRTextLen {
			r.summary.PIRsSkipped++
			observability.PIRsProcessed.WithLabelValues(statusSkipped).Inc()
			r.logger.Warn().Str(logKeyPIR, pir.PIRID).Msg("PIR text too short, skipping")

			continue
		}

		valid = append(valid, pir)
	}

	if len(valid) == 0 {
		return nil, nil, errkind.Wrapf(errkind.Planning, "no usable PIRs for session %s", sctx.SessionID)
	}

	return sctx, valid, nil
}

func (r *run) plan(ctx context.Context, sctx *domain.StrategicContext, pirs []domain.PIR) (*domain.Strategy, domain.CollectionParams, error) {
	strategy, err := r.o.deps.Planner.BuildStrategy(ctx, sctx, pirs)
	if err != nil {
		return nil, domain.CollectionParams{}, err
	}

	params := plan.Derive(strategy, len(pirs))

	r.summary.Strategy = strategy
	r.summary.Params = params

	r.logger.Info().
		Int("max_docs_per_pir", params.MaxDocsPerPIR).
		Float64("threshold", params.Threshold).
		Dur("timeout", params.Timeout).
		Int("eval_batch", params.EvalBatchSize).
		Int("max_signals_per_pir", params.MaxSignalsPerPIR).
		Msg("Collection parameters derived")

	return strategy, params, nil
}

// discover turns the planner's recommendations into validated feeds and a
// filing issuer list, and merges in feed sources already known to the
// database. Every half is soft: a failure leaves the matching backend idle
// and the campaign proceeds.
func (r *run) discover(ctx context.Context, strategy *domain.Strategy, sctx *domain.StrategicContext) ([]domain.ValidatedSource, []string) {
	candidates, err := r.o.deps.Planner.RecommendSources(ctx, strategy, sctx)
	if err != nil {
		r.countErrors(errkind.Discovery, 1)
		r.logger.Warn().Err(err).Msg("Source recommendation failed")
	}

	var (
		sources []domain.ValidatedSource
		failed  []string
	)

	if len(candidates) > 0 {
		sources, failed = r.o.deps.Discovery.Discover(ctx, candidates)
	}

	sources = r.mergeKnownSources(ctx, sources)

	r.summary.SourcesFound = len(sources)
	r.summary.SourcesFailed = failed

	issuers, err := r.o.deps.Planner.IdentifyIssuers(ctx, strategy, sctx)
	if err != nil {
		r.countErrors(errkind.Discovery, 1)
		r.logger.Warn().Err(err).Msg("Issuer identification failed, filing backend idle")
	}

	return sources, issuers
}

// mergeKnownSources appends feed sources from the sources table that this
// campaign's discovery did not already produce. Their IDs are kept so the
// pool build can bump last_checked after polling.
func (r *run) mergeKnownSources(ctx context.Context, sources []domain.ValidatedSource) []domain.ValidatedSource {
	known, err := r.o.deps.Store.FeedSourcesDue(ctx, 0)
	if err != nil {
		r.countErrors(errkind.Discovery, 1)
		r.logger.Warn().Err(err).Msg("Loading known feed sources failed")

		return sources
	}

	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		seen[s.URL] = true
	}

	for _, k := range known {
		if k.URL == "" || seen[k.URL] {
			continue
		}

		seen[k.URL] = true
		r.knownIDs = append(r.knownIDs, k.ID)

		sources = append(sources, domain.ValidatedSource{
			URL:             k.URL,
			Title:           k.Name,
			DiscoveryMethod: methodKnown,
			Confidence:      1,
		})

		observability.SourcesValidated.WithLabelValues(methodKnown).Inc()
	}

	if len(r.knownIDs) > 0 {
		r.logger.Info().Int(logKeyCount, len(r.knownIDs)).Msg("Known feed sources merged")
	}

	return sources
}

// buildPool gathers the campaign-level document pool shared by every PIR:
// validated feeds first, filings filling whatever budget remains. The pool
// is capped at half the per-PIR document budget so search keeps the other
// half.
func (r *run) buildPool(ctx context.Context, sources []domain.ValidatedSource, issuers []string, params domain.CollectionParams) []domain.Document {
	half := params.MaxDocsPerPIR / 2
	if half <= 0 {
		return nil
	}

	pool, feedFailed := r.o.deps.Feeds.Poll(ctx, sources, r.window, half)

	observability.DocumentsCollected.WithLabelValues(domain.BackendFeed).Add(float64(len(pool)))
	observability.CollectionErrors.WithLabelValues(domain.BackendFeed).Add(float64(feedFailed))

	r.touchKnownSources(ctx)

	filingFailed := 0

	if remaining := half - len(pool); remaining > 0 && len(issuers) > 0 && r.o.deps.Filings != nil {
		var filings []domain.Document

		filings, filingFailed = r.o.deps.Filings.Filings(ctx, issuers, r.window, remaining)

		observability.DocumentsCollected.WithLabelValues(domain.BackendFiling).Add(float64(len(filings)))
		observability.CollectionErrors.WithLabelValues(domain.BackendFiling).Add(float64(filingFailed))

		pool = append(pool, filings...)
	}

	r.countErrors(errkind.Fetch, feedFailed+filingFailed)

	r.logger.Info().Int(logKeyCount, len(pool)).Msg("Shared document pool ready")

	return pool
}

// touchKnownSources bumps last_checked on every known source the poll just
// covered. An attempt counts as a check even when the fetch failed.
func (r *run) touchKnownSources(ctx context.Context) {
	for _, id := range r.knownIDs {
		if err := r.o.deps.Store.TouchSource(ctx, id); err != nil {
			r.countErrors(errkind.Persistence, 1)
			r.logger.Warn().Err(err).Str("source_id", id).Msg("Touching known source failed")
		}
	}
}

// collectAll runs per-PIR collection in parallel. Each PIR gets its own
// query generation and search budget plus a read-only view of the shared
// pool.
func (r *run) collectAll(ctx context.Context, pirs []domain.PIR, strategy *domain.Strategy, params domain.CollectionParams, pool []domain.Document) []*pirWork {
	work := make([]*pirWork, len(pirs))

	var g errgroup.Group

	g.SetLimit(maxParallelPIRs)

	for i, pir := range pirs {
		i, pir := i, pir

		g.Go(func() error {
			work[i] = &pirWork{
				pir: pir,
				collected: r.o.deps.Collector.Collect(ctx, collect.Input{
					PIR:      pir,
					Strategy: strategy,
					Params:   params,
					Window:   r.window,
					Pool:     pool,
				}),
			}

			return nil
		})
	}

	_ = g.Wait()

	return work
}

// evaluateAll scores and persists each PIR's documents in parallel. The
// dedupe table is shared so concurrent PIRs cannot race the same claim, but
// its keys are PIR-scoped: the same document may signal under several PIRs.
func (r *run) evaluateAll(ctx context.Context, work []*pirWork, pirs []domain.PIR, strategy *domain.Strategy, params domain.CollectionParams) {
	dedupe := evaluate.NewDedupe()

	var g errgroup.Group

	g.SetLimit(maxParallelPIRs)

	for i, w := range work {
		i, w := i, w

		g.Go(func() error {
			w.scored, w.evalFailed = r.o.deps.Evaluator.Evaluate(ctx, evaluate.Input{
				PIR:             w.pir,
				Strategy:        strategy,
				Params:          params,
				CrossPIRContext: crossPIRContext(pirs, i),
				Documents:       w.collected.Documents,
			})

			w.written = r.o.deps.Writer.Write(ctx, w.pir, params, w.scored, dedupe)

			observability.PIRsProcessed.WithLabelValues(statusProcessed).Inc()

			return nil
		})
	}

	_ = g.Wait()
}

// assemble folds the per-PIR outcomes into the campaign summary and the
// error ledger.
func (r *run) assemble(work []*pirWork) {
	for _, w := range work {
		r.summary.PIRsProcessed++
		r.summary.Documents += len(w.collected.Documents)
		r.summary.Evaluations += len(w.scored)
		r.summary.SignalsCreated += w.written.Created
		r.summary.SignalsDeduped += w.written.Deduped

		r.countErrors(errkind.Fetch, w.collected.Errors)
		r.countErrors(errkind.Evaluation, w.evalFailed)
		r.countErrors(errkind.Persistence, w.written.Errors)

		r.summary.PIRResults = append(r.summary.PIRResults, domain.PIRResult{
			PIRID:          w.pir.PIRID,
			Queries:        w.collected.Queries,
			QueryFallback:  w.collected.QueryFallback,
			Documents:      len(w.collected.Documents),
			Evaluations:    len(w.scored),
			SignalsCreated: w.written.Created,
			SignalsDeduped: w.written.Deduped,
			Errors:         w.collected.Errors + w.evalFailed + w.written.Errors,
		})
	}
}

func (r *run) advance(next State) {
	r.state = next
	r.logger.Debug().Str(logKeyState, string(next)).Msg("Campaign state")
}

func (r *run) fail(err error) (*domain.CampaignSummary, error) {
	r.state = StateFailed
	r.countErrors(errkind.KindOf(err), 1)

	return r.summary, err
}

func (r *run) countErrors(kind errkind.Kind, n int) {
	if n <= 0 {
		return
	}

	r.summary.ErrorCounts[string(kind)] += n
	observability.ErrorsTotal.WithLabelValues(string(kind)).Add(float64(n))
}

func (r *run) report(summary *domain.CampaignSummary, err error) {
	event := r.logger.Info()
	if err != nil {
		event = r.logger.Error().Err(err)
	}

	event.
		Str(logKeySession, summary.SessionID).
		Str(logKeyState, string(r.state)).
		Int("pirs", summary.PIRsProcessed).
		Int("pirs_skipped", summary.PIRsSkipped).
		Int("sources", summary.SourcesFound).
		Int("documents", summary.Documents).
		Int("evaluations", summary.Evaluations).
		Int("signals", summary.SignalsCreated).
		Int("signals_deduped", summary.SignalsDeduped).
		Bool("partial", summary.Partial).
		Dur("duration", summary.Duration).
		Msg("Campaign finished")
}

func campaignStatus(summary *domain.CampaignSummary, err error) string {
	switch {
	case err != nil:
		return statusFailed
	case summary.Partial:
		return statusPartial
	default:
		return statusCompleted
	}
}

// crossPIRContext names the other active requirements so the evaluator can
// spot documents serving more than one of them.
func crossPIRContext(pirs []domain.PIR, idx int) string {
	if len(pirs) <= 1 {
		return ""
	}

	parts := make([]string, 0, len(pirs)-1)

	for i, pir := range pirs {
		if i == idx {
			continue
		}

		parts = append(parts, pir.PIRID+": "+pir.Text)
	}

	return strings.Join(parts, "; ")
}

// topScoringDocs gathers the campaign's signalled documents, best first,
// as input for the cross-PIR pass.
func topScoringDocs(work []*pirWork, threshold float64) []domain.Document {
	type scoredDoc struct {
		doc   domain.Document
		score float64
	}

	var hits []scoredDoc

	for _, w := range work {
		for _, s := range w.scored {
			if !s.Evaluation.ShouldSignal(threshold) {
				continue
			}

			hits = append(hits, scoredDoc{doc: s.Document, score: s.Evaluation.Score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	docs := make([]domain.Document, len(hits))
	for i, h := range hits {
		docs[i] = h.doc
	}

	return docs
}
