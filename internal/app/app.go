// Package app wires configuration, storage, and the collection pipeline
// into runnable modes: a one-shot campaign, the continuous monitor loop,
// and the dependency self-test. main owns flags, signals, and the health
// server; everything behind that lives here.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/signal-bridge/internal/core/llm"
	"github.com/lueurxax/signal-bridge/internal/platform/config"
	"github.com/lueurxax/signal-bridge/internal/platform/observability"
	"github.com/lueurxax/signal-bridge/internal/platform/worker"
	"github.com/lueurxax/signal-bridge/internal/process/campaign"
	"github.com/lueurxax/signal-bridge/internal/process/collect"
	"github.com/lueurxax/signal-bridge/internal/process/discovery"
	"github.com/lueurxax/signal-bridge/internal/process/evaluate"
	"github.com/lueurxax/signal-bridge/internal/process/plan"
	"github.com/lueurxax/signal-bridge/internal/selftest"
	"github.com/lueurxax/signal-bridge/internal/storage"
)

const (
	llmAPIKeyMock     = "mock"
	monitorWorkerName = "monitor"
)

// App holds the long-lived dependencies and exposes one method per mode.
type App struct {
	cfg      *config.Config
	database *storage.DB
	logger   *zerolog.Logger
}

// New creates an App around an already-connected database.
func New(cfg *config.Config, database *storage.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// StartHealthServer serves /healthz, /readyz, and /metrics until ctx ends.
// main runs it in its own goroutine.
func (a *App) StartHealthServer(ctx context.Context) error {
	return observability.NewServer(a.database, a.cfg.HealthPort, a.logger).Start(ctx)
}

// RunCampaign executes one collection campaign over the configured backfill
// window and returns the campaign's hard error, if any.
func (a *App) RunCampaign(ctx context.Context) error {
	orch := a.buildPipeline()

	if _, err := orch.Run(ctx, a.cfg.CollectionWindow()); err != nil {
		return fmt.Errorf("campaign: %w", err)
	}

	return nil
}

// RunMonitor runs campaigns on MonitorInterval ticks until ctx ends. The
// first run covers the whole backfill window; later runs cover one interval.
// A failed campaign is logged and the loop keeps ticking; operators watch
// the failure counter rather than the process exiting.
func (a *App) RunMonitor(ctx context.Context) error {
	orch := a.buildPipeline()

	var lastRun time.Time

	process := func(ctx context.Context) error {
		defer worker.RecoverPanic(a.logger, "monitor campaign")

		if a.skipTick(lastRun) {
			a.logger.Info().Time("last_run", lastRun).Msg("Campaign ran recently, skipping tick")

			return nil
		}

		window := a.monitorWindow(lastRun)

		if _, err := orch.Run(ctx, window); err != nil {
			return err
		}

		lastRun = time.Now()

		a.sweepRetention(ctx)
		a.logRecentSignals(ctx)

		return nil
	}

	return worker.Loop(ctx, worker.Config{
		Name:         monitorWorkerName,
		PollInterval: a.cfg.MonitorInterval,
		Process:      process,
		OnError: func(err error) bool {
			a.logger.Error().Err(err).Msg("Monitor campaign failed")

			return true
		},
		Logger: a.logger,
	})
}

// RunSelfTest probes the campaign's dependencies and fails on any hard
// check.
func (a *App) RunSelfTest(ctx context.Context) error {
	client := a.newLLMClient()

	var search *collect.SearchBackend
	if a.cfg.SearchEnabled() {
		search = collect.NewSearchBackend(a.cfg, a.logger)
	}

	_, err := selftest.New(a.database, client, search, a.cfg, a.logger).Run(ctx)

	return err
}

// monitorWindow picks the lookback window for one monitor tick: the full
// backfill window on the first run, one interval afterwards.
func (a *App) monitorWindow(lastRun time.Time) time.Duration {
	if lastRun.IsZero() {
		return a.cfg.CollectionWindow()
	}

	return a.cfg.MonitorInterval
}

// skipTick reports whether the last campaign ran too recently to start
// another. A zero BackfillMinInterval never skips.
func (a *App) skipTick(lastRun time.Time) bool {
	if lastRun.IsZero() || a.cfg.BackfillMinInterval <= 0 {
		return false
	}

	return time.Since(lastRun) < a.cfg.BackfillMinInterval
}

// sweepRetention deletes signals older than the retention window. Runs
// after each monitor campaign; failures only warn.
func (a *App) sweepRetention(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -a.cfg.SignalRetentionDays)

	deleted, err := a.database.DeleteSignalsBefore(ctx, cutoff)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Retention sweep failed")

		return
	}

	if deleted > 0 {
		observability.SignalsDeleted.Add(float64(deleted))
	}

	a.logger.Info().
		Int64("deleted", deleted).
		Int("retention_days", a.cfg.SignalRetentionDays).
		Msg("Retention sweep finished")
}

// logRecentSignals reports how many signals landed during the last
// interval, the monitor's one-line activity summary.
func (a *App) logRecentSignals(ctx context.Context) {
	count, err := a.database.CountSignalsSince(ctx, time.Now().Add(-a.cfg.MonitorInterval))
	if err != nil {
		a.logger.Warn().Err(err).Msg("Counting recent signals failed")

		return
	}

	a.logger.Info().
		Int("signals", count).
		Dur("interval", a.cfg.MonitorInterval).
		Msg("Signals in the last interval")
}

// buildPipeline constructs the campaign orchestrator with every backend the
// configuration enables.
func (a *App) buildPipeline() *campaign.Orchestrator {
	client := a.newLLMClient()

	var search *collect.SearchBackend
	if a.cfg.SearchEnabled() {
		search = collect.NewSearchBackend(a.cfg, a.logger)
	} else {
		a.logger.Info().Msg("Search backend disabled, no API key")
	}

	return campaign.New(campaign.Deps{
		Store:     a.database,
		Planner:   plan.New(client, a.cfg, a.logger),
		Discovery: discovery.New(a.cfg.FilingUserAgent, a.logger),
		Collector: collect.New(client, search, a.cfg, a.logger),
		Feeds:     collect.NewFeedBackend(a.cfg.FilingUserAgent, a.logger),
		Filings:   collect.NewFilingBackend(a.cfg, a.logger),
		Evaluator: evaluate.New(client, a.cfg, a.logger),
		Writer:    evaluate.NewWriter(a.database, a.logger),
	}, a.cfg, a.logger)
}

// newLLMClient selects the real client, or the offline mock when the key is
// the literal "mock".
func (a *App) newLLMClient() llm.Client {
	if a.cfg.LLMAPIKey == llmAPIKeyMock {
		a.logger.Warn().Msg("Using mock LLM client, responses are canned")

		return llm.NewMock()
	}

	return llm.NewOpenAI(a.cfg, a.logger)
}
