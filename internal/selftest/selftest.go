// Package selftest probes the dependencies a campaign needs: the database,
// the LLM endpoint, the search backend, and feed validation. Results come
// back as a pass/fail table and are logged one line per check. Database and
// LLM are hard requirements; the rest degrade the campaign but do not stop
// it, so their failures only warn.
package selftest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/signal-bridge/internal/core/llm"
	"github.com/lueurxax/signal-bridge/internal/platform/config"
	"github.com/lueurxax/signal-bridge/internal/process/collect"
	"github.com/lueurxax/signal-bridge/internal/process/discovery"
)

const (
	checkTimeout = 15 * time.Second

	probeQuery     = "technology"
	probeWindow    = 24 * time.Hour
	probeSystem    = "You are a health check. Respond with valid JSON only."
	probePrompt    = `Respond with exactly this JSON object: {"status": "ok"}`
	probeMaxTokens = 20

	StatusPass = "pass"
	StatusFail = "fail"
	StatusSkip = "skip"

	checkDatabase = "database"
	checkLLM      = "llm_roundtrip"
	checkSearch   = "search_backend"
	checkFeed     = "feed_validator"

	logKeyCheck  = "check"
	logKeyStatus = "status"
	logKeyDetail = "detail"
)

// Pinger is the database surface the self-test needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check is the outcome of one probe. Hard marks checks whose failure fails
// the whole run.
type Check struct {
	Name    string
	Status  string
	Hard    bool
	Detail  string
	Elapsed time.Duration
}

// probe runs one check and reports its status and a human-readable detail.
type probe func(ctx context.Context) (string, string)

// Runner executes the probes in a fixed order.
type Runner struct {
	db        Pinger
	client    llm.Client
	search    *collect.SearchBackend
	validator *discovery.Validator
	cfg       *config.Config
	logger    *zerolog.Logger
}

// New builds a runner. search may be nil when no key is configured; the
// matching check is then skipped.
func New(db Pinger, client llm.Client, search *collect.SearchBackend, cfg *config.Config, logger *zerolog.Logger) *Runner {
	return &Runner{
		db:        db,
		client:    client,
		search:    search,
		validator: discovery.NewValidator(cfg.FilingUserAgent, logger),
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes every probe, logs the table, and returns a non-nil error
// when any hard check failed.
func (r *Runner) Run(ctx context.Context) ([]Check, error) {
	checks := []Check{
		r.run(ctx, checkDatabase, true, r.database),
		r.run(ctx, checkLLM, true, r.llmRoundTrip),
		r.run(ctx, checkSearch, false, r.searchBackend),
		r.run(ctx, checkFeed, false, r.feedValidator),
	}

	failedHard := 0

	for _, c := range checks {
		event := r.logger.Info()

		if c.Status == StatusFail {
			event = r.logger.Warn()

			if c.Hard {
				event = r.logger.Error()
				failedHard++
			}
		}

		event.
			Str(logKeyCheck, c.Name).
			Str(logKeyStatus, c.Status).
			Str(logKeyDetail, c.Detail).
			Dur("elapsed", c.Elapsed).
			Msg("Self-test check")
	}

	if failedHard > 0 {
		return checks, fmt.Errorf("self-test: %d hard check(s) failed", failedHard)
	}

	return checks, nil
}

func (r *Runner) run(ctx context.Context, name string, hard bool, fn probe) Check {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	status, detail := fn(ctx)

	return Check{
		Name:    name,
		Status:  status,
		Hard:    hard,
		Detail:  detail,
		Elapsed: time.Since(start),
	}
}

func (r *Runner) database(ctx context.Context) (string, string) {
	if err := r.db.Ping(ctx); err != nil {
		return StatusFail, err.Error()
	}

	return StatusPass, "database reachable"
}

// llmRoundTrip sends the smallest possible JSON-mode completion and checks
// the model echoed the expected object back.
func (r *Runner) llmRoundTrip(ctx context.Context) (string, string) {
	raw, err := r.client.CompleteJSON(ctx, llm.Request{
		Task:        llm.TaskSelfTest,
		Model:       r.cfg.EvalModel,
		System:      probeSystem,
		Prompt:      probePrompt,
		Temperature: 0,
		MaxTokens:   probeMaxTokens,
	})
	if err != nil {
		return StatusFail, err.Error()
	}

	var echo struct {
		Status string `json:"status"`
	}

	if err := json.Unmarshal([]byte(raw), &echo); err != nil {
		return StatusFail, "response is not JSON: " + err.Error()
	}

	if echo.Status != "ok" {
		return StatusFail, fmt.Sprintf("unexpected status %q", echo.Status)
	}

	return StatusPass, "round-trip ok"
}

func (r *Runner) searchBackend(ctx context.Context) (string, string) {
	if r.search == nil || !r.cfg.SearchEnabled() {
		return StatusSkip, "no search key configured"
	}

	docs, err := r.search.Search(ctx, probeQuery, probeWindow, 1)
	if err != nil {
		return StatusFail, err.Error()
	}

	return StatusPass, fmt.Sprintf("search reachable, %d result(s)", len(docs))
}

func (r *Runner) feedValidator(ctx context.Context) (string, string) {
	res := r.validator.Validate(ctx, r.cfg.SelfTestFeedURL)
	if !res.OK {
		return StatusFail, fmt.Sprintf("%s: %s", r.cfg.SelfTestFeedURL, res.Reason)
	}

	return StatusPass, "validated " + res.Title
}
