// Package discovery finds working feeds behind the planner's source
// candidates. Direct URLs are probed first; an endpoint sweep across the
// candidate hosts runs only when direct probing leaves more than half the
// candidates unvalidated.
package discovery

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
	"github.com/lueurxax/signal-bridge/internal/platform/observability"
)

const (
	hostBudget       = 25 * time.Second
	maxParallelHosts = 10
	maxParallelPaths = 5

	methodDirect = "direct"
	methodSweep  = "common_path"

	logKeyURL    = "url"
	logKeyHost   = "host"
	logKeyReason = "reason"
)

// feedEndpoints are the canonical paths probed during a host sweep, in
// priority order.
var feedEndpoints = []string{
	"/rss",
	"/rss.xml",
	"/feed",
	"/feed.xml",
	"/feeds/all.xml",
	"/news/rss",
	"/news/feed",
	"/news/rss.xml",
	"/api/rss",
	"/feeds/news.xml",
	"/atom.xml",
	"/feeds.xml",
}

// Discovery validates source candidates into pollable feeds.
type Discovery struct {
	validator *Validator
	logger    *zerolog.Logger
}

func New(userAgent string, logger *zerolog.Logger) *Discovery {
	return &Discovery{
		validator: NewValidator(userAgent, logger),
		logger:    logger,
	}
}

// Discover probes the candidates and returns the validated feeds, deduped
// by URL, plus the display names of candidates for which nothing validated.
// Discovery never fails the campaign; an empty result just means the feed
// backend has nothing to poll.
func (d *Discovery) Discover(ctx context.Context, candidates []domain.SourceCandidate) ([]domain.ValidatedSource, []string) {
	start := time.Now()
	defer func() {
		observability.DiscoveryDuration.Observe(time.Since(start).Seconds())
	}()

	validated := make([]domain.ValidatedSource, 0, len(candidates))
	byURL := make(map[string]bool)
	okHosts := make(map[string]bool)

	add := func(v domain.ValidatedSource) {
		if byURL[v.URL] {
			return
		}

		byURL[v.URL] = true

		if v.Host != "" {
			okHosts[v.Host] = true
		}

		validated = append(validated, v)
		observability.SourcesValidated.WithLabelValues(v.DiscoveryMethod).Inc()
	}

	for _, v := range d.probeDirect(ctx, candidates) {
		add(v)
	}

	if sweepNeeded(len(validated), len(candidates)) {
		hosts, confidence := pendingHosts(candidates, okHosts)
		for _, v := range d.sweepHosts(ctx, hosts, confidence) {
			add(v)
		}
	}

	failed := failedNames(candidates, okHosts, byURL)
	observability.SourcesFailed.Add(float64(len(failed)))

	d.logger.Info().
		Int("candidates", len(candidates)).
		Int("validated", len(validated)).
		Int("failed", len(failed)).
		Msg("Feed discovery finished")

	return validated, failed
}

// sweepNeeded reports whether direct probing validated fewer than half the
// candidates.
func sweepNeeded(validated, candidates int) bool {
	return validated*2 < candidates
}

type directResult struct {
	candidate domain.SourceCandidate
	res       Result
}

func (d *Discovery) probeDirect(ctx context.Context, candidates []domain.SourceCandidate) []domain.ValidatedSource {
	targets := make([]domain.SourceCandidate, 0, len(candidates))

	for _, c := range candidates {
		if c.FeedURL != "" {
			targets = append(targets, c)
		}
	}

	if len(targets) == 0 {
		return nil
	}

	results := make(chan directResult, len(targets))
	sem := make(chan struct{}, maxParallelHosts)
	launched := 0

	for _, c := range targets {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}

		if ctx.Err() != nil {
			break
		}

		launched++

		go func(c domain.SourceCandidate) {
			defer func() { <-sem }()

			results <- directResult{candidate: c, res: d.validator.Validate(ctx, c.FeedURL)}
		}(c)
	}

	out := make([]domain.ValidatedSource, 0, launched)

	for i := 0; i < launched; i++ {
		r := <-results
		if !r.res.OK {
			d.logger.Debug().Str(logKeyURL, r.candidate.FeedURL).Str(logKeyReason, r.res.Reason).Msg("Direct feed probe failed")

			continue
		}

		out = append(out, domain.ValidatedSource{
			URL:             r.res.URL,
			Title:           r.res.Title,
			Host:            r.candidate.Host,
			DiscoveryMethod: methodDirect,
			Confidence:      r.candidate.Confidence,
		})
	}

	return out
}

// pendingHosts lists the distinct hosts that still need a sweep, in
// candidate order, along with each host's confidence (first candidate
// wins).
func pendingHosts(candidates []domain.SourceCandidate, okHosts map[string]bool) ([]string, map[string]float64) {
	hosts := make([]string, 0, len(candidates))
	confidence := make(map[string]float64, len(candidates))
	seen := make(map[string]bool, len(candidates))

	for _, c := range candidates {
		if c.Host == "" || okHosts[c.Host] || seen[c.Host] {
			continue
		}

		seen[c.Host] = true
		confidence[c.Host] = c.Confidence

		hosts = append(hosts, c.Host)
	}

	return hosts, confidence
}

type sweepResult struct {
	source domain.ValidatedSource
	ok     bool
}

func (d *Discovery) sweepHosts(ctx context.Context, hosts []string, confidence map[string]float64) []domain.ValidatedSource {
	if len(hosts) == 0 {
		return nil
	}

	results := make(chan sweepResult, len(hosts))
	sem := make(chan struct{}, maxParallelHosts)
	launched := 0

	for _, host := range hosts {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}

		if ctx.Err() != nil {
			break
		}

		launched++

		go func(host string) {
			defer func() { <-sem }()

			v, ok := d.sweepHost(ctx, host)
			v.Confidence = confidence[host]

			results <- sweepResult{source: v, ok: ok}
		}(host)
	}

	out := make([]domain.ValidatedSource, 0, launched)

	for i := 0; i < launched; i++ {
		if r := <-results; r.ok {
			out = append(out, r.source)
		}
	}

	return out
}

// sweepHost probes the canonical endpoints on one host, up to
// maxParallelPaths at a time, and stops at the first hit. The whole host
// gets hostBudget regardless of how many endpoints remain.
func (d *Discovery) sweepHost(ctx context.Context, host string) (domain.ValidatedSource, bool) {
	ctx, cancel := context.WithTimeout(ctx, hostBudget)
	defer cancel()

	results := make(chan Result, len(feedEndpoints))
	sem := make(chan struct{}, maxParallelPaths)

	go func() {
		for _, endpoint := range feedEndpoints {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			go func(endpoint string) {
				defer func() { <-sem }()

				results <- d.validator.Validate(ctx, "https://"+host+endpoint)
			}(endpoint)
		}
	}()

	for range feedEndpoints {
		select {
		case <-ctx.Done():
			return domain.ValidatedSource{}, false
		case res := <-results:
			if !res.OK {
				continue
			}

			cancel()

			return domain.ValidatedSource{
				URL:             res.URL,
				Title:           res.Title,
				Host:            host,
				DiscoveryMethod: methodSweep,
			}, true
		}
	}

	d.logger.Debug().Str(logKeyHost, host).Msg("No feed found on canonical endpoints")

	return domain.ValidatedSource{}, false
}

// failedNames collects the display names of candidates that produced no
// validated source on any attempt.
func failedNames(candidates []domain.SourceCandidate, okHosts map[string]bool, byURL map[string]bool) []string {
	failed := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))

	for _, c := range candidates {
		if okHosts[c.Host] || (c.FeedURL != "" && byURL[c.FeedURL]) {
			continue
		}

		name := c.DisplayName
		if name == "" {
			name = c.Host
		}

		if name == "" || seen[name] {
			continue
		}

		seen[name] = true

		failed = append(failed, name)
	}

	return failed
}
