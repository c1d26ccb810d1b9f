// Package plan turns a strategic context and its PIRs into an executable
// campaign: an LLM drafts the collection strategy, pure tables derive the
// numeric parameters from it, and two follow-up recommendations name the
// sources and issuers worth watching.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
	"github.com/lueurxax/signal-bridge/internal/core/errkind"
	"github.com/lueurxax/signal-bridge/internal/core/llm"
	"github.com/lueurxax/signal-bridge/internal/platform/config"
	"github.com/lueurxax/signal-bridge/internal/platform/observability"
)

const (
	strategyTimeout  = 60 * time.Second
	recommendTimeout = 45 * time.Second

	plannerTemperature = 0.2
	plannerMaxTokens   = 1000

	recommendTemperature = 0.1
	recommendMaxTokens   = 1500

	maxIssuers = 15

	plannerSystem = "You are an expert strategic intelligence analyst. Always respond with valid JSON only."
	sourceSystem  = "You are an expert at finding RSS feeds for strategic intelligence. Always respond with valid JSON only."
	issuerSystem  = "You are an expert at identifying companies for strategic intelligence. Always respond with valid JSON only."

	statusOK    = "ok"
	statusError = "error"

	logKeyApproach    = "approach"
	logKeyUrgency     = "urgency"
	logKeyIntensity   = "intensity"
	logKeySelectivity = "selectivity"
	logKeyConfidence  = "confidence"
	logKeyCount       = "count"
)

// requiredStrategyFields must all be present in the planner response. A
// missing field fails the campaign rather than being papered over with a
// default.
var requiredStrategyFields = []string{
	"strategic_approach",
	"intelligence_domains",
	"urgency_level",
	"collection_intensity",
	"relevance_threshold",
	"source_priorities",
	"confidence",
	"reasoning",
}

const strategyTemplate = `{
  "strategic_approach": "one sentence describing the collection posture",
  "intelligence_domains": ["technology", "regulatory", "competitive", "financial", "geopolitical"],
  "urgency_level": "crisis|strategic|long_term",
  "collection_intensity": "light|standard|intensive|comprehensive",
  "relevance_threshold": "very_selective|selective|balanced|inclusive",
  "source_priorities": ["news", "trade_press", "government", "regulatory_filings"],
  "confidence": 0.0,
  "reasoning": "why this strategy fits the objective and the PIRs"
}`

// Planner owns every LLM interaction that happens before collection starts.
type Planner struct {
	client llm.Client
	cfg    *config.Config
	logger *zerolog.Logger
}

func New(client llm.Client, cfg *config.Config, logger *zerolog.Logger) *Planner {
	return &Planner{client: client, cfg: cfg, logger: logger}
}

// BuildStrategy asks the planner model to interpret the strategic context
// and PIRs. The response must be a JSON object carrying every field in
// requiredStrategyFields; anything less is a planning failure and the
// campaign stops.
func (p *Planner) BuildStrategy(ctx context.Context, sctx *domain.StrategicContext, pirs []domain.PIR) (*domain.Strategy, error) {
	ctx, cancel := context.WithTimeout(ctx, strategyTimeout)
	defer cancel()

	raw, err := p.complete(ctx, llm.Request{
		Task:        llm.TaskPlanner,
		Model:       p.cfg.PlannerModel,
		System:      plannerSystem,
		Prompt:      buildStrategyPrompt(sctx, pirs),
		Temperature: plannerTemperature,
		MaxTokens:   plannerMaxTokens,
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.Planning, fmt.Errorf("strategy request: %w", err))
	}

	strategy, err := parseStrategy(raw)
	if err != nil {
		return nil, errkind.Wrap(errkind.Planning, err)
	}

	p.logger.Info().
		Str(logKeyApproach, strategy.Approach).
		Str(logKeyUrgency, strategy.Urgency).
		Str(logKeyIntensity, strategy.Intensity).
		Str(logKeySelectivity, strategy.Selectivity).
		Float64(logKeyConfidence, strategy.Confidence).
		Msg("Collection strategy ready")

	return strategy, nil
}

func buildStrategyPrompt(sctx *domain.StrategicContext, pirs []domain.PIR) string {
	var b strings.Builder

	b.WriteString("Analyze this strategic intelligence situation and design a collection strategy.\n\n")
	b.WriteString("STRATEGIC OBJECTIVE:\n")
	b.WriteString(sctx.Objective)
	b.WriteString("\n\n")

	if sctx.Background != "" {
		b.WriteString("BACKGROUND CONTEXT:\n")
		b.WriteString(sctx.Background)
		b.WriteString("\n\n")
	}

	if len(sctx.Decisions) > 0 {
		b.WriteString("PENDING DECISIONS:\n")

		for _, d := range sctx.Decisions {
			b.WriteString("- ")
			b.WriteString(d)
			b.WriteString("\n")
		}

		b.WriteString("\n")
	}

	b.WriteString("PRIORITY INTELLIGENCE REQUIREMENTS:\n")

	for i, pir := range pirs {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, pir.Priority, pir.Text)
	}

	b.WriteString("\nRespond with a JSON object in exactly this shape:\n")
	b.WriteString(strategyTemplate)
	b.WriteString("\n\nGuidance:\n")
	b.WriteString("- urgency_level: crisis when decisions land within days, strategic within weeks, long_term beyond a quarter.\n")
	b.WriteString("- collection_intensity: scale with how much source coverage the PIRs demand, not with urgency.\n")
	b.WriteString("- relevance_threshold: very_selective surfaces only direct hits, inclusive tolerates adjacent material.\n")
	b.WriteString("- Every field is required. Do not add extra fields.")

	return b.String()
}

// parseStrategy enforces presence of every required field before decoding.
// Tier values are not validated here; unknown tiers degrade to defaults at
// parameter derivation.
func parseStrategy(raw string) (*domain.Strategy, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("strategy response is not a JSON object: %w", err)
	}

	var missing []string

	for _, f := range requiredStrategyFields {
		if _, ok := fields[f]; !ok {
			missing = append(missing, f)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("strategy response missing required fields: %s", strings.Join(missing, ", "))
	}

	var strategy domain.Strategy
	if err := json.Unmarshal([]byte(raw), &strategy); err != nil {
		return nil, fmt.Errorf("decode strategy: %w", err)
	}

	return &strategy, nil
}

// complete runs one LLM request and records its latency and outcome.
func (p *Planner) complete(ctx context.Context, req llm.Request) (string, error) {
	start := time.Now()

	raw, err := p.client.CompleteJSON(ctx, req)

	observability.LLMRequestDuration.WithLabelValues(string(req.Task)).Observe(time.Since(start).Seconds())

	if err != nil {
		observability.LLMRequests.WithLabelValues(string(req.Task), statusError).Inc()

		return "", err
	}

	observability.LLMRequests.WithLabelValues(string(req.Task), statusOK).Inc()

	return raw, nil
}
