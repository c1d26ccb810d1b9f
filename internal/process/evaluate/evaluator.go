// Package evaluate judges collected documents against their PIR under the
// campaign's strategic context, persists the ones that cross the inclusion
// bar as signals, and runs the campaign-level cross-PIR analysis. Single
// evaluation failures are counted, never fatal: a campaign ships the signals
// it could judge.
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
	"github.com/lueurxax/signal-bridge/internal/core/llm"
	"github.com/lueurxax/signal-bridge/internal/platform/config"
	"github.com/lueurxax/signal-bridge/internal/platform/observability"
)

const (
	evalTimeout     = 10 * time.Second
	evalTemperature = 0.2
	evalMaxTokens   = 400
	evalSnippetLen  = 500

	evalSystem = "You are a strategic intelligence analyst. Always respond with valid JSON only."

	statusOK       = "ok"
	statusError    = "error"
	statusIncluded = "included"
	statusExcluded = "excluded"

	logKeyPIR      = "pir"
	logKeyURL      = "url"
	logKeyCount    = "count"
	logKeyIncluded = "included"
	logKeyFailed   = "failed"
)

const evalTemplate = `{
    "relevance_score": 0.0-1.0,
    "recommendation": "include|exclude|uncertain",
    "reasoning": "Brief explanation of evaluation decision",
    "strategic_connections": ["connection1", "connection2"],
    "decision_support_value": "high|medium|low",
    "intelligence_type": "competitive|market|regulatory|technology|financial|operational",
    "urgency_match": "immediate|strategic|long_term"
}`

// Evaluator owns the per-document and cross-PIR model calls.
type Evaluator struct {
	client llm.Client
	cfg    *config.Config
	logger *zerolog.Logger
}

func New(client llm.Client, cfg *config.Config, logger *zerolog.Logger) *Evaluator {
	return &Evaluator{client: client, cfg: cfg, logger: logger}
}

// Input is one PIR's evaluation workload. CrossPIRContext names the other
// requirements active in this campaign so the model can flag shared threads.
type Input struct {
	PIR             domain.PIR
	Strategy        *domain.Strategy
	Params          domain.CollectionParams
	CrossPIRContext string
	Documents       []domain.Document
}

// Scored pairs a document with its evaluation.
type Scored struct {
	Document   domain.Document
	Evaluation domain.Evaluation
}

// Evaluate scores the documents in batches of Params.EvalBatchSize, the
// calls within a batch running concurrently. It returns every successful
// evaluation, included or not, in document order, plus the failure count.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) ([]Scored, int) {
	logger := e.logger.With().Str(logKeyPIR, in.PIR.PIRID).Logger()

	batch := in.Params.EvalBatchSize
	if batch <= 0 {
		batch = 1
	}

	scored := make([]Scored, 0, len(in.Documents))
	failed := 0

	for start := 0; start < len(in.Documents); start += batch {
		if ctx.Err() != nil {
			failed += len(in.Documents) - start

			break
		}

		end := min(start+batch, len(in.Documents))
		results := make([]*domain.Evaluation, end-start)

		var g errgroup.Group

		for i, doc := range in.Documents[start:end] {
			i, doc := i, doc

			g.Go(func() error {
				eval, err := e.evaluateOne(ctx, in, doc)
				if err != nil {
					logger.Warn().Err(err).Str(logKeyURL, doc.URL).Msg("Evaluation failed")

					return nil
				}

				results[i] = eval

				return nil
			})
		}

		_ = g.Wait()

		for i, eval := range results {
			if eval == nil {
				failed++

				observability.EvaluationsTotal.WithLabelValues(statusError).Inc()

				continue
			}

			if eval.ShouldSignal(in.Params.Threshold) {
				observability.EvaluationsTotal.WithLabelValues(statusIncluded).Inc()
			} else {
				observability.EvaluationsTotal.WithLabelValues(statusExcluded).Inc()
			}

			scored = append(scored, Scored{Document: in.Documents[start+i], Evaluation: *eval})
		}
	}

	logger.Info().
		Int(logKeyCount, len(scored)).
		Int(logKeyFailed, failed).
		Msg("PIR evaluation complete")

	return scored, failed
}

func (e *Evaluator) evaluateOne(ctx context.Context, in Input, doc domain.Document) (*domain.Evaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	raw, err := e.complete(ctx, llm.Request{
		Task:        llm.TaskEvaluation,
		Model:       e.cfg.EvalModel,
		System:      evalSystem,
		Prompt:      buildEvalPrompt(in, doc),
		Temperature: evalTemperature,
		MaxTokens:   evalMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluation request: %w", err)
	}

	var eval domain.Evaluation
	if err := json.Unmarshal([]byte(raw), &eval); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}

	return &eval, nil
}

func buildEvalPrompt(in Input, doc domain.Document) string {
	var b strings.Builder

	b.WriteString("Evaluate if this news content provides strategic intelligence value for decision-making:\n\n")
	b.WriteString("STRATEGIC CONTEXT:\n")
	b.WriteString("- Strategic Approach: ")
	b.WriteString(in.Strategy.Approach)
	b.WriteString("\n- Intelligence Domains: ")
	b.WriteString(strings.Join(in.Strategy.Domains, ", "))
	b.WriteString("\n- Urgency Level: ")
	b.WriteString(in.Strategy.Urgency)
	b.WriteString("\n- Cross-PIR Context: ")
	b.WriteString(in.CrossPIRContext)
	b.WriteString("\n\nSPECIFIC INTELLIGENCE REQUIREMENT (PIR):\n")
	b.WriteString(in.PIR.Text)
	b.WriteString("\n\nNEWS CONTENT TO EVALUATE:\n")
	b.WriteString("Title: ")
	b.WriteString(doc.Title)
	b.WriteString("\nDescription: ")
	b.WriteString(snippet(doc.Body, evalSnippetLen))
	b.WriteString("\nSource: ")
	b.WriteString(doc.Source)
	b.WriteString("\nURL: ")
	b.WriteString(doc.URL)
	b.WriteString("\n\nEVALUATION CRITERIA:\n")
	b.WriteString("1. STRATEGIC RELEVANCE: Does this directly support the strategic approach and intelligence domains?\n")
	b.WriteString("2. PIR ALIGNMENT: Does this help answer or inform the specific PIR requirement?\n")
	b.WriteString("3. DECISION VALUE: Would this information be valuable for strategic decision-making?\n")
	b.WriteString("4. TIMELINESS: Is this current and actionable given the urgency level?\n")
	b.WriteString("5. CROSS-PIR VALUE: Does this provide intelligence that could support multiple PIRs?\n\n")
	fmt.Fprintf(&b, "THRESHOLD FOR INCLUSION: %.3f\n\n", in.Params.Threshold)
	b.WriteString("Respond in JSON format:\n")
	b.WriteString(evalTemplate)
	b.WriteString("\n\nBe precise in evaluation - only recommend inclusion if the content provides genuine strategic intelligence value.")

	return b.String()
}

// snippet hard-cuts s to max runes.
func snippet(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}

	return string(runes[:max])
}

// complete runs one LLM request and records its latency and outcome.
func (e *Evaluator) complete(ctx context.Context, req llm.Request) (string, error) {
	start := time.Now()

	raw, err := e.client.CompleteJSON(ctx, req)

	observability.LLMRequestDuration.WithLabelValues(string(req.Task)).Observe(time.Since(start).Seconds())

	if err != nil {
		observability.LLMRequests.WithLabelValues(string(req.Task), statusError).Inc()

		return "", err
	}

	observability.LLMRequests.WithLabelValues(string(req.Task), statusOK).Inc()

	return raw, nil
}
