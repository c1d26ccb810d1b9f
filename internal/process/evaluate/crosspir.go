package evaluate

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
	"github.com/lueurxax/signal-bridge/internal/core/llm"
)

const (
	crossPIRTimeout     = 30 * time.Second
	crossPIRTemperature = 0.3
	crossPIRMaxTokens   = 800
	crossPIRSampleDocs  = 50
	crossPIRPromptDocs  = 20

	crossPIRSystem = "You are a strategic intelligence analyst specializing in cross-intelligence analysis. Always respond with valid JSON only."

	logKeyConnections = "connections"
	logKeyInsights    = "insights"
)

const crossPIRTemplate = `{
    "pir_connections": [
        {
            "connected_pirs": ["pir1", "pir2"],
            "connection_type": "complementary|overlapping|sequential",
            "explanation": "How these PIRs connect strategically"
        }
    ],
    "strategic_insights": [
        {
            "insight": "Key strategic insight from the analysis",
            "supporting_articles": ["article1", "article2"],
            "decision_impact": "How this impacts strategic decisions"
        }
    ]
}`

// CrossPIR looks across the campaign's signalled documents for threads that
// span requirements. It runs on the planner model and never fails the
// campaign: any error degrades to an empty analysis.
func (e *Evaluator) CrossPIR(ctx context.Context, strategy *domain.Strategy, pirs []domain.PIR, docs []domain.Document) *domain.CrossPIRAnalysis {
	empty := &domain.CrossPIRAnalysis{
		Connections: []domain.PIRConnection{},
		Insights:    []domain.StrategicInsight{},
	}

	if len(docs) == 0 || len(pirs) == 0 {
		return empty
	}

	if len(docs) > crossPIRSampleDocs {
		docs = docs[:crossPIRSampleDocs]
	}

	ctx, cancel := context.WithTimeout(ctx, crossPIRTimeout)
	defer cancel()

	raw, err := e.complete(ctx, llm.Request{
		Task:        llm.TaskCrossPIR,
		Model:       e.cfg.PlannerModel,
		System:      crossPIRSystem,
		Prompt:      buildCrossPIRPrompt(strategy, pirs, docs),
		Temperature: crossPIRTemperature,
		MaxTokens:   crossPIRMaxTokens,
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("Cross-PIR analysis failed")

		return empty
	}

	var analysis domain.CrossPIRAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		e.logger.Warn().Err(err).Msg("Cross-PIR response unparseable")

		return empty
	}

	if analysis.Connections == nil {
		analysis.Connections = []domain.PIRConnection{}
	}

	if analysis.Insights == nil {
		analysis.Insights = []domain.StrategicInsight{}
	}

	e.logger.Info().
		Int(logKeyConnections, len(analysis.Connections)).
		Int(logKeyInsights, len(analysis.Insights)).
		Msg("Cross-PIR analysis complete")

	return &analysis
}

func buildCrossPIRPrompt(strategy *domain.Strategy, pirs []domain.PIR, docs []domain.Document) string {
	var b strings.Builder

	b.WriteString("Analyze these news articles for cross-PIR intelligence connections and strategic insights:\n\n")
	b.WriteString("STRATEGIC CONTEXT:\n")
	b.WriteString("- Approach: ")
	b.WriteString(strategy.Approach)
	b.WriteString("\n- Domains: ")
	b.WriteString(strings.Join(strategy.Domains, ", "))
	b.WriteString("\n\nPIR REQUIREMENTS:\n")

	for _, pir := range pirs {
		b.WriteString("- ")
		b.WriteString(pir.Text)
		b.WriteString("\n")
	}

	b.WriteString("\nSAMPLE ARTICLES:\n")

	for i, doc := range docs {
		if i == crossPIRPromptDocs {
			break
		}

		b.WriteString("- ")
		b.WriteString(doc.Title)
		b.WriteString("\n")
	}

	b.WriteString("\nANALYSIS TASK:\n")
	b.WriteString("1. Identify articles that provide intelligence for multiple PIRs\n")
	b.WriteString("2. Find strategic connections between different PIRs\n")
	b.WriteString("3. Identify key strategic insights that support decision-making\n\n")
	b.WriteString("Respond in JSON format:\n")
	b.WriteString(crossPIRTemplate)

	return b.String()
}
