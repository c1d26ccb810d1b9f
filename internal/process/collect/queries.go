package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
	"github.com/lueurxax/signal-bridge/internal/core/llm"
)

const (
	queryTimeout     = 15 * time.Second
	queryTemperature = 0.3
	queryMaxTokens   = 200
	maxQueries       = 5
	fallbackQueryLen = 100

	querySystem = "You generate search queries for news intelligence gathering. Always respond with valid JSON only."
)

// generateQueries asks the model for 3-5 search queries tuned to the PIR and
// strategy. On any failure it degrades to a single query cut from the PIR
// text itself; the returned flag reports that fallback.
func (c *Collector) generateQueries(ctx context.Context, strategy *domain.Strategy, pir domain.PIR) ([]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	raw, err := c.complete(ctx, llm.Request{
		Task:        llm.TaskQueryGen,
		Model:       c.cfg.QueryModel,
		System:      querySystem,
		Prompt:      buildQueryPrompt(strategy, pir),
		Temperature: queryTemperature,
		MaxTokens:   queryMaxTokens,
	})
	if err == nil {
		if queries, perr := parseQueries(raw); perr == nil && len(queries) > 0 {
			return queries, false
		} else if perr != nil {
			err = perr
		} else {
			err = fmt.Errorf("empty query list")
		}
	}

	c.logger.Warn().Err(err).Str(logKeyPIR, pir.PIRID).Msg("Query generation failed, falling back to PIR text")

	return []string{truncateText(pir.Text, fallbackQueryLen)}, true
}

func buildQueryPrompt(strategy *domain.Strategy, pir domain.PIR) string {
	var b strings.Builder

	b.WriteString("Generate 3-5 optimal search queries for collecting intelligence about this PIR:\n\n")
	b.WriteString("STRATEGIC CONTEXT:\n")
	b.WriteString("- Strategic Approach: ")
	b.WriteString(strategy.Approach)
	b.WriteString("\n- Intelligence Domains: ")
	b.WriteString(strings.Join(strategy.Domains, ", "))
	b.WriteString("\n\nPIR INDICATOR: ")
	b.WriteString(pir.Text)
	b.WriteString("\n\nGenerate search queries that would find relevant news articles and information. Focus on:\n")
	b.WriteString("1. Core concepts and entities in the PIR\n")
	b.WriteString("2. Related industry/domain terms from strategic context\n")
	b.WriteString("3. Different ways this intelligence might be discussed in news\n")
	b.WriteString("4. Variations in terminology and phrasing\n")
	b.WriteString("5. Cross-connections with other strategic domains\n\n")
	b.WriteString("Make queries specific enough to find relevant content but broad enough to capture different perspectives.\n\n")
	b.WriteString("Respond in JSON format:\n")
	b.WriteString(`{"queries": ["query1", "query2", "query3"], "reasoning": "Brief explanation of query strategy"}`)

	return b.String()
}

type queryResponse struct {
	Queries   []string `json:"queries"`
	Reasoning string   `json:"reasoning"`
}

// parseQueries decodes the query list, dropping blanks and case-insensitive
// duplicates, capped at maxQueries.
func parseQueries(raw string) ([]string, error) {
	var resp queryResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("decode queries: %w", err)
	}

	seen := make(map[string]bool, len(resp.Queries))
	queries := make([]string, 0, len(resp.Queries))

	for _, q := range resp.Queries {
		q = strings.TrimSpace(q)
		if q == "" || seen[strings.ToLower(q)] {
			continue
		}

		seen[strings.ToLower(q)] = true
		queries = append(queries, q)

		if len(queries) == maxQueries {
			break
		}
	}

	return queries, nil
}
