package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
	"github.com/lueurxax/signal-bridge/internal/core/errkind"
	"github.com/lueurxax/signal-bridge/internal/core/llm"
)

// IdentifyIssuers names public companies whose regulatory filings bear on
// the campaign. A configured FILING_COMPANIES list short-circuits the LLM
// entirely. Failures are soft: the filing backend simply has nothing to
// poll.
func (p *Planner) IdentifyIssuers(ctx context.Context, strategy *domain.Strategy, sctx *domain.StrategicContext) ([]string, error) {
	if len(p.cfg.FilingCompanies) > 0 {
		p.logger.Debug().Int(logKeyCount, len(p.cfg.FilingCompanies)).Msg("Using configured filing issuers")

		return p.cfg.FilingCompanies, nil
	}

	ctx, cancel := context.WithTimeout(ctx, recommendTimeout)
	defer cancel()

	raw, err := p.complete(ctx, llm.Request{
		Task:        llm.TaskIssuerRec,
		Model:       p.cfg.QueryModel,
		System:      issuerSystem,
		Prompt:      buildIssuerPrompt(strategy, sctx),
		Temperature: recommendTemperature,
		MaxTokens:   recommendMaxTokens,
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.Discovery, fmt.Errorf("issuer recommendation: %w", err))
	}

	issuers, err := parseIssuers(raw)
	if err != nil {
		return nil, errkind.Wrap(errkind.Discovery, err)
	}

	if len(issuers) > maxIssuers {
		issuers = issuers[:maxIssuers]
	}

	p.logger.Info().Int(logKeyCount, len(issuers)).Msg("Filing issuers identified")

	return issuers, nil
}

func buildIssuerPrompt(strategy *domain.Strategy, sctx *domain.StrategicContext) string {
	var b strings.Builder

	b.WriteString("Identify 8-15 publicly traded companies whose regulatory filings matter for this intelligence objective.\n\n")
	b.WriteString("STRATEGIC OBJECTIVE:\n")
	b.WriteString(sctx.Objective)
	b.WriteString("\n\nINTELLIGENCE DOMAINS: ")
	b.WriteString(strings.Join(strategy.Domains, ", "))
	b.WriteString("\n\nRespond with a JSON object in exactly this shape:\n")
	b.WriteString(`{"companies": ["AAPL", "Microsoft"]}`)
	b.WriteString("\nUse exchange ticker symbols where you know them, company names otherwise.")

	return b.String()
}

// parseIssuers accepts plain ticker strings as requested, but also the
// verbose object form some models fall back to.
func parseIssuers(raw string) ([]string, error) {
	elems, err := flattenOnce(unwrapList(raw, "companies", "recommended_companies"))
	if err != nil {
		return nil, fmt.Errorf("decode issuer list: %w", err)
	}

	issuers := make([]string, 0, len(elems))
	seen := make(map[string]bool)

	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			return
		}

		seen[strings.ToLower(s)] = true

		issuers = append(issuers, s)
	}

	for _, elem := range elems {
		var s string
		if err := json.Unmarshal(elem, &s); err == nil {
			add(s)

			continue
		}

		var obj struct {
			Ticker      string `json:"ticker"`
			CompanyName string `json:"company_name"`
			Name        string `json:"name"`
		}

		if err := json.Unmarshal(elem, &obj); err != nil {
			continue
		}

		switch {
		case obj.Ticker != "":
			add(obj.Ticker)
		case obj.CompanyName != "":
			add(obj.CompanyName)
		default:
			add(obj.Name)
		}
	}

	return issuers, nil
}
