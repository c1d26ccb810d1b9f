package plan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
	"github.com/lueurxax/signal-bridge/internal/core/errkind"
	"github.com/lueurxax/signal-bridge/internal/core/llm"
)

const sourceTemplate = `{
  "sources": [
    {
      "host": "example.com",
      "name": "Example News",
      "feed_url": "https://example.com/rss",
      "kind": "feed|trade|government|other",
      "confidence": 0.0
    }
  ]
}`

// RecommendSources asks for 8-12 publicly reachable outlets worth probing
// for feeds. The result is raw candidates; discovery decides which of them
// actually serve one. A failure here is soft, the campaign continues on the
// other backends.
func (p *Planner) RecommendSources(ctx context.Context, strategy *domain.Strategy, sctx *domain.StrategicContext) ([]domain.SourceCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, recommendTimeout)
	defer cancel()

	raw, err := p.complete(ctx, llm.Request{
		Task:        llm.TaskSourceRec,
		Model:       p.cfg.QueryModel,
		System:      sourceSystem,
		Prompt:      buildSourcePrompt(strategy, sctx),
		Temperature: recommendTemperature,
		MaxTokens:   recommendMaxTokens,
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.Discovery, fmt.Errorf("source recommendation: %w", err))
	}

	candidates, err := parseSourceCandidates(raw)
	if err != nil {
		return nil, errkind.Wrap(errkind.Discovery, err)
	}

	p.logger.Info().Int(logKeyCount, len(candidates)).Msg("Source candidates recommended")

	return candidates, nil
}

func buildSourcePrompt(strategy *domain.Strategy, sctx *domain.StrategicContext) string {
	var b strings.Builder

	b.WriteString("Recommend 8-12 publicly available news sources for this intelligence collection effort.\n\n")
	b.WriteString("STRATEGIC OBJECTIVE:\n")
	b.WriteString(sctx.Objective)
	b.WriteString("\n\nINTELLIGENCE DOMAINS: ")
	b.WriteString(strings.Join(strategy.Domains, ", "))
	b.WriteString("\nSOURCE PRIORITIES: ")
	b.WriteString(strings.Join(strategy.SourcePriorities, ", "))
	b.WriteString("\n\nPrefer outlets that publish RSS or Atom feeds: major news organizations, trade press and government or regulator newsrooms. ")
	b.WriteString("Include the feed URL when you know it, otherwise just the host.\n")
	b.WriteString("Respond with a JSON object in exactly this shape:\n")
	b.WriteString(sourceTemplate)

	return b.String()
}

// parseSourceCandidates tolerates the answer shapes models actually produce:
// the requested {"sources": [...]} wrapper, a bare array, or an array nested
// one level deep.
func parseSourceCandidates(raw string) ([]domain.SourceCandidate, error) {
	elems, err := flattenOnce(unwrapList(raw, "sources", "recommended_sources"))
	if err != nil {
		return nil, fmt.Errorf("decode source candidates: %w", err)
	}

	candidates := make([]domain.SourceCandidate, 0, len(elems))

	for _, elem := range elems {
		var c domain.SourceCandidate
		if err := json.Unmarshal(elem, &c); err != nil {
			continue
		}

		c = normalizeCandidate(c)
		if c.Host == "" && c.FeedURL == "" {
			continue
		}

		candidates = append(candidates, c)
	}

	return candidates, nil
}

// unwrapList returns the first present wrapper key's value, or the raw
// payload when none of the keys match (bare array responses).
func unwrapList(raw string, keys ...string) json.RawMessage {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &wrapper); err == nil {
		for _, key := range keys {
			if v, ok := wrapper[key]; ok && len(v) > 0 {
				return v
			}
		}
	}

	return json.RawMessage(raw)
}

// flattenOnce splits a JSON array into elements, expanding one level of
// accidental nesting. Models sometimes return [[...]] or mix grouped and
// flat entries.
func flattenOnce(list json.RawMessage) ([]json.RawMessage, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(list, &elems); err != nil {
		return nil, err
	}

	out := make([]json.RawMessage, 0, len(elems))

	for _, elem := range elems {
		trimmed := bytes.TrimSpace(elem)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var inner []json.RawMessage
			if err := json.Unmarshal(trimmed, &inner); err != nil {
				return nil, err
			}

			out = append(out, inner...)

			continue
		}

		out = append(out, elem)
	}

	return out, nil
}

func normalizeCandidate(c domain.SourceCandidate) domain.SourceCandidate {
	c.Host = normalizeHost(c.Host)

	if c.Host == "" && c.FeedURL != "" {
		if u, err := url.Parse(c.FeedURL); err == nil {
			c.Host = strings.ToLower(u.Hostname())
		}
	}

	if c.DisplayName == "" {
		c.DisplayName = displayNameFromHost(c.Host)
	}

	switch c.Kind {
	case domain.CandidateFeed, domain.CandidateTrade, domain.CandidateGovernment:
	default:
		c.Kind = domain.CandidateOther
	}

	c.Confidence = clamp(c.Confidence, 0, 1)

	return c
}

var hostTitleCaser = cases.Title(language.English)

// displayNameFromHost turns "www.defense-news.com" into "Defense News".
// The TLD is dropped only when something readable remains.
func displayNameFromHost(host string) string {
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return ""
	}

	labels := strings.Split(host, ".")
	if len(labels) > 1 {
		labels = labels[:len(labels)-1]
	}

	name := strings.Join(labels, " ")
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")

	return hostTitleCaser.String(strings.TrimSpace(name))
}

// normalizeHost reduces whatever the model put in the host field to a bare
// lowercase hostname.
func normalizeHost(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "https://")

	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}

	return host
}
