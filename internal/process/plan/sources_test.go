package plan

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
	"github.com/lueurxax/signal-bridge/internal/platform/config"
)

func TestRecommendSources(t *testing.T) {
	stub := &stubLLM{response: `{
		"sources": [
			{"host": "https://www.reuters.com/technology", "name": "Reuters Tech", "feed_url": "https://www.reuters.com/rss", "kind": "feed", "confidence": 0.9},
			{"host": "ftc.gov", "name": "FTC Newsroom", "kind": "government", "confidence": 0.7},
			{"host": "example.org", "name": "Example", "kind": "blog", "confidence": 1.4}
		]
	}`}
	p := newTestPlanner(stub)

	strategy := &domain.Strategy{
		Domains:          []string{"technology"},
		SourcePriorities: []string{"news"},
	}

	candidates, err := p.RecommendSources(context.Background(), strategy, testContext())
	if err != nil {
		t.Fatalf("RecommendSources: %v", err)
	}

	if len(candidates) != 3 {
		t.Fatalf("got %d candidates, want 3", len(candidates))
	}

	if candidates[0].Host != "www.reuters.com" {
		t.Errorf("host not normalized: %q", candidates[0].Host)
	}

	if candidates[1].Kind != domain.CandidateGovernment {
		t.Errorf("Kind = %q, want government", candidates[1].Kind)
	}

	if candidates[2].Kind != domain.CandidateOther {
		t.Errorf("unknown kind should map to other, got %q", candidates[2].Kind)
	}

	if candidates[2].Confidence != 1.0 {
		t.Errorf("confidence not clamped: %v", candidates[2].Confidence)
	}
}

func TestParseSourceCandidatesNestedOnce(t *testing.T) {
	raw := `{"sources": [
		[{"host": "a.com", "name": "A", "kind": "feed", "confidence": 0.5}],
		{"host": "b.com", "name": "B", "kind": "trade", "confidence": 0.6},
		[{"host": "c.com", "name": "C", "kind": "feed", "confidence": 0.7}]
	]}`

	candidates, err := parseSourceCandidates(raw)
	if err != nil {
		t.Fatalf("parseSourceCandidates: %v", err)
	}

	if len(candidates) != 3 {
		t.Fatalf("got %d candidates, want 3", len(candidates))
	}

	hosts := []string{candidates[0].Host, candidates[1].Host, candidates[2].Host}
	for i, want := range []string{"a.com", "b.com", "c.com"} {
		if hosts[i] != want {
			t.Errorf("hosts[%d] = %q, want %q", i, hosts[i], want)
		}
	}
}

func TestParseSourceCandidatesBareArray(t *testing.T) {
	raw := `[{"host": "a.com", "name": "A", "kind": "feed", "confidence": 0.5}]`

	candidates, err := parseSourceCandidates(raw)
	if err != nil {
		t.Fatalf("parseSourceCandidates: %v", err)
	}

	if len(candidates) != 1 || candidates[0].Host != "a.com" {
		t.Errorf("candidates = %+v", candidates)
	}
}

func TestParseSourceCandidatesHostFromFeedURL(t *testing.T) {
	raw := `{"sources": [{"name": "A", "feed_url": "https://News.Example.com/feeds/all.xml", "kind": "feed", "confidence": 0.5}]}`

	candidates, err := parseSourceCandidates(raw)
	if err != nil {
		t.Fatalf("parseSourceCandidates: %v", err)
	}

	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}

	if candidates[0].Host != "news.example.com" {
		t.Errorf("Host = %q, want news.example.com", candidates[0].Host)
	}
}

func TestDisplayNameFromHost(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"www.defense-news.com", "Defense News"},
		{"reuters.com", "Reuters"},
		{"feeds.example.org", "Feeds Example"},
		{"ftc.gov", "Ftc"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := displayNameFromHost(tt.host); got != tt.want {
			t.Errorf("displayNameFromHost(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestParseSourceCandidatesFillsDisplayName(t *testing.T) {
	raw := `{"sources": [{"host": "market-watch.com", "kind": "feed", "confidence": 0.5}]}`

	candidates, err := parseSourceCandidates(raw)
	if err != nil {
		t.Fatalf("parseSourceCandidates: %v", err)
	}

	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}

	if candidates[0].DisplayName != "Market Watch" {
		t.Errorf("DisplayName = %q, want Market Watch", candidates[0].DisplayName)
	}
}

func TestParseSourceCandidatesDropsEmpty(t *testing.T) {
	raw := `{"sources": [{"name": "nothing to probe", "kind": "feed", "confidence": 0.5}]}`

	candidates, err := parseSourceCandidates(raw)
	if err != nil {
		t.Fatalf("parseSourceCandidates: %v", err)
	}

	if len(candidates) != 0 {
		t.Errorf("candidate without host or feed_url should be dropped, got %+v", candidates)
	}
}

func TestIdentifyIssuersConfigOverride(t *testing.T) {
	stub := &stubLLM{response: `{"companies": ["AAPL"]}`}
	logger := zerolog.Nop()
	p := New(stub, &config.Config{
		QueryModel:      "gpt-4o-mini",
		FilingCompanies: []string{"MSFT", "GOOG"},
	}, &logger)

	issuers, err := p.IdentifyIssuers(context.Background(), &domain.Strategy{}, testContext())
	if err != nil {
		t.Fatalf("IdentifyIssuers: %v", err)
	}

	if len(issuers) != 2 || issuers[0] != "MSFT" {
		t.Errorf("issuers = %v, want configured list", issuers)
	}

	if stub.calls != 0 {
		t.Errorf("LLM called %d times despite configured issuers", stub.calls)
	}
}

func TestIdentifyIssuersFromLLM(t *testing.T) {
	stub := &stubLLM{response: `{"recommended_companies": [
		{"company_name": "Apple Inc.", "ticker": "AAPL"},
		{"company_name": "Palantir Technologies"},
		"NVDA",
		"nvda"
	]}`}
	p := newTestPlanner(stub)

	issuers, err := p.IdentifyIssuers(context.Background(), &domain.Strategy{Domains: []string{"technology"}}, testContext())
	if err != nil {
		t.Fatalf("IdentifyIssuers: %v", err)
	}

	want := []string{"AAPL", "Palantir Technologies", "NVDA"}
	if len(issuers) != len(want) {
		t.Fatalf("issuers = %v, want %v", issuers, want)
	}

	for i := range want {
		if issuers[i] != want[i] {
			t.Errorf("issuers[%d] = %q, want %q", i, issuers[i], want[i])
		}
	}
}

func TestIdentifyIssuersCapped(t *testing.T) {
	raw := `{"companies": ["A1","A2","A3","A4","A5","A6","A7","A8","A9","A10","A11","A12","A13","A14","A15","A16","A17"]}`
	stub := &stubLLM{response: raw}
	p := newTestPlanner(stub)

	issuers, err := p.IdentifyIssuers(context.Background(), &domain.Strategy{}, testContext())
	if err != nil {
		t.Fatalf("IdentifyIssuers: %v", err)
	}

	if len(issuers) != maxIssuers {
		t.Errorf("got %d issuers, want cap of %d", len(issuers), maxIssuers)
	}
}
