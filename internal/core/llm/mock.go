package llm

import (
	"context"
)

// mockClient implements the Client interface for testing purposes. It
// returns deterministic JSON per task so campaigns can run end to end
// without network access.
type mockClient struct{}

// NewMock creates a new mock LLM client.
func NewMock() Client {
	return &mockClient{}
}

// CompleteJSON implements Client.
func (m *mockClient) CompleteJSON(_ context.Context, req Request) (string, error) {
	switch req.Task {
	case TaskPlanner:
		return `{"strategic_approach":"Monitor developments relevant to the stated objective.",` +
			`"intelligence_domains":["technology","markets"],"urgency_level":"strategic",` +
			`"collection_intensity":"standard","relevance_threshold":"balanced",` +
			`"source_priorities":["news","filings"],"confidence":0.8,` +
			`"reasoning":"Mock strategy for offline runs."}`, nil
	case TaskSourceRec:
		return `{"sources":[` +
			`{"host":"reuters.com","name":"Reuters","feed_url":"https://www.reuters.com/rss","kind":"news","confidence":0.9},` +
			`{"host":"techcrunch.com","name":"TechCrunch","feed_url":"https://techcrunch.com/feed","kind":"news","confidence":0.8}` +
			`]}`, nil
	case TaskIssuerRec:
		return `{"companies":["AAPL","MSFT"]}`, nil
	case TaskQueryGen:
		return `{"queries":["mock query one","mock query two","mock query three"],"reasoning":"Mock queries for offline runs."}`, nil
	case TaskEvaluation:
		return `{"relevance_score":0.85,"recommendation":"include","reasoning":"Mock evaluation.",` +
			`"strategic_connections":["mock connection"],"decision_support_value":"high",` +
			`"intelligence_type":"news","urgency_match":"medium"}`, nil
	case TaskCrossPIR:
		return `{"pir_connections":[],"strategic_insights":[]}`, nil
	case TaskSelfTest:
		return `{"status":"ok"}`, nil
	default:
		return `{}`, nil
	}
}
