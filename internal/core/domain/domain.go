// Package domain defines the entities flowing through a collection campaign:
// strategic context and PIRs in, documents through the backends, evaluations
// and signals out. All types are plain data; behavior lives in the process
// packages.
package domain

import "time"

// StrategicContext is the human-authored framing for a campaign. It is read
// once at campaign start and never mutated.
type StrategicContext struct {
	Objective  string
	Background string
	Decisions  []string
	SessionID  string
}

// PIR is a Priority Intelligence Requirement: one monitored question.
// Text must be at least MinPIRTextLen characters or the PIR is skipped.
type PIR struct {
	ID        string
	PIRID     string
	Text      string
	Priority  string
	SessionID string
}

// MinPIRTextLen is the minimum usable PIR text length.
const MinPIRTextLen = 10

// PIR priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Strategy is the planner's structured interpretation of context plus PIRs.
// Every field is required; the planner rejects responses with any missing.
type Strategy struct {
	Approach         string   `json:"strategic_approach"`
	Domains          []string `json:"intelligence_domains"`
	Urgency          string   `json:"urgency_level"`
	Intensity        string   `json:"collection_intensity"`
	Selectivity      string   `json:"relevance_threshold"`
	SourcePriorities []string `json:"source_priorities"`
	Confidence       float64  `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
}

// Urgency tiers.
const (
	UrgencyCrisis    = "crisis"
	UrgencyStrategic = "strategic"
	UrgencyLongTerm  = "long_term"
)

// Intensity tiers.
const (
	IntensityLight         = "light"
	IntensityStandard      = "standard"
	IntensityIntensive     = "intensive"
	IntensityComprehensive = "comprehensive"
)

// Selectivity tiers.
const (
	SelectivityVerySelective = "very_selective"
	SelectivitySelective     = "selective"
	SelectivityBalanced      = "balanced"
	SelectivityInclusive     = "inclusive"
)

// CollectionParams are the numeric campaign parameters derived from a
// Strategy and the PIR count. The derivation is pure and exact.
type CollectionParams struct {
	MaxDocsPerPIR    int
	Threshold        float64
	Timeout          time.Duration
	EvalBatchSize    int
	MaxSignalsPerPIR int
}

// SourceCandidate is an LLM-recommended place to look for a feed.
type SourceCandidate struct {
	Host        string  `json:"host"`
	DisplayName string  `json:"name"`
	FeedURL     string  `json:"feed_url"`
	Kind        string  `json:"kind"`
	Confidence  float64 `json:"confidence"`
}

// Candidate kinds.
const (
	CandidateFeed       = "feed"
	CandidateTrade      = "trade"
	CandidateGovernment = "government"
	CandidateOther      = "other"
)

// ValidatedSource is a candidate that passed feed validation. Only validated
// sources are polled downstream.
type ValidatedSource struct {
	URL             string
	Title           string
	Host            string
	DiscoveryMethod string
	Confidence      float64
}

// Document is the uniform record all three backends produce. Documents are
// ephemeral; only Signals persist.
type Document struct {
	Title       string
	Body        string
	URL         string
	Source      string
	PublishedAt *time.Time
	Backend     string
	BackendMeta map[string]string
}

// Backends.
const (
	BackendSearch = "search"
	BackendFeed   = "feed"
	BackendFiling = "filing"
)

// Source types stored on signal_sources rows.
const (
	SourceTypeFeed   = "feed"
	SourceTypeSearch = "search"
	SourceTypeFiling = "filing"
	SourceTypeOther  = "other"
)

// Evaluation is the model's judgment of one (document, PIR) pair. The JSON
// tags are the wire contract with the evaluation prompt.
type Evaluation struct {
	Score                float64  `json:"relevance_score"`
	Decision             string   `json:"recommendation"`
	Reasoning            string   `json:"reasoning"`
	Connections          []string `json:"strategic_connections"`
	DecisionSupportValue string   `json:"decision_support_value"`
	IntelligenceType     string   `json:"intelligence_type"`
	Urgency              string   `json:"urgency_match"`
}

// Decisions.
const (
	DecisionInclude   = "include"
	DecisionExclude   = "exclude"
	DecisionUncertain = "uncertain"
)

// ShouldSignal reports whether this evaluation crosses the inclusion bar:
// an explicit include, or a score above threshold without an explicit
// exclude.
func (e Evaluation) ShouldSignal(threshold float64) bool {
	return e.Decision == DecisionInclude || (e.Score > threshold && e.Decision != DecisionExclude)
}

// Signal is the persisted record "document D is relevant to PIR P".
// Document fields and the model's reasoning are stored in their own columns;
// RawSignalText carries the remaining evaluation metadata as JSON and never
// duplicates the reasoning.
type Signal struct {
	ID             string
	IndicatorID    string
	SourceID       string
	ArticleTitle   string
	ArticleContent string
	ArticleURL     string
	PublishedDate  *time.Time
	MatchScore     float64
	AIReasoning    string
	RawSignalText  string
	ObservedAt     time.Time
	SessionID      string
	Status         string
}

// SignalStatusEvaluated marks signals produced by the evaluator.
const SignalStatusEvaluated = "ai_evaluated"

// SignalSource is a signal_sources row.
type SignalSource struct {
	ID          string
	Name        string
	Type        string
	URL         string
	LastChecked time.Time
}

// PIRConnection links PIRs that the cross-PIR analysis found related.
type PIRConnection struct {
	ConnectedPIRs  []string `json:"connected_pirs"`
	ConnectionType string   `json:"connection_type"`
	Explanation    string   `json:"explanation"`
}

// StrategicInsight is one decision-relevant finding from the cross-PIR
// analysis.
type StrategicInsight struct {
	Insight            string   `json:"insight"`
	SupportingArticles []string `json:"supporting_articles"`
	DecisionImpact     string   `json:"decision_impact"`
}

// CrossPIRAnalysis is the optional campaign-level analysis over the
// highest-scoring documents of all PIRs.
type CrossPIRAnalysis struct {
	Connections []PIRConnection    `json:"pir_connections"`
	Insights    []StrategicInsight `json:"strategic_insights"`
}

// PIRResult aggregates one PIR's collection outcome.
type PIRResult struct {
	PIRID          string
	Queries        []string
	QueryFallback  bool
	Documents      int
	Evaluations    int
	SignalsCreated int
	SignalsDeduped int
	Errors         int
}

// CampaignSummary is the orchestrator's final report.
type CampaignSummary struct {
	SessionID      string
	Strategy       *Strategy
	Params         CollectionParams
	PIRsProcessed  int
	PIRsSkipped    int
	SourcesFound   int
	SourcesFailed  []string
	Documents      int
	Evaluations    int
	SignalsCreated int
	SignalsDeduped int
	ErrorCounts    map[string]int
	PIRResults     []PIRResult
	CrossPIR       *CrossPIRAnalysis
	Partial        bool
	StartedAt      time.Time
	Duration       time.Duration
}
