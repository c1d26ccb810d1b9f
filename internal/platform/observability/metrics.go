package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CampaignsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sigbridge_campaigns_total",
		Help: "The total number of collection campaigns by outcome",
	}, []string{"status"})

	CampaignDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sigbridge_campaign_duration_seconds",
		Help:    "Duration of collection campaigns",
		Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
	})

	PIRsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sigbridge_pirs_total",
		Help: "The total number of PIRs handled by a campaign",
	}, []string{"status"})

	// Source discovery metrics
	SourcesValidated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sigbridge_sources_validated_total",
		Help: "Feed sources that passed validation, by discovery method",
	}, []string{"method"})

	SourcesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sigbridge_sources_failed_total",
		Help: "Recommended sources that failed both discovery phases",
	})

	DiscoveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sigbridge_discovery_duration_seconds",
		Help:    "Duration of the full source discovery pass",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
	})

	// Collection metrics
	DocumentsCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sigbridge_documents_collected_total",
		Help: "Documents pulled from collection backends",
	}, []string{"backend"})

	CollectionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sigbridge_collection_errors_total",
		Help: "Backend fetch failures",
	}, []string{"backend"})

	// Evaluation metrics
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sigbridge_evaluations_total",
		Help: "Document evaluations by outcome",
	}, []string{"status"})

	SignalsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sigbridge_signals_created_total",
		Help: "Signals persisted to the database",
	})

	SignalsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sigbridge_signals_deduped_total",
		Help: "Signals dropped as duplicates within a campaign",
	})

	SignalsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sigbridge_signals_deleted_total",
		Help: "Signals removed by the retention sweep",
	})

	// LLM metrics
	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sigbridge_llm_request_duration_seconds",
		Help:    "Duration of LLM requests by task",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"task"})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sigbridge_llm_requests_total",
		Help: "Total number of LLM requests by task",
	}, []string{"task", "status"})

	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sigbridge_errors_total",
		Help: "Campaign errors by kind",
	}, []string{"kind"})
)
