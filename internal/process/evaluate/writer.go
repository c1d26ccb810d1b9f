package evaluate

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
	"github.com/lueurxax/signal-bridge/internal/platform/observability"
)

const unknownSourceName = "Unknown Source"

// SignalStore is the slice of storage the writer needs.
type SignalStore interface {
	GetOrCreateSource(ctx context.Context, name, url, sourceType string) (string, error)
	InsertSignal(ctx context.Context, signal *domain.Signal) (string, error)
}

// Dedupe tracks (PIR, URL) pairs already written during one campaign. The
// key includes the PIR so two requirements may both signal the same URL; it
// is safe for the concurrent PIR writers to share one instance.
type Dedupe struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDedupe() *Dedupe {
	return &Dedupe{seen: make(map[string]struct{})}
}

// Claim reports whether the pair was already written, recording it if not.
func (d *Dedupe) Claim(pirID, url string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := pirID + "\n" + url
	if _, ok := d.seen[key]; ok {
		return true
	}

	d.seen[key] = struct{}{}

	return false
}

// Writer turns included evaluations into persisted signals.
type Writer struct {
	store  SignalStore
	logger *zerolog.Logger
}

func NewWriter(store SignalStore, logger *zerolog.Logger) *Writer {
	return &Writer{store: store, logger: logger}
}

// WriteResult reports one PIR's persistence outcome.
type WriteResult struct {
	Created int
	Deduped int
	Errors  int
}

// Write persists the evaluations that cross the inclusion bar, in score
// order as given, stopping once maxSignals have been created. Persistence
// failures skip the document and keep going.
func (w *Writer) Write(ctx context.Context, pir domain.PIR, params domain.CollectionParams, scored []Scored, dedupe *Dedupe) WriteResult {
	logger := w.logger.With().Str(logKeyPIR, pir.PIRID).Logger()

	var res WriteResult

	for _, s := range scored {
		if ctx.Err() != nil {
			break
		}

		if !s.Evaluation.ShouldSignal(params.Threshold) {
			continue
		}

		if res.Created >= params.MaxSignalsPerPIR {
			break
		}

		if dedupe.Claim(pir.PIRID, s.Document.URL) {
			res.Deduped++

			observability.SignalsDeduped.Inc()

			continue
		}

		if err := w.writeOne(ctx, pir, s); err != nil {
			res.Errors++

			logger.Warn().Err(err).Str(logKeyURL, s.Document.URL).Msg("Signal write failed")

			continue
		}

		res.Created++

		observability.SignalsCreated.Inc()
	}

	logger.Info().
		Int(logKeyCount, res.Created).
		Int("deduped", res.Deduped).
		Int(logKeyFailed, res.Errors).
		Msg("PIR signals written")

	return res
}

func (w *Writer) writeOne(ctx context.Context, pir domain.PIR, s Scored) error {
	sourceID, err := w.store.GetOrCreateSource(ctx, sourceName(s.Document), s.Document.URL, sourceTypeFor(s.Document.Backend))
	if err != nil {
		return err
	}

	signal := buildSignal(pir, s, sourceID, time.Now().UTC())

	_, err = w.store.InsertSignal(ctx, signal)

	return err
}

func buildSignal(pir domain.PIR, s Scored, sourceID string, observedAt time.Time) *domain.Signal {
	return &domain.Signal{
		IndicatorID:    pir.ID,
		SourceID:       sourceID,
		ArticleTitle:   s.Document.Title,
		ArticleContent: s.Document.Body,
		ArticleURL:     s.Document.URL,
		PublishedDate:  s.Document.PublishedAt,
		MatchScore:     s.Evaluation.Score,
		AIReasoning:    s.Evaluation.Reasoning,
		RawSignalText:  rawSignalText(s.Evaluation, observedAt),
		ObservedAt:     observedAt,
		SessionID:      pir.SessionID,
		Status:         domain.SignalStatusEvaluated,
	}
}

// rawSignalText packs the evaluation metadata into the legacy JSON column.
// The reasoning lives in its own column and is deliberately left out here.
func rawSignalText(eval domain.Evaluation, observedAt time.Time) string {
	connections := eval.Connections
	if connections == nil {
		connections = []string{}
	}

	meta := struct {
		Connections          []string `json:"strategic_connections"`
		DecisionSupportValue string   `json:"decision_support_value"`
		IntelligenceType     string   `json:"intelligence_type"`
		Urgency              string   `json:"urgency_match"`
		EvaluatedAt          string   `json:"evaluation_timestamp"`
	}{
		Connections:          connections,
		DecisionSupportValue: eval.DecisionSupportValue,
		IntelligenceType:     eval.IntelligenceType,
		Urgency:              eval.Urgency,
		EvaluatedAt:          observedAt.Format(time.RFC3339),
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}

	return string(raw)
}

func sourceName(doc domain.Document) string {
	if doc.Source == "" {
		return unknownSourceName
	}

	return doc.Source
}

func sourceTypeFor(backend string) string {
	switch backend {
	case domain.BackendFeed:
		return domain.SourceTypeFeed
	case domain.BackendSearch:
		return domain.SourceTypeSearch
	case domain.BackendFiling:
		return domain.SourceTypeFiling
	default:
		return domain.SourceTypeOther
	}
}
