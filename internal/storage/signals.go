package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
)

// InsertSignal persists one graded signal and returns its id. Raw signal
// text is truncated to keep rows compact; article content is stored in
// full.
func (db *DB) InsertSignal(ctx context.Context, signal *domain.Signal) (string, error) {
	var id pgtype.UUID

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO signals (
			indicator_id, source_id, raw_signal_text, match_score, observed_at,
			session_id, status, article_url, article_title, article_content,
			published_date, ai_reasoning
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`,
		toUUID(signal.IndicatorID),
		toUUID(signal.SourceID),
		SanitizeUTF8(truncateRunes(signal.RawSignalText, maxRawSignalTextLen)),
		toFloat4(signal.MatchScore),
		toTimestamptz(signal.ObservedAt),
		toUUID(signal.SessionID),
		signal.Status,
		toText(signal.ArticleURL),
		toText(signal.ArticleTitle),
		toText(signal.ArticleContent),
		toTimestamptzPtr(signal.PublishedDate),
		toText(signal.AIReasoning),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert signal: %w", err)
	}

	return fromUUID(id), nil
}

// DeleteSignalsBefore removes signals observed before the cutoff and
// returns how many rows were deleted.
func (db *DB) DeleteSignalsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM signals WHERE observed_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old signals: %w", err)
	}

	return tag.RowsAffected(), nil
}

// CountSignalsSince returns the number of signals observed at or after
// the given time.
func (db *DB) CountSignalsSince(ctx context.Context, since time.Time) (int, error) {
	var count int

	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)::int FROM signals WHERE observed_at >= $1
	`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count signals: %w", err)
	}

	return count, nil
}

// truncateRunes shortens s to at most n runes without splitting a
// multibyte character.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}

	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n])
}
