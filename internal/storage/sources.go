package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
)

// GetOrCreateSource upserts a signal source keyed by (name, url) and
// returns its id. The source's last_checked is bumped either way, so
// concurrent campaigns racing on the same source converge on one row.
func (db *DB) GetOrCreateSource(ctx context.Context, name, url, sourceType string) (string, error) {
	var id pgtype.UUID

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO signal_sources (source_name, source_type, source_url, last_checked)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (source_name, source_url) DO UPDATE SET
			last_checked = NOW()
		RETURNING id
	`, SanitizeUTF8(name), sourceType, SanitizeUTF8(url)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert signal source: %w", err)
	}

	return fromUUID(id), nil
}

// FeedSourcesDue returns feed sources that have a URL and were not
// checked within minInterval. A zero minInterval returns every feed
// source.
func (db *DB) FeedSourcesDue(ctx context.Context, minInterval time.Duration) ([]domain.SignalSource, error) {
	cutoff := time.Now().Add(-minInterval)

	rows, err := db.Pool.Query(ctx, `
		SELECT id, source_name, source_type, source_url, last_checked
		FROM signal_sources
		WHERE source_type = $1
		  AND source_url <> ''
		  AND (last_checked IS NULL OR last_checked < $2)
		ORDER BY last_checked NULLS FIRST
	`, domain.SourceTypeFeed, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query feed sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.SignalSource

	for rows.Next() {
		var (
			id          pgtype.UUID
			name        string
			sourceType  string
			url         string
			lastChecked pgtype.Timestamptz
		)

		if err := rows.Scan(&id, &name, &sourceType, &url, &lastChecked); err != nil {
			return nil, fmt.Errorf("scan feed source row: %w", err)
		}

		sources = append(sources, domain.SignalSource{
			ID:          fromUUID(id),
			Name:        name,
			Type:        sourceType,
			URL:         url,
			LastChecked: fromTimestamptz(lastChecked),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed source rows: %w", err)
	}

	return sources, nil
}

// TouchSource updates a source's last_checked timestamp.
func (db *DB) TouchSource(ctx context.Context, id string) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE signal_sources SET last_checked = NOW() WHERE id = $1
	`, toUUID(id)); err != nil {
		return fmt.Errorf("touch signal source: %w", err)
	}

	return nil
}
