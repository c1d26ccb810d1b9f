package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
)

// ErrNoStrategicIntent is returned when no strategic intent exists.
var ErrNoStrategicIntent = errors.New("no strategic intent found")

// LatestStrategicContext loads the most recent strategic intent together
// with its decisions. An empty sessionID selects the most recent intent
// across all sessions.
func (db *DB) LatestStrategicContext(ctx context.Context, sessionID string) (*domain.StrategicContext, error) {
	var (
		intentID   pgtype.UUID
		intentText string
		background pgtype.Text
		session    pgtype.UUID
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT id, intent_text, context, session_id
		FROM strategic_intents
		WHERE $1::uuid IS NULL OR session_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, toUUID(sessionID)).Scan(&intentID, &intentText, &background, &session)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoStrategicIntent
	}

	if err != nil {
		return nil, fmt.Errorf("query strategic intent: %w", err)
	}

	decisions, err := db.decisionsByIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	return &domain.StrategicContext{
		Objective:  intentText,
		Background: fromText(background),
		Decisions:  decisions,
		SessionID:  fromUUID(session),
	}, nil
}

func (db *DB) decisionsByIntent(ctx context.Context, intentID pgtype.UUID) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT decision_text
		FROM decisions
		WHERE intent_id = $1
		ORDER BY created_at
	`, intentID)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []string

	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan decision row: %w", err)
		}

		decisions = append(decisions, text)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision rows: %w", err)
	}

	return decisions, nil
}
