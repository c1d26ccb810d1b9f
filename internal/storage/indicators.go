package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
)

// PIRsBySession returns the PIR indicators to collect against. Rows
// without a pir_id are not PIRs and are excluded. An empty sessionID
// returns PIRs from all sessions.
func (db *DB) PIRsBySession(ctx context.Context, sessionID string) ([]domain.PIR, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, pir_id, indicator_text, priority, session_id
		FROM indicators
		WHERE pir_id IS NOT NULL
		  AND ($1::uuid IS NULL OR session_id = $1)
		ORDER BY created_at
	`, toUUID(sessionID))
	if err != nil {
		return nil, fmt.Errorf("query pir indicators: %w", err)
	}
	defer rows.Close()

	var pirs []domain.PIR

	for rows.Next() {
		var (
			id       pgtype.UUID
			pirID    pgtype.UUID
			text     string
			priority pgtype.Text
			session  pgtype.UUID
		)

		if err := rows.Scan(&id, &pirID, &text, &priority, &session); err != nil {
			return nil, fmt.Errorf("scan pir indicator row: %w", err)
		}

		pir := domain.PIR{
			ID:        fromUUID(id),
			PIRID:     fromUUID(pirID),
			Text:      text,
			Priority:  fromText(priority),
			SessionID: fromUUID(session),
		}
		if pir.Priority == "" {
			pir.Priority = domain.PriorityMedium
		}

		pirs = append(pirs, pir)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pir indicator rows: %w", err)
	}

	return pirs, nil
}
