package postgres

import (
	"context"
	"time"

	"github.com/v10ss/escashop/internal/store"
)

// ListOutboxEvents pages forward through the outbox. The cursor is the
// (created_at, event_id) pair of the last event seen, so rows sharing a
// timestamp across a batch boundary are never skipped. An empty afterID
// means "everything from the timestamp on".
func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, afterID string, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, type, payload, created_at
		FROM outbox_events
		WHERE created_at > $1 OR (created_at = $1 AND event_id > $2)
		ORDER BY created_at ASC, event_id ASC
		LIMIT $3
	`, after, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var ev store.OutboxEvent
		if err := rows.Scan(&ev.EventID, &ev.Type, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
