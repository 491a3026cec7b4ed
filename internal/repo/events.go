package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-rolepricing/internal/events"
)

// EventsRepo persists domain events.
type EventsRepo struct {
	DB DBTX
}

// InsertEvent stores ev and returns it as written.
func (r EventsRepo) InsertEvent(ctx context.Context, ev events.Event) (events.Event, error) {
	payload := []byte(ev.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := r.DB.Exec(ctx,
		`INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at) VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.Topic, ev.AggregateID, payload, ev.OccurredAt)
	if err != nil {
		return events.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return ev, nil
}

// ListEvents returns the events recorded for aggregateID in order.
func (r EventsRepo) ListEvents(ctx context.Context, aggregateID uuid.UUID) ([]events.Event, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT id, topic, aggregate_id, payload, occurred_at FROM domain_events WHERE aggregate_id = $1 ORDER BY occurred_at, id`,
		aggregateID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	var out []events.Event
	for rows.Next() {
		var ev events.Event
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &payload, &ev.OccurredAt); err != nil {
			return nil, err
		}
		ev.Payload = payload
		out = append(out, ev)
	}
	return out, rows.Err()
}
