package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"orderflow/internal/domain"
	"orderflow/internal/store"
)

// Writer appends lifecycle events to the Events collection.
type Writer struct {
	Store store.Store
	Now   func() time.Time
}

type EventPayload map[string]any

// Append records one event. The engine calls this after the primary row
// write has already succeeded, so failures are logged rather than returned;
// the transition itself must not be reported as failed.
func (w Writer) Append(ctx context.Context, evtType, entityKind, entityID, actorID string, payload EventPayload) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("events: marshal payload for %s: %v", evtType, err)
		data = []byte("{}")
	}
	row := store.Row{
		domain.FieldEventID:    uuid.New().String(),
		domain.FieldTS:         now().UTC().Format(time.RFC3339),
		domain.FieldType:       evtType,
		domain.FieldEntityKind: entityKind,
		domain.FieldEntityID:   entityID,
		domain.FieldActorID:    actorID,
		domain.FieldPayload:    string(data),
	}
	if err := w.Store.Append(ctx, domain.CollectionEvents, row); err != nil {
		log.Printf("events: append %s for %s %s: %v", evtType, entityKind, entityID, err)
	}
}

// After returns events with sequence numbers greater than the cursor, in
// ascending order, at most limit.
func After(ctx context.Context, s store.Store, cursor int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.List(ctx, domain.CollectionEvents)
	if err != nil {
		return nil, err
	}
	var out []domain.Event
	for _, r := range rows {
		e, err := domain.EventFromRow(r)
		if err != nil {
			return nil, fmt.Errorf("decode event row: %w", err)
		}
		if e.Seq <= cursor {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// LatestSeq returns the highest event sequence number, 0 when empty.
func LatestSeq(ctx context.Context, s store.Store) (int64, error) {
	rows, err := s.List(ctx, domain.CollectionEvents)
	if err != nil {
		return 0, err
	}
	var max int64
	for _, r := range rows {
		e, err := domain.EventFromRow(r)
		if err != nil {
			return 0, err
		}
		if e.Seq > max {
			max = e.Seq
		}
	}
	return max, nil
}
