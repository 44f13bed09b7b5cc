package sqlite

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"idle_engine/internal/logbus"
	"idle_engine/internal/model"
)

func (s *Store) AppendEvent(ctx context.Context, evt model.Event) (model.Event, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.AtMs == 0 {
		evt.AtMs = time.Now().UnixMilli()
	}
	fields := "{}"
	if len(evt.Fields) > 0 {
		b, err := json.Marshal(evt.Fields)
		if err != nil {
			return model.Event{}, err
		}
		fields = string(b)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, at_ms, level, msg, fields_json) VALUES (?, ?, ?, ?, ?)
	`, evt.ID, evt.AtMs, evt.Level, evt.Msg, fields); err != nil {
		return model.Event{}, err
	}
	if s.eventRetention > 0 {
		if _, err := s.db.ExecContext(ctx, `
			DELETE FROM events WHERE id IN (
				SELECT id FROM events ORDER BY at_ms DESC, rowid DESC LIMIT -1 OFFSET ?
			)
		`, s.eventRetention); err != nil {
			return model.Event{}, err
		}
	}
	return evt, nil
}

// ListEvents returns the newest events first.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]model.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, at_ms, level, msg, fields_json FROM events
		ORDER BY at_ms DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Event, 0)
	for rows.Next() {
		var (
			evt    model.Event
			fields string
		)
		if err := rows.Scan(&evt.ID, &evt.AtMs, &evt.Level, &evt.Msg, &fields); err != nil {
			return nil, err
		}
		if fields != "" && fields != "{}" {
			_ = json.Unmarshal([]byte(fields), &evt.Fields)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// Persist implements logbus.Sink. Debug logs are not kept.
func (s *Store) Persist(at time.Time, data logbus.LogData) {
	if data.Level == "debug" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.AppendEvent(ctx, model.Event{
		AtMs:   at.UnixMilli(),
		Level:  data.Level,
		Msg:    data.Msg,
		Fields: data.Fields,
	}); err != nil {
		log.Printf("persist event: %v", err)
	}
}
