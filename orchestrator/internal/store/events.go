package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event kinds.
const (
	EventPresetAdded   = "preset.added"
	EventPresetUpdated = "preset.updated"
	EventPresetDeleted = "preset.deleted"
	EventCaptureReject = "capture.rejected"
	EventDelivery      = "delivery.scheduled"
	EventMenuRebuilt   = "menu.rebuilt"
	EventResumed       = "presets.resumed"
)

// Event is one row of the event log.
type Event struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	PresetID  string    `json:"presetId,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"createdAt"`
}

// LogEvent records an event. Errors are logged and swallowed so a failing
// log never blocks a user action.
func (s *Store) LogEvent(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = "evt_" + uuid.Must(uuid.NewV7()).String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	err := s.exec(ctx, `
		INSERT INTO events (event_id, kind, preset_id, detail, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.PresetID, e.Detail, e.Success, e.CreatedAt.UnixMilli())
	if err != nil {
		slog.Error("store: event log failed", "error", err, "kind", e.Kind)
	}
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT event_id, kind, preset_id, detail, success, created_at
		FROM events ORDER BY created_at DESC, event_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var ms int64
		if err := rows.Scan(&e.ID, &e.Kind, &e.PresetID, &e.Detail, &e.Success, &ms); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		e.CreatedAt = time.UnixMilli(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}
