package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/pastewire/orchestrator/internal/preset"
)

const presetsKey = "presets"

// LoadPresets reads the persisted preset list. A missing record is an empty
// list.
func (s *Store) LoadPresets(ctx context.Context) ([]preset.Preset, error) {
	var raw string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM records WHERE key = ?`, presetsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load presets: %w", err)
	}
	var list []preset.Preset
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("store: decode presets: %w", err)
	}
	return list, nil
}

// SavePresets replaces the persisted preset list.
func (s *Store) SavePresets(ctx context.Context, list []preset.Preset) error {
	if list == nil {
		list = []preset.Preset{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("store: encode presets: %w", err)
	}
	err = s.exec(ctx, `
		INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		presetsKey, string(raw), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: save presets: %w", err)
	}
	return nil
}
