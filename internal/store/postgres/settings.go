package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"qline/internal/store"
)

const (
	settingMaintenance = "maintenance"
	settingRelayOffset = "relay_offset"
)

func (s *Store) GetMaintenance(ctx context.Context) (store.Maintenance, error) {
	var m store.Maintenance
	found, err := s.getSetting(ctx, settingMaintenance, &m)
	if err != nil {
		return store.Maintenance{}, err
	}
	if !found {
		return store.Maintenance{}, nil
	}
	return m, nil
}

func (s *Store) SetMaintenance(ctx context.Context, m store.Maintenance) error {
	return s.setSetting(ctx, settingMaintenance, m)
}

func (s *Store) GetRelayOffset(ctx context.Context) (store.RelayOffset, error) {
	var offset store.RelayOffset
	found, err := s.getSetting(ctx, settingRelayOffset, &offset)
	if err != nil {
		return store.RelayOffset{}, err
	}
	if !found {
		return store.RelayOffset{}, nil
	}
	return offset, nil
}

func (s *Store) SetRelayOffset(ctx context.Context, offset store.RelayOffset) error {
	return s.setSetting(ctx, settingRelayOffset, offset)
}

func (s *Store) getSetting(ctx context.Context, key string, target any) (bool, error) {
	var raw []byte
	row := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) setSetting(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, raw)
	return err
}
