package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pmendes/parley/internal/model"
)

// SaveSnapshot persists the snapshot under key, replacing any prior
// value. Calling it again with the same content is a semantic no-op.
func (s *Store) SaveSnapshot(key string, snap model.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.Exec(`
		INSERT INTO snapshots (key, body, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			body = excluded.body,
			updated_at = excluded.updated_at`,
		key, body, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the last saved snapshot for key. found is false
// on first run, before anything was ever persisted.
func (s *Store) LoadSnapshot(key string) (model.Snapshot, bool, error) {
	var body []byte
	err := s.QueryRow(`SELECT body FROM snapshots WHERE key = ?`, key).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read snapshot: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}
