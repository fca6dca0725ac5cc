// Package cooldown persists the automation cooldown ledger to SQLite, per
// SPEC_FULL.md §4.11. Disabled by default: the in-memory ledger already
// satisfies the spec's steady-state behaviour, and a full reload always
// resets it regardless of whether this store is wired in. Only a process
// restart ever reads from it back.
package cooldown

import (
	"context"
	"time"

	"github.com/nerrad567/switchsentry/internal/infrastructure/database"
)

// Store persists (rule, entity) -> last-fire timestamp rows.
type Store struct {
	db *database.DB
}

// New returns a Store backed by db.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// Load returns every persisted last-fire timestamp for ruleName.
func (s *Store) Load(ruleName string) (map[string]time.Time, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT entity_key, last_fire FROM cooldowns WHERE rule_name = ?`, ruleName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			continue
		}
		out[key] = ts
	}
	return out, rows.Err()
}

// Save upserts the last-fire timestamp for (ruleName, entityKey).
func (s *Store) Save(ruleName, entityKey string, firedAt time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cooldowns (rule_name, entity_key, last_fire)
		VALUES (?, ?, ?)
		ON CONFLICT(rule_name, entity_key) DO UPDATE SET last_fire = excluded.last_fire
	`, ruleName, entityKey, firedAt.Format(time.RFC3339Nano))
	return err
}
