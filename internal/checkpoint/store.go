// Package checkpoint persists the source-id to destination-id mapping that
// makes re-runs idempotent, plus the per-record migration event log.
//
// A source ID present in the store is treated as fully migrated on resumption
// even if a prior run crashed between record creation and comment transfer
// and left that record's comments behind. The failed event row in the log is
// the operator's signal; the store does not track partial completion.
package checkpoint

import (
	"fmt"

	"github.com/lherron/wrkmig/internal/db"
	"github.com/lherron/wrkmig/internal/domain"
)

// Entry is one sourceID -> destID checkpoint pair.
type Entry struct {
	SourceID string
	DestID   int
}

// Store is the durable checkpoint map. All entries are loaded at open; reads
// are served from memory, writes commit to SQLite before returning. Single
// writer by construction (one driver, one pass), so no locking.
type Store struct {
	db      *db.DB
	entries map[string]int
}

// Open loads every checkpoint entry from the database. A load failure is
// fatal: running without the full checkpoint set could re-create records.
func Open(database *db.DB) (*Store, error) {
	s := &Store{db: database, entries: make(map[string]int)}

	rows, err := database.Query(`SELECT source_id, dest_id FROM checkpoints`)
	if err != nil {
		return nil, domain.Fatal(fmt.Errorf("failed to load checkpoints: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var sourceID string
		var destID int
		if err := rows.Scan(&sourceID, &destID); err != nil {
			return nil, domain.Fatal(fmt.Errorf("failed to scan checkpoint: %w", err))
		}
		s.entries[sourceID] = destID
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Fatal(fmt.Errorf("failed to load checkpoints: %w", err))
	}

	return s, nil
}

// Lookup returns the destination ID for a source ID, if recorded.
func (s *Store) Lookup(sourceID string) (int, bool) {
	destID, ok := s.entries[sourceID]
	return destID, ok
}

// Record persists a checkpoint entry. First writer wins: a second call with
// the same pair is a no-op, and a conflicting destination ID for an existing
// source ID is ignored in favor of the recorded one. The row is committed
// before Record returns, so a crash after a successful creation never loses
// the checkpoint. A persistence failure is fatal.
func (s *Store) Record(sourceID string, destID int) error {
	if _, ok := s.entries[sourceID]; ok {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return domain.Fatal(fmt.Errorf("failed to begin checkpoint transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO checkpoints (source_id, dest_id) VALUES (?, ?)
		 ON CONFLICT(source_id) DO NOTHING`,
		sourceID, destID,
	); err != nil {
		return domain.Fatal(fmt.Errorf("failed to write checkpoint for %s: %w", sourceID, err))
	}

	if err := tx.Commit(); err != nil {
		return domain.Fatal(fmt.Errorf("failed to commit checkpoint for %s: %w", sourceID, err))
	}

	s.entries[sourceID] = destID
	return nil
}

// Count returns the number of recorded entries.
func (s *Store) Count() int {
	return len(s.entries)
}

// Entries returns all checkpoint pairs ordered by recording time.
func (s *Store) Entries() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT source_id, dest_id FROM checkpoints ORDER BY recorded_at, source_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SourceID, &e.DestID); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
