package store

import (
	"context"
	"database/sql"
	"fmt"
)

// sequenceCounter manages the global monotonic sequence number shared by
// turn records, chat messages and LLM events. Per-table rowids can't order
// rows across tables; this counter assigns one increasing sequence to every
// appended row regardless of table, so a transcript and its turn log can be
// interleaved in the order they were written.
//
// Next takes the caller's DBTX so the increment joins an open transaction
// and rolls back with it.
type sequenceCounter struct{}

// newSequenceCounter ensures the tracking table exists and is seeded.
func newSequenceCounter(db *sql.DB) (*sequenceCounter, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS global_sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		next_val INTEGER NOT NULL DEFAULT 1
	)`)
	if err != nil {
		return nil, fmt.Errorf("create sequence table: %w", err)
	}

	_, err = db.Exec(`INSERT OR IGNORE INTO global_sequence (id, next_val) VALUES (1, 1)`)
	if err != nil {
		return nil, fmt.Errorf("seed sequence: %w", err)
	}

	return &sequenceCounter{}, nil
}

// Next atomically returns the next sequence number and increments the counter.
func (sc *sequenceCounter) Next(ctx context.Context, db DBTX) (int64, error) {
	var seq int64
	err := db.QueryRowContext(ctx,
		`UPDATE global_sequence SET next_val = next_val + 1 WHERE id = 1 RETURNING next_val - 1`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}
