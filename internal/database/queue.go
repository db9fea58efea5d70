// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

/*
queue.go - Durable Work Queue

Queue entries decouple pending pipeline work from the films' own processing
status so interrupted runs resume from durable state. Processed entries are
marked completed, never deleted; ClearQueue is the only deletion path.

The drain query is a fixed prepared statement with a LIMIT. Earlier designs
joined the queue and film tables with a dynamic IN (...) list sized to the
batch, which proved failure-prone under load; fixed-shape SQL avoids that
class of problem entirely.
*/

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tomtom215/vitascope/internal/models"
)

// EnqueueFilms adds external IDs to the work queue with the given priority.
// Re-adding an existing entry resets it to pending and raises its priority
// if the new one is higher; it never lowers priority or duplicates rows.
// Returns how many entries were newly added or re-opened.
func (db *DB) EnqueueFilms(ctx context.Context, externalIDs []int64, priority int) (int, error) {
	added := 0
	for _, id := range externalIDs {
		res, err := db.conn.ExecContext(ctx, `
			INSERT INTO queue_entries (external_id, priority, status)
			VALUES (?, ?, 'pending')
			ON CONFLICT (external_id) DO UPDATE SET
				status = 'pending',
				priority = greatest(queue_entries.priority, excluded.priority),
				processed_at = NULL`,
			id, priority)
		if err != nil {
			return added, fmt.Errorf("enqueue film %d: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			added++
		}
	}
	return added, nil
}

// NextQueueEntries returns up to limit pending entries in priority-then-
// insertion order. This ordering is the only guarantee within one run;
// across runs only eventual completion is promised.
func (db *DB) NextQueueEntries(ctx context.Context, limit int) ([]models.QueueEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT external_id, priority, status, added_at, processed_at
		FROM queue_entries
		WHERE status = 'pending'
		ORDER BY priority DESC, added_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("next queue entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []models.QueueEntry
	for rows.Next() {
		var e models.QueueEntry
		var status string
		var processed sql.NullTime
		if err := rows.Scan(&e.ExternalID, &e.Priority, &status, &e.AddedAt, &processed); err != nil {
			return nil, err
		}
		e.Status = models.QueueStatus(status)
		if processed.Valid {
			e.ProcessedAt = processed.Time
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkQueueEntry records the outcome of a drained entry. Entries stay in
// the table for auditability; cleanup is an explicit administrative clear.
func (db *DB) MarkQueueEntry(ctx context.Context, externalID int64, status models.QueueStatus) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE queue_entries
		SET status = ?, processed_at = CURRENT_TIMESTAMP
		WHERE external_id = ?`, string(status), externalID)
	if err != nil {
		return fmt.Errorf("mark queue entry %d: %w", externalID, err)
	}
	return nil
}

// ClearQueue removes queue entries by type: "completed", "failed", or
// "all". This is the only operation that deletes queue rows, and it is
// idempotent. Returns the number of removed entries.
func (db *DB) ClearQueue(ctx context.Context, clearType string) (int64, error) {
	var res sql.Result
	var err error
	switch clearType {
	case "completed", "failed":
		res, err = db.conn.ExecContext(ctx,
			`DELETE FROM queue_entries WHERE status = ?`, clearType)
	case "all":
		res, err = db.conn.ExecContext(ctx, `DELETE FROM queue_entries`)
	default:
		return 0, fmt.Errorf("unknown clear type %q", clearType)
	}
	if err != nil {
		return 0, fmt.Errorf("clear queue (%s): %w", clearType, err)
	}
	return res.RowsAffected()
}

// QueueDepth returns the number of pending queue entries.
func (db *DB) QueueDepth(ctx context.Context) (int64, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM queue_entries WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}
