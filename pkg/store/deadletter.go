package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/webleads/ingestion/pkg/model"
)

// ListDeadLetter returns the most recent dead-lettered work items,
// newest first, for operator inspection.
func (s *Store) ListDeadLetter(ctx context.Context, limit int) ([]*model.DeadLetterItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, work_item_id, kind, dedup_key, payload, attempts, last_error, failed_at
		FROM work_dead_letter ORDER BY failed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list dead letter: %w", err)
	}
	defer rows.Close()

	var out []*model.DeadLetterItem
	for rows.Next() {
		var d model.DeadLetterItem
		var deadLetterID uuid.UUID
		if err := rows.Scan(&deadLetterID, &d.ID, &d.Kind, &d.DedupKey, &d.Payload, &d.Attempts, &d.LastError, &d.FailedAt); err != nil {
			return nil, fmt.Errorf("store: scan dead letter row: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// RequeueDeadLetter resets a dead-lettered item's work_items row for one
// more attempt and removes it from work_dead_letter, for an operator who
// has fixed the underlying cause (e.g. a listing API outage).
func (s *Store) RequeueDeadLetter(ctx context.Context, workItemID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin requeue tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE work_items SET completed_at = NULL, attempts = max_attempts - 1, locked_by = NULL,
			lock_expires_at = NULL, scheduled_not_before = now()
		WHERE id = $1`, workItemID)
	if err != nil {
		return fmt.Errorf("store: reset work item %s: %w", workItemID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: work item %s: %w", workItemID, errNotFound)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM work_dead_letter WHERE work_item_id = $1`, workItemID); err != nil {
		return fmt.Errorf("store: clear dead letter for %s: %w", workItemID, err)
	}
	return tx.Commit(ctx)
}
