package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webleads/ingestion/pkg/disposition"
	"github.com/webleads/ingestion/pkg/errclass"
	"github.com/webleads/ingestion/pkg/model"
)

// enqueueTx inserts one follow-up as a work item within an existing
// transaction. The partial unique index on (kind, dedup_key) WHERE
// completed_at IS NULL makes this idempotent: a duplicate enqueue for a
// still-open item is silently dropped.
func enqueueTx(ctx context.Context, tx pgx.Tx, f *disposition.FollowUp) error {
	payloadJSON, err := json.Marshal(f.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	notBefore := f.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now()
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO work_items (id, kind, dedup_key, payload, priority, scheduled_not_before, max_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (kind, dedup_key) WHERE completed_at IS NULL DO NOTHING`,
		uuid.New(), f.Kind, f.DedupKey, payloadJSON, f.Priority, notBefore, f.Kind.DefaultMaxAttempts(),
	)
	return err
}

// Enqueue is the standalone entry point for components outside the
// Disposition Engine's transition path — e.g. the Campaign Coordinator
// enqueuing scrape-zone items, or the scrape-zone handler enqueuing
// validate-business items. Retries of a failed item go through Fail.
func (s *Store) Enqueue(ctx context.Context, f *disposition.FollowUp) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin enqueue tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := enqueueTx(ctx, tx, f); err != nil {
		return fmt.Errorf("store: enqueue %s: %w", f.Kind, err)
	}
	return tx.Commit(ctx)
}

// Lease atomically claims the highest-priority, oldest-eligible,
// not-yet-completed item of one of the given kinds. SELECT ... FOR
// UPDATE SKIP LOCKED lets multiple worker processes lease concurrently
// without contending on the same row.
func (s *Store) Lease(ctx context.Context, kinds []model.WorkKind, workerID string, leaseDuration time.Duration) (*model.WorkItem, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: begin lease tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT id, kind, dedup_key, payload, priority, scheduled_not_before, attempts, max_attempts, created_at
		FROM work_items
		WHERE kind = ANY($1)
		  AND completed_at IS NULL
		  AND scheduled_not_before <= now()
		  AND (lock_expires_at IS NULL OR lock_expires_at < now())
		ORDER BY priority DESC, scheduled_not_before ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, kindStrings(kinds))

	var item model.WorkItem
	if err := row.Scan(&item.ID, &item.Kind, &item.DedupKey, &item.Payload, &item.Priority,
		&item.ScheduledNotBefore, &item.Attempts, &item.MaxAttempts, &item.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: select lease candidate: %w", err)
	}

	expiresAt := time.Now().Add(leaseDuration)
	if _, err := tx.Exec(ctx, `
		UPDATE work_items SET locked_by = $2, lock_expires_at = $3, attempts = attempts + 1 WHERE id = $1`,
		item.ID, workerID, expiresAt,
	); err != nil {
		return nil, fmt.Errorf("store: lock work item %s: %w", item.ID, err)
	}
	item.LockedBy = workerID
	item.LockExpiresAt = &expiresAt
	item.Attempts++

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("store: commit lease tx: %w", err)
	}
	return &item, nil
}

// Complete marks a leased item done.
func (s *Store) Complete(ctx context.Context, itemID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE work_items SET completed_at = now(), locked_by = NULL, lock_expires_at = NULL WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("store: complete work item %s: %w", itemID, err)
	}
	return nil
}

// Fail records a failed attempt. If the item has exhausted its retry
// budget, or lastErr's class is not retryable (errclass.Retryable), it
// is moved to work_dead_letter and marked completed (so it
// never competes for a lease slot again); otherwise it is released with
// its lock cleared so a future Lease call can retry it once
// scheduled_not_before allows (the caller computes backoff and passes
// the new NotBefore via retryNotBefore).
// Fail reports whether the item was moved to the dead letter table
// (deadLettered), so the caller can notify an operator.
func (s *Store) Fail(ctx context.Context, itemID uuid.UUID, lastErr error, retryNotBefore time.Time) (deadLettered bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("store: begin fail tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var item model.WorkItem
	row := tx.QueryRow(ctx, `SELECT id, kind, dedup_key, payload, attempts, max_attempts FROM work_items WHERE id = $1 FOR UPDATE`, itemID)
	if err := row.Scan(&item.ID, &item.Kind, &item.DedupKey, &item.Payload, &item.Attempts, &item.MaxAttempts); err != nil {
		return false, fmt.Errorf("store: load failing work item %s: %w", itemID, err)
	}

	deadLettered = item.Attempts >= item.MaxAttempts || !errclass.Retryable(lastErr)
	if deadLettered {
		if _, err := tx.Exec(ctx, `
			INSERT INTO work_dead_letter (id, work_item_id, kind, dedup_key, payload, attempts, last_error, failed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
			uuid.New(), item.ID, item.Kind, item.DedupKey, item.Payload, item.Attempts, lastErr.Error(),
		); err != nil {
			return false, fmt.Errorf("store: dead-letter work item %s: %w", itemID, err)
		}
		if _, err := tx.Exec(ctx, `UPDATE work_items SET completed_at = now(), locked_by = NULL, lock_expires_at = NULL WHERE id = $1`, itemID); err != nil {
			return false, fmt.Errorf("store: close dead-lettered work item %s: %w", itemID, err)
		}
	} else {
		if _, err := tx.Exec(ctx, `
			UPDATE work_items SET locked_by = NULL, lock_expires_at = NULL, scheduled_not_before = $2 WHERE id = $1`,
			itemID, retryNotBefore,
		); err != nil {
			return false, fmt.Errorf("store: reschedule work item %s: %w", itemID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("store: commit fail tx: %w", err)
	}
	return deadLettered, nil
}

func kindStrings(kinds []model.WorkKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
