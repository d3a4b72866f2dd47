package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zombar/textengine/internal/executor"
	"github.com/zombar/textengine/internal/models"
)

// RecordAttempt appends one attempt to the journal
func (db *DB) RecordAttempt(ctx context.Context, rec models.AttemptRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO attempts (request_id, operation, attempt, kind, delay_ms, latency_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.RequestID, rec.Operation, rec.Attempt, rec.Kind, rec.DelayMS, rec.LatencyMS, rec.Error, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the attempts journaled for requestID in order
func (db *DB) ListAttempts(ctx context.Context, requestID string) ([]models.AttemptRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT request_id, operation, attempt, kind, delay_ms, latency_ms, error, created_at
		FROM attempts
		WHERE request_id = ?
		ORDER BY attempt ASC, id ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	records := []models.AttemptRecord{}
	for rows.Next() {
		var rec models.AttemptRecord
		if err := rows.Scan(&rec.RequestID, &rec.Operation, &rec.Attempt, &rec.Kind,
			&rec.DelayMS, &rec.LatencyMS, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attempts: %w", err)
	}
	return records, nil
}

// PruneAttempts deletes attempts older than cutoff and returns how many went
func (db *DB) PruneAttempts(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM attempts WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune attempts: %w", err)
	}
	return res.RowsAffected()
}

// ObserveAttempt journals an executor attempt. Attempts without a request id
// are skipped and write failures are logged, never returned to the executor.
func (db *DB) ObserveAttempt(ctx context.Context, a executor.Attempt) {
	if a.RequestID == "" {
		return
	}
	rec := models.AttemptRecord{
		RequestID: a.RequestID,
		Operation: a.Operation,
		Attempt:   a.Index,
		Kind:      string(a.Kind),
		DelayMS:   a.Delay.Milliseconds(),
		LatencyMS: a.Latency.Milliseconds(),
		CreatedAt: a.At,
	}
	if a.Err != nil {
		rec.Error = a.Err.Error()
	}
	// the attempt may have been canceled with the caller's context
	if err := db.RecordAttempt(context.WithoutCancel(ctx), rec); err != nil {
		slog.WarnContext(ctx, "failed to journal attempt", "request_id", a.RequestID, "error", err)
	}
}
