package store

import (
	"context"
	"fmt"
	"time"
)

// Run statuses recorded on pipeline_runs.
const (
	RunStatusStarted   = "started"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// StartRun records a new pipeline run in started state.
func (db *DB) StartRun(ctx context.Context, runID, sourceSystem string) error {
	_, err := db.sql.ExecContext(ctx, `
		INSERT INTO pipeline_runs (run_id, source_system, status, started_at)
		VALUES (?, ?, ?, ?)`,
		runID, sourceSystem, RunStatusStarted, now())
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run completed with its final counts.
func (db *DB) CompleteRun(ctx context.Context, runID string, processed, failed int) error {
	_, err := db.sql.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET status = ?, records_processed = ?, records_failed = ?, completed_at = ?
		WHERE run_id = ?`,
		RunStatusCompleted, processed, failed, now(), runID)
	if err != nil {
		return fmt.Errorf("failed to record run completion: %w", err)
	}
	return nil
}

// FailRun marks a run failed with the error that killed it.
func (db *DB) FailRun(ctx context.Context, runID, errMsg string) error {
	_, err := db.sql.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET status = ?, error_message = ?, completed_at = ?
		WHERE run_id = ?`,
		RunStatusFailed, errMsg, now(), runID)
	if err != nil {
		return fmt.Errorf("failed to record run failure: %w", err)
	}
	return nil
}

// RunRecord is a pipeline run read back from storage.
type RunRecord struct {
	RunID            string
	SourceSystem     string
	Status           string
	RecordsProcessed int
	RecordsFailed    int
	ErrorMessage     string
}

// GetRun fetches one pipeline run by ID.
func (db *DB) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	var rec RunRecord
	var errMsg *string
	err := db.sql.QueryRowContext(ctx, `
		SELECT run_id, source_system, status, records_processed, records_failed, error_message
		FROM pipeline_runs WHERE run_id = ?`, runID).
		Scan(&rec.RunID, &rec.SourceSystem, &rec.Status,
			&rec.RecordsProcessed, &rec.RecordsFailed, &errMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if errMsg != nil {
		rec.ErrorMessage = *errMsg
	}
	return &rec, nil
}
