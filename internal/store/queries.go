package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Run operations

// InsertRun records run and its per-tool results in one transaction and
// returns the new run ID.
func (s *Store) InsertRun(run *Run) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO runs
		(operation, started_at, duration_seconds, success, dry_run, succeeded, failed, skipped, blocked,
		 rollback_script, rollback_attempted, rollback_succeeded, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := tx.Exec(query,
		run.Operation,
		run.StartedAt.UTC().Format(timeLayout),
		run.DurationSeconds,
		run.Success,
		run.DryRun,
		run.Succeeded,
		run.Failed,
		run.Skipped,
		run.Blocked,
		nullString(run.RollbackScript),
		run.RollbackAttempted,
		run.RollbackSucceeded,
		nullString(run.ErrorMessage),
	)
	if err != nil {
		return 0, wrapQueryErr(err, "failed to insert %s run", run.Operation)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run ID: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO run_results
		(run_id, position, tool, manager, status, success, previous_version, new_version, duration_seconds, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, r := range run.Results {
		_, err := stmt.Exec(
			id,
			i,
			r.Tool,
			nullString(r.Manager),
			r.Status,
			r.Success,
			nullString(r.PreviousVersion),
			nullString(r.NewVersion),
			r.DurationSeconds,
			nullString(r.ErrorMessage),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert result for %s: %w", r.Tool, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	run.ID = id
	return id, nil
}

// GetRun retrieves a run and its results by ID.
func (s *Store) GetRun(id int64) (*Run, error) {
	query := `
		SELECT id, operation, started_at, duration_seconds, success, dry_run, succeeded, failed, skipped, blocked,
		       rollback_script, rollback_attempted, rollback_succeeded, error_message
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %d not found", id)
	}
	if err != nil {
		return nil, wrapQueryErr(err, "failed to get run %d", id)
	}

	run.Results, err = s.runResults(id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first, without their
// results. limit <= 0 returns every run.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	query := `
		SELECT id, operation, started_at, duration_seconds, success, dry_run, succeeded, failed, skipped, blocked,
		       rollback_script, rollback_attempted, rollback_succeeded, error_message
		FROM runs
		ORDER BY started_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrapQueryErr(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func (s *Store) runResults(runID int64) ([]RunResult, error) {
	query := `
		SELECT run_id, tool, manager, status, success, previous_version, new_version, duration_seconds, error_message
		FROM run_results
		WHERE run_id = ?
		ORDER BY position
	`

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, wrapQueryErr(err, "failed to get results for run %d", runID)
	}
	defer rows.Close()

	var results []RunResult
	for rows.Next() {
		r, err := scanRunResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}

	return results, nil
}

// ToolHistory returns every recorded install or upgrade of tool, newest
// first.
func (s *Store) ToolHistory(tool string, limit int) ([]ToolEvent, error) {
	query := `
		SELECT rr.run_id, rr.tool, rr.manager, rr.status, rr.success, rr.previous_version, rr.new_version,
		       rr.duration_seconds, rr.error_message, r.operation, r.started_at
		FROM run_results rr
		JOIN runs r ON r.id = rr.run_id
		WHERE rr.tool = ?
		ORDER BY r.started_at DESC, r.id DESC
	`
	args := []any{tool}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrapQueryErr(err, "failed to get history for %s", tool)
	}
	defer rows.Close()

	var events []ToolEvent
	for rows.Next() {
		var ev ToolEvent
		var manager, prev, next, errMsg sql.NullString
		var startedAt string

		err := rows.Scan(
			&ev.RunID,
			&ev.Tool,
			&manager,
			&ev.Status,
			&ev.Success,
			&prev,
			&next,
			&ev.DurationSeconds,
			&errMsg,
			&ev.Operation,
			&startedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		ev.Manager, ev.PreviousVersion, ev.NewVersion, ev.ErrorMessage = manager.String, prev.String, next.String, errMsg.String

		ev.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return events, nil
}

// DeleteRunsBefore removes runs started before cutoff, with their results.
// Returns the number of runs deleted.
func (s *Store) DeleteRunsBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM runs WHERE started_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, wrapQueryErr(err, "failed to delete old runs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted runs: %w", err)
	}
	return n, nil
}

// Reconciliation operations

// InsertReconciliation records one reconcile pass.
func (s *Store) InsertReconciliation(rec *Reconciliation) error {
	query := `
		INSERT INTO reconciliations
		(tool, mode, action, installations, preferred_path, active_path, success, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.Exec(query,
		rec.Tool,
		rec.Mode,
		rec.Action,
		rec.Installations,
		nullString(rec.PreferredPath),
		nullString(rec.ActivePath),
		rec.Success,
		nullString(rec.ErrorMessage),
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return wrapQueryErr(err, "failed to insert reconciliation for %s", rec.Tool)
	}

	rec.ID, _ = res.LastInsertId()
	return nil
}

// ListReconciliations returns recorded reconcile passes, newest first.
// An empty tool lists every tool.
func (s *Store) ListReconciliations(tool string, limit int) ([]*Reconciliation, error) {
	query := `
		SELECT id, tool, mode, action, installations, preferred_path, active_path, success, error_message, created_at
		FROM reconciliations
	`
	args := []any{}
	if tool != "" {
		query += " WHERE tool = ?"
		args = append(args, tool)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrapQueryErr(err, "failed to list reconciliations")
	}
	defer rows.Close()

	var recs []*Reconciliation
	for rows.Next() {
		var rec Reconciliation
		var preferred, active, errMsg sql.NullString
		var createdAt string

		err := rows.Scan(
			&rec.ID,
			&rec.Tool,
			&rec.Mode,
			&rec.Action,
			&rec.Installations,
			&preferred,
			&active,
			&rec.Success,
			&errMsg,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation row: %w", err)
		}
		rec.PreferredPath, rec.ActivePath, rec.ErrorMessage = preferred.String, active.String, errMsg.String

		rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		recs = append(recs, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reconciliations: %w", err)
	}

	return recs, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var startedAt string
	var script, errMsg sql.NullString

	err := row.Scan(
		&run.ID,
		&run.Operation,
		&startedAt,
		&run.DurationSeconds,
		&run.Success,
		&run.DryRun,
		&run.Succeeded,
		&run.Failed,
		&run.Skipped,
		&run.Blocked,
		&script,
		&run.RollbackAttempted,
		&run.RollbackSucceeded,
		&errMsg,
	)
	if err != nil {
		return nil, err
	}
	run.RollbackScript, run.ErrorMessage = script.String, errMsg.String

	run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	return &run, nil
}

func scanRunResult(row rowScanner) (RunResult, error) {
	var r RunResult
	var manager, prev, next, errMsg sql.NullString

	err := row.Scan(
		&r.RunID,
		&r.Tool,
		&manager,
		&r.Status,
		&r.Success,
		&prev,
		&next,
		&r.DurationSeconds,
		&errMsg,
	)
	if err != nil {
		return r, err
	}
	r.Manager, r.PreviousVersion, r.NewVersion, r.ErrorMessage = manager.String, prev.String, next.String, errMsg.String
	return r, nil
}

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
