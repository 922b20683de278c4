package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Hemesh11/autotasker/internal/agent"
	"github.com/Hemesh11/autotasker/internal/scheduler"
)

// AppendFiring adds one row to the scheduler execution log.
func (d *DB) AppendFiring(ctx context.Context, f scheduler.Firing) error {
	query := `INSERT INTO job_executions (job_id, execution_id, request, fired_at, success, outcome, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := d.DB.ExecContext(ctx, query,
		f.JobID, f.ExecutionID, f.Request, formatTime(f.FiredAt),
		boolInt(f.Success), f.Outcome, f.Duration.Milliseconds())
	return err
}

// ListFirings returns the most recent firings, newest first.
func (d *DB) ListFirings(ctx context.Context, limit int) ([]scheduler.Firing, error) {
	query := `SELECT job_id, execution_id, request, fired_at, success, outcome, duration_ms
		FROM job_executions ORDER BY fired_at DESC, id DESC LIMIT ?`
	rows, err := d.DB.QueryContext(ctx, query, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scheduler.Firing
	for rows.Next() {
		var (
			f              scheduler.Firing
			jobID, execID  sql.NullString
			outcome        sql.NullString
			firedAt        sql.NullString
			success        int
			durationMillis sql.NullInt64
		)
		if err := rows.Scan(&jobID, &execID, &f.Request, &firedAt, &success, &outcome, &durationMillis); err != nil {
			return nil, err
		}
		f.JobID = jobID.String
		f.ExecutionID = execID.String
		f.FiredAt = parseTime(firedAt)
		f.Success = success != 0
		f.Outcome = outcome.String
		f.Duration = time.Duration(durationMillis.Int64) * time.Millisecond
		out = append(out, f)
	}
	return out, rows.Err()
}

// RecordExecution persists the log projection of one orchestrator run.
func (d *DB) RecordExecution(ctx context.Context, entry agent.ExecutionLog) (agent.LogReceipt, error) {
	plan, _ := json.Marshal(entry.Plan)
	results, _ := json.Marshal(entry.Results)
	errs, _ := json.Marshal(entry.Errors)

	query := `INSERT INTO run_logs (execution_id, source, request, plan, results, errors, retry_count, skipped, success, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := d.DB.ExecContext(ctx, query,
		entry.ExecutionID, entry.Source, entry.Request,
		string(plan), string(results), string(errs),
		entry.RetryCount, boolInt(entry.Skipped), boolInt(entry.Success),
		formatTime(entry.StartedAt), entry.Duration.Milliseconds())
	if err != nil {
		return agent.LogReceipt{ExecutionID: entry.ExecutionID}, err
	}
	return agent.LogReceipt{Success: true, ExecutionID: entry.ExecutionID}, nil
}

// ListRuns returns the most recent run logs, newest first.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]agent.ExecutionLog, error) {
	query := `SELECT execution_id, source, request, plan, results, errors, retry_count, skipped, success, started_at, duration_ms
		FROM run_logs ORDER BY started_at DESC, id DESC LIMIT ?`
	rows, err := d.DB.QueryContext(ctx, query, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []agent.ExecutionLog
	for rows.Next() {
		var (
			e                   agent.ExecutionLog
			source              sql.NullString
			plan, results, errs sql.NullString
			retries             sql.NullInt64
			skipped, success    int
			startedAt           sql.NullString
			durationMillis      sql.NullInt64
		)
		if err := rows.Scan(&e.ExecutionID, &source, &e.Request, &plan, &results, &errs,
			&retries, &skipped, &success, &startedAt, &durationMillis); err != nil {
			return nil, err
		}
		e.Source = source.String
		e.RetryCount = int(retries.Int64)
		e.Skipped = skipped != 0
		e.Success = success != 0
		e.StartedAt = parseTime(startedAt)
		e.Duration = time.Duration(durationMillis.Int64) * time.Millisecond
		if plan.Valid && plan.String != "null" {
			e.Plan = &agent.TaskPlan{}
			if err := json.Unmarshal([]byte(plan.String), e.Plan); err != nil {
				e.Plan = nil
			}
		}
		if results.Valid {
			_ = json.Unmarshal([]byte(results.String), &e.Results)
		}
		if errs.Valid {
			_ = json.Unmarshal([]byte(errs.String), &e.Errors)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
