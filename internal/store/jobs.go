package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Hemesh11/autotasker/internal/scheduler"
)

const jobColumns = `id, name, request, trigger_type, trigger_value, paused, run_count, max_runs, created_at, last_fired_at`

func (d *DB) SaveJob(ctx context.Context, job scheduler.Job) error {
	query := `INSERT INTO jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			request = excluded.request,
			trigger_type = excluded.trigger_type,
			trigger_value = excluded.trigger_value,
			paused = excluded.paused,
			run_count = excluded.run_count,
			max_runs = excluded.max_runs,
			last_fired_at = excluded.last_fired_at`
	_, err := d.DB.ExecContext(ctx, query,
		job.ID, job.Name, job.Request,
		string(job.Trigger.Type), job.Trigger.Value,
		boolInt(job.Paused), job.RunCount, job.MaxRuns,
		formatTime(job.CreatedAt), nullTime(job.LastFiredAt),
	)
	return err
}

func (d *DB) GetJob(ctx context.Context, id string) (scheduler.Job, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return scheduler.Job{}, fmt.Errorf("%w: %w %s", scheduler.ErrJobNotFound, ErrNotFound, id)
	}
	return job, err
}

func (d *DB) ListJobs(ctx context.Context) ([]scheduler.Job, error) {
	rows, err := d.DB.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []scheduler.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (d *DB) DeleteJob(ctx context.Context, id string) error {
	res, err := d.DB.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res, id)
}

func (d *DB) SetPaused(ctx context.Context, id string, paused bool) error {
	res, err := d.DB.ExecContext(ctx, `UPDATE jobs SET paused = ? WHERE id = ?`, boolInt(paused), id)
	if err != nil {
		return err
	}
	return expectOne(res, id)
}

// RecordFiring bumps run_count and last_fired_at in one transaction and
// returns the new count.
func (d *DB) RecordFiring(ctx context.Context, id string, firedAt time.Time) (int, error) {
	var count int
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs SET run_count = run_count + 1, last_fired_at = ? WHERE id = ?`,
			formatTime(firedAt), id)
		if err != nil {
			return err
		}
		if err := expectOne(res, id); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT run_count FROM jobs WHERE id = ?`, id).Scan(&count)
	})
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (scheduler.Job, error) {
	var (
		job                  scheduler.Job
		trigType, trigValue  string
		paused               int
		createdAt, lastFired sql.NullString
	)
	err := r.Scan(&job.ID, &job.Name, &job.Request, &trigType, &trigValue,
		&paused, &job.RunCount, &job.MaxRuns, &createdAt, &lastFired)
	if err != nil {
		return scheduler.Job{}, err
	}
	job.Trigger = scheduler.TriggerSpec{Type: scheduler.TriggerType(trigType), Value: trigValue}
	job.Paused = paused != 0
	job.CreatedAt = parseTime(createdAt)
	job.LastFiredAt = parseTime(lastFired)
	return job, nil
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %w %s", scheduler.ErrJobNotFound, ErrNotFound, id)
	}
	return nil
}
