package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/model"
	"gpu-notebook-bridge/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var (
	_ repository.JobArchive = (*WorkerJobRepo)(nil)
	_ repository.JobHistory = (*WorkerJobRepo)(nil)
)

// WorkerJobRepo archives worker job records: the latest state in
// worker_jobs and every archived transition in worker_job_events.
type WorkerJobRepo struct {
	pool *pgxpool.Pool
	tm   *TxManager
}

func NewWorkerJobRepo(pool *pgxpool.Pool) *WorkerJobRepo {
	return &WorkerJobRepo{pool: pool, tm: NewTxManager(pool)}
}

func (r *WorkerJobRepo) Archive(ctx context.Context, rec *model.WorkerJobRecord) error {
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("encode job config: %w", err)
	}

	return r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		qx, err := getExecutor(r.pool, tx)
		if err != nil {
			return err
		}
		const upsert = `
INSERT INTO worker_jobs (job_id, status, config, current_epoch, total_epochs, current_loss, start_time, end_time, error, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NOW())
ON CONFLICT (job_id) DO UPDATE SET
  status = EXCLUDED.status,
  current_epoch = EXCLUDED.current_epoch,
  current_loss = EXCLUDED.current_loss,
  end_time = EXCLUDED.end_time,
  error = EXCLUDED.error,
  updated_at = NOW();`
		if _, err := qx.Exec(ctx, upsert,
			rec.JobID, string(rec.Status), cfg, rec.CurrentEpoch, rec.TotalEpochs,
			rec.CurrentLoss, rec.StartTime, rec.EndTime, rec.Error,
		); err != nil {
			return fmt.Errorf("upsert worker job %s: %w", rec.JobID, err)
		}

		const event = `
INSERT INTO worker_job_events (job_id, status, current_epoch, current_loss)
VALUES ($1, $2, $3, $4);`
		tag, err := qx.Exec(ctx, event, rec.JobID, string(rec.Status), rec.CurrentEpoch, rec.CurrentLoss)
		if err != nil {
			return fmt.Errorf("insert job event %s: %w", rec.JobID, err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("insert job event %s: %d rows", rec.JobID, tag.RowsAffected())
		}
		return nil
	})
}

func (r *WorkerJobRepo) FindByID(ctx context.Context, id string) (*model.WorkerJobRecord, error) {
	qx, err := getExecutor(r.pool, nil)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT job_id, status, config, current_epoch, total_epochs, current_loss, start_time, end_time, COALESCE(error, '')
FROM worker_jobs
WHERE job_id = $1;`

	var (
		rec    model.WorkerJobRecord
		status string
		cfg    []byte
	)
	err = qx.QueryRow(ctx, q, id).Scan(
		&rec.JobID, &status, &cfg, &rec.CurrentEpoch, &rec.TotalEpochs,
		&rec.CurrentLoss, &rec.StartTime, &rec.EndTime, &rec.Error,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	rec.Status = model.JobStatus(status)
	if err := json.Unmarshal(cfg, &rec.Config); err != nil {
		return nil, fmt.Errorf("decode job config %s: %w", id, err)
	}
	return &rec, nil
}

// Events returns the archived status history of a job, oldest first.
func (r *WorkerJobRepo) Events(ctx context.Context, id string) ([]model.JobStatus, error) {
	rows, err := r.pool.Query(ctx, `SELECT status FROM worker_job_events WHERE job_id = $1 ORDER BY id;`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.JobStatus
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, model.JobStatus(s))
	}
	return out, rows.Err()
}
