package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

const JobNotifyChannel = "ingest_jobs"

const jobColumns = "id, filename, storage_path, state, error, ctime, claimed_at, finished_at"

type JobRepo struct {
	db *sql.DB
}

func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db}
}

func (r *JobRepo) Create(ctx context.Context, job *model.Job) error {
	data := map[string]interface{}{
		"id":           job.ID,
		"filename":     job.Payload.Filename,
		"storage_path": job.Payload.StoragePath,
		"state":        string(job.State),
		"error":        job.Error,
		"ctime":        job.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("ingest_jobs", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

// Notify wakes listeners on JobNotifyChannel.
func (r *JobRepo) Notify(ctx context.Context, jobID string) error {
	_, err := r.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, JobNotifyChannel, jobID)
	return err
}

func (r *JobRepo) Get(ctx context.Context, jobID string) (*model.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM ingest_jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// ClaimNext moves the oldest queued job to active. Rows locked by other
// claimers are skipped, so concurrent workers never get the same job.
// Returns nil when nothing is queued.
func (r *JobRepo) ClaimNext(ctx context.Context, now int64) (*model.Job, error) {
	const query = `
		UPDATE ingest_jobs
		SET state = $1, claimed_at = $2
		WHERE seq = (
			SELECT seq FROM ingest_jobs
			WHERE state = $3
			ORDER BY seq
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns
	row := r.db.QueryRowContext(ctx, query, string(model.JobStateActive), now, string(model.JobStateQueued))
	job, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

func (r *JobRepo) UpdateStateIf(ctx context.Context, jobID string, from, to model.JobState, errMsg string, now int64) (bool, error) {
	const query = `
		UPDATE ingest_jobs
		SET state = $1, error = $2, finished_at = $3
		WHERE id = $4 AND state = $5
	`
	res, err := r.db.ExecContext(ctx, query, string(to), errMsg, now, jobID, string(from))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *JobRepo) FailStale(ctx context.Context, claimedBefore int64, reason string, now int64) (int64, error) {
	const query = `
		UPDATE ingest_jobs
		SET state = $1, error = $2, finished_at = $3
		WHERE state = $4 AND claimed_at < $5
	`
	res, err := r.db.ExecContext(ctx, query, string(model.JobStateFailed), reason, now, string(model.JobStateActive), claimedBefore)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteFinishedBefore removes terminal jobs and returns their storage paths.
func (r *JobRepo) DeleteFinishedBefore(ctx context.Context, cutoff int64) ([]string, error) {
	const query = `
		DELETE FROM ingest_jobs
		WHERE state IN ($1, $2) AND finished_at < $3
		RETURNING storage_path
	`
	rows, err := r.db.QueryContext(ctx, query, string(model.JobStateCompleted), string(model.JobStateFailed), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var job model.Job
	var state string
	if err := row.Scan(
		&job.ID,
		&job.Payload.Filename,
		&job.Payload.StoragePath,
		&state,
		&job.Error,
		&job.Ctime,
		&job.ClaimedAt,
		&job.FinishedAt,
	); err != nil {
		return nil, err
	}
	job.State = model.JobState(state)
	return &job, nil
}
