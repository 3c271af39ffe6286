package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/litgraph/litgraph/pkg/logger"
)

// PGStore is the production Store backed by PostgreSQL. Claim uses a
// FOR UPDATE SKIP LOCKED CTE so concurrent workers never receive the
// same job; ownership checks live in the UPDATE predicates.
type PGStore struct {
	db   bun.IDB
	opts Options
	log  *slog.Logger
}

// NewPGStore creates a PostgreSQL-backed job store.
func NewPGStore(db bun.IDB, opts Options, log *slog.Logger) *PGStore {
	return &PGStore{
		db:   db,
		opts: opts.withDefaults(),
		log:  log.With(logger.Scope("jobs")),
	}
}

func (s *PGStore) Enqueue(ctx context.Context, kind Kind, payload JSONMap, maxAttempts int) (*Job, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	job := &Job{
		ID:          uuid.New(),
		Kind:        kind,
		Payload:     payload,
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now().UTC(),
	}

	if _, err := s.db.NewInsert().Model(job).Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", kind, err)
	}

	s.log.Info("job enqueued",
		slog.String("job_id", job.ID.String()),
		slog.String("kind", string(kind)),
	)
	return job, nil
}

// Claim is a single statement: the CTE selects the oldest eligible
// pending row under SKIP LOCKED, the UPDATE flips it to running.
func (s *PGStore) Claim(ctx context.Context, workerID string) (*Job, error) {
	query := `
		WITH cte AS (
			SELECT id FROM jobs
			WHERE status = 'pending'
			  AND (retry_after IS NULL OR retry_after <= now())
			ORDER BY created_at ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE jobs j
		SET status = 'running',
			claimed_by = ?,
			claimed_at = now(),
			attempts = attempts + 1
		FROM cte WHERE j.id = cte.id
		RETURNING j.*`

	job := &Job{}
	err := s.db.NewRaw(query, workerID).Scan(ctx, job)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim failed: %w", err)
	}
	return job, nil
}

func (s *PGStore) Complete(ctx context.Context, jobID uuid.UUID, workerID string, status Status, result JSONMap, errMsg string) error {
	var (
		res sql.Result
		err error
	)

	switch status {
	case StatusCompleted:
		res, err = s.db.NewUpdate().Model((*Job)(nil)).
			Set("status = ?", StatusCompleted).
			Set("result = ?", result).
			Set("finished_at = now()").
			Where("id = ?", jobID).
			Where("claimed_by = ?", workerID).
			Where("status = ?", StatusRunning).
			Exec(ctx)

	case StatusFailed:
		// Retry with backoff while attempts remain, else terminal.
		query := `
			UPDATE jobs
			SET status = CASE WHEN attempts < max_attempts THEN 'pending' ELSE 'failed' END,
				error = ?,
				retry_after = CASE WHEN attempts < max_attempts
					THEN now() + make_interval(secs => LEAST(?, ? * attempts * attempts))
					ELSE NULL END,
				finished_at = CASE WHEN attempts >= max_attempts THEN now() ELSE NULL END
			WHERE id = ? AND claimed_by = ? AND status = 'running'`
		res, err = s.db.NewRaw(query,
			truncateError(errMsg),
			s.opts.RetryMaxDelay.Seconds(),
			s.opts.RetryBaseDelay.Seconds(),
			jobID, workerID,
		).Exec(ctx)

	default:
		return fmt.Errorf("complete with non-terminal status %q", status)
	}

	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return s.checkOwnership(ctx, jobID, res)
}

func (s *PGStore) Get(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	job := &Job{}
	err := s.db.NewSelect().Model(job).Where("id = ?", jobID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *PGStore) GetProgress(ctx context.Context, jobID uuid.UUID) (JSONMap, error) {
	var progress JSONMap
	err := s.db.NewSelect().Model((*Job)(nil)).
		Column("progress").
		Where("id = ?", jobID).
		Scan(ctx, &progress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return progress, nil
}

func (s *PGStore) PutProgress(ctx context.Context, jobID uuid.UUID, workerID string, progress JSONMap) error {
	res, err := s.db.NewUpdate().Model((*Job)(nil)).
		Set("progress = ?", progress).
		Where("id = ?", jobID).
		Where("claimed_by = ?", workerID).
		Where("status = ?", StatusRunning).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("put progress: %w", err)
	}
	return s.checkOwnership(ctx, jobID, res)
}

func (s *PGStore) HasActiveForSubject(ctx context.Context, kinds []Kind, key, value string, excludeJobID *uuid.UUID) (bool, error) {
	q := s.db.NewSelect().Model((*Job)(nil)).
		Where("kind IN (?)", bun.In(kinds)).
		Where("status IN (?)", bun.In(ActiveStatuses)).
		Where("payload->>? = ?", key, value)
	if excludeJobID != nil {
		q = q.Where("id != ?", *excludeJobID)
	}
	exists, err := q.Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("has active for subject: %w", err)
	}
	return exists, nil
}

func (s *PGStore) ActiveSubjects(ctx context.Context, kinds []Kind, key string, values []string, excludeJobID *uuid.UUID) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}

	var out []string
	q := s.db.NewSelect().Model((*Job)(nil)).
		ColumnExpr("DISTINCT payload->>?", key).
		Where("kind IN (?)", bun.In(kinds)).
		Where("status IN (?)", bun.In(ActiveStatuses)).
		Where("payload->>? IN (?)", key, bun.In(values))
	if excludeJobID != nil {
		q = q.Where("id != ?", *excludeJobID)
	}
	if err := q.Scan(ctx, &out); err != nil {
		return nil, fmt.Errorf("active subjects: %w", err)
	}
	return out, nil
}

func (s *PGStore) RecentPendingForSubject(ctx context.Context, kind Kind, key, value string, window time.Duration) (bool, error) {
	exists, err := s.db.NewSelect().Model((*Job)(nil)).
		Where("kind = ?", kind).
		Where("status = ?", StatusPending).
		Where("payload->>? = ?", key, value).
		Where("created_at >= ?", time.Now().UTC().Add(-window)).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("recent pending for subject: %w", err)
	}
	return exists, nil
}

func (s *PGStore) LastClaimedAtForSubject(ctx context.Context, kind Kind, key, value string, statuses []Status) (*time.Time, error) {
	var ts sql.NullTime
	err := s.db.NewSelect().Model((*Job)(nil)).
		ColumnExpr("MAX(claimed_at)").
		Where("kind = ?", kind).
		Where("payload->>? = ?", key, value).
		Where("status IN (?)", bun.In(statuses)).
		Scan(ctx, &ts)
	if err != nil {
		return nil, fmt.Errorf("last claimed at for subject: %w", err)
	}
	if !ts.Valid {
		return nil, nil
	}
	t := ts.Time
	return &t, nil
}

func (s *PGStore) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := s.db.NewUpdate().Model((*Job)(nil)).
		Set("status = ?", StatusPending).
		Set("claimed_by = NULL").
		Set("claimed_at = NULL").
		Set("retry_after = NULL").
		Where("status = ?", StatusRunning).
		Where("claimed_at < ?", time.Now().UTC().Add(-olderThan)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}

	count, _ := res.RowsAffected()
	if count > 0 {
		s.log.Warn("recovered stale jobs",
			slog.Int64("count", count),
			slog.Duration("threshold", olderThan),
		)
	}
	return int(count), nil
}

func (s *PGStore) Stats(ctx context.Context) (Stats, error) {
	var rows []struct {
		Kind   Kind   `bun:"kind"`
		Status Status `bun:"status"`
		Count  int    `bun:"count"`
	}
	err := s.db.NewSelect().Model((*Job)(nil)).
		ColumnExpr("kind, status, COUNT(*) AS count").
		GroupExpr("kind, status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}

	stats := Stats{}
	for _, r := range rows {
		if stats[r.Kind] == nil {
			stats[r.Kind] = map[Status]int{}
		}
		stats[r.Kind][r.Status] = r.Count
	}
	return stats, nil
}

// checkOwnership distinguishes "no such job" from "not owner" after an
// ownership-guarded UPDATE matched zero rows.
func (s *PGStore) checkOwnership(ctx context.Context, jobID uuid.UUID, res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.Get(ctx, jobID); err != nil {
		return err
	}
	return ErrNotOwner
}
