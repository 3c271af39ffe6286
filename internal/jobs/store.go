// Package jobs provides the durable PostgreSQL-backed job queue: the
// job state machine, atomic claim/complete, retry backoff, stale-claim
// recovery, the handler registry and the worker pool that drains it.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no job exists for the given ID.
	ErrNotFound = errors.New("job not found")
	// ErrNotOwner is returned when a worker tries to complete or
	// checkpoint a job it does not own, or one that is not running.
	ErrNotOwner = errors.New("job not running or not owned by worker")
)

// ActiveStatuses are the non-terminal job states.
var ActiveStatuses = []Status{StatusPending, StatusRunning}

// ExtractionKinds are the per-paper pipeline kinds that must settle
// before a library is linked.
var ExtractionKinds = []Kind{KindParsePaper, KindExtractElements}

// Stats maps kind and status to a job count.
type Stats map[Kind]map[Status]int

// Store is the durable job queue. The store is the only shared mutable
// state between workers: Claim is atomic, Complete and PutProgress
// check ownership.
type Store interface {
	// Enqueue inserts a pending job.
	Enqueue(ctx context.Context, kind Kind, payload JSONMap, maxAttempts int) (*Job, error)

	// Claim atomically takes the oldest eligible pending job, flips it
	// to running, records the worker and increments attempts. Returns
	// (nil, nil) when the queue is empty.
	Claim(ctx context.Context, workerID string) (*Job, error)

	// Complete finishes a running job the worker owns. Failed jobs with
	// attempts left go back to pending with a retry_after backoff;
	// otherwise the job becomes terminal and finished_at is set.
	Complete(ctx context.Context, jobID uuid.UUID, workerID string, status Status, result JSONMap, errMsg string) error

	// Get fetches a job by ID.
	Get(ctx context.Context, jobID uuid.UUID) (*Job, error)

	// GetProgress reads the opaque progress bag.
	GetProgress(ctx context.Context, jobID uuid.UUID) (JSONMap, error)

	// PutProgress overwrites the progress bag. Only the owning worker
	// of a running job may write it.
	PutProgress(ctx context.Context, jobID uuid.UUID, workerID string, progress JSONMap) error

	// HasActiveForSubject reports whether any pending or running job of
	// the given kinds has payload[key] == value.
	HasActiveForSubject(ctx context.Context, kinds []Kind, key, value string, excludeJobID *uuid.UUID) (bool, error)

	// ActiveSubjects returns the distinct payload[key] values, among the
	// given candidates, that have a pending or running job of the given
	// kinds.
	ActiveSubjects(ctx context.Context, kinds []Kind, key string, values []string, excludeJobID *uuid.UUID) ([]string, error)

	// RecentPendingForSubject reports whether a pending job of the kind
	// with payload[key] == value was created within the window.
	RecentPendingForSubject(ctx context.Context, kind Kind, key, value string, window time.Duration) (bool, error)

	// LastClaimedAtForSubject returns the most recent claimed_at among
	// jobs of the kind with payload[key] == value in any of the given
	// statuses, or nil if none.
	LastClaimedAtForSubject(ctx context.Context, kind Kind, key, value string, statuses []Status) (*time.Time, error)

	// RecoverStale returns running jobs whose claim is older than the
	// threshold to pending, preserving attempts. Covers workers that
	// died mid-job.
	RecoverStale(ctx context.Context, olderThan time.Duration) (int, error)

	// Stats returns job counts grouped by kind and status.
	Stats(ctx context.Context) (Stats, error)
}

// Options tune the retry backoff curve shared by Store implementations.
type Options struct {
	// RetryBaseDelay is the backoff base (default 5s).
	RetryBaseDelay time.Duration
	// RetryMaxDelay caps the backoff (default 10m).
	RetryMaxDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 5 * time.Second
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 10 * time.Minute
	}
	return o
}

// Backoff computes the retry delay after the given number of attempts:
// base * attempts^2, capped at max and never below base.
func Backoff(attempts int, base, max time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(attempts*attempts) * base
	if d > max {
		return max
	}
	return d
}

// truncateError truncates an error message to 500 characters.
func truncateError(msg string) string {
	if len(msg) > 500 {
		return msg[:500]
	}
	return msg
}
