package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store with the same semantics as PGStore.
// It backs the worker, coordination and linking tests, where spinning
// up Postgres would be disproportionate; Claim holds a single mutex so
// the at-most-one-claim property holds under concurrency.
type MemStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
	seq  map[uuid.UUID]int
	next int
	opts Options

	// Now is the clock; tests override it to drive debounce and
	// staleness windows.
	Now func() time.Time
}

// NewMemStore creates an empty in-memory job store.
func NewMemStore(opts Options) *MemStore {
	return &MemStore{
		jobs: map[uuid.UUID]*Job{},
		seq:  map[uuid.UUID]int{},
		opts: opts.withDefaults(),
		Now:  time.Now,
	}
}

func (s *MemStore) Enqueue(ctx context.Context, kind Kind, payload JSONMap, maxAttempts int) (*Job, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &Job{
		ID:          uuid.New(),
		Kind:        kind,
		Payload:     cloneMap(payload),
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   s.Now().UTC(),
	}
	s.jobs[job.ID] = job
	s.seq[job.ID] = s.next
	s.next++
	return job.Clone(), nil
}

func (s *MemStore) Claim(ctx context.Context, workerID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now().UTC()
	var eligible []*Job
	for _, j := range s.jobs {
		if j.Status != StatusPending {
			continue
		}
		if j.RetryAfter != nil && j.RetryAfter.After(now) {
			continue
		}
		eligible = append(eligible, j)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	sort.Slice(eligible, func(i, k int) bool {
		if !eligible[i].CreatedAt.Equal(eligible[k].CreatedAt) {
			return eligible[i].CreatedAt.Before(eligible[k].CreatedAt)
		}
		return s.seq[eligible[i].ID] < s.seq[eligible[k].ID]
	})

	job := eligible[0]
	job.Status = StatusRunning
	job.ClaimedBy = &workerID
	claimedAt := now
	job.ClaimedAt = &claimedAt
	job.Attempts++
	return job.Clone(), nil
}

func (s *MemStore) Complete(ctx context.Context, jobID uuid.UUID, workerID string, status Status, result JSONMap, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.owned(jobID, workerID)
	if err != nil {
		return err
	}
	now := s.Now().UTC()

	switch status {
	case StatusCompleted:
		job.Status = StatusCompleted
		job.Result = cloneMap(result)
		job.FinishedAt = &now
	case StatusFailed:
		job.Error = truncateError(errMsg)
		if job.Attempts < job.MaxAttempts {
			job.Status = StatusPending
			retryAfter := now.Add(Backoff(job.Attempts, s.opts.RetryBaseDelay, s.opts.RetryMaxDelay))
			job.RetryAfter = &retryAfter
		} else {
			job.Status = StatusFailed
			job.FinishedAt = &now
		}
	default:
		return ErrNotOwner
	}
	return nil
}

func (s *MemStore) Get(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

func (s *MemStore) GetProgress(ctx context.Context, jobID uuid.UUID) (JSONMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMap(job.Progress), nil
}

func (s *MemStore) PutProgress(ctx context.Context, jobID uuid.UUID, workerID string, progress JSONMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.owned(jobID, workerID)
	if err != nil {
		return err
	}
	job.Progress = cloneMap(progress)
	return nil
}

func (s *MemStore) HasActiveForSubject(ctx context.Context, kinds []Kind, key, value string, excludeJobID *uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if s.matchesSubject(j, kinds, key, value, excludeJobID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) ActiveSubjects(ctx context.Context, kinds []Kind, key string, values []string, excludeJobID *uuid.UUID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := map[string]bool{}
	for _, v := range values {
		wanted[v] = true
	}

	seen := map[string]bool{}
	var out []string
	for _, j := range s.jobs {
		v := j.Payload.String(key)
		if !wanted[v] || seen[v] {
			continue
		}
		if s.matchesSubject(j, kinds, key, v, excludeJobID) {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemStore) RecentPendingForSubject(ctx context.Context, kind Kind, key, value string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	since := s.Now().UTC().Add(-window)
	for _, j := range s.jobs {
		if j.Kind == kind && j.Status == StatusPending &&
			j.Payload.String(key) == value && !j.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) LastClaimedAtForSubject(ctx context.Context, kind Kind, key, value string, statuses []Status) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *time.Time
	for _, j := range s.jobs {
		if j.Kind != kind || j.ClaimedAt == nil || j.Payload.String(key) != value {
			continue
		}
		if !statusIn(j.Status, statuses) {
			continue
		}
		if latest == nil || j.ClaimedAt.After(*latest) {
			t := *j.ClaimedAt
			latest = &t
		}
	}
	return latest, nil
}

func (s *MemStore) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.Now().UTC().Add(-olderThan)
	count := 0
	for _, j := range s.jobs {
		if j.Status == StatusRunning && j.ClaimedAt != nil && j.ClaimedAt.Before(cutoff) {
			j.Status = StatusPending
			j.ClaimedBy = nil
			j.ClaimedAt = nil
			j.RetryAfter = nil
			count++
		}
	}
	return count, nil
}

func (s *MemStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{}
	for _, j := range s.jobs {
		if stats[j.Kind] == nil {
			stats[j.Kind] = map[Status]int{}
		}
		stats[j.Kind][j.Status]++
	}
	return stats, nil
}

func (s *MemStore) owned(jobID uuid.UUID, workerID string) (*Job, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if job.Status != StatusRunning || job.ClaimedBy == nil || *job.ClaimedBy != workerID {
		return nil, ErrNotOwner
	}
	return job, nil
}

func (s *MemStore) matchesSubject(j *Job, kinds []Kind, key, value string, excludeJobID *uuid.UUID) bool {
	if excludeJobID != nil && j.ID == *excludeJobID {
		return false
	}
	if !kindIn(j.Kind, kinds) || !statusIn(j.Status, ActiveStatuses) {
		return false
	}
	return j.Payload.String(key) == value
}

func kindIn(k Kind, kinds []Kind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}

func statusIn(st Status, statuses []Status) bool {
	for _, c := range statuses {
		if c == st {
			return true
		}
	}
	return false
}
