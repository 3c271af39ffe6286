package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *MemStore {
	return NewMemStore(Options{})
}

func TestMemStore_ClaimAtMostOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	const pending = 5
	const claimers = 12

	for i := 0; i < pending; i++ {
		_, err := store.Enqueue(ctx, KindParsePaper, JSONMap{"paper_id": uuid.NewString()}, 3)
		require.NoError(t, err)
	}

	var mu sync.Mutex
	claimed := map[uuid.UUID]string{}

	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			workerID := "worker-" + uuid.NewString()[:6]
			job, err := store.Claim(ctx, workerID)
			require.NoError(t, err)
			if job == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			_, dup := claimed[job.ID]
			assert.False(t, dup, "job %s claimed twice", job.ID)
			claimed[job.ID] = workerID
		}(i)
	}
	wg.Wait()

	// K concurrent claims over M pending jobs yield min(K, M) distinct IDs.
	assert.Len(t, claimed, pending)
}

func TestMemStore_ClaimOrderFIFO(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	first, err := store.Enqueue(ctx, KindParsePaper, nil, 1)
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, KindParsePaper, nil, 1)
	require.NoError(t, err)

	job, err := store.Claim(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, first.ID, job.ID)
	assert.Equal(t, StatusRunning, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.ClaimedBy)
	assert.Equal(t, "w1", *job.ClaimedBy)
}

func TestMemStore_ClaimEmptyQueue(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	job, err := store.Claim(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestMemStore_CompleteOwnership(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	_, err := store.Enqueue(ctx, KindExtractElements, JSONMap{"paper_id": "p1"}, 3)
	require.NoError(t, err)
	stillPending, err := store.Enqueue(ctx, KindExtractElements, JSONMap{"paper_id": "p2"}, 3)
	require.NoError(t, err)

	job, err := store.Claim(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, job)

	// Another worker cannot complete it.
	err = store.Complete(ctx, job.ID, "w2", StatusCompleted, nil, "")
	assert.ErrorIs(t, err, ErrNotOwner)

	// A job that is not running cannot be completed at all.
	err = store.Complete(ctx, stillPending.ID, "w1", StatusCompleted, nil, "")
	assert.ErrorIs(t, err, ErrNotOwner)

	// An unknown job reports not found.
	err = store.Complete(ctx, uuid.New(), "w1", StatusCompleted, nil, "")
	assert.ErrorIs(t, err, ErrNotFound)

	// The owner can.
	require.NoError(t, store.Complete(ctx, job.ID, "w1", StatusCompleted, JSONMap{"claims_count": 2}, ""))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.NotNil(t, got.FinishedAt)
	assert.Equal(t, 2, got.Result["claims_count"])
}

func TestMemStore_Terminality(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	_, err := store.Enqueue(ctx, KindParsePaper, nil, 1)
	require.NoError(t, err)
	job, err := store.Claim(ctx, "w1")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, job.ID, "w1", StatusCompleted, nil, ""))

	// Completing again is rejected.
	assert.ErrorIs(t, store.Complete(ctx, job.ID, "w1", StatusCompleted, nil, ""), ErrNotOwner)

	// The job is never handed out again.
	next, err := store.Claim(ctx, "w2")
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestMemStore_FailureRetryThenTerminal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	now := time.Now().UTC()
	store.Now = func() time.Time { return now }

	_, err := store.Enqueue(ctx, KindLinkLibrary, JSONMap{"library_id": "l1"}, 2)
	require.NoError(t, err)

	// Attempt 1 fails: back to pending with backoff.
	job, err := store.Claim(ctx, "w1")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, job.ID, "w1", StatusFailed, nil, "llm timeout"))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	require.NotNil(t, got.RetryAfter)
	assert.True(t, got.RetryAfter.After(now))
	assert.Equal(t, "llm timeout", got.Error)
	assert.Nil(t, got.FinishedAt)

	// Not claimable until retry_after passes.
	blocked, err := store.Claim(ctx, "w2")
	require.NoError(t, err)
	assert.Nil(t, blocked)

	now = got.RetryAfter.Add(time.Second)

	// Attempt 2 fails: attempts exhausted, terminal failed.
	job, err = store.Claim(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
	require.NoError(t, store.Complete(ctx, job.ID, "w2", StatusFailed, nil, "llm timeout again"))

	got, err = store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.NotNil(t, got.FinishedAt)
}

func TestMemStore_ProgressOwnership(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	_, err := store.Enqueue(ctx, KindLinkLibrary, nil, 3)
	require.NoError(t, err)
	job, err := store.Claim(ctx, "w1")
	require.NoError(t, err)

	progress := JSONMap{"c2c_done": []any{"a", "b"}}
	require.NoError(t, store.PutProgress(ctx, job.ID, "w1", progress))
	assert.ErrorIs(t, store.PutProgress(ctx, job.ID, "w2", progress), ErrNotOwner)

	got, err := store.GetProgress(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, progress, got)

	// After completion the (now non-owning) worker cannot write progress.
	require.NoError(t, store.Complete(ctx, job.ID, "w1", StatusCompleted, nil, ""))
	assert.ErrorIs(t, store.PutProgress(ctx, job.ID, "w1", progress), ErrNotOwner)
}

func TestMemStore_RecoverStale(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	now := time.Now().UTC()
	store.Now = func() time.Time { return now }

	_, err := store.Enqueue(ctx, KindParsePaper, nil, 3)
	require.NoError(t, err)
	job, err := store.Claim(ctx, "w-dead")
	require.NoError(t, err)

	// Fresh claims are untouched.
	n, err := store.RecoverStale(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)

	now = now.Add(31 * time.Minute)
	n, err = store.RecoverStale(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Nil(t, got.ClaimedBy)
	assert.Equal(t, 1, got.Attempts, "attempts preserved on reclaim")

	// The reclaimed job is claimable again.
	again, err := store.Claim(ctx, "w-live")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, job.ID, again.ID)
	assert.Equal(t, 2, again.Attempts)
}

func TestMemStore_SubjectPredicates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	now := time.Now().UTC()
	store.Now = func() time.Time { return now }

	p1 := uuid.NewString()
	p2 := uuid.NewString()

	parseJob, err := store.Enqueue(ctx, KindParsePaper, JSONMap{"paper_id": p1}, 3)
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, KindExtractElements, JSONMap{"paper_id": p2}, 3)
	require.NoError(t, err)

	active, err := store.HasActiveForSubject(ctx, ExtractionKinds, PayloadPaperID, p1, nil)
	require.NoError(t, err)
	assert.True(t, active)

	// Excluding the only matching job clears the predicate.
	active, err = store.HasActiveForSubject(ctx, ExtractionKinds, PayloadPaperID, p1, &parseJob.ID)
	require.NoError(t, err)
	assert.False(t, active)

	subjects, err := store.ActiveSubjects(ctx, ExtractionKinds, PayloadPaperID, []string{p1, p2, uuid.NewString()}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{p1, p2}, subjects)

	// Completed jobs stop counting as active.
	job, err := store.Claim(ctx, "w1")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, job.ID, "w1", StatusCompleted, nil, ""))
	subjects, err = store.ActiveSubjects(ctx, ExtractionKinds, PayloadPaperID, []string{p1, p2}, nil)
	require.NoError(t, err)
	assert.Len(t, subjects, 1)
}

func TestMemStore_RecentPendingForSubject(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	now := time.Now().UTC()
	store.Now = func() time.Time { return now }

	lib := uuid.NewString()
	_, err := store.Enqueue(ctx, KindLinkLibrary, JSONMap{"library_id": lib}, 3)
	require.NoError(t, err)

	recent, err := store.RecentPendingForSubject(ctx, KindLinkLibrary, PayloadLibraryID, lib, 3*time.Minute)
	require.NoError(t, err)
	assert.True(t, recent)

	// Outside the window the trigger no longer debounces.
	now = now.Add(4 * time.Minute)
	recent, err = store.RecentPendingForSubject(ctx, KindLinkLibrary, PayloadLibraryID, lib, 3*time.Minute)
	require.NoError(t, err)
	assert.False(t, recent)
}

func TestMemStore_LastClaimedAtForSubject(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	now := time.Now().UTC()
	store.Now = func() time.Time { return now }

	lib := uuid.NewString()

	ts, err := store.LastClaimedAtForSubject(ctx, KindLinkLibrary, PayloadLibraryID, lib, []Status{StatusCompleted, StatusRunning})
	require.NoError(t, err)
	assert.Nil(t, ts)

	_, err = store.Enqueue(ctx, KindLinkLibrary, JSONMap{"library_id": lib}, 3)
	require.NoError(t, err)
	job, err := store.Claim(ctx, "w1")
	require.NoError(t, err)
	firstClaim := now

	// A running job counts toward the cutoff.
	ts, err = store.LastClaimedAtForSubject(ctx, KindLinkLibrary, PayloadLibraryID, lib, []Status{StatusCompleted, StatusRunning})
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, firstClaim, *ts)

	require.NoError(t, store.Complete(ctx, job.ID, "w1", StatusCompleted, nil, ""))

	now = now.Add(10 * time.Minute)
	_, err = store.Enqueue(ctx, KindLinkLibrary, JSONMap{"library_id": lib}, 3)
	require.NoError(t, err)
	_, err = store.Claim(ctx, "w2")
	require.NoError(t, err)

	ts, err = store.LastClaimedAtForSubject(ctx, KindLinkLibrary, PayloadLibraryID, lib, []Status{StatusCompleted, StatusRunning})
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, now, *ts)
}

func TestMemStore_Stats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	_, err := store.Enqueue(ctx, KindParsePaper, nil, 3)
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, KindParsePaper, nil, 3)
	require.NoError(t, err)
	job, err := store.Claim(ctx, "w1")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, job.ID, "w1", StatusCompleted, nil, ""))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[KindParsePaper][StatusPending])
	assert.Equal(t, 1, stats[KindParsePaper][StatusCompleted])
}
