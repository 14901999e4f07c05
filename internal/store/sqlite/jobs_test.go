package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/store"
)

func newTestJob(t *testing.T, s *Store, jobID string) *domain.Job {
	t.Helper()
	j := &domain.Job{
		ID:        jobID,
		TenantID:  "tnt_test",
		UploadRef: "uploads/fitments.csv",
		Status:    domain.JobStatusQueued,
		InputRows: []string{"2020 Toyota Tacoma 4WD", "2021 Toyota Camry"},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j
}

func TestCreateGetJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newTestJob(t, s, "job_1")

	got, err := s.GetJob(ctx, "job_1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != domain.JobStatusQueued {
		t.Errorf("expected queued, got %s", got.Status)
	}
	if len(got.InputRows) != 2 {
		t.Errorf("expected 2 input rows, got %d", len(got.InputRows))
	}
	if got.Attempts != 0 {
		t.Errorf("expected 0 attempts, got %d", got.Attempts)
	}

	if _, err := s.GetJob(ctx, "job_missing"); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateJobDuplicate(t *testing.T) {
	s := newTestStore(t)

	j := newTestJob(t, s, "job_1")
	if err := s.CreateJob(context.Background(), j); err != store.ErrAlreadyExists {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestClaimJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newTestJob(t, s, "job_1")

	claimed, err := s.ClaimJob(ctx, "job_1", "worker-a")
	if err != nil {
		t.Fatalf("claim job: %v", err)
	}
	if claimed.Status != domain.JobStatusRunning {
		t.Errorf("expected running, got %s", claimed.Status)
	}
	if claimed.WorkerID != "worker-a" {
		t.Errorf("expected worker-a, got %s", claimed.WorkerID)
	}
	if claimed.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", claimed.Attempts)
	}
	if claimed.ClaimedAt == nil {
		t.Error("expected claimed_at to be set")
	}

	// A second claim loses the compare-and-set.
	if _, err := s.ClaimJob(ctx, "job_1", "worker-b"); err != store.ErrClaimConflict {
		t.Errorf("expected ErrClaimConflict, got %v", err)
	}
}

func TestClaimJobConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newTestJob(t, s, "job_1")

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			workerID := string(rune('a' + n))
			_, err := s.ClaimJob(ctx, "job_1", workerID)
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				wins++
			case store.ErrClaimConflict:
				conflicts++
			default:
				t.Errorf("worker %s: unexpected error %v", workerID, err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly 1 winning claim, got %d", wins)
	}
	if conflicts != workers-1 {
		t.Errorf("expected %d conflicts, got %d", workers-1, conflicts)
	}

	got, err := s.GetJob(ctx, "job_1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Attempts != 1 {
		t.Errorf("expected attempts 1 after concurrent claims, got %d", got.Attempts)
	}
}

func TestFinishJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newTestJob(t, s, "job_1")
	if _, err := s.ClaimJob(ctx, "job_1", "worker-a"); err != nil {
		t.Fatalf("claim job: %v", err)
	}

	if err := s.FinishJob(ctx, "job_1", "worker-a", domain.JobStatusSucceeded, ""); err != nil {
		t.Fatalf("finish job: %v", err)
	}

	got, err := s.GetJob(ctx, "job_1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != domain.JobStatusSucceeded {
		t.Errorf("expected succeeded, got %s", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}

	// Terminal jobs cannot be finished again.
	err = s.FinishJob(ctx, "job_1", "worker-a", domain.JobStatusFailed, "late write")
	if err != store.ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestFinishJobWrongWorker(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newTestJob(t, s, "job_1")
	if _, err := s.ClaimJob(ctx, "job_1", "worker-a"); err != nil {
		t.Fatalf("claim job: %v", err)
	}

	// A worker that does not hold the claim cannot finish the job.
	err := s.FinishJob(ctx, "job_1", "worker-b", domain.JobStatusSucceeded, "")
	if err != store.ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestFinishJobQueued(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newTestJob(t, s, "job_1")

	// A queued job has no claim to finish.
	err := s.FinishJob(ctx, "job_1", "worker-a", domain.JobStatusFailed, "boom")
	if err != store.ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	// Non-terminal target statuses are rejected outright.
	err = s.FinishJob(ctx, "job_1", "worker-a", domain.JobStatusRunning, "")
	if err == nil {
		t.Error("expected error finishing into running")
	}
}

func TestReclaimStaleJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// job_fresh: claimed just now, should be untouched.
	newTestJob(t, s, "job_fresh")
	if _, err := s.ClaimJob(ctx, "job_fresh", "worker-a"); err != nil {
		t.Fatalf("claim fresh job: %v", err)
	}

	// job_stale: one attempt, claimed long ago, should be requeued.
	newTestJob(t, s, "job_stale")
	if _, err := s.ClaimJob(ctx, "job_stale", "worker-b"); err != nil {
		t.Fatalf("claim stale job: %v", err)
	}

	// job_spent: at the attempt limit, claimed long ago, should fail as
	// abandoned.
	newTestJob(t, s, "job_spent")
	if _, err := s.ClaimJob(ctx, "job_spent", "worker-c"); err != nil {
		t.Fatalf("claim spent job: %v", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET attempts = 3 WHERE id = 'job_spent'`); err != nil {
		t.Fatalf("bump attempts: %v", err)
	}

	// Age the stale claims past the threshold.
	old := formatTime(time.Now().UTC().Add(-time.Hour))
	if _, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET claimed_at = ? WHERE id IN ('job_stale', 'job_spent')`, old); err != nil {
		t.Fatalf("age claims: %v", err)
	}

	requeued, failed, err := s.ReclaimStaleJobs(ctx, 30*time.Minute, 3)
	if err != nil {
		t.Fatalf("reclaim stale jobs: %v", err)
	}
	if requeued != 1 {
		t.Errorf("expected 1 requeued, got %d", requeued)
	}
	if failed != 1 {
		t.Errorf("expected 1 failed, got %d", failed)
	}

	fresh, _ := s.GetJob(ctx, "job_fresh")
	if fresh.Status != domain.JobStatusRunning {
		t.Errorf("fresh job: expected running, got %s", fresh.Status)
	}

	stale, _ := s.GetJob(ctx, "job_stale")
	if stale.Status != domain.JobStatusQueued {
		t.Errorf("stale job: expected queued, got %s", stale.Status)
	}
	if stale.WorkerID != "" {
		t.Errorf("stale job: expected cleared worker, got %s", stale.WorkerID)
	}
	if stale.Attempts != 1 {
		t.Errorf("stale job: attempts should survive reclaim, got %d", stale.Attempts)
	}

	spent, _ := s.GetJob(ctx, "job_spent")
	if spent.Status != domain.JobStatusFailed {
		t.Errorf("spent job: expected failed, got %s", spent.Status)
	}
	if spent.Error != domain.AbandonedReason {
		t.Errorf("spent job: expected error %q, got %q", domain.AbandonedReason, spent.Error)
	}

	// A requeued job is claimable again.
	reclaimed, err := s.ClaimJob(ctx, "job_stale", "worker-d")
	if err != nil {
		t.Fatalf("re-claim requeued job: %v", err)
	}
	if reclaimed.Attempts != 2 {
		t.Errorf("expected attempts 2 after re-claim, got %d", reclaimed.Attempts)
	}
}

func TestListQueuedJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, jobID := range []string{"job_1", "job_2", "job_3"} {
		newTestJob(t, s, jobID)
		time.Sleep(2 * time.Millisecond)
	}
	if _, err := s.ClaimJob(ctx, "job_2", "worker-a"); err != nil {
		t.Fatalf("claim job: %v", err)
	}

	queued, err := s.ListQueuedJobs(ctx, 10)
	if err != nil {
		t.Fatalf("list queued jobs: %v", err)
	}
	if len(queued) != 2 {
		t.Fatalf("expected 2 queued jobs, got %d", len(queued))
	}
	// Oldest first.
	if queued[0].ID != "job_1" || queued[1].ID != "job_3" {
		t.Errorf("unexpected order: %s, %s", queued[0].ID, queued[1].ID)
	}

	count, err := s.CountQueuedJobs(ctx)
	if err != nil {
		t.Fatalf("count queued jobs: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 queued, got %d", count)
	}
}

func TestListJobsFiltered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newTestJob(t, s, "job_1")
	other := &domain.Job{
		ID:        "job_2",
		TenantID:  "tnt_other",
		UploadRef: "uploads/other.csv",
		Status:    domain.JobStatusQueued,
		InputRows: []string{},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateJob(ctx, other); err != nil {
		t.Fatalf("create job: %v", err)
	}

	jobs, err := s.ListJobs(ctx, "tnt_test", "", 10)
	if err != nil {
		t.Fatalf("list jobs by tenant: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job_1" {
		t.Errorf("expected only job_1, got %+v", jobs)
	}

	jobs, err = s.ListJobs(ctx, "", domain.JobStatusQueued, 10)
	if err != nil {
		t.Fatalf("list jobs by status: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("expected 2 queued jobs, got %d", len(jobs))
	}
}

func TestNormalizationResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newTestJob(t, s, "job_1")

	vehicleID := 100
	results := []*domain.NormalizationResult{
		{
			ID:                    "nr_2",
			JobID:                 "job_1",
			RowIndex:              1,
			InputRow:              "2021 Toyota Camry",
			Confidence:            0.2,
			ConfidenceExplanation: "no region match",
			CreatedAt:             time.Now().UTC(),
		},
		{
			ID:              "nr_1",
			JobID:           "job_1",
			RowIndex:        0,
			InputRow:        "2020 Toyota Tacoma 4WD",
			ChosenVehicleID: &vehicleID,
			Confidence:      0.95,
			AIReasoning:     "exact year/make/model match",
			CreatedAt:       time.Now().UTC(),
		},
	}
	for _, r := range results {
		if err := s.CreateNormalizationResult(ctx, r); err != nil {
			t.Fatalf("create result %s: %v", r.ID, err)
		}
	}

	got, err := s.ListNormalizationResults(ctx, "job_1")
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	// Ordered by row index regardless of insertion order.
	if got[0].RowIndex != 0 || got[1].RowIndex != 1 {
		t.Errorf("unexpected order: %d, %d", got[0].RowIndex, got[1].RowIndex)
	}
	if got[0].ChosenVehicleID == nil || *got[0].ChosenVehicleID != 100 {
		t.Errorf("expected chosen vehicle 100, got %v", got[0].ChosenVehicleID)
	}
	if got[1].ChosenVehicleID != nil {
		t.Errorf("expected nil chosen vehicle for unresolved row, got %v", got[1].ChosenVehicleID)
	}
}
