package domain

import (
	"testing"
	"time"
)

func TestJobCanTransition(t *testing.T) {
	cases := []struct {
		from JobStatus
		to   JobStatus
		want bool
	}{
		{JobStatusQueued, JobStatusRunning, true},
		{JobStatusQueued, JobStatusSucceeded, false},
		{JobStatusQueued, JobStatusFailed, false},
		{JobStatusQueued, JobStatusQueued, false},
		{JobStatusRunning, JobStatusSucceeded, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusRunning, JobStatusQueued, true},
		{JobStatusRunning, JobStatusRunning, false},
		{JobStatusSucceeded, JobStatusRunning, false},
		{JobStatusSucceeded, JobStatusQueued, false},
		{JobStatusFailed, JobStatusRunning, false},
		{JobStatusFailed, JobStatusQueued, false},
	}

	for _, tc := range cases {
		j := &Job{Status: tc.from}
		if got := j.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestJobClaimLifecycle(t *testing.T) {
	j := &Job{ID: "job_1", Status: JobStatusQueued}

	j.MarkRunning("host-1-w_a")
	if j.Status != JobStatusRunning {
		t.Fatalf("status = %s, want running", j.Status)
	}
	if j.WorkerID != "host-1-w_a" {
		t.Errorf("worker id = %q", j.WorkerID)
	}
	if j.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", j.Attempts)
	}
	if j.ClaimedAt == nil {
		t.Fatal("claimed at not set")
	}

	j.Reclaim()
	if j.Status != JobStatusQueued {
		t.Errorf("status after reclaim = %s, want queued", j.Status)
	}
	if j.WorkerID != "" || j.ClaimedAt != nil {
		t.Error("reclaim did not clear claim fields")
	}
	// The attempt already counted at claim time.
	if j.Attempts != 1 {
		t.Errorf("attempts after reclaim = %d, want 1", j.Attempts)
	}

	j.MarkRunning("host-2-w_b")
	if j.Attempts != 2 {
		t.Errorf("attempts after second claim = %d, want 2", j.Attempts)
	}

	j.MarkSucceeded()
	if j.Status != JobStatusSucceeded || j.FinishedAt == nil {
		t.Errorf("job not closed: status %s finished %v", j.Status, j.FinishedAt)
	}
}

func TestJobMarkFailed(t *testing.T) {
	j := &Job{Status: JobStatusRunning}
	j.MarkFailed("row 2: no candidates")
	if j.Status != JobStatusFailed {
		t.Errorf("status = %s, want failed", j.Status)
	}
	if j.Error != "row 2: no candidates" {
		t.Errorf("error = %q", j.Error)
	}
	if j.FinishedAt == nil {
		t.Error("finished at not set")
	}
}

func TestJobStale(t *testing.T) {
	now := time.Now().UTC()
	old := now.Add(-time.Hour)

	j := &Job{Status: JobStatusRunning, ClaimedAt: &old}
	if !j.Stale(30*time.Minute, now) {
		t.Error("hour-old claim should be stale past a 30m threshold")
	}
	if j.Stale(2*time.Hour, now) {
		t.Error("hour-old claim should not be stale under a 2h threshold")
	}

	queued := &Job{Status: JobStatusQueued, ClaimedAt: &old}
	if queued.Stale(time.Minute, now) {
		t.Error("queued job can never be stale")
	}

	unclaimed := &Job{Status: JobStatusRunning}
	if unclaimed.Stale(time.Minute, now) {
		t.Error("running job without claim time is not stale")
	}
}
