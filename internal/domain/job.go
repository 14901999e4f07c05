package domain

import "time"

// JobStatus represents the state of a normalization job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// AbandonedReason is the error text recorded when a job exhausts its
// reclaim attempts.
const AbandonedReason = "abandoned"

// Job is one unit of fitment-normalization work. Jobs are created by upload
// ingestion and mutated only by the worker that holds the claim. Status
// transitions form a DAG: queued -> running -> {succeeded, failed}, with
// a stale reclaim re-entering queued.
type Job struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UploadRef string    `json:"upload_ref"`
	Status    JobStatus `json:"status"`

	// InputRows are the free-text fitment rows to normalize, in order.
	InputRows []string `json:"input_rows,omitempty"`

	// Claim bookkeeping. WorkerID identifies the claiming worker; Attempts
	// counts claims including reclaims after staleness.
	WorkerID string `json:"worker_id,omitempty"`
	Attempts int    `json:"attempts"`

	Error string `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// CanTransition reports whether moving from the job's current status to
// next is a permitted edge of the status DAG.
func (j *Job) CanTransition(next JobStatus) bool {
	switch j.Status {
	case JobStatusQueued:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next == JobStatusSucceeded || next == JobStatusFailed || next == JobStatusQueued
	default:
		// succeeded and failed are terminal.
		return false
	}
}

// MarkRunning transitions the job to running under the given worker.
// The store enforces this with a compare-and-set; this mutates the
// in-memory copy after a successful claim.
func (j *Job) MarkRunning(workerID string) {
	j.Status = JobStatusRunning
	j.WorkerID = workerID
	now := time.Now().UTC()
	j.ClaimedAt = &now
	j.Attempts++
}

// MarkSucceeded transitions the job to succeeded.
func (j *Job) MarkSucceeded() {
	j.Status = JobStatusSucceeded
	now := time.Now().UTC()
	j.FinishedAt = &now
}

// MarkFailed transitions the job to failed with a human-readable error.
func (j *Job) MarkFailed(errText string) {
	j.Status = JobStatusFailed
	j.Error = errText
	now := time.Now().UTC()
	j.FinishedAt = &now
}

// Reclaim re-enters the job into the queue after a stale claim. The attempt
// counter already incremented at claim time, so reclaim only clears the
// claim fields.
func (j *Job) Reclaim() {
	j.Status = JobStatusQueued
	j.WorkerID = ""
	j.ClaimedAt = nil
}

// Stale reports whether the job has held a running claim longer than the
// threshold.
func (j *Job) Stale(threshold time.Duration, now time.Time) bool {
	if j.Status != JobStatusRunning || j.ClaimedAt == nil {
		return false
	}
	return now.Sub(*j.ClaimedAt) > threshold
}

// NormalizationResult records a normalizer verdict for one input row of a
// job. ChosenVehicleID is nil when no catalog vehicle resolved.
type NormalizationResult struct {
	ID              string   `json:"id"`
	JobID           string   `json:"job_id"`
	RowIndex        int      `json:"row_index"`
	InputRow        string   `json:"input_row"`
	ChosenVehicleID *int     `json:"chosen_vehicle_id,omitempty"`
	Confidence      float64  `json:"confidence"`

	ConfidenceExplanation string `json:"confidence_explanation,omitempty"`
	AIReasoning           string `json:"ai_reasoning,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
