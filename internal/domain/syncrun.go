package domain

import "time"

// SyncStatus represents the state of a catalog sync run.
type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusSucceeded SyncStatus = "succeeded"
	SyncStatusFailed    SyncStatus = "failed"
	SyncStatusCancelled SyncStatus = "cancelled"
	// SyncStatusSkipped is returned (never persisted) when the last success
	// is within the minimum interval and force was not set.
	SyncStatusSkipped SyncStatus = "skipped"
)

// EntityCount records remote and local row counts for one entity within a
// sync run.
type EntityCount struct {
	Remote      int `json:"remote"`
	LocalBefore int `json:"local_before"`
	LocalAfter  int `json:"local_after"`
}

// SyncRun is one end-to-end execution of the sync engine. At most one run
// may be in status running at a time; the store enforces this with a
// serialized conditional insert.
type SyncRun struct {
	ID     string     `json:"id"`
	Status SyncStatus `json:"status"`

	// EntityCounts maps each processed entity to its counts.
	EntityCounts map[CatalogEntity]EntityCount `json:"entity_counts"`

	// Checkpoint is the last entity fully processed. An interrupted run
	// resumes after it; runs never resume mid-entity.
	Checkpoint CatalogEntity `json:"checkpoint,omitempty"`

	Error string `json:"error,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// NextRunAt is the quarterly follow-up scheduled after a success.
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

// Terminal reports whether the run reached a final status.
func (r *SyncRun) Terminal() bool {
	switch r.Status {
	case SyncStatusSucceeded, SyncStatusFailed, SyncStatusCancelled:
		return true
	}
	return false
}

// Finish closes the run with the given status. FinishedAt is clamped to
// StartedAt so finished_at >= started_at holds even under clock skew.
func (r *SyncRun) Finish(status SyncStatus, errText string) {
	r.Status = status
	r.Error = errText
	now := time.Now().UTC()
	if now.Before(r.StartedAt) {
		now = r.StartedAt
	}
	r.FinishedAt = &now
}

// RecordCounts stores the counts for one entity and advances the checkpoint.
func (r *SyncRun) RecordCounts(entity CatalogEntity, c EntityCount) {
	if r.EntityCounts == nil {
		r.EntityCounts = make(map[CatalogEntity]EntityCount)
	}
	r.EntityCounts[entity] = c
	r.Checkpoint = entity
}

// Completed reports whether the given entity was already processed by this
// run, judged against the checkpoint under the fixed sync order.
func (r *SyncRun) Completed(entity CatalogEntity) bool {
	if r.Checkpoint == "" {
		return false
	}
	for _, e := range SyncOrder {
		if e == entity {
			return true
		}
		if e == r.Checkpoint {
			return false
		}
	}
	return false
}

// NextQuarterStart returns 03:00 on the first day of the next quarter-start
// month (January, April, July, October) after t, in t's location.
func NextQuarterStart(t time.Time) time.Time {
	year, month := t.Year(), t.Month()
	var next time.Month
	switch {
	case month < time.April:
		next = time.April
	case month < time.July:
		next = time.July
	case month < time.October:
		next = time.October
	default:
		next = time.January
		year++
	}
	return time.Date(year, next, 1, 3, 0, 0, 0, t.Location())
}
