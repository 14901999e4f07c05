// Package worker runs the durable normalization job queue. Workers claim
// queued jobs with a compare-and-set, normalize each input row through the
// candidate builder and the AI normalizer, and persist per-row results.
// Claims that go stale are reclaimed; jobs that exhaust their attempts are
// failed as abandoned.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fitmentiq/fitment-server/internal/config"
	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/errors"
	"github.com/fitmentiq/fitment-server/internal/id"
	"github.com/fitmentiq/fitment-server/internal/normalize"
	"github.com/fitmentiq/fitment-server/internal/store"
	"github.com/fitmentiq/fitment-server/internal/store/sqlite"
)

// Pool manages the normalization worker goroutines.
type Pool struct {
	store      *sqlite.Store
	candidates *normalize.CandidateBuilder
	normalizer normalize.Normalizer
	cfg        config.WorkerConfig
	logger     *slog.Logger

	// identity prefixes every claim so FinishJob can verify ownership.
	identity string

	ctx       context.Context //nolint:containedctx // worker lifecycle outlives any single request
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	jobNotify chan struct{}
}

// New creates a worker pool. Worker identity is derived from the host and
// process so stale claims are attributable after a crash.
func New(
	st *sqlite.Store,
	candidates *normalize.CandidateBuilder,
	normalizer normalize.Normalizer,
	cfg config.WorkerConfig,
	logger *slog.Logger,
) (*Pool, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	suffix, err := id.Generate("w")
	if err != nil {
		return nil, fmt.Errorf("generate worker id: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		store:      st,
		candidates: candidates,
		normalizer: normalizer,
		cfg:        cfg,
		logger:     logger,
		identity:   fmt.Sprintf("%s-%d-%s", host, os.Getpid(), suffix),
		ctx:        ctx,
		cancel:     cancel,
		jobNotify:  make(chan struct{}, 1),
	}, nil
}

// Identity returns the pool's claim identity.
func (p *Pool) Identity() string {
	return p.identity
}

// Start begins the worker goroutines and the stale-claim reaper.
func (p *Pool) Start() {
	p.logger.Info("starting normalization workers",
		slog.Int("workers", p.cfg.MaxConcurrent),
		slog.String("identity", p.identity),
	)

	// Sweep claims orphaned by a previous process before taking new work.
	p.reclaimStale()

	for i := range p.cfg.MaxConcurrent {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.wg.Add(1)
	go p.reaper()
}

// Stop gracefully shuts down the pool. In-flight jobs run to completion or
// their timeout.
func (p *Pool) Stop() {
	p.logger.Info("stopping normalization workers")
	p.cancel()
	p.wg.Wait()
	p.logger.Info("normalization workers stopped")
}

// NotifyNewJob signals workers that a new job is available.
func (p *Pool) NotifyNewJob() {
	select {
	case p.jobNotify <- struct{}{}:
	default:
		// Already notified
	}
}

// EnqueueJob creates a queued normalization job and wakes a worker.
func (p *Pool) EnqueueJob(ctx context.Context, tenantID, uploadRef string, rows []string) (*domain.Job, error) {
	if len(rows) == 0 {
		return nil, errors.Validation("a normalization job needs at least one input row")
	}

	jobID, err := id.Generate("job")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "generate job id")
	}

	job := &domain.Job{
		ID:        jobID,
		TenantID:  tenantID,
		UploadRef: uploadRef,
		Status:    domain.JobStatusQueued,
		InputRows: rows,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.store.CreateJob(ctx, job); err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreFailure, "enqueue job")
	}

	p.logger.Info("enqueued normalization job",
		slog.String("job_id", job.ID),
		slog.String("tenant_id", tenantID),
		slog.Int("rows", len(rows)),
	)

	p.NotifyNewJob()
	return job, nil
}

// worker claims and processes jobs until the pool stops.
func (p *Pool) worker(n int) {
	defer p.wg.Done()

	workerID := fmt.Sprintf("%s-%d", p.identity, n)
	p.logger.Debug("worker started", slog.String("worker_id", workerID))

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("worker stopping", slog.String("worker_id", workerID))
			return
		case <-p.jobNotify:
			p.processNextJob(workerID)
		case <-time.After(p.cfg.PollInterval):
			// Fallback poll in case a notification was missed.
			p.processNextJob(workerID)
		}
	}
}

// reaper periodically requeues stale claims and abandons spent jobs.
func (p *Pool) reaper() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.StaleClaimThreshold / 2)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.reclaimStale()
		}
	}
}

func (p *Pool) reclaimStale() {
	requeued, failed, err := p.store.ReclaimStaleJobs(p.ctx, p.cfg.StaleClaimThreshold, p.cfg.MaxAttempts)
	if err != nil {
		p.logger.Error("stale claim sweep failed", slog.Any("error", err))
		return
	}
	if requeued > 0 || failed > 0 {
		p.logger.Info("swept stale claims",
			slog.Int("requeued", requeued),
			slog.Int("abandoned", failed),
		)
	}
	if requeued > 0 {
		p.NotifyNewJob()
	}
}

// processNextJob claims the oldest queued job and runs it. A lost claim
// race is a skip, not an error.
func (p *Pool) processNextJob(workerID string) {
	jobs, err := p.store.ListQueuedJobs(p.ctx, 1)
	if err != nil {
		p.logger.Error("failed to list queued jobs", slog.Any("error", err))
		return
	}
	if len(jobs) == 0 {
		return
	}

	claimed, err := p.store.ClaimJob(p.ctx, jobs[0].ID, workerID)
	if err != nil {
		if errors.Is(err, store.ErrClaimConflict) {
			// Another worker got it first.
			return
		}
		p.logger.Error("failed to claim job",
			slog.String("job_id", jobs[0].ID),
			slog.Any("error", err),
		)
		return
	}

	p.runJob(claimed, workerID)

	// More work may be queued behind this job.
	p.NotifyNewJob()
}

// runJob normalizes every input row of a claimed job and finishes it. A
// row-level failure fails the whole job; results recorded before the
// failure are kept for inspection.
func (p *Pool) runJob(job *domain.Job, workerID string) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.JobTimeout)
	defer cancel()

	p.logger.Info("processing job",
		slog.String("job_id", job.ID),
		slog.String("worker_id", workerID),
		slog.Int("rows", len(job.InputRows)),
		slog.Int("attempt", job.Attempts),
	)

	for i, row := range job.InputRows {
		if err := p.normalizeRow(ctx, job, i, row); err != nil {
			p.finishJob(job.ID, workerID, domain.JobStatusFailed,
				fmt.Sprintf("row %d: %v", i, err))
			return
		}
	}

	p.finishJob(job.ID, workerID, domain.JobStatusSucceeded, "")
}

func (p *Pool) normalizeRow(ctx context.Context, job *domain.Job, rowIndex int, row string) error {
	candidates, err := p.candidates.Build(ctx, row)
	if err != nil {
		return fmt.Errorf("build candidates: %w", err)
	}

	out, err := p.normalizer.Normalize(ctx, normalize.Input{
		RowText:    row,
		TenantID:   job.TenantID,
		Candidates: candidates,
	})
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}

	resultID, err := id.Generate("res")
	if err != nil {
		return fmt.Errorf("generate result id: %w", err)
	}
	result := &domain.NormalizationResult{
		ID:                    resultID,
		JobID:                 job.ID,
		RowIndex:              rowIndex,
		InputRow:              row,
		ChosenVehicleID:       out.ChosenVehicleID,
		Confidence:            out.Confidence,
		ConfidenceExplanation: out.ConfidenceExplanation,
		AIReasoning:           out.Reasoning,
		CreatedAt:             time.Now().UTC(),
	}
	if err := p.store.CreateNormalizationResult(ctx, result); err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

func (p *Pool) finishJob(jobID, workerID string, status domain.JobStatus, errText string) {
	// Finishing uses a fresh context so a timed-out job context cannot
	// strand the job in status running until the reaper finds it.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.store.FinishJob(ctx, jobID, workerID, status, errText); err != nil {
		// A reclaimed job's finish loses to the new claimant.
		p.logger.Error("failed to finish job",
			slog.String("job_id", jobID),
			slog.String("status", string(status)),
			slog.Any("error", err),
		)
		return
	}

	if status == domain.JobStatusFailed {
		p.logger.Warn("job failed",
			slog.String("job_id", jobID),
			slog.String("error", errText),
		)
		return
	}
	p.logger.Info("job succeeded", slog.String("job_id", jobID))
}
