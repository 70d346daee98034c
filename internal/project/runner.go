package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/reelcut/reelcut/internal/timeline"
)

var errClipChanged = errors.New("clip changed while its source was measured")

// DurationProber measures the length of a media reference in seconds.
type DurationProber interface {
	Duration(ctx context.Context, ref string) (float64, error)
}

type Runner struct {
	service      *Service
	repo         Repository
	prober       DurationProber
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool

	// gate reports whether jobs may start right now. The interaction
	// controller closes it while a gesture is in progress.
	gate func() bool
	// guard runs a timeline write unless a gesture owns the timeline and
	// reports whether it ran.
	guard func(fn func()) bool
}

func NewRunner(service *Service, repo Repository, prober DurationProber, logger *slog.Logger) *Runner {
	return &Runner{
		service:      service,
		repo:         repo,
		prober:       prober,
		logger:       logger,
		pollInterval: 2 * time.Second,
	}
}

func (r *Runner) SetGate(gate func() bool) {
	r.gate = gate
}

func (r *Runner) SetWriteGuard(guard func(fn func()) bool) {
	r.guard = guard
}

func (r *Runner) SetPollInterval(d time.Duration) {
	if d > 0 {
		r.pollInterval = d
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("job runner started", "poll_interval", r.pollInterval)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			if r.paused.Load() {
				continue
			}
			if r.gate != nil && !r.gate() {
				continue
			}
			r.processNextJob(ctx)
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

func (r *Runner) processNextJob(ctx context.Context) {
	jobs, err := r.repo.ListPendingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	job := jobs[0]
	r.logger.Info("processing job", "job_id", job.ID, "type", job.Type)

	switch job.Type {
	case JobTypeProbe:
		r.processProbeJob(ctx, job)

	default:
		r.logger.Warn("unknown job type", "type", job.Type)
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, "unknown job type")
	}
}

func (r *Runner) processProbeJob(ctx context.Context, job *Job) {
	if r.prober == nil {
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, "prober not configured")
		return
	}

	_, clip, ok := r.service.Store().Snapshot().FindClip(job.ClipID)
	if !ok {
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, "clip not found")
		return
	}
	if !clip.HasContent() {
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, "clip has no media")
		return
	}

	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusRunning, "")

	seconds, err := r.prober.Duration(ctx, clip.Content)
	if err != nil {
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, fmt.Sprintf("probe failed: %v", truncateStr(err.Error(), 512)))
		return
	}
	r.repo.UpdateJobProgress(ctx, job.ID, 50)

	var (
		updated  timeline.Clip
		applyErr error
	)
	apply := func() {
		// The clip may have been deleted or superseded meanwhile.
		_, current, ok := r.service.Store().Snapshot().FindClip(job.ClipID)
		if !ok || current.Content != clip.Content {
			applyErr = errClipChanged
			return
		}
		updated, applyErr = r.service.ApplyProbe(job.ClipID, seconds)
	}
	if r.guard == nil {
		apply()
	} else if !r.guard(apply) {
		// A gesture began meanwhile; retry once it ends.
		r.repo.UpdateJobProgress(ctx, job.ID, 0)
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusPending, "")
		r.logger.Info("duration deferred until the gesture ends", "job_id", job.ID, "clip_id", job.ClipID)
		return
	}
	if applyErr != nil {
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, applyErr.Error())
		return
	}

	r.repo.UpdateJobProgress(ctx, job.ID, 100)
	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusCompleted, "")
	r.logger.Info("probe job completed", "job_id", job.ID, "clip_id", job.ClipID,
		"source_duration", seconds, "duration", updated.Duration)
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[len(s)-maxLen:]
}

func (r *Runner) GetActiveJobCount(ctx context.Context) int {
	jobs, err := r.repo.ListJobs(ctx, 100)
	if err != nil {
		return 0
	}
	count := 0
	for _, j := range jobs {
		if j.Status == JobStatusRunning || j.Status == JobStatusPending {
			count++
		}
	}
	return count
}
