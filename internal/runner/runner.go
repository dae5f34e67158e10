// Package runner drives the capture, scheduling, queue and retention
// pipelines on a fixed tick.
package runner

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/abvaden/nps-webcam-animation-generator/internal/animation"
	"github.com/abvaden/nps-webcam-animation-generator/internal/capture"
	"github.com/abvaden/nps-webcam-animation-generator/internal/conf"
	"github.com/abvaden/nps-webcam-animation-generator/internal/encoder"
	"github.com/abvaden/nps-webcam-animation-generator/internal/logging"
	"github.com/abvaden/nps-webcam-animation-generator/internal/observability"
	"github.com/abvaden/nps-webcam-animation-generator/internal/retention"
)

// tickInterval is how often the pipeline wakes up; the capture loop applies
// per-webcam intervals on top of it.
const tickInterval = time.Minute

// Runner owns the periodic pipeline: capture frames, schedule the day's
// jobs, advance the queue, encode ready jobs, tag retention images.
type Runner struct {
	settings  *conf.Settings
	capturer  *capture.Capturer
	scheduler *animation.Scheduler
	queue     *animation.Queue
	selector  *retention.Selector
	encoder   encoder.Encoder
	metrics   *observability.Metrics
	log       *slog.Logger
	closeLog  func() error

	ticking atomic.Bool

	scheduledDate string    // last UTC date jobs were scheduled for
	retentionDate string    // last UTC date retention ran for
	lastRetention time.Time // end of the last retention window
}

// New assembles a runner; selector, encoder and metrics may be nil to
// disable their stages. With a log directory configured the runner keeps its
// own rotated file log; otherwise it shares the default output.
func New(settings *conf.Settings, capturer *capture.Capturer, scheduler *animation.Scheduler, queue *animation.Queue, selector *retention.Selector, enc encoder.Encoder, metrics *observability.Metrics) *Runner {
	log := logging.ForService("runner")
	var closeLog func() error
	if dir := settings.Main.Log.Path; dir != "" {
		level := slog.LevelInfo
		if settings.Debug {
			level = slog.LevelDebug
		}
		fileLog, closer, err := logging.NewFileLogger(filepath.Join(dir, "pipeline.log"), "runner", level)
		if err != nil {
			log.Warn("Pipeline file logger unavailable, using default output", "error", err)
		} else {
			log = fileLog
			closeLog = closer
		}
	}

	return &Runner{
		settings:  settings,
		capturer:  capturer,
		scheduler: scheduler,
		queue:     queue,
		selector:  selector,
		encoder:   enc,
		metrics:   metrics,
		log:       log,
		closeLog:  closeLog,
	}
}

// Run ticks the pipeline until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Pipeline runner started", "interval", tickInterval)
	if r.closeLog != nil {
		defer func() { _ = r.closeLog() }()
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	r.Tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Pipeline runner stopped")
			return ctx.Err()
		case now := <-ticker.C:
			r.Tick(ctx, now)
		}
	}
}

// Tick runs one pipeline pass. A tick that arrives while the previous one is
// still working is dropped, not queued.
func (r *Runner) Tick(ctx context.Context, now time.Time) {
	if !r.ticking.CompareAndSwap(false, true) {
		r.log.Warn("Previous tick still running, skipping")
		return
	}
	defer r.ticking.Store(false)

	if r.settings.Capture.Enabled && r.capturer != nil {
		if _, err := r.capturer.Run(ctx, now); err != nil {
			r.log.Error("Capture pass failed", "error", err)
		}
	}

	if r.settings.Animation.Enabled {
		r.scheduleOncePerDay(now)
		r.advance(now)
		r.encodeReady(ctx, now)
	}

	if r.settings.Retention.Enabled && r.selector != nil {
		r.retainOncePerDay(now)
	}
}

// scheduleOncePerDay builds jobs for the current UTC date on its first tick.
// Insertion is idempotent, so rescheduling after a restart is harmless.
func (r *Runner) scheduleOncePerDay(now time.Time) {
	date := now.UTC().Format("2006-01-02")
	if date == r.scheduledDate {
		return
	}

	result, err := r.scheduler.ScheduleDay(date)
	if err != nil {
		r.log.Error("Scheduling failed", "date", date, "error", err)
		return
	}
	r.scheduledDate = date
	if r.metrics != nil && result.JobsCreated > 0 {
		r.metrics.JobsScheduledTotal.WithLabelValues("all").Add(float64(result.JobsCreated))
	}
}

func (r *Runner) advance(now time.Time) {
	limit := r.settings.Animation.AdvanceBatchSize
	if limit <= 0 {
		limit = 50
	}
	if _, err := r.queue.Advance(now, limit); err != nil {
		r.log.Error("Queue advancement failed", "error", err)
	}
}

// encodeReady claims a batch of ready jobs and renders each one. Encode
// failures are terminal for the job, not for the pipeline.
func (r *Runner) encodeReady(ctx context.Context, now time.Time) {
	if r.encoder == nil {
		return
	}

	limit := r.settings.Animation.EncodeBatchSize
	if limit <= 0 {
		limit = 5
	}
	jobs, err := r.queue.Claim(limit)
	if err != nil {
		r.log.Error("Claiming ready jobs failed", "error", err)
		return
	}

	for i := range jobs {
		job := &jobs[i]
		// Duration is measured on the wall clock; the tick timestamp
		// predates the encode.
		started := time.Now()
		err := r.encoder.Encode(ctx, job)
		if r.metrics != nil {
			r.metrics.EncodeDuration.Observe(time.Since(started).Seconds())
		}

		if err != nil {
			r.countEncode(job.Type, "error")
			if failErr := r.queue.MarkFailed(job.ID, err.Error(), now); failErr != nil {
				r.log.Error("Recording encode failure failed",
					"job", job.ReferenceKey, "error", failErr)
			}
			continue
		}

		r.countEncode(job.Type, "success")
		if err := r.queue.MarkComplete(job.ID, now); err != nil {
			r.log.Error("Completing encoded job failed",
				"job", job.ReferenceKey, "error", err)
		}
	}
}

func (r *Runner) countEncode(jobType, status string) {
	if r.metrics == nil {
		return
	}
	r.metrics.EncodesTotal.WithLabelValues(jobType, status).Inc()
}

// retainOncePerDay covers the window since the previous retention pass once
// per UTC day. The first pass after a start reaches back one day, so a
// restart never leaves yesterday untagged, and the per-webcam local day
// enumeration inside Apply catches days the UTC date change misses.
func (r *Runner) retainOncePerDay(now time.Time) {
	date := now.UTC().Format("2006-01-02")
	if date == r.retentionDate {
		return
	}

	start := r.lastRetention
	if start.IsZero() {
		start = now.AddDate(0, 0, -1)
	}
	if _, err := r.selector.Apply(start, now); err != nil {
		r.log.Error("Retention pass failed", "from", start, "to", now, "error", err)
		return
	}
	r.retentionDate = date
	r.lastRetention = now
}
