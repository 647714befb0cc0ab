package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/softglow/ambientd/internal/ffmpeg"
	"github.com/softglow/ambientd/internal/jobs"
	"github.com/softglow/ambientd/internal/metrics"
	"github.com/softglow/ambientd/internal/storage"
)

// errAttemptPanic marks a recovered panic inside attempt orchestration. The
// cascade logs it and keeps going instead of dying.
var errAttemptPanic = errors.New("attempt orchestration panic")

// Attempt is one encoder invocation against the fixed output recipe.
type Attempt struct {
	Encoder    EncoderConfig
	SourcePath string
	TargetPath string
	Height     int
}

// AttemptRunner executes a single encoder attempt, streaming progress events
// until the attempt finishes. Implementations must terminate the subprocess
// when ctx is cancelled.
type AttemptRunner interface {
	Run(ctx context.Context, attempt Attempt, onProgress func(ProgressEvent)) error
}

// FFmpegRunner runs attempts as ffmpeg subprocesses with resource
// monitoring.
type FFmpegRunner struct {
	detector        *ffmpeg.BinaryDetector
	logger          *slog.Logger
	monitorInterval time.Duration
}

// NewFFmpegRunner creates the production attempt runner.
func NewFFmpegRunner(detector *ffmpeg.BinaryDetector, logger *slog.Logger) *FFmpegRunner {
	return &FFmpegRunner{detector: detector, logger: logger}
}

// SetMonitorInterval overrides the resource sampling period for encoder
// subprocesses. Zero keeps the monitor's default.
func (r *FFmpegRunner) SetMonitorInterval(d time.Duration) {
	r.monitorInterval = d
}

// Run implements AttemptRunner.
func (r *FFmpegRunner) Run(ctx context.Context, attempt Attempt, onProgress func(ProgressEvent)) error {
	bin, err := r.detector.DetectFFmpeg(ctx)
	if err != nil {
		return fmt.Errorf("detecting ffmpeg: %w", err)
	}

	var monitor *ffmpeg.ProcessMonitor
	defer func() {
		if monitor == nil {
			return
		}
		monitor.Stop()
		stats := monitor.Stats()
		r.logger.Debug("attempt resource usage",
			slog.String("encoder", attempt.Encoder.Name),
			slog.Float64("cpu_percent", stats.CPUPercent),
			slog.Uint64("memory_rss_bytes", stats.MemoryRSSBytes),
			slog.Duration("runtime", stats.Runtime))
	}()

	builder := buildAttempt(bin.Path, attempt).OnStart(func(pid int) {
		m, err := ffmpeg.NewProcessMonitor(int32(pid))
		if err != nil {
			return
		}
		if r.monitorInterval > 0 {
			m.SetInterval(r.monitorInterval)
		}
		m.Start()
		monitor = m
	})

	return builder.Run(ctx, func(u ffmpeg.ProgressUpdate) {
		if u.Done {
			return
		}
		onProgress(ProgressEvent{Percent: -1, ElapsedSeconds: u.OutTime.Seconds()})
	})
}

// Request describes one transcode to run through the cascade.
type Request struct {
	Job             *jobs.Job
	Base            string
	SourcePath      string
	DerivativeURL   string
	DurationSeconds float64
	Configs         []EncoderConfig
}

// Cascade drives the encoder fallback state machine: try each config in
// order until one produces the derivative or all are exhausted.
type Cascade struct {
	runner   AttemptRunner
	cache    *storage.Cache
	registry *jobs.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger

	height         int
	attemptTimeout time.Duration
	retryDelay     time.Duration
}

// NewCascade creates a cascade.
func NewCascade(
	runner AttemptRunner,
	cache *storage.Cache,
	registry *jobs.Registry,
	m *metrics.Metrics,
	logger *slog.Logger,
	height int,
	attemptTimeout, retryDelay time.Duration,
) *Cascade {
	return &Cascade{
		runner:         runner,
		cache:          cache,
		registry:       registry,
		metrics:        m,
		logger:         logger,
		height:         height,
		attemptTimeout: attemptTimeout,
		retryDelay:     retryDelay,
	}
}

// Run executes the cascade for one job. It blocks until the job succeeds or
// every config is exhausted; callers start it in a goroutine. On exhaustion
// the job is deleted from the registry, so clients polling its id observe
// not-found.
func (c *Cascade) Run(ctx context.Context, req Request) {
	c.metrics.JobsStarted.Inc()

	logger := c.logger.With(
		slog.String("job_id", req.Job.ID()),
		slog.String("base", req.Base))

	targetPath, err := c.cache.DerivativePath(req.Base)
	if err != nil {
		logger.Error("resolving derivative path", slog.String("error", err.Error()))
		c.fail(req)
		return
	}

	for i := 0; i < len(req.Configs); i++ {
		if ctx.Err() != nil {
			logger.Info("cascade abandoned, process shutting down")
			c.fail(req)
			return
		}

		cfg := req.Configs[i]
		attemptLogger := logger.With(slog.String("encoder", cfg.Name))

		req.Job.OnAttemptStart(cfg.Name)
		attemptLogger.Info("starting encoder attempt",
			slog.Int("attempt", i+1),
			slog.Int("total", len(req.Configs)))

		started := time.Now()
		err := c.attempt(ctx, req, cfg, targetPath)
		c.metrics.AttemptSeconds.WithLabelValues(cfg.Name).Observe(time.Since(started).Seconds())

		switch {
		case err == nil:
			c.metrics.CascadeAttempts.WithLabelValues(cfg.Name, "success").Inc()
			c.metrics.JobsCompleted.Inc()
			req.Job.OnComplete(req.DerivativeURL)
			attemptLogger.Info("derivative ready",
				slog.Duration("took", time.Since(started)))
			return

		case errors.Is(err, errAttemptPanic):
			c.metrics.CascadeAttempts.WithLabelValues(cfg.Name, "panic").Inc()
			attemptLogger.Error("unexpected orchestration error, continuing cascade",
				slog.String("error", err.Error()))
			c.cache.RemovePartial(req.Base)
			c.sleep(ctx, c.retryDelay)

		case errors.Is(err, context.DeadlineExceeded):
			c.metrics.CascadeAttempts.WithLabelValues(cfg.Name, "timeout").Inc()
			attemptLogger.Warn("attempt timed out, advancing",
				slog.Duration("timeout", c.attemptTimeout))
			c.cache.RemovePartial(req.Base)

		default:
			c.metrics.CascadeAttempts.WithLabelValues(cfg.Name, "error").Inc()
			attemptLogger.Warn("attempt failed, advancing",
				slog.String("error", err.Error()))
			c.cache.RemovePartial(req.Base)
		}
	}

	logger.Error("all encoder configurations exhausted",
		slog.Int("attempted", len(req.Configs)))
	c.fail(req)
}

// attempt runs a single encoder attempt under the per-attempt timeout,
// converting panics into errors so the cascade loop survives.
func (c *Cascade) attempt(ctx context.Context, req Request, cfg EncoderConfig, targetPath string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errAttemptPanic, r)
		}
	}()

	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	runErr := c.runner.Run(attemptCtx, Attempt{
		Encoder:    cfg,
		SourcePath: req.SourcePath,
		TargetPath: targetPath,
		Height:     c.height,
	}, func(ev ProgressEvent) {
		req.Job.OnProgress(computePercent(ev, req.DurationSeconds))
	})

	// A deadline-killed subprocess surfaces as a generic exit error;
	// report the timeout itself so the caller can tell them apart.
	if attemptCtx.Err() != nil {
		return attemptCtx.Err()
	}
	return runErr
}

// fail marks a job permanently failed by removing it from the registry.
// There is no stored error payload: the id simply stops resolving.
func (c *Cascade) fail(req Request) {
	c.metrics.JobsFailed.Inc()
	c.registry.Delete(req.Job.ID())
	c.cache.RemovePartial(req.Base)
}

func (c *Cascade) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
