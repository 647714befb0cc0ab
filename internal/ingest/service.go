// Package ingest accepts media into the pipeline: staged uploads, trusted
// local paths, and the optional watch folder. Each accepted file yields a
// tracked job and, when requested, an asynchronous transcode cascade.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sync"

	"github.com/softglow/ambientd/internal/ffmpeg"
	"github.com/softglow/ambientd/internal/jobs"
	"github.com/softglow/ambientd/internal/metrics"
	"github.com/softglow/ambientd/internal/storage"
	"github.com/softglow/ambientd/internal/transcode"
)

// MediaURLPrefix is the public path under which cached files are served.
const MediaURLPrefix = "/media/"

// Service orchestrates ingestion: place the original in the cache, probe it,
// and either short-circuit on a cached derivative or start the cascade.
type Service struct {
	cache    *storage.Cache
	registry *jobs.Registry
	prober   *ffmpeg.Prober
	cascade  *transcode.Cascade
	metrics  *metrics.Metrics
	logger   *slog.Logger
	configs  []transcode.EncoderConfig

	// baseCtx scopes in-flight cascades to the process, not the ingress
	// request: the handler returns long before the cascade finishes.
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewService creates an ingest service. Cascades started by this service are
// cancelled when baseCtx is cancelled.
func NewService(
	baseCtx context.Context,
	cache *storage.Cache,
	registry *jobs.Registry,
	prober *ffmpeg.Prober,
	cascade *transcode.Cascade,
	m *metrics.Metrics,
	logger *slog.Logger,
	configs []transcode.EncoderConfig,
) *Service {
	return &Service{
		cache:    cache,
		registry: registry,
		prober:   prober,
		cascade:  cascade,
		metrics:  m,
		logger:   logger,
		configs:  configs,
		baseCtx:  baseCtx,
	}
}

// IngestUpload stages an uploaded payload, publishes it into the cache under
// its sanitized name, and starts processing. The staged copy is consumed by
// the publish step.
func (s *Service) IngestUpload(ctx context.Context, filename string, r io.Reader, ambient bool) (jobs.State, error) {
	staged, err := s.cache.StageUpload(filename, r)
	if err != nil {
		return jobs.State{}, fmt.Errorf("staging upload: %w", err)
	}

	published, err := s.cache.PublishOriginal(staged)
	if err != nil {
		os.Remove(staged)
		return jobs.State{}, fmt.Errorf("publishing upload: %w", err)
	}

	s.metrics.UploadsTotal.Inc()
	return s.ingest(ctx, published, ambient), nil
}

// IngestPath copies a trusted local file into the cache and starts
// processing. A missing path is an input error: reported immediately, no job
// created.
func (s *Service) IngestPath(ctx context.Context, sourcePath string, ambient bool) (jobs.State, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return jobs.State{}, fmt.Errorf("opening source: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return jobs.State{}, fmt.Errorf("inspecting source: %w", err)
	}
	if info.IsDir() {
		return jobs.State{}, fmt.Errorf("source %s is a directory", sourcePath)
	}

	staged, err := s.cache.StageUpload(sourcePath, f)
	if err != nil {
		return jobs.State{}, fmt.Errorf("staging source: %w", err)
	}

	published, err := s.cache.PublishOriginal(staged)
	if err != nil {
		os.Remove(staged)
		return jobs.State{}, fmt.Errorf("publishing source: %w", err)
	}

	return s.ingest(ctx, published, ambient), nil
}

// ingest runs the shared pipeline tail for a cache-resident original. The
// probe runs synchronously so the response always carries best-effort
// metadata; the cascade, when needed, runs in the background.
func (s *Service) ingest(ctx context.Context, originalPath string, ambient bool) jobs.State {
	base := storage.BaseNameFor(originalPath)
	sourceURL := MediaURLPrefix + path.Base(originalPath)

	job := jobs.New(jobs.NewID(), sourceURL)
	job.SetMedia(s.prober.Probe(ctx, originalPath))
	s.registry.Put(job)

	if !ambient {
		job.MarkReady()
		return job.Snapshot()
	}

	derivativeURL := MediaURLPrefix + storage.DerivativeName(base)

	if s.cache.HasDerivative(base) {
		s.metrics.CacheHits.Inc()
		s.logger.Debug("derivative cache hit", slog.String("base", base))
		job.OnComplete(derivativeURL)
		return job.Snapshot()
	}
	s.metrics.CacheMisses.Inc()

	snap := job.Snapshot()

	req := transcode.Request{
		Job:             job,
		Base:            base,
		SourcePath:      originalPath,
		DerivativeURL:   derivativeURL,
		DurationSeconds: snap.Media.DurationSeconds,
		Configs:         s.configs,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.cascade.Run(s.baseCtx, req)
	}()

	return snap
}

// Wait blocks until all in-flight cascades finish. Called during shutdown
// after baseCtx is cancelled.
func (s *Service) Wait() {
	s.wg.Wait()
}
