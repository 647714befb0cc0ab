package ingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softglow/ambientd/internal/ffmpeg"
	"github.com/softglow/ambientd/internal/jobs"
	"github.com/softglow/ambientd/internal/metrics"
	"github.com/softglow/ambientd/internal/storage"
	"github.com/softglow/ambientd/internal/transcode"
)

type serviceFixture struct {
	service  *Service
	cache    *storage.Cache
	registry *jobs.Registry
	metrics  *metrics.Metrics
}

// newServiceFixture wires a service against a detector pointing at a
// nonexistent ffmpeg, so probes degrade to empty metadata and every cascade
// attempt fails fast.
func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	base := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache, err := storage.NewCache(filepath.Join(base, "media"), filepath.Join(base, "staging"), logger)
	require.NoError(t, err)

	registry := jobs.NewRegistry()
	m := metrics.New(prometheus.NewRegistry())
	detector := ffmpeg.NewBinaryDetector("/nonexistent/ffmpeg", "/nonexistent/ffprobe")
	prober := ffmpeg.NewProber(detector, logger)
	runner := transcode.NewFFmpegRunner(detector, logger)
	cascade := transcode.NewCascade(runner, cache, registry, m, logger, 360, time.Second, time.Millisecond)

	service := NewService(context.Background(), cache, registry, prober, cascade, m, logger,
		[]transcode.EncoderConfig{{Name: "libx264"}})

	return &serviceFixture{service: service, cache: cache, registry: registry, metrics: m}
}

func writeSource(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0640))
	return path
}

func TestIngestPathMissingFile(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.IngestPath(context.Background(), "/nonexistent/movie.mkv", true)
	require.Error(t, err)

	// Input errors never create a job.
	assert.Zero(t, f.registry.Len())
}

func TestIngestPathRejectsDirectory(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.IngestPath(context.Background(), t.TempDir(), false)
	require.Error(t, err)
	assert.Zero(t, f.registry.Len())
}

func TestIngestPathWithoutTranscode(t *testing.T) {
	f := newServiceFixture(t)
	src := writeSource(t, "My Movie.mkv")

	state, err := f.service.IngestPath(context.Background(), src, false)
	require.NoError(t, err)

	assert.True(t, state.Ready)
	assert.Equal(t, 100, state.Progress)
	assert.Equal(t, "/media/MyMovie.mkv", state.SourceURL)
	assert.Nil(t, state.DerivativeURL)

	// Metadata was probed (degraded to empty here) and attached.
	require.NotNil(t, state.Media)
	assert.Empty(t, state.Media.AudioTracks)

	// Original landed in the cache under its sanitized name.
	_, statErr := os.Stat(filepath.Join(f.cache.MediaDir(), "MyMovie.mkv"))
	assert.NoError(t, statErr)

	// Job is pollable.
	_, err = f.registry.Get(state.ID)
	assert.NoError(t, err)
}

func TestIngestCachedDerivativeShortCircuits(t *testing.T) {
	f := newServiceFixture(t)
	src := writeSource(t, "movie.mkv")

	derivative, err := f.cache.DerivativePath("movie")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(derivative, []byte("mp4"), 0640))

	state, err := f.service.IngestPath(context.Background(), src, true)
	require.NoError(t, err)

	// No cascade needed: ready on return.
	assert.True(t, state.Ready)
	assert.Equal(t, 100, state.Progress)
	require.NotNil(t, state.DerivativeURL)
	assert.Equal(t, "/media/movie-ambient.mp4", *state.DerivativeURL)
}

func TestIngestExhaustionOrphansJob(t *testing.T) {
	f := newServiceFixture(t)
	src := writeSource(t, "movie.mkv")

	state, err := f.service.IngestPath(context.Background(), src, true)
	require.NoError(t, err)

	// Handler-visible state is in flight.
	assert.False(t, state.Ready)
	assert.GreaterOrEqual(t, state.Progress, 0)
	assert.LessOrEqual(t, state.Progress, 99)

	// The broken ffmpeg exhausts the cascade; polling then sees not-found.
	f.service.Wait()
	_, err = f.registry.Get(state.ID)
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestIngestUpload(t *testing.T) {
	f := newServiceFixture(t)

	state, err := f.service.IngestUpload(context.Background(), "Clip (final).MP4",
		strings.NewReader("payload"), false)
	require.NoError(t, err)

	assert.Equal(t, "/media/Clipfinal.mp4", state.SourceURL)

	data, err := os.ReadFile(filepath.Join(f.cache.MediaDir(), "Clipfinal.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	// Staging holds no leftovers once published.
	entries, err := os.ReadDir(f.cache.StagingDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func startWatcher(t *testing.T, f *serviceFixture, watchDir string) (cancel func(), done chan error) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w := NewWatcher(watchDir, f.service, logger)
	w.settleWindow = 10 * time.Millisecond
	w.settlePolls = 3

	ctx, cancelCtx := context.WithCancel(context.Background())
	t.Cleanup(cancelCtx)

	done = make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to register before dropping files.
	time.Sleep(50 * time.Millisecond)
	return cancelCtx, done
}

func TestWatcherIngestsSettledFileExactlyOnce(t *testing.T) {
	f := newServiceFixture(t)
	watchDir := t.TempDir()
	cancel, done := startWatcher(t, f, watchDir)

	// One write produces both a Create and a Write event; only one job
	// may come out of them.
	require.NoError(t, os.WriteFile(filepath.Join(watchDir, "drop.mkv"), []byte("bytes"), 0640))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(f.cache.MediaDir(), "drop.mkv"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	// Let the queued duplicate event drain before stopping.
	time.Sleep(200 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	f.service.Wait()

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.JobsStarted))
}

func TestWatcherSkipsFileThatNeverSettles(t *testing.T) {
	f := newServiceFixture(t)
	watchDir := t.TempDir()
	cancel, done := startWatcher(t, f, watchDir)

	// A zero-byte file never settles; it must be given up on instead of
	// wedging the event loop.
	require.NoError(t, os.WriteFile(filepath.Join(watchDir, "empty.mkv"), nil, 0640))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(watchDir, "good.mkv"), []byte("bytes"), 0640))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(f.cache.MediaDir(), "good.mkv"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	_, err := os.Stat(filepath.Join(f.cache.MediaDir(), "empty.mkv"))
	assert.True(t, os.IsNotExist(err))

	cancel()
	require.NoError(t, <-done)
	f.service.Wait()
}
