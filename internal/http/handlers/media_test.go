package handlers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softglow/ambientd/internal/ffmpeg"
	"github.com/softglow/ambientd/internal/ingest"
	"github.com/softglow/ambientd/internal/jobs"
	"github.com/softglow/ambientd/internal/metrics"
	"github.com/softglow/ambientd/internal/storage"
	"github.com/softglow/ambientd/internal/transcode"
)

type handlerFixture struct {
	handler  *MediaHandler
	cache    *storage.Cache
	registry *jobs.Registry
}

func newHandlerFixture(t *testing.T) *handlerFixture {
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
	service := ingest.NewService(context.Background(), cache, registry, prober, cascade, m, logger,
		[]transcode.EncoderConfig{{Name: "libx264"}})

	return &handlerFixture{
		handler:  NewMediaHandler(service, registry, logger),
		cache:    cache,
		registry: registry,
	}
}

func multipartForm(t *testing.T, filename, content string, fields map[string]string) multipart.Form {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return *form
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	require.Error(t, err)
	var statusErr huma.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, want, statusErr.GetStatus())
}

func TestUploadMedia(t *testing.T) {
	f := newHandlerFixture(t)

	input := &UploadMediaInput{
		RawBody: multipartForm(t, "My Clip.mp4", "video bytes", map[string]string{"ambient": "false"}),
	}

	out, err := f.handler.UploadMedia(context.Background(), input)
	require.NoError(t, err)

	assert.True(t, out.Body.Ready)
	assert.Equal(t, 100, out.Body.Progress)
	assert.Equal(t, "/media/MyClip.mp4", out.Body.SourceURL)
	assert.Nil(t, out.Body.DerivativeURL)
	require.NotNil(t, out.Body.Media)

	// The original is pollable and present on disk.
	_, err = f.registry.Get(out.Body.ID)
	assert.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(f.cache.MediaDir(), "MyClip.mp4"))
	assert.NoError(t, statErr)
}

func TestUploadMediaNoFile(t *testing.T) {
	f := newHandlerFixture(t)

	input := &UploadMediaInput{RawBody: multipartForm(t, "", "", nil)}

	_, err := f.handler.UploadMedia(context.Background(), input)
	assertStatus(t, err, 400)
}

func TestUploadMediaBadAmbientFlag(t *testing.T) {
	f := newHandlerFixture(t)

	input := &UploadMediaInput{
		RawBody: multipartForm(t, "clip.mp4", "x", map[string]string{"ambient": "maybe"}),
	}

	_, err := f.handler.UploadMedia(context.Background(), input)
	assertStatus(t, err, 400)
}

func TestOpenMedia(t *testing.T) {
	f := newHandlerFixture(t)

	src := filepath.Join(t.TempDir(), "movie.mkv")
	require.NoError(t, os.WriteFile(src, []byte("bytes"), 0640))

	input := &OpenMediaInput{}
	input.Body.Path = src
	input.Body.Ambient = false

	out, err := f.handler.OpenMedia(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, out.Body.Ready)
	assert.Equal(t, "/media/movie.mkv", out.Body.SourceURL)
}

func TestOpenMediaMissingPath(t *testing.T) {
	f := newHandlerFixture(t)

	input := &OpenMediaInput{}
	input.Body.Path = "/nonexistent/movie.mkv"

	_, err := f.handler.OpenMedia(context.Background(), input)
	assertStatus(t, err, 400)

	// No job is created for input errors.
	assert.Zero(t, f.registry.Len())
}

func TestOpenMediaCachedDerivative(t *testing.T) {
	f := newHandlerFixture(t)

	src := filepath.Join(t.TempDir(), "movie.mkv")
	require.NoError(t, os.WriteFile(src, []byte("bytes"), 0640))

	derivative, err := f.cache.DerivativePath("movie")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(derivative, []byte("mp4"), 0640))

	input := &OpenMediaInput{}
	input.Body.Path = src
	input.Body.Ambient = true

	out, err := f.handler.OpenMedia(context.Background(), input)
	require.NoError(t, err)

	assert.True(t, out.Body.Ready)
	assert.Equal(t, 100, out.Body.Progress)
	require.NotNil(t, out.Body.DerivativeURL)
	assert.Equal(t, "/media/movie-ambient.mp4", *out.Body.DerivativeURL)
}

func TestGetJob(t *testing.T) {
	f := newHandlerFixture(t)

	job := jobs.New(jobs.NewID(), "/media/movie.mkv")
	job.OnProgress(42)
	f.registry.Put(job)

	out, err := f.handler.GetJob(context.Background(), &GetJobInput{ID: job.ID()})
	require.NoError(t, err)

	assert.Equal(t, job.ID(), out.Body.ID)
	assert.Equal(t, 42, out.Body.Progress)
	assert.False(t, out.Body.Ready)
	assert.Nil(t, out.Body.DerivativeURL)
}

func TestGetJobNotFound(t *testing.T) {
	f := newHandlerFixture(t)

	_, err := f.handler.GetJob(context.Background(), &GetJobInput{ID: "never-existed"})
	assertStatus(t, err, 404)
}
