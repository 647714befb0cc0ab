package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softglow/ambientd/internal/jobs"
)

func TestGetHealth(t *testing.T) {
	registry := jobs.NewRegistry()
	registry.Put(jobs.New(jobs.NewID(), "/media/movie.mkv"))

	h := NewHealthHandler("1.2.3", registry, func(context.Context) bool { return true })

	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)

	assert.Equal(t, "healthy", out.Body.Status)
	assert.Equal(t, "ok", out.Body.FFmpeg)
	assert.Equal(t, "1.2.3", out.Body.Version)
	assert.Equal(t, 1, out.Body.ActiveJobs)
	assert.Positive(t, out.Body.CPUCores)
}

func TestGetHealthDegradedWithoutFFmpeg(t *testing.T) {
	h := NewHealthHandler("1.2.3", jobs.NewRegistry(), func(context.Context) bool { return false })

	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)

	assert.Equal(t, "degraded", out.Body.Status)
	assert.Equal(t, "unavailable", out.Body.FFmpeg)
}
