package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softglow/ambientd/internal/storage"
)

func newFilesRouter(t *testing.T) (*chi.Mux, *storage.Cache) {
	t.Helper()

	base := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache, err := storage.NewCache(filepath.Join(base, "media"), filepath.Join(base, "staging"), logger)
	require.NoError(t, err)

	router := chi.NewRouter()
	NewFilesHandler(cache).RegisterFileServer(router)
	return router, cache
}

func TestServeMediaFile(t *testing.T) {
	router, cache := newFilesRouter(t)

	path, err := cache.DerivativePath("movie")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("mp4 bytes"), 0640))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/movie-ambient.mp4", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mp4 bytes", rec.Body.String())
}

func TestServeMediaFileSupportsRanges(t *testing.T) {
	router, cache := newFilesRouter(t)

	path, err := cache.DerivativePath("movie")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0640))

	req := httptest.NewRequest(http.MethodGet, "/media/movie-ambient.mp4", nil)
	req.Header.Set("Range", "bytes=2-5")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "2345", rec.Body.String())
}

func TestServeMediaFileNotFound(t *testing.T) {
	router, _ := newFilesRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/ghost.mp4", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
