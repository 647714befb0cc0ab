package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/softglow/ambientd/internal/storage"
)

// FilesHandler serves cached originals and derivatives by filename.
type FilesHandler struct {
	cache *storage.Cache
}

// NewFilesHandler creates a files handler.
func NewFilesHandler(cache *storage.Cache) *FilesHandler {
	return &FilesHandler{cache: cache}
}

// RegisterFileServer registers the media file server routes.
func (h *FilesHandler) RegisterFileServer(router chi.Router) {
	router.Get("/media/{filename}", h.ServeMediaFile)
	router.Head("/media/{filename}", h.ServeMediaFile)
}

// ServeMediaFile serves a file from the media cache. The cache sandbox
// rejects traversal attempts.
func (h *FilesHandler) ServeMediaFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename == "" {
		http.Error(w, "filename required", http.StatusBadRequest)
		return
	}

	path, err := h.cache.ServePath(filename)
	if err != nil {
		http.Error(w, "invalid filename", http.StatusBadRequest)
		return
	}

	// ServeFile handles range requests, which video playback relies on.
	http.ServeFile(w, r, path)
}
