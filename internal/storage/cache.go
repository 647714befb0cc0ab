package storage

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
)

// DerivativeSuffix is appended to a sanitized base name to form the ambient
// derivative filename.
const DerivativeSuffix = "-ambient.mp4"

// Cache manages the media cache directory. A cache record is simply a file
// on disk: presence of <base>-ambient.mp4 means the derivative exists, no
// database involved. Uploaded originals are tracked in a removal set and
// deleted at shutdown; derivatives are retained across restarts.
type Cache struct {
	media   *Sandbox
	staging *Sandbox
	logger  *slog.Logger

	mu        sync.Mutex
	removable map[string]struct{} // original filenames to delete at shutdown
}

// NewCache creates a cache with the given media and staging directories.
func NewCache(mediaDir, stagingDir string, logger *slog.Logger) (*Cache, error) {
	media, err := NewSandbox(mediaDir)
	if err != nil {
		return nil, fmt.Errorf("creating media dir: %w", err)
	}
	staging, err := NewSandbox(stagingDir)
	if err != nil {
		return nil, fmt.Errorf("creating staging dir: %w", err)
	}
	return &Cache{
		media:     media,
		staging:   staging,
		logger:    logger,
		removable: make(map[string]struct{}),
	}, nil
}

// MediaDir returns the absolute path of the media cache directory.
func (c *Cache) MediaDir() string {
	return c.media.BaseDir()
}

// StagingDir returns the absolute path of the staging directory.
func (c *Cache) StagingDir() string {
	return c.staging.BaseDir()
}

// SanitizeBaseName reduces a name to [A-Za-z0-9_-]. Any other rune is
// dropped. The function is idempotent: sanitizing a sanitized name returns
// it unchanged. An empty result becomes "media".
func SanitizeBaseName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "media"
	}
	return b.String()
}

// BaseNameFor derives the sanitized base name from an arbitrary filename or
// path, stripping directories and the extension first.
func BaseNameFor(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return SanitizeBaseName(name)
}

// DerivativeName returns the ambient derivative filename for a sanitized
// base name.
func DerivativeName(base string) string {
	return base + DerivativeSuffix
}

// DerivativePath returns the absolute path where the derivative for base
// lives (whether or not it exists yet).
func (c *Cache) DerivativePath(base string) (string, error) {
	return c.media.ResolvePath(DerivativeName(base))
}

// HasDerivative reports whether a finished derivative exists for base.
func (c *Cache) HasDerivative(base string) bool {
	ok, err := c.media.Exists(DerivativeName(base))
	if err != nil {
		c.logger.Warn("derivative lookup failed",
			slog.String("base", base),
			slog.String("error", err.Error()))
		return false
	}
	return ok
}

// StageUpload streams an upload into the staging directory and returns the
// absolute staged path. The caller later publishes or discards it.
func (c *Cache) StageUpload(filename string, r io.Reader) (string, error) {
	base := BaseNameFor(filename)
	staged := base + sanitizeExt(filename)
	if err := c.staging.AtomicWriteReader(staged, r); err != nil {
		return "", fmt.Errorf("staging upload: %w", err)
	}
	return c.staging.ResolvePath(staged)
}

// PublishOriginal moves a staged file into the media cache under its
// sanitized name and marks it for deletion at shutdown. Returns the
// published absolute path. Two requests publishing the same name race
// benignly: last write wins and both observe a complete file.
func (c *Cache) PublishOriginal(stagedPath string) (string, error) {
	name := filepath.Base(stagedPath)
	if err := c.media.AtomicPublish(stagedPath, name); err != nil {
		return "", fmt.Errorf("publishing original: %w", err)
	}

	c.mu.Lock()
	c.removable[name] = struct{}{}
	c.mu.Unlock()

	return c.media.ResolvePath(name)
}

// ServePath resolves a filename inside the media cache for static serving.
func (c *Cache) ServePath(filename string) (string, error) {
	return c.media.ResolvePath(filename)
}

// RemoveOriginals deletes every original registered with PublishOriginal.
// Derivatives are never touched. Called once at shutdown.
func (c *Cache) RemoveOriginals() int {
	c.mu.Lock()
	names := make([]string, 0, len(c.removable))
	for name := range c.removable {
		names = append(names, name)
	}
	c.removable = make(map[string]struct{})
	c.mu.Unlock()

	removed := 0
	for _, name := range names {
		if err := c.media.Remove(name); err != nil {
			c.logger.Warn("removing original failed",
				slog.String("name", name),
				slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	return removed
}

// RemovePartial deletes an incomplete derivative left behind by a failed or
// killed encode attempt. Missing files are not an error.
func (c *Cache) RemovePartial(base string) {
	name := DerivativeName(base)
	ok, err := c.media.Exists(name)
	if err != nil || !ok {
		return
	}
	if err := c.media.Remove(name); err != nil {
		c.logger.Warn("removing partial derivative failed",
			slog.String("name", name),
			slog.String("error", err.Error()))
	}
}

// sanitizeExt returns a cleaned lowercase extension including the dot, or
// empty when the filename has none.
func sanitizeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || ext == "." {
		return ""
	}
	return "." + SanitizeBaseName(ext[1:])
}
