// Package ffmpeg wraps the ffmpeg and ffprobe binaries: binary discovery,
// subprocess lifecycle with progress reporting, and stream probing.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"
)

// BinaryInfo contains information about a detected binary.
type BinaryInfo struct {
	Path     string
	Version  string
	Encoders []string
}

// BinaryDetector locates the ffmpeg and ffprobe binaries and caches what the
// ffmpeg build supports. Detection results are cached with a TTL so repeated
// lookups do not shell out on every job.
type BinaryDetector struct {
	mu       sync.RWMutex
	ffmpeg   *BinaryInfo
	ffprobe  *BinaryInfo
	cachedAt time.Time
	cacheTTL time.Duration

	// Explicit paths from configuration; empty means PATH lookup.
	ffmpegPath  string
	ffprobePath string
}

// NewBinaryDetector creates a detector. ffmpegPath and ffprobePath override
// PATH lookup when non-empty.
func NewBinaryDetector(ffmpegPath, ffprobePath string) *BinaryDetector {
	return &BinaryDetector{
		cacheTTL:    5 * time.Minute,
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// DetectFFmpeg returns information about the ffmpeg binary.
func (d *BinaryDetector) DetectFFmpeg(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.ffmpeg != nil && time.Since(d.cachedAt) < d.cacheTTL {
		info := d.ffmpeg
		d.mu.RUnlock()
		return info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Re-check under the write lock.
	if d.ffmpeg != nil && time.Since(d.cachedAt) < d.cacheTTL {
		return d.ffmpeg, nil
	}

	path, err := resolveBinary(d.ffmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}

	info := &BinaryInfo{Path: path}
	info.Version = getVersion(ctx, path)

	encoders, err := getEncoders(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("listing encoders: %w", err)
	}
	info.Encoders = encoders

	d.ffmpeg = info
	d.cachedAt = time.Now()
	return info, nil
}

// DetectFFprobe returns information about the ffprobe binary.
func (d *BinaryDetector) DetectFFprobe(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.ffprobe != nil && time.Since(d.cachedAt) < d.cacheTTL {
		info := d.ffprobe
		d.mu.RUnlock()
		return info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ffprobe != nil && time.Since(d.cachedAt) < d.cacheTTL {
		return d.ffprobe, nil
	}

	path, err := resolveBinary(d.ffprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}

	info := &BinaryInfo{Path: path}
	info.Version = getVersion(ctx, path)

	d.ffprobe = info
	if d.ffmpeg == nil {
		d.cachedAt = time.Now()
	}
	return info, nil
}

// HasEncoder reports whether the detected ffmpeg build supports the named
// encoder. Returns false when detection fails.
func (d *BinaryDetector) HasEncoder(ctx context.Context, name string) bool {
	info, err := d.DetectFFmpeg(ctx)
	if err != nil {
		return false
	}
	return slices.Contains(info.Encoders, name)
}

// Invalidate clears the cached detection results.
func (d *BinaryDetector) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ffmpeg = nil
	d.ffprobe = nil
	d.cachedAt = time.Time{}
}

// resolveBinary resolves an explicit path or falls back to PATH lookup.
func resolveBinary(explicit, name string) (string, error) {
	if explicit != "" {
		if _, err := exec.LookPath(explicit); err != nil {
			return "", fmt.Errorf("configured %s binary %q: %w", name, explicit, err)
		}
		return explicit, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return path, nil
}

// getVersion extracts the version string from `<binary> -version` output.
func getVersion(ctx context.Context, path string) string {
	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "unknown"
	}

	// First line looks like: "ffmpeg version 7.1 Copyright (c) ..."
	line, _, _ := strings.Cut(string(out), "\n")
	fields := strings.Fields(line)
	if len(fields) >= 3 && fields[1] == "version" {
		return fields[2]
	}
	return "unknown"
}

// getEncoders parses `ffmpeg -hide_banner -encoders` output into the list of
// video encoder names.
func getEncoders(ctx context.Context, path string) ([]string, error) {
	out, err := exec.CommandContext(ctx, path, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, err
	}
	return parseEncoderList(string(out)), nil
}

// parseEncoderList extracts video encoder names from -encoders output.
// The listing starts after a "------" separator; each line begins with a
// capability column whose first character is V for video encoders.
func parseEncoderList(out string) []string {
	var encoders []string
	inList := false
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if !inList {
			if strings.HasPrefix(trimmed, "------") {
				inList = true
			}
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) < 2 {
			continue
		}
		if fields[0] == "" || fields[0][0] != 'V' {
			continue
		}
		encoders = append(encoders, fields[1])
	}
	return encoders
}
