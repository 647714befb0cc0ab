package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// AudioTrack describes one audio stream in a media file.
type AudioTrack struct {
	Index    int    `json:"index"`
	Codec    string `json:"codec"`
	Language string `json:"language"`
	Channels int    `json:"channels"`
}

// SubtitleTrack describes one subtitle stream in a media file.
type SubtitleTrack struct {
	Index    int    `json:"index"`
	Codec    string `json:"codec"`
	Language string `json:"language"`
}

// MediaInfo is the simplified probe result consumed by the rest of the
// pipeline.
type MediaInfo struct {
	// DurationSeconds is the container duration, or 0 when unknown.
	DurationSeconds float64         `json:"duration_seconds"`
	AudioTracks     []AudioTrack    `json:"audio_tracks"`
	SubtitleTracks  []SubtitleTrack `json:"subtitle_tracks"`
}

// probeOutput mirrors ffprobe's JSON output shape.
type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

type probeStream struct {
	Index     int               `json:"index"`
	CodecType string            `json:"codec_type"`
	CodecName string            `json:"codec_name"`
	Channels  int               `json:"channels"`
	Tags      map[string]string `json:"tags"`
}

// Prober extracts stream metadata from media files via ffprobe.
type Prober struct {
	detector *BinaryDetector
	logger   *slog.Logger
}

// NewProber creates a prober using the given binary detector.
func NewProber(detector *BinaryDetector, logger *slog.Logger) *Prober {
	return &Prober{detector: detector, logger: logger}
}

// Probe inspects the file at path. Probing is best-effort: on any failure it
// logs and returns an empty MediaInfo rather than an error, so callers always
// get a usable (possibly empty) result.
func (p *Prober) Probe(ctx context.Context, path string) *MediaInfo {
	info, err := p.probe(ctx, path)
	if err != nil {
		p.logger.Warn("probe failed, continuing with empty metadata",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return &MediaInfo{}
	}
	return info
}

func (p *Prober) probe(ctx context.Context, path string) (*MediaInfo, error) {
	bin, err := p.detector.DetectFFprobe(ctx)
	if err != nil {
		return nil, err
	}

	out, err := exec.CommandContext(ctx, bin.Path,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	).Output()
	if err != nil {
		return nil, fmt.Errorf("running ffprobe: %w", err)
	}

	var raw probeOutput
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	return simplify(&raw), nil
}

// simplify converts raw ffprobe output into a MediaInfo.
func simplify(raw *probeOutput) *MediaInfo {
	info := &MediaInfo{
		AudioTracks:    []AudioTrack{},
		SubtitleTracks: []SubtitleTrack{},
	}

	if raw.Format.Duration != "" {
		if d, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil && d > 0 {
			info.DurationSeconds = d
		}
	}

	for _, s := range raw.Streams {
		switch s.CodecType {
		case "audio":
			info.AudioTracks = append(info.AudioTracks, AudioTrack{
				Index:    s.Index,
				Codec:    s.CodecName,
				Language: streamLanguage(s.Tags),
				Channels: s.Channels,
			})
		case "subtitle":
			info.SubtitleTracks = append(info.SubtitleTracks, SubtitleTrack{
				Index:    s.Index,
				Codec:    s.CodecName,
				Language: streamLanguage(s.Tags),
			})
		}
	}

	return info
}

// streamLanguage normalizes the stream's language tag, defaulting to the
// undetermined code when missing or unparseable.
func streamLanguage(tags map[string]string) string {
	raw := strings.TrimSpace(tags["language"])
	if raw == "" {
		return language.Und.String()
	}
	tag, err := language.Parse(raw)
	if err != nil {
		// Keep ffprobe's original value; ISO 639-2/B codes like "ger"
		// are common in containers but rejected by the BCP 47 parser.
		return raw
	}
	base, _ := tag.Base()
	return base.String()
}
