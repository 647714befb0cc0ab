// Package transcode implements the encoder fallback cascade that produces
// ambient derivatives.
package transcode

import (
	"context"
	"fmt"

	"github.com/softglow/ambientd/internal/ffmpeg"
)

// EncoderConfig is one candidate encoder backend with its tuning flags.
// Configs are immutable and tried in priority order.
type EncoderConfig struct {
	// Name is the ffmpeg video encoder, e.g. "h264_nvenc".
	Name string
	// Flags are backend-specific speed/quality flags. The output recipe
	// (scaling, audio strip, container flags) is fixed and shared by
	// every config.
	Flags []string
}

// DefaultCascade returns the static encoder priority list, fastest hardware
// first, ending with the universal software fallback.
func DefaultCascade() []EncoderConfig {
	return []EncoderConfig{
		{Name: "h264_nvenc", Flags: []string{"-preset", "p4"}},
		{Name: "h264_qsv", Flags: []string{"-preset", "fast"}},
		{Name: "h264_vaapi", Flags: nil},
		{Name: "h264_videotoolbox", Flags: []string{"-realtime", "true"}},
		{Name: "libx264", Flags: []string{"-preset", "veryfast", "-crf", "28"}},
	}
}

// FilterAvailable drops configs whose encoder the local ffmpeg build does
// not ship, saving doomed attempts. When detection fails or filtering would
// empty the list, the full list is returned and the cascade finds out the
// hard way.
func FilterAvailable(ctx context.Context, detector *ffmpeg.BinaryDetector, configs []EncoderConfig) []EncoderConfig {
	if _, err := detector.DetectFFmpeg(ctx); err != nil {
		return configs
	}

	available := make([]EncoderConfig, 0, len(configs))
	for _, cfg := range configs {
		if detector.HasEncoder(ctx, cfg.Name) {
			available = append(available, cfg)
		}
	}
	if len(available) == 0 {
		return configs
	}
	return available
}

// buildAttempt assembles the ffmpeg invocation for one cascade attempt.
// The recipe is fixed: scale to the target height preserving aspect ratio,
// strip audio, enable fast-start, mp4 container. Only the encoder varies.
func buildAttempt(binary string, a Attempt) *ffmpeg.CommandBuilder {
	b := ffmpeg.NewCommandBuilder(binary).
		Input(a.SourcePath).
		VideoFilter(fmt.Sprintf("scale=-2:%d", a.Height)).
		OutputArgs("-c:v", a.Encoder.Name)
	if len(a.Encoder.Flags) > 0 {
		b.OutputArgs(a.Encoder.Flags...)
	}
	return b.
		OutputArgs("-an", "-movflags", "+faststart", "-f", "mp4").
		Output(a.TargetPath)
}
