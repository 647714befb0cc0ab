package ffmpeg

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSimplify(t *testing.T) {
	raw := `{
		"format": {"duration": "3600.250000"},
		"streams": [
			{"index": 0, "codec_type": "video", "codec_name": "h264"},
			{"index": 1, "codec_type": "audio", "codec_name": "aac", "channels": 6, "tags": {"language": "eng"}},
			{"index": 2, "codec_type": "audio", "codec_name": "ac3", "channels": 2},
			{"index": 3, "codec_type": "subtitle", "codec_name": "subrip", "tags": {"language": "fr"}}
		]
	}`

	var out probeOutput
	require.NoError(t, json.Unmarshal([]byte(raw), &out))

	info := simplify(&out)

	assert.InDelta(t, 3600.25, info.DurationSeconds, 0.001)

	require.Len(t, info.AudioTracks, 2)
	assert.Equal(t, AudioTrack{Index: 1, Codec: "aac", Language: "en", Channels: 6}, info.AudioTracks[0])
	assert.Equal(t, AudioTrack{Index: 2, Codec: "ac3", Language: "und", Channels: 2}, info.AudioTracks[1])

	require.Len(t, info.SubtitleTracks, 1)
	assert.Equal(t, SubtitleTrack{Index: 3, Codec: "subrip", Language: "fr"}, info.SubtitleTracks[0])
}

func TestSimplifyEmpty(t *testing.T) {
	info := simplify(&probeOutput{})

	assert.Zero(t, info.DurationSeconds)
	assert.NotNil(t, info.AudioTracks)
	assert.Empty(t, info.AudioTracks)
	assert.NotNil(t, info.SubtitleTracks)
	assert.Empty(t, info.SubtitleTracks)
}

func TestStreamLanguage(t *testing.T) {
	tests := []struct {
		name string
		tags map[string]string
		want string
	}{
		{"missing tags", nil, "und"},
		{"empty value", map[string]string{"language": ""}, "und"},
		{"whitespace", map[string]string{"language": "  "}, "und"},
		{"iso639-2", map[string]string{"language": "eng"}, "en"},
		{"bcp47", map[string]string{"language": "pt-BR"}, "pt"},
		{"private use code", map[string]string{"language": "qaa"}, "qaa"},
		{"unparseable kept verbatim", map[string]string{"language": "12345678"}, "12345678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, streamLanguage(tt.tags))
		})
	}
}

func TestProbeDegradesToEmpty(t *testing.T) {
	skipIfNoFFmpeg(t)

	p := NewProber(NewBinaryDetector("", ""), discardLogger())

	info := p.Probe(context.Background(), "/nonexistent/file.mkv")

	require.NotNil(t, info)
	assert.Zero(t, info.DurationSeconds)
	assert.Empty(t, info.AudioTracks)
	assert.Empty(t, info.SubtitleTracks)
}
