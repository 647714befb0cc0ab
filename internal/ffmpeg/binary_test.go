package ffmpeg

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}
}

func TestParseEncoderList(t *testing.T) {
	out := ` Encoders:
 V..... = Video
 A..... = Audio
 S..... = Subtitle
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC
 V....D h264_nvenc           NVIDIA NVENC H.264 encoder
 A....D aac                  AAC (Advanced Audio Coding)
 S..... mov_text             3GPP Timed Text subtitle
`

	encoders := parseEncoderList(out)

	assert.Equal(t, []string{"libx264", "h264_nvenc"}, encoders)
}

func TestParseEncoderListEmpty(t *testing.T) {
	assert.Empty(t, parseEncoderList(""))
	assert.Empty(t, parseEncoderList("Encoders:\nno separator here"))
}

func TestResolveBinaryMissing(t *testing.T) {
	_, err := resolveBinary("", "definitely-not-a-real-binary-name")
	require.Error(t, err)

	_, err = resolveBinary("/nonexistent/path/ffmpeg", "ffmpeg")
	require.Error(t, err)
}

func TestDetectFFmpeg(t *testing.T) {
	skipIfNoFFmpeg(t)

	d := NewBinaryDetector("", "")
	info, err := d.DetectFFmpeg(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, info.Path)
	assert.NotEmpty(t, info.Encoders)

	// Every build we care about ships the software H.264 encoder.
	assert.True(t, d.HasEncoder(context.Background(), "libx264"))
	assert.False(t, d.HasEncoder(context.Background(), "not_an_encoder"))
}

func TestDetectCacheInvalidate(t *testing.T) {
	skipIfNoFFmpeg(t)

	d := NewBinaryDetector("", "")
	first, err := d.DetectFFmpeg(context.Background())
	require.NoError(t, err)

	// Second call should hit the cache and return the same instance.
	second, err := d.DetectFFmpeg(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)

	d.Invalidate()
	third, err := d.DetectFFmpeg(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Path, third.Path)
}
