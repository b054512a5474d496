package media

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoFFmpeg(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	return path
}

// synthChunk renders a short synthetic MP4 with both video and audio, the
// same lavfi pattern the ffmpeg package's own tests use for fixtures.
func synthChunk(t *testing.T, ffmpegPath string, seconds int) []byte {
	t.Helper()
	out := t.TempDir() + "/chunk.mp4"
	dur := strconv.Itoa(seconds)
	cmd := exec.CommandContext(context.Background(), ffmpegPath,
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=duration="+dur+":size=160x120:rate=10",
		"-f", "lavfi", "-i", "sine=duration="+dur+":frequency=440:sample_rate=48000",
		"-c:v", "libx264", "-preset", "ultrafast", "-c:a", "aac",
		out,
	)
	if err := cmd.Run(); err != nil {
		t.Skipf("could not synthesize test chunk: %v", err)
	}
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	return data
}

func TestToolkit_Concatenate_ZeroAndOne(t *testing.T) {
	tk := New("ffmpeg", "ffprobe")

	out, err := tk.Concatenate(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	single := []byte("not really an mp4 but pass-through doesn't care")
	out, err = tk.Concatenate(context.Background(), [][]byte{single})
	require.NoError(t, err)
	assert.Equal(t, single, out)
}

func TestToolkit_Concatenate_Multiple(t *testing.T) {
	ffmpegPath := skipIfNoFFmpeg(t)
	tk := New(ffmpegPath, "ffprobe")

	a := synthChunk(t, ffmpegPath, 1)
	b := synthChunk(t, ffmpegPath, 1)

	out, err := tk.Concatenate(context.Background(), [][]byte{a, b})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestToolkit_ExtractFrames(t *testing.T) {
	ffmpegPath := skipIfNoFFmpeg(t)
	tk := New(ffmpegPath, "ffprobe")

	chunk := synthChunk(t, ffmpegPath, 2)
	frames, err := tk.ExtractFrames(context.Background(), chunk, 1.0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(frames), 1)
	for _, f := range frames {
		assert.NotEmpty(t, f)
	}
}

func TestToolkit_ExtractAudio(t *testing.T) {
	ffmpegPath := skipIfNoFFmpeg(t)
	tk := New(ffmpegPath, "ffprobe")

	chunk := synthChunk(t, ffmpegPath, 1)
	pcm, err := tk.ExtractAudio(context.Background(), chunk)
	require.NoError(t, err)
	assert.NotEmpty(t, pcm)
}

func TestToolkit_RemuxAudioVideo_PreservesVideoDuration(t *testing.T) {
	ffmpegPath := skipIfNoFFmpeg(t)
	tk := New(ffmpegPath, "ffprobe")

	video := synthChunk(t, ffmpegPath, 2)
	shortAudio, err := tk.ExtractAudio(context.Background(), synthChunk(t, ffmpegPath, 1))
	require.NoError(t, err)

	out, err := tk.RemuxAudioVideo(context.Background(), video, shortAudio, 48000)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	// Regression guard for the reference implementation's shortest-stream
	// truncation bug: the remuxed output must not be built with -shortest.
	dur, err := tk.ProbeDuration(context.Background(), out)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, dur, 0.5)
}

func TestToolkit_FragmentMP4(t *testing.T) {
	ffmpegPath := skipIfNoFFmpeg(t)
	tk := New(ffmpegPath, "ffprobe")

	chunk := synthChunk(t, ffmpegPath, 1)
	out, err := tk.FragmentMP4(context.Background(), chunk)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
