package downloader

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoYtDlp(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("yt-dlp")
	if err != nil {
		t.Skip("yt-dlp not installed")
	}
	return path
}

func TestStripANSI(t *testing.T) {
	line := "\x1b[0;32m[download]\x1b[0m  42.0% of 10MiB"
	clean := ansiRegex.ReplaceAllString(line, "")
	assert.Equal(t, "[download]  42.0% of 10MiB", clean)
}

func TestPercentRegex(t *testing.T) {
	m := percentRegex.FindStringSubmatch("[download]  73.4% of ~10.00MiB at 1.2MiB/s")
	require.Len(t, m, 2)
	assert.Equal(t, "73.4", m[1])
}

func TestLiveSafeFormat(t *testing.T) {
	assert.Equal(t, "bestvideo+bestaudio/best", liveSafeFormat(""))
	assert.Equal(t, "bestvideo+bestaudio/best", liveSafeFormat("best"))
	assert.Equal(t, "bestvideo+bestaudio/best", liveSafeFormat("best[ext=mp4]"))
	assert.Equal(t, "247+251", liveSafeFormat("247+251"))
}

func TestLiveReaderArgs(t *testing.T) {
	c := New("yt-dlp", nil)
	args := c.LiveReaderArgs("https://example.com/live", "/tmp/cache", "", nil, "", true)
	assert.Contains(t, args, "--live-from-start")
	assert.Contains(t, args, "-o")
	assert.Contains(t, args, "-")
}

func TestProbeLive_VOD(t *testing.T) {
	ytDlpPath := skipIfNoYtDlp(t)
	c := New(ytDlpPath, nil)

	// A known-static test clip's URL isn't reachable in this sandbox, so this
	// only verifies the call shape compiles and handles probe failure as a
	// non-live classification rather than a panic.
	live, err := c.ProbeLive(context.Background(), "https://example.invalid/not-a-video")
	if err == nil {
		assert.False(t, live)
	}
}
