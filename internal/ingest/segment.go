package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/shlawgathon/sportsclips/internal/ffmpeg"
	"github.com/shlawgathon/sportsclips/internal/perrors"
)

// runSegmenter starts cmd, captures stderr, and waits for completion,
// wrapping any failure as a transient IngestError (the segmenter is the
// transcoder half of the Ingestor's downloader/transcoder pair).
func runSegmenter(ctx context.Context, cmd *ffmpeg.Command) error {
	var stderr bytes.Buffer
	cmd.Prepare(ctx)
	if pipe, err := cmd.Stderr(); err == nil && pipe != nil {
		go func() { _, _ = stderr.ReadFrom(pipe) }()
	}
	if err := cmd.Start(ctx); err != nil {
		return perrors.NewIngestError(perrors.IngestTransient, "", err)
	}
	if err := cmd.Wait(); err != nil {
		return perrors.NewIngestError(perrors.IngestTransient, stderr.String(), err)
	}
	return nil
}

// globSorted returns the files matching pattern in ascending lexical order,
// which is also temporal order for zero-padded segment names.
func globSorted(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("ingest: globbing %s: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// findDownloaded resolves yt-dlp's %(ext)s output template to the one file
// it actually produced.
func findDownloaded(pattern string) (string, error) {
	matches, err := globSorted(pattern)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("ingest: no downloaded file matched %s", pattern)
	}
	return matches[0], nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.NewIngestError(perrors.IngestTransient, "", err)
	}
	return data, nil
}
