package ingest

import (
	"bytes"
	"context"
	"time"

	"github.com/shlawgathon/sportsclips/internal/ffmpeg"
	"github.com/shlawgathon/sportsclips/internal/models"
	"github.com/shlawgathon/sportsclips/internal/perrors"
	"github.com/shlawgathon/sportsclips/internal/scratch"
)

// pollInterval is how often the live segment directory is rescanned for
// newly-closed segments.
const pollInterval = 500 * time.Millisecond

// staleSegmentThreshold is how many consecutive polls without a newly
// drained segment trigger a diagnostic stall warning (10s at pollInterval).
const staleSegmentThreshold = 20

// runLive pipes the downloader's stdout into the segmenter's stdin and
// watches the segment directory, yielding each segment as soon as its
// successor file proves it's closed for writing. When both processes exit,
// any remaining completed segments are drained before returning.
func (g *Ingestor) runLive(ctx context.Context, url string, cfg Config, runScope, cacheScope *scratch.Scope, out chan<- models.BaseChunk) error {
	args := g.Downloader.LiveReaderArgs(url, cacheScope.Dir(), cfg.FormatPref, cfg.ExtraFlags, cfg.CookiesFile, false)

	stdout, waitDownloader, err := g.Downloader.StartLiveReader(ctx, args)
	if err != nil {
		return err
	}

	segScope, err := runScope.Child("segments")
	if err != nil {
		return err
	}
	defer segScope.Close()

	segPattern := segScope.Path("chunk-%05d.mp4")
	cmd := g.segmentBuilder(cfg.ChunkDuration).
		InputArgs("-avoid_negative_ts", "make_zero").
		Stdin(stdout).
		Input("pipe:0").
		Output(segPattern).
		Build()

	var stderr bytes.Buffer
	cmd.Prepare(ctx)
	if pipe, perr := cmd.Stderr(); perr == nil && pipe != nil {
		go func() { _, _ = stderr.ReadFrom(pipe) }()
	}
	if err := cmd.Start(ctx); err != nil {
		_ = stdout.Close()
		return perrors.NewIngestError(perrors.IngestTransient, "", err)
	}
	cmd.StartMonitoring()

	downloaderDone := make(chan error, 1)
	go func() { downloaderDone <- waitDownloader() }()
	segmenterDone := make(chan error, 1)
	go func() { segmenterDone <- cmd.Wait() }()

	next := 0
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var dlErr, segErr error
	dlExited, segExited := false, false
	staleTicks := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case dlErr = <-downloaderDone:
			dlExited = true

		case segErr = <-segmenterDone:
			segExited = true

		case <-ticker.C:
		}

		drained, err := g.drainClosedSegments(ctx, segScope, segPattern, &next, cfg, out)
		if err != nil {
			return err
		}

		if !dlExited && !segExited {
			staleTicks = g.reportStallIfStuck(cmd, drained, staleTicks)
		}

		if dlExited && segExited {
			break
		}
	}

	// Final drain: once both processes have exited, every remaining segment
	// file is complete, including the last one (which never had a successor).
	if _, err := g.drainAllRemaining(ctx, segScope, &next, cfg, out); err != nil {
		return err
	}

	if segErr != nil {
		return perrors.NewIngestError(perrors.IngestTransient, stderr.String(), segErr)
	}
	if dlErr != nil {
		return dlErr
	}
	return nil
}

// drainClosedSegments yields every buffered segment at index >= *next whose
// successor file already exists, proving ffmpeg has moved on and closed it.
func (g *Ingestor) drainClosedSegments(ctx context.Context, segScope *scratch.Scope, segPattern string, next *int, cfg Config, out chan<- models.BaseChunk) (int, error) {
	files, err := globSorted(segScope.Path("chunk-*.mp4"))
	if err != nil {
		return 0, err
	}
	yielded := 0
	for *next < len(files)-1 { // the last listed file may still be open
		if err := g.yieldSegment(ctx, files[*next], *next, cfg, out); err != nil {
			return yielded, err
		}
		*next++
		yielded++
	}
	return yielded, nil
}

// drainAllRemaining yields every segment from *next through the last file in
// the directory, used once both processes have exited.
func (g *Ingestor) drainAllRemaining(ctx context.Context, segScope *scratch.Scope, next *int, cfg Config, out chan<- models.BaseChunk) (int, error) {
	files, err := globSorted(segScope.Path("chunk-*.mp4"))
	if err != nil {
		return 0, err
	}
	yielded := 0
	for *next < len(files) {
		if err := g.yieldSegment(ctx, files[*next], *next, cfg, out); err != nil {
			return yielded, err
		}
		*next++
		yielded++
	}
	return yielded, nil
}

// reportStallIfStuck logs a diagnostic warning, including the segmenter's
// live process stats, once staleSegmentThreshold consecutive polls have
// passed without a newly drained segment. It returns the updated
// consecutive-stale-tick count, resetting to zero whenever drained > 0.
func (g *Ingestor) reportStallIfStuck(cmd *ffmpeg.Command, drained, staleTicks int) int {
	if drained > 0 {
		return 0
	}
	staleTicks++
	if staleTicks == staleSegmentThreshold {
		if stats := cmd.ProcessStats(); stats != nil {
			g.logger.Warn("segmenter has produced no new segment in a while",
				"stale_polls", staleTicks,
				"cpu_percent", stats.CPUPercent,
				"memory_rss_mb", stats.MemoryRSSMB,
			)
		} else {
			g.logger.Warn("segmenter has produced no new segment in a while", "stale_polls", staleTicks)
		}
	}
	return staleTicks
}

func (g *Ingestor) yieldSegment(ctx context.Context, path string, sequence int, cfg Config, out chan<- models.BaseChunk) error {
	data, err := readFile(path)
	if err != nil {
		return err
	}
	chunk := models.BaseChunk{
		Payload:  data,
		Sequence: sequence,
		Duration: float64(cfg.ChunkDuration),
	}
	select {
	case out <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
