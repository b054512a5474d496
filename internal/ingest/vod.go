package ingest

import (
	"context"

	"github.com/shlawgathon/sportsclips/internal/models"
	"github.com/shlawgathon/sportsclips/internal/scratch"
)

// runVOD downloads url's full media to a scratch file, segments it into
// chunk_duration-second MP4s, and yields each segment in temporal order.
func (g *Ingestor) runVOD(ctx context.Context, url string, cfg Config, runScope, cacheScope *scratch.Scope, out chan<- models.BaseChunk) error {
	downloadPattern := runScope.Path("source.%(ext)s")

	if err := g.Downloader.DownloadToFile(
		ctx, url, downloadPattern, cacheScope.Dir(),
		cfg.FormatPref, cfg.ExtraFlags, cfg.CookiesFile,
		nil,
	); err != nil {
		return err
	}

	sourcePath, err := findDownloaded(runScope.Path("source.*"))
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
		Input(sourcePath).
		Output(segPattern).
		Build()

	if err := runSegmenter(ctx, cmd); err != nil {
		return err
	}

	files, err := globSorted(segScope.Path("chunk-*.mp4"))
	if err != nil {
		return err
	}

	for i, f := range files {
		data, err := readFile(f)
		if err != nil {
			return err
		}
		chunk := models.BaseChunk{
			Payload:  data,
			Sequence: i,
			Duration: float64(cfg.ChunkDuration),
		}
		select {
		case out <- chunk:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}
