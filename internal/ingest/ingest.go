// Package ingest implements the Ingestor: turning a URL into an ordered
// stream of BaseChunks, in VOD (download-then-segment) or live
// (stream-and-segment) mode, with per-invocation scratch and cache
// isolation.
package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/shlawgathon/sportsclips/internal/downloader"
	"github.com/shlawgathon/sportsclips/internal/ffmpeg"
	"github.com/shlawgathon/sportsclips/internal/models"
	"github.com/shlawgathon/sportsclips/internal/perrors"
	"github.com/shlawgathon/sportsclips/internal/scratch"
)

// Config configures one ingest invocation.
type Config struct {
	ChunkDuration int // seconds, > 0
	FormatPref    string
	ExtraFlags    []string
	Live          bool
	CookiesFile   string
}

// Ingestor turns URLs into BaseChunk streams. One instance is shared across
// every concurrent run in the process; it holds no per-run state.
type Ingestor struct {
	Downloader *downloader.Client
	FFmpegPath string
	logger     *slog.Logger
}

// New creates an Ingestor bound to the given downloader and ffmpeg binary.
func New(dl *downloader.Client, ffmpegPath string, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{Downloader: dl, FFmpegPath: ffmpegPath, logger: logger.With("component", "ingest")}
}

// Stream is the result of one Ingest call: an ordered channel of chunks,
// closed on completion, plus a terminal error available once the channel is
// drained (nil on normal end-of-stream).
type Stream struct {
	Chunks <-chan models.BaseChunk
	err    atomic.Value // error
}

// Err returns the stream's terminal error. Only meaningful after Chunks has
// been fully drained (closed).
func (s *Stream) Err() error {
	v := s.err.Load()
	if v == nil {
		return nil
	}
	return v.(error)
}

func (s *Stream) setErr(err error) {
	if err != nil {
		s.err.Store(err)
	}
}

// ProbeLive reports whether url is a live or upcoming source, delegating to
// the downloader's liveness sub-operation (spec's separable probe
// operation, used by callers that don't know liveness a priori).
func (g *Ingestor) ProbeLive(ctx context.Context, url string) (bool, error) {
	return g.Downloader.ProbeLive(ctx, url)
}

// Ingest starts ingestion of url per cfg. Every invocation gets its own
// scratch directory and downloader cache directory, both disjoint from any
// other concurrent invocation; both are removed when the run's context is
// done or the goroutine returns.
func (g *Ingestor) Ingest(ctx context.Context, url string, cfg Config) (*Stream, error) {
	if cfg.ChunkDuration <= 0 {
		return nil, perrors.NewConfigError("chunk_duration", "must be > 0")
	}

	runScope, err := scratch.NewRoot("ingest")
	if err != nil {
		return nil, perrors.NewIngestError(perrors.IngestPermanent, "", err)
	}
	cacheScope, err := runScope.Child("cache")
	if err != nil {
		runScope.Close()
		return nil, perrors.NewIngestError(perrors.IngestPermanent, "", err)
	}

	out := make(chan models.BaseChunk)
	stream := &Stream{Chunks: out}

	go func() {
		defer runScope.Close()
		defer close(out)

		var runErr error
		if cfg.Live {
			runErr = g.runLive(ctx, url, cfg, runScope, cacheScope, out)
		} else {
			runErr = g.runVOD(ctx, url, cfg, runScope, cacheScope, out)
		}
		stream.setErr(runErr)
	}()

	return stream, nil
}

// segmentBuilder returns a CommandBuilder with the flags common to both
// segmenter invocations: stream-copy, reset timestamps per segment, segment
// muxer sized to chunk_duration.
func (g *Ingestor) segmentBuilder(chunkDuration int) *ffmpeg.CommandBuilder {
	return ffmpeg.NewCommandBuilder(g.FFmpegPath).
		HideBanner().
		Overwrite().
		LogLevel("error").
		OutputArgs(
			"-c", "copy",
			"-f", "segment",
			"-segment_time", itoa(chunkDuration),
			"-reset_timestamps", "1",
		)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
