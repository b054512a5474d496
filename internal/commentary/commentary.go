// Package commentary implements the Live Commentary Consumer: it pairs up
// consecutive base chunks into fixed-length analysis windows, drives a
// single long-lived live multimodal session across the whole run, and
// emits ordered, fragmented MP4 CommentaryChunks with synthesized audio in
// place of the original.
package commentary

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shlawgathon/sportsclips/internal/dispatch"
	"github.com/shlawgathon/sportsclips/internal/genai"
	"github.com/shlawgathon/sportsclips/internal/media"
	"github.com/shlawgathon/sportsclips/internal/models"
	"github.com/shlawgathon/sportsclips/internal/perrors"
)

// LiveConnector opens one live multimodal session. Satisfied by *genai.Client
// through the genaiConnector adapter in production, and directly by a fake
// in tests that need to drive Consumer.Run without a live provider.
type LiveConnector interface {
	ConnectLive(ctx context.Context, model string) (LiveSession, error)
}

// LiveSession is the bidirectional turn contract *genai.LiveSession
// satisfies, extracted so tests can script a turn/response sequence.
type LiveSession interface {
	SendTurn(ctx context.Context, frames [][]byte, prompt string) error
	ReceiveChunk(ctx context.Context) (pcm []byte, turnComplete bool, err error)
	Close() error
}

// Toolkit is the subset of *media.Toolkit this consumer drives, extracted so
// tests can inject a fake transcoder instead of shelling out to ffmpeg.
type Toolkit interface {
	Concatenate(ctx context.Context, chunks [][]byte) ([]byte, error)
	ExtractFrames(ctx context.Context, chunkBytes []byte, fps float64) ([][]byte, error)
	RemuxAudioVideo(ctx context.Context, videoBytes, pcmBytes []byte, sampleRate int) ([]byte, error)
	FragmentMP4(ctx context.Context, mp4Bytes []byte) ([]byte, error)
	ProbeDuration(ctx context.Context, mediaBytes []byte) (float64, error)
}

// genaiConnector adapts *genai.Client to LiveConnector: genai.LiveSession
// already satisfies the LiveSession method set, but Go requires the exact
// return type in the interface method signature, hence the thin wrapper.
type genaiConnector struct{ client *genai.Client }

func (g genaiConnector) ConnectLive(ctx context.Context, model string) (LiveSession, error) {
	return g.client.ConnectLive(ctx, model)
}

// DefaultFPS is the frame extraction rate used when Config.FPS is unset.
const DefaultFPS = 1.0

// DefaultSampleRate is the provider's PCM output sample rate (24 kHz mono).
const DefaultSampleRate = 24000

// softCapChunks bounds how many PCM deltas one window's receive loop will
// accumulate before giving up on a turn-complete signal.
const softCapChunks = 60

// perWindowTimeout is the hard upper bound on one window's audio collection.
const perWindowTimeout = 10 * time.Second

// Prompt is the instruction sent alongside every window's frames.
const Prompt = "You are a live sports commentator. Watch this short clip and provide brief, energetic play-by-play commentary suitable for an excited broadcast audience. Speak naturally, as if calling the action live."

// Config configures one commentary run.
type Config struct {
	SourceURL  string
	FPS        float64
	Model      string
	SampleRate int
}

// Sink receives this run's output: a CommentaryChunk per successfully
// synthesized window, a single terminal Complete, or a single terminal
// Error — never more than one of Complete/Error.
type Sink interface {
	Chunk(models.CommentaryChunk)
	Complete()
	Error(error)
}

// Consumer drives the pending-pair windowing state machine described by
// the Live Commentary Consumer design.
type Consumer struct {
	LLM     LiveConnector
	Toolkit Toolkit
	logger  *slog.Logger
}

// New constructs a Consumer wired to a real provider client and toolkit.
func New(llm *genai.Client, toolkit *media.Toolkit, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{LLM: genaiConnector{client: llm}, Toolkit: toolkit, logger: logger.With("component", "commentary")}
}

// ID satisfies progress.Stage.
func (c *Consumer) ID() string { return "commentary" }

// Name satisfies progress.Stage.
func (c *Consumer) Name() string { return "Live commentary" }

// Run drains queue, pairing consecutive chunks into windows and emitting a
// CommentaryChunk per window that produced non-empty audio, until an
// EndSentinel arrives or the provider session fails.
func (c *Consumer) Run(ctx context.Context, cfg Config, queue dispatch.Queue, sink Sink) error {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}

	session, err := c.LLM.ConnectLive(ctx, cfg.Model)
	if err != nil {
		wrapped := perrors.NewProviderSessionError("connect", err)
		sink.Error(wrapped)
		return wrapped
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			c.logger.Warn("live session disconnect failed", "err", cerr)
		}
	}()

	var pending []models.BaseChunk
	chunkNumber := 0

	// emitWindow returns a non-nil error only for a fatal provider-session
	// failure; any other per-window failure is logged and swallowed here.
	emitWindow := func(chunks []models.BaseChunk) error {
		emitted, err := c.processWindow(ctx, cfg, session, chunks, chunkNumber+1, sink)
		if err != nil {
			var sessionErr *perrors.ProviderSessionError
			if errors.As(err, &sessionErr) {
				return err
			}
			c.logger.Warn("window processing failed, skipping", "err", err)
			return nil
		}
		if emitted {
			chunkNumber++
		}
		return nil
	}

	for {
		var item models.QueueItem
		select {
		case item = <-queue:
		case <-ctx.Done():
			sink.Error(ctx.Err())
			return ctx.Err()
		}

		if item.End != nil {
			if len(pending) == 1 {
				if err := emitWindow(pending); err != nil {
					sink.Error(err)
					return err
				}
			}
			if item.End.Err != nil {
				sink.Error(item.End.Err)
				return item.End.Err
			}
			sink.Complete()
			return nil
		}

		pending = append(pending, *item.Chunk)
		if len(pending) < 2 {
			continue
		}

		if err := emitWindow(pending); err != nil {
			sink.Error(err)
			return err
		}
		pending = nil
	}
}

// processWindow concatenates chunks, extracts frames, runs one live-session
// turn, remuxes the returned audio over the original video, fragments the
// result, and hands it to sink. emitted is false (with a nil error) when the
// window produced no audio — a logged skip, not a failure. A
// *perrors.ProviderSessionError is fatal for the whole run; any other error
// is a per-window failure the caller treats as a skip.
func (c *Consumer) processWindow(ctx context.Context, cfg Config, session LiveSession, chunks []models.BaseChunk, chunkNumber int, sink Sink) (emitted bool, err error) {
	payloads := make([][]byte, len(chunks))
	for i, ch := range chunks {
		payloads[i] = ch.Payload
	}
	combined, err := c.Toolkit.Concatenate(ctx, payloads)
	if err != nil {
		c.logger.Warn("concatenate for commentary window failed, using first chunk", "err", err)
	}

	frames, err := c.Toolkit.ExtractFrames(ctx, combined, cfg.FPS)
	if err != nil {
		return false, err
	}

	if err := session.SendTurn(ctx, frames, Prompt); err != nil {
		return false, perrors.NewProviderSessionError("stream", err)
	}

	pcm, err := c.receiveAudio(ctx, session)
	if err != nil {
		return false, perrors.NewProviderSessionError("stream", err)
	}
	if len(pcm) == 0 {
		return false, nil
	}

	remuxed, err := c.Toolkit.RemuxAudioVideo(ctx, combined, pcm, cfg.SampleRate)
	if err != nil {
		return false, err
	}
	fragmented, err := c.Toolkit.FragmentMP4(ctx, remuxed)
	if err != nil {
		return false, err
	}

	totalSeconds, err := c.Toolkit.ProbeDuration(ctx, fragmented)
	if err != nil {
		c.logger.Warn("probing commentary fragment duration failed, falling back to chunk sum", "err", err)
		for _, ch := range chunks {
			totalSeconds += ch.Duration
		}
	}

	sink.Chunk(models.CommentaryChunk{
		Payload:            fragmented,
		ChunkNumber:        chunkNumber,
		SourceURL:          cfg.SourceURL,
		AudioSampleRate:    cfg.SampleRate,
		CommentaryBytes:    len(pcm),
		VideoBytes:         len(combined),
		BaseChunksCombined: len(chunks),
		TotalDurationSecs:  int(totalSeconds),
	})
	return true, nil
}

// receiveAudio accumulates PCM deltas until the provider signals turn
// completion, the soft chunk cap is hit, or perWindowTimeout elapses,
// whichever comes first.
func (c *Consumer) receiveAudio(ctx context.Context, session LiveSession) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, perWindowTimeout)
	defer cancel()

	var pcm []byte
	for i := 0; i < softCapChunks; i++ {
		delta, done, err := session.ReceiveChunk(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return pcm, nil
			}
			return pcm, err
		}
		pcm = append(pcm, delta...)
		if done {
			return pcm, nil
		}
	}
	return pcm, nil
}
