// Package highlight implements the Highlight Sliding-Window Consumer: a
// rolling buffer over an ingested chunk stream, driving the detect/trim/
// caption LLM stage chain over overlapping windows and emitting at most one
// HighlightArtifact per identified window.
package highlight

import (
	"context"
	"log/slog"

	"github.com/shlawgathon/sportsclips/internal/dispatch"
	"github.com/shlawgathon/sportsclips/internal/models"
)

// Detector is the detect_highlight stage contract; satisfied by
// *llmchain.DetectStage in production and by a fake in tests that need to
// drive Consumer.Run without a live LLM.
type Detector interface {
	Run(ctx context.Context, window models.Window, meta *models.WindowMetadata) (bool, error)
}

// Trimmer is the trim_highlight stage contract; satisfied by
// *llmchain.TrimStage.
type Trimmer interface {
	Run(ctx context.Context, window models.Window, meta *models.WindowMetadata) ([]byte, error)
}

// Captioner is the caption_highlight stage contract; satisfied by
// *llmchain.CaptionStage.
type Captioner interface {
	Run(ctx context.Context, trimmedBytes []byte, meta *models.WindowMetadata) (title, description string, err error)
}

// DefaultWindowSize is W, the default sliding-window size in chunks.
const DefaultWindowSize = 9

// DefaultStep is S, the default step on a "no highlight" window.
const DefaultStep = 3

// Config configures one consumer run.
type Config struct {
	SourceURL     string
	ChunkDuration float64
	WindowSize    int // W
	Step          int // S, used when a window is not a highlight
}

func (c Config) maxCache() int {
	cache := 3 * c.WindowSize
	if cache < 20 {
		cache = 20
	}
	return cache
}

// Consumer owns the rolling buffer and window state machine for one run.
type Consumer struct {
	Detect  Detector
	Trim    Trimmer
	Caption Captioner
	logger  *slog.Logger
}

// New constructs a Consumer from the three stage implementations.
func New(detect Detector, trim Trimmer, caption Captioner, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{Detect: detect, Trim: trim, Caption: caption, logger: logger.With("component", "highlight")}
}

// ID satisfies progress.Stage.
func (c *Consumer) ID() string { return "highlight" }

// Name satisfies progress.Stage.
func (c *Consumer) Name() string { return "Highlight detection" }

// Sink receives this run's output: an artifact per identified highlight, a
// single terminal Complete, or a single terminal Error — never more than one
// of Complete/Error.
type Sink interface {
	Artifact(models.HighlightArtifact)
	Complete()
	Error(error)
}

// Run drains queue, applying the sliding-window main loop, until an
// EndSentinel arrives or a stage errors uncaught.
func (c *Consumer) Run(ctx context.Context, cfg Config, queue dispatch.Queue, sink Sink) error {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}

	buffer, err := NewRollingBuffer(cfg.maxCache())
	if err != nil {
		sink.Error(err)
		return err
	}
	defer buffer.Close()

	totalReceived := 0
	currentWindowStart := 0
	lastProcessedPosition := -1

	for {
		var item models.QueueItem
		select {
		case item = <-queue:
		case <-ctx.Done():
			sink.Error(ctx.Err())
			return ctx.Err()
		}

		if item.End != nil {
			if item.End.Err != nil {
				sink.Error(item.End.Err)
				return item.End.Err
			}
			sink.Complete()
			return nil
		}

		chunk := *item.Chunk
		if err := buffer.Append(chunk); err != nil {
			sink.Error(err)
			return err
		}
		totalReceived++
		if cfg.ChunkDuration <= 0 {
			cfg.ChunkDuration = chunk.Duration
		}

		if totalReceived < cfg.WindowSize {
			continue
		}

		if oldest := buffer.OldestIndex(); currentWindowStart < oldest {
			currentWindowStart = oldest
		}
		if currentWindowStart+cfg.WindowSize > totalReceived {
			continue
		}
		if currentWindowStart <= lastProcessedPosition {
			continue
		}

		window, ok, err := buffer.Window(currentWindowStart, cfg.WindowSize)
		if err != nil {
			sink.Error(err)
			return err
		}
		if !ok {
			continue
		}

		meta := &models.WindowMetadata{
			SourceURL:          cfg.SourceURL,
			WindowStartChunk:   currentWindowStart,
			WindowEndChunk:     currentWindowStart + cfg.WindowSize - 1,
			WindowStartSeconds: float64(currentWindowStart) * cfg.ChunkDuration,
			WindowEndSeconds:   float64(currentWindowStart+cfg.WindowSize) * cfg.ChunkDuration,
			ChunkDuration:      cfg.ChunkDuration,
		}

		isHighlight, err := c.Detect.Run(ctx, window, meta)
		if err != nil {
			sink.Error(err)
			return err
		}

		if !isHighlight {
			lastProcessedPosition = currentWindowStart
			currentWindowStart += cfg.Step
			continue
		}

		trimmed, err := c.Trim.Run(ctx, window, meta)
		if err != nil {
			sink.Error(err)
			return err
		}
		title, description, err := c.Caption.Run(ctx, trimmed, meta)
		if err != nil {
			sink.Error(err)
			return err
		}

		sink.Artifact(models.HighlightArtifact{
			Payload:     trimmed,
			Title:       title,
			Description: description,
			SourceURL:   cfg.SourceURL,
		})

		lastProcessedPosition = currentWindowStart
		currentWindowStart += cfg.WindowSize // full-window jump: no overlapping highlights
	}
}
