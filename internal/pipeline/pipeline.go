// Package pipeline supervises one URL's run under the caller's context (the
// Ingestor owns the run's scratch directory): it wires the Ingestor's chunk stream through the
// Dispatcher to the Highlight Consumer and, optionally, the Live Commentary
// Consumer, and merges their output into one ordered message stream for the
// gateway to forward to its client.
package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shlawgathon/sportsclips/internal/commentary"
	"github.com/shlawgathon/sportsclips/internal/dispatch"
	"github.com/shlawgathon/sportsclips/internal/genai"
	"github.com/shlawgathon/sportsclips/internal/highlight"
	"github.com/shlawgathon/sportsclips/internal/ingest"
	"github.com/shlawgathon/sportsclips/internal/llmchain"
	"github.com/shlawgathon/sportsclips/internal/media"
	"github.com/shlawgathon/sportsclips/internal/models"
	"github.com/shlawgathon/sportsclips/internal/service/progress"
)

// Config configures one run end to end.
type Config struct {
	SourceURL  string
	Ingest     ingest.Config
	Window     highlight.Config
	Commentary commentary.Config

	// EnableCommentary spawns the Live Commentary Consumer alongside the
	// Highlight Consumer. When false only one dispatch queue is created.
	EnableCommentary bool

	// Debug makes the Trim stage also write the full rendered window as
	// debug-full-window.mp4 into its own scratch scope. That scope is removed
	// when the stage returns, and the copy is never sent to the client.
	Debug bool

	// StageRetries bounds retry attempts on a malformed or missing LLM
	// function call in each of the detect/trim/caption stages. Zero uses
	// llmchain's built-in default.
	StageRetries int

	// Reporter, when set, receives per-item progress events as the run's
	// consumers emit artifacts and commentary chunks. Nil disables
	// reporting entirely; a run never depends on it to make progress.
	Reporter progress.RunReporter
}

// Deps are the shared, process-lifetime collaborators every run is built
// from; none of them carry per-run state.
type Deps struct {
	Ingestor *ingest.Ingestor
	Toolkit  *media.Toolkit
	LLM      *genai.Client
	Logger   *slog.Logger
}

// Message is the tagged union of everything a run can emit: exactly one of
// Snippet, Commentary, or Err is set on a data/error message; Complete is
// set alone on the terminal success message. The gateway maps these 1:1
// onto the four client-facing WebSocket message kinds.
type Message struct {
	Snippet    *models.HighlightArtifact
	Commentary *models.CommentaryChunk
	Complete   bool
	Err        error

	// Source names which consumer produced this message ("highlight" or
	// "commentary"), so a per-consumer error doesn't get misattributed.
	Source string
}

// Handle is a running pipeline. Messages closes once every spawned consumer
// has returned; Wait blocks until then.
type Handle struct {
	Messages <-chan Message

	wg   sync.WaitGroup
	done chan struct{}
}

// Wait blocks until every consumer goroutine has exited.
func (h *Handle) Wait() {
	<-h.done
}

// Run starts ingestion and spawns the Highlight Consumer plus, if
// cfg.EnableCommentary, the Live Commentary Consumer, fanned out from one
// Dispatcher. It returns immediately; consumers run in background
// goroutines until ctx is cancelled or the stream ends.
func Run(ctx context.Context, deps Deps, cfg Config) (*Handle, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("source_url", cfg.SourceURL)

	stream, err := deps.Ingestor.Ingest(ctx, cfg.SourceURL, cfg.Ingest)
	if err != nil {
		return nil, err
	}
	dispatchStream := dispatch.NewStream(stream.Chunks, stream.Err)
	cfg.Window.SourceURL = cfg.SourceURL

	highlightQueue := dispatch.NewQueue()
	queues := []dispatch.Queue{highlightQueue}

	var commentaryQueue dispatch.Queue
	if cfg.EnableCommentary {
		commentaryQueue = dispatch.NewQueue()
		queues = append(queues, commentaryQueue)
	}

	go dispatch.Dispatch(ctx, logger, dispatchStream, queues)

	messages := make(chan Message, dispatch.QueueCapacity)
	handle := &Handle{Messages: messages, done: make(chan struct{})}

	detect := llmchain.NewDetectStage(deps.LLM, deps.Toolkit, cfg.StageRetries, logger)
	trim := llmchain.NewTrimStage(deps.LLM, deps.Toolkit, cfg.Debug, cfg.StageRetries, logger)
	caption := llmchain.NewCaptionStage(deps.LLM, cfg.StageRetries, logger)
	highlightConsumer := highlight.New(detect, trim, caption, logger)

	handle.wg.Add(1)
	go func() {
		defer handle.wg.Done()
		sink := &highlightSink{messages: messages, ctx: ctx, reporter: cfg.Reporter}
		if runErr := highlightConsumer.Run(ctx, cfg.Window, highlightQueue, sink); runErr != nil {
			logger.Warn("highlight consumer exited with error", "err", runErr)
		}
	}()

	if cfg.EnableCommentary {
		commentaryConsumer := commentary.New(deps.LLM, deps.Toolkit, logger)
		cfg.Commentary.SourceURL = cfg.SourceURL

		handle.wg.Add(1)
		go func() {
			defer handle.wg.Done()
			sink := &commentarySink{messages: messages, ctx: ctx, reporter: cfg.Reporter}
			if runErr := commentaryConsumer.Run(ctx, cfg.Commentary, commentaryQueue, sink); runErr != nil {
				logger.Warn("commentary consumer exited with error", "err", runErr)
			}
		}()
	}

	go func() {
		handle.wg.Wait()
		close(messages)
		close(handle.done)
	}()

	return handle, nil
}

// highlightSink adapts highlight.Sink onto the run's merged Message channel,
// additionally reporting each emitted artifact to reporter when set.
type highlightSink struct {
	messages chan<- Message
	ctx      context.Context
	reporter progress.RunReporter
	count    int
}

func (s *highlightSink) Artifact(a models.HighlightArtifact) {
	s.count++
	if s.reporter != nil {
		s.reporter.ReportItemProgress(s.ctx, "highlight", s.count, 0, a.Title)
	}
	s.messages <- Message{Snippet: &a, Source: "highlight"}
}

func (s *highlightSink) Complete() {
	s.messages <- Message{Complete: true, Source: "highlight"}
}

func (s *highlightSink) Error(err error) {
	s.messages <- Message{Err: err, Source: "highlight"}
}

// commentarySink adapts commentary.Sink onto the run's merged Message
// channel. Its own Complete is intentionally NOT surfaced as the run's
// terminal snippet_complete — only the Highlight Consumer's completion maps
// to that, per spec.
type commentarySink struct {
	messages chan<- Message
	ctx      context.Context
	reporter progress.RunReporter
}

func (s *commentarySink) Chunk(c models.CommentaryChunk) {
	if s.reporter != nil {
		s.reporter.ReportItemProgress(s.ctx, "commentary", c.ChunkNumber, 0, "")
	}
	s.messages <- Message{Commentary: &c, Source: "commentary"}
}

func (s *commentarySink) Complete() {}

func (s *commentarySink) Error(err error) {
	s.messages <- Message{Err: err, Source: "commentary"}
}
