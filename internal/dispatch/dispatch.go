// Package dispatch implements the Dispatcher: fanning out one BaseChunk
// stream into N independent bounded consumer queues, with backpressure on
// the Ingestor and a guaranteed EndSentinel on every queue.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shlawgathon/sportsclips/internal/models"
)

// QueueCapacity is the bounded FIFO capacity required of every consumer
// queue (spec's Queue<BaseChunk | EndSentinel>).
const QueueCapacity = 20

// Queue is one consumer's bounded channel of QueueItems.
type Queue chan models.QueueItem

// NewQueue allocates a queue at the required capacity.
func NewQueue() Queue {
	return make(Queue, QueueCapacity)
}

// Dispatch duplicates every chunk on in to every queue in queues, pulling
// the next chunk only once all of the previous chunk's enqueues have
// completed (backpressure on the producer). On normal end-of-stream or a
// stream error it enqueues exactly one EndSentinel to every queue.
func Dispatch(ctx context.Context, logger *slog.Logger, in *Stream, queues []Queue) {
	if logger == nil {
		logger = slog.Default()
	}

	for {
		select {
		case chunk, ok := <-in.Chunks:
			if !ok {
				sentinel := models.EndSentinel{Err: in.Err()}
				if sentinel.Err != nil {
					logger.Error("ingest stream ended with error", "err", sentinel.Err)
				}
				broadcastEnd(ctx, queues, sentinel)
				return
			}
			broadcastChunk(ctx, queues, chunk)

		case <-ctx.Done():
			broadcastEnd(ctx, queues, models.EndSentinel{Err: ctx.Err()})
			return
		}
	}
}

// broadcastChunk enqueues chunk to every queue concurrently, returning only
// once every enqueue has completed (or ctx is done) — the point at which the
// next chunk may be pulled from the Ingestor.
func broadcastChunk(ctx context.Context, queues []Queue, chunk models.BaseChunk) {
	item := models.QueueItem{Chunk: &chunk}
	var wg sync.WaitGroup
	wg.Add(len(queues))
	for _, q := range queues {
		go func(q Queue) {
			defer wg.Done()
			select {
			case q <- item:
			case <-ctx.Done():
			}
		}(q)
	}
	wg.Wait()
}

// broadcastEnd enqueues exactly one EndSentinel to every queue, independent
// of ctx so consumers always observe termination even on a canceled run.
func broadcastEnd(ctx context.Context, queues []Queue, sentinel models.EndSentinel) {
	item := models.QueueItem{End: &sentinel}
	var wg sync.WaitGroup
	wg.Add(len(queues))
	for _, q := range queues {
		go func(q Queue) {
			defer wg.Done()
			q <- item
		}(q)
	}
	wg.Wait()
}

// Stream is the subset of ingest.Stream the Dispatcher depends on, kept as a
// local interface-shaped struct so this package doesn't import internal/ingest.
type Stream struct {
	Chunks <-chan models.BaseChunk
	errFn  func() error
}

// NewStream adapts an ingest.Stream-like producer (a chunk channel plus a
// terminal-error accessor) into the type Dispatch consumes.
func NewStream(chunks <-chan models.BaseChunk, errFn func() error) *Stream {
	return &Stream{Chunks: chunks, errFn: errFn}
}

// Err returns the producer's terminal error, valid once Chunks is drained.
func (s *Stream) Err() error {
	if s.errFn == nil {
		return nil
	}
	return s.errFn()
}
