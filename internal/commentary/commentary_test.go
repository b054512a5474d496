package commentary

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shlawgathon/sportsclips/internal/dispatch"
	"github.com/shlawgathon/sportsclips/internal/models"
	"github.com/shlawgathon/sportsclips/internal/perrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	chunks    []models.CommentaryChunk
	completed bool
	err       error
}

func (f *fakeSink) Chunk(c models.CommentaryChunk) { f.chunks = append(f.chunks, c) }
func (f *fakeSink) Complete()                      { f.completed = true }
func (f *fakeSink) Error(err error)                { f.err = err }

// fakeToolkit stands in for *media.Toolkit: no ffmpeg subprocess, just
// call-count tracking and pass-through byte shuffling good enough to drive
// Consumer.Run end to end.
type fakeToolkit struct {
	probeDuration float64
	probeErr      error
	fragmentCalls int
}

func (f *fakeToolkit) Concatenate(_ context.Context, chunks [][]byte) ([]byte, error) {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out, nil
}

func (f *fakeToolkit) ExtractFrames(_ context.Context, _ []byte, _ float64) ([][]byte, error) {
	return [][]byte{[]byte("frame")}, nil
}

func (f *fakeToolkit) RemuxAudioVideo(_ context.Context, videoBytes, pcmBytes []byte, _ int) ([]byte, error) {
	return append(append([]byte{}, videoBytes...), pcmBytes...), nil
}

func (f *fakeToolkit) FragmentMP4(_ context.Context, mp4Bytes []byte) ([]byte, error) {
	f.fragmentCalls++
	return mp4Bytes, nil
}

func (f *fakeToolkit) ProbeDuration(_ context.Context, _ []byte) (float64, error) {
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	return f.probeDuration, nil
}

// fakeLiveSession scripts one PCM response per SendTurn call, delivered as a
// single turn-complete ReceiveChunk; an empty slice models a window that
// produced no audio.
type fakeLiveSession struct {
	turns     [][]byte
	turnIdx   int
	sendErr   error
	recvErr   error
	closed    bool
	sendCalls int
}

func (f *fakeLiveSession) SendTurn(_ context.Context, _ [][]byte, _ string) error {
	f.sendCalls++
	return f.sendErr
}

func (f *fakeLiveSession) ReceiveChunk(_ context.Context) ([]byte, bool, error) {
	if f.recvErr != nil {
		return nil, false, f.recvErr
	}
	idx := f.turnIdx
	f.turnIdx++
	var pcm []byte
	if idx < len(f.turns) {
		pcm = f.turns[idx]
	}
	return pcm, true, nil
}

func (f *fakeLiveSession) Close() error {
	f.closed = true
	return nil
}

type fakeConnector struct {
	session    *fakeLiveSession
	connectErr error
}

func (f *fakeConnector) ConnectLive(_ context.Context, _ string) (LiveSession, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return f.session, nil
}

func baseChunk(seq int) models.BaseChunk {
	return models.BaseChunk{Payload: []byte{byte(seq)}, Sequence: seq, Duration: 2}
}

func ptr[T any](v T) *T { return &v }

func TestDefaults(t *testing.T) {
	assert.Equal(t, 1.0, DefaultFPS)
	assert.Equal(t, 24000, DefaultSampleRate)
}

func TestWindowBounds_MatchSpecEnvelope(t *testing.T) {
	// The receiveAudio loop bounds itself by whichever of these fires
	// first; both must stay within the "~60 chunks, 10s" envelope.
	assert.Equal(t, 60, softCapChunks)
	assert.Equal(t, 10*time.Second, perWindowTimeout)
}

// Scenario 4 (spec.md §8): 5 base chunks + sentinel -> commentary chunks
// with chunk_number 1 (chunks 0+1), 2 (chunks 2+3), 3 (chunk 4 alone, final
// half-window).
func TestConsumer_Scenario4_PairsThenFinalHalfWindow(t *testing.T) {
	session := &fakeLiveSession{turns: [][]byte{[]byte("a"), []byte("b"), []byte("c")}}
	c := &Consumer{LLM: &fakeConnector{session: session}, Toolkit: &fakeToolkit{probeDuration: 4}, logger: slog.Default()}

	queue := make(dispatch.Queue, 10)
	for i := 0; i < 5; i++ {
		queue <- models.QueueItem{Chunk: ptr(baseChunk(i))}
	}
	queue <- models.QueueItem{End: &models.EndSentinel{}}

	sink := &fakeSink{}
	err := c.Run(context.Background(), Config{SourceURL: "u"}, queue, sink)

	require.NoError(t, err)
	assert.True(t, sink.completed)
	require.Len(t, sink.chunks, 3)
	assert.Equal(t, 1, sink.chunks[0].ChunkNumber)
	assert.Equal(t, 2, sink.chunks[0].BaseChunksCombined)
	assert.Equal(t, 2, sink.chunks[1].ChunkNumber)
	assert.Equal(t, 2, sink.chunks[1].BaseChunksCombined)
	assert.Equal(t, 3, sink.chunks[2].ChunkNumber)
	assert.Equal(t, 1, sink.chunks[2].BaseChunksCombined)
	assert.True(t, session.closed)
}

// A window whose turn produces no audio is skipped (no chunk emitted, no
// error, chunk numbering does not advance) rather than treated as a failure.
func TestConsumer_EmptyAudioWindowIsSkipped(t *testing.T) {
	session := &fakeLiveSession{turns: [][]byte{nil, []byte("b")}}
	c := &Consumer{LLM: &fakeConnector{session: session}, Toolkit: &fakeToolkit{}, logger: slog.Default()}

	queue := make(dispatch.Queue, 10)
	for i := 0; i < 4; i++ {
		queue <- models.QueueItem{Chunk: ptr(baseChunk(i))}
	}
	queue <- models.QueueItem{End: &models.EndSentinel{}}

	sink := &fakeSink{}
	err := c.Run(context.Background(), Config{SourceURL: "u"}, queue, sink)

	require.NoError(t, err)
	assert.True(t, sink.completed)
	require.Len(t, sink.chunks, 1)
	assert.Equal(t, 1, sink.chunks[0].ChunkNumber)
}

// A ConnectLive failure is fatal for the whole run: Sink.Error receives a
// *perrors.ProviderSessionError with phase "connect", and Run returns it.
func TestConsumer_ConnectFailureIsFatal(t *testing.T) {
	connectErr := errors.New("connect refused")
	c := &Consumer{LLM: &fakeConnector{connectErr: connectErr}, Toolkit: &fakeToolkit{}, logger: slog.Default()}

	queue := make(dispatch.Queue, 1)
	queue <- models.QueueItem{End: &models.EndSentinel{}}

	sink := &fakeSink{}
	err := c.Run(context.Background(), Config{}, queue, sink)

	var sessionErr *perrors.ProviderSessionError
	require.ErrorAs(t, err, &sessionErr)
	assert.Equal(t, "connect", sessionErr.Phase)
	assert.ErrorAs(t, sink.err, &sessionErr)
	assert.False(t, sink.completed)
}

// A mid-stream session failure (e.g. SendTurn erroring) is also fatal,
// wrapped with phase "stream", and aborts the run rather than being
// swallowed as a per-window skip.
func TestConsumer_StreamFailureIsFatal(t *testing.T) {
	session := &fakeLiveSession{sendErr: errors.New("stream reset")}
	c := &Consumer{LLM: &fakeConnector{session: session}, Toolkit: &fakeToolkit{}, logger: slog.Default()}

	queue := make(dispatch.Queue, 10)
	for i := 0; i < 2; i++ {
		queue <- models.QueueItem{Chunk: ptr(baseChunk(i))}
	}
	queue <- models.QueueItem{End: &models.EndSentinel{}}

	sink := &fakeSink{}
	err := c.Run(context.Background(), Config{}, queue, sink)

	var sessionErr *perrors.ProviderSessionError
	require.ErrorAs(t, err, &sessionErr)
	assert.Equal(t, "stream", sessionErr.Phase)
	assert.True(t, session.closed)
}

func TestProcessWindow_SessionFailureWrapsAsProviderSessionError(t *testing.T) {
	underlying := errors.New("connect refused")
	wrapped := perrors.NewProviderSessionError("connect", underlying)

	var sessionErr *perrors.ProviderSessionError
	assert.ErrorAs(t, wrapped, &sessionErr)
	assert.ErrorIs(t, wrapped, underlying)
	assert.Equal(t, "connect", sessionErr.Phase)
}

func TestFakeSink_RecordsCompleteAndChunks(t *testing.T) {
	sink := &fakeSink{}
	sink.Chunk(models.CommentaryChunk{ChunkNumber: 1})
	sink.Complete()

	assert.True(t, sink.completed)
	assert.Len(t, sink.chunks, 1)
	assert.Equal(t, 1, sink.chunks[0].ChunkNumber)
	assert.NoError(t, sink.err)
}
