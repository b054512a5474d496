package models

// BaseChunk is one complete, independently-decodable MP4 segment produced by
// the Ingestor. Sequence is 0-based and strictly monotonic within one URL run.
type BaseChunk struct {
	Payload  []byte
	Sequence int
	Duration float64 // seconds, equal across all chunks from one run
}

// EndSentinel marks end-of-stream on a consumer queue. Exactly one is
// delivered to every registered queue, whether the stream ended normally or
// the Ingestor failed.
type EndSentinel struct {
	// Err is nil on a normal end-of-stream, or the IngestError that caused
	// an early termination.
	Err error
}

// QueueItem is either a *BaseChunk or an *EndSentinel, delivered through a
// Dispatcher-owned channel. Exactly one of Chunk/End is non-nil.
type QueueItem struct {
	Chunk *BaseChunk
	End   *EndSentinel
}

// Window is a contiguous, ordered slice of W BaseChunks.
type Window struct {
	StartIndex int // absolute sequence index of the first chunk
	Chunks     []BaseChunk
}

// Size returns the number of chunks in the window (= W when full).
func (w Window) Size() int {
	return len(w.Chunks)
}

// EndIndex returns the absolute sequence index one past the last chunk.
func (w Window) EndIndex() int {
	return w.StartIndex + len(w.Chunks)
}

// Duration returns the window's nominal duration in seconds, given the
// chunks' (uniform) duration.
func (w Window) Duration() float64 {
	var total float64
	for _, c := range w.Chunks {
		total += c.Duration
	}
	return total
}

// WindowMetadata is a mutable key/value bag carried alongside a Window
// through the LLM stage chain. Required keys are modeled as fields; stage
// annotations use the Extra map to stay forward-compatible without widening
// this struct for every stage's diagnostic needs.
type WindowMetadata struct {
	SourceURL          string
	WindowStartChunk   int
	WindowEndChunk     int
	WindowStartSeconds float64
	WindowEndSeconds   float64
	ChunkDuration      float64

	// Detect stage
	IsHighlight      bool
	Confidence       string
	DetectReason     string
	DetectMethod     string // "llm" | "error"

	// Trim stage
	TrimStartSegment int
	TrimEndSegment   int
	TrimReasoning    string
	TrimMethod       string // "llm" | "fallback"

	// Caption stage
	CaptionMethod string // "llm" | "fallback"

	// Diagnostic, set by any stage's fallback path.
	Extra map[string]string
}

// Annotate records a stage fallback diagnostic (method="error_fallback",
// error=<message>, attempts=<n>) without disturbing the required fields.
func (m *WindowMetadata) Annotate(method, errMsg string, attempts int) {
	if m.Extra == nil {
		m.Extra = make(map[string]string, 3)
	}
	m.Extra["method"] = method
	if errMsg != "" {
		m.Extra["error"] = errMsg
	}
	if attempts > 0 {
		m.Extra["attempts"] = itoa(attempts)
	}
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

// HighlightArtifact is the trimmed, captioned MP4 emitted for one detected
// highlight window. Emitted at most once per window.
type HighlightArtifact struct {
	Payload     []byte
	Title       string
	Description string
	SourceURL   string
}

// CommentaryChunk is a fragmented MP4 combining two consecutive base chunks
// of video with newly-synthesized commentary audio. ChunkNumber is 1-based
// and strictly monotonic within one URL run.
type CommentaryChunk struct {
	Payload            []byte
	ChunkNumber        int
	SourceURL          string
	AudioSampleRate    int
	CommentaryBytes    int
	VideoBytes         int
	BaseChunksCombined int
	TotalDurationSecs  int
}
