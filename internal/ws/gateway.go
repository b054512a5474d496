// Package ws implements the client channel of spec §6: one WebSocket
// connection per source URL, carrying an ordered interleaving of snippet
// and live-commentary-chunk messages, terminated by exactly one
// snippet_complete or error message.
package ws

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shlawgathon/sportsclips/internal/commentary"
	"github.com/shlawgathon/sportsclips/internal/highlight"
	"github.com/shlawgathon/sportsclips/internal/ingest"
	"github.com/shlawgathon/sportsclips/internal/models"
	"github.com/shlawgathon/sportsclips/internal/pipeline"
	"github.com/shlawgathon/sportsclips/internal/service/progress"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4 << 20, // snippets carry whole MP4s; keep the write buffer generous
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Defaults bundles the per-run configuration every connection starts from;
// only SourceURL/Live/EnableCommentary vary by connection.
type Defaults struct {
	Ingest           ingest.Config
	Window           highlight.Config
	Commentary       commentary.Config
	EnableCommentary bool
	Debug            bool
	StageRetries     int
}

// Gateway upgrades incoming HTTP requests to WebSocket connections and
// drives one pipeline.Run per connection.
type Gateway struct {
	Deps     pipeline.Deps
	Defaults Defaults
	logger   *slog.Logger

	// Progress, when set, gets a started operation per run so the
	// /api/v1/progress/events SSE endpoint can mirror this connection's
	// activity. Nil disables the debugging surface entirely; the WS
	// message stream never depends on it.
	Progress *progress.Service

	active atomic.Int64
}

// New constructs a Gateway.
func New(deps pipeline.Deps, defaults Defaults, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{Deps: deps, Defaults: defaults, logger: logger.With("component", "ws")}
}

// WithProgress attaches the progress service used to mirror each run's
// activity on the debugging SSE surface.
func (g *Gateway) WithProgress(svc *progress.Service) *Gateway {
	g.Progress = svc
	return g
}

// ActiveRuns reports the number of connections currently driving a
// pipeline.Run, satisfying handlers.RunCounter for the health endpoint.
func (g *Gateway) ActiveRuns() int {
	return int(g.active.Load())
}

// ServeHTTP upgrades the connection, reads video_url/is_live from the query
// string, starts a run, and streams its messages until completion, error,
// or client disconnect.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	videoURL := r.URL.Query().Get("video_url")
	if videoURL == "" {
		http.Error(w, "missing video_url", http.StatusBadRequest)
		return
	}
	isLive, _ := strconv.ParseBool(r.URL.Query().Get("is_live"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cfg := pipeline.Config{
		SourceURL:        videoURL,
		Ingest:           g.Defaults.Ingest,
		Window:           g.Defaults.Window,
		Commentary:       g.Defaults.Commentary,
		EnableCommentary: g.Defaults.EnableCommentary,
		Debug:            g.Defaults.Debug,
		StageRetries:     g.Defaults.StageRetries,
	}
	cfg.Ingest.Live = isLive

	var op *progress.OperationManager
	if g.Progress != nil {
		stages := []progress.Stage{&stageHandle{id: "highlight", name: "Highlight detection"}}
		if g.Defaults.EnableCommentary {
			stages = append(stages, &stageHandle{id: "commentary", name: "Live commentary"})
		}
		runID := models.NewRunID()
		if started, startErr := progress.StartPipelineOperation(g.Progress, runID, videoURL, stages); startErr == nil {
			op = started
			op.SetState(progress.StateProcessing)
			cfg.Reporter = op
		} else {
			g.logger.Warn("starting progress operation failed", "err", startErr)
		}
	}

	handle, err := pipeline.Run(ctx, g.Deps, cfg)
	if err != nil {
		if op != nil {
			op.Fail(err)
		}
		g.writeError(conn, videoURL, err)
		return
	}
	g.active.Add(1)
	defer g.active.Add(-1)

	// Drain client frames (pings, pongs, close) without blocking; any read
	// error (including a normal close) cancels the run.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for msg := range handle.Messages {
		if op != nil {
			switch {
			case msg.Complete:
				op.Complete("run complete")
			case msg.Err != nil && !errors.Is(msg.Err, context.Canceled):
				op.Fail(msg.Err)
			}
		}
		if err := g.forward(conn, videoURL, msg); err != nil {
			g.logger.Warn("writing websocket message failed", "err", err)
			cancel()
			return
		}
	}
}

// stageHandle is the minimal progress.Stage implementation for a run's two
// fixed consumer stages, known before either consumer is constructed.
type stageHandle struct {
	id, name string
}

func (s *stageHandle) ID() string   { return s.id }
func (s *stageHandle) Name() string { return s.name }

func (g *Gateway) forward(conn *websocket.Conn, videoURL string, msg pipeline.Message) error {
	switch {
	case msg.Snippet != nil:
		return writeJSON(conn, snippetEnvelope(videoURL, msg.Snippet))
	case msg.Commentary != nil:
		return writeJSON(conn, commentaryEnvelope(videoURL, msg.Commentary))
	case msg.Complete:
		return writeJSON(conn, completeEnvelope(videoURL))
	case msg.Err != nil:
		if errors.Is(msg.Err, context.Canceled) {
			return nil // client disconnect, not a failure worth reporting
		}
		return writeJSON(conn, errorEnvelope(videoURL, msg.Err))
	default:
		return nil
	}
}

func (g *Gateway) writeError(conn *websocket.Conn, videoURL string, err error) {
	if werr := writeJSON(conn, errorEnvelope(videoURL, err)); werr != nil {
		g.logger.Warn("writing websocket error message failed", "err", werr)
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(v)
}

// --- message envelopes, per spec §6 ---

type envelope struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Meta    any    `json:"metadata,omitempty"`
}

type snippetMetadata struct {
	SourceURL   string `json:"src_video_url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type snippetData struct {
	VideoData string          `json:"video_data"`
	Metadata  snippetMetadata `json:"metadata"`
}

func snippetEnvelope(videoURL string, artifact *models.HighlightArtifact) envelope {
	return envelope{
		Type: "snippet",
		Data: snippetData{
			VideoData: base64.StdEncoding.EncodeToString(artifact.Payload),
			Metadata: snippetMetadata{
				SourceURL:   videoURL,
				Title:       artifact.Title,
				Description: artifact.Description,
			},
		},
	}
}

type commentaryMetadata struct {
	SourceURL          string `json:"src_video_url"`
	ChunkNumber        int    `json:"chunk_number"`
	Format             string `json:"format"`
	AudioSampleRate    int    `json:"audio_sample_rate"`
	CommentaryBytes    int    `json:"commentary_length_bytes"`
	VideoBytes         int    `json:"video_length_bytes"`
	BaseChunksCombined int    `json:"base_chunks_combined"`
	TotalDurationSecs  int    `json:"total_duration_seconds"`
}

type commentaryData struct {
	VideoData string             `json:"video_data"`
	Metadata  commentaryMetadata `json:"metadata"`
}

func commentaryEnvelope(videoURL string, chunk *models.CommentaryChunk) envelope {
	return envelope{
		Type: "live_commentary_chunk",
		Data: commentaryData{
			VideoData: base64.StdEncoding.EncodeToString(chunk.Payload),
			Metadata: commentaryMetadata{
				SourceURL:          videoURL,
				ChunkNumber:        chunk.ChunkNumber,
				Format:             "fragmented_mp4",
				AudioSampleRate:    chunk.AudioSampleRate,
				CommentaryBytes:    chunk.CommentaryBytes,
				VideoBytes:         chunk.VideoBytes,
				BaseChunksCombined: chunk.BaseChunksCombined,
				TotalDurationSecs:  chunk.TotalDurationSecs,
			},
		},
	}
}

type completeMetadata struct {
	SourceURL string `json:"src_video_url"`
}

func completeEnvelope(videoURL string) envelope {
	return envelope{Type: "snippet_complete", Meta: completeMetadata{SourceURL: videoURL}}
}

func errorEnvelope(videoURL string, err error) envelope {
	return envelope{Type: "error", Message: err.Error(), Meta: completeMetadata{SourceURL: videoURL}}
}
