package llmchain

import (
	"context"
	"log/slog"
	"os"

	"github.com/shlawgathon/sportsclips/internal/genai"
	"github.com/shlawgathon/sportsclips/internal/media"
	"github.com/shlawgathon/sportsclips/internal/models"
	"github.com/shlawgathon/sportsclips/internal/scratch"
)

// TrimStage asks the provider which segments of a flagged window contain
// the actual highlight action, then concatenates just that sub-range.
type TrimStage struct {
	LLM        *genai.Client
	Toolkit    *media.Toolkit
	Debug      bool // when true, also write the full rendered window to scope; removed with the scope when Run returns
	MaxRetries int
	logger     *slog.Logger
}

// NewTrimStage constructs a TrimStage. maxRetries <= 0 uses defaultStageRetries.
func NewTrimStage(llm *genai.Client, toolkit *media.Toolkit, debug bool, maxRetries int, logger *slog.Logger) *TrimStage {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries <= 0 {
		maxRetries = defaultStageRetries
	}
	return &TrimStage{LLM: llm, Toolkit: toolkit, Debug: debug, MaxRetries: maxRetries, logger: logger.With("stage", "trim_highlight")}
}

// Run trims window to its highlight sub-range. On any fallback path it
// returns the full concatenated window and sets meta.TrimMethod = "fallback".
func (s *TrimStage) Run(ctx context.Context, window models.Window, meta *models.WindowMetadata) ([]byte, error) {
	scope, err := scratch.NewRoot("trim")
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	w := window.Size()
	payloads := make([][]byte, w)
	for i, c := range window.Chunks {
		payloads[i] = c.Payload
	}
	full, err := s.Toolkit.Concatenate(ctx, payloads)
	if err != nil {
		s.logger.Warn("concatenate for trim failed, using first chunk", "err", err)
	}

	if s.Debug {
		if debugPath := scope.Path("debug-full-window.mp4"); full != nil {
			if werr := os.WriteFile(debugPath, full, 0o640); werr != nil {
				s.logger.Warn("writing debug window copy failed", "err", werr)
			}
		}
	}

	prompt := trimPrompt(meta.DetectReason, meta.Confidence)

	for attempt := 1; attempt <= s.MaxRetries; attempt++ {
		call, err := s.LLM.GenerateFromVideo(ctx, full, prompt, trimSegmentsFn)
		if err != nil {
			continue
		}
		if call.Name != "report_trim_segments" {
			continue
		}

		start := intArg(call.Args, "start_segment", 1)
		end := intArg(call.Args, "end_segment", w)
		reasoning, _ := call.Args["reasoning"].(string)

		if start > end {
			start, end = end, start
		}
		start = clamp(start, 1, w)
		end = clamp(end, 1, w)

		selected := payloads[start-1 : end]
		trimmed, err := s.Toolkit.Concatenate(ctx, selected)
		if err != nil {
			s.logger.Warn("concatenate for trimmed range failed, using full window", "err", err)
			trimmed = full
		}

		meta.TrimStartSegment = start
		meta.TrimEndSegment = end
		meta.TrimReasoning = reasoning
		meta.TrimMethod = "llm"
		return trimmed, nil
	}

	meta.TrimStartSegment = 1
	meta.TrimEndSegment = w
	meta.TrimMethod = "fallback"
	meta.Annotate("fallback", "", s.MaxRetries)
	return full, nil
}

func intArg(args map[string]any, key string, fallback int) int {
	v, ok := args[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
