package llmchain

import (
	"context"
	"log/slog"

	"github.com/shlawgathon/sportsclips/internal/genai"
	"github.com/shlawgathon/sportsclips/internal/media"
	"github.com/shlawgathon/sportsclips/internal/models"
	"github.com/shlawgathon/sportsclips/internal/scratch"
)

// defaultStageRetries is the retry budget for a malformed or missing
// function call, used when a stage is constructed with maxRetries <= 0.
// All three stages share this default, overridable from config.Window.StageRetries.
const defaultStageRetries = 3

// DetectStage renders a window to one MP4 and asks the provider whether it
// contains highlight-worthy action.
type DetectStage struct {
	LLM        *genai.Client
	Toolkit    *media.Toolkit
	MaxRetries int
	logger     *slog.Logger
}

// NewDetectStage constructs a DetectStage. maxRetries <= 0 uses defaultStageRetries.
func NewDetectStage(llm *genai.Client, toolkit *media.Toolkit, maxRetries int, logger *slog.Logger) *DetectStage {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries <= 0 {
		maxRetries = defaultStageRetries
	}
	return &DetectStage{LLM: llm, Toolkit: toolkit, MaxRetries: maxRetries, logger: logger.With("stage", "detect_highlight")}
}

// Run concatenates the window, submits it for detection, and returns the
// verdict. On exhausted retries it returns false (prefer false negatives
// over false positives) and annotates meta.DetectMethod = "error".
func (s *DetectStage) Run(ctx context.Context, window models.Window, meta *models.WindowMetadata) (bool, error) {
	scope, err := scratch.NewRoot("detect")
	if err != nil {
		return false, err
	}
	defer scope.Close()

	payloads := make([][]byte, len(window.Chunks))
	for i, c := range window.Chunks {
		payloads[i] = c.Payload
	}
	rendered, err := s.Toolkit.Concatenate(ctx, payloads)
	if err != nil {
		s.logger.Warn("concatenate for detect failed, using first chunk", "err", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.MaxRetries; attempt++ {
		call, err := s.LLM.GenerateFromVideo(ctx, rendered, detectHighlightPrompt, detectHighlightFn)
		if err != nil {
			lastErr = err
			continue
		}
		if call.Name != "report_highlight_detection" {
			lastErr = errUnexpectedCall(call.Name)
			continue
		}
		isHighlight, _ := call.Args["is_highlight"].(bool)
		confidence, _ := call.Args["confidence"].(string)
		reason, _ := call.Args["reason"].(string)

		meta.IsHighlight = isHighlight
		meta.Confidence = confidence
		meta.DetectReason = reason
		meta.DetectMethod = "llm"
		return isHighlight, nil
	}

	meta.IsHighlight = false
	meta.DetectMethod = "error"
	if lastErr != nil {
		meta.Annotate("error_fallback", lastErr.Error(), s.MaxRetries)
	}
	return false, nil
}
