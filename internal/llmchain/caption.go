package llmchain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shlawgathon/sportsclips/internal/genai"
	"github.com/shlawgathon/sportsclips/internal/models"
	"github.com/shlawgathon/sportsclips/internal/scratch"
)

// CaptionStage asks the provider for a title and description for a trimmed
// highlight clip, retrying while either field comes back empty.
type CaptionStage struct {
	LLM        *genai.Client
	MaxRetries int
	logger     *slog.Logger
}

// NewCaptionStage constructs a CaptionStage. maxRetries <= 0 uses defaultStageRetries.
func NewCaptionStage(llm *genai.Client, maxRetries int, logger *slog.Logger) *CaptionStage {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries <= 0 {
		maxRetries = defaultStageRetries
	}
	return &CaptionStage{LLM: llm, MaxRetries: maxRetries, logger: logger.With("stage", "caption_highlight")}
}

// Run generates (title, description) for trimmedBytes. Success requires
// both fields non-empty; after MaxRetries attempts it falls back to a
// deterministic caption derived from the window's timing.
func (s *CaptionStage) Run(ctx context.Context, trimmedBytes []byte, meta *models.WindowMetadata) (title, description string, err error) {
	scope, err := scratch.NewRoot("caption")
	if err != nil {
		return "", "", err
	}
	defer scope.Close()

	var lastErr error
	for attempt := 1; attempt <= s.MaxRetries; attempt++ {
		call, err := s.LLM.GenerateFromVideo(ctx, trimmedBytes, captionHighlightPrompt, highlightCaptionFn)
		if err != nil {
			lastErr = err
			continue
		}
		if call.Name != "report_highlight_caption" {
			lastErr = errUnexpectedCall(call.Name)
			continue
		}

		title, _ = call.Args["title"].(string)
		description, _ = call.Args["description"].(string)
		if title == "" || description == "" {
			lastErr = fmt.Errorf("llmchain: caption missing title or description")
			continue
		}

		meta.CaptionMethod = "llm"
		return title, description, nil
	}

	meta.CaptionMethod = "fallback"
	if lastErr != nil {
		meta.Annotate("fallback", lastErr.Error(), s.MaxRetries)
	}
	return fallbackTitle(meta), fallbackDescription(meta), nil
}

func fallbackTitle(meta *models.WindowMetadata) string {
	return fmt.Sprintf("Highlight at %gs", meta.WindowStartSeconds)
}

func fallbackDescription(meta *models.WindowMetadata) string {
	return fmt.Sprintf("Highlight from %gs to %gs", meta.WindowStartSeconds, meta.WindowEndSeconds)
}
