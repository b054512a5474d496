package llmchain

import (
	"testing"

	"github.com/shlawgathon/sportsclips/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 1, clamp(-3, 1, 9))
	assert.Equal(t, 9, clamp(30, 1, 9))
	assert.Equal(t, 5, clamp(5, 1, 9))
}

func TestIntArg_FallsBackOnMissingOrWrongType(t *testing.T) {
	assert.Equal(t, 7, intArg(map[string]any{}, "start_segment", 7))
	assert.Equal(t, 3, intArg(map[string]any{"start_segment": 3}, "start_segment", 1))
	assert.Equal(t, 3, intArg(map[string]any{"start_segment": float64(3)}, "start_segment", 1))
	assert.Equal(t, 1, intArg(map[string]any{"start_segment": "three"}, "start_segment", 1))
}

func TestFallbackCaption(t *testing.T) {
	meta := &models.WindowMetadata{WindowStartSeconds: 12, WindowEndSeconds: 48}
	assert.Equal(t, "Highlight at 12s", fallbackTitle(meta))
	assert.Equal(t, "Highlight from 12s to 48s", fallbackDescription(meta))
}

func TestErrUnexpectedCall(t *testing.T) {
	assert.Contains(t, errUnexpectedCall("").Error(), "no function call")
	assert.Contains(t, errUnexpectedCall("wrong_fn").Error(), "wrong_fn")
}
