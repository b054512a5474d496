package progress

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shlawgathon/sportsclips/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestUniversalState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    UniversalState
		expected bool
	}{
		{StateIdle, false},
		{StatePreparing, false},
		{StateConnecting, false},
		{StateDownloading, false},
		{StateProcessing, false},
		{StateSaving, false},
		{StateCleanup, false},
		{StateCompleted, true},
		{StateError, true},
		{StateCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.IsTerminal())
		})
	}
}

func TestUniversalState_IsActive(t *testing.T) {
	tests := []struct {
		state    UniversalState
		expected bool
	}{
		{StateIdle, false},
		{StatePreparing, true},
		{StateConnecting, true},
		{StateDownloading, true},
		{StateProcessing, true},
		{StateSaving, true},
		{StateCleanup, true},
		{StateCompleted, false},
		{StateError, false},
		{StateCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.IsActive())
		})
	}
}

func TestUniversalProgress_Clone(t *testing.T) {
	now := time.Now()
	original := &UniversalProgress{
		OperationID:   "op-123",
		OperationType: OpPipelineRun,
		RunID:         models.NewRunID(),
		State:         StateProcessing,
		Progress:      0.5,
		Message:       "Evaluating windows",
		Stages: []StageInfo{
			{ID: "ingest", Name: "Ingest", Progress: 1.0, State: StateCompleted},
			{ID: "highlight", Name: "Highlight", Progress: 0.5, State: StateProcessing},
		},
		CurrentStageIndex: 1,
		StartedAt:         now,
		UpdatedAt:         now,
		Metadata: map[string]any{
			"chunks_ingested": 100,
		},
	}

	clone := original.Clone()

	assert.NotSame(t, original, clone)
	assert.NotSame(t, &original.Stages, &clone.Stages)
	assert.NotSame(t, &original.Metadata, &clone.Metadata)

	assert.Equal(t, original.OperationID, clone.OperationID)
	assert.Equal(t, original.OperationType, clone.OperationType)
	assert.Equal(t, original.RunID, clone.RunID)
	assert.Equal(t, original.State, clone.State)
	assert.Equal(t, original.Progress, clone.Progress)
	assert.Equal(t, original.Message, clone.Message)
	assert.Equal(t, len(original.Stages), len(clone.Stages))
	assert.Equal(t, original.Metadata["chunks_ingested"], clone.Metadata["chunks_ingested"])

	clone.Stages[0].Progress = 0.0
	clone.Metadata["chunks_ingested"] = 200
	assert.Equal(t, 1.0, original.Stages[0].Progress)
	assert.Equal(t, 100, original.Metadata["chunks_ingested"])
}

func TestUniversalProgress_CurrentStage(t *testing.T) {
	t.Run("returns current stage", func(t *testing.T) {
		p := &UniversalProgress{
			Stages: []StageInfo{
				{ID: "ingest", Name: "Ingest"},
				{ID: "highlight", Name: "Highlight"},
			},
			CurrentStageIndex: 1,
		}

		stage := p.CurrentStage()
		assert.NotNil(t, stage)
		assert.Equal(t, "highlight", stage.ID)
	})

	t.Run("returns nil for invalid index", func(t *testing.T) {
		p := &UniversalProgress{
			Stages: []StageInfo{
				{ID: "ingest", Name: "Ingest"},
			},
			CurrentStageIndex: 5,
		}

		stage := p.CurrentStage()
		assert.Nil(t, stage)
	})

	t.Run("returns nil for negative index", func(t *testing.T) {
		p := &UniversalProgress{
			Stages: []StageInfo{
				{ID: "ingest", Name: "Ingest"},
			},
			CurrentStageIndex: -1,
		}

		stage := p.CurrentStage()
		assert.Nil(t, stage)
	})
}

func TestOperationFilter_Matches(t *testing.T) {
	runID := models.NewRunID()
	opType := OpPipelineRun
	state := StateProcessing

	progress := &UniversalProgress{
		OperationType: OpPipelineRun,
		RunID:         runID,
		State:         StateProcessing,
	}

	t.Run("nil filter matches everything", func(t *testing.T) {
		var f *OperationFilter
		assert.True(t, f.Matches(progress))
	})

	t.Run("empty filter matches everything", func(t *testing.T) {
		f := &OperationFilter{}
		assert.True(t, f.Matches(progress))
	})

	t.Run("matches by operation type", func(t *testing.T) {
		f := &OperationFilter{OperationType: &opType}
		assert.True(t, f.Matches(progress))
	})

	t.Run("matches by run ID", func(t *testing.T) {
		f := &OperationFilter{RunID: &runID}
		assert.True(t, f.Matches(progress))

		otherID := models.NewRunID()
		f.RunID = &otherID
		assert.False(t, f.Matches(progress))
	})

	t.Run("matches by state", func(t *testing.T) {
		f := &OperationFilter{State: &state}
		assert.True(t, f.Matches(progress))

		otherState := StateCompleted
		f.State = &otherState
		assert.False(t, f.Matches(progress))
	})

	t.Run("matches active only", func(t *testing.T) {
		f := &OperationFilter{ActiveOnly: true}
		assert.True(t, f.Matches(progress))

		completedProgress := &UniversalProgress{
			State: StateCompleted,
		}
		assert.False(t, f.Matches(completedProgress))
	})

	t.Run("combines multiple filters", func(t *testing.T) {
		f := &OperationFilter{
			OperationType: &opType,
			RunID:         &runID,
			State:         &state,
		}
		assert.True(t, f.Matches(progress))

		otherID := models.NewRunID()
		f.RunID = &otherID
		assert.False(t, f.Matches(progress))
	})
}

func TestErrorDetail_JSONSerialization(t *testing.T) {
	t.Run("serializes all fields", func(t *testing.T) {
		detail := &ErrorDetail{
			Stage:      "ingest",
			Message:    "failed to download source",
			Technical:  "yt-dlp exited with status 1",
			Suggestion: "check the source URL is reachable",
		}

		data, err := json.Marshal(detail)
		assert.NoError(t, err)

		var parsed map[string]string
		err = json.Unmarshal(data, &parsed)
		assert.NoError(t, err)

		assert.Equal(t, "ingest", parsed["stage"])
		assert.Equal(t, "failed to download source", parsed["message"])
		assert.Equal(t, "yt-dlp exited with status 1", parsed["technical"])
		assert.Equal(t, "check the source URL is reachable", parsed["suggestion"])
	})

	t.Run("omits empty optional fields", func(t *testing.T) {
		detail := &ErrorDetail{
			Stage:   "ingest",
			Message: "failed to download source",
		}

		data, err := json.Marshal(detail)
		assert.NoError(t, err)

		var parsed map[string]any
		err = json.Unmarshal(data, &parsed)
		assert.NoError(t, err)

		assert.Equal(t, "ingest", parsed["stage"])
		assert.Equal(t, "failed to download source", parsed["message"])
		_, hasTechnical := parsed["technical"]
		_, hasSuggestion := parsed["suggestion"]
		assert.False(t, hasTechnical, "technical should be omitted when empty")
		assert.False(t, hasSuggestion, "suggestion should be omitted when empty")
	})
}

func TestUniversalProgress_ErrorFields(t *testing.T) {
	t.Run("includes ErrorDetail in JSON", func(t *testing.T) {
		progress := &UniversalProgress{
			OperationID:   "op-123",
			OperationType: OpPipelineRun,
			RunID:         models.NewRunID(),
			State:         StateError,
			Error:         "run failed",
			ErrorDetail: &ErrorDetail{
				Stage:      "ingest",
				Message:    "failed to download source",
				Technical:  "permission denied",
				Suggestion: "check permissions",
			},
			WarningCount: 2,
			Warnings:     []string{"window 4 fell back to heuristic detection", "window 9 fell back to heuristic detection"},
			StartedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}

		data, err := json.Marshal(progress)
		assert.NoError(t, err)

		var parsed map[string]any
		err = json.Unmarshal(data, &parsed)
		assert.NoError(t, err)

		errorDetail, ok := parsed["error_detail"].(map[string]any)
		assert.True(t, ok, "error_detail should be present")
		assert.Equal(t, "ingest", errorDetail["stage"])
		assert.Equal(t, "failed to download source", errorDetail["message"])

		assert.Equal(t, float64(2), parsed["warning_count"])
		warnings, ok := parsed["warnings"].([]any)
		assert.True(t, ok, "warnings should be an array")
		assert.Len(t, warnings, 2)
	})

	t.Run("omits error fields when nil or empty", func(t *testing.T) {
		progress := &UniversalProgress{
			OperationID:   "op-456",
			OperationType: OpPipelineRun,
			RunID:         models.NewRunID(),
			State:         StateCompleted,
			StartedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		}

		data, err := json.Marshal(progress)
		assert.NoError(t, err)

		var parsed map[string]any
		err = json.Unmarshal(data, &parsed)
		assert.NoError(t, err)

		_, hasErrorDetail := parsed["error_detail"]
		_, hasWarningCount := parsed["warning_count"]
		_, hasWarnings := parsed["warnings"]
		assert.False(t, hasErrorDetail, "error_detail should be omitted when nil")
		assert.False(t, hasWarningCount, "warning_count should be omitted when zero")
		assert.False(t, hasWarnings, "warnings should be omitted when empty")
	})

	t.Run("Clone preserves error fields", func(t *testing.T) {
		original := &UniversalProgress{
			OperationID:   "op-789",
			OperationType: OpPipelineRun,
			RunID:         models.NewRunID(),
			State:         StateError,
			ErrorDetail: &ErrorDetail{
				Stage:   "test_stage",
				Message: "Test error",
			},
			WarningCount: 3,
			Warnings:     []string{"Warning 1", "Warning 2", "Warning 3"},
			StartedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}

		clone := original.Clone()

		assert.NotNil(t, clone.ErrorDetail)
		assert.Equal(t, original.ErrorDetail.Stage, clone.ErrorDetail.Stage)
		assert.Equal(t, original.ErrorDetail.Message, clone.ErrorDetail.Message)
		assert.Equal(t, original.WarningCount, clone.WarningCount)
		assert.Equal(t, original.Warnings, clone.Warnings)

		clone.ErrorDetail.Stage = "modified"
		clone.Warnings[0] = "Modified"
		assert.Equal(t, "test_stage", original.ErrorDetail.Stage)
		assert.Equal(t, "Warning 1", original.Warnings[0])
	})
}

func TestStageInfo_Weight(t *testing.T) {
	stages := []StageInfo{
		{ID: "ingest", Weight: 0.1, Progress: 1.0},
		{ID: "highlight", Weight: 0.7, Progress: 0.5},
		{ID: "commentary", Weight: 0.2, Progress: 0.0},
	}

	var totalProgress float64
	for _, s := range stages {
		totalProgress += s.Weight * s.Progress
	}

	assert.InDelta(t, 0.45, totalProgress, 0.001)
}
