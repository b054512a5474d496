package progress_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shlawgathon/sportsclips/internal/models"
	"github.com/shlawgathon/sportsclips/internal/service/progress"
)

// mockStage implements progress.Stage for testing.
type mockStage struct {
	id   string
	name string
}

func (s *mockStage) ID() string   { return s.id }
func (s *mockStage) Name() string { return s.name }

func newTestProgressService() *progress.Service {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return progress.NewService(logger)
}

func TestOperationManager_ReportProgress(t *testing.T) {
	t.Run("updates stage progress", func(t *testing.T) {
		svc := newTestProgressService()
		runID := models.NewRunID()

		stages := []progress.Stage{
			&mockStage{id: "ingest", name: "Ingest"},
			&mockStage{id: "highlight", name: "Highlight"},
			&mockStage{id: "commentary", name: "Commentary"},
		}

		mgr, err := progress.StartPipelineOperation(svc, runID, "https://example.com/match.mp4", stages)
		require.NoError(t, err)

		// Use OperationManager directly as a RunReporter
		var reporter progress.RunReporter = mgr

		reporter.ReportProgress(context.Background(), "ingest", 0.5, "Halfway")

		op, err := svc.GetOperation(mgr.OperationID())
		require.NoError(t, err)
		ingestStage := op.Stages[0]
		assert.Equal(t, 0.5, ingestStage.Progress)
		assert.Equal(t, "Halfway", ingestStage.Message)
	})

	t.Run("handles unknown stage IDs gracefully", func(t *testing.T) {
		svc := newTestProgressService()
		runID := models.NewRunID()

		stages := []progress.Stage{
			&mockStage{id: "ingest", name: "Ingest"},
		}

		mgr, err := progress.StartPipelineOperation(svc, runID, "https://example.com/match.mp4", stages)
		require.NoError(t, err)

		mgr.ReportProgress(context.Background(), "unknown", 0.5, "Test")

		op, err := svc.GetOperation(mgr.OperationID())
		require.NoError(t, err)
		assert.NotNil(t, op)
	})
}

func TestOperationManager_ReportItemProgress(t *testing.T) {
	t.Run("calculates progress from item counts", func(t *testing.T) {
		svc := newTestProgressService()
		runID := models.NewRunID()

		stages := []progress.Stage{
			&mockStage{id: "ingest", name: "Ingest"},
		}

		mgr, err := progress.StartPipelineOperation(svc, runID, "https://example.com/match.mp4", stages)
		require.NoError(t, err)

		// 25 of 100 base chunks ingested
		mgr.ReportItemProgress(context.Background(), "ingest", 25, 100, "chunk")

		op, err := svc.GetOperation(mgr.OperationID())
		require.NoError(t, err)
		ingestStage := op.Stages[0]
		assert.InDelta(t, 0.25, ingestStage.Progress, 0.01)
		assert.Equal(t, 25, ingestStage.Current)
		assert.Equal(t, 100, ingestStage.Total)
	})

	t.Run("handles zero total gracefully", func(t *testing.T) {
		svc := newTestProgressService()
		runID := models.NewRunID()

		stages := []progress.Stage{
			&mockStage{id: "ingest", name: "Ingest"},
		}

		mgr, err := progress.StartPipelineOperation(svc, runID, "https://example.com/match.mp4", stages)
		require.NoError(t, err)

		mgr.ReportItemProgress(context.Background(), "ingest", 0, 0, "chunk")

		op, err := svc.GetOperation(mgr.OperationID())
		require.NoError(t, err)
		assert.NotNil(t, op)
	})
}

func TestCreateStagesFromPipeline(t *testing.T) {
	t.Run("creates stage infos with equal weights", func(t *testing.T) {
		stages := []progress.Stage{
			&mockStage{id: "ingest", name: "Ingest"},
			&mockStage{id: "dispatch", name: "Dispatch"},
			&mockStage{id: "highlight", name: "Highlight"},
			&mockStage{id: "commentary", name: "Commentary"},
		}

		infos := progress.CreateStagesFromPipeline(stages)

		assert.Len(t, infos, 4)
		for i, info := range infos {
			assert.Equal(t, stages[i].ID(), info.ID)
			assert.Equal(t, stages[i].Name(), info.Name)
			assert.InDelta(t, 0.25, info.Weight, 0.001)
		}
	})
}

func TestStartPipelineOperation(t *testing.T) {
	t.Run("creates an operation of type pipeline_run", func(t *testing.T) {
		svc := newTestProgressService()
		runID := models.NewRunID()

		stages := []progress.Stage{
			&mockStage{id: "ingest", name: "Ingest"},
		}

		mgr, err := progress.StartPipelineOperation(svc, runID, "https://example.com/match.mp4", stages)
		require.NoError(t, err)
		require.NotNil(t, mgr)

		op, err := svc.GetOperation(mgr.OperationID())
		require.NoError(t, err)
		assert.Equal(t, progress.OpPipelineRun, op.OperationType)
		assert.Equal(t, runID, op.RunID)
		assert.Equal(t, "https://example.com/match.mp4", op.SourceURL)
	})

	t.Run("returns error for duplicate operation on the same run", func(t *testing.T) {
		svc := newTestProgressService()
		runID := models.NewRunID()

		stages := []progress.Stage{
			&mockStage{id: "ingest", name: "Ingest"},
		}

		mgr1, err := progress.StartPipelineOperation(svc, runID, "https://example.com/match.mp4", stages)
		require.NoError(t, err)
		require.NotNil(t, mgr1)

		mgr2, err := progress.StartPipelineOperation(svc, runID, "https://example.com/match.mp4", stages)
		assert.Error(t, err)
		assert.Nil(t, mgr2)
	})

	t.Run("OperationManager can be used as a RunReporter", func(t *testing.T) {
		svc := newTestProgressService()
		runID := models.NewRunID()

		stages := []progress.Stage{
			&mockStage{id: "ingest", name: "Ingest"},
		}

		mgr, err := progress.StartPipelineOperation(svc, runID, "https://example.com/match.mp4", stages)
		require.NoError(t, err)

		var reporter progress.RunReporter = mgr
		reporter.ReportProgress(context.Background(), "ingest", 0.5, "Testing")

		op, err := svc.GetOperation(mgr.OperationID())
		require.NoError(t, err)
		assert.Equal(t, 0.5, op.Stages[0].Progress)
	})
}
