package progress

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shlawgathon/sportsclips/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewService(logger)
}

func TestService_StartOperation(t *testing.T) {
	svc := newTestService()
	runID := models.NewRunID()

	stages := []StageInfo{
		{ID: "ingest", Name: "Ingest", Weight: 0.3},
		{ID: "highlight", Name: "Highlight", Weight: 0.5},
		{ID: "commentary", Name: "Commentary", Weight: 0.2},
	}

	t.Run("creates operation successfully", func(t *testing.T) {
		mgr, err := svc.StartOperation(OpPipelineRun, runID, "https://example.com/a.mp4", stages)
		require.NoError(t, err)
		require.NotNil(t, mgr)

		op, err := svc.GetOperation(mgr.OperationID())
		require.NoError(t, err)
		assert.Equal(t, OpPipelineRun, op.OperationType)
		assert.Equal(t, runID, op.RunID)
		assert.Equal(t, "https://example.com/a.mp4", op.SourceURL)
		assert.Equal(t, StatePreparing, op.State)
		assert.Len(t, op.Stages, 3)
	})

	t.Run("blocks duplicate active operation for the same run", func(t *testing.T) {
		anotherRun := models.NewRunID()
		_, err := svc.StartOperation(OpPipelineRun, anotherRun, "https://example.com/b.mp4", stages)
		require.NoError(t, err)

		_, err = svc.StartOperation(OpPipelineRun, anotherRun, "https://example.com/b.mp4", stages)
		assert.ErrorIs(t, err, ErrOperationExists)
	})

	t.Run("allows new operation after completion", func(t *testing.T) {
		newRun := models.NewRunID()
		mgr, err := svc.StartOperation(OpPipelineRun, newRun, "https://example.com/c.mp4", stages)
		require.NoError(t, err)

		mgr.Complete("Done")

		mgr2, err := svc.StartOperation(OpPipelineRun, newRun, "https://example.com/c.mp4", stages)
		require.NoError(t, err)
		assert.NotEqual(t, mgr.OperationID(), mgr2.OperationID())
	})
}

func TestService_GetOperation(t *testing.T) {
	svc := newTestService()
	runID := models.NewRunID()

	stages := []StageInfo{
		{ID: "ingest", Name: "Ingest", Weight: 1.0},
	}

	mgr, err := svc.StartOperation(OpPipelineRun, runID, "https://example.com/a.mp4", stages)
	require.NoError(t, err)

	t.Run("returns operation by ID", func(t *testing.T) {
		op, err := svc.GetOperation(mgr.OperationID())
		require.NoError(t, err)
		assert.Equal(t, mgr.OperationID(), op.OperationID)
	})

	t.Run("returns error for unknown ID", func(t *testing.T) {
		_, err := svc.GetOperation("unknown-id")
		assert.ErrorIs(t, err, ErrOperationNotFound)
	})
}

func TestService_GetOperationByRun(t *testing.T) {
	svc := newTestService()
	runID := models.NewRunID()

	stages := []StageInfo{
		{ID: "ingest", Name: "Ingest", Weight: 1.0},
	}

	mgr, err := svc.StartOperation(OpPipelineRun, runID, "https://example.com/a.mp4", stages)
	require.NoError(t, err)

	t.Run("returns operation by run ID", func(t *testing.T) {
		op, err := svc.GetOperationByRun(runID)
		require.NoError(t, err)
		assert.Equal(t, mgr.OperationID(), op.OperationID)
	})

	t.Run("returns error for unknown run ID", func(t *testing.T) {
		_, err := svc.GetOperationByRun(models.NewRunID())
		assert.ErrorIs(t, err, ErrOperationNotFound)
	})
}

func TestService_ListOperations(t *testing.T) {
	svc := newTestService()

	stages := []StageInfo{{ID: "s1", Name: "Stage 1", Weight: 1.0}}

	run1 := models.NewRunID()
	run2 := models.NewRunID()
	run3 := models.NewRunID()

	mgr1, _ := svc.StartOperation(OpPipelineRun, run1, "https://example.com/1.mp4", stages)
	_, _ = svc.StartOperation(OpPipelineRun, run2, "https://example.com/2.mp4", stages)
	mgr3, _ := svc.StartOperation(OpPipelineRun, run3, "https://example.com/3.mp4", stages)
	mgr3.Complete("Done")

	t.Run("returns all operations with nil filter", func(t *testing.T) {
		ops := svc.ListOperations(nil)
		assert.Len(t, ops, 3)
	})

	t.Run("filters by active only", func(t *testing.T) {
		ops := svc.ListOperations(&OperationFilter{ActiveOnly: true})
		assert.Len(t, ops, 2)
		for _, op := range ops {
			assert.True(t, op.State.IsActive())
		}
	})

	t.Run("filters by run ID", func(t *testing.T) {
		ops := svc.ListOperations(&OperationFilter{RunID: &run1})
		assert.Len(t, ops, 1)
		assert.Equal(t, mgr1.OperationID(), ops[0].OperationID)
	})
}

func TestService_Subscribe(t *testing.T) {
	svc := newTestService()
	runID := models.NewRunID()

	stages := []StageInfo{
		{ID: "ingest", Name: "Ingest", Weight: 1.0},
	}

	t.Run("receives progress events", func(t *testing.T) {
		sub := svc.Subscribe(nil)
		defer svc.Unsubscribe(sub.ID)

		mgr, err := svc.StartOperation(OpPipelineRun, runID, "https://example.com/a.mp4", stages)
		require.NoError(t, err)

		select {
		case event := <-sub.Events:
			assert.Equal(t, EventTypeProgress, event.EventType)
			assert.Equal(t, StatePreparing, event.Progress.State)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("expected to receive event")
		}

		mgr.SetMessage("Ingesting...")
		select {
		case event := <-sub.Events:
			assert.Equal(t, "Ingesting...", event.Progress.Message)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("expected to receive update event")
		}

		mgr.Complete("Done")
		select {
		case event := <-sub.Events:
			assert.Equal(t, EventTypeCompleted, event.EventType)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("expected to receive completion event")
		}
	})

	t.Run("filters events by run ID", func(t *testing.T) {
		otherRun := models.NewRunID()
		sub := svc.Subscribe(&OperationFilter{RunID: &otherRun})
		defer svc.Unsubscribe(sub.ID)

		// Start an unrelated run (should not match)
		unrelated := models.NewRunID()
		_, err := svc.StartOperation(OpPipelineRun, unrelated, "https://example.com/x.mp4", stages)
		require.NoError(t, err)

		select {
		case <-sub.Events:
			t.Fatal("should not receive event for non-matching run")
		case <-time.After(50 * time.Millisecond):
			// Expected
		}

		// Start the matching run
		_, err = svc.StartOperation(OpPipelineRun, otherRun, "https://example.com/y.mp4", stages)
		require.NoError(t, err)

		select {
		case event := <-sub.Events:
			assert.Equal(t, otherRun, event.Progress.RunID)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("expected to receive event for matching run")
		}
	})
}

func TestOperationManager_StageWorkflow(t *testing.T) {
	svc := newTestService()
	runID := models.NewRunID()

	stages := []StageInfo{
		{ID: "ingest", Name: "Ingest", Weight: 0.3},
		{ID: "highlight", Name: "Highlight", Weight: 0.5},
		{ID: "commentary", Name: "Commentary", Weight: 0.2},
	}

	mgr, err := svc.StartOperation(OpPipelineRun, runID, "https://example.com/a.mp4", stages)
	require.NoError(t, err)

	stageUpdater := mgr.StartStage("ingest")

	op, _ := svc.GetOperation(mgr.OperationID())
	assert.Equal(t, 0, op.CurrentStageIndex)
	assert.Equal(t, StateProcessing, op.Stages[0].State)

	stageUpdater.SetItemProgress(50, 100, "chunk-50")

	op, _ = svc.GetOperation(mgr.OperationID())
	assert.Equal(t, 50, op.Stages[0].Current)
	assert.Equal(t, 100, op.Stages[0].Total)
	assert.InDelta(t, 0.15, op.Progress, 0.01) // 0.3 * 0.5 = 0.15

	stageUpdater.Complete()

	op, _ = svc.GetOperation(mgr.OperationID())
	assert.Equal(t, StateCompleted, op.Stages[0].State)

	stageUpdater = mgr.StartStage("highlight")
	stageUpdater.SetProgress(0.5, "Evaluating windows...")

	op, _ = svc.GetOperation(mgr.OperationID())
	assert.Equal(t, 1, op.CurrentStageIndex)
	assert.InDelta(t, 0.55, op.Progress, 0.01) // 0.3*1.0 + 0.5*0.5 = 0.55

	stageUpdater.Complete()
	mgr.StartStage("commentary").Complete()

	op, _ = svc.GetOperation(mgr.OperationID())
	assert.InDelta(t, 1.0, op.Progress, 0.01)

	mgr.Complete("Run complete")

	op, _ = svc.GetOperation(mgr.OperationID())
	assert.Equal(t, StateCompleted, op.State)
	assert.NotNil(t, op.CompletedAt)
}

func TestOperationManager_Fail(t *testing.T) {
	svc := newTestService()
	runID := models.NewRunID()

	stages := []StageInfo{
		{ID: "ingest", Name: "Ingest", Weight: 1.0},
	}

	sub := svc.Subscribe(nil)
	defer svc.Unsubscribe(sub.ID)

	mgr, err := svc.StartOperation(OpPipelineRun, runID, "https://example.com/a.mp4", stages)
	require.NoError(t, err)

	select {
	case <-sub.Events:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected to receive initial event")
	}

	mgr.Fail(assert.AnError)

	op, _ := svc.GetOperation(mgr.OperationID())
	assert.Equal(t, StateError, op.State)
	assert.Contains(t, op.Error, assert.AnError.Error())

	select {
	case event := <-sub.Events:
		assert.Equal(t, EventTypeError, event.EventType)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected to receive error event")
	}
}

func TestOperationManager_Cancel(t *testing.T) {
	svc := newTestService()
	runID := models.NewRunID()

	stages := []StageInfo{
		{ID: "ingest", Name: "Ingest", Weight: 1.0},
	}

	sub := svc.Subscribe(nil)
	defer svc.Unsubscribe(sub.ID)

	mgr, err := svc.StartOperation(OpPipelineRun, runID, "https://example.com/a.mp4", stages)
	require.NoError(t, err)

	select {
	case <-sub.Events:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected to receive initial event")
	}

	mgr.Cancel()

	op, _ := svc.GetOperation(mgr.OperationID())
	assert.Equal(t, StateCancelled, op.State)

	select {
	case event := <-sub.Events:
		assert.Equal(t, EventTypeCancelled, event.EventType)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected to receive cancelled event")
	}
}

func TestOperationManager_Metadata(t *testing.T) {
	svc := newTestService()
	runID := models.NewRunID()

	stages := []StageInfo{
		{ID: "ingest", Name: "Ingest", Weight: 1.0},
	}

	mgr, err := svc.StartOperation(OpPipelineRun, runID, "https://example.com/a.mp4", stages)
	require.NoError(t, err)

	mgr.SetMetadata("chunks_ingested", 100)
	mgr.SetMetadata("highlight_count", 3)

	op, _ := svc.GetOperation(mgr.OperationID())
	assert.Equal(t, 100, op.Metadata["chunks_ingested"])
	assert.Equal(t, 3, op.Metadata["highlight_count"])
}

func TestService_CleanupStaleOperations(t *testing.T) {
	svc := newTestService()
	svc.staleDuration = 50 * time.Millisecond // Very short for testing

	runID := models.NewRunID()
	stages := []StageInfo{{ID: "s1", Name: "Stage 1", Weight: 1.0}}

	mgr, err := svc.StartOperation(OpPipelineRun, runID, "https://example.com/a.mp4", stages)
	require.NoError(t, err)

	mgr.Complete("Done")

	_, err = svc.GetOperation(mgr.OperationID())
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	svc.cleanupStaleOperations()

	_, err = svc.GetOperation(mgr.OperationID())
	assert.ErrorIs(t, err, ErrOperationNotFound)
}
