package progress

import (
	"context"

	"github.com/shlawgathon/sportsclips/internal/models"
)

// Stage describes a pipeline consumer for bootstrapping operation progress.
// internal/ws's stageHandle satisfies this for a run's highlight and
// commentary stages.
type Stage interface {
	ID() string
	Name() string
}

// RunReporter is the interface a pipeline run uses to report stage-level
// progress without depending on the progress service's internals.
type RunReporter interface {
	ReportProgress(ctx context.Context, stageID string, progress float64, message string)
	ReportItemProgress(ctx context.Context, stageID string, current, total int, item string)
}

// Ensure OperationManager implements RunReporter at compile time.
var _ RunReporter = (*OperationManager)(nil)

// CreateStagesFromPipeline creates StageInfo entries from a run's consumers,
// giving each an equal weight toward overall progress.
func CreateStagesFromPipeline(stages []Stage) []StageInfo {
	infos := make([]StageInfo, len(stages))
	weight := 1.0 / float64(len(stages))
	for i, stage := range stages {
		infos[i] = StageInfo{
			ID:     stage.ID(),
			Name:   stage.Name(),
			Weight: weight,
		}
	}
	return infos
}

// StartPipelineOperation starts a progress operation for a run and returns
// the OperationManager that implements RunReporter.
func StartPipelineOperation(
	svc *Service,
	runID models.RunID,
	sourceURL string,
	stages []Stage,
) (*OperationManager, error) {
	stageInfos := CreateStagesFromPipeline(stages)
	return svc.StartOperation(OpPipelineRun, runID, sourceURL, stageInfos)
}
