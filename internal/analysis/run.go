package analysis

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/balidash/detective-cli/internal/model"
)

// AnalyzeAndRecord wraps Analyze with run history: a run row is created
// before the pipeline starts and marked complete or failed afterwards, so
// every report stays queryable later.
func (a *Analyzer) AnalyzeAndRecord(ctx context.Context, req Request) (*model.AnalysisReport, error) {
	run, err := a.p.Store.CreateRun(ctx, req.RestaurantID, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	report, err := a.Analyze(ctx, req)
	if err != nil {
		if failErr := a.p.Store.FailRun(ctx, run.ID, eris.ToString(err, false)); failErr != nil {
			zap.L().Error("analysis: recording run failure failed",
				zap.String("run_id", run.ID), zap.Error(failErr))
		}
		return nil, err
	}

	report.RunID = run.ID
	if err := a.p.Store.CompleteRun(ctx, run.ID, report); err != nil {
		return nil, eris.Wrapf(err, "analysis: record run %s", run.ID)
	}
	return report, nil
}
