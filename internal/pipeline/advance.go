package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

// Advance starts the workflow run that moves a report forward. The
// workflow id is derived from the report id, so a second Advance while
// a run is in flight joins it instead of double-driving the report.
func Advance(ctx context.Context, tc client.Client, taskQueue string, input WorkflowInput) (string, error) {
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(input.ReportID),
		TaskQueue: taskQueue,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}

	run, err := tc.ExecuteWorkflow(ctx, opts, ResearchWorkflow, input)
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			zap.L().Info("advance joined running workflow",
				zap.String("report_id", input.ReportID),
				zap.String("workflow_id", WorkflowID(input.ReportID)))
			return WorkflowID(input.ReportID), nil
		}
		return "", eris.Wrap(err, "pipeline: start workflow")
	}

	zap.L().Info("advance started workflow",
		zap.String("report_id", input.ReportID),
		zap.String("workflow_id", WorkflowID(input.ReportID)),
		zap.String("run_id", run.GetRunID()))
	return run.GetRunID(), nil
}
