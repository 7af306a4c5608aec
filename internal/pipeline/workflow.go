package pipeline

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/outreach-research/internal/model"
)

const (
	// TaskQueue is the default Temporal task queue for research workflows.
	TaskQueue = "outreach-research"

	defaultStageTimeout = 5 * time.Minute
	defaultShardTimeout = 10 * time.Minute

	// defaultStageAttempts bounds per-stage executions before the report
	// is marked failed.
	defaultStageAttempts = 3
	// defaultStageBackoff is the fixed delay between stage attempts.
	defaultStageBackoff = 10 * time.Second
)

// StagePolicy tunes stage retries and timeouts per run. Zero fields fall
// back to the defaults, so callers only set what they override.
type StagePolicy struct {
	StageAttempts    int
	StageBackoffSecs int
	StageTimeoutSecs int
	ShardTimeoutSecs int
}

func (p StagePolicy) stageTimeout() time.Duration {
	if p.StageTimeoutSecs > 0 {
		return time.Duration(p.StageTimeoutSecs) * time.Second
	}
	return defaultStageTimeout
}

func (p StagePolicy) shardTimeout() time.Duration {
	if p.ShardTimeoutSecs > 0 {
		return time.Duration(p.ShardTimeoutSecs) * time.Second
	}
	return defaultShardTimeout
}

// retryPolicy retries a stage a fixed number of times with a fixed
// delay. BackoffCoefficient 1.0 keeps the delay constant.
func (p StagePolicy) retryPolicy() *temporal.RetryPolicy {
	attempts := p.StageAttempts
	if attempts <= 0 {
		attempts = defaultStageAttempts
	}
	backoff := defaultStageBackoff
	if p.StageBackoffSecs > 0 {
		backoff = time.Duration(p.StageBackoffSecs) * time.Second
	}
	return &temporal.RetryPolicy{
		InitialInterval:        backoff,
		BackoffCoefficient:     1.0,
		MaximumInterval:        backoff,
		MaximumAttempts:        int32(attempts),
		NonRetryableErrorTypes: []string{nonRetryableErrType},
	}
}

// WorkflowInput identifies the report a workflow run advances and
// carries the operator-tuned execution knobs.
type WorkflowInput struct {
	ReportID    string
	Concurrency int
	Policy      StagePolicy
}

// WorkflowResult summarizes a completed run.
type WorkflowResult struct {
	ReportID        string
	FinalStatus     model.ReportStatus
	SourcesFound    int
	FailedSourceIDs []string
}

// WorkflowID returns the deterministic workflow id for a report. Reusing
// it makes concurrent Advance calls collapse into one running workflow.
func WorkflowID(reportID string) string {
	return fmt.Sprintf("research-report-%s", reportID)
}

// ResearchWorkflow drives one report through the stage machine. Each
// run resumes from the report's persisted status, so a recovered report
// repeats only the stage that failed.
func ResearchWorkflow(ctx workflow.Context, input WorkflowInput) (*WorkflowResult, error) {
	logger := workflow.GetLogger(ctx)

	var a *Activities

	stageCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: input.Policy.stageTimeout(),
		RetryPolicy:         input.Policy.retryPolicy(),
	})
	shardCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: input.Policy.shardTimeout(),
		RetryPolicy:         input.Policy.retryPolicy(),
	})

	result := &WorkflowResult{ReportID: input.ReportID}

	var report *model.ResearchReport
	if err := workflow.ExecuteActivity(stageCtx, a.LoadReport, input.ReportID).Get(ctx, &report); err != nil {
		return nil, err
	}

	// handleFailure flips the report to failed, preserving the status it
	// held before the failing stage so Advance can resume from there.
	handleFailure := func(prior model.ReportStatus, stageErr error) (*WorkflowResult, error) {
		logger.Error("stage failed", "report_id", input.ReportID, "prior_status", prior, "error", stageErr)
		_ = workflow.ExecuteActivity(stageCtx, a.MarkReportFailed, MarkFailedInput{
			ReportID: input.ReportID,
			Prior:    prior,
			Reason:   stageErr.Error(),
		}).Get(ctx, nil)
		result.FinalStatus = model.StatusFailed
		return result, stageErr
	}

	status := report.RoutedStatus()
	for !status.Terminal() {
		switch status {
		case model.StatusNew:
			if err := workflow.ExecuteActivity(stageCtx, a.FetchProfile, input.ReportID).Get(ctx, nil); err != nil {
				return handleFailure(status, err)
			}
			status = model.StatusProfileFetched

		case model.StatusProfileFetched:
			var count int
			if err := workflow.ExecuteActivity(stageCtx, a.FetchSources, input.ReportID).Get(ctx, &count); err != nil {
				return handleFailure(status, err)
			}
			result.SourcesFound = count
			status = model.StatusURLsFetched

		case model.StatusURLsFetched:
			failedIDs, err := runContentProcessing(ctx, stageCtx, shardCtx, a, input)
			if err != nil {
				return handleFailure(status, err)
			}
			result.FailedSourceIDs = failedIDs
			status = model.StatusContentProcessed

		case model.StatusContentProcessed:
			if err := workflow.ExecuteActivity(stageCtx, a.Aggregate, input.ReportID).Get(ctx, nil); err != nil {
				return handleFailure(status, err)
			}
			status = model.StatusAggregated

		case model.StatusAggregated:
			if err := workflow.ExecuteActivity(stageCtx, a.SelectTemplate, input.ReportID).Get(ctx, nil); err != nil {
				return handleFailure(status, err)
			}
			status = model.StatusTemplateSelected

		case model.StatusTemplateSelected:
			if err := workflow.ExecuteActivity(stageCtx, a.CompleteReport, input.ReportID).Get(ctx, nil); err != nil {
				return handleFailure(status, err)
			}
			status = model.StatusComplete

		default:
			return nil, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("unroutable report status %q", status), nonRetryableErrType, nil)
		}
	}

	result.FinalStatus = status
	logger.Info("workflow complete", "report_id", input.ReportID, "status", status)
	return result, nil
}

// runContentProcessing is the fan-out/fan-in stage: reload the report
// for its discovered sources, warm the classification cache, process
// every pending source across a fixed-width shard pool, then record the
// fan-in once all shards report.
func runContentProcessing(ctx workflow.Context, stageCtx, shardCtx workflow.Context, a *Activities, input WorkflowInput) ([]string, error) {
	var report *model.ResearchReport
	if err := workflow.ExecuteActivity(stageCtx, a.LoadReport, input.ReportID).Get(ctx, &report); err != nil {
		return nil, err
	}

	pending := report.PendingSources()
	if len(pending) == 0 {
		if err := workflow.ExecuteActivity(stageCtx, a.CompleteContentProcessing, input.ReportID, report.FailedSourceIDs).Get(ctx, nil); err != nil {
			return nil, err
		}
		return report.FailedSourceIDs, nil
	}

	if err := workflow.ExecuteActivity(stageCtx, a.WarmExtractionCache, input.ReportID).Get(ctx, nil); err != nil {
		return nil, err
	}

	concurrency := input.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	batches := PartitionSources(pending, concurrency)

	futures := make([]workflow.Future, len(batches))
	for i, batch := range batches {
		futures[i] = workflow.ExecuteActivity(shardCtx, a.ProcessShard, ShardInput{
			ReportID:    input.ReportID,
			PersonID:    report.PersonID,
			PersonName:  report.PersonName,
			CompanyID:   report.CompanyID,
			CompanyName: report.CompanyName,
			Batch:       batch,
		})
	}

	// All-of fan-in: every shard must report before the stage completes.
	// A shard whose retries exhaust fails its whole batch instead of
	// failing the stage.
	logger := workflow.GetLogger(ctx)
	failedIDs := append([]string(nil), report.FailedSourceIDs...)
	for i, f := range futures {
		var shard ShardResult
		if err := f.Get(ctx, &shard); err != nil {
			logger.Error("shard exhausted retries", "report_id", input.ReportID, "shard", batches[i].Index, "error", err)
			for _, src := range batches[i].Sources {
				failedIDs = append(failedIDs, src.SourceID)
			}
			continue
		}
		failedIDs = append(failedIDs, shard.FailedSourceIDs...)
	}

	if err := workflow.ExecuteActivity(stageCtx, a.CompleteContentProcessing, input.ReportID, failedIDs).Get(ctx, nil); err != nil {
		return nil, err
	}
	return failedIDs, nil
}
