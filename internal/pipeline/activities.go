package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-research/internal/extract"
	"github.com/sells-group/outreach-research/internal/model"
	"github.com/sells-group/outreach-research/internal/profile"
	"github.com/sells-group/outreach-research/internal/resilience"
	"github.com/sells-group/outreach-research/internal/search"
	"github.com/sells-group/outreach-research/internal/store"
)

// nonRetryableErrType marks activity errors the stage retry policy must
// not re-run.
const nonRetryableErrType = "NonRetryable"

// Activities holds the dependencies every pipeline activity needs.
type Activities struct {
	store      store.Store
	searcher   search.Client
	profiler   profile.Client
	extractor  extract.Extractor
	maxSources int
	freshness  int
	now        func() time.Time
}

// NewActivities wires the pipeline activities.
func NewActivities(st store.Store, searcher search.Client, profiler profile.Client, extractor extract.Extractor, maxSources, freshnessMonths int) *Activities {
	return &Activities{
		store:      st,
		searcher:   searcher,
		profiler:   profiler,
		extractor:  extractor,
		maxSources: maxSources,
		freshness:  freshnessMonths,
		now:        time.Now,
	}
}

// nonRetryable converts an error into one the Temporal retry policy
// will not re-attempt.
func nonRetryable(err error) error {
	return temporal.NewNonRetryableApplicationError(err.Error(), nonRetryableErrType, err)
}

// LoadReport fetches the report for stage routing.
func (a *Activities) LoadReport(ctx context.Context, reportID string) (*model.ResearchReport, error) {
	report, err := a.store.GetReport(ctx, reportID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nonRetryable(err)
		}
		return nil, err
	}
	return report, nil
}

// FetchProfile resolves the person and company identifiers and records
// the profile_fetched transition.
func (a *Activities) FetchProfile(ctx context.Context, reportID string) error {
	report, err := a.store.GetReport(ctx, reportID)
	if err != nil {
		return err
	}

	result, err := a.profiler.FetchProfile(ctx, profile.Request{
		PersonID:    report.PersonID,
		PersonName:  report.PersonName,
		CompanyID:   report.CompanyID,
		CompanyName: report.CompanyName,
		CompanyURL:  report.CompanyURL,
	})
	if err != nil {
		if resilience.KindOf(err) != resilience.KindRetryable {
			return nonRetryable(err)
		}
		return err
	}

	if err := a.store.SetReportProfile(ctx, reportID, result.PersonID, result.PersonName, result.CompanyID); err != nil {
		return err
	}
	if err := a.store.AddReportCost(ctx, reportID, result.Usage); err != nil {
		return err
	}

	zap.L().Info("profile fetched",
		zap.String("report_id", reportID),
		zap.String("person", result.PersonName),
		zap.String("title", result.Title))
	return nil
}

// FetchSources discovers content sources and records the urls_fetched
// transition. Returns the number of sources found.
func (a *Activities) FetchSources(ctx context.Context, reportID string) (int, error) {
	report, err := a.store.GetReport(ctx, reportID)
	if err != nil {
		return 0, err
	}

	sources, err := a.searcher.FetchSources(ctx, search.Request{
		PersonName:  report.PersonName,
		CompanyName: report.CompanyName,
		CompanyURL:  report.CompanyURL,
		MaxResults:  a.maxSources,
	})
	if err != nil {
		if resilience.KindOf(err) != resilience.KindRetryable {
			return 0, nonRetryable(err)
		}
		return 0, err
	}

	if err := a.store.SetSearchResults(ctx, reportID, sources); err != nil {
		return 0, err
	}

	zap.L().Info("sources fetched",
		zap.String("report_id", reportID),
		zap.Int("count", len(sources)))
	return len(sources), nil
}

// WarmExtractionCache primes the shared classification prompt so the
// shard fan-out hits a warm cache. Failure is logged, not fatal: the
// fan-out works without a warm cache, it just pays full prompt price.
func (a *Activities) WarmExtractionCache(ctx context.Context, reportID string) error {
	report, err := a.store.GetReport(ctx, reportID)
	if err != nil {
		return err
	}

	usage, err := a.extractor.WarmCache(ctx, extract.Subject{
		PersonName:  report.PersonName,
		CompanyName: report.CompanyName,
	})
	if err != nil {
		zap.L().Warn("cache warm failed", zap.String("report_id", reportID), zap.Error(err))
		return nil
	}
	return a.store.AddReportCost(ctx, reportID, usage)
}

// ShardInput is one shard's work assignment.
type ShardInput struct {
	ReportID    string
	PersonID    string
	PersonName  string
	CompanyID   string
	CompanyName string
	Batch       model.WorkBatch
}

// ShardResult reports what one shard accomplished. FailedSourceIDs
// lists sources that could not be ingested after the retry pass.
type ShardResult struct {
	FailedSourceIDs []string
	Ingested        int
	Skipped         int
}

// ProcessShard ingests one shard of sources: idempotency check, extract,
// persist. Retryable extraction failures get exactly one serial retry
// pass after the first pass completes; non-retryable failures are
// recorded immediately. Only fatal errors abort the shard.
func (a *Activities) ProcessShard(ctx context.Context, input ShardInput) (*ShardResult, error) {
	subject := extract.Subject{PersonName: input.PersonName, CompanyName: input.CompanyName}
	result := &ShardResult{}
	var usage model.UsageTotals

	var retryQueue []model.SearchResult
	for _, src := range input.Batch.Sources {
		outcome, err := a.ingestSource(ctx, input, src, subject, &usage)
		if err != nil {
			return nil, err
		}
		switch outcome {
		case outcomeIngested:
			result.Ingested++
		case outcomeSkipped:
			result.Skipped++
		case outcomeFailed:
			result.FailedSourceIDs = append(result.FailedSourceIDs, src.SourceID)
		case outcomeRetry:
			retryQueue = append(retryQueue, src)
		}
	}

	for _, src := range retryQueue {
		outcome, err := a.ingestSource(ctx, input, src, subject, &usage)
		if err != nil {
			return nil, err
		}
		switch outcome {
		case outcomeIngested:
			result.Ingested++
		case outcomeSkipped:
			result.Skipped++
		default:
			// A second retryable failure exhausts the shard's retry
			// budget for this source.
			result.FailedSourceIDs = append(result.FailedSourceIDs, src.SourceID)
		}
	}

	if !usage.IsZero() {
		if err := a.store.AddReportCost(ctx, input.ReportID, usage); err != nil {
			return nil, err
		}
	}

	zap.L().Info("shard processed",
		zap.String("report_id", input.ReportID),
		zap.Int("shard", input.Batch.Index),
		zap.Int("ingested", result.Ingested),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.FailedSourceIDs)))
	return result, nil
}

type sourceOutcome int

const (
	outcomeIngested sourceOutcome = iota
	outcomeSkipped
	outcomeFailed
	outcomeRetry
)

// ingestSource processes a single source end to end. A non-nil error
// means the whole shard must abort.
func (a *Activities) ingestSource(ctx context.Context, input ShardInput, src model.SearchResult, subject extract.Subject, usage *model.UsageTotals) (sourceOutcome, error) {
	exists, err := a.alreadyIngested(ctx, src, input.CompanyID)
	if err != nil {
		return 0, err
	}
	if exists {
		return outcomeSkipped, nil
	}

	extracted, err := a.extractor.Extract(ctx, src, subject)
	if err != nil {
		switch resilience.KindOf(err) {
		case resilience.KindFatal:
			return 0, nonRetryable(eris.Wrap(err, "pipeline: fatal extraction error"))
		case resilience.KindNonRetryable:
			zap.L().Warn("source failed",
				zap.String("source_id", src.SourceID),
				zap.String("url", src.URL),
				zap.Error(err))
			return outcomeFailed, nil
		default:
			return outcomeRetry, nil
		}
	}
	usage.Add(extracted.Usage)

	rec := &model.ContentRecord{
		ID:                 uuid.NewString(),
		CompanyID:          input.CompanyID,
		PersonID:           input.PersonID,
		SourceID:           src.SourceID,
		ActivityID:         src.ActivityID,
		Kind:               src.Kind,
		Category:           extracted.Fields.Category,
		PublishedAt:        extracted.Fields.PublishedAt,
		Summary:            extracted.Fields.Summary,
		FocusOnCompany:     extracted.Fields.FocusOnCompany,
		RequestingContact:  extracted.Fields.RequestingContact,
		MentionedPeople:    extracted.Fields.MentionedPeople,
		AssociatedProducts: extracted.Fields.AssociatedProducts,
		Usage:              extracted.Usage,
	}
	if err := a.store.CreateContentRecord(ctx, rec); err != nil {
		// A concurrent pass ingested the same identity first. The unique
		// index made the race a no-op.
		if errors.Is(err, store.ErrDuplicate) {
			return outcomeSkipped, nil
		}
		return 0, err
	}
	return outcomeIngested, nil
}

// alreadyIngested is the idempotency guard: activity ids key social
// items globally, source ids are scoped per company.
func (a *Activities) alreadyIngested(ctx context.Context, src model.SearchResult, companyID string) (bool, error) {
	if src.Kind == model.SourceKindSocialActivity && src.ActivityID != "" {
		return a.store.HasActivityRecord(ctx, src.ActivityID)
	}
	return a.store.HasContentRecord(ctx, src.SourceID, companyID)
}

// CompleteContentProcessing records the fan-in: every shard finished,
// and failedSourceIDs is the union of their failures.
func (a *Activities) CompleteContentProcessing(ctx context.Context, reportID string, failedSourceIDs []string) error {
	return a.store.SetContentProcessed(ctx, reportID, failedSourceIDs)
}

// Aggregate builds report sections and insight facets from every
// content record stored for the company, then records the aggregated
// transition.
func (a *Activities) Aggregate(ctx context.Context, reportID string) error {
	report, err := a.store.GetReport(ctx, reportID)
	if err != nil {
		return err
	}

	records, err := a.store.ListContentByCompany(ctx, report.CompanyID)
	if err != nil {
		return err
	}

	now := a.now()
	sections := BuildSections(records, report.PersonID, now, a.freshness)
	insights := BuildInsights(records, report.PersonID, report.PersonName, now, a.freshness)

	if err := a.store.SetAggregation(ctx, reportID, sections, *insights); err != nil {
		return err
	}

	zap.L().Info("report aggregated",
		zap.String("report_id", reportID),
		zap.Int("sections", len(sections)),
		zap.Int("records", len(records)))
	return nil
}

// SelectTemplate picks the outreach template from the aggregated
// sections, renders the draft, and records the template_selected
// transition.
func (a *Activities) SelectTemplate(ctx context.Context, reportID string) error {
	report, err := a.store.GetReport(ctx, reportID)
	if err != nil {
		return err
	}

	report.SelectedTemplate = SelectTemplate(report.Sections)
	draft, err := RenderEmailDraft(report)
	if err != nil {
		return nonRetryable(err)
	}

	return a.store.SetTemplate(ctx, reportID, report.SelectedTemplate, draft)
}

// CompleteReport records the terminal complete transition.
func (a *Activities) CompleteReport(ctx context.Context, reportID string) error {
	return a.store.SetReportStatus(ctx, reportID, model.StatusComplete)
}

// MarkFailedInput identifies the report to fail and why.
type MarkFailedInput struct {
	ReportID string
	Prior    model.ReportStatus
	Reason   string
}

// MarkReportFailed flips the report to failed while preserving the last
// good status for later recovery.
func (a *Activities) MarkReportFailed(ctx context.Context, input MarkFailedInput) error {
	return a.store.MarkFailed(ctx, input.ReportID, input.Prior, input.Reason)
}
