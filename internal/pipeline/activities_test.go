package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"

	"github.com/sells-group/outreach-research/internal/extract"
	"github.com/sells-group/outreach-research/internal/model"
	"github.com/sells-group/outreach-research/internal/profile"
	"github.com/sells-group/outreach-research/internal/resilience"
	"github.com/sells-group/outreach-research/internal/store"
)

const reportID = "report-1"

func testReport() *model.ResearchReport {
	return &model.ResearchReport{
		ID:          reportID,
		PersonID:    targetPerson,
		PersonName:  "Dana Whitfield",
		CompanyID:   "company-meridian",
		CompanyName: "Meridian Analytics",
		CompanyURL:  "https://meridiananalytics.io",
		Status:      model.StatusNew,
	}
}

type activityDeps struct {
	store     *mockStore
	searcher  *mockSearch
	profiler  *mockProfile
	extractor *mockExtractor
}

func newTestActivities() (*Activities, *activityDeps) {
	deps := &activityDeps{
		store:     &mockStore{},
		searcher:  &mockSearch{},
		profiler:  &mockProfile{},
		extractor: &mockExtractor{},
	}
	a := NewActivities(deps.store, deps.searcher, deps.profiler, deps.extractor, 30, 15)
	a.now = func() time.Time { return aggNow }
	return a, deps
}

func TestFetchProfile_PersistsAndBills(t *testing.T) {
	t.Parallel()

	a, deps := newTestActivities()
	deps.store.On("GetReport", mock.Anything, reportID).Return(testReport(), nil)
	deps.profiler.On("FetchProfile", mock.Anything, mock.Anything).Return(&profile.Result{
		PersonID:   targetPerson,
		PersonName: "Dana R. Whitfield",
		CompanyID:  "company-meridian",
		Usage:      model.UsageTotals{CostUSD: 0.005},
	}, nil)
	deps.store.On("SetReportProfile", mock.Anything, reportID, targetPerson, "Dana R. Whitfield", "company-meridian").Return(nil)
	deps.store.On("AddReportCost", mock.Anything, reportID, model.UsageTotals{CostUSD: 0.005}).Return(nil)

	require.NoError(t, a.FetchProfile(context.Background(), reportID))
	deps.store.AssertExpectations(t)
}

func TestFetchProfile_NonRetryableStopsStageRetries(t *testing.T) {
	t.Parallel()

	a, deps := newTestActivities()
	deps.store.On("GetReport", mock.Anything, reportID).Return(testReport(), nil)
	deps.profiler.On("FetchProfile", mock.Anything, mock.Anything).
		Return(nil, resilience.NonRetryable(errors.New("bad request")))

	err := a.FetchProfile(context.Background(), reportID)

	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, nonRetryableErrType, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestFetchSources_PersistsResults(t *testing.T) {
	t.Parallel()

	a, deps := newTestActivities()
	sources := makeSources(4)
	deps.store.On("GetReport", mock.Anything, reportID).Return(testReport(), nil)
	deps.searcher.On("FetchSources", mock.Anything, mock.Anything).Return(sources, nil)
	deps.store.On("SetSearchResults", mock.Anything, reportID, sources).Return(nil)

	count, err := a.FetchSources(context.Background(), reportID)

	require.NoError(t, err)
	assert.Equal(t, 4, count)
	deps.store.AssertExpectations(t)
}

func shardInput(sources []model.SearchResult) ShardInput {
	return ShardInput{
		ReportID:    reportID,
		PersonID:    targetPerson,
		PersonName:  "Dana Whitfield",
		CompanyID:   "company-meridian",
		CompanyName: "Meridian Analytics",
		Batch:       model.WorkBatch{Index: 0, Sources: sources},
	}
}

func extractedResult() *extract.Result {
	published := aggNow.AddDate(0, -1, 0)
	return &extract.Result{
		Fields: extract.Fields{
			Category:       "funding",
			Summary:        "Series B closed.",
			PublishedAt:    &published,
			FocusOnCompany: true,
		},
		Usage: model.UsageTotals{TotalUnits: 100, CostUSD: 0.01},
	}
}

func TestProcessShard_IngestsAndBillsOnce(t *testing.T) {
	t.Parallel()

	a, deps := newTestActivities()
	sources := makeSources(2)
	deps.store.On("HasContentRecord", mock.Anything, mock.Anything, "company-meridian").Return(false, nil)
	deps.extractor.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return(extractedResult(), nil)
	deps.store.On("CreateContentRecord", mock.Anything, mock.MatchedBy(func(rec *model.ContentRecord) bool {
		return rec.CompanyID == "company-meridian" && rec.PersonID == targetPerson && rec.Category == "funding"
	})).Return(nil)
	deps.store.On("AddReportCost", mock.Anything, reportID, model.UsageTotals{TotalUnits: 200, CostUSD: 0.02}).Return(nil).Once()

	result, err := a.ProcessShard(context.Background(), shardInput(sources))

	require.NoError(t, err)
	assert.Equal(t, 2, result.Ingested)
	assert.Empty(t, result.FailedSourceIDs)
	deps.store.AssertExpectations(t)
}

func TestProcessShard_SkipsAlreadyIngested(t *testing.T) {
	t.Parallel()

	a, deps := newTestActivities()
	web := model.SearchResult{SourceID: "src-web", URL: "https://a.example.com", Kind: model.SourceKindWebPage}
	social := model.SearchResult{SourceID: "src-social", URL: "https://linkedin.com/posts/x_activity-99", Kind: model.SourceKindSocialActivity, ActivityID: "99"}

	deps.store.On("HasContentRecord", mock.Anything, "src-web", "company-meridian").Return(true, nil)
	deps.store.On("HasActivityRecord", mock.Anything, "99").Return(true, nil)

	result, err := a.ProcessShard(context.Background(), shardInput([]model.SearchResult{web, social}))

	require.NoError(t, err)
	assert.Equal(t, 2, result.Skipped)
	assert.Zero(t, result.Ingested)
	deps.extractor.AssertNotCalled(t, "Extract")
	deps.store.AssertNotCalled(t, "AddReportCost")
}

func TestProcessShard_DuplicateInsertIsSkip(t *testing.T) {
	t.Parallel()

	a, deps := newTestActivities()
	deps.store.On("HasContentRecord", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	deps.extractor.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return(extractedResult(), nil)
	deps.store.On("CreateContentRecord", mock.Anything, mock.Anything).Return(store.ErrDuplicate)
	deps.store.On("AddReportCost", mock.Anything, reportID, mock.Anything).Return(nil)

	result, err := a.ProcessShard(context.Background(), shardInput(makeSources(1)))

	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.FailedSourceIDs)
}

func TestProcessShard_RetryPassRecovers(t *testing.T) {
	t.Parallel()

	a, deps := newTestActivities()
	deps.store.On("HasContentRecord", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	deps.extractor.On("Extract", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, resilience.Retryable(errors.New("fetch timeout"))).Once()
	deps.extractor.On("Extract", mock.Anything, mock.Anything, mock.Anything).
		Return(extractedResult(), nil).Once()
	deps.store.On("CreateContentRecord", mock.Anything, mock.Anything).Return(nil)
	deps.store.On("AddReportCost", mock.Anything, reportID, mock.Anything).Return(nil)

	result, err := a.ProcessShard(context.Background(), shardInput(makeSources(1)))

	require.NoError(t, err)
	assert.Equal(t, 1, result.Ingested)
	assert.Empty(t, result.FailedSourceIDs)
	deps.extractor.AssertNumberOfCalls(t, "Extract", 2)
}

func TestProcessShard_RetryPassExhausts(t *testing.T) {
	t.Parallel()

	a, deps := newTestActivities()
	deps.store.On("HasContentRecord", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	deps.extractor.On("Extract", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, resilience.Retryable(errors.New("fetch timeout")))

	result, err := a.ProcessShard(context.Background(), shardInput(makeSources(1)))

	require.NoError(t, err)
	assert.Equal(t, []string{"src-00"}, result.FailedSourceIDs)
	// First pass plus exactly one retry pass.
	deps.extractor.AssertNumberOfCalls(t, "Extract", 2)
}

func TestProcessShard_NonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()

	a, deps := newTestActivities()
	deps.store.On("HasContentRecord", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	deps.extractor.On("Extract", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, resilience.NonRetryable(errors.New("empty body")))

	result, err := a.ProcessShard(context.Background(), shardInput(makeSources(1)))

	require.NoError(t, err)
	assert.Equal(t, []string{"src-00"}, result.FailedSourceIDs)
	deps.extractor.AssertNumberOfCalls(t, "Extract", 1)
}

func TestProcessShard_FatalAbortsShard(t *testing.T) {
	t.Parallel()

	a, deps := newTestActivities()
	deps.store.On("HasContentRecord", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	deps.extractor.On("Extract", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, resilience.Fatal(errors.New("credentials revoked")))

	_, err := a.ProcessShard(context.Background(), shardInput(makeSources(3)))

	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.NonRetryable())
	deps.extractor.AssertNumberOfCalls(t, "Extract", 1)
}

func TestProcessShard_PartialFailureStillBills(t *testing.T) {
	t.Parallel()

	a, deps := newTestActivities()
	sources := makeSources(2)
	deps.store.On("HasContentRecord", mock.Anything, "src-00", mock.Anything).Return(false, nil)
	deps.store.On("HasContentRecord", mock.Anything, "src-01", mock.Anything).Return(false, nil)
	deps.extractor.On("Extract", mock.Anything, mock.MatchedBy(func(src model.SearchResult) bool {
		return src.SourceID == "src-00"
	}), mock.Anything).Return(extractedResult(), nil)
	deps.extractor.On("Extract", mock.Anything, mock.MatchedBy(func(src model.SearchResult) bool {
		return src.SourceID == "src-01"
	}), mock.Anything).Return(nil, resilience.NonRetryable(errors.New("empty body")))
	deps.store.On("CreateContentRecord", mock.Anything, mock.Anything).Return(nil)
	deps.store.On("AddReportCost", mock.Anything, reportID, model.UsageTotals{TotalUnits: 100, CostUSD: 0.01}).Return(nil).Once()

	result, err := a.ProcessShard(context.Background(), shardInput(sources))

	require.NoError(t, err)
	assert.Equal(t, 1, result.Ingested)
	assert.Equal(t, []string{"src-01"}, result.FailedSourceIDs)
	deps.store.AssertExpectations(t)
}

func TestAggregate_PersistsSectionsAndInsights(t *testing.T) {
	t.Parallel()

	a, deps := newTestActivities()
	records := []model.ContentRecord{
		companyRecord("a", "funding", aggNow.AddDate(0, -1, 0)),
		socialRecord("b", []string{"Priya Raman"}, []string{"Atlas CRM"}),
	}
	deps.store.On("GetReport", mock.Anything, reportID).Return(testReport(), nil)
	deps.store.On("ListContentByCompany", mock.Anything, "company-meridian").Return(records, nil)
	deps.store.On("SetAggregation", mock.Anything, reportID,
		mock.MatchedBy(func(sections []model.ReportSection) bool {
			return len(sections) == 1 && sections[0].Category == "funding"
		}),
		mock.MatchedBy(func(insights model.Insights) bool {
			return len(insights.MentionedPeople) == 1 && insights.MentionedPeople[0].Name == "Priya Raman"
		})).Return(nil)

	require.NoError(t, a.Aggregate(context.Background(), reportID))
	deps.store.AssertExpectations(t)
}

func TestSelectTemplate_PersistsTemplateAndDraft(t *testing.T) {
	t.Parallel()

	a, deps := newTestActivities()
	report := testReport()
	report.Status = model.StatusAggregated
	report.Sections = []model.ReportSection{sectionWith("funding", 2)}
	deps.store.On("GetReport", mock.Anything, reportID).Return(report, nil)
	deps.store.On("SetTemplate", mock.Anything, reportID, "congrats_funding",
		mock.MatchedBy(func(draft string) bool { return draft != "" })).Return(nil)

	require.NoError(t, a.SelectTemplate(context.Background(), reportID))
	deps.store.AssertExpectations(t)
}

func TestMarkReportFailed(t *testing.T) {
	t.Parallel()

	a, deps := newTestActivities()
	deps.store.On("MarkFailed", mock.Anything, reportID, model.StatusURLsFetched, "shard exploded").Return(nil)

	require.NoError(t, a.MarkReportFailed(context.Background(), MarkFailedInput{
		ReportID: reportID,
		Prior:    model.StatusURLsFetched,
		Reason:   "shard exploded",
	}))
	deps.store.AssertExpectations(t)
}

func TestLoadReport_NotFoundIsNonRetryable(t *testing.T) {
	t.Parallel()

	a, deps := newTestActivities()
	deps.store.On("GetReport", mock.Anything, "missing").Return(nil, store.ErrNotFound)

	_, err := a.LoadReport(context.Background(), "missing")

	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.NonRetryable())
}
