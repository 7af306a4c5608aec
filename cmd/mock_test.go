package main

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/outreach-research/internal/model"
	"github.com/sells-group/outreach-research/internal/store"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateReport(ctx context.Context, req model.ReportRequest) (*model.ResearchReport, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ResearchReport), args.Error(1)
}

func (m *mockStore) GetReport(ctx context.Context, reportID string) (*model.ResearchReport, error) {
	args := m.Called(ctx, reportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ResearchReport), args.Error(1)
}

func (m *mockStore) ListReports(ctx context.Context, filter store.ReportFilter) ([]model.ResearchReport, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ResearchReport), args.Error(1)
}

func (m *mockStore) SetReportStatus(ctx context.Context, reportID string, status model.ReportStatus) error {
	return m.Called(ctx, reportID, status).Error(0)
}

func (m *mockStore) SetReportProfile(ctx context.Context, reportID, personID, personName, companyID string) error {
	return m.Called(ctx, reportID, personID, personName, companyID).Error(0)
}

func (m *mockStore) SetSearchResults(ctx context.Context, reportID string, results []model.SearchResult) error {
	return m.Called(ctx, reportID, results).Error(0)
}

func (m *mockStore) SetContentProcessed(ctx context.Context, reportID string, failedSourceIDs []string) error {
	return m.Called(ctx, reportID, failedSourceIDs).Error(0)
}

func (m *mockStore) SetAggregation(ctx context.Context, reportID string, sections []model.ReportSection, insights model.Insights) error {
	return m.Called(ctx, reportID, sections, insights).Error(0)
}

func (m *mockStore) SetTemplate(ctx context.Context, reportID, template, draft string) error {
	return m.Called(ctx, reportID, template, draft).Error(0)
}

func (m *mockStore) MarkFailed(ctx context.Context, reportID string, prior model.ReportStatus, reason string) error {
	return m.Called(ctx, reportID, prior, reason).Error(0)
}

func (m *mockStore) AddReportCost(ctx context.Context, reportID string, usage model.UsageTotals) error {
	return m.Called(ctx, reportID, usage).Error(0)
}

func (m *mockStore) CreateContentRecord(ctx context.Context, rec *model.ContentRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockStore) HasContentRecord(ctx context.Context, sourceID, companyID string) (bool, error) {
	args := m.Called(ctx, sourceID, companyID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) HasActivityRecord(ctx context.Context, activityID string) (bool, error) {
	args := m.Called(ctx, activityID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) ListContentByCompany(ctx context.Context, companyID string) ([]model.ContentRecord, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ContentRecord), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}
