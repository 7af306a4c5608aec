package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-research/internal/model"
)

// ErrNotFound is returned when a report or record does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
// Content ingestion treats it as an idempotent skip, which makes the
// duplicate-processing race a hard no-op rather than a tolerated anomaly.
var ErrDuplicate = eris.New("store: duplicate record")

// ReportFilter specifies criteria for listing reports.
type ReportFilter struct {
	Status    model.ReportStatus `json:"status,omitempty"`
	CompanyID string             `json:"company_id,omitempty"`
	Limit     int                `json:"limit,omitempty"`
	Offset    int                `json:"offset,omitempty"`
}

// Store defines the persistence interface for the research pipeline.
//
// Stage-completion writes (SetSearchResults, SetContentProcessed,
// SetAggregation, SetTemplate) persist their payload and the stage's
// completed status in one statement, so a stage is either fully recorded
// or not at all.
type Store interface {
	// Reports
	CreateReport(ctx context.Context, req model.ReportRequest) (*model.ResearchReport, error)
	GetReport(ctx context.Context, reportID string) (*model.ResearchReport, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]model.ResearchReport, error)

	// Stage transitions. SetReportStatus clears any failure markers so the
	// status_before_failure invariant (non-null iff failed) holds.
	SetReportStatus(ctx context.Context, reportID string, status model.ReportStatus) error
	SetReportProfile(ctx context.Context, reportID, personID, personName, companyID string) error
	SetSearchResults(ctx context.Context, reportID string, results []model.SearchResult) error
	SetContentProcessed(ctx context.Context, reportID string, failedSourceIDs []string) error
	SetAggregation(ctx context.Context, reportID string, sections []model.ReportSection, insights model.Insights) error
	SetTemplate(ctx context.Context, reportID, template, draft string) error
	MarkFailed(ctx context.Context, reportID string, prior model.ReportStatus, reason string) error

	// AddReportCost increments the accumulated usage inside a document-level
	// transaction. Always additive, never overwrites.
	AddReportCost(ctx context.Context, reportID string, usage model.UsageTotals) error

	// Content records
	CreateContentRecord(ctx context.Context, rec *model.ContentRecord) error
	HasContentRecord(ctx context.Context, sourceID, companyID string) (bool, error)
	HasActivityRecord(ctx context.Context, activityID string) (bool, error)
	ListContentByCompany(ctx context.Context, companyID string) ([]model.ContentRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
