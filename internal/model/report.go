package model

import (
	"time"
)

// ReportStatus represents the current stage of a research report.
type ReportStatus string

const (
	StatusNew              ReportStatus = "new"
	StatusProfileFetched   ReportStatus = "profile_fetched"
	StatusURLsFetched      ReportStatus = "urls_fetched"
	StatusContentProcessed ReportStatus = "content_processed"
	StatusAggregated       ReportStatus = "aggregated"
	StatusTemplateSelected ReportStatus = "template_selected"
	StatusComplete         ReportStatus = "complete"
	StatusFailed           ReportStatus = "failed"
)

// Terminal reports true if no further stage can run from this status.
func (s ReportStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// ReportRequest is the input that creates a research report.
type ReportRequest struct {
	UserID      string `json:"user_id"`
	PersonID    string `json:"person_id"`
	PersonName  string `json:"person_name"`
	CompanyID   string `json:"company_id"`
	CompanyName string `json:"company_name"`
	CompanyURL  string `json:"company_url"`
}

// SourceKind distinguishes discovered web pages from social-activity items.
type SourceKind string

const (
	SourceKindWebPage        SourceKind = "web_page"
	SourceKindSocialActivity SourceKind = "social_activity"
)

// SearchResult is one discovered source descriptor.
type SearchResult struct {
	SourceID   string     `json:"source_id"`
	URL        string     `json:"url"`
	Query      string     `json:"query"`
	Kind       SourceKind `json:"kind"`
	ActivityID string     `json:"activity_id,omitempty"` // social-activity items only
}

// Highlight is one content record surfaced in a report section.
type Highlight struct {
	ContentID        string     `json:"content_id"`
	SourceID         string     `json:"source_id"`
	Summary          string     `json:"summary"`
	Category         string     `json:"category"`
	CategoryLabel    string     `json:"category_label"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	PublishedDisplay string     `json:"published_display"`
}

// ReportSection groups highlights sharing one category.
type ReportSection struct {
	Category   string      `json:"category"`
	Label      string      `json:"label"`
	Highlights []Highlight `json:"highlights"`
}

// InsightFacet is one entry of a ranked name-to-count list.
type InsightFacet struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Insights holds the facets derived from the target person's social activity.
type Insights struct {
	MentionedPeople    []InsightFacet `json:"mentioned_people"`
	AssociatedProducts []InsightFacet `json:"associated_products"`
	FreshnessCutoff    time.Time      `json:"freshness_cutoff"`
}

// ResearchReport is the persisted unit of work for one person/company request.
type ResearchReport struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	PersonID    string `json:"person_id"`
	PersonName  string `json:"person_name"`
	CompanyID   string `json:"company_id"`
	CompanyName string `json:"company_name"`
	CompanyURL  string `json:"company_url"`

	Status ReportStatus `json:"status"`
	// StatusBeforeFailure is set only while Status == failed and names the
	// last good status so a recovered report resumes from the right stage.
	StatusBeforeFailure *ReportStatus `json:"status_before_failure,omitempty"`
	FailureReason       string       `json:"failure_reason,omitempty"`

	SearchResults   []SearchResult  `json:"search_results,omitempty"`
	FailedSourceIDs []string        `json:"failed_source_ids,omitempty"`
	Sections        []ReportSection `json:"sections,omitempty"`
	Insights        *Insights       `json:"insights,omitempty"`
	Cost            UsageTotals     `json:"cost_accumulated"`

	SelectedTemplate string `json:"selected_template,omitempty"`
	EmailDraft       string `json:"email_draft,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoutedStatus is the status used for stage routing: a failed report routes
// as its last good status so Advance resumes instead of restarting.
func (r *ResearchReport) RoutedStatus() ReportStatus {
	if r.Status == StatusFailed && r.StatusBeforeFailure != nil {
		return *r.StatusBeforeFailure
	}
	return r.Status
}

// PendingSources returns the search results that have not already failed
// ingestion in a previous pass.
func (r *ResearchReport) PendingSources() []SearchResult {
	if len(r.FailedSourceIDs) == 0 {
		return r.SearchResults
	}
	failed := make(map[string]bool, len(r.FailedSourceIDs))
	for _, id := range r.FailedSourceIDs {
		failed[id] = true
	}
	var pending []SearchResult
	for _, sr := range r.SearchResults {
		if !failed[sr.SourceID] {
			pending = append(pending, sr)
		}
	}
	return pending
}
