package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/outreach-research/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// development runs; the deployed worker pool runs on postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS reports (
	id                    TEXT PRIMARY KEY,
	user_id               TEXT NOT NULL,
	person_id             TEXT NOT NULL,
	person_name           TEXT NOT NULL DEFAULT '',
	company_id            TEXT NOT NULL,
	company_name          TEXT NOT NULL DEFAULT '',
	company_url           TEXT NOT NULL DEFAULT '',
	status                TEXT NOT NULL DEFAULT 'new',
	status_before_failure TEXT,
	failure_reason        TEXT NOT NULL DEFAULT '',
	search_results        TEXT,
	failed_source_ids     TEXT,
	sections              TEXT,
	insights              TEXT,
	cost                  TEXT NOT NULL DEFAULT '{}',
	selected_template     TEXT NOT NULL DEFAULT '',
	email_draft           TEXT NOT NULL DEFAULT '',
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
CREATE INDEX IF NOT EXISTS idx_reports_company ON reports(company_id);

CREATE TABLE IF NOT EXISTS content_records (
	id                  TEXT PRIMARY KEY,
	company_id          TEXT NOT NULL,
	person_id           TEXT NOT NULL DEFAULT '',
	source_id           TEXT NOT NULL,
	activity_id         TEXT NOT NULL DEFAULT '',
	kind                TEXT NOT NULL,
	category            TEXT NOT NULL DEFAULT '',
	published_at        DATETIME,
	summary             TEXT NOT NULL DEFAULT '',
	focus_on_company    INTEGER NOT NULL DEFAULT 0,
	requesting_contact  INTEGER NOT NULL DEFAULT 0,
	mentioned_people    TEXT,
	associated_products TEXT,
	usage               TEXT,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_content_source_company ON content_records(source_id, company_id);
CREATE UNIQUE INDEX IF NOT EXISTS uq_content_activity ON content_records(activity_id) WHERE activity_id <> '';
CREATE INDEX IF NOT EXISTS idx_content_company ON content_records(company_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateReport(ctx context.Context, req model.ReportRequest) (*model.ResearchReport, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (id, user_id, person_id, person_name, company_id, company_name, company_url, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, req.UserID, req.PersonID, req.PersonName, req.CompanyID, req.CompanyName, req.CompanyURL,
		string(model.StatusNew), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert report")
	}

	return &model.ResearchReport{
		ID:          id,
		UserID:      req.UserID,
		PersonID:    req.PersonID,
		PersonName:  req.PersonName,
		CompanyID:   req.CompanyID,
		CompanyName: req.CompanyName,
		CompanyURL:  req.CompanyURL,
		Status:      model.StatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *SQLiteStore) GetReport(ctx context.Context, reportID string) (*model.ResearchReport, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, reportID)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: get report %s", reportID)
		}
		return nil, eris.Wrapf(err, "sqlite: get report %s", reportID)
	}
	return report, nil
}

func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.ResearchReport, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.CompanyID != "" {
		query += ` AND company_id = ?`
		args = append(args, filter.CompanyID)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close()

	var reports []model.ResearchReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		reports = append(reports, *report)
	}
	return reports, eris.Wrap(rows.Err(), "sqlite: list reports")
}

func (s *SQLiteStore) SetReportStatus(ctx context.Context, reportID string, status model.ReportStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = ?, status_before_failure = NULL, failure_reason = '', updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set status %s", reportID)
	}
	return sqlRowsAffected(res, reportID)
}

func (s *SQLiteStore) SetReportProfile(ctx context.Context, reportID, personID, personName, companyID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET person_id = ?, person_name = ?, company_id = ?, status = ?, status_before_failure = NULL, failure_reason = '', updated_at = ? WHERE id = ?`,
		personID, personName, companyID, string(model.StatusProfileFetched), time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set profile %s", reportID)
	}
	return sqlRowsAffected(res, reportID)
}

func (s *SQLiteStore) SetSearchResults(ctx context.Context, reportID string, results []model.SearchResult) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal search results")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET search_results = ?, status = ?, status_before_failure = NULL, failure_reason = '', updated_at = ? WHERE id = ?`,
		string(resultsJSON), string(model.StatusURLsFetched), time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set search results %s", reportID)
	}
	return sqlRowsAffected(res, reportID)
}

func (s *SQLiteStore) SetContentProcessed(ctx context.Context, reportID string, failedSourceIDs []string) error {
	if failedSourceIDs == nil {
		failedSourceIDs = []string{}
	}
	failedJSON, err := json.Marshal(failedSourceIDs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal failed sources")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET failed_source_ids = ?, status = ?, status_before_failure = NULL, failure_reason = '', updated_at = ? WHERE id = ?`,
		string(failedJSON), string(model.StatusContentProcessed), time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set content processed %s", reportID)
	}
	return sqlRowsAffected(res, reportID)
}

func (s *SQLiteStore) SetAggregation(ctx context.Context, reportID string, sections []model.ReportSection, insights model.Insights) error {
	if sections == nil {
		sections = []model.ReportSection{}
	}
	sectionsJSON, err := json.Marshal(sections)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sections")
	}
	insightsJSON, err := json.Marshal(insights)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal insights")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET sections = ?, insights = ?, status = ?, status_before_failure = NULL, failure_reason = '', updated_at = ? WHERE id = ?`,
		string(sectionsJSON), string(insightsJSON), string(model.StatusAggregated), time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set aggregation %s", reportID)
	}
	return sqlRowsAffected(res, reportID)
}

func (s *SQLiteStore) SetTemplate(ctx context.Context, reportID, template, draft string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET selected_template = ?, email_draft = ?, status = ?, status_before_failure = NULL, failure_reason = '', updated_at = ? WHERE id = ?`,
		template, draft, string(model.StatusTemplateSelected), time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set template %s", reportID)
	}
	return sqlRowsAffected(res, reportID)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, reportID string, prior model.ReportStatus, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = ?, status_before_failure = ?, failure_reason = ?, updated_at = ? WHERE id = ?`,
		string(model.StatusFailed), string(prior), reason, time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark failed %s", reportID)
	}
	return sqlRowsAffected(res, reportID)
}

func (s *SQLiteStore) AddReportCost(ctx context.Context, reportID string, usage model.UsageTotals) error {
	if usage.IsZero() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin add cost")
	}
	defer func() { _ = tx.Rollback() }()

	var costJSON string
	if err := tx.QueryRowContext(ctx, `SELECT cost FROM reports WHERE id = ?`, reportID).Scan(&costJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "sqlite: add cost %s", reportID)
		}
		return eris.Wrapf(err, "sqlite: read cost %s", reportID)
	}

	var total model.UsageTotals
	if costJSON != "" {
		if err := json.Unmarshal([]byte(costJSON), &total); err != nil {
			return eris.Wrapf(err, "sqlite: unmarshal cost %s", reportID)
		}
	}
	total.Add(usage)

	newJSON, err := json.Marshal(total)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cost")
	}
	if _, err := tx.ExecContext(ctx, `UPDATE reports SET cost = ?, updated_at = ? WHERE id = ?`,
		string(newJSON), time.Now().UTC(), reportID); err != nil {
		return eris.Wrapf(err, "sqlite: write cost %s", reportID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit add cost")
}

func (s *SQLiteStore) CreateContentRecord(ctx context.Context, rec *model.ContentRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	mentionedJSON, err := json.Marshal(rec.MentionedPeople)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal mentioned people")
	}
	productsJSON, err := json.Marshal(rec.AssociatedProducts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal associated products")
	}
	usageJSON, err := json.Marshal(rec.Usage)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal usage")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO content_records (id, company_id, person_id, source_id, activity_id, kind, category, published_at, summary, focus_on_company, requesting_contact, mentioned_people, associated_products, usage, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CompanyID, rec.PersonID, rec.SourceID, rec.ActivityID, string(rec.Kind),
		rec.Category, rec.PublishedAt, rec.Summary, rec.FocusOnCompany, rec.RequestingContact,
		string(mentionedJSON), string(productsJSON), string(usageJSON), rec.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return eris.Wrapf(ErrDuplicate, "sqlite: content record %s/%s", rec.SourceID, rec.CompanyID)
		}
		return eris.Wrap(err, "sqlite: insert content record")
	}
	return nil
}

func (s *SQLiteStore) HasContentRecord(ctx context.Context, sourceID, companyID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM content_records WHERE source_id = ? AND company_id = ?)`,
		sourceID, companyID,
	).Scan(&exists)
	return exists, eris.Wrap(err, "sqlite: has content record")
}

func (s *SQLiteStore) HasActivityRecord(ctx context.Context, activityID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM content_records WHERE activity_id = ?)`,
		activityID,
	).Scan(&exists)
	return exists, eris.Wrap(err, "sqlite: has activity record")
}

func (s *SQLiteStore) ListContentByCompany(ctx context.Context, companyID string) ([]model.ContentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, person_id, source_id, activity_id, kind, category, published_at, summary, focus_on_company, requesting_contact, mentioned_people, associated_products, usage, created_at
		 FROM content_records WHERE company_id = ? ORDER BY published_at DESC, created_at DESC`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list content")
	}
	defer rows.Close()

	var records []model.ContentRecord
	for rows.Next() {
		var (
			rec           model.ContentRecord
			kind          string
			mentionedJSON sql.NullString
			productsJSON  sql.NullString
			usageJSON     sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.CompanyID, &rec.PersonID, &rec.SourceID, &rec.ActivityID,
			&kind, &rec.Category, &rec.PublishedAt, &rec.Summary, &rec.FocusOnCompany,
			&rec.RequestingContact, &mentionedJSON, &productsJSON, &usageJSON, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan content record")
		}
		rec.Kind = model.SourceKind(kind)
		if err := unmarshalInto([]byte(mentionedJSON.String), &rec.MentionedPeople); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal mentioned people")
		}
		if err := unmarshalInto([]byte(productsJSON.String), &rec.AssociatedProducts); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal associated products")
		}
		if err := unmarshalInto([]byte(usageJSON.String), &rec.Usage); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal usage")
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list content")
}

func sqlRowsAffected(res sql.Result, reportID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	return checkRowsAffected(n, reportID)
}
