package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-research/internal/db"
	"github.com/sells-group/outreach-research/internal/model"
	"github.com/sells-group/outreach-research/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot ingestion-path operations.
var preparedStatements = map[string]string{
	"has_content":    `SELECT EXISTS (SELECT 1 FROM content_records WHERE source_id = $1 AND company_id = $2)`,
	"has_activity":   `SELECT EXISTS (SELECT 1 FROM content_records WHERE activity_id = $1)`,
	"insert_content": `INSERT INTO content_records (id, company_id, person_id, source_id, activity_id, kind, category, published_at, summary, focus_on_company, requesting_contact, mentioned_people, associated_products, usage, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
	"get_report":     `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`,
	"set_status":     `UPDATE reports SET status = $1, status_before_failure = NULL, failure_reason = '', updated_at = $2 WHERE id = $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
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
	search_results        JSONB,
	failed_source_ids     JSONB,
	sections              JSONB,
	insights              JSONB,
	cost                  JSONB NOT NULL DEFAULT '{}',
	selected_template     TEXT NOT NULL DEFAULT '',
	email_draft           TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
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
	published_at        TIMESTAMPTZ,
	summary             TEXT NOT NULL DEFAULT '',
	focus_on_company    BOOLEAN NOT NULL DEFAULT false,
	requesting_contact  BOOLEAN NOT NULL DEFAULT false,
	mentioned_people    JSONB,
	associated_products JSONB,
	usage               JSONB,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_content_source_company ON content_records(source_id, company_id);
CREATE UNIQUE INDEX IF NOT EXISTS uq_content_activity ON content_records(activity_id) WHERE activity_id <> '';
CREATE INDEX IF NOT EXISTS idx_content_company ON content_records(company_id);
`

const reportColumns = `id, user_id, person_id, person_name, company_id, company_name, company_url, status, status_before_failure, failure_reason, search_results, failed_source_ids, sections, insights, cost, selected_template, email_draft, created_at, updated_at`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateReport(ctx context.Context, req model.ReportRequest) (*model.ResearchReport, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO reports (id, user_id, person_id, person_name, company_id, company_name, company_url, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, req.UserID, req.PersonID, req.PersonName, req.CompanyID, req.CompanyName, req.CompanyURL,
		string(model.StatusNew), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert report")
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

func (s *PostgresStore) GetReport(ctx context.Context, reportID string) (*model.ResearchReport, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, reportID)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: get report %s", reportID)
		}
		return nil, eris.Wrapf(err, "postgres: get report %s", reportID)
	}
	return report, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.ResearchReport, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.CompanyID != "" {
		args = append(args, filter.CompanyID)
		query += fmt.Sprintf(` AND company_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var reports []model.ResearchReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		reports = append(reports, *report)
	}
	return reports, eris.Wrap(rows.Err(), "postgres: list reports")
}

func (s *PostgresStore) SetReportStatus(ctx context.Context, reportID string, status model.ReportStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET status = $1, status_before_failure = NULL, failure_reason = '', updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set status %s", reportID)
	}
	return checkRowsAffected(tag.RowsAffected(), reportID)
}

func (s *PostgresStore) SetReportProfile(ctx context.Context, reportID, personID, personName, companyID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET person_id = $1, person_name = $2, company_id = $3, status = $4, status_before_failure = NULL, failure_reason = '', updated_at = $5 WHERE id = $6`,
		personID, personName, companyID, string(model.StatusProfileFetched), time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set profile %s", reportID)
	}
	return checkRowsAffected(tag.RowsAffected(), reportID)
}

func (s *PostgresStore) SetSearchResults(ctx context.Context, reportID string, results []model.SearchResult) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal search results")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET search_results = $1, status = $2, status_before_failure = NULL, failure_reason = '', updated_at = $3 WHERE id = $4`,
		resultsJSON, string(model.StatusURLsFetched), time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set search results %s", reportID)
	}
	return checkRowsAffected(tag.RowsAffected(), reportID)
}

func (s *PostgresStore) SetContentProcessed(ctx context.Context, reportID string, failedSourceIDs []string) error {
	if failedSourceIDs == nil {
		failedSourceIDs = []string{}
	}
	failedJSON, err := json.Marshal(failedSourceIDs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal failed sources")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET failed_source_ids = $1, status = $2, status_before_failure = NULL, failure_reason = '', updated_at = $3 WHERE id = $4`,
		failedJSON, string(model.StatusContentProcessed), time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set content processed %s", reportID)
	}
	return checkRowsAffected(tag.RowsAffected(), reportID)
}

func (s *PostgresStore) SetAggregation(ctx context.Context, reportID string, sections []model.ReportSection, insights model.Insights) error {
	if sections == nil {
		sections = []model.ReportSection{}
	}
	sectionsJSON, err := json.Marshal(sections)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal sections")
	}
	insightsJSON, err := json.Marshal(insights)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal insights")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET sections = $1, insights = $2, status = $3, status_before_failure = NULL, failure_reason = '', updated_at = $4 WHERE id = $5`,
		sectionsJSON, insightsJSON, string(model.StatusAggregated), time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set aggregation %s", reportID)
	}
	return checkRowsAffected(tag.RowsAffected(), reportID)
}

func (s *PostgresStore) SetTemplate(ctx context.Context, reportID, template, draft string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET selected_template = $1, email_draft = $2, status = $3, status_before_failure = NULL, failure_reason = '', updated_at = $4 WHERE id = $5`,
		template, draft, string(model.StatusTemplateSelected), time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set template %s", reportID)
	}
	return checkRowsAffected(tag.RowsAffected(), reportID)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, reportID string, prior model.ReportStatus, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET status = $1, status_before_failure = $2, failure_reason = $3, updated_at = $4 WHERE id = $5`,
		string(model.StatusFailed), string(prior), reason, time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark failed %s", reportID)
	}
	return checkRowsAffected(tag.RowsAffected(), reportID)
}

// AddReportCost runs a read-increment-write cycle under a row lock.
// Deadlock or serialization conflicts are retried with a fixed delay.
func (s *PostgresStore) AddReportCost(ctx context.Context, reportID string, usage model.UsageTotals) error {
	if usage.IsZero() {
		return nil
	}

	cfg := resilience.Fixed(3, 50*time.Millisecond)
	cfg.ShouldRetry = isTxConflict
	cfg.OnRetry = resilience.RetryLogger("postgres", "add report cost")
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return s.addCostTx(ctx, reportID, usage)
	})
}

func (s *PostgresStore) addCostTx(ctx context.Context, reportID string, usage model.UsageTotals) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin add cost")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var costJSON []byte
	if err := tx.QueryRow(ctx, `SELECT cost FROM reports WHERE id = $1 FOR UPDATE`, reportID).Scan(&costJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "postgres: add cost %s", reportID)
		}
		return eris.Wrapf(err, "postgres: read cost %s", reportID)
	}

	var total model.UsageTotals
	if len(costJSON) > 0 {
		if err := json.Unmarshal(costJSON, &total); err != nil {
			return eris.Wrapf(err, "postgres: unmarshal cost %s", reportID)
		}
	}
	total.Add(usage)

	newJSON, err := json.Marshal(total)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cost")
	}
	if _, err := tx.Exec(ctx, `UPDATE reports SET cost = $1, updated_at = $2 WHERE id = $3`,
		newJSON, time.Now().UTC(), reportID); err != nil {
		return eris.Wrapf(err, "postgres: write cost %s", reportID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit add cost")
}

func (s *PostgresStore) CreateContentRecord(ctx context.Context, rec *model.ContentRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	mentionedJSON, err := json.Marshal(rec.MentionedPeople)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal mentioned people")
	}
	productsJSON, err := json.Marshal(rec.AssociatedProducts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal associated products")
	}
	usageJSON, err := json.Marshal(rec.Usage)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal usage")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO content_records (id, company_id, person_id, source_id, activity_id, kind, category, published_at, summary, focus_on_company, requesting_contact, mentioned_people, associated_products, usage, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.ID, rec.CompanyID, rec.PersonID, rec.SourceID, rec.ActivityID, string(rec.Kind),
		rec.Category, rec.PublishedAt, rec.Summary, rec.FocusOnCompany, rec.RequestingContact,
		mentionedJSON, productsJSON, usageJSON, rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return eris.Wrapf(ErrDuplicate, "postgres: content record %s/%s", rec.SourceID, rec.CompanyID)
		}
		return eris.Wrap(err, "postgres: insert content record")
	}
	return nil
}

func (s *PostgresStore) HasContentRecord(ctx context.Context, sourceID, companyID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM content_records WHERE source_id = $1 AND company_id = $2)`,
		sourceID, companyID,
	).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: has content record")
}

func (s *PostgresStore) HasActivityRecord(ctx context.Context, activityID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM content_records WHERE activity_id = $1)`,
		activityID,
	).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: has activity record")
}

func (s *PostgresStore) ListContentByCompany(ctx context.Context, companyID string) ([]model.ContentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, person_id, source_id, activity_id, kind, category, published_at, summary, focus_on_company, requesting_contact, mentioned_people, associated_products, usage, created_at
		 FROM content_records WHERE company_id = $1 ORDER BY published_at DESC NULLS LAST, created_at DESC`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list content")
	}
	defer rows.Close()

	var records []model.ContentRecord
	for rows.Next() {
		var (
			rec           model.ContentRecord
			kind          string
			mentionedJSON []byte
			productsJSON  []byte
			usageJSON     []byte
		)
		if err := rows.Scan(&rec.ID, &rec.CompanyID, &rec.PersonID, &rec.SourceID, &rec.ActivityID,
			&kind, &rec.Category, &rec.PublishedAt, &rec.Summary, &rec.FocusOnCompany,
			&rec.RequestingContact, &mentionedJSON, &productsJSON, &usageJSON, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan content record")
		}
		rec.Kind = model.SourceKind(kind)
		if err := unmarshalInto(mentionedJSON, &rec.MentionedPeople); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal mentioned people")
		}
		if err := unmarshalInto(productsJSON, &rec.AssociatedProducts); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal associated products")
		}
		if err := unmarshalInto(usageJSON, &rec.Usage); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal usage")
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list content")
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*model.ResearchReport, error) {
	var (
		r             model.ResearchReport
		status        string
		priorStatus   *string
		searchJSON    []byte
		failedJSON    []byte
		sectionsJSON  []byte
		insightsJSON  []byte
		costJSON      []byte
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.PersonID, &r.PersonName, &r.CompanyID, &r.CompanyName,
		&r.CompanyURL, &status, &priorStatus, &r.FailureReason, &searchJSON, &failedJSON,
		&sectionsJSON, &insightsJSON, &costJSON, &r.SelectedTemplate, &r.EmailDraft,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.ReportStatus(status)
	if priorStatus != nil {
		prior := model.ReportStatus(*priorStatus)
		r.StatusBeforeFailure = &prior
	}
	if err := unmarshalInto(searchJSON, &r.SearchResults); err != nil {
		return nil, err
	}
	if err := unmarshalInto(failedJSON, &r.FailedSourceIDs); err != nil {
		return nil, err
	}
	if err := unmarshalInto(sectionsJSON, &r.Sections); err != nil {
		return nil, err
	}
	if len(insightsJSON) > 0 && string(insightsJSON) != "null" {
		r.Insights = &model.Insights{}
		if err := json.Unmarshal(insightsJSON, r.Insights); err != nil {
			return nil, err
		}
	}
	if err := unmarshalInto(costJSON, &r.Cost); err != nil {
		return nil, err
	}
	return &r, nil
}

func unmarshalInto(data []byte, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

func checkRowsAffected(n int64, reportID string) error {
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "report %s", reportID)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isTxConflict reports whether the error is a deadlock or serialization
// failure that a fresh transaction attempt can resolve.
func isTxConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

