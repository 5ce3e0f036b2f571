// Package store owns the relational star schema: dimension tables, the fact
// table, derived reporting views, and pipeline run bookkeeping.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// DB wraps the sqlite handle with schema management.
type DB struct {
	sql    *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the database at path.
func Open(path string, logger zerolog.Logger) (*DB, error) {
	return open(path, logger)
}

// OpenMemory opens an in-memory database, used by tests.
func OpenMemory(logger zerolog.Logger) (*DB, error) {
	return open(":memory:", logger)
}

func open(dsn string, logger zerolog.Logger) (*DB, error) {
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dsn, err)
	}
	// Single writer. The pipeline is sequential and an in-memory database
	// exists per connection, so one connection serves both cases.
	handle.SetMaxOpenConns(1)
	if _, err := handle.Exec("PRAGMA foreign_keys = ON"); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return &DB{sql: handle, logger: logger}, nil
}

// SQL exposes the underlying handle for loaders and queries.
func (db *DB) SQL() *sql.DB { return db.sql }

// Close closes the database handle.
func (db *DB) Close() error { return db.sql.Close() }

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS dim_account (
		account_key         INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id          TEXT    NOT NULL UNIQUE,
		account_name        TEXT    NOT NULL,
		account_type        TEXT    NOT NULL,
		account_category    TEXT,
		parent_account_name TEXT,
		is_parent           INTEGER NOT NULL DEFAULT 0,
		source_system       TEXT    NOT NULL,
		source_account_id   TEXT,
		created_at          TEXT    NOT NULL DEFAULT (datetime('now')),
		updated_at          TEXT    NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_account_type_category ON dim_account(account_type, account_category)`,
	`CREATE INDEX IF NOT EXISTS idx_account_name_search ON dim_account(account_name)`,
	`CREATE INDEX IF NOT EXISTS idx_account_source ON dim_account(source_system)`,

	`CREATE TABLE IF NOT EXISTS dim_date (
		date_key     INTEGER PRIMARY KEY,
		date         TEXT    NOT NULL UNIQUE,
		year         INTEGER NOT NULL,
		quarter      INTEGER NOT NULL,
		month        INTEGER NOT NULL,
		month_name   TEXT    NOT NULL,
		year_quarter TEXT    NOT NULL,
		year_month   TEXT    NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_date_year_quarter ON dim_date(year, quarter)`,
	`CREATE INDEX IF NOT EXISTS idx_date_year_month ON dim_date(year, month)`,

	`CREATE TABLE IF NOT EXISTS dim_source (
		source_key         INTEGER PRIMARY KEY AUTOINCREMENT,
		source_name        TEXT    NOT NULL UNIQUE,
		source_description TEXT,
		created_at         TEXT    NOT NULL DEFAULT (datetime('now')),
		updated_at         TEXT    NOT NULL DEFAULT (datetime('now'))
	)`,

	`CREATE TABLE IF NOT EXISTS fact_financials (
		fact_key         INTEGER PRIMARY KEY AUTOINCREMENT,
		account_key      INTEGER NOT NULL REFERENCES dim_account(account_key) ON DELETE CASCADE,
		period_start_key INTEGER NOT NULL REFERENCES dim_date(date_key) ON DELETE CASCADE,
		period_end_key   INTEGER NOT NULL REFERENCES dim_date(date_key) ON DELETE CASCADE,
		source_key       INTEGER NOT NULL REFERENCES dim_source(source_key) ON DELETE CASCADE,
		amount           NUMERIC NOT NULL,
		currency         TEXT    NOT NULL DEFAULT 'USD',
		year             INTEGER NOT NULL,
		quarter          INTEGER NOT NULL,
		month            INTEGER NOT NULL,
		year_quarter     TEXT    NOT NULL,
		source_record_id TEXT,
		created_at       TEXT    NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fact_account ON fact_financials(account_key)`,
	`CREATE INDEX IF NOT EXISTS idx_fact_source ON fact_financials(source_key)`,
	`CREATE INDEX IF NOT EXISTS idx_year_quarter_account ON fact_financials(year_quarter, account_key)`,
	`CREATE INDEX IF NOT EXISTS idx_period_account ON fact_financials(period_start_key, period_end_key, account_key)`,
	`CREATE INDEX IF NOT EXISTS idx_time_series ON fact_financials(year, quarter, month, account_key, amount)`,

	`CREATE TABLE IF NOT EXISTS pipeline_runs (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id            TEXT    NOT NULL UNIQUE,
		source_system     TEXT    NOT NULL,
		status            TEXT    NOT NULL,
		records_processed INTEGER NOT NULL DEFAULT 0,
		records_failed    INTEGER NOT NULL DEFAULT 0,
		error_message     TEXT,
		started_at        TEXT    NOT NULL,
		completed_at      TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_run_status ON pipeline_runs(status, source_system)`,
}

// Init creates the star schema tables and their indexes. Idempotent.
func (db *DB) Init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	db.logger.Info().Msg("schema created")
	return nil
}

// reportingViews are the derived read models, keyed by name in creation
// order. Each is dropped and recreated so definition changes take effect on
// re-init.
var reportingViews = []struct {
	name string
	body string
}{
	{"v_monthly_summary", `
		SELECT
			d.year, d.quarter, d.month, d.year_month, d.year_quarter, d.month_name,
			a.account_type,
			COUNT(DISTINCT f.account_key) AS account_count,
			SUM(f.amount) AS total_amount,
			AVG(f.amount) AS avg_amount,
			MIN(f.amount) AS min_amount,
			MAX(f.amount) AS max_amount
		FROM fact_financials f
		JOIN dim_account a ON f.account_key = a.account_key
		JOIN dim_date d ON f.period_start_key = d.date_key
		GROUP BY d.year, d.quarter, d.month, d.year_month, d.year_quarter, d.month_name, a.account_type`},

	{"v_category_performance", `
		SELECT
			a.account_category, a.account_type,
			f.year, f.quarter, f.year_quarter,
			COUNT(DISTINCT f.account_key) AS account_count,
			COUNT(*) AS transaction_count,
			SUM(f.amount) AS total_amount,
			AVG(f.amount) AS avg_amount,
			MIN(f.amount) AS min_amount,
			MAX(f.amount) AS max_amount
		FROM fact_financials f
		JOIN dim_account a ON f.account_key = a.account_key
		WHERE a.account_category IS NOT NULL
		GROUP BY a.account_category, a.account_type, f.year, f.quarter, f.year_quarter`},

	{"v_profit_loss", `
		SELECT
			f.year, f.quarter, f.year_quarter,
			SUM(CASE WHEN a.account_type = 'revenue' THEN f.amount ELSE 0 END) AS revenue,
			SUM(CASE WHEN a.account_type = 'cogs' THEN f.amount ELSE 0 END) AS cogs,
			SUM(CASE WHEN a.account_type = 'expense' THEN f.amount ELSE 0 END) AS expenses,
			SUM(CASE WHEN a.account_type = 'revenue' THEN f.amount ELSE 0 END) -
			SUM(CASE WHEN a.account_type = 'cogs' THEN f.amount ELSE 0 END) AS gross_profit,
			SUM(CASE WHEN a.account_type = 'revenue' THEN f.amount ELSE 0 END) -
			SUM(CASE WHEN a.account_type IN ('cogs', 'expense') THEN f.amount ELSE 0 END) AS net_profit,
			ROUND(
				(SUM(CASE WHEN a.account_type = 'revenue' THEN f.amount ELSE 0 END) -
				 SUM(CASE WHEN a.account_type IN ('cogs', 'expense') THEN f.amount ELSE 0 END)) * 100.0 /
				NULLIF(SUM(CASE WHEN a.account_type = 'revenue' THEN f.amount ELSE 0 END), 0),
				2
			) AS profit_margin_percent
		FROM fact_financials f
		JOIN dim_account a ON f.account_key = a.account_key
		GROUP BY f.year, f.quarter, f.year_quarter
		ORDER BY f.year, f.quarter`},

	{"v_yoy_growth", `
		WITH yearly_totals AS (
			SELECT
				a.account_category, a.account_type, f.year,
				SUM(f.amount) AS year_total
			FROM fact_financials f
			JOIN dim_account a ON f.account_key = a.account_key
			WHERE a.account_category IS NOT NULL
			GROUP BY a.account_category, a.account_type, f.year
		)
		SELECT
			curr.account_category, curr.account_type,
			curr.year AS current_year,
			curr.year_total AS current_amount,
			prev.year_total AS previous_amount,
			curr.year_total - COALESCE(prev.year_total, 0) AS absolute_growth,
			ROUND(
				(curr.year_total - COALESCE(prev.year_total, 0)) * 100.0 /
				NULLIF(prev.year_total, 0),
				2
			) AS growth_percent
		FROM yearly_totals curr
		LEFT JOIN yearly_totals prev
			ON curr.account_category = prev.account_category
			AND curr.account_type = prev.account_type
			AND curr.year = prev.year + 1
		WHERE prev.year_total IS NOT NULL OR curr.year > (SELECT MIN(year) FROM yearly_totals)
		ORDER BY curr.year DESC, absolute_growth DESC`},

	{"v_top_accounts_yearly", `
		SELECT
			a.account_name, a.account_type, a.account_category, f.year,
			COUNT(*) AS transaction_count,
			SUM(f.amount) AS total_amount,
			AVG(f.amount) AS avg_amount,
			ROW_NUMBER() OVER (
				PARTITION BY a.account_type, f.year
				ORDER BY SUM(f.amount) DESC
			) AS rank_in_type_year
		FROM fact_financials f
		JOIN dim_account a ON f.account_key = a.account_key
		GROUP BY a.account_name, a.account_type, a.account_category, f.year`},

	{"v_top_accounts_quarterly", `
		SELECT
			a.account_name, a.account_type, a.account_category,
			f.year, f.quarter, f.year_quarter,
			COUNT(*) AS transaction_count,
			SUM(f.amount) AS total_amount,
			AVG(f.amount) AS avg_amount,
			ROW_NUMBER() OVER (
				PARTITION BY a.account_type, f.year_quarter
				ORDER BY SUM(f.amount) DESC
			) AS rank_in_quarter
		FROM fact_financials f
		JOIN dim_account a ON f.account_key = a.account_key
		GROUP BY a.account_name, a.account_type, a.account_category, f.year, f.quarter, f.year_quarter`},

	{"v_trend_analysis", `
		WITH monthly_data AS (
			SELECT
				a.account_type, f.year, f.month,
				printf('%04d-%02d', f.year, f.month) AS year_month,
				SUM(f.amount) AS month_total
			FROM fact_financials f
			JOIN dim_account a ON f.account_key = a.account_key
			GROUP BY a.account_type, f.year, f.month
		)
		SELECT
			account_type, year, month, year_month, month_total,
			LAG(month_total, 1) OVER w AS prev_month_total,
			month_total - LAG(month_total, 1) OVER w AS mom_change,
			ROUND(
				(month_total - LAG(month_total, 1) OVER w) * 100.0 /
				NULLIF(LAG(month_total, 1) OVER w, 0),
				2
			) AS mom_change_percent
		FROM monthly_data
		WINDOW w AS (PARTITION BY account_type ORDER BY year, month)
		ORDER BY account_type, year, month`},

	{"v_financials_wide", `
		SELECT
			f.fact_key,
			a.account_name, a.account_type, a.account_category, a.parent_account_name,
			f.amount, f.currency,
			f.year, f.quarter, f.month, f.year_quarter,
			d_start.date AS period_start,
			d_end.date AS period_end,
			d_start.month_name,
			d_start.year_month,
			s.source_name AS source_system,
			f.source_record_id
		FROM fact_financials f
		JOIN dim_account a ON f.account_key = a.account_key
		JOIN dim_date d_start ON f.period_start_key = d_start.date_key
		JOIN dim_date d_end ON f.period_end_key = d_end.date_key
		JOIN dim_source s ON f.source_key = s.source_key
		ORDER BY period_start DESC, account_name`},
}

// CreateViews (re)creates the derived reporting views on top of the star
// schema, including the wide denormalized view that answers most ad-hoc
// questions without joins.
func (db *DB) CreateViews(ctx context.Context) error {
	for _, v := range reportingViews {
		if _, err := db.sql.ExecContext(ctx, "DROP VIEW IF EXISTS "+v.name); err != nil {
			return fmt.Errorf("failed to drop view %s: %w", v.name, err)
		}
		if _, err := db.sql.ExecContext(ctx, "CREATE VIEW "+v.name+" AS"+v.body); err != nil {
			return fmt.Errorf("failed to create view %s: %w", v.name, err)
		}
	}
	db.logger.Info().Int("views", len(reportingViews)).Msg("reporting views created")
	return nil
}

// ViewNames lists the reporting views in creation order.
func ViewNames() []string {
	names := make([]string, len(reportingViews))
	for i, v := range reportingViews {
		names[i] = v.name
	}
	return names
}
