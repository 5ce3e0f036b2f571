package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// AccountRow is the natural-keyed input for an account dimension upsert.
type AccountRow struct {
	AccountID       string
	AccountName     string
	AccountType     string
	AccountCategory string
	ParentAccount   string
	IsParent        bool
	SourceSystem    string
	SourceAccountID string
}

// DimensionLoader resolves natural keys to surrogate keys, caching lookups
// for the duration of one pipeline run. Loaders are not shared across runs:
// a fresh instance per run keeps cache lifetime equal to run lifetime.
type DimensionLoader struct {
	db           *sql.DB
	logger       zerolog.Logger
	accountCache map[string]int64
	sourceCache  map[string]int64
}

// NewDimensionLoader creates a loader with empty caches.
func NewDimensionLoader(db *DB, logger zerolog.Logger) *DimensionLoader {
	return &DimensionLoader{
		db:           db.sql,
		logger:       logger,
		accountCache: make(map[string]int64),
		sourceCache:  make(map[string]int64),
	}
}

// DateKey converts a date to its YYYYMMDD dimension key. Pure computation,
// no lookup: the key encodes the date itself.
func DateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// LoadDateDimension populates dim_date with one row per day in [start, end].
// Existing rows are left untouched, so widening the range later is safe.
func (l *DimensionLoader) LoadDateDimension(ctx context.Context, start, end time.Time) error {
	l.logger.Info().
		Str("start", start.Format("2006-01-02")).
		Str("end", end.Format("2006-01-02")).
		Msg("date dimension loading")

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin date dimension load: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO dim_date
			(date_key, date, year, quarter, month, month_name, year_quarter, year_month)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare date insert: %w", err)
	}
	defer stmt.Close()

	count := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		quarter := (int(d.Month())-1)/3 + 1
		_, err := stmt.ExecContext(ctx,
			DateKey(d),
			d.Format("2006-01-02"),
			d.Year(),
			quarter,
			int(d.Month()),
			d.Month().String(),
			fmt.Sprintf("%d-Q%d", d.Year(), quarter),
			d.Format("2006-01"),
		)
		if err != nil {
			return fmt.Errorf("failed to insert date %s: %w", d.Format("2006-01-02"), err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit date dimension load: %w", err)
	}
	l.logger.Info().Int("days", count).Msg("date dimension loaded")
	return nil
}

// UpsertAccount inserts or updates the account dimension row and returns its
// surrogate key. The first ID hit per run goes to the database; repeats are
// served from the cache.
func (l *DimensionLoader) UpsertAccount(ctx context.Context, row AccountRow) (int64, error) {
	if key, ok := l.accountCache[row.AccountID]; ok {
		return key, nil
	}

	var key int64
	err := l.db.QueryRowContext(ctx, `
		INSERT INTO dim_account
			(account_id, account_name, account_type, account_category,
			 parent_account_name, is_parent, source_system, source_account_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			account_name        = excluded.account_name,
			account_type        = excluded.account_type,
			account_category    = excluded.account_category,
			parent_account_name = excluded.parent_account_name,
			is_parent           = excluded.is_parent,
			updated_at          = datetime('now')
		RETURNING account_key`,
		row.AccountID,
		row.AccountName,
		row.AccountType,
		nullable(row.AccountCategory),
		nullable(row.ParentAccount),
		row.IsParent,
		row.SourceSystem,
		nullable(row.SourceAccountID),
	).Scan(&key)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert account %q: %w", row.AccountName, err)
	}

	l.accountCache[row.AccountID] = key
	return key, nil
}

// GetOrCreateSource resolves a source system name to its surrogate key,
// creating the row on first sight. Select-then-insert is fine here: the
// table holds a handful of rows and the pipeline is the only writer.
func (l *DimensionLoader) GetOrCreateSource(ctx context.Context, name, description string) (int64, error) {
	if key, ok := l.sourceCache[name]; ok {
		return key, nil
	}

	var key int64
	err := l.db.QueryRowContext(ctx,
		`SELECT source_key FROM dim_source WHERE source_name = ?`, name).Scan(&key)
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		err = l.db.QueryRowContext(ctx, `
			INSERT INTO dim_source (source_name, source_description)
			VALUES (?, ?)
			RETURNING source_key`,
			name, nullable(description)).Scan(&key)
		if err != nil {
			return 0, fmt.Errorf("failed to create source %q: %w", name, err)
		}
	default:
		return 0, fmt.Errorf("failed to look up source %q: %w", name, err)
	}

	l.sourceCache[name] = key
	return key, nil
}

// nullable maps empty strings to NULL for optional columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
