package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// FactRow is one resolved fact, all dimensions already translated to
// surrogate keys.
type FactRow struct {
	AccountKey     int64
	PeriodStartKey int
	PeriodEndKey   int
	SourceKey      int64
	Amount         decimal.Decimal
	Currency       string
	Year           int
	Quarter        int
	Month          int
	YearQuarter    string
	SourceRecordID string
}

// InsertFacts bulk-inserts a batch of fact rows in one transaction and
// returns the number inserted. The batch is all-or-nothing: a failed insert
// rolls back the whole batch and the error is fatal to the run.
func (db *DB) InsertFacts(ctx context.Context, rows []FactRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin fact insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fact_financials
			(account_key, period_start_key, period_end_key, source_key,
			 amount, currency, year, quarter, month, year_quarter, source_record_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare fact insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.AccountKey,
			row.PeriodStartKey,
			row.PeriodEndKey,
			row.SourceKey,
			row.Amount.String(),
			row.Currency,
			row.Year,
			row.Quarter,
			row.Month,
			row.YearQuarter,
			nullable(row.SourceRecordID),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert fact for account_key %d: %w", row.AccountKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit fact batch: %w", err)
	}
	return len(rows), nil
}
