package store

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory(zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Init(context.Background()))
	return db
}

func date(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestInitIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Init(context.Background()))
}

func TestDateKey(t *testing.T) {
	assert.Equal(t, 20240131, DateKey(date("2024-01-31")))
	assert.Equal(t, 20201205, DateKey(date("2020-12-05")))
}

func TestLoadDateDimension(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	loader := NewDimensionLoader(db, zerolog.Nop())

	require.NoError(t, loader.LoadDateDimension(ctx, date("2024-01-30"), date("2024-02-02")))

	var count int
	require.NoError(t, db.SQL().QueryRow(`SELECT COUNT(*) FROM dim_date`).Scan(&count))
	assert.Equal(t, 4, count)

	var monthName, yearQuarter, yearMonth string
	require.NoError(t, db.SQL().QueryRow(`
		SELECT month_name, year_quarter, year_month FROM dim_date WHERE date_key = 20240201`).
		Scan(&monthName, &yearQuarter, &yearMonth))
	assert.Equal(t, "February", monthName)
	assert.Equal(t, "2024-Q1", yearQuarter)
	assert.Equal(t, "2024-02", yearMonth)

	// Reloading an overlapping range must not duplicate or fail.
	require.NoError(t, loader.LoadDateDimension(ctx, date("2024-02-01"), date("2024-02-03")))
	require.NoError(t, db.SQL().QueryRow(`SELECT COUNT(*) FROM dim_date`).Scan(&count))
	assert.Equal(t, 5, count)
}

func TestUpsertAccountStableKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	row := AccountRow{
		AccountID:       "abc123",
		AccountName:     "Product Sales",
		AccountType:     "revenue",
		AccountCategory: "Revenue",
		SourceSystem:    "quickbooks",
	}

	loader := NewDimensionLoader(db, zerolog.Nop())
	key1, err := loader.UpsertAccount(ctx, row)
	require.NoError(t, err)

	// A fresh loader (fresh run, empty cache) re-upserting the same account
	// gets the same surrogate key even when attributes changed.
	row.AccountName = "Product Sales (renamed)"
	loader2 := NewDimensionLoader(db, zerolog.Nop())
	key2, err := loader2.UpsertAccount(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, key1, key2)

	var name string
	var count int
	require.NoError(t, db.SQL().QueryRow(
		`SELECT account_name FROM dim_account WHERE account_key = ?`, key1).Scan(&name))
	assert.Equal(t, "Product Sales (renamed)", name)
	require.NoError(t, db.SQL().QueryRow(`SELECT COUNT(*) FROM dim_account`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestUpsertAccountCacheHit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	loader := NewDimensionLoader(db, zerolog.Nop())

	row := AccountRow{AccountID: "x", AccountName: "Rent", AccountType: "expense", SourceSystem: "rootfi"}
	key1, err := loader.UpsertAccount(ctx, row)
	require.NoError(t, err)
	key2, err := loader.UpsertAccount(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, key1, key2)
}

func TestGetOrCreateSource(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	loader := NewDimensionLoader(db, zerolog.Nop())

	key1, err := loader.GetOrCreateSource(ctx, "quickbooks", "Quickbooks Data Source")
	require.NoError(t, err)
	key2, err := loader.GetOrCreateSource(ctx, "quickbooks", "Quickbooks Data Source")
	require.NoError(t, err)
	assert.Equal(t, key1, key2)

	other, err := loader.GetOrCreateSource(ctx, "rootfi", "Rootfi Data Source")
	require.NoError(t, err)
	assert.NotEqual(t, key1, other)

	// A fresh loader finds the existing row instead of creating another.
	loader2 := NewDimensionLoader(db, zerolog.Nop())
	key3, err := loader2.GetOrCreateSource(ctx, "quickbooks", "")
	require.NoError(t, err)
	assert.Equal(t, key1, key3)
}

func insertFixtureFacts(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	loader := NewDimensionLoader(db, zerolog.Nop())
	require.NoError(t, loader.LoadDateDimension(ctx, date("2024-01-01"), date("2024-03-31")))

	sourceKey, err := loader.GetOrCreateSource(ctx, "quickbooks", "Quickbooks Data Source")
	require.NoError(t, err)

	revKey, err := loader.UpsertAccount(ctx, AccountRow{
		AccountID: "rev1", AccountName: "Product Sales", AccountType: "revenue",
		AccountCategory: "Revenue", SourceSystem: "quickbooks",
	})
	require.NoError(t, err)
	expKey, err := loader.UpsertAccount(ctx, AccountRow{
		AccountID: "exp1", AccountName: "Office Rent", AccountType: "expense",
		AccountCategory: "Facilities & Operations", SourceSystem: "quickbooks",
	})
	require.NoError(t, err)

	rows := []FactRow{
		{AccountKey: revKey, PeriodStartKey: 20240101, PeriodEndKey: 20240131, SourceKey: sourceKey,
			Amount: decimal.NewFromInt(1000), Currency: "USD", Year: 2024, Quarter: 1, Month: 1, YearQuarter: "2024-Q1"},
		{AccountKey: revKey, PeriodStartKey: 20240201, PeriodEndKey: 20240229, SourceKey: sourceKey,
			Amount: decimal.NewFromInt(2000), Currency: "USD", Year: 2024, Quarter: 1, Month: 2, YearQuarter: "2024-Q1"},
		{AccountKey: expKey, PeriodStartKey: 20240101, PeriodEndKey: 20240131, SourceKey: sourceKey,
			Amount: decimal.NewFromInt(700), Currency: "USD", Year: 2024, Quarter: 1, Month: 1, YearQuarter: "2024-Q1"},
	}
	n, err := db.InsertFacts(ctx, rows)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestInsertFactsAndProfitLossView(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateViews(context.Background()))
	insertFixtureFacts(t, db)

	var revenue, expenses, netProfit float64
	require.NoError(t, db.SQL().QueryRow(`
		SELECT revenue, expenses, net_profit FROM v_profit_loss WHERE year_quarter = '2024-Q1'`).
		Scan(&revenue, &expenses, &netProfit))
	assert.Equal(t, 3000.0, revenue)
	assert.Equal(t, 700.0, expenses)
	assert.Equal(t, 2300.0, netProfit)
}

func TestWideViewJoinsAllDimensions(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateViews(context.Background()))
	insertFixtureFacts(t, db)

	rows, err := db.SQL().Query(`
		SELECT account_name, account_category, period_start, source_system, amount
		FROM v_financials_wide ORDER BY period_start, account_name`)
	require.NoError(t, err)
	defer rows.Close()

	type wide struct {
		name, category, start, source string
		amount                        float64
	}
	var got []wide
	for rows.Next() {
		var w wide
		require.NoError(t, rows.Scan(&w.name, &w.category, &w.start, &w.source, &w.amount))
		got = append(got, w)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 3)
	assert.Equal(t, wide{"Office Rent", "Facilities & Operations", "2024-01-01", "quickbooks", 700}, got[0])
}

func TestCreateViewsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.CreateViews(ctx))
	require.NoError(t, db.CreateViews(ctx))
	assert.Len(t, ViewNames(), 8)
}

func TestTrendAnalysisView(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateViews(context.Background()))
	insertFixtureFacts(t, db)

	var momChange float64
	require.NoError(t, db.SQL().QueryRow(`
		SELECT mom_change FROM v_trend_analysis
		WHERE account_type = 'revenue' AND year_month = '2024-02'`).
		Scan(&momChange))
	assert.Equal(t, 1000.0, momChange)
}

func TestInsertFactsEmptyBatch(t *testing.T) {
	db := newTestDB(t)
	n, err := db.InsertFacts(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.StartRun(ctx, "run-1", "quickbooks"))
	rec, err := db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusStarted, rec.Status)

	require.NoError(t, db.CompleteRun(ctx, "run-1", 120, 3))
	rec, err = db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, rec.Status)
	assert.Equal(t, 120, rec.RecordsProcessed)
	assert.Equal(t, 3, rec.RecordsFailed)

	require.NoError(t, db.StartRun(ctx, "run-2", "rootfi"))
	require.NoError(t, db.FailRun(ctx, "run-2", "source file missing"))
	rec, err = db.GetRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, rec.Status)
	assert.Equal(t, "source file missing", rec.ErrorMessage)
}
