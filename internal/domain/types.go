// Package domain defines the record types shared across the ETL stages.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies an account by its role in the P&L statement.
// Use ValidateAccountType to ensure validity before use.
type AccountType string

const (
	AccountTypeRevenue AccountType = "revenue"
	AccountTypeCOGS    AccountType = "cogs"
	AccountTypeExpense AccountType = "expense"
	AccountTypeOther   AccountType = "other"
)

var validAccountTypes = map[AccountType]struct{}{
	AccountTypeRevenue: {}, AccountTypeCOGS: {},
	AccountTypeExpense: {}, AccountTypeOther: {},
}

// ValidateAccountType checks if the account type is valid
func ValidateAccountType(t AccountType) bool {
	_, ok := validAccountTypes[t]
	return ok
}

// RawRecord is a transient, source-specific record emitted by an extractor.
// Period dates are carried as raw strings; the transformer parses them.
// RawRecords are never persisted.
type RawRecord struct {
	AccountName     string
	AccountType     AccountType
	ParentAccount   string
	PeriodStart     string
	PeriodEnd       string
	Amount          decimal.Decimal
	Currency        string
	SourceSystem    string
	SourceAccountID string
	SourceRecordID  string
}

// NormalizedTransaction is the canonical form of a financial transaction,
// ready for dimension resolution and fact loading.
type NormalizedTransaction struct {
	AccountID       string // content-addressed, stable across runs
	AccountName     string
	AccountType     AccountType
	AccountCategory string // standardized; empty means uncategorized
	ParentAccount   string
	SourceSystem    string
	SourceAccountID string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	Amount          decimal.Decimal
	Currency        string
	SourceRecordID  string
}

// NewNormalizedTransaction creates a validated normalized transaction.
// Zero-amount leaves are filtered upstream, so a zero amount here is a bug.
func NewNormalizedTransaction(
	accountID, accountName string,
	accountType AccountType,
	periodStart, periodEnd time.Time,
	amount decimal.Decimal,
	currency string,
) (*NormalizedTransaction, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	if accountName == "" {
		return nil, fmt.Errorf("account name cannot be empty")
	}
	if !ValidateAccountType(accountType) {
		return nil, fmt.Errorf("invalid account type: %s", accountType)
	}
	if periodStart.IsZero() || periodEnd.IsZero() {
		return nil, fmt.Errorf("period dates cannot be zero")
	}
	if periodEnd.Before(periodStart) {
		return nil, fmt.Errorf("period end %s is before period start %s",
			periodEnd.Format("2006-01-02"), periodStart.Format("2006-01-02"))
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("amount cannot be zero")
	}
	if currency == "" {
		currency = "USD"
	}

	return &NormalizedTransaction{
		AccountID:   accountID,
		AccountName: accountName,
		AccountType: accountType,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Amount:      amount,
		Currency:    currency,
	}, nil
}

// FailedRecord captures a record that could not be processed, for the
// per-run CSV export.
type FailedRecord struct {
	SourceSystem  string
	AccountName   string
	AccountType   string
	ParentAccount string
	PeriodStart   string
	PeriodEnd     string
	Amount        string
	Currency      string
	ErrorMessage  string
	ErrorType     string
}

// Failure classifications recorded on FailedRecord.ErrorType.
const (
	FailureTransform = "transform"
	FailureDimension = "dimension"
)

// RunStats summarizes a single pipeline run.
type RunStats struct {
	RunID            string
	Source           string
	RecordsProcessed int
	RecordsFailed    int
	FailedRecordsCSV string // empty when no failures were captured
}

// SourceResult holds the outcome of one source's run within a full-pipeline
// invocation: either stats or an error, never both.
type SourceResult struct {
	Stats *RunStats
	Err   error
}

// FullRunStats aggregates the outcomes of a full-pipeline invocation.
// A failure in one source does not abort the other.
type FullRunStats struct {
	Sources      map[string]SourceResult
	TotalRecords int
	TotalFailed  int
}
