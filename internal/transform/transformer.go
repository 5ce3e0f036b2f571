// Package transform normalizes raw extracted records into canonical
// transactions: stable content-addressed account IDs, parsed period dates,
// standardized categories.
package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/finetl/internal/category"
	"github.com/rumor-ml/commons.systems/finetl/internal/domain"
)

// AccountID derives a stable identifier for an account from its name, type,
// and source system. The same account yields the same ID on every run, so
// repeated loads upsert instead of duplicating dimension rows.
func AccountID(accountName string, accountType domain.AccountType, sourceSystem string) string {
	key := strings.ToLower(fmt.Sprintf("%s:%s:%s", sourceSystem, accountType, accountName))
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// ParseDate parses a period date. Timestamps are accepted by discarding
// everything from the first 'T'; only the date part is significant for
// reporting periods.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if idx := strings.IndexByte(s, 'T'); idx >= 0 {
		s = s[:idx]
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q: %w", s, err)
	}
	return t, nil
}

// RecordError is a per-record transform failure. The pipeline captures these
// as failed records and continues; they never abort a run.
type RecordError struct {
	AccountName string
	Field       string
	Err         error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %q: bad %s: %v", e.AccountName, e.Field, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Transformer normalizes raw records using the given category mapper.
type Transformer struct {
	mapper *category.Mapper
}

// NewTransformer creates a transformer backed by the given mapper.
func NewTransformer(mapper *category.Mapper) (*Transformer, error) {
	if mapper == nil {
		return nil, fmt.Errorf("category mapper is required")
	}
	return &Transformer{mapper: mapper}, nil
}

// Transform converts one raw record into a normalized transaction. Date
// failures come back as *RecordError; everything else indicates an extractor
// bug and fails loudly through the constructor validation.
func (t *Transformer) Transform(raw domain.RawRecord) (*domain.NormalizedTransaction, error) {
	accountName := strings.TrimSpace(raw.AccountName)
	accountType := raw.AccountType
	if accountType == "" {
		accountType = domain.AccountTypeOther
	}

	periodStart, err := ParseDate(raw.PeriodStart)
	if err != nil {
		return nil, &RecordError{AccountName: accountName, Field: "period_start", Err: err}
	}
	periodEnd, err := ParseDate(raw.PeriodEnd)
	if err != nil {
		return nil, &RecordError{AccountName: accountName, Field: "period_end", Err: err}
	}

	accountID := AccountID(accountName, accountType, raw.SourceSystem)

	txn, err := domain.NewNormalizedTransaction(
		accountID, accountName, accountType,
		periodStart, periodEnd, raw.Amount, raw.Currency,
	)
	if err != nil {
		return nil, &RecordError{AccountName: accountName, Field: "record", Err: err}
	}

	txn.AccountCategory = t.mapper.Map(accountName, accountType, raw.ParentAccount)
	txn.ParentAccount = raw.ParentAccount
	txn.SourceSystem = raw.SourceSystem
	txn.SourceAccountID = raw.SourceAccountID
	txn.SourceRecordID = raw.SourceRecordID
	return txn, nil
}
