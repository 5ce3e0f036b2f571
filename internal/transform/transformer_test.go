package transform

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/finetl/internal/category"
	"github.com/rumor-ml/commons.systems/finetl/internal/domain"
)

func TestAccountIDDeterministic(t *testing.T) {
	a := AccountID("Product Sales", domain.AccountTypeRevenue, "quickbooks")
	b := AccountID("Product Sales", domain.AccountTypeRevenue, "quickbooks")
	if a != b {
		t.Errorf("same inputs produced %q and %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("AccountID length = %d, want 16", len(a))
	}

	// Case-insensitive by construction.
	if AccountID("PRODUCT SALES", domain.AccountTypeRevenue, "QuickBooks") != a {
		t.Error("AccountID is case sensitive")
	}
}

func TestAccountIDDistinguishesInputs(t *testing.T) {
	base := AccountID("Product Sales", domain.AccountTypeRevenue, "quickbooks")
	variants := []string{
		AccountID("Product Sale", domain.AccountTypeRevenue, "quickbooks"),
		AccountID("Product Sales", domain.AccountTypeExpense, "quickbooks"),
		AccountID("Product Sales", domain.AccountTypeRevenue, "rootfi"),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collided with base ID", i)
		}
	}
}

func TestAccountIDNoCollisionsAcrossCorpus(t *testing.T) {
	seen := make(map[string]string)
	for i := 0; i < 200; i++ {
		name := fmt.Sprintf("Account %03d - Operating", i)
		id := AccountID(name, domain.AccountTypeExpense, "quickbooks")
		if prev, dup := seen[id]; dup {
			t.Fatalf("ID %s shared by %q and %q", id, prev, name)
		}
		seen[id] = name
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2024-01-31", "2024-01-31", false},
		{"2024-01-31T00:00:00", "2024-01-31", false},
		{"2024-01-31T15:04:05.000Z", "2024-01-31", false},
		{" 2024-01-31 ", "2024-01-31", false},
		{"", "", true},
		{"31/01/2024", "", true},
		{"2024-13-01", "", true},
		{"not a date", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDate(%q) expected error, got %v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDate(%q) error = %v", tt.in, err)
			continue
		}
		if got.Format("2006-01-02") != tt.want {
			t.Errorf("ParseDate(%q) = %s, want %s", tt.in, got.Format("2006-01-02"), tt.want)
		}
		if got.Location() != time.UTC {
			t.Errorf("ParseDate(%q) location = %v, want UTC", tt.in, got.Location())
		}
	}
}

func newTestTransformer(t *testing.T) *Transformer {
	t.Helper()
	mapper, err := category.NewMapper()
	if err != nil {
		t.Fatalf("NewMapper() error = %v", err)
	}
	tr, err := NewTransformer(mapper)
	if err != nil {
		t.Fatalf("NewTransformer() error = %v", err)
	}
	return tr
}

func TestTransform(t *testing.T) {
	tr := newTestTransformer(t)

	raw := domain.RawRecord{
		AccountName:     "  Office Rent Expense ",
		AccountType:     domain.AccountTypeExpense,
		ParentAccount:   "Operating Expenses",
		PeriodStart:     "2024-01-01",
		PeriodEnd:       "2024-01-31",
		Amount:          decimal.NewFromInt(2500),
		Currency:        "USD",
		SourceSystem:    "quickbooks",
		SourceAccountID: "acct-9",
		SourceRecordID:  "rec-1",
	}

	txn, err := tr.Transform(raw)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if txn.AccountName != "Office Rent Expense" {
		t.Errorf("AccountName = %q, want trimmed", txn.AccountName)
	}
	if txn.AccountCategory != "Facilities & Operations" {
		t.Errorf("AccountCategory = %q, want Facilities & Operations", txn.AccountCategory)
	}
	if txn.AccountID != AccountID("Office Rent Expense", domain.AccountTypeExpense, "quickbooks") {
		t.Error("AccountID not derived from trimmed name")
	}
	if txn.PeriodStart.Format("2006-01-02") != "2024-01-01" {
		t.Errorf("PeriodStart = %v", txn.PeriodStart)
	}
	if txn.ParentAccount != "Operating Expenses" || txn.SourceAccountID != "acct-9" || txn.SourceRecordID != "rec-1" {
		t.Error("provenance fields not carried through")
	}
}

func TestTransformBadDatesReturnRecordError(t *testing.T) {
	tr := newTestTransformer(t)

	tests := []struct {
		name      string
		start     string
		end       string
		wantField string
	}{
		{"empty start", "", "2024-01-31", "period_start"},
		{"garbage start", "Jan 2024", "2024-01-31", "period_start"},
		{"empty end", "2024-01-01", "", "period_end"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := domain.RawRecord{
				AccountName:  "Rent",
				AccountType:  domain.AccountTypeExpense,
				PeriodStart:  tt.start,
				PeriodEnd:    tt.end,
				Amount:       decimal.NewFromInt(1),
				SourceSystem: "quickbooks",
			}
			_, err := tr.Transform(raw)
			var rerr *RecordError
			if !errors.As(err, &rerr) {
				t.Fatalf("Transform() error = %v, want *RecordError", err)
			}
			if rerr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", rerr.Field, tt.wantField)
			}
		})
	}
}

func TestTransformInvertedPeriodRejected(t *testing.T) {
	tr := newTestTransformer(t)
	raw := domain.RawRecord{
		AccountName:  "Rent",
		AccountType:  domain.AccountTypeExpense,
		PeriodStart:  "2024-02-01",
		PeriodEnd:    "2024-01-01",
		Amount:       decimal.NewFromInt(1),
		SourceSystem: "quickbooks",
	}
	if _, err := tr.Transform(raw); err == nil {
		t.Error("Transform() expected error for inverted period")
	}
}

func TestTransformEmptyTypeDefaultsToOther(t *testing.T) {
	tr := newTestTransformer(t)
	raw := domain.RawRecord{
		AccountName:  "Mystery Line",
		PeriodStart:  "2024-01-01",
		PeriodEnd:    "2024-01-31",
		Amount:       decimal.NewFromInt(5),
		SourceSystem: "rootfi",
	}
	txn, err := tr.Transform(raw)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if txn.AccountType != domain.AccountTypeOther {
		t.Errorf("AccountType = %q, want other", txn.AccountType)
	}
	if txn.Currency != "USD" {
		t.Errorf("Currency = %q, want USD default", txn.Currency)
	}
}
