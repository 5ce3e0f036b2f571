package output

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rumor-ml/commons.systems/finetl/internal/domain"
)

func TestWriteFailedRecords(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "failed_records")
	records := []domain.FailedRecord{
		{
			SourceSystem: "quickbooks",
			AccountName:  "Office Rent",
			AccountType:  "expense",
			PeriodStart:  "not-a-date",
			PeriodEnd:    "2024-01-31",
			Amount:       "2500",
			Currency:     "USD",
			ErrorMessage: `record "Office Rent": bad period_start`,
			ErrorType:    domain.FailureTransform,
		},
		{
			SourceSystem: "quickbooks",
			AccountName:  "Misc",
			AccountType:  "expense",
			Amount:       "10",
			ErrorMessage: "upsert failed",
			ErrorType:    domain.FailureDimension,
		},
	}

	path, err := WriteFailedRecords(records, dir, "quickbooks", "0f3a7c1e-dead-beef-0000-000000000000")
	if err != nil {
		t.Fatalf("WriteFailedRecords() error = %v", err)
	}

	base := filepath.Base(path)
	if !strings.HasPrefix(base, "failed_quickbooks_") || !strings.HasSuffix(base, "_0f3a7c1e.csv") {
		t.Errorf("file name = %q, want failed_quickbooks_<ts>_0f3a7c1e.csv", base)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[0][0] != "source_system" || rows[0][len(rows[0])-1] != "error_type" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[1][1] != "Office Rent" || rows[1][9] != domain.FailureTransform {
		t.Errorf("unexpected first row: %v", rows[1])
	}
	if rows[2][9] != domain.FailureDimension {
		t.Errorf("unexpected second row: %v", rows[2])
	}
}

func TestWriteFailedRecordsCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	if _, err := WriteFailedRecords([]domain.FailedRecord{{SourceSystem: "rootfi"}}, dir, "rootfi", "short"); err != nil {
		t.Fatalf("WriteFailedRecords() error = %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("output dir not created: %v", err)
	}
}
