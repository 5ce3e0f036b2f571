// Package output writes per-run failure reports for manual review.
package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rumor-ml/commons.systems/finetl/internal/domain"
)

var failedRecordHeader = []string{
	"source_system",
	"account_name",
	"account_type",
	"parent_account",
	"period_start",
	"period_end",
	"amount",
	"currency",
	"error_message",
	"error_type",
}

// WriteFailedRecords writes the records a run could not process to a CSV
// under dir, named after the source, timestamp, and run. Returns the path of
// the written file. Callers should only invoke this with a non-empty slice;
// an empty one produces a header-only file.
func WriteFailedRecords(records []domain.FailedRecord, dir, source, runID string) (path string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	shortRun := runID
	if len(shortRun) > 8 {
		shortRun = shortRun[:8]
	}
	name := fmt.Sprintf("failed_%s_%s_%s.csv",
		source, time.Now().UTC().Format("20060102_150405"), shortRun)
	path = filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %s: %w", path, closeErr)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(failedRecordHeader); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.SourceSystem,
			rec.AccountName,
			rec.AccountType,
			rec.ParentAccount,
			rec.PeriodStart,
			rec.PeriodEnd,
			rec.Amount,
			rec.Currency,
			rec.ErrorMessage,
			rec.ErrorType,
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush CSV: %w", err)
	}

	return path, nil
}
