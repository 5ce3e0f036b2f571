// Package extract provides source-specific extractors that flatten financial
// report exports into raw transaction records.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/finetl/internal/domain"
)

// Extractor is the strategy interface for all source formats.
type Extractor interface {
	// Name returns the source system identifier (e.g., "quickbooks")
	Name() string

	// Validate checks the structural shape of the source file.
	// Returns a *ValidationError naming the missing or malformed key.
	Validate() error

	// Extract walks the validated structure and calls emit once per
	// leaf-level non-zero record. The walk is single-pass but re-invocable:
	// it re-walks the in-memory structure loaded by Validate, which is
	// invoked automatically if it has not run yet. A non-nil error from
	// emit aborts the walk and is returned as-is.
	Extract(ctx context.Context, emit func(domain.RawRecord) error) error
}

// ValidationError describes a structural violation in a source file.
// Key names the missing or malformed element so operators can fix the export.
type ValidationError struct {
	Source string
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid source structure at %q: %s", e.Source, e.Key, e.Reason)
}

// parseAmount coerces a money cell to a decimal, stripping thousands
// separators and currency symbols. Malformed strings degrade to zero and are
// then excluded by the non-zero filter rather than reported as failures;
// this is a deliberate tradeoff inherited from the source format, where a
// blank or dashed cell means "no activity".
func parseAmount(s string) decimal.Decimal {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}
