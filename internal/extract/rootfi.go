package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/finetl/internal/domain"
)

// SourceRootfi identifies the nested hierarchical-period export.
const SourceRootfi = "rootfi"

// RootfiExtractor extracts from the Rootfi format: an array of period
// records, each holding revenue / cost_of_goods_sold / operating_expenses
// sections with arbitrarily nested line items.
type RootfiExtractor struct {
	sourcePath string
	logger     zerolog.Logger
	periods    []rootfiPeriod
}

// NewRootfiExtractor creates an extractor for the given file path.
func NewRootfiExtractor(sourcePath string, logger zerolog.Logger) *RootfiExtractor {
	return &RootfiExtractor{
		sourcePath: sourcePath,
		logger:     logger.With().Str("source", SourceRootfi).Logger(),
	}
}

// Name returns the source system identifier
func (e *RootfiExtractor) Name() string { return SourceRootfi }

// recordID accepts any JSON type for the rootfi_id provenance field: exports
// carry it as a number, a string, or not at all, and a type mismatch must not
// fail whole-file decoding.
type recordID string

func (r *recordID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = recordID(s)
		return nil
	}
	if string(data) == "null" {
		*r = ""
		return nil
	}
	*r = recordID(data)
	return nil
}

func (r recordID) String() string { return string(r) }

type rootfiPeriod struct {
	RootfiID          recordID        `json:"rootfi_id"`
	PeriodStart       string          `json:"period_start"`
	PeriodEnd         string          `json:"period_end"`
	CurrencyID        string          `json:"currency_id"`
	Revenue           []rootfiSection `json:"revenue"`
	CostOfGoodsSold   []rootfiSection `json:"cost_of_goods_sold"`
	OperatingExpenses []rootfiSection `json:"operating_expenses"`
}

type rootfiSection struct {
	Name      string           `json:"name"`
	Value     decimal.Decimal  `json:"value"`
	LineItems []rootfiLineItem `json:"line_items"`
}

type rootfiLineItem struct {
	Name      string           `json:"name"`
	Value     decimal.Decimal  `json:"value"`
	AccountID string           `json:"account_id"`
	LineItems []rootfiLineItem `json:"line_items"`
}

// Validate checks the Rootfi file structure: a non-empty "data" array whose
// first and last records carry period_start and period_end. Keeps the
// parsed periods for Extract.
func (e *RootfiExtractor) Validate() error {
	raw, err := os.ReadFile(e.sourcePath)
	if err != nil {
		return &ValidationError{Source: SourceRootfi, Key: e.sourcePath, Reason: fmt.Sprintf("cannot read source file: %v", err)}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return &ValidationError{Source: SourceRootfi, Key: e.sourcePath, Reason: fmt.Sprintf("not a JSON object: %v", err)}
	}

	payload, ok := top["data"]
	if !ok {
		return &ValidationError{Source: SourceRootfi, Key: "data", Reason: "missing key"}
	}

	var periods []rootfiPeriod
	if err := json.Unmarshal(payload, &periods); err != nil {
		return &ValidationError{Source: SourceRootfi, Key: "data", Reason: fmt.Sprintf("should be a list of period records: %v", err)}
	}
	if len(periods) == 0 {
		return &ValidationError{Source: SourceRootfi, Key: "data", Reason: "empty data array"}
	}

	// First and last records must carry their period dates; interior records
	// missing them are skipped at extraction instead.
	for _, probe := range []struct {
		label  string
		record rootfiPeriod
	}{
		{"first", periods[0]},
		{"last", periods[len(periods)-1]},
	} {
		if probe.record.PeriodStart == "" {
			return &ValidationError{Source: SourceRootfi, Key: "period_start", Reason: "missing required field on " + probe.label + " record"}
		}
		if probe.record.PeriodEnd == "" {
			return &ValidationError{Source: SourceRootfi, Key: "period_end", Reason: "missing required field on " + probe.label + " record"}
		}
	}

	e.periods = periods
	e.logger.Info().
		Int("periods", len(periods)).
		Str("first_period", periods[0].PeriodStart).
		Str("last_period", periods[len(periods)-1].PeriodEnd).
		Msg("validation succeeded")
	return nil
}

// Extract walks each period's section trees and emits leaf line items.
// Zero-amount leaves are filtered before emission.
func (e *RootfiExtractor) Extract(ctx context.Context, emit func(domain.RawRecord) error) error {
	if e.periods == nil {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	e.logger.Info().Str("path", e.sourcePath).Msg("extraction started")

	count := 0
	for _, period := range e.periods {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.extractPeriod(period, func(rec domain.RawRecord) error {
			if rec.Amount.IsZero() {
				return nil
			}
			count++
			return emit(rec)
		}); err != nil {
			return err
		}
	}

	e.logger.Info().Int("records_extracted", count).Msg("extraction completed")
	return nil
}

// extractPeriod walks the three fixed section kinds of one period record.
// A period missing its dates is skipped with a warning, not fatal.
func (e *RootfiExtractor) extractPeriod(period rootfiPeriod, emit func(domain.RawRecord) error) error {
	if period.PeriodStart == "" || period.PeriodEnd == "" {
		e.logger.Warn().
			Str("record_id", period.RootfiID.String()).
			Msg("period record missing dates, skipped")
		return nil
	}

	currency := period.CurrencyID
	if currency == "" {
		currency = "USD"
	}

	sections := []struct {
		kind     []rootfiSection
		acctType domain.AccountType
	}{
		{period.Revenue, domain.AccountTypeRevenue},
		{period.CostOfGoodsSold, domain.AccountTypeCOGS},
		{period.OperatingExpenses, domain.AccountTypeExpense},
	}

	for _, sec := range sections {
		for _, section := range sec.kind {
			if len(section.LineItems) == 0 {
				continue
			}
			err := e.walkLineItems(section.LineItems, sec.acctType, section.Name, func(rec domain.RawRecord) error {
				rec.PeriodStart = period.PeriodStart
				rec.PeriodEnd = period.PeriodEnd
				rec.Currency = currency
				rec.SourceSystem = SourceRootfi
				rec.SourceRecordID = period.RootfiID.String()
				return emit(rec)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// walkLineItems recursively processes nested line items, emitting only leaf
// nodes. An item with children is a rollup whose value is the sum of its
// children; emitting it too would double-count, so only its name is carried
// forward as the parent for the subtree.
func (e *RootfiExtractor) walkLineItems(
	items []rootfiLineItem,
	accountType domain.AccountType,
	parentName string,
	emit func(domain.RawRecord) error,
) error {
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}

		if len(item.LineItems) > 0 {
			e.logger.Debug().
				Str("item", name).
				Str("amount", item.Value.String()).
				Msg("rollup item skipped, walking children")
			if err := e.walkLineItems(item.LineItems, accountType, name, emit); err != nil {
				return err
			}
			continue
		}

		rec := domain.RawRecord{
			AccountName:     name,
			AccountType:     accountType,
			ParentAccount:   parentName,
			Amount:          item.Value,
			SourceAccountID: item.AccountID,
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	return nil
}
