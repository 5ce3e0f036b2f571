package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/finetl/internal/domain"
)

// SourceQuickBooks identifies the columnar monthly P&L export.
const SourceQuickBooks = "quickbooks"

// QuickBooksExtractor extracts from the QuickBooks Profit & Loss format:
// a Header with report metadata, an ordered list of money columns carrying
// period dates, and a recursive tree of Section/Data/Summary rows.
type QuickBooksExtractor struct {
	sourcePath string
	logger     zerolog.Logger
	report     *qbReport
}

// NewQuickBooksExtractor creates an extractor for the given file path.
func NewQuickBooksExtractor(sourcePath string, logger zerolog.Logger) *QuickBooksExtractor {
	return &QuickBooksExtractor{
		sourcePath: sourcePath,
		logger:     logger.With().Str("source", SourceQuickBooks).Logger(),
	}
}

// Name returns the source system identifier
func (e *QuickBooksExtractor) Name() string { return SourceQuickBooks }

type qbReport struct {
	Header  qbHeader  `json:"Header"`
	Columns qbColumns `json:"Columns"`
	Rows    qbRowSet  `json:"Rows"`
}

type qbHeader struct {
	ReportName string `json:"ReportName"`
	Currency   string `json:"Currency"`
}

type qbColumns struct {
	Column []qbColumn `json:"Column"`
}

type qbColumn struct {
	ColTitle string       `json:"ColTitle"`
	ColType  string       `json:"ColType"`
	MetaData []qbMetaItem `json:"MetaData"`
}

type qbMetaItem struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// qbRowSet holds the child rows of the report or of a single row.
// The export writes a lone child as an object instead of a one-element
// array, so unmarshaling accepts both.
type qbRowSet struct {
	Row qbRowList `json:"Row"`
}

type qbRowList []qbRow

func (l *qbRowList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var rows []qbRow
		if err := json.Unmarshal(data, &rows); err != nil {
			return err
		}
		*l = rows
		return nil
	}
	var row qbRow
	if err := json.Unmarshal(data, &row); err != nil {
		return err
	}
	*l = qbRowList{row}
	return nil
}

type qbRow struct {
	Type    string    `json:"type"`
	Group   string    `json:"group"`
	ColData []qbCell  `json:"ColData"`
	Rows    *qbRowSet `json:"Rows"`
}

type qbCell struct {
	Value string `json:"value"`
}

// qbColumnPeriod is one parsed money column with its reporting period.
type qbColumnPeriod struct {
	Title     string
	StartDate string
	EndDate   string
}

// Validate checks the QuickBooks file structure. It loads and keeps the
// parsed report for Extract.
func (e *QuickBooksExtractor) Validate() error {
	raw, err := os.ReadFile(e.sourcePath)
	if err != nil {
		return &ValidationError{Source: SourceQuickBooks, Key: e.sourcePath, Reason: fmt.Sprintf("cannot read source file: %v", err)}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return &ValidationError{Source: SourceQuickBooks, Key: e.sourcePath, Reason: fmt.Sprintf("not a JSON object: %v", err)}
	}

	payload, ok := top["data"]
	if !ok {
		return &ValidationError{Source: SourceQuickBooks, Key: "data", Reason: "missing key"}
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(payload, &sections); err != nil {
		return &ValidationError{Source: SourceQuickBooks, Key: "data", Reason: fmt.Sprintf("not a JSON object: %v", err)}
	}
	for _, key := range []string{"Header", "Columns", "Rows"} {
		if _, ok := sections[key]; !ok {
			return &ValidationError{Source: SourceQuickBooks, Key: key, Reason: "missing key"}
		}
	}

	var report qbReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return &ValidationError{Source: SourceQuickBooks, Key: "data", Reason: fmt.Sprintf("malformed report: %v", err)}
	}

	e.report = &report
	e.logger.Info().
		Str("report_name", report.Header.ReportName).
		Str("currency", report.Header.Currency).
		Msg("validation succeeded")
	return nil
}

// parseColumns extracts the (start, end) period from each money column.
// The first column holds account names and has no period metadata.
func (e *QuickBooksExtractor) parseColumns() []qbColumnPeriod {
	var cols []qbColumnPeriod
	for _, col := range e.report.Columns.Column {
		if col.ColType != "Money" {
			continue
		}
		meta := make(map[string]string, len(col.MetaData))
		for _, item := range col.MetaData {
			meta[item.Name] = item.Value
		}
		cols = append(cols, qbColumnPeriod{
			Title:     col.ColTitle,
			StartDate: meta["StartDate"],
			EndDate:   meta["EndDate"],
		})
	}
	return cols
}

// Extract walks the row tree depth-first and emits one record per
// non-zero (account, period) cell.
func (e *QuickBooksExtractor) Extract(ctx context.Context, emit func(domain.RawRecord) error) error {
	if e.report == nil {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	e.logger.Info().Str("path", e.sourcePath).Msg("extraction started")

	cols := e.parseColumns()
	e.logger.Info().Int("columns", len(cols)).Msg("columns parsed")

	currency := e.report.Header.Currency
	if currency == "" {
		currency = "USD"
	}

	count := 0
	counted := func(rec domain.RawRecord) error {
		count++
		return emit(rec)
	}
	for _, row := range e.report.Rows.Row {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.walkRow(row, cols, "", "", currency, counted); err != nil {
			return err
		}
	}

	e.logger.Info().Int("records_extracted", count).Msg("extraction completed")
	return nil
}

// walkRow recursively processes a row and its children. The ambient account
// type and parent account name are passed down as immutable parameters so a
// sibling branch can never observe another branch's context.
func (e *QuickBooksExtractor) walkRow(
	row qbRow,
	cols []qbColumnPeriod,
	parentAccount string,
	accountType domain.AccountType,
	currency string,
	emit func(domain.RawRecord) error,
) error {
	// Section headers set the classification for their whole subtree.
	// Data and Summary rows propagate it unchanged.
	if row.Type == "Section" {
		switch {
		case strings.Contains(row.Group, "Income") || strings.Contains(row.Group, "Revenue"):
			accountType = domain.AccountTypeRevenue
		case strings.Contains(row.Group, "Cost of Goods Sold") || strings.Contains(row.Group, "COGS"):
			accountType = domain.AccountTypeCOGS
		case strings.Contains(row.Group, "Expenses"):
			accountType = domain.AccountTypeExpense
		}
	}

	var accountName string
	if row.Type == "Data" && len(row.ColData) > 0 {
		accountName = strings.TrimSpace(row.ColData[0].Value)
	}

	if accountName != "" {
		emitType := accountType
		if emitType == "" {
			emitType = domain.AccountTypeOther
		}
		// Money cells align positionally with the parsed columns,
		// offset by one for the account-name cell.
		for idx, col := range cols {
			if idx+1 >= len(row.ColData) {
				break
			}
			amount := parseAmount(row.ColData[idx+1].Value)
			if amount.IsZero() {
				continue
			}
			rec := domain.RawRecord{
				AccountName:   accountName,
				AccountType:   emitType,
				ParentAccount: parentAccount,
				PeriodStart:   col.StartDate,
				PeriodEnd:     col.EndDate,
				Amount:        amount,
				Currency:      currency,
				SourceSystem:  SourceQuickBooks,
			}
			if err := emit(rec); err != nil {
				return err
			}
		}
	}

	if row.Rows == nil {
		return nil
	}

	// A Data row's name becomes the parent for its children; Section and
	// Summary rows pass the enclosing parent through.
	childParent := parentAccount
	if accountName != "" {
		childParent = accountName
	}
	for _, child := range row.Rows.Row {
		if err := e.walkRow(child, cols, childParent, accountType, currency, emit); err != nil {
			return err
		}
	}
	return nil
}
