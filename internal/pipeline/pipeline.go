// Package pipeline orchestrates extract, transform, and load for each
// source system.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rumor-ml/commons.systems/finetl/internal/config"
	"github.com/rumor-ml/commons.systems/finetl/internal/domain"
	"github.com/rumor-ml/commons.systems/finetl/internal/extract"
	"github.com/rumor-ml/commons.systems/finetl/internal/output"
	"github.com/rumor-ml/commons.systems/finetl/internal/store"
	"github.com/rumor-ml/commons.systems/finetl/internal/transform"
)

// Runner executes pipeline runs against one database.
type Runner struct {
	db          *store.DB
	cfg         config.Config
	transformer *transform.Transformer
	logger      zerolog.Logger
}

// NewRunner creates a runner.
func NewRunner(db *store.DB, cfg config.Config, transformer *transform.Transformer, logger zerolog.Logger) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if transformer == nil {
		return nil, fmt.Errorf("transformer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Runner{db: db, cfg: cfg, transformer: transformer, logger: logger}, nil
}

// Run executes one pipeline run for a single source. Per-record failures are
// captured as failed records and the run continues; validation and storage
// errors fail the whole run. Either way the run's row in pipeline_runs is
// finalized before Run returns, and any captured failed records are written
// to CSV.
func (r *Runner) Run(ctx context.Context, extractor extract.Extractor, source string) (*domain.RunStats, error) {
	runID := uuid.NewString()
	logger := r.logger.With().Str("source", source).Str("run_id", runID).Logger()
	logger.Info().Msg("pipeline started")

	if err := r.db.StartRun(ctx, runID, source); err != nil {
		return nil, err
	}

	var failed []domain.FailedRecord
	stats, runErr := r.execute(ctx, extractor, source, runID, &failed, logger)

	if runErr != nil {
		logger.Error().Err(runErr).Msg("pipeline failed")
		if err := r.db.FailRun(ctx, runID, runErr.Error()); err != nil {
			logger.Error().Err(err).Msg("failed to finalize run record")
		}
		// Failed records captured before the fatal error still get saved.
		r.writeFailedRecords(failed, source, runID, logger)
		return nil, runErr
	}

	if err := r.db.CompleteRun(ctx, runID, stats.RecordsProcessed, stats.RecordsFailed); err != nil {
		return nil, err
	}
	stats.FailedRecordsCSV = r.writeFailedRecords(failed, source, runID, logger)

	logger.Info().
		Int("records_processed", stats.RecordsProcessed).
		Int("records_failed", stats.RecordsFailed).
		Msg("pipeline completed")
	return stats, nil
}

// execute performs the ETL work of one run. It returns stats on success and
// leaves run-record finalization to the caller.
func (r *Runner) execute(
	ctx context.Context,
	extractor extract.Extractor,
	source, runID string,
	failed *[]domain.FailedRecord,
	logger zerolog.Logger,
) (*domain.RunStats, error) {
	dimStart, dimEnd, err := r.cfg.DateRange()
	if err != nil {
		return nil, err
	}

	// Caches live and die with the run.
	loader := store.NewDimensionLoader(r.db, logger)
	if err := loader.LoadDateDimension(ctx, dimStart, dimEnd); err != nil {
		return nil, err
	}

	if err := extractor.Validate(); err != nil {
		return nil, err
	}

	var batch []*domain.NormalizedTransaction
	processed := 0
	failedCount := 0

	flush := func() error {
		loaded, batchFailed, err := r.loadBatch(ctx, loader, source, batch, failed, logger)
		if err != nil {
			return err
		}
		processed += loaded
		failedCount += batchFailed
		batch = batch[:0]
		return nil
	}

	err = extractor.Extract(ctx, func(raw domain.RawRecord) error {
		txn, err := r.transformer.Transform(raw)
		if err != nil {
			logger.Warn().Err(err).Str("account", raw.AccountName).Msg("record transform failed")
			*failed = append(*failed, failedRecord(raw, err, domain.FailureTransform))
			failedCount++
			return nil
		}
		batch = append(batch, txn)
		if len(batch) >= r.cfg.BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return &domain.RunStats{
		RunID:            runID,
		Source:           source,
		RecordsProcessed: processed,
		RecordsFailed:    failedCount,
	}, nil
}

// loadBatch resolves dimensions for each transaction and bulk-inserts the
// facts. Dimension failures drop the record from the batch and continue;
// a failed insert aborts the run.
func (r *Runner) loadBatch(
	ctx context.Context,
	loader *store.DimensionLoader,
	source string,
	batch []*domain.NormalizedTransaction,
	failed *[]domain.FailedRecord,
	logger zerolog.Logger,
) (loaded, batchFailed int, err error) {
	if len(batch) == 0 {
		return 0, 0, nil
	}

	rows := make([]store.FactRow, 0, len(batch))
	for _, txn := range batch {
		accountKey, err := loader.UpsertAccount(ctx, store.AccountRow{
			AccountID:       txn.AccountID,
			AccountName:     txn.AccountName,
			AccountType:     string(txn.AccountType),
			AccountCategory: txn.AccountCategory,
			ParentAccount:   txn.ParentAccount,
			IsParent:        false,
			SourceSystem:    txn.SourceSystem,
			SourceAccountID: txn.SourceAccountID,
		})
		if err != nil {
			logger.Error().Err(err).Str("account", txn.AccountName).Msg("dimension resolution failed")
			*failed = append(*failed, failedTransaction(txn, err))
			batchFailed++
			continue
		}

		sourceKey, err := loader.GetOrCreateSource(ctx, txn.SourceSystem, sourceDescription(txn.SourceSystem))
		if err != nil {
			logger.Error().Err(err).Str("account", txn.AccountName).Msg("dimension resolution failed")
			*failed = append(*failed, failedTransaction(txn, err))
			batchFailed++
			continue
		}

		quarter := (int(txn.PeriodStart.Month())-1)/3 + 1
		rows = append(rows, store.FactRow{
			AccountKey:     accountKey,
			PeriodStartKey: store.DateKey(txn.PeriodStart),
			PeriodEndKey:   store.DateKey(txn.PeriodEnd),
			SourceKey:      sourceKey,
			Amount:         txn.Amount,
			Currency:       txn.Currency,
			Year:           txn.PeriodStart.Year(),
			Quarter:        quarter,
			Month:          int(txn.PeriodStart.Month()),
			YearQuarter:    fmt.Sprintf("%d-Q%d", txn.PeriodStart.Year(), quarter),
			SourceRecordID: txn.SourceRecordID,
		})
	}

	n, err := r.db.InsertFacts(ctx, rows)
	if err != nil {
		return 0, 0, err
	}
	if n > 0 {
		logger.Info().Int("count", n).Msg("facts batch loaded")
	}
	return n, batchFailed, nil
}

func (r *Runner) writeFailedRecords(failed []domain.FailedRecord, source, runID string, logger zerolog.Logger) string {
	if len(failed) == 0 {
		return ""
	}
	path, err := output.WriteFailedRecords(failed, r.cfg.FailedRecordsDir, source, runID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to write failed-records CSV")
		return ""
	}
	logger.Info().Str("path", path).Int("count", len(failed)).Msg("failed records saved")
	return path
}

// RunAll executes every registered source independently. One source failing
// does not stop the others; the error is recorded in its result instead.
func (r *Runner) RunAll(ctx context.Context) (*domain.FullRunStats, error) {
	r.logger.Info().Msg("full pipeline started")

	results := &domain.FullRunStats{Sources: make(map[string]domain.SourceResult)}
	for _, source := range extract.Sources() {
		path, err := r.cfg.SourceFile(source)
		if err != nil {
			results.Sources[source] = domain.SourceResult{Err: err}
			continue
		}
		extractor, err := extract.ForSource(source, path, r.logger)
		if err != nil {
			results.Sources[source] = domain.SourceResult{Err: err}
			continue
		}

		stats, err := r.Run(ctx, extractor, source)
		if err != nil {
			results.Sources[source] = domain.SourceResult{Err: err}
			continue
		}
		results.Sources[source] = domain.SourceResult{Stats: stats}
		results.TotalRecords += stats.RecordsProcessed
		results.TotalFailed += stats.RecordsFailed
	}

	r.logger.Info().
		Int("total_records", results.TotalRecords).
		Int("total_failed", results.TotalFailed).
		Msg("full pipeline completed")
	return results, nil
}

func failedRecord(raw domain.RawRecord, err error, errType string) domain.FailedRecord {
	return domain.FailedRecord{
		SourceSystem:  raw.SourceSystem,
		AccountName:   raw.AccountName,
		AccountType:   string(raw.AccountType),
		ParentAccount: raw.ParentAccount,
		PeriodStart:   raw.PeriodStart,
		PeriodEnd:     raw.PeriodEnd,
		Amount:        raw.Amount.String(),
		Currency:      raw.Currency,
		ErrorMessage:  err.Error(),
		ErrorType:     errType,
	}
}

func failedTransaction(txn *domain.NormalizedTransaction, err error) domain.FailedRecord {
	return domain.FailedRecord{
		SourceSystem:  txn.SourceSystem,
		AccountName:   txn.AccountName,
		AccountType:   string(txn.AccountType),
		ParentAccount: txn.ParentAccount,
		PeriodStart:   txn.PeriodStart.Format("2006-01-02"),
		PeriodEnd:     txn.PeriodEnd.Format("2006-01-02"),
		Amount:        txn.Amount.String(),
		Currency:      txn.Currency,
		ErrorMessage:  err.Error(),
		ErrorType:     domain.FailureDimension,
	}
}

var sourceTitle = cases.Title(language.English)

// sourceDescription builds the human label stored on dim_source.
func sourceDescription(source string) string {
	if source == "" {
		return ""
	}
	return sourceTitle.String(source) + " Data Source"
}
