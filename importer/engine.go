package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/trdSystemDev/Medko-Prescricao/database"
	"github.com/trdSystemDev/Medko-Prescricao/monitoring"
	"github.com/trdSystemDev/Medko-Prescricao/normalize"
	"github.com/trdSystemDev/Medko-Prescricao/source"
	"github.com/trdSystemDev/Medko-Prescricao/validation"
)

// type of import
type ImportMode string

const (
	// StreamImport reads one array element at a time.
	StreamImport ImportMode = "stream"
	// MemoryImport loads the whole array first and writes it in chunks.
	MemoryImport ImportMode = "memory"
)

// config for an import run
type ImportConfig struct {
	SourcePath     string
	Mode           ImportMode
	BatchSize      int
	Policy         normalize.Policy
	ExpectedTotal  int64
	DiscoverTotal  bool
	ValidateSource bool   // the discovery pass also checks the records
	ReportsDir     string // empty disables run reports
	VerifyCounts   bool
	Progress       io.Writer
}

// Results of the import
type ImportResult struct {
	RunID      string
	Mode       ImportMode
	Total      int64
	Processed  int64
	Committed  int64
	Duplicates int64
	RowsBefore int64
	RowsAfter  int64
	Verified   bool
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}

// ImportEngine holds everything one run owns: the store connection, the
// source cursor, the writer and its counters. It is used for a single Run.
type ImportEngine struct {
	Config    ImportConfig
	Store     database.Store
	RunID     string
	validator *validation.ImportValidator
	tracker   *monitoring.ProgressTracker
	reports   *ReportManager
	reader    *source.Reader
	writer    *BatchWriter
	logger    *slog.Logger
}

// creating a new import engine
func NewImportEngine(cfg ImportConfig, store database.Store) *ImportEngine {
	if cfg.Mode == "" {
		cfg.Mode = StreamImport
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Policy.MaxTextLength <= 0 {
		cfg.Policy = normalize.DefaultPolicy()
	}
	if cfg.Progress == nil {
		cfg.Progress = os.Stdout
	}

	return &ImportEngine{
		Config:    cfg,
		Store:     store,
		RunID:     uuid.NewString(),
		validator: validation.NewImportValidator(store, cfg.Policy),
	}
}

// Run executes the import. Resources are released on every exit path and
// rows committed before a fatal error stay committed.
func (e *ImportEngine) Run(ctx context.Context) (result *ImportResult, err error) {
	ctx = monitoring.WithRunID(ctx, e.RunID)
	e.logger = monitoring.FromContext(ctx)

	result = &ImportResult{RunID: e.RunID, Mode: e.Config.Mode, StartTime: time.Now()}

	var report *RunReport
	defer func() {
		e.teardown()
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		if report != nil {
			e.fillReport(report, result)
			if rerr := e.reports.Finish(report, err); rerr != nil {
				e.logger.Warn("could not save run report", "error", rerr)
			}
		}
	}()

	if e.Config.Mode != StreamImport && e.Config.Mode != MemoryImport {
		return result, fmt.Errorf("unsupported import mode %s", e.Config.Mode)
	}

	//Step1: find out how many records to expect
	total, err := e.resolveTotal()
	if err != nil {
		return result, err
	}
	result.Total = total

	e.tracker = monitoring.NewProgressTracker(total)
	e.tracker.SetOutput(e.Config.Progress)

	//Step2: connect and snapshot the destination
	if err := e.Store.Connect(ctx); err != nil {
		return result, fmt.Errorf("%w: %s: %w", ErrConnection, e.Store.Name(), err)
	}

	var pre validation.ValidationResult
	if e.Config.VerifyCounts {
		if pre, err = e.validator.CaptureRowCount(ctx); err != nil {
			return result, fmt.Errorf("%w: %w", ErrConnection, err)
		}
		result.RowsBefore = pre.RowCount
	}

	if e.Config.ReportsDir != "" {
		reports, rerr := NewReportManager(e.Config.ReportsDir)
		if rerr != nil {
			e.logger.Warn("run reports disabled", "error", rerr)
		} else {
			e.reports = reports
			report = e.newReport(total)
			if err := e.reports.Save(report); err != nil {
				e.logger.Warn("could not save run report", "error", err)
			}
		}
	}

	e.logger.Info("starting import",
		"mode", e.Config.Mode,
		"source", e.Config.SourcePath,
		"target", e.Store.Name(),
		"batch_size", e.Config.BatchSize,
		"total", total,
	)

	e.writer = NewBatchWriter(e.Store, e.Config.BatchSize, e.afterFlush)

	//Step3: move the rows
	switch e.Config.Mode {
	case StreamImport:
		err = e.runStream(ctx)
	case MemoryImport:
		err = e.runMemory(ctx)
	}

	result.Processed = e.writer.Processed()
	result.Committed = e.writer.Committed()
	result.Duplicates = e.writer.Duplicates()
	if m := e.tracker.GetMetrics(); m.TotalRows > 0 {
		result.Total = m.TotalRows
	}

	if err != nil {
		e.tracker.AddError(err.Error())
		e.logger.Error("import aborted", "processed", result.Processed, "committed", result.Committed, "error", err)
		return result, err
	}

	//Step4: compare destination growth with what the writer committed
	if e.Config.VerifyCounts {
		post, verr := e.validator.PostImportValidation(ctx, pre, result.Committed)
		if verr != nil {
			e.logger.Warn("post-import validation failed", "error", verr)
		} else {
			result.RowsAfter = post.RowCount
			result.Verified = post.IsValid
			if !post.IsValid {
				e.tracker.AddError(post.ErrorMessage)
				e.logger.Warn("post-import validation mismatch", "detail", post.ErrorMessage)
			}
		}
	}

	e.tracker.PrintFinalSummary()
	e.logger.Info("import completed",
		"processed", result.Processed,
		"committed", result.Committed,
		"duplicates", result.Duplicates,
		"duration", time.Since(result.StartTime).Round(time.Millisecond),
	)
	return result, nil
}

func (e *ImportEngine) resolveTotal() (int64, error) {
	if e.Config.ExpectedTotal > 0 {
		return e.Config.ExpectedTotal, nil
	}
	if !e.Config.DiscoverTotal || e.Config.Mode == MemoryImport {
		return 0, nil
	}

	started := time.Now()
	if e.Config.ValidateSource {
		check, _, err := e.validator.ValidateSource(e.Config.SourcePath)
		if err != nil {
			return 0, err
		}
		for _, w := range check.Warnings {
			e.logger.Warn("source check", "warning", w)
		}
		return check.RowCount, nil
	}

	total, err := source.Count(e.Config.SourcePath)
	if err != nil {
		return 0, err
	}
	e.logger.Debug("counted source records", "total", total, "took", time.Since(started).Round(time.Millisecond))
	return total, nil
}

func (e *ImportEngine) runStream(ctx context.Context) error {
	reader, err := source.Open(e.Config.SourcePath)
	if err != nil {
		return err
	}
	e.reader = reader

	for {
		raw, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := e.writer.Append(ctx, normalize.Normalize(raw, e.Config.Policy)); err != nil {
			return err
		}
	}
	return e.writer.Flush(ctx)
}

func (e *ImportEngine) runMemory(ctx context.Context) error {
	records, err := source.LoadAll(e.Config.SourcePath)
	if err != nil {
		return err
	}
	if e.Config.ExpectedTotal <= 0 {
		e.tracker.SetTotal(int64(len(records)))
	}

	processor := NewBatchProcessor(e.Config.BatchSize)
	return processor.ProcessInBatches(records, func(batch []source.RawRecord) error {
		for _, raw := range batch {
			if err := e.writer.Append(ctx, normalize.Normalize(raw, e.Config.Policy)); err != nil {
				return err
			}
		}
		return e.writer.Flush(ctx)
	})
}

func (e *ImportEngine) afterFlush(stats FlushStats) {
	e.tracker.RecordFlush(int64(stats.Attempted), int64(stats.Committed), int64(stats.Duplicates), stats.FellBack)
	e.tracker.PrintProgress()

	if stats.FellBack {
		e.logger.Debug("batch fell back to row inserts", "rows", stats.Attempted, "duplicates", stats.Duplicates)
	}
}

// teardown closes the source and the store; it runs exactly once per Run
func (e *ImportEngine) teardown() {
	if e.reader != nil {
		if err := e.reader.Close(); err != nil {
			e.logger.Warn("failed to close source", "error", err)
		}
		e.reader = nil
	}
	if err := e.Store.Close(); err != nil {
		e.logger.Warn("failed to close store", "store", e.Store.Name(), "error", err)
	}
}

func (e *ImportEngine) newReport(total int64) *RunReport {
	return &RunReport{
		ID:        e.RunID,
		StartedAt: time.Now(),
		Source:    e.Config.SourcePath,
		Target:    e.Store.Name(),
		Mode:      string(e.Config.Mode),
		BatchSize: e.Config.BatchSize,
		Total:     total,
		Status:    StatusInProgress,
	}
}

func (e *ImportEngine) fillReport(report *RunReport, result *ImportResult) {
	report.Total = result.Total
	report.Processed = result.Processed
	report.Committed = result.Committed
	report.Duplicates = result.Duplicates
	report.RowsBefore = result.RowsBefore
	report.RowsAfter = result.RowsAfter
}
