package validation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/trdSystemDev/Medko-Prescricao/database"
	"github.com/trdSystemDev/Medko-Prescricao/normalize"
	"github.com/trdSystemDev/Medko-Prescricao/source"
)

// max duplicate keys quoted in a warning
const sampleLimit = 5

// Represents the result of the validation check
type ValidationResult struct {
	Check        string
	IsValid      bool
	ErrorMessage string
	Warnings     []string
	RowCount     int64
	TimeStamp    time.Time
}

// SourceStats is what a validation pass learns about the source file.
type SourceStats struct {
	Records               int64
	MissingNumeroProcesso int64
	DuplicateProcesso     int64
	DuplicateNaturalKeys  int64
	InvalidDates          int64
	TruncatedTexts        int64
	SampleDuplicates      []string
}

// Handles pre and post import validation
type ImportValidator struct {
	Store  database.Store
	Policy normalize.Policy
}

// Creating a new validator instance, store may be nil for source-only checks
func NewImportValidator(store database.Store, policy normalize.Policy) *ImportValidator {
	return &ImportValidator{
		Store:  store,
		Policy: policy,
	}
}

// ValidateSource streams the whole file once and reports what the import
// would do to it. Duplicates only produce warnings since the writer drops
// them. An unreadable or malformed file is returned as an error.
func (v *ImportValidator) ValidateSource(path string) (ValidationResult, *SourceStats, error) {
	result := ValidationResult{Check: "source", TimeStamp: time.Now()}
	stats := &SourceStats{}

	reader, err := source.Open(path)
	if err != nil {
		return result, nil, err
	}
	defer reader.Close()

	processos := make(map[string]struct{})
	keys := make(map[string]struct{})

	for {
		raw, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, nil, err
		}
		stats.Records++

		row := normalize.Normalize(raw, v.Policy)

		processo, _ := row.Text(normalize.ColNumeroProcesso)
		if processo == "" {
			stats.MissingNumeroProcesso++
		} else if _, seen := processos[processo]; seen {
			stats.DuplicateProcesso++
		} else {
			processos[processo] = struct{}{}
		}

		key := row.NaturalKey()
		if _, seen := keys[key]; seen {
			stats.DuplicateNaturalKeys++
			if len(stats.SampleDuplicates) < sampleLimit {
				stats.SampleDuplicates = append(stats.SampleDuplicates, describeKey(&row))
			}
		} else {
			keys[key] = struct{}{}
		}

		stats.InvalidDates += countNulledDates(raw, &row)
		stats.TruncatedTexts += countTruncated(raw, &row)
	}

	result.RowCount = stats.Records
	result.IsValid = true
	if stats.Records == 0 {
		result.Warnings = append(result.Warnings, "source array is empty")
	}
	if stats.MissingNumeroProcesso > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d records without numeroProcesso", stats.MissingNumeroProcesso))
	}
	if stats.DuplicateProcesso > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d repeated numeroProcesso values", stats.DuplicateProcesso))
	}
	if stats.DuplicateNaturalKeys > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d repeated natural keys, e.g. %v", stats.DuplicateNaturalKeys, stats.SampleDuplicates))
	}
	if stats.InvalidDates > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d date values will be stored as null", stats.InvalidDates))
	}
	if stats.TruncatedTexts > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d package insert texts will be shortened", stats.TruncatedTexts))
	}

	slog.Info("source validated", "path", path, "records", stats.Records, "warnings", len(result.Warnings))
	return result, stats, nil
}

func describeKey(row *normalize.Row) string {
	codigo, _ := row.Text(normalize.ColCodigo)
	registro, _ := row.Text(normalize.ColNumeroRegistro)
	return codigo + "/" + registro
}

var dateColumns = []struct {
	col   int
	field string
}{
	{normalize.ColDataProduto, "dataProduto"},
	{normalize.ColDataVencimentoRegistro, "dataVencimentoRegistro"},
	{normalize.ColDataPublicacao, "dataPublicacao"},
}

// counts date values present in raw that the normalizer turned into null
func countNulledDates(raw source.RawRecord, row *normalize.Row) int64 {
	var n int64
	for _, d := range dateColumns {
		s, ok := raw[d.field].(string)
		if ok && s != "" && row[d.col] == nil {
			n++
		}
	}
	return n
}

func countTruncated(raw source.RawRecord, row *normalize.Row) int64 {
	var n int64
	for field, col := range map[string]int{"bula_txt": normalize.ColBulaTxt, "bula_txt_profissional": normalize.ColBulaTxtProfissional} {
		in, ok := raw[field].(string)
		if !ok || in == "" {
			continue
		}
		if out, _ := row.Text(col); out != in {
			n++
		}
	}
	return n
}

// CaptureRowCount records the destination size before an import.
func (v *ImportValidator) CaptureRowCount(ctx context.Context) (ValidationResult, error) {
	result := ValidationResult{Check: "destination", TimeStamp: time.Now()}
	if v.Store == nil {
		return result, fmt.Errorf("no destination store configured")
	}

	n, err := v.Store.CountRows(ctx)
	if err != nil {
		result.ErrorMessage = err.Error()
		return result, err
	}
	result.RowCount = n
	result.IsValid = true
	return result, nil
}

// PostImportValidation checks that the destination grew by exactly the
// number of rows the writer reports as committed.
func (v *ImportValidator) PostImportValidation(ctx context.Context, pre ValidationResult, committed int64) (ValidationResult, error) {
	result, err := v.CaptureRowCount(ctx)
	if err != nil {
		return result, err
	}
	result.Check = "post-import"

	if grown := result.RowCount - pre.RowCount; grown != committed {
		result.IsValid = false
		result.ErrorMessage = fmt.Sprintf("row count mismatch, before: %d, after: %d, committed: %d", pre.RowCount, result.RowCount, committed)
		return result, nil
	}

	slog.Info("post-import validation passed", "rows_before", pre.RowCount, "rows_after", result.RowCount)
	return result, nil
}

// struct for validation result summary
type ValidationSummary struct {
	TotalChecks    int
	ValidChecks    int
	InvalidChecks  int
	Warnings       int
	ValidationTime time.Duration
	Errors         []string
}

// creating a summary of the validation result
func GenerateValidationSummary(results []ValidationResult, startTime time.Time) ValidationSummary {
	summary := ValidationSummary{
		TotalChecks:    len(results),
		ValidationTime: time.Since(startTime),
		Errors:         make([]string, 0),
	}

	for _, result := range results {
		summary.Warnings += len(result.Warnings)
		if result.IsValid {
			summary.ValidChecks++
		} else {
			summary.InvalidChecks++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", result.Check, result.ErrorMessage))
		}
	}
	return summary
}

// printing the formatted summary
func (s ValidationSummary) Print(w io.Writer, phase string, results []ValidationResult) {
	fmt.Fprintf(w, "\n== %s Validation Summary ==\n", phase)
	for _, r := range results {
		fmt.Fprintf(w, "%s: %d rows\n", r.Check, r.RowCount)
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warn)
		}
	}
	fmt.Fprintf(w, "Valid Checks: %d/%d\n", s.ValidChecks, s.TotalChecks)
	fmt.Fprintf(w, "Validation Time: %v\n", s.ValidationTime.Round(time.Millisecond))

	if len(s.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, err := range s.Errors {
			fmt.Fprintf(w, " - %s\n", err)
		}
	}
	fmt.Fprintln(w, "--------------")
}
