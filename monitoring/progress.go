package monitoring

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ProgressTracker follows an import run. Processed counts rows handed to a
// flush, including the ones dropped as duplicates; Committed counts rows the
// destination actually kept.
type ProgressTracker struct {
	mu         sync.RWMutex
	total      int64
	processed  int64
	committed  int64
	duplicates int64
	batches    int
	fallbacks  int
	startTime  time.Time
	lastUpdate time.Time
	errors     []string
	out        io.Writer
}

// struct holding import metrics
type ImportMetrics struct {
	TotalRows         int64         `json:"total_rows"`
	ProcessedRows     int64         `json:"processed_rows"`
	CommittedRows     int64         `json:"committed_rows"`
	DuplicateRows     int64         `json:"duplicate_rows"`
	Batches           int           `json:"batches"`
	RowFallbacks      int           `json:"row_fallbacks"`
	RowsPerSecond     float64       `json:"rows_per_second"`
	EstimatedTimeLeft time.Duration `json:"estimated_time_left"`
	ElapsedTime       time.Duration `json:"elapsed_time"`
	ErrorCount        int           `json:"error_count"`
	ProgressPercent   float64       `json:"progress_percent"`
}

// creating a new progress tracker; total may be 0 when unknown
func NewProgressTracker(total int64) *ProgressTracker {
	return &ProgressTracker{
		total:      total,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
		errors:     make([]string, 0),
		out:        os.Stdout,
	}
}

// SetOutput redirects progress printing.
func (pt *ProgressTracker) SetOutput(w io.Writer) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.out = w
}

// SetTotal updates the expected number of records.
func (pt *ProgressTracker) SetTotal(total int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.total = total
}

// RecordFlush registers one completed flush.
func (pt *ProgressTracker) RecordFlush(processed, committed, duplicates int64, fellBack bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.processed += processed
	pt.committed += committed
	pt.duplicates += duplicates
	pt.batches++
	if fellBack {
		pt.fallbacks++
	}
	pt.lastUpdate = time.Now()
}

// adding an error to the error list
func (pt *ProgressTracker) AddError(err string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.errors = append(pt.errors, fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), err))
}

// returning current import metrics
func (pt *ProgressTracker) GetMetrics() ImportMetrics {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	elapsedTime := time.Since(pt.startTime)

	var progressPercent float64
	if pt.total > 0 {
		progressPercent = float64(pt.processed) / float64(pt.total) * 100
	}

	var rowsPerSecond float64
	if elapsedTime.Seconds() > 0 {
		rowsPerSecond = float64(pt.processed) / elapsedTime.Seconds()
	}

	var estimatedTimeLeft time.Duration
	if rowsPerSecond > 0 && pt.total > pt.processed {
		remainingRows := pt.total - pt.processed
		estimatedTimeLeft = time.Duration(float64(remainingRows)/rowsPerSecond) * time.Second
	}

	return ImportMetrics{
		TotalRows:         pt.total,
		ProcessedRows:     pt.processed,
		CommittedRows:     pt.committed,
		DuplicateRows:     pt.duplicates,
		Batches:           pt.batches,
		RowFallbacks:      pt.fallbacks,
		RowsPerSecond:     rowsPerSecond,
		EstimatedTimeLeft: estimatedTimeLeft,
		ElapsedTime:       elapsedTime,
		ErrorCount:        len(pt.errors),
		ProgressPercent:   progressPercent,
	}
}

// returning the most recent errors(up to limit)
func (pt *ProgressTracker) GetRecentErrors(limit int) []string {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	if len(pt.errors) <= limit {
		return append([]string(nil), pt.errors...)
	}
	return append([]string(nil), pt.errors[len(pt.errors)-limit:]...)
}

func (pt *ProgressTracker) writer() io.Writer {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.out
}

// printing the progress line, total is shown as ? when unknown
func (pt *ProgressTracker) PrintProgress() {
	metrics := pt.GetMetrics()

	total := "?"
	if metrics.TotalRows > 0 {
		total = fmt.Sprintf("%d", metrics.TotalRows)
	}

	fmt.Fprintf(pt.writer(), "\r[%s] Imported: %d/%s (%.1f%%) | committed %d | duplicates %d | %.0f rows/sec | ETA: %s",
		time.Now().Format("15:04:05"),
		metrics.ProcessedRows,
		total,
		metrics.ProgressPercent,
		metrics.CommittedRows,
		metrics.DuplicateRows,
		metrics.RowsPerSecond,
		formatDuration(metrics.EstimatedTimeLeft),
	)
}

// formats the duration in a human readable way
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	} else {
		return fmt.Sprintf("%ds", seconds)
	}
}

// printing final import summary
func (pt *ProgressTracker) PrintFinalSummary() {
	metrics := pt.GetMetrics()
	w := pt.writer()

	fmt.Fprintln(w, "\n===== Import Summary =====")
	fmt.Fprintf(w, "Total Duration: %s\n", formatDuration(metrics.ElapsedTime))
	if metrics.TotalRows > 0 {
		fmt.Fprintf(w, "Rows Processed: %d / %d (%.1f%%)\n", metrics.ProcessedRows, metrics.TotalRows, metrics.ProgressPercent)
	} else {
		fmt.Fprintf(w, "Rows Processed: %d\n", metrics.ProcessedRows)
	}
	fmt.Fprintf(w, "Rows Committed: %d\n", metrics.CommittedRows)
	fmt.Fprintf(w, "Duplicates Skipped: %d\n", metrics.DuplicateRows)
	fmt.Fprintf(w, "Batches: %d (%d fell back to row inserts)\n", metrics.Batches, metrics.RowFallbacks)
	fmt.Fprintf(w, "Average Speed: %.0f rows/sec\n", metrics.RowsPerSecond)

	if metrics.ErrorCount > 0 {
		fmt.Fprintf(w, "Errors Encountered: %d\n", metrics.ErrorCount)
		fmt.Fprintln(w, "\nRecent Errors:")
		for _, err := range pt.GetRecentErrors(5) {
			fmt.Fprintf(w, " - %s\n", err)
		}
	}
	fmt.Fprintln(w, "==========================")
}
