package importer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// run report statuses
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// RunReport is the on-disk record of one import run.
type RunReport struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Source     string     `json:"source"`
	Target     string     `json:"target"`
	Mode       string     `json:"mode"`
	BatchSize  int        `json:"batch_size"`
	Total      int64      `json:"total"`
	Processed  int64      `json:"processed"`
	Committed  int64      `json:"committed"`
	Duplicates int64      `json:"duplicates"`
	RowsBefore int64      `json:"rows_before"`
	RowsAfter  int64      `json:"rows_after"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
}

// ReportManager stores run reports as json files in one directory.
type ReportManager struct {
	dir string
}

// creating a new report manager, the directory is created when missing
func NewReportManager(dir string) (*ReportManager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory, %w", err)
	}
	return &ReportManager{dir: dir}, nil
}

func (rm *ReportManager) path(id string) string {
	return filepath.Join(rm.dir, id+".json")
}

// Save writes report, replacing an earlier version with the same id.
func (rm *ReportManager) Save(report *RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report, %w", err)
	}

	// written next to the target and renamed into place
	tmp := rm.path(report.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write report file, %w", err)
	}
	if err := os.Rename(tmp, rm.path(report.ID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write report file, %w", err)
	}
	return nil
}

// Load reads the report with the given id.
func (rm *ReportManager) Load(id string) (*RunReport, error) {
	data, err := os.ReadFile(rm.path(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read report file, %w", err)
	}

	var report RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report, %w", err)
	}
	return &report, nil
}

// Finish stamps report with its final status and saves it.
func (rm *ReportManager) Finish(report *RunReport, runErr error) error {
	now := time.Now()
	report.FinishedAt = &now
	if runErr != nil {
		report.Status = StatusFailed
		report.Error = runErr.Error()
	} else {
		report.Status = StatusCompleted
	}
	return rm.Save(report)
}

// List returns all readable reports, oldest first.
func (rm *ReportManager) List() ([]RunReport, error) {
	files, err := filepath.Glob(filepath.Join(rm.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list the reports, %w", err)
	}

	var reports []RunReport
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			slog.Warn("could not read report file", "file", file, "error", err)
			continue
		}
		var report RunReport
		if err := json.Unmarshal(data, &report); err != nil {
			slog.Warn("could not parse report file", "file", file, "error", err)
			continue
		}
		reports = append(reports, report)
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].StartedAt.Before(reports[j].StartedAt)
	})
	return reports, nil
}

// CleanupOld removes finished reports that started before maxAge ago. Runs
// still in progress are kept.
func (rm *ReportManager) CleanupOld(maxAge time.Duration) (int, error) {
	reports, err := rm.List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	cleaned := 0
	for _, report := range reports {
		if report.Status == StatusInProgress || !report.StartedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(rm.path(report.ID)); err != nil {
			slog.Warn("could not remove report", "id", report.ID, "error", err)
			continue
		}
		cleaned++
	}

	slog.Debug("cleaned up old reports", "count", cleaned)
	return cleaned, nil
}
