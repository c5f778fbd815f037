package database

import (
	"context"
	"fmt"

	"github.com/trdSystemDev/Medko-Prescricao/normalize"
)

// Outcome classifies an insert attempt.
type Outcome int

const (
	// OutcomeOK means every row of the attempt was committed.
	OutcomeOK Outcome = iota
	// OutcomeConstraintViolation means a uniqueness constraint rejected the
	// attempt and nothing from it was kept.
	OutcomeConstraintViolation
	// OutcomeError is any other failure.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeConstraintViolation:
		return "constraint_violation"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// InsertResult is what every insert call returns instead of a bare error.
type InsertResult struct {
	Outcome Outcome
	Rows    int
	Err     error
}

func insertOK(rows int) InsertResult {
	return InsertResult{Outcome: OutcomeOK, Rows: rows}
}

func insertConflict(err error) InsertResult {
	return InsertResult{Outcome: OutcomeConstraintViolation, Err: err}
}

func insertFailed(err error) InsertResult {
	return InsertResult{Outcome: OutcomeError, Err: err}
}

// Store is a destination for normalized medication rows.
type Store interface {
	Connect(ctx context.Context) error
	Close() error
	// InsertBatch stores all rows as one unit of work, or none of them.
	InsertBatch(ctx context.Context, rows []normalize.Row) InsertResult
	// InsertRow stores a single row.
	InsertRow(ctx context.Context, row normalize.Row) InsertResult
	// CountRows returns the number of rows currently in the destination.
	CountRows(ctx context.Context) (int64, error)
	Name() string
}
