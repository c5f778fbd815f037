// Package importer moves normalized medication rows into a Store.
package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/trdSystemDev/Medko-Prescricao/database"
	"github.com/trdSystemDev/Medko-Prescricao/normalize"
)

// DefaultBatchSize is the number of rows sent in one bulk insert.
const DefaultBatchSize = 500

// ErrInsertion marks an insert failure that is not a duplicate key. It
// aborts the run.
var ErrInsertion = errors.New("insertion error")

// ErrConnection marks a failure to reach the destination.
var ErrConnection = errors.New("connection error")

// FlushStats describes one completed flush.
type FlushStats struct {
	Attempted  int
	Committed  int
	Duplicates int
	FellBack   bool
}

// BatchWriter buffers rows and writes them in bulk. When a bulk insert hits
// a duplicate key the batch is retried one row at a time and the duplicates
// are dropped.
type BatchWriter struct {
	store     database.Store
	batchSize int
	buf       []normalize.Row
	onFlush   func(FlushStats)

	processed  int64
	committed  int64
	duplicates int64
}

// creating a new batch writer, onFlush may be nil
func NewBatchWriter(store database.Store, batchSize int, onFlush func(FlushStats)) *BatchWriter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchWriter{
		store:     store,
		batchSize: batchSize,
		buf:       make([]normalize.Row, 0, batchSize),
		onFlush:   onFlush,
	}
}

// Append buffers row and flushes once the buffer is full.
func (w *BatchWriter) Append(ctx context.Context, row normalize.Row) error {
	w.buf = append(w.buf, row)
	if len(w.buf) >= w.batchSize {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered rows. An empty buffer is a no-op.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}

	stats := FlushStats{Attempted: len(w.buf)}

	res := w.store.InsertBatch(ctx, w.buf)
	switch res.Outcome {
	case database.OutcomeOK:
		stats.Committed = len(w.buf)

	case database.OutcomeConstraintViolation:
		stats.FellBack = true
		for i := range w.buf {
			r := w.store.InsertRow(ctx, w.buf[i])
			switch r.Outcome {
			case database.OutcomeOK:
				stats.Committed++
			case database.OutcomeConstraintViolation:
				stats.Duplicates++
			default:
				w.committed += int64(stats.Committed)
				w.duplicates += int64(stats.Duplicates)
				return fmt.Errorf("%w: row %d of %d (codigo %v): %w", ErrInsertion, i+1, len(w.buf), w.buf[i][normalize.ColCodigo], r.Err)
			}
		}

	default:
		return fmt.Errorf("%w: bulk insert of %d rows: %w", ErrInsertion, len(w.buf), res.Err)
	}

	w.processed += int64(stats.Attempted)
	w.committed += int64(stats.Committed)
	w.duplicates += int64(stats.Duplicates)
	w.buf = w.buf[:0]

	if w.onFlush != nil {
		w.onFlush(stats)
	}
	return nil
}

// Buffered returns the number of rows waiting for a flush.
func (w *BatchWriter) Buffered() int { return len(w.buf) }

// Processed counts rows of successful flushes, duplicates included.
func (w *BatchWriter) Processed() int64 { return w.processed }

// Committed counts rows the store accepted.
func (w *BatchWriter) Committed() int64 { return w.committed }

// Duplicates counts rows dropped on a duplicate key.
func (w *BatchWriter) Duplicates() int64 { return w.duplicates }
