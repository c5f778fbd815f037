package importer

import (
	"fmt"
	"log/slog"

	"github.com/trdSystemDev/Medko-Prescricao/source"
)

// for batch processing of fully loaded records
type BatchProcessor struct {
	batchSize int
}

// creating a new batch processor
func NewBatchProcessor(batchSize int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchProcessor{batchSize: batchSize}
}

// processing data in batches, stops at the first failing batch
func (bp *BatchProcessor) ProcessInBatches(data []source.RawRecord, processFunc func([]source.RawRecord) error) error {
	if len(data) == 0 {
		return nil
	}

	for i := 0; i < len(data); i += bp.batchSize {
		end := i + bp.batchSize
		if end > len(data) {
			end = len(data)
		}
		batch := data[i:end]
		if err := processFunc(batch); err != nil {
			return fmt.Errorf("failed to process the batch %d-%d: %w", i, end, err)
		}

		slog.Debug("processed batch", "from", i, "to", end, "rows", len(batch))
	}
	return nil
}
