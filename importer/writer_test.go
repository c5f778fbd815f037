package importer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/trdSystemDev/Medko-Prescricao/database"
	"github.com/trdSystemDev/Medko-Prescricao/normalize"
)

// store for testing the writer and the engine
type MockStore struct {
	*database.MemoryStore
	failConnect bool
	failBatch   bool
	failRowAt   int // 1-based InsertRow call that fails, 0 for never
	batchCalls  int
	rowCalls    int
	connects    int
	closes      int
}

func NewMockStore() *MockStore {
	return &MockStore{MemoryStore: database.NewMemoryStore()}
}

func (m *MockStore) Connect(ctx context.Context) error {
	m.connects++
	if m.failConnect {
		return errors.New("mock connection refused")
	}
	return m.MemoryStore.Connect(ctx)
}

func (m *MockStore) Close() error {
	m.closes++
	return m.MemoryStore.Close()
}

func (m *MockStore) InsertBatch(ctx context.Context, rows []normalize.Row) database.InsertResult {
	m.batchCalls++
	if m.failBatch {
		return database.InsertResult{Outcome: database.OutcomeError, Err: errors.New("mock server has gone away")}
	}
	return m.MemoryStore.InsertBatch(ctx, rows)
}

func (m *MockStore) InsertRow(ctx context.Context, row normalize.Row) database.InsertResult {
	m.rowCalls++
	if m.failRowAt > 0 && m.rowCalls == m.failRowAt {
		return database.InsertResult{Outcome: database.OutcomeError, Err: errors.New("mock data too long")}
	}
	return m.MemoryStore.InsertRow(ctx, row)
}

func testRows(from, n int) []normalize.Row {
	rows := make([]normalize.Row, n)
	for i := range rows {
		rows[i] = normalize.Normalize(map[string]any{
			"codigo":         fmt.Sprintf("%d", from+i),
			"numeroRegistro": fmt.Sprintf("1%08d", from+i),
			"nomeProduto":    fmt.Sprintf("Produto %d", from+i),
		}, normalize.DefaultPolicy())
	}
	return rows
}

func connectedStore(t *testing.T) *MockStore {
	t.Helper()
	store := NewMockStore()
	if err := store.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect mock store, %v", err)
	}
	return store
}

func TestWriterPartialBatchIsolation(t *testing.T) {
	ctx := context.Background()
	store := connectedStore(t)
	rows := testRows(0, 500)
	store.Seed(rows[250])

	var flushes []FlushStats
	w := NewBatchWriter(store, 500, func(s FlushStats) { flushes = append(flushes, s) })

	for _, row := range rows {
		if err := w.Append(ctx, row); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}

	if n, _ := store.CountRows(ctx); n != 500 {
		t.Errorf("Expected 1 seeded + 499 new rows, got %d", n)
	}
	if len(flushes) != 1 {
		t.Fatalf("Expected one automatic flush, got %d", len(flushes))
	}
	want := FlushStats{Attempted: 500, Committed: 499, Duplicates: 1, FellBack: true}
	if flushes[0] != want {
		t.Errorf("Expected %+v, got %+v", want, flushes[0])
	}
	if w.Processed() != 500 || w.Committed() != 499 || w.Duplicates() != 1 {
		t.Errorf("Unexpected counters %d/%d/%d", w.Processed(), w.Committed(), w.Duplicates())
	}
	if w.Buffered() != 0 {
		t.Errorf("Expected empty buffer after flush, got %d", w.Buffered())
	}
	if store.rowCalls != 500 {
		t.Errorf("Expected every row retried individually, got %d calls", store.rowCalls)
	}

	//the rows keep their source order
	stored := store.Rows()
	if stored[1] != rows[0] || stored[len(stored)-1] != rows[499] {
		t.Errorf("Expected rows stored in append order")
	}
}

func TestWriterAutoFlushThreshold(t *testing.T) {
	ctx := context.Background()
	store := connectedStore(t)
	w := NewBatchWriter(store, 3, nil)

	for _, row := range testRows(0, 7) {
		if err := w.Append(ctx, row); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}
	if store.batchCalls != 2 || w.Buffered() != 1 {
		t.Errorf("Expected 2 flushes and 1 buffered row, got %d/%d", store.batchCalls, w.Buffered())
	}

	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if store.batchCalls != 3 || w.Processed() != 7 {
		t.Errorf("Expected trailing flush of the partial batch, got %d calls, %d processed", store.batchCalls, w.Processed())
	}

	//nothing buffered, nothing sent
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if store.batchCalls != 3 {
		t.Errorf("Expected empty flush to be a no-op, got %d calls", store.batchCalls)
	}
}

func TestWriterIdempotentRerun(t *testing.T) {
	ctx := context.Background()
	store := connectedStore(t)
	rows := testRows(0, 1234)

	for run := 0; run < 2; run++ {
		w := NewBatchWriter(store, 500, nil)
		for _, row := range rows {
			if err := w.Append(ctx, row); err != nil {
				t.Fatalf("run %d: Expected no error, got %v", run+1, err)
			}
		}
		if err := w.Flush(ctx); err != nil {
			t.Fatalf("run %d: Expected no error, got %v", run+1, err)
		}

		if run == 1 {
			if w.Processed() != 1234 || w.Committed() != 0 || w.Duplicates() != 1234 {
				t.Errorf("Expected every row skipped on rerun, got %d/%d/%d", w.Processed(), w.Committed(), w.Duplicates())
			}
		}
	}

	if n, _ := store.CountRows(ctx); n != 1234 {
		t.Errorf("Expected 1234 rows after two runs, got %d", n)
	}
}

func TestWriterBatchRowEquivalence(t *testing.T) {
	ctx := context.Background()
	rows := testRows(0, 1001)

	batched := connectedStore(t)
	single := connectedStore(t)

	for _, tc := range []struct {
		store *MockStore
		size  int
	}{{batched, 500}, {single, 1}} {
		w := NewBatchWriter(tc.store, tc.size, nil)
		for _, row := range rows {
			if err := w.Append(ctx, row); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
		}
		if err := w.Flush(ctx); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}

	a, b := batched.Rows(), single.Rows()
	if len(a) != len(b) {
		t.Fatalf("Expected equal row counts, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Row %d differs between batch and row imports", i)
		}
	}
	if batched.batchCalls != 3 || single.batchCalls != 1001 {
		t.Errorf("Unexpected insert call counts %d/%d", batched.batchCalls, single.batchCalls)
	}
}

func TestWriterBulkOtherErrorIsFatal(t *testing.T) {
	ctx := context.Background()
	store := connectedStore(t)
	store.failBatch = true

	w := NewBatchWriter(store, 10, nil)
	for _, row := range testRows(0, 5) {
		w.Append(ctx, row)
	}

	err := w.Flush(ctx)
	if !errors.Is(err, ErrInsertion) {
		t.Fatalf("Expected insertion error, got %v", err)
	}
	if store.rowCalls != 0 {
		t.Errorf("Expected no row fallback for a non-duplicate error, got %d calls", store.rowCalls)
	}
	if w.Processed() != 0 {
		t.Errorf("Expected failed flush not to advance progress, got %d", w.Processed())
	}
}

func TestWriterRowOtherErrorIsFatal(t *testing.T) {
	ctx := context.Background()
	store := connectedStore(t)
	rows := testRows(0, 10)
	store.Seed(rows[0])
	store.failRowAt = 6

	w := NewBatchWriter(store, 10, nil)
	var err error
	for _, row := range rows {
		if err = w.Append(ctx, row); err != nil {
			break
		}
	}

	if !errors.Is(err, ErrInsertion) {
		t.Fatalf("Expected insertion error, got %v", err)
	}
	//rows inserted before the failure stay committed
	if n, _ := store.CountRows(ctx); n != 5 {
		t.Errorf("Expected seeded row plus 4 committed, got %d", n)
	}
	if w.Committed() != 4 || w.Duplicates() != 1 || w.Processed() != 0 {
		t.Errorf("Unexpected counters %d/%d/%d", w.Processed(), w.Committed(), w.Duplicates())
	}
	if store.rowCalls != 6 {
		t.Errorf("Expected the run to stop at the failing row, got %d calls", store.rowCalls)
	}
}

func TestNewBatchWriterDefaultSize(t *testing.T) {
	w := NewBatchWriter(NewMockStore(), 0, nil)
	if w.batchSize != DefaultBatchSize {
		t.Errorf("Expected default batch size %d, got %d", DefaultBatchSize, w.batchSize)
	}
}
