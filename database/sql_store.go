package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trdSystemDev/Medko-Prescricao/normalize"
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	name              string
	quote             func(ident string) string
	placeholder       func(n int) string
	isUniqueViolation func(err error) bool
}

// sqlStore implements the insert contract on top of database/sql.
type sqlStore struct {
	db      *sql.DB
	table   string
	dialect dialect
}

// opening a pooled handle and checking it answers
func openSQL(ctx context.Context, driver, dsn string, maxOpen int) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if maxOpen <= 0 {
		maxOpen = 4
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// builds a multi-row INSERT for n rows
func (s sqlStore) insertQuery(n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(s.dialect.quote(s.table))
	b.WriteString(" (")
	for i, col := range normalize.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.dialect.quote(col))
	}
	b.WriteString(") VALUES ")

	arg := 1
	for r := 0; r < n; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < normalize.ColumnCount; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(s.dialect.placeholder(arg))
			arg++
		}
		b.WriteByte(')')
	}
	return b.String()
}

func flatten(rows []normalize.Row) []any {
	args := make([]any, 0, len(rows)*normalize.ColumnCount)
	for i := range rows {
		args = append(args, rows[i].Values()...)
	}
	return args
}

func (s sqlStore) classify(err error) InsertResult {
	if s.dialect.isUniqueViolation(err) {
		return insertConflict(err)
	}
	return insertFailed(err)
}

// insertBatch runs one multi-row INSERT inside a transaction. Any failure
// rolls the transaction back before the result is classified.
func (s sqlStore) insertBatch(ctx context.Context, rows []normalize.Row) InsertResult {
	if s.db == nil {
		return insertFailed(fmt.Errorf("%s connection not established", s.dialect.name))
	}
	if len(rows) == 0 {
		return insertOK(0)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return insertFailed(fmt.Errorf("failed to begin transaction, %w", err))
	}

	if _, err := tx.ExecContext(ctx, s.insertQuery(len(rows)), flatten(rows)...); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return insertFailed(fmt.Errorf("batch insert failed, %v; rollback failed, %w", err, rbErr))
		}
		return s.classify(err)
	}

	if err := tx.Commit(); err != nil {
		return s.classify(err)
	}
	return insertOK(len(rows))
}

func (s sqlStore) insertRow(ctx context.Context, row normalize.Row) InsertResult {
	if s.db == nil {
		return insertFailed(fmt.Errorf("%s connection not established", s.dialect.name))
	}
	if _, err := s.db.ExecContext(ctx, s.insertQuery(1), row.Values()...); err != nil {
		return s.classify(err)
	}
	return insertOK(1)
}

func (s sqlStore) countRows(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("%s connection not established", s.dialect.name)
	}
	var n int64
	query := "SELECT COUNT(*) FROM " + s.dialect.quote(s.table)
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s, %w", s.table, err)
	}
	return n, nil
}
