package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/trdSystemDev/Medko-Prescricao/config"
	"github.com/trdSystemDev/Medko-Prescricao/normalize"
)

// SQLSTATE unique_violation
const pqUniqueViolation = "23505"

type PostgreSQLClient struct {
	DSN          string
	Table        string
	MaxOpenConns int
	DB           *sql.DB
}

func NewPostgreSQLClient(dsn, table string) *PostgreSQLClient {
	return &PostgreSQLClient{
		DSN:   dsn,
		Table: table,
	}
}

func NewPostgreSQLClientFromConnection(conn *config.Connection, table string, maxOpen int) *PostgreSQLClient {
	return &PostgreSQLClient{
		DSN:          conn.PostgresDSN(),
		Table:        table,
		MaxOpenConns: maxOpen,
	}
}

func (p *PostgreSQLClient) Name() string { return config.BackendPostgres }

// connect to Postgresql database
func (p *PostgreSQLClient) Connect(ctx context.Context) error {
	db, err := openSQL(ctx, "postgres", p.DSN, p.MaxOpenConns)
	if err != nil {
		return fmt.Errorf("failed to connect to postgresql database, %w", err)
	}
	p.DB = db

	slog.Debug("connected to postgresql database", "table", p.Table)
	return nil
}

func (p *PostgreSQLClient) Close() error {
	if p.DB != nil {
		return p.DB.Close()
	}
	return nil
}

func (p *PostgreSQLClient) store() sqlStore {
	return sqlStore{db: p.DB, table: p.Table, dialect: postgresDialect}
}

func (p *PostgreSQLClient) InsertBatch(ctx context.Context, rows []normalize.Row) InsertResult {
	return p.store().insertBatch(ctx, rows)
}

func (p *PostgreSQLClient) InsertRow(ctx context.Context, row normalize.Row) InsertResult {
	return p.store().insertRow(ctx, row)
}

func (p *PostgreSQLClient) CountRows(ctx context.Context) (int64, error) {
	return p.store().countRows(ctx)
}

var postgresDialect = dialect{
	name:              config.BackendPostgres,
	quote:             quotePostgres,
	placeholder:       func(n int) string { return "$" + strconv.Itoa(n) },
	isUniqueViolation: isPostgresDuplicate,
}

// camelCase columns only survive when quoted
func quotePostgres(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func isPostgresDuplicate(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqUniqueViolation
}
