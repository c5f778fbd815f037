package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/trdSystemDev/Medko-Prescricao/config"
	"github.com/trdSystemDev/Medko-Prescricao/normalize"
)

// MySQL error numbers for duplicate keys
const (
	mysqlErrDupEntry        = 1062
	mysqlErrDupEntryKeyName = 1586
)

type MySQLClient struct {
	DSN          string
	Table        string
	MaxOpenConns int
	DB           *sql.DB
}

// create a MySQL client from a ready DSN, (for tests)
func NewMySQLClient(dsn, table string) *MySQLClient {
	return &MySQLClient{
		DSN:   dsn,
		Table: table,
	}
}

// create a new MySQL client from a parsed DATABASE_URL
func NewMySQLClientFromConnection(conn *config.Connection, table string, maxOpen int) *MySQLClient {
	return &MySQLClient{
		DSN:          conn.MySQLDSN(),
		Table:        table,
		MaxOpenConns: maxOpen,
	}
}

func (c *MySQLClient) Name() string { return config.BackendMySQL }

// to connect with the MySQL DB
func (c *MySQLClient) Connect(ctx context.Context) error {
	db, err := openSQL(ctx, "mysql", c.DSN, c.MaxOpenConns)
	if err != nil {
		return fmt.Errorf("failed to connect to MySQL database, %w", err)
	}
	c.DB = db

	slog.Debug("connected to MySQL database", "table", c.Table)
	return nil
}

// closes the database connection
func (c *MySQLClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

func (c *MySQLClient) store() sqlStore {
	return sqlStore{db: c.DB, table: c.Table, dialect: mysqlDialect}
}

func (c *MySQLClient) InsertBatch(ctx context.Context, rows []normalize.Row) InsertResult {
	return c.store().insertBatch(ctx, rows)
}

func (c *MySQLClient) InsertRow(ctx context.Context, row normalize.Row) InsertResult {
	return c.store().insertRow(ctx, row)
}

func (c *MySQLClient) CountRows(ctx context.Context) (int64, error) {
	return c.store().countRows(ctx)
}

var mysqlDialect = dialect{
	name:              config.BackendMySQL,
	quote:             quoteMySQL,
	placeholder:       func(int) string { return "?" },
	isUniqueViolation: isMySQLDuplicate,
}

// backticks are doubled to keep identifiers from escaping the quote
func quoteMySQL(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func isMySQLDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	return myErr.Number == mysqlErrDupEntry || myErr.Number == mysqlErrDupEntryKeyName
}
