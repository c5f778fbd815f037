package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/trdSystemDev/Medko-Prescricao/config"
	"github.com/trdSystemDev/Medko-Prescricao/normalize"
)

func sampleRows(n int) []normalize.Row {
	rows := make([]normalize.Row, n)
	for i := range rows {
		rows[i] = normalize.Normalize(map[string]any{
			"codigo":         fmt.Sprintf("C%d", i),
			"numeroRegistro": fmt.Sprintf("R%d", i),
			"nomeProduto":    "Produto",
		}, normalize.DefaultPolicy())
	}
	return rows
}

func driverArgs(row normalize.Row) []driver.Value {
	vals := row.Values()
	out := make([]driver.Value, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

var mysqlInsertPrefix = regexp.QuoteMeta("INSERT INTO `medications` (`codigo`, `numeroRegistro`, `nomeProduto`")

func newMockMySQL(t *testing.T) (*MySQLClient, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock, %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &MySQLClient{DB: db, Table: "medications"}, mock
}

func TestMySQLInsertBatch(t *testing.T) {
	client, mock := newMockMySQL(t)
	rows := sampleRows(3)

	mock.ExpectBegin()
	mock.ExpectExec(mysqlInsertPrefix).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	res := client.InsertBatch(context.Background(), rows)
	if res.Outcome != OutcomeOK || res.Rows != 3 {
		t.Errorf("Expected ok with 3 rows, got %s/%d (%v)", res.Outcome, res.Rows, res.Err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations, %v", err)
	}
}

func TestMySQLInsertBatchDuplicate(t *testing.T) {
	client, mock := newMockMySQL(t)

	mock.ExpectBegin()
	mock.ExpectExec(mysqlInsertPrefix).WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'C1' for key 'numeroProcesso'"})
	mock.ExpectRollback()

	res := client.InsertBatch(context.Background(), sampleRows(2))
	if res.Outcome != OutcomeConstraintViolation {
		t.Errorf("Expected constraint violation, got %s (%v)", res.Outcome, res.Err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Expected the batch to be rolled back, %v", err)
	}
}

func TestMySQLInsertBatchOtherError(t *testing.T) {
	client, mock := newMockMySQL(t)

	mock.ExpectBegin()
	mock.ExpectExec(mysqlInsertPrefix).WillReturnError(&mysql.MySQLError{Number: 1406, Message: "Data too long"})
	mock.ExpectRollback()

	res := client.InsertBatch(context.Background(), sampleRows(2))
	if res.Outcome != OutcomeError || res.Err == nil {
		t.Errorf("Expected other error, got %s (%v)", res.Outcome, res.Err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations, %v", err)
	}
}

func TestMySQLInsertBatchRollbackFailure(t *testing.T) {
	client, mock := newMockMySQL(t)

	mock.ExpectBegin()
	mock.ExpectExec(mysqlInsertPrefix).WillReturnError(&mysql.MySQLError{Number: 1062})
	mock.ExpectRollback().WillReturnError(errors.New("connection lost"))

	//a duplicate that cannot be rolled back is not recoverable
	res := client.InsertBatch(context.Background(), sampleRows(2))
	if res.Outcome != OutcomeError {
		t.Errorf("Expected error outcome, got %s", res.Outcome)
	}
}

func TestMySQLInsertRow(t *testing.T) {
	client, mock := newMockMySQL(t)
	row := sampleRows(1)[0]

	mock.ExpectExec(mysqlInsertPrefix).WithArgs(driverArgs(row)...).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(mysqlInsertPrefix).WillReturnError(&mysql.MySQLError{Number: 1062})
	mock.ExpectExec(mysqlInsertPrefix).WillReturnError(errors.New("bad connection"))

	tests := []Outcome{OutcomeOK, OutcomeConstraintViolation, OutcomeError}
	for i, want := range tests {
		if res := client.InsertRow(context.Background(), row); res.Outcome != want {
			t.Errorf("[Test case: %d] Expected %s, got %s (%v)", i+1, want, res.Outcome, res.Err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations, %v", err)
	}
}

func TestMySQLCountRows(t *testing.T) {
	client, mock := newMockMySQL(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `medications`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(17808))

	n, err := client.CountRows(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n != 17808 {
		t.Errorf("Expected 17808 rows, got %d", n)
	}
}

func TestMySQLNotConnected(t *testing.T) {
	client := NewMySQLClient("user:pass@tcp(localhost:3306)/medko", "medications")

	if res := client.InsertBatch(context.Background(), sampleRows(1)); res.Outcome != OutcomeError {
		t.Errorf("Expected error without a connection, got %s", res.Outcome)
	}
	if res := client.InsertRow(context.Background(), sampleRows(1)[0]); res.Outcome != OutcomeError {
		t.Errorf("Expected error without a connection, got %s", res.Outcome)
	}
	if _, err := client.CountRows(context.Background()); err == nil {
		t.Errorf("Expected error without a connection")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Expected Close on an unconnected client to succeed, got %v", err)
	}
}

func TestIsMySQLDuplicate(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&mysql.MySQLError{Number: 1062}, true},
		{&mysql.MySQLError{Number: 1586}, true},
		{fmt.Errorf("exec: %w", &mysql.MySQLError{Number: 1062}), true},
		{&mysql.MySQLError{Number: 1452}, false},
		{errors.New("Duplicate entry"), false},
		{nil, false},
	}
	for i, tc := range tests {
		if got := isMySQLDuplicate(tc.err); got != tc.want {
			t.Errorf("[Test case: %d] Expected %v for %v", i+1, tc.want, tc.err)
		}
	}
}

func TestMySQLInsertQuery(t *testing.T) {
	q := sqlStore{table: "medications", dialect: mysqlDialect}.insertQuery(2)

	if !strings.HasPrefix(q, "INSERT INTO `medications` (`codigo`,") {
		t.Errorf("Unexpected query prefix %q", q)
	}
	if strings.Count(q, "?") != 2*normalize.ColumnCount {
		t.Errorf("Expected %d placeholders, got %d", 2*normalize.ColumnCount, strings.Count(q, "?"))
	}
	if !strings.HasSuffix(q, "`dataPublicacao`) VALUES "+placeholders(21, "?")+", "+placeholders(21, "?")) {
		t.Errorf("Unexpected query suffix %q", q)
	}
	if quoteMySQL("a`b") != "`a``b`" {
		t.Errorf("Expected backticks to be doubled, got %s", quoteMySQL("a`b"))
	}
}

func placeholders(n int, p string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = p
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// live database, skipped unless MYSQL_TEST_URL is set
func TestMySQLConnection(t *testing.T) {
	raw := os.Getenv("MYSQL_TEST_URL")
	if raw == "" {
		t.Skip("Skipping Tests: MYSQL_TEST_URL must be present")
	}

	conn, err := config.ParseDatabaseURL(raw)
	if err != nil {
		t.Fatalf("Failed to parse MYSQL_TEST_URL, %v", err)
	}

	client := NewMySQLClientFromConnection(conn, "medications", 2)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect to the MySQL database %v", err)
	}
	defer client.Close()

	if _, err := client.CountRows(context.Background()); err != nil {
		t.Fatalf("Failed to count rows, %v", err)
	}
	t.Log("Successfully connected to MySQL database")
}
