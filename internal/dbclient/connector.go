package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// QueryPage is a batch of rows fetched from a query cursor.
type QueryPage struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	TotalFetched int      `json:"totalFetched"` // total rows fetched so far
	HasMore      bool     `json:"hasMore"`      // cursor has more rows
	IsWrite      bool     `json:"isWrite"`
	AffectedRows int      `json:"affectedRows"`
}

// ColumnInfo describes a column/field. Type is one of the etl schema
// types: text, number, boolean, datetime.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Connector abstracts interaction with an external database.
type Connector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// Execute runs a query and returns the first batch of rows.
	// For reads: opens a cursor and fetches fetchSize rows.
	// For writes: executes and returns affected rows count.
	Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error)

	// FetchMore continues reading from the open cursor.
	FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error)

	// Insert appends rows to table, creating it from columns when it does
	// not exist yet. It returns the number of rows written.
	Insert(ctx context.Context, table string, columns []ColumnInfo, rows [][]any) (int, error)

	// Count returns the number of rows in table.
	Count(ctx context.Context, table string) (int64, error)

	// Close closes the connection and any open cursors.
	Close() error
}

// NewConnector creates a Connector for the given database connection.
// The password is provided separately, usually from the environment.
func NewConnector(conn *Connection, password string, logger *slog.Logger) (Connector, error) {
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	switch conn.Driver {
	case DriverMongoDB:
		return newMongoConnector(conn, password, logger)
	default:
		db, err := OpenSQL(conn, password)
		if err != nil {
			return nil, err
		}
		return &sqlConnector{driver: conn.Driver, db: db, logger: logger}, nil
	}
}

// OpenSQL opens a pooled *sql.DB for a SQL-backed connection.
func OpenSQL(conn *Connection, password string) (*sql.DB, error) {
	var driverName, dsn string
	switch conn.Driver {
	case DriverSQLite:
		driverName, dsn = "sqlite", buildSQLiteDSN(conn)
	case DriverMySQL:
		driverName, dsn = "mysql", buildMySQLDSN(conn, password)
	case DriverPostgres:
		driverName, dsn = "postgres", buildPostgresDSN(conn, password)
	default:
		return nil, fmt.Errorf("not a sql driver: %s", conn.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if conn.Driver == DriverSQLite {
		// One writer at a time avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(sqlConnMaxLifetime)
	return db, nil
}
