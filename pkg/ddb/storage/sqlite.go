package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	// Registers the "sqlite3" driver with database/sql.
	_ "github.com/mattn/go-sqlite3"
)

// Config describes how to reach the node's local relational store. The
// host/user/password/port fields are accepted so the same config shape
// works across backends, even though the SQLite adapter only consumes
// Database as a DSN (file path or ":memory:").
type Config struct {
	Host     string
	User     string
	Password string
	Database string
	Port     int
}

// SQLiteAdapter implements Adapter over database/sql + mattn/go-sqlite3.
// A single shared *sql.DB with a mutex serializes access, which is
// enough for SQLite's single-writer model without needing a pool.
type SQLiteAdapter struct {
	dsn string

	mu   sync.Mutex
	db   *sql.DB
	tx   *sql.Tx
}

// NewSQLiteAdapter builds an adapter for the given config. Database names
// a file path; use ":memory:" for an ephemeral in-process store.
func NewSQLiteAdapter(cfg Config) *SQLiteAdapter {
	dsn := cfg.Database
	if dsn == "" {
		dsn = ":memory:"
	}
	return &SQLiteAdapter{dsn: dsn}
}

func (a *SQLiteAdapter) Connect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	db, err := sql.Open("sqlite3", a.dsn)
	if err != nil {
		return fmt.Errorf("storage: open sqlite %q: %w", a.dsn, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("storage: ping sqlite %q: %w", a.dsn, err)
	}
	a.db = db
	return nil
}

func (a *SQLiteAdapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.db != nil && a.db.Ping() == nil
}

func (a *SQLiteAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *SQLiteAdapter) Begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return fmt.Errorf("storage: not connected")
	}
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	a.tx = tx
	return nil
}

func (a *SQLiteAdapter) Commit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tx == nil {
		return fmt.Errorf("storage: commit without open transaction")
	}
	err := a.tx.Commit()
	a.tx = nil
	return err
}

func (a *SQLiteAdapter) Rollback() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tx == nil {
		return fmt.Errorf("storage: rollback without open transaction")
	}
	err := a.tx.Rollback()
	a.tx = nil
	return err
}

// Execute runs sql against the open transaction if one exists (the 2PC
// participant path and replicator follower path both execute inside an
// open transaction before deciding whether to Commit or Rollback), or
// directly against the pool otherwise.
func (a *SQLiteAdapter) Execute(query string) (QueryResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db == nil {
		return QueryResult{}, fmt.Errorf("storage: not connected")
	}

	isRead := strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT")

	var execer interface {
		Query(string, ...interface{}) (*sql.Rows, error)
		Exec(string, ...interface{}) (sql.Result, error)
	}
	if a.tx != nil {
		execer = a.tx
	} else {
		execer = a.db
	}

	if isRead {
		rows, err := execer.Query(query)
		if err != nil {
			return QueryResult{Success: false, Error: err.Error()}, nil
		}
		defer rows.Close()

		result, err := scanRows(rows)
		if err != nil {
			return QueryResult{Success: false, Error: err.Error()}, nil
		}
		return QueryResult{Success: true, Rows: result, RowsAffected: int64(len(result))}, nil
	}

	res, err := execer.Exec(query)
	if err != nil {
		return QueryResult{Success: false, Error: err.Error()}, nil
	}
	affected, _ := res.RowsAffected()
	return QueryResult{Success: true, RowsAffected: affected}, nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
