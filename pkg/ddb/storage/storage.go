// Package storage defines the narrow interface the cluster talks to the
// local relational engine through, and a concrete SQLite-backed adapter.
package storage

import "strings"

// Row is a single result row, keyed by column name, matching the shape the
// original mysql.connector dictionary cursor returns.
type Row map[string]interface{}

// QueryResult is the outcome of executing a single statement.
type QueryResult struct {
	Success      bool
	Rows         []Row
	Error        string
	RowsAffected int64
	NodeID       int
}

// Adapter is the narrow interface over the local SQL engine. It is the
// only way the coordination layer touches storage; SQL dialect parsing
// and query optimization are left entirely to the underlying engine.
type Adapter interface {
	// Connect establishes the underlying connection.
	Connect() error

	// Execute runs sql and returns rows (for reads) or an affected-row
	// count (for writes). It never begins or commits a transaction on
	// its own — callers control transaction boundaries with Begin,
	// Commit, and Rollback.
	Execute(sql string) (QueryResult, error)

	// Begin starts a local transaction.
	Begin() error

	// Commit commits the currently open local transaction.
	Commit() error

	// Rollback rolls back the currently open local transaction.
	Rollback() error

	// IsConnected reports whether the adapter holds a live connection.
	IsConnected() bool

	// Close releases the underlying connection.
	Close() error
}

// IsWriteQuery reports whether sql is a write statement by case-insensitive
// prefix match against the write-command set. Reads are never replicated.
func IsWriteQuery(sql string) bool {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	for _, cmd := range writeCommands {
		if strings.HasPrefix(upper, cmd) {
			return true
		}
	}
	return false
}

var writeCommands = []string{"INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER", "TRUNCATE"}
