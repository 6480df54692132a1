package repository

import (
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

const (
	DriverSQLite3  = "sqlite3"
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// NewSQLiteRepository opens a job store in a SQLite file using the cgo driver.
// WAL mode and a busy timeout let several worker processes share the file.
func NewSQLiteRepository(dbPath string) (*SQLRepository, error) {
	return newSQLRepository(cgoSQLite{}, dbPath+"?_journal_mode=WAL&_timeout=5000")
}

// NewPureSQLiteRepository opens the same SQLite layout through the pure-Go driver,
// for builds without cgo.
func NewPureSQLiteRepository(dbPath string) (*SQLRepository, error) {
	return newSQLRepository(pureSQLite{}, dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
}

type cgoSQLite struct{}

func (cgoSQLite) driverName() string { return DriverSQLite3 }

func (cgoSQLite) rebind(query string) string { return query }

func (cgoSQLite) isDuplicate(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

type pureSQLite struct{}

func (pureSQLite) driverName() string { return DriverSQLite }

func (pureSQLite) rebind(query string) string { return query }

func (pureSQLite) isDuplicate(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		// extended codes carry the primary code in the low byte
		return sqliteErr.Code()&0xff == sqlitelib.SQLITE_CONSTRAINT
	}
	return false
}
