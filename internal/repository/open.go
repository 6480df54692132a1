package repository

import "fmt"

// Open returns a job store for the named driver. For the SQLite drivers dsn is
// a file path; for pgx it is a PostgreSQL connection string.
func Open(driver, dsn string) (*SQLRepository, error) {
	switch driver {
	case "", DriverSQLite3:
		return NewSQLiteRepository(dsn)
	case DriverSQLite:
		return NewPureSQLiteRepository(dsn)
	case DriverPostgres, "postgres":
		return NewPostgresRepository(dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
