package repository

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const pgUniqueViolation = "23505"

// NewPostgresRepository opens a job store in PostgreSQL through pgx.
func NewPostgresRepository(dsn string) (*SQLRepository, error) {
	return newSQLRepository(postgres{}, dsn)
}

type postgres struct{}

func (postgres) driverName() string { return DriverPostgres }

// rebind rewrites ? placeholders to $1, $2, ...
func (postgres) rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (postgres) isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
