package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DriverFor picks the SQL driver from a store location. Postgres URLs go to
// lib/pq, everything else is treated as a SQLite file path (":memory:" included).
func DriverFor(location string) (driver, dsn string) {
	l := strings.TrimSpace(location)
	if strings.HasPrefix(l, "postgres://") || strings.HasPrefix(l, "postgresql://") {
		return DriverPostgres, l
	}
	l = strings.TrimPrefix(l, "sqlite://")
	if !strings.Contains(l, "_time_format=") {
		sep := "?"
		if strings.Contains(l, "?") {
			sep = "&"
		}
		// sortable text timestamps
		l += sep + "_time_format=sqlite"
	}
	return DriverSQLite, l
}

func Open(ctx context.Context, location string) (*sqlx.DB, error) {
	if strings.TrimSpace(location) == "" {
		return nil, errors.New("store location is empty")
	}
	driver, dsn := DriverFor(location)
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if driver == DriverSQLite {
		// single writer lane; also keeps ":memory:" bound to one connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s store: %w", driver, err)
	}
	return db, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
