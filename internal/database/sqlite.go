package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// NewSQLiteStore opens (or creates) a SQLite database at path. Times are
// stored as unix seconds so that ORDER BY time sorts chronologically.
func NewSQLiteStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows a single writer; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return &SQLStore{db: db, dialect: sqliteDialect{}}, nil
}

type sqliteDialect struct{}

func (sqliteDialect) createTable(table string) string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		time INTEGER NOT NULL PRIMARY KEY,
		consumption REAL NOT NULL,
		raw_consumption REAL NOT NULL,
		time_of_day TEXT NOT NULL,
		date TEXT NOT NULL
	)
	`, table)
}

func (sqliteDialect) upsert(table string) string {
	return fmt.Sprintf(`
	INSERT INTO %s (time, consumption, raw_consumption, time_of_day, date)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (time) DO UPDATE SET
		consumption = excluded.consumption,
		raw_consumption = excluded.raw_consumption,
		time_of_day = excluded.time_of_day,
		date = excluded.date
	`, table)
}

func (sqliteDialect) columnsQuery() string {
	return `SELECT name FROM pragma_table_info(?)`
}

// timeKeyQuery reports whether time is the sole primary key column or is
// covered by a single-column unique index. An INTEGER PRIMARY KEY aliases the
// rowid and has no entry in pragma_index_list, hence the first branch.
func (sqliteDialect) timeKeyQuery() string {
	return `
	SELECT (
		(SELECT count(*) FROM pragma_table_info(?1) WHERE pk > 0) = 1
		AND EXISTS (SELECT 1 FROM pragma_table_info(?1) WHERE name = 'time' AND pk = 1)
	) OR EXISTS (
		SELECT 1 FROM pragma_index_list(?1) AS il
		WHERE il."unique" = 1 AND il.partial = 0
		AND (SELECT count(*) FROM pragma_index_info(il.name)) = 1
		AND EXISTS (SELECT 1 FROM pragma_index_info(il.name) WHERE name = 'time')
	)
	`
}

func (sqliteDialect) timeValue(t time.Time) interface{} {
	return t.Unix()
}

func (sqliteDialect) resetUnsupported(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_READONLY, sqlite3.SQLITE_PERM, sqlite3.SQLITE_AUTH:
		return true
	default:
		return false
	}
}
