// Package sqlite implements the repositories and the transformation ledger on
// SQLite through the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	apperrors "github.com/Skryldev/image-host/errors"
)

// pragmas are applied to every pooled connection through the DSN.
// foreign_keys in particular is per connection and drives the cascades.
var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// Open connects to the database at path and runs pending migrations.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "sqlite.open", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.New(apperrors.CategoryConfig, "sqlite.ping", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, apperrors.New(apperrors.CategoryConfig, "sqlite.migrate", err)
	}
	return db, nil
}

func constraintCode(err error) int {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

func isUniqueViolation(err error) bool {
	c := constraintCode(err)
	return c == sqlite3.SQLITE_CONSTRAINT_UNIQUE || c == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isForeignKeyViolation(err error) bool {
	return constraintCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

func storageErr(op string, err error) error {
	return apperrors.New(apperrors.CategoryStorage, op, fmt.Errorf("database: %w", err))
}
