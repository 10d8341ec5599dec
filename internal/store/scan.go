package store

import (
	"database/sql"
	"errors"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned by transactional operations whose target row
	// does not exist. Plain lookups return nil, nil instead.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert or update hits a UNIQUE column.
	ErrDuplicate = errors.New("duplicate")
)

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

// text scans a nullable TEXT column into a string, mapping NULL to "".
type text struct{ dst *string }

func (t text) Scan(src any) error {
	var ns sql.NullString
	if err := ns.Scan(src); err != nil {
		return err
	}
	*t.dst = ns.String
	return nil
}

// nullTime scans a nullable DATETIME column into a *time.Time.
type nullTime struct{ dst **time.Time }

func (n nullTime) Scan(src any) error {
	var nt sql.NullTime
	if err := nt.Scan(src); err != nil {
		return err
	}
	if nt.Valid {
		t := nt.Time
		*n.dst = &t
	} else {
		*n.dst = nil
	}
	return nil
}

// nullInt64 scans a nullable INTEGER column into a *int64.
type nullInt64 struct{ dst **int64 }

func (n nullInt64) Scan(src any) error {
	var ni sql.NullInt64
	if err := ni.Scan(src); err != nil {
		return err
	}
	if ni.Valid {
		v := ni.Int64
		*n.dst = &v
	} else {
		*n.dst = nil
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const sqliteTime = "2006-01-02 15:04:05"
