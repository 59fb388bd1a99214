package persistence

import (
	"database/sql"
	"time"
)

// SQLiteTimeLayout is fixed-width UTC so that TEXT comparisons order like instants.
const SQLiteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatSQLiteTime renders t for storage in a TEXT column.
func FormatSQLiteTime(t time.Time) string {
	return t.UTC().Format(SQLiteTimeLayout)
}

// NullSQLiteTime renders an optional time.
func NullSQLiteTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatSQLiteTime(*t), Valid: true}
}

// ParseSQLiteTime parses a stored timestamp, accepting RFC 3339 written by other tools.
func ParseSQLiteTime(s string) (time.Time, error) {
	if t, err := time.Parse(SQLiteTimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// ParseNullSQLiteTime parses an optional stored timestamp.
func ParseNullSQLiteTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := ParseSQLiteTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
