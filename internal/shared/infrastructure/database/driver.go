package database

import "strings"

// Driver represents a database backend type.
type Driver string

const (
	// DriverPostgres represents PostgreSQL.
	DriverPostgres Driver = "postgres"
	// DriverSQLite represents SQLite.
	DriverSQLite Driver = "sqlite"
)

func (d Driver) String() string {
	return string(d)
}

// IsValid reports whether the driver is a known type.
func (d Driver) IsValid() bool {
	switch d {
	case DriverPostgres, DriverSQLite:
		return true
	default:
		return false
	}
}

// DetectDriver returns the driver for a connection string.
// An empty URL selects SQLite so the service runs without external infrastructure.
func DetectDriver(url string) Driver {
	if url == "" {
		return DriverSQLite
	}
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DriverPostgres
	}
	if strings.HasPrefix(url, "sqlite://") ||
		strings.HasPrefix(url, "file:") ||
		strings.HasSuffix(url, ".db") ||
		strings.HasSuffix(url, ".sqlite") ||
		strings.HasSuffix(url, ".sqlite3") {
		return DriverSQLite
	}
	return DriverPostgres
}

// SQLitePathFromURL strips the sqlite:// scheme so the remainder can be handed to the driver.
func SQLitePathFromURL(url string) string {
	return strings.TrimPrefix(url, "sqlite://")
}
