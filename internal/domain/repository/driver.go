package repository

import "strings"

// Driver names a PairStore backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// IsValidDriver returns true if d is a supported backend.
func IsValidDriver(d Driver) bool {
	switch d {
	case DriverMemory, DriverSQLite, DriverPostgres:
		return true
	default:
		return false
	}
}

// DefaultDriver returns the default backend.
func DefaultDriver() Driver { return DriverSQLite }

// NormalizeDriver converts raw string to a valid driver (or default).
func NormalizeDriver(s string) Driver {
	if s == "" {
		return DefaultDriver()
	}
	d := Driver(strings.ToLower(strings.TrimSpace(s)))
	if IsValidDriver(d) {
		return d
	}
	return DefaultDriver()
}
