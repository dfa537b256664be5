// Package sqlbackend compiles search predicates to SQL with squirrel
package sqlbackend

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect captures the SQL differences the builder cares about
type Dialect struct {
	Name        string
	Placeholder sq.PlaceholderFormat
	// NativeILike is true when the database understands ILIKE
	NativeILike bool
}

var (
	Postgres = Dialect{Name: "postgres", Placeholder: sq.Dollar, NativeILike: true}
	SQLite   = Dialect{Name: "sqlite", Placeholder: sq.Question}
)

// ParseDialect returns the dialect for a name or driver name
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unknown SQL dialect %q", name)
	}
}

// String returns the dialect name
func (d Dialect) String() string {
	return d.Name
}
