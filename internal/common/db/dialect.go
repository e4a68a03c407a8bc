package db

import (
	"strconv"
	"strings"
)

// Dialect identifies the SQL flavour of a connection.
type Dialect int

const (
	DialectMySQL Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	default:
		return "mysql"
	}
}

// ParseDialect maps a driver name from configuration to a Dialect.
func ParseDialect(driver string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "mysql":
		return DialectMySQL, true
	case "postgres", "postgresql", "pq":
		return DialectPostgres, true
	default:
		return DialectMySQL, false
	}
}

// Rebind rewrites '?' placeholders to '$n' for PostgreSQL. Quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// InsertIgnore returns an INSERT statement that silently skips rows violating a unique key.
// conflictColumns is only used by PostgreSQL.
func (d Dialect) InsertIgnore(table, columns, placeholders, conflictColumns string) string {
	if d == DialectPostgres {
		return "INSERT INTO " + table + " (" + columns + ") VALUES (" + placeholders +
			") ON CONFLICT (" + conflictColumns + ") DO NOTHING"
	}
	return "INSERT IGNORE INTO " + table + " (" + columns + ") VALUES (" + placeholders + ")"
}
