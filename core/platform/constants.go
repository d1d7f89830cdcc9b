package platform

import (
	"strconv"
	"strings"
)

const (
	Postgres = "postgres"
	MySQL    = "mysql"
	MariaDB  = "mariadb"
	SQLite   = "sqlite"
)

// NormalizeDialect maps driver names and URL schemes onto one of the
// supported dialect constants. Unknown values yield an empty string.
func NormalizeDialect(dialect string) string {
	switch strings.ToLower(dialect) {
	case "pgx", "postgresql", "postgres", "pq":
		return Postgres
	case "mysql":
		return MySQL
	case "mariadb":
		return MariaDB
	case "sqlite", "sqlite3", "file":
		return SQLite
	default:
		return ""
	}
}

// IsMySQLFamily reports whether the dialect speaks the MySQL wire protocol.
func IsMySQLFamily(dialect string) bool {
	return dialect == MySQL || dialect == MariaDB
}

// Rebind rewrites '?' bind markers into the dialect's native form.
// Markers inside single-quoted literals are left alone.
func Rebind(dialect, query string) string {
	if dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			b.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
