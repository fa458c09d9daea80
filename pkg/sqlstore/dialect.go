package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	Name string
	// Driver is the database/sql driver name.
	Driver string
	// Like is the case-insensitive pattern operator.
	Like string
	// Timestamp is the column type for capture dates.
	Timestamp string
	// Numbered placeholders ($1, $2, ...) instead of '?'.
	Numbered bool
}

var (
	// SQLite is served by github.com/mattn/go-sqlite3.
	SQLite = Dialect{Name: "sqlite", Driver: "sqlite3", Like: "LIKE", Timestamp: "TIMESTAMP"}
	// Postgres is served by github.com/jackc/pgx/v5/stdlib.
	Postgres = Dialect{Name: "postgres", Driver: "pgx", Like: "ILIKE", Timestamp: "TIMESTAMPTZ", Numbered: true}
)

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	}
	return Dialect{}, Error.New("unsupported driver %q", driver)
}

// Rebind rewrites '?' placeholders outside string literals into the
// dialect's placeholder syntax.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
		case c == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// escapeLike escapes the LIKE wildcards in s so it matches literally with
// ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
