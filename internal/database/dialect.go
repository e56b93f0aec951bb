package database

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between the supported drivers.
type Dialect struct {
	Name string
}

var (
	MySQL    = Dialect{Name: "mysql"}
	SQLite   = Dialect{Name: "sqlite"}
	Postgres = Dialect{Name: "postgres"}
)

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Rebind rewrites "?" placeholders into the dialect's bind syntax.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// UpsertSubject returns the statement that inserts or replaces the
// credential of one subject in table.  Arguments are subject id, access
// token and update time.
func (d Dialect) UpsertSubject(table string) string {
	if d == MySQL {
		return "INSERT INTO " + table + " (subject_id, access_token, updated_at) VALUES (?,?,?) " +
			"ON DUPLICATE KEY UPDATE access_token=VALUES(access_token), updated_at=VALUES(updated_at)"
	}
	return d.Rebind("INSERT INTO " + table + " (subject_id, access_token, updated_at) VALUES (?,?,?) " +
		"ON CONFLICT (subject_id) DO UPDATE SET access_token=excluded.access_token, updated_at=excluded.updated_at")
}
