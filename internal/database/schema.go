package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Credential tables.  Both map a subject to the platform access token that
// authorizes it and hold at most one row per subject.
const (
	SiteAuthorizations = "site_authorizations"
	UserAuthorizations = "user_authorizations"
)

// Migrate creates the credential tables when they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, table := range []string{SiteAuthorizations, UserAuthorizations} {
		stmt := "CREATE TABLE IF NOT EXISTS " + table + ` (
			subject_id   VARCHAR(191) NOT NULL PRIMARY KEY,
			access_token TEXT NOT NULL,
			updated_at   TIMESTAMP NOT NULL
		)`
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
	}
	return nil
}
