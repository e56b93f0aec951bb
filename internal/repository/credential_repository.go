package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/designer-bridge/internal/database"
	"github.com/iliyamo/designer-bridge/internal/utils"
)

// CredentialRepo persists subject -> access credential pairs in one table.
// Put replaces the previous credential of the subject, so the table never
// holds more than one row per subject.
type CredentialRepo struct {
	DB      *sql.DB
	dialect database.Dialect
	table   string
	sealer  *utils.Sealer
	now     func() time.Time
}

// NewSiteCredentialRepo stores credentials keyed by site id.
func NewSiteCredentialRepo(db *sql.DB, d database.Dialect, s *utils.Sealer) *CredentialRepo {
	return newCredentialRepo(db, d, database.SiteAuthorizations, s)
}

// NewUserCredentialRepo stores credentials keyed by principal id.
func NewUserCredentialRepo(db *sql.DB, d database.Dialect, s *utils.Sealer) *CredentialRepo {
	return newCredentialRepo(db, d, database.UserAuthorizations, s)
}

func newCredentialRepo(db *sql.DB, d database.Dialect, table string, s *utils.Sealer) *CredentialRepo {
	return &CredentialRepo{DB: db, dialect: d, table: table, sealer: s, now: time.Now}
}

// Put inserts or replaces the credential of subjectID.
func (r *CredentialRepo) Put(ctx context.Context, subjectID, credential string) error {
	if subjectID == "" {
		return errors.New("subject id is required")
	}
	stored, err := r.sealer.Seal(credential)
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, r.dialect.UpsertSubject(r.table), subjectID, stored, r.now().UTC())
	if err != nil {
		return fmt.Errorf("put %s credential: %w", r.table, err)
	}
	return nil
}

// Get returns the credential of subjectID or ErrNotFound.
func (r *CredentialRepo) Get(ctx context.Context, subjectID string) (string, error) {
	var stored string
	err := r.DB.QueryRowContext(ctx,
		r.dialect.Rebind("SELECT access_token FROM "+r.table+" WHERE subject_id=? LIMIT 1"),
		subjectID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s credential: %w", r.table, err)
	}
	if stored == "" {
		return "", ErrNotFound
	}
	return r.sealer.Open(stored)
}

// Clear removes every credential in the table.
func (r *CredentialRepo) Clear(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, "DELETE FROM "+r.table); err != nil {
		return fmt.Errorf("clear %s: %w", r.table, err)
	}
	return nil
}

// Count returns the number of stored credentials.
func (r *CredentialRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+r.table).Scan(&n)
	return n, err
}
