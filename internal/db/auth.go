package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/kube-rca/authcore/internal/model"
)

const accountColumns = `id, email, name, password_hash, role, provider, provider_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var (
		account      model.Account
		role         string
		passwordHash *string
		provider     *string
		providerID   *string
	)
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&passwordHash,
		&role,
		&provider,
		&providerID,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	account.Role = model.Role(role)
	account.PasswordHash = derefString(passwordHash)
	account.Provider = derefString(provider)
	account.ProviderID = derefString(providerID)
	return &account, nil
}

func (db *Postgres) FindAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE email = $1
	`
	return scanAccount(db.Pool.QueryRow(ctx, query, email))
}

// SaveAccount inserts a new account. A duplicate email yields ErrDuplicate.
func (db *Postgres) SaveAccount(ctx context.Context, account *model.Account) (*model.Account, error) {
	if err := account.Validate(); err != nil {
		return nil, err
	}
	id := account.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	query := `
		INSERT INTO accounts (id, email, name, password_hash, role, provider, provider_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING ` + accountColumns
	return scanAccount(db.Pool.QueryRow(ctx, query,
		id,
		account.Email,
		account.Name,
		nullString(account.PasswordHash),
		string(account.Role),
		nullString(account.Provider),
		nullString(account.ProviderID),
	))
}

// DeleteAccount removes the account. The refresh record is removed by the
// ON DELETE CASCADE on refresh_tokens.subject.
func (db *Postgres) DeleteAccount(ctx context.Context, email string) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM accounts WHERE email = $1`, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *Postgres) FindRefreshRecord(ctx context.Context, subject string) (*model.RefreshTokenRecord, error) {
	query := `
		SELECT subject, token, created_at, updated_at
		FROM refresh_tokens
		WHERE subject = $1
	`
	var record model.RefreshTokenRecord
	err := db.Pool.QueryRow(ctx, query, subject).Scan(
		&record.Subject,
		&record.Token,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &record, nil
}

// UpsertRefreshRecord creates or replaces the single refresh record of a
// subject in one statement, so concurrent logins cannot leave two rows.
func (db *Postgres) UpsertRefreshRecord(ctx context.Context, subject, token string) error {
	query := `
		INSERT INTO refresh_tokens (subject, token, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (subject) DO UPDATE
		SET token = EXCLUDED.token, updated_at = NOW()
	`
	_, err := db.Pool.Exec(ctx, query, subject, token)
	return mapError(err)
}

func (db *Postgres) DeleteRefreshRecord(ctx context.Context, subject string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE subject = $1`, subject)
	return err
}

func nullString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
