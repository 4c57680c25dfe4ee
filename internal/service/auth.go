package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/kube-rca/authcore/internal/db"
	"github.com/kube-rca/authcore/internal/model"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLength = 72
	maxEmailLength    = 254
)

var (
	ErrInvalidInput             = errors.New("invalid input")
	ErrAccountNotFound          = errors.New("account not found")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrAccountAlreadyExists     = errors.New("account already exists")
	ErrProviderAccountCollision = errors.New("email belongs to a local password account")
	ErrSessionNotFound          = errors.New("session not found")
	ErrSessionExpired           = errors.New("session expired")
	ErrAccessTokenNotExpired    = errors.New("access token has not expired")
	ErrMisconfigured            = errors.New("auth config invalid")
)

// CredentialStore persists accounts and the single refresh record per
// account. Lookups return db.ErrNotFound when nothing matches and
// SaveAccount returns db.ErrDuplicate for an existing email.
// UpsertRefreshRecord must be atomic per subject.
type CredentialStore interface {
	FindAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	SaveAccount(ctx context.Context, account *model.Account) (*model.Account, error)
	DeleteAccount(ctx context.Context, email string) error
	FindRefreshRecord(ctx context.Context, subject string) (*model.RefreshTokenRecord, error)
	UpsertRefreshRecord(ctx context.Context, subject, token string) error
	DeleteRefreshRecord(ctx context.Context, subject string) error
}

// Authenticator checks a password login against the stored bcrypt hash.
type Authenticator struct {
	store CredentialStore
	log   zerolog.Logger
}

func NewAuthenticator(store CredentialStore, log zerolog.Logger) *Authenticator {
	return &Authenticator{
		store: store,
		log:   log.With().Str("component", "authenticator").Logger(),
	}
}

func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (*model.Account, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	account, err := a.store.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}

	// Federated accounts have no password and can only log in through
	// their provider.
	if account.PasswordHash == "" {
		a.log.Debug().Str("subject", email).Msg("password login attempted on federated account")
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		a.log.Debug().Str("subject", email).Msg("password mismatch")
		return nil, ErrInvalidCredentials
	}

	return account, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" || len(email) > maxEmailLength {
		return ErrInvalidInput
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidInput
	}
	return nil
}

func validatePassword(password string) error {
	if len(strings.TrimSpace(password)) < minPasswordLength || len(password) > maxPasswordLength {
		return ErrInvalidInput
	}
	return nil
}
