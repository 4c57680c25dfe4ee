package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kube-rca/authcore/internal/db"
	"github.com/kube-rca/authcore/internal/model"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// AccountService creates and removes local password accounts.
type AccountService struct {
	store CredentialStore
	cost  int
	log   zerolog.Logger
}

func NewAccountService(store CredentialStore, log zerolog.Logger) *AccountService {
	return &AccountService{
		store: store,
		cost:  bcrypt.DefaultCost,
		log:   log.With().Str("component", "accounts").Logger(),
	}
}

// Signup validates the request and stores a new local account. An existing
// email is rejected before the password is hashed or anything is written.
func (s *AccountService) Signup(ctx context.Context, req model.SignupRequest) (*model.Account, error) {
	email := normalizeEmail(req.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return nil, ErrInvalidInput
	}

	if _, err := s.store.FindAccountByEmail(ctx, email); err == nil {
		return nil, ErrAccountAlreadyExists
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("find account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = email[:strings.IndexByte(email, '@')]
	}

	saved, err := s.store.SaveAccount(ctx, &model.Account{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, ErrAccountAlreadyExists
		}
		return nil, fmt.Errorf("save account: %w", err)
	}

	s.log.Info().Str("subject", email).Str("role", string(role)).Msg("account created")
	return saved, nil
}

// Delete removes the account. Its refresh record goes with it.
func (s *AccountService) Delete(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := s.store.DeleteAccount(ctx, email); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("delete account: %w", err)
	}
	s.log.Info().Str("subject", email).Msg("account deleted")
	return nil
}

// EnsureAdmin creates a local ADMIN account unless the email is already
// taken. An existing account is left as is, whatever its role.
func (s *AccountService) EnsureAdmin(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: ADMIN_EMAIL/ADMIN_PASSWORD are required", ErrMisconfigured)
	}

	_, err := s.Signup(ctx, model.SignupRequest{
		Email:    email,
		Password: password,
		Name:     "admin",
		Role:     string(model.RoleAdmin),
	})
	if errors.Is(err, ErrAccountAlreadyExists) {
		return nil
	}
	return err
}
