package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kube-rca/authcore/internal/db"
	"github.com/kube-rca/authcore/internal/model"
	"github.com/rs/zerolog"
)

// Reconciler maps provider profiles onto local accounts. Reconcile never
// writes; FinalizeSignup is the only call that persists a federated account.
type Reconciler struct {
	store CredentialStore
	log   zerolog.Logger
}

func NewReconciler(store CredentialStore, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		store: store,
		log:   log.With().Str("component", "reconciler").Logger(),
	}
}

// Reconcile looks up the account for the profile's email. When none exists
// it returns an unsaved MEMBER account carrying the provider identity and
// isNew=true. A local password account with the same email is a collision.
func (r *Reconciler) Reconcile(ctx context.Context, provider string, profile model.ProviderProfile) (*model.Account, bool, error) {
	email, err := profileEmail(provider, profile)
	if err != nil {
		return nil, false, err
	}

	existing, err := r.store.FindAccountByEmail(ctx, email)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return &model.Account{
			Email:      email,
			Name:       profileName(profile),
			Role:       model.RoleMember,
			Provider:   provider,
			ProviderID: profile.Subject,
		}, true, nil
	case err != nil:
		return nil, false, fmt.Errorf("find account: %w", err)
	}

	if !existing.IsFederated() {
		r.log.Warn().Str("subject", email).Str("provider", provider).Msg("provider login collides with local account")
		return nil, false, ErrProviderAccountCollision
	}
	return existing, false, nil
}

// FinalizeSignup persists a federated account for a profile Reconcile
// reported as new. The email is checked again since another request may
// have created it in between.
func (r *Reconciler) FinalizeSignup(ctx context.Context, provider string, profile model.ProviderProfile, role model.Role) (*model.Account, error) {
	email, err := profileEmail(provider, profile)
	if err != nil {
		return nil, err
	}
	if role == "" {
		role = model.RoleMember
	}
	if !role.Valid() {
		return nil, ErrInvalidInput
	}

	if _, err := r.store.FindAccountByEmail(ctx, email); err == nil {
		return nil, ErrAccountAlreadyExists
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("find account: %w", err)
	}

	saved, err := r.store.SaveAccount(ctx, &model.Account{
		Email:      email,
		Name:       profileName(profile),
		Role:       role,
		Provider:   provider,
		ProviderID: profile.Subject,
	})
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, ErrAccountAlreadyExists
		}
		return nil, fmt.Errorf("save account: %w", err)
	}

	r.log.Info().Str("subject", email).Str("provider", provider).Msg("federated account created")
	return saved, nil
}

func profileEmail(provider string, profile model.ProviderProfile) (string, error) {
	email := normalizeEmail(profile.Email)
	if strings.TrimSpace(provider) == "" || strings.TrimSpace(profile.Subject) == "" {
		return "", ErrInvalidInput
	}
	if err := validateEmail(email); err != nil {
		return "", err
	}
	return email, nil
}

func profileName(profile model.ProviderProfile) string {
	if name := strings.TrimSpace(profile.Name); name != "" {
		return name
	}
	email := normalizeEmail(profile.Email)
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
