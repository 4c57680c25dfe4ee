package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kube-rca/authcore/internal/db"
	"github.com/kube-rca/authcore/internal/model"
	"github.com/kube-rca/authcore/internal/token"
	"github.com/rs/zerolog"
)

// TokenIssuer mints token pairs and owns every change to refresh records.
type TokenIssuer struct {
	codec      *token.Codec
	store      CredentialStore
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        zerolog.Logger
}

func NewTokenIssuer(codec *token.Codec, store CredentialStore, accessTTL, refreshTTL time.Duration, log zerolog.Logger) (*TokenIssuer, error) {
	if codec == nil {
		return nil, fmt.Errorf("%w: token codec is required", ErrMisconfigured)
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, fmt.Errorf("%w: token lifetimes must be positive", ErrMisconfigured)
	}
	return &TokenIssuer{
		codec:      codec,
		store:      store,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		log:        log.With().Str("component", "issuer").Logger(),
	}, nil
}

// IssueForLogin mints a pair for an already authenticated account and
// replaces whatever refresh record the account had.
func (i *TokenIssuer) IssueForLogin(ctx context.Context, account *model.Account) (model.TokenPair, error) {
	pair, err := i.newPair(account.Email, account.Role)
	if err != nil {
		return model.TokenPair{}, err
	}
	if err := i.store.UpsertRefreshRecord(ctx, account.Email, pair.RefreshToken); err != nil {
		return model.TokenPair{}, fmt.Errorf("store refresh record: %w", err)
	}

	i.log.Info().Str("subject", account.Email).Msg("issued token pair")
	return pair, nil
}

// Rotate exchanges an expired access token for a new pair, provided the
// subject's stored refresh token is still valid. A token that fails for any
// reason other than expiry is returned as its token error and never rotated.
func (i *TokenIssuer) Rotate(ctx context.Context, accessToken string) (model.TokenPair, error) {
	_, err := i.codec.VerifyAccess(accessToken)
	if err == nil {
		return model.TokenPair{}, ErrAccessTokenNotExpired
	}
	if !errors.Is(err, token.ErrExpired) {
		return model.TokenPair{}, err
	}

	claims, err := i.codec.ParseExpired(accessToken)
	if err != nil {
		return model.TokenPair{}, err
	}
	subject := claims.Subject

	record, err := i.store.FindRefreshRecord(ctx, subject)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return model.TokenPair{}, ErrSessionNotFound
		}
		return model.TokenPair{}, fmt.Errorf("find refresh record: %w", err)
	}

	if _, err := i.codec.Verify(record.Token); err != nil {
		if delErr := i.store.DeleteRefreshRecord(ctx, subject); delErr != nil {
			return model.TokenPair{}, fmt.Errorf("delete refresh record: %w", delErr)
		}
		if errors.Is(err, token.ErrExpired) {
			i.log.Info().Str("subject", subject).Msg("refresh token expired, session removed")
		} else {
			i.log.Warn().Err(err).Str("subject", subject).Msg("stored refresh token unreadable, session removed")
		}
		return model.TokenPair{}, ErrSessionExpired
	}

	// Pick up role changes made since the expired token was issued.
	account, err := i.store.FindAccountByEmail(ctx, subject)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			if delErr := i.store.DeleteRefreshRecord(ctx, subject); delErr != nil {
				return model.TokenPair{}, fmt.Errorf("delete refresh record: %w", delErr)
			}
			i.log.Info().Str("subject", subject).Msg("account gone, session removed")
			return model.TokenPair{}, ErrSessionNotFound
		}
		return model.TokenPair{}, fmt.Errorf("find account: %w", err)
	}

	pair, err := i.newPair(subject, account.Role)
	if err != nil {
		return model.TokenPair{}, err
	}
	if err := i.store.UpsertRefreshRecord(ctx, subject, pair.RefreshToken); err != nil {
		return model.TokenPair{}, fmt.Errorf("store refresh record: %w", err)
	}

	i.log.Info().Str("subject", subject).Msg("rotated token pair")
	return pair, nil
}

// Revoke drops the subject's refresh record. Outstanding access tokens stay
// valid until they expire.
func (i *TokenIssuer) Revoke(ctx context.Context, subject string) error {
	if err := i.store.DeleteRefreshRecord(ctx, subject); err != nil {
		return fmt.Errorf("delete refresh record: %w", err)
	}
	i.log.Info().Str("subject", subject).Msg("revoked session")
	return nil
}

func (i *TokenIssuer) newPair(subject string, role model.Role) (model.TokenPair, error) {
	access, err := i.codec.Issue(subject, role, i.accessTTL)
	if err != nil {
		return model.TokenPair{}, err
	}
	refresh, err := i.codec.IssueAnonymous(i.refreshTTL)
	if err != nil {
		return model.TokenPair{}, err
	}
	return model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		GrantType:    model.GrantTypeBearer,
	}, nil
}
