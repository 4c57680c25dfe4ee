package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/kube-rca/authcore/internal/config"
	"github.com/kube-rca/authcore/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleIssuer = "https://accounts.google.com"

var GoogleJWKSEndpoint = "https://www.googleapis.com/oauth2/v3/certs"

// GoogleFetcher takes the profile from the id_token returned with the code
// exchange, so no userinfo call is made. The token is verified against
// Google's published keys before any claim is read.
type GoogleFetcher struct {
	oauth      *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
}

func NewGoogleFetcher(ctx context.Context, cfg config.ProviderConfig, redirectURL string) (*GoogleFetcher, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: GOOGLE_CLIENT_ID is required", ErrProviderMisconfig)
	}
	httpClient := defaultHTTPClient()
	keySet := oidc.NewRemoteKeySet(oidc.ClientContext(ctx, httpClient), GoogleJWKSEndpoint)

	return &GoogleFetcher{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  redirectURL,
			Scopes:       mergeScopes(cfg.Scopes, oidc.ScopeOpenID, "email", "profile"),
			Endpoint:     google.Endpoint,
		},
		verifier:   oidc.NewVerifier(googleIssuer, keySet, &oidc.Config{ClientID: cfg.ClientID}),
		httpClient: httpClient,
	}, nil
}

func (g *GoogleFetcher) Name() string {
	return ProviderGoogle
}

func (g *GoogleFetcher) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (g *GoogleFetcher) FetchProfile(ctx context.Context, code string) (model.ProviderProfile, error) {
	tok, err := g.oauth.Exchange(exchangeContext(ctx, g.httpClient), code)
	if err != nil {
		return model.ProviderProfile{}, fmt.Errorf("%w: google: %v", ErrProviderExchange, err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return model.ProviderProfile{}, fmt.Errorf("%w: google: id_token missing", ErrProviderProfile)
	}

	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return model.ProviderProfile{}, fmt.Errorf("%w: google: %v", ErrProviderProfile, err)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return model.ProviderProfile{}, fmt.Errorf("%w: google: %v", ErrProviderProfile, err)
	}
	if claims.Email == "" || !claims.EmailVerified {
		return model.ProviderProfile{}, fmt.Errorf("%w: google: no verified email", ErrProviderProfile)
	}

	return model.ProviderProfile{
		Provider: ProviderGoogle,
		Subject:  idToken.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
	}, nil
}
