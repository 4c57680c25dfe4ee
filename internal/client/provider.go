// OAuth2 identity provider clients.
//
// Each enabled provider is reached through a ProfileFetcher:
//   - google: authorization code flow, profile read from the verified OIDC id_token
//   - github: authorization code flow, profile read from the REST API
//
// Environment:
//   - GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET / GOOGLE_SCOPES
//   - GITHUB_CLIENT_ID / GITHUB_CLIENT_SECRET / GITHUB_SCOPES
//   - OAUTH_CALLBACK_BASE_URL: callback URL prefix, the provider name is appended

package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kube-rca/authcore/internal/config"
	"github.com/kube-rca/authcore/internal/model"
	"golang.org/x/oauth2"
)

const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

var (
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrProviderExchange  = errors.New("provider code exchange failed")
	ErrProviderProfile   = errors.New("provider profile unavailable")
	ErrProviderMisconfig = errors.New("provider misconfigured")
)

// ProfileFetcher turns an authorization code into the provider's view of the
// user. Implementations hold no per-request state.
type ProfileFetcher interface {
	Name() string
	AuthCodeURL(state string) string
	FetchProfile(ctx context.Context, code string) (model.ProviderProfile, error)
}

// Fetchers indexes the enabled providers by name.
type Fetchers map[string]ProfileFetcher

func (f Fetchers) Get(name string) (ProfileFetcher, error) {
	fetcher, ok := f[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return fetcher, nil
}

// NewFetchers builds a fetcher for every provider that has credentials.
func NewFetchers(ctx context.Context, cfg config.OAuthConfig) (Fetchers, error) {
	fetchers := make(Fetchers)
	if cfg.Google.Enabled() {
		g, err := NewGoogleFetcher(ctx, cfg.Google, callbackURL(cfg.CallbackBaseURL, ProviderGoogle))
		if err != nil {
			return nil, err
		}
		fetchers[ProviderGoogle] = g
	}
	if cfg.GitHub.Enabled() {
		fetchers[ProviderGitHub] = NewGitHubFetcher(cfg.GitHub, callbackURL(cfg.CallbackBaseURL, ProviderGitHub))
	}
	return fetchers, nil
}

func callbackURL(base, provider string) string {
	return strings.TrimRight(base, "/") + "/" + provider
}

func mergeScopes(configured []string, required ...string) []string {
	seen := make(map[string]bool, len(configured)+len(required))
	scopes := make([]string, 0, len(configured)+len(required))
	for _, scope := range append(append([]string{}, configured...), required...) {
		scope = strings.TrimSpace(scope)
		if scope == "" || seen[scope] {
			continue
		}
		seen[scope] = true
		scopes = append(scopes, scope)
	}
	return scopes
}

// exchangeContext makes oauth2 use the given client for token requests.
func exchangeContext(ctx context.Context, httpClient *http.Client) context.Context {
	if httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, httpClient)
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
