package client

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/kube-rca/authcore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeGitHub struct {
	user       map[string]any
	emails     []map[string]any
	userStatus int
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_test","token_type":"bearer","scope":"read:user,user:email"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gho_test", r.Header.Get("Authorization"))
		if f.userStatus != 0 {
			w.WriteHeader(f.userStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(f.user)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(f.emails)
	})
	return mux
}

func newTestGitHubFetcher(t *testing.T, fake *fakeGitHub) *GitHubFetcher {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	g := NewGitHubFetcher(config.ProviderConfig{ClientID: "id", ClientSecret: "secret"}, "http://localhost/login/oauth2/code/github")
	g.oauth.Endpoint = oauth2.Endpoint{
		AuthURL:  srv.URL + "/login/oauth/authorize",
		TokenURL: srv.URL + "/login/oauth/access_token",
	}
	g.userURL = srv.URL + "/user"
	g.emailsURL = srv.URL + "/user/emails"
	return g
}

func TestGitHubFetchProfile(t *testing.T) {
	tests := []struct {
		name      string
		fake      *fakeGitHub
		wantEmail string
		wantName  string
	}{
		{
			name:      "public-email",
			fake:      &fakeGitHub{user: map[string]any{"id": 42, "login": "octo", "name": "Octo Cat", "email": "octo@x.com"}},
			wantEmail: "octo@x.com",
			wantName:  "Octo Cat",
		},
		{
			name: "private-email",
			fake: &fakeGitHub{
				user: map[string]any{"id": 42, "login": "octo"},
				emails: []map[string]any{
					{"email": "old@x.com", "primary": false, "verified": true},
					{"email": "main@x.com", "primary": true, "verified": true},
				},
			},
			wantEmail: "main@x.com",
			wantName:  "octo",
		},
		{
			name: "no-primary-falls-back-to-verified",
			fake: &fakeGitHub{
				user: map[string]any{"id": 42, "login": "octo"},
				emails: []map[string]any{
					{"email": "unverified@x.com", "primary": true, "verified": false},
					{"email": "verified@x.com", "primary": false, "verified": true},
				},
			},
			wantEmail: "verified@x.com",
			wantName:  "octo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGitHubFetcher(t, tt.fake)

			profile, err := g.FetchProfile(context.Background(), "good-code")
			require.NoError(t, err)
			assert.Equal(t, ProviderGitHub, profile.Provider)
			assert.Equal(t, "42", profile.Subject)
			assert.Equal(t, tt.wantEmail, profile.Email)
			assert.Equal(t, tt.wantName, profile.Name)
		})
	}
}

func TestGitHubFetchProfileFailures(t *testing.T) {
	t.Run("bad-code", func(t *testing.T) {
		g := newTestGitHubFetcher(t, &fakeGitHub{user: map[string]any{"id": 1}})
		_, err := g.FetchProfile(context.Background(), "bad-code")
		require.ErrorIs(t, err, ErrProviderExchange)
	})

	t.Run("no-verified-email", func(t *testing.T) {
		g := newTestGitHubFetcher(t, &fakeGitHub{
			user:   map[string]any{"id": 1, "login": "x"},
			emails: []map[string]any{{"email": "x@x.com", "primary": true, "verified": false}},
		})
		_, err := g.FetchProfile(context.Background(), "good-code")
		require.ErrorIs(t, err, ErrProviderProfile)
	})

	t.Run("api-error", func(t *testing.T) {
		g := newTestGitHubFetcher(t, &fakeGitHub{userStatus: http.StatusUnauthorized})
		_, err := g.FetchProfile(context.Background(), "good-code")
		require.ErrorIs(t, err, ErrProviderProfile)
	})
}

func TestGitHubAuthCodeURL(t *testing.T) {
	g := NewGitHubFetcher(config.ProviderConfig{ClientID: "id", ClientSecret: "secret", Scopes: []string{"user:email"}}, "http://localhost/cb/github")

	u, err := url.Parse(g.AuthCodeURL("state-1"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "id", q.Get("client_id"))
	assert.Equal(t, "http://localhost/cb/github", q.Get("redirect_uri"))
	assert.Equal(t, "user:email read:user", q.Get("scope"))
}

type fakeGoogle struct {
	fetcher *GoogleFetcher
	trusted *rsa.PrivateKey
	idToken string
}

// newFakeGoogle points the fetcher at a local token endpoint that hands out
// fake.idToken and makes the verifier trust only fake.trusted.
func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	fake := &fakeGoogle{trusted: key}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "ya29.test",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     fake.idToken,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	g, err := NewGoogleFetcher(context.Background(), config.ProviderConfig{ClientID: "google-client", ClientSecret: "secret"}, "http://localhost/cb/google")
	require.NoError(t, err)
	g.oauth.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}
	g.verifier = oidc.NewVerifier(googleIssuer,
		&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}},
		&oidc.Config{ClientID: "google-client"})
	fake.fetcher = g
	return fake
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func googleIDClaims(overrides map[string]any) jwt.MapClaims {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":            googleIssuer,
		"aud":            "google-client",
		"sub":            "1098765",
		"email":          "g@x.com",
		"email_verified": true,
		"name":           "Gee",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}
	for k, v := range overrides {
		claims[k] = v
	}
	return claims
}

func TestGoogleFetchProfile(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
		otherKey  bool
		wantErr   error
	}{
		{name: "valid"},
		{name: "unverified-email", overrides: map[string]any{"email_verified": false}, wantErr: ErrProviderProfile},
		{name: "wrong-audience", overrides: map[string]any{"aud": "someone-else"}, wantErr: ErrProviderProfile},
		{name: "wrong-issuer", overrides: map[string]any{"iss": "https://evil.example"}, wantErr: ErrProviderProfile},
		{name: "expired", overrides: map[string]any{"exp": time.Now().Add(-time.Hour).Unix()}, wantErr: ErrProviderProfile},
		{name: "foreign-signature", otherKey: true, wantErr: ErrProviderProfile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeGoogle(t)
			key := fake.trusted
			if tt.otherKey {
				other, err := rsa.GenerateKey(rand.Reader, 2048)
				require.NoError(t, err)
				key = other
			}
			fake.idToken = signIDToken(t, key, googleIDClaims(tt.overrides))

			profile, err := fake.fetcher.FetchProfile(context.Background(), "code")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ProviderGoogle, profile.Provider)
			assert.Equal(t, "1098765", profile.Subject)
			assert.Equal(t, "g@x.com", profile.Email)
			assert.Equal(t, "Gee", profile.Name)
		})
	}
}

func TestGoogleFetchProfileWithoutIDToken(t *testing.T) {
	fake := newFakeGoogle(t)

	_, err := fake.fetcher.FetchProfile(context.Background(), "code")
	require.ErrorIs(t, err, ErrProviderProfile)
}

func TestNewGoogleFetcherRequiresClientID(t *testing.T) {
	_, err := NewGoogleFetcher(context.Background(), config.ProviderConfig{}, "http://localhost/cb/google")
	require.ErrorIs(t, err, ErrProviderMisconfig)
}

func TestNewFetchers(t *testing.T) {
	fetchers, err := NewFetchers(context.Background(), config.OAuthConfig{
		CallbackBaseURL: "http://localhost:8080/login/oauth2/code/",
		GitHub:          config.ProviderConfig{ClientID: "id", ClientSecret: "secret"},
	})
	require.NoError(t, err)
	require.Len(t, fetchers, 1)

	gh, err := fetchers.Get("GitHub")
	require.NoError(t, err)
	assert.Equal(t, ProviderGitHub, gh.Name())
	assert.Equal(t, "http://localhost:8080/login/oauth2/code/github", gh.(*GitHubFetcher).oauth.RedirectURL)

	_, err = fetchers.Get("google")
	require.ErrorIs(t, err, ErrUnknownProvider)
}
