package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.JWT.AccessTTL())
	assert.Equal(t, 30*24*time.Hour, cfg.JWT.RefreshTTL())
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 10*time.Minute, cfg.OAuth.StateTTL)
	assert.False(t, cfg.OAuth.Google.Enabled())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")

	_, err := Load()
	require.ErrorIs(t, err, ErrInvalid)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "zero-access-ttl", key: "JWT_ACCESS_TTL_MS", val: "0"},
		{name: "negative-refresh-ttl", key: "JWT_REFRESH_TTL_MS", val: "-5"},
		{name: "unknown-driver", key: "STORE_DRIVER", val: "mysql"},
		{name: "zero-login-rate", key: "RATELIMIT_LOGIN_PER_MINUTE", val: "0"},
		{name: "negative-login-burst", key: "RATELIMIT_LOGIN_BURST", val: "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET_KEY", "test-secret")
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestProviderScopesAndPrefix(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")
	t.Setenv("GITHUB_CLIENT_ID", "id")
	t.Setenv("GITHUB_CLIENT_SECRET", "secret")
	t.Setenv("GITHUB_SCOPES", "read:user,user:email")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.OAuth.GitHub.Enabled())
	assert.Equal(t, []string{"read:user", "user:email"}, cfg.OAuth.GitHub.Scopes)
}

func TestAdminAndCORS(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")
	t.Setenv("ADMIN_EMAIL", "root@x.com")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Admin.Enabled())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSAllowedOrigins)
	assert.True(t, cfg.HTTP.CORSAllowCredentials)

	t.Setenv("ADMIN_PASSWORD", "password1")
	cfg, err = Load()
	require.NoError(t, err)
	assert.True(t, cfg.Admin.Enabled())
}
