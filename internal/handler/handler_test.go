package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kube-rca/authcore/internal/client"
	"github.com/kube-rca/authcore/internal/db"
	"github.com/kube-rca/authcore/internal/model"
	"github.com/kube-rca/authcore/internal/service"
	"github.com/kube-rca/authcore/internal/token"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	router   *gin.Engine
	store    *db.Memory
	codec    *token.Codec
	clock    *testClock
	accounts *service.AccountService
	states   *client.MemoryStateStore
	fetcher  *fakeFetcher
}

type serverOption func(*RouterConfig, *testServer)

func withFrontendURL(frontendURL string) serverOption {
	return func(cfg *RouterConfig, ts *testServer) {
		cfg.OAuth.frontendURL = frontendURL
	}
}

func withLoginLimit(perMinute, burst int) serverOption {
	return func(cfg *RouterConfig, _ *testServer) {
		cfg.LoginPerMinute = perMinute
		cfg.LoginBurst = burst
	}
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	log := zerolog.Nop()
	clock := &testClock{now: time.Now()}
	store := db.NewMemory()

	codec, err := token.NewCodec("handler-secret", token.WithClock(clock.Now))
	require.NoError(t, err)
	issuer, err := service.NewTokenIssuer(codec, store, time.Hour, 30*24*time.Hour, log)
	require.NoError(t, err)
	accounts := service.NewAccountService(store, log)

	states := client.NewMemoryStateStore(time.Minute)
	t.Cleanup(states.Stop)
	fetcher := &fakeFetcher{name: client.ProviderGitHub}

	ts := &testServer{
		store:    store,
		codec:    codec,
		clock:    clock,
		accounts: accounts,
		states:   states,
		fetcher:  fetcher,
	}

	cfg := RouterConfig{
		Codec: codec,
		Auth:  NewAuthHandler(service.NewAuthenticator(store, log), issuer, accounts),
		OAuth: NewOAuthHandler(
			client.Fetchers{fetcher.name: fetcher},
			states,
			service.NewReconciler(store, log),
			issuer,
			"",
			log,
		),
		LoginPerMinute: 1000,
		LoginBurst:     1000,
		Log:            log,
	}
	for _, opt := range opts {
		opt(&cfg, ts)
	}
	ts.router = NewRouter(cfg)
	return ts
}

func (ts *testServer) signup(t *testing.T, email, password string, role model.Role) {
	t.Helper()
	_, err := ts.accounts.Signup(context.Background(), model.SignupRequest{
		Email:    email,
		Password: password,
		Role:     string(role),
	})
	require.NoError(t, err)
}

func (ts *testServer) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T, email, password string) model.TokenPair {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/auth/login", model.LoginRequest{Email: email, Password: password}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pair model.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	return pair
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var body model.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

type fakeFetcher struct {
	name    string
	profile model.ProviderProfile
	err     error
}

func (f *fakeFetcher) Name() string {
	return f.name
}

func (f *fakeFetcher) AuthCodeURL(state string) string {
	return "https://provider.example/authorize?state=" + state
}

func (f *fakeFetcher) FetchProfile(_ context.Context, code string) (model.ProviderProfile, error) {
	if f.err != nil {
		return model.ProviderProfile{}, f.err
	}
	return f.profile, nil
}
