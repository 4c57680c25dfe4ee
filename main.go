package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kube-rca/authcore/internal/client"
	"github.com/kube-rca/authcore/internal/config"
	"github.com/kube-rca/authcore/internal/db"
	"github.com/kube-rca/authcore/internal/handler"
	"github.com/kube-rca/authcore/internal/service"
	"github.com/kube-rca/authcore/internal/token"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	log := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// postgres by default, memory for local development
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open credential store")
	}
	defer closeStore()

	codec, err := token.NewCodec(cfg.JWT.SecretKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build token codec")
	}

	issuer, err := service.NewTokenIssuer(codec, store, cfg.JWT.AccessTTL(), cfg.JWT.RefreshTTL(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build token issuer")
	}
	accounts := service.NewAccountService(store, log)

	if cfg.Admin.Enabled() {
		if err := accounts.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure admin account")
		}
	}

	fetchers, err := client.NewFetchers(context.Background(), cfg.OAuth)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure oauth providers")
	}

	var oauth *handler.OAuthHandler
	if len(fetchers) > 0 {
		states, closeStates := openStateStore(cfg, log)
		defer closeStates()
		oauth = handler.NewOAuthHandler(fetchers, states, service.NewReconciler(store, log), issuer, cfg.OAuth.FrontendRedirectURL, log)
		for name := range fetchers {
			log.Info().Str("provider", name).Msg("oauth provider enabled")
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.RouterConfig{
		Codec:          codec,
		Auth:           handler.NewAuthHandler(service.NewAuthenticator(store, log), issuer, accounts),
		OAuth:          oauth,
		AllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		AllowCreds:     cfg.HTTP.CORSAllowCredentials,
		LoginPerMinute: cfg.RateLimit.LoginPerMinute,
		LoginBurst:     cfg.RateLimit.LoginBurst,
		Log:            log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("auth server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("auth server stopped")
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("service", "authcore").Logger()
}

func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (service.CredentialStore, func(), error) {
	if strings.EqualFold(cfg.Store.Driver, "memory") {
		log.Warn().Msg("using in-memory credential store, data is lost on restart")
		return db.NewMemory(), func() {}, nil
	}

	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	pg := db.NewPostgres(pool)
	if err := pg.Migrate(); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info().Msg("postgres schema up to date")
	return pg, pool.Close, nil
}

func openStateStore(cfg config.Config, log zerolog.Logger) (client.StateStore, func()) {
	if cfg.Redis.Addr == "" {
		states := client.NewMemoryStateStore(cfg.OAuth.StateTTL)
		return states, states.Stop
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	log.Info().Str("addr", cfg.Redis.Addr).Msg("oauth state stored in redis")
	return client.NewRedisStateStore(rdb, "authcore", cfg.OAuth.StateTTL), func() { _ = rdb.Close() }
}
