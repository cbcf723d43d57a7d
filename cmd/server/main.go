package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/emsana/authbridge/internal/auth"
	"github.com/emsana/authbridge/internal/bridge"
	"github.com/emsana/authbridge/internal/bridge/redisslot"
	"github.com/emsana/authbridge/internal/config"
	"github.com/emsana/authbridge/internal/db"
	"github.com/emsana/authbridge/internal/gateway"
	"github.com/emsana/authbridge/internal/httpapi"
	"github.com/emsana/authbridge/internal/identity"
	"github.com/emsana/authbridge/internal/identity/google"
	"github.com/emsana/authbridge/internal/identity/supabase"
)

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "emsana-authbridge").Logger()

	// Pretty logging for local dev
	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown LOG_LEVEL, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// providers is the identity wiring selected by IDENTITY_PROVIDER.
type providers struct {
	passwords identity.PasswordProvider
	oauth     identity.OAuthProvider
	verifiers []identity.Verifier
	signOut   identity.SignOuter
	flow      string
}

func buildProviders(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (*providers, error) {
	var signer *auth.Signer
	if cfg.JWTSecret != "" {
		s, err := auth.NewSigner(auth.JWTCfg{HS256Secret: cfg.JWTSecret, TTL: cfg.JWTTTL})
		if err != nil {
			return nil, err
		}
		signer = s
	}

	switch cfg.IdentityProvider {
	case config.ProviderGoogle:
		var users google.UserRecorder
		if pool != nil {
			users = db.NewUsers(pool)
		}
		p, err := google.New(ctx, google.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			Issuer:       cfg.Google.Issuer,
		}, signer, users)
		if err != nil {
			return nil, err
		}
		return &providers{passwords: p, oauth: p, verifiers: []identity.Verifier{p}, flow: "pkce"}, nil

	default:
		c, err := supabase.New(supabase.Config{
			URL:           cfg.Supabase.URL,
			AnonKey:       cfg.Supabase.AnonKey,
			OAuthProvider: cfg.Supabase.OAuthProvider,
			Flow:          supabase.Flow(cfg.Supabase.Flow),
		})
		if err != nil {
			return nil, err
		}
		p := &providers{passwords: c, oauth: c, verifiers: []identity.Verifier{c}, signOut: c, flow: cfg.Supabase.Flow}
		// Locally issued tokens stay valid alongside provider tokens.
		if signer != nil {
			p.verifiers = append(p.verifiers, signer)
		}
		return p, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// Database is optional: it only records Google identities.
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pool.Close()

		if err := db.NewUsers(pool).Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate schema")
		}
	}

	var slot bridge.Slot = bridge.NewMemorySlot(cfg.PendingTTL)
	if cfg.Redis.Addr != "" {
		client, err := redisslot.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to connect to redis")
		}
		defer client.Close()
		slot = redisslot.New(client, cfg.Redis.Key, cfg.PendingTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("pending auth stored in redis")
	}

	p, err := buildProviders(ctx, cfg, pool)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.IdentityProvider).Msg("failed to init identity provider")
	}

	gw, err := gateway.New(gateway.Config{
		Passwords:   p.passwords,
		OAuth:       p.oauth,
		Verifiers:   p.verifiers,
		SignOut:     p.signOut,
		Slot:        slot,
		CallbackURL: cfg.CallbackURL(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build gateway")
	}

	srv := &httpapi.Server{
		Gateway: gw,
		RateLimitConfig: httpapi.RateLimitInfo{
			WindowSeconds: cfg.AuthRateLimit.WindowSeconds,
			MaxRequests:   cfg.AuthRateLimit.MaxRequests,
			Burst:         cfg.AuthRateLimit.Burst,
		},
		Provider:  cfg.IdentityProvider,
		OAuthFlow: p.flow,
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("callback", cfg.CallbackURL()).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
