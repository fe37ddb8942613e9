package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/internal/config"
	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/internal/logger"
	"github.com/jrsteele09/go-auth-core/metrics"
	"github.com/jrsteele09/go-auth-core/providers"
	"github.com/jrsteele09/go-auth-core/ratelimit"
	"github.com/jrsteele09/go-auth-core/ratelimit/redislimit"
	"github.com/jrsteele09/go-auth-core/server"
	"github.com/jrsteele09/go-auth-core/server/loginsession"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/jrsteele09/go-auth-core/store/memory"
	"github.com/jrsteele09/go-auth-core/store/redisstore"
	"github.com/jrsteele09/go-auth-core/store/sqlitestore"
	"github.com/jrsteele09/go-auth-core/token"
	"github.com/jrsteele09/go-auth-core/token/idtoken"
	"github.com/jrsteele09/go-auth-core/token/remote"
	"github.com/jrsteele09/go-auth-core/users"
	fakeuserrepo "github.com/jrsteele09/go-auth-core/users/repofake"
	"github.com/jrsteele09/go-auth-core/verification"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// application is the wired server and the resources it owns.
type application struct {
	handler       http.Handler
	store         store.CredentialStore
	redis         *redis.Client
	loginSessions *loginsession.InMemoryLoginSessionRepo
	log           zerolog.Logger
}

func build(ctx context.Context, c config.Config) (*application, error) {
	app := &application{log: logger.Component("main")}
	m := metrics.New()

	if err := app.openStore(ctx, c); err != nil {
		return nil, err
	}

	var limiter ratelimit.Limiter = ratelimit.NewMemory()
	if app.redis != nil {
		limiter = redislimit.New(app.redis, redislimit.WithKeyPrefix(c.GetStoreKeyPrefix()+"ratelimit:"))
	}

	tokens := token.New(app.store,
		token.WithAccessTokenTTL(c.GetDefaultAccessTokenExpiry()),
		token.WithRefreshTokenTTL(c.GetDefaultRefreshTokenExpiry()),
		token.WithLogger(logger.Component("token")),
		token.WithMetrics(m),
	)

	authOpts := []auth.AuthorizationServiceOption{
		auth.WithCodeTTL(c.GetAuthCodeTimeout()),
		auth.WithStateTTL(c.GetStateTimeout()),
		auth.WithDefaultScope(c.GetDefaultScope()),
		auth.WithAlwaysIssueRefreshToken(c.GetAlwaysIssueRefreshToken()),
		auth.WithRegistrationPolicy(auth.RegistrationPolicy{
			Enabled: c.GetRegistrationEnabled(),
			Mode:    auth.RegistrationMode(c.GetRegistrationMode()),
			Secret:  c.GetRegistrationSecret(),
		}),
		auth.WithRevocationPolicy(auth.RevocationPolicy{
			Auth:   auth.RevocationAuth(c.GetRevocationAuth()),
			Secret: c.GetRevocationSecret(),
		}),
		auth.WithLogger(logger.Component("auth")),
		auth.WithMetrics(m),
	}
	if key := c.GetIDTokenKey(); len(key) > 0 {
		issuer, err := idtoken.New(c.GetIssuerURL(), key, idtoken.WithTTL(c.GetDefaultIDTokenExpiry()))
		if err != nil {
			return nil, app.fail(errors.Wrap(err, "[build] id tokens"))
		}
		authOpts = append(authOpts, auth.WithIDTokens(issuer))
	}
	service, err := auth.NewAuthorizationService(app.store, tokens, authOpts...)
	if err != nil {
		return nil, app.fail(errors.Wrap(err, "[build] authorization service"))
	}

	engine, err := verification.New(app.store,
		verification.WithOTPConfig(verification.OTPConfig{
			Digits:      c.GetOTPDigits(),
			MaxAttempts: c.GetOTPAttempts(),
			TTL:         c.GetOTPTTL(),
			Mode:        verification.StorageMode(c.GetOTPMode()),
		}),
		verification.WithServerKey(c.GetServerKey()),
		verification.WithLogger(logger.Component("verification")),
		verification.WithMetrics(m),
	)
	if err != nil {
		return nil, app.fail(errors.Wrap(err, "[build] verification engine"))
	}

	var registry *providers.Registry
	if configs := c.GetProviders(); len(configs) > 0 {
		registry, err = providers.NewRegistry(app.store, configs,
			providers.WithStateTTL(c.GetStateTimeout()),
			providers.WithLogger(logger.Component("providers")),
		)
		if err != nil {
			return nil, app.fail(errors.Wrap(err, "[build] providers"))
		}
	}

	// Bearer tokens presented to userinfo are checked locally unless another
	// authorization server owns them.
	var verifier server.TokenVerifier = tokens
	if endpoint := c.GetRemoteIntrospectionURL(); endpoint != "" {
		id, secret := c.GetRemoteIntrospectionClient()
		verifier, err = remote.New(endpoint, id, secret, remote.WithLogger(logger.Component("introspection")))
		if err != nil {
			return nil, app.fail(errors.Wrap(err, "[build] remote introspection"))
		}
	}

	app.loginSessions = loginsession.NewInMemoryLoginSessionRepo(c.GetMaxSessionAge())
	srv, err := server.New(c, server.Dependencies{
		Auth:          service,
		Tokens:        verifier,
		Verification:  engine,
		Limiter:       limiter,
		Users:         users.NewDirectory(fakeuserrepo.NewFakeUserRepo(), engine, users.WithLogger(logger.Component("users"))),
		Providers:     registry,
		LoginSessions: app.loginSessions,
		Metrics:       m,
		Logger:        logger.Component("server"),
	})
	if err != nil {
		return nil, app.fail(errors.Wrap(err, "[build] server"))
	}
	app.handler = srv
	return app, nil
}

// openStore opens the credential store named by store.driver. The redis
// driver also keeps the client for the rate limiter.
func (app *application) openStore(ctx context.Context, c config.Config) error {
	switch c.GetStoreDriver() {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:        c.GetRedisAddr(),
			Password:    c.GetRedisPassword(),
			DB:          c.GetRedisDB(),
			DialTimeout: redisstore.DefaultDialTimeout,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return errors.Wrap(errs.Unavailable(err), "[openStore] redis ping")
		}
		app.redis = client
		app.store = redisstore.NewWithClient(client, c.GetStoreKeyPrefix(), redisstore.WithLogger(logger.Component("store.redis")))
	case config.StoreSQLite:
		s, err := sqlitestore.New(ctx, c.GetSQLitePath())
		if err != nil {
			return err
		}
		app.store = s
	default:
		app.store = memory.New(memory.WithLogger(logger.Component("store.memory")))
	}
	app.log.Info().Str("driver", c.GetStoreDriver()).Msg("credential store ready")
	return nil
}

// sweep purges expired records every interval until ctx is done.
func (app *application) sweep(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := app.store.SweepExpired(ctx)
			if err != nil && ctx.Err() == nil {
				app.log.Warn().Err(err).Msg("sweep expired records failed")
			}
			sessions := app.loginSessions.Sweep()
			if n > 0 || sessions > 0 {
				app.log.Debug().Int("records", n).Int("sessions", sessions).Msg("swept expired records")
			}
		}
	}
}

func (app *application) fail(err error) error {
	app.close()
	return err
}

func (app *application) close() {
	if err := app.store.Close(); err != nil {
		app.log.Warn().Err(err).Msg("close store")
	}
}
