package cmd

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/cart/internal/engine"
	"github.com/Alturino/storefront/cart/internal/storage/remote"
	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/identity"
	"github.com/Alturino/storefront/internal/infra"
	inOtel "github.com/Alturino/storefront/internal/otel"
)

// backend holds the remote cart store and the token verifier selected by
// the config, plus whatever clients they need closed on shutdown.
type backend struct {
	remote    engine.RemoteStore
	verifier  identity.Verifier
	authority *identity.JWTAuthority
	app       *firebase.App
	closers   []func() error
}

func syncPolicy(cfg config.Sync) engine.SyncPolicy {
	return engine.SyncPolicy{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		MergeGuestCart:  cfg.MergeGuestCart,
	}
}

func openBackend(c context.Context, cfg *config.Config) (_ *backend, err error) {
	c, span := inOtel.Tracer.Start(c, "cmd openBackend")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "cmd openBackend").
		Str(constants.KEY_REMOTE_BACKEND, cfg.Storage.Remote).
		Logger()
	c = logger.WithContext(c)

	b := &backend{}
	defer func() {
		if err != nil {
			inOtel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			b.Close()
		}
	}()

	logger = logger.With().Str(constants.KEY_PROCESS, "resolving secrets").Logger()
	logger.Debug().Msg("resolving secrets")
	if err = infra.ResolveSecrets(c, cfg); err != nil {
		return nil, fmt.Errorf("failed resolving secrets with error=%w", err)
	}
	logger.Debug().Msg("resolved secrets")

	logger = logger.With().Str(constants.KEY_PROCESS, "initializing remote store").Logger()
	logger.Info().Msg("initializing remote store")
	switch cfg.Storage.Remote {
	case constants.REMOTE_MEMORY:
		b.remote = remote.NewMemory()
	case constants.REMOTE_REDIS:
		cache, cacheErr := infra.NewCacheClient(c, cfg.Cache)
		if err = cacheErr; err != nil {
			return nil, err
		}
		b.closers = append(b.closers, cache.Close)
		b.remote = remote.NewRedis(cache)
	case constants.REMOTE_POSTGRES:
		pool, poolErr := infra.NewDatabaseClient(c, cfg.Database)
		if err = poolErr; err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
		store := remote.NewPostgres(pool)
		if err = store.Migrate(c); err != nil {
			return nil, err
		}
		b.remote = store
	case constants.REMOTE_FIRESTORE:
		client, clientErr := b.firestoreClient(c, cfg.Firebase)
		if err = clientErr; err != nil {
			return nil, err
		}
		b.closers = append(b.closers, client.Close)
		b.remote = remote.NewFirestore(client)
	default:
		return nil, fmt.Errorf("failed initializing remote=%s with error=%w", cfg.Storage.Remote, inErrors.ErrUnknownBackend)
	}
	logger.Info().Msg("initialized remote store")

	logger = logger.With().Str(constants.KEY_PROCESS, "initializing token verifier").Logger()
	logger.Info().Str("provider", cfg.Auth.Provider).Msg("initializing token verifier")
	switch cfg.Auth.Provider {
	case constants.AUTH_PROVIDER_JWT:
		b.authority = identity.NewJWTAuthority(cfg.Application.SecretKey, cfg.Auth.TokenTTL)
		b.verifier = b.authority
	case constants.AUTH_PROVIDER_FIRE:
		client, clientErr := b.authClient(c, cfg.Firebase)
		if err = clientErr; err != nil {
			return nil, err
		}
		b.verifier = identity.NewFirebaseVerifier(client)
	default:
		return nil, fmt.Errorf("failed initializing auth provider=%s with error=%w", cfg.Auth.Provider, inErrors.ErrUnknownBackend)
	}
	logger.Info().Msg("initialized token verifier")

	return b, nil
}

func (b *backend) firebaseApp(c context.Context, cfg config.Firebase) (*firebase.App, error) {
	if b.app != nil {
		return b.app, nil
	}
	app, err := infra.NewFirebaseApp(c, cfg)
	if err != nil {
		return nil, err
	}
	b.app = app
	return app, nil
}

func (b *backend) firestoreClient(c context.Context, cfg config.Firebase) (*firestore.Client, error) {
	app, err := b.firebaseApp(c, cfg)
	if err != nil {
		return nil, err
	}
	return infra.NewFirestoreClient(c, app)
}

func (b *backend) authClient(c context.Context, cfg config.Firebase) (*auth.Client, error) {
	app, err := b.firebaseApp(c, cfg)
	if err != nil {
		return nil, err
	}
	return infra.NewAuthClient(c, app)
}

func (b *backend) Close() error {
	var errs error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = errors.Join(errs, b.closers[i]())
	}
	b.closers = nil
	return errs
}
