package infra

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	inOtel "github.com/Alturino/storefront/internal/otel"
)

func clientOptions(cfg config.Firebase) []option.ClientOption {
	opts := []option.ClientOption{}
	if credFile := strings.TrimSpace(cfg.CredentialsFile); credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	}
	return opts
}

func NewFirebaseApp(c context.Context, cfg config.Firebase) (*firebase.App, error) {
	c, span := inOtel.Tracer.Start(c, "infra NewFirebaseApp")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "infra NewFirebaseApp").
		Str(constants.KEY_PROCESS, "initializing firebase app").
		Logger()

	logger.Info().Msg("initializing firebase app")
	app, err := firebase.NewApp(c, &firebase.Config{ProjectID: cfg.ProjectID}, clientOptions(cfg)...)
	if err != nil {
		err = fmt.Errorf("failed initializing firebase app with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Msg("initialized firebase app")
	return app, nil
}

func NewFirestoreClient(c context.Context, app *firebase.App) (*firestore.Client, error) {
	c, span := inOtel.Tracer.Start(c, "infra NewFirestoreClient")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "infra NewFirestoreClient").
		Str(constants.KEY_PROCESS, "initializing firestore client").
		Logger()

	logger.Info().Msg("initializing firestore client")
	client, err := app.Firestore(c)
	if err != nil {
		err = fmt.Errorf("failed initializing firestore client with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Msg("initialized firestore client")
	return client, nil
}

func NewAuthClient(c context.Context, app *firebase.App) (*auth.Client, error) {
	c, span := inOtel.Tracer.Start(c, "infra NewAuthClient")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "infra NewAuthClient").
		Str(constants.KEY_PROCESS, "initializing firebase auth client").
		Logger()

	logger.Info().Msg("initializing firebase auth client")
	client, err := app.Auth(c)
	if err != nil {
		err = fmt.Errorf("failed initializing firebase auth client with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Msg("initialized firebase auth client")
	return client, nil
}
