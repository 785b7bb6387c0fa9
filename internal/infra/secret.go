package infra

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	inOtel "github.com/Alturino/storefront/internal/otel"
)

// SecretPrefix marks a config value that names a Secret Manager version,
// e.g. sm://projects/p/secrets/cart-jwt/versions/latest.
const SecretPrefix = "sm://"

type SecretAccessor interface {
	AccessSecretVersion(
		c context.Context,
		req *secretmanagerpb.AccessSecretVersionRequest,
		opts ...gax.CallOption,
	) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

func IsSecretRef(value string) bool {
	return strings.HasPrefix(value, SecretPrefix)
}

// ResolveSecrets replaces every secret reference in cfg with its payload.
// No Secret Manager client is created when cfg holds no reference.
func ResolveSecrets(c context.Context, cfg *config.Config) error {
	fields := []*string{
		&cfg.Application.SecretKey,
		&cfg.Database.Password,
		&cfg.Cache.Password,
	}
	refs := []*string{}
	for _, field := range fields {
		if IsSecretRef(*field) {
			refs = append(refs, field)
		}
	}
	if len(refs) == 0 {
		return nil
	}

	client, err := secretmanager.NewClient(c, clientOptions(cfg.Firebase)...)
	if err != nil {
		return fmt.Errorf("failed creating secret manager client with error=%w", err)
	}
	defer client.Close()

	for _, ref := range refs {
		value, err := ResolveSecret(c, client, *ref)
		if err != nil {
			return err
		}
		*ref = value
	}
	return nil
}

// ResolveSecret returns value unchanged unless it is a secret reference.
func ResolveSecret(c context.Context, client SecretAccessor, value string) (string, error) {
	if !IsSecretRef(value) {
		return value, nil
	}

	c, span := inOtel.Tracer.Start(c, "infra ResolveSecret")
	defer span.End()

	name := strings.TrimPrefix(value, SecretPrefix)
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "infra ResolveSecret").
		Str(constants.KEY_PROCESS, "accessing secret version").
		Str(constants.KEY_SECRET_NAME, name).
		Logger()

	logger.Debug().Msg("accessing secret version")
	result, err := client.AccessSecretVersion(c, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		err = fmt.Errorf("failed accessing secret %s with error=%w", name, err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return "", err
	}
	logger.Debug().Msg("accessed secret version")

	return strings.TrimSpace(string(result.GetPayload().GetData())), nil
}
