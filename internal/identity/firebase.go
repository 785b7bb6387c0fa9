package identity

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/auth"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/constants"
	inErrors "github.com/Alturino/storefront/internal/errors"
	inOtel "github.com/Alturino/storefront/internal/otel"
)

type idTokenVerifier interface {
	VerifyIDToken(c context.Context, idToken string) (*auth.Token, error)
}

// FirebaseVerifier accepts ID tokens minted by Firebase Authentication
// (email/password or federated sign-in on the client).
type FirebaseVerifier struct {
	client idTokenVerifier
}

func NewFirebaseVerifier(client *auth.Client) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

func (v *FirebaseVerifier) Verify(c context.Context, token string) (Profile, error) {
	c, span := inOtel.Tracer.Start(c, "FirebaseVerifier Verify")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "FirebaseVerifier Verify").
		Str(constants.KEY_PROCESS, "verifying id token").
		Logger()

	if token == "" {
		inOtel.RecordError(inErrors.ErrEmptyAuth, span)
		logger.Error().Err(inErrors.ErrEmptyAuth).Msg(inErrors.ErrEmptyAuth.Error())
		return Profile{}, inErrors.ErrEmptyAuth
	}

	logger.Trace().Msg("verifying id token")
	verified, err := v.client.VerifyIDToken(c, token)
	if err != nil {
		err = fmt.Errorf("failed verifying id token with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Profile{}, fmt.Errorf("%w: %w", inErrors.ErrTokenInvalid, err)
	}
	if verified.UID == "" {
		inOtel.RecordError(inErrors.ErrEmptySubject, span)
		logger.Error().Err(inErrors.ErrEmptySubject).Msg(inErrors.ErrEmptySubject.Error())
		return Profile{}, inErrors.ErrEmptySubject
	}
	logger.Debug().Str(constants.KEY_USER_ID, verified.UID).Msg("verified id token")

	return Profile{
		UID:         verified.UID,
		DisplayName: claimString(verified.Claims, "name"),
		Email:       claimString(verified.Claims, "email"),
		PhotoURL:    claimString(verified.Claims, "picture"),
	}, nil
}

func claimString(claims map[string]interface{}, key string) string {
	s, _ := claims[key].(string)
	return s
}
