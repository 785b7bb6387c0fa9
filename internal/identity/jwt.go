package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/constants"
	inErrors "github.com/Alturino/storefront/internal/errors"
	inOtel "github.com/Alturino/storefront/internal/otel"
)

type Claims struct {
	jwt.RegisteredClaims
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// JWTAuthority issues and verifies HS256 tokens for the storefront's own
// sign-in flow.
type JWTAuthority struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTAuthority(secret string, ttl time.Duration) *JWTAuthority {
	return &JWTAuthority{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (a *JWTAuthority) Issue(c context.Context, profile Profile) (string, error) {
	c, span := inOtel.Tracer.Start(c, "JWTAuthority Issue")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "JWTAuthority Issue").
		Str(constants.KEY_USER_ID, profile.UID).
		Logger()

	if profile.UID == "" {
		err := fmt.Errorf("failed issuing token with error=%w", inErrors.ErrEmptySubject)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return "", err
	}

	issuedAt := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{constants.AUDIENCE_USER},
			Issuer:    constants.ISSUER_STOREFRONT,
			Subject:   profile.UID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
		Name:    profile.DisplayName,
		Email:   profile.Email,
		Picture: profile.PhotoURL,
	})

	logger = logger.With().Str(constants.KEY_PROCESS, "signing token").Logger()
	logger.Debug().Msg("signing token")
	signed, err := token.SignedString(a.secret)
	if err != nil {
		err = fmt.Errorf("failed signing token with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return "", err
	}
	logger.Debug().Msg("signed token")

	return signed, nil
}

func (a *JWTAuthority) Verify(c context.Context, token string) (Profile, error) {
	c, span := inOtel.Tracer.Start(c, "JWTAuthority Verify")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "JWTAuthority Verify").
		Str(constants.KEY_PROCESS, "parsing claims").
		Logger()

	if token == "" {
		inOtel.RecordError(inErrors.ErrEmptyAuth, span)
		logger.Error().Err(inErrors.ErrEmptyAuth).Msg(inErrors.ErrEmptyAuth.Error())
		return Profile{}, inErrors.ErrEmptyAuth
	}

	logger.Trace().Msg("parsing claims")
	claims := Claims{}
	jwtToken, err := jwt.ParseWithClaims(token,
		&claims,
		func(t *jwt.Token) (interface{}, error) {
			return a.secret, nil
		},
		jwt.WithAudience(constants.AUDIENCE_USER),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(constants.ISSUER_STOREFRONT),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		err = fmt.Errorf("failed parsing claims with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Profile{}, fmt.Errorf("%w: %w", inErrors.ErrTokenInvalid, err)
	}
	if !jwtToken.Valid {
		inOtel.RecordError(inErrors.ErrTokenInvalid, span)
		logger.Error().Err(inErrors.ErrTokenInvalid).Msg(inErrors.ErrTokenInvalid.Error())
		return Profile{}, inErrors.ErrTokenInvalid
	}
	if claims.Subject == "" {
		inOtel.RecordError(inErrors.ErrEmptySubject, span)
		logger.Error().Err(inErrors.ErrEmptySubject).Msg(inErrors.ErrEmptySubject.Error())
		return Profile{}, inErrors.ErrEmptySubject
	}
	logger.Debug().Str(constants.KEY_USER_ID, claims.Subject).Msg("parsed claims")

	return Profile{
		UID:         claims.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
		PhotoURL:    claims.Picture,
	}, nil
}
