package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/constants"
	inErrors "github.com/Alturino/storefront/internal/errors"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/identity"
	inOtel "github.com/Alturino/storefront/internal/otel"
)

// Identity resolves the caller. Requests without Authorization continue as
// anonymous; a present but invalid bearer token is rejected.
func Identity(verifier identity.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, span := inOtel.Tracer.Start(r.Context(), "middleware Identity")
			defer span.End()

			logger := zerolog.Ctx(c).With().Str(constants.KEY_TAG, "middleware Identity").Logger()

			authorization := r.Header.Get(inHttp.KEY_HEADER_AUTHORIZATION)
			if authorization == "" {
				logger.Trace().Msg("no authorization, continuing as anonymous")
				c = identity.WithContext(c, identity.Anonymous())
				next.ServeHTTP(w, r.WithContext(logger.WithContext(c)))
				return
			}

			logger = logger.With().Str(constants.KEY_PROCESS, "verifying token").Logger()
			if len(authorization) < len(inHttp.VALUE_BEARER_PREFIX) ||
				!strings.EqualFold(authorization[:len(inHttp.VALUE_BEARER_PREFIX)], inHttp.VALUE_BEARER_PREFIX) {
				err := inErrors.ErrTokenInvalid
				inOtel.RecordError(err, span)
				logger.Error().Err(err).Msg(err.Error())
				inHttp.WriteFailed(c, w, http.StatusUnauthorized, err)
				return
			}

			token := strings.TrimSpace(authorization[len(inHttp.VALUE_BEARER_PREFIX):])
			profile, err := verifier.Verify(c, token)
			if err != nil {
				inOtel.RecordError(err, span)
				logger.Error().Err(err).Msg(err.Error())
				if !errors.Is(err, inErrors.ErrEmptyAuth) {
					err = inErrors.ErrTokenInvalid
				}
				inHttp.WriteFailed(c, w, http.StatusUnauthorized, err)
				return
			}

			logger = logger.With().Str(constants.KEY_USER_ID, profile.UID).Logger()
			logger.Trace().Msg("verified token")
			c = identity.WithContext(c, profile.Identity())
			next.ServeHTTP(w, r.WithContext(logger.WithContext(c)))
		})
	}
}
