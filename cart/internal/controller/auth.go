package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/cart/pkg/request"
	"github.com/Alturino/storefront/internal/constants"
	inErrors "github.com/Alturino/storefront/internal/errors"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/identity"
	inOtel "github.com/Alturino/storefront/internal/otel"
)

type AuthController struct {
	verifier  identity.Verifier
	authority *identity.JWTAuthority
	validate  *validator.Validate
}

// AttachAuthController mounts the sign in routes. authority is nil when
// tokens come from an external provider; signing in by user id is then
// rejected.
func AttachAuthController(mux *mux.Router, verifier identity.Verifier, authority *identity.JWTAuthority) {
	controller := AuthController{
		verifier:  verifier,
		authority: authority,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}

	router := mux.PathPrefix("/auth").Subrouter()
	router.HandleFunc("/login", controller.Login).Methods(http.MethodPost)
	router.HandleFunc("/whoami", controller.WhoAmI).Methods(http.MethodGet)
}

func (a AuthController) Login(w http.ResponseWriter, r *http.Request) {
	c, span := inOtel.Tracer.Start(r.Context(), "AuthController Login")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "AuthController Login").
		Logger()

	logger = logger.With().Str(constants.KEY_PROCESS, "decoding requestbody").Logger()
	logger.Debug().Msg("decoding request body")
	reqBody := request.Login{}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusBadRequest, err)
		return
	}
	logger = logger.With().Object(constants.KEY_REQUEST, reqBody).Logger()
	logger.Debug().Msg("decoded request body")

	logger = logger.With().Str(constants.KEY_PROCESS, "validating requestbody").Logger()
	logger.Debug().Msg("validating request body")
	if err := a.validate.StructCtx(c, reqBody); err != nil {
		err = fmt.Errorf("failed validating request body with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusBadRequest, err)
		return
	}
	logger.Debug().Msg("validated request body")

	token := reqBody.Token
	if token == "" {
		logger = logger.With().Str(constants.KEY_PROCESS, "issuing token").Logger()
		logger.Info().Msg("issuing token")
		if a.authority == nil {
			err := inErrors.ErrLocalSignIn
			inOtel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			inHttp.WriteFailed(c, w, http.StatusBadRequest, err)
			return
		}
		issued, err := a.authority.Issue(logger.WithContext(c), identity.Profile{UID: reqBody.UserID})
		if err != nil {
			err = fmt.Errorf("failed issuing token with error=%w", err)
			inOtel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			inHttp.WriteFailed(c, w, http.StatusInternalServerError, err)
			return
		}
		token = issued
		logger.Info().Msg("issued token")
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "verifying token").Logger()
	logger.Debug().Msg("verifying token")
	profile, err := a.verifier.Verify(logger.WithContext(c), token)
	if err != nil {
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		if !errors.Is(err, inErrors.ErrEmptyAuth) {
			err = inErrors.ErrTokenInvalid
		}
		inHttp.WriteFailed(c, w, http.StatusUnauthorized, err)
		return
	}
	logger.Info().Str(constants.KEY_USER_ID, profile.UID).Msg("login success")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "login success",
		"data": map[string]interface{}{
			"token":   token,
			"profile": profile,
		},
	})
}

func (a AuthController) WhoAmI(w http.ResponseWriter, r *http.Request) {
	c, span := inOtel.Tracer.Start(r.Context(), "AuthController WhoAmI")
	defer span.End()

	id := identity.FromContext(c)
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    fmt.Sprintf("identity=%s", id),
		"data": map[string]interface{}{
			"identity":      id.String(),
			"authenticated": id.IsAuthenticated(),
		},
	})
}
