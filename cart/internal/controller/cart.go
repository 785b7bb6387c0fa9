package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Alturino/storefront/cart/internal/service"
	"github.com/Alturino/storefront/cart/pkg/request"
	"github.com/Alturino/storefront/internal/constants"
	inErrors "github.com/Alturino/storefront/internal/errors"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/identity"
	"github.com/Alturino/storefront/internal/log"
	inOtel "github.com/Alturino/storefront/internal/otel"
)

type CartController struct {
	service  *service.CartService
	validate *validator.Validate
}

func AttachCartController(mux *mux.Router, service *service.CartService) {
	controller := CartController{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	mux.HandleFunc("/catalog", controller.ListCatalog).Methods(http.MethodGet)

	router := mux.PathPrefix("/carts").Subrouter()
	router.HandleFunc("", controller.GetCart).Methods(http.MethodGet)
	router.HandleFunc("", controller.ClearCart).Methods(http.MethodDelete)
	router.HandleFunc("/items", controller.AddCartItem).Methods(http.MethodPost)
	router.HandleFunc("/items", controller.RemoveCartItemAt).
		Methods(http.MethodDelete).
		Queries("index", "{index}")
	router.HandleFunc("/items/{instanceId}", controller.RemoveCartItem).Methods(http.MethodDelete)
	router.HandleFunc("/checkout", controller.CheckoutCart).Methods(http.MethodPost)
}

func deviceID(r *http.Request) string {
	if id := r.Header.Get(inHttp.KEY_HEADER_DEVICE_ID); id != "" {
		return id
	}
	return constants.DEFAULT_DEVICE_ID
}

// statusCode maps service errors to the response status.
func statusCode(err error) int {
	switch {
	case errors.Is(err, inErrors.ErrItemNotFound), errors.Is(err, inErrors.ErrCartItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, inErrors.ErrItemUnavailable):
		return http.StatusConflict
	case errors.Is(err, inErrors.ErrEmptyCart):
		return http.StatusBadRequest
	case errors.Is(err, inErrors.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (t CartController) ListCatalog(w http.ResponseWriter, r *http.Request) {
	c, span := inOtel.Tracer.Start(r.Context(), "CartController ListCatalog")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(constants.KEY_TAG, "CartController ListCatalog").Logger()

	logger.Debug().Msg("listing catalog")
	entries := t.service.Catalog(c)
	logger.Debug().Int("entries", len(entries)).Msg("listed catalog")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "successfully listed catalog",
		"data": map[string]interface{}{
			"catalog": entries,
		},
	})
}

func (t CartController) GetCart(w http.ResponseWriter, r *http.Request) {
	c, span := inOtel.Tracer.Start(r.Context(), "CartController GetCart")
	defer span.End()

	id := identity.FromContext(c)
	device := deviceID(r)
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "CartController GetCart").
		Str(constants.KEY_PROCESS, "getting cart").
		Str(constants.KEY_IDENTITY, id.String()).
		Str(constants.KEY_DEVICE_ID, device).
		Logger()

	logger.Info().Msg("getting cart")
	c = logger.WithContext(c)
	cart, err := t.service.GetCart(c, device, id)
	if err != nil {
		err = fmt.Errorf("failed getting cart with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, statusCode(err), err)
		return
	}
	logger.Info().Int(constants.KEY_CART_ITEMS_COUNT, len(cart.Items)).Msg("got cart")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "cart found",
		"data": map[string]interface{}{
			"cart": cart,
		},
	})
}

func (t CartController) AddCartItem(w http.ResponseWriter, r *http.Request) {
	c, span := inOtel.Tracer.Start(r.Context(), "CartController AddCartItem")
	defer span.End()

	id := identity.FromContext(c)
	device := deviceID(r)
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "CartController AddCartItem").
		Str(constants.KEY_IDENTITY, id.String()).
		Str(constants.KEY_DEVICE_ID, device).
		Logger()

	logger = logger.With().Str(constants.KEY_PROCESS, "decoding requestbody").Logger()
	logger.Debug().Msg("decoding requestbody")
	reqBody := request.AddCartItem{}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusBadRequest, err)
		return
	}
	logger.Debug().Msg("decoded request body")

	logger = logger.With().Str(constants.KEY_PROCESS, "validating requestbody").Logger()
	logger.Debug().Msg("validating request body")
	if err := t.validate.StructCtx(c, reqBody); err != nil {
		err = fmt.Errorf("failed validating request body with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusBadRequest, err)
		return
	}
	span.SetAttributes(attribute.String(constants.KEY_ITEM_ID, reqBody.ItemID))
	logger = logger.With().Str(constants.KEY_ITEM_ID, reqBody.ItemID).Logger()
	logger.Debug().Msg("validated request body")

	logger = logger.With().Str(constants.KEY_PROCESS, "adding cart item").Logger()
	logger.Info().Msg("adding cart item")
	c = logger.WithContext(c)
	item, cart, err := t.service.AddItem(c, device, id, reqBody)
	if err != nil {
		err = fmt.Errorf("failed adding item=%s with error=%w", reqBody.ItemID, err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, statusCode(err), err)
		return
	}
	logger.Info().Str(constants.KEY_INSTANCE_ID, item.InstanceID).Msg("added cart item")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusCreated,
		"message":    fmt.Sprintf("successfully added item=%s", reqBody.ItemID),
		"data": map[string]interface{}{
			"item": item,
			"cart": cart,
		},
	})
}

func (t CartController) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	c, span := inOtel.Tracer.Start(r.Context(), "CartController RemoveCartItem")
	defer span.End()

	id := identity.FromContext(c)
	device := deviceID(r)
	param := request.RemoveCartItem{InstanceID: mux.Vars(r)["instanceId"]}
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "CartController RemoveCartItem").
		Str(constants.KEY_IDENTITY, id.String()).
		Str(constants.KEY_DEVICE_ID, device).
		Str(constants.KEY_INSTANCE_ID, param.InstanceID).
		Logger()

	logger = logger.With().Str(constants.KEY_PROCESS, "validating instanceId").Logger()
	logger.Debug().Msg("validating instanceId")
	if err := t.validate.StructCtx(c, param); err != nil {
		err = fmt.Errorf("failed validating instanceId=%s with error=%w", param.InstanceID, err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusBadRequest, err)
		return
	}
	logger.Debug().Msg("validated instanceId")

	logger = logger.With().Str(constants.KEY_PROCESS, "removing cart item").Logger()
	logger.Info().Msg("removing cart item")
	c = logger.WithContext(c)
	cart, err := t.service.RemoveItem(c, device, id, param)
	if err != nil {
		err = fmt.Errorf("failed removing instanceId=%s with error=%w", param.InstanceID, err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, statusCode(err), err)
		return
	}
	logger.Info().Msg("removed cart item")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    fmt.Sprintf("successfully removed instanceId=%s", param.InstanceID),
		"data": map[string]interface{}{
			"cart": cart,
		},
	})
}

func (t CartController) RemoveCartItemAt(w http.ResponseWriter, r *http.Request) {
	c, span := inOtel.Tracer.Start(r.Context(), "CartController RemoveCartItemAt")
	defer span.End()

	id := identity.FromContext(c)
	device := deviceID(r)
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "CartController RemoveCartItemAt").
		Str(constants.KEY_IDENTITY, id.String()).
		Str(constants.KEY_DEVICE_ID, device).
		Logger()

	logger = logger.With().Str(constants.KEY_PROCESS, "parsing index").Logger()
	logger.Debug().Msg("parsing index")
	raw := mux.Vars(r)["index"]
	index, err := strconv.Atoi(raw)
	if err != nil {
		err = fmt.Errorf("failed parsing index=%s with error=%w", raw, err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusBadRequest, err)
		return
	}
	param := request.RemoveCartItemAt{Index: index}
	logger = logger.With().Int(constants.KEY_INDEX, index).Logger()
	logger.Debug().Msg("parsed index")

	logger = logger.With().Str(constants.KEY_PROCESS, "removing cart item at index").Logger()
	logger.Info().Msg("removing cart item at index")
	c = logger.WithContext(c)
	cart, err := t.service.RemoveItemAt(c, device, id, param)
	if err != nil {
		err = fmt.Errorf("failed removing index=%d with error=%w", index, err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, statusCode(err), err)
		return
	}
	logger.Info().Msg("removed cart item at index")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    fmt.Sprintf("removed index=%d", index),
		"data": map[string]interface{}{
			"cart": cart,
		},
	})
}

func (t CartController) ClearCart(w http.ResponseWriter, r *http.Request) {
	c, span := inOtel.Tracer.Start(r.Context(), "CartController ClearCart")
	defer span.End()

	id := identity.FromContext(c)
	device := deviceID(r)
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "CartController ClearCart").
		Str(constants.KEY_PROCESS, "clearing cart").
		Str(constants.KEY_IDENTITY, id.String()).
		Str(constants.KEY_DEVICE_ID, device).
		Logger()

	logger.Info().Msg("clearing cart")
	c = logger.WithContext(c)
	cart, err := t.service.ClearCart(c, device, id)
	if err != nil {
		err = fmt.Errorf("failed clearing cart with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, statusCode(err), err)
		return
	}
	logger.Info().Msg("cleared cart")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "successfully cleared cart",
		"data": map[string]interface{}{
			"cart": cart,
		},
	})
}

func (t CartController) CheckoutCart(w http.ResponseWriter, r *http.Request) {
	requestId := log.RequestIDFromContext(r.Context())
	requestIdAttr := attribute.String(constants.KEY_REQUEST_ID, requestId)
	c, span := inOtel.Tracer.Start(
		r.Context(),
		"CartController CheckoutCart",
		trace.WithAttributes(requestIdAttr),
	)
	defer span.End()

	id := identity.FromContext(c)
	device := deviceID(r)
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "CartController CheckoutCart").
		Str(constants.KEY_PROCESS, "checking out cart").
		Str(constants.KEY_IDENTITY, id.String()).
		Str(constants.KEY_DEVICE_ID, device).
		Logger()

	logger.Info().Msg("checking out cart")
	c = logger.WithContext(c)
	receipt, err := t.service.Checkout(c, device, id)
	if err != nil {
		err = fmt.Errorf("failed checkout cart with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, statusCode(err), err)
		return
	}
	logger.Info().Str(constants.KEY_CHECKOUT_RECEIPTID, receipt.ID).Msg("checked out cart")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    fmt.Sprintf("checkout receiptId=%s", receipt.ID),
		"data": map[string]interface{}{
			"receipt": receipt,
		},
	})
}
