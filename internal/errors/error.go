package errors

import (
	"errors"
)

var (
	ErrEmptyAuth        = errors.New("missing authorization")
	ErrEmptySubject     = errors.New("missing subject")
	ErrTokenInvalid     = errors.New("invalid token")
	ErrItemNotFound     = errors.New("catalog item not found")
	ErrItemUnavailable  = errors.New("catalog item is sold out")
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrClosed           = errors.New("cart engine is closed")
	ErrDocumentNotFound = errors.New("cart document not found")
	ErrUnknownBackend   = errors.New("unknown storage backend")
	ErrLocalSignIn      = errors.New("signing in by user id needs auth.provider=jwt")
)
