package request

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

type AddCartItem struct {
	ItemID string `validate:"required,max=64" json:"item_id"`
}

type RemoveCartItem struct {
	InstanceID string `validate:"required,uuid"`
}

// RemoveCartItemAt removes by position. An index outside the cart, negative
// included, leaves the cart as it is.
type RemoveCartItemAt struct {
	Index int
}

// Login signs in with a provider token, or by user id when the service
// issues its own tokens.
type Login struct {
	Token  string `validate:"required_without=UserID,excluded_with=UserID" json:"token,omitempty"`
	UserID string `validate:"required_without=Token,max=128"               json:"user_id,omitempty"`
}

func (l Login) MarshalZerologObject(e *zerolog.Event) {
	e.Str("user_id", l.UserID)
	if l.Token != "" {
		e.Str("token", "***")
	}
}

func (l Login) MarshalJSON() ([]byte, error) {
	if l.Token != "" {
		l.Token = "***"
	}
	type L Login
	return json.Marshal(L(l))
}
