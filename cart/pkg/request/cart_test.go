package request

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestLoginRequest(t *testing.T) {
	expectedMap := map[string]string{"token": "***"}
	expected, _ := json.Marshal(expectedMap)
	loginReq := Login{Token: "secret-token"}

	actual, _ := json.Marshal(loginReq)

	assert.EqualValues(t, expected, actual)
	assert.EqualValues(t, "secret-token", loginReq.Token)
}

func TestLoginRequestByUserID(t *testing.T) {
	actual, _ := json.Marshal(Login{UserID: "u1"})

	assert.JSONEq(t, `{"user_id":"u1"}`, string(actual))
}

func TestValidate(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	testCases := []struct {
		name    string
		input   interface{}
		isValid bool
	}{
		{name: "add item", input: AddCartItem{ItemID: "2"}, isValid: true},
		{name: "add item without id", input: AddCartItem{}, isValid: false},
		{name: "remove by instance", input: RemoveCartItem{InstanceID: "7b0c2a44-3f6e-4c1a-9f8e-2d51c6a0b9e1"}, isValid: true},
		{name: "remove by malformed instance", input: RemoveCartItem{InstanceID: "not-a-uuid"}, isValid: false},
		{name: "remove at zero", input: RemoveCartItemAt{Index: 0}, isValid: true},
		{name: "remove at negative", input: RemoveCartItemAt{Index: -1}, isValid: true},
		{name: "login by token", input: Login{Token: "t"}, isValid: true},
		{name: "login by user", input: Login{UserID: "u1"}, isValid: true},
		{name: "login with both", input: Login{Token: "t", UserID: "u1"}, isValid: false},
		{name: "login with neither", input: Login{}, isValid: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validate.Struct(tc.input)
			if tc.isValid {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
		})
	}
}
