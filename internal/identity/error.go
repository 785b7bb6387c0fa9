package identity

import "errors"

var ErrNoVerifier = errors.New("no token verifier configured")
