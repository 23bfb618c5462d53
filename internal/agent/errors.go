package agent

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when a tool call is attempted before Connect
// has succeeded.
var ErrNotConnected = errors.New("client not connected")

// ErrNoAuthorizationCode is returned when the OAuth redirect arrives without
// a code or error parameter.
var ErrNoAuthorizationCode = errors.New("no authorization code provided")

// AuthorizationError reports a provider-side denial delivered on the OAuth
// redirect. It is terminal for the handshake that produced it.
type AuthorizationError struct {
	Code        string
	Description string
}

func (e *AuthorizationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s - %s", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization failed: %s", e.Code)
}
