package agent

import (
	"fmt"
	"time"
)

// Defaults for the OAuth loopback flow.
const (
	// DefaultCallbackPort is the preferred base port for the loopback
	// redirect listener. Each server gets its own base so concurrent
	// handshakes never collide on the same port.
	DefaultCallbackPort = 8765

	// DefaultAuthorizationTimeout bounds the wait for the browser callback.
	DefaultAuthorizationTimeout = 5 * time.Minute
)

// OAuthConfig contains OAuth 2.1 configuration for authenticating with MCP
// tool servers.
type OAuthConfig struct {
	// Enabled indicates whether OAuth authentication should be used
	Enabled bool

	// ClientID is the OAuth client identifier (optional - will use DCR if not provided)
	ClientID string

	// ClientSecret is the OAuth client secret (optional for public clients)
	ClientSecret string

	// Scopes are the OAuth scopes to request (default: mcp:tools)
	Scopes []string

	// CallbackPort is the preferred port for the loopback redirect listener.
	// The actual port is allocated at connect time, searching upward from
	// this value.
	CallbackPort int

	// UsePKCE enables Proof Key for Code Exchange (recommended, enabled by default)
	UsePKCE bool

	// AuthorizationTimeout is the maximum time to wait for the browser callback
	AuthorizationTimeout time.Duration
}

// DefaultOAuthConfig returns a default OAuth configuration
func DefaultOAuthConfig() *OAuthConfig {
	return &OAuthConfig{
		Enabled:              false,
		Scopes:               []string{"mcp:tools"},
		CallbackPort:         DefaultCallbackPort,
		UsePKCE:              true,
		AuthorizationTimeout: DefaultAuthorizationTimeout,
	}
}

// WithDefaults fills in unset fields with default values
func (c *OAuthConfig) WithDefaults() *OAuthConfig {
	if c == nil {
		return DefaultOAuthConfig()
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{"mcp:tools"}
	}
	if c.CallbackPort == 0 {
		c.CallbackPort = DefaultCallbackPort
	}
	if c.AuthorizationTimeout == 0 {
		c.AuthorizationTimeout = DefaultAuthorizationTimeout
	}
	return c
}

// Validate checks if the OAuth configuration is valid
func (c *OAuthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.CallbackPort < 0 || c.CallbackPort > 65535 {
		return fmt.Errorf("invalid OAuth callback port: %d", c.CallbackPort)
	}

	if c.AuthorizationTimeout < 0 {
		return fmt.Errorf("invalid OAuth authorization timeout: %v", c.AuthorizationTimeout)
	}

	return nil
}
