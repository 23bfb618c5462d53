package agent

import (
	"fmt"

	"github.com/mark3labs/mcp-go/client"
)

// Session holds the in-memory OAuth state for a single server connection:
// the allocated callback port, the redirect URI registered with the
// authorization server, the pending authorization code, and the token store
// the transport reads access/refresh tokens from.
//
// A session is owned by exactly one Client. It is created during Connect,
// mutated only by the authorization handshake, and discarded on Close.
// Sessions are never shared across servers.
type Session struct {
	callbackPort int
	redirectURI  string
	authCode     string
	tokenStore   client.TokenStore
}

// newSession allocates a callback port for the server, searching upward from
// the configured preferred base, and derives the redirect URI from it.
func newSession(preferredPort int) (*Session, error) {
	port, err := FindAvailablePort(preferredPort)
	if err != nil {
		return nil, err
	}

	return &Session{
		callbackPort: port,
		redirectURI:  callbackURL(port),
		tokenStore:   client.NewMemoryTokenStore(),
	}, nil
}

// callbackURL builds the loopback redirect URI for a callback port.
func callbackURL(port int) string {
	return fmt.Sprintf("http://localhost:%d%s", port, callbackPath)
}
