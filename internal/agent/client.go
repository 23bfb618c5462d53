package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// maxConnectAttempts bounds the connect-authorize-retry loop. The first
// unauthorized failure triggers the OAuth handshake; a second one is
// terminal.
const maxConnectAttempts = 2

// Client wraps a connection to one remote MCP tool server. The OAuth
// authorization dance runs transparently on the first unauthorized attempt;
// afterwards tool calls go through the authenticated session.
type Client struct {
	name     string
	endpoint string
	logger   *Logger
	oauth    *OAuthConfig
	version  string

	// Authorization hooks for the retry loop, overridable in tests.
	authRequired func(error) bool
	authorize    func(context.Context, error) error

	mu                 sync.RWMutex
	client             *client.Client
	session            *Session
	toolCache          []mcp.Tool
	serverCapabilities *mcp.ServerCapabilities
	connected          bool
}

// ClientConfig holds configuration for creating a new Client
type ClientConfig struct {
	// Name identifies the server in log output (e.g. "search", "translate")
	Name     string
	Endpoint string
	Logger   *Logger
	OAuth    *OAuthConfig
	Version  string
}

// NewClient creates a new tool client from a configuration
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		name:     cfg.Name,
		endpoint: cfg.Endpoint,
		logger:   cfg.Logger,
		oauth:    cfg.OAuth,
		version:  cfg.Version,
	}
	c.authRequired = client.IsOAuthAuthorizationRequiredError
	c.authorize = c.runAuthorizationFlow
	return c
}

// Name returns the identifier the client was configured with.
func (c *Client) Name() string {
	return c.name
}

// Connect establishes the MCP session, running the OAuth loopback flow if
// the server demands authorization. It must succeed before CallTool is used.
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("[%s] Connecting to MCP server at %s...", c.name, c.endpoint)

	mcpClient, err := c.buildClient()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.client = mcpClient
	c.mu.Unlock()

	// Start the transport with authorization retry support
	if err := c.executeWithAuthRetry(ctx, "start client", func() error {
		return mcpClient.Start(ctx)
	}); err != nil {
		return err
	}

	// Initialize the session with authorization retry support
	if err := c.executeWithAuthRetry(ctx, methodInitialize, func() error {
		return c.initialize(ctx)
	}); err != nil {
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	// Cache the advertised tool list when the server supports tools. The
	// pipeline calls tools by name; the cache only serves manual inspection.
	if c.ServerSupportsTools() {
		if _, err := c.ListTools(ctx); err != nil {
			c.logger.Warning("[%s] Initial tool listing failed: %v", c.name, err)
		}
	} else {
		c.logger.InfoVerbose("[%s] Server does not advertise tools capability", c.name)
	}

	c.logger.Success("[%s] Connected", c.name)
	return nil
}

// buildClient constructs the underlying mcp-go client, with or without
// OAuth depending on configuration.
func (c *Client) buildClient() (*client.Client, error) {
	if c.oauth == nil || !c.oauth.Enabled {
		return client.NewStreamableHttpClient(c.endpoint)
	}

	c.oauth = c.oauth.WithDefaults()
	if err := c.oauth.Validate(); err != nil {
		return nil, fmt.Errorf("invalid OAuth configuration: %w", err)
	}

	session, err := newSession(c.oauth.CallbackPort)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate callback port: %w", err)
	}
	c.session = session
	c.logger.InfoVerbose("[%s] Callback port %d, redirect URI %s", c.name, session.callbackPort, session.redirectURI)

	// RFC 8707: bind issued tokens to this server
	resourceURI, err := deriveResourceURI(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive resource URI: %w", err)
	}

	oauthConfig := client.OAuthConfig{
		ClientID:     c.oauth.ClientID,
		ClientSecret: c.oauth.ClientSecret,
		RedirectURI:  session.redirectURI,
		Scopes:       c.oauth.Scopes,
		TokenStore:   session.tokenStore,
		PKCEEnabled:  c.oauth.UsePKCE,
		HTTPClient: &http.Client{
			Transport: newResourceRoundTripper(resourceURI, http.DefaultTransport, c.logger),
		},
	}

	mcpClient, err := client.NewOAuthStreamableHttpClient(c.endpoint, oauthConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create OAuth client: %w", err)
	}
	return mcpClient, nil
}

// executeWithAuthRetry runs fn, and when the failure signals that OAuth
// authorization is required it performs the loopback flow and retries fn
// exactly once. Any other failure propagates immediately without starting
// the callback flow.
func (c *Client) executeWithAuthRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !c.authRequired(lastErr) {
			return fmt.Errorf("%s failed: %w", operation, lastErr)
		}
		if attempt == maxConnectAttempts {
			return fmt.Errorf("%s failed after authorization: %w", operation, lastErr)
		}

		c.logger.Info("[%s] Authorization required for %s, starting OAuth flow...", c.name, operation)
		if authErr := c.authorize(ctx, lastErr); authErr != nil {
			return fmt.Errorf("OAuth authorization failed: %w", authErr)
		}
	}
	return lastErr
}

// initialize performs the MCP protocol handshake
func (c *Client) initialize(ctx context.Context) error {
	req := mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: "2024-11-05",
			ClientInfo: mcp.Implementation{
				Name:    "mcp-pipeline",
				Version: c.version,
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}

	c.logger.Request(methodInitialize, req.Params)

	result, err := c.currentClient().Initialize(ctx, req)
	if err != nil {
		return err
	}

	c.logger.Response(methodInitialize, result)

	c.mu.Lock()
	c.serverCapabilities = &result.Capabilities
	c.mu.Unlock()

	return nil
}

// CallTool executes a tool with the given arguments. It fails with
// ErrNotConnected before a successful Connect. An authorization-required
// failure mid-session (token expiry) re-runs the OAuth flow once; a lost
// connection triggers one reconnect attempt.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()

	if !connected {
		return nil, fmt.Errorf("[%s] %w", c.name, ErrNotConnected)
	}

	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}

	c.logger.Request(methodToolsCall, req.Params)

	var result *mcp.CallToolResult
	call := func() error {
		var callErr error
		result, callErr = c.currentClient().CallTool(ctx, req)
		return callErr
	}

	const maxReconnects = 1
	var err error
	for i := 0; i <= maxReconnects; i++ {
		err = c.executeWithAuthRetry(ctx, methodToolsCall+" "+name, call)
		if err == nil {
			c.logger.Response(methodToolsCall, result)
			return result, nil
		}

		if shouldReconnect(err) && i < maxReconnects {
			c.logger.Error("[%s] Connection lost during tool call. Attempting to reconnect...", c.name)
			if reconnErr := c.Reconnect(ctx); reconnErr != nil {
				err = fmt.Errorf("failed to reconnect: %w", reconnErr)
				break
			}
			c.logger.Info("[%s] Reconnected successfully. Retrying tool call...", c.name)
			continue
		}
		break
	}

	c.logger.Error("[%s] CallTool failed: %v", c.name, err)
	return nil, err
}

// ListTools lists the tools the server exposes and refreshes the cache.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()

	if !connected {
		return nil, fmt.Errorf("[%s] %w", c.name, ErrNotConnected)
	}

	req := mcp.ListToolsRequest{}
	c.logger.Request(methodToolsList, req.Params)

	result, err := c.currentClient().ListTools(ctx, req)
	if err != nil {
		return nil, err
	}

	c.logger.Response(methodToolsList, result)

	c.mu.Lock()
	c.toolCache = result.Tools
	c.mu.Unlock()

	return result.Tools, nil
}

// Reconnect tears down the transport and runs Connect again.
func (c *Client) Reconnect(ctx context.Context) error {
	c.logger.Info("[%s] Attempting to reconnect to MCP server...", c.name)

	c.mu.Lock()
	if c.client != nil {
		_ = c.client.Close()
	}
	c.connected = false
	c.mu.Unlock()

	return c.Connect(ctx)
}

// Close releases the transport and discards the session. Idempotent; no
// remote token revocation is attempted.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		_ = c.client.Close()
		c.client = nil
	}
	c.session = nil
	c.connected = false
	return nil
}

// ServerSupportsTools reports whether the server advertised the tools
// capability during initialization.
func (c *Client) ServerSupportsTools() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverCapabilities != nil && c.serverCapabilities.Tools != nil
}

func (c *Client) currentClient() *client.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

func shouldReconnect(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation can happen on disconnect
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "connection reset by peer") ||
		strings.Contains(errMsg, "transport is closing") ||
		strings.Contains(errMsg, "broken pipe") ||
		strings.Contains(errMsg, "unexpected eof") {
		return true
	}

	return false
}
