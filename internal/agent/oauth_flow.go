package agent

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
)

// runAuthorizationFlow performs the OAuth authorization-code loopback flow
// for the unauthorized error returned by the transport. A fresh
// CallbackListener is created for every attempt; the listener is strictly
// single-shot and never reused.
func (c *Client) runAuthorizationFlow(ctx context.Context, authErr error) error {
	if c.oauth == nil || c.session == nil {
		return fmt.Errorf("server requires authorization but OAuth is not configured")
	}

	oauthHandler := client.GetOAuthHandler(authErr)
	if oauthHandler == nil {
		return fmt.Errorf("no OAuth handler available in error")
	}

	flowCtx, cancel := context.WithTimeout(ctx, c.oauth.AuthorizationTimeout)
	defer cancel()

	// Dynamic Client Registration when no client ID is configured
	if oauthHandler.GetClientID() == "" {
		c.logger.Info("[%s] No client ID configured, attempting dynamic client registration...", c.name)
		if err := oauthHandler.RegisterClient(flowCtx, "mcp-pipeline"); err != nil {
			c.logger.Warning("[%s] Dynamic client registration failed: %v", c.name, err)
			return fmt.Errorf("client registration failed: %w", err)
		}
		c.logger.Success("[%s] Client registered with ID: %s", c.name, oauthHandler.GetClientID())
	}

	// PKCE parameters
	codeVerifier, err := client.GenerateCodeVerifier()
	if err != nil {
		return fmt.Errorf("failed to generate code verifier: %w", err)
	}
	codeChallenge := client.GenerateCodeChallenge(codeVerifier)

	state, err := client.GenerateState()
	if err != nil {
		return fmt.Errorf("failed to generate state: %w", err)
	}

	authURL, err := oauthHandler.GetAuthorizationURL(flowCtx, state, codeChallenge)
	if err != nil {
		return fmt.Errorf("failed to get authorization URL: %w", err)
	}

	listener := NewCallbackListener(c.session.callbackPort, c.logger)
	redirectURL, err := listener.Start(flowCtx)
	if err != nil {
		return err
	}
	defer listener.Stop()

	if redirectURL != c.session.redirectURI {
		// Port-fallback path: the redirect registered with the server no
		// longer matches, so the provider will likely reject the redirect.
		c.logger.Warning("[%s] Callback listener bound to %s instead of registered %s", c.name, redirectURL, c.session.redirectURI)
	}

	// Open browser, best-effort. Failure degrades to a manual URL.
	c.logger.Info("[%s] Opening browser for authorization...", c.name)
	if err := openBrowser(authURL); err != nil {
		c.logger.Warning("[%s] Could not open browser automatically: %v", c.name, err)
		c.logger.Info("Please open this URL in your browser:")
		c.logger.Info("%s", authURL)
	}

	c.logger.Info("[%s] Waiting for authorization...", c.name)
	result, err := listener.Wait(flowCtx)
	if err != nil {
		if flowCtx.Err() != nil {
			return fmt.Errorf("authorization timeout: %w", flowCtx.Err())
		}
		return err
	}

	if result.State != state {
		return fmt.Errorf("state mismatch (CSRF protection)")
	}

	c.session.authCode = result.Code
	c.logger.Success("[%s] Authorization code received", c.name)
	c.logger.Info("[%s] Exchanging code for access token...", c.name)

	if err := oauthHandler.ProcessAuthorizationResponse(flowCtx, result.Code, state, codeVerifier); err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	c.logger.Success("[%s] Access token obtained", c.name)
	return nil
}
