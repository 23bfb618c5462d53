package agent

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// deriveResourceURI derives a canonical resource URI from an endpoint URL
// per RFC 8707 (Resource Indicators for OAuth 2.0).
//
// Canonicalization rules:
//   - Lowercase scheme and host
//   - Include port if non-standard (not 80/443)
//   - Include path if necessary to identify the MCP server
//   - No trailing slash (unless semantically significant)
//   - No fragment identifiers or query parameters
func deriveResourceURI(endpoint string) (string, error) {
	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint URL: %w", err)
	}

	if parsedURL.Scheme == "" {
		return "", fmt.Errorf("endpoint URL missing scheme: %s", endpoint)
	}
	if parsedURL.Host == "" {
		return "", fmt.Errorf("endpoint URL missing host: %s", endpoint)
	}

	scheme := strings.ToLower(parsedURL.Scheme)
	host := strings.ToLower(parsedURL.Host)

	hostname, port, err := net.SplitHostPort(host)
	if err != nil {
		// No port specified, use the whole host
		hostname = host
		port = ""
	}

	// Standard ports that should be omitted
	omitPort := (scheme == schemeHTTPS && port == "443") || (scheme == schemeHTTP && port == "80")

	// net.SplitHostPort strips brackets from IPv6 addresses, so add them back
	if strings.Contains(hostname, ":") {
		if omitPort || port == "" {
			host = "[" + hostname + "]"
		} else {
			host = "[" + hostname + "]:" + port
		}
	} else {
		if omitPort || port == "" {
			host = hostname
		} else {
			host = hostname + ":" + port
		}
	}

	path := parsedURL.Path
	if path != "/" && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}

	return scheme + "://" + host + path, nil
}

// resourceRoundTripper is an HTTP RoundTripper that adds the RFC 8707
// resource parameter to OAuth authorization and token requests so that
// issued tokens are bound to the server the client is talking to.
type resourceRoundTripper struct {
	base        http.RoundTripper
	resourceURI string
	logger      *Logger
}

func newResourceRoundTripper(resourceURI string, base http.RoundTripper, logger *Logger) *resourceRoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &resourceRoundTripper{
		base:        base,
		resourceURI: resourceURI,
		logger:      logger,
	}
}

// RoundTrip implements http.RoundTripper by adding the resource parameter to OAuth requests
func (t *resourceRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.resourceURI == "" {
		return t.base.RoundTrip(req)
	}

	// Clone the request to avoid modifying the original
	clonedReq := req.Clone(req.Context())

	if t.isOAuthRequest(clonedReq) {
		if err := t.addResourceParameter(clonedReq); err != nil {
			t.logger.WarningVerbose("Failed to add resource parameter: %v", err)
			// Continue with the original request if the rewrite fails
			return t.base.RoundTrip(req)
		}
		t.logger.InfoVerbose("Added resource parameter to OAuth request: %s", t.resourceURI)
	}

	return t.base.RoundTrip(clonedReq)
}

// isOAuthRequest checks if the request is an OAuth authorization or token request
func (t *resourceRoundTripper) isOAuthRequest(req *http.Request) bool {
	// Token endpoint: POST to /token or similar, suffix matching to avoid
	// false positives
	if req.Method == http.MethodPost {
		path := strings.ToLower(req.URL.Path)
		if strings.HasSuffix(path, "/token") ||
			strings.HasSuffix(path, "/oauth/token") ||
			strings.HasSuffix(path, "/oauth2/token") {
			return true
		}
	}

	// Authorization endpoint: GET with response_type=code
	if req.Method == http.MethodGet {
		query := req.URL.Query()
		if query.Get("response_type") == "code" && query.Get("client_id") != "" {
			return true
		}
	}

	return false
}

// addResourceParameter adds the resource parameter to the OAuth request
func (t *resourceRoundTripper) addResourceParameter(req *http.Request) error {
	if req.Method == http.MethodGet {
		query := req.URL.Query()
		query.Set("resource", t.resourceURI)
		req.URL.RawQuery = query.Encode()
		return nil
	}

	if req.Method == http.MethodPost {
		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			return fmt.Errorf("failed to read request body: %w", err)
		}
		_ = req.Body.Close()

		values, err := url.ParseQuery(string(bodyBytes))
		if err != nil {
			return fmt.Errorf("failed to parse form data: %w", err)
		}

		values.Set("resource", t.resourceURI)

		newBody := values.Encode()
		req.Body = io.NopCloser(strings.NewReader(newBody))
		req.ContentLength = int64(len(newBody))
	}

	return nil
}
