package agent

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestDeriveResourceURI(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     string
		wantErr  bool
	}{
		{
			name:     "lowercases scheme and host",
			endpoint: "HTTPS://MCP.Example.Com/mcp",
			want:     "https://mcp.example.com/mcp",
		},
		{
			name:     "omits standard https port",
			endpoint: "https://mcp.example.com:443/mcp",
			want:     "https://mcp.example.com/mcp",
		},
		{
			name:     "keeps non-standard port",
			endpoint: "https://example.com:8443/mcp",
			want:     "https://example.com:8443/mcp",
		},
		{
			name:     "localhost endpoint",
			endpoint: "http://localhost:8091/mcp",
			want:     "http://localhost:8091/mcp",
		},
		{
			name:     "strips trailing slash",
			endpoint: "https://example.com/mcp/",
			want:     "https://example.com/mcp",
		},
		{
			name:     "missing scheme",
			endpoint: "example.com/mcp",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := deriveResourceURI(tt.endpoint)
			if (err != nil) != tt.wantErr {
				t.Fatalf("deriveResourceURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("deriveResourceURI() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResourceRoundTripperAddsParameterToTokenRequest(t *testing.T) {
	var gotResource string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		values, _ := url.ParseQuery(string(body))
		gotResource = values.Get("resource")
	}))
	defer server.Close()

	rt := newResourceRoundTripper("https://mcp.example.com/mcp", http.DefaultTransport, nil)
	client := &http.Client{Transport: rt}

	resp, err := client.Post(server.URL+"/oauth/token", "application/x-www-form-urlencoded",
		strings.NewReader("grant_type=authorization_code&code=abc"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	if gotResource != "https://mcp.example.com/mcp" {
		t.Errorf("expected resource parameter on token request, got %q", gotResource)
	}
}

func TestResourceRoundTripperSkipsNonOAuthRequest(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
	}))
	defer server.Close()

	rt := newResourceRoundTripper("https://mcp.example.com/mcp", http.DefaultTransport, nil)
	client := &http.Client{Transport: rt}

	resp, err := client.Get(server.URL + "/mcp")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	if gotQuery.Get("resource") != "" {
		t.Error("expected no resource parameter on a plain request")
	}
}
