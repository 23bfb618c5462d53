// Package agent implements the authenticated MCP tool client used by the
// content pipeline.
//
// Each Client owns a connection to one remote MCP tool server. When the
// server demands authorization, the client runs the OAuth 2.1
// authorization-code flow over a loopback redirect: a throwaway port is
// allocated (FindAvailablePort), a single-use CallbackListener receives the
// redirect, the user's browser is opened for consent, and the received code
// is exchanged for tokens through mcp-go's OAuth handler. Token state lives
// in an in-memory Session tied to the client's lifetime; nothing is
// persisted across process restarts.
//
// Key components:
//
//   - Client: connects to an MCP server and exposes CallTool / ListTools
//   - OAuthConfig: per-server OAuth 2.1 configuration
//   - CallbackListener: single-shot loopback HTTP listener for the redirect
//   - Logger: formatted console logging with color and JSON-RPC tracing
package agent
