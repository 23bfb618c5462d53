package agent

// MCP method constants.
// These are the standard MCP protocol method names used across the package.
const (
	// methodInitialize is the MCP initialization method
	methodInitialize = "initialize"

	// methodToolsList enumerates the tools a server exposes
	methodToolsList = "tools/list"

	// methodToolsCall invokes a named tool with arguments
	methodToolsCall = "tools/call"
)

// URL scheme constants for validation.
const (
	schemeHTTPS = "https"
	schemeHTTP  = "http"
)
