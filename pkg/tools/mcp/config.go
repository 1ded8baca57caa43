package mcp

// Config holds the configuration for all MCP server connections.
type Config struct {
	// Servers is the list of MCP server configurations to connect to.
	Servers []ServerConfig
}

// ServerConfig describes a single MCP server connection.
type ServerConfig struct {
	// Name is the logical name for this server, used for logging and
	// routing.
	Name string `json:"name" yaml:"name"`

	// Transport is the transport type: "sse" or "streamable-http".
	// Empty defaults to "streamable-http".
	Transport string `json:"transport" yaml:"transport"`

	// URL is the MCP server endpoint.
	URL string `json:"url" yaml:"url"`

	// Headers contains additional HTTP headers to send with requests,
	// typically API keys or bearer tokens.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Auth configures dynamic authentication for the connection.
	Auth AuthConfig `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// AuthConfig configures dynamic authentication for an MCP server.
type AuthConfig struct {
	// Type selects the auth scheme. Supported: "oauth_client_credentials".
	// Empty means static headers only.
	Type string `json:"type" yaml:"type"`

	// OAuth client credentials grant settings. ClientSecretFile is the
	// _file variant of ClientSecret, resolved by the config loader.
	TokenURL         string   `json:"token_url" yaml:"token_url"`
	ClientID         string   `json:"client_id" yaml:"client_id"`
	ClientSecret     string   `json:"client_secret" yaml:"client_secret"`
	ClientSecretFile string   `json:"client_secret_file,omitempty" yaml:"client_secret_file,omitempty"`
	Scopes           []string `json:"scopes" yaml:"scopes"`
}
