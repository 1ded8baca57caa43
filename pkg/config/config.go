// Package config provides unified configuration for the chat engine
// server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (CHATENGINE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/buhlergroup/chatengine/pkg/tools/mcp"
)

// Config holds all configuration for the chat engine server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Engine        EngineConfig        `yaml:"engine"`
	Storage       StorageConfig       `yaml:"storage"`
	Tools         ToolsConfig         `yaml:"tools"`
	Files         FilesConfig         `yaml:"files"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 10 MB
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
}

// UpstreamConfig holds settings for the streaming model backend.
type UpstreamConfig struct {
	BaseURL    string        `yaml:"base_url"`     // required
	APIKey     string        `yaml:"api_key"`      // optional
	APIKeyFile string        `yaml:"api_key_file"` // _file variant for api_key
	Timeout    time.Duration `yaml:"timeout"`      // default: 300s
}

// EngineConfig holds conversation engine settings.
type EngineConfig struct {
	Model            string          `yaml:"model"` // required
	SystemPrompt     string          `yaml:"system_prompt"`
	MaxContinuations int             `yaml:"max_continuations"` // default: 10
	MaxOutputTokens  *int            `yaml:"max_output_tokens"`
	Temperature      *float64        `yaml:"temperature"`
	Reasoning        ReasoningConfig `yaml:"reasoning"`
}

// ReasoningConfig requests reasoning summaries from the backend.
type ReasoningConfig struct {
	Effort  string `yaml:"effort"`
	Summary string `yaml:"summary"`
}

// StorageConfig holds message persistence settings.
type StorageConfig struct {
	Type     string         `yaml:"type"` // "memory" or "postgres", default: "memory"
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`  // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"` // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// ToolsConfig holds tool execution settings.
type ToolsConfig struct {
	Identity  IdentityConfig  `yaml:"identity"`
	ImageGen  ImageGenConfig  `yaml:"imagegen"`
	DocSearch DocSearchConfig `yaml:"docsearch"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// IdentityConfig holds settings for signed user identity assertions
// forwarded to tool backends.
type IdentityConfig struct {
	Secret     string        `yaml:"secret"`
	SecretFile string        `yaml:"secret_file"` // _file variant for secret
	Issuer     string        `yaml:"issuer"`      // default: "chatengine"
	TTL        time.Duration `yaml:"ttl"`         // default: 5m
}

// ImageGenConfig holds settings for the built-in image generation tool.
type ImageGenConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	APIKeyFile string `yaml:"api_key_file"` // _file variant for api_key
	Model      string `yaml:"model"`
}

// DocSearchConfig holds settings for the built-in document search tool.
type DocSearchConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	APIKeyFile string `yaml:"api_key_file"` // _file variant for api_key
	MaxResults int    `yaml:"max_results"`
}

// MCPConfig holds MCP (Model Context Protocol) server settings.
type MCPConfig struct {
	Servers []mcp.ServerConfig `yaml:"servers"`
}

// FilesConfig holds file resolution settings: where annotated files are
// downloaded from and where durable copies are uploaded to.
type FilesConfig struct {
	Sandbox   EndpointConfig    `yaml:"sandbox"`
	FileStore EndpointConfig    `yaml:"filestore"`
	Blobs     BlobConfig        `yaml:"blobs"`
	Sandboxes SandboxPoolConfig `yaml:"sandboxes"`
}

// EndpointConfig is a generic HTTP endpoint with optional bearer auth.
type EndpointConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	APIKeyFile string `yaml:"api_key_file"` // _file variant for api_key
}

// BlobConfig holds durable blob store settings.
type BlobConfig struct {
	BaseURL    string `yaml:"base_url"`
	PublicURL  string `yaml:"public_url"`
	APIKey     string `yaml:"api_key"`
	APIKeyFile string `yaml:"api_key_file"` // _file variant for api_key
}

// SandboxPoolConfig holds settings for acquiring replacement sandbox
// containers through the Kubernetes claim API.
type SandboxPoolConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Template  string        `yaml:"template"`
	Namespace string        `yaml:"namespace"`
	Timeout   time.Duration `yaml:"timeout"` // default: 60s
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`

	// Debug is a comma-separated list of debug categories, see the
	// debug package. LogLevel is one of ERROR, WARN, INFO, DEBUG,
	// TRACE.
	Debug    string `yaml:"debug"`
	LogLevel string `yaml:"log_level"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			MaxBodySize:     10 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			Timeout: 300 * time.Second,
		},
		Engine: EngineConfig{
			MaxContinuations: 10,
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Tools: ToolsConfig{
			Identity: IdentityConfig{
				Issuer: "chatengine",
				TTL:    5 * time.Minute,
			},
		},
		Files: FilesConfig{
			Sandboxes: SandboxPoolConfig{
				Timeout: 60 * time.Second,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
			},
		},
	}
}
