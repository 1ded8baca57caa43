package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/buhlergroup/chatengine/pkg/tools/mcp"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, CHATENGINE_CONFIG env,
//     ./config.yaml, /etc/chatengine/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. CHATENGINE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/chatengine/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("CHATENGINE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/chatengine/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps CHATENGINE_* environment variables to config
// fields. Env vars win over file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHATENGINE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CHATENGINE_UPSTREAM_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("CHATENGINE_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("CHATENGINE_MODEL"); v != "" {
		cfg.Engine.Model = v
	}
	if v := os.Getenv("CHATENGINE_SYSTEM_PROMPT"); v != "" {
		cfg.Engine.SystemPrompt = v
	}
	if v := os.Getenv("CHATENGINE_MAX_CONTINUATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxContinuations = n
		}
	}
	if v := os.Getenv("CHATENGINE_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("CHATENGINE_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("CHATENGINE_IDENTITY_SECRET"); v != "" {
		cfg.Tools.Identity.Secret = v
	}

	// CHATENGINE_MCP_SERVERS: JSON array of MCP server configs.
	if v := os.Getenv("CHATENGINE_MCP_SERVERS"); v != "" {
		servers, err := parseMCPServersJSON(v)
		if err == nil && len(servers) > 0 {
			cfg.Tools.MCP.Servers = servers
		}
	}
}

// parseMCPServersJSON parses a JSON array of MCP server configurations.
func parseMCPServersJSON(jsonStr string) ([]mcp.ServerConfig, error) {
	var servers []mcp.ServerConfig
	if err := json.Unmarshal([]byte(jsonStr), &servers); err != nil {
		return nil, fmt.Errorf("parsing MCP servers JSON: %w", err)
	}
	return servers, nil
}

// resolveFileReferences reads _file fields and populates the
// corresponding value fields. For each field ending in _file, if the
// value field is empty and the file field is set, the file is read,
// whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		name  string
		file  string
		value *string
	}{
		{"upstream.api_key_file", cfg.Upstream.APIKeyFile, &cfg.Upstream.APIKey},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"tools.identity.secret_file", cfg.Tools.Identity.SecretFile, &cfg.Tools.Identity.Secret},
		{"tools.imagegen.api_key_file", cfg.Tools.ImageGen.APIKeyFile, &cfg.Tools.ImageGen.APIKey},
		{"tools.docsearch.api_key_file", cfg.Tools.DocSearch.APIKeyFile, &cfg.Tools.DocSearch.APIKey},
		{"files.sandbox.api_key_file", cfg.Files.Sandbox.APIKeyFile, &cfg.Files.Sandbox.APIKey},
		{"files.filestore.api_key_file", cfg.Files.FileStore.APIKeyFile, &cfg.Files.FileStore.APIKey},
		{"files.blobs.api_key_file", cfg.Files.Blobs.APIKeyFile, &cfg.Files.Blobs.APIKey},
	}
	for _, ref := range refs {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.value = val
	}

	// tools.mcp.servers[*].auth.client_secret_file -> client_secret
	for i := range cfg.Tools.MCP.Servers {
		auth := &cfg.Tools.MCP.Servers[i].Auth
		if auth.ClientSecretFile != "" && auth.ClientSecret == "" {
			val, err := readSecretFile(auth.ClientSecretFile)
			if err != nil {
				return fmt.Errorf("tools.mcp.servers[%d].auth.client_secret_file: %w", i, err)
			}
			auth.ClientSecret = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding
// whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
