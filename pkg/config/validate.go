package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid
// values. Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Upstream.BaseURL == "" {
		errs = append(errs, fmt.Errorf("upstream.base_url is required"))
	}

	if c.Engine.Model == "" {
		errs = append(errs, fmt.Errorf("engine.model is required"))
	}
	if c.Engine.MaxContinuations < 0 {
		errs = append(errs, fmt.Errorf("engine.max_continuations must be >= 0, got %d", c.Engine.MaxContinuations))
	}

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	switch c.Storage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	if c.Tools.ImageGen.Enabled && c.Tools.ImageGen.BaseURL == "" {
		errs = append(errs, fmt.Errorf("tools.imagegen.base_url is required when tools.imagegen.enabled is true"))
	}
	if c.Tools.DocSearch.Enabled && c.Tools.DocSearch.BaseURL == "" {
		errs = append(errs, fmt.Errorf("tools.docsearch.base_url is required when tools.docsearch.enabled is true"))
	}

	for i, srv := range c.Tools.MCP.Servers {
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("tools.mcp.servers[%d].name is required", i))
		}
		if srv.URL == "" {
			errs = append(errs, fmt.Errorf("tools.mcp.servers[%d].url is required", i))
		}
	}

	if c.Files.Sandboxes.Enabled && c.Files.Sandboxes.Template == "" {
		errs = append(errs, fmt.Errorf("files.sandboxes.template is required when files.sandboxes.enabled is true"))
	}

	return errors.Join(errs...)
}
