package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("paths.cache_dir must be set")
	}
	if c.Paths.CacheDir == c.Paths.DownloadDir {
		return errors.New("paths.cache_dir and paths.download_dir must differ")
	}
	return nil
}

func (c *Config) validateServer() error {
	parsed, err := url.Parse(c.Server.BaseURL)
	if err != nil || parsed.Host == "" {
		defaultPath, pathErr := DefaultConfigPath()
		if pathErr != nil {
			defaultPath = "~/.config/squeeze/config.toml"
		}
		return fmt.Errorf("server.base_url %q is not a valid URL. Set SQUEEZE_SERVER_URL or edit %s (create with 'squeeze config init')", c.Server.BaseURL, defaultPath)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("server.base_url must use http or https, got %q", parsed.Scheme)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollInterval > c.Workflow.PollTimeout {
		return errors.New("workflow.poll_interval must not exceed workflow.poll_timeout")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
