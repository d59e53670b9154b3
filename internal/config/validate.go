package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateEncoder(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("paths.cache_dir must be set")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.S5PortalURL == "" {
		return errors.New("storage.s5_portal_url must be set")
	}
	if !strings.HasPrefix(c.Storage.S5PortalURL, "http://") && !strings.HasPrefix(c.Storage.S5PortalURL, "https://") {
		return fmt.Errorf("storage.s5_portal_url %q must be an http(s) URL", c.Storage.S5PortalURL)
	}
	if c.Storage.IPFSAPIURL == "" {
		return errors.New("storage.ipfs_api_url must be set")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.SourceMaxGiB <= 0 {
		return fmt.Errorf("cache.source_max_gib must be positive, got %v", c.Cache.SourceMaxGiB)
	}
	if c.Cache.OutputMaxGiB <= 0 {
		return fmt.Errorf("cache.output_max_gib must be positive, got %v", c.Cache.OutputMaxGiB)
	}
	if c.Cache.GCInterval <= 0 {
		return fmt.Errorf("cache.gc_interval must be positive seconds, got %d", c.Cache.GCInterval)
	}
	return nil
}

func (c *Config) validateEncoder() error {
	if c.Encoder.Binary == "" {
		return errors.New("encoder.binary must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
