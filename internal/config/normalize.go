package config

import (
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeEncoder()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return err
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.S5PortalURL = strings.TrimRight(strings.TrimSpace(c.Storage.S5PortalURL), "/")
	c.Storage.S5EncryptedPortalURL = strings.TrimRight(strings.TrimSpace(c.Storage.S5EncryptedPortalURL), "/")
	c.Storage.IPFSAPIURL = strings.TrimRight(strings.TrimSpace(c.Storage.IPFSAPIURL), "/")
	c.Storage.IPFSGatewayURL = strings.TrimRight(strings.TrimSpace(c.Storage.IPFSGatewayURL), "/")
	if c.Storage.S5EncryptedPortalURL == "" {
		c.Storage.S5EncryptedPortalURL = c.Storage.S5PortalURL
	}
	if c.Storage.RequestTimeout <= 0 {
		c.Storage.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeEncoder() {
	c.Encoder.Binary = strings.TrimSpace(c.Encoder.Binary)
	if c.Encoder.Binary == "" {
		c.Encoder.Binary = defaultEncoderBinary
	}
	if c.Encoder.Timeout <= 0 {
		c.Encoder.Timeout = defaultEncoderTimeout
	}
	if c.Encoder.CPUSlots <= 0 {
		c.Encoder.CPUSlots = defaultCPUSlots
	}
	if c.Encoder.GPUSlots <= 0 {
		c.Encoder.GPUSlots = defaultGPUSlots
	}
	c.Encoder.DefaultFormatsFile = strings.TrimSpace(c.Encoder.DefaultFormatsFile)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
