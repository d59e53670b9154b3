package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	CacheDir   string `toml:"cache_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	SocketPath string `toml:"socket_path"`
}

// Storage contains configuration for the content storage backends.
type Storage struct {
	S5PortalURL          string `toml:"s5_portal_url"`
	S5EncryptedPortalURL string `toml:"s5_encrypted_portal_url"`
	S5AuthToken          string `toml:"s5_auth_token"`
	IPFSAPIURL           string `toml:"ipfs_api_url"`
	IPFSGatewayURL       string `toml:"ipfs_gateway_url"`
	RequestTimeout       int    `toml:"request_timeout"`
}

// Cache contains the disk cache budgets and the collector interval.
type Cache struct {
	SourceMaxGiB float64 `toml:"source_max_gib"`
	OutputMaxGiB float64 `toml:"output_max_gib"`
	GCInterval   int     `toml:"gc_interval"`
}

// Encoder contains configuration for the external codec engine.
type Encoder struct {
	Binary             string `toml:"binary"`
	Timeout            int    `toml:"timeout"`
	CPUSlots           int    `toml:"cpu_slots"`
	GPUSlots           int    `toml:"gpu_slots"`
	DefaultFormatsFile string `toml:"default_formats_file"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Jobs           bool   `toml:"jobs"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for remux.
//
// Configuration sections by subsystem:
//   - Paths: directories, API bind address, control socket
//   - Storage: S5 and IPFS backend endpoints
//   - Cache: source/output byte budgets and GC poll interval
//   - Encoder: codec engine binary, timeout, CPU/GPU slots
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Storage       Storage       `toml:"storage"`
	Cache         Cache         `toml:"cache"`
	Encoder       Encoder       `toml:"encoder"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/remux/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. Environment variables override
// storage secrets after the file is parsed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("remux.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) applyEnvOverrides() {
	if token := strings.TrimSpace(os.Getenv("REMUX_S5_AUTH_TOKEN")); token != "" {
		c.Storage.S5AuthToken = token
	}
	if portal := strings.TrimSpace(os.Getenv("REMUX_S5_PORTAL_URL")); portal != "" {
		c.Storage.S5PortalURL = portal
	}
	if portal := strings.TrimSpace(os.Getenv("REMUX_S5_ENCRYPTED_PORTAL_URL")); portal != "" {
		c.Storage.S5EncryptedPortalURL = portal
	}
	if api := strings.TrimSpace(os.Getenv("REMUX_IPFS_API_URL")); api != "" {
		c.Storage.IPFSAPIURL = api
	}
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.CacheDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SourceBudgetBytes returns the source cache budget in bytes.
func (c *Config) SourceBudgetBytes() int64 {
	return int64(c.Cache.SourceMaxGiB * 1024 * 1024 * 1024)
}

// OutputBudgetBytes returns the transcoded output cache budget in bytes.
func (c *Config) OutputBudgetBytes() int64 {
	return int64(c.Cache.OutputMaxGiB * 1024 * 1024 * 1024)
}

// GCInterval returns the garbage collector poll interval.
func (c *Config) GCInterval() time.Duration {
	return time.Duration(c.Cache.GCInterval) * time.Second
}

// EncodeTimeout returns the per-invocation codec engine timeout.
func (c *Config) EncodeTimeout() time.Duration {
	return time.Duration(c.Encoder.Timeout) * time.Second
}

// StorageTimeout returns the per-request storage backend timeout.
func (c *Config) StorageTimeout() time.Duration {
	return time.Duration(c.Storage.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
