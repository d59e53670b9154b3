package config

const (
	defaultDataDir    = "~/.local/share/remux/work"
	defaultCacheDir   = "~/.cache/remux"
	defaultLogDir     = "~/.local/share/remux/logs"
	defaultAPIBind    = "127.0.0.1:8000"
	defaultSocketPath = "~/.local/share/remux/remuxd.sock"

	defaultS5PortalURL    = "https://s5.cx"
	defaultIPFSAPIURL     = "http://127.0.0.1:5001"
	defaultIPFSGatewayURL = "http://127.0.0.1:8080"
	defaultRequestTimeout = 300

	defaultSourceMaxGiB = 20.0
	defaultOutputMaxGiB = 40.0
	defaultGCInterval   = 60

	defaultEncoderBinary  = "ffmpeg"
	defaultEncoderTimeout = 3600
	defaultCPUSlots       = 2
	defaultGPUSlots       = 1

	defaultNtfyTimeout = 10
)

// Default returns the built-in configuration values.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			CacheDir:   defaultCacheDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
			SocketPath: defaultSocketPath,
		},
		Storage: Storage{
			S5PortalURL:    defaultS5PortalURL,
			IPFSAPIURL:     defaultIPFSAPIURL,
			IPFSGatewayURL: defaultIPFSGatewayURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Cache: Cache{
			SourceMaxGiB: defaultSourceMaxGiB,
			OutputMaxGiB: defaultOutputMaxGiB,
			GCInterval:   defaultGCInterval,
		},
		Encoder: Encoder{
			Binary:   defaultEncoderBinary,
			Timeout:  defaultEncoderTimeout,
			CPUSlots: defaultCPUSlots,
			GPUSlots: defaultGPUSlots,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			Jobs:           true,
			Errors:         true,
		},
		Logging: Logging{
			Format: "text",
			Level:  "info",
		},
	}
}
