package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config represents the coordinator's static runtime configuration (spec
// §6), layered beneath the environment-variable overrides MT applies at
// construction time.
type Config struct {
	// MT settings: the thresholds and limits spec §6 says drive every
	// Location/HotLocation transition.
	MT struct {
		HotThreshold       uint32 `toml:"hot_threshold"`
		SidetraceThreshold uint32 `toml:"sidetrace_threshold"`
		TraceFailureThreshold uint32 `toml:"trace_failure_threshold"`
		MaxTraceBlocks     uint32 `toml:"max_trace_blocks"`
	} `toml:"mt"`

	// CompileQueue settings for the worker pool (component G).
	CompileQueue struct {
		MaxWorkers            int  `toml:"max_workers"` // 0 = runtime.NumCPU()-1
		SerialiseCompilation  bool `toml:"serialise_compilation"`
	} `toml:"compile_queue"`

	// Decoder settings for the hardware-trace decoder (component D).
	Decoder struct {
		ReturnStackCapacity int `toml:"return_stack_capacity"`
		SegmentCacheEntries int `toml:"segment_cache_entries"`
	} `toml:"decoder"`

	// Logging settings.
	Logging struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"` // empty = platform default log dir
	} `toml:"logging"`

	// Monitor settings for the live tview dashboard.
	Monitor struct {
		RefreshInterval string `toml:"refresh_interval"` // parsed with time.ParseDuration
	} `toml:"monitor"`

	// API settings for the introspection HTTP/WebSocket server.
	API struct {
		Port int `toml:"port"`
	} `toml:"api"`
}

// DefaultConfig returns a configuration with the same default values MT's
// own zero-value construction would pick, so a missing config file and an
// absent config.toml behave identically.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.MT.HotThreshold = 50
	cfg.MT.SidetraceThreshold = 5
	cfg.MT.TraceFailureThreshold = 5
	cfg.MT.MaxTraceBlocks = 20000

	cfg.CompileQueue.MaxWorkers = 0
	cfg.CompileQueue.SerialiseCompilation = false

	cfg.Decoder.ReturnStackCapacity = 64
	cfg.Decoder.SegmentCacheEntries = 256

	cfg.Logging.Enabled = false
	cfg.Logging.Path = ""

	cfg.Monitor.RefreshInterval = "250ms"

	cfg.API.Port = 8737

	return cfg
}

// GetConfigPath returns the platform-specific config file path.
func GetConfigPath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, "yk-mt")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml"
		}
		configDir = filepath.Join(homeDir, ".config", "yk-mt")

	default:
		return "config.toml"
	}

	if err := os.MkdirAll(configDir, 0750); err != nil {
		return "config.toml"
	}

	return filepath.Join(configDir, "config.toml")
}

// GetLogPath returns the platform-specific log directory path.
func GetLogPath() string {
	var logDir string

	switch runtime.GOOS {
	case "windows":
		logDir = os.Getenv("APPDATA")
		if logDir == "" {
			logDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		logDir = filepath.Join(logDir, "yk-mt", "logs")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "logs"
		}
		logDir = filepath.Join(homeDir, ".local", "share", "yk-mt", "logs")

	default:
		return "logs"
	}

	if err := os.MkdirAll(logDir, 0750); err != nil {
		return "logs"
	}

	return logDir
}

// Load loads configuration from the default config file.
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom loads configuration from the specified file. A missing file is
// not an error: the defaults are returned unchanged.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo saves configuration to the specified file.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 -- user config file path
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close config file: %w", closeErr)
		}
	}()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
