package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFeedURL    = "https://api.steampowered.com/ISteamApps/GetSDRConfig/v1?appid=730"
	DefaultStateDir   = "/var/lib/relayblock"
	DefaultLedgerFile = "blocked_ips.txt"
)

type Config struct {
	Feed            FeedConfig    `yaml:"feed"`
	StateDir        string        `yaml:"state_dir"`
	LedgerFile      string        `yaml:"ledger_file"`
	RouteBackend    string        `yaml:"route_backend"`
	Probe           ProbeConfig   `yaml:"probe"`
	RestoreInterval time.Duration `yaml:"restore_interval"`
	LogLevel        string        `yaml:"log_level"`
}

type FeedConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ProbeConfig struct {
	Method  string        `yaml:"method"`
	Count   int           `yaml:"count"`
	Timeout time.Duration `yaml:"timeout"`
}

var (
	ConfigDir  = "/etc/relayblock"
	ConfigFile = filepath.Join(ConfigDir, "config.yaml")
	config     *Config
)

func Default() *Config {
	return &Config{
		Feed: FeedConfig{
			URL:     DefaultFeedURL,
			Timeout: 15 * time.Second,
		},
		StateDir:     DefaultStateDir,
		LedgerFile:   DefaultLedgerFile,
		RouteBackend: "netlink",
		Probe: ProbeConfig{
			Method:  "icmp",
			Count:   2,
			Timeout: time.Second,
		},
		RestoreInterval: 5 * time.Minute,
		LogLevel:        "info",
	}
}

// InitConfig loads ConfigFile, creating it with defaults on first run, then
// applies .env and environment overrides. Overrides are never written back.
func InitConfig() error {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using system environment")
	}

	cfg, err := Load(ConfigFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		config = Default()
		if err := SaveConfig(); err != nil {
			log.Warn("could not write default configuration", "path", ConfigFile, "error", err)
		}
		cfg = config
	case err != nil:
		return err
	}

	ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	config = cfg
	return nil
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// GetConfig returns the active configuration, or the defaults if InitConfig
// was never called.
func GetConfig() *Config {
	if config == nil {
		config = Default()
	}
	return config
}

func SaveConfig() error {
	data, err := yaml.Marshal(GetConfig())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(ConfigDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(ConfigFile, data, 0600)
}

// ApplyEnv overrides settings from RELAYBLOCK_* variables.
func ApplyEnv(cfg *Config) {
	cfg.Feed.URL = getEnv("RELAYBLOCK_FEED_URL", cfg.Feed.URL)
	cfg.StateDir = getEnv("RELAYBLOCK_STATE_DIR", cfg.StateDir)
	cfg.RouteBackend = getEnv("RELAYBLOCK_ROUTE_BACKEND", cfg.RouteBackend)
	cfg.Probe.Method = getEnv("RELAYBLOCK_PROBE_METHOD", cfg.Probe.Method)
	cfg.Probe.Count = getEnvInt("RELAYBLOCK_PROBE_COUNT", cfg.Probe.Count)
	cfg.LogLevel = getEnv("RELAYBLOCK_LOG_LEVEL", cfg.LogLevel)
}

func (c *Config) Validate() error {
	switch c.RouteBackend {
	case "netlink", "iproute":
	default:
		return fmt.Errorf("route_backend must be netlink or iproute, got %q", c.RouteBackend)
	}
	switch c.Probe.Method {
	case "icmp", "exec":
	default:
		return fmt.Errorf("probe.method must be icmp or exec, got %q", c.Probe.Method)
	}
	if c.Probe.Count < 1 {
		return fmt.Errorf("probe.count must be at least 1")
	}
	if c.Probe.Timeout <= 0 || c.Feed.Timeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.RestoreInterval < time.Second {
		return fmt.Errorf("restore_interval must be at least 1s")
	}
	if c.Feed.URL == "" || c.StateDir == "" || c.LedgerFile == "" {
		return fmt.Errorf("feed.url, state_dir and ledger_file must be set")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// LedgerPath is where blocked addresses are recorded.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.StateDir, c.LedgerFile)
}

// Level returns the configured log level, falling back to info.
func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
