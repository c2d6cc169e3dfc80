package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config represents the companion process configuration.
type Config struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Surface     Surface   `json:"surface"`
	Poller      Poller    `json:"poller"`
	Bridge      Bridge    `json:"bridge"`
	Presence    Presence  `json:"presence"`
	Endpoints   Endpoints `json:"endpoints"`
	History     History   `json:"history"`
	Status      Status    `json:"status"`
	Logging     Logging   `json:"logging"`
}

// Surface configures the embedded browser window.
type Surface struct {
	StartURL                 string `json:"start_url"`
	DataDir                  string `json:"data_dir"`
	WindowWidth              int    `json:"window_width"`
	WindowHeight             int    `json:"window_height"`
	Headless                 bool   `json:"headless"`
	NavigationTimeoutSeconds int    `json:"navigation_timeout_seconds"`
}

// Poller configures the page-state polling loop.
type Poller struct {
	IntervalSeconds int `json:"interval_seconds"`
	DebounceRetries int `json:"debounce_retries"`
}

// Bridge configures host<->page request correlation.
type Bridge struct {
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`
}

// Presence configures the Discord Rich Presence connection.
type Presence struct {
	ApplicationID string `json:"application_id"`
}

// Endpoints are the upstream data APIs fetched through the page.
type Endpoints struct {
	LiveAPI    string `json:"live_api"`
	OfflineAPI string `json:"offline_api"`
	PlayerAPI  string `json:"player_api"`
	MapAPI     string `json:"map_api"`
}

// History configures the local presence history store.
type History struct {
	Enabled       bool   `json:"enabled"`
	Path          string `json:"path"`
	RetentionDays int    `json:"retention_days"`
}

// Status configures the local status HTTP server.
type Status struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// Logging represents logging configuration
type Logging struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Path   string `json:"path"`
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return os.TempDir()
	}
	return home
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	base := filepath.Join(homeDir(), ".kartklickare")
	return &Config{
		Name:        "kartklickare",
		Version:     "0.2.0",
		Description: "GeoGuessr companion window with Discord Rich Presence",
		Surface: Surface{
			StartURL:                 "https://www.geoguessr.com/",
			DataDir:                  filepath.Join(base, "surface"),
			WindowWidth:              1280,
			WindowHeight:             800,
			Headless:                 false,
			NavigationTimeoutSeconds: 30,
		},
		Poller: Poller{
			IntervalSeconds: 1,
			DebounceRetries: 20,
		},
		Bridge: Bridge{
			RequestTimeoutSeconds: 30,
		},
		Presence: Presence{
			ApplicationID: "1366798864249786468",
		},
		Endpoints: Endpoints{
			LiveAPI:    "https://game-server.geoguessr.com/api",
			OfflineAPI: "https://www.geoguessr.com/api/v3/games",
			PlayerAPI:  "https://www.geoguessr.com/api/v3/profiles/",
			MapAPI:     "https://www.geoguessr.com/api/maps",
		},
		History: History{
			Enabled:       true,
			Path:          filepath.Join(base, "history.db"),
			RetentionDays: 30,
		},
		Status: Status{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    9619,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
			Path:   filepath.Join(base, "logs", "kartklickare.log"),
		},
	}
}

// PollInterval returns the poll tick interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poller.IntervalSeconds) * time.Second
}

// RequestTimeout returns the bridge request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Bridge.RequestTimeoutSeconds) * time.Second
}

// NavigationTimeout returns the surface navigation timeout as a duration.
func (c *Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Surface.NavigationTimeoutSeconds) * time.Second
}

// LoadConfig loads the configuration from a file
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Environment variables take precedence over file values.
	applyEnvOverrides(cfg)
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a file
func SaveConfig(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %v", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %v", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("KARTKLICKARE_START_URL"); url != "" {
		cfg.Surface.StartURL = url
	}

	if dir := os.Getenv("KARTKLICKARE_DATA_DIR"); dir != "" {
		cfg.Surface.DataDir = dir
	}

	if headless := os.Getenv("KARTKLICKARE_HEADLESS"); headless != "" {
		if parsed, err := strconv.ParseBool(headless); err == nil {
			cfg.Surface.Headless = parsed
		} else {
			log.Printf("warning: ignoring invalid KARTKLICKARE_HEADLESS value %q: %v", headless, err)
		}
	}

	if interval := os.Getenv("KARTKLICKARE_POLL_INTERVAL_SECONDS"); interval != "" {
		if parsed, err := strconv.Atoi(interval); err == nil {
			cfg.Poller.IntervalSeconds = parsed
		} else {
			log.Printf("warning: ignoring invalid KARTKLICKARE_POLL_INTERVAL_SECONDS value %q: %v", interval, err)
		}
	}

	if retries := os.Getenv("KARTKLICKARE_DEBOUNCE_RETRIES"); retries != "" {
		if parsed, err := strconv.Atoi(retries); err == nil {
			cfg.Poller.DebounceRetries = parsed
		} else {
			log.Printf("warning: ignoring invalid KARTKLICKARE_DEBOUNCE_RETRIES value %q: %v", retries, err)
		}
	}

	if appID := os.Getenv("KARTKLICKARE_PRESENCE_APP_ID"); appID != "" {
		cfg.Presence.ApplicationID = appID
	}

	if enabled := os.Getenv("KARTKLICKARE_HISTORY_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			cfg.History.Enabled = parsed
		} else {
			log.Printf("warning: ignoring invalid KARTKLICKARE_HISTORY_ENABLED value %q: %v", enabled, err)
		}
	}

	if path := os.Getenv("KARTKLICKARE_HISTORY_PATH"); path != "" {
		cfg.History.Path = path
	}

	if enabled := os.Getenv("KARTKLICKARE_STATUS_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			cfg.Status.Enabled = parsed
		} else {
			log.Printf("warning: ignoring invalid KARTKLICKARE_STATUS_ENABLED value %q: %v", enabled, err)
		}
	}

	if portStr := os.Getenv("KARTKLICKARE_STATUS_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Status.Port = port
		} else {
			log.Printf("warning: ignoring invalid KARTKLICKARE_STATUS_PORT value %q: %v", portStr, err)
		}
	}

	if logLevel := os.Getenv("KARTKLICKARE_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if logPath := os.Getenv("KARTKLICKARE_LOG_PATH"); logPath != "" {
		cfg.Logging.Path = logPath
	}
}

// Normalize canonicalizes config values so downstream validation and runtime
// logic operate on stable representations.
func (c *Config) Normalize() {
	c.Surface.StartURL = strings.TrimSpace(c.Surface.StartURL)
	c.Surface.DataDir = strings.TrimSpace(c.Surface.DataDir)
	c.Presence.ApplicationID = strings.TrimSpace(c.Presence.ApplicationID)
	c.Endpoints.LiveAPI = strings.TrimRight(strings.TrimSpace(c.Endpoints.LiveAPI), "/")
	c.Endpoints.OfflineAPI = strings.TrimRight(strings.TrimSpace(c.Endpoints.OfflineAPI), "/")
	c.Endpoints.PlayerAPI = strings.TrimSpace(c.Endpoints.PlayerAPI)
	c.Endpoints.MapAPI = strings.TrimRight(strings.TrimSpace(c.Endpoints.MapAPI), "/")
	c.Status.Host = strings.TrimSpace(c.Status.Host)
	c.History.Path = strings.TrimSpace(c.History.Path)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Path = strings.TrimSpace(c.Logging.Path)
	if c.Surface.NavigationTimeoutSeconds == 0 {
		c.Surface.NavigationTimeoutSeconds = 30
	}
	if c.Bridge.RequestTimeoutSeconds == 0 {
		c.Bridge.RequestTimeoutSeconds = 30
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Surface.StartURL == "" {
		return errors.New("surface start_url cannot be empty")
	}
	if !strings.HasPrefix(c.Surface.StartURL, "http://") && !strings.HasPrefix(c.Surface.StartURL, "https://") {
		return fmt.Errorf("invalid surface start_url %q: expected http(s) URL", c.Surface.StartURL)
	}
	if c.Surface.WindowWidth <= 0 || c.Surface.WindowHeight <= 0 {
		return errors.New("surface window dimensions must be positive")
	}

	if c.Poller.IntervalSeconds < 1 || c.Poller.IntervalSeconds > 60 {
		return fmt.Errorf("invalid poller interval seconds %d: expected range 1..60", c.Poller.IntervalSeconds)
	}
	if c.Poller.DebounceRetries < 0 || c.Poller.DebounceRetries > 120 {
		return fmt.Errorf("invalid poller debounce retries %d: expected range 0..120", c.Poller.DebounceRetries)
	}

	if c.Bridge.RequestTimeoutSeconds < 1 {
		return errors.New("bridge request timeout must be at least 1 second")
	}

	if c.Presence.ApplicationID == "" {
		return errors.New("presence application_id cannot be empty")
	}

	for name, url := range map[string]string{
		"live_api":    c.Endpoints.LiveAPI,
		"offline_api": c.Endpoints.OfflineAPI,
		"player_api":  c.Endpoints.PlayerAPI,
		"map_api":     c.Endpoints.MapAPI,
	} {
		if url == "" {
			return fmt.Errorf("endpoint %s cannot be empty", name)
		}
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return fmt.Errorf("invalid endpoint %s %q: expected http(s) URL", name, url)
		}
	}

	if c.History.Enabled && c.History.Path == "" {
		return errors.New("history path cannot be empty when history is enabled")
	}
	if c.History.RetentionDays < 0 {
		return errors.New("history retention days cannot be negative")
	}

	if c.Status.Enabled {
		if c.Status.Port <= 0 || c.Status.Port > 65535 {
			return errors.New("invalid status port number")
		}
		if c.Status.Host == "" {
			return errors.New("status host cannot be empty")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return errors.New("invalid log level")
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return errors.New("invalid log format")
	}

	if c.Logging.Path == "" {
		return errors.New("log path cannot be empty")
	}

	return nil
}

// ResolveConfigPath returns the path that should be used for configuration.
func ResolveConfigPath() (string, error) {
	if path := strings.TrimSpace(os.Getenv("KARTKLICKARE_CONFIG_PATH")); path != "" {
		return path, nil
	}

	if _, err := os.Stat("config/kartklickare.json"); err == nil {
		return "config/kartklickare.json", nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".kartklickare", "config", "kartklickare.json"), nil
}

// EnsureDefaultConfig creates a default config file if one does not exist.
func EnsureDefaultConfig(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path cannot be empty")
	}

	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	defaultConfig := NewConfig()
	defaultConfig.Normalize()
	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	return nil
}
