// ABOUTME: Engine configuration and credential settings for backend sync
// ABOUTME: Handles config storage at XDG paths, environment variable overrides, and device ID generation
package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
)

// Config stores backend credentials and synchronization tuning. Zero tuning
// values fall back to the defaults below.
type Config struct {
	Server       string `json:"server"`
	UserID       string `json:"user_id"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	DeviceID     string `json:"device_id"`

	MaxPending        int           `json:"max_pending,omitempty"`
	Parallelism       int           `json:"parallelism,omitempty"`
	BackoffBase       time.Duration `json:"backoff_base,omitempty"`
	BackoffCap        time.Duration `json:"backoff_cap,omitempty"`
	DegradedThreshold int           `json:"degraded_threshold,omitempty"`
}

// Tuning defaults.
const (
	DefaultParallelism       = 4
	DefaultBackoffBase       = 2 * time.Second
	DefaultBackoffCap        = 5 * time.Minute
	DefaultDegradedThreshold = 3
)

// ConfigDir returns XDG-compliant directory for engine configuration.
func ConfigDir() string {
	return filepath.Join(xdg.DataHome, "relay")
}

// ConfigPath returns XDG-compliant path for storing engine configuration.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// LoadConfig loads engine configuration from XDG data directory. Returns a
// default config if the file does not exist. Environment variables override
// file values:
// - RELAY_SERVER
// - RELAY_TOKEN
// - RELAY_REFRESH_TOKEN
// - RELAY_USER_ID
// - RELAY_DEVICE_ID
// - RELAY_MAX_PENDING.
func LoadConfig() (*Config, error) {
	path := ConfigPath()

	cfg := &Config{}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to engine config.
func applyEnvOverrides(cfg *Config) {
	if server := os.Getenv("RELAY_SERVER"); server != "" {
		cfg.Server = server
	}
	if token := os.Getenv("RELAY_TOKEN"); token != "" {
		cfg.Token = token
	}
	if refresh := os.Getenv("RELAY_REFRESH_TOKEN"); refresh != "" {
		cfg.RefreshToken = refresh
	}
	if userID := os.Getenv("RELAY_USER_ID"); userID != "" {
		cfg.UserID = userID
	}
	if deviceID := os.Getenv("RELAY_DEVICE_ID"); deviceID != "" {
		cfg.DeviceID = deviceID
	}
	if maxPending := os.Getenv("RELAY_MAX_PENDING"); maxPending != "" {
		if n, err := strconv.Atoi(maxPending); err == nil && n > 0 {
			cfg.MaxPending = n
		}
	}
}

// SaveConfig saves engine configuration to XDG data directory.
func SaveConfig(cfg *Config) error {
	path := ConfigPath()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write config file with restricted permissions
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// IsConfigured checks if the engine has the credentials required to reach the
// backend.
func (c *Config) IsConfigured() bool {
	return c.Server != "" && c.Token != "" && c.UserID != "" && c.DeviceID != ""
}

// GenerateDeviceID generates a new device identifier.
func GenerateDeviceID() string {
	return uuid.New().String()
}

func (c *Config) parallelism() int {
	if c.Parallelism > 0 {
		return c.Parallelism
	}
	return DefaultParallelism
}

func (c *Config) backoffBase() time.Duration {
	if c.BackoffBase > 0 {
		return c.BackoffBase
	}
	return DefaultBackoffBase
}

func (c *Config) backoffCap() time.Duration {
	if c.BackoffCap > 0 {
		return c.BackoffCap
	}
	return DefaultBackoffCap
}

func (c *Config) degradedThreshold() int {
	if c.DegradedThreshold > 0 {
		return c.DegradedThreshold
	}
	return DefaultDegradedThreshold
}
