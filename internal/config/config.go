// Package config handles configuration loading, validation, and persistence
// for the Murmurlink voice client.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5280
	DefaultServerPort = 64738
)

// Config is the root configuration structure for Murmurlink.
type Config struct {
	mu   sync.RWMutex
	path string

	Server          ServerConfig    `json:"server"`
	ApplicationData ApplicationData `json:"application_data"`
}

// ServerConfig describes the Mumble server to connect to and our identity
// on it.
type ServerConfig struct {
	// Endpoint
	Address string `json:"address"`

	// Identity
	Username string `json:"username"`

	// Desired state applied after connect
	Channel        string   `json:"channel"`
	ListenChannels []string `json:"listen_channels"`

	// TLS. Mumble servers commonly run self-signed certificates; pin the
	// fingerprint instead of disabling verification where possible.
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`
	ServerFingerprint  string `json:"server_fingerprint"`
	CertFile           string `json:"cert_file"`
	KeyFile            string `json:"key_file"`
}

// ApplicationData contains client application configuration.
type ApplicationData struct {
	API      APIConfig      `json:"api"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
}

// APIConfig holds the local diagnostics REST server settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	ClientID  string `json:"client_id"`
}

// DatabaseConfig holds the local persistence settings.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: fmt.Sprintf("localhost:%d", DefaultServerPort),
			Channel: "Root",
		},
		ApplicationData: ApplicationData{
			API: APIConfig{
				Enabled: true,
				Port:    DefaultAPIPort,
			},
			MQTT: MQTTConfig{
				Enabled: false,
				Port:    8883,
				UseTLS:  true,
			},
			Database: DatabaseConfig{
				Path: "config/murmurlink.db",
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxSizeMB:  10,
				MaxBackups: 5,
			},
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServer returns a copy of the server configuration.
func (c *Config) GetServer() ServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server
}

// SetServer updates the server configuration.
func (c *Config) SetServer(server ServerConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Server = server
}

// GetApplicationData returns a copy of the application data configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
