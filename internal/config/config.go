package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings for the server.
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Auth      *AuthConfig      `json:"auth"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// AuthConfig carries the HMAC signing key shared with the identity
// provider. Tokens are HS256; the key must never be empty in production.
type AuthConfig struct {
	SigningKey string        `json:"signing_key"`
	TokenTTL   time.Duration `json:"token_ttl"`
}

// DefaultConfig returns production-ready defaults. Database on local
// filesystem, HTTP on standard port, WebSocket with 30s heartbeat.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./collabboard.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Auth: &AuthConfig{
			SigningKey: "dev-only-signing-key",
			TokenTTL:   time.Hour,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}

	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}

	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}

	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}

	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}

	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}

	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}

	if c.Auth.SigningKey == "" {
		return fmt.Errorf("auth signing key cannot be empty")
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token TTL must be positive")
	}

	return nil
}

// LoadFromEnv builds configuration from COLLABBOARD_* environment
// variables, falling back to defaults for anything unset.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("COLLABBOARD_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}

	if host := os.Getenv("COLLABBOARD_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}

	if dbPath := os.Getenv("COLLABBOARD_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}

	if readTimeout := os.Getenv("COLLABBOARD_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
	}

	if writeTimeout := os.Getenv("COLLABBOARD_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}

	if dbTimeout := os.Getenv("COLLABBOARD_DATABASE_TIMEOUT"); dbTimeout != "" {
		if timeout, err := time.ParseDuration(dbTimeout); err == nil {
			config.Database.Timeout = timeout
		}
	}

	if pingInterval := os.Getenv("COLLABBOARD_WEBSOCKET_PING_INTERVAL"); pingInterval != "" {
		if interval, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = interval
		}
	}

	if wsReadTimeout := os.Getenv("COLLABBOARD_WEBSOCKET_READ_TIMEOUT"); wsReadTimeout != "" {
		if timeout, err := time.ParseDuration(wsReadTimeout); err == nil {
			config.WebSocket.ReadTimeout = timeout
		}
	}

	if wsWriteTimeout := os.Getenv("COLLABBOARD_WEBSOCKET_WRITE_TIMEOUT"); wsWriteTimeout != "" {
		if timeout, err := time.ParseDuration(wsWriteTimeout); err == nil {
			config.WebSocket.WriteTimeout = timeout
		}
	}

	if bufferSize := os.Getenv("COLLABBOARD_WEBSOCKET_BUFFER_SIZE"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.BufferSize = size
		}
	}

	if signingKey := os.Getenv("COLLABBOARD_AUTH_SIGNING_KEY"); signingKey != "" {
		config.Auth.SigningKey = signingKey
	}

	if tokenTTL := os.Getenv("COLLABBOARD_AUTH_TOKEN_TTL"); tokenTTL != "" {
		if ttl, err := time.ParseDuration(tokenTTL); err == nil {
			config.Auth.TokenTTL = ttl
		}
	}

	return config
}

// ConfigFile mirrors Config for JSON parsing, with durations as strings.
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Auth      *AuthConfigFile      `json:"auth"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type AuthConfigFile struct {
	SigningKey string `json:"signing_key"`
	TokenTTL   string `json:"token_ttl"`
}

// LoadFromFile reads JSON configuration, parsing duration strings and
// validating the result.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.Database != nil {
		if configFile.Database.Path != "" {
			config.Database.Path = configFile.Database.Path
		}
		if configFile.Database.Timeout != "" {
			if timeout, err := time.ParseDuration(configFile.Database.Timeout); err == nil {
				config.Database.Timeout = timeout
			}
		}
	}

	if configFile.HTTP != nil {
		if configFile.HTTP.Port > 0 {
			config.HTTP.Port = configFile.HTTP.Port
		}
		if configFile.HTTP.Host != "" {
			config.HTTP.Host = configFile.HTTP.Host
		}
		if configFile.HTTP.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.HTTP.ReadTimeout); err == nil {
				config.HTTP.ReadTimeout = timeout
			}
		}
		if configFile.HTTP.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.HTTP.WriteTimeout); err == nil {
				config.HTTP.WriteTimeout = timeout
			}
		}
	}

	if configFile.WebSocket != nil {
		if configFile.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = configFile.WebSocket.BufferSize
		}
		if configFile.WebSocket.PingInterval != "" {
			if interval, err := time.ParseDuration(configFile.WebSocket.PingInterval); err == nil {
				config.WebSocket.PingInterval = interval
			}
		}
		if configFile.WebSocket.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.WebSocket.ReadTimeout); err == nil {
				config.WebSocket.ReadTimeout = timeout
			}
		}
		if configFile.WebSocket.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.WebSocket.WriteTimeout); err == nil {
				config.WebSocket.WriteTimeout = timeout
			}
		}
	}

	if configFile.Auth != nil {
		if configFile.Auth.SigningKey != "" {
			config.Auth.SigningKey = configFile.Auth.SigningKey
		}
		if configFile.Auth.TokenTTL != "" {
			if ttl, err := time.ParseDuration(configFile.Auth.TokenTTL); err == nil {
				config.Auth.TokenTTL = ttl
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment >
// defaults. File errors are ignored so environment and defaults still work.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}
