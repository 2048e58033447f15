package server

import (
	"time"

	"github.com/xiaoyuanzhu-com/buildchat/config"
	"github.com/xiaoyuanzhu-com/buildchat/db"
	"github.com/xiaoyuanzhu-com/buildchat/vendors"
)

// Config holds mock build service configuration
type Config struct {
	// Server infrastructure (immutable, requires restart)
	Port int
	Host string
	Env  string // "development" or "production"

	DatabasePath string

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// Sandbox emulation
	BuildDelay      time.Duration
	StartingCredits int

	// External services
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Debug settings
	DBLogQueries bool
}

// FromAppConfig derives the server configuration from the application config
func FromAppConfig(c *config.Config) *Config {
	return &Config{
		Port:            c.Port,
		Host:            c.Host,
		Env:             c.Env,
		DatabasePath:    c.DatabasePath,
		JWTSecret:       c.JWTSecret,
		TokenTTL:        30 * 24 * time.Hour,
		BuildDelay:      c.BuildDelay,
		StartingCredits: c.StartingCredits,
		OpenAIAPIKey:    c.OpenAIAPIKey,
		OpenAIBaseURL:   c.OpenAIBaseURL,
		OpenAIModel:     c.OpenAIModel,
		DBLogQueries:    c.DBLogQueries,
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// ToDBConfig converts server config to database config
func (c *Config) ToDBConfig() db.Config {
	return db.Config{
		Path:            c.DatabasePath,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 0, // Never expire
		LogQueries:      c.DBLogQueries,
		StartingCredits: c.StartingCredits,
	}
}

// ToOpenAIConfig converts server config to assistant config
func (c *Config) ToOpenAIConfig() vendors.OpenAIConfig {
	return vendors.OpenAIConfig{
		APIKey:  c.OpenAIAPIKey,
		BaseURL: c.OpenAIBaseURL,
		Model:   c.OpenAIModel,
	}
}
