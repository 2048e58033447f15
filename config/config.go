package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Env      string // "development" or "production"
	LogLevel string

	// Client settings
	APIURL      string // Base URL of the build service (http or https)
	SocketPath  string // Path prefix of the per-session websocket endpoint
	Token       string // Static auth token, takes precedence over TokenFile
	TokenFile   string
	OpenTimeout time.Duration

	// OAuth client credentials (optional alternative to a static token)
	OAuthTokenURL     string
	OAuthClientID     string
	OAuthClientSecret string

	// Mock build service settings
	Port         int
	Host         string
	DataDir      string
	DatabasePath string
	JWTSecret    string
	BuildDelay   time.Duration

	// Credits granted to a new account; each created chat costs one
	StartingCredits int

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Debug settings
	DBLogQueries bool
}

// fileConfig mirrors the subset of Config that may be set from a YAML file.
// Environment variables always win over file values.
type fileConfig struct {
	Env         string `yaml:"env"`
	LogLevel    string `yaml:"log_level"`
	APIURL      string `yaml:"api_url"`
	SocketPath  string `yaml:"socket_path"`
	TokenFile   string `yaml:"token_file"`
	OpenTimeout string `yaml:"open_timeout"`

	OAuth struct {
		TokenURL     string `yaml:"token_url"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
	} `yaml:"oauth"`

	Server struct {
		Port       int    `yaml:"port"`
		Host       string `yaml:"host"`
		DataDir    string `yaml:"data_dir"`
		JWTSecret  string `yaml:"jwt_secret"`
		BuildDelay string `yaml:"build_delay"`
		Credits    int    `yaml:"starting_credits"`
	} `yaml:"server"`

	OpenAI struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"openai"`
}

var (
	cfg  *Config
	once sync.Once
)

// Get returns the global configuration (singleton)
func Get() *Config {
	once.Do(func() {
		cfg = load()
	})
	return cfg
}

// load reads configuration from an optional YAML file and environment variables
func load() *Config {
	var fc fileConfig
	if path := os.Getenv("BUILDCHAT_CONFIG"); path != "" {
		// A broken config file falls back to env/defaults; the logger is not
		// available yet, so the error is reported on stderr.
		if err := readFile(path, &fc); err != nil {
			os.Stderr.WriteString("buildchat: ignoring config file " + path + ": " + err.Error() + "\n")
		}
	}
	return fromSources(fc)
}

func readFile(path string, fc *fileConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, fc)
}

func fromSources(fc fileConfig) *Config {
	home, _ := os.UserHomeDir()
	dataDir := getEnv("BUILDCHAT_DATA_DIR", or(fc.Server.DataDir, "./data"))

	return &Config{
		Env:      getEnv("BUILDCHAT_ENV", or(fc.Env, "development")),
		LogLevel: getEnv("LOG_LEVEL", or(fc.LogLevel, "info")),

		// Client
		APIURL:      getEnv("BUILDCHAT_API_URL", or(fc.APIURL, "http://localhost:8000")),
		SocketPath:  getEnv("BUILDCHAT_SOCKET_PATH", or(fc.SocketPath, "/session")),
		Token:       getEnv("BUILDCHAT_TOKEN", ""),
		TokenFile:   getEnv("BUILDCHAT_TOKEN_FILE", or(fc.TokenFile, filepath.Join(home, ".buildchat", "token"))),
		OpenTimeout: getEnvDuration("BUILDCHAT_OPEN_TIMEOUT", parseDuration(fc.OpenTimeout, 5*time.Second)),

		// OAuth
		OAuthTokenURL:     getEnv("BUILDCHAT_OAUTH_TOKEN_URL", fc.OAuth.TokenURL),
		OAuthClientID:     getEnv("BUILDCHAT_OAUTH_CLIENT_ID", fc.OAuth.ClientID),
		OAuthClientSecret: getEnv("BUILDCHAT_OAUTH_CLIENT_SECRET", fc.OAuth.ClientSecret),

		// Mock service
		Port:         getEnvInt("PORT", orInt(fc.Server.Port, 8000)),
		Host:         getEnv("HOST", or(fc.Server.Host, "0.0.0.0")),
		DataDir:      dataDir,
		DatabasePath: filepath.Join(dataDir, "buildchat.sqlite"),
		JWTSecret:    getEnv("BUILDCHAT_JWT_SECRET", or(fc.Server.JWTSecret, "dev-secret")),
		BuildDelay:   getEnvDuration("BUILDCHAT_BUILD_DELAY", parseDuration(fc.Server.BuildDelay, time.Second)),

		StartingCredits: getEnvInt("BUILDCHAT_STARTING_CREDITS", orInt(fc.Server.Credits, 20)),

		// OpenAI
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", or(fc.OpenAI.BaseURL, "https://api.openai.com/v1")),
		OpenAIModel:   getEnv("OPENAI_MODEL", or(fc.OpenAI.Model, "gpt-4o-mini")),

		// Debug
		DBLogQueries: getEnv("DB_LOG_QUERIES", "") == "1",
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// HasOAuth reports whether client credentials are configured
func (c *Config) HasOAuth() bool {
	return c.OAuthTokenURL != "" && c.OAuthClientID != ""
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	return parseDuration(os.Getenv(key), defaultValue)
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}

func or(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func orInt(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}
