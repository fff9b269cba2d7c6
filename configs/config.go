package configs

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// FileConfig defines the structure loaded from the YAML configuration file.
type FileConfig struct {
	BaseServerURL     string            `yaml:"base_server_url"`
	OpenAPIPath       string            `yaml:"openapi_path"`
	OpenAPIHeaders    map[string]string `yaml:"openapi_headers,omitempty"`
	IncludeOperations []string          `yaml:"include_operations,omitempty"`
	ExcludeOperations []string          `yaml:"exclude_operations,omitempty"`
}

// Config holds the final application configuration, merged from file and environment variables.
// Environment variables carry no prefix and override file settings.
type Config struct {
	ConfigFilePath string `envconfig:"CONFIG_FILE"`

	// File-settable fields. No defaults, so a second env pass only overrides what is set.
	BaseServerURL     string            `envconfig:"BASE_SERVER_URL"`
	OpenAPIPath       string            `envconfig:"OPENAPI_PATH"`
	OpenAPIHeaders    map[string]string `envconfig:"OPENAPI_HEADERS"`
	IncludeOperations []string          `envconfig:"INCLUDE_OPERATIONS"`
	ExcludeOperations []string          `envconfig:"EXCLUDE_OPERATIONS"`

	Port               int           `envconfig:"PORT" default:"8000"`
	ListenAddr         string        `envconfig:"LISTEN_ADDR"`
	MCPHTTPPath        string        `envconfig:"MCP_HTTP_PATH" default:"/mcp"`
	HTTPClientTimeout  time.Duration `envconfig:"HTTP_CLIENT_TIMEOUT" default:"30s"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
	ServerReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	ServerWriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ServerIdleTimeout  time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"120s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	ForwardBearerToken  bool `envconfig:"FORWARD_BEARER_TOKEN" default:"false"`
	ValidateArguments   bool `envconfig:"VALIDATE_ARGUMENTS" default:"false"`
	DecodeJSONResponses bool `envconfig:"DECODE_JSON_RESPONSES" default:"false"`

	ServerName    string `envconfig:"SERVER_NAME" default:"openapi-mcp"`
	ServerVersion string `envconfig:"SERVER_VERSION" default:"0.1.0"`

	OtelExporterOtlpEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelExporterOtlpInsecure bool   `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
}

// ParsedLogLevel returns the slog.Level based on the configured LogLevel string.
func (c *Config) ParsedLogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info":
		fallthrough
	default:
		return slog.LevelInfo
	}
}

// Addr returns the listen address: LISTEN_ADDR when set, otherwise ":PORT".
func (c *Config) Addr() string {
	if c.ListenAddr != "" {
		return c.ListenAddr
	}
	return fmt.Sprintf(":%d", c.Port)
}

// Validate reports the first missing or invalid setting.
func (c *Config) Validate() error {
	if c.BaseServerURL == "" {
		return errors.New("BASE_SERVER_URL is required")
	}
	base, err := url.Parse(c.BaseServerURL)
	if err != nil {
		return fmt.Errorf("BASE_SERVER_URL is invalid: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return fmt.Errorf("BASE_SERVER_URL must be an absolute http(s) URL, got %q", c.BaseServerURL)
	}
	if c.OpenAPIPath == "" {
		return errors.New("OPENAPI_PATH is required")
	}
	if c.ListenAddr == "" && (c.Port <= 0 || c.Port > 65535) {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if !strings.HasPrefix(c.MCPHTTPPath, "/") {
		return fmt.Errorf("MCP_HTTP_PATH must start with '/', got %q", c.MCPHTTPPath)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Load loads configuration first from environment variables (to get the file path),
// then from the YAML file, and finally overrides with environment variables again.
// A non-empty configFile takes precedence over CONFIG_FILE.
func Load(configFile string) (*Config, error) {
	// 1. Initial env pass, mostly for CONFIG_FILE.
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process initial environment variables: %w", err)
	}
	if configFile != "" {
		cfg.ConfigFilePath = configFile
	}

	// 2. YAML file.
	if cfg.ConfigFilePath != "" {
		raw, err := os.ReadFile(cfg.ConfigFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", cfg.ConfigFilePath, err)
		}
		var fileCfg FileConfig
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file '%s': %w", cfg.ConfigFilePath, err)
		}
		cfg.apply(fileCfg)
		slog.Debug("Loaded configuration from file.", "path", cfg.ConfigFilePath)
	}

	// 3. Env again so it wins over the file.
	path := cfg.ConfigFilePath
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process overriding environment variables: %w", err)
	}
	cfg.ConfigFilePath = path

	return &cfg, nil
}

func (c *Config) apply(f FileConfig) {
	if f.BaseServerURL != "" {
		c.BaseServerURL = f.BaseServerURL
	}
	if f.OpenAPIPath != "" {
		c.OpenAPIPath = f.OpenAPIPath
	}
	if len(f.OpenAPIHeaders) > 0 {
		c.OpenAPIHeaders = f.OpenAPIHeaders
	}
	if len(f.IncludeOperations) > 0 {
		c.IncludeOperations = f.IncludeOperations
	}
	if len(f.ExcludeOperations) > 0 {
		c.ExcludeOperations = f.ExcludeOperations
	}
}
