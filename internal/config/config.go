package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"patientsync/internal/logging"
)

const envPrefix = "PATIENTSYNC_"

type Config struct {
	HTTP      *HTTPConfig      `yaml:"http"`
	WebSocket *WebSocketConfig `yaml:"websocket"`
	Alarm     *AlarmConfig     `yaml:"alarm"`
	Auth      *AuthConfig      `yaml:"auth"`
	Journal   *JournalConfig   `yaml:"journal"`
	Log       *LogConfig       `yaml:"log"`
}

type HTTPConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `yaml:"ping_interval"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BufferSize   int           `yaml:"buffer_size"`
	RateLimit    int           `yaml:"rate_limit"`
}

type AlarmConfig struct {
	Period time.Duration `yaml:"period"`
}

type AuthConfig struct {
	CookieName   string        `yaml:"cookie_name"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	Secret       string        `yaml:"secret"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

type JournalConfig struct {
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig runs on :8080 with a 10s alarm period, 30 minute sessions
// and an in-memory journal.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 5 * time.Second,
			BufferSize:   100,
			RateLimit:    100,
		},
		Alarm: &AlarmConfig{
			Period: 10 * time.Second,
		},
		Auth: &AuthConfig{
			CookieName: "PatientSyncAuthCookie",
			SessionTTL: 30 * time.Minute,
		},
		Journal: &JournalConfig{
			Path:    ":memory:",
			Timeout: 30 * time.Second,
		},
		Log: &LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func (c *Config) Validate() error {
	if c.HTTP == nil || c.WebSocket == nil || c.Alarm == nil || c.Auth == nil || c.Journal == nil || c.Log == nil {
		return errors.New("all configuration sections are required")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must be longer than the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.RateLimit <= 0 {
		return fmt.Errorf("WebSocket rate limit must be positive")
	}

	if c.Alarm.Period <= 0 {
		return fmt.Errorf("alarm period must be positive")
	}

	if c.Auth.CookieName == "" {
		return fmt.Errorf("auth cookie name cannot be empty")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth session ttl must be positive")
	}

	if c.Journal.Path == "" {
		return fmt.Errorf("journal path cannot be empty")
	}
	if c.Journal.Timeout <= 0 {
		return fmt.Errorf("journal timeout must be positive")
	}

	if !logging.IsValidLevel(c.Log.Level) {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if !logging.IsValidFormat(c.Log.Format) {
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	return nil
}

// Address is the host:port the HTTP server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// Load layers defaults, then PATIENTSYNC_* environment variables, then the
// YAML or JSON file at path when path is not empty. The result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyFile decodes over cfg so that keys missing from the file keep their
// current values.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	envString("HTTP_HOST", &cfg.HTTP.Host)
	collect(envInt("HTTP_PORT", &cfg.HTTP.Port))
	collect(envDuration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout))
	collect(envDuration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout))

	collect(envDuration("WEBSOCKET_PING_INTERVAL", &cfg.WebSocket.PingInterval))
	collect(envDuration("WEBSOCKET_READ_TIMEOUT", &cfg.WebSocket.ReadTimeout))
	collect(envDuration("WEBSOCKET_WRITE_TIMEOUT", &cfg.WebSocket.WriteTimeout))
	collect(envInt("WEBSOCKET_BUFFER_SIZE", &cfg.WebSocket.BufferSize))
	collect(envInt("WEBSOCKET_RATE_LIMIT", &cfg.WebSocket.RateLimit))

	collect(envDuration("ALARM_PERIOD", &cfg.Alarm.Period))

	envString("AUTH_COOKIE_NAME", &cfg.Auth.CookieName)
	collect(envDuration("AUTH_SESSION_TTL", &cfg.Auth.SessionTTL))
	envString("AUTH_SECRET", &cfg.Auth.Secret)
	collect(envBool("AUTH_SECURE_COOKIE", &cfg.Auth.SecureCookie))

	envString("JOURNAL_PATH", &cfg.Journal.Path)
	collect(envDuration("JOURNAL_TIMEOUT", &cfg.Journal.Timeout))

	envString("LOG_LEVEL", &cfg.Log.Level)
	envString("LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(errs...)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = d
	return nil
}

func envBool(key string, dst *bool) error {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = b
	return nil
}
