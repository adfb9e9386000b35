// Package config loads the service configuration from an optional
// tracecode.yaml, TRACECODE_* environment variables and built-in defaults,
// in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sakif/tracecode/internal/executor/sandbox"
)

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// Origins allowed to call the API with credentials. Empty disables CORS.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type GitHubConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	CallbackURL  string `mapstructure:"callback_url"`
}

// Enabled reports whether GitHub login should be offered.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
	RedirectURL  string        `mapstructure:"redirect_url"` // where the OAuth callback lands
	GitHub       GitHubConfig  `mapstructure:"github"`
}

type RateLimitConfig struct {
	RPS     float64       `mapstructure:"rps"` // per client IP; 0 disables
	Burst   int           `mapstructure:"burst"`
	IdleTTL time.Duration `mapstructure:"idle_ttl"` // unseen IPs are forgotten after this
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Sandbox   sandbox.Config  `mapstructure:"sandbox"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Matches the floor auth.NewTokenService enforces.
const minSecretLength = 16

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	// must outlast the sandbox deadline plus the kill grace
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("database.path", "data/tracecode.db")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.cookie_secure", false)
	v.SetDefault("auth.redirect_url", "/")
	v.SetDefault("auth.github.client_id", "")
	v.SetDefault("auth.github.client_secret", "")
	v.SetDefault("auth.github.callback_url", "http://localhost:8080/api/auth/github/callback")

	sb := sandbox.DefaultConfig()
	v.SetDefault("sandbox.deadline", sb.Deadline)
	v.SetDefault("sandbox.kill_grace", sb.KillGrace)
	v.SetDefault("sandbox.max_output_bytes", sb.MaxOutputBytes)
	v.SetDefault("sandbox.max_concurrent", 8)
	v.SetDefault("sandbox.isolation", sb.Isolation)
	v.SetDefault("sandbox.work_root", "")
	v.SetDefault("sandbox.python_path", "")
	v.SetDefault("sandbox.cgroup_root", "")
	v.SetDefault("sandbox.limits.cpu_seconds", sb.Limits.CPUSeconds)
	v.SetDefault("sandbox.limits.memory_mb", sb.Limits.MemoryMB)
	v.SetDefault("sandbox.limits.max_processes", sb.Limits.MaxProcesses)
	v.SetDefault("sandbox.limits.file_size_mb", sb.Limits.FileSizeMB)
	v.SetDefault("sandbox.limits.open_files", sb.Limits.OpenFiles)

	v.SetDefault("ratelimit.rps", 2.0)
	v.SetDefault("ratelimit.burst", 5)
	v.SetDefault("ratelimit.idle_ttl", 10*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Load reads configuration. With an empty path it looks for tracecode.yaml
// in the working directory and /etc/tracecode, and a missing file is not an
// error. An explicit path must exist.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tracecode")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tracecode")
	}

	// TRACECODE_AUTH_JWT_SECRET overrides auth.jwt_secret, and so on.
	v.SetEnvPrefix("TRACECODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// LoadLocal is Load for commands that only run the sandbox in-process. It
// checks the sandbox and logging sections and ignores the rest, so no JWT
// secret is needed.
func LoadLocal(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateLogging(); err != nil {
		return nil, err
	}
	if err := cfg.Sandbox.Validate(); err != nil {
		return nil, fmt.Errorf("config: sandbox: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints viper cannot express.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("config: server.addr is required")
	}
	if c.Database.Path == "" {
		return errors.New("config: database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret is required (set TRACECODE_AUTH_JWT_SECRET)")
	}
	if len(c.Auth.JWTSecret) < minSecretLength {
		return fmt.Errorf("config: auth.jwt_secret must be at least %d characters", minSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config: auth.token_ttl must be positive, got %s", c.Auth.TokenTTL)
	}
	if (c.Auth.GitHub.ClientID == "") != (c.Auth.GitHub.ClientSecret == "") {
		return errors.New("config: auth.github needs both client_id and client_secret")
	}
	if c.RateLimit.RPS < 0 {
		return errors.New("config: ratelimit.rps must not be negative")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.IdleTTL <= 0 {
		return errors.New("config: ratelimit.idle_ttl must be positive")
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.Sandbox.Validate(); err != nil {
		return fmt.Errorf("config: sandbox: %w", err)
	}
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.Sandbox.Deadline+c.Sandbox.KillGrace {
		return fmt.Errorf("config: server.write_timeout (%s) must exceed sandbox.deadline + sandbox.kill_grace (%s)",
			c.Server.WriteTimeout, c.Sandbox.Deadline+c.Sandbox.KillGrace)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
		return nil
	}
	return fmt.Errorf("config: logging.format must be text or json, got %q", c.Logging.Format)
}

// ParseLevel maps a logging.level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: unknown logging.level %q", s)
}
