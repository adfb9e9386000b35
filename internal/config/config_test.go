package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/tracecode/internal/executor/sandbox"
)

const testSecret = "config-test-secret-0123456789"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracecode.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TRACECODE_AUTH_JWT_SECRET", testSecret)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "data/tracecode.db", cfg.Database.Path)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Auth.GitHub.Enabled())
	assert.Equal(t, sandbox.DefaultDeadline, cfg.Sandbox.Deadline)
	assert.Equal(t, sandbox.DefaultLimits(), cfg.Sandbox.Limits)
	assert.Equal(t, 8, cfg.Sandbox.MaxConcurrent)
	assert.Equal(t, 2.0, cfg.RateLimit.RPS)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.IdleTTL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
auth:
  jwt_secret: from-file-secret-0123456789
  token_ttl: 2h
  github:
    client_id: abc
    client_secret: def
sandbox:
  deadline: 3s
  isolation: none
  limits:
    memory_mb: 128
logging:
  format: json
`)
	t.Setenv("TRACECODE_SERVER_ADDR", ":9100")
	t.Setenv("TRACECODE_SANDBOX_MAX_CONCURRENT", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.Addr, "env beats file")
	assert.Equal(t, "from-file-secret-0123456789", cfg.Auth.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Auth.GitHub.Enabled())
	assert.Equal(t, 3*time.Second, cfg.Sandbox.Deadline)
	assert.Equal(t, sandbox.IsolationNone, cfg.Sandbox.Isolation)
	assert.EqualValues(t, 128, cfg.Sandbox.Limits.MemoryMB)
	assert.EqualValues(t, 64, cfg.Sandbox.Limits.MaxProcesses, "unset nested keys keep defaults")
	assert.Equal(t, 2, cfg.Sandbox.MaxConcurrent)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	t.Setenv("TRACECODE_AUTH_JWT_SECRET", testSecret)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{}, "jwt_secret"},
		{"half github", map[string]string{"TRACECODE_AUTH_GITHUB_CLIENT_ID": "x"}, "client_id and client_secret"},
		{"bad level", map[string]string{"TRACECODE_LOGGING_LEVEL": "loud"}, "logging.level"},
		{"bad format", map[string]string{"TRACECODE_LOGGING_FORMAT": "xml"}, "logging.format"},
		{"zero deadline", map[string]string{"TRACECODE_SANDBOX_DEADLINE": "0s"}, "deadline"},
		{"write timeout too short", map[string]string{"TRACECODE_SERVER_WRITE_TIMEOUT": "5s"}, "write_timeout"},
		{"negative rps", map[string]string{"TRACECODE_RATELIMIT_RPS": "-1"}, "ratelimit.rps"},
		{"zero idle ttl", map[string]string{"TRACECODE_RATELIMIT_IDLE_TTL": "0s"}, "idle_ttl"},
		{"short secret", map[string]string{"TRACECODE_AUTH_JWT_SECRET": "tooshort"}, "at least 16"},
		{"cpu limit under deadline", map[string]string{"TRACECODE_SANDBOX_DEADLINE": "20s"}, "cpu_seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			secret := testSecret
			if tt.name == "missing secret" {
				secret = ""
			}
			t.Setenv("TRACECODE_AUTH_JWT_SECRET", secret)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"":      slog.LevelInfo,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestLoadLocal_NoSecretNeeded(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TRACECODE_AUTH_JWT_SECRET", "")
	t.Setenv("TRACECODE_SANDBOX_DEADLINE", "2s")

	cfg, err := LoadLocal("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Sandbox.Deadline)

	t.Setenv("TRACECODE_SANDBOX_KILL_GRACE", "0s")
	_, err = LoadLocal("")
	assert.ErrorContains(t, err, "kill_grace")
}
