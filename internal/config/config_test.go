package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippetvault/internal/diff"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Empty(t, cfg.Server.CORSOrigins)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "data/snippets.db", cfg.Database.Path)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, "snippetvault", cfg.Auth.Issuer)
	assert.False(t, cfg.Auth.RequireForWrites)
	assert.Equal(t, diff.StrategyPositional, cfg.Versions.DiffStrategy)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SNIPPETVAULT_SERVER_PORT", "9090")
	t.Setenv("SNIPPETVAULT_SERVER_CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("SNIPPETVAULT_DATABASE_DRIVER", "postgres")
	t.Setenv("SNIPPETVAULT_DATABASE_DSN", "postgres://localhost/db")
	t.Setenv("SNIPPETVAULT_VERSIONS_DIFF_STRATEGY", "aligned")
	t.Setenv("SNIPPETVAULT_LOG_FORMAT", "json")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/db", cfg.Database.DSN)
	assert.Equal(t, diff.StrategyAligned, cfg.Versions.DiffStrategy)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_ShortEnvironmentNames(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("DB_PATH", "/tmp/x.db")
	t.Setenv("JWT_SECRET", "0123456789abcdef")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
	assert.Equal(t, "0123456789abcdef", cfg.Auth.JWTSecret)

	t.Setenv("SNIPPETVAULT_SERVER_PORT", "7001")
	cfg, err = Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port, "prefixed name wins")
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8181
  shutdown_timeout: 5s
database:
  path: /var/lib/snippets.db
log:
  level: debug
`), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/var/lib/snippets.db", cfg.Database.Path)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("SNIPPETVAULT_SERVER_PORT", "9090")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 8080, "")
	flags.String("db-path", "", "")
	require.NoError(t, flags.Parse([]string{"--port", "9999"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "data/snippets.db", cfg.Database.Path, "unset flag must not override the default")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
			Database: DatabaseConfig{Driver: DriverSQLite, Path: "x.db"},
			Log:      LogConfig{Level: "info", Format: "text"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }, errMsg: "server.port"},
		{name: "shutdown timeout", mutate: func(c *Config) { c.Server.ShutdownTimeout = 0 }, errMsg: "shutdown_timeout"},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, errMsg: "database.driver"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Database.Driver = DriverPostgres }, errMsg: "database.dsn"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.Path = "" }, errMsg: "database.path"},
		{name: "writes need a secret", mutate: func(c *Config) { c.Auth.RequireForWrites = true }, errMsg: "require_for_writes"},
		{name: "diff strategy", mutate: func(c *Config) { c.Versions.DiffStrategy = "myers" }, errMsg: "diff_strategy"},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "loud" }, errMsg: "log.level"},
		{name: "log format", mutate: func(c *Config) { c.Log.Format = "xml" }, errMsg: "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
