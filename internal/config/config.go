// Package config loads server settings from defaults, an optional config
// file, environment variables and command-line flags, in increasing order of
// precedence.
//
// Every key can be set from the environment as SNIPPETVAULT_<SECTION>_<KEY>,
// e.g. SNIPPETVAULT_DATABASE_DRIVER=postgres. The short names PORT, DB_PATH
// and JWT_SECRET are accepted as well.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sakif/snippetvault/internal/diff"
)

const envPrefix = "SNIPPETVAULT"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Versions VersionsConfig `mapstructure:"versions"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"` // sqlite
	DSN    string `mapstructure:"dsn"`  // postgres
}

// AuthConfig: an empty JWTSecret disables authentication and every request
// is anonymous. RequireForWrites turns away anonymous writes with 401.
type AuthConfig struct {
	JWTSecret        string `mapstructure:"jwt_secret"`
	Issuer           string `mapstructure:"issuer"`
	RequireForWrites bool   `mapstructure:"require_for_writes"`
}

type VersionsConfig struct {
	DiffStrategy diff.Strategy `mapstructure:"diff_strategy"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"port":      "server.port",
	"db-driver": "database.driver",
	"db-path":   "database.path",
	"log-level": "log.level",
}

// Load reads the configuration. path may be empty; flags may be nil. Only
// flags the user actually set override the other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/snippets.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "snippetvault")
	v.SetDefault("auth.require_for_writes", false)
	v.SetDefault("versions.diff_strategy", string(diff.StrategyPositional))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The short names predate the prefix; the prefixed name wins if both are set.
	for key, short := range map[string]string{
		"server.port":     "PORT",
		"database.path":   "DB_PATH",
		"auth.jwt_secret": "JWT_SECRET",
	} {
		if err := v.BindEnv(key, envName(key), short); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: binding flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not one of sqlite, postgres", c.Database.Driver))
	}

	if c.Auth.RequireForWrites && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.require_for_writes needs auth.jwt_secret"))
	}

	if _, err := diff.ForStrategy(c.Versions.DiffStrategy); err != nil {
		errs = append(errs, fmt.Errorf("versions.diff_strategy: %w", err))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return level, nil
}
