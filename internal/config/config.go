package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverHosted   = "hosted"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type Config struct {
	Server struct {
		Address            string `yaml:"address"`
		SessionIdleMinutes int    `yaml:"session_idle_minutes"`
		SecureCookies      bool   `yaml:"secure_cookies"`
	} `yaml:"server"`

	Store StoreConfig `yaml:"store"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Auth AuthConfig `yaml:"auth"`

	Events struct {
		AMQPURL  string `yaml:"amqp_url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"events"`

	Backup BackupConfig `yaml:"backup"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// StoreConfig selects the backend holding tables, seats and sessions.
type StoreConfig struct {
	Driver          string `yaml:"driver"`
	BaseURL         string `yaml:"base_url"`
	APIKey          string `yaml:"api_key"`
	DSN             string `yaml:"dsn"`
	Path            string `yaml:"path"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Admin        bool   `yaml:"admin"`
}

type AuthConfig struct {
	Users              []UserConfig `yaml:"users"`
	MaxSessions        int          `yaml:"max_sessions"`
	LoginEnabled       *bool        `yaml:"login_enabled"`
	SessionSecret      string       `yaml:"session_secret"`
	LoginRatePerMinute int          `yaml:"login_rate_per_minute"`
}

// LoginAllowed defaults to true when login_enabled is not set.
func (a AuthConfig) LoginAllowed() bool {
	return a.LoginEnabled == nil || *a.LoginEnabled
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`

	// Offsite copies go to this bucket when set.
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
	S3Prefix string `yaml:"s3_prefix"`
}

func (b BackupConfig) Interval() time.Duration {
	if b.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(b.IntervalHours) * time.Hour
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(expandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err = cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	switch c.Store.Driver {
	case DriverHosted:
		if c.Store.BaseURL == "" {
			return fmt.Errorf("store.base_url is required for the hosted driver")
		}
	case DriverSQLite:
		if c.Store.Path == "" {
			c.Store.Path = "data/seatmanager.db"
		}
		if err := os.MkdirAll(filepath.Dir(c.Store.Path), 0o755); err != nil {
			return err
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Auth.MaxSessions <= 0 {
		c.Auth.MaxSessions = 20
	}
	if c.Auth.LoginRatePerMinute <= 0 {
		c.Auth.LoginRatePerMinute = 10
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "seating.events"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return nil
}

func (c *Config) SessionIdleTimeout() time.Duration {
	if c.Server.SessionIdleMinutes <= 0 {
		return 12 * time.Hour
	}
	return time.Duration(c.Server.SessionIdleMinutes) * time.Minute
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Store.CacheTTLSeconds) * time.Second
}

// DataSource returns the driver name and DSN for the SQL backends.
func (c *Config) DataSource() (driver, dsn string) {
	if c.Store.Driver == DriverPostgres {
		return DriverPostgres, c.Store.DSN
	}
	return DriverSQLite, c.Store.Path
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnv replaces ${NAME} with the variable's value, empty when unset. A bare
// $NAME is only replaced when set, so bcrypt hashes ("$2a$10$...") survive.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if m[1] != "" {
			return os.Getenv(m[1])
		}
		if v, ok := os.LookupEnv(m[2]); ok {
			return v
		}
		return ref
	})
}
