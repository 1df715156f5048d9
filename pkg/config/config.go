package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the server configuration
type Config struct {
	ServerHost string
	ServerPort string
	StaticDir  string

	StorageDriver string
	SQLitePath    string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string

	// StorageKey names the slot the buffer is persisted under.
	StorageKey     string
	MaxHistorySize int
	NoticeDuration time.Duration
	PersistTimeout time.Duration

	LogVerbosity int
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server_host", "")
	v.SetDefault("server_port", "8080")
	v.SetDefault("static_dir", "")

	v.SetDefault("storage_driver", DriverSQLite)
	v.SetDefault("sqlite_path", "data/poker-hand-history.db")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "postgres")
	v.SetDefault("db_name", "poker_editor")
	v.SetDefault("db_sslmode", "disable")

	v.SetDefault("storage_key", "pokerHandHistory")
	v.SetDefault("max_history_size", 50)
	v.SetDefault("notice_duration", 3*time.Second)
	v.SetDefault("persist_timeout", 2*time.Second)

	v.SetDefault("log_verbosity", 1)
}

// NewViper returns a viper instance with defaults set that reads every key
// from the environment (SERVER_PORT, STORAGE_DRIVER, ...).
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads .env (if present) into the environment, then builds a Config
// from v. Values already bound on v (flags) win over the environment.
func Load(v *viper.Viper) (*Config, error) {
	// A missing .env is fine; the environment still applies.
	_ = godotenv.Load()
	return LoadFrom(v)
}

// LoadFrom builds a Config out of an already populated viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ServerHost: v.GetString("server_host"),
		ServerPort: v.GetString("server_port"),
		StaticDir:  v.GetString("static_dir"),

		StorageDriver: strings.ToLower(v.GetString("storage_driver")),
		SQLitePath:    v.GetString("sqlite_path"),
		DBHost:        v.GetString("db_host"),
		DBPort:        v.GetString("db_port"),
		DBUser:        v.GetString("db_user"),
		DBPassword:    v.GetString("db_password"),
		DBName:        v.GetString("db_name"),
		DBSSLMode:     v.GetString("db_sslmode"),

		StorageKey:     v.GetString("storage_key"),
		MaxHistorySize: v.GetInt("max_history_size"),
		NoticeDuration: v.GetDuration("notice_duration"),
		PersistTimeout: v.GetDuration("persist_timeout"),

		LogVerbosity: v.GetInt("log_verbosity"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that have no sensible fallback.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory, DriverPostgres:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	if c.StorageKey == "" {
		return fmt.Errorf("storage_key is required")
	}
	if c.MaxHistorySize < 1 {
		return fmt.Errorf("max_history_size must be at least 1, got %d", c.MaxHistorySize)
	}
	if c.NoticeDuration <= 0 {
		return fmt.Errorf("notice_duration must be positive")
	}
	if c.PersistTimeout <= 0 {
		return fmt.Errorf("persist_timeout must be positive")
	}
	return nil
}

// GetServerAddr returns the address the HTTP server listens on
func (c *Config) GetServerAddr() string {
	return net.JoinHostPort(c.ServerHost, c.ServerPort)
}

// GetDatabaseConnectionString returns the PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}
