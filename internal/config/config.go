package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	ErrMissingEnvironmentVariables = errors.New("missing required environment variables")
	ErrUnknownStoreDriver          = errors.New("unknown store driver")
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds application configuration loaded from files and environment variables.
type Config struct {
	Env              string      `mapstructure:"env"`          // current application environment (local, dev, production etc)
	TelegramAPIToken string      `mapstructure:"-"`            // Telegram API token loaded from environment
	CatalogPath      string      `mapstructure:"catalog_path"` // path to the competence catalog JSON
	Store            Store       `mapstructure:"store"`
	DB               DB          `mapstructure:"database"` // postgres settings
	Mongo            Mongo       `mapstructure:"mongo"`
	Coalescer        Coalescer   `mapstructure:"coalescer"`
	Catalog          Catalog     `mapstructure:"catalog"`
	Maintenance      Maintenance `mapstructure:"maintenance"`
	Events           Events      `mapstructure:"events"`
}

type Store struct {
	Driver string `mapstructure:"driver"` // memory, postgres or mongo
}

// DB contains database-related configuration parameters.
type DB struct {
	URL             string        `mapstructure:"-"`                 // database connection string loaded from environment
	MaxConnections  int           `mapstructure:"max_connections"`   // maximum number of open connections in the pool
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"` // maximum lifetime of a single connection
}

// DSN returns the database connection string if it is configured.
func (db DB) DSN() (string, error) {
	if db.URL == "" {
		return "", ErrMissingEnvironmentVariables
	}
	return db.URL, nil
}

type Mongo struct {
	URI          string        `mapstructure:"-"`             // loaded from MONGO_URI
	Database     string        `mapstructure:"database"`      // database holding the collections
	PollInterval time.Duration `mapstructure:"poll_interval"` // used when change streams are unavailable
}

type Coalescer struct {
	GracePeriod time.Duration `mapstructure:"grace_period"` // how long a settled lookup is shared
	CallTimeout time.Duration `mapstructure:"call_timeout"` // upper bound for one lookup
}

type Catalog struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type Maintenance struct {
	Schedule string `mapstructure:"schedule"` // cron spec of the duplicate sweep
}

type Events struct {
	URL      string `mapstructure:"-"` // loaded from RABBITMQ_URL; events are dropped when empty
	Exchange string `mapstructure:"exchange"`
}

// Options tune what Load insists on.
type Options struct {
	RequireTelegram bool
}

// Load reads configuration from config files and environment variables.
func Load(opts Options) (*Config, error) {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	// Initialize Viper instance and base config options.
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")

	// Set default values for configuration keys.
	v.SetDefault("env", "local")
	v.SetDefault("catalog_path", "assets/data/competences.json")
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("database.max_connections", 20)
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("mongo.database", "competences")
	v.SetDefault("mongo.poll_interval", "5s")
	v.SetDefault("coalescer.grace_period", "3s")
	v.SetDefault("coalescer.call_timeout", "10s")
	v.SetDefault("catalog.cache_ttl", "10m")
	v.SetDefault("maintenance.schedule", "0 3 * * *")
	v.SetDefault("events.exchange", "competence.events")

	// Configure environment variable handling and key mapping.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // map nested keys to ENV style names
	v.AutomaticEnv()

	// Bind explicit environment variables to configuration keys.
	_ = v.BindEnv("telegram_api_token", "TELEGRAM_API_TOKEN")
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("mongo_uri", "MONGO_URI")
	_ = v.BindEnv("rabbitmq_url", "RABBITMQ_URL")
	_ = v.BindEnv("env", "APP_ENV")

	// Try to read configuration file if present.
	if err := v.ReadInConfig(); err != nil {
		var fileLookupErr viper.ConfigFileNotFoundError
		if !errors.As(err, &fileLookupErr) {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	// Unmarshal configuration into strongly typed struct.
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	// Load sensitive values from environment variables.
	cfg.TelegramAPIToken = v.GetString("telegram_api_token")
	cfg.DB.URL = v.GetString("database_url")
	cfg.Mongo.URI = v.GetString("mongo_uri")
	cfg.Events.URL = v.GetString("rabbitmq_url")

	if err := cfg.validate(opts); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate(opts Options) error {
	if opts.RequireTelegram && c.TelegramAPIToken == "" {
		return fmt.Errorf("%w: TELEGRAM_API_TOKEN", ErrMissingEnvironmentVariables)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.DB.URL == "" {
			return fmt.Errorf("%w: DATABASE_URL", ErrMissingEnvironmentVariables)
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("%w: MONGO_URI", ErrMissingEnvironmentVariables)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStoreDriver, c.Store.Driver)
	}

	return nil
}
