package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Store    StoreConfig    `mapstructure:"store"`
	Verifier VerifierConfig `mapstructure:"verifier"`
	Workers  WorkersConfig  `mapstructure:"workers"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type StorageConfig struct {
	Path      string `mapstructure:"path"`
	Driver    string `mapstructure:"driver"` // local, gcs
	GCSBucket string `mapstructure:"gcs_bucket"`
}

type StoreConfig struct {
	Driver        string `mapstructure:"driver"` // memory, redis, postgres
	RedisAddress  string `mapstructure:"redis_address"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	TTLHours      int    `mapstructure:"ttl_hours"`
	DatabaseURL   string `mapstructure:"database_url"`
}

type VerifierConfig struct {
	URL            string `mapstructure:"url"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	DocumentType   string `mapstructure:"document_type"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type WorkersConfig struct {
	PoolSize int `mapstructure:"pool_size"`
}

// Timeout returns the per-call verifier timeout
func (c VerifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TTL returns how long external stores keep job snapshots
func (c StoreConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// Load reads configuration from an optional YAML file, a .env file and the
// environment. Environment variables take priority over the file.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		home, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(home, ".dnicheck"))
	}

	// Set defaults
	v.SetDefault("server.address", "0.0.0.0:5000")
	v.SetDefault("storage.path", "./data")
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.redis_address", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.ttl_hours", 24)
	v.SetDefault("store.database_url", "host=localhost user=postgres password=postgres dbname=dnicheck port=5432 sslmode=disable")
	v.SetDefault("verifier.url", "")
	v.SetDefault("verifier.user", "")
	v.SetDefault("verifier.password", "")
	v.SetDefault("verifier.document_type", "1")
	v.SetDefault("verifier.timeout_seconds", 30)
	v.SetDefault("workers.pool_size", 1000)

	// VERIFIER_URL, STORE_DRIVER, ...
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Conventional names used by deployments
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		v.Set("store.database_url", dsn)
	}
	if path := os.Getenv("STORAGE_PATH"); path != "" {
		v.Set("storage.path", path)
	}
	if port := os.Getenv("HTTP_PORT"); port != "" {
		v.Set("server.address", "0.0.0.0:"+port)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Storage.Driver {
	case "local":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Verifier.TimeoutSeconds <= 0 {
		return fmt.Errorf("verifier.timeout_seconds must be positive, got %d", c.Verifier.TimeoutSeconds)
	}
	if c.Workers.PoolSize <= 0 {
		return fmt.Errorf("workers.pool_size must be positive, got %d", c.Workers.PoolSize)
	}

	return nil
}
