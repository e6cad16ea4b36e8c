package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig configures the dnicheck command line client
type ClientConfig struct {
	Server          string `mapstructure:"server"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
}

// Interval returns the progress polling period
func (c ClientConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// LoadClient reads client settings from an optional YAML file and
// DNICHECK_* environment variables. Flags are applied by the caller.
func LoadClient(configPath string) (*ClientConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("client")
		home, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(home, ".dnicheck"))
	}

	v.SetDefault("server", "http://localhost:5000")
	v.SetDefault("interval_seconds", 2)

	v.SetEnvPrefix("DNICHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if cfg.IntervalSeconds <= 0 {
		return nil, fmt.Errorf("interval_seconds must be positive, got %d", cfg.IntervalSeconds)
	}

	return &cfg, nil
}
