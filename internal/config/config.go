package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

var (
	once sync.Once
	cfg  *Config
)

// GetConfig reads and validates config.yaml from the working directory on
// every call, stores the result in the package-level cfg and returns it
func GetConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault("engine.mode", "fixed")
	v.SetDefault("engine.step", 1e-3)
	v.SetDefault("engine.atol", 1e-6)
	v.SetDefault("engine.rtol", 1e-4)
	v.SetDefault("engine.sample_every", 1)
	v.SetDefault("output.encoding", "json")

	if err := v.ReadInConfig(); err != nil {
		cfg = nil
		return nil, fmt.Errorf("failed to read config file: %s", err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		cfg = nil
		return nil, fmt.Errorf("failed to unmarshal config: %s", err)
	}

	if err := cfg.Validate(); err != nil {
		cfg = nil
		return nil, fmt.Errorf("failed to validate config: %s", err)
	}

	if cfg == nil {
		return nil, errors.New("failed to load configuration")
	}

	return cfg, nil
}

// Reset resets the configuration singleton, useful for testing
func Reset() {
	cfg = nil
	once = sync.Once{}
}

// Validate checks the config to error on empty field
func (cfg *Config) Validate() error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if cfg.App.Version == "" {
		return fmt.Errorf("app.version is required")
	}

	if cfg.Logging.Level == "" {
		return fmt.Errorf("logging.level is required")
	}

	if cfg.Engine.Mode != "fixed" && cfg.Engine.Mode != "adaptive" {
		return fmt.Errorf("engine.mode must be fixed or adaptive, got %q", cfg.Engine.Mode)
	}

	if cfg.Engine.Step <= 0 || cfg.Engine.Step > 1e-2 {
		return fmt.Errorf("engine.step must be >0 and <=0.01, got %f", cfg.Engine.Step)
	}

	if cfg.Engine.SampleEvery <= 0 {
		return fmt.Errorf("engine.sample_every must be positive, got %d", cfg.Engine.SampleEvery)
	}

	if cfg.Output.Encoding != "json" && cfg.Output.Encoding != "binary" {
		return fmt.Errorf("output.encoding must be json or binary, got %q", cfg.Output.Encoding)
	}

	return nil
}
