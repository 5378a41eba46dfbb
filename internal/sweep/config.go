package sweep

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AreaConfig is one named circular region to aggregate.
type AreaConfig struct {
	Name         string  `mapstructure:"name"`
	Lat          float64 `mapstructure:"lat"`
	Lng          float64 `mapstructure:"lng"`
	RadiusMeters float64 `mapstructure:"radius_meters"`
}

// Config drives one sweeper run.
type Config struct {
	Areas       []AreaConfig  `mapstructure:"areas"`
	Concurrency int           `mapstructure:"concurrency"`
	DelayMS     int           `mapstructure:"delay_ms"`
	StateFile   string        `mapstructure:"state_file"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	MaxPages    int           `mapstructure:"max_pages"`
	PageSize    int           `mapstructure:"page_size"`
}

func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.DelayMS < 0 {
		return fmt.Errorf("delay_ms cannot be negative")
	}
	if c.StateFile == "" {
		return fmt.Errorf("state_file is required")
	}
	seen := make(map[string]bool, len(c.Areas))
	for i, a := range c.Areas {
		if a.Name == "" {
			return fmt.Errorf("areas[%d]: name is required", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("areas[%d]: duplicate name %q", i, a.Name)
		}
		seen[a.Name] = true
		if a.RadiusMeters <= 0 {
			return fmt.Errorf("area %q: radius_meters must be positive", a.Name)
		}
		if a.Lat < -90 || a.Lat > 90 || a.Lng < -180 || a.Lng > 180 {
			return fmt.Errorf("area %q: coordinates out of range", a.Name)
		}
	}
	return nil
}

// LoadConfig reads a YAML sweep file. PW_SWEEP_* environment variables override file values.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("concurrency", 2)
	v.SetDefault("delay_ms", 500)
	v.SetDefault("state_file", "sweep_state.json")
	v.SetDefault("min_interval", 24*time.Hour)
	v.SetDefault("max_pages", 50)
	v.SetDefault("page_size", 100)

	v.SetEnvPrefix("PW_SWEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading sweep config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling sweep config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sweep config validation failed: %w", err)
	}
	return &cfg, nil
}
