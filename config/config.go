// Package config provides configuration management for the benchmark.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding configuration.
const EnvPrefix = "ACB"

// Config holds all configuration for a benchmark run.
type Config struct {
	ParticleCount     int     `mapstructure:"particle_count"`
	Stacks            int     `mapstructure:"stacks"`
	Slices            int     `mapstructure:"slices"`
	Scale             float64 `mapstructure:"scale"`
	TotalTimeSeconds  float64 `mapstructure:"total_time_seconds"`
	Lighting          bool    `mapstructure:"lighting"`
	Mode              Mode    `mapstructure:"-"`
	Vendor            Vendor  `mapstructure:"-"`
	MaxFrames         int     `mapstructure:"max_frames"`
	OutputDir         string  `mapstructure:"output_dir"`
	ShaderDir         string  `mapstructure:"shader_dir"`
	MeshPath          string  `mapstructure:"mesh_path"`
	DedicatedTransfer bool    `mapstructure:"dedicated_transfer"`
	MetricsAddr       string  `mapstructure:"metrics_addr"`
	Debug             bool    `mapstructure:"debug"`
	Width             int     `mapstructure:"width"`
	Height            int     `mapstructure:"height"`

	Log LogConfig `mapstructure:"log"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(fmt.Sprintf("decoding default configuration: %s", err))
	}
	return cfg
}

// Load reads configuration from defaults, the optional file at configPath,
// ACB_ environment variables and finally flags, each overriding the previous.
// Flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file %s not found", configPath)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFromReader loads configuration from content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := newViper()
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("particle_count", 2000)
	v.SetDefault("stacks", 20)
	v.SetDefault("slices", 20)
	v.SetDefault("scale", 0.02)
	v.SetDefault("total_time_seconds", 120.0)
	v.SetDefault("lighting", false)
	v.SetDefault("mode", ModeCompute.String())
	v.SetDefault("vendor", VendorNVIDIA.String())
	v.SetDefault("max_frames", 0)
	v.SetDefault("output_dir", ".")
	v.SetDefault("shader_dir", "")
	v.SetDefault("mesh_path", "")
	v.SetDefault("dedicated_transfer", false)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("debug", false)
	v.SetDefault("width", 800)
	v.SetDefault("height", 600)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var err error
	if cfg.Mode, err = ParseMode(v.GetString("mode")); err != nil {
		return nil, err
	}
	if cfg.Vendor, err = ParseVendor(v.GetString("vendor")); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the benchmark cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.ParticleCount <= 0 {
		errs = append(errs, fmt.Errorf("particle count must be positive, got %d", c.ParticleCount))
	}
	if c.Stacks < 3 {
		errs = append(errs, fmt.Errorf("stack count must be at least 3, got %d", c.Stacks))
	}
	if c.Slices < 3 {
		errs = append(errs, fmt.Errorf("slice count must be at least 3, got %d", c.Slices))
	}
	if c.Scale <= 0 {
		errs = append(errs, fmt.Errorf("mesh scale must be positive, got %g", c.Scale))
	}
	if c.TotalTimeSeconds <= 0 {
		errs = append(errs, fmt.Errorf("total time must be positive, got %g", c.TotalTimeSeconds))
	}
	if c.MaxFrames < 0 {
		errs = append(errs, fmt.Errorf("max frames cannot be negative, got %d", c.MaxFrames))
	}
	if !c.Mode.valid() {
		errs = append(errs, fmt.Errorf("unknown mode %s", c.Mode))
	}
	if !c.Vendor.valid() {
		errs = append(errs, fmt.Errorf("unknown vendor %s", c.Vendor))
	}
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size must be positive, got %dx%d", c.Width, c.Height))
	}

	return errors.Join(errs...)
}
