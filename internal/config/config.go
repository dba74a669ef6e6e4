package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/picklists/internal/packer"
	"github.com/eugenenazirov/picklists/internal/report"
)

const (
	defaultPort           = "8080"
	defaultOutputDir      = "picklists"
	defaultSummaryPath    = "Summary.csv"
	defaultWorkers        = 1
	defaultLogLevel       = "info"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string
	Capacity             packer.Capacity
	Workers              int
	RejectUnpackable     bool
	InputPath            string
	OutputDir            string
	SummaryPath          string
	MaxRows              int
	ReportFormat         report.Format
	LogLevel             string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
}

// yamlConfig represents the YAML configuration file structure.
// Pointer fields distinguish an absent key from an explicit zero.
type yamlConfig struct {
	Port                 string        `yaml:"port"`
	Capacity             yamlCapacity  `yaml:"capacity"`
	Workers              *int          `yaml:"workers"`
	RejectUnpackable     *bool         `yaml:"reject_unpackable"`
	Input                string        `yaml:"input"`
	OutputDir            string        `yaml:"output_dir"`
	SummaryPath          string        `yaml:"summary_path"`
	MaxRows              *int          `yaml:"max_rows"`
	ReportFormat         string        `yaml:"report_format"`
	LogLevel             string        `yaml:"log_level"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
}

// yamlCapacity represents the capacity section in YAML.
type yamlCapacity struct {
	UnitCap            *int     `yaml:"unit_cap"`
	NormalWeightCapKg  *float64 `yaml:"normal_weight_cap_kg"`
	FragileWeightCapKg *float64 `yaml:"fragile_weight_cap_kg"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// CLIOverrides holds command-line flag overrides. Nil fields are not set on the command line.
type CLIOverrides struct {
	ConfigFile         string
	Port               *string
	UnitCap            *int
	NormalWeightCapKg  *float64
	FragileWeightCapKg *float64
	Workers            *int
	RejectUnpackable   *bool
	InputPath          *string
	OutputDir          *string
	SummaryPath        *string
	MaxRows            *int
	ReportFormat       *string
	LogLevel           *string
	RateLimitRPS       *float64
	RateLimitBurst     *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// Apply environment variables
	applyEnvConfig(&cfg)

	// Load from YAML file if specified (overrides env)
	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		if err := applyCLIOverrides(&cfg, overrides); err != nil {
			return Config{}, err
		}
	}

	// Validate final configuration
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		Capacity:             packer.DefaultCapacity(),
		Workers:              defaultWorkers,
		OutputDir:            defaultOutputDir,
		SummaryPath:          defaultSummaryPath,
		ReportFormat:         report.FormatText,
		LogLevel:             defaultLogLevel,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}

	if yamlCfg.Capacity.UnitCap != nil {
		cfg.Capacity.UnitCap = *yamlCfg.Capacity.UnitCap
	}
	if yamlCfg.Capacity.NormalWeightCapKg != nil {
		cfg.Capacity.NormalWeightCapKg = *yamlCfg.Capacity.NormalWeightCapKg
	}
	if yamlCfg.Capacity.FragileWeightCapKg != nil {
		cfg.Capacity.FragileWeightCapKg = *yamlCfg.Capacity.FragileWeightCapKg
	}

	if yamlCfg.Workers != nil {
		cfg.Workers = *yamlCfg.Workers
	}
	if yamlCfg.RejectUnpackable != nil {
		cfg.RejectUnpackable = *yamlCfg.RejectUnpackable
	}
	if yamlCfg.Input != "" {
		cfg.InputPath = yamlCfg.Input
	}
	if yamlCfg.OutputDir != "" {
		cfg.OutputDir = yamlCfg.OutputDir
	}
	if yamlCfg.SummaryPath != "" {
		cfg.SummaryPath = yamlCfg.SummaryPath
	}
	if yamlCfg.MaxRows != nil {
		cfg.MaxRows = *yamlCfg.MaxRows
	}

	if yamlCfg.ReportFormat != "" {
		format, err := report.ParseFormat(yamlCfg.ReportFormat)
		if err != nil {
			return err
		}
		cfg.ReportFormat = format
	}

	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}

	durations := []struct {
		raw string
		dst *time.Duration
	}{
		{yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{yamlCfg.WriteTimeout, &cfg.WriteTimeout},
		{yamlCfg.IdleTimeout, &cfg.IdleTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", d.raw, err)
		}
		*d.dst = parsed
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}

	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	return nil
}

// applyEnvConfig applies environment variable configuration. Unparsable values are ignored.
func applyEnvConfig(cfg *Config) {
	if port := env("PORT"); port != "" {
		cfg.Port = port
	}

	if v, ok := envInt("UNIT_CAP"); ok {
		cfg.Capacity.UnitCap = v
	}
	if v, ok := envFloat("NORMAL_WEIGHT_CAP"); ok {
		cfg.Capacity.NormalWeightCapKg = v
	}
	if v, ok := envFloat("FRAGILE_WEIGHT_CAP"); ok {
		cfg.Capacity.FragileWeightCapKg = v
	}

	if v, ok := envInt("PACK_WORKERS"); ok && v > 0 {
		cfg.Workers = v
	}
	if raw := env("REJECT_UNPACKABLE"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			cfg.RejectUnpackable = v
		}
	}

	if v := env("INPUT_CSV"); v != "" {
		cfg.InputPath = v
	}
	if v := env("OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := env("SUMMARY_CSV"); v != "" {
		cfg.SummaryPath = v
	}
	if v, ok := envInt("MAX_ROWS"); ok && v >= 0 {
		cfg.MaxRows = v
	}
	if raw := env("REPORT_FORMAT"); raw != "" {
		if format, err := report.ParseFormat(raw); err == nil {
			cfg.ReportFormat = format
		}
	}

	if v := env("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v, ok := envFloat("RATE_LIMIT_RPS"); ok && v >= 0 {
		cfg.RateLimitRPS = v
	}

	if v, ok := envInt("RATE_LIMIT_BURST"); ok && v >= 0 {
		cfg.RateLimitBurst = v
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) error {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.UnitCap != nil {
		cfg.Capacity.UnitCap = *overrides.UnitCap
	}
	if overrides.NormalWeightCapKg != nil {
		cfg.Capacity.NormalWeightCapKg = *overrides.NormalWeightCapKg
	}
	if overrides.FragileWeightCapKg != nil {
		cfg.Capacity.FragileWeightCapKg = *overrides.FragileWeightCapKg
	}

	if overrides.Workers != nil {
		cfg.Workers = *overrides.Workers
	}
	if overrides.RejectUnpackable != nil {
		cfg.RejectUnpackable = *overrides.RejectUnpackable
	}
	if overrides.InputPath != nil && *overrides.InputPath != "" {
		cfg.InputPath = *overrides.InputPath
	}
	if overrides.OutputDir != nil && *overrides.OutputDir != "" {
		cfg.OutputDir = *overrides.OutputDir
	}
	if overrides.SummaryPath != nil && *overrides.SummaryPath != "" {
		cfg.SummaryPath = *overrides.SummaryPath
	}
	if overrides.MaxRows != nil {
		cfg.MaxRows = *overrides.MaxRows
	}

	if overrides.ReportFormat != nil && *overrides.ReportFormat != "" {
		format, err := report.ParseFormat(*overrides.ReportFormat)
		if err != nil {
			return fmt.Errorf("parse report format: %w", err)
		}
		cfg.ReportFormat = format
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	return nil
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if err := cfg.Capacity.Validate(); err != nil {
		return err
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", cfg.Workers)
	}
	if cfg.MaxRows < 0 {
		return fmt.Errorf("max rows must be >= 0, got %d", cfg.MaxRows)
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string) (int, bool) {
	raw := env(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	return v, err == nil
}

func envFloat(key string) (float64, bool) {
	raw := env(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	return v, err == nil
}
