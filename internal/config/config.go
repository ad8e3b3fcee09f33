package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// configPtr holds the current config for thread-safe access.
var configPtr atomic.Pointer[Config]

// loadedConfigFile stores the path of the config file used by the last successful Load.
var loadedConfigFile atomic.Value

// Get returns the current Config. It is safe for concurrent use.
// If no config has been loaded yet, it returns the default config.
func Get() *Config {
	if c := configPtr.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	configPtr.Store(d)
	return d
}

// set stores a new Config atomically.
func set(cfg *Config) {
	configPtr.Store(cfg)
}

// Config is the top-level configuration for fingerprintd.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   toml:"server"`
	Identity IdentityConfig `mapstructure:"identity" toml:"identity"`
	Matching MatchingConfig `mapstructure:"matching" toml:"matching"`
	Trust    TrustConfig    `mapstructure:"trust"    toml:"trust"`
	Security SecurityConfig `mapstructure:"security" toml:"security"`
	Tracing  TracingConfig  `mapstructure:"tracing"  toml:"tracing"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  toml:"metrics"`
}

// ServerConfig holds the core HTTP server settings.
type ServerConfig struct {
	BindAddress  string `mapstructure:"bind_address"  toml:"bind_address"`
	Port         int    `mapstructure:"port"          toml:"port"`
	LogLevel     string `mapstructure:"log_level"     toml:"log_level"`
	DataDir      string `mapstructure:"data_dir"      toml:"data_dir"`
	ReadTimeout  int    `mapstructure:"read_timeout"  toml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" toml:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"  toml:"idle_timeout"`
	MaxBodySize  int64  `mapstructure:"max_body_size" toml:"max_body_size"`
}

// IdentityConfig controls the persistent-identity token.
type IdentityConfig struct {
	MaxAgeMs int64 `mapstructure:"max_age_ms" toml:"max_age_ms"`
}

// MatchingConfig controls the layered match state machine.
type MatchingConfig struct {
	FuzzyScanLimit       int     `mapstructure:"fuzzy_scan_limit"        toml:"fuzzy_scan_limit"`
	StableScanLimit      int     `mapstructure:"stable_scan_limit"       toml:"stable_scan_limit"`
	FuzzyThreshold       int     `mapstructure:"fuzzy_threshold"         toml:"fuzzy_threshold"`
	StableFuzzyThreshold int     `mapstructure:"stable_fuzzy_threshold"  toml:"stable_fuzzy_threshold"`
	GPUScoreMin          float64 `mapstructure:"gpu_score_min"           toml:"gpu_score_min"`
	RecencyCacheSize     int     `mapstructure:"recency_cache_size"      toml:"recency_cache_size"`
}

// TrustConfig controls the crowd-blending trust scorer.
type TrustConfig struct {
	WindowDays int `mapstructure:"window_days" toml:"window_days"`
	CacheSize  int `mapstructure:"cache_size"  toml:"cache_size"`
}

// SecurityConfig groups secret material references.
type SecurityConfig struct {
	// ServerSecretRef is resolved through internal/secrets.ResolveRef; it
	// never holds the raw secret itself.
	ServerSecretRef string `mapstructure:"server_secret_ref" toml:"server_secret_ref"`
}

// TracingConfig controls OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"`
	Exporter    string  `mapstructure:"exporter"     toml:"exporter"`     // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"`     // e.g. "localhost:4317"
	ServiceName string  `mapstructure:"service_name" toml:"service_name"` // defaults to "fingerprintd"
	SampleRate  float64 `mapstructure:"sample_rate"  toml:"sample_rate"`  // 0.0 to 1.0
	Insecure    bool    `mapstructure:"insecure"     toml:"insecure"`     // skip TLS for dev
}

// MetricsConfig controls whether the /metrics endpoint is exposed.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
}

// Load reads configuration from disk with the following precedence:
//  1. Environment variables (FINGERPRINTD_ prefix, _ as separator)
//  2. The file at explicitPath if non-empty
//  3. ~/.fingerprintd/fingerprintd.toml
//  4. ./fingerprintd.toml
//  5. Built-in defaults
//
// The loaded config is validated and stored in the global atomic pointer.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	// Set all defaults so viper knows every key.
	setViperDefaults(v)

	// Environment variable overlay: FINGERPRINTD_SERVER_PORT etc.
	v.SetEnvPrefix("FINGERPRINTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Determine which file(s) to read.
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".fingerprintd"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("fingerprintd")
	}

	if err := v.ReadInConfig(); err != nil {
		// If no config file exists we still proceed with defaults + env.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Store the resolved config file path.
	if cf := v.ConfigFileUsed(); cf != "" {
		loadedConfigFile.Store(cf)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Expand ~ in data_dir.
	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	set(cfg)
	return cfg, nil
}

// InitConfig writes the default configuration file to ~/.fingerprintd/fingerprintd.toml.
// If the file already exists it is not overwritten.
func InitConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".fingerprintd")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	cfg := DefaultConfig()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	return nil
}

// ExportConfig writes the current config to the given path in TOML format.
func ExportConfig(path string) error {
	cfg := Get()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ImportConfig reads a TOML config file and replaces the current config with
// it; keys the file omits take their default values, not the current ones.
// The imported config is also persisted to the active config file so changes
// survive restarts.
func ImportConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return err
	}
	set(cfg)

	// Persist to the active config file so changes survive restart.
	if dest := ConfigFilePath(); dest != "" {
		out, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config for persistence: %w", err)
		}
		if err := os.WriteFile(dest, out, 0o600); err != nil {
			return fmt.Errorf("persisting imported config: %w", err)
		}
	}

	return nil
}

// ConfigFilePath returns the path of the config file that was loaded, or
// empty if no file was found.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// setViperDefaults registers every known key with viper so that env var binding
// works for all fields even when no config file is present.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// Server
	v.SetDefault("server.bind_address", d.Server.BindAddress)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.data_dir", d.Server.DataDir)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)

	// Identity
	v.SetDefault("identity.max_age_ms", d.Identity.MaxAgeMs)

	// Matching
	v.SetDefault("matching.fuzzy_scan_limit", d.Matching.FuzzyScanLimit)
	v.SetDefault("matching.stable_scan_limit", d.Matching.StableScanLimit)
	v.SetDefault("matching.fuzzy_threshold", d.Matching.FuzzyThreshold)
	v.SetDefault("matching.stable_fuzzy_threshold", d.Matching.StableFuzzyThreshold)
	v.SetDefault("matching.gpu_score_min", d.Matching.GPUScoreMin)
	v.SetDefault("matching.recency_cache_size", d.Matching.RecencyCacheSize)

	// Trust
	v.SetDefault("trust.window_days", d.Trust.WindowDays)
	v.SetDefault("trust.cache_size", d.Trust.CacheSize)

	// Security
	v.SetDefault("security.server_secret_ref", d.Security.ServerSecretRef)

	// Tracing
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)

	// Metrics
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
