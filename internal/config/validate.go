package config

import (
	"fmt"
	"strings"
)

// validate checks the Config for invalid or out-of-range values.
// It returns a combined error if any checks fail.
func validate(cfg *Config) error {
	var errs []string

	// Server validation
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", cfg.Server.Port))
	}
	if !isValidEnum(cfg.Server.LogLevel, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("server.log_level must be one of %v, got %q", ValidLogLevels, cfg.Server.LogLevel))
	}
	if cfg.Server.DataDir == "" {
		errs = append(errs, "server.data_dir must not be empty")
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.read_timeout must be non-negative, got %d", cfg.Server.ReadTimeout))
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.write_timeout must be non-negative, got %d", cfg.Server.WriteTimeout))
	}
	if cfg.Server.IdleTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.idle_timeout must be non-negative, got %d", cfg.Server.IdleTimeout))
	}
	if cfg.Server.MaxBodySize < 0 {
		errs = append(errs, fmt.Sprintf("server.max_body_size must be non-negative, got %d", cfg.Server.MaxBodySize))
	}

	// Identity validation
	if cfg.Identity.MaxAgeMs <= 0 {
		errs = append(errs, fmt.Sprintf("identity.max_age_ms must be positive, got %d", cfg.Identity.MaxAgeMs))
	}

	// Matching validation
	if cfg.Matching.FuzzyScanLimit < 1 {
		errs = append(errs, fmt.Sprintf("matching.fuzzy_scan_limit must be at least 1, got %d", cfg.Matching.FuzzyScanLimit))
	}
	if cfg.Matching.StableScanLimit < 1 {
		errs = append(errs, fmt.Sprintf("matching.stable_scan_limit must be at least 1, got %d", cfg.Matching.StableScanLimit))
	}
	if cfg.Matching.FuzzyThreshold < 0 || cfg.Matching.FuzzyThreshold > 64 {
		errs = append(errs, fmt.Sprintf("matching.fuzzy_threshold must be between 0 and 64, got %d", cfg.Matching.FuzzyThreshold))
	}
	if cfg.Matching.StableFuzzyThreshold < 0 || cfg.Matching.StableFuzzyThreshold > 64 {
		errs = append(errs, fmt.Sprintf("matching.stable_fuzzy_threshold must be between 0 and 64, got %d", cfg.Matching.StableFuzzyThreshold))
	}
	if cfg.Matching.GPUScoreMin < 0 || cfg.Matching.GPUScoreMin > 1 {
		errs = append(errs, fmt.Sprintf("matching.gpu_score_min must be between 0 and 1, got %f", cfg.Matching.GPUScoreMin))
	}
	if cfg.Matching.RecencyCacheSize < 1 {
		errs = append(errs, fmt.Sprintf("matching.recency_cache_size must be at least 1, got %d", cfg.Matching.RecencyCacheSize))
	}

	// Trust validation
	if cfg.Trust.WindowDays < 1 {
		errs = append(errs, fmt.Sprintf("trust.window_days must be at least 1, got %d", cfg.Trust.WindowDays))
	}
	if cfg.Trust.CacheSize < 1 {
		errs = append(errs, fmt.Sprintf("trust.cache_size must be at least 1, got %d", cfg.Trust.CacheSize))
	}

	// Security validation
	if cfg.Security.ServerSecretRef == "" {
		errs = append(errs, "security.server_secret_ref must not be empty")
	}

	// Tracing validation
	if cfg.Tracing.Enabled {
		if !isValidEnum(cfg.Tracing.Exporter, ValidTracingExporters) {
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of %v, got %q", ValidTracingExporters, cfg.Tracing.Exporter))
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
		}
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %f", cfg.Tracing.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// isValidEnum returns true if val is in the allowed list (case-insensitive).
func isValidEnum(val string, allowed []string) bool {
	lower := strings.ToLower(val)
	for _, a := range allowed {
		if strings.ToLower(a) == lower {
			return true
		}
	}
	return false
}
