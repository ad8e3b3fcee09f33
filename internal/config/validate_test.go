package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Server.DataDir = "/tmp/test"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := validate(cfg); err != nil {
		t.Fatalf("validate valid config: %v", err)
	}
}

func TestValidate_BadPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 70000

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for port 70000")
	}
	if !strings.Contains(err.Error(), "server.port") {
		t.Errorf("error should mention server.port: %v", err)
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Server.LogLevel = "verbose"

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for invalid log level")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level: %v", err)
	}
}

func TestValidate_EmptyDataDir(t *testing.T) {
	cfg := validConfig()
	cfg.Server.DataDir = ""

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for empty data_dir")
	}
}

func TestValidate_NegativeReadTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ReadTimeout = -1

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for negative read_timeout")
	}
}

func TestValidate_IdentityMaxAgeNonPositive(t *testing.T) {
	cfg := validConfig()
	cfg.Identity.MaxAgeMs = 0

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for identity.max_age_ms = 0")
	}
}

func TestValidate_FuzzyScanLimitZero(t *testing.T) {
	cfg := validConfig()
	cfg.Matching.FuzzyScanLimit = 0

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for fuzzy_scan_limit = 0")
	}
}

func TestValidate_FuzzyThresholdOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Matching.FuzzyThreshold = 65

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for fuzzy_threshold = 65")
	}
}

func TestValidate_GPUScoreMinOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Matching.GPUScoreMin = 1.5

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for gpu_score_min = 1.5")
	}
}

func TestValidate_TrustWindowDaysZero(t *testing.T) {
	cfg := validConfig()
	cfg.Trust.WindowDays = 0

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for trust.window_days = 0")
	}
}

func TestValidate_EmptyServerSecretRef(t *testing.T) {
	cfg := validConfig()
	cfg.Security.ServerSecretRef = ""

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for empty server_secret_ref")
	}
}

func TestValidate_TracingEnabledBadExporter(t *testing.T) {
	cfg := validConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "carrier-pigeon"

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for invalid tracing exporter")
	}
}

func TestValidate_TracingSampleRateOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Tracing.SampleRate = 1.5

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for sample_rate = 1.5")
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Server.LogLevel = "bad"

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "server.port") || !strings.Contains(errStr, "log_level") {
		t.Errorf("error should mention multiple fields: %v", err)
	}
}

func TestIsValidEnum(t *testing.T) {
	if !isValidEnum("INFO", ValidLogLevels) {
		t.Error("INFO should be valid (case-insensitive)")
	}
	if isValidEnum("verbose", ValidLogLevels) {
		t.Error("verbose should not be valid")
	}
}
