package config

// DefaultBindAddress is the default bind address.
const DefaultBindAddress = "0.0.0.0"

// DefaultPort is the default HTTP port.
const DefaultPort = 8420

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultDataDir is the default data directory (before tilde expansion).
const DefaultDataDir = "~/.fingerprintd"

// DefaultConfigFilename is the name of the config file.
const DefaultConfigFilename = "fingerprintd.toml"

// DefaultReadTimeout is the default HTTP server read timeout in seconds.
const DefaultReadTimeout = 10

// DefaultWriteTimeout is the default HTTP server write timeout in seconds.
const DefaultWriteTimeout = 10

// DefaultIdleTimeout is the default HTTP server idle timeout in seconds.
const DefaultIdleTimeout = 60

// DefaultMaxBodySize is the default maximum request body size in bytes (1 MB;
// fingerprint submissions are small JSON payloads, never file uploads).
const DefaultMaxBodySize = 1 << 20

// DefaultIdentityMaxAgeMs is the default persistent-identity token max age,
// in milliseconds (365 days).
const DefaultIdentityMaxAgeMs = int64(365 * 24 * 60 * 60 * 1000)

// Matching engine defaults, per the fingerprint matching specification.
const (
	DefaultFuzzyScanLimit       = 1000
	DefaultStableScanLimit      = 500
	DefaultFuzzyThreshold       = 8
	DefaultStableFuzzyThreshold = 4
	DefaultGPUScoreMin          = 0.1
)

// DefaultTrustWindowDays is the default lookback window for the crowd-blending
// trust scorer.
const DefaultTrustWindowDays = 7

// DefaultServerSecretRef points at the OS-keychain entry written by
// `fingerprintd secret set`.
const DefaultServerSecretRef = "keyring://fingerprintd/server_secret"

// DefaultRecencyCacheSize is the default LRU capacity for the recency-window
// scan cache (distinct scan-limit values cached, not rows).
const DefaultRecencyCacheSize = 8

// DefaultTrustCacheSize is the default LRU capacity for the read-mostly
// cached trust score.
const DefaultTrustCacheSize = 4096

// DefaultTracingExporter is the default tracing exporter type.
const DefaultTracingExporter = "stdout"

// DefaultTracingServiceName is the default service name for traces.
const DefaultTracingServiceName = "fingerprintd"

// DefaultTracingSampleRate is the default sampling rate (1.0 = 100%).
const DefaultTracingSampleRate = 1.0

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// ValidTracingExporters lists the allowed tracing exporter values.
var ValidTracingExporters = []string{"stdout", "otlp-grpc", "otlp-http"}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:  DefaultBindAddress,
			Port:         DefaultPort,
			LogLevel:     DefaultLogLevel,
			DataDir:      DefaultDataDir,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
		},
		Identity: IdentityConfig{
			MaxAgeMs: DefaultIdentityMaxAgeMs,
		},
		Matching: MatchingConfig{
			FuzzyScanLimit:       DefaultFuzzyScanLimit,
			StableScanLimit:      DefaultStableScanLimit,
			FuzzyThreshold:       DefaultFuzzyThreshold,
			StableFuzzyThreshold: DefaultStableFuzzyThreshold,
			GPUScoreMin:          DefaultGPUScoreMin,
			RecencyCacheSize:     DefaultRecencyCacheSize,
		},
		Trust: TrustConfig{
			WindowDays: DefaultTrustWindowDays,
			CacheSize:  DefaultTrustCacheSize,
		},
		Security: SecurityConfig{
			ServerSecretRef: DefaultServerSecretRef,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			Endpoint:    "",
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
			Insecure:    true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
