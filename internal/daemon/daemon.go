package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mowsen/fingerprint/internal/config"
	"github.com/mowsen/fingerprint/internal/httpapi"
	"github.com/mowsen/fingerprint/internal/identity"
	"github.com/mowsen/fingerprint/internal/matchengine"
	"github.com/mowsen/fingerprint/internal/metrics"
	"github.com/mowsen/fingerprint/internal/secrets"
	"github.com/mowsen/fingerprint/internal/store"
	"github.com/mowsen/fingerprint/internal/tracing"
	"github.com/mowsen/fingerprint/internal/trust"
	"github.com/mowsen/fingerprint/internal/version"
)

// Run is the main daemon orchestrator. It initialises all subsystems,
// starts the identify and metrics servers, and blocks until a shutdown
// signal is received.
func Run(cfg *config.Config, foreground bool) error {
	// 1. Set up zerolog logger.
	dataDir := expandHome(cfg.Server.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	zerolog.SetGlobalLevel(logLevel)

	writers := []io.Writer{}

	logPath := filepath.Join(dataDir, "fingerprintd.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", logPath, err)
	}
	defer logFile.Close()
	writers = append(writers, logFile)

	if foreground {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
		writers = append(writers, consoleWriter)
	}

	multi := zerolog.MultiLevelWriter(writers...)
	log.Logger = zerolog.New(multi).With().Timestamp().Str("service", "fingerprintd").Logger()

	log.Info().
		Str("version", version.Version).
		Str("data_dir", dataDir).
		Bool("foreground", foreground).
		Msg("fingerprintd starting")

	// 2. Check if already running.
	if IsRunning(dataDir) {
		return fmt.Errorf("fingerprintd is already running (PID file exists at %s)", filepath.Join(dataDir, pidFilename))
	}

	// 3. Open store.
	dbPath := filepath.Join(dataDir, "fingerprintd.db")
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	log.Info().Str("db_path", dbPath).Msg("store opened")

	// 4. Resolve the server secret and build the identity signer.
	secretStore := secrets.New()
	secret, err := secretStore.ResolveRef(cfg.Security.ServerSecretRef)
	if err != nil {
		return fmt.Errorf("resolving server_secret: %w", err)
	}
	maxAge := time.Duration(cfg.Identity.MaxAgeMs) * time.Millisecond
	signer := identity.NewSigner([]byte(secret), maxAge)

	// 5. Build the trust scorer and recency cache.
	scorer, err := trust.NewScorer(st, cfg.Trust.WindowDays, cfg.Trust.CacheSize)
	if err != nil {
		return fmt.Errorf("creating trust scorer: %w", err)
	}

	recency, err := store.NewRecencyCache(st, cfg.Matching.RecencyCacheSize)
	if err != nil {
		return fmt.Errorf("creating recency cache: %w", err)
	}

	// 6. Create metrics collector and the matching engine.
	collector := metrics.NewCollector()

	engineCfg := matchengine.Config{
		FuzzyScanLimit:       cfg.Matching.FuzzyScanLimit,
		StableScanLimit:      cfg.Matching.StableScanLimit,
		FuzzyThreshold:       cfg.Matching.FuzzyThreshold,
		StableFuzzyThreshold: cfg.Matching.StableFuzzyThreshold,
		GPUScoreMin:          cfg.Matching.GPUScoreMin,
		TrustWindowDays:      cfg.Trust.WindowDays,
	}
	eng := matchengine.New(st, recency, recency, scorer, signer, engineCfg, log.Logger, collector)

	// 7. Write PID file.
	if err := WritePID(dataDir); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() {
		if err := RemovePID(dataDir); err != nil {
			log.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	log.Info().Int("pid", os.Getpid()).Msg("PID file written")

	// 8. Start config watcher. Server secret and bind address are not
	// hot-reloadable; everything else in engineCfg is updated in place, but
	// the trust scorer keeps the window it was built with.
	configFile := config.ConfigFilePath()
	if configFile == "" {
		configFile = filepath.Join(dataDir, config.DefaultConfigFilename)
	}

	var watcher *config.Watcher
	if _, statErr := os.Stat(configFile); statErr == nil {
		w, watchErr := config.Watch(configFile)
		if watchErr != nil {
			log.Warn().Err(watchErr).Msg("failed to start config watcher; continuing without hot-reload")
		} else {
			watcher = w
			defer watcher.Close()
			watcher.OnChange(func(old, newCfg *config.Config) {
				log.Info().Msg("configuration reloaded")
				zerolog.SetGlobalLevel(parseLogLevel(newCfg.Server.LogLevel))
				eng.UpdateConfig(matchengine.Config{
					FuzzyScanLimit:       newCfg.Matching.FuzzyScanLimit,
					StableScanLimit:      newCfg.Matching.StableScanLimit,
					FuzzyThreshold:       newCfg.Matching.FuzzyThreshold,
					StableFuzzyThreshold: newCfg.Matching.StableFuzzyThreshold,
					GPUScoreMin:          newCfg.Matching.GPUScoreMin,
					TrustWindowDays:      newCfg.Trust.WindowDays,
				})
			})
			log.Info().Str("file", configFile).Msg("config watcher started")
		}
	}

	// 9. Start OpenTelemetry tracing, if enabled.
	if cfg.Tracing.Enabled {
		shutdown, terr := tracing.Init(context.Background(), cfg.Tracing.ServiceName, version.Version,
			cfg.Tracing.Exporter, cfg.Tracing.Endpoint, cfg.Tracing.SampleRate, cfg.Tracing.Insecure)
		if terr != nil {
			log.Warn().Err(terr).Msg("failed to initialize tracing; continuing without it")
		} else {
			defer shutdown(context.Background())
			log.Info().Str("exporter", cfg.Tracing.Exporter).Msg("tracing initialized")
		}
	}

	// 10. Start the identify HTTP server.
	readTimeout := time.Duration(cfg.Server.ReadTimeout) * time.Second
	writeTimeout := time.Duration(cfg.Server.WriteTimeout) * time.Second
	idleTimeout := time.Duration(cfg.Server.IdleTimeout) * time.Second

	apiHandler := httpapi.NewHandler(eng, readTimeout)
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)
	apiServer := &http.Server{
		Addr:         apiAddr,
		Handler:      apiHandler.Router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", apiAddr).Msg("identify server starting")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("identify server: %w", err)
		}
	}()

	// 11. Start the metrics server, one port above the identify server.
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port+1)
		metricsServer = metrics.NewServer(collector, st, metricsAddr)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		log.Info().Str("addr", metricsAddr).Msg("metrics server starting")
	}

	log.Info().Str("addr", apiAddr).Bool("metrics_enabled", cfg.Metrics.Enabled).Msg("fingerprintd is ready")

	if foreground {
		fmt.Printf("\n  fingerprintd is running!\n")
		fmt.Printf("  Identify: http://%s/identify\n", apiAddr)
		if cfg.Metrics.Enabled {
			fmt.Printf("  Metrics:  http://%s:%d/metrics\n", cfg.Server.BindAddress, cfg.Server.Port+1)
		}
		fmt.Println()
	}

	// 12. Wait for shutdown signal or fatal error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("fatal server error")
		return err
	}

	// 13. Graceful shutdown with 30-second timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info().Msg("shutting down servers...")

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("metrics server shutdown error")
		}
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("identify server shutdown error")
	}

	st.Close()
	if err := RemovePID(dataDir); err != nil {
		log.Error().Err(err).Msg("failed to remove PID file during shutdown")
	}

	log.Info().Msg("fingerprintd stopped")
	return nil
}

// Stop reads the PID file and sends SIGTERM to the running daemon.
func Stop() error {
	dataDir := expandHome(config.Get().Server.DataDir)

	pid, err := ReadPID(dataDir)
	if err != nil {
		return fmt.Errorf("fingerprintd does not appear to be running: %w", err)
	}

	if !isProcessAlive(pid) {
		if rmErr := RemovePID(dataDir); rmErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove stale PID file: %v\n", rmErr)
		}
		return fmt.Errorf("fingerprintd is not running (stale PID file removed)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to process %d: %w", pid, err)
	}

	fmt.Printf("Sent SIGTERM to fingerprintd (PID %d)\n", pid)

	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(pid) {
			return nil
		}
	}

	return nil
}

// Status checks if the daemon is running and prints a summary.
func Status() error {
	cfg := config.Get()
	dataDir := expandHome(cfg.Server.DataDir)

	if !IsRunning(dataDir) {
		fmt.Println("fingerprintd is not running")
		return nil
	}

	pid, _ := ReadPID(dataDir)
	fmt.Printf("fingerprintd is running (PID %d)\n", pid)

	if !cfg.Metrics.Enabled {
		return nil
	}

	statsURL := fmt.Sprintf("http://%s:%d/api/stats", cfg.Server.BindAddress, cfg.Server.Port+1)
	client := &http.Client{Timeout: 3 * time.Second}

	resp, err := client.Get(statsURL)
	if err != nil {
		fmt.Println("  (metrics server unreachable)")
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}

	var stats metrics.Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil
	}

	fmt.Printf("\n  Uptime:               %s\n", stats.Uptime)
	fmt.Printf("  Total Identifications: %d\n", stats.TotalIdentifications)
	fmt.Printf("  Total Errors:           %d\n", stats.TotalErrors)
	for matchType, count := range stats.ByMatchType {
		fmt.Printf("  %-12s %d\n", matchType+":", count)
	}

	return nil
}

// parseLogLevel converts a string log level to a zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
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
