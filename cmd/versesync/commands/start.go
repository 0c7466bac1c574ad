package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/versesync/versesync/internal/logger"
	"github.com/versesync/versesync/pkg/config"
	"github.com/versesync/versesync/pkg/sync/admin"
	"github.com/versesync/versesync/pkg/sync/api"
	"github.com/versesync/versesync/pkg/sync/blob"
	"github.com/versesync/versesync/pkg/sync/engine"
	"github.com/versesync/versesync/pkg/sync/metrics"
	"github.com/versesync/versesync/pkg/sync/models"
	"github.com/versesync/versesync/pkg/sync/store"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the VerseSync server",
	Long: `Start the VerseSync server with the specified configuration.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/versesync/config.yaml.

Examples:
  # Start in background (default)
  versesync start

  # Start in foreground
  versesync start --foreground

  # Start with custom config file
  versesync start --config /etc/versesync/config.yaml

  # Start with environment variable overrides
  VERSESYNC_LOGGING_LEVEL=DEBUG versesync start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/versesync/versesync.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/versesync/versesync.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Handle daemon mode (background)
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("VerseSync - Transactional file synchronization server")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	// Initialize metadata store (runs migrations and seeds defaults)
	db, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize metadata store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("metadata store close error", "error", err)
		}
	}()
	logger.Info("Metadata store initialized", "type", cfg.Database.Type)

	// Ensure admin user exists (generates random password on first run)
	adminPassword, err := db.EnsureAdminUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure admin user: %w", err)
	}
	if adminPassword != "" {
		logger.Info("Admin user created", "username", "admin")
		fmt.Printf("\n*** IMPORTANT: Admin user created with password: %s ***\n", adminPassword)
		fmt.Println("Please save this password. It will not be shown again.")
		fmt.Println()
	}

	// Initialize blob store for committed revisions
	blobs, err := blob.NewStore(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}
	logger.Info("Blob store initialized", "root", cfg.Storage.Root)

	// Initialize metrics (if enabled)
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		logger.Info("Metrics enabled")
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Create the sync engine (sweeps stale staging and operations)
	eng, err := engine.New(engine.Config{
		Store:       db,
		Blobs:       blobs,
		StagingRoot: cfg.Storage.Staging,
		Metrics:     m,
	})
	if err != nil {
		return fmt.Errorf("failed to create sync engine: %w", err)
	}

	// Background maintenance: revision pruning and operation log retention
	go eng.RunMaintenance(ctx)

	// Admin session manager with periodic expiry cleanup
	sessions := admin.NewManager()
	go sessions.RunCleanup(ctx)

	// Access token lifetime is a runtime setting so it can be tuned from
	// the admin panel; it takes effect on restart.
	jwtHours, err := db.GetSettingInt(ctx, models.SettingJWTExpirationHours, 24)
	if err != nil {
		logger.Warn("failed to read JWT expiration setting, using default", "error", err)
		jwtHours = 24
	}

	deps := api.RouterConfig{
		Store:         db,
		Engine:        eng,
		Blobs:         blobs,
		Sessions:      sessions,
		ServerVersion: Version,
	}
	if m != nil {
		deps.MetricsHandler = m.Handler()
	}

	srv, err := api.NewServer(api.ServerConfig{
		Host:                cfg.Server.Host,
		Port:                cfg.Server.Port,
		JWTSecret:           cfg.Server.JWTSecret,
		AccessTokenDuration: time.Duration(jwtHours) * time.Hour,
		ReadHeaderTimeout:   cfg.Server.ReadHeaderTimeout,
		IdleTimeout:         cfg.Server.IdleTimeout,
	}, deps)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	logger.Info("API server configured", "port", srv.Port())

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// Start server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Wait for server to shut down gracefully
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// startDaemon starts the server as a background daemon process.
func startDaemon() error {
	stateDir := GetDefaultStateDir()

	// Create state directory if it doesn't exist
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Set default PID file if not specified
	pidPath := pidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check if already running
	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				// Check if process is still running
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("VerseSync is already running (PID %d)", pid)
					}
				}
			}
		}
		// Stale PID file, remove it
		_ = os.Remove(pidPath)
	}

	// Set default log file if not specified
	logPath := logFile
	if logPath == "" {
		logPath = GetDefaultLogFile()
	}

	// Get the executable path
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Build arguments for the daemon process
	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	// Create the daemon process
	daemon := exec.Command(executable, daemonArgs...)

	// Open log file for stdout/stderr
	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	daemon.Stdout = logFileHandle
	daemon.Stderr = logFileHandle

	// Detach from parent process
	daemon.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	// Start the daemon
	if err := daemon.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	_ = logFileHandle.Close()

	fmt.Printf("VerseSync started in background (PID %d)\n", daemon.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", filepath.Clean(logPath))

	return nil
}
