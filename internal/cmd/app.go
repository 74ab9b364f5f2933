package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/omniagent/devboxctl/internal/config"
	apperrors "github.com/omniagent/devboxctl/internal/errors"
	"github.com/omniagent/devboxctl/internal/logging"
	"github.com/omniagent/devboxctl/internal/runloop"
	"github.com/omniagent/devboxctl/internal/statestore"
)

// app bundles the wiring every subcommand needs: validated config, logger,
// provider client and pointer store.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	client *runloop.Client
	store  statestore.Store

	closers []func() error
}

var (
	loggerMu     sync.Mutex
	activeLogger *logging.Logger
)

// currentLogger returns the logger of the running command, if any. Used by
// the config reload callback, which fires on viper's watcher goroutine.
func currentLogger() *logging.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	return activeLogger
}

func setCurrentLogger(l *logging.Logger) {
	loggerMu.Lock()
	activeLogger = l
	loggerMu.Unlock()
}

// newApp loads and validates configuration and constructs the shared
// dependencies. Callers must Close it.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	setCurrentLogger(logger)

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() error {
		setCurrentLogger(nil)
		return logger.Close()
	})

	apiKey, err := loadAPIKey(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	client, err := runloop.NewClient(cfg.Provider.BaseURL, apiKey,
		runloop.WithTimeout(cfg.Provider.RequestTimeout()),
		runloop.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.client = client

	store, err := buildStore(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening pointer store: %w", err)
	}
	a.store = store
	if closer, ok := store.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}

	return a, nil
}

// Close releases the app's resources in reverse construction order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

// role returns the role the command operates on.
func (a *app) role(cmd *cobra.Command) string {
	role, _ := cmd.Flags().GetString("role")
	if role == "" {
		role = "backend"
	}
	return role
}

// devboxName derives the provider-side devbox name for a role.
func (a *app) devboxName(role string) string {
	return fmt.Sprintf("%s-%s", a.cfg.Devbox.NamePrefix, role)
}

// passThreshold returns the role's health gate.
func (a *app) passThreshold(role string) float64 {
	if strings.Contains(strings.ToLower(role), "backend") {
		return a.cfg.Health.BackendPassThreshold
	}
	return a.cfg.Health.PassThreshold
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLoggerWithRotation(cfg.Paths.ResolveLogDir(), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
}

func buildStore(cfg *config.Config) (statestore.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		return statestore.NewSQLiteStore(cfg.Store.ResolveSQLitePath())
	case "memory":
		return statestore.NewMemoryStore(), nil
	default:
		return statestore.NewEnvFileStore(cfg.Store.EnvFile), nil
	}
}

// loadAPIKey resolves the provider credential: the configured environment
// variable wins, with a dotenv fallback for setups that keep it in the
// pointer store's .env file.
func loadAPIKey(cfg *config.Config) (string, error) {
	if key := os.Getenv(cfg.Provider.APIKeyEnv); key != "" {
		return key, nil
	}
	if key := readDotenvKey(cfg.Store.EnvFile, cfg.Provider.APIKeyEnv); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w: set %s", apperrors.ErrMissingCredential, cfg.Provider.APIKeyEnv)
}

func readDotenvKey(path, key string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	prefix := key + "="
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, prefix) {
			return strings.Trim(strings.TrimPrefix(line, prefix), `"'`)
		}
	}
	return ""
}

// formatElapsed renders a duration for human-facing summaries.
func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
