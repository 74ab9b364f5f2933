package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete devboxctl configuration
type Config struct {
	Provider  ProviderConfig  `mapstructure:"provider"`
	Devbox    DevboxConfig    `mapstructure:"devbox"`
	Deploy    DeployConfig    `mapstructure:"deploy"`
	Health    HealthConfig    `mapstructure:"health"`
	Swarm     SwarmConfig     `mapstructure:"swarm"`
	Blueprint BlueprintConfig `mapstructure:"blueprint"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Paths     PathsConfig     `mapstructure:"paths"`
}

// ProviderConfig controls how the provider API client is constructed
type ProviderConfig struct {
	// BaseURL is the provider API base URL (default: "https://api.runloop.ai/v1")
	BaseURL string `mapstructure:"base_url"`
	// APIKeyEnv is the environment variable holding the API key (default: "RUNLOOP_API_KEY")
	APIKeyEnv string `mapstructure:"api_key_env"`
	// RequestTimeoutSeconds is the per-request HTTP timeout (default: 120)
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	// MaxRetries is how many times transient request failures are retried (default: 2)
	MaxRetries int `mapstructure:"max_retries"`
}

// DevboxConfig controls devbox addressing and provisioning defaults
type DevboxConfig struct {
	// Domain is the DNS suffix used to derive devbox URLs (default: "runloop.dev")
	// Derived URLs have the form https://{id}.{domain}:{port}
	Domain string `mapstructure:"domain"`
	// Port is the service port used in derived devbox URLs (default: 8000)
	Port int `mapstructure:"port"`
	// NamePrefix is prepended to generated devbox names (default: "devboxctl")
	NamePrefix string `mapstructure:"name_prefix"`
	// ReadyTimeoutSeconds is how long to wait for a devbox to reach running (default: 120)
	ReadyTimeoutSeconds int `mapstructure:"ready_timeout_seconds"`
	// ReadyPollSeconds is the poll interval while waiting for running (default: 5)
	ReadyPollSeconds int `mapstructure:"ready_poll_seconds"`
}

// DeployConfig controls the deployment state machine
type DeployConfig struct {
	// MaxRetries is the number of additional attempts after the first failure (default: 1)
	MaxRetries int `mapstructure:"max_retries"`
	// ReadyTimeoutSeconds is the wait budget for a created devbox to reach running (default: 300)
	ReadyTimeoutSeconds int `mapstructure:"ready_timeout_seconds"`
	// ReadyPollSeconds is the poll interval while waiting for running (default: 5)
	ReadyPollSeconds int `mapstructure:"ready_poll_seconds"`
	// TargetSeconds is the soft deployment-time target; exceeding it logs a
	// warning but never fails the deployment (default: 30)
	TargetSeconds int `mapstructure:"target_seconds"`
	// RollbackOnFailure tears down partially-created devboxes when all
	// attempts are exhausted (default: true)
	RollbackOnFailure bool `mapstructure:"rollback_on_failure"`
}

// HealthConfig controls health-check evaluation
type HealthConfig struct {
	// PassThreshold is the minimum pass rate for a general devbox to be
	// considered healthy (default: 0.8)
	PassThreshold float64 `mapstructure:"pass_threshold"`
	// BackendPassThreshold is the minimum pass rate for backend-role
	// devboxes; backend gates are strict (default: 1.0)
	BackendPassThreshold float64 `mapstructure:"backend_pass_threshold"`
	// CheckTimeoutSeconds is the per-check execution timeout (default: 30)
	CheckTimeoutSeconds int `mapstructure:"check_timeout_seconds"`
}

// SwarmConfig controls swarm sizing and task dispatch
type SwarmConfig struct {
	// Size is the nominal member count; clamped to [MinSize, MaxSize] (default: 3)
	Size int `mapstructure:"size"`
	// MinSize is the quorum floor; fewer admitted members fails Deploy (default: 2)
	MinSize int `mapstructure:"min_size"`
	// MaxSize is the hard cap on member count (default: 7)
	MaxSize int `mapstructure:"max_size"`
	// TaskTimeoutSeconds is the per-member task execution timeout (default: 60)
	TaskTimeoutSeconds int `mapstructure:"task_timeout_seconds"`
	// SuspendOnTeardown suspends members instead of deleting them so the pool
	// can be re-adopted later (default: true)
	SuspendOnTeardown bool `mapstructure:"suspend_on_teardown"`
}

// BlueprintConfig controls blueprint resolution and build gating
type BlueprintConfig struct {
	// Name is the blueprint to deploy from; resolved to an id at deploy time
	Name string `mapstructure:"name"`
	// ID pins a specific blueprint id, bypassing name resolution
	ID string `mapstructure:"id"`
	// BuildTimeoutSeconds is how long `blueprint ensure` waits for a build
	// to reach build_complete (default: 600)
	BuildTimeoutSeconds int `mapstructure:"build_timeout_seconds"`
	// BuildPollSeconds is the poll interval while waiting for build_complete (default: 10)
	BuildPollSeconds int `mapstructure:"build_poll_seconds"`
}

// CleanupConfig controls cleanup job behavior
type CleanupConfig struct {
	// SuspendRunning includes running devboxes in cleanup by suspending them (default: false)
	SuspendRunning bool `mapstructure:"suspend_running"`
	// DeleteSuspended includes suspended devboxes in cleanup by deleting them (default: false)
	DeleteSuspended bool `mapstructure:"delete_suspended"`
	// MaxAgeHours only cleans devboxes older than this; 0 means no age filter
	MaxAgeHours int `mapstructure:"max_age_hours"`
}

// StoreConfig controls where role -> devbox pointers are persisted
type StoreConfig struct {
	// Backend selects the pointer store implementation: "env", "sqlite", or
	// "memory" (default: "env")
	Backend string `mapstructure:"backend"`
	// EnvFile is the dotenv file used by the env backend (default: ".env")
	EnvFile string `mapstructure:"env_file"`
	// SQLitePath is the database file used by the sqlite backend.
	// If empty, defaults to {config dir}/devboxctl.db.
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress controls whether rotated log files are gzipped (default: false)
	Compress bool `mapstructure:"compress"`
}

// PathsConfig controls where devboxctl stores data
type PathsConfig struct {
	// LogDir is the directory where log files are written.
	// If empty, defaults to {config dir}/logs.
	// Supports ~ for home directory expansion.
	LogDir string `mapstructure:"log_dir"`
}

// ResolveLogDir returns the resolved log directory path.
// If LogDir is empty, it returns the default path under the config directory.
// If LogDir starts with ~, it expands to the user's home directory.
func (p *PathsConfig) ResolveLogDir() string {
	if p.LogDir == "" {
		return filepath.Join(ConfigDir(), "logs")
	}

	path := p.LogDir

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return path
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			BaseURL:               "https://api.runloop.ai/v1",
			APIKeyEnv:             "RUNLOOP_API_KEY",
			RequestTimeoutSeconds: 120,
			MaxRetries:            2,
		},
		Devbox: DevboxConfig{
			Domain:              "runloop.dev",
			Port:                8000,
			NamePrefix:          "devboxctl",
			ReadyTimeoutSeconds: 120,
			ReadyPollSeconds:    5,
		},
		Deploy: DeployConfig{
			MaxRetries:          1,
			ReadyTimeoutSeconds: 300,
			ReadyPollSeconds:    5,
			TargetSeconds:       30,
			RollbackOnFailure:   true,
		},
		Health: HealthConfig{
			PassThreshold:        0.8,
			BackendPassThreshold: 1.0,
			CheckTimeoutSeconds:  30,
		},
		Swarm: SwarmConfig{
			Size:               3,
			MinSize:            2,
			MaxSize:            7,
			TaskTimeoutSeconds: 60,
			SuspendOnTeardown:  true,
		},
		Blueprint: BlueprintConfig{
			Name:                "",
			ID:                  "",
			BuildTimeoutSeconds: 600,
			BuildPollSeconds:    10,
		},
		Cleanup: CleanupConfig{
			SuspendRunning:  false,
			DeleteSuspended: false,
			MaxAgeHours:     0, // No age filter by default
		},
		Store: StoreConfig{
			Backend:    "env",
			EnvFile:    ".env",
			SQLitePath: "", // Empty means use default: {config dir}/devboxctl.db
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Paths: PathsConfig{
			LogDir: "", // Empty means use default: {config dir}/logs
		},
	}
}

// RequestTimeout returns the provider request timeout as a time.Duration
func (c *ProviderConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ReadyTimeout returns the devbox ready timeout as a time.Duration
func (c *DevboxConfig) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutSeconds) * time.Second
}

// ReadyPoll returns the devbox ready poll interval as a time.Duration
func (c *DevboxConfig) ReadyPoll() time.Duration {
	return time.Duration(c.ReadyPollSeconds) * time.Second
}

// ReadyTimeout returns the deploy ready timeout as a time.Duration
func (c *DeployConfig) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutSeconds) * time.Second
}

// ReadyPoll returns the deploy ready poll interval as a time.Duration
func (c *DeployConfig) ReadyPoll() time.Duration {
	return time.Duration(c.ReadyPollSeconds) * time.Second
}

// Target returns the soft deployment-time target as a time.Duration
func (c *DeployConfig) Target() time.Duration {
	return time.Duration(c.TargetSeconds) * time.Second
}

// CheckTimeout returns the per-check timeout as a time.Duration
func (c *HealthConfig) CheckTimeout() time.Duration {
	return time.Duration(c.CheckTimeoutSeconds) * time.Second
}

// TaskTimeout returns the per-member task timeout as a time.Duration
func (c *SwarmConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

// BuildTimeout returns the blueprint build wait budget as a time.Duration
func (c *BlueprintConfig) BuildTimeout() time.Duration {
	return time.Duration(c.BuildTimeoutSeconds) * time.Second
}

// BuildPoll returns the blueprint build poll interval as a time.Duration
func (c *BlueprintConfig) BuildPoll() time.Duration {
	return time.Duration(c.BuildPollSeconds) * time.Second
}

// MaxAge returns the cleanup age filter as a time.Duration (0 means disabled)
func (c *CleanupConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeHours) * time.Hour
}

// ResolveSQLitePath returns the resolved sqlite database path.
// If SQLitePath is empty, it returns the default path under the config directory.
func (c *StoreConfig) ResolveSQLitePath() string {
	if c.SQLitePath == "" {
		return filepath.Join(ConfigDir(), "devboxctl.db")
	}
	return c.SQLitePath
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Provider defaults
	viper.SetDefault("provider.base_url", defaults.Provider.BaseURL)
	viper.SetDefault("provider.api_key_env", defaults.Provider.APIKeyEnv)
	viper.SetDefault("provider.request_timeout_seconds", defaults.Provider.RequestTimeoutSeconds)
	viper.SetDefault("provider.max_retries", defaults.Provider.MaxRetries)

	// Devbox defaults
	viper.SetDefault("devbox.domain", defaults.Devbox.Domain)
	viper.SetDefault("devbox.port", defaults.Devbox.Port)
	viper.SetDefault("devbox.name_prefix", defaults.Devbox.NamePrefix)
	viper.SetDefault("devbox.ready_timeout_seconds", defaults.Devbox.ReadyTimeoutSeconds)
	viper.SetDefault("devbox.ready_poll_seconds", defaults.Devbox.ReadyPollSeconds)

	// Deploy defaults
	viper.SetDefault("deploy.max_retries", defaults.Deploy.MaxRetries)
	viper.SetDefault("deploy.ready_timeout_seconds", defaults.Deploy.ReadyTimeoutSeconds)
	viper.SetDefault("deploy.ready_poll_seconds", defaults.Deploy.ReadyPollSeconds)
	viper.SetDefault("deploy.target_seconds", defaults.Deploy.TargetSeconds)
	viper.SetDefault("deploy.rollback_on_failure", defaults.Deploy.RollbackOnFailure)

	// Health defaults
	viper.SetDefault("health.pass_threshold", defaults.Health.PassThreshold)
	viper.SetDefault("health.backend_pass_threshold", defaults.Health.BackendPassThreshold)
	viper.SetDefault("health.check_timeout_seconds", defaults.Health.CheckTimeoutSeconds)

	// Swarm defaults
	viper.SetDefault("swarm.size", defaults.Swarm.Size)
	viper.SetDefault("swarm.min_size", defaults.Swarm.MinSize)
	viper.SetDefault("swarm.max_size", defaults.Swarm.MaxSize)
	viper.SetDefault("swarm.task_timeout_seconds", defaults.Swarm.TaskTimeoutSeconds)
	viper.SetDefault("swarm.suspend_on_teardown", defaults.Swarm.SuspendOnTeardown)

	// Blueprint defaults
	viper.SetDefault("blueprint.name", defaults.Blueprint.Name)
	viper.SetDefault("blueprint.id", defaults.Blueprint.ID)
	viper.SetDefault("blueprint.build_timeout_seconds", defaults.Blueprint.BuildTimeoutSeconds)
	viper.SetDefault("blueprint.build_poll_seconds", defaults.Blueprint.BuildPollSeconds)

	// Cleanup defaults
	viper.SetDefault("cleanup.suspend_running", defaults.Cleanup.SuspendRunning)
	viper.SetDefault("cleanup.delete_suspended", defaults.Cleanup.DeleteSuspended)
	viper.SetDefault("cleanup.max_age_hours", defaults.Cleanup.MaxAgeHours)

	// Store defaults
	viper.SetDefault("store.backend", defaults.Store.Backend)
	viper.SetDefault("store.env_file", defaults.Store.EnvFile)
	viper.SetDefault("store.sqlite_path", defaults.Store.SQLitePath)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Paths defaults
	viper.SetDefault("paths.log_dir", defaults.Paths.LogDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "devboxctl")
	}
	// Fall back to ~/.config/devboxctl
	home, err := os.UserHomeDir()
	if err != nil {
		return ".devboxctl"
	}
	return filepath.Join(home, ".config", "devboxctl")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidStoreBackends returns the list of valid pointer store backends
func ValidStoreBackends() []string {
	return []string{"env", "sqlite", "memory"}
}

// IsValidStoreBackend checks if the given backend is valid
func IsValidStoreBackend(backend string) bool {
	for _, valid := range ValidStoreBackends() {
		if backend == valid {
			return true
		}
	}
	return false
}
