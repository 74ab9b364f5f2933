package config

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "deploy.max_retries")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// namePrefixRegex validates devbox name prefix characters.
// Prefixes should start with alphanumeric and can contain alphanumeric, hyphen, underscore.
var namePrefixRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// envVarNameRegex validates environment variable names
var envVarNameRegex = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Provider config
	errors = append(errors, c.validateProvider()...)

	// Validate Devbox config
	errors = append(errors, c.validateDevbox()...)

	// Validate Deploy config
	errors = append(errors, c.validateDeploy()...)

	// Validate Health config
	errors = append(errors, c.validateHealth()...)

	// Validate Swarm config
	errors = append(errors, c.validateSwarm()...)

	// Validate Blueprint config
	errors = append(errors, c.validateBlueprint()...)

	// Validate Cleanup config
	errors = append(errors, c.validateCleanup()...)

	// Validate Store config
	errors = append(errors, c.validateStore()...)

	// Validate Logging config
	errors = append(errors, c.validateLogging()...)

	// Validate Paths config
	errors = append(errors, c.validatePaths()...)

	return errors
}

// validateProvider validates the ProviderConfig
func (c *Config) validateProvider() []ValidationError {
	var errors []ValidationError

	if c.Provider.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "provider.base_url",
			Value:   c.Provider.BaseURL,
			Message: "cannot be empty",
		})
	} else {
		u, err := url.Parse(c.Provider.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "provider.base_url",
				Value:   c.Provider.BaseURL,
				Message: "must be a valid http(s) URL",
			})
		}
	}

	if c.Provider.APIKeyEnv == "" {
		errors = append(errors, ValidationError{
			Field:   "provider.api_key_env",
			Value:   c.Provider.APIKeyEnv,
			Message: "cannot be empty",
		})
	} else if !envVarNameRegex.MatchString(c.Provider.APIKeyEnv) {
		errors = append(errors, ValidationError{
			Field:   "provider.api_key_env",
			Value:   c.Provider.APIKeyEnv,
			Message: "must be a valid environment variable name (uppercase letters, digits, underscores)",
		})
	}

	if c.Provider.RequestTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "provider.request_timeout_seconds",
			Value:   c.Provider.RequestTimeoutSeconds,
			Message: "must be positive",
		})
	}

	if c.Provider.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "provider.max_retries",
			Value:   c.Provider.MaxRetries,
			Message: "must be non-negative (0 disables retries)",
		})
	}

	return errors
}

// validateDevbox validates the DevboxConfig
func (c *Config) validateDevbox() []ValidationError {
	var errors []ValidationError

	if c.Devbox.Domain == "" {
		errors = append(errors, ValidationError{
			Field:   "devbox.domain",
			Value:   c.Devbox.Domain,
			Message: "cannot be empty",
		})
	}

	if c.Devbox.Port < 1 || c.Devbox.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "devbox.port",
			Value:   c.Devbox.Port,
			Message: "must be between 1 and 65535",
		})
	}

	if c.Devbox.NamePrefix == "" {
		errors = append(errors, ValidationError{
			Field:   "devbox.name_prefix",
			Value:   c.Devbox.NamePrefix,
			Message: "cannot be empty",
		})
	} else if !namePrefixRegex.MatchString(c.Devbox.NamePrefix) {
		errors = append(errors, ValidationError{
			Field:   "devbox.name_prefix",
			Value:   c.Devbox.NamePrefix,
			Message: "must start with a letter and contain only alphanumeric characters, hyphens, or underscores",
		})
	}

	const maxNamePrefixLength = 50
	if len(c.Devbox.NamePrefix) > maxNamePrefixLength {
		errors = append(errors, ValidationError{
			Field:   "devbox.name_prefix",
			Value:   c.Devbox.NamePrefix,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", maxNamePrefixLength),
		})
	}

	if c.Devbox.ReadyTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "devbox.ready_timeout_seconds",
			Value:   c.Devbox.ReadyTimeoutSeconds,
			Message: "must be positive",
		})
	}

	if c.Devbox.ReadyPollSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "devbox.ready_poll_seconds",
			Value:   c.Devbox.ReadyPollSeconds,
			Message: "must be positive",
		})
	} else if c.Devbox.ReadyTimeoutSeconds > 0 && c.Devbox.ReadyPollSeconds > c.Devbox.ReadyTimeoutSeconds {
		errors = append(errors, ValidationError{
			Field:   "devbox.ready_poll_seconds",
			Value:   c.Devbox.ReadyPollSeconds,
			Message: fmt.Sprintf("should not exceed ready_timeout_seconds (%d)", c.Devbox.ReadyTimeoutSeconds),
		})
	}

	return errors
}

// validateDeploy validates the DeployConfig
func (c *Config) validateDeploy() []ValidationError {
	var errors []ValidationError

	const maxDeployRetries = 10
	if c.Deploy.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "deploy.max_retries",
			Value:   c.Deploy.MaxRetries,
			Message: "must be non-negative (0 disables retries)",
		})
	}
	if c.Deploy.MaxRetries > maxDeployRetries {
		errors = append(errors, ValidationError{
			Field:   "deploy.max_retries",
			Value:   c.Deploy.MaxRetries,
			Message: fmt.Sprintf("exceeds maximum of %d", maxDeployRetries),
		})
	}

	if c.Deploy.ReadyTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "deploy.ready_timeout_seconds",
			Value:   c.Deploy.ReadyTimeoutSeconds,
			Message: "must be positive",
		})
	}

	if c.Deploy.ReadyPollSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "deploy.ready_poll_seconds",
			Value:   c.Deploy.ReadyPollSeconds,
			Message: "must be positive",
		})
	} else if c.Deploy.ReadyTimeoutSeconds > 0 && c.Deploy.ReadyPollSeconds > c.Deploy.ReadyTimeoutSeconds {
		errors = append(errors, ValidationError{
			Field:   "deploy.ready_poll_seconds",
			Value:   c.Deploy.ReadyPollSeconds,
			Message: fmt.Sprintf("should not exceed ready_timeout_seconds (%d)", c.Deploy.ReadyTimeoutSeconds),
		})
	}

	// TargetSeconds is a soft warning threshold; 0 disables the warning
	if c.Deploy.TargetSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "deploy.target_seconds",
			Value:   c.Deploy.TargetSeconds,
			Message: "must be non-negative (0 disables target warning)",
		})
	}

	return errors
}

// validateHealth validates the HealthConfig
func (c *Config) validateHealth() []ValidationError {
	var errors []ValidationError

	if c.Health.PassThreshold < 0 || c.Health.PassThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "health.pass_threshold",
			Value:   c.Health.PassThreshold,
			Message: "must be between 0.0 and 1.0",
		})
	}

	if c.Health.BackendPassThreshold < 0 || c.Health.BackendPassThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "health.backend_pass_threshold",
			Value:   c.Health.BackendPassThreshold,
			Message: "must be between 0.0 and 1.0",
		})
	}

	if c.Health.CheckTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "health.check_timeout_seconds",
			Value:   c.Health.CheckTimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

// validateSwarm validates the SwarmConfig
func (c *Config) validateSwarm() []ValidationError {
	var errors []ValidationError

	if c.Swarm.MinSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "swarm.min_size",
			Value:   c.Swarm.MinSize,
			Message: "must be at least 1",
		})
	}

	const maxSwarmSize = 20
	if c.Swarm.MaxSize > maxSwarmSize {
		errors = append(errors, ValidationError{
			Field:   "swarm.max_size",
			Value:   c.Swarm.MaxSize,
			Message: fmt.Sprintf("exceeds maximum of %d", maxSwarmSize),
		})
	}

	if c.Swarm.MinSize > 0 && c.Swarm.MaxSize > 0 && c.Swarm.MinSize > c.Swarm.MaxSize {
		errors = append(errors, ValidationError{
			Field:   "swarm.min_size",
			Value:   c.Swarm.MinSize,
			Message: fmt.Sprintf("cannot exceed max_size (%d)", c.Swarm.MaxSize),
		})
	}

	// Size is clamped at runtime, so out-of-range values are not errors here,
	// but negative sizes are never meaningful.
	if c.Swarm.Size < 0 {
		errors = append(errors, ValidationError{
			Field:   "swarm.size",
			Value:   c.Swarm.Size,
			Message: "must be non-negative",
		})
	}

	if c.Swarm.TaskTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "swarm.task_timeout_seconds",
			Value:   c.Swarm.TaskTimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

// validateBlueprint validates the BlueprintConfig
func (c *Config) validateBlueprint() []ValidationError {
	var errors []ValidationError

	if c.Blueprint.BuildTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "blueprint.build_timeout_seconds",
			Value:   c.Blueprint.BuildTimeoutSeconds,
			Message: "must be positive",
		})
	}

	if c.Blueprint.BuildPollSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "blueprint.build_poll_seconds",
			Value:   c.Blueprint.BuildPollSeconds,
			Message: "must be positive",
		})
	} else if c.Blueprint.BuildTimeoutSeconds > 0 && c.Blueprint.BuildPollSeconds > c.Blueprint.BuildTimeoutSeconds {
		errors = append(errors, ValidationError{
			Field:   "blueprint.build_poll_seconds",
			Value:   c.Blueprint.BuildPollSeconds,
			Message: fmt.Sprintf("should not exceed build_timeout_seconds (%d)", c.Blueprint.BuildTimeoutSeconds),
		})
	}

	return errors
}

// validateCleanup validates the CleanupConfig
func (c *Config) validateCleanup() []ValidationError {
	var errors []ValidationError

	if c.Cleanup.MaxAgeHours < 0 {
		errors = append(errors, ValidationError{
			Field:   "cleanup.max_age_hours",
			Value:   c.Cleanup.MaxAgeHours,
			Message: "must be non-negative (0 disables age filter)",
		})
	}

	return errors
}

// validateStore validates the StoreConfig
func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	if c.Store.Backend != "" && !IsValidStoreBackend(c.Store.Backend) {
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Value:   c.Store.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStoreBackends(), ", ")),
		})
	}

	if c.Store.Backend == "env" && c.Store.EnvFile == "" {
		errors = append(errors, ValidationError{
			Field:   "store.env_file",
			Value:   c.Store.EnvFile,
			Message: "cannot be empty when backend is 'env'",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validatePaths validates the PathsConfig
func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	// LogDir validation - if set, check for invalid characters
	if c.Paths.LogDir != "" {
		path := c.Paths.LogDir

		// Check for null bytes which are invalid in paths
		if strings.ContainsRune(path, '\x00') {
			errors = append(errors, ValidationError{
				Field:   "paths.log_dir",
				Value:   path,
				Message: "path contains invalid null character",
			})
		}

		// Reasonable path length limit (most filesystems have limits around 4096)
		const maxPathLength = 4096
		if len(path) > maxPathLength {
			errors = append(errors, ValidationError{
				Field:   "paths.log_dir",
				Value:   path,
				Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
			})
		}
	}

	return errors
}
