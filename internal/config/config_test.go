package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default provider config
	if cfg.Provider.BaseURL != "https://api.runloop.ai/v1" {
		t.Errorf("Provider.BaseURL = %q, want %q", cfg.Provider.BaseURL, "https://api.runloop.ai/v1")
	}
	if cfg.Provider.APIKeyEnv != "RUNLOOP_API_KEY" {
		t.Errorf("Provider.APIKeyEnv = %q, want %q", cfg.Provider.APIKeyEnv, "RUNLOOP_API_KEY")
	}

	// Verify default devbox config
	if cfg.Devbox.Domain != "runloop.dev" {
		t.Errorf("Devbox.Domain = %q, want %q", cfg.Devbox.Domain, "runloop.dev")
	}
	if cfg.Devbox.Port != 8000 {
		t.Errorf("Devbox.Port = %d, want 8000", cfg.Devbox.Port)
	}

	// Verify default deploy config
	if cfg.Deploy.MaxRetries != 1 {
		t.Errorf("Deploy.MaxRetries = %d, want 1", cfg.Deploy.MaxRetries)
	}
	if cfg.Deploy.ReadyTimeoutSeconds != 300 {
		t.Errorf("Deploy.ReadyTimeoutSeconds = %d, want 300", cfg.Deploy.ReadyTimeoutSeconds)
	}
	if cfg.Deploy.ReadyPollSeconds != 5 {
		t.Errorf("Deploy.ReadyPollSeconds = %d, want 5", cfg.Deploy.ReadyPollSeconds)
	}
	if cfg.Deploy.TargetSeconds != 30 {
		t.Errorf("Deploy.TargetSeconds = %d, want 30", cfg.Deploy.TargetSeconds)
	}
	if !cfg.Deploy.RollbackOnFailure {
		t.Error("Deploy.RollbackOnFailure should be true by default")
	}

	// Verify default health config
	if cfg.Health.PassThreshold != 0.8 {
		t.Errorf("Health.PassThreshold = %f, want 0.8", cfg.Health.PassThreshold)
	}
	if cfg.Health.BackendPassThreshold != 1.0 {
		t.Errorf("Health.BackendPassThreshold = %f, want 1.0", cfg.Health.BackendPassThreshold)
	}

	// Verify default swarm config
	if cfg.Swarm.Size != 3 {
		t.Errorf("Swarm.Size = %d, want 3", cfg.Swarm.Size)
	}
	if cfg.Swarm.MinSize != 2 {
		t.Errorf("Swarm.MinSize = %d, want 2", cfg.Swarm.MinSize)
	}
	if cfg.Swarm.MaxSize != 7 {
		t.Errorf("Swarm.MaxSize = %d, want 7", cfg.Swarm.MaxSize)
	}
	if cfg.Swarm.TaskTimeoutSeconds != 60 {
		t.Errorf("Swarm.TaskTimeoutSeconds = %d, want 60", cfg.Swarm.TaskTimeoutSeconds)
	}
	if !cfg.Swarm.SuspendOnTeardown {
		t.Error("Swarm.SuspendOnTeardown should be true by default")
	}

	// Verify default blueprint config
	if cfg.Blueprint.BuildTimeoutSeconds != 600 {
		t.Errorf("Blueprint.BuildTimeoutSeconds = %d, want 600", cfg.Blueprint.BuildTimeoutSeconds)
	}
	if cfg.Blueprint.BuildPollSeconds != 10 {
		t.Errorf("Blueprint.BuildPollSeconds = %d, want 10", cfg.Blueprint.BuildPollSeconds)
	}

	// Verify default store config
	if cfg.Store.Backend != "env" {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, "env")
	}
	if cfg.Store.EnvFile != ".env" {
		t.Errorf("Store.EnvFile = %q, want %q", cfg.Store.EnvFile, ".env")
	}
}

func TestDurationHelpers(t *testing.T) {
	tests := []struct {
		name     string
		got      time.Duration
		expected time.Duration
	}{
		{"provider request timeout", (&ProviderConfig{RequestTimeoutSeconds: 120}).RequestTimeout(), 120 * time.Second},
		{"devbox ready timeout", (&DevboxConfig{ReadyTimeoutSeconds: 120}).ReadyTimeout(), 2 * time.Minute},
		{"devbox ready poll", (&DevboxConfig{ReadyPollSeconds: 5}).ReadyPoll(), 5 * time.Second},
		{"deploy ready timeout", (&DeployConfig{ReadyTimeoutSeconds: 300}).ReadyTimeout(), 5 * time.Minute},
		{"deploy target", (&DeployConfig{TargetSeconds: 30}).Target(), 30 * time.Second},
		{"health check timeout", (&HealthConfig{CheckTimeoutSeconds: 30}).CheckTimeout(), 30 * time.Second},
		{"swarm task timeout", (&SwarmConfig{TaskTimeoutSeconds: 60}).TaskTimeout(), time.Minute},
		{"blueprint build timeout", (&BlueprintConfig{BuildTimeoutSeconds: 600}).BuildTimeout(), 10 * time.Minute},
		{"blueprint build poll", (&BlueprintConfig{BuildPollSeconds: 10}).BuildPoll(), 10 * time.Second},
		{"cleanup max age", (&CleanupConfig{MaxAgeHours: 24}).MaxAge(), 24 * time.Hour},
		{"cleanup max age disabled", (&CleanupConfig{MaxAgeHours: 0}).MaxAge(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %v, want %v", tt.got, tt.expected)
			}
		})
	}
}

func TestValidStoreBackends(t *testing.T) {
	backends := ValidStoreBackends()

	expected := []string{"env", "sqlite", "memory"}
	if len(backends) != len(expected) {
		t.Errorf("ValidStoreBackends() length = %d, want %d", len(backends), len(expected))
	}

	for i, backend := range expected {
		if backends[i] != backend {
			t.Errorf("ValidStoreBackends()[%d] = %q, want %q", i, backends[i], backend)
		}
	}
}

func TestIsValidStoreBackend(t *testing.T) {
	tests := []struct {
		backend string
		valid   bool
	}{
		{"env", true},
		{"sqlite", true},
		{"memory", true},
		{"invalid", false},
		{"", false},
		{"ENV", false}, // Case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			result := IsValidStoreBackend(tt.backend)
			if result != tt.valid {
				t.Errorf("IsValidStoreBackend(%q) = %v, want %v", tt.backend, result, tt.valid)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	// Test with XDG_CONFIG_HOME set
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		original := os.Getenv("XDG_CONFIG_HOME")
		defer func() { _ = os.Setenv("XDG_CONFIG_HOME", original) }()

		_ = os.Setenv("XDG_CONFIG_HOME", "/custom/config")
		result := ConfigDir()
		expected := "/custom/config/devboxctl"
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})

	// Test without XDG_CONFIG_HOME
	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		original := os.Getenv("XDG_CONFIG_HOME")
		defer func() { _ = os.Setenv("XDG_CONFIG_HOME", original) }()

		_ = os.Setenv("XDG_CONFIG_HOME", "")
		result := ConfigDir()

		// Should be based on home directory
		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "devboxctl")
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	original := os.Getenv("XDG_CONFIG_HOME")
	defer func() { _ = os.Setenv("XDG_CONFIG_HOME", original) }()

	_ = os.Setenv("XDG_CONFIG_HOME", "/custom/config")
	result := ConfigFile()
	expected := "/custom/config/devboxctl/config.yaml"
	if result != expected {
		t.Errorf("ConfigFile() = %q, want %q", result, expected)
	}
}

func TestGet(t *testing.T) {
	// Set defaults in viper first (normally done by cmd init)
	SetDefaults()

	// Get() should return defaults when no config file exists
	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}

	// Should have default values
	if cfg.Deploy.MaxRetries != 1 {
		t.Errorf("Get().Deploy.MaxRetries = %d, want 1", cfg.Deploy.MaxRetries)
	}
	if cfg.Store.Backend != "env" {
		t.Errorf("Get().Store.Backend = %q, want %q", cfg.Store.Backend, "env")
	}
}

func TestStoreConfig_ResolveSQLitePath(t *testing.T) {
	original := os.Getenv("XDG_CONFIG_HOME")
	defer func() { _ = os.Setenv("XDG_CONFIG_HOME", original) }()
	_ = os.Setenv("XDG_CONFIG_HOME", "/custom/config")

	t.Run("empty uses config dir default", func(t *testing.T) {
		cfg := StoreConfig{SQLitePath: ""}
		expected := "/custom/config/devboxctl/devboxctl.db"
		if got := cfg.ResolveSQLitePath(); got != expected {
			t.Errorf("ResolveSQLitePath() = %q, want %q", got, expected)
		}
	})

	t.Run("explicit path is returned as-is", func(t *testing.T) {
		cfg := StoreConfig{SQLitePath: "/data/pointers.db"}
		if got := cfg.ResolveSQLitePath(); got != "/data/pointers.db" {
			t.Errorf("ResolveSQLitePath() = %q, want %q", got, "/data/pointers.db")
		}
	})
}

func TestPathsConfig_ResolveLogDir(t *testing.T) {
	original := os.Getenv("XDG_CONFIG_HOME")
	defer func() { _ = os.Setenv("XDG_CONFIG_HOME", original) }()
	_ = os.Setenv("XDG_CONFIG_HOME", "/custom/config")

	t.Run("empty uses config dir default", func(t *testing.T) {
		p := PathsConfig{LogDir: ""}
		expected := "/custom/config/devboxctl/logs"
		if got := p.ResolveLogDir(); got != expected {
			t.Errorf("ResolveLogDir() = %q, want %q", got, expected)
		}
	})

	t.Run("tilde expands to home", func(t *testing.T) {
		p := PathsConfig{LogDir: "~/logs"}
		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, "logs")
		if got := p.ResolveLogDir(); got != expected {
			t.Errorf("ResolveLogDir() = %q, want %q", got, expected)
		}
	})

	t.Run("explicit path is returned as-is", func(t *testing.T) {
		p := PathsConfig{LogDir: "/var/log/devboxctl"}
		if got := p.ResolveLogDir(); got != "/var/log/devboxctl" {
			t.Errorf("ResolveLogDir() = %q, want %q", got, "/var/log/devboxctl")
		}
	})
}

func TestConfig_SwarmConfig_Values(t *testing.T) {
	cfg := Default()

	// Nominal size must sit inside the clamp bounds
	if cfg.Swarm.Size < cfg.Swarm.MinSize || cfg.Swarm.Size > cfg.Swarm.MaxSize {
		t.Errorf("Swarm.Size (%d) should be within [%d, %d]",
			cfg.Swarm.Size, cfg.Swarm.MinSize, cfg.Swarm.MaxSize)
	}
}

func TestConfig_HealthConfig_Values(t *testing.T) {
	cfg := Default()

	// Thresholds must be valid pass rates
	if cfg.Health.PassThreshold < 0 || cfg.Health.PassThreshold > 1 {
		t.Errorf("Health.PassThreshold should be in [0, 1], got %f", cfg.Health.PassThreshold)
	}
	if cfg.Health.BackendPassThreshold < 0 || cfg.Health.BackendPassThreshold > 1 {
		t.Errorf("Health.BackendPassThreshold should be in [0, 1], got %f", cfg.Health.BackendPassThreshold)
	}

	// Backend gate is at least as strict as the general gate
	if cfg.Health.BackendPassThreshold < cfg.Health.PassThreshold {
		t.Errorf("Health.BackendPassThreshold (%f) should be >= PassThreshold (%f)",
			cfg.Health.BackendPassThreshold, cfg.Health.PassThreshold)
	}
}

func TestDefault_PassesValidation(t *testing.T) {
	cfg := Default()

	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("Default() should pass validation, got %d errors: %v", len(errs), ValidationErrors(errs))
	}
}
