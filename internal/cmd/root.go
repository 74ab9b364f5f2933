// Package cmd implements the devboxctl command line interface.
package cmd

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/omniagent/devboxctl/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "devboxctl",
	Short: "Deploy and operate agent devboxes",
	Long: `Devboxctl provisions, health-checks and operates remote devboxes for
agent services: single-instance lifecycle with pointer reuse, retrying
deployments with rollback, and swarm fan-out with consensus collation.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/devboxctl/config.yaml)")
	rootCmd.PersistentFlags().String("role", "backend", "role the command operates on (pointer slot and devbox name suffix)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/devboxctl")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DEVBOXCTL")
	// Replace dots with underscores for nested keys in env vars
	// e.g., DEVBOXCTL_DEPLOY_MAX_RETRIES for deploy.max_retries
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	if err := viper.ReadInConfig(); err == nil {
		// Long-running commands (swarm task, deploy --progress) pick up
		// threshold and budget edits without a restart.
		viper.WatchConfig()
		viper.OnConfigChange(func(e fsnotify.Event) {
			if logger := currentLogger(); logger != nil {
				logger.Info("config file reloaded", "file", e.Name, "op", e.Op.String())
			}
		})
	}
}
