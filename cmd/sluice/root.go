package main

import (
	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"github.com/sluice-dl/sluice/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the sluice CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sluice",
		Short: "sluice - plugin-driven media extraction",
		Long: `sluice extracts media metadata and formats from URLs. Per-site
extraction logic lives in Lua plugin modules discovered across the
configured search locations, including plugin archives.`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	cmd.PersistentFlags().String("log-format", "json", "log format (json or text)")

	// Add subcommands
	cmd.AddCommand(NewPluginsCmd())
	cmd.AddCommand(NewFormatsCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("sluice %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// loadConfig builds the effective configuration for the executing command.
// cmd.Flags() carries the inherited persistent flags at run time, so changed
// flags override file values.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configFile, cmd.Flags())
}

// hostVersion returns the build version when it parses as semver, else ""
// so development builds skip plugin version gating.
func hostVersion() string {
	if _, err := semver.NewVersion(version); err != nil {
		return ""
	}
	return version
}
