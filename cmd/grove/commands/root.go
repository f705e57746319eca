package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const defaultRedisURL = "redis://localhost:6379/0"

var (
	version string
	commit  string
	date    string

	configPath string
	redisURL   string
	agentName  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "grove",
	Short: "Grove - behavior tree agents backed by Redis",
	Long: `Grove loads behavior trees and blackboards from grove.yml, runs them
locally or as long-lived agents, and mirrors agent state to Redis so it can
be watched, inspected and messaged from the command line.`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	// e.g., "grove --ticks 5" instead of "grove run --ticks 5"
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	defaultRedis := os.Getenv("GROVE_REDIS_URL")
	if defaultRedis == "" {
		defaultRedis = defaultRedisURL
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "file", "f", "grove.yml", "Path to the tree definitions")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", defaultRedis, "Redis URL (defaults to $GROVE_REDIS_URL)")
	rootCmd.PersistentFlags().StringVarP(&agentName, "agent", "a", os.Getenv("GROVE_AGENT_NAME"), "Target agent name (defaults to $GROVE_AGENT_NAME)")
}
