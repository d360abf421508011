// Package cli implements the agentorch command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"agentorch/pkg/logger"
)

// Version is the current version number.
const Version = "0.1.0"

var (
	cfgFile  string
	debug    bool
	quiet    bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "agentorch",
	Short: "Bounded-concurrency iterative agent-task orchestrator",
	Long: `agentorch fans a large batch of independent agent tasks out to a
bounded pool of concurrent dispatchers, repeats the pass for a configured
number of iterations, checkpoints progress and emits a completion report.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch {
		case debug:
			logger.SetLevel(logger.LevelDebug)
		case quiet:
			logger.SetLevel(logger.LevelError)
		case logLevel != "":
			logger.SetLevelFromString(logLevel)
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log errors")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
