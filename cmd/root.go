// Package cmd is the buildchat command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xiaoyuanzhu-com/buildchat/config"
	"github.com/xiaoyuanzhu-com/buildchat/log"
)

var (
	logLevel string
	apiURL   string
	version  string = "dev"
	commit   string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "buildchat",
	Short: "Chat with an AI app builder from the terminal",
	Long: `buildchat keeps a project session in sync with the build service.

It shows the sandbox status, streams the assistant's replies and only sends
your messages when the sandbox is ready for them.

Quick Start:
  buildchat serve                 # Run the mock build service locally
  buildchat login --username ada  # Store a session token
  buildchat chat                  # Start a new project session
  buildchat chat 12               # Resume session 12`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logLevel != "" {
			log.SetLevel(logLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cfg := config.Get()
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", cfg.APIURL, "Base URL of the build service")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
