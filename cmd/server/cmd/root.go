package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	logLevel  string
	logFormat string

	rootCmd = newRootCommand()
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "server",
		Short: "Gatherings server - event lifecycle and participation admission",
		Long: `Gatherings server hosts community events: organizers draft and publish
events, moderators review them, and participants request a place.

The server supports:
- Event drafting, moderation and publication
- Participation requests with capacity limits and organizer approval
- A public catalogue with view statistics from an external stats service
- PostgreSQL storage with an in-memory driver for development`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console) (default: json)")

	serve := newServeCommand()
	root.AddCommand(serve)
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newVersionCommand())
	root.AddCommand(newHealthcheckCommand())

	// Run the serve command by default if no subcommand is specified
	root.RunE = func(cmd *cobra.Command, args []string) error {
		return serve.RunE(cmd, args)
	}
	return root
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
