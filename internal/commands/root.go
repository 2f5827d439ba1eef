// Package commands implements the tetherd command line.
package commands

import (
	"github.com/arloliu/go-tether/logger"
	"github.com/spf13/cobra"
)

// NewRootCommand returns the tetherd root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "tetherd",
		Short: "Supervises tether devices and bridges their events",
		Long: `tetherd keeps sessions with tether devices over serial or TCP links, exports their
metrics and forwards their events to WebSocket clients and NATS.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("log-level") {
				return nil
			}

			level, err := logger.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logger.SetLevel(level)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	root.AddCommand(
		NewRunCommand(),
		NewSimCommand(),
		NewWatchCommand(),
		NewSendCommand(),
		NewVersionCommand(),
	)

	return root
}
