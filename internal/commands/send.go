package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/go-tether/wsbridge"
	"github.com/spf13/cobra"
)

type sendOptions struct {
	server  string
	address string
	timeout time.Duration
}

func NewSendCommand() *cobra.Command {
	opts := sendOptions{}

	sendCmd := &cobra.Command{
		Use:   "send --address addr COMMAND",
		Short: "Sends a command to a device through a running daemon",
		Long: `Sends a command to a device through a running daemon. The command is accepted only while
the session of the device runs; an unsent command is replaced by a newer one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := wsbridge.Dial(ctx, opts.server)
			if err != nil {
				return err
			}
			defer c.Close()

			accepted, err := c.Send(ctx, opts.address, args[0])
			if err != nil {
				return err
			}
			if !accepted {
				return fmt.Errorf("command rejected by %s", opts.address)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "accepted: %s <- %q\n", opts.address, args[0])

			return err
		},
	}

	sendCmd.Flags().StringVarP(&opts.server, "server", "s", "ws://127.0.0.1:9180/ws", "WebSocket URL of the daemon")
	sendCmd.Flags().StringVarP(&opts.address, "address", "a", "", "Address of the device")
	sendCmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "Request timeout")
	_ = sendCmd.MarkFlagRequired("address")

	return sendCmd
}
