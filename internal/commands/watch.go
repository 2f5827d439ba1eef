package commands

import (
	"fmt"

	"github.com/arloliu/go-tether/wsbridge"
	"github.com/spf13/cobra"
)

type watchOptions struct {
	server  string
	address string
	count   int
}

func NewWatchCommand() *cobra.Command {
	opts := watchOptions{}

	watchCmd := &cobra.Command{
		Use:   "watch [--server url] [--address addr]",
		Short: "Prints the events forwarded by a running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			c, err := wsbridge.Dial(ctx, opts.server)
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			printed := 0
			for {
				select {
				case <-ctx.Done():
					return nil

				case ev, ok := <-c.Events():
					if !ok {
						return c.Err()
					}
					if opts.address != "" && ev.Address != opts.address {
						continue
					}

					if _, err := fmt.Fprintf(out, "%s\t%s\t%s\n", ev.Address, ev.Event.Type(), ev.Event); err != nil {
						return err
					}

					printed++
					if opts.count > 0 && printed >= opts.count {
						return nil
					}
				}
			}
		},
	}

	watchCmd.Flags().StringVarP(&opts.server, "server", "s", "ws://127.0.0.1:9180/ws", "WebSocket URL of the daemon")
	watchCmd.Flags().StringVarP(&opts.address, "address", "a", "", "Only print events of this device")
	watchCmd.Flags().IntVarP(&opts.count, "count", "n", 0, "Exit after printing this many events")

	return watchCmd
}
