package commands

import (
	"net"
	"time"

	"github.com/arloliu/go-tether/devicesim"
	"github.com/arloliu/go-tether/logger"
	"github.com/spf13/cobra"
)

type simOptions struct {
	listen   string
	interval time.Duration
	jitter   int32
	position []int32
}

func NewSimCommand() *cobra.Command {
	opts := simOptions{}

	simCmd := &cobra.Command{
		Use:   "sim [--listen addr]",
		Short: "Runs a device simulator on TCP",
		Long: `Runs a device simulator accepting TCP connections. The simulator streams POS frames,
answers commands with AOK or ERROR frames and stops when interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l := logger.GetLogger().With("component", "devicesim")

			sim := devicesim.New(
				devicesim.WithInterval(opts.interval),
				devicesim.WithJitter(opts.jitter),
				devicesim.WithLogger(l),
			)
			if len(opts.position) == 3 {
				sim.SetPosition(opts.position[0], opts.position[1], opts.position[2])
			}

			ln, err := net.Listen("tcp", opts.listen)
			if err != nil {
				return err
			}
			l.Info("simulator listening", "addr", ln.Addr().String())

			return sim.ServeListener(cmd.Context(), ln)
		},
	}

	simCmd.Flags().StringVarP(&opts.listen, "listen", "l", ":7000", "TCP address to listen on")
	simCmd.Flags().DurationVar(&opts.interval, "interval", devicesim.DefaultInterval, "Period of POS frames, 0 disables them")
	simCmd.Flags().Int32Var(&opts.jitter, "jitter", 0, "Random walk of the position per frame, in tenths of a millimeter")
	simCmd.Flags().Int32SliceVar(&opts.position, "position", nil, "Initial position x,y,z in tenths of a millimeter")

	return simCmd
}
