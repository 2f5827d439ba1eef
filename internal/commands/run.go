package commands

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/arloliu/go-tether/config"
	"github.com/arloliu/go-tether/logger"
	"github.com/arloliu/go-tether/metrics"
	"github.com/arloliu/go-tether/natsbridge"
	"github.com/arloliu/go-tether/tether"
	"github.com/arloliu/go-tether/wsbridge"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func NewRunCommand() *cobra.Command {
	var configPath string

	runCmd := &cobra.Command{
		Use:   "run --config tetherd.yaml",
		Short: "Runs the daemon",
		Long: `Runs the daemon: creates a session for every configured device, starts the autostart
devices and serves /metrics, /ws and /healthz until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("log-level") {
				logger.SetLevel(cfg.Level())
			}

			return runDaemon(cmd.Context(), cfg, logger.GetLogger())
		},
	}

	runCmd.Flags().StringVarP(&configPath, "config", "c", "tetherd.yaml", "Path of the configuration file")

	return runCmd
}

func runDaemon(ctx context.Context, cfg *config.Config, l logger.Logger) error {
	sessionCfg, err := tether.NewSessionConfig(append(cfg.SessionOptions(), tether.WithLogger(l))...)
	if err != nil {
		return err
	}

	// the hub sends commands through the manager; it is created once the manager exists
	var hub *wsbridge.Hub
	handlers := []tether.EventHandler{func(address string, ev tether.Event) { hub.Handle(address, ev) }}

	if cfg.NATS.URL != "" {
		nc, err := natsbridge.Connect(cfg.NATS.URL, "tetherd", l.With("component", "natsbridge"))
		if err != nil {
			return err
		}
		defer nc.Close()

		bridge := natsbridge.New(nc, cfg.NATS.SubjectPrefix, l.With("component", "natsbridge"))
		handlers = append(handlers, bridge.Handle)
	}

	mgr, err := tether.NewManager(ctx, cfg.TransportFactory(l),
		tether.WithSessionConfig(sessionCfg),
		tether.WithEventHandler(handlers...),
		tether.WithManagerLogger(l),
	)
	if err != nil {
		return err
	}
	defer mgr.Close()

	hub = wsbridge.NewHub(mgr, l.With("component", "wsbridge"))
	defer hub.Close()

	for _, dev := range cfg.Devices {
		if _, err := mgr.Create(dev.Address); err != nil {
			return err
		}
	}
	for _, addr := range cfg.Autostart() {
		if err := mgr.Start(addr); err != nil {
			return err
		}
		l.Info("device started", "address", addr)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           newHTTPHandler(mgr, hub, metrics.NewRegistry(mgr)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.HTTP.Listen)
	if err != nil {
		return err
	}
	l.Info("http server listening", "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		l.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.Close()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// SessionStatus is an entry of the /healthz response.
type SessionStatus struct {
	Address   string           `json:"address"`
	State     string           `json:"state"`
	Running   bool             `json:"running"`
	Position  *tether.Position `json:"position,omitempty"`
	Connects  uint64           `json:"connects"`
	FrameRecv uint64           `json:"frames_received"`
}

func newHTTPHandler(mgr *tether.Manager, hub *wsbridge.Hub, reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/ws", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		statuses := make([]SessionStatus, 0)
		for _, addr := range mgr.Addresses() {
			s, ok := mgr.Get(addr)
			if !ok {
				continue
			}

			st := SessionStatus{
				Address:   addr,
				State:     s.State().String(),
				Running:   s.IsRunning(),
				Connects:  s.Metrics().ConnectCount.Load(),
				FrameRecv: s.Metrics().FrameRecvCount.Load(),
			}
			if pos, ok := s.Position(); ok {
				st.Position = &pos
			}
			statuses = append(statuses, st)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"sessions": statuses,
		})
	})

	return mux
}
