// ABOUTME: coordinator subcommand
// ABOUTME: Loads configuration and runs the coordinator until interrupted
package main

import (
	"github.com/harperreed/berkeley-go/internal/config"
	"github.com/harperreed/berkeley-go/internal/coordinator"
	"github.com/spf13/cobra"
)

func newCoordinatorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Run the time coordinator",
		Args:  cobra.NoArgs,
		RunE:  runCoordinator,
	}

	d := config.DefaultCoordinator()
	f := cmd.Flags()
	f.Int("port", d.Port, "TCP listen port")
	f.Int("ws-port", d.WSPort, "WebSocket listen port (0 disables)")
	f.String("name", "", "coordinator name (default: hostname-berkeley-coordinator)")
	f.Duration("cycle-period", d.CyclePeriod, "time between synchronization cycles")
	f.Duration("send-timeout", d.SendTimeout, "deadline for each broadcast send")
	f.Int("broadcast-concurrency", d.BroadcastConcurrency, "maximum concurrent broadcast sends")
	f.Bool("mdns", d.MDNS, "advertise via mDNS")
	f.String("metrics-addr", d.MetricsAddr, "serve Prometheus metrics on this address (empty disables)")
	f.Bool("tui", d.TUI, "show the terminal UI")

	return cmd
}

func runCoordinator(cmd *cobra.Command, _ []string) error {
	v, err := loadViper(cmd, config.SetCoordinatorDefaults)
	if err != nil {
		return err
	}
	cfg, err := config.LoadCoordinator(v)
	if err != nil {
		return err
	}
	if cfg.Name == "" {
		cfg.Name = defaultName("coordinator")
	}

	logger, closer := setupLogging(cmd, cfg.Logging, cfg.TUI)
	defer closer.Close()

	logger.Info("starting coordinator", "name", cfg.Name, "port", cfg.Port, "logFile", cfg.Logging.File)

	c := coordinator.New(coordinator.Config{
		ListenAddr:           cfg.ListenAddr(),
		WebSocketAddr:        cfg.WebSocketAddr(),
		MetricsAddr:          cfg.MetricsAddr,
		Name:                 cfg.Name,
		CyclePeriod:          cfg.CyclePeriod,
		SendTimeout:          cfg.SendTimeout,
		BroadcastConcurrency: cfg.BroadcastConcurrency,
		EnableMDNS:           cfg.MDNS,
		UseTUI:               cfg.TUI,
		Logger:               logger,
	})

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if err := c.Start(ctx); err != nil {
		logger.Error(err, "coordinator failed")
		return err
	}

	logger.Info("coordinator stopped")
	return nil
}
