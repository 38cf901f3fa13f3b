// ABOUTME: participant subcommand
// ABOUTME: Finds the coordinator, then reports and applies corrections until interrupted
package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-logr/logr"
	"github.com/harperreed/berkeley-go/internal/config"
	"github.com/harperreed/berkeley-go/internal/discovery"
	"github.com/harperreed/berkeley-go/internal/participant"
	"github.com/harperreed/berkeley-go/internal/ui"
	"github.com/spf13/cobra"
)

func newParticipantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "participant",
		Short: "Run a participant that follows the coordinator's time",
		Args:  cobra.NoArgs,
		RunE:  runParticipant,
	}

	d := config.DefaultParticipant()
	f := cmd.Flags()
	f.String("coordinator", d.Coordinator, "coordinator address host:port (empty discovers via mDNS)")
	f.String("transport", d.Transport, "transport to the coordinator: tcp or ws")
	f.String("name", "", "participant name (default: hostname-berkeley-participant)")
	f.Duration("report-period", d.ReportPeriod, "time between clock reports")
	f.Duration("connect-timeout", d.ConnectTimeout, "deadline for connecting to the coordinator")
	f.Duration("cycle-period", d.CyclePeriod, "coordinator's cycle period, used to judge sync quality")
	f.Duration("discover-timeout", d.DiscoverTimeout, "how long to browse mDNS for a coordinator")
	f.Bool("tui", d.TUI, "show the terminal UI")

	return cmd
}

func runParticipant(cmd *cobra.Command, _ []string) error {
	v, err := loadViper(cmd, config.SetParticipantDefaults)
	if err != nil {
		return err
	}
	cfg, err := config.LoadParticipant(v)
	if err != nil {
		return err
	}
	if cfg.Name == "" {
		cfg.Name = defaultName("participant")
	}

	logger, closer := setupLogging(cmd, cfg.Logging, cfg.TUI)
	defer closer.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	addr, kind := cfg.Coordinator, cfg.Transport
	if addr == "" {
		addr, kind, err = discoverCoordinator(ctx, cfg, logger)
		if err != nil {
			return err
		}
	}

	var (
		tuiProg *tea.Program
		ctrl    *ui.Control
	)
	updateTUI := func(msg ui.StatusMsg) {
		if tuiProg != nil {
			tuiProg.Send(msg)
		}
	}

	p := participant.New(participant.Config{
		CoordinatorAddr: addr,
		Transport:       kind,
		Name:            cfg.Name,
		ReportPeriod:    cfg.ReportPeriod,
		ConnectTimeout:  cfg.ConnectTimeout,
		CyclePeriod:     cfg.CyclePeriod,
		Logger:          logger,
		OnStateChange: func(s participant.State) {
			updateTUI(ui.StatusMsg{State: s.String(), Coordinator: addr})
		},
	})

	if cfg.TUI {
		ctrl = ui.NewControl()
		tuiProg = ui.Run(cfg.Name, p, ctrl)
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				logger.Error(err, "tui failed")
			}
		}()
		defer tuiProg.Quit()
	}

	if err := p.Connect(ctx); err != nil {
		logger.Error(err, "cannot reach coordinator")
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()

	if tuiProg != nil {
		go statsUpdateLoop(ctx, p, updateTUI)
	}

	var quit <-chan struct{}
	if ctrl != nil {
		quit = ctrl.Quit
	}

	select {
	case err := <-done:
		return err
	case <-quit:
		logger.Info("received quit signal from TUI")
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	if err := p.Close(); err != nil {
		logger.Error(err, "error closing participant")
	}
	return <-done
}

func discoverCoordinator(ctx context.Context, cfg *config.ParticipantConfig, logger logr.Logger) (string, string, error) {
	logger.Info("starting coordinator discovery", "timeout", cfg.DiscoverTimeout)

	mgr := discovery.NewManager(discovery.Config{ServiceName: cfg.Name, Logger: logger})
	defer mgr.Stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.DiscoverTimeout)
	defer cancel()

	info, err := mgr.WaitForCoordinator(ctx)
	if err != nil {
		return "", "", fmt.Errorf("no coordinator found after %v: %w", cfg.DiscoverTimeout, err)
	}

	logger.Info("discovered coordinator", "name", info.Name, "addr", info.Addr(), "transport", info.Transport)
	return info.Addr(), info.Transport, nil
}

// statsUpdateLoop periodically updates the TUI with participant statistics
func statsUpdateLoop(ctx context.Context, p *participant.Participant, updateTUI func(ui.StatusMsg)) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := p.Stats()
			updateTUI(ui.StatusMsg{
				State:         stats.State.String(),
				Skew:          stats.Skew,
				LastCorrected: stats.LastCorrected,
				SyncQuality:   stats.Quality,
				Corrections:   stats.Corrections,
				Reports:       stats.Reports,
				DecodeErrors:  stats.DecodeErrors,
			})
		case <-ctx.Done():
			return
		}
	}
}
