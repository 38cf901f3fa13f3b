// ABOUTME: Entry point for the berkeley binary
// ABOUTME: Cobra root command with coordinator, participant and version subcommands
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/harperreed/berkeley-go/internal/config"
	"github.com/harperreed/berkeley-go/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "berkeley",
		Short: "Berkeley clock synchronization",
		Long: `berkeley keeps a group of machines on a common time.

A coordinator collects clock reports from participants, averages their
offsets from its own clock every cycle and broadcasts one corrected time
to all of them. Participants report on a fixed period and apply the
latest correction to their local clock reads.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "config file (yaml, toml or json)")
	root.PersistentFlags().String("log-file", "", "JSON log file path (default depends on the subcommand)")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")

	root.AddCommand(newCoordinatorCmd(), newParticipantCmd(), newVersionCmd())
	return root
}

// flagKeys maps flag names that don't follow the dash-to-underscore rule
var flagKeys = map[string]string{
	"log-file": "logging.file",
	"debug":    "logging.debug",
}

// loadViper builds the viper instance for cmd and binds every flag to its
// config key, e.g. --cycle-period to cycle_period
func loadViper(cmd *cobra.Command, setDefaults func(*viper.Viper)) (*viper.Viper, error) {
	cfgFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	v, err := config.New(cfgFile)
	if err != nil {
		return nil, err
	}
	setDefaults(v)

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "help" {
			return
		}
		key, ok := flagKeys[f.Name]
		if !ok {
			key = strings.ReplaceAll(f.Name, "-", "_")
		}
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("binding --%s: %w", f.Name, err)
		}
	})
	return v, bindErr
}

// setupLogging logs to the console and the log file, or only the file when a TUI owns the terminal
func setupLogging(cmd *cobra.Command, cfg config.LoggingConfig, tui bool) (logr.Logger, io.Closer) {
	var console io.Writer = cmd.ErrOrStderr()
	if tui {
		console = nil
	}
	return logging.New(cfg.Logging(console))
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func defaultName(role string) string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-berkeley-%s", hostname, role)
}
