package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dmweis/zenoh-tailscale/internal/buildinfo"
	"github.com/dmweis/zenoh-tailscale/internal/logging"
)

func main() {
	if err := logging.Configure(logging.Options{Level: logging.LevelInfo}); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		o         = defaultRunOptions()
		debug     bool
		logFormat string
	)

	cmd := &cobra.Command{
		Use:   "zenoh-tailscale [zenoh-config]",
		Short: "Keep a Zenoh overlay session in sync with Tailscale mesh membership",
		Long: "zenoh-tailscale runs a zenohd router whose listen and connect endpoints\n" +
			"follow the addresses of this node and its mesh peers. When membership\n" +
			"changes the router is restarted with the new endpoints.",
		Version:       buildinfo.Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelInfo
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(logging.Options{Level: level, Format: logFormat})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if cmd.Flags().Changed("zenoh-config") && o.zenohConfig != args[0] {
					return fmt.Errorf("config given both as argument %q and --zenoh-config %q", args[0], o.zenohConfig)
				}
				o.zenohConfig = args[0]
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, o)
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatText, "Log format (text, json)")
	cmd.PersistentFlags().StringVar(&o.dataDir, "data-dir", o.dataDir, "Directory for the zenohd config and the state journal")
	cmd.PersistentFlags().StringVar(&o.stateDB, "state-db", "", "State journal path (default <data-dir>/state.db)")
	o.bindFlags(cmd.Flags())

	cmd.AddCommand(statusCmd(&o))
	return cmd
}
