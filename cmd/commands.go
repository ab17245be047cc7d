package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"infodisplay/internal/api"
	"infodisplay/internal/config"
	"infodisplay/internal/scheduler"
	"infodisplay/pkg/surface"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (c *cli) runCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "run [plugin]",
		Short: "Render a plugin once",
		Long: `Render the named plugin if it is due, or always with --force.
Without a plugin the selected one (current, default, then first loaded)
is rendered if it is due.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var res scheduler.Result
			if len(args) == 1 {
				res, err = a.RunPlugin(cmd.Context(), args[0], force)
			} else {
				res, err = a.UpdateDisplay(cmd.Context())
			}
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "render even if the plugin is not due")
	return cmd
}

func (c *cli) cycleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Show the next plugin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Cycle(cmd.Context())
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
}

func (c *cli) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List loaded plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(cmd.OutOrStdout(), pluginTable(a.ListPlugins()))
			return nil
		},
	}
}

func (c *cli) clearCommand() *cobra.Command {
	var color string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the display",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Clear(color); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Display cleared to %s\n", color)
			return nil
		},
	}

	cmd.Flags().StringVar(&color, "color", surface.White, "palette colour to fill with")
	return cmd
}

func (c *cli) testCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Show the colour test pattern",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.TestDisplay(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test pattern displayed")
			return nil
		},
	}
}

func (c *cli) historyCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [plugin]",
		Short: "Show recent renders from the run journal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			plugin := ""
			if len(args) == 1 {
				plugin = args[0]
			}
			runs, err := a.History(cmd.Context(), plugin, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), historyTable(runs))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func (c *cli) daemonCommand() *cobra.Command {
	var (
		pollTick       time.Duration
		updateInterval time.Duration
		admin          bool
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Keep the display updated until interrupted",
		Long: `Run the update loop. Every poll tick the selected plugin is rendered if
its interval has elapsed. SIGINT and SIGTERM stop the loop cleanly. Changes
to the config file reload the plugins.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := c.newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.Config()
			daemonCfg := cfg.Daemon()
			if !cmd.Flags().Changed("poll-tick") {
				pollTick = daemonCfg.PollTick
			}
			if !cmd.Flags().Changed("update-interval") {
				updateInterval = daemonCfg.UpdateInterval
			}

			web := cfg.Web()
			if admin || web.Enabled {
				srv := api.NewServer(a, c.logger, web.Addr())
				if err := srv.Start(); err != nil {
					return err
				}
				a.AddObserver(srv)
				defer func() {
					if err := srv.Stop(); err != nil {
						c.logger.Warn("Admin API shutdown failed", zap.Error(err))
					}
				}()
			}

			err = cfg.Watch(ctx, config.DefaultDebounce, func() {
				c.logger.Info("Config file changed, reloading plugins")
				if err := a.ReloadPlugins(); err != nil {
					c.logger.Warn("Reload after config change failed", zap.Error(err))
				}
			})
			if err != nil {
				c.logger.Warn("Config file changes will not be picked up", zap.Error(err))
			}

			c.logger.Info("Starting daemon",
				zap.Duration("poll_tick", pollTick),
				zap.Duration("update_interval", updateInterval))

			if err := a.StartDaemon(ctx, pollTick, updateInterval); err != nil {
				return err
			}
			c.logger.Info("Daemon stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.DurationVar(&pollTick, "poll-tick", 30*time.Second, "wait between update checks (default from daemon.poll_tick)")
	flags.DurationVar(&updateInterval, "update-interval", 300*time.Second, "baseline plugin interval (default from daemon.update_interval)")
	flags.BoolVar(&admin, "admin", false, "serve the admin API (also enabled by web.enabled)")
	return cmd
}

// printResult reports a run that did not error.
func printResult(cmd *cobra.Command, res scheduler.Result) {
	out := cmd.OutOrStdout()
	switch res.Outcome {
	case scheduler.OutcomeSkipped:
		fmt.Fprintf(out, "%s is not due for an update (use --force)\n", res.Plugin)
	default:
		fmt.Fprintf(out, "Rendered %s in %s\n", res.Plugin, res.Duration.Round(time.Millisecond))
	}
}
