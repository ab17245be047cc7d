// Command infodisplay drives an eInk information display: it renders one
// plugin on demand or runs the update loop as a daemon.
package main

import (
	"context"
	"fmt"
	"os"

	"infodisplay/internal/app"
	"infodisplay/internal/config"

	_ "infodisplay/internal/plugins/clock"
	_ "infodisplay/internal/plugins/prayer"
	_ "infodisplay/internal/plugins/stock"
	_ "infodisplay/internal/plugins/weather"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

// cli holds the persistent flags and what is built from them.
type cli struct {
	configPath string
	envFile    string
	verbose    bool

	logger *zap.Logger
}

func main() {
	c := &cli{}
	root := c.rootCommand()
	err := root.Execute()
	if c.logger != nil {
		c.logger.Sync()
	}
	if err != nil {
		os.Exit(1)
	}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "infodisplay",
		Short: "eInk information display",
		Long: `infodisplay renders clock, weather, prayer time and stock market screens
on an eInk panel. Each screen is a plugin with its own update interval;
the daemon keeps the selected plugin fresh and the admin API lets you switch
between them.`,
		Version:       version,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", config.DefaultPath, "path to the YAML config file")
	flags.StringVar(&c.envFile, "env-file", ".env", "optional .env file with API keys")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "development logging at debug level")

	root.AddCommand(
		c.runCommand(),
		c.cycleCommand(),
		c.listCommand(),
		c.clearCommand(),
		c.testCommand(),
		c.historyCommand(),
		c.daemonCommand(),
	)
	return root
}

func (c *cli) setup() error {
	var err error
	if c.verbose {
		c.logger, err = zap.NewDevelopment()
	} else {
		c.logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	loaded, err := config.LoadEnv(c.envFile)
	if err != nil {
		return err
	}
	if loaded {
		c.logger.Debug("Loaded environment file", zap.String("path", c.envFile))
	}
	return nil
}

// newApp loads the config file and builds the application. The caller
// closes it.
func (c *cli) newApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(c.configPath, c.logger)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, app.Options{}, c.logger)
}
