package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tramline/tramline/internal/app"
	"github.com/tramline/tramline/internal/config"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	fixture    string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "tramline",
		Short:         "Plan public transport trips over a stop graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv(config.PathEnv), "YAML configuration file")
	root.PersistentFlags().StringVar(&opts.fixture, "fixture", "", "network fixture for the memory engine (overrides config)")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "v", false, "enable debug logs")

	root.AddCommand(
		newPlanCmd(opts),
		newNearestCmd(opts),
		newStopsCmd(opts),
		newWarmCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

func (o *rootOptions) config() (*config.Config, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.fixture != "" {
		cfg.Graph.FixturePath = o.fixture
	}
	return cfg, nil
}

func (o *rootOptions) logger(cmd *cobra.Command) zerolog.Logger {
	level := zerolog.WarnLevel
	if o.debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(level).With().Timestamp().Logger()
}

// loadApp assembles the stack and loads the catalog.
func (o *rootOptions) loadApp(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, o.logger(cmd))
	if err != nil {
		return nil, err
	}
	if err := a.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}
