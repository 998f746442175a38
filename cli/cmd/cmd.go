package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/malusev998/currency-rates/config"
	"github.com/malusev998/currency-rates/logging"
)

const Version = "v2.0.0"

// runtime is shared by every command of one invocation. The app is built
// lazily in the root pre-run hook, after flags are parsed.
type runtime struct {
	ctx        context.Context
	viper      *viper.Viper
	debug      bool
	configFile string

	app       *App
	logCloser io.Closer
}

func (rt *runtime) setup(cmd *cobra.Command, _ []string) error {
	absolutePath, err := filepath.Abs(rt.configFile)
	if err != nil {
		return err
	}

	cfg, err := config.Load(rt.viper, absolutePath)
	if err != nil {
		return err
	}

	consoleLevel := slog.LevelWarn
	if rt.debug {
		cfg.LogLevel = "debug"
		consoleLevel = slog.LevelDebug
	}

	logger, closer, err := logging.New(logging.Config{
		File:         cfg.ParserLogFile,
		Level:        cfg.LogLevel,
		Console:      cmd.ErrOrStderr(),
		ConsoleLevel: consoleLevel,
	})
	if err != nil {
		return err
	}

	rt.logCloser = closer

	app, err := NewApp(rt.ctx, cfg, logger)
	if err != nil {
		return err
	}

	rt.app = app

	return nil
}

func (rt *runtime) close() error {
	var errs []error

	if rt.app != nil {
		errs = append(errs, rt.app.Close())
	}

	if rt.logCloser != nil {
		errs = append(errs, rt.logCloser.Close())
	}

	return errors.Join(errs...)
}

func newRootCommand(rt *runtime) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "currency-rates",
		Short:             "Crypto and fiat exchange rate engine",
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: rt.setup,
	}

	rootCmd.PersistentFlags().BoolVar(&rt.debug, "debug", false, "Debug flag")
	rootCmd.PersistentFlags().StringVar(&rt.configFile, "config", config.DefaultFile, "Path to config file")

	rootCmd.AddCommand(
		updateRates(rt),
		getRate(rt),
		showRates(rt),
		convert(rt),
		history(rt),
		schedule(rt),
		serve(rt),
	)

	return rootCmd
}

// Execute runs one CLI invocation and releases everything it opened.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	rt := &runtime{ctx: ctx, viper: viper.New()}
	rootCmd := newRootCommand(rt)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)

	return errors.Join(err, rt.close())
}
