package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/malusev998/currency-rates"
	"github.com/malusev998/currency-rates/scheduler"
)

func printUpdateResult(out io.Writer, result currency.UpdateResult, debug bool) {
	fmt.Fprintf(out, "Updated %d pairs\n", len(result.UpdatedPairs))

	if debug {
		for i, pair := range result.UpdatedPairs {
			fmt.Fprintf(out, "%d\t%s\n", i, pair)
		}
	}

	for _, failure := range result.Errors {
		fmt.Fprintf(out, "Error from %s: %s\n", failure.Source, failure.Message)
	}

	for _, provider := range currency.Providers() {
		if count, ok := result.SourceStats[provider]; ok {
			fmt.Fprintf(out, "%s: %d samples\n", provider, count)
		}
	}

	fmt.Fprintf(out, "Last refresh: %s\n", result.LastRefresh)
}

func resolveSource(source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", nil
	}

	provider, err := currency.ConvertToProviderFromString(source)
	if err != nil {
		return "", fmt.Errorf("%w, available sources: %s", err, strings.Join(currency.ProviderAliases(), ", "))
	}

	return string(provider), nil
}

func updateRates(rt *runtime) *cobra.Command {
	var source string

	updateCmd := &cobra.Command{
		Use:     "update-rates",
		Aliases: []string{"fetch"},
		Short:   "Fetch rates from the configured providers and merge them into the snapshot",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := resolveSource(source)
			if err != nil {
				return err
			}

			result, err := rt.app.Updater.RunUpdate(cmd.Context(), filter)
			if err != nil {
				return err
			}

			printUpdateResult(cmd.OutOrStdout(), result, rt.debug)

			return nil
		},
	}

	updateCmd.Flags().StringVar(&source, "source", "", "Only query this provider (coingecko|exchangerate or an alias)")

	return updateCmd
}

func schedule(rt *runtime) *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Start up a long running refresh service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			expr := rt.app.Config.Schedule

			sched, err := scheduler.ParseSchedule(expr)
			if err != nil {
				return err
			}

			s := scheduler.New(rt.app.Updater, sched, rt.app.Logger.With("component", "scheduler"))
			fmt.Fprintf(cmd.OutOrStdout(), "Refreshing rates on schedule %q, press Ctrl+C to stop\n", expr)

			s.Start(cmd.Context())
			<-cmd.Context().Done()
			s.Stop()

			fmt.Fprintln(cmd.OutOrStdout(), "Scheduler stopped")

			return nil
		},
	}

	scheduleCmd.Flags().String("every", "", "Refresh schedule: seconds, a duration like 30m or a cron expression")
	_ = rt.viper.BindPFlag("schedule", scheduleCmd.Flags().Lookup("every"))

	return scheduleCmd
}
