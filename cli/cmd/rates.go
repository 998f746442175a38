package cmd

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/malusev998/currency-rates"
)

var errTopNotPositive = errors.New("--top must be a positive integer")

func getRate(rt *runtime) *cobra.Command {
	var from, to string

	getRateCmd := &cobra.Command{
		Use:   "get-rate",
		Short: "Print the rate between two currencies, refreshing it when stale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rate, err := rt.app.Gate.GetRate(cmd.Context(), from, to)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "1 %s = %.8f %s\n", rate.From, rate.Rate, rate.To)

			if rate.Rate != 0 {
				fmt.Fprintf(out, "1 %s = %.8f %s\n", rate.To, 1.0/rate.Rate, rate.From)
			}

			fmt.Fprintf(out, "Updated at: %s\n", rate.UpdatedAt)

			if rate.Source != "" {
				fmt.Fprintf(out, "Source: %s\n", rate.Source)
			}

			return nil
		},
	}

	getRateCmd.Flags().StringVar(&from, "from", "", "Currency to convert from")
	getRateCmd.Flags().StringVar(&to, "to", "", "Currency to convert to")
	_ = getRateCmd.MarkFlagRequired("from")
	_ = getRateCmd.MarkFlagRequired("to")

	return getRateCmd
}

func showRates(rt *runtime) *cobra.Command {
	var filter currency.ListFilter

	showCmd := &cobra.Command{
		Use:   "show-rates",
		Short: "List cached rates without refreshing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("top") && filter.Top <= 0 {
				return errTopNotPositive
			}

			rates, err := rt.app.Gate.ListCached(filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if len(rates) == 0 {
				fmt.Fprintln(out, "No cached rates, run update-rates first")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PAIR\tRATE\tUPDATED AT\tSOURCE")

			for _, r := range rates {
				fmt.Fprintf(w, "%s\t%.8f\t%s\t%s\n", r.Pair, r.Rate, r.UpdatedAt, r.Source)
			}

			return w.Flush()
		},
	}

	showCmd.Flags().StringVar(&filter.Currency, "currency", "", "Only pairs quoting this currency")
	showCmd.Flags().StringVar(&filter.Base, "base", "", "Only pairs priced in this base currency")
	showCmd.Flags().IntVar(&filter.Top, "top", 0, "Show the N highest rates")

	return showCmd
}

func convert(rt *runtime) *cobra.Command {
	var from, to, amount string

	convertCmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert an amount between two currencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			value, err := decimal.NewFromString(strings.TrimSpace(amount))
			if err != nil {
				return currency.NewError(currency.KindInvalidArgument, err, "amount %q is not a number", amount)
			}

			result, rate, err := rt.app.Conversion.Convert(cmd.Context(), from, to, value)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s %s (rate %.8f, updated at %s)\n",
				value.String(), rate.From, result.String(), rate.To, rate.Rate, rate.UpdatedAt)

			return nil
		},
	}

	convertCmd.Flags().StringVar(&from, "from", "", "Currency to convert from")
	convertCmd.Flags().StringVar(&to, "to", "", "Currency to convert to")
	convertCmd.Flags().StringVar(&amount, "amount", "1", "Amount to convert")
	_ = convertCmd.MarkFlagRequired("from")
	_ = convertCmd.MarkFlagRequired("to")

	return convertCmd
}

func history(rt *runtime) *cobra.Command {
	var pair string
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Print the most recent history records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("--limit must be a positive integer")
			}

			pair = strings.ToUpper(strings.TrimSpace(pair))
			records := rt.app.Files.LoadHistory()
			selected := make([]currency.HistoryRecord, 0, limit)

			for i := len(records) - 1; i >= 0 && len(selected) < limit; i-- {
				if pair == "" || records[i].Pair() == pair {
					selected = append(selected, records[i])
				}
			}

			out := cmd.OutOrStdout()

			if len(selected) == 0 {
				fmt.Fprintln(out, "No history records")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PAIR\tRATE\tTIMESTAMP\tSOURCE")

			for _, r := range selected {
				fmt.Fprintf(w, "%s\t%.8f\t%s\t%s\n", r.Pair(), r.Rate, r.Timestamp, r.Source)
			}

			return w.Flush()
		},
	}

	historyCmd.Flags().StringVar(&pair, "pair", "", "Only records of this pair, e.g. BTC_USD")
	historyCmd.Flags().IntVar(&limit, "limit", 20, "Number of records to print")

	return historyCmd
}
