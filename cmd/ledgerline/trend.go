package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/Veraticus/ledgerline/internal/cli"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/trend"
	"github.com/spf13/cobra"
)

func trendCmd() *cobra.Command {
	var granularity, from, to string

	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Show income and expense per weekday or month",
		Long: `Bucket entries by weekday (weekly) or month (monthly) and print the totals.

` + trend.KnownLimitations,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, engine, owner, err := session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			var r trend.Range
			if from != "" {
				if r.From, err = parseDate("from", from); err != nil {
					return err
				}
			}
			if to != "" {
				if r.To, err = parseDate("to", to); err != nil {
					return err
				}
			}

			buckets, err := engine.Trends.Trend(ctx, owner, model.Granularity(granularity), r)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, strings.Join([]string{
				cli.HeaderStyle.Render("BUCKET"),
				cli.HeaderStyle.Render("INCOME"),
				cli.HeaderStyle.Render("EXPENSE"),
				cli.HeaderStyle.Render("NET"),
			}, "\t"))
			for _, b := range buckets {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					b.Label,
					cli.FormatAmount(b.Income),
					cli.FormatAmount(b.Expense),
					cli.FormatAmount(b.Net))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Println()
			fmt.Println(cli.SubtitleStyle.Render(trend.KnownLimitations))
			return nil
		},
	}

	cmd.Flags().StringVarP(&granularity, "granularity", "g", string(model.Monthly), "weekly or monthly")
	cmd.Flags().StringVar(&from, "from", "", "earliest date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "latest date, exclusive (YYYY-MM-DD)")
	ownerFlag(cmd)

	return cmd
}
