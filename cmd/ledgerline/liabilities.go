package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/Veraticus/ledgerline/internal/cli"
	"github.com/Veraticus/ledgerline/internal/liability"
	"github.com/spf13/cobra"
)

func liabilitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "liabilities",
		Aliases: []string{"loans"},
		Short:   "Track loans and EMIs",
	}

	cmd.AddCommand(addLiabilityCmd())
	cmd.AddCommand(listLiabilitiesCmd())
	cmd.AddCommand(closeLiabilityCmd())

	return cmd
}

func liabilityFlags(cmd *cobra.Command) {
	cmd.Flags().String("loan-name", "", "loan name")
	cmd.Flags().String("loan-amount", "", "outstanding amount")
	cmd.Flags().String("loan-rate", "0", "annual interest rate in percent")
	cmd.Flags().String("loan-due", "", "next due date (YYYY-MM-DD)")
}

// liabilityFromFlags returns nil when no loan name was given.
func liabilityFromFlags(cmd *cobra.Command) (*liability.Input, error) {
	name, _ := cmd.Flags().GetString("loan-name")
	if name == "" {
		return nil, nil
	}
	rawAmount, _ := cmd.Flags().GetString("loan-amount")
	rawRate, _ := cmd.Flags().GetString("loan-rate")
	rawDue, _ := cmd.Flags().GetString("loan-due")

	in := &liability.Input{Name: name}
	var err error
	if in.Amount, err = parseAmount("amount", rawAmount); err != nil {
		return nil, err
	}
	if in.InterestRate, err = parseAmount("interestRate", rawRate); err != nil {
		return nil, err
	}
	if in.DueDate, err = parseDate("dueDate", rawDue); err != nil {
		return nil, err
	}
	return in, nil
}

func addLiabilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a loan to your account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, engine, _, err := session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			in, err := liabilityFromFlags(cmd)
			if err != nil {
				return err
			}
			if in == nil {
				return fmt.Errorf("--loan-name is required")
			}
			id, err := engine.Liabilities.Add(ctx, *in)
			if err != nil {
				return err
			}
			fmt.Printf("%s Added %s (%s)\n", cli.SuccessStyle.Render(cli.SuccessIcon), in.Name, cli.InfoStyle.Render(id))
			return nil
		},
	}
	liabilityFlags(cmd)
	return cmd
}

func listLiabilitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your loans",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, engine, _, err := session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			items, err := engine.Liabilities.List(ctx)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println(cli.SubtitleStyle.Render("No liabilities."))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, strings.Join([]string{
				cli.HeaderStyle.Render("NAME"),
				cli.HeaderStyle.Render("AMOUNT"),
				cli.HeaderStyle.Render("RATE"),
				cli.HeaderStyle.Render("DUE"),
				cli.HeaderStyle.Render("STATUS"),
				cli.HeaderStyle.Render("ID"),
			}, "\t"))
			for _, l := range items {
				fmt.Fprintf(w, "%s\t%s\t%s%%\t%s\t%s\t%s\n",
					l.Name,
					cli.FormatAmount(l.Amount),
					l.InterestRate.String(),
					l.DueDate.Format(dateLayout),
					l.Status,
					cli.SubtitleStyle.Render(l.ID))
			}
			return w.Flush()
		},
	}
}

func closeLiabilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <liability-id>",
		Short: "Mark a loan as closed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, engine, _, err := session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			if err := engine.Liabilities.Close(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("%s Closed %s\n", cli.SuccessStyle.Render(cli.SuccessIcon), cli.InfoStyle.Render(args[0]))
			return nil
		},
	}
}
