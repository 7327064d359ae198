package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Veraticus/ledgerline/internal/cli"
	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/ledger"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func recordCmd() *cobra.Command {
	var (
		amount, category, description, kind, date, id string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record an income or expense entry",
		Example: `  # Record a grocery expense for today
  ledgerline record --amount 42.50 --category Food --description "Corner market"

  # Record salary into a workspace
  ledgerline record --workspace ws-1 --kind income --amount 5000 --category Salary`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, engine, owner, err := session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			value, err := parseAmount("amount", amount)
			if err != nil {
				return err
			}
			in := ledger.EntryInput{
				ID:          id,
				Amount:      value,
				Category:    category,
				Description: description,
				Kind:        model.Kind(kind),
			}
			if date != "" {
				if in.OccurredAt, err = parseDate("date", date); err != nil {
					return err
				}
			}

			txnID, err := engine.Ledger.Record(ctx, owner, in)
			if err != nil {
				return err
			}

			fmt.Printf("%s Recorded %s %s in %s\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				kind,
				cli.FormatAmount(value),
				cli.InfoStyle.Render(txnID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&amount, "amount", "a", "", "positive amount")
	cmd.Flags().StringVarP(&category, "category", "c", "", "category name")
	cmd.Flags().StringVarP(&description, "description", "d", "", "free-form description")
	cmd.Flags().StringVarP(&kind, "kind", "k", string(model.KindExpense), "income or expense")
	cmd.Flags().StringVar(&date, "date", "", "date the entry occurred (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&id, "id", "", "entry ID (generated if empty)")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("category")
	ownerFlag(cmd)

	return cmd
}

func amendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amend <entry-id>",
		Short: "Change fields of a recorded entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, engine, owner, err := session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			patch, err := patchFromFlags(cmd)
			if err != nil {
				return err
			}
			if err := engine.Ledger.Amend(ctx, owner, args[0], patch); err != nil {
				return err
			}

			fmt.Printf("%s Amended %s\n", cli.SuccessStyle.Render(cli.SuccessIcon), cli.InfoStyle.Render(args[0]))
			return nil
		},
	}

	cmd.Flags().String("amount", "", "new amount")
	cmd.Flags().String("category", "", "new category")
	cmd.Flags().String("description", "", "new description")
	cmd.Flags().String("kind", "", "new kind (income or expense)")
	cmd.Flags().String("date", "", "new date (YYYY-MM-DD)")
	ownerFlag(cmd)

	return cmd
}

// patchFromFlags builds a patch from the flags the user actually set.
func patchFromFlags(cmd *cobra.Command) (ledger.EntryPatch, error) {
	var patch ledger.EntryPatch
	flags := cmd.Flags()

	if flags.Changed("amount") {
		raw, _ := flags.GetString("amount")
		value, err := parseAmount("amount", raw)
		if err != nil {
			return patch, err
		}
		patch.Amount = &value
	}
	if flags.Changed("category") {
		v, _ := flags.GetString("category")
		patch.Category = &v
	}
	if flags.Changed("description") {
		v, _ := flags.GetString("description")
		patch.Description = &v
	}
	if flags.Changed("kind") {
		v, _ := flags.GetString("kind")
		k := model.Kind(v)
		patch.Kind = &k
	}
	if flags.Changed("date") {
		raw, _ := flags.GetString("date")
		t, err := parseDate("date", raw)
		if err != nil {
			return patch, err
		}
		patch.OccurredAt = &t
	}
	return patch, nil
}

func removeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <entry-id>",
		Short: "Delete a recorded entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, engine, owner, err := session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			if err := engine.Ledger.Remove(ctx, owner, args[0]); err != nil {
				return err
			}
			fmt.Printf("%s Removed %s\n", cli.SuccessStyle.Render(cli.SuccessIcon), cli.InfoStyle.Render(args[0]))
			return nil
		},
	}
	ownerFlag(cmd)
	return cmd
}

func listCmd() *cobra.Command {
	var from, to string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded entries, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, engine, owner, err := session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			filter := ledger.Filter{Limit: limit}
			if from != "" {
				if filter.From, err = parseDate("from", from); err != nil {
					return err
				}
			}
			if to != "" {
				if filter.To, err = parseDate("to", to); err != nil {
					return err
				}
			}

			txns, err := engine.Ledger.List(ctx, owner, filter)
			if err != nil {
				return err
			}
			printTransactions(txns)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "earliest date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "latest date, exclusive (YYYY-MM-DD)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum entries to show (0 for all)")
	ownerFlag(cmd)

	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the entry list every time it changes",
		Long: `Subscribe to the owner's entries and reprint them after every change.
With an AMQP feed configured, changes made by other processes show up too.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, engine, owner, err := session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			unsubscribe, err := engine.Ledger.Subscribe(ctx, owner, func(txns []model.Transaction) {
				fmt.Println(cli.FormatTitle(fmt.Sprintf("%s at %s", owner, time.Now().Format(time.TimeOnly))))
				printTransactions(txns)
			})
			if err != nil {
				return err
			}
			defer unsubscribe()

			<-ctx.Done()
			return nil
		},
	}
	ownerFlag(cmd)
	return cmd
}

func printTransactions(txns []model.Transaction) {
	if len(txns) == 0 {
		fmt.Println(cli.SubtitleStyle.Render("No entries found."))
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join([]string{
		cli.HeaderStyle.Render("DATE"),
		cli.HeaderStyle.Render("KIND"),
		cli.HeaderStyle.Render("AMOUNT"),
		cli.HeaderStyle.Render("CATEGORY"),
		cli.HeaderStyle.Render("DESCRIPTION"),
		cli.HeaderStyle.Render("ID"),
	}, "\t"))
	for _, t := range txns {
		amount := t.Amount
		if t.IsExpense() {
			amount = amount.Neg()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.OccurredAt.Format(dateLayout),
			t.Kind,
			cli.FormatAmount(amount),
			t.Category,
			t.Description,
			cli.SubtitleStyle.Render(t.ID),
		)
	}
	_ = w.Flush()
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, common.Invalid(field, fmt.Sprintf("%q is not a number", raw))
	}
	return d, nil
}

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, common.Invalid(field, fmt.Sprintf("%q is not a YYYY-MM-DD date", raw))
	}
	return t, nil
}
