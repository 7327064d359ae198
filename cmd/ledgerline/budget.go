package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Veraticus/ledgerline/internal/budget"
	"github.com/Veraticus/ledgerline/internal/cli"
	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/spf13/cobra"
)

func budgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Create and inspect budgets",
		Example: `  # A monthly budget with two categories
  ledgerline budget create --category Food=500 --category Rent=1200

  # What is left this month
  ledgerline budget summary`,
	}

	cmd.AddCommand(createBudgetCmd())
	cmd.AddCommand(budgetSummaryCmd())
	cmd.AddCommand(overspentCmd())
	cmd.AddCommand(setLimitCmd())
	cmd.AddCommand(reconcileCmd())

	return cmd
}

func createBudgetCmd() *cobra.Command {
	var (
		granularity, period, total string
		categories                 []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a budget for one period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, engine, owner, err := session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			in := budget.Input{
				Granularity: model.Granularity(granularity),
				PeriodKey:   period,
			}
			if total != "" {
				if in.TotalLimit, err = parseAmount("totalLimit", total); err != nil {
					return err
				}
			}
			if in.Categories, err = parseCategories(categories); err != nil {
				return err
			}

			b, err := engine.Budgets.CreateBudget(ctx, owner, in)
			if err != nil {
				return err
			}

			fmt.Printf("%s Created %s budget %s for %s\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				b.Granularity,
				cli.InfoStyle.Render(b.ID),
				b.PeriodKey)
			return nil
		},
	}

	cmd.Flags().StringVarP(&granularity, "granularity", "g", string(model.Monthly), "weekly, monthly, or yearly")
	cmd.Flags().StringVarP(&period, "period", "p", "", "period key such as 2026-03, 2026-W12, or 2026 (default current)")
	cmd.Flags().StringVar(&total, "total", "", "overall limit (default sum of category limits)")
	cmd.Flags().StringArrayVarP(&categories, "category", "c", nil, "category as Name=limit (repeatable)")
	ownerFlag(cmd)

	return cmd
}

func budgetSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show totals and per-category usage of the active budget",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, engine, owner, err := session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			s, err := engine.Budgets.Summary(ctx, owner, time.Now())
			if err != nil {
				return err
			}
			if s.BudgetID == "" {
				fmt.Println(cli.SubtitleStyle.Render("No active budget."))
				return nil
			}

			header := fmt.Sprintf("Limit:     %s\nSpent:     %s\nRemaining: %s",
				cli.FormatAmount(s.TotalLimit),
				cli.FormatAmount(s.TotalSpent),
				cli.FormatAmount(s.TotalRemaining))
			fmt.Println(cli.RenderBox(fmt.Sprintf("%s %s budget %s", cli.ChartIcon, s.Granularity, s.PeriodKey), header))

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, strings.Join([]string{
				cli.HeaderStyle.Render("CATEGORY"),
				cli.HeaderStyle.Render("LIMIT"),
				cli.HeaderStyle.Render("SPENT"),
				cli.HeaderStyle.Render("LEFT"),
				cli.HeaderStyle.Render("USAGE"),
			}, "\t"))
			for _, u := range s.Usage {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s %s%%\n",
					u.Name,
					cli.FormatAmount(u.Limit),
					cli.FormatAmount(u.Spent),
					cli.FormatAmount(u.Remaining),
					cli.UsageBar(u.Percent, 20),
					u.Percent.StringFixed(0))
			}
			return w.Flush()
		},
	}
	ownerFlag(cmd)
	return cmd
}

func overspentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overspent",
		Short: "List categories of the active budget that went over their limit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, engine, owner, err := session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			cats, err := engine.Budgets.OverspentCategories(ctx, owner, time.Now())
			if err != nil {
				return err
			}
			if len(cats) == 0 {
				fmt.Println(cli.FormatSuccess("Nothing overspent."))
				return nil
			}
			for _, c := range cats {
				fmt.Println(cli.FormatWarning(fmt.Sprintf("%s: spent %s of %s",
					c.Name, c.Spent.StringFixed(2), c.Limit.StringFixed(2))))
			}
			return nil
		},
	}
	ownerFlag(cmd)
	return cmd
}

func setLimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-limit <budget-id> <category> <limit>",
		Short: "Set or add a category limit",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, engine, owner, err := session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			limit, err := parseAmount("limit", args[2])
			if err != nil {
				return err
			}
			if err := engine.Budgets.SetCategoryLimit(ctx, owner, args[0], args[1], limit); err != nil {
				return err
			}
			fmt.Printf("%s %s limit set to %s\n", cli.SuccessStyle.Render(cli.SuccessIcon), args[1], cli.FormatAmount(limit))
			return nil
		},
	}
	ownerFlag(cmd)
	return cmd
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile <budget-id>",
		Short: "Recompute spent totals from the ledger and fix any drift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, engine, owner, err := session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			corrections, err := engine.Budgets.Reconcile(ctx, owner, args[0])
			if err != nil {
				return err
			}
			if len(corrections) == 0 {
				fmt.Println(cli.FormatSuccess("Budget matches the ledger."))
				return nil
			}
			for _, c := range corrections {
				fmt.Println(cli.FormatWarning(fmt.Sprintf("%s: %s -> %s",
					c.Category, c.Was.StringFixed(2), c.Now.StringFixed(2))))
			}
			return nil
		},
	}
	ownerFlag(cmd)
	return cmd
}

// parseCategories reads Name=limit pairs.
func parseCategories(pairs []string) ([]budget.CategoryInput, error) {
	out := make([]budget.CategoryInput, 0, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, common.Invalid("category", fmt.Sprintf("%q is not Name=limit", pair))
		}
		limit, err := parseAmount("limit", raw)
		if err != nil {
			return nil, err
		}
		out = append(out, budget.CategoryInput{Name: strings.TrimSpace(name), Limit: limit})
	}
	return out, nil
}
