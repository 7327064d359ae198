package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Veraticus/ledgerline/internal/budget"
	"github.com/Veraticus/ledgerline/internal/cli"
	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/provisioning"
	"github.com/spf13/cobra"
)

var onboardRetry = common.RetryOptions{
	MaxAttempts:  4,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2,
}

func onboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Provision a personal account or a business workspace",
		Long: `Onboarding writes several records in order. Progress is saved after every
step, so an interrupted or failed run can be finished with "onboard resume".`,
		Example: `  # Personal account with a monthly budget and a car loan
  ledgerline --user alice onboard personal --name Alice --currency USD \
    --category Food=500 --category Rent=1200 \
    --loan-name "Car loan" --loan-amount 12000 --loan-rate 6.5 --loan-due 2026-04-01

  # Business workspace owned by alice
  ledgerline --user alice onboard business --name "Acme Ltd" --currency EUR --timezone UTC

  # Finish an interrupted run
  ledgerline --user alice onboard resume personal:alice`,
	}

	cmd.AddCommand(onboardPersonalCmd())
	cmd.AddCommand(onboardBusinessCmd())
	cmd.AddCommand(onboardResumeCmd())

	return cmd
}

func onboardPersonalCmd() *cobra.Command {
	var (
		name, email, currency string
		categories            []string
	)

	cmd := &cobra.Command{
		Use:   "personal",
		Short: "Create a personal account with its first monthly budget",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, user, err := actorContext(cmd.Context())
			if err != nil {
				return err
			}

			req := provisioning.PersonalRequest{
				Profile: model.Profile{DisplayName: name, Email: email, Currency: currency},
			}
			if req.Categories, err = parseCategories(categories); err != nil {
				return err
			}
			if req.Loan, err = liabilityFromFlags(cmd); err != nil {
				return err
			}

			engine, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			plan, err := engine.Saga.PreparePersonal(user, req)
			if err != nil {
				return err
			}

			err = runSaga(ctx, plan.SagaID(), func(ctx context.Context) error {
				var err error
				plan, err = engine.Saga.RunPersonal(ctx, plan)
				return err
			})
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Welcome, %s!", plan.Profile.DisplayName)))
			fmt.Printf("  Budget: %s %s (%s)\n", plan.Budget.Granularity, plan.Budget.PeriodKey, cli.InfoStyle.Render(plan.Budget.ID))
			if plan.Loan != nil {
				fmt.Printf("  Loan:   %s (%s)\n", plan.Loan.Name, cli.InfoStyle.Render(plan.Loan.ID))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	cmd.Flags().StringVar(&currency, "currency", "", "ISO 4217 currency code")
	cmd.Flags().StringArrayVarP(&categories, "category", "c", nil, "category as Name=limit (repeatable)")
	liabilityFlags(cmd)
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func onboardBusinessCmd() *cobra.Command {
	var (
		name, currency, timezone, taxID, address string
		displayName, email                       string
		fiscalStart                              int
		categories                               []string
	)

	cmd := &cobra.Command{
		Use:   "business",
		Short: "Create a business workspace owned by the current user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, user, err := actorContext(cmd.Context())
			if err != nil {
				return err
			}

			req := provisioning.BusinessRequest{
				Name:            name,
				Currency:        currency,
				Timezone:        timezone,
				TaxID:           taxID,
				Address:         address,
				FiscalYearStart: fiscalStart,
			}
			if displayName != "" {
				req.Profile = &model.Profile{DisplayName: displayName, Email: email, Currency: currency}
			}
			if len(categories) > 0 {
				cats, err := parseCategories(categories)
				if err != nil {
					return err
				}
				req.SeedBudgets = []budget.Input{{Granularity: model.Monthly, Categories: cats}}
			}

			engine, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			plan, err := engine.Saga.PrepareBusiness(user, req)
			if err != nil {
				return err
			}

			err = runSaga(ctx, plan.SagaID(), func(ctx context.Context) error {
				var err error
				plan, err = engine.Saga.RunBusiness(ctx, plan)
				return err
			})
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Created workspace %s", plan.Workspace.Name)))
			fmt.Printf("  ID: %s\n", cli.InfoStyle.Render(plan.Workspace.ID))
			fmt.Printf("  Seed budgets: %d\n", len(plan.SeedBudgets))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "business name")
	cmd.Flags().StringVar(&currency, "currency", "", "ISO 4217 currency code")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "IANA timezone")
	cmd.Flags().StringVar(&taxID, "tax-id", "", "tax registration number")
	cmd.Flags().StringVar(&address, "address", "", "postal address")
	cmd.Flags().StringVar(&displayName, "display-name", "", "create the account in business mode with this display name")
	cmd.Flags().StringVar(&email, "email", "", "contact email of a new account")
	cmd.Flags().IntVar(&fiscalStart, "fiscal-year-start", 1, "first month of the fiscal year (1-12)")
	cmd.Flags().StringArrayVarP(&categories, "category", "c", nil, "seed monthly budget category as Name=limit (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("currency")

	return cmd
}

func onboardResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <saga-id>",
		Short: "Finish an interrupted onboarding run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, _, err := actorContext(cmd.Context())
			if err != nil {
				return err
			}

			engine, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			err = runSaga(ctx, args[0], func(ctx context.Context) error {
				return engine.Saga.Resume(ctx, args[0])
			})
			if err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess("Onboarding complete."))
			return nil
		},
	}
}

// runSaga retries store outages and, when the run is cut short, tells the
// user how to resume it.
func runSaga(ctx context.Context, sagaID string, run func(context.Context) error) error {
	h := cli.NewInterruptHandler(os.Stdout)
	h.SetResumeHint("ledgerline onboard resume " + sagaID)
	ctx, stop := h.HandleInterrupts(ctx)
	defer stop()

	err := common.WithRetry(ctx, func() error { return run(ctx) }, onboardRetry)
	if err == nil {
		return nil
	}

	var resumable *provisioning.ResumableError
	if errors.As(err, &resumable) && !h.WasInterrupted() {
		fmt.Println(cli.FormatWarning(fmt.Sprintf("Onboarding stopped at step %q.", resumable.Step)))
		fmt.Println(cli.FormatInfo("Progress has been saved. Resume with: ledgerline onboard resume " + resumable.SagaID))
	}
	return err
}
