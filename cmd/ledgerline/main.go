package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Veraticus/ledgerline/internal/backend"
	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/config"
	"github.com/Veraticus/ledgerline/internal/identity"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	cfg     *config.Config
	version = "dev"
	rootCmd = &cobra.Command{
		Use:   "ledgerline",
		Short: "📒 Multi-tenant ledger and budgeting engine",
		Long: `ledgerline records income and expenses for personal accounts and shared
business workspaces, keeps budget totals in step with every entry, and
provisions new accounts through a resumable onboarding flow.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/ledgerline/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("user", "", "account ID to act as (env LEDGERLINE_USER)")
	rootCmd.PersistentFlags().String("db", "", "database path override")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))

	// Add commands
	rootCmd.AddCommand(budgetCmd())
	rootCmd.AddCommand(checkpointCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(liabilitiesCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(membersCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(onboardCmd())
	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(amendCmd())
	rootCmd.AddCommand(removeCmd())
	rootCmd.AddCommand(trendCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel() // Always cleanup

	if err != nil {
		var userErr *common.UserError
		if errors.As(err, &userErr) {
			fmt.Fprintln(os.Stderr, userErr.UserMessage)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	config.SetDefaults(viper.GetViper())

	// Set up config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		// Search for config in standard locations
		viper.AddConfigPath(fmt.Sprintf("%s/.config/ledgerline", home))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Environment variables
	viper.SetEnvPrefix("LEDGERLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	cfg = config.Load(viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := common.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	if err := common.SetupLogger(level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("ledgerline %s\n", version)
		},
	}
}

// openEngine opens the configured store and wires the services over it.
func openEngine(ctx context.Context) (*backend.Engine, error) {
	return backend.NewEngine(ctx, cfg)
}

// actorContext attaches the --user account to ctx.
func actorContext(ctx context.Context) (context.Context, string, error) {
	user := viper.GetString("user")
	if user == "" {
		return nil, "", common.NewUserError("no user given: pass --user or set LEDGERLINE_USER", common.ErrUnauthenticated)
	}
	return identity.WithActor(ctx, user), user, nil
}

// ownerFlag registers --workspace on cmd.
func ownerFlag(cmd *cobra.Command) {
	cmd.Flags().String("workspace", "", "act on a business workspace instead of the personal account")
}

// resolveOwner returns the workspace named by --workspace, or the acting
// user's personal account.
func resolveOwner(cmd *cobra.Command, user string) model.Owner {
	if ws, _ := cmd.Flags().GetString("workspace"); ws != "" {
		return model.WorkspaceOwner(ws)
	}
	return model.AccountOwner(user)
}

// session opens the engine and resolves the actor and owner for cmd.
func session(cmd *cobra.Command) (context.Context, *backend.Engine, model.Owner, error) {
	ctx, user, err := actorContext(cmd.Context())
	if err != nil {
		return nil, nil, model.Owner{}, err
	}
	engine, err := openEngine(ctx)
	if err != nil {
		return nil, nil, model.Owner{}, err
	}
	return ctx, engine, resolveOwner(cmd, user), nil
}
