package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/ledgerline/internal/cli"
	"github.com/Veraticus/ledgerline/internal/ledger"
	"github.com/Veraticus/ledgerline/internal/ofx"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-ofx [files...]",
		Short: "Import entries from OFX/QFX bank exports",
		Long: `Import financial transactions from OFX or QFX (Quicken) files exported from your bank.

Entry IDs are derived from the bank's transaction IDs, so importing the
same statement twice records nothing new.`,
		Example: `  # Import single file
  ledgerline import-ofx ~/Downloads/chase_jan_2026.qfx

  # Import all QFX files in a directory into a workspace
  ledgerline import-ofx --workspace ws-1 ~/Downloads/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImportOFX,
	}

	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")
	cmd.Flags().BoolP("verbose", "v", false, "Show detailed transaction data")
	cmd.Flags().String("default-category", ofx.DefaultCategory, "category for entries the bank does not type")
	cmd.Flags().Bool("no-checkpoint", false, "Skip the automatic checkpoint before importing")
	ownerFlag(cmd)

	return cmd
}

func runImportOFX(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	verbose, _ := cmd.Flags().GetBool("verbose")
	defaultCategory, _ := cmd.Flags().GetString("default-category")
	noCheckpoint, _ := cmd.Flags().GetBool("no-checkpoint")

	// Expand globs and collect all files
	var allFiles []string
	for _, pattern := range args {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			// If no glob matches, check if it's a direct file
			if _, err := os.Stat(pattern); err == nil {
				allFiles = append(allFiles, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
		} else {
			allFiles = append(allFiles, matches...)
		}
	}

	if len(allFiles) == 0 {
		return fmt.Errorf("no files found to import")
	}

	slog.Info("📒 Importing OFX files...", "file_count", len(allFiles), "dry_run", dryRun)

	parser := ofx.NewParser().WithDefaultCategory(defaultCategory)
	ctx := cmd.Context()

	var entries []ledger.EntryInput
	for _, filePath := range allFiles {
		f, err := os.Open(filePath)
		if err != nil {
			slog.Error("Failed to open file", "file", filePath, "error", err)
			continue
		}

		parsed, err := parser.ParseFile(ctx, f)
		_ = f.Close()
		if err != nil {
			slog.Error("Failed to parse OFX file", "file", filePath, "error", err)
			continue
		}

		slog.Info("Processed file", "file", filepath.Base(filePath), "transactions_found", len(parsed))
		entries = append(entries, parsed...)
	}

	if len(entries) == 0 {
		slog.Warn("No transactions found in any file")
		return nil
	}

	if verbose || dryRun {
		for _, e := range entries {
			fmt.Printf("  %s  %-8s %10s  %-16s %s\n",
				e.OccurredAt.Format(dateLayout), e.Kind, e.Amount.StringFixed(2), e.Category, e.Description)
		}
	}
	if dryRun {
		fmt.Println(cli.FormatInfo(fmt.Sprintf("Dry run: %d entries parsed, nothing saved.", len(entries))))
		return nil
	}

	ctx, engine, owner, err := session(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	if !noCheckpoint {
		autoCheckpoint(ctx, engine.Checkpoints, "import")
	}

	bar := cli.NewProgressBar(os.Stdout, len(entries), "Importing entries...")
	result, err := engine.Ledger.Import(ctx, owner, entries, cli.ProgressReporter(bar))
	if err != nil {
		return err
	}
	_ = bar.Finish()

	for _, f := range result.Failed {
		e := entries[f.Index]
		fmt.Println(cli.FormatWarning(fmt.Sprintf("Rejected %s: %v", e.ID, f.Err)))
	}

	summary := fmt.Sprintf("Recorded: %d\nSkipped (already imported): %d\nRejected: %d",
		len(result.Recorded), len(result.Skipped), len(result.Failed))
	fmt.Println(cli.RenderBox("Import complete", summary))
	return nil
}
