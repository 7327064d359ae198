package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Veraticus/ledgerline/internal/cli"
	"github.com/Veraticus/ledgerline/internal/config"
	"github.com/Veraticus/ledgerline/internal/storage"
	"github.com/spf13/cobra"
)

func checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage database checkpoints",
		Long: `Create, list, restore, and delete database checkpoints.

Checkpoints allow you to save the current state of your ledger before making
risky changes, and restore to a previous state if needed. They require the
sqlite backend.`,
		Example: `  # Create a checkpoint before importing new data
  ledgerline checkpoint create --tag "pre-2026-import"

  # List all checkpoints
  ledgerline checkpoint list

  # Restore from a checkpoint
  ledgerline checkpoint restore pre-2026-import

  # Delete an old checkpoint
  ledgerline checkpoint delete old-checkpoint`,
	}

	cmd.AddCommand(createCheckpointCmd())
	cmd.AddCommand(listCheckpointsCmd())
	cmd.AddCommand(restoreCheckpointCmd())
	cmd.AddCommand(deleteCheckpointCmd())

	return cmd
}

// withCheckpoints opens the store and hands its checkpoint manager to fn.
func withCheckpoints(ctx context.Context, fn func(*storage.CheckpointManager) error) error {
	engine, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	manager, err := engine.Checkpoints()
	if err != nil {
		return fmt.Errorf("failed to create checkpoint manager: %w", err)
	}
	return fn(manager)
}

func findCheckpoint(ctx context.Context, manager *storage.CheckpointManager, id string) (*storage.CheckpointInfo, error) {
	checkpoints, err := manager.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	for i := range checkpoints {
		if checkpoints[i].ID == id {
			return &checkpoints[i], nil
		}
	}
	return nil, storage.ErrCheckpointNotFound
}

func createCheckpointCmd() *cobra.Command {
	var tag string
	var description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new checkpoint",
		Long:  `Create a snapshot of the current database state.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withCheckpoints(ctx, func(manager *storage.CheckpointManager) error {
				info, err := manager.Create(ctx, tag, description)
				if err != nil {
					return fmt.Errorf("failed to create checkpoint: %w", err)
				}

				fmt.Printf("%s Created checkpoint %s (%s)\n",
					cli.SuccessStyle.Render(cli.SuccessIcon),
					cli.InfoStyle.Render(info.ID),
					cli.FormatFileSize(info.FileSize))

				if info.Description != "" {
					fmt.Printf("  Description: %s\n", info.Description)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "Checkpoint tag/name (auto-generated if not provided)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description of the checkpoint")

	return cmd
}

func listCheckpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all checkpoints",
		Long:  `Display all available checkpoints with their metadata.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withCheckpoints(ctx, func(manager *storage.CheckpointManager) error {
				checkpoints, err := manager.List(ctx)
				if err != nil {
					return fmt.Errorf("failed to list checkpoints: %w", err)
				}

				if len(checkpoints) == 0 {
					fmt.Println(cli.SubtitleStyle.Render("No checkpoints found."))
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, strings.Join([]string{
					cli.HeaderStyle.Render("NAME"),
					cli.HeaderStyle.Render("CREATED"),
					cli.HeaderStyle.Render("SIZE"),
					cli.HeaderStyle.Render("TRANSACTIONS"),
					cli.HeaderStyle.Render("BUDGETS"),
					cli.HeaderStyle.Render("TYPE"),
				}, "\t"))

				for _, cp := range checkpoints {
					typeLabel := "manual"
					if cp.IsAuto {
						typeLabel = "auto"
					}

					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
						cli.InfoStyle.Render(cp.ID),
						formatRelativeTime(cp.CreatedAt),
						cli.FormatFileSize(cp.FileSize),
						cp.RowCounts["transactions"],
						cp.RowCounts["budgets"],
						cli.SubtitleStyle.Render(typeLabel),
					)
				}

				return w.Flush()
			})
		},
	}
}

func restoreCheckpointCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <checkpoint-id>",
		Short: "Restore database from a checkpoint",
		Long:  `Replace the current database with a checkpoint.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			checkpointID := args[0]

			var info *storage.CheckpointInfo
			err := withCheckpoints(ctx, func(manager *storage.CheckpointManager) error {
				var err error
				info, err = findCheckpoint(ctx, manager, checkpointID)
				return err
			})
			if err != nil {
				return err
			}

			// Confirm unless force flag is set
			if !force {
				fmt.Printf("%s This will replace your current database with checkpoint %s.\n",
					cli.WarningStyle.Render(cli.WarningIcon),
					cli.InfoStyle.Render(checkpointID))
				fmt.Printf("  Created: %s\n", info.CreatedAt.Format("2006-01-02 15:04:05"))
				if info.Description != "" {
					fmt.Printf("  Description: %s\n", info.Description)
				}
				ok, err := cli.Confirm(ctx, os.Stdin, os.Stdout, "\nContinue?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println(cli.SubtitleStyle.Render("Restore cancelled."))
					return nil
				}
			}

			// The store was closed by withCheckpoints; the file can be replaced.
			if err := storage.RestoreCheckpoint(ctx, cfg.Database.Path, checkpointID); err != nil {
				return fmt.Errorf("failed to restore checkpoint: %w", err)
			}

			fmt.Printf("%s Restored from checkpoint %s\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.InfoStyle.Render(checkpointID))

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}

func deleteCheckpointCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <checkpoint-id>",
		Short: "Delete a checkpoint",
		Long:  `Permanently remove a checkpoint.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			checkpointID := args[0]

			return withCheckpoints(ctx, func(manager *storage.CheckpointManager) error {
				info, err := findCheckpoint(ctx, manager, checkpointID)
				if err != nil {
					return err
				}

				if !force {
					fmt.Printf("%s This will permanently delete checkpoint %s.\n",
						cli.WarningStyle.Render(cli.WarningIcon),
						cli.InfoStyle.Render(checkpointID))
					fmt.Printf("  Created: %s\n", info.CreatedAt.Format("2006-01-02 15:04:05"))
					fmt.Printf("  Size: %s\n", cli.FormatFileSize(info.FileSize))
					ok, err := cli.Confirm(ctx, os.Stdin, os.Stdout, "\nContinue?")
					if err != nil {
						return err
					}
					if !ok {
						fmt.Println(cli.SubtitleStyle.Render("Deletion cancelled."))
						return nil
					}
				}

				if err := manager.Delete(ctx, checkpointID); err != nil {
					return fmt.Errorf("failed to delete checkpoint: %w", err)
				}

				fmt.Printf("%s Deleted checkpoint %s\n",
					cli.SuccessStyle.Render(cli.SuccessIcon),
					cli.InfoStyle.Render(checkpointID))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}

// autoCheckpoint snapshots a sqlite ledger before a bulk operation. Other
// backends are skipped.
func autoCheckpoint(ctx context.Context, checkpoints func() (*storage.CheckpointManager, error), operation string) {
	if cfg.Database.Backend != config.BackendSQLite {
		return
	}
	manager, err := checkpoints()
	if err != nil {
		fmt.Println(cli.FormatWarning("Skipping automatic checkpoint: " + err.Error()))
		return
	}
	info, err := manager.AutoCheckpoint(ctx, operation)
	if err != nil {
		fmt.Println(cli.FormatWarning("Automatic checkpoint failed: " + err.Error()))
		return
	}
	fmt.Println(cli.FormatInfo("Saved checkpoint " + info.ID))
}

func formatRelativeTime(t time.Time) string {
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case duration < 24*time.Hour:
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case duration < 7*24*time.Hour:
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "yesterday"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}
