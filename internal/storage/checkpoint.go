package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// CheckpointInfo describes a saved copy of the ledger database.
type CheckpointInfo struct {
	CreatedAt     time.Time      `json:"created_at"`
	RowCounts     map[string]int `json:"row_counts"`
	ID            string         `json:"id"`
	Description   string         `json:"description"`
	FileSize      int64          `json:"file_size"`
	SchemaVersion int            `json:"schema_version"`
	IsAuto        bool           `json:"is_auto"`
}

// Checkpoint errors.
var (
	ErrCheckpointNotFound  = errors.New("checkpoint not found")
	ErrCheckpointExists    = errors.New("checkpoint already exists")
	ErrCheckpointCorrupted = errors.New("checkpoint integrity check failed")
	ErrInvalidCheckpointID = errors.New("invalid checkpoint id")
)

// maxAutoCheckpoints bounds how many automatic checkpoints are retained.
const maxAutoCheckpoints = 5

// checkpointTables are counted into every checkpoint's metadata.
var checkpointTables = []string{
	"accounts", "transactions", "budgets", "budget_categories",
	"liabilities", "workspaces", "workspace_members", "saga_progress",
}

// CheckpointManager saves and restores copies of a file-backed SQLite ledger.
type CheckpointManager struct {
	store *SQLiteStorage
	dir   string
}

// NewCheckpointManager returns a manager writing next to the database file.
func NewCheckpointManager(store *SQLiteStorage) (*CheckpointManager, error) {
	if store.dbPath == ":memory:" {
		return nil, errors.New("checkpoints require a file-backed database")
	}
	dir := filepath.Join(filepath.Dir(store.dbPath), "checkpoints")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	return &CheckpointManager{store: store, dir: dir}, nil
}

// Create copies the live database with VACUUM INTO and records its metadata.
func (cm *CheckpointManager) Create(ctx context.Context, tag, description string) (*CheckpointInfo, error) {
	if tag == "" {
		tag = "checkpoint-" + time.Now().Format("2006-01-02-150405")
	}
	if err := validateCheckpointID(tag); err != nil {
		return nil, err
	}

	dbPath := cm.path(tag, ".db")
	if _, err := os.Stat(dbPath); err == nil {
		return nil, ErrCheckpointExists
	}

	counts := make(map[string]int, len(checkpointTables))
	for _, table := range checkpointTables {
		var n int
		// table comes from the fixed list above.
		if err := cm.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, dbError("count "+table, err)
		}
		counts[table] = n
	}

	if _, err := cm.store.db.ExecContext(ctx, "VACUUM INTO ?", dbPath); err != nil {
		return nil, dbError("vacuum into checkpoint", err)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat checkpoint: %w", err)
	}

	info := &CheckpointInfo{
		ID:            tag,
		CreatedAt:     time.Now(),
		Description:   description,
		FileSize:      stat.Size(),
		RowCounts:     counts,
		SchemaVersion: ExpectedSchemaVersion,
	}
	if err := cm.saveMetadata(info); err != nil {
		if rmErr := os.Remove(dbPath); rmErr != nil {
			slog.Error("failed to remove checkpoint after metadata failure", "error", rmErr)
		}
		return nil, err
	}

	slog.Info("Created checkpoint", "id", tag, "size", info.FileSize)
	return info, nil
}

// AutoCheckpoint saves a checkpoint before a bulk operation and prunes old ones.
func (cm *CheckpointManager) AutoCheckpoint(ctx context.Context, operation string) (*CheckpointInfo, error) {
	tag := fmt.Sprintf("auto-%s-%s", operation, time.Now().Format("2006-01-02-150405.000"))
	info, err := cm.Create(ctx, tag, "Automatic checkpoint before "+operation)
	if err != nil {
		return nil, fmt.Errorf("failed to create auto-checkpoint: %w", err)
	}

	info.IsAuto = true
	if err := cm.saveMetadata(info); err != nil {
		slog.Warn("failed to mark checkpoint as automatic", "id", tag, "error", err)
	}

	if err := cm.pruneAuto(ctx); err != nil {
		slog.Warn("failed to prune automatic checkpoints", "error", err)
	}
	return info, nil
}

// List returns every checkpoint, newest first.
func (cm *CheckpointManager) List(_ context.Context) ([]CheckpointInfo, error) {
	entries, err := os.ReadDir(cm.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints directory: %w", err)
	}

	var out []CheckpointInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".meta.json") {
			continue
		}
		info, err := cm.loadMetadata(strings.TrimSuffix(name, ".meta.json"))
		if err != nil {
			slog.Debug("skipping unreadable checkpoint metadata", "file", name, "error", err)
			continue
		}
		out = append(out, *info)
	}

	slices.SortFunc(out, func(a, b CheckpointInfo) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Delete removes a checkpoint and its metadata.
func (cm *CheckpointManager) Delete(_ context.Context, id string) error {
	if err := validateCheckpointID(id); err != nil {
		return err
	}
	if err := os.Remove(cm.path(id, ".db")); err != nil {
		if os.IsNotExist(err) {
			return ErrCheckpointNotFound
		}
		return fmt.Errorf("failed to remove checkpoint: %w", err)
	}
	if err := os.Remove(cm.path(id, ".meta.json")); err != nil && !os.IsNotExist(err) {
		slog.Debug("failed to remove checkpoint metadata", "id", id, "error", err)
	}
	return nil
}

// RestoreCheckpoint replaces the database at dbPath with a checkpoint copy.
// The database must not be open while restoring.
func RestoreCheckpoint(ctx context.Context, dbPath, id string) error {
	if err := validateCheckpointID(id); err != nil {
		return err
	}
	src := filepath.Join(filepath.Dir(dbPath), "checkpoints", id+".db")
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return ErrCheckpointNotFound
		}
		return fmt.Errorf("failed to access checkpoint: %w", err)
	}

	check, err := NewSQLiteStorage(src)
	if err != nil {
		return err
	}
	var result string
	err = check.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result)
	_ = check.Close()
	if err != nil || result != "ok" {
		return ErrCheckpointCorrupted
	}

	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear %s file: %w", suffix, err)
		}
	}
	return copyFile(src, dbPath)
}

func (cm *CheckpointManager) pruneAuto(ctx context.Context) error {
	checkpoints, err := cm.List(ctx)
	if err != nil {
		return err
	}
	kept := 0
	for _, cp := range checkpoints {
		if !cp.IsAuto {
			continue
		}
		kept++
		if kept > maxAutoCheckpoints {
			if err := cm.Delete(ctx, cp.ID); err != nil {
				slog.Debug("failed to delete old auto-checkpoint", "id", cp.ID, "error", err)
			}
		}
	}
	return nil
}

func (cm *CheckpointManager) path(id, suffix string) string {
	return filepath.Join(cm.dir, id+suffix)
}

func (cm *CheckpointManager) saveMetadata(info *CheckpointInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	path := cm.path(info.ID, ".meta.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write checkpoint metadata: %w", err)
	}
	return os.Rename(tmp, path)
}

func (cm *CheckpointManager) loadMetadata(id string) (*CheckpointInfo, error) {
	data, err := os.ReadFile(cm.path(id, ".meta.json"))
	if err != nil {
		return nil, err
	}
	var info CheckpointInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func validateCheckpointID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\'";`) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidCheckpointID, id)
	}
	return nil
}

func copyFile(src, dst string) error {
	// #nosec G304 - src is built from a validated checkpoint id
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".tmp"
	// #nosec G304 - tmp sits next to the configured database path
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
