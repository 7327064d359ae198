package ledger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/membership"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/service"
)

// ImportFailure reports an entry that was rejected before any write.
type ImportFailure struct {
	Err   error
	Index int
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Recorded []string
	// Skipped lists IDs that were already present in the ledger.
	Skipped []string
	Failed  []ImportFailure
}

// ProgressFunc is called after each entry is processed.
type ProgressFunc func(done, total int)

// Import records many entries in one store transaction. Invalid entries are
// reported in the result and do not stop the others. Entries carrying an ID
// that already exists are skipped, so re-importing a statement is harmless.
func (s *Service) Import(ctx context.Context, owner model.Owner, entries []EntryInput, progress ProgressFunc) (*ImportResult, error) {
	if _, err := membership.AuthorizeOwner(ctx, s.store, owner, membership.Write); err != nil {
		return nil, err
	}

	result := &ImportResult{}
	valid := make([]*model.Transaction, 0, len(entries))
	for i, in := range entries {
		txn, err := s.build(owner, in)
		if err != nil {
			result.Failed = append(result.Failed, ImportFailure{Index: i, Err: err})
			continue
		}
		valid = append(valid, txn)
	}

	done := len(entries) - len(valid)
	err := service.RunInTx(ctx, s.store, func(l service.Ledger) error {
		result.Recorded, result.Skipped = nil, nil
		for _, txn := range valid {
			_, err := l.GetTransaction(ctx, owner, txn.ID)
			switch {
			case err == nil:
				result.Skipped = append(result.Skipped, txn.ID)
			case errors.Is(err, common.ErrNotFound):
				if err := s.insert(ctx, l, txn); err != nil {
					return err
				}
				result.Recorded = append(result.Recorded, txn.ID)
			default:
				return err
			}
			if progress != nil {
				progress(done+len(result.Recorded)+len(result.Skipped), len(entries))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Imported transactions",
		"owner", owner.String(),
		"recorded", len(result.Recorded),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed))
	if len(result.Recorded) > 0 {
		s.hub.Notify(ctx, owner)
	}
	return result, nil
}
