package membership

import (
	"context"
	"fmt"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/identity"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/service"
)

// Access is the kind of operation an actor wants to perform on owner data.
type Access int

const (
	// Read covers listing and derived views.
	Read Access = iota
	// Write covers every mutation of ledger or budget data.
	Write
)

// AuthorizeOwner checks that the acting user may access data scoped to owner.
// A personal owner is visible only to its account, and only once that account
// exists; anything else reads as ErrNotFound. Workspace access follows the caller's membership role.
func AuthorizeOwner(ctx context.Context, l service.Ledger, owner model.Owner, access Access) (string, error) {
	actor, err := identity.Actor(ctx)
	if err != nil {
		return "", err
	}
	if err := owner.Validate(); err != nil {
		return "", err
	}

	if !owner.IsWorkspace() {
		if owner.ID != actor {
			return "", fmt.Errorf("account %s: %w", owner.ID, common.ErrNotFound)
		}
		// Data may only exist under an onboarded account.
		if _, err := l.GetAccount(ctx, owner.ID); err != nil {
			return "", err
		}
		return actor, nil
	}

	if access == Write {
		return actor, AuthorizeWrite(ctx, l, owner.ID, actor)
	}
	return actor, AuthorizeRead(ctx, l, owner.ID, actor)
}
