// Package membership enforces role-based access to business workspaces.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/identity"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/service"
)

// Authority decides who may read, write, and manage a workspace.
// Every decision reads the actor's role from the store at call time.
type Authority struct {
	store service.Storage
	now   func() time.Time
}

// NewAuthority returns an Authority backed by store.
func NewAuthority(store service.Storage) *Authority {
	return &Authority{store: store, now: time.Now}
}

// RoleIn returns the user's current role in the workspace, or ErrNotFound
// when the user is not a member.
func RoleIn(ctx context.Context, l service.Ledger, workspaceID, userID string) (model.Role, error) {
	m, err := l.GetMembership(ctx, workspaceID, userID)
	if err != nil {
		return "", err
	}
	return m.Role, nil
}

// AuthorizeRead reports ErrNotFound when the user cannot see the workspace.
func AuthorizeRead(ctx context.Context, l service.Ledger, workspaceID, userID string) error {
	if _, err := RoleIn(ctx, l, workspaceID, userID); err != nil {
		return fmt.Errorf("workspace %s: %w", workspaceID, err)
	}
	return nil
}

// AuthorizeWrite reports ErrNotFound for non-members and ErrForbidden for
// members whose role may not mutate ledger data.
func AuthorizeWrite(ctx context.Context, l service.Ledger, workspaceID, userID string) error {
	role, err := RoleIn(ctx, l, workspaceID, userID)
	if err != nil {
		return fmt.Errorf("workspace %s: %w", workspaceID, err)
	}
	if !role.CanWrite() {
		return fmt.Errorf("%s may not modify workspace %s: %w", role, workspaceID, common.ErrForbidden)
	}
	return nil
}

// RoleOf returns the acting user's role in the workspace.
func (a *Authority) RoleOf(ctx context.Context, workspaceID string) (model.Role, error) {
	actor, err := identity.Actor(ctx)
	if err != nil {
		return "", err
	}
	role, err := RoleIn(ctx, a.store, workspaceID, actor)
	if err != nil {
		return "", fmt.Errorf("workspace %s: %w", workspaceID, err)
	}
	return role, nil
}

// ListMembers returns the workspace's members to any member.
func (a *Authority) ListMembers(ctx context.Context, workspaceID string) ([]model.Membership, error) {
	actor, err := identity.Actor(ctx)
	if err != nil {
		return nil, err
	}

	var members []model.Membership
	err = service.RunInTx(ctx, a.store, func(l service.Ledger) error {
		if err := AuthorizeRead(ctx, l, workspaceID, actor); err != nil {
			return err
		}
		members, err = l.ListMemberships(ctx, workspaceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// AddMember invites a user with a non-owner role. Owners and admins may add members.
func (a *Authority) AddMember(ctx context.Context, workspaceID, userID string, role model.Role) error {
	actor, err := identity.Actor(ctx)
	if err != nil {
		return err
	}
	if err := validateAssignable(role); err != nil {
		return err
	}
	if userID == "" {
		return common.Invalid("userId", "must not be empty")
	}

	return service.RunInTx(ctx, a.store, func(l service.Ledger) error {
		actorRole, err := RoleIn(ctx, l, workspaceID, actor)
		if err != nil {
			return forbiddenUnlessFailure(err, workspaceID)
		}
		if !actorRole.CanAddMembers() {
			return fmt.Errorf("%s may not add members to %s: %w", actorRole, workspaceID, common.ErrForbidden)
		}

		_, err = l.GetMembership(ctx, workspaceID, userID)
		switch {
		case err == nil:
			return common.Invalid("userId", userID+" is already a member")
		case !errors.Is(err, common.ErrNotFound):
			return err
		}

		if err := l.PutMembership(ctx, &model.Membership{
			WorkspaceID: workspaceID,
			UserID:      userID,
			Role:        role,
			JoinedAt:    a.now().UTC(),
		}); err != nil {
			return err
		}

		slog.Info("Added workspace member", "workspace", workspaceID, "user", userID, "role", role, "by", actor)
		return nil
	})
}

// ChangeRole sets the target member's role. Only a current owner may change
// roles, never their own, and never to owner. Only the role field changes.
func (a *Authority) ChangeRole(ctx context.Context, workspaceID, targetUserID string, newRole model.Role) error {
	actor, err := identity.Actor(ctx)
	if err != nil {
		return err
	}
	if err := validateAssignable(newRole); err != nil {
		return err
	}
	if targetUserID == "" {
		return common.Invalid("userId", "must not be empty")
	}

	return service.RunInTx(ctx, a.store, func(l service.Ledger) error {
		actorRole, err := RoleIn(ctx, l, workspaceID, actor)
		if err != nil {
			return forbiddenUnlessFailure(err, workspaceID)
		}
		if actorRole != model.RoleOwner {
			return fmt.Errorf("%s may not change roles in %s: %w", actorRole, workspaceID, common.ErrForbidden)
		}
		if targetUserID == actor {
			return fmt.Errorf("owners cannot change their own role: %w", common.ErrForbidden)
		}

		target, err := l.GetMembership(ctx, workspaceID, targetUserID)
		if err != nil {
			return fmt.Errorf("member %s: %w", targetUserID, err)
		}
		if target.Role == newRole {
			return nil
		}

		if err := l.SetMembershipRole(ctx, workspaceID, targetUserID, newRole); err != nil {
			return err
		}

		slog.Info("Changed workspace role",
			"workspace", workspaceID,
			"user", targetUserID,
			"from", target.Role,
			"to", newRole,
			"by", actor)
		return nil
	})
}

func validateAssignable(role model.Role) error {
	if !role.Valid() {
		return common.Invalid("role", "unknown role "+string(role))
	}
	if role == model.RoleOwner {
		return common.Invalid("role", "ownership cannot be granted through a role change")
	}
	return nil
}

// forbiddenUnlessFailure turns "actor is not a member" into Forbidden while
// keeping store failures intact.
func forbiddenUnlessFailure(err error, workspaceID string) error {
	if errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("not a member of %s: %w", workspaceID, common.ErrForbidden)
	}
	return err
}
