package memstore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/model"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

func (l memLedger) PutWorkspace(ctx context.Context, ws *model.Workspace) error {
	if err := ws.Validate(); err != nil {
		return err
	}
	return l.with(ctx, func(st *state) error {
		next := *ws
		if existing, ok := st.workspaces[ws.ID]; ok {
			next.CreatedAt = existing.CreatedAt
		} else if next.CreatedAt.IsZero() {
			next.CreatedAt = nowUTC()
		}
		next.CreatedAt = next.CreatedAt.UTC()
		st.workspaces[ws.ID] = next
		return nil
	})
}

func (l memLedger) GetWorkspace(ctx context.Context, workspaceID string) (*model.Workspace, error) {
	if err := requireString(workspaceID, "workspaceId"); err != nil {
		return nil, err
	}
	var out model.Workspace
	err := l.with(ctx, func(st *state) error {
		ws, ok := st.workspaces[workspaceID]
		if !ok {
			return notFound("get workspace " + workspaceID)
		}
		out = ws
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (l memLedger) PutMembership(ctx context.Context, m *model.Membership) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return l.with(ctx, func(st *state) error {
		members := st.members[m.WorkspaceID]
		if members == nil {
			members = make(map[string]model.Membership)
			st.members[m.WorkspaceID] = members
		}
		if existing, ok := members[m.UserID]; ok {
			existing.Role = m.Role
			members[m.UserID] = existing
			return nil
		}
		next := *m
		next.JoinedAt = next.JoinedAt.UTC()
		members[m.UserID] = next
		return nil
	})
}

func (l memLedger) GetMembership(ctx context.Context, workspaceID, userID string) (*model.Membership, error) {
	if err := requireString(workspaceID, "workspaceId"); err != nil {
		return nil, err
	}
	if err := requireString(userID, "userId"); err != nil {
		return nil, err
	}
	var out model.Membership
	err := l.with(ctx, func(st *state) error {
		m, ok := st.members[workspaceID][userID]
		if !ok {
			return notFound("get membership " + workspaceID + "/" + userID)
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (l memLedger) ListMemberships(ctx context.Context, workspaceID string) ([]model.Membership, error) {
	if err := requireString(workspaceID, "workspaceId"); err != nil {
		return nil, err
	}
	var out []model.Membership
	err := l.with(ctx, func(st *state) error {
		for _, m := range st.members[workspaceID] {
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b model.Membership) int {
		return cmp.Or(a.JoinedAt.Compare(b.JoinedAt), cmp.Compare(a.UserID, b.UserID))
	})
	return out, nil
}

func (l memLedger) SetMembershipRole(ctx context.Context, workspaceID, userID string, role model.Role) error {
	if err := requireString(workspaceID, "workspaceId"); err != nil {
		return err
	}
	if err := requireString(userID, "userId"); err != nil {
		return err
	}
	if !role.Valid() {
		return common.Invalid("role", "unknown role "+string(role))
	}
	return l.with(ctx, func(st *state) error {
		m, ok := st.members[workspaceID][userID]
		if !ok {
			return notFound("set membership role " + workspaceID + "/" + userID)
		}
		m.Role = role
		st.members[workspaceID][userID] = m
		return nil
	})
}
