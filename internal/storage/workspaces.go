package storage

import (
	"context"
	"time"

	"github.com/Veraticus/ledgerline/internal/model"
)

// PutWorkspace upserts a workspace record.
func (l *sqlLedger) PutWorkspace(ctx context.Context, ws *model.Workspace) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := ws.Validate(); err != nil {
		return err
	}

	createdAt := ws.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := l.q.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, owner_id, currency, timezone, fiscal_year_start, tax_id, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			owner_id = excluded.owner_id,
			currency = excluded.currency,
			timezone = excluded.timezone,
			fiscal_year_start = excluded.fiscal_year_start,
			tax_id = excluded.tax_id,
			address = excluded.address`,
		ws.ID, ws.Name, ws.OwnerID, ws.Currency, ws.Timezone, ws.FiscalYearStart,
		ws.TaxID, ws.Address, toUnix(createdAt),
	)
	if err != nil {
		return dbError("put workspace "+ws.ID, err)
	}
	return nil
}

// GetWorkspace returns a workspace record.
func (l *sqlLedger) GetWorkspace(ctx context.Context, workspaceID string) (*model.Workspace, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(workspaceID, "workspaceId"); err != nil {
		return nil, err
	}

	var (
		ws        model.Workspace
		createdAt int64
	)
	err := l.q.QueryRowContext(ctx, `
		SELECT id, name, owner_id, currency, timezone, fiscal_year_start, tax_id, address, created_at
		FROM workspaces WHERE id = ?`, workspaceID,
	).Scan(&ws.ID, &ws.Name, &ws.OwnerID, &ws.Currency, &ws.Timezone, &ws.FiscalYearStart,
		&ws.TaxID, &ws.Address, &createdAt)
	if err != nil {
		return nil, dbError("get workspace "+workspaceID, err)
	}
	ws.CreatedAt = fromUnix(createdAt)

	if err := ws.Validate(); err != nil {
		return nil, checkStored("workspace", workspaceID, err)
	}
	return &ws, nil
}

// PutMembership upserts a membership. The original join time survives replays.
func (l *sqlLedger) PutMembership(ctx context.Context, m *model.Membership) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}

	_, err := l.q.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (workspace_id, user_id) DO UPDATE SET
			role = excluded.role`,
		m.WorkspaceID, m.UserID, string(m.Role), toUnix(m.JoinedAt),
	)
	if err != nil {
		return dbError("put membership "+m.WorkspaceID+"/"+m.UserID, err)
	}
	return nil
}

// GetMembership returns one member of a workspace.
func (l *sqlLedger) GetMembership(ctx context.Context, workspaceID, userID string) (*model.Membership, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(workspaceID, "workspaceId"); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userId"); err != nil {
		return nil, err
	}

	row := l.q.QueryRowContext(ctx, `
		SELECT workspace_id, user_id, role, joined_at
		FROM workspace_members
		WHERE workspace_id = ? AND user_id = ?`, workspaceID, userID)

	m, err := scanMembership(row)
	if err != nil {
		return nil, dbError("get membership "+workspaceID+"/"+userID, err)
	}
	if err := m.Validate(); err != nil {
		return nil, checkStored("membership", workspaceID+"/"+userID, err)
	}
	return m, nil
}

// ListMemberships returns the members of a workspace in join order.
func (l *sqlLedger) ListMemberships(ctx context.Context, workspaceID string) ([]model.Membership, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(workspaceID, "workspaceId"); err != nil {
		return nil, err
	}

	rows, err := l.q.QueryContext(ctx, `
		SELECT workspace_id, user_id, role, joined_at
		FROM workspace_members
		WHERE workspace_id = ?
		ORDER BY joined_at, user_id`, workspaceID)
	if err != nil {
		return nil, dbError("list memberships", err)
	}
	defer func() { _ = rows.Close() }()

	var members []model.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, dbError("scan membership", err)
		}
		if err := m.Validate(); err != nil {
			return nil, checkStored("membership", m.WorkspaceID+"/"+m.UserID, err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate memberships", err)
	}
	return members, nil
}

// SetMembershipRole updates only the role of an existing membership.
func (l *sqlLedger) SetMembershipRole(ctx context.Context, workspaceID, userID string, role model.Role) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(workspaceID, "workspaceId"); err != nil {
		return err
	}
	if err := validateString(userID, "userId"); err != nil {
		return err
	}
	if !role.Valid() {
		return invalidRole(role)
	}

	result, err := l.q.ExecContext(ctx, `
		UPDATE workspace_members SET role = ?
		WHERE workspace_id = ? AND user_id = ?`,
		string(role), workspaceID, userID)
	if err != nil {
		return dbError("set membership role", err)
	}
	return requireAffected(result, "set membership role "+workspaceID+"/"+userID)
}

func scanMembership(row scanner) (*model.Membership, error) {
	var (
		m        model.Membership
		role     string
		joinedAt int64
	)
	if err := row.Scan(&m.WorkspaceID, &m.UserID, &role, &joinedAt); err != nil {
		return nil, err
	}
	m.Role = model.Role(role)
	m.JoinedAt = fromUnix(joinedAt)
	return &m, nil
}
