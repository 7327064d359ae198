package model

import (
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/Veraticus/ledgerline/internal/common"
)

// Role is a member's privilege level inside a workspace.
type Role string

const (
	// RoleOwner created the workspace and alone may change roles.
	RoleOwner Role = "owner"
	// RoleAdmin may write and invite members.
	RoleAdmin Role = "admin"
	// RoleAccountant may write ledger and budget data.
	RoleAccountant Role = "accountant"
	// RoleViewer may only read.
	RoleViewer Role = "viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleAccountant, RoleViewer:
		return true
	default:
		return false
	}
}

// CanWrite reports whether the role may mutate ledger data.
func (r Role) CanWrite() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleAccountant
}

// CanAddMembers reports whether the role may invite others.
func (r Role) CanAddMembers() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Workspace is a business account shared by several users.
type Workspace struct {
	CreatedAt       time.Time
	ID              string
	Name            string
	OwnerID         string
	Currency        string
	Timezone        string
	TaxID           string
	Address         string
	FiscalYearStart int // month, 1-12
}

// Validate checks the workspace document.
func (w *Workspace) Validate() error {
	if w == nil {
		return common.Invalid("workspace", "missing")
	}
	if strings.TrimSpace(w.ID) == "" {
		return common.Invalid("id", "missing identifier")
	}
	if strings.TrimSpace(w.Name) == "" {
		return common.Invalid("name", "must not be empty")
	}
	if strings.TrimSpace(w.OwnerID) == "" {
		return common.Invalid("ownerId", "missing identifier")
	}
	if err := ValidateCurrency(w.Currency); err != nil {
		return err
	}
	if _, err := time.LoadLocation(w.Timezone); err != nil || w.Timezone == "" {
		return common.Invalid("timezone", "unknown time zone "+w.Timezone)
	}
	if w.FiscalYearStart < 1 || w.FiscalYearStart > 12 {
		return common.Invalid("fiscalYearStart", "must be a month between 1 and 12")
	}
	return nil
}

// ValidateCurrency accepts ISO 4217 codes.
func ValidateCurrency(code string) error {
	if code == "" || money.GetCurrency(code) == nil {
		return common.Invalid("currency", "unknown currency code "+code)
	}
	return nil
}

// Membership grants a user a role inside a workspace.
type Membership struct {
	JoinedAt    time.Time
	WorkspaceID string
	UserID      string
	Role        Role
}

// Validate checks the membership document.
func (m *Membership) Validate() error {
	if m == nil {
		return common.Invalid("membership", "missing")
	}
	if strings.TrimSpace(m.WorkspaceID) == "" {
		return common.Invalid("workspaceId", "missing identifier")
	}
	if strings.TrimSpace(m.UserID) == "" {
		return common.Invalid("userId", "missing identifier")
	}
	if !m.Role.Valid() {
		return common.Invalid("role", "unknown role "+string(m.Role))
	}
	if m.JoinedAt.IsZero() {
		return common.Invalid("joinedAt", "missing timestamp")
	}
	return nil
}
