package model

import (
	"slices"
	"strings"

	"github.com/Veraticus/ledgerline/internal/common"
)

// AccountMode selects the onboarding path.
type AccountMode string

const (
	ModePersonal AccountMode = "personal"
	ModeBusiness AccountMode = "business"
)

// Profile is the user-editable part of an account.
type Profile struct {
	DisplayName string
	Email       string
	Currency    string
	Mode        AccountMode
}

// Account is a signed-up user. Accounts are never hard-deleted.
type Account struct {
	Profile            Profile
	ID                 string
	ActiveBudgetRef    string
	PrimaryWorkspaceID string // legacy single-workspace pointer
	WorkspaceIDs       []string
}

// HasWorkspace reports whether the workspace is attached to the account.
func (a *Account) HasWorkspace(workspaceID string) bool {
	return slices.Contains(a.WorkspaceIDs, workspaceID)
}

// Validate checks the account document.
func (a *Account) Validate() error {
	if a == nil {
		return common.Invalid("account", "missing")
	}
	if strings.TrimSpace(a.ID) == "" {
		return common.Invalid("id", "missing identifier")
	}
	if strings.TrimSpace(a.Profile.DisplayName) == "" {
		return common.Invalid("displayName", "must not be empty")
	}
	switch a.Profile.Mode {
	case ModePersonal, ModeBusiness:
	default:
		return common.Invalid("mode", "must be personal or business")
	}
	if a.Profile.Currency != "" {
		if err := ValidateCurrency(a.Profile.Currency); err != nil {
			return err
		}
	}
	return nil
}
