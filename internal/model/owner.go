// Package model holds the tagged records persisted by the ledger store.
package model

import (
	"strings"

	"github.com/Veraticus/ledgerline/internal/common"
)

// OwnerKind distinguishes personal accounts from business workspaces.
type OwnerKind string

const (
	// OwnerAccount scopes data to a single personal account.
	OwnerAccount OwnerKind = "account"
	// OwnerWorkspace scopes data to a shared business workspace.
	OwnerWorkspace OwnerKind = "workspace"
)

// Owner identifies the tenant a ledger entry, budget, or trend belongs to.
type Owner struct {
	Kind OwnerKind
	ID   string
}

// AccountOwner returns the owner for a personal account.
func AccountOwner(accountID string) Owner {
	return Owner{Kind: OwnerAccount, ID: accountID}
}

// WorkspaceOwner returns the owner for a business workspace.
func WorkspaceOwner(workspaceID string) Owner {
	return Owner{Kind: OwnerWorkspace, ID: workspaceID}
}

func (o Owner) String() string {
	return string(o.Kind) + "/" + o.ID
}

// IsWorkspace reports whether the owner is a business workspace.
func (o Owner) IsWorkspace() bool {
	return o.Kind == OwnerWorkspace
}

// Validate rejects unknown kinds and empty identifiers.
func (o Owner) Validate() error {
	switch o.Kind {
	case OwnerAccount, OwnerWorkspace:
	default:
		return common.Invalid("owner", "unknown owner kind "+string(o.Kind))
	}
	if strings.TrimSpace(o.ID) == "" {
		return common.Invalid("owner", "missing identifier")
	}
	return nil
}
