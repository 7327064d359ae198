package memstore

import (
	"maps"
	"slices"

	"github.com/Veraticus/ledgerline/internal/model"
)

type state struct {
	accounts     map[string]model.Account
	transactions map[model.Owner]map[string]model.Transaction
	budgets      map[model.Owner]map[string]model.Budget
	liabilities  map[string]map[string]model.Liability
	workspaces   map[string]model.Workspace
	members      map[string]map[string]model.Membership
	sagas        map[string]model.SagaProgress
}

func newState() *state {
	return &state{
		accounts:     make(map[string]model.Account),
		transactions: make(map[model.Owner]map[string]model.Transaction),
		budgets:      make(map[model.Owner]map[string]model.Budget),
		liabilities:  make(map[string]map[string]model.Liability),
		workspaces:   make(map[string]model.Workspace),
		members:      make(map[string]map[string]model.Membership),
		sagas:        make(map[string]model.SagaProgress),
	}
}

// clone deep-copies every slice so the copy can be mutated independently.
func (s *state) clone() *state {
	c := &state{
		accounts:     make(map[string]model.Account, len(s.accounts)),
		transactions: make(map[model.Owner]map[string]model.Transaction, len(s.transactions)),
		budgets:      make(map[model.Owner]map[string]model.Budget, len(s.budgets)),
		liabilities:  make(map[string]map[string]model.Liability, len(s.liabilities)),
		workspaces:   maps.Clone(s.workspaces),
		members:      make(map[string]map[string]model.Membership, len(s.members)),
		sagas:        make(map[string]model.SagaProgress, len(s.sagas)),
	}
	for id, a := range s.accounts {
		a.WorkspaceIDs = slices.Clone(a.WorkspaceIDs)
		c.accounts[id] = a
	}
	for owner, txns := range s.transactions {
		c.transactions[owner] = maps.Clone(txns)
	}
	for owner, budgets := range s.budgets {
		m := make(map[string]model.Budget, len(budgets))
		for id, b := range budgets {
			m[id] = cloneBudget(b)
		}
		c.budgets[owner] = m
	}
	for acct, ls := range s.liabilities {
		c.liabilities[acct] = maps.Clone(ls)
	}
	for ws, ms := range s.members {
		c.members[ws] = maps.Clone(ms)
	}
	for id, p := range s.sagas {
		p.Plan = slices.Clone(p.Plan)
		c.sagas[id] = p
	}
	return c
}

func cloneBudget(b model.Budget) model.Budget {
	b.Categories = slices.Clone(b.Categories)
	return b
}
