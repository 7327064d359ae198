package ofx

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/ledgerline/internal/budget"
	"github.com/Veraticus/ledgerline/internal/identity"
	"github.com/Veraticus/ledgerline/internal/ledger"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/testutil"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFixture(t *testing.T, p *Parser, name string) []ledger.EntryInput {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	entries, err := p.ParseFile(context.Background(), f)
	require.NoError(t, err)
	return entries
}

func TestParseFileRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "not valid OFX"} {
		_, err := NewParser().ParseFile(context.Background(), strings.NewReader(input))
		assert.Error(t, err, "input %q", input)
	}
}

func TestParseChecking(t *testing.T) {
	entries := parseFixture(t, NewParser(), "checking.ofx")
	require.Len(t, entries, 5)

	byID := make(map[string]ledger.EntryInput, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	coffee := byID["ofx-0099887766-A-0303-1"]
	assert.Equal(t, "BLUE BOTTLE", coffee.Description)
	assert.Equal(t, model.KindExpense, coffee.Kind)
	assert.Equal(t, DefaultCategory, coffee.Category)
	assert.True(t, coffee.Amount.Equal(decimal.RequireFromString("18.40")))
	assert.Equal(t, time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC), coffee.OccurredAt)

	check := byID["ofx-0099887766-A-0315-1"]
	assert.Equal(t, "CHECK #2031", check.Description)
	assert.True(t, check.Amount.Equal(decimal.NewFromInt(1450)))

	fee := byID["ofx-0099887766-A-0320-1"]
	assert.Equal(t, "Bank Fees", fee.Category)
	assert.Equal(t, model.KindExpense, fee.Kind)

	pay := byID["ofx-0099887766-A-0327-1"]
	assert.Equal(t, model.KindIncome, pay.Kind)
	assert.True(t, pay.Amount.Equal(decimal.NewFromInt(3200)))
}

func TestParseCard(t *testing.T) {
	entries := parseFixture(t, NewParser().WithDefaultCategory("Card"), "card.qfx")
	require.Len(t, entries, 2)

	assert.Equal(t, "ofx-5500000000000004-C-0311-1", entries[0].ID)
	assert.Equal(t, "SQ *FARMERS MARKET", entries[0].Description)
	assert.Equal(t, "Card", entries[0].Category)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(64)))

	assert.Equal(t, model.KindIncome, entries[1].Kind, "refunds are credits")
	assert.True(t, entries[1].Amount.Equal(decimal.RequireFromString("12.99")))
}

func TestWithDefaultCategoryIgnoresBlank(t *testing.T) {
	p := NewParser().WithDefaultCategory("  ")
	assert.Equal(t, DefaultCategory, p.defaultCategory)
}

func TestExtractMerchantName(t *testing.T) {
	tests := []struct {
		name string
		tx   ofxgo.Transaction
		want string
	}{
		{name: "pos prefix", tx: ofxgo.Transaction{Name: "POS PURCHASE BLUE BOTTLE"}, want: "BLUE BOTTLE"},
		{name: "debit card prefix", tx: ofxgo.Transaction{Name: "DEBIT CARD PURCHASE TRADER JOES"}, want: "TRADER JOES"},
		{name: "leading date", tx: ofxgo.Transaction{Name: "03/09 TRADER JOES"}, want: "TRADER JOES"},
		{name: "generic name falls back to memo", tx: ofxgo.Transaction{Name: "DEBIT", Memo: "CITY PARKING"}, want: "CITY PARKING"},
		{name: "payee wins", tx: ofxgo.Transaction{Name: "X", Payee: &ofxgo.Payee{Name: "Landlord LLC"}}, want: "Landlord LLC"},
		{name: "trim whitespace", tx: ofxgo.Transaction{Name: "  NETFLIX.COM  "}, want: "NETFLIX.COM"},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.extractMerchantName(tt.tx))
		})
	}
}

func TestGetAccounts(t *testing.T) {
	for file, want := range map[string]string{"checking.ofx": "0099887766", "card.qfx": "5500000000000004"} {
		f, err := os.Open(filepath.Join("testdata", file))
		require.NoError(t, err)
		accounts, err := NewParser().GetAccounts(context.Background(), f)
		_ = f.Close()
		require.NoError(t, err)
		assert.Equal(t, []string{want}, accounts)
	}
}

func TestImportPostsAndIsIdempotent(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *testutil.TestDB) {
		db.SeedAccount("alice")
		owner := model.AccountOwner("alice")
		ctx := identity.WithActor(context.Background(), "alice")
		march := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
		b := db.NewBudget(owner, "mar").
			Monthly(march).
			WithCategory(DefaultCategory, "2000").
			WithCategory("Bank Fees", "10").
			Seed()
		svc := ledger.NewService(db.Storage, budget.NewAggregator(db.Storage, nil), nil)

		entries := parseFixture(t, NewParser(), "checking.ofx")

		result, err := svc.Import(ctx, owner, entries, nil)
		require.NoError(t, err)
		assert.Len(t, result.Recorded, 5)
		assert.Empty(t, result.Failed)

		spent := db.MustGetCategory(owner, b.ID, DefaultCategory).Spent
		assert.True(t, spent.Equal(decimal.RequireFromString("1564.55")), "got %s", spent)
		fees := db.MustGetCategory(owner, b.ID, "Bank Fees").Spent
		assert.True(t, fees.Equal(decimal.NewFromInt(5)), "got %s", fees)

		result, err = svc.Import(ctx, owner, entries, nil)
		require.NoError(t, err)
		assert.Empty(t, result.Recorded)
		assert.Len(t, result.Skipped, 5)

		spent = db.MustGetCategory(owner, b.ID, DefaultCategory).Spent
		assert.True(t, spent.Equal(decimal.RequireFromString("1564.55")), "re-import must not double count")
	})
}
