// Package ofx reads OFX/QFX bank and card statements into ledger entries.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/Veraticus/ledgerline/internal/ledger"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

// DefaultCategory is used for statement lines with no inferable category.
const DefaultCategory = "Uncategorized"

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tags at end of line that lost their closing bracket.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// typeCategories maps OFX transaction types to ledger categories.
var typeCategories = map[string]string{
	"INT":    "Interest",
	"DIV":    "Dividends",
	"FEE":    "Bank Fees",
	"SRVCHG": "Bank Fees",
	"ATM":    "Cash & ATM",
	"CASH":   "Cash & ATM",
}

// Parser converts OFX statements into ledger entries.
type Parser struct {
	defaultCategory string
}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{defaultCategory: DefaultCategory}
}

// WithDefaultCategory overrides the fallback category.
func (p *Parser) WithDefaultCategory(category string) *Parser {
	if strings.TrimSpace(category) != "" {
		p.defaultCategory = strings.TrimSpace(category)
	}
	return p
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// SEVERITY must be upper case (INFO, WARN, or ERROR).
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	return tagFixRegex.ReplaceAllString(content, "$1>")
}

func (p *Parser) parse(reader io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// ParseFile parses an OFX/QFX file. Debits become expenses and credits
// income. Entry IDs derive from the statement account and FITID so that
// importing the same statement twice records each line once.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]ledger.EntryInput, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	var entries []ledger.EntryInput
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			bankStmts++
			entries = append(entries, p.convertList(stmt.BankTranList, string(stmt.BankAcctFrom.AcctID))...)
		}
	}

	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			ccStmts++
			entries = append(entries, p.convertList(stmt.BankTranList, string(stmt.CCAcctFrom.AcctID))...)
		}
	}

	slog.Info("Parsed OFX file",
		"total_transactions", len(entries),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return entries, nil
}

func (p *Parser) convertList(list *ofxgo.TransactionList, accountID string) []ledger.EntryInput {
	if list == nil {
		return nil
	}

	entries := make([]ledger.EntryInput, 0, len(list.Transactions))
	for _, ofxTx := range list.Transactions {
		entry, err := p.convertTransaction(ofxTx, accountID)
		if err != nil {
			slog.Warn("Skipping statement line",
				"account", accountID,
				"fitid", string(ofxTx.FiTID),
				"error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// convertTransaction converts an OFX transaction to a ledger entry.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, accountID string) (ledger.EntryInput, error) {
	amount, err := decimal.NewFromString(ofxTx.TrnAmt.FloatString(4))
	if err != nil {
		return ledger.EntryInput{}, fmt.Errorf("unreadable amount: %w", err)
	}
	if amount.IsZero() {
		return ledger.EntryInput{}, fmt.Errorf("zero amount")
	}

	kind := model.KindIncome
	if amount.IsNegative() {
		kind = model.KindExpense
	}

	trnType := fmt.Sprintf("%v", ofxTx.TrnType)
	category, ok := typeCategories[trnType]
	if !ok {
		category = p.defaultCategory
	}

	description := p.extractMerchantName(ofxTx)
	if ofxTx.CheckNum != "" && !strings.Contains(description, string(ofxTx.CheckNum)) {
		description = strings.TrimSpace(description + " #" + string(ofxTx.CheckNum))
	}
	if len(description) > model.MaxDescriptionLength {
		description = description[:model.MaxDescriptionLength]
	}

	return ledger.EntryInput{
		ID:          entryID(accountID, string(ofxTx.FiTID)),
		Amount:      amount.Abs(),
		Kind:        kind,
		Category:    category,
		Description: description,
		OccurredAt:  ofxTx.DtPosted.UTC(),
	}, nil
}

func entryID(accountID, fitID string) string {
	return "ofx-" + accountID + "-" + fitID
}

// extractMerchantName tries to get a clean merchant name from OFX data.
func (p *Parser) extractMerchantName(tx ofxgo.Transaction) string {
	// PAYEE is usually the cleanest merchant name.
	if tx.Payee != nil && tx.Payee.Name != "" {
		return string(tx.Payee.Name)
	}

	name := string(tx.Name)
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	prefixes := []string{
		"POS PURCHASE ",
		"PURCHASE AUTHORIZED ON ",
		"DEBIT CARD PURCHASE ",
		"ACH DEBIT ",
		"CHECK CARD ",
		"VISA PURCHASE ",
		"MC PURCHASE ",
		"DEBIT PURCHASE ",
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading "MM/DD " dates.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

// isGenericDescription checks if a transaction name is too generic.
func isGenericDescription(name string) bool {
	switch strings.ToUpper(name) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	default:
		return false
	}
}

// GetAccounts returns the sorted account IDs present in the file.
func (p *Parser) GetAccounts(ctx context.Context, reader io.Reader) ([]string, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankAcctFrom.AcctID != "" {
			seen[string(stmt.BankAcctFrom.AcctID)] = true
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.CCAcctFrom.AcctID != "" {
			seen[string(stmt.CCAcctFrom.AcctID)] = true
		}
	}

	accounts := make([]string, 0, len(seen))
	for acct := range seen {
		accounts = append(accounts, acct)
	}
	sort.Strings(accounts)
	return accounts, nil
}
