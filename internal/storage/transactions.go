package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/Veraticus/ledgerline/internal/service"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, amount, category, kind, description, occurred_at, written_at`

// InsertTransaction stores a new ledger entry.
func (l *sqlLedger) InsertTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := txn.Validate(); err != nil {
		return err
	}

	_, err := l.q.ExecContext(ctx, `
		INSERT INTO transactions (
			owner_kind, owner_id, id, amount, category, kind,
			description, occurred_at, written_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(txn.Owner.Kind), txn.Owner.ID, txn.ID,
		txn.Amount.String(), txn.Category, string(txn.Kind),
		txn.Description, toUnix(txn.OccurredAt), toUnix(txn.WrittenAt),
	)
	if err != nil {
		return dbError("insert transaction "+txn.ID, err)
	}
	return nil
}

// GetTransaction returns one entry of the owner.
func (l *sqlLedger) GetTransaction(ctx context.Context, owner model.Owner, id string) (*model.Transaction, error) {
	if err := validateOwner(ctx, owner); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := l.q.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE owner_kind = ? AND owner_id = ? AND id = ?`,
		string(owner.Kind), owner.ID, id)

	txn, err := scanTransaction(row, owner)
	if err != nil {
		return nil, dbError("get transaction "+id, err)
	}
	if err := txn.Validate(); err != nil {
		return nil, checkStored("transaction", id, err)
	}
	return txn, nil
}

// UpdateTransaction overwrites the mutable fields of an existing entry.
func (l *sqlLedger) UpdateTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := txn.Validate(); err != nil {
		return err
	}

	result, err := l.q.ExecContext(ctx, `
		UPDATE transactions
		SET amount = ?, category = ?, kind = ?, description = ?, occurred_at = ?
		WHERE owner_kind = ? AND owner_id = ? AND id = ?`,
		txn.Amount.String(), txn.Category, string(txn.Kind), txn.Description,
		toUnix(txn.OccurredAt),
		string(txn.Owner.Kind), txn.Owner.ID, txn.ID,
	)
	if err != nil {
		return dbError("update transaction "+txn.ID, err)
	}
	return requireAffected(result, "update transaction "+txn.ID)
}

// DeleteTransaction removes an entry of the owner.
func (l *sqlLedger) DeleteTransaction(ctx context.Context, owner model.Owner, id string) error {
	if err := validateOwner(ctx, owner); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := l.q.ExecContext(ctx, `
		DELETE FROM transactions
		WHERE owner_kind = ? AND owner_id = ? AND id = ?`,
		string(owner.Kind), owner.ID, id)
	if err != nil {
		return dbError("delete transaction "+id, err)
	}
	return requireAffected(result, "delete transaction "+id)
}

// ListTransactions returns the owner's entries, newest occurrence first.
func (l *sqlLedger) ListTransactions(ctx context.Context, owner model.Owner, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateOwner(ctx, owner); err != nil {
		return nil, err
	}

	var query strings.Builder
	query.WriteString(`SELECT ` + transactionColumns + `
		FROM transactions
		WHERE owner_kind = ? AND owner_id = ?`)
	args := []any{string(owner.Kind), owner.ID}

	if !filter.From.IsZero() {
		query.WriteString(" AND occurred_at >= ?")
		args = append(args, toUnix(filter.From))
	}
	if !filter.To.IsZero() {
		query.WriteString(" AND occurred_at < ?")
		args = append(args, toUnix(filter.To))
	}

	query.WriteString(" ORDER BY occurred_at DESC, written_at DESC, id DESC")

	if filter.Limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := l.q.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, dbError("list transactions", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows, owner)
		if err != nil {
			return nil, dbError("scan transaction", err)
		}
		if err := txn.Validate(); err != nil {
			return nil, checkStored("transaction", txn.ID, err)
		}
		transactions = append(transactions, *txn)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("iterate transactions", err)
	}

	return transactions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner, owner model.Owner) (*model.Transaction, error) {
	var (
		txn        model.Transaction
		amount     string
		kind       string
		occurredAt int64
		writtenAt  int64
	)
	if err := row.Scan(&txn.ID, &amount, &txn.Category, &kind, &txn.Description, &occurredAt, &writtenAt); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, common.Invalid("amount", fmt.Sprintf("stored value %q is not a decimal", amount))
	}

	txn.Owner = owner
	txn.Amount = parsed
	txn.Kind = model.Kind(kind)
	txn.OccurredAt = fromUnix(occurredAt)
	txn.WrittenAt = fromUnix(writtenAt)
	return &txn, nil
}

func requireAffected(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return dbError(op, err)
	}
	if n == 0 {
		return dbError(op, sql.ErrNoRows)
	}
	return nil
}
