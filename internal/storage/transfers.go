package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-ledger-must-balance/internal/common"
	"github.com/Veraticus/the-ledger-must-balance/internal/model"
	"github.com/Veraticus/the-ledger-must-balance/internal/service"
)

// upsertQuery writes a transfer keyed by the provider's id. Re-running a sync
// over an overlapping date range updates rows in place instead of
// duplicating them.
const upsertQuery = `
	INSERT INTO transfers (
		id, status, amount, currency, net_amount, direction, created,
		correlation_id, customer_id, customer_name, customer_email,
		customer_business, funding_ref, funding_name, return_code,
		failure_title, failure_category, failure_action, failure_retryable,
		synced_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		amount = excluded.amount,
		currency = excluded.currency,
		net_amount = excluded.net_amount,
		direction = excluded.direction,
		created = excluded.created,
		correlation_id = excluded.correlation_id,
		customer_id = excluded.customer_id,
		customer_name = excluded.customer_name,
		customer_email = excluded.customer_email,
		customer_business = excluded.customer_business,
		funding_ref = excluded.funding_ref,
		funding_name = excluded.funding_name,
		return_code = excluded.return_code,
		failure_title = excluded.failure_title,
		failure_category = excluded.failure_category,
		failure_action = excluded.failure_action,
		failure_retryable = excluded.failure_retryable,
		synced_at = excluded.synced_at
`

// UpsertTransfer writes or updates a single transaction. Each row is fully
// written in its latest form or left untouched.
func (s *SQLiteStorage) UpsertTransfer(ctx context.Context, transaction *model.EnrichedTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransfer(transaction); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, upsertQuery, upsertArgs(transaction)...)
	if err != nil {
		return fmt.Errorf("failed to upsert transfer %s: %w", transaction.ID, err)
	}
	return nil
}

// UpsertTransfers writes a batch of transactions in one database
// transaction: all rows land or none do.
func (s *SQLiteStorage) UpsertTransfers(ctx context.Context, transactions []model.EnrichedTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransfers(transactions); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range transactions {
		if _, err := stmt.ExecContext(ctx, upsertArgs(&transactions[i])...); err != nil {
			return fmt.Errorf("failed to upsert transfer %s: %w", transactions[i].ID, err)
		}
	}

	return tx.Commit()
}

// upsertArgs flattens a transaction into the upsert parameter list. Failure
// fields are NULL when the transfer has no failure classification.
func upsertArgs(t *model.EnrichedTransaction) []any {
	var returnCode, failureTitle, failureCategory, failureAction sql.NullString
	var failureRetryable sql.NullBool
	if t.Failure != nil {
		returnCode = sql.NullString{String: t.Failure.ReturnCode, Valid: true}
		failureTitle = sql.NullString{String: t.Failure.Title, Valid: true}
		failureCategory = sql.NullString{String: t.Failure.Category, Valid: true}
		failureAction = sql.NullString{String: t.Failure.UserAction, Valid: true}
		failureRetryable = sql.NullBool{Bool: t.Failure.Retryable, Valid: true}
	}

	return []any{
		t.ID,
		string(t.Status),
		t.Amount,
		t.Currency,
		t.NetAmount,
		string(t.Direction),
		t.Created,
		t.CorrelationID,
		t.Counterparty.CustomerID,
		t.Counterparty.Name,
		t.Counterparty.Email,
		t.Counterparty.BusinessName,
		t.Counterparty.FundingRef,
		t.Counterparty.FundingName,
		returnCode,
		failureTitle,
		failureCategory,
		failureAction,
		failureRetryable,
		t.SyncedAt,
	}
}

const selectColumns = `
	id, status, amount, currency, net_amount, direction, created,
	correlation_id, customer_id, customer_name, customer_email,
	customer_business, funding_ref, funding_name, return_code,
	failure_title, failure_category, failure_action, failure_retryable,
	synced_at
`

// GetTransferByID retrieves a single transaction by the provider's id.
func (s *SQLiteStorage) GetTransferByID(ctx context.Context, id string) (*model.EnrichedTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM transfers WHERE id = ?", id)
	txn, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transfer %s: %w", id, common.ErrNotFound)
		}
		return nil, err
	}
	return txn, nil
}

// GetTransfers retrieves stored transactions matching the filter, newest
// first.
func (s *SQLiteStorage) GetTransfers(ctx context.Context, filter service.TransferFilter) ([]model.EnrichedTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := "SELECT " + selectColumns + " FROM transfers"
	var conditions []string
	var args []any

	if filter.StartDate != nil {
		conditions = append(conditions, "created >= ?")
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		conditions = append(conditions, "created <= ?")
		args = append(args, *filter.EndDate)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transfers []model.EnrichedTransaction
	for rows.Next() {
		txn, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transfers: %w", err)
	}

	return transfers, nil
}

// CountTransfers returns the number of stored transactions.
func (s *SQLiteStorage) CountTransfers(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transfers").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transfers: %w", err)
	}
	return count, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTransfer reads one transfer row, reconstructing the FailureInfo only
// when failure columns are populated.
func scanTransfer(row rowScanner) (*model.EnrichedTransaction, error) {
	var txn model.EnrichedTransaction
	var status, direction string
	var returnCode, failureTitle, failureCategory, failureAction sql.NullString
	var failureRetryable sql.NullBool

	err := row.Scan(
		&txn.ID,
		&status,
		&txn.Amount,
		&txn.Currency,
		&txn.NetAmount,
		&direction,
		&txn.Created,
		&txn.CorrelationID,
		&txn.Counterparty.CustomerID,
		&txn.Counterparty.Name,
		&txn.Counterparty.Email,
		&txn.Counterparty.BusinessName,
		&txn.Counterparty.FundingRef,
		&txn.Counterparty.FundingName,
		&returnCode,
		&failureTitle,
		&failureCategory,
		&failureAction,
		&failureRetryable,
		&txn.SyncedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transfer: %w", err)
	}

	txn.Status = model.TransferStatus(status)
	txn.Direction = model.TransferDirection(direction)

	if failureTitle.Valid {
		txn.Failure = &model.FailureInfo{
			ReturnCode: returnCode.String,
			Title:      failureTitle.String,
			Category:   failureCategory.String,
			UserAction: failureAction.String,
			Retryable:  failureRetryable.Bool,
		}
	}

	return &txn, nil
}
