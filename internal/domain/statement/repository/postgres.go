// Package repository stores statements and their line items in PostgreSQL.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement"
)

const uniqueViolation = "23505"

const (
	insertStatementSQL = `
		INSERT INTO banking_statements (
			account_reference_id, statement_date, period_start, period_end,
			beginning_balance, ending_balance, total_fees, filename,
			important_notes, raw_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	insertDepositSQL = `
		INSERT INTO deposits (banking_statement_id, transaction_date, description, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	insertWithdrawalSQL = `
		INSERT INTO withdrawals (banking_statement_id, transaction_date, description, amount, tax_category)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
)

// rowQuerier is implemented by both Querier and pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStatementRepository implements StatementRepository using PostgreSQL
type PostgresStatementRepository struct {
	db Querier
}

// NewPostgresStatementRepository creates a new PostgreSQL statement repository
func NewPostgresStatementRepository(db Querier) *PostgresStatementRepository {
	return &PostgresStatementRepository{db: db}
}

// FetchAccountReference looks up an account by its full number
func (r *PostgresStatementRepository) FetchAccountReference(ctx context.Context, accountNumber string) (*statement.AccountReference, error) {
	query := `
		SELECT id, account_number, company_name, bank_name, account_type, created_at, updated_at
		FROM account_references
		WHERE account_number = $1`

	ref := &statement.AccountReference{}
	err := r.db.QueryRow(ctx, query, accountNumber).Scan(
		&ref.ID,
		&ref.AccountNumber,
		&ref.CompanyName,
		&ref.BankName,
		&ref.AccountType,
		&ref.CreatedAt,
		&ref.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", accountNumber, ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account reference: %w", err)
	}
	return ref, nil
}

// ListAccountReferences returns every account ordered by company and number
func (r *PostgresStatementRepository) ListAccountReferences(ctx context.Context) ([]statement.AccountReference, error) {
	query := `
		SELECT id, account_number, company_name, bank_name, account_type, created_at, updated_at
		FROM account_references
		ORDER BY company_name, account_number`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list account references: %w", err)
	}
	defer rows.Close()

	var refs []statement.AccountReference
	for rows.Next() {
		var ref statement.AccountReference
		if err := rows.Scan(
			&ref.ID,
			&ref.AccountNumber,
			&ref.CompanyName,
			&ref.BankName,
			&ref.AccountType,
			&ref.CreatedAt,
			&ref.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account reference: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate account references: %w", err)
	}
	return refs, nil
}

// StatementExists reports whether a statement was stored for the source file
func (r *PostgresStatementRepository) StatementExists(ctx context.Context, filename string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM banking_statements WHERE filename = $1)`,
		filename,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check statement existence: %w", err)
	}
	return exists, nil
}

// StatementExistsForDate reports whether the account already has a statement
// closing on statementDate
func (r *PostgresStatementRepository) StatementExistsForDate(ctx context.Context, accountReferenceID int64, statementDate time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM banking_statements WHERE account_reference_id = $1 AND statement_date = $2)`,
		accountReferenceID, statementDate,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check statement existence: %w", err)
	}
	return exists, nil
}

// InsertStatement writes the statement row only
func (r *PostgresStatementRepository) InsertStatement(ctx context.Context, rec *statement.Record) (int64, error) {
	id, err := insertStatement(ctx, r.db, rec)
	if err != nil {
		return 0, err
	}
	rec.ID = id
	return id, nil
}

// InsertDeposit writes one deposit row
func (r *PostgresStatementRepository) InsertDeposit(ctx context.Context, statementID int64, d statement.Deposit) (int64, error) {
	return insertDeposit(ctx, r.db, statementID, d)
}

// InsertWithdrawal writes one withdrawal row
func (r *PostgresStatementRepository) InsertWithdrawal(ctx context.Context, statementID int64, w statement.Withdrawal) (int64, error) {
	return insertWithdrawal(ctx, r.db, statementID, w)
}

// SaveStatement writes the statement and its line items atomically
func (r *PostgresStatementRepository) SaveStatement(ctx context.Context, rec *statement.Record) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	id, err := insertStatement(ctx, tx, rec)
	if err != nil {
		return 0, err
	}

	for i, d := range rec.Deposits {
		if _, err := insertDeposit(ctx, tx, id, d); err != nil {
			return 0, fmt.Errorf("deposit %d: %w", i, err)
		}
	}
	for i, w := range rec.Withdrawals {
		if _, err := insertWithdrawal(ctx, tx, id, w); err != nil {
			return 0, fmt.Errorf("withdrawal %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit statement: %w", err)
	}
	rec.ID = id
	return id, nil
}

func insertStatement(ctx context.Context, q rowQuerier, rec *statement.Record) (int64, error) {
	var id int64
	raw := rec.RawData
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	err := q.QueryRow(ctx, insertStatementSQL,
		rec.AccountReferenceID,
		rec.StatementDate,
		rec.PeriodStart,
		rec.PeriodEnd,
		rec.BeginningBalance,
		rec.EndingBalance,
		rec.TotalFees,
		rec.Filename,
		rec.ImportantNotes,
		string(raw),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%s: %w", rec.Filename, ErrDuplicateStatement)
		}
		return 0, fmt.Errorf("failed to insert statement: %w", err)
	}
	return id, nil
}

func insertDeposit(ctx context.Context, q rowQuerier, statementID int64, d statement.Deposit) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, insertDepositSQL, statementID, d.Date, d.Description, d.Amount).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert deposit: %w", err)
	}
	return id, nil
}

func insertWithdrawal(ctx context.Context, q rowQuerier, statementID int64, w statement.Withdrawal) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, insertWithdrawalSQL, statementID, w.Date, w.Description, w.Amount, string(w.TaxCategory)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert withdrawal: %w", err)
	}
	return id, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
