package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement"
)

var (
	// ErrAccountNotFound is returned when no account reference matches.
	ErrAccountNotFound = errors.New("account reference not found")

	// ErrDuplicateStatement is returned when a unique constraint rejects a
	// statement that another run already stored.
	ErrDuplicateStatement = errors.New("statement already stored")
)

// Querier is the subset of *pgxpool.Pool used by the repository. It is also
// satisfied by pgxmock pools.
type Querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StatementRepository is the persistence gateway of the pipeline.
type StatementRepository interface {
	FetchAccountReference(ctx context.Context, accountNumber string) (*statement.AccountReference, error)
	ListAccountReferences(ctx context.Context) ([]statement.AccountReference, error)

	StatementExists(ctx context.Context, filename string) (bool, error)
	StatementExistsForDate(ctx context.Context, accountReferenceID int64, statementDate time.Time) (bool, error)

	// Single-row writes. Each commits on its own.
	InsertStatement(ctx context.Context, rec *statement.Record) (int64, error)
	InsertDeposit(ctx context.Context, statementID int64, d statement.Deposit) (int64, error)
	InsertWithdrawal(ctx context.Context, statementID int64, w statement.Withdrawal) (int64, error)

	// SaveStatement writes the statement and all its line items in one
	// transaction. Nothing is written if any insert fails.
	SaveStatement(ctx context.Context, rec *statement.Record) (int64, error)
}
