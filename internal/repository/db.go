package repository

import (
	"context"
	"database/sql"

	"shop-admin/internal/identifier"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes the repositories translate
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repositories groups every repository bound to one connection or transaction
type Repositories struct {
	GuestUsers GuestUserRepository
	Products   ProductRepository
	Orders     OrderRepository
	Outbox     OutboxRepository
	Sequences  SequenceRepository
}

// NewRepositories binds all repositories to db
func NewRepositories(db DBTX, ids *identifier.Generator) *Repositories {
	sequences := NewSequenceRepository(db)
	return &Repositories{
		GuestUsers: NewGuestUserRepository(db),
		Products:   NewProductRepository(db, sequences, ids),
		Orders:     NewOrderRepository(db, sequences, ids),
		Outbox:     NewOutboxRepository(db),
		Sequences:  sequences,
	}
}

// Store hands out repositories, optionally scoped to a transaction
type Store interface {
	Repos() *Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error
}

type store struct {
	db    *sql.DB
	ids   *identifier.Generator
	repos *Repositories
}

// NewStore creates a Store over db
func NewStore(db *sql.DB, ids *identifier.Generator) Store {
	return &store{db: db, ids: ids, repos: NewRepositories(db, ids)}
}

func (s *store) Repos() *Repositories {
	return s.repos
}

// WithinTx runs fn with repositories bound to a new transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.WithSecondaryError(err, rbErr)
			}
		}
	}()

	if err = fn(ctx, NewRepositories(tx, s.ids)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pgErrorCode(err) == pgForeignKeyViolation
}
