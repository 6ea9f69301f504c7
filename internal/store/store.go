// Package store is the persistence boundary of the ledger. Nothing above it
// touches SQL directly.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Queries holds every statement of the ledger. It runs either directly on the
// pool or inside a transaction.
type Queries struct {
	q       queryer
	dialect Dialect
}

type Store struct {
	*Queries
	db *sqlx.DB
}

type Tx struct {
	*Queries
}

func New(db *sqlx.DB) (*Store, error) {
	var d Dialect
	switch db.DriverName() {
	case "postgres", "pgx":
		d = Postgres
	case "sqlite3":
		d = SQLite
	default:
		return nil, fmt.Errorf("unsupported driver %q", db.DriverName())
	}
	return &Store{
		Queries: &Queries{q: db, dialect: d},
		db:      db,
	}, nil
}

// OpenSQLite opens an embedded database. The path ":memory:" gives a private
// in-memory database held on a single connection.
func OpenSQLite(path string) (*Store, error) {
	dsn := "file:" + path + "?_foreign_keys=on&_busy_timeout=5000"
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: can't open sqlite", err)
	}
	// sqlite serializes writers anyway; one connection also keeps :memory: alive.
	db.SetMaxOpenConns(1)
	return New(db)
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn in a transaction. It commits when fn returns nil and rolls back
// on error or panic.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: can't begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("%w: can't rollback", rbErr))
			}
		}
	}()

	if err = fn(&Tx{Queries: &Queries{q: sqlTx, dialect: s.dialect}}); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: can't commit transaction", err)
	}
	return nil
}

func (q *Queries) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := q.q.GetContext(ctx, dest, q.q.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (q *Queries) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return q.q.SelectContext(ctx, dest, q.q.Rebind(query), args...)
}

func (q *Queries) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := q.q.ExecContext(ctx, q.q.Rebind(query), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrConflict, err)
		}
		return 0, err
	}
	return res.RowsAffected()
}

// forUpdate locks the selected rows where the dialect supports row locks.
// sqlite takes a database-wide write lock on the first write instead.
func (q *Queries) forUpdate() string {
	if q.dialect == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
