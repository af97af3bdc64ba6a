package storage

import "context"

// Execer runs a single statement. Each call borrows one pooled connection for
// the duration of the statement.
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// Store is the relational backend of the rollup tables.
type Store interface {
	Execer

	// InTx runs fn inside one transaction on one connection. The transaction is
	// committed when fn returns nil and rolled back otherwise.
	InTx(ctx context.Context, fn func(tx Execer) error) error

	// TableExists reports whether a table with the given name exists.
	TableExists(ctx context.Context, name string) (bool, error)

	Close() error
}
