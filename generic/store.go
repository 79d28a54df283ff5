/*
store.go - Document store interfaces

PURPOSE:
  Defines the boundary between the engine and the hosted document store.
  The engine consumes four primitives:
    (a) point read of an account by id
    (b) bounded history read, newest first
    (c) atomic read-modify-write unit over accounts + record appends
    (d) equality lookup of an account by email

ATOMIC UNITS:
  Every balance mutation goes through WithTx. There is deliberately no
  PutAccount on Store itself: an unconditional write outside a unit is
  how balances get lost under concurrency.

  Implementations guarantee that a concurrent unit touching the same
  account observes either all or none of another unit's effects.

APPEND-ONLY:
  Transaction records are never updated or deleted.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (WAL, serialized writers)
  - generic/store/memory.go: In-memory for tests and dev
  - store/rules/rules.go: Security-rule decorator over any TxStore
*/
package generic

import "context"

// DefaultHistoryLimit bounds history reads when the caller passes 0.
const DefaultHistoryLimit = 50

// =============================================================================
// STORE - Reads outside an atomic unit
// =============================================================================

type Store interface {
	// GetAccount returns ErrAccountNotFound if the account does not exist.
	GetAccount(ctx context.Context, id UserID) (Account, error)

	// FindAccountByEmail matches the profile email case-insensitively.
	// Returns ErrAccountNotFound on zero matches.
	FindAccountByEmail(ctx context.Context, email string) (Account, error)

	// ListTransactions returns at most limit records, newest first.
	ListTransactions(ctx context.Context, id UserID, limit int) ([]Transaction, error)

	Ping(ctx context.Context) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// Tx is the view of the store inside one atomic unit.
type Tx interface {
	GetAccount(ctx context.Context, id UserID) (Account, error)

	// PutAccount creates or replaces the account document.
	PutAccount(ctx context.Context, acct Account) error

	// AppendTransaction stores rec and returns it with the server
	// timestamp (and an id, if rec had none).
	AppendTransaction(ctx context.Context, rec Transaction) (Transaction, error)
}

type TxStore interface {
	Store

	// WithTx executes fn within one atomic unit.
	// If fn returns error, nothing fn wrote is kept.
	// If fn returns nil, everything is committed.
	WithTx(ctx context.Context, fn func(Tx) error) error
}
