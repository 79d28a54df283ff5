/*
Package sqlite provides a SQLite-backed implementation of generic.TxStore.

PURPOSE:
  Persists account documents and their transaction records. Plays the
  role of the hosted document store: point reads, bounded history reads,
  email lookups and atomic read-modify-write units.

KEY TABLES:
  accounts:     One row per user account (the "document"). Activity
                counters are kept as a JSON column, like a nested map.
  transactions: Append-only records, owned by one account.

INDEXES:
  - idx_accounts_email:            Equality lookup by profile email
  - idx_transactions_account_ts:   History reads (hot path)

CONCURRENCY:
  The pool is capped at one connection and units start with
  BEGIN IMMEDIATE (_txlock=immediate), so writers are serialized and a
  unit never observes another unit half-applied. Reads inside a unit go
  through the same *sql.Tx.

ERRORS:
  SQLITE_BUSY / SQLITE_LOCKED and context deadlines surface as
  generic.TransientError. Missing rows surface as ErrAccountNotFound.

USAGE:
  store, err := sqlite.New("./data/rewards.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := generic.NewLedger(store)

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/oracoin/reward-engine/generic"
)

// tsLayout sorts lexicographically in timestamp order.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements generic.TxStore using SQLite.
type Store struct {
	db *sql.DB

	// Now stamps records. Defaults to time.Now.
	Now func() time.Time

	mu   sync.Mutex
	last time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, Now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		email_normalized TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		photo_url TEXT NOT NULL DEFAULT '',
		coin_balance TEXT NOT NULL DEFAULT '0',
		counters_json TEXT NOT NULL DEFAULT '{}',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_email
		ON accounts(email_normalized);

	-- Append-only: no UPDATE or DELETE is ever issued against this table.
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		counterparty TEXT,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account_ts
		ON transactions(account_id, timestamp DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// READS (generic.Store interface)
// =============================================================================

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const accountColumns = `id, email, display_name, photo_url, coin_balance, counters_json, version, created_at, updated_at`

func (s *Store) GetAccount(ctx context.Context, id generic.UserID) (generic.Account, error) {
	return getAccount(ctx, s.db, id)
}

func getAccount(ctx context.Context, q queryer, id generic.UserID) (generic.Account, error) {
	row := q.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", string(id))
	return scanAccount(row)
}

func (s *Store) FindAccountByEmail(ctx context.Context, email string) (generic.Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE email_normalized = ? ORDER BY id LIMIT 1",
		generic.NormalizeEmail(email),
	)
	return scanAccount(row)
}

func (s *Store) ListTransactions(ctx context.Context, id generic.UserID, limit int) ([]generic.Transaction, error) {
	if limit <= 0 {
		limit = generic.DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, type, amount, counterparty, timestamp
		FROM transactions
		WHERE account_id = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, string(id), limit)
	if err != nil {
		return nil, classify("list transactions", err)
	}
	defer rows.Close()

	var txs []generic.Transaction
	for rows.Next() {
		var (
			tx           generic.Transaction
			accountID    string
			kind         string
			amount       string
			counterparty sql.NullString
			ts           string
		)
		if err := rows.Scan(&tx.ID, &accountID, &kind, &amount, &counterparty, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.AccountID = generic.UserID(accountID)
		tx.Kind = generic.ActivityKind(kind)
		tx.Amount, err = generic.ParseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount %q on %s: %w", amount, tx.ID, err)
		}
		tx.Counterparty = counterparty.String
		if tx.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("corrupt timestamp %q on %s: %w", ts, tx.ID, err)
		}
		txs = append(txs, tx)
	}
	return txs, classify("list transactions", rows.Err())
}

func scanAccount(row *sql.Row) (generic.Account, error) {
	var (
		acct         generic.Account
		id           string
		balance      string
		countersJSON string
		createdAt    string
		updatedAt    string
	)
	err := row.Scan(&id, &acct.Profile.Email, &acct.Profile.DisplayName, &acct.Profile.PhotoURL,
		&balance, &countersJSON, &acct.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Account{}, generic.ErrAccountNotFound
	}
	if err != nil {
		return generic.Account{}, classify("get account", err)
	}

	acct.ID = generic.UserID(id)
	if acct.Balance, err = generic.ParseAmount(balance); err != nil {
		return generic.Account{}, fmt.Errorf("corrupt balance %q on %s: %w", balance, id, err)
	}
	if acct.Counters, err = decodeCounters(countersJSON); err != nil {
		return generic.Account{}, fmt.Errorf("corrupt counters on %s: %w", id, err)
	}
	if acct.CreatedAt, err = parseTime(createdAt); err != nil {
		return generic.Account{}, fmt.Errorf("corrupt created_at %q on %s: %w", createdAt, id, err)
	}
	if acct.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return generic.Account{}, fmt.Errorf("corrupt updated_at %q on %s: %w", updatedAt, id, err)
	}
	return acct, nil
}

// =============================================================================
// ATOMIC UNITS (generic.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(generic.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer sqlTx.Rollback()

	s.mu.Lock()
	last := s.last
	s.mu.Unlock()

	view := &txStore{tx: sqlTx, parent: s, last: last}
	if err := fn(view); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return classify("commit", err)
	}

	s.mu.Lock()
	if view.last.After(s.last) {
		s.last = view.last
	}
	s.mu.Unlock()
	return nil
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
	last   time.Time
}

func (ts *txStore) GetAccount(ctx context.Context, id generic.UserID) (generic.Account, error) {
	return getAccount(ctx, ts.tx, id)
}

func (ts *txStore) PutAccount(ctx context.Context, acct generic.Account) error {
	countersJSON, err := encodeCounters(acct.Counters)
	if err != nil {
		return err
	}
	createdAt := acct.CreatedAt
	if createdAt.IsZero() {
		createdAt = ts.parent.now()
	}
	updatedAt := acct.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = ts.parent.now()
	}

	_, err = ts.tx.ExecContext(ctx, `
		INSERT INTO accounts
		(id, email, email_normalized, display_name, photo_url, coin_balance, counters_json, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			email_normalized = excluded.email_normalized,
			display_name = excluded.display_name,
			photo_url = excluded.photo_url,
			coin_balance = excluded.coin_balance,
			counters_json = excluded.counters_json,
			version = accounts.version + 1,
			updated_at = excluded.updated_at
	`,
		string(acct.ID),
		acct.Profile.Email,
		generic.NormalizeEmail(acct.Profile.Email),
		acct.Profile.DisplayName,
		acct.Profile.PhotoURL,
		acct.Balance.String(),
		countersJSON,
		createdAt.UTC().Format(tsLayout),
		updatedAt.UTC().Format(tsLayout),
	)
	if err != nil {
		return classify("put account", err)
	}
	return nil
}

func (ts *txStore) AppendTransaction(ctx context.Context, rec generic.Transaction) (generic.Transaction, error) {
	if rec.ID == "" {
		rec.ID = generic.NewTransactionID()
	}
	rec.Timestamp = ts.stamp()

	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, type, amount, counterparty, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		string(rec.ID),
		string(rec.AccountID),
		string(rec.Kind),
		rec.Amount.String(),
		nullString(rec.Counterparty),
		rec.Timestamp.Format(tsLayout),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return generic.Transaction{}, generic.ErrAccountNotFound
		}
		return generic.Transaction{}, classify("append transaction", err)
	}
	return rec, nil
}

// stamp never hands out a timestamp older than the newest committed one.
func (ts *txStore) stamp() time.Time {
	t := ts.parent.now()
	if t.Before(ts.last) {
		t = ts.last
	}
	ts.last = t
	return t
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// =============================================================================
// HELPERS
// =============================================================================

type counterJSON struct {
	Count       int    `json:"count"`
	CooldownEnd string `json:"cooldown_end,omitempty"`
}

func encodeCounters(counters map[generic.ActivityKind]generic.Counter) (string, error) {
	raw := make(map[string]counterJSON, len(counters))
	for kind, c := range counters {
		cj := counterJSON{Count: c.Count}
		if !c.CooldownEnd.IsZero() {
			cj.CooldownEnd = c.CooldownEnd.UTC().Format(tsLayout)
		}
		raw[string(kind)] = cj
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("failed to encode counters: %w", err)
	}
	return string(b), nil
}

func decodeCounters(s string) (map[generic.ActivityKind]generic.Counter, error) {
	counters := make(map[generic.ActivityKind]generic.Counter)
	if s == "" {
		return counters, nil
	}
	var raw map[string]counterJSON
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	for kind, cj := range raw {
		c := generic.Counter{Count: cj.Count}
		if cj.CooldownEnd != "" {
			t, err := time.Parse(tsLayout, cj.CooldownEnd)
			if err != nil {
				return nil, err
			}
			c.CooldownEnd = t
		}
		counters[generic.ActivityKind(kind)] = c
	}
	return counters, nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(tsLayout, s)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// classify wraps availability failures as generic.TransientError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &generic.TransientError{Op: op, Err: err}
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return &generic.TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isForeignKeyError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
