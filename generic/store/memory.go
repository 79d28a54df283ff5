// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oracoin/reward-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.TxStore. Atomic units hold the write lock for
// their whole duration and roll back to a snapshot on error.
type Memory struct {
	mu       sync.RWMutex
	accounts map[generic.UserID]generic.Account
	records  map[generic.UserID][]generic.Transaction

	// Now stamps records. Defaults to time.Now.
	Now func() time.Time

	// last is the newest timestamp handed out; stamps never go backwards.
	last time.Time
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[generic.UserID]generic.Account),
		records:  make(map[generic.UserID][]generic.Transaction),
		Now:      time.Now,
	}
}

func (m *Memory) GetAccount(_ context.Context, id generic.UserID) (generic.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) getLocked(id generic.UserID) (generic.Account, error) {
	acct, ok := m.accounts[id]
	if !ok {
		return generic.Account{}, generic.ErrAccountNotFound
	}
	return cloneAccount(acct), nil
}

func (m *Memory) FindAccountByEmail(_ context.Context, email string) (generic.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := generic.NormalizeEmail(email)
	ids := make([]string, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, string(id))
	}
	// Deterministic pick when the identity provider hands out duplicates.
	sort.Strings(ids)
	for _, id := range ids {
		acct := m.accounts[generic.UserID(id)]
		if generic.NormalizeEmail(acct.Profile.Email) == want {
			return cloneAccount(acct), nil
		}
	}
	return generic.Account{}, generic.ErrAccountNotFound
}

func (m *Memory) ListTransactions(_ context.Context, id generic.UserID, limit int) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.records[id]
	if limit <= 0 || limit > len(recs) {
		limit = len(recs)
	}
	result := make([]generic.Transaction, 0, limit)
	for i := len(recs) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, recs[i])
	}
	return result, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// =============================================================================
// ATOMIC UNITS
// =============================================================================

// WithTx executes fn within an atomic unit.
// Simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(generic.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&memoryTx{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	accounts map[generic.UserID]generic.Account
	records  map[generic.UserID][]generic.Transaction
	last     time.Time
}

func (m *Memory) snapshot() memorySnapshot {
	accounts := make(map[generic.UserID]generic.Account, len(m.accounts))
	for k, v := range m.accounts {
		accounts[k] = cloneAccount(v)
	}
	records := make(map[generic.UserID][]generic.Transaction, len(m.records))
	for k, v := range m.records {
		records[k] = append([]generic.Transaction{}, v...)
	}
	return memorySnapshot{accounts: accounts, records: records, last: m.last}
}

func (m *Memory) restore(s memorySnapshot) {
	m.accounts = s.accounts
	m.records = s.records
	m.last = s.last
}

func (m *Memory) stamp() time.Time {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	ts := now().UTC()
	if ts.Before(m.last) {
		ts = m.last
	}
	m.last = ts
	return ts
}

type memoryTx struct {
	parent *Memory
}

func (tx *memoryTx) GetAccount(_ context.Context, id generic.UserID) (generic.Account, error) {
	return tx.parent.getLocked(id)
}

func (tx *memoryTx) PutAccount(_ context.Context, acct generic.Account) error {
	m := tx.parent
	if prev, ok := m.accounts[acct.ID]; ok {
		acct.Version = prev.Version + 1
		acct.CreatedAt = prev.CreatedAt
	} else {
		acct.Version = 1
	}
	m.accounts[acct.ID] = cloneAccount(acct)
	return nil
}

func (tx *memoryTx) AppendTransaction(_ context.Context, rec generic.Transaction) (generic.Transaction, error) {
	m := tx.parent
	if _, ok := m.accounts[rec.AccountID]; !ok {
		return generic.Transaction{}, generic.ErrAccountNotFound
	}
	if rec.ID == "" {
		rec.ID = generic.NewTransactionID()
	}
	rec.Timestamp = m.stamp()
	m.records[rec.AccountID] = append(m.records[rec.AccountID], rec)
	return rec, nil
}

func cloneAccount(a generic.Account) generic.Account {
	counters := make(map[generic.ActivityKind]generic.Counter, len(a.Counters))
	for k, v := range a.Counters {
		counters[k] = v
	}
	a.Counters = counters
	return a
}
