/*
Package rules enforces the store's security rules in front of any
generic.TxStore.

PURPOSE:
  The hosted document store only accepts writes the rules allow. This
  decorator evaluates the same rules against the authenticated user
  carried in the request context (identity.WithUser) and rejects anything
  else with a *generic.PermissionDeniedError.

RULES:
  users/{uid}                  get     own account only
                               list    (email lookup) any signed-in user
                               create  own account only
                               update  own account, or credit-only on
                                       someone else's (transfer recipient)
  users/{uid}/transactions     list    own records only
                               create  own records, or a receive record
                                       on the recipient

  Reads inside an atomic unit may target any account: a transfer has to
  read the recipient before crediting it.

  A context without a user bypasses nothing: every rule requires one.
*/
package rules

import (
	"context"

	"github.com/oracoin/reward-engine/generic"
	"github.com/oracoin/reward-engine/identity"
)

// Guard wraps a TxStore with per-request rules.
type Guard struct {
	Inner generic.TxStore
}

func New(inner generic.TxStore) *Guard {
	return &Guard{Inner: inner}
}

func accountPath(id generic.UserID) string      { return "users/" + string(id) }
func transactionsPath(id generic.UserID) string { return "users/" + string(id) + "/transactions" }

func deny(ctx context.Context, path string, op generic.StoreOperation, payload map[string]any) error {
	actor, _ := identity.CurrentUserID(ctx)
	return &generic.PermissionDeniedError{Path: path, Operation: op, Payload: payload, Actor: actor}
}

func (g *Guard) GetAccount(ctx context.Context, id generic.UserID) (generic.Account, error) {
	if actor, ok := identity.CurrentUserID(ctx); !ok || actor != id {
		return generic.Account{}, deny(ctx, accountPath(id), generic.OpGet, nil)
	}
	return g.Inner.GetAccount(ctx, id)
}

func (g *Guard) FindAccountByEmail(ctx context.Context, email string) (generic.Account, error) {
	if _, ok := identity.CurrentUserID(ctx); !ok {
		return generic.Account{}, deny(ctx, "users", generic.OpList, map[string]any{"email": email})
	}
	return g.Inner.FindAccountByEmail(ctx, email)
}

func (g *Guard) ListTransactions(ctx context.Context, id generic.UserID, limit int) ([]generic.Transaction, error) {
	if actor, ok := identity.CurrentUserID(ctx); !ok || actor != id {
		return nil, deny(ctx, transactionsPath(id), generic.OpList, map[string]any{"limit": limit})
	}
	return g.Inner.ListTransactions(ctx, id, limit)
}

func (g *Guard) Ping(ctx context.Context) error {
	return g.Inner.Ping(ctx)
}

func (g *Guard) WithTx(ctx context.Context, fn func(generic.Tx) error) error {
	return g.Inner.WithTx(ctx, func(tx generic.Tx) error {
		return fn(&guardTx{inner: tx})
	})
}

// =============================================================================
// ATOMIC UNIT RULES
// =============================================================================

type guardTx struct {
	inner generic.Tx
}

func (t *guardTx) GetAccount(ctx context.Context, id generic.UserID) (generic.Account, error) {
	if _, ok := identity.CurrentUserID(ctx); !ok {
		return generic.Account{}, deny(ctx, accountPath(id), generic.OpGet, nil)
	}
	return t.inner.GetAccount(ctx, id)
}

func (t *guardTx) PutAccount(ctx context.Context, acct generic.Account) error {
	actor, ok := identity.CurrentUserID(ctx)
	if ok && actor == acct.ID {
		return t.inner.PutAccount(ctx, acct)
	}

	payload := accountPayload(acct)
	prev, err := t.inner.GetAccount(ctx, acct.ID)
	switch {
	case generic.IsNotFound(err):
		return deny(ctx, accountPath(acct.ID), generic.OpCreate, payload)
	case err != nil:
		return err
	case !ok || !creditOnly(prev, acct):
		return deny(ctx, accountPath(acct.ID), generic.OpUpdate, payload)
	}
	return t.inner.PutAccount(ctx, acct)
}

func (t *guardTx) AppendTransaction(ctx context.Context, rec generic.Transaction) (generic.Transaction, error) {
	actor, ok := identity.CurrentUserID(ctx)
	if ok && (actor == rec.AccountID || rec.Kind == generic.ActivityReceive) {
		return t.inner.AppendTransaction(ctx, rec)
	}
	return generic.Transaction{}, deny(ctx, transactionsPath(rec.AccountID), generic.OpCreate, map[string]any{
		"type":   string(rec.Kind),
		"amount": rec.Amount.String(),
	})
}

// creditOnly reports whether next differs from prev only by a balance
// increase.
func creditOnly(prev, next generic.Account) bool {
	if prev.Profile != next.Profile {
		return false
	}
	if next.Balance.LessThan(prev.Balance) {
		return false
	}
	if len(prev.Counters) != len(next.Counters) {
		return false
	}
	for kind, c := range prev.Counters {
		n, ok := next.Counters[kind]
		if !ok || n.Count != c.Count || !n.CooldownEnd.Equal(c.CooldownEnd) {
			return false
		}
	}
	return true
}

func accountPayload(acct generic.Account) map[string]any {
	counters := make(map[string]any, len(acct.Counters))
	for kind, c := range acct.Counters {
		counters[string(kind)] = c.Count
	}
	return map[string]any{
		"coinBalance": acct.Balance.String(),
		"email":       acct.Profile.Email,
		"counters":    counters,
	}
}
