/*
ledger.go - Reward ledger service

PURPOSE:
  Applies reward claims to accounts. One claim is one atomic unit:
    1. read the account
    2. check the daily window (limited activities only)
    3. add the reward to the balance and bump the counter
    4. write the account and append exactly one record

  Either the account write and the record append are both committed, or
  neither is.

CRITICAL INVARIANTS:
  1. No lost updates: all reads and writes happen inside WithTx.
  2. No limit bypass: the window check runs inside the same unit as the write.
  3. One record per successful claim.
  4. Claims survive client disconnects: the unit runs on a context whose
     cancellation is detached from the caller's.

EXAMPLE FLOW (spin, limit 20):
  claim #1..#20  -> balance += prize, spin count 1..20
  claim #21      -> DailyLimitError, nothing written

SEE ALSO:
  - window.go: Counter reset policy
  - transfer.go: Two-account variant
  - rewards/service.go: Callers (captcha, spin, scratch, ad)
*/
package generic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Store TxStore

	// Now is the engine clock. Defaults to time.Now.
	Now func() time.Time

	// Diagnostics receives permission rejections. Optional.
	Diagnostics DiagnosticSink
}

func NewLedger(store TxStore) *Ledger {
	return &Ledger{Store: store, Now: time.Now}
}

// Clock returns the time the ledger judges windows by, in UTC.
func (l *Ledger) Clock() time.Time {
	return l.now()
}

func (l *Ledger) now() time.Time {
	if l.Now == nil {
		return time.Now().UTC()
	}
	return l.Now().UTC()
}

func (l *Ledger) fail(ctx context.Context, err error) error {
	ReportDenied(ctx, l.Diagnostics, err)
	return err
}

// NewTransactionID returns a time-ordered record id.
func NewTransactionID() TransactionID {
	id, err := uuid.NewV7()
	if err != nil {
		return TransactionID(uuid.NewString())
	}
	return TransactionID(id.String())
}

// =============================================================================
// CLAIMS
// =============================================================================

// Claim describes one reward-granting action.
type Claim struct {
	UserID UserID
	Kind   ActivityKind

	// Window is nil for unlimited activities (ad, captcha).
	Window *WindowPolicy

	Amount Amount
}

type ClaimResult struct {
	Record      Transaction
	NewBalance  Amount
	NewCount    int
	CooldownEnd time.Time
}

// ClaimReward applies c atomically and returns the post-commit state.
func (l *Ledger) ClaimReward(ctx context.Context, c Claim) (ClaimResult, error) {
	if err := validateClaim(c); err != nil {
		return ClaimResult{}, err
	}

	ctx = context.WithoutCancel(ctx)
	now := l.now()

	var result ClaimResult
	err := l.Store.WithTx(ctx, func(tx Tx) error {
		acct, err := tx.GetAccount(ctx, c.UserID)
		if err != nil {
			return err
		}

		if c.Window != nil {
			counter := acct.Counter(c.Kind)
			if c.Window.Exhausted(now, counter) {
				return &DailyLimitError{
					UserID:      c.UserID,
					Kind:        c.Kind,
					Limit:       c.Window.Limit,
					Count:       c.Window.EffectiveCount(now, counter),
					CooldownEnd: counter.CooldownEnd,
				}
			}
			next := c.Window.Next(now, counter)
			acct = acct.WithCounter(c.Kind, next)
			result.NewCount = next.Count
			result.CooldownEnd = next.CooldownEnd
		}

		acct.Balance = acct.Balance.Add(c.Amount)
		acct.UpdatedAt = now
		if err := tx.PutAccount(ctx, acct); err != nil {
			return err
		}

		rec, err := tx.AppendTransaction(ctx, Transaction{
			ID:        NewTransactionID(),
			AccountID: c.UserID,
			Kind:      c.Kind,
			Amount:    c.Amount,
		})
		if err != nil {
			return err
		}

		result.Record = rec
		result.NewBalance = acct.Balance
		return nil
	})
	if err != nil {
		return ClaimResult{}, l.fail(ctx, err)
	}
	return result, nil
}

func validateClaim(c Claim) error {
	switch c.Kind {
	case ActivityCaptcha, ActivitySpin, ActivityScratch, ActivityAd:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownActivity, c.Kind)
	}
	if c.Amount.IsNegative() {
		return fmt.Errorf("%w: reward %s is negative", ErrInvalidAmount, c.Amount)
	}
	if c.Window != nil && c.Window.Limit < 1 {
		return fmt.Errorf("%w: %s has no plays configured", ErrDailyLimitExceeded, c.Kind)
	}
	return nil
}

// ExtraPlay grants one bonus play of kind to a user at the limit, in
// exchange for watching an ad. No coins move; one ad record with amount
// zero is appended so the grant is auditable.
func (l *Ledger) ExtraPlay(ctx context.Context, userID UserID, kind ActivityKind, window WindowPolicy) (ClaimResult, error) {
	ctx = context.WithoutCancel(ctx)
	now := l.now()

	var result ClaimResult
	err := l.Store.WithTx(ctx, func(tx Tx) error {
		acct, err := tx.GetAccount(ctx, userID)
		if err != nil {
			return err
		}

		next, err := window.ExtraPlay(now, acct.Counter(kind))
		if err != nil {
			return err
		}
		acct = acct.WithCounter(kind, next)
		acct.UpdatedAt = now
		if err := tx.PutAccount(ctx, acct); err != nil {
			return err
		}

		rec, err := tx.AppendTransaction(ctx, Transaction{
			ID:        NewTransactionID(),
			AccountID: userID,
			Kind:      ActivityAd,
			Amount:    Coins(0),
		})
		if err != nil {
			return err
		}

		result = ClaimResult{Record: rec, NewBalance: acct.Balance, NewCount: next.Count}
		return nil
	})
	if err != nil {
		return ClaimResult{}, l.fail(ctx, err)
	}
	return result, nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// SignIn mirrors the identity provider profile onto the account, creating
// a zeroed account on first sign-in. Balance and counters are never
// touched here.
func (l *Ledger) SignIn(ctx context.Context, id UserID, profile Profile) (acct Account, created bool, err error) {
	ctx = context.WithoutCancel(ctx)
	now := l.now()

	err = l.Store.WithTx(ctx, func(tx Tx) error {
		existing, err := tx.GetAccount(ctx, id)
		switch {
		case err == nil:
			existing.Profile = profile
			existing.UpdatedAt = now
			acct, created = existing, false
		case IsNotFound(err):
			acct, created = NewAccount(id, profile, now), true
		default:
			return err
		}
		return tx.PutAccount(ctx, acct)
	})
	if err != nil {
		return Account{}, false, l.fail(ctx, err)
	}
	return acct, created, nil
}

// Account returns the current account document.
func (l *Ledger) Account(ctx context.Context, id UserID) (Account, error) {
	acct, err := l.Store.GetAccount(ctx, id)
	if err != nil {
		return Account{}, l.fail(ctx, err)
	}
	return acct, nil
}

// History returns the newest records of an account. limit <= 0 means
// DefaultHistoryLimit.
func (l *Ledger) History(ctx context.Context, id UserID, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	txs, err := l.Store.ListTransactions(ctx, id, limit)
	if err != nil {
		return nil, l.fail(ctx, err)
	}
	return txs, nil
}
