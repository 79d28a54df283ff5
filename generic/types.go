/*
types.go - Core domain types for the reward engine

PURPOSE:
  Defines the fundamental types used throughout the engine:
  - Amount: Coin quantity (decimal, never float)
  - Account: User account document with balance and activity counters
  - Counter: Per-activity play counter with cooldown
  - Transaction: Immutable record of a balance change

DESIGN PHILOSOPHY:
  The engine knows nothing about spins, scratch cards or captchas beyond
  their ActivityKind. Reward values, prize tables and limits live in the
  rewards package. This package only enforces the invariants:
    - balance never goes negative
    - every balance change has exactly one record (two for transfers)
    - limited activities never exceed their limit inside one window

AMOUNT:
  Uses shopspring/decimal. One ad variant pays half a coin, so balances
  are not integers in general. Transfers are integer-only (see transfer.go).

SEE ALSO:
  - window.go: Daily window resolver (counter reset policy)
  - ledger.go: ClaimReward
  - transfer.go: Transfer
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Coin quantity
// =============================================================================

type Amount struct {
	Value decimal.Decimal
}

func NewAmount(value float64) Amount      { return Amount{Value: decimal.NewFromFloat(value)} }
func NewAmountFromInt(value int64) Amount { return Amount{Value: decimal.NewFromInt(value)} }
func Coins(value int64) Amount            { return NewAmountFromInt(value) }

// ParseAmount parses a decimal string such as "30" or "0.5".
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d}, nil
}

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) IsInteger() bool           { return a.Value.IsInteger() }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }
func (a Amount) String() string            { return a.Value.String() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

// UserID is the identity provider's subject identifier.
type UserID string

type TransactionID string

// ActivityKind classifies a Transaction record.
type ActivityKind string

const (
	ActivityCaptcha ActivityKind = "captcha"
	ActivitySpin    ActivityKind = "spin"
	ActivityScratch ActivityKind = "scratch"
	ActivityAd      ActivityKind = "ad"
	ActivitySend    ActivityKind = "send"
	ActivityReceive ActivityKind = "receive"
)

// Valid reports whether k is one of the known kinds.
func (k ActivityKind) Valid() bool {
	switch k {
	case ActivityCaptcha, ActivitySpin, ActivityScratch, ActivityAd, ActivitySend, ActivityReceive:
		return true
	}
	return false
}

// =============================================================================
// ACCOUNT - The only shared mutable document
// =============================================================================

// Profile is the mirror of identity provider data kept on the account.
type Profile struct {
	Email       string
	DisplayName string
	PhotoURL    string
}

// Counter tracks plays of one limited activity.
// CooldownEnd is zero until the limit is reached.
type Counter struct {
	Count       int
	CooldownEnd time.Time
}

type Account struct {
	ID       UserID
	Profile  Profile
	Balance  Amount
	Counters map[ActivityKind]Counter

	// Version is bumped by the store on every committed write.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount returns a zeroed account for a first sign-in.
func NewAccount(id UserID, profile Profile, now time.Time) Account {
	return Account{
		ID:        id,
		Profile:   profile,
		Balance:   Coins(0),
		Counters:  make(map[ActivityKind]Counter),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Counter returns the stored counter for kind (zero value if never played).
func (a Account) Counter(kind ActivityKind) Counter {
	if a.Counters == nil {
		return Counter{}
	}
	return a.Counters[kind]
}

// WithCounter returns a copy of a with the counter for kind replaced.
// The counters map is copied so the caller's snapshot stays untouched.
func (a Account) WithCounter(kind ActivityKind, c Counter) Account {
	counters := make(map[ActivityKind]Counter, len(a.Counters)+1)
	for k, v := range a.Counters {
		counters[k] = v
	}
	counters[kind] = c
	a.Counters = counters
	return a
}

// =============================================================================
// TRANSACTION - Immutable record of a balance change
// =============================================================================

// Transaction is append-only. Amount is never negative; direction is
// implied by Kind (send is a debit, everything else a credit).
type Transaction struct {
	ID        TransactionID
	AccountID UserID
	Kind      ActivityKind
	Amount    Amount

	// Counterparty is the other side's email for send/receive.
	Counterparty string

	// Timestamp is assigned by the store at commit.
	Timestamp time.Time
}

// Delta returns the signed balance change this record represents.
func (t Transaction) Delta() Amount {
	if t.Kind == ActivitySend {
		return Amount{Value: t.Amount.Value.Neg()}
	}
	return t.Amount
}
