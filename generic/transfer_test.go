package generic_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/oracoin/reward-engine/generic"
)

func TestTransfer_MovesCoinsAndRecordsBothSides(t *testing.T) {
	// GIVEN: A has 100, B has 5
	// WHEN: A sends 30 to B
	// THEN: A has 70, B has 35, each side has one record

	ctx := context.Background()
	ledger, mem, _ := newTestLedger(t)
	signIn(t, ledger, "a", "a@example.com")
	signIn(t, ledger, "b", "b@example.com")
	fund(t, mem, "a", 100)
	fund(t, mem, "b", 5)

	res, err := ledger.Transfer(ctx, "a", "B@Example.com ", generic.Coins(30))
	require.NoError(t, err)

	assert.True(t, res.SenderBalance.Equal(generic.Coins(70)))
	assert.Equal(t, generic.UserID("b"), res.RecipientID)
	assert.True(t, balanceOf(t, ledger, "a").Equal(generic.Coins(70)))
	assert.True(t, balanceOf(t, ledger, "b").Equal(generic.Coins(35)))

	sent, err := ledger.History(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, generic.ActivitySend, sent[0].Kind)
	assert.True(t, sent[0].Amount.Equal(generic.Coins(30)))
	assert.Equal(t, "b@example.com", sent[0].Counterparty)
	assert.True(t, sent[0].Delta().Equal(generic.Coins(-30)))

	received, err := ledger.History(ctx, "b", 0)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, generic.ActivityReceive, received[0].Kind)
	assert.Equal(t, "a@example.com", received[0].Counterparty)
}

func TestTransfer_Rejections(t *testing.T) {
	ctx := context.Background()
	ledger, mem, _ := newTestLedger(t)
	signIn(t, ledger, "a", "a@example.com")
	signIn(t, ledger, "b", "b@example.com")
	fund(t, mem, "a", 100)

	cases := []struct {
		name   string
		email  string
		amount generic.Amount
		want   error
	}{
		{"more than balance", "b@example.com", generic.Coins(1000), generic.ErrInsufficientFunds},
		{"zero", "b@example.com", generic.Coins(0), generic.ErrInvalidAmount},
		{"negative", "b@example.com", generic.Coins(-3), generic.ErrInvalidAmount},
		{"fractional", "b@example.com", generic.NewAmount(1.5), generic.ErrInvalidAmount},
		{"huge exponent", "b@example.com", mustParseAmount(t, "1e20000000"), generic.ErrInvalidAmount},
		{"above int64", "b@example.com", mustParseAmount(t, "9223372036854775808"), generic.ErrInvalidAmount},
		{"unknown recipient", "nobody@example.com", generic.Coins(10), generic.ErrRecipientNotFound},
		{"empty recipient", "  ", generic.Coins(10), generic.ErrRecipientNotFound},
		{"self", "A@example.com", generic.Coins(10), generic.ErrSelfTransferNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ledger.Transfer(ctx, "a", tc.email, tc.amount)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, generic.IsClientError(err) || generic.IsNotFound(err))
		})
	}

	assert.True(t, balanceOf(t, ledger, "a").Equal(generic.Coins(100)))
	assert.True(t, balanceOf(t, ledger, "b").IsZero())
	history, err := ledger.History(ctx, "a", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func mustParseAmount(t *testing.T, s string) generic.Amount {
	t.Helper()
	a, err := generic.ParseAmount(s)
	require.NoError(t, err)
	return a
}

func TestValidTransferAmount(t *testing.T) {
	tests := []struct {
		amount string
		want   bool
	}{
		{"1", true},
		{"30", true},
		{"1e3", true},
		{"9223372036854775807", true},
		{"9223372036854775808", false},
		{"1e19", false},
		{"1e2000000000", false},
		{"0", false},
		{"-5", false},
		{"2.5", false},
		{"1e-2000000000", false},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, generic.ValidTransferAmount(mustParseAmount(t, tt.amount)))
		})
	}
}

// vanishingRecipient resolves every email to an account the store does
// not hold, as if it was deleted right after the lookup.
type vanishingRecipient struct {
	generic.TxStore
}

func (v *vanishingRecipient) FindAccountByEmail(_ context.Context, email string) (generic.Account, error) {
	return generic.Account{ID: "deleted", Profile: generic.Profile{Email: email}}, nil
}

func TestTransfer_RecipientDeletedAfterLookup(t *testing.T) {
	// GIVEN: A has 100, and the recipient found by email no longer exists
	// WHEN: A sends 10
	// THEN: the unit fails with ErrRecipientNotFound and nothing is written

	ctx := context.Background()
	ledger, mem, _ := newTestLedger(t)
	signIn(t, ledger, "a", "a@example.com")
	fund(t, mem, "a", 100)

	racing := generic.NewLedger(&vanishingRecipient{TxStore: mem})
	_, err := racing.Transfer(ctx, "a", "gone@example.com", generic.Coins(10))

	require.ErrorIs(t, err, generic.ErrRecipientNotFound)
	assert.True(t, balanceOf(t, ledger, "a").Equal(generic.Coins(100)))
	history, err := ledger.History(ctx, "a", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
	deleted, err := mem.ListTransactions(ctx, "deleted", 0)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestTransfer_InsufficientFunds_Details(t *testing.T) {
	ctx := context.Background()
	ledger, mem, _ := newTestLedger(t)
	signIn(t, ledger, "a", "a@example.com")
	signIn(t, ledger, "b", "b@example.com")
	fund(t, mem, "a", 100)

	_, err := ledger.Transfer(ctx, "a", "b@example.com", generic.Coins(1000))

	var fundsErr *generic.InsufficientFundsError
	require.ErrorAs(t, err, &fundsErr)
	assert.True(t, fundsErr.Available.Equal(generic.Coins(100)))
	assert.True(t, fundsErr.Requested.Equal(generic.Coins(1000)))
}

func TestTransfer_ExactBalance_LeavesZero(t *testing.T) {
	ctx := context.Background()
	ledger, mem, _ := newTestLedger(t)
	signIn(t, ledger, "a", "a@example.com")
	signIn(t, ledger, "b", "b@example.com")
	fund(t, mem, "a", 25)

	_, err := ledger.Transfer(ctx, "a", "b@example.com", generic.Coins(25))
	require.NoError(t, err)
	assert.True(t, balanceOf(t, ledger, "a").IsZero())
}

func TestTransfer_ConcurrentDebits_NeverOverdraw(t *testing.T) {
	// GIVEN: A has 100 and two recipients
	// WHEN: 10 transfers of 30 race
	// THEN: Exactly 3 succeed and total coins are conserved

	ctx := context.Background()
	ledger, mem, _ := newTestLedger(t)
	signIn(t, ledger, "a", "a@example.com")
	signIn(t, ledger, "b", "b@example.com")
	signIn(t, ledger, "c", "c@example.com")
	fund(t, mem, "a", 100)

	var ok atomic.Int32
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		to := "b@example.com"
		if i%2 == 1 {
			to = "c@example.com"
		}
		g.Go(func() error {
			_, err := ledger.Transfer(ctx, "a", to, generic.Coins(30))
			if err == nil {
				ok.Add(1)
				return nil
			}
			if errors.Is(err, generic.ErrInsufficientFunds) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(3), ok.Load())
	a, b, c := balanceOf(t, ledger, "a"), balanceOf(t, ledger, "b"), balanceOf(t, ledger, "c")
	assert.True(t, a.Equal(generic.Coins(10)))
	assert.True(t, a.Add(b).Add(c).Equal(generic.Coins(100)))
}

func TestTransfer_MixedWithClaims_Consistent(t *testing.T) {
	ctx := context.Background()
	ledger, mem, _ := newTestLedger(t)
	signIn(t, ledger, "a", "a@example.com")
	signIn(t, ledger, "b", "b@example.com")
	fund(t, mem, "a", 50)

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := ledger.Transfer(ctx, "a", "b@example.com", generic.Coins(5))
			return err
		})
		g.Go(func() error {
			_, err := ledger.ClaimReward(ctx, generic.Claim{UserID: "b", Kind: generic.ActivityCaptcha, Amount: generic.Coins(10)})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.True(t, balanceOf(t, ledger, "a").IsZero())
	assert.True(t, balanceOf(t, ledger, "b").Equal(generic.Coins(150)))

	history, err := ledger.History(ctx, "b", 0)
	require.NoError(t, err)
	assert.Len(t, history, 20)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "bob@example.com", generic.NormalizeEmail("  Bob@Example.COM\t"))
}
