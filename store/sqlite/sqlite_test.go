package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/oracoin/reward-engine/generic"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_AccountRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	created := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)

	acct := generic.NewAccount("alice", generic.Profile{
		Email:       "Alice@Example.com",
		DisplayName: "Alice",
		PhotoURL:    "https://example.com/a.png",
	}, created)
	acct.Balance = generic.NewAmount(12.5)
	acct = acct.WithCounter(generic.ActivitySpin, generic.Counter{Count: 20, CooldownEnd: created.Add(time.Hour)})
	acct = acct.WithCounter(generic.ActivityScratch, generic.Counter{Count: 4})

	require.NoError(t, store.WithTx(ctx, func(tx generic.Tx) error {
		return tx.PutAccount(ctx, acct)
	}))

	got, err := store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, acct.Profile, got.Profile)
	assert.True(t, got.Balance.Equal(generic.NewAmount(12.5)))
	assert.Equal(t, 20, got.Counter(generic.ActivitySpin).Count)
	assert.True(t, created.Add(time.Hour).Equal(got.Counter(generic.ActivitySpin).CooldownEnd))
	assert.Equal(t, 4, got.Counter(generic.ActivityScratch).Count)
	assert.True(t, got.Counter(generic.ActivityScratch).CooldownEnd.IsZero())
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, created.Equal(got.CreatedAt))

	byEmail, err := store.FindAccountByEmail(ctx, "alice@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, generic.UserID("alice"), byEmail.ID)
}

func TestStore_GetAccount_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetAccount(context.Background(), "ghost")
	assert.ErrorIs(t, err, generic.ErrAccountNotFound)

	_, err = store.FindAccountByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, generic.ErrAccountNotFound)
}

func TestStore_PutAccount_BumpsVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	acct := generic.NewAccount("alice", generic.Profile{}, time.Now())

	for i := 0; i < 3; i++ {
		require.NoError(t, store.WithTx(ctx, func(tx generic.Tx) error {
			return tx.PutAccount(ctx, acct)
		}))
	}

	got, err := store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
}

func TestStore_WithTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.WithTx(ctx, func(tx generic.Tx) error {
		return tx.PutAccount(ctx, generic.NewAccount("alice", generic.Profile{}, time.Now()))
	}))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx generic.Tx) error {
		acct, err := tx.GetAccount(ctx, "alice")
		if err != nil {
			return err
		}
		acct.Balance = generic.Coins(1000)
		if err := tx.PutAccount(ctx, acct); err != nil {
			return err
		}
		if _, err := tx.AppendTransaction(ctx, generic.Transaction{AccountID: "alice", Kind: generic.ActivityAd, Amount: generic.Coins(1000)}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())

	txs, err := store.ListTransactions(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestStore_AppendTransaction_UnknownAccount(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.WithTx(ctx, func(tx generic.Tx) error {
		_, err := tx.AppendTransaction(ctx, generic.Transaction{AccountID: "ghost", Kind: generic.ActivityAd, Amount: generic.Coins(1)})
		return err
	})
	assert.ErrorIs(t, err, generic.ErrAccountNotFound)
}

func TestStore_ListTransactions_NewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Date(2025, time.May, 1, 10, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	require.NoError(t, store.WithTx(ctx, func(tx generic.Tx) error {
		return tx.PutAccount(ctx, generic.NewAccount("bob", generic.Profile{Email: "bob@example.com"}, now))
	}))

	for i := 1; i <= 5; i++ {
		now = now.Add(time.Second)
		require.NoError(t, store.WithTx(ctx, func(tx generic.Tx) error {
			_, err := tx.AppendTransaction(ctx, generic.Transaction{
				AccountID:    "bob",
				Kind:         generic.ActivityReceive,
				Amount:       generic.Coins(int64(i)),
				Counterparty: "alice@example.com",
			})
			return err
		}))
	}

	txs, err := store.ListTransactions(ctx, "bob", 3)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.True(t, txs[0].Amount.Equal(generic.Coins(5)))
	assert.True(t, txs[2].Amount.Equal(generic.Coins(3)))
	assert.Equal(t, "alice@example.com", txs[0].Counterparty)
	assert.Equal(t, generic.ActivityReceive, txs[0].Kind)
	assert.True(t, now.Equal(txs[0].Timestamp))
}

func TestStore_Ledger_TransferAndClaims(t *testing.T) {
	// GIVEN: The ledger running on SQLite
	// WHEN: Claims and transfers race
	// THEN: Balances and records agree

	ctx := context.Background()
	store := newTestStore(t)
	ledger := generic.NewLedger(store)

	for _, id := range []generic.UserID{"a", "b"} {
		_, _, err := ledger.SignIn(ctx, id, generic.Profile{Email: string(id) + "@example.com"})
		require.NoError(t, err)
	}

	window := generic.WindowPolicy{Limit: 10, Cooldown: time.Hour}
	var g errgroup.Group
	for i := 0; i < 15; i++ {
		g.Go(func() error {
			_, err := ledger.ClaimReward(ctx, generic.Claim{UserID: "a", Kind: generic.ActivityScratch, Window: &window, Amount: generic.Coins(10)})
			if errors.Is(err, generic.ErrDailyLimitExceeded) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	a, err := store.GetAccount(ctx, "a")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(generic.Coins(100)))
	assert.Equal(t, 10, a.Counter(generic.ActivityScratch).Count)

	_, err = ledger.Transfer(ctx, "a", "b@example.com", generic.Coins(30))
	require.NoError(t, err)

	b, err := store.GetAccount(ctx, "b")
	require.NoError(t, err)
	assert.True(t, b.Balance.Equal(generic.Coins(30)))

	txs, err := store.ListTransactions(ctx, "a", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 11)
	assert.Equal(t, generic.ActivitySend, txs[0].Kind)
}

func TestStore_Ledger_ClaimSurvivesCancelledContext(t *testing.T) {
	store := newTestStore(t)
	ledger := generic.NewLedger(store)
	_, _, err := ledger.SignIn(context.Background(), "a", generic.Profile{Email: "a@example.com"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ledger.ClaimReward(ctx, generic.Claim{UserID: "a", Kind: generic.ActivityCaptcha, Amount: generic.Coins(10)})
	require.NoError(t, err)

	a, err := store.GetAccount(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(generic.Coins(10)))
}

func TestStore_CorruptTimestamps_ReturnErrors(t *testing.T) {
	// GIVEN: an account with one record
	ctx := context.Background()
	store := newTestStore(t)
	acct := generic.NewAccount("alice", generic.Profile{Email: "alice@example.com"}, time.Now().UTC())
	require.NoError(t, store.WithTx(ctx, func(tx generic.Tx) error {
		if err := tx.PutAccount(ctx, acct); err != nil {
			return err
		}
		_, err := tx.AppendTransaction(ctx, generic.Transaction{ID: "tx-1", AccountID: "alice", Kind: generic.ActivityAd, Amount: generic.Coins(25)})
		return err
	}))

	// WHEN: the stored timestamps are damaged
	_, err := store.db.ExecContext(ctx, `UPDATE transactions SET timestamp = 'yesterday'`)
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, `UPDATE accounts SET updated_at = 'soon'`)
	require.NoError(t, err)

	// THEN: reads fail instead of returning zero times
	_, err = store.ListTransactions(ctx, "alice", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt timestamp")

	_, err = store.GetAccount(ctx, "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt updated_at")
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify("op", nil))
	assert.True(t, generic.IsTransient(classify("op", context.DeadlineExceeded)))
	assert.False(t, generic.IsTransient(classify("op", errors.New("syntax error"))))
}
