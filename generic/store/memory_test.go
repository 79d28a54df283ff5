package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oracoin/reward-engine/generic"
	"github.com/oracoin/reward-engine/generic/store"
)

var base = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func put(t *testing.T, m *store.Memory, acct generic.Account) {
	t.Helper()
	require.NoError(t, m.WithTx(context.Background(), func(tx generic.Tx) error {
		return tx.PutAccount(context.Background(), acct)
	}))
}

func TestMemory_WithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	put(t, m, generic.NewAccount("alice", generic.Profile{Email: "alice@example.com"}, base))

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx generic.Tx) error {
		acct, err := tx.GetAccount(ctx, "alice")
		require.NoError(t, err)
		acct.Balance = generic.Coins(500)
		require.NoError(t, tx.PutAccount(ctx, acct))
		_, err = tx.AppendTransaction(ctx, generic.Transaction{AccountID: "alice", Kind: generic.ActivityAd, Amount: generic.Coins(500)})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	acct, err := m.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, acct.Balance.IsZero())
	assert.Equal(t, int64(1), acct.Version)

	txs, err := m.ListTransactions(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestMemory_PutAccount_BumpsVersionKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	put(t, m, generic.NewAccount("alice", generic.Profile{}, base))

	acct, err := m.GetAccount(ctx, "alice")
	require.NoError(t, err)
	acct.CreatedAt = base.Add(time.Hour)
	put(t, m, acct)

	acct, err = m.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), acct.Version)
	assert.Equal(t, base, acct.CreatedAt)
}

func TestMemory_FindAccountByEmail(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	put(t, m, generic.NewAccount("bob", generic.Profile{Email: "Bob@Example.com"}, base))

	acct, err := m.FindAccountByEmail(ctx, " bob@example.COM")
	require.NoError(t, err)
	assert.Equal(t, generic.UserID("bob"), acct.ID)

	_, err = m.FindAccountByEmail(ctx, "carol@example.com")
	assert.ErrorIs(t, err, generic.ErrAccountNotFound)
}

func TestMemory_GetAccount_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	put(t, m, generic.NewAccount("alice", generic.Profile{}, base).WithCounter(generic.ActivitySpin, generic.Counter{Count: 3}))

	acct, err := m.GetAccount(ctx, "alice")
	require.NoError(t, err)
	acct.Counters[generic.ActivitySpin] = generic.Counter{Count: 99}

	again, err := m.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, again.Counter(generic.ActivitySpin).Count)
}

func TestMemory_AppendTransaction(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	now := base
	m.Now = func() time.Time { return now }
	put(t, m, generic.NewAccount("alice", generic.Profile{}, base))

	t.Run("missing account", func(t *testing.T) {
		err := m.WithTx(ctx, func(tx generic.Tx) error {
			_, err := tx.AppendTransaction(ctx, generic.Transaction{AccountID: "ghost", Kind: generic.ActivityAd})
			return err
		})
		assert.ErrorIs(t, err, generic.ErrAccountNotFound)
	})

	t.Run("timestamps never go backwards", func(t *testing.T) {
		var first, second generic.Transaction
		require.NoError(t, m.WithTx(ctx, func(tx generic.Tx) error {
			var err error
			first, err = tx.AppendTransaction(ctx, generic.Transaction{AccountID: "alice", Kind: generic.ActivityAd, Amount: generic.Coins(1)})
			return err
		}))
		now = base.Add(-time.Minute)
		require.NoError(t, m.WithTx(ctx, func(tx generic.Tx) error {
			var err error
			second, err = tx.AppendTransaction(ctx, generic.Transaction{AccountID: "alice", Kind: generic.ActivityAd, Amount: generic.Coins(2)})
			return err
		}))

		assert.NotEmpty(t, first.ID)
		assert.NotEqual(t, first.ID, second.ID)
		assert.False(t, second.Timestamp.Before(first.Timestamp))

		txs, err := m.ListTransactions(ctx, "alice", 0)
		require.NoError(t, err)
		require.Len(t, txs, 2)
		assert.Equal(t, second.ID, txs[0].ID)
	})
}
