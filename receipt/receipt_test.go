package receipt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/purchase-engine/model"
)

func TestReceipt_TransactionOwnership(t *testing.T) {
	r := New(model.PlatformGooglePlay, "token-1")
	require.Equal(t, "android-playstore:token-1", r.Key())

	tx := r.AddTransaction(&Transaction{
		TransactionID: "GPA.1234",
		State:         TransactionApproved,
		Products:      []ProductRef{{ID: "sku1"}},
	})

	require.Same(t, r, tx.ParentReceipt())
	require.Equal(t, model.PlatformGooglePlay, tx.Platform)
	require.True(t, r.HasTransaction(tx))

	// Identity is the transaction id: re-adding returns the existing one.
	dup := r.AddTransaction(&Transaction{TransactionID: "GPA.1234"})
	require.Same(t, tx, dup)
	require.Len(t, r.Transactions(), 1)

	// Membership is tested by identity, not id.
	other := &Transaction{TransactionID: "GPA.1234"}
	require.False(t, r.HasTransaction(other))
}

func TestReceipt_LastTransaction(t *testing.T) {
	r := New(model.PlatformTest, "token-1")

	_, ok := r.LastTransaction()
	require.False(t, ok)

	r.AddTransaction(&Transaction{TransactionID: "t1"})
	second := r.AddTransaction(&Transaction{TransactionID: "t2"})

	last, ok := r.LastTransaction()
	require.True(t, ok)
	require.Same(t, second, last)
}

func TestReceipt_VirtualTransactionLifecycle(t *testing.T) {
	r := New(model.PlatformAppleAppStore, "app-receipt")

	v := r.UpsertVirtualTransaction("sku1", TransactionInitiated)
	require.Equal(t, "virtual.sku1", v.TransactionID)
	require.True(t, v.IsVirtual())
	require.Equal(t, TransactionInitiated, v.State)

	// Upserting promotes the state in place rather than duplicating.
	again := r.UpsertVirtualTransaction("sku1", TransactionPending)
	require.Same(t, v, again)
	require.Equal(t, TransactionPending, v.State)
	require.Len(t, r.Transactions(), 1)

	// The real transaction arrives: the virtual one is removed, not merged.
	real := r.AddTransaction(&Transaction{
		TransactionID: "1000000123",
		State:         TransactionApproved,
		Products:      []ProductRef{{ID: "sku1"}},
	})
	r.RemoveVirtualTransaction("sku1")

	txs := r.Transactions()
	require.Len(t, txs, 1)
	require.Same(t, real, txs[0])
	require.False(t, real.IsVirtual())
}

func TestReceipt_FindAndRemove(t *testing.T) {
	r := New(model.PlatformTest, "token-1")
	r.AddTransaction(&Transaction{TransactionID: "t1"})
	tx2 := r.AddTransaction(&Transaction{TransactionID: "t2"})

	found, ok := r.FindTransaction("t2")
	require.True(t, ok)
	require.Same(t, tx2, found)

	r.RemoveTransaction("t1")
	require.Len(t, r.Transactions(), 1)
	_, ok = r.FindTransaction("t1")
	require.False(t, ok)
}

func TestTransaction_UnknownStatePreserved(t *testing.T) {
	r := New(model.PlatformGooglePlay, "token-1")
	tx := r.AddTransaction(&Transaction{
		TransactionID: "GPA.999",
		State:         TransactionUnknown,
	})

	// The backend reported something we cannot interpret; it stays as-is.
	require.Equal(t, TransactionUnknown, tx.State)
}

func TestVirtualTransactionID(t *testing.T) {
	require.Equal(t, "virtual.sku1", VirtualTransactionID("sku1"))
	require.True(t, IsVirtualTransactionID("virtual.sku1"))
	require.False(t, IsVirtualTransactionID("1000000123"))
}
