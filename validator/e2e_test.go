package validator_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/code-payments/purchase-engine/model"
	"github.com/code-payments/purchase-engine/platform/memory"
	"github.com/code-payments/purchase-engine/product"
	"github.com/code-payments/purchase-engine/receipt"
	"github.com/code-payments/purchase-engine/validator"
	verifiedmemory "github.com/code-payments/purchase-engine/verified/memory"
)

type collector struct {
	mu         sync.Mutex
	verified   []*validator.VerifiedReceipt
	unverified []validator.UnverifiedReceipt
}

func collect(v *validator.Validator) *collector {
	c := &collector{}
	v.OnVerified(func(vr *validator.VerifiedReceipt) {
		c.mu.Lock()
		c.verified = append(c.verified, vr)
		c.mu.Unlock()
	})
	v.OnUnverified(func(ur validator.UnverifiedReceipt) {
		c.mu.Lock()
		c.unverified = append(c.unverified, ur)
		c.mu.Unlock()
	})
	return c
}

// A purchase starts as a virtual placeholder, then the backend assigns a real
// transaction id. With no validation authority configured the queue drains
// without events either way.
func TestPurchaseFlow_VirtualTransactionThenReal(t *testing.T) {
	v := validator.New(zap.NewNop())
	events := collect(v)

	r := receipt.New(model.PlatformGooglePlay, "app-receipt")
	virtual := r.UpsertVirtualTransaction("sku1", receipt.TransactionInitiated)
	v.AddTransaction(virtual)
	v.Run(context.Background())

	require.Empty(t, events.verified)
	require.Empty(t, events.unverified)

	real := r.AddTransaction(&receipt.Transaction{
		TransactionID: "1000000123",
		State:         receipt.TransactionApproved,
		Products:      []receipt.ProductRef{{ID: "sku1"}},
	})
	r.RemoveVirtualTransaction("sku1")

	txs := r.Transactions()
	require.Len(t, txs, 1)
	require.Same(t, real, txs[0])
}

func TestPurchaseFlow_FunctionValidator(t *testing.T) {
	v := validator.New(zap.NewNop(),
		validator.WithFunction(func(ctx context.Context, body *validator.Body) (*validator.Payload, error) {
			return &validator.Payload{
				OK: true,
				Data: &validator.ResponseData{
					ID:            "sku1",
					LatestReceipt: true,
					Transaction:   json.RawMessage(`{"type":"test"}`),
				},
			}, nil
		}))

	v.RegisterAdapter(&remoteAdapter{})
	events := collect(v)

	r := receipt.New(model.PlatformGooglePlay, "token-1")
	r.AddTransaction(&receipt.Transaction{
		TransactionID: "1000000123",
		State:         receipt.TransactionApproved,
		Products:      []receipt.ProductRef{{ID: "sku1"}},
	})
	v.Add(r)
	v.Run(context.Background())

	require.Len(t, events.verified, 1)
	require.Equal(t, "sku1", events.verified[0].ID)
	require.True(t, events.verified[0].LatestReceipt)
	require.Same(t, r, events.verified[0].SourceReceipt())
	require.Empty(t, events.unverified)
}

// remoteAdapter is a platform binding with no local verification routine, so
// its receipts always go through the configured validation authority.
type remoteAdapter struct{}

func (remoteAdapter) Platform() model.Platform { return model.PlatformGooglePlay }

func (remoteAdapter) ReceiptValidationBody(ctx context.Context, r *receipt.Receipt) (*validator.Body, error) {
	tx, ok := r.LastTransaction()
	if !ok {
		return nil, nil
	}
	return &validator.Body{
		ID:          tx.Products[0].ID,
		Transaction: map[string]interface{}{"id": tx.TransactionID, "type": r.Platform.String()},
	}, nil
}

func (remoteAdapter) HandleReceiptValidationResponse(ctx context.Context, r *receipt.Receipt, payload *validator.Payload) error {
	return nil
}

func (remoteAdapter) Products() []*product.Product { return nil }
func (remoteAdapter) Receipts() []*receipt.Receipt { return nil }

func TestPurchaseFlow_LocalValidation(t *testing.T) {
	store := verifiedmemory.NewInMemory()
	v := validator.New(zap.NewNop(), validator.WithStore(store))

	adapter := memory.NewAdapter(zap.NewNop(), memory.WithDelay(0))
	defer adapter.Shutdown()
	v.RegisterAdapter(adapter)
	events := collect(v)

	ctx := context.Background()
	results := adapter.Load(ctx, []memory.Register{
		{ID: memory.ConsumableID, Type: product.TypeConsumable},
	})
	require.Len(t, results, 1)
	require.Nil(t, results[0].Err)

	p := results[0].Product
	require.Equal(t, product.StateValid, p.State())
	require.NoError(t, errOf(adapter.Order(ctx, p.Offers[0])))

	receipts := adapter.Receipts()
	require.Len(t, receipts, 1)

	v.Add(receipts[0])
	v.Run(ctx)

	require.Len(t, events.verified, 1)
	require.Equal(t, memory.ConsumableID, events.verified[0].ID)
	require.Len(t, events.verified[0].Collection, 1)
	require.Equal(t, memory.ConsumableID, events.verified[0].Collection[0].ID)
	require.Empty(t, events.unverified)

	// Local validation still persists the verified projection.
	record, err := store.Get(ctx, model.PlatformTest, memory.ConsumableID)
	require.NoError(t, err)
	require.Equal(t, memory.ConsumableID, record.ProductID)

	var data validator.ResponseData
	require.NoError(t, json.Unmarshal(record.Data, &data))
	require.True(t, data.LatestReceipt)
}

func errOf(e *model.Error) error {
	if e == nil {
		return nil
	}
	return e
}
