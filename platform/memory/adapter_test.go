package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/code-payments/purchase-engine/model"
	"github.com/code-payments/purchase-engine/product"
	"github.com/code-payments/purchase-engine/receipt"
)

func newTestAdapter(t *testing.T, opts ...Option) *Adapter {
	t.Helper()
	opts = append([]Option{WithDelay(time.Millisecond)}, opts...)
	a := NewAdapter(zap.NewNop(), opts...)
	t.Cleanup(a.Shutdown)
	return a
}

func loadOne(t *testing.T, a *Adapter, id string, typ product.Type) *product.Product {
	t.Helper()
	results := a.Load(context.Background(), []Register{{ID: id, Type: typ}})
	require.Len(t, results, 1)
	require.Nil(t, results[0].Err)
	return results[0].Product
}

func TestAdapter_Load(t *testing.T) {
	a := newTestAdapter(t)

	results := a.Load(context.Background(), []Register{
		{ID: ConsumableID, Type: product.TypeConsumable},
		{ID: SubscriptionID, Type: product.TypePaidSubscription},
		{ID: "no-such-product", Type: product.TypeConsumable},
		{ID: NonConsumableID, Type: product.TypeConsumable}, // wrong type
	})
	require.Len(t, results, 4)

	consumable := results[0].Product
	require.Nil(t, results[0].Err)
	require.Equal(t, product.StateValid, consumable.State())
	require.True(t, consumable.CanPurchase())
	require.Len(t, consumable.Offers, 1)

	subscription := results[1].Product
	require.Nil(t, results[1].Err)
	require.Len(t, subscription.Offers[0].PricingPhases, 2)
	require.Equal(t, product.FreeTrial, subscription.Offers[0].PricingPhases[0].Payment)

	for _, result := range results[2:] {
		require.Nil(t, result.Product)
		require.NotNil(t, result.Err)
		require.Equal(t, model.ErrProductNotAvailable, result.Err.Code)
		require.Equal(t, "This product is not available", result.Err.Message)
	}

	// Loading again returns the same product instance.
	again := loadOne(t, a, ConsumableID, product.TypeConsumable)
	require.Same(t, consumable, again)
	require.Len(t, a.Products(), 2)
}

func TestAdapter_OrderApproves(t *testing.T) {
	a := newTestAdapter(t)
	p := loadOne(t, a, ConsumableID, product.TypeConsumable)

	require.Nil(t, a.Order(context.Background(), p.Offers[0]))
	require.Equal(t, product.StateApproved, p.State())

	receipts := a.Receipts()
	require.Len(t, receipts, 1)
	require.Equal(t, model.PlatformTest, receipts[0].Platform)
	require.NotEmpty(t, receipts[0].PurchaseToken)

	tx, ok := receipts[0].LastTransaction()
	require.True(t, ok)
	require.Equal(t, receipt.TransactionApproved, tx.State)
	require.True(t, tx.HasProduct(ConsumableID))
	require.NotNil(t, tx.PurchaseDate)
	require.False(t, tx.IsAcknowledged)
}

func TestAdapter_OrderFailures(t *testing.T) {
	a := newTestAdapter(t)
	p := loadOne(t, a, NonConsumableID, product.TypeNonConsumable)
	ctx := context.Background()

	err := a.Order(ctx, &product.Offer{ID: "sku-fail-offer", ProductID: NonConsumableID})
	require.NotNil(t, err)
	require.Equal(t, model.ErrPurchase, err.Code)
	require.Equal(t, "Purchase failed.", err.Message)

	err = a.Order(ctx, &product.Offer{ID: "x", ProductID: "unloaded"})
	require.NotNil(t, err)
	require.Equal(t, model.ErrProductNotAvailable, err.Code)

	// Owning a non-consumable blocks a second purchase.
	require.Nil(t, a.Order(ctx, p.Offers[0]))
	err = a.Order(ctx, p.Offers[0])
	require.NotNil(t, err)
	require.Equal(t, model.ErrPurchase, err.Code)
	require.Equal(t, "Product already owned", err.Message)
}

func TestAdapter_OrderCancelled(t *testing.T) {
	a := newTestAdapter(t, WithDelay(time.Minute))
	p := loadOne(t, a, ConsumableID, product.TypeConsumable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.Order(ctx, p.Offers[0])
	require.NotNil(t, err)
	require.Equal(t, model.ErrPaymentCancelled, err.Code)
	require.Empty(t, a.Receipts())
}

func TestAdapter_FinishConsumable(t *testing.T) {
	a := newTestAdapter(t)
	p := loadOne(t, a, ConsumableID, product.TypeConsumable)
	ctx := context.Background()

	require.Nil(t, a.Order(ctx, p.Offers[0]))
	tx, _ := a.Receipts()[0].LastTransaction()

	require.Nil(t, a.Finish(ctx, tx))
	require.Equal(t, receipt.TransactionFinished, tx.State)
	require.True(t, tx.IsAcknowledged)
	require.True(t, tx.IsConsumed)

	// Consumed: the product is purchasable again.
	require.Equal(t, product.StateValid, p.State())
	require.Nil(t, a.Order(ctx, p.Offers[0]))
}

func TestAdapter_FinishNonConsumable(t *testing.T) {
	a := newTestAdapter(t)
	p := loadOne(t, a, NonConsumableID, product.TypeNonConsumable)
	ctx := context.Background()

	require.Nil(t, a.Order(ctx, p.Offers[0]))
	tx, _ := a.Receipts()[0].LastTransaction()

	require.Nil(t, a.Finish(ctx, tx))
	require.True(t, tx.IsAcknowledged)
	require.False(t, tx.IsConsumed)
	require.Equal(t, product.StateOwned, p.State())
}

func TestAdapter_RequestPayment(t *testing.T) {
	a := newTestAdapter(t)

	tx, err := a.RequestPayment(context.Background(), PaymentRequest{
		ProductIDs:   []string{"donation"},
		AmountMicros: 2500000,
		Currency:     "EUR",
	})
	require.Nil(t, err)
	require.Equal(t, receipt.TransactionApproved, tx.State)
	require.EqualValues(t, 2500000, tx.AmountMicros)
	require.Equal(t, "EUR", tx.Currency)
	require.True(t, tx.HasProduct("donation"))
	require.Len(t, a.Receipts(), 1)
}

func TestAdapter_ValidateLocally(t *testing.T) {
	a := newTestAdapter(t)
	p := loadOne(t, a, ConsumableID, product.TypeConsumable)
	ctx := context.Background()

	require.Nil(t, a.Order(ctx, p.Offers[0]))

	payload := a.ValidateLocally(ctx, a.Receipts()[0])
	require.True(t, payload.OK)
	require.NotNil(t, payload.Data)
	require.Equal(t, ConsumableID, payload.Data.ID)
	require.True(t, payload.Data.LatestReceipt)
	require.JSONEq(t, `{"type":"test"}`, string(payload.Data.Transaction))
	require.Len(t, payload.Data.Collection, 1)
	require.Equal(t, ConsumableID, payload.Data.Collection[0].ID)
	require.NotZero(t, payload.Data.Collection[0].PurchaseDate)
}

type recordingListener struct {
	mu       sync.Mutex
	products int
	receipts int
}

func (l *recordingListener) ProductsUpdated(_ model.Platform, products []*product.Product) {
	l.mu.Lock()
	l.products += len(products)
	l.mu.Unlock()
}

func (l *recordingListener) ReceiptsUpdated(_ model.Platform, receipts []*receipt.Receipt) {
	l.mu.Lock()
	l.receipts++
	l.mu.Unlock()
}

func (l *recordingListener) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.products, l.receipts
}

func TestAdapter_ListenerNotifications(t *testing.T) {
	listener := &recordingListener{}
	a := newTestAdapter(t, WithListener(listener))
	p := loadOne(t, a, ConsumableID, product.TypeConsumable)

	products, _ := listener.counts()
	require.Equal(t, 1, products)

	// Order and finish back to back: notifications coalesce into one.
	ctx := context.Background()
	require.Nil(t, a.Order(ctx, p.Offers[0]))
	tx, _ := a.Receipts()[0].LastTransaction()
	require.Nil(t, a.Finish(ctx, tx))

	require.Eventually(t, func() bool {
		_, receipts := listener.counts()
		return receipts == 1
	}, 2*time.Second, 10*time.Millisecond)

	// No further notification arrives from the same burst.
	time.Sleep(400 * time.Millisecond)
	_, receipts := listener.counts()
	require.Equal(t, 1, receipts)
}
