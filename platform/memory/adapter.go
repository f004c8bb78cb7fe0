package memory

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/code-payments/purchase-engine/event"
	"github.com/code-payments/purchase-engine/model"
	"github.com/code-payments/purchase-engine/product"
	"github.com/code-payments/purchase-engine/receipt"
	"github.com/code-payments/purchase-engine/validator"
)

const (
	// Simulated backend latency for orders, finishes and local validation.
	defaultDelay = 500 * time.Millisecond

	// Receipt update notifications are coalesced within this window.
	notifyDebounce = 300 * time.Millisecond
)

// Product ids known to the fake backend.
const (
	ConsumableID    = "test-consumable"
	NonConsumableID = "test-non-consumable"
	SubscriptionID  = "test-subscription"
)

type catalogEntry struct {
	typ         product.Type
	title       string
	priceMicros int64
	currency    string
	phases      []product.PricingPhase
}

var catalog = map[string]catalogEntry{
	ConsumableID: {
		typ:         product.TypeConsumable,
		title:       "Test Consumable",
		priceMicros: 990000,
		currency:    "USD",
		phases: []product.PricingPhase{
			{PriceMicros: 990000, Currency: "USD", Recurrence: product.NonRecurring, Payment: product.PayUpFront},
		},
	},
	NonConsumableID: {
		typ:         product.TypeNonConsumable,
		title:       "Test Non-Consumable",
		priceMicros: 1990000,
		currency:    "USD",
		phases: []product.PricingPhase{
			{PriceMicros: 1990000, Currency: "USD", Recurrence: product.NonRecurring, Payment: product.PayUpFront},
		},
	},
	SubscriptionID: {
		typ:         product.TypePaidSubscription,
		title:       "Test Subscription",
		priceMicros: 4990000,
		currency:    "USD",
		phases: []product.PricingPhase{
			{PriceMicros: 0, Currency: "USD", BillingPeriod: "P1W", Recurrence: product.FiniteRecurring, Payment: product.FreeTrial, BillingCycles: 1},
			{PriceMicros: 4990000, Currency: "USD", BillingPeriod: "P1M", Recurrence: product.InfiniteRecurring, Payment: product.PayAsYouGo},
		},
	},
}

// Listener receives backend notifications, mirroring how a native billing
// SDK reports updates to the application.
type Listener interface {
	ProductsUpdated(platform model.Platform, products []*product.Product)
	ReceiptsUpdated(platform model.Platform, receipts []*receipt.Receipt)
}

// Register describes a product the application wants to sell.
type Register struct {
	ID   string
	Type product.Type
}

// LoadResult is the per-product outcome of a Load call.
type LoadResult struct {
	Product *product.Product
	Err     *model.Error
}

// PaymentRequest asks the fake backend for an ad-hoc payment not tied to a
// declared product offer.
type PaymentRequest struct {
	ProductIDs   []string
	AmountMicros int64
	Currency     string
}

type Option func(*Adapter)

func WithListener(l Listener) Option {
	return func(a *Adapter) { a.listener = l }
}

func WithProductBus(bus *product.Bus) Option {
	return func(a *Adapter) { a.bus = bus }
}

// WithDelay overrides the simulated backend latency.
func WithDelay(delay time.Duration) Option {
	return func(a *Adapter) { a.delay = delay }
}

// Adapter is an in-memory purchase backend for local testing. It simulates a
// platform supporting both in-app products and payment requests, and
// verifies its own receipts offline: no network validation ever happens for
// this platform. All state is scoped to the adapter instance.
type Adapter struct {
	log      *zap.Logger
	listener Listener
	bus      *product.Bus
	delay    time.Duration

	mu                sync.Mutex
	products          *product.Registry
	receipts          []*receipt.Receipt
	verifiedPurchases []validator.VerifiedPurchase

	notifyReceipts *event.Debouncer
}

func NewAdapter(log *zap.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		log:      log,
		delay:    defaultDelay,
		products: product.NewRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.notifyReceipts = event.NewDebouncer(notifyDebounce, a.flushReceiptsUpdated)
	return a
}

func (a *Adapter) Platform() model.Platform {
	return model.PlatformTest
}

// Shutdown drops any pending listener notification.
func (a *Adapter) Shutdown() {
	a.notifyReceipts.Cancel()
}

func (a *Adapter) Products() []*product.Product {
	return a.products.All()
}

func (a *Adapter) Receipts() []*receipt.Receipt {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*receipt.Receipt, len(a.receipts))
	copy(out, a.receipts)
	return out
}

// Load declares products to the backend. Products absent from the catalog
// come back as ErrProductNotAvailable results; the rest are reported VALID.
func (a *Adapter) Load(ctx context.Context, registrations []Register) []LoadResult {
	results := make([]LoadResult, 0, len(registrations))
	var loaded []*product.Product

	for _, reg := range registrations {
		entry, ok := catalog[reg.ID]
		if !ok || entry.typ != reg.Type {
			results = append(results, LoadResult{
				Err: model.NewError(model.ErrProductNotAvailable, "This product is not available"),
			})
			continue
		}

		if existing, ok := a.products.Get(reg.ID); ok {
			results = append(results, LoadResult{Product: existing})
			continue
		}

		p := product.New(reg.ID, reg.Type, model.PlatformTest, a.bus)
		p.Title = entry.title
		p.PriceMicros = entry.priceMicros
		p.Currency = entry.currency
		p.Offers = []*product.Offer{{
			ID:            reg.ID + "-offer",
			ProductID:     reg.ID,
			Platform:      model.PlatformTest,
			PricingPhases: entry.phases,
		}}
		p.SetState(product.StateValid)
		a.products.Add(p)
		loaded = append(loaded, p)
		results = append(results, LoadResult{Product: p})
	}

	if a.listener != nil && len(loaded) > 0 {
		a.listener.ProductsUpdated(model.PlatformTest, loaded)
	}
	return results
}

// Order simulates the purchase flow for an offer. Offer ids containing
// "-fail-" are rejected, as is re-purchasing a non-consumable that is
// already owned.
func (a *Adapter) Order(ctx context.Context, offer *product.Offer) *model.Error {
	if strings.Contains(offer.ID, "-fail-") {
		return model.NewError(model.ErrPurchase, "Purchase failed.")
	}

	p, ok := a.products.Get(offer.ProductID)
	if !ok {
		return model.NewError(model.ErrProductNotAvailable, "This product is not available")
	}
	if p.Type != product.TypeConsumable && a.owns(offer.ProductID) {
		return model.NewError(model.ErrPurchase, "Product already owned")
	}

	if err := a.sleep(ctx); err != nil {
		return model.NewError(model.ErrPaymentCancelled, "Purchase flow has been cancelled by the user")
	}

	r := receipt.New(model.PlatformTest, newPurchaseToken())
	now := time.Now()
	tx := r.AddTransaction(&receipt.Transaction{
		TransactionID: offer.ProductID + "-" + uuid.NewString(),
		State:         receipt.TransactionApproved,
		Products:      []receipt.ProductRef{{ID: offer.ProductID, OfferID: offer.ID}},
		PurchaseDate:  &now,
	})

	a.mu.Lock()
	a.receipts = append(a.receipts, r)
	a.updateVerifiedPurchasesLocked(tx)
	a.mu.Unlock()

	p.SetState(product.StateApproved)
	a.notifyReceipts.Trigger()
	return nil
}

// RequestPayment simulates the payment-request flow: an ad-hoc charge that
// produces a transaction without a declared offer.
func (a *Adapter) RequestPayment(ctx context.Context, request PaymentRequest) (*receipt.Transaction, *model.Error) {
	if err := a.sleep(ctx); err != nil {
		return nil, model.NewError(model.ErrPaymentCancelled, "Payment flow has been cancelled by the user")
	}

	r := receipt.New(model.PlatformTest, newPurchaseToken())
	now := time.Now()
	products := make([]receipt.ProductRef, 0, len(request.ProductIDs))
	for _, id := range request.ProductIDs {
		products = append(products, receipt.ProductRef{ID: id})
	}
	tx := r.AddTransaction(&receipt.Transaction{
		TransactionID: "payment-" + uuid.NewString(),
		State:         receipt.TransactionApproved,
		Products:      products,
		PurchaseDate:  &now,
		AmountMicros:  request.AmountMicros,
		Currency:      request.Currency,
	})

	a.mu.Lock()
	a.receipts = append(a.receipts, r)
	a.mu.Unlock()

	a.notifyReceipts.Trigger()
	return tx, nil
}

// Finish acknowledges delivery of a transaction to the backend.
func (a *Adapter) Finish(ctx context.Context, tx *receipt.Transaction) *model.Error {
	if err := a.sleep(ctx); err != nil {
		return model.NewError(model.ErrFinish, "finish interrupted: %v", err)
	}

	tx.State = receipt.TransactionFinished
	tx.IsAcknowledged = true

	if len(tx.Products) > 0 {
		if p, ok := a.products.Get(tx.Products[0].ID); ok {
			if p.Type == product.TypeConsumable {
				tx.IsConsumed = true
				p.SetState(product.StateValid)
			} else {
				p.SetState(product.StateOwned)
			}
		}
	}

	a.mu.Lock()
	a.updateVerifiedPurchasesLocked(tx)
	a.mu.Unlock()

	a.notifyReceipts.Trigger()
	return nil
}

// ReceiptValidationBody declines: this platform's receipts never go to a
// validation server.
func (a *Adapter) ReceiptValidationBody(ctx context.Context, r *receipt.Receipt) (*validator.Body, error) {
	return nil, nil
}

func (a *Adapter) HandleReceiptValidationResponse(ctx context.Context, r *receipt.Receipt, payload *validator.Payload) error {
	return nil
}

// ValidateLocally synthesizes a successful validation payload after the
// simulated delay, carrying this session's verified purchases.
func (a *Adapter) ValidateLocally(ctx context.Context, r *receipt.Receipt) *validator.Payload {
	_ = a.sleep(ctx)

	var id string
	if tx, ok := r.LastTransaction(); ok && len(tx.Products) > 0 {
		id = tx.Products[0].ID
	}

	a.mu.Lock()
	collection := make([]validator.VerifiedPurchase, len(a.verifiedPurchases))
	copy(collection, a.verifiedPurchases)
	a.mu.Unlock()

	return &validator.Payload{
		OK: true,
		Data: &validator.ResponseData{
			ID:            id,
			LatestReceipt: true,
			Transaction:   json.RawMessage(`{"type":"test"}`),
			Collection:    collection,
		},
	}
}

func (a *Adapter) owns(productID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, r := range a.receipts {
		for _, tx := range r.Transactions() {
			if tx.HasProduct(productID) && !tx.IsConsumed {
				return true
			}
		}
	}
	return false
}

func (a *Adapter) updateVerifiedPurchasesLocked(tx *receipt.Transaction) {
	for _, ref := range tx.Products {
		attributes := validator.VerifiedPurchase{
			ID:              ref.ID,
			PurchaseDate:    unixMilli(tx.PurchaseDate),
			ExpiryDate:      unixMilli(tx.ExpirationDate),
			LastRenewalDate: unixMilli(tx.LastRenewalDate),
			RenewalIntent:   string(tx.RenewalIntent),
		}

		updated := false
		for i := range a.verifiedPurchases {
			if a.verifiedPurchases[i].ID == ref.ID {
				a.verifiedPurchases[i] = attributes
				updated = true
				break
			}
		}
		if !updated {
			a.verifiedPurchases = append(a.verifiedPurchases, attributes)
		}
	}
}

func (a *Adapter) flushReceiptsUpdated() {
	if a.listener == nil {
		return
	}
	a.listener.ReceiptsUpdated(model.PlatformTest, a.Receipts())
}

func (a *Adapter) sleep(ctx context.Context) error {
	select {
	case <-time.After(a.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newPurchaseToken() string {
	token := make([]byte, 16)
	_, _ = rand.Read(token)
	return base58.Encode(token)
}

func unixMilli(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}
