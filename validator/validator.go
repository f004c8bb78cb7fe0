package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ReneKroon/ttlcache"
	"go.uber.org/zap"

	"github.com/code-payments/purchase-engine/event"
	"github.com/code-payments/purchase-engine/metrics"
	"github.com/code-payments/purchase-engine/model"
	"github.com/code-payments/purchase-engine/receipt"
	"github.com/code-payments/purchase-engine/verified"
)

const (
	// Validation responses are reused for identical transaction payloads
	// within this window.
	defaultCacheTTL = 120 * time.Second

	// Adapter calls can hang on a native bridge; they are bounded by this
	// timeout and a timeout counts as "nothing to validate".
	defaultBodyTimeout = 30 * time.Second
)

// Func is a user-supplied validation function, used instead of an HTTP
// target when configured.
type Func func(ctx context.Context, body *Body) (*Payload, error)

// Target configures an HTTP validation endpoint.
type Target struct {
	URL     string
	Headers map[string]string
}

type Option func(*Validator)

// WithFunction validates receipts through a user-supplied function.
func WithFunction(fn Func) Option {
	return func(v *Validator) { v.fn = fn }
}

// WithTarget validates receipts with an HTTP POST to the given target.
func WithTarget(target Target) Option {
	return func(v *Validator) { v.target = &target }
}

// WithURL is shorthand for WithTarget with no custom headers.
func WithURL(url string) Option {
	return WithTarget(Target{URL: url})
}

// WithStore persists verified receipts as they are upserted.
func WithStore(store verified.Store) Option {
	return func(v *Validator) { v.store = store }
}

// WithApplicationUsername injects the application username into request
// bodies. The callback is consulted per request; an empty result omits the
// field entirely.
func WithApplicationUsername(fn func() string) Option {
	return func(v *Validator) { v.username = fn }
}

// WithDeviceInfo overrides the device metadata attached to request bodies.
func WithDeviceInfo(info *model.DeviceInfo) Option {
	return func(v *Validator) { v.device = info }
}

func WithHTTPClient(client *http.Client) Option {
	return func(v *Validator) { v.httpClient = client }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(v *Validator) { v.cacheTTL = ttl }
}

func WithBodyTimeout(timeout time.Duration) Option {
	return func(v *Validator) { v.bodyTimeout = timeout }
}

// Validator queues receipts for server-side verification, deduplicates and
// caches validation calls, and merges responses into verified receipts.
//
// It performs no retries of its own: a failed batch is retried by calling
// Add and Run again, which keeps repeated calls side-effect-free.
type Validator struct {
	log *zap.Logger

	adaptersMu sync.RWMutex
	adapters   map[model.Platform]Adapter

	queue receiptQueue

	fn         Func
	target     *Target
	httpClient *http.Client

	cache    *ttlcache.Cache
	cacheTTL time.Duration

	verifiedMu       sync.Mutex
	verifiedReceipts []*VerifiedReceipt

	store verified.Store

	username    func() string
	device      *model.DeviceInfo
	bodyTimeout time.Duration

	verifiedBus   *event.Bus[model.Platform, *VerifiedReceipt]
	unverifiedBus *event.Bus[model.Platform, UnverifiedReceipt]
}

func New(log *zap.Logger, opts ...Option) *Validator {
	v := &Validator{
		log:           log,
		adapters:      map[model.Platform]Adapter{},
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		cacheTTL:      defaultCacheTTL,
		device:        model.DefaultDeviceInfo(),
		bodyTimeout:   defaultBodyTimeout,
		verifiedBus:   event.NewBus[model.Platform, *VerifiedReceipt](),
		unverifiedBus: event.NewBus[model.Platform, UnverifiedReceipt](),
	}
	for _, opt := range opts {
		opt(v)
	}

	cache := ttlcache.NewCache()
	cache.SetTTL(v.cacheTTL)
	cache.SkipTtlExtensionOnHit(true)
	v.cache = cache

	return v
}

// RegisterAdapter makes a platform backend available for validation. The
// last adapter registered for a platform wins.
func (v *Validator) RegisterAdapter(a Adapter) {
	v.adaptersMu.Lock()
	v.adapters[a.Platform()] = a
	v.adaptersMu.Unlock()
}

func (v *Validator) adapterFor(platform model.Platform) Adapter {
	v.adaptersMu.RLock()
	defer v.adaptersMu.RUnlock()
	return v.adapters[platform]
}

// OnVerified registers a callback fired after every successful
// reconciliation, carrying the upserted verified receipt.
func (v *Validator) OnVerified(fn func(*VerifiedReceipt)) {
	v.verifiedBus.AddHandler(event.HandlerFunc[model.Platform, *VerifiedReceipt](
		func(_ model.Platform, vr *VerifiedReceipt) { fn(vr) }))
}

// OnUnverified registers a callback fired when validation of a receipt
// fails, for any reason: transport error, malformed response, or a server
// rejection. All failure modes arrive through this one channel.
func (v *Validator) OnUnverified(fn func(UnverifiedReceipt)) {
	v.unverifiedBus.AddHandler(event.HandlerFunc[model.Platform, UnverifiedReceipt](
		func(_ model.Platform, ur UnverifiedReceipt) { fn(ur) }))
}

// VerifiedReceipts returns the verified receipts known to this validator.
func (v *Validator) VerifiedReceipts() []*VerifiedReceipt {
	v.verifiedMu.Lock()
	defer v.verifiedMu.Unlock()

	out := make([]*VerifiedReceipt, len(v.verifiedReceipts))
	copy(out, v.verifiedReceipts)
	return out
}

// Add enqueues a receipt for the next Run. The queue is a set: re-adding a
// queued receipt is a no-op. Nothing is validated until Run is called.
func (v *Validator) Add(r *receipt.Receipt) {
	v.log.Debug("Schedule validation", zap.String("receipt", r.Key()))
	v.queue.add(r)
}

// AddTransaction enqueues the receipt owning the transaction.
func (v *Validator) AddTransaction(t *receipt.Transaction) {
	if parent := t.ParentReceipt(); parent != nil {
		v.Add(parent)
	}
}

// Run snapshots and clears the queue, then validates every snapshotted
// receipt. Receipts process concurrently and independently; a failure on one
// never blocks another. Run returns once every receipt has been reconciled.
// Add may be called at any point during a run, including from an event
// callback; receipts added mid-run are deferred to the next Run.
func (v *Validator) Run(ctx context.Context) {
	receipts := v.queue.snapshot()

	var wg sync.WaitGroup
	for _, r := range receipts {
		wg.Add(1)
		go func(r *receipt.Receipt) {
			defer wg.Done()
			v.runOnReceipt(ctx, r)
		}(r)
	}
	wg.Wait()
}

func (v *Validator) runOnReceipt(ctx context.Context, r *receipt.Receipt) {
	log := v.log.With(
		zap.String("platform", r.Platform.String()),
		zap.String("receipt", r.Key()),
	)

	adapter := v.adapterFor(r.Platform)
	if adapter == nil {
		log.Warn("No adapter registered for platform")
		return
	}

	if local, ok := adapter.(LocalValidator); ok {
		log.Debug("Using local verification routine")
		v.reconcile(ctx, adapter, r, local.ValidateLocally(ctx, r))
		return
	}

	if v.fn == nil && v.target == nil {
		// No validation authority configured. Nothing to verify against.
		return
	}

	body := v.buildRequestBody(ctx, adapter, r, log)
	if body == nil {
		return
	}

	payload := v.dispatch(ctx, body, log)
	if payload == nil {
		return
	}
	v.reconcile(ctx, adapter, r, payload)
}

func (v *Validator) buildRequestBody(ctx context.Context, adapter Adapter, r *receipt.Receipt, log *zap.Logger) *Body {
	ctx, cancel := context.WithTimeout(ctx, v.bodyTimeout)
	defer cancel()

	body, err := adapter.ReceiptValidationBody(ctx, r)
	if err != nil {
		log.Warn("Adapter failed to build validation body", zap.Error(err))
		return nil
	}
	if body == nil {
		// The adapter declined. Skip this receipt without an error.
		return nil
	}

	var username string
	if v.username != nil {
		username = v.username()
	}
	enrich(body, username, v.device)
	return body
}

func (v *Validator) dispatch(ctx context.Context, body *Body, log *zap.Logger) *Payload {
	hash, err := transactionHash(body)
	if err != nil {
		log.Warn("Failed to hash transaction payload", zap.Error(err))
		return &Payload{OK: false, Code: model.ErrUnknown, Message: err.Error()}
	}

	if cached, ok := v.cache.Get(hash); ok {
		metrics.ValidationCacheHits.Inc()
		log.Debug("Reusing cached validation response")
		return cached.(*Payload)
	}

	metrics.ValidationRequests.Inc()

	var payload *Payload
	var cacheable bool
	if v.fn != nil {
		payload, cacheable = v.callFunction(ctx, body, log)
	} else {
		payload, cacheable = v.post(ctx, body, log)
	}

	// Only syntactically valid responses are cached; synthesized error
	// payloads always retry on the next run.
	if payload != nil && cacheable {
		v.cache.Set(hash, payload)
	}
	return payload
}

func (v *Validator) callFunction(ctx context.Context, body *Body, log *zap.Logger) (payload *Payload, cacheable bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Warn("User provided validator function panicked", zap.Any("panic", rec))
			payload, cacheable = nil, false
		}
	}()

	resp, err := v.fn(ctx, body)
	if err != nil {
		return &Payload{OK: false, Code: model.ErrCommunication, Message: err.Error()}, false
	}
	if resp == nil {
		return badResponsePayload(), false
	}
	return resp, true
}

func (v *Validator) post(ctx context.Context, body *Body, log *zap.Logger) (*Payload, bool) {
	raw, err := json.Marshal(body)
	if err != nil {
		return &Payload{OK: false, Code: model.ErrUnknown, Message: err.Error()}, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.target.URL, bytes.NewReader(raw))
	if err != nil {
		return &Payload{OK: false, Code: model.ErrCommunication, Message: err.Error()}, false
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range v.target.Headers {
		req.Header.Set(key, value)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		log.Debug("Validator request failed", zap.Error(err))
		return &Payload{OK: false, Code: model.ErrCommunication, Message: fmt.Sprintf("Error: %v", err)}, false
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Payload{OK: false, Code: model.ErrCommunication, Message: err.Error()}, false
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Debug("Validator returned an error status", zap.Int("status", resp.StatusCode))
		return &Payload{
			OK:      false,
			Message: fmt.Sprintf("Error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}, false
	}

	payload, valid := parsePayload(data)
	if !valid {
		log.Debug("Validator responded with invalid data", zap.ByteString("body", data))
		return payload, false
	}
	log.Debug("Validator success")
	return payload, true
}

// reconcile applies a validation outcome to the verified state: adapter
// notification first, then the verified receipt upsert, then the event.
// Failures are logged and swallowed so one receipt cannot abort the others.
func (v *Validator) reconcile(ctx context.Context, adapter Adapter, r *receipt.Receipt, payload *Payload) {
	defer func() {
		if rec := recover(); rec != nil {
			v.log.Error("Exception probably caused by an invalid response from the validator",
				zap.Any("panic", rec))
		}
	}()

	if err := adapter.HandleReceiptValidationResponse(ctx, r, payload); err != nil {
		v.log.Error("Adapter failed to handle validation response", zap.Error(err))
		return
	}

	if payload.OK {
		if payload.Data == nil {
			v.log.Error("Validator success payload carried no data")
			return
		}
		vr := v.addVerifiedReceipt(ctx, r, payload.Data)
		v.verifiedBus.OnEvent(vr.Platform, vr)
		return
	}

	metrics.ValidationFailures.Inc()
	v.unverifiedBus.OnEvent(r.Platform, UnverifiedReceipt{Receipt: r, Payload: payload})
}

// addVerifiedReceipt upserts the verified receipt for (platform, data.id):
// updated in place when one exists, created otherwise.
func (v *Validator) addVerifiedReceipt(ctx context.Context, r *receipt.Receipt, data *ResponseData) *VerifiedReceipt {
	v.verifiedMu.Lock()
	var vr *VerifiedReceipt
	for _, existing := range v.verifiedReceipts {
		if existing.Platform == r.Platform && existing.ID == data.ID {
			v.log.Debug("Updating existing verified receipt")
			existing.Set(r, data)
			vr = existing
			break
		}
	}
	if vr == nil {
		v.log.Debug("Registering a new verified receipt")
		vr = newVerifiedReceipt(r, data)
		v.verifiedReceipts = append(v.verifiedReceipts, vr)
	}
	v.verifiedMu.Unlock()

	metrics.VerifiedReceiptUpserts.Inc()
	v.persist(ctx, vr, data)
	return vr
}

func (v *Validator) persist(ctx context.Context, vr *VerifiedReceipt, data *ResponseData) {
	if v.store == nil {
		return
	}

	raw, err := json.Marshal(data)
	if err != nil {
		v.log.Warn("Failed to encode verified receipt", zap.Error(err))
		return
	}
	err = v.store.Put(ctx, &verified.Record{
		Platform:  vr.Platform,
		ProductID: vr.ID,
		Data:      raw,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		v.log.Warn("Failed to persist verified receipt", zap.Error(err))
	}
}

// receiptQueue is the set of receipts waiting for validation, keyed by
// receipt identity.
type receiptQueue struct {
	mu    sync.Mutex
	items []*receipt.Receipt
}

func (q *receiptQueue) add(r *receipt.Receipt) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, existing := range q.items {
		if existing.Key() == r.Key() {
			return
		}
	}
	q.items = append(q.items, r)
}

// snapshot returns the queued receipts and clears the queue atomically, so
// receipts added while a run is in flight land in the next batch.
func (q *receiptQueue) snapshot() []*receipt.Receipt {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}
