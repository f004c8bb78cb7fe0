package receipt

import (
	"sync"

	"github.com/code-payments/purchase-engine/model"
)

// Receipt owns the ordered sequence of transactions from one backend
// purchase session. Insertion order is significant: the latest transaction is
// the last element. A receipt is created when the first native event for a
// session arrives and lives for the rest of the application session; only
// its transaction list is pruned.
type Receipt struct {
	Platform model.Platform

	// PurchaseToken is the backend-specific key identifying the session,
	// e.g. a Play purchase token.
	PurchaseToken string

	// OrderID is the backend order identifier, when known.
	OrderID string

	mu           sync.Mutex
	transactions []*Transaction
}

func New(platform model.Platform, purchaseToken string) *Receipt {
	return &Receipt{
		Platform:      platform,
		PurchaseToken: purchaseToken,
	}
}

// Key is the receipt identity: platform plus backend key.
func (r *Receipt) Key() string {
	return string(r.Platform) + ":" + r.PurchaseToken
}

// Transactions returns the transactions in insertion order.
func (r *Receipt) Transactions() []*Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Transaction, len(r.transactions))
	copy(out, r.transactions)
	return out
}

// AddTransaction appends a transaction and claims ownership of it. Adding a
// transaction whose id is already present is a no-op returning the existing
// one.
func (r *Receipt) AddTransaction(t *Transaction) *Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.transactions {
		if existing.TransactionID == t.TransactionID {
			return existing
		}
	}
	t.parent = r
	t.Platform = r.Platform
	r.transactions = append(r.transactions, t)
	return t
}

// HasTransaction is an identity membership test.
func (r *Receipt) HasTransaction(t *Transaction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.transactions {
		if existing == t {
			return true
		}
	}
	return false
}

// FindTransaction returns the transaction with the given id, if present.
func (r *Receipt) FindTransaction(transactionID string) (*Transaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.transactions {
		if t.TransactionID == transactionID {
			return t, true
		}
	}
	return nil, false
}

// LastTransaction returns the latest transaction, i.e. the last element of
// the ordered list.
func (r *Receipt) LastTransaction() (*Transaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.transactions) == 0 {
		return nil, false
	}
	return r.transactions[len(r.transactions)-1], true
}

// UpsertVirtualTransaction creates or updates the placeholder transaction
// for a product that has no backend-assigned identifier yet. The state must
// be one of the locally promotable states (initiated or pending).
func (r *Receipt) UpsertVirtualTransaction(productID string, state TransactionState) *Transaction {
	id := VirtualTransactionID(productID)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.transactions {
		if t.TransactionID == id {
			t.State = state
			return t
		}
	}
	t := &Transaction{
		TransactionID: id,
		Platform:      r.Platform,
		State:         state,
		Products:      []ProductRef{{ID: productID}},
		parent:        r,
	}
	r.transactions = append(r.transactions, t)
	return t
}

// RemoveVirtualTransaction prunes the placeholder for a product once the
// real transaction arrived. Virtual transactions are removed, never merged.
func (r *Receipt) RemoveVirtualTransaction(productID string) {
	r.removeTransaction(VirtualTransactionID(productID))
}

// RemoveTransaction prunes the transaction with the given id, if present.
func (r *Receipt) RemoveTransaction(transactionID string) {
	r.removeTransaction(transactionID)
}

func (r *Receipt) removeTransaction(transactionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.transactions[:0]
	for _, t := range r.transactions {
		if t.TransactionID != transactionID {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(r.transactions); i++ {
		r.transactions[i] = nil
	}
	r.transactions = kept
}
