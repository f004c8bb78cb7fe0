package receipt

import (
	"strings"
	"time"

	"github.com/code-payments/purchase-engine/model"
)

// TransactionState tracks one purchase attempt.
//
// StateUnknown is reported by backends for states this system cannot
// interpret. It is preserved as-is: there are no transitions into or out of
// it that the engine would ever drive.
type TransactionState string

const (
	TransactionInitiated TransactionState = "initiated"
	TransactionPending   TransactionState = "pending"
	TransactionApproved  TransactionState = "approved"
	TransactionFinished  TransactionState = "finished"
	TransactionUnknown   TransactionState = "unknown_state"
)

// RenewalIntent reports whether a subscription will renew at the end of the
// current period.
type RenewalIntent string

const (
	RenewalIntentRenew RenewalIntent = "Renew"
	RenewalIntentLapse RenewalIntent = "Lapse"
)

// virtualPrefix marks transaction identifiers synthesized locally before the
// backend assigns a real one.
const virtualPrefix = "virtual."

// VirtualTransactionID derives the placeholder transaction identifier used
// for a product while its real identifier is still unknown.
func VirtualTransactionID(productID string) string {
	return virtualPrefix + productID
}

// IsVirtualTransactionID reports whether an identifier follows the virtual
// id convention.
func IsVirtualTransactionID(id string) bool {
	return strings.HasPrefix(id, virtualPrefix)
}

// ProductRef names a product (and optionally the offer) a transaction paid
// for.
type ProductRef struct {
	ID      string `json:"id"`
	OfferID string `json:"offerId,omitempty"`
}

// Transaction is one purchase attempt or record within a Receipt. Its state
// is only ever assigned from what a backend or the validation server
// reported; the engine never invents a transition.
type Transaction struct {
	// TransactionID is assigned by the backend, or synthesized with
	// VirtualTransactionID until the backend does.
	TransactionID string

	// PurchaseID is the backend purchase token, when distinct from the
	// transaction id.
	PurchaseID string

	Platform model.Platform
	State    TransactionState
	Products []ProductRef

	PurchaseDate    *time.Time
	ExpirationDate  *time.Time
	LastRenewalDate *time.Time
	RenewalIntent   RenewalIntent

	IsAcknowledged bool
	IsConsumed     bool
	IsPending      bool

	AmountMicros int64
	Currency     string

	parent *Receipt
}

// ParentReceipt returns the receipt this transaction belongs to. Every
// transaction belongs to exactly one receipt.
func (t *Transaction) ParentReceipt() *Receipt {
	return t.parent
}

// IsVirtual reports whether this transaction is a local placeholder awaiting
// a backend-assigned identifier.
func (t *Transaction) IsVirtual() bool {
	return IsVirtualTransactionID(t.TransactionID)
}

// HasProduct reports whether the transaction includes the given product.
func (t *Transaction) HasProduct(productID string) bool {
	for _, p := range t.Products {
		if p.ID == productID {
			return true
		}
	}
	return false
}
