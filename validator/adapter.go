package validator

import (
	"context"

	"github.com/code-payments/purchase-engine/model"
	"github.com/code-payments/purchase-engine/product"
	"github.com/code-payments/purchase-engine/receipt"
)

// Adapter is the platform binding the validator consults for each receipt.
// The validator only ever holds this interface; concrete backends are
// registered at runtime.
type Adapter interface {
	// Platform identifies the backend this adapter bridges to.
	Platform() model.Platform

	// ReceiptValidationBody returns the platform-specific payload to
	// validate for a receipt, or nil to skip validation of that receipt.
	ReceiptValidationBody(ctx context.Context, r *receipt.Receipt) (*Body, error)

	// HandleReceiptValidationResponse lets the adapter fold
	// server-confirmed data (e.g. an authoritative purchase date) back into
	// its own transactions. It is called before any verified or unverified
	// event fires.
	HandleReceiptValidationResponse(ctx context.Context, r *receipt.Receipt, payload *Payload) error

	// Products lists the products this adapter manages.
	Products() []*product.Product

	// Receipts lists the receipts this adapter produced this session.
	Receipts() []*receipt.Receipt
}

// LocalValidator is implemented by backends that verify receipts without a
// server, such as the local test platform. When an adapter implements it,
// network validation is bypassed entirely for its receipts.
type LocalValidator interface {
	ValidateLocally(ctx context.Context, r *receipt.Receipt) *Payload
}
