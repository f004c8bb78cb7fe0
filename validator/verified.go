package validator

import (
	"time"

	"github.com/code-payments/purchase-engine/model"
	"github.com/code-payments/purchase-engine/receipt"
)

// VerifiedReceipt is the server-confirmed projection of one product across
// one or more receipts. It is created and updated exclusively by the
// validator from successful validation responses, keyed by (platform, id).
type VerifiedReceipt struct {
	ID       string
	Platform model.Platform

	LatestReceipt  bool
	Collection     []VerifiedPurchase
	ValidationDate time.Time

	data          *ResponseData
	sourceReceipt *receipt.Receipt
}

func newVerifiedReceipt(r *receipt.Receipt, data *ResponseData) *VerifiedReceipt {
	vr := &VerifiedReceipt{
		ID:       data.ID,
		Platform: r.Platform,
	}
	vr.Set(r, data)
	return vr
}

// Set refreshes the verified receipt from a validation response. Calling it
// twice with identical inputs leaves the receipt in the same state.
func (vr *VerifiedReceipt) Set(r *receipt.Receipt, data *ResponseData) {
	vr.sourceReceipt = r
	vr.data = data
	vr.LatestReceipt = data.LatestReceipt
	vr.Collection = append(vr.Collection[:0], data.Collection...)
	vr.ValidationDate = time.Now()
}

// SourceReceipt returns the local receipt this verification was derived
// from.
func (vr *VerifiedReceipt) SourceReceipt() *receipt.Receipt {
	return vr.sourceReceipt
}

// Data returns the raw response data of the last successful validation.
func (vr *VerifiedReceipt) Data() *ResponseData {
	return vr.data
}

// UnverifiedReceipt pairs a receipt with the error payload explaining why
// validation did not succeed.
type UnverifiedReceipt struct {
	Receipt *receipt.Receipt
	Payload *Payload
}
