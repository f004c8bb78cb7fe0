package validator

import (
	"encoding/json"

	"github.com/code-payments/purchase-engine/model"
)

// Payload is the envelope returned by a receipt validation authority.
// Success carries Data; failure carries Code and Message. Anything a
// transport returns that does not fit this envelope is replaced with an
// ErrBadResponse payload before it reaches reconciliation.
type Payload struct {
	OK      bool            `json:"ok"`
	Code    model.ErrorCode `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    *ResponseData   `json:"data,omitempty"`
}

// ResponseData is the body of a successful validation response.
type ResponseData struct {
	// ID of the product the server confirmed.
	ID string `json:"id"`

	// LatestReceipt is true when the server decoded the most recent receipt
	// for this purchase.
	LatestReceipt bool `json:"latest_receipt"`

	// Transaction is the server's native view of the transaction, kept raw
	// since its shape is platform-specific.
	Transaction json.RawMessage `json:"transaction,omitempty"`

	// Collection lists every purchase the server confirmed for this receipt.
	Collection []VerifiedPurchase `json:"collection,omitempty"`
}

// VerifiedPurchase is one server-confirmed purchase. Dates are unix epoch
// milliseconds, matching the wire format.
type VerifiedPurchase struct {
	ID                      string `json:"id"`
	PurchaseDate            int64  `json:"purchaseDate,omitempty"`
	ExpiryDate              int64  `json:"expiryDate,omitempty"`
	LastRenewalDate         int64  `json:"lastRenewalDate,omitempty"`
	RenewalIntent           string `json:"renewalIntent,omitempty"`
	RenewalIntentChangeDate int64  `json:"renewalIntentChangeDate,omitempty"`
	IsExpired               bool   `json:"isExpired,omitempty"`
}

// parsePayload decodes a raw validator response, enforcing the envelope
// shape: an object carrying a boolean "ok". When the check fails, the second
// return is false and the payload is an ErrBadResponse error payload.
func parsePayload(raw []byte) (*Payload, bool) {
	var probe struct {
		OK      *bool           `json:"ok"`
		Code    model.ErrorCode `json:"code"`
		Message string          `json:"message"`
		Data    *ResponseData   `json:"data"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.OK == nil {
		return badResponsePayload(), false
	}
	return &Payload{
		OK:      *probe.OK,
		Code:    probe.Code,
		Message: probe.Message,
		Data:    probe.Data,
	}, true
}

func badResponsePayload() *Payload {
	return &Payload{
		OK:      false,
		Code:    model.ErrBadResponse,
		Message: "Validator responded with invalid data",
	}
}
