package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/code-payments/purchase-engine/model"
	"github.com/code-payments/purchase-engine/product"
)

// Body is the receipt validation request sent to the authority. Adapters
// build the platform-specific parts; the validator enriches it uniformly
// before dispatch.
type Body struct {
	// ID of the product or application the receipt covers.
	ID string `json:"id,omitempty"`

	// Type of the product ("application", product types otherwise).
	Type string `json:"type,omitempty"`

	Products []BodyProduct    `json:"products,omitempty"`
	Offers   []*product.Offer `json:"offers,omitempty"`

	// Transaction carries the platform-specific receipt material. Its JSON
	// rendering is the cache key for deduplicating validation calls.
	Transaction map[string]interface{} `json:"transaction"`

	AdditionalData *AdditionalData   `json:"additionalData,omitempty"`
	Device         *model.DeviceInfo `json:"device,omitempty"`

	// Legacy single-offer pricing mirror, kept for backward compatibility
	// with older validation servers.
	Currency         string `json:"currency,omitempty"`
	PriceMicros      int64  `json:"priceMicros,omitempty"`
	IntroPriceMicros int64  `json:"introPriceMicros,omitempty"`
}

// BodyProduct summarizes one product covered by the receipt.
type BodyProduct struct {
	ID   string       `json:"id"`
	Type product.Type `json:"type,omitempty"`
}

// AdditionalData carries application-level context for the validation
// server.
type AdditionalData struct {
	ApplicationUsername string `json:"applicationUsername,omitempty"`
}

// enrich applies the uniform request decoration after the adapter built the
// base body: application username (key omitted entirely when unknown),
// device metadata, and the legacy pricing mirror when the body declares
// exactly one offer.
func enrich(body *Body, applicationUsername string, device *model.DeviceInfo) {
	if applicationUsername != "" {
		if body.AdditionalData == nil {
			body.AdditionalData = &AdditionalData{}
		}
		body.AdditionalData.ApplicationUsername = applicationUsername
	}

	if device != nil {
		body.Device = device
	}

	if len(body.Offers) == 1 {
		phases := body.Offers[0].PricingPhases
		switch len(phases) {
		case 1:
			body.Currency = phases[0].Currency
			body.PriceMicros = phases[0].PriceMicros
		case 2:
			body.Currency = phases[1].Currency
			body.PriceMicros = phases[1].PriceMicros
			body.IntroPriceMicros = phases[0].PriceMicros
		}
	}
}

// transactionHash keys the response cache. Only the transaction sub-object
// participates, so a refreshed body with identical receipt material reuses
// the cached response.
func transactionHash(body *Body) (string, error) {
	raw, err := json.Marshal(body.Transaction)
	if err != nil {
		return "", err
	}
	hasher := sha256.New()
	hasher.Write(raw)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
