package product

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/code-payments/purchase-engine/model"
)

// RecurrenceMode describes how a pricing phase repeats.
type RecurrenceMode string

const (
	NonRecurring      RecurrenceMode = "NON_RECURRING"
	FiniteRecurring   RecurrenceMode = "FINITE_RECURRING"
	InfiniteRecurring RecurrenceMode = "INFINITE_RECURRING"
)

// PaymentMode describes when a pricing phase is charged.
type PaymentMode string

const (
	PayAsYouGo PaymentMode = "PayAsYouGo"
	PayUpFront PaymentMode = "UpFront"
	FreeTrial  PaymentMode = "FreeTrial"
)

// PricingPhase is one billing period of an offer. A plain purchase has a
// single phase; a subscription with an introductory price has two, the intro
// phase first.
type PricingPhase struct {
	PriceMicros   int64          `json:"priceMicros"`
	Currency      string         `json:"currency,omitempty"`
	BillingPeriod string         `json:"billingPeriod,omitempty"`
	BillingCycles int            `json:"billingCycles,omitempty"`
	Recurrence    RecurrenceMode `json:"recurrenceMode,omitempty"`
	Payment       PaymentMode    `json:"paymentMode,omitempty"`
}

// Amount returns the phase price as a decimal in currency units.
func (p PricingPhase) Amount() decimal.Decimal {
	return decimal.New(p.PriceMicros, -6)
}

// FormattedPrice renders the phase price with its currency symbol, falling
// back to "<amount> <code>" when the currency code is not ISO 4217.
func (p PricingPhase) FormattedPrice() string {
	amount := p.Amount()
	unit, err := currency.ParseISO(p.Currency)
	if err != nil {
		return fmt.Sprintf("%s %s", amount.StringFixed(2), p.Currency)
	}
	printer := message.NewPrinter(language.English)
	return printer.Sprintf("%v", currency.Symbol(unit.Amount(amount.InexactFloat64())))
}

// Offer is a purchasable pricing option for a product.
type Offer struct {
	ID            string         `json:"id"`
	ProductID     string         `json:"productId"`
	Platform      model.Platform `json:"platform,omitempty"`
	PricingPhases []PricingPhase `json:"pricingPhases"`
}
