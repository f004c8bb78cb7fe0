package product

import (
	"sync"

	"github.com/code-payments/purchase-engine/event"
	"github.com/code-payments/purchase-engine/model"
)

// State is a product lifecycle state. State values double as event keys on
// the product bus, so a listener can subscribe to "VALID" or "OWNED"
// directly.
type State string

const (
	StateRegistered State = "REGISTERED"
	StateInvalid    State = "INVALID"
	StateValid      State = "VALID"
	StateRequested  State = "REQUESTED"
	StateInitiated  State = "INITIATED"
	StateApproved   State = "APPROVED"
	StateFinished   State = "FINISHED"
	StateOwned      State = "OWNED"
)

// Type categorizes how a product is purchased and renewed.
type Type string

const (
	TypeConsumable       Type = "consumable"
	TypeNonConsumable    Type = "non consumable"
	TypePaidSubscription Type = "paid subscription"
	TypeFreeSubscription Type = "free subscription"
)

// Bus carries product state-change notifications. The event key is the new
// state.
type Bus = event.Bus[State, *Product]

// Product is a sellable item on one platform. The derived Loaded, Valid and
// CanPurchase flags are pure functions of the state and are only ever updated
// through SetState.
type Product struct {
	// ID is the product identifier on the platform.
	ID string

	// Alias is an alternative identifier usable for lookups. Defaults to ID.
	Alias string

	Type     Type
	Platform model.Platform

	Title       string
	Description string

	LocalizedTitle       string
	LocalizedDescription string
	LocalizedPrice       string

	PriceMicros int64
	Currency    string

	Offers []*Offer

	mu          sync.Mutex
	state       State
	loaded      bool
	valid       *bool
	canPurchase bool

	bus *Bus
}

// New declares a product. It starts in StateRegistered, with an undefined
// validity until the platform reports on it.
func New(id string, typ Type, platform model.Platform, bus *Bus) *Product {
	p := &Product{
		ID:       id,
		Alias:    id,
		Type:     typ,
		Platform: platform,
		bus:      bus,
	}
	p.SetState(StateRegistered)
	return p
}

func (p *Product) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Loaded reports whether the platform answered about this product, one way
// or the other.
func (p *Product) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// Valid returns the product validity. ok is false while validity is still
// undefined, i.e. before the platform answered (empty or REGISTERED state).
func (p *Product) Valid() (valid, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.valid == nil {
		return false, false
	}
	return *p.valid, true
}

func (p *Product) CanPurchase() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canPurchase
}

// SetState transitions the product and atomically recomputes the derived
// flags. A non-empty new state is published on the bus under its own name;
// the empty state clears the flags silently.
func (p *Product) SetState(state State) {
	p.mu.Lock()
	p.state = state
	p.canPurchase = state == StateValid
	p.loaded = state != "" && state != StateRegistered
	if state == "" || state == StateRegistered {
		p.valid = nil
	} else {
		valid := state != StateInvalid
		p.valid = &valid
	}
	bus := p.bus
	p.mu.Unlock()

	if state != "" && bus != nil {
		bus.OnEvent(state, p)
	}
}

// Set assigns one named field. Assigning "state" routes through SetState so
// the derived flags stay consistent.
func (p *Product) Set(field string, value interface{}) {
	if field == "state" {
		if s, ok := value.(State); ok {
			p.SetState(s)
		} else if s, ok := value.(string); ok {
			p.SetState(State(s))
		}
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch field {
	case "title":
		p.Title, _ = value.(string)
	case "description":
		p.Description, _ = value.(string)
	case "localizedTitle":
		p.LocalizedTitle, _ = value.(string)
	case "localizedDescription":
		p.LocalizedDescription, _ = value.(string)
	case "localizedPrice":
		p.LocalizedPrice, _ = value.(string)
	case "currency":
		p.Currency, _ = value.(string)
	case "priceMicros":
		if v, ok := value.(int64); ok {
			p.PriceMicros = v
		}
	case "alias":
		p.Alias, _ = value.(string)
	}
}

// SetFields assigns several fields at once. The state, if present, is
// assigned last so listeners observe the other fields already updated.
func (p *Product) SetFields(fields map[string]interface{}) {
	var state interface{}
	for k, v := range fields {
		if k == "state" {
			state = v
			continue
		}
		p.Set(k, v)
	}
	if state != nil {
		p.Set("state", state)
	}
}
