package domain

import (
	"github.com/shopspring/decimal"
)

// FeeBearer decides who absorbs platform and processor fees
type FeeBearer string

const (
	// FeeBearerCustomer adds fees on top of the ticket price
	FeeBearerCustomer FeeBearer = "customer"
	// FeeBearerOrganizer deducts fees from the ticket price
	FeeBearerOrganizer FeeBearer = "organizer"
)

// IsValid checks if the fee bearer is known
func (b FeeBearer) IsValid() bool {
	return b == FeeBearerCustomer || b == FeeBearerOrganizer
}

// Event is a sellable occasion owned by an organizer
type Event struct {
	ID          string    `json:"id"`
	OrganizerID string    `json:"organizer_id"`
	Title       string    `json:"title"`
	FeeBearer   FeeBearer `json:"fee_bearer"`
	// PlatformFeePercent overrides the global platform fee when set
	PlatformFeePercent *decimal.Decimal `json:"platform_fee_percent,omitempty"`
}

// TicketTier is a priced inventory bucket under an event
type TicketTier struct {
	ID            string          `json:"id"`
	EventID       string          `json:"event_id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	TotalQuantity int             `json:"total_quantity"`
	QuantitySold  int             `json:"quantity_sold"`
}

// Available returns the remaining capacity
func (t *TicketTier) Available() int {
	if t.QuantitySold >= t.TotalQuantity {
		return 0
	}
	return t.TotalQuantity - t.QuantitySold
}

// CanSell reports whether n more units fit within capacity
func (t *TicketTier) CanSell(n int) bool {
	return n > 0 && t.QuantitySold+n <= t.TotalQuantity
}

// Addon is an optional extra sold alongside tickets (parking, merch)
type Addon struct {
	ID      string          `json:"id"`
	EventID string          `json:"event_id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
}

// AddonSelection is a chosen add-on and its quantity
type AddonSelection struct {
	AddonID  string `json:"addon_id"`
	Quantity int    `json:"quantity"`
}
