package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus represents the status of a reservation
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusExpired   ReservationStatus = "expired"
)

// Reservation is a provisional hold against a tier, created before payment
type Reservation struct {
	ID         string            `json:"id"`
	TierID     string            `json:"tier_id"`
	EventID    string            `json:"event_id"`
	Quantity   int               `json:"quantity"`
	Status     ReservationStatus `json:"status"`
	DiscountID *string           `json:"discount_id,omitempty"`
	Addons     []AddonSelection  `json:"addons,omitempty"`
	UserID     *string           `json:"user_id,omitempty"`
	GuestEmail string            `json:"guest_email,omitempty"`
	GuestName  string            `json:"guest_name,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// IsSettleable reports whether a paid reservation may still be confirmed.
// Expired holds are settled too: the customer has already paid.
func (r *Reservation) IsSettleable() bool {
	return r.Status == ReservationStatusPending || r.Status == ReservationStatusExpired
}

// IsConfirmed returns true once the reservation has been settled
func (r *Reservation) IsConfirmed() bool {
	return r.Status == ReservationStatusConfirmed
}

// DiscountType is how a discount value is interpreted
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Discount is a code attached to an event
type Discount struct {
	ID        string          `json:"id"`
	EventID   string          `json:"event_id"`
	Code      string          `json:"code"`
	Type      DiscountType    `json:"type"`
	Value     decimal.Decimal `json:"value"`
	UsedCount int             `json:"used_count"`
}
