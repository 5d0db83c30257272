// Package repository holds the persistence layer. Every interface has a
// PostgreSQL implementation and an in-memory one for development and tests.
package repository

import (
	"context"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/shopspring/decimal"
)

// ReservationBundle is the reservation joined with everything settlement
// needs to price it. It is the only shape the settlement engine sees.
type ReservationBundle struct {
	Reservation *domain.Reservation
	Tier        *domain.TicketTier
	Event       *domain.Event
	// Discount is nil when the reservation has none
	Discount *domain.Discount
}

// CatalogRepository reads events, tiers, discounts and add-ons
type CatalogRepository interface {
	// GetEvent retrieves an event by ID
	GetEvent(ctx context.Context, id string) (*domain.Event, error)

	// GetTier retrieves a ticket tier by ID
	GetTier(ctx context.Context, id string) (*domain.TicketTier, error)

	// GetDiscountByCode retrieves an event's discount by code
	GetDiscountByCode(ctx context.Context, eventID, code string) (*domain.Discount, error)

	// GetAddons retrieves the event's add-ons with the given IDs, keyed by ID.
	// Unknown IDs are omitted.
	GetAddons(ctx context.Context, eventID string, ids []string) (map[string]*domain.Addon, error)

	// GetReservationBundle reads a reservation with its tier, event and
	// discount without locking
	GetReservationBundle(ctx context.Context, reservationID string) (*ReservationBundle, error)
}

// SettlementTx is the unit of work of one reservation's settlement. All
// writes commit together or not at all.
type SettlementTx interface {
	// LockReservation reads the bundle and locks the reservation row until
	// the unit ends
	LockReservation(ctx context.Context, reservationID string) (*ReservationBundle, error)

	// IncrementSold adds qty to the tier's sold count only if capacity
	// allows. It returns false when it would oversell.
	IncrementSold(ctx context.Context, tierID string, qty int) (bool, error)

	// InsertTickets stores issued tickets
	InsertTickets(ctx context.Context, tickets []*domain.Ticket) error

	// IncrementDiscountUsage bumps used_count by one
	IncrementDiscountUsage(ctx context.Context, discountID string) error

	// ConfirmReservation moves a pending or expired reservation to
	// confirmed. It returns false when the reservation was not in either state.
	ConfirmReservation(ctx context.Context, reservationID string) (bool, error)

	// InsertTransaction records the ledger entry
	InsertTransaction(ctx context.Context, txn *domain.Transaction) error

	// InsertOutbox enqueues a message in the same unit
	InsertOutbox(ctx context.Context, msg *domain.OutboxMessage) error
}

// SettlementRepository provides the settlement engine's reads and its
// transactional unit
type SettlementRepository interface {
	// FindTicketsByOrderReference returns tickets issued under a reference
	FindTicketsByOrderReference(ctx context.Context, reference string) ([]*domain.Ticket, error)

	// HasSuccessTransaction reports whether a success ledger row exists for a reference
	HasSuccessTransaction(ctx context.Context, reference string) (bool, error)

	// GetTicketsByReservation returns tickets issued for a reservation
	GetTicketsByReservation(ctx context.Context, reservationID string) ([]*domain.Ticket, error)

	// WithinTx runs fn in one database transaction. fn's error rolls it back.
	WithinTx(ctx context.Context, fn func(tx SettlementTx) error) error
}

// LedgerRepository aggregates settled transactions
type LedgerRepository interface {
	// GetRevenue returns one summary per currency for an event
	GetRevenue(ctx context.Context, eventID string) ([]*domain.RevenueSummary, error)
}

// AttemptRepository stores the settlement audit log
type AttemptRepository interface {
	// RecordAttempt appends an audit row
	RecordAttempt(ctx context.Context, attempt *domain.SettlementAttempt) error

	// ListAttempts returns the attempts for a reference, oldest first
	ListAttempts(ctx context.Context, reference string) ([]*domain.SettlementAttempt, error)
}

// PayoutRepository defines the interface for payout data access
type PayoutRepository interface {
	// Create creates a payout. ErrPayoutInProgress when the event already
	// has a pending or processing payout.
	Create(ctx context.Context, payout *domain.Payout) error

	// GetByID retrieves a payout by its ID
	GetByID(ctx context.Context, id string) (*domain.Payout, error)

	// ListByEvent returns an event's payouts, newest first
	ListByEvent(ctx context.Context, eventID string) ([]*domain.Payout, error)

	// HasActive reports whether the event has a pending or processing payout
	HasActive(ctx context.Context, eventID string) (bool, error)

	// UpdateStatus persists payout's new status only if the stored status
	// is still expected. ErrInvalidPayoutTransition otherwise.
	UpdateStatus(ctx context.Context, payout *domain.Payout, expected domain.PayoutStatus) error

	// SumCommitted sums pending, processing and paid payouts of an event in a currency
	SumCommitted(ctx context.Context, eventID, currency string) (decimal.Decimal, error)
}

// FeeSettingsRepository stores the global fee settings
type FeeSettingsRepository interface {
	// Get returns the current settings
	Get(ctx context.Context) (*domain.FeeSettings, error)

	// Update replaces the settings
	Update(ctx context.Context, settings *domain.FeeSettings) error
}

// RoleRepository is the authorization table
type RoleRepository interface {
	// HasRole reports whether the user holds role
	HasRole(ctx context.Context, userID string, role domain.Role) (bool, error)

	// Grant gives a role to a user; granting twice is a no-op
	Grant(ctx context.Context, userID string, role domain.Role) error
}

// OutboxRepository defines the interface for outbox data access
type OutboxRepository interface {
	// Create creates a new outbox message
	Create(ctx context.Context, msg *domain.OutboxMessage) error

	// GetPendingMessages claims pending messages to be published
	GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)

	// GetFailedMessages claims failed messages that can be retried
	GetFailedMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)

	// MarkAsPublished marks a message as successfully published
	MarkAsPublished(ctx context.Context, id string) error

	// MarkAsFailed marks a message as failed
	MarkAsFailed(ctx context.Context, id string, err string) error

	// DeletePublished deletes published messages older than the given days
	DeletePublished(ctx context.Context, olderThanDays int) (int64, error)
}
