package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/shopspring/decimal"
)

var errOutboxNotFound = errors.New("outbox message not found")

// MemoryStore implements the catalog, settlement, ledger, attempt and outbox
// repositories in memory. A settlement unit holds the store lock for its
// whole duration and applies its writes only on success, which gives the
// same atomicity as a database transaction.
// This is useful for testing and development.
type MemoryStore struct {
	mu sync.RWMutex

	events       map[string]*domain.Event
	tiers        map[string]*domain.TicketTier
	discounts    map[string]*domain.Discount
	addons       map[string]*domain.Addon
	reservations map[string]*domain.Reservation
	tickets      []*domain.Ticket
	transactions []*domain.Transaction
	attempts     []*domain.SettlementAttempt
	outbox       []*domain.OutboxMessage

	// writes counts committed settlement writes
	writes int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:       make(map[string]*domain.Event),
		tiers:        make(map[string]*domain.TicketTier),
		discounts:    make(map[string]*domain.Discount),
		addons:       make(map[string]*domain.Addon),
		reservations: make(map[string]*domain.Reservation),
	}
}

// AddEvent seeds an event
func (s *MemoryStore) AddEvent(e *domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *e
	s.events[e.ID] = &c
}

// AddTier seeds a ticket tier
func (s *MemoryStore) AddTier(t *domain.TicketTier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *t
	s.tiers[t.ID] = &c
}

// AddDiscount seeds a discount
func (s *MemoryStore) AddDiscount(d *domain.Discount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *d
	s.discounts[d.ID] = &c
}

// AddAddon seeds an add-on
func (s *MemoryStore) AddAddon(a *domain.Addon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *a
	s.addons[a.ID] = &c
}

// AddReservation seeds a reservation
func (s *MemoryStore) AddReservation(r *domain.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations[r.ID] = cloneReservation(r)
}

// Writes returns the number of committed settlement writes
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Tier returns a snapshot of a tier, or nil
func (s *MemoryStore) Tier(id string) *domain.TicketTier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tiers[id]; ok {
		c := *t
		return &c
	}
	return nil
}

// Reservation returns a snapshot of a reservation, or nil
func (s *MemoryStore) Reservation(id string) *domain.Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.reservations[id]; ok {
		return cloneReservation(r)
	}
	return nil
}

// Discount returns a snapshot of a discount, or nil
func (s *MemoryStore) Discount(id string) *domain.Discount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.discounts[id]; ok {
		c := *d
		return &c
	}
	return nil
}

// Transactions returns a snapshot of the ledger
func (s *MemoryStore) Transactions() []*domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		c := *t
		out = append(out, &c)
	}
	return out
}

// OutboxMessages returns a snapshot of the outbox
func (s *MemoryStore) OutboxMessages() []*domain.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.OutboxMessage, 0, len(s.outbox))
	for _, m := range s.outbox {
		c := *m
		out = append(out, &c)
	}
	return out
}

// GetEvent retrieves an event by ID
func (s *MemoryStore) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	c := *e
	return &c, nil
}

// GetTier retrieves a ticket tier by ID
func (s *MemoryStore) GetTier(ctx context.Context, id string) (*domain.TicketTier, error) {
	if t := s.Tier(id); t != nil {
		return t, nil
	}
	return nil, domain.ErrTierNotFound
}

// GetDiscountByCode retrieves an event's discount by code
func (s *MemoryStore) GetDiscountByCode(ctx context.Context, eventID, code string) (*domain.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.discounts {
		if d.EventID == eventID && strings.EqualFold(d.Code, code) {
			c := *d
			return &c, nil
		}
	}
	return nil, domain.ErrDiscountNotFound
}

// GetAddons retrieves the event's add-ons with the given IDs
func (s *MemoryStore) GetAddons(ctx context.Context, eventID string, ids []string) (map[string]*domain.Addon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]*domain.Addon)
	for _, id := range ids {
		if a, ok := s.addons[id]; ok && a.EventID == eventID {
			c := *a
			result[id] = &c
		}
	}
	return result, nil
}

// GetReservationBundle reads a reservation bundle without locking
func (s *MemoryStore) GetReservationBundle(ctx context.Context, reservationID string) (*ReservationBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundle(reservationID)
}

func (s *MemoryStore) bundle(reservationID string) (*ReservationBundle, error) {
	r, ok := s.reservations[reservationID]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	t, ok := s.tiers[r.TierID]
	if !ok {
		return nil, domain.ErrTierNotFound
	}
	e, ok := s.events[r.EventID]
	if !ok {
		return nil, domain.ErrEventNotFound
	}

	tier := *t
	event := *e
	b := &ReservationBundle{Reservation: cloneReservation(r), Tier: &tier, Event: &event}
	if r.DiscountID != nil {
		if d, ok := s.discounts[*r.DiscountID]; ok {
			c := *d
			b.Discount = &c
		}
	}
	return b, nil
}

// FindTicketsByOrderReference returns tickets issued under a reference
func (s *MemoryStore) FindTicketsByOrderReference(ctx context.Context, reference string) ([]*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterTickets(func(t *domain.Ticket) bool { return t.OrderReference == reference }), nil
}

// GetTicketsByReservation returns tickets issued for a reservation
func (s *MemoryStore) GetTicketsByReservation(ctx context.Context, reservationID string) ([]*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterTickets(func(t *domain.Ticket) bool { return t.ReservationID == reservationID }), nil
}

func (s *MemoryStore) filterTickets(match func(*domain.Ticket) bool) []*domain.Ticket {
	var out []*domain.Ticket
	for _, t := range s.tickets {
		if match(t) {
			c := *t
			out = append(out, &c)
		}
	}
	return out
}

// HasSuccessTransaction reports whether a success ledger row exists for a reference
func (s *MemoryStore) HasSuccessTransaction(ctx context.Context, reference string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.transactions {
		if t.Reference == reference && t.Status == domain.TransactionStatusSuccess {
			return true, nil
		}
	}
	return false, nil
}

// WithinTx runs fn holding the store lock and applies its writes only when fn succeeds
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx SettlementTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, soldDelta: make(map[string]int), confirmed: make(map[string]bool)}
	if err := fn(tx); err != nil {
		return err
	}

	for _, op := range tx.ops {
		op()
		s.writes++
	}
	return nil
}

// GetRevenue returns one summary per currency for an event
func (s *MemoryStore) GetRevenue(ctx context.Context, eventID string) ([]*domain.RevenueSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.events[eventID]; !ok {
		return nil, domain.ErrEventNotFound
	}

	byCurrency := make(map[string]*domain.RevenueSummary)
	for _, t := range s.transactions {
		if t.EventID != eventID || t.Status != domain.TransactionStatusSuccess {
			continue
		}
		sum, ok := byCurrency[t.Currency]
		if !ok {
			sum = &domain.RevenueSummary{EventID: eventID, Currency: t.Currency}
			byCurrency[t.Currency] = sum
		}
		sum.Transactions++
		sum.GrossAmount = sum.GrossAmount.Add(t.Amount)
		sum.PlatformFees = sum.PlatformFees.Add(t.PlatformFee)
		sum.ProcessorFees = sum.ProcessorFees.Add(t.ProcessorFee)
		sum.OrganizerNet = sum.OrganizerNet.Add(t.OrganizerNet)
	}

	for _, tk := range s.tickets {
		if tk.EventID != eventID || tk.Status == domain.TicketStatusCancelled {
			continue
		}
		if tier, ok := s.tiers[tk.TierID]; ok {
			if sum, ok := byCurrency[tier.Currency]; ok {
				sum.TicketsSold++
			}
		}
	}

	out := make([]*domain.RevenueSummary, 0, len(byCurrency))
	for _, sum := range byCurrency {
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

// RecordAttempt appends an audit row
func (s *MemoryStore) RecordAttempt(ctx context.Context, a *domain.SettlementAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *a
	s.attempts = append(s.attempts, &c)
	return nil
}

// ListAttempts returns the attempts for a reference, oldest first
func (s *MemoryStore) ListAttempts(ctx context.Context, reference string) ([]*domain.SettlementAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.SettlementAttempt
	for _, a := range s.attempts {
		if a.Reference == reference {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

// Create creates a new outbox message
func (s *MemoryStore) Create(ctx context.Context, msg *domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *msg
	s.outbox = append(s.outbox, &c)
	return nil
}

// GetPendingMessages returns pending messages, oldest first
func (s *MemoryStore) GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	return s.outboxWhere(limit, func(m *domain.OutboxMessage) bool { return m.Status == domain.OutboxStatusPending }), nil
}

// GetFailedMessages returns failed messages that can be retried
func (s *MemoryStore) GetFailedMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	return s.outboxWhere(limit, func(m *domain.OutboxMessage) bool { return m.CanRetry() }), nil
}

func (s *MemoryStore) outboxWhere(limit int, match func(*domain.OutboxMessage) bool) []*domain.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.OutboxMessage
	for _, m := range s.outbox {
		if len(out) >= limit {
			break
		}
		if match(m) {
			c := *m
			out = append(out, &c)
		}
	}
	return out
}

// MarkAsPublished marks a message as successfully published
func (s *MemoryStore) MarkAsPublished(ctx context.Context, id string) error {
	return s.updateOutbox(id, func(m *domain.OutboxMessage) {
		now := time.Now()
		m.Status = domain.OutboxStatusPublished
		m.PublishedAt = &now
	})
}

// MarkAsFailed marks a message as failed
func (s *MemoryStore) MarkAsFailed(ctx context.Context, id string, errMsg string) error {
	return s.updateOutbox(id, func(m *domain.OutboxMessage) {
		m.Status = domain.OutboxStatusFailed
		m.LastError = errMsg
		m.RetryCount++
	})
}

func (s *MemoryStore) updateOutbox(id string, fn func(*domain.OutboxMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.outbox {
		if m.ID == id {
			fn(m)
			return nil
		}
	}
	return errOutboxNotFound
}

// DeletePublished deletes published messages older than the given days
func (s *MemoryStore) DeletePublished(ctx context.Context, olderThanDays int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	kept := s.outbox[:0]
	var deleted int64
	for _, m := range s.outbox {
		if m.Status == domain.OutboxStatusPublished && m.PublishedAt != nil && m.PublishedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	s.outbox = kept
	return deleted, nil
}

// memTx stages writes against a locked MemoryStore
type memTx struct {
	store     *MemoryStore
	ops       []func()
	soldDelta map[string]int
	confirmed map[string]bool
	txns      []*domain.Transaction
}

func (t *memTx) LockReservation(ctx context.Context, reservationID string) (*ReservationBundle, error) {
	b, err := t.store.bundle(reservationID)
	if err != nil {
		return nil, err
	}
	b.Tier.QuantitySold += t.soldDelta[b.Tier.ID]
	if t.confirmed[reservationID] {
		b.Reservation.Status = domain.ReservationStatusConfirmed
	}
	return b, nil
}

func (t *memTx) IncrementSold(ctx context.Context, tierID string, qty int) (bool, error) {
	tier, ok := t.store.tiers[tierID]
	if !ok {
		return false, nil
	}
	if tier.QuantitySold+t.soldDelta[tierID]+qty > tier.TotalQuantity {
		return false, nil
	}
	t.soldDelta[tierID] += qty
	t.ops = append(t.ops, func() { tier.QuantitySold += qty })
	return true, nil
}

func (t *memTx) InsertTickets(ctx context.Context, tickets []*domain.Ticket) error {
	copies := make([]*domain.Ticket, 0, len(tickets))
	for _, tk := range tickets {
		c := *tk
		copies = append(copies, &c)
	}
	t.ops = append(t.ops, func() { t.store.tickets = append(t.store.tickets, copies...) })
	return nil
}

func (t *memTx) IncrementDiscountUsage(ctx context.Context, discountID string) error {
	d, ok := t.store.discounts[discountID]
	if !ok {
		return domain.ErrDiscountNotFound
	}
	t.ops = append(t.ops, func() { d.UsedCount++ })
	return nil
}

func (t *memTx) ConfirmReservation(ctx context.Context, reservationID string) (bool, error) {
	r, ok := t.store.reservations[reservationID]
	if !ok || t.confirmed[reservationID] {
		return false, nil
	}
	if r.Status != domain.ReservationStatusPending && r.Status != domain.ReservationStatusExpired {
		return false, nil
	}
	t.confirmed[reservationID] = true
	t.ops = append(t.ops, func() {
		r.Status = domain.ReservationStatusConfirmed
		r.UpdatedAt = time.Now().UTC()
	})
	return true, nil
}

func (t *memTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	for _, existing := range t.store.transactions {
		if existing.ReservationID == txn.ReservationID {
			return domain.ErrAlreadySettled
		}
	}
	for _, staged := range t.txns {
		if staged.ReservationID == txn.ReservationID {
			return domain.ErrAlreadySettled
		}
	}
	c := *txn
	t.txns = append(t.txns, &c)
	t.ops = append(t.ops, func() { t.store.transactions = append(t.store.transactions, &c) })
	return nil
}

func (t *memTx) InsertOutbox(ctx context.Context, msg *domain.OutboxMessage) error {
	c := *msg
	t.ops = append(t.ops, func() { t.store.outbox = append(t.store.outbox, &c) })
	return nil
}

func cloneReservation(r *domain.Reservation) *domain.Reservation {
	c := *r
	if r.Addons != nil {
		c.Addons = append([]domain.AddonSelection(nil), r.Addons...)
	}
	return &c
}

// sumDecimal adds up amounts; used by the memory payout repository
func sumDecimal(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Ensure MemoryStore implements the repositories it stands in for
var (
	_ CatalogRepository    = (*MemoryStore)(nil)
	_ SettlementRepository = (*MemoryStore)(nil)
	_ LedgerRepository     = (*MemoryStore)(nil)
	_ AttemptRepository    = (*MemoryStore)(nil)
	_ OutboxRepository     = (*MemoryStore)(nil)
	_ SettlementTx         = (*memTx)(nil)
)
