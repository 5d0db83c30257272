package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/shopspring/decimal"
)

// MemoryPayoutRepository implements PayoutRepository using in-memory storage
type MemoryPayoutRepository struct {
	payouts map[string]*domain.Payout
	mu      sync.RWMutex
}

// NewMemoryPayoutRepository creates a new in-memory payout repository
func NewMemoryPayoutRepository() *MemoryPayoutRepository {
	return &MemoryPayoutRepository{payouts: make(map[string]*domain.Payout)}
}

// Create creates a payout, enforcing one active payout per event
func (r *MemoryPayoutRepository) Create(ctx context.Context, payout *domain.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.payouts {
		if p.EventID == payout.EventID && p.Status.IsActive() {
			return domain.ErrPayoutInProgress
		}
	}

	p := *payout
	r.payouts[payout.ID] = &p
	return nil
}

// GetByID retrieves a payout by its ID
func (r *MemoryPayoutRepository) GetByID(ctx context.Context, id string) (*domain.Payout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payouts[id]
	if !ok {
		return nil, domain.ErrPayoutNotFound
	}
	c := *p
	return &c, nil
}

// ListByEvent returns an event's payouts, newest first
func (r *MemoryPayoutRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Payout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Payout
	for _, p := range r.payouts {
		if p.EventID == eventID {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// HasActive reports whether the event has a pending or processing payout
func (r *MemoryPayoutRepository) HasActive(ctx context.Context, eventID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.payouts {
		if p.EventID == eventID && p.Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

// UpdateStatus persists the payout's status if the stored one is still expected
func (r *MemoryPayoutRepository) UpdateStatus(ctx context.Context, payout *domain.Payout, expected domain.PayoutStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.payouts[payout.ID]
	if !ok {
		return domain.ErrPayoutNotFound
	}
	if stored.Status != expected {
		return domain.ErrInvalidPayoutTransition
	}

	p := *payout
	r.payouts[payout.ID] = &p
	return nil
}

// SumCommitted sums pending, processing and paid payouts of an event in a currency
func (r *MemoryPayoutRepository) SumCommitted(ctx context.Context, eventID, currency string) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var amounts []decimal.Decimal
	for _, p := range r.payouts {
		if p.EventID == eventID && p.Currency == currency && p.Status != domain.PayoutStatusFailed {
			amounts = append(amounts, p.Amount)
		}
	}
	return sumDecimal(amounts), nil
}

// MemoryFeeSettingsRepository implements FeeSettingsRepository in memory
type MemoryFeeSettingsRepository struct {
	settings domain.FeeSettings
	mu       sync.RWMutex
}

// NewMemoryFeeSettingsRepository creates a repository holding defaults
func NewMemoryFeeSettingsRepository(defaults domain.FeeSettings) *MemoryFeeSettingsRepository {
	return &MemoryFeeSettingsRepository{settings: defaults}
}

// Get returns the current settings
func (r *MemoryFeeSettingsRepository) Get(ctx context.Context) (*domain.FeeSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.settings
	return &s, nil
}

// Update replaces the settings
func (r *MemoryFeeSettingsRepository) Update(ctx context.Context, settings *domain.FeeSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = *settings
	return nil
}

// MemoryRoleRepository implements RoleRepository in memory
type MemoryRoleRepository struct {
	roles map[string]map[domain.Role]bool
	mu    sync.RWMutex
}

// NewMemoryRoleRepository creates an empty role repository
func NewMemoryRoleRepository() *MemoryRoleRepository {
	return &MemoryRoleRepository{roles: make(map[string]map[domain.Role]bool)}
}

// HasRole reports whether the user holds role
func (r *MemoryRoleRepository) HasRole(ctx context.Context, userID string, role domain.Role) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roles[userID][role], nil
}

// Grant gives a role to a user
func (r *MemoryRoleRepository) Grant(ctx context.Context, userID string, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roles[userID] == nil {
		r.roles[userID] = make(map[domain.Role]bool)
	}
	r.roles[userID][role] = true
	return nil
}

// Ensure the in-memory repositories implement their interfaces
var (
	_ PayoutRepository      = (*MemoryPayoutRepository)(nil)
	_ FeeSettingsRepository = (*MemoryFeeSettingsRepository)(nil)
	_ RoleRepository        = (*MemoryRoleRepository)(nil)
)
