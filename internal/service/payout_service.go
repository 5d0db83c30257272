package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/metrics"
	"github.com/mcofie/gatepass-settlement/internal/repository"
	"github.com/mcofie/gatepass-settlement/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PayoutService manages organizer withdrawals:
// pending -> processing -> {paid | failed}, pending -> failed
type PayoutService interface {
	// RequestPayout creates a pending payout for an event
	RequestPayout(ctx context.Context, userID string, req *PayoutRequest) (*domain.Payout, error)

	// ListPayouts returns an event's payouts, newest first
	ListPayouts(ctx context.Context, userID, eventID string) ([]*domain.Payout, error)

	// Approve moves a pending payout to processing
	Approve(ctx context.Context, adminID, payoutID string) (*domain.Payout, error)

	// MarkPaid completes a processing payout
	MarkPaid(ctx context.Context, adminID, payoutID string) (*domain.Payout, error)

	// Fail rejects a pending payout or fails a processing one
	Fail(ctx context.Context, adminID, payoutID, reason string) (*domain.Payout, error)
}

// PayoutRequest is an organizer's withdrawal request
type PayoutRequest struct {
	EventID  string
	Amount   decimal.Decimal
	Currency string
}

type payoutService struct {
	catalog repository.CatalogRepository
	ledger  repository.LedgerRepository
	payouts repository.PayoutRepository
	authz   AuthorizationService
}

// NewPayoutService creates a new PayoutService
func NewPayoutService(
	catalog repository.CatalogRepository,
	ledger repository.LedgerRepository,
	payouts repository.PayoutRepository,
	authz AuthorizationService,
) PayoutService {
	return &payoutService{catalog: catalog, ledger: ledger, payouts: payouts, authz: authz}
}

// RequestPayout creates a pending payout for an event
func (s *payoutService) RequestPayout(ctx context.Context, userID string, req *PayoutRequest) (*domain.Payout, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidPayoutAmount
	}

	event, err := s.manageableEvent(ctx, userID, req.EventID)
	if err != nil {
		return nil, err
	}

	// Pre-check only; the unique partial index decides races
	active, err := s.payouts.HasActive(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, domain.ErrPayoutInProgress
	}

	summaries, err := summarize(ctx, s.ledger, s.payouts, event.ID)
	if err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	available := decimal.Zero
	for _, sum := range summaries {
		if currency == "" && len(summaries) == 1 {
			currency = sum.Currency
		}
		if sum.Currency == currency {
			available = sum.Available
		}
	}
	if currency == "" {
		return nil, domain.ErrPayoutCurrencyRequired
	}
	if req.Amount.GreaterThan(available) {
		return nil, domain.ErrInsufficientBalance
	}

	payout, err := domain.NewPayout(event.ID, event.OrganizerID, userID, req.Amount, currency)
	if err != nil {
		return nil, err
	}
	if err := s.payouts.Create(ctx, payout); err != nil {
		return nil, err
	}

	metrics.RecordPayoutRequested(ctx, payout.Currency)
	logger.Get().InfoContext(ctx, "payout requested",
		zap.String("payout_id", payout.ID),
		zap.String("event_id", payout.EventID),
		zap.String("amount", payout.Amount.String()),
		zap.String("currency", payout.Currency),
	)
	return payout, nil
}

// ListPayouts returns an event's payouts, newest first
func (s *payoutService) ListPayouts(ctx context.Context, userID, eventID string) ([]*domain.Payout, error) {
	if _, err := s.manageableEvent(ctx, userID, eventID); err != nil {
		return nil, err
	}
	return s.payouts.ListByEvent(ctx, eventID)
}

// Approve moves a pending payout to processing
func (s *payoutService) Approve(ctx context.Context, adminID, payoutID string) (*domain.Payout, error) {
	return s.transition(ctx, adminID, payoutID, (*domain.Payout).Approve)
}

// MarkPaid completes a processing payout
func (s *payoutService) MarkPaid(ctx context.Context, adminID, payoutID string) (*domain.Payout, error) {
	return s.transition(ctx, adminID, payoutID, (*domain.Payout).MarkPaid)
}

// Fail rejects a pending payout or fails a processing one
func (s *payoutService) Fail(ctx context.Context, adminID, payoutID, reason string) (*domain.Payout, error) {
	return s.transition(ctx, adminID, payoutID, func(p *domain.Payout) error {
		return p.Fail(reason)
	})
}

func (s *payoutService) transition(ctx context.Context, adminID, payoutID string, apply func(*domain.Payout) error) (*domain.Payout, error) {
	isAdmin, err := s.authz.IsSuperAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return nil, domain.ErrForbidden
	}

	payout, err := s.payouts.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	expected := payout.Status
	if err := apply(payout); err != nil {
		return nil, err
	}
	if err := s.payouts.UpdateStatus(ctx, payout, expected); err != nil {
		return nil, err
	}

	logger.Get().InfoContext(ctx, "payout status changed",
		zap.String("payout_id", payout.ID),
		zap.String("from", string(expected)),
		zap.String("to", string(payout.Status)),
		zap.String("admin_id", adminID),
	)
	return payout, nil
}

func (s *payoutService) manageableEvent(ctx context.Context, userID, eventID string) (*domain.Event, error) {
	event, err := s.catalog.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	allowed, err := s.authz.CanManageEvent(ctx, userID, event)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrForbidden
	}
	return event, nil
}
