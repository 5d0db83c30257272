package service

import (
	"context"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/repository"
)

// RevenueService reports an event's settled revenue from the ledger
type RevenueService interface {
	// GetRevenue returns one summary per currency. Only the event's
	// organizer or a super admin may read it.
	GetRevenue(ctx context.Context, userID, eventID string) ([]*domain.RevenueSummary, error)
}

type revenueService struct {
	catalog repository.CatalogRepository
	ledger  repository.LedgerRepository
	payouts repository.PayoutRepository
	authz   AuthorizationService
}

// NewRevenueService creates a new RevenueService
func NewRevenueService(
	catalog repository.CatalogRepository,
	ledger repository.LedgerRepository,
	payouts repository.PayoutRepository,
	authz AuthorizationService,
) RevenueService {
	return &revenueService{catalog: catalog, ledger: ledger, payouts: payouts, authz: authz}
}

// GetRevenue returns one summary per currency
func (s *revenueService) GetRevenue(ctx context.Context, userID, eventID string) ([]*domain.RevenueSummary, error) {
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
	return summarize(ctx, s.ledger, s.payouts, eventID)
}

// summarize reads the ledger and nets out committed payouts
func summarize(ctx context.Context, ledger repository.LedgerRepository, payouts repository.PayoutRepository, eventID string) ([]*domain.RevenueSummary, error) {
	summaries, err := ledger.GetRevenue(ctx, eventID)
	if err != nil {
		return nil, err
	}
	for _, sum := range summaries {
		committed, err := payouts.SumCommitted(ctx, eventID, sum.Currency)
		if err != nil {
			return nil, err
		}
		sum.ApplyPayouts(committed)
	}
	return summaries, nil
}
