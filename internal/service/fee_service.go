package service

import (
	"context"
	"time"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/fees"
	"github.com/mcofie/gatepass-settlement/internal/repository"
	"github.com/mcofie/gatepass-settlement/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FeeService prices purchases and administers the global fee settings
type FeeService interface {
	// Quote prices a tier purchase with an optional discount code and add-ons
	Quote(ctx context.Context, req *QuoteRequest) (*fees.Breakdown, error)

	// GetSettings returns the global fee settings
	GetSettings(ctx context.Context) (*domain.FeeSettings, error)

	// UpdateSettings replaces the global fee percentages
	UpdateSettings(ctx context.Context, adminID string, platformPercent, processorPercent decimal.Decimal) (*domain.FeeSettings, error)
}

// QuoteRequest describes a purchase to price
type QuoteRequest struct {
	TierID       string
	Quantity     int
	DiscountCode string
	Addons       []domain.AddonSelection
}

type feeService struct {
	catalog  repository.CatalogRepository
	settings repository.FeeSettingsRepository
	authz    AuthorizationService
}

// NewFeeService creates a new FeeService
func NewFeeService(
	catalog repository.CatalogRepository,
	settings repository.FeeSettingsRepository,
	authz AuthorizationService,
) FeeService {
	return &feeService{catalog: catalog, settings: settings, authz: authz}
}

// Quote prices a tier purchase
func (s *feeService) Quote(ctx context.Context, req *QuoteRequest) (*fees.Breakdown, error) {
	if req == nil || req.Quantity <= 0 {
		return nil, fees.ErrInvalidQuantity
	}

	tier, err := s.catalog.GetTier(ctx, req.TierID)
	if err != nil {
		return nil, err
	}
	event, err := s.catalog.GetEvent(ctx, tier.EventID)
	if err != nil {
		return nil, err
	}

	var discount *domain.Discount
	if req.DiscountCode != "" {
		discount, err = s.catalog.GetDiscountByCode(ctx, event.ID, req.DiscountCode)
		if err != nil {
			return nil, err
		}
	}

	var lines []fees.AddonLine
	if len(req.Addons) > 0 {
		ids := make([]string, 0, len(req.Addons))
		for _, a := range req.Addons {
			ids = append(ids, a.AddonID)
		}
		found, err := s.catalog.GetAddons(ctx, event.ID, ids)
		if err != nil {
			return nil, err
		}
		for _, a := range req.Addons {
			addon, ok := found[a.AddonID]
			if !ok {
				return nil, domain.ErrAddonNotFound
			}
			lines = append(lines, fees.AddonLine{Price: addon.Price, Quantity: a.Quantity})
		}
	}

	global, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	return fees.Quote(fees.QuoteInput{
		UnitPrice: tier.Price,
		Quantity:  req.Quantity,
		Currency:  tier.Currency,
		FeeBearer: event.FeeBearer,
		Rates:     fees.Resolve(event.PlatformFeePercent, *global),
		Discount:  discount,
		Addons:    lines,
	})
}

// GetSettings returns the global fee settings
func (s *feeService) GetSettings(ctx context.Context) (*domain.FeeSettings, error) {
	return s.settings.Get(ctx)
}

// UpdateSettings replaces the global fee percentages
func (s *feeService) UpdateSettings(ctx context.Context, adminID string, platformPercent, processorPercent decimal.Decimal) (*domain.FeeSettings, error) {
	isAdmin, err := s.authz.IsSuperAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return nil, domain.ErrForbidden
	}

	settings := &domain.FeeSettings{
		PlatformFeePercent:  platformPercent,
		ProcessorFeePercent: processorPercent,
		UpdatedAt:           time.Now().UTC(),
		UpdatedBy:           adminID,
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := s.settings.Update(ctx, settings); err != nil {
		return nil, err
	}

	logger.Get().InfoContext(ctx, "fee settings updated",
		zap.String("platform_fee_percent", platformPercent.String()),
		zap.String("processor_fee_percent", processorPercent.String()),
		zap.String("admin_id", adminID),
	)
	return settings, nil
}
