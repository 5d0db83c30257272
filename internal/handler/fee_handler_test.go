package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/fees"
	"github.com/mcofie/gatepass-settlement/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFeeService struct {
	quoteErr  error
	lastQuote *service.QuoteRequest
	settings  *domain.FeeSettings
}

func (s *stubFeeService) Quote(ctx context.Context, req *service.QuoteRequest) (*fees.Breakdown, error) {
	s.lastQuote = req
	if s.quoteErr != nil {
		return nil, s.quoteErr
	}
	return &fees.Breakdown{Currency: "GHS", TotalCharge: decimal.RequireFromString("106.07")}, nil
}

func (s *stubFeeService) GetSettings(ctx context.Context) (*domain.FeeSettings, error) {
	return s.settings, nil
}

func (s *stubFeeService) UpdateSettings(ctx context.Context, adminID string, platformPercent, processorPercent decimal.Decimal) (*domain.FeeSettings, error) {
	settings := &domain.FeeSettings{
		PlatformFeePercent:  platformPercent,
		ProcessorFeePercent: processorPercent,
		UpdatedBy:           adminID,
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	s.settings = settings
	return settings, nil
}

func setupFeeRouter(svc *stubFeeService, user string) *gin.Engine {
	h := NewFeeHandler(svc)
	r := gin.New()
	r.POST("/fees/quote", h.Quote)
	admin := r.Group("/admin", asUser(user), RequireSuperAdmin(&stubAuthz{admins: map[string]bool{"admin-1": true}}))
	admin.GET("/fee-settings", h.GetSettings)
	admin.PUT("/fee-settings", h.UpdateSettings)
	return r
}

func TestFeeHandler_Quote(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		svc := &stubFeeService{}
		r := setupFeeRouter(svc, "")

		w := doJSON(r, http.MethodPost, "/fees/quote", []byte(`{"tier_id":"tier-1","quantity":2,"discount_code":"EARLY"}`), nil)

		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, svc.lastQuote)
		assert.Equal(t, "tier-1", svc.lastQuote.TierID)
		assert.Equal(t, 2, svc.lastQuote.Quantity)
		assert.Equal(t, "EARLY", svc.lastQuote.DiscountCode)
	})

	t.Run("invalid body", func(t *testing.T) {
		svc := &stubFeeService{}
		r := setupFeeRouter(svc, "")

		w := doJSON(r, http.MethodPost, "/fees/quote", []byte(`{"tier_id":"tier-1","quantity":0}`), nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, svc.lastQuote)
	})

	t.Run("unknown tier", func(t *testing.T) {
		r := setupFeeRouter(&stubFeeService{quoteErr: domain.ErrTierNotFound}, "")

		w := doJSON(r, http.MethodPost, "/fees/quote", []byte(`{"tier_id":"nope","quantity":1}`), nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestFeeHandler_Settings(t *testing.T) {
	t.Run("admin updates", func(t *testing.T) {
		svc := &stubFeeService{}
		r := setupFeeRouter(svc, "admin-1")

		w := doJSON(r, http.MethodPut, "/admin/fee-settings", []byte(`{"platform_fee_percent":"5","processor_fee_percent":"1.95"}`), nil)

		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, svc.settings)
		assert.Equal(t, "admin-1", svc.settings.UpdatedBy)
		assert.True(t, decimal.NewFromInt(5).Equal(svc.settings.PlatformFeePercent))

		w = doJSON(r, http.MethodGet, "/admin/fee-settings", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("out of range", func(t *testing.T) {
		r := setupFeeRouter(&stubFeeService{}, "admin-1")

		w := doJSON(r, http.MethodPut, "/admin/fee-settings", []byte(`{"platform_fee_percent":"100","processor_fee_percent":"1"}`), nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("non admin", func(t *testing.T) {
		svc := &stubFeeService{}
		r := setupFeeRouter(svc, "org-1")

		w := doJSON(r, http.MethodPut, "/admin/fee-settings", []byte(`{"platform_fee_percent":"1","processor_fee_percent":"1"}`), nil)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Nil(t, svc.settings)
	})
}
