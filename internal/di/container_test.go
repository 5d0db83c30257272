package di

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/gateway"
	"github.com/mcofie/gatepass-settlement/internal/handler"
	"github.com/mcofie/gatepass-settlement/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContainer_MemoryFallback(t *testing.T) {
	c := NewContainer(&ContainerConfig{
		Verifier:         gateway.NewMockVerifier(),
		SettlementConfig: &service.SettlementServiceConfig{TicketsIssuedTopic: "settlement.tickets-issued"},
		DefaultFees: domain.FeeSettings{
			PlatformFeePercent:  decimal.NewFromInt(5),
			ProcessorFeePercent: decimal.RequireFromString("1.95"),
		},
		Webhook: &handler.WebhookConfig{Secret: "whsec"},
	})

	require.NotNil(t, c)
	assert.Nil(t, c.DB)
	assert.Nil(t, c.OutboxWorker, "no producer means no relay")

	assert.NotNil(t, c.CatalogRepo)
	assert.NotNil(t, c.SettlementRepo)
	assert.NotNil(t, c.LedgerRepo)
	assert.NotNil(t, c.AttemptRepo)
	assert.NotNil(t, c.OutboxRepo)
	assert.NotNil(t, c.PayoutRepo)
	assert.NotNil(t, c.FeeSettingsRepo)
	assert.NotNil(t, c.RoleRepo)

	assert.NotNil(t, c.SettlementService)
	assert.NotNil(t, c.FeeService)
	assert.NotNil(t, c.RevenueService)
	assert.NotNil(t, c.PayoutService)
	assert.NotNil(t, c.NotificationService)
	assert.NotNil(t, c.AuthzService)

	assert.NotNil(t, c.HealthHandler)
	assert.NotNil(t, c.PaymentHandler)
	assert.NotNil(t, c.WebhookHandler)
	assert.NotNil(t, c.FeeHandler)
	assert.NotNil(t, c.PayoutHandler)
	assert.NotNil(t, c.AdminHandler)
}

func TestNewContainer_DefaultFeesSeeded(t *testing.T) {
	c := NewContainer(&ContainerConfig{
		Verifier: gateway.NewMockVerifier(),
		DefaultFees: domain.FeeSettings{
			PlatformFeePercent:  decimal.NewFromInt(4),
			ProcessorFeePercent: decimal.NewFromInt(2),
		},
	})

	settings, err := c.FeeSettingsRepo.Get(t.Context())
	require.NoError(t, err)
	assert.True(t, settings.PlatformFeePercent.Equal(decimal.NewFromInt(4)))
	assert.True(t, settings.ProcessorFeePercent.Equal(decimal.NewFromInt(2)))
}

func TestNewContainer_ReadyWithoutInfrastructure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := NewContainer(&ContainerConfig{Verifier: gateway.NewMockVerifier()})

	router := gin.New()
	router.GET("/ready", c.HealthHandler.Ready)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
