package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payoutFixture struct {
	*settlementFixture
	payouts *repository.MemoryPayoutRepository
	roles   *repository.MemoryRoleRepository
	svc     PayoutService
	revenue RevenueService
	admin   string
}

// newPayoutFixture settles one ticket so the organizer has 100.00 GHS of net revenue
func newPayoutFixture(t *testing.T) *payoutFixture {
	t.Helper()
	sf := newSettlementFixture(t, 10)
	res := sf.reserve(1)
	_, err := sf.svc.Settle(context.Background(), settleReq("ref_paid", res.ID))
	require.NoError(t, err)

	payouts := repository.NewMemoryPayoutRepository()
	roles := repository.NewMemoryRoleRepository()
	admin := uuid.NewString()
	require.NoError(t, roles.Grant(context.Background(), admin, domain.RoleSuperAdmin))
	authz := NewAuthorizationService(roles)

	return &payoutFixture{
		settlementFixture: sf,
		payouts:           payouts,
		roles:             roles,
		svc:               NewPayoutService(sf.store, sf.store, payouts, authz),
		revenue:           NewRevenueService(sf.store, sf.store, payouts, authz),
		admin:             admin,
	}
}

func (f *payoutFixture) request(amount string) (*domain.Payout, error) {
	return f.svc.RequestPayout(context.Background(), f.event.OrganizerID, &PayoutRequest{
		EventID:  f.event.ID,
		Amount:   decimal.RequireFromString(amount),
		Currency: "ghs",
	})
}

func TestPayout_RequestAndLifecycle(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	p, err := f.request("60")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusPending, p.Status)
	assert.Equal(t, "GHS", p.Currency)

	_, err = f.request("10")
	assert.ErrorIs(t, err, domain.ErrPayoutInProgress)

	_, err = f.svc.MarkPaid(ctx, f.admin, p.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidPayoutTransition)

	p, err = f.svc.Approve(ctx, f.admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusProcessing, p.Status)

	p, err = f.svc.MarkPaid(ctx, f.admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusPaid, p.Status)
	assert.NotNil(t, p.ProcessedAt)

	_, err = f.svc.Fail(ctx, f.admin, p.ID, "too late")
	assert.ErrorIs(t, err, domain.ErrInvalidPayoutTransition)

	// 60 paid leaves 40 available
	_, err = f.request("40.01")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	_, err = f.request("40")
	require.NoError(t, err)

	list, err := f.svc.ListPayouts(ctx, f.event.OrganizerID, f.event.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestPayout_Validation(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	_, err := f.request("0")
	assert.ErrorIs(t, err, domain.ErrInvalidPayoutAmount)

	_, err = f.request("100.01")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = f.svc.RequestPayout(ctx, uuid.NewString(), &PayoutRequest{EventID: f.event.ID, Amount: decimal.NewFromInt(1), Currency: "GHS"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.RequestPayout(ctx, f.admin, &PayoutRequest{EventID: f.event.ID, Amount: decimal.NewFromInt(1)})
	require.NoError(t, err, "super admins may request and a single currency is inferred")
}

func TestPayout_CurrencyRequiredWithoutSingleRevenueCurrency(t *testing.T) {
	f := newPayoutFixture(t)
	unsold := &domain.Event{ID: uuid.NewString(), OrganizerID: f.event.OrganizerID, Title: "No sales yet", FeeBearer: domain.FeeBearerCustomer}
	f.store.AddEvent(unsold)

	_, err := f.svc.RequestPayout(context.Background(), unsold.OrganizerID, &PayoutRequest{
		EventID: unsold.ID,
		Amount:  decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrPayoutCurrencyRequired)
}

func TestPayout_OnlySuperAdminsTransition(t *testing.T) {
	f := newPayoutFixture(t)

	p, err := f.request("50")
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), f.event.OrganizerID, p.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	failed, err := f.svc.Fail(context.Background(), f.admin, p.ID, "bank details missing")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusFailed, failed.Status)
	assert.Equal(t, "bank details missing", failed.FailureReason)

	// a failed payout frees the balance
	_, err = f.request("100")
	require.NoError(t, err)
}

func TestRevenue_NetsOutPayouts(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	_, err := f.request("30")
	require.NoError(t, err)

	summaries, err := f.revenue.GetRevenue(ctx, f.event.OrganizerID, f.event.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, "GHS", s.Currency)
	assert.Equal(t, 1, s.TicketsSold)
	assert.Equal(t, "106.07", s.GrossAmount.StringFixed(2))
	assert.Equal(t, "4.00", s.PlatformFees.StringFixed(2))
	assert.Equal(t, "100.00", s.OrganizerNet.StringFixed(2))
	assert.Equal(t, "30.00", s.Committed.StringFixed(2))
	assert.Equal(t, "70.00", s.Available.StringFixed(2))

	_, err = f.revenue.GetRevenue(ctx, uuid.NewString(), f.event.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.revenue.GetRevenue(ctx, f.admin, f.event.ID)
	assert.NoError(t, err)
}
