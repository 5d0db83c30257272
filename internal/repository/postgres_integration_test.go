package repository

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/pkg/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipIfNoIntegration skips the test if INTEGRATION_TEST env var is not set
func skipIfNoIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}
}

func getTestDB(t *testing.T) *database.PostgresDB {
	t.Helper()

	cfg := database.DefaultPostgresConfig()
	if host := os.Getenv("TEST_DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port, err := strconv.Atoi(os.Getenv("TEST_DB_PORT")); err == nil {
		cfg.Port = port
	}
	if user := os.Getenv("TEST_DB_USER"); user != "" {
		cfg.User = user
	}
	cfg.Password = os.Getenv("TEST_DB_PASSWORD")
	if name := os.Getenv("TEST_DB_NAME"); name != "" {
		cfg.Database = name
	}
	cfg.MaxRetries = 0

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, Migrate(ctx, db))
	return db
}

func seedCatalog(t *testing.T, db *database.PostgresDB, capacity int) (eventID, tierID string) {
	t.Helper()
	ctx := context.Background()

	eventID = uuid.NewString()
	tierID = uuid.NewString()

	_, err := db.Pool().Exec(ctx,
		`INSERT INTO events (id, organizer_id, title, fee_bearer) VALUES ($1, $2, 'Integration Fest', 'customer')`,
		eventID, uuid.NewString())
	require.NoError(t, err)

	_, err = db.Pool().Exec(ctx,
		`INSERT INTO ticket_tiers (id, event_id, name, price, currency, total_quantity) VALUES ($1, $2, 'GA', 100, 'GHS', $3)`,
		tierID, eventID, capacity)
	require.NoError(t, err)
	return eventID, tierID
}

func seedReservation(t *testing.T, db *database.PostgresDB, eventID, tierID string, qty int) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Pool().Exec(context.Background(),
		`INSERT INTO reservations (id, tier_id, event_id, quantity, status, guest_email) VALUES ($1, $2, $3, $4, 'pending', 'guest@example.com')`,
		id, tierID, eventID, qty)
	require.NoError(t, err)
	return id
}

func TestPostgresSettlement_ConditionalInventory(t *testing.T) {
	skipIfNoIntegration(t)

	db := getTestDB(t)
	repo := NewPostgresSettlementRepository(db)
	catalog := NewPostgresCatalogRepository(db)
	eventID, tierID := seedCatalog(t, db, 3)

	const attempts = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	sold := 0

	for i := 0; i < attempts; i++ {
		resID := seedReservation(t, db, eventID, tierID, 1)
		wg.Add(1)
		go func(resID string) {
			defer wg.Done()
			ctx := context.Background()
			_ = repo.WithinTx(ctx, func(tx SettlementTx) error {
				b, err := tx.LockReservation(ctx, resID)
				if err != nil {
					return err
				}
				ok, err := tx.IncrementSold(ctx, b.Tier.ID, b.Reservation.Quantity)
				if err != nil || !ok {
					return domain.ErrInventoryExceeded
				}
				if _, err := tx.ConfirmReservation(ctx, resID); err != nil {
					return err
				}
				mu.Lock()
				sold++
				mu.Unlock()
				return nil
			})
		}(resID)
	}
	wg.Wait()

	tier, err := catalog.GetTier(context.Background(), tierID)
	require.NoError(t, err)
	assert.Equal(t, 3, tier.QuantitySold)
	assert.Equal(t, 3, sold)
}

func TestPostgresSettlement_TransactionAndTickets(t *testing.T) {
	skipIfNoIntegration(t)

	db := getTestDB(t)
	repo := NewPostgresSettlementRepository(db)
	catalog := NewPostgresCatalogRepository(db)
	eventID, tierID := seedCatalog(t, db, 10)
	resID := seedReservation(t, db, eventID, tierID, 2)
	ref := "ref_" + uuid.NewString()
	ctx := context.Background()

	err := repo.WithinTx(ctx, func(tx SettlementTx) error {
		b, err := tx.LockReservation(ctx, resID)
		require.NoError(t, err)
		tickets, err := domain.NewTickets(b.Reservation, ref)
		require.NoError(t, err)
		require.NoError(t, tx.InsertTickets(ctx, tickets))

		msg, err := domain.NewTicketsIssuedMessage("settlement.tickets-issued", &domain.TicketsIssuedEvent{
			Reference: ref, Reservation: b.Reservation, Tickets: tickets, Event: b.Event, Tier: b.Tier,
		})
		require.NoError(t, err)
		require.NoError(t, tx.InsertOutbox(ctx, msg))

		return tx.InsertTransaction(ctx, &domain.Transaction{
			ID: uuid.NewString(), Reference: ref, ReservationID: resID, EventID: eventID,
			Amount: decimal.RequireFromString("212.14"), GatewayAmount: 21214, Currency: "GHS",
			PlatformFee: decimal.NewFromInt(8), ProcessorFee: decimal.RequireFromString("4.14"),
			OrganizerNet: decimal.NewFromInt(200), PlatformFeeRate: decimal.RequireFromString("0.04"),
			ProcessorFeeRate: decimal.RequireFromString("0.0195"), FeeBearer: domain.FeeBearerCustomer,
			Status: domain.TransactionStatusSuccess, CreatedAt: time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	tickets, err := repo.FindTicketsByOrderReference(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	has, err := repo.HasSuccessTransaction(ctx, ref)
	require.NoError(t, err)
	assert.True(t, has)

	err = repo.WithinTx(ctx, func(tx SettlementTx) error {
		return tx.InsertTransaction(ctx, &domain.Transaction{
			ID: uuid.NewString(), Reference: "other", ReservationID: resID, EventID: eventID,
			Currency: "GHS", FeeBearer: domain.FeeBearerCustomer, Status: domain.TransactionStatusSuccess,
			CreatedAt: time.Now().UTC(),
		})
	})
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)

	revenue, err := catalog.GetRevenue(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, revenue, 1)
	assert.Equal(t, 2, revenue[0].TicketsSold)
	assert.True(t, revenue[0].OrganizerNet.Equal(decimal.NewFromInt(200)))
}

func TestPostgresPayouts_OneActivePerEvent(t *testing.T) {
	skipIfNoIntegration(t)

	db := getTestDB(t)
	repo := NewPostgresPayoutRepository(db)
	eventID, _ := seedCatalog(t, db, 1)
	organizer := uuid.NewString()
	ctx := context.Background()

	p1, err := domain.NewPayout(eventID, organizer, organizer, decimal.NewFromInt(10), "GHS")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, p1))

	p2, err := domain.NewPayout(eventID, organizer, organizer, decimal.NewFromInt(5), "GHS")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, p2), domain.ErrPayoutInProgress)

	require.NoError(t, p1.Fail("bank rejected"))
	require.NoError(t, repo.UpdateStatus(ctx, p1, domain.PayoutStatusPending))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, p1, domain.PayoutStatusPending), domain.ErrInvalidPayoutTransition)

	require.NoError(t, repo.Create(ctx, p2))
	sum, err := repo.SumCommitted(ctx, eventID, "GHS")
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(5)))
}

func TestPostgresOutbox_ClaimIsExclusive(t *testing.T) {
	skipIfNoIntegration(t)

	db := getTestDB(t)
	repo := NewPostgresOutboxRepository(db)
	ctx := context.Background()

	_, err := db.Pool().Exec(ctx, `DELETE FROM outbox`)
	require.NoError(t, err)

	msg, err := domain.NewOutboxMessage("reservation", uuid.NewString(), domain.EventTypeTicketsIssued, "t", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, msg))

	first, err := repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, second)

	require.NoError(t, repo.MarkAsPublished(ctx, msg.ID))
}

func TestPostgresFeeSettingsAndRoles(t *testing.T) {
	skipIfNoIntegration(t)

	db := getTestDB(t)
	ctx := context.Background()

	fees := NewPostgresFeeSettingsRepository(db, testSettings())
	updated := testSettings()
	updated.PlatformFeePercent = decimal.RequireFromString("3.5")
	updated.UpdatedBy = "admin"
	require.NoError(t, fees.Update(ctx, &updated))

	got, err := fees.Get(ctx)
	require.NoError(t, err)
	assert.True(t, got.PlatformFeePercent.Equal(decimal.RequireFromString("3.5")))

	roles := NewPostgresRoleRepository(db)
	user := uuid.NewString()
	require.NoError(t, roles.Grant(ctx, user, domain.RoleSuperAdmin))
	ok, err := roles.HasRole(ctx, user, domain.RoleSuperAdmin)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = roles.HasRole(ctx, "not-a-uuid", domain.RoleSuperAdmin)
	require.NoError(t, err)
	assert.False(t, ok)
}
