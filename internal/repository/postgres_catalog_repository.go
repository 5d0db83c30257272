package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/pkg/database"
	"github.com/shopspring/decimal"
)

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresCatalogRepository implements CatalogRepository and LedgerRepository using PostgreSQL
type PostgresCatalogRepository struct {
	db *database.PostgresDB
}

// NewPostgresCatalogRepository creates a new PostgreSQL catalog repository
func NewPostgresCatalogRepository(db *database.PostgresDB) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{db: db}
}

// GetEvent retrieves an event by ID
func (r *PostgresCatalogRepository) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	if !isUUID(id) {
		return nil, domain.ErrEventNotFound
	}

	query := `SELECT id, organizer_id, title, fee_bearer, platform_fee_percent::text FROM events WHERE id = $1`

	event := &domain.Event{}
	var feeBearer string
	var override *string
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(&event.ID, &event.OrganizerID, &event.Title, &feeBearer, &override)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	event.FeeBearer = domain.FeeBearer(feeBearer)
	if event.PlatformFeePercent, err = parseNullDecimal(override); err != nil {
		return nil, err
	}
	return event, nil
}

// GetTier retrieves a ticket tier by ID
func (r *PostgresCatalogRepository) GetTier(ctx context.Context, id string) (*domain.TicketTier, error) {
	if !isUUID(id) {
		return nil, domain.ErrTierNotFound
	}

	query := `
		SELECT id, event_id, name, price::text, currency, total_quantity, quantity_sold
		FROM ticket_tiers WHERE id = $1`

	tier := &domain.TicketTier{}
	var price string
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&tier.ID, &tier.EventID, &tier.Name, &price, &tier.Currency, &tier.TotalQuantity, &tier.QuantitySold,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTierNotFound
		}
		return nil, fmt.Errorf("failed to get tier: %w", err)
	}

	if tier.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("invalid tier price %q: %w", price, err)
	}
	return tier, nil
}

// GetDiscountByCode retrieves an event's discount by code
func (r *PostgresCatalogRepository) GetDiscountByCode(ctx context.Context, eventID, code string) (*domain.Discount, error) {
	if !isUUID(eventID) {
		return nil, domain.ErrDiscountNotFound
	}

	query := `
		SELECT id, event_id, code, type, value::text, used_count
		FROM discounts WHERE event_id = $1 AND UPPER(code) = UPPER($2)`

	d := &domain.Discount{}
	var discountType, value string
	err := r.db.Pool().QueryRow(ctx, query, eventID, code).Scan(&d.ID, &d.EventID, &d.Code, &discountType, &value, &d.UsedCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDiscountNotFound
		}
		return nil, fmt.Errorf("failed to get discount: %w", err)
	}

	d.Type = domain.DiscountType(discountType)
	if d.Value, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("invalid discount value %q: %w", value, err)
	}
	return d, nil
}

// GetAddons retrieves the event's add-ons with the given IDs
func (r *PostgresCatalogRepository) GetAddons(ctx context.Context, eventID string, ids []string) (map[string]*domain.Addon, error) {
	result := make(map[string]*domain.Addon)

	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 || !isUUID(eventID) {
		return result, nil
	}

	query := `SELECT id, event_id, name, price::text FROM addons WHERE event_id = $1 AND id = ANY($2::uuid[])`

	rows, err := r.db.Pool().Query(ctx, query, eventID, valid)
	if err != nil {
		return nil, fmt.Errorf("failed to query addons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a := &domain.Addon{}
		var price string
		if err := rows.Scan(&a.ID, &a.EventID, &a.Name, &price); err != nil {
			return nil, fmt.Errorf("failed to scan addon: %w", err)
		}
		if a.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("invalid addon price %q: %w", price, err)
		}
		result[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating addons: %w", err)
	}

	return result, nil
}

// bundleQuery joins a reservation with its tier, event and optional discount
const bundleQuery = `
	SELECT
		r.id, r.tier_id, r.event_id, r.quantity, r.status, r.discount_id, r.addons, r.user_id,
		COALESCE(r.guest_email, ''), COALESCE(r.guest_name, ''), r.created_at, r.updated_at,
		t.id, t.event_id, t.name, t.price::text, t.currency, t.total_quantity, t.quantity_sold,
		e.id, e.organizer_id, e.title, e.fee_bearer, e.platform_fee_percent::text,
		d.id, d.event_id, d.code, d.type, d.value::text, d.used_count
	FROM reservations r
	JOIN ticket_tiers t ON t.id = r.tier_id
	JOIN events e ON e.id = r.event_id
	LEFT JOIN discounts d ON d.id = r.discount_id
	WHERE r.id = $1`

// GetReservationBundle reads a reservation bundle without locking
func (r *PostgresCatalogRepository) GetReservationBundle(ctx context.Context, reservationID string) (*ReservationBundle, error) {
	if !isUUID(reservationID) {
		return nil, domain.ErrReservationNotFound
	}
	return scanBundle(r.db.Pool().QueryRow(ctx, bundleQuery, reservationID))
}

// GetRevenue returns one summary per currency for an event
func (r *PostgresCatalogRepository) GetRevenue(ctx context.Context, eventID string) ([]*domain.RevenueSummary, error) {
	if !isUUID(eventID) {
		return nil, domain.ErrEventNotFound
	}

	query := `
		SELECT currency, COUNT(*),
			SUM(amount)::text, SUM(platform_fee)::text, SUM(processor_fee)::text, SUM(organizer_net)::text
		FROM transactions
		WHERE event_id = $1 AND status = 'success'
		GROUP BY currency
		ORDER BY currency`

	rows, err := r.db.Pool().Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query revenue: %w", err)
	}
	defer rows.Close()

	var summaries []*domain.RevenueSummary
	byCurrency := make(map[string]*domain.RevenueSummary)
	for rows.Next() {
		s := &domain.RevenueSummary{EventID: eventID}
		var gross, platform, processor, net string
		if err := rows.Scan(&s.Currency, &s.Transactions, &gross, &platform, &processor, &net); err != nil {
			return nil, fmt.Errorf("failed to scan revenue: %w", err)
		}
		if err := parseDecimals(map[*decimal.Decimal]string{
			&s.GrossAmount:   gross,
			&s.PlatformFees:  platform,
			&s.ProcessorFees: processor,
			&s.OrganizerNet:  net,
		}); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
		byCurrency[s.Currency] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revenue: %w", err)
	}

	ticketQuery := `
		SELECT t.currency, COUNT(*)
		FROM tickets k
		JOIN ticket_tiers t ON t.id = k.tier_id
		WHERE k.event_id = $1 AND k.status <> 'cancelled'
		GROUP BY t.currency`

	ticketRows, err := r.db.Pool().Query(ctx, ticketQuery, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to count tickets: %w", err)
	}
	defer ticketRows.Close()

	for ticketRows.Next() {
		var currency string
		var count int
		if err := ticketRows.Scan(&currency, &count); err != nil {
			return nil, fmt.Errorf("failed to scan ticket count: %w", err)
		}
		if s, ok := byCurrency[currency]; ok {
			s.TicketsSold = count
		}
	}
	if err := ticketRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticket counts: %w", err)
	}

	return summaries, nil
}

func scanBundle(row rowScanner) (*ReservationBundle, error) {
	res := &domain.Reservation{}
	tier := &domain.TicketTier{}
	event := &domain.Event{}

	var (
		resStatus, feeBearer, tierPrice string
		addonsJSON                      []byte
		platformOverride                *string
		discountID, discountEventID     *string
		discountCode, discountType      *string
		discountValue                   *string
		discountUsed                    *int
	)

	err := row.Scan(
		&res.ID, &res.TierID, &res.EventID, &res.Quantity, &resStatus, &res.DiscountID, &addonsJSON, &res.UserID,
		&res.GuestEmail, &res.GuestName, &res.CreatedAt, &res.UpdatedAt,
		&tier.ID, &tier.EventID, &tier.Name, &tierPrice, &tier.Currency, &tier.TotalQuantity, &tier.QuantitySold,
		&event.ID, &event.OrganizerID, &event.Title, &feeBearer, &platformOverride,
		&discountID, &discountEventID, &discountCode, &discountType, &discountValue, &discountUsed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to scan reservation: %w", err)
	}

	res.Status = domain.ReservationStatus(resStatus)
	if len(addonsJSON) > 0 {
		if err := json.Unmarshal(addonsJSON, &res.Addons); err != nil {
			return nil, fmt.Errorf("invalid reservation addons: %w", err)
		}
	}

	if tier.Price, err = decimal.NewFromString(tierPrice); err != nil {
		return nil, fmt.Errorf("invalid tier price %q: %w", tierPrice, err)
	}

	event.FeeBearer = domain.FeeBearer(feeBearer)
	if event.PlatformFeePercent, err = parseNullDecimal(platformOverride); err != nil {
		return nil, err
	}

	bundle := &ReservationBundle{Reservation: res, Tier: tier, Event: event}

	if discountID != nil {
		d := &domain.Discount{
			ID:      *discountID,
			EventID: deref(discountEventID),
			Code:    deref(discountCode),
			Type:    domain.DiscountType(deref(discountType)),
		}
		if discountUsed != nil {
			d.UsedCount = *discountUsed
		}
		if discountValue != nil {
			if d.Value, err = decimal.NewFromString(*discountValue); err != nil {
				return nil, fmt.Errorf("invalid discount value %q: %w", *discountValue, err)
			}
		}
		bundle.Discount = d
	}

	return bundle, nil
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nullString returns nil if string is empty, otherwise returns pointer to string
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func parseNullDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("invalid numeric %q: %w", *s, err)
	}
	return &d, nil
}

func parseDecimals(fields map[*decimal.Decimal]string) error {
	for dst, raw := range fields {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("invalid numeric %q: %w", raw, err)
		}
		*dst = d
	}
	return nil
}

// Ensure PostgresCatalogRepository implements CatalogRepository and LedgerRepository
var (
	_ CatalogRepository = (*PostgresCatalogRepository)(nil)
	_ LedgerRepository  = (*PostgresCatalogRepository)(nil)
)
