package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/pkg/database"
	"github.com/shopspring/decimal"
)

// PostgresPayoutRepository implements PayoutRepository using PostgreSQL
type PostgresPayoutRepository struct {
	db *database.PostgresDB
}

// NewPostgresPayoutRepository creates a new PostgreSQL payout repository
func NewPostgresPayoutRepository(db *database.PostgresDB) *PostgresPayoutRepository {
	return &PostgresPayoutRepository{db: db}
}

const payoutColumns = `
	id, event_id, organizer_id, requested_by, amount::text, currency, status,
	COALESCE(failure_reason, ''), created_at, updated_at, processed_at
`

// Create creates a payout request
func (r *PostgresPayoutRepository) Create(ctx context.Context, p *domain.Payout) error {
	query := `
		INSERT INTO payouts (
			id, event_id, organizer_id, requested_by, amount, currency, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)`

	_, err := r.db.Pool().Exec(ctx, query,
		p.ID, p.EventID, p.OrganizerID, p.RequestedBy, p.Amount.String(), p.Currency, string(p.Status), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		// idx_payouts_one_active
		if database.IsUniqueViolation(err) {
			return domain.ErrPayoutInProgress
		}
		return fmt.Errorf("failed to create payout: %w", err)
	}
	return nil
}

// GetByID retrieves a payout by its ID
func (r *PostgresPayoutRepository) GetByID(ctx context.Context, id string) (*domain.Payout, error) {
	if !isUUID(id) {
		return nil, domain.ErrPayoutNotFound
	}
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1`
	return scanPayout(r.db.Pool().QueryRow(ctx, query, id))
}

// ListByEvent returns an event's payouts, newest first
func (r *PostgresPayoutRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Payout, error) {
	if !isUUID(eventID) {
		return nil, nil
	}
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE event_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Pool().Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payouts: %w", err)
	}
	return payouts, nil
}

// HasActive reports whether the event has a pending or processing payout
func (r *PostgresPayoutRepository) HasActive(ctx context.Context, eventID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM payouts WHERE event_id = $1 AND status IN ('pending', 'processing'))`

	var exists bool
	if err := r.db.Pool().QueryRow(ctx, query, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check active payout: %w", err)
	}
	return exists, nil
}

// UpdateStatus persists the payout's status if the stored one is still expected
func (r *PostgresPayoutRepository) UpdateStatus(ctx context.Context, p *domain.Payout, expected domain.PayoutStatus) error {
	query := `
		UPDATE payouts SET status = $2, failure_reason = $3, updated_at = $4, processed_at = $5
		WHERE id = $1 AND status = $6`

	result, err := r.db.Pool().Exec(ctx, query,
		p.ID, string(p.Status), nullString(p.FailureReason), p.UpdatedAt, p.ProcessedAt, string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update payout: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrInvalidPayoutTransition
	}
	return nil
}

// SumCommitted sums pending, processing and paid payouts of an event in a currency
func (r *PostgresPayoutRepository) SumCommitted(ctx context.Context, eventID, currency string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)::text FROM payouts
		WHERE event_id = $1 AND currency = $2 AND status IN ('pending', 'processing', 'paid')`

	var sum string
	if err := r.db.Pool().QueryRow(ctx, query, eventID, currency).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payouts: %w", err)
	}
	return decimal.NewFromString(sum)
}

func scanPayout(row rowScanner) (*domain.Payout, error) {
	p := &domain.Payout{}
	var amount, status string

	err := row.Scan(
		&p.ID, &p.EventID, &p.OrganizerID, &p.RequestedBy, &amount, &p.Currency, &status,
		&p.FailureReason, &p.CreatedAt, &p.UpdatedAt, &p.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("failed to scan payout: %w", err)
	}

	p.Status = domain.PayoutStatus(status)
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid payout amount %q: %w", amount, err)
	}
	return p, nil
}

// PostgresFeeSettingsRepository implements FeeSettingsRepository using PostgreSQL
type PostgresFeeSettingsRepository struct {
	db       *database.PostgresDB
	defaults domain.FeeSettings
}

// NewPostgresFeeSettingsRepository creates a fee settings repository. defaults
// are returned until an administrator saves settings.
func NewPostgresFeeSettingsRepository(db *database.PostgresDB, defaults domain.FeeSettings) *PostgresFeeSettingsRepository {
	return &PostgresFeeSettingsRepository{db: db, defaults: defaults}
}

// Get returns the current settings
func (r *PostgresFeeSettingsRepository) Get(ctx context.Context) (*domain.FeeSettings, error) {
	query := `
		SELECT platform_fee_percent::text, processor_fee_percent::text, updated_at, COALESCE(updated_by, '')
		FROM platform_settings WHERE id = 1`

	s := &domain.FeeSettings{}
	var platform, processor string
	err := r.db.Pool().QueryRow(ctx, query).Scan(&platform, &processor, &s.UpdatedAt, &s.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			d := r.defaults
			return &d, nil
		}
		return nil, fmt.Errorf("failed to get fee settings: %w", err)
	}

	if err := parseDecimals(map[*decimal.Decimal]string{
		&s.PlatformFeePercent:  platform,
		&s.ProcessorFeePercent: processor,
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// Update replaces the settings
func (r *PostgresFeeSettingsRepository) Update(ctx context.Context, s *domain.FeeSettings) error {
	query := `
		INSERT INTO platform_settings (id, platform_fee_percent, processor_fee_percent, updated_at, updated_by)
		VALUES (1, $1::numeric, $2::numeric, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			platform_fee_percent = EXCLUDED.platform_fee_percent,
			processor_fee_percent = EXCLUDED.processor_fee_percent,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by`

	_, err := r.db.Pool().Exec(ctx, query,
		s.PlatformFeePercent.String(), s.ProcessorFeePercent.String(), s.UpdatedAt, nullString(s.UpdatedBy),
	)
	if err != nil {
		return fmt.Errorf("failed to update fee settings: %w", err)
	}
	return nil
}

// PostgresRoleRepository implements RoleRepository using PostgreSQL
type PostgresRoleRepository struct {
	db *database.PostgresDB
}

// NewPostgresRoleRepository creates a new PostgreSQL role repository
func NewPostgresRoleRepository(db *database.PostgresDB) *PostgresRoleRepository {
	return &PostgresRoleRepository{db: db}
}

// HasRole reports whether the user holds role
func (r *PostgresRoleRepository) HasRole(ctx context.Context, userID string, role domain.Role) (bool, error) {
	if !isUUID(userID) {
		return false, nil
	}

	query := `SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`

	var exists bool
	if err := r.db.Pool().QueryRow(ctx, query, userID, string(role)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return exists, nil
}

// Grant gives a role to a user
func (r *PostgresRoleRepository) Grant(ctx context.Context, userID string, role domain.Role) error {
	query := `INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.Pool().Exec(ctx, query, userID, string(role)); err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

// Ensure the PostgreSQL repositories implement their interfaces
var (
	_ PayoutRepository      = (*PostgresPayoutRepository)(nil)
	_ FeeSettingsRepository = (*PostgresFeeSettingsRepository)(nil)
	_ RoleRepository        = (*PostgresRoleRepository)(nil)
)
