package repository

import (
	"context"
	"fmt"

	"github.com/mcofie/gatepass-settlement/pkg/database"
)

// schema is applied in order; every statement is idempotent
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id UUID PRIMARY KEY,
		organizer_id UUID NOT NULL,
		title TEXT NOT NULL,
		fee_bearer TEXT NOT NULL DEFAULT 'customer' CHECK (fee_bearer IN ('customer', 'organizer')),
		platform_fee_percent NUMERIC(5,2) CHECK (platform_fee_percent >= 0 AND platform_fee_percent < 100),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ticket_tiers (
		id UUID PRIMARY KEY,
		event_id UUID NOT NULL REFERENCES events(id),
		name TEXT NOT NULL,
		price NUMERIC(14,2) NOT NULL CHECK (price >= 0),
		currency CHAR(3) NOT NULL,
		total_quantity INT NOT NULL CHECK (total_quantity >= 0),
		quantity_sold INT NOT NULL DEFAULT 0,
		CONSTRAINT ticket_tiers_capacity CHECK (quantity_sold >= 0 AND quantity_sold <= total_quantity)
	)`,
	`CREATE TABLE IF NOT EXISTS discounts (
		id UUID PRIMARY KEY,
		event_id UUID NOT NULL REFERENCES events(id),
		code TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('percentage', 'fixed')),
		value NUMERIC(14,2) NOT NULL CHECK (value >= 0),
		used_count INT NOT NULL DEFAULT 0,
		UNIQUE (event_id, code)
	)`,
	`CREATE TABLE IF NOT EXISTS addons (
		id UUID PRIMARY KEY,
		event_id UUID NOT NULL REFERENCES events(id),
		name TEXT NOT NULL,
		price NUMERIC(14,2) NOT NULL CHECK (price >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id UUID PRIMARY KEY,
		tier_id UUID NOT NULL REFERENCES ticket_tiers(id),
		event_id UUID NOT NULL REFERENCES events(id),
		quantity INT NOT NULL CHECK (quantity > 0),
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'confirmed', 'cancelled', 'expired')),
		discount_id UUID REFERENCES discounts(id),
		addons JSONB NOT NULL DEFAULT '[]',
		user_id UUID,
		guest_email TEXT,
		guest_name TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id UUID PRIMARY KEY,
		tier_id UUID NOT NULL REFERENCES ticket_tiers(id),
		event_id UUID NOT NULL REFERENCES events(id),
		reservation_id UUID NOT NULL REFERENCES reservations(id),
		qr_token TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'valid' CHECK (status IN ('valid', 'used', 'cancelled')),
		order_reference TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_order_reference ON tickets(order_reference)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_reservation ON tickets(reservation_id)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id UUID PRIMARY KEY,
		reference TEXT NOT NULL,
		reservation_id UUID NOT NULL UNIQUE REFERENCES reservations(id),
		event_id UUID NOT NULL REFERENCES events(id),
		amount NUMERIC(14,2) NOT NULL,
		gateway_amount BIGINT NOT NULL,
		currency CHAR(3) NOT NULL,
		platform_fee NUMERIC(14,2) NOT NULL,
		processor_fee NUMERIC(14,2) NOT NULL,
		organizer_net NUMERIC(14,2) NOT NULL,
		platform_fee_rate NUMERIC(8,6) NOT NULL,
		processor_fee_rate NUMERIC(8,6) NOT NULL,
		fee_bearer TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'success',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (reference, reservation_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_reference ON transactions(reference)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_event ON transactions(event_id)`,
	`CREATE TABLE IF NOT EXISTS payouts (
		id UUID PRIMARY KEY,
		event_id UUID NOT NULL REFERENCES events(id),
		organizer_id UUID NOT NULL,
		requested_by UUID NOT NULL,
		amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
		currency CHAR(3) NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'processing', 'paid', 'failed')),
		failure_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payouts_one_active
		ON payouts(event_id) WHERE status IN ('pending', 'processing')`,
	`CREATE TABLE IF NOT EXISTS platform_settings (
		id INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		platform_fee_percent NUMERIC(5,2) NOT NULL,
		processor_fee_percent NUMERIC(5,2) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_by TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		user_id UUID NOT NULL,
		role TEXT NOT NULL,
		granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, role)
	)`,
	`CREATE TABLE IF NOT EXISTS settlement_attempts (
		id UUID PRIMARY KEY,
		reference TEXT NOT NULL,
		source TEXT NOT NULL,
		outcome TEXT NOT NULL,
		tickets_issued INT NOT NULL DEFAULT 0,
		failures JSONB NOT NULL DEFAULT '[]',
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_settlement_attempts_reference ON settlement_attempts(reference)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload JSONB NOT NULL,
		topic TEXT NOT NULL,
		partition_key TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INT NOT NULL DEFAULT 0,
		max_retries INT NOT NULL DEFAULT 5,
		last_error TEXT,
		locked_until TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ,
		published_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_status_created ON outbox(status, created_at)`,
}

// Migrate creates the tables used by the service
func Migrate(ctx context.Context, db *database.PostgresDB) error {
	for i, stmt := range schema {
		if _, err := db.Pool().Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i, err)
		}
	}
	return nil
}
