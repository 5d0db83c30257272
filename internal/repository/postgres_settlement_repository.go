package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/pkg/database"
)

// PostgresSettlementRepository implements SettlementRepository using PostgreSQL
type PostgresSettlementRepository struct {
	db *database.PostgresDB
}

// NewPostgresSettlementRepository creates a new PostgreSQL settlement repository
func NewPostgresSettlementRepository(db *database.PostgresDB) *PostgresSettlementRepository {
	return &PostgresSettlementRepository{db: db}
}

const ticketColumns = `id, tier_id, event_id, reservation_id, qr_token, status, order_reference, created_at`

// FindTicketsByOrderReference returns tickets issued under a reference
func (r *PostgresSettlementRepository) FindTicketsByOrderReference(ctx context.Context, reference string) ([]*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE order_reference = $1 ORDER BY created_at, id`
	return r.queryTickets(ctx, query, reference)
}

// GetTicketsByReservation returns tickets issued for a reservation
func (r *PostgresSettlementRepository) GetTicketsByReservation(ctx context.Context, reservationID string) ([]*domain.Ticket, error) {
	if !isUUID(reservationID) {
		return nil, nil
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE reservation_id = $1 ORDER BY created_at, id`
	return r.queryTickets(ctx, query, reservationID)
}

// HasSuccessTransaction reports whether a success ledger row exists for a reference
func (r *PostgresSettlementRepository) HasSuccessTransaction(ctx context.Context, reference string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM transactions WHERE reference = $1 AND status = 'success')`

	var exists bool
	if err := r.db.Pool().QueryRow(ctx, query, reference).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check transaction: %w", err)
	}
	return exists, nil
}

// WithinTx runs fn in one database transaction
func (r *PostgresSettlementRepository) WithinTx(ctx context.Context, fn func(tx SettlementTx) error) error {
	return database.WithTx(ctx, r.db.Pool(), func(tx pgx.Tx) error {
		return fn(&pgSettlementTx{tx: tx})
	})
}

func (r *PostgresSettlementRepository) queryTickets(ctx context.Context, query string, arg string) ([]*domain.Ticket, error) {
	rows, err := r.db.Pool().Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*domain.Ticket
	for rows.Next() {
		t := &domain.Ticket{}
		var status string
		if err := rows.Scan(&t.ID, &t.TierID, &t.EventID, &t.ReservationID, &t.QRToken, &status, &t.OrderReference, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		t.Status = domain.TicketStatus(status)
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickets: %w", err)
	}
	return tickets, nil
}

// pgSettlementTx implements SettlementTx on a pgx transaction
type pgSettlementTx struct {
	tx pgx.Tx
}

func (t *pgSettlementTx) LockReservation(ctx context.Context, reservationID string) (*ReservationBundle, error) {
	if !isUUID(reservationID) {
		return nil, domain.ErrReservationNotFound
	}
	return scanBundle(t.tx.QueryRow(ctx, bundleQuery+` FOR UPDATE OF r`, reservationID))
}

func (t *pgSettlementTx) IncrementSold(ctx context.Context, tierID string, qty int) (bool, error) {
	query := `
		UPDATE ticket_tiers
		SET quantity_sold = quantity_sold + $2
		WHERE id = $1 AND quantity_sold + $2 <= total_quantity`

	result, err := t.tx.Exec(ctx, query, tierID, qty)
	if err != nil {
		return false, fmt.Errorf("failed to increment sold: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (t *pgSettlementTx) InsertTickets(ctx context.Context, tickets []*domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(tickets))
	for _, tk := range tickets {
		rows = append(rows, []any{
			tk.ID, tk.TierID, tk.EventID, tk.ReservationID, tk.QRToken, string(tk.Status), tk.OrderReference, tk.CreatedAt,
		})
	}

	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"tickets"},
		[]string{"id", "tier_id", "event_id", "reservation_id", "qr_token", "status", "order_reference", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to insert tickets: %w", err)
	}
	return nil
}

func (t *pgSettlementTx) IncrementDiscountUsage(ctx context.Context, discountID string) error {
	result, err := t.tx.Exec(ctx, `UPDATE discounts SET used_count = used_count + 1 WHERE id = $1`, discountID)
	if err != nil {
		return fmt.Errorf("failed to increment discount usage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrDiscountNotFound
	}
	return nil
}

func (t *pgSettlementTx) ConfirmReservation(ctx context.Context, reservationID string) (bool, error) {
	query := `
		UPDATE reservations
		SET status = 'confirmed', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'expired')`

	result, err := t.tx.Exec(ctx, query, reservationID)
	if err != nil {
		return false, fmt.Errorf("failed to confirm reservation: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (t *pgSettlementTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, reference, reservation_id, event_id, amount, gateway_amount, currency,
			platform_fee, processor_fee, organizer_net, platform_fee_rate, processor_fee_rate,
			fee_bearer, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5::numeric, $6, $7, $8::numeric, $9::numeric, $10::numeric,
			$11::numeric, $12::numeric, $13, $14, $15
		)`

	_, err := t.tx.Exec(ctx, query,
		txn.ID,
		txn.Reference,
		txn.ReservationID,
		txn.EventID,
		txn.Amount.String(),
		txn.GatewayAmount,
		txn.Currency,
		txn.PlatformFee.String(),
		txn.ProcessorFee.String(),
		txn.OrganizerNet.String(),
		txn.PlatformFeeRate.String(),
		txn.ProcessorFeeRate.String(),
		string(txn.FeeBearer),
		txn.Status,
		txn.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrAlreadySettled
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (t *pgSettlementTx) InsertOutbox(ctx context.Context, msg *domain.OutboxMessage) error {
	return insertOutbox(ctx, t.tx, msg)
}

// PostgresAttemptRepository implements AttemptRepository using PostgreSQL
type PostgresAttemptRepository struct {
	db *database.PostgresDB
}

// NewPostgresAttemptRepository creates a new PostgreSQL attempt repository
func NewPostgresAttemptRepository(db *database.PostgresDB) *PostgresAttemptRepository {
	return &PostgresAttemptRepository{db: db}
}

// RecordAttempt appends an audit row
func (r *PostgresAttemptRepository) RecordAttempt(ctx context.Context, a *domain.SettlementAttempt) error {
	failures, err := marshalFailures(a.Failures)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO settlement_attempts (id, reference, source, outcome, tickets_issued, failures, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.Pool().Exec(ctx, query,
		a.ID, a.Reference, string(a.Source), string(a.Outcome), a.TicketsIssued, failures, nullString(a.Error), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record settlement attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the attempts for a reference, oldest first
func (r *PostgresAttemptRepository) ListAttempts(ctx context.Context, reference string) ([]*domain.SettlementAttempt, error) {
	query := `
		SELECT id, reference, source, outcome, tickets_issued, failures, COALESCE(error, ''), created_at
		FROM settlement_attempts WHERE reference = $1 ORDER BY created_at`

	rows, err := r.db.Pool().Query(ctx, query, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlement attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.SettlementAttempt
	for rows.Next() {
		a := &domain.SettlementAttempt{}
		var source, outcome string
		var failures []byte
		if err := rows.Scan(&a.ID, &a.Reference, &source, &outcome, &a.TicketsIssued, &failures, &a.Error, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement attempt: %w", err)
		}
		a.Source = domain.SettlementSource(source)
		a.Outcome = domain.SettlementState(outcome)
		if a.Failures, err = unmarshalFailures(failures); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settlement attempts: %w", err)
	}
	return attempts, nil
}

func marshalFailures(failures []*domain.ReservationFailure) ([]byte, error) {
	if failures == nil {
		failures = []*domain.ReservationFailure{}
	}
	b, err := json.Marshal(failures)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal failures: %w", err)
	}
	return b, nil
}

func unmarshalFailures(b []byte) ([]*domain.ReservationFailure, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var failures []*domain.ReservationFailure
	if err := json.Unmarshal(b, &failures); err != nil {
		return nil, fmt.Errorf("invalid failures: %w", err)
	}
	if len(failures) == 0 {
		return nil, nil
	}
	return failures, nil
}

// Ensure the PostgreSQL repositories implement their interfaces
var (
	_ SettlementRepository = (*PostgresSettlementRepository)(nil)
	_ SettlementTx         = (*pgSettlementTx)(nil)
	_ AttemptRepository    = (*PostgresAttemptRepository)(nil)
)
