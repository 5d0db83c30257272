package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/fees"
	"github.com/mcofie/gatepass-settlement/internal/gateway"
	"github.com/mcofie/gatepass-settlement/internal/metrics"
	"github.com/mcofie/gatepass-settlement/internal/repository"
	"github.com/mcofie/gatepass-settlement/pkg/logger"
	"github.com/mcofie/gatepass-settlement/pkg/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SettlementService turns a successful payment into confirmed reservations,
// issued tickets and ledger entries. Every entry point goes through it.
type SettlementService interface {
	// Settle settles the reservations a verified transaction pays for.
	// Calling it again for the same reference writes nothing.
	Settle(ctx context.Context, req *SettleRequest) (*domain.SettlementResult, error)

	// VerifyAndSettle confirms the reference with the gateway, checks the
	// charged amount and settles
	VerifyAndSettle(ctx context.Context, req *VerifyRequest) (*domain.SettlementResult, error)

	// GetTicketsByReference returns the tickets issued under a reference
	GetTicketsByReference(ctx context.Context, reference string) ([]*domain.Ticket, error)
}

// SettleRequest is a settle call for an already verified transaction
type SettleRequest struct {
	Reference      string
	ReservationIDs []string
	// Transaction is the gateway's record; its metadata is the fallback
	// source of reservation ids
	Transaction *gateway.TransactionResult
	// Addons apply to the first reservation that resolves. When empty,
	// each reservation's stored selections are used.
	Addons []domain.AddonSelection
	Source domain.SettlementSource
}

// VerifyRequest is a settle call that still needs gateway verification
type VerifyRequest struct {
	Reference      string
	ReservationIDs []string
	Addons         []domain.AddonSelection
	Source         domain.SettlementSource
}

// SettlementServiceConfig contains configuration for the settlement service
type SettlementServiceConfig struct {
	TicketsIssuedTopic string
}

// settlementService implements SettlementService
type settlementService struct {
	catalog     repository.CatalogRepository
	settlements repository.SettlementRepository
	attempts    repository.AttemptRepository
	feeSettings repository.FeeSettingsRepository
	verifier    gateway.Verifier
	reporter    ErrorReporter
	topic       string
}

// NewSettlementService creates a new settlement service. attempts may be nil
// to disable the audit log.
func NewSettlementService(
	catalog repository.CatalogRepository,
	settlements repository.SettlementRepository,
	attempts repository.AttemptRepository,
	feeSettings repository.FeeSettingsRepository,
	verifier gateway.Verifier,
	reporter ErrorReporter,
	cfg *SettlementServiceConfig,
) SettlementService {
	topic := "settlement.tickets-issued"
	if cfg != nil && cfg.TicketsIssuedTopic != "" {
		topic = cfg.TicketsIssuedTopic
	}
	if reporter == nil {
		reporter = NewErrorReporter(nil)
	}
	return &settlementService{
		catalog:     catalog,
		settlements: settlements,
		attempts:    attempts,
		feeSettings: feeSettings,
		verifier:    verifier,
		reporter:    reporter,
		topic:       topic,
	}
}

// plan is one reservation's pre-read state, taken before any lock
type plan struct {
	reservationID string
	bundle        *repository.ReservationBundle
	addons        []fees.AddonLine
	rates         fees.Rates
	// quote is nil when the reservation is missing or not settleable
	quote *fees.Breakdown
	err   error
}

// Settle settles the reservations a verified transaction pays for
func (s *settlementService) Settle(ctx context.Context, req *SettleRequest) (*domain.SettlementResult, error) {
	return s.settle(ctx, req, nil)
}

// VerifyAndSettle confirms the reference with the gateway, checks the
// charged amount and settles
func (s *settlementService) VerifyAndSettle(ctx context.Context, req *VerifyRequest) (*domain.SettlementResult, error) {
	if req == nil || strings.TrimSpace(req.Reference) == "" {
		return nil, errors.New("reference is required")
	}
	if s.verifier == nil {
		return nil, &domain.VerificationError{Reference: req.Reference, Err: errors.New("no gateway configured")}
	}

	start := time.Now()
	txn, err := s.verifier.Verify(ctx, req.Reference)
	if err != nil {
		metrics.RecordGatewayVerify(ctx, s.verifier.Name(), "error", time.Since(start).Seconds())
		s.recordFailure(ctx, req.Reference, req.Source, err)
		return nil, err
	}
	metrics.RecordGatewayVerify(ctx, s.verifier.Name(), txn.Status, time.Since(start).Seconds())

	if !txn.IsSuccess() {
		err := &domain.VerificationFailed{Reference: req.Reference, Status: txn.Status}
		s.recordFailure(ctx, req.Reference, req.Source, err)
		return nil, err
	}

	settleReq := &SettleRequest{
		Reference:      req.Reference,
		ReservationIDs: req.ReservationIDs,
		Transaction:    txn,
		Addons:         req.Addons,
		Source:         req.Source,
	}
	return s.settle(ctx, settleReq, func(plans []*plan) error {
		return checkAmount(txn, plans)
	})
}

// GetTicketsByReference returns the tickets issued under a reference
func (s *settlementService) GetTicketsByReference(ctx context.Context, reference string) ([]*domain.Ticket, error) {
	tickets, err := s.settlements.FindTicketsByOrderReference(ctx, reference)
	if err != nil {
		return nil, domain.NewPersistenceError("find tickets", err)
	}
	if len(tickets) == 0 {
		return nil, domain.ErrTicketsNotFound
	}
	return tickets, nil
}

func (s *settlementService) settle(ctx context.Context, req *SettleRequest, check func([]*plan) error) (*domain.SettlementResult, error) {
	if req == nil || strings.TrimSpace(req.Reference) == "" {
		return nil, errors.New("reference is required")
	}

	ctx, span := telemetry.StartSpan(ctx, "settlement.settle")
	defer span.End()
	span.SetAttributes(
		attribute.String("settlement.reference", req.Reference),
		attribute.String("settlement.source", string(req.Source)),
	)

	done := metrics.SettlementStarted(ctx)
	defer done()
	start := time.Now()

	result, issued, err := s.run(ctx, req, check)

	outcome := domain.StateFailed
	if result != nil {
		outcome = result.State
	}
	metrics.RecordSettlement(ctx, string(req.Source), string(outcome), issued, time.Since(start).Seconds())
	s.recordAttempt(ctx, req, result, issued, err)

	log := logger.Get().With(
		zap.String("reference", req.Reference),
		zap.String("source", string(req.Source)),
		zap.String("outcome", string(outcome)),
	)
	if err != nil {
		span.RecordError(err)
		log.WarnContext(ctx, "settlement did not complete", zap.Error(err))
	} else {
		log.InfoContext(ctx, "settlement finished", zap.Int("tickets_issued", issued))
	}
	return result, err
}

// run executes the settlement algorithm and returns the number of newly issued tickets
func (s *settlementService) run(ctx context.Context, req *SettleRequest, check func([]*plan) error) (*domain.SettlementResult, int, error) {
	// Idempotency gate
	existing, err := s.settlements.FindTicketsByOrderReference(ctx, req.Reference)
	if err != nil {
		return nil, 0, domain.NewPersistenceError("idempotency check", err)
	}
	settledBefore := len(existing) > 0
	if !settledBefore {
		settledBefore, err = s.settlements.HasSuccessTransaction(ctx, req.Reference)
		if err != nil {
			return nil, 0, domain.NewPersistenceError("idempotency check", err)
		}
	}
	alreadySettled := &domain.SettlementResult{
		Reference: req.Reference,
		Success:   true,
		State:     domain.StateAlreadySettled,
		Tickets:   nonNilTickets(existing),
	}

	var metadata map[string]any
	if req.Transaction != nil {
		metadata = req.Transaction.Metadata
	}
	fallback := ""
	if req.Source == domain.SourceLegacyWebhook {
		fallback = req.Reference
	}
	ids := ResolveReservationIDs(req.ReservationIDs, metadata, fallback)
	if len(ids) == 0 {
		if settledBefore {
			return alreadySettled, 0, nil
		}
		return nil, 0, domain.ErrNoReservationsFound
	}

	plans, err := s.prepare(ctx, ids, req.Addons)
	if err != nil {
		return nil, 0, err
	}
	// The reference only short-circuits once every reservation it pays for is
	// confirmed; the rest go through the locked path again.
	if settledBefore && allConfirmed(plans) {
		return alreadySettled, 0, nil
	}
	if check != nil {
		if err := check(plans); err != nil {
			return nil, 0, err
		}
	}

	result := &domain.SettlementResult{
		Reference: req.Reference,
		Tickets:   []*domain.Ticket{},
	}
	var (
		issued       int
		newlySettled int
		already      int
		retryErr     error
	)
	for _, p := range plans {
		tickets, state, err := s.settleOne(ctx, req, p)
		switch {
		case err == nil:
			newlySettled++
			issued += len(tickets)
			result.Tickets = append(result.Tickets, tickets...)
			result.Settled = append(result.Settled, p.reservationID)
		case state == domain.StateAlreadySettled:
			already++
			result.Tickets = append(result.Tickets, tickets...)
			result.Settled = append(result.Settled, p.reservationID)
		default:
			if domain.IsRetryable(err) && retryErr == nil {
				retryErr = err
			}
			result.Failures = append(result.Failures, &domain.ReservationFailure{
				ReservationID: p.reservationID,
				State:         state,
				Code:          domain.ErrorCode(err),
				Message:       failureMessage(err),
			})
		}
	}

	switch {
	case newlySettled > 0:
		result.Success = true
		result.State = domain.StateSettled
	case already > 0:
		result.Success = true
		result.State = domain.StateAlreadySettled
	case allInventoryExceeded(result.Failures):
		result.State = domain.StateInventoryExceeded
	default:
		result.State = domain.StateFailed
	}

	// Returned alongside a partial result so the caller retries the rest
	if retryErr != nil {
		return result, issued, retryErr
	}
	return result, issued, nil
}

// prepare reads every reservation without locks, resolves fee rates once per
// event and prices the settleable ones
func (s *settlementService) prepare(ctx context.Context, ids []string, requestAddons []domain.AddonSelection) ([]*plan, error) {
	global, err := s.feeSettings.Get(ctx)
	if err != nil {
		return nil, domain.NewPersistenceError("load fee settings", err)
	}

	ratesByEvent := make(map[string]fees.Rates)
	addonsAssigned := false
	plans := make([]*plan, 0, len(ids))

	for _, id := range ids {
		p := &plan{reservationID: id}
		plans = append(plans, p)

		b, err := s.catalog.GetReservationBundle(ctx, id)
		if err != nil {
			if isLookupMiss(err) {
				p.err = domain.ErrReservationNotFound
				continue
			}
			return nil, domain.NewPersistenceError("load reservation", err)
		}
		p.bundle = b

		rates, ok := ratesByEvent[b.Event.ID]
		if !ok {
			rates = fees.Resolve(b.Event.PlatformFeePercent, *global)
			ratesByEvent[b.Event.ID] = rates
		}
		p.rates = rates

		selections := b.Reservation.Addons
		if len(requestAddons) > 0 {
			selections = nil
			if !addonsAssigned {
				selections = requestAddons
				addonsAssigned = true
			}
		}
		p.addons, err = s.addonLines(ctx, b.Event.ID, selections)
		if err != nil {
			return nil, err
		}

		if !b.Reservation.IsSettleable() {
			continue
		}
		p.quote, err = quoteBundle(b, rates, p.addons)
		if err != nil {
			p.err = err
		}
	}
	return plans, nil
}

func (s *settlementService) addonLines(ctx context.Context, eventID string, selections []domain.AddonSelection) ([]fees.AddonLine, error) {
	if len(selections) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(selections))
	for _, sel := range selections {
		ids = append(ids, sel.AddonID)
	}
	found, err := s.catalog.GetAddons(ctx, eventID, ids)
	if err != nil {
		return nil, domain.NewPersistenceError("load addons", err)
	}

	lines := make([]fees.AddonLine, 0, len(selections))
	for _, sel := range selections {
		addon, ok := found[sel.AddonID]
		if !ok {
			logger.Get().WarnContext(ctx, "ignoring unknown addon",
				zap.String("event_id", eventID),
				zap.String("addon_id", sel.AddonID),
			)
			continue
		}
		lines = append(lines, fees.AddonLine{Price: addon.Price, Quantity: sel.Quantity})
	}
	return lines, nil
}

// settleOne runs one reservation's unit of work
func (s *settlementService) settleOne(ctx context.Context, req *SettleRequest, p *plan) ([]*domain.Ticket, domain.SettlementState, error) {
	if p.err != nil {
		return nil, domain.StateFailed, p.err
	}

	var (
		issued []*domain.Ticket
		tierID string
	)
	err := s.settlements.WithinTx(ctx, func(tx repository.SettlementTx) error {
		b, err := tx.LockReservation(ctx, p.reservationID)
		if err != nil {
			return err
		}
		tierID = b.Tier.ID
		if b.Reservation.IsConfirmed() {
			return domain.ErrAlreadySettled
		}
		if !b.Reservation.IsSettleable() {
			return domain.ErrReservationNotSettleable
		}

		// Priced again from the locked row so the ledger matches what was sold
		quote, err := quoteBundle(b, p.rates, p.addons)
		if err != nil {
			return err
		}

		ok, err := tx.IncrementSold(ctx, b.Tier.ID, b.Reservation.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInventoryExceeded
		}

		tickets, err := domain.NewTickets(b.Reservation, req.Reference)
		if err != nil {
			return err
		}
		if err := tx.InsertTickets(ctx, tickets); err != nil {
			return err
		}

		if b.Discount != nil {
			if err := tx.IncrementDiscountUsage(ctx, b.Discount.ID); err != nil {
				return err
			}
		}

		confirmed, err := tx.ConfirmReservation(ctx, b.Reservation.ID)
		if err != nil {
			return err
		}
		if !confirmed {
			return domain.ErrAlreadySettled
		}

		if err := tx.InsertTransaction(ctx, newLedgerEntry(req, b, quote)); err != nil {
			return err
		}

		reservation := *b.Reservation
		reservation.Status = domain.ReservationStatusConfirmed
		msg, err := domain.NewTicketsIssuedMessage(s.topic, &domain.TicketsIssuedEvent{
			Reference:   req.Reference,
			Reservation: &reservation,
			Tickets:     tickets,
			Event:       b.Event,
			Tier:        b.Tier,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertOutbox(ctx, msg); err != nil {
			return err
		}

		issued = tickets
		return nil
	})

	switch {
	case err == nil:
		return issued, domain.StateSettled, nil
	case errors.Is(err, domain.ErrAlreadySettled):
		tickets, lookupErr := s.settlements.GetTicketsByReservation(ctx, p.reservationID)
		if lookupErr != nil {
			s.reporter.Report(ctx, "load settled tickets", lookupErr, zap.String("reservation_id", p.reservationID))
		}
		return tickets, domain.StateAlreadySettled, domain.ErrAlreadySettled
	case errors.Is(err, domain.ErrInventoryExceeded):
		metrics.RecordInventoryExceeded(ctx, tierID)
		return nil, domain.StateInventoryExceeded, err
	case isLookupMiss(err):
		return nil, domain.StateFailed, domain.ErrReservationNotFound
	case errors.Is(err, domain.ErrReservationNotSettleable),
		errors.Is(err, fees.ErrInvalidRate),
		errors.Is(err, fees.ErrInvalidQuantity):
		return nil, domain.StateFailed, err
	}
	return nil, domain.StateFailed, domain.NewPersistenceError("settle reservation", err)
}

func quoteBundle(b *repository.ReservationBundle, rates fees.Rates, addons []fees.AddonLine) (*fees.Breakdown, error) {
	return fees.Quote(fees.QuoteInput{
		UnitPrice: b.Tier.Price,
		Quantity:  b.Reservation.Quantity,
		Currency:  b.Tier.Currency,
		FeeBearer: b.Event.FeeBearer,
		Rates:     rates,
		Discount:  b.Discount,
		Addons:    addons,
	})
}

func newLedgerEntry(req *SettleRequest, b *repository.ReservationBundle, quote *fees.Breakdown) *domain.Transaction {
	var gatewayAmount int64
	if req.Transaction != nil {
		gatewayAmount = req.Transaction.Amount
	}
	return &domain.Transaction{
		ID:               newID(),
		Reference:        req.Reference,
		ReservationID:    b.Reservation.ID,
		EventID:          b.Event.ID,
		Amount:           quote.TotalCharge,
		GatewayAmount:    gatewayAmount,
		Currency:         quote.Currency,
		PlatformFee:      quote.PlatformFee,
		ProcessorFee:     quote.ProcessorFee,
		OrganizerNet:     quote.OrganizerNet,
		PlatformFeeRate:  quote.Rates.PlatformFeeRate,
		ProcessorFeeRate: quote.Rates.ProcessorFeeRate,
		FeeBearer:        quote.FeeBearer,
		Status:           domain.TransactionStatusSuccess,
		CreatedAt:        time.Now().UTC(),
	}
}

// checkAmount rejects underpayment and currency mismatch before anything is written
func checkAmount(txn *gateway.TransactionResult, plans []*plan) error {
	expected := decimal.Zero
	currency := ""
	for _, p := range plans {
		if p.quote == nil {
			continue
		}
		if currency == "" {
			currency = p.quote.Currency
		} else if !strings.EqualFold(currency, p.quote.Currency) {
			return fmt.Errorf("%w: reservations span %s and %s", domain.ErrAmountMismatch, currency, p.quote.Currency)
		}
		expected = expected.Add(p.quote.TotalCharge)
	}
	if currency == "" {
		return nil
	}

	if txn.Currency != "" && !strings.EqualFold(txn.Currency, currency) {
		return fmt.Errorf("%w: charged in %s, owed in %s", domain.ErrAmountMismatch, strings.ToUpper(txn.Currency), currency)
	}
	if owed := fees.ToMinor(expected, currency); txn.Amount < owed {
		return fmt.Errorf("%w: charged %d, owed %d minor units", domain.ErrAmountMismatch, txn.Amount, owed)
	}
	return nil
}

func (s *settlementService) recordAttempt(ctx context.Context, req *SettleRequest, result *domain.SettlementResult, issued int, err error) {
	if s.attempts == nil {
		return
	}
	attempt := &domain.SettlementAttempt{
		ID:            newID(),
		Reference:     req.Reference,
		Source:        req.Source,
		Outcome:       domain.StateFailed,
		TicketsIssued: issued,
		CreatedAt:     time.Now().UTC(),
	}
	if result != nil {
		attempt.Outcome = result.State
		attempt.Failures = result.Failures
	}
	if err != nil {
		attempt.Error = err.Error()
	}
	if recErr := s.attempts.RecordAttempt(ctx, attempt); recErr != nil {
		s.reporter.Report(ctx, "record settlement attempt", recErr, zap.String("reference", req.Reference))
	}
}

// recordFailure audits an attempt that failed before settlement started
func (s *settlementService) recordFailure(ctx context.Context, reference string, source domain.SettlementSource, err error) {
	metrics.RecordSettlement(ctx, string(source), string(domain.StateFailed), 0, 0)
	s.recordAttempt(ctx, &SettleRequest{Reference: reference, Source: source}, nil, 0, err)
}

// isLookupMiss reports a reservation whose row or joined rows are gone
func isLookupMiss(err error) bool {
	return errors.Is(err, domain.ErrReservationNotFound) ||
		errors.Is(err, domain.ErrTierNotFound) ||
		errors.Is(err, domain.ErrEventNotFound)
}

// allConfirmed reports whether every plan's reservation was already
// confirmed. Missing reservations count as not confirmed.
func allConfirmed(plans []*plan) bool {
	for _, p := range plans {
		if p.bundle == nil || !p.bundle.Reservation.IsConfirmed() {
			return false
		}
	}
	return true
}

func allInventoryExceeded(failures []*domain.ReservationFailure) bool {
	if len(failures) == 0 {
		return false
	}
	for _, f := range failures {
		if f.State != domain.StateInventoryExceeded {
			return false
		}
	}
	return true
}

// failureMessage is safe to show to customers: it never carries rates or ledger values
func failureMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInventoryExceeded):
		return "This ticket tier sold out before your payment completed."
	case errors.Is(err, domain.ErrReservationNotFound):
		return "Reservation not found."
	case errors.Is(err, domain.ErrReservationNotSettleable):
		return "Reservation was cancelled and cannot be settled."
	case domain.IsRetryable(err):
		return "Temporary problem while issuing tickets. Please retry."
	}
	return "Reservation could not be settled."
}

func nonNilTickets(tickets []*domain.Ticket) []*domain.Ticket {
	if tickets == nil {
		return []*domain.Ticket{}
	}
	return tickets
}
