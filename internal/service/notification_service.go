package service

import (
	"context"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/repository"
	"go.uber.org/zap"
)

// NotificationService re-sends ticket notifications for settled reservations
type NotificationService interface {
	// ResendTickets enqueues a fresh tickets-issued message for a confirmed
	// reservation. Settlement state is not touched.
	ResendTickets(ctx context.Context, reservationID string) (*domain.OutboxMessage, error)
}

type notificationService struct {
	catalog     repository.CatalogRepository
	settlements repository.SettlementRepository
	outbox      repository.OutboxRepository
	reporter    ErrorReporter
	topic       string
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	catalog repository.CatalogRepository,
	settlements repository.SettlementRepository,
	outbox repository.OutboxRepository,
	reporter ErrorReporter,
	topic string,
) NotificationService {
	if reporter == nil {
		reporter = NewErrorReporter(nil)
	}
	if topic == "" {
		topic = "settlement.tickets-issued"
	}
	return &notificationService{
		catalog:     catalog,
		settlements: settlements,
		outbox:      outbox,
		reporter:    reporter,
		topic:       topic,
	}
}

// ResendTickets enqueues a fresh tickets-issued message
func (s *notificationService) ResendTickets(ctx context.Context, reservationID string) (*domain.OutboxMessage, error) {
	b, err := s.catalog.GetReservationBundle(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !b.Reservation.IsConfirmed() {
		return nil, domain.ErrTicketsNotFound
	}

	tickets, err := s.settlements.GetTicketsByReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, domain.ErrTicketsNotFound
	}

	msg, err := domain.NewTicketsIssuedMessage(s.topic, &domain.TicketsIssuedEvent{
		Reference:   tickets[0].OrderReference,
		Reservation: b.Reservation,
		Tickets:     tickets,
		Event:       b.Event,
		Tier:        b.Tier,
		Resend:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := s.outbox.Create(ctx, msg); err != nil {
		s.reporter.Report(ctx, "enqueue ticket resend", err, zap.String("reservation_id", reservationID))
		return nil, domain.NewPersistenceError("enqueue resend", err)
	}
	return msg, nil
}
