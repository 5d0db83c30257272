package dto

import (
	"strings"
	"time"

	"github.com/mcofie/gatepass-settlement/internal/domain"
)

// AddonSelection is a chosen add-on in a request body
type AddonSelection struct {
	AddonID  string `json:"addon_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
}

// ToDomainAddons converts request add-ons
func ToDomainAddons(in []AddonSelection) []domain.AddonSelection {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.AddonSelection, 0, len(in))
	for _, a := range in {
		out = append(out, domain.AddonSelection{AddonID: a.AddonID, Quantity: a.Quantity})
	}
	return out
}

// VerifyPaymentRequest is the client's request to verify a payment and
// collect its tickets
type VerifyPaymentRequest struct {
	Reference      string           `json:"reference" binding:"required"`
	ReservationID  string           `json:"reservationId,omitempty"`
	ReservationIDs []string         `json:"reservationIds,omitempty"`
	Addons         []AddonSelection `json:"addons,omitempty" binding:"omitempty,dive"`
}

// IDs merges the single and list forms of the reservation ids
func (r *VerifyPaymentRequest) IDs() []string {
	ids := make([]string, 0, len(r.ReservationIDs)+1)
	if id := strings.TrimSpace(r.ReservationID); id != "" {
		ids = append(ids, id)
	}
	return append(ids, r.ReservationIDs...)
}

// TicketResponse is an issued ticket
type TicketResponse struct {
	ID             string              `json:"id"`
	TierID         string              `json:"tier_id"`
	EventID        string              `json:"event_id"`
	ReservationID  string              `json:"reservation_id"`
	QRToken        string              `json:"qr_token"`
	Status         domain.TicketStatus `json:"status"`
	OrderReference string              `json:"order_reference"`
	CreatedAt      time.Time           `json:"created_at"`
}

// FromTickets converts domain tickets
func FromTickets(tickets []*domain.Ticket) []*TicketResponse {
	out := make([]*TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, &TicketResponse{
			ID:             t.ID,
			TierID:         t.TierID,
			EventID:        t.EventID,
			ReservationID:  t.ReservationID,
			QRToken:        t.QRToken,
			Status:         t.Status,
			OrderReference: t.OrderReference,
			CreatedAt:      t.CreatedAt,
		})
	}
	return out
}

// FailureResponse explains one reservation that did not settle
type FailureResponse struct {
	ReservationID string `json:"reservation_id"`
	Code          string `json:"code"`
	Message       string `json:"message"`
}

// SettlementResponse is returned by the verify endpoint
type SettlementResponse struct {
	Reference string             `json:"reference"`
	State     string             `json:"state"`
	Tickets   []*TicketResponse  `json:"tickets"`
	Failures  []*FailureResponse `json:"failures,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// FromSettlementResult converts a settlement result
func FromSettlementResult(r *domain.SettlementResult) *SettlementResponse {
	resp := &SettlementResponse{
		Reference: r.Reference,
		State:     string(r.State),
		Tickets:   FromTickets(r.Tickets),
	}
	for _, f := range r.Failures {
		resp.Failures = append(resp.Failures, &FailureResponse{
			ReservationID: f.ReservationID,
			Code:          f.Code,
			Message:       f.Message,
		})
	}
	return resp
}

// WebhookEnvelope is the gateway's event body
type WebhookEnvelope struct {
	Event string      `json:"event"`
	Data  WebhookData `json:"data"`
}

// WebhookData is the part of the event the service reads. The rest of the
// payload is re-fetched from the gateway.
type WebhookData struct {
	Reference string `json:"reference"`
	Status    string `json:"status,omitempty"`
}

// EventChargeSuccess is the only webhook event that settles
const EventChargeSuccess = "charge.success"

// WebhookAck is the body of every accepted webhook
type WebhookAck struct {
	Received bool   `json:"received"`
	State    string `json:"state,omitempty"`
	Message  string `json:"message,omitempty"`
}
