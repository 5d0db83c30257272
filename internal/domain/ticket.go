package domain

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TicketStatus represents the status of an issued ticket
type TicketStatus string

const (
	TicketStatusValid     TicketStatus = "valid"
	TicketStatusUsed      TicketStatus = "used"
	TicketStatusCancelled TicketStatus = "cancelled"
)

// qrTokenBytes gives 256 bits of entropy per token
const qrTokenBytes = 32

// Ticket proves entitlement to admission
type Ticket struct {
	ID             string       `json:"id"`
	TierID         string       `json:"tier_id"`
	EventID        string       `json:"event_id"`
	ReservationID  string       `json:"reservation_id"`
	QRToken        string       `json:"qr_token"`
	Status         TicketStatus `json:"status"`
	OrderReference string       `json:"order_reference"`
	CreatedAt      time.Time    `json:"created_at"`
}

// NewQRToken returns an unguessable base64url token from crypto/rand
func NewQRToken() (string, error) {
	b := make([]byte, qrTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate qr token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewTickets issues one valid ticket per unit of the reservation
func NewTickets(res *Reservation, reference string) ([]*Ticket, error) {
	now := time.Now().UTC()
	tickets := make([]*Ticket, 0, res.Quantity)
	for i := 0; i < res.Quantity; i++ {
		token, err := NewQRToken()
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, &Ticket{
			ID:             uuid.New().String(),
			TierID:         res.TierID,
			EventID:        res.EventID,
			ReservationID:  res.ID,
			QRToken:        token,
			Status:         TicketStatusValid,
			OrderReference: reference,
			CreatedAt:      now,
		})
	}
	return tickets, nil
}
