package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatusSuccess is the only status the ledger records
const TransactionStatusSuccess = "success"

// Transaction is the ledger record of a settled reservation. Fee rates are
// snapshotted at settlement and never recomputed.
type Transaction struct {
	ID               string          `json:"id"`
	Reference        string          `json:"reference"`
	ReservationID    string          `json:"reservation_id"`
	EventID          string          `json:"event_id"`
	Amount           decimal.Decimal `json:"amount"`
	GatewayAmount    int64           `json:"gateway_amount"`
	Currency         string          `json:"currency"`
	PlatformFee      decimal.Decimal `json:"platform_fee"`
	ProcessorFee     decimal.Decimal `json:"processor_fee"`
	OrganizerNet     decimal.Decimal `json:"organizer_net"`
	PlatformFeeRate  decimal.Decimal `json:"platform_fee_rate"`
	ProcessorFeeRate decimal.Decimal `json:"processor_fee_rate"`
	FeeBearer        FeeBearer       `json:"fee_bearer"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
}
