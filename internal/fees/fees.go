// Package fees computes platform and processor fee splits. All arithmetic is
// exact decimal; values are rounded half-up to the currency's minor unit only
// when they become part of a Breakdown.
package fees

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrInvalidRate is returned for negative rates or a processor rate of 100% or more
var ErrInvalidRate = errors.New("invalid fee rate")

// ErrInvalidQuantity is returned for non-positive quantities
var ErrInvalidQuantity = errors.New("quantity must be positive")

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// zeroDecimalCurrencies have no minor unit
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"XOF": true,
	"XAF": true,
	"UGX": true,
}

// MinorUnitExponent returns the number of decimal places of a currency
func MinorUnitExponent(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// Round rounds half-up to the currency's minor unit
func Round(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(MinorUnitExponent(currency))
}

// ToMinor converts a major-unit amount into integer minor units (kobo, pesewas, cents)
func ToMinor(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(MinorUnitExponent(currency)).Round(0).IntPart()
}

// FromMinor converts integer minor units into a major-unit amount
func FromMinor(minor int64, currency string) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-MinorUnitExponent(currency))
}

// Rates are fractional fee rates (0.04 means 4%)
type Rates struct {
	PlatformFeeRate  decimal.Decimal `json:"platform_fee_rate"`
	ProcessorFeeRate decimal.Decimal `json:"processor_fee_rate"`
}

// Validate checks both rates are usable
func (r Rates) Validate() error {
	if r.PlatformFeeRate.IsNegative() || r.ProcessorFeeRate.IsNegative() {
		return fmt.Errorf("%w: rates must not be negative", ErrInvalidRate)
	}
	if r.ProcessorFeeRate.GreaterThanOrEqual(one) {
		return fmt.Errorf("%w: processor fee rate must be below 1", ErrInvalidRate)
	}
	return nil
}

// Resolve layers an event's platform fee override over the global settings
// and converts percentages into rates. The processor fee has no override.
func Resolve(eventOverride *decimal.Decimal, global domain.FeeSettings) Rates {
	platform := global.PlatformFeePercent
	if eventOverride != nil {
		platform = *eventOverride
	}
	return Rates{
		PlatformFeeRate:  platform.Div(hundred),
		ProcessorFeeRate: global.ProcessorFeePercent.Div(hundred),
	}
}

// Breakdown is the fee split of one charge
type Breakdown struct {
	Currency       string           `json:"currency"`
	FeeBearer      domain.FeeBearer `json:"fee_bearer"`
	Rates          Rates            `json:"rates"`
	TicketsTotal   decimal.Decimal  `json:"tickets_total"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	AddonsTotal    decimal.Decimal  `json:"addons_total"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	PlatformFee    decimal.Decimal  `json:"platform_fee"`
	ProcessorFee   decimal.Decimal  `json:"processor_fee"`
	TotalCharge    decimal.Decimal  `json:"total_charge"`
	OrganizerNet   decimal.Decimal  `json:"organizer_net"`
}

// ComputeFees splits a subtotal into platform fee, processor fee, charge and
// organizer net under the given fee bearer.
//
// When the customer bears fees the charge is solved so that the processor fee
// is the processor rate applied to the charge itself:
//
//	total = (subtotal + platformFee) / (1 - processorRate)
//
// The charge is rounded once, and the processor fee is derived from it so that
// subtotal + platformFee + processorFee == total exactly.
func ComputeFees(subtotal, platformFeeRate, processorFeeRate decimal.Decimal, bearer domain.FeeBearer, currency string) (*Breakdown, error) {
	rates := Rates{PlatformFeeRate: platformFeeRate, ProcessorFeeRate: processorFeeRate}
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	if subtotal.IsNegative() {
		return nil, errors.New("subtotal must not be negative")
	}

	// fees come from the exact subtotal; only the reported fields are rounded
	exactPlatform := subtotal.Mul(platformFeeRate)
	platformFee := Round(exactPlatform, currency)
	rounded := Round(subtotal, currency)

	b := &Breakdown{
		Currency:       strings.ToUpper(currency),
		FeeBearer:      bearer,
		Rates:          rates,
		TicketsTotal:   rounded,
		DiscountAmount: decimal.Zero,
		AddonsTotal:    decimal.Zero,
		Subtotal:       rounded,
		PlatformFee:    platformFee,
	}

	switch bearer {
	case domain.FeeBearerCustomer:
		total := Round(subtotal.Add(exactPlatform).Div(one.Sub(processorFeeRate)), currency)
		b.TotalCharge = total
		b.ProcessorFee = total.Sub(rounded).Sub(platformFee)
		b.OrganizerNet = rounded
	case domain.FeeBearerOrganizer:
		b.TotalCharge = rounded
		b.ProcessorFee = Round(subtotal.Mul(processorFeeRate), currency)
		b.OrganizerNet = rounded.Sub(platformFee).Sub(b.ProcessorFee)
	default:
		return nil, fmt.Errorf("unknown fee bearer %q", bearer)
	}

	return b, nil
}

// ApplyDiscount returns the discount amount and the discounted subtotal. The
// amount is clamped to [0, base] so the subtotal is never negative.
func ApplyDiscount(base decimal.Decimal, discountType domain.DiscountType, value decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	var amount decimal.Decimal
	switch discountType {
	case domain.DiscountTypeFixed:
		amount = value
	case domain.DiscountTypePercentage:
		amount = base.Mul(value).Div(hundred)
	default:
		amount = decimal.Zero
	}

	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if amount.GreaterThan(base) {
		amount = base
	}
	return amount, base.Sub(amount)
}

// AddonLine is a priced add-on and its quantity
type AddonLine struct {
	Price    decimal.Decimal
	Quantity int
}

// QuoteInput describes a purchase to price
type QuoteInput struct {
	UnitPrice decimal.Decimal
	Quantity  int
	Currency  string
	FeeBearer domain.FeeBearer
	Rates     Rates
	// Discount applies to the ticket portion only
	Discount *domain.Discount
	Addons   []AddonLine
}

// Quote prices tickets, discount and add-ons and splits the fees
func Quote(in QuoteInput) (*Breakdown, error) {
	if in.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	ticketsTotal := in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity)))

	discountAmount := decimal.Zero
	discounted := ticketsTotal
	if in.Discount != nil {
		discountAmount, discounted = ApplyDiscount(ticketsTotal, in.Discount.Type, in.Discount.Value)
	}

	addonsTotal := decimal.Zero
	for _, a := range in.Addons {
		if a.Quantity <= 0 {
			continue
		}
		addonsTotal = addonsTotal.Add(a.Price.Mul(decimal.NewFromInt(int64(a.Quantity))))
	}

	b, err := ComputeFees(discounted.Add(addonsTotal), in.Rates.PlatformFeeRate, in.Rates.ProcessorFeeRate, in.FeeBearer, in.Currency)
	if err != nil {
		return nil, err
	}

	b.TicketsTotal = Round(ticketsTotal, in.Currency)
	b.DiscountAmount = Round(discountAmount, in.Currency)
	b.AddonsTotal = Round(addonsTotal, in.Currency)
	return b, nil
}
