package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeSettings are the global fee percentages (4.0 means 4%)
type FeeSettings struct {
	PlatformFeePercent  decimal.Decimal `json:"platform_fee_percent"`
	ProcessorFeePercent decimal.Decimal `json:"processor_fee_percent"`
	UpdatedAt           time.Time       `json:"updated_at"`
	UpdatedBy           string          `json:"updated_by,omitempty"`
}

// Validate checks both percentages are within range
func (s *FeeSettings) Validate() error {
	hundred := decimal.NewFromInt(100)
	if s.PlatformFeePercent.IsNegative() || s.PlatformFeePercent.GreaterThanOrEqual(hundred) {
		return ErrInvalidFeeSettings
	}
	if s.ProcessorFeePercent.IsNegative() || s.ProcessorFeePercent.GreaterThanOrEqual(hundred) {
		return ErrInvalidFeeSettings
	}
	return nil
}

// Role is an authorization role granted to a user
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleOrganizer  Role = "organizer"
)

// UserRole is a row of the authorization table
type UserRole struct {
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	GrantedAt time.Time `json:"granted_at"`
}
