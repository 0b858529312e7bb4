package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the payment lifecycle status. Legal sequences are
// pending → paid → refunded and pending → failed; nothing else.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusFailed   PaymentStatus = "failed"
)

// CanTransitionTo enforces the payment state machine.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusPaid || next == PaymentStatusFailed
	case PaymentStatusPaid:
		return next == PaymentStatusRefunded
	default:
		return false
	}
}

// PaymentMethod is how the deposit is settled.
type PaymentMethod string

const (
	PaymentMethodBank   PaymentMethod = "bank"
	PaymentMethodQR     PaymentMethod = "qr"
	PaymentMethodStripe PaymentMethod = "stripe"
	PaymentMethodManual PaymentMethod = "manual"
)

// RequiresSlip reports whether admin verification of an uploaded
// transfer slip is the settlement path for this method.
func (m PaymentMethod) RequiresSlip() bool {
	return m == PaymentMethodBank || m == PaymentMethodQR
}

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodBank, PaymentMethodQR, PaymentMethodStripe, PaymentMethodManual:
		return true
	}
	return false
}

// Payment is one settlement attempt attached to a participant.
type Payment struct {
	ID            int64 `json:"id"`
	CampaignID    int64 `json:"campaign_id"`
	GroupID       int64 `json:"group_id"`
	ParticipantID int64 `json:"participant_id"`

	Method PaymentMethod `json:"payment_method"`

	Amount      decimal.Decimal `json:"amount"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`

	Status PaymentStatus `json:"payment_status"`

	// PaymentTimeout is the absolute deadline; the payment sweep fails
	// the record once the canonical clock passes it.
	PaymentTimeout time.Time `json:"payment_timeout"`

	// Bank/QR verification artifacts.
	SlipImage       string     `json:"slip_image,omitempty"`
	TransferDate    string     `json:"transfer_date,omitempty"`
	TransferTime    string     `json:"transfer_time,omitempty"`
	AdminVerifiedBy string     `json:"admin_verified_by,omitempty"`
	AdminVerifiedAt *time.Time `json:"admin_verified_at,omitempty"`
	AdminNotes      string     `json:"admin_notes,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`

	// Gateway reference for card payments.
	GatewayChargeID string `json:"gateway_charge_id,omitempty"`

	FailureReason string `json:"failure_reason,omitempty"`

	RefundAmount *decimal.Decimal `json:"refund_amount,omitempty"`
	RefundReason string           `json:"refund_reason,omitempty"`
	RefundedAt   *time.Time       `json:"refunded_at,omitempty"`
	RefundedBy   string           `json:"refunded_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
