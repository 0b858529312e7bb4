package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateCampaignRequest is the admin payload for creating a campaign.
type CreateCampaignRequest struct {
	Name        string `json:"name"`
	ProductType string `json:"product_type"`

	RegularPrice decimal.Decimal `json:"regular_price"`
	GroupPrice   decimal.Decimal `json:"group_price"`

	MinParticipants int  `json:"min_participants"`
	MaxParticipants *int `json:"max_participants,omitempty"`

	CampaignStartDate time.Time `json:"campaign_start_date"`
	CampaignEndDate   time.Time `json:"campaign_end_date"`
	DurationHours     int       `json:"duration_hours"`

	TotalSlots *int `json:"total_slots,omitempty"`
	MaxPax     *int `json:"max_pax,omitempty"`

	AllowPartialPayment bool               `json:"allow_partial_payment"`
	PartialPaymentType  PartialPaymentType `json:"partial_payment_type,omitempty"`
	PartialPaymentValue *decimal.Decimal   `json:"partial_payment_value,omitempty"`

	AutoCancelEnabled   bool `json:"auto_cancel_enabled"`
	AutoCancelHours     int  `json:"auto_cancel_hours,omitempty"`
	AutoCancelSendEmail bool `json:"auto_cancel_send_email"`

	SpecialBookerCodes []string `json:"special_booker_codes,omitempty"`
}

// PersonInfo is the identity snapshot captured at group creation or
// join time.
type PersonInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// CreateGroupRequest opens a new group with the requester as leader.
type CreateGroupRequest struct {
	Leader          PersonInfo    `json:"leader"`
	PaxCount        int           `json:"pax_count"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	CustomGroupName string        `json:"custom_group_name,omitempty"`
	SpecialCode     string        `json:"special_code,omitempty"`
	CustomerID      *int64        `json:"customer_id,omitempty"`
}

// JoinGroupRequest joins an existing group by code or share token.
type JoinGroupRequest struct {
	Participant   PersonInfo    `json:"participant"`
	PaxCount      int           `json:"pax_count"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	SpecialCode   string        `json:"special_code,omitempty"`
}

// VerifyPaymentRequest is the admin payload marking a payment paid.
type VerifyPaymentRequest struct {
	Method       PaymentMethod `json:"payment_method"`
	SlipImage    string        `json:"slip_image,omitempty"`
	TransferDate string        `json:"transfer_date,omitempty"`
	TransferTime string        `json:"transfer_time,omitempty"`
	Notes        string        `json:"notes,omitempty"`
}

// RefundPaymentRequest is the admin payload issuing a refund. Amount
// defaults to the payment's total when nil.
type RefundPaymentRequest struct {
	Reason string           `json:"reason"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// CancelRequest carries the reason for an admin cancellation.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// GroupView is the public share-link representation of a group.
type GroupView struct {
	GroupCode            string       `json:"group_code"`
	CustomName           string       `json:"custom_name,omitempty"`
	CampaignID           int64        `json:"campaign_id"`
	CampaignName         string       `json:"campaign_name"`
	Status               GroupStatus  `json:"status"`
	CurrentParticipants  int          `json:"current_participants"`
	RequiredParticipants int          `json:"required_participants"`
	ExpiresAt            time.Time    `json:"expires_at"`
	Participants         []MemberView `json:"participants"`
}

// MemberView is the public per-participant slice of a GroupView.
type MemberView struct {
	Name          string        `json:"name"`
	IsLeader      bool          `json:"is_leader"`
	JoinOrder     int           `json:"join_order"`
	PaxCount      int           `json:"pax_count"`
	PaymentStatus PaymentStatus `json:"payment_status"`
}

// JoinResult is returned to the caller after a successful create/join.
type JoinResult struct {
	Group       *Group       `json:"group"`
	Participant *Participant `json:"participant"`
	Payment     *Payment     `json:"payment"`
}
