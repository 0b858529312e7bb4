package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CampaignStatus is the campaign lifecycle status. A campaign moves to
// success exactly once, when a capacity limit is reached; there is no
// way back.
type CampaignStatus string

const (
	CampaignStatusActive  CampaignStatus = "active"
	CampaignStatusSuccess CampaignStatus = "success"
)

// PartialPaymentType selects how the join-time deposit is computed when
// partial payment is enabled.
type PartialPaymentType string

const (
	PartialPaymentFixed      PartialPaymentType = "fixed"
	PartialPaymentPercentage PartialPaymentType = "percentage"
	PartialPaymentFull       PartialPaymentType = "full"
)

// Campaign is the immutable configuration for a time-bounded group-buy
// offer. Pricing is stored as fixed-point decimals with two places.
type Campaign struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ProductType string `json:"product_type"`

	RegularPrice decimal.Decimal `json:"regular_price"`
	GroupPrice   decimal.Decimal `json:"group_price"`

	// MinParticipants is the head-count a single group needs to
	// succeed; MaxParticipants optionally caps the pax one group may
	// carry in total.
	MinParticipants int  `json:"min_participants"`
	MaxParticipants *int `json:"max_participants,omitempty"`

	CampaignStartDate time.Time `json:"campaign_start_date"`
	CampaignEndDate   time.Time `json:"campaign_end_date"`
	DurationHours     int       `json:"duration_hours"`

	// TotalSlots caps the number of successful groups the campaign can
	// fulfil; MaxPax caps aggregate head-count across live groups.
	TotalSlots     *int `json:"total_slots,omitempty"`
	AvailableSlots *int `json:"available_slots,omitempty"`
	MaxPax         *int `json:"max_pax,omitempty"`

	AllowPartialPayment bool               `json:"allow_partial_payment"`
	PartialPaymentType  PartialPaymentType `json:"partial_payment_type,omitempty"`
	PartialPaymentValue *decimal.Decimal   `json:"partial_payment_value,omitempty"`

	AutoCancelEnabled   bool `json:"auto_cancel_enabled"`
	AutoCancelHours     int  `json:"auto_cancel_hours"`
	AutoCancelSendEmail bool `json:"auto_cancel_send_email"`

	// SpecialBookerCodes exempt an email from the one-active-booking
	// rule; matched case-insensitively.
	SpecialBookerCodes []string `json:"special_booker_codes,omitempty"`

	Status    CampaignStatus `json:"status"`
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// DiscountPercentage derives the advertised discount from the two
// price points, rounded banker's to two places.
func (c *Campaign) DiscountPercentage() decimal.Decimal {
	if c.RegularPrice.IsZero() {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	return c.RegularPrice.Sub(c.GroupPrice).Div(c.RegularPrice).Mul(hundred).RoundBank(2)
}

// IsActiveNow reports whether new groups may be created right now:
// the campaign is active, not closed by capacity, and within its window.
func (c *Campaign) IsActiveNow(now time.Time) bool {
	if !c.IsActive || c.Status != CampaignStatusActive {
		return false
	}
	if now.Before(c.CampaignStartDate) {
		return false
	}
	if now.After(c.CampaignEndDate) {
		return false
	}
	return true
}

// HasSpecialCode matches a special-booker code case-insensitively.
func (c *Campaign) HasSpecialCode(code string) bool {
	if code == "" {
		return false
	}
	for _, sc := range c.SpecialBookerCodes {
		if strings.EqualFold(sc, code) {
			return true
		}
	}
	return false
}
