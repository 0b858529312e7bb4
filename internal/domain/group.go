package domain

import (
	"fmt"
	"time"
)

// GroupStatus is the group state-machine status. success, failed and
// cancelled are terminal.
type GroupStatus string

const (
	GroupStatusActive    GroupStatus = "active"
	GroupStatusSuccess   GroupStatus = "success"
	GroupStatusFailed    GroupStatus = "failed"
	GroupStatusCancelled GroupStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s GroupStatus) Terminal() bool {
	return s == GroupStatusSuccess || s == GroupStatusFailed || s == GroupStatusCancelled
}

// Group is a single collective-purchase attempt inside a campaign.
type Group struct {
	ID         int64  `json:"id"`
	CampaignID int64  `json:"campaign_id"`
	GroupCode  string `json:"group_code"`
	ShareToken string `json:"share_token"`
	CustomName string `json:"custom_name,omitempty"`

	// Leader identity snapshot taken at creation.
	LeaderName       string `json:"leader_name"`
	LeaderEmail      string `json:"leader_email"`
	LeaderPhone      string `json:"leader_phone"`
	LeaderCustomerID *int64 `json:"leader_customer_id,omitempty"`

	// CurrentParticipants counts active participant rows, not pax.
	// RequiredParticipants is a snapshot of campaign.min_participants.
	CurrentParticipants  int `json:"current_participants"`
	RequiredParticipants int `json:"required_participants"`

	Status      GroupStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	CancelledAt *time.Time  `json:"cancelled_at,omitempty"`
}

// Full reports whether the group reached its required head-count.
func (g *Group) Full() bool {
	return g.CurrentParticipants >= g.RequiredParticipants
}

// Expired reports whether the wait window elapsed; a join arriving
// exactly at expires_at is already too late.
func (g *Group) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// MasterReference is the downstream booking reference for the group.
// The group code already carries the GB- prefix.
func (g *Group) MasterReference() string {
	return g.GroupCode
}

// ParticipantReference is the downstream booking reference for one
// participant, keyed by join order.
func (g *Group) ParticipantReference(joinOrder int) string {
	return fmt.Sprintf("%s-P%d", g.GroupCode, joinOrder)
}
