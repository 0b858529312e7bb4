package repository

import (
	"context"
	"time"

	"groupbuy-be/internal/domain"
)

// Store is the engine's view of persistent state. Read-only queries run
// against the pool; every mutation goes through WithTx so the calling
// service controls the transaction boundary and the row locks taken
// inside it.
type Store interface {
	// WithTx runs fn inside a single transaction; fn's Tx methods with
	// a ForUpdate suffix take pessimistic row locks held to commit.
	// Lock order is always campaign before group.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetCampaign(ctx context.Context, id int64) (*domain.Campaign, error)
	GetGroupByID(ctx context.Context, id int64) (*domain.Group, error)
	// GetGroupByCode resolves either a group code or a share token.
	GetGroupByCode(ctx context.Context, codeOrToken string) (*domain.Group, error)
	GetParticipant(ctx context.Context, id int64) (*domain.Participant, error)
	// ListGroupParticipants filters by status when status is non-empty.
	ListGroupParticipants(ctx context.Context, groupID int64, status domain.ParticipantStatus) ([]*domain.Participant, error)
	GetPayment(ctx context.Context, id int64) (*domain.Payment, error)
	// GetPaymentByParticipant returns the participant's latest payment.
	GetPaymentByParticipant(ctx context.Context, participantID int64) (*domain.Payment, error)

	// Sweep candidate queries. Each returns ids only; the sweep takes
	// the row lock and re-checks the precondition before acting.
	ListExpiredPendingPaymentIDs(ctx context.Context, now time.Time, limit int) ([]int64, error)
	ListAutoCancelCampaigns(ctx context.Context) ([]*domain.Campaign, error)
	ListOverduePendingParticipantIDs(ctx context.Context, campaignID int64, cutoff time.Time) ([]int64, error)
	ListExpiredActiveGroupIDs(ctx context.Context, now time.Time) ([]int64, error)
	ListRefundableGroupIDs(ctx context.Context) ([]int64, error)
}

// Tx exposes the transactional operations of the four aggregates.
type Tx interface {
	// Campaigns
	CreateCampaign(ctx context.Context, c *domain.Campaign) error
	GetCampaignForUpdate(ctx context.Context, id int64) (*domain.Campaign, error)
	UpdateCampaign(ctx context.Context, c *domain.Campaign) error
	// PaxUsed sums pax_count over active participants across
	// active and success groups of the campaign.
	PaxUsed(ctx context.Context, campaignID int64) (int, error)
	// HasActiveParticipantEmail backs the one-active-booking rule.
	HasActiveParticipantEmail(ctx context.Context, campaignID int64, email string) (bool, error)

	// Groups
	CreateGroup(ctx context.Context, g *domain.Group) error
	GetGroupForUpdate(ctx context.Context, id int64) (*domain.Group, error)
	GetGroupByCodeForUpdate(ctx context.Context, codeOrToken string) (*domain.Group, error)
	UpdateGroup(ctx context.Context, g *domain.Group) error
	GroupCodeExists(ctx context.Context, code string) (bool, error)
	ShareTokenExists(ctx context.Context, token string) (bool, error)

	// Participants
	CreateParticipant(ctx context.Context, p *domain.Participant) error
	GetParticipantForUpdate(ctx context.Context, id int64) (*domain.Participant, error)
	UpdateParticipant(ctx context.Context, p *domain.Participant) error
	ListActiveParticipants(ctx context.Context, groupID int64) ([]*domain.Participant, error)
	ListPaidParticipants(ctx context.Context, groupID int64) ([]*domain.Participant, error)
	// NextJoinOrder returns max(join_order)+1 over all rows of the
	// group, cancelled included, so orders are never reused.
	NextJoinOrder(ctx context.Context, groupID int64) (int, error)

	// Payments
	CreatePayment(ctx context.Context, p *domain.Payment) error
	GetPaymentForUpdate(ctx context.Context, id int64) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, p *domain.Payment) error
}
