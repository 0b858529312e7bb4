package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"groupbuy-be/internal/domain"
	"groupbuy-be/pkg/database"
)

// querier abstracts over *pgxpool.Pool and pgx.Tx so the same query
// code serves locked and unlocked reads.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	db *database.PostgresDB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *database.PostgresDB) *PostgresStore {
	return &PostgresStore{db: db}
}

// postgresTx implements Tx over an open pgx transaction.
type postgresTx struct {
	tx pgx.Tx
}

// WithTx runs fn in one transaction with rollback on error.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.db.RunInTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &postgresTx{tx: tx})
	})
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id int64) (*domain.Campaign, error) {
	return getCampaign(ctx, s.db.Pool, id, false)
}

func (s *PostgresStore) GetGroupByID(ctx context.Context, id int64) (*domain.Group, error) {
	return getGroupByID(ctx, s.db.Pool, id, false)
}

func (s *PostgresStore) GetGroupByCode(ctx context.Context, codeOrToken string) (*domain.Group, error) {
	return getGroupByCode(ctx, s.db.Pool, codeOrToken, false)
}

func (s *PostgresStore) GetParticipant(ctx context.Context, id int64) (*domain.Participant, error) {
	return getParticipant(ctx, s.db.Pool, id, false)
}

func (s *PostgresStore) ListGroupParticipants(ctx context.Context, groupID int64, status domain.ParticipantStatus) ([]*domain.Participant, error) {
	return listParticipants(ctx, s.db.Pool, groupID, status)
}

func (s *PostgresStore) GetPayment(ctx context.Context, id int64) (*domain.Payment, error) {
	return getPayment(ctx, s.db.Pool, id, false)
}

func (s *PostgresStore) GetPaymentByParticipant(ctx context.Context, participantID int64) (*domain.Payment, error) {
	return getPaymentByParticipant(ctx, s.db.Pool, participantID)
}

func (s *PostgresStore) ListExpiredPendingPaymentIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	return listExpiredPendingPaymentIDs(ctx, s.db.Pool, now, limit)
}

func (s *PostgresStore) ListAutoCancelCampaigns(ctx context.Context) ([]*domain.Campaign, error) {
	return listAutoCancelCampaigns(ctx, s.db.Pool)
}

func (s *PostgresStore) ListOverduePendingParticipantIDs(ctx context.Context, campaignID int64, cutoff time.Time) ([]int64, error) {
	return listOverduePendingParticipantIDs(ctx, s.db.Pool, campaignID, cutoff)
}

func (s *PostgresStore) ListExpiredActiveGroupIDs(ctx context.Context, now time.Time) ([]int64, error) {
	return listExpiredActiveGroupIDs(ctx, s.db.Pool, now)
}

func (s *PostgresStore) ListRefundableGroupIDs(ctx context.Context) ([]int64, error) {
	return listRefundableGroupIDs(ctx, s.db.Pool)
}

// Tx methods.

func (t *postgresTx) CreateCampaign(ctx context.Context, c *domain.Campaign) error {
	return createCampaign(ctx, t.tx, c)
}

func (t *postgresTx) GetCampaignForUpdate(ctx context.Context, id int64) (*domain.Campaign, error) {
	return getCampaign(ctx, t.tx, id, true)
}

func (t *postgresTx) UpdateCampaign(ctx context.Context, c *domain.Campaign) error {
	return updateCampaign(ctx, t.tx, c)
}

func (t *postgresTx) PaxUsed(ctx context.Context, campaignID int64) (int, error) {
	return paxUsed(ctx, t.tx, campaignID)
}

func (t *postgresTx) HasActiveParticipantEmail(ctx context.Context, campaignID int64, email string) (bool, error) {
	return hasActiveParticipantEmail(ctx, t.tx, campaignID, email)
}

func (t *postgresTx) CreateGroup(ctx context.Context, g *domain.Group) error {
	return createGroup(ctx, t.tx, g)
}

func (t *postgresTx) GetGroupForUpdate(ctx context.Context, id int64) (*domain.Group, error) {
	return getGroupByID(ctx, t.tx, id, true)
}

func (t *postgresTx) GetGroupByCodeForUpdate(ctx context.Context, codeOrToken string) (*domain.Group, error) {
	return getGroupByCode(ctx, t.tx, codeOrToken, true)
}

func (t *postgresTx) UpdateGroup(ctx context.Context, g *domain.Group) error {
	return updateGroup(ctx, t.tx, g)
}

func (t *postgresTx) GroupCodeExists(ctx context.Context, code string) (bool, error) {
	return groupCodeExists(ctx, t.tx, code)
}

func (t *postgresTx) ShareTokenExists(ctx context.Context, token string) (bool, error) {
	return shareTokenExists(ctx, t.tx, token)
}

func (t *postgresTx) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	return createParticipant(ctx, t.tx, p)
}

func (t *postgresTx) GetParticipantForUpdate(ctx context.Context, id int64) (*domain.Participant, error) {
	return getParticipant(ctx, t.tx, id, true)
}

func (t *postgresTx) UpdateParticipant(ctx context.Context, p *domain.Participant) error {
	return updateParticipant(ctx, t.tx, p)
}

func (t *postgresTx) ListActiveParticipants(ctx context.Context, groupID int64) ([]*domain.Participant, error) {
	return listParticipants(ctx, t.tx, groupID, domain.ParticipantStatusActive)
}

func (t *postgresTx) ListPaidParticipants(ctx context.Context, groupID int64) ([]*domain.Participant, error) {
	return listPaidParticipants(ctx, t.tx, groupID)
}

func (t *postgresTx) NextJoinOrder(ctx context.Context, groupID int64) (int, error) {
	return nextJoinOrder(ctx, t.tx, groupID)
}

func (t *postgresTx) CreatePayment(ctx context.Context, p *domain.Payment) error {
	return createPayment(ctx, t.tx, p)
}

func (t *postgresTx) GetPaymentForUpdate(ctx context.Context, id int64) (*domain.Payment, error) {
	return getPayment(ctx, t.tx, id, true)
}

func (t *postgresTx) UpdatePayment(ctx context.Context, p *domain.Payment) error {
	return updatePayment(ctx, t.tx, p)
}
