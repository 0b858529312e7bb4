package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"groupbuy-be/internal/domain"
)

const participantColumns = `
	id, group_id, campaign_id,
	participant_name, participant_email, participant_phone,
	is_leader, join_order, pax_count,
	payment_id, payment_status, payment_amount::text, payment_date,
	status, cancel_reason, cancelled_at, created_at`

func scanParticipant(row pgx.Row) (*domain.Participant, error) {
	var (
		p             domain.Participant
		paymentStatus string
		paymentAmount string
		status        string
	)

	err := row.Scan(
		&p.ID, &p.GroupID, &p.CampaignID,
		&p.Name, &p.Email, &p.Phone,
		&p.IsLeader, &p.JoinOrder, &p.PaxCount,
		&p.PaymentID, &paymentStatus, &paymentAmount, &p.PaymentDate,
		&status, &p.CancelReason, &p.CancelledAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if p.PaymentAmount, err = decimal.NewFromString(paymentAmount); err != nil {
		return nil, fmt.Errorf("failed to parse payment_amount: %w", err)
	}
	p.PaymentStatus = domain.PaymentStatus(paymentStatus)
	p.Status = domain.ParticipantStatus(status)
	return &p, nil
}

func createParticipant(ctx context.Context, q querier, p *domain.Participant) error {
	query := `
		INSERT INTO participants (
			group_id, campaign_id,
			participant_name, participant_email, participant_phone,
			is_leader, join_order, pax_count,
			payment_id, payment_status, payment_amount, payment_date,
			status, cancel_reason, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`

	err := q.QueryRow(ctx, query,
		p.GroupID, p.CampaignID,
		p.Name, p.Email, p.Phone,
		p.IsLeader, p.JoinOrder, p.PaxCount,
		p.PaymentID, string(p.PaymentStatus), p.PaymentAmount.StringFixedBank(2), p.PaymentDate,
		string(p.Status), p.CancelReason, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create participant: %w", err)
	}
	return nil
}

func getParticipant(ctx context.Context, q querier, id int64, forUpdate bool) (*domain.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	p, err := scanParticipant(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

func updateParticipant(ctx context.Context, q querier, p *domain.Participant) error {
	query := `
		UPDATE participants
		SET payment_id = $2, payment_status = $3, payment_date = $4,
		    status = $5, cancel_reason = $6, cancelled_at = $7
		WHERE id = $1
	`

	tag, err := q.Exec(ctx, query, p.ID,
		p.PaymentID, string(p.PaymentStatus), p.PaymentDate,
		string(p.Status), p.CancelReason, p.CancelledAt)
	if err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("participant %d not found", p.ID)
	}
	return nil
}

// listParticipants returns a group's participants in join order,
// optionally filtered by status.
func listParticipants(ctx context.Context, q querier, groupID int64, status domain.ParticipantStatus) ([]*domain.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE group_id = $1`
	args := []any{groupID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY join_order ASC`

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []*domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func listPaidParticipants(ctx context.Context, q querier, groupID int64) ([]*domain.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants
		WHERE group_id = $1 AND payment_status = 'paid' ORDER BY join_order ASC`

	rows, err := q.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list paid participants: %w", err)
	}
	defer rows.Close()

	var participants []*domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func nextJoinOrder(ctx context.Context, q querier, groupID int64) (int, error) {
	var next int
	err := q.QueryRow(ctx,
		`SELECT COALESCE(MAX(join_order), 0) + 1 FROM participants WHERE group_id = $1`,
		groupID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to compute join order: %w", err)
	}
	return next, nil
}

func listOverduePendingParticipantIDs(ctx context.Context, q querier, campaignID int64, cutoff time.Time) ([]int64, error) {
	query := `
		SELECT id FROM participants
		WHERE campaign_id = $1 AND status = 'active'
		  AND payment_status = 'pending' AND created_at < $2
		ORDER BY created_at ASC
	`
	return collectIDs(ctx, q, query, campaignID, cutoff)
}
