package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"groupbuy-be/internal/domain"
)

const groupColumns = `
	id, campaign_id, group_code, share_token, custom_name,
	leader_name, leader_email, leader_phone, leader_customer_id,
	current_participants, required_participants,
	status, created_at, expires_at, completed_at, cancelled_at`

func scanGroup(row pgx.Row) (*domain.Group, error) {
	var (
		g      domain.Group
		status string
	)

	err := row.Scan(
		&g.ID, &g.CampaignID, &g.GroupCode, &g.ShareToken, &g.CustomName,
		&g.LeaderName, &g.LeaderEmail, &g.LeaderPhone, &g.LeaderCustomerID,
		&g.CurrentParticipants, &g.RequiredParticipants,
		&status, &g.CreatedAt, &g.ExpiresAt, &g.CompletedAt, &g.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	g.Status = domain.GroupStatus(status)
	return &g, nil
}

func getGroupByID(ctx context.Context, q querier, id int64, forUpdate bool) (*domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	g, err := scanGroup(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

func getGroupByCode(ctx context.Context, q querier, codeOrToken string, forUpdate bool) (*domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE group_code = $1 OR share_token = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	g, err := scanGroup(q.QueryRow(ctx, query, codeOrToken))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group by code: %w", err)
	}
	return g, nil
}

func createGroup(ctx context.Context, q querier, g *domain.Group) error {
	query := `
		INSERT INTO groups (
			campaign_id, group_code, share_token, custom_name,
			leader_name, leader_email, leader_phone, leader_customer_id,
			current_participants, required_participants,
			status, created_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	err := q.QueryRow(ctx, query,
		g.CampaignID, g.GroupCode, g.ShareToken, g.CustomName,
		g.LeaderName, g.LeaderEmail, g.LeaderPhone, g.LeaderCustomerID,
		g.CurrentParticipants, g.RequiredParticipants,
		string(g.Status), g.CreatedAt, g.ExpiresAt,
	).Scan(&g.ID)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

func updateGroup(ctx context.Context, q querier, g *domain.Group) error {
	query := `
		UPDATE groups
		SET current_participants = $2, status = $3, completed_at = $4, cancelled_at = $5
		WHERE id = $1
	`

	tag, err := q.Exec(ctx, query, g.ID, g.CurrentParticipants, string(g.Status), g.CompletedAt, g.CancelledAt)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("group %d not found", g.ID)
	}
	return nil
}

func groupCodeExists(ctx context.Context, q querier, code string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM groups WHERE group_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check group code: %w", err)
	}
	return exists, nil
}

func shareTokenExists(ctx context.Context, q querier, token string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM groups WHERE share_token = $1)`, token).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check share token: %w", err)
	}
	return exists, nil
}

func listExpiredActiveGroupIDs(ctx context.Context, q querier, now time.Time) ([]int64, error) {
	query := `
		SELECT id FROM groups
		WHERE status = 'active' AND expires_at <= $1
		ORDER BY expires_at ASC
	`
	return collectIDs(ctx, q, query, now)
}

// listRefundableGroupIDs finds failed or cancelled groups that still
// hold a paid participant, for the auto-refund sweep.
func listRefundableGroupIDs(ctx context.Context, q querier) ([]int64, error) {
	query := `
		SELECT DISTINCT g.id
		FROM groups g
		JOIN participants p ON p.group_id = g.id
		WHERE g.status IN ('failed', 'cancelled') AND p.payment_status = 'paid'
	`
	return collectIDs(ctx, q, query)
}

func collectIDs(ctx context.Context, q querier, query string, args ...any) ([]int64, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
