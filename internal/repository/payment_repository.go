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

const paymentColumns = `
	id, campaign_id, group_id, participant_id, payment_method,
	amount::text, fee_amount::text, total_amount::text,
	payment_status, payment_timeout,
	slip_image, transfer_date, transfer_time,
	admin_verified_by, admin_verified_at, admin_notes, paid_at,
	gateway_charge_id, failure_reason,
	refund_amount::text, refund_reason, refunded_at, refunded_by,
	created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p            domain.Payment
		method       string
		amount       string
		feeAmount    string
		totalAmount  string
		status       string
		refundAmount *string
	)

	err := row.Scan(
		&p.ID, &p.CampaignID, &p.GroupID, &p.ParticipantID, &method,
		&amount, &feeAmount, &totalAmount,
		&status, &p.PaymentTimeout,
		&p.SlipImage, &p.TransferDate, &p.TransferTime,
		&p.AdminVerifiedBy, &p.AdminVerifiedAt, &p.AdminNotes, &p.PaidAt,
		&p.GatewayChargeID, &p.FailureReason,
		&refundAmount, &p.RefundReason, &p.RefundedAt, &p.RefundedBy,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	if p.FeeAmount, err = decimal.NewFromString(feeAmount); err != nil {
		return nil, fmt.Errorf("failed to parse fee_amount: %w", err)
	}
	if p.TotalAmount, err = decimal.NewFromString(totalAmount); err != nil {
		return nil, fmt.Errorf("failed to parse total_amount: %w", err)
	}
	if refundAmount != nil {
		v, err := decimal.NewFromString(*refundAmount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse refund_amount: %w", err)
		}
		p.RefundAmount = &v
	}
	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	return &p, nil
}

func createPayment(ctx context.Context, q querier, p *domain.Payment) error {
	query := `
		INSERT INTO payments (
			campaign_id, group_id, participant_id, payment_method,
			amount, fee_amount, total_amount,
			payment_status, payment_timeout,
			slip_image, transfer_date, transfer_time, admin_notes,
			gateway_charge_id, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`

	err := q.QueryRow(ctx, query,
		p.CampaignID, p.GroupID, p.ParticipantID, string(p.Method),
		p.Amount.StringFixedBank(2), p.FeeAmount.StringFixedBank(2), p.TotalAmount.StringFixedBank(2),
		string(p.Status), p.PaymentTimeout,
		p.SlipImage, p.TransferDate, p.TransferTime, p.AdminNotes,
		p.GatewayChargeID, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func getPayment(ctx context.Context, q querier, id int64, forUpdate bool) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	p, err := scanPayment(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func getPaymentByParticipant(ctx context.Context, q querier, participantID int64) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE participant_id = $1 ORDER BY id DESC LIMIT 1`

	p, err := scanPayment(q.QueryRow(ctx, query, participantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment by participant: %w", err)
	}
	return p, nil
}

func updatePayment(ctx context.Context, q querier, p *domain.Payment) error {
	query := `
		UPDATE payments
		SET payment_status = $2,
		    slip_image = $3, transfer_date = $4, transfer_time = $5,
		    admin_verified_by = $6, admin_verified_at = $7, admin_notes = $8, paid_at = $9,
		    gateway_charge_id = $10, failure_reason = $11,
		    refund_amount = $12, refund_reason = $13, refunded_at = $14, refunded_by = $15,
		    updated_at = $16
		WHERE id = $1
	`

	var refundAmount *string
	if p.RefundAmount != nil {
		s := p.RefundAmount.StringFixedBank(2)
		refundAmount = &s
	}

	p.UpdatedAt = time.Now().UTC()
	tag, err := q.Exec(ctx, query, p.ID,
		string(p.Status),
		p.SlipImage, p.TransferDate, p.TransferTime,
		p.AdminVerifiedBy, p.AdminVerifiedAt, p.AdminNotes, p.PaidAt,
		p.GatewayChargeID, p.FailureReason,
		refundAmount, p.RefundReason, p.RefundedAt, p.RefundedBy,
		p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment %d not found", p.ID)
	}
	return nil
}

// listExpiredPendingPaymentIDs feeds the payment timeout sweep, using
// the (payment_status, payment_timeout) index.
func listExpiredPendingPaymentIDs(ctx context.Context, q querier, now time.Time, limit int) ([]int64, error) {
	query := `
		SELECT id FROM payments
		WHERE payment_status = 'pending' AND payment_timeout < $1
		ORDER BY payment_timeout ASC
		LIMIT $2
	`
	return collectIDs(ctx, q, query, now, limit)
}
