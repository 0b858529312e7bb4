// Package gateway is the boundary to the card-payment provider. Bank,
// QR and manual settlements never reach it; card charges and refunds
// do, after the local transaction has committed.
package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"groupbuy-be/pkg/logger"
)

// ChargeRequest asks the provider to capture a card payment. The
// payment id travels with the request so confirmations can be matched
// back to the record.
type ChargeRequest struct {
	PaymentID      int64
	Amount         decimal.Decimal
	Currency       string
	Description    string
	IdempotencyKey string
}

// ChargeResult is the provider's reference for a captured charge.
type ChargeResult struct {
	ChargeID string
}

// RefundRequest asks the provider to return a captured charge.
type RefundRequest struct {
	PaymentID      int64
	ChargeID       string
	Amount         decimal.Decimal
	Reason         string
	IdempotencyKey string
}

// Gateway is the card-provider contract. Implementations must treat
// the idempotency key as the dedup boundary; the engine may retry.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	RefundCharge(ctx context.Context, req RefundRequest) error
}

// NewIdempotencyKey mints a fresh provider-side dedup key.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

// Noop records intent without moving money. It backs bank, QR and
// manual methods, where the operator executes the transfer out of
// band, and stands in for the card provider in development.
type Noop struct {
	log *logger.Logger
}

func NewNoop(log *logger.Logger) *Noop {
	return &Noop{log: log}
}

func (g *Noop) CreateCharge(_ context.Context, req ChargeRequest) (*ChargeResult, error) {
	g.log.WithFields(map[string]interface{}{
		"payment_id": req.PaymentID,
		"amount":     req.Amount.StringFixedBank(2),
	}).Info("noop gateway charge recorded")
	return &ChargeResult{ChargeID: fmt.Sprintf("noop-%d-%s", req.PaymentID, req.IdempotencyKey)}, nil
}

func (g *Noop) RefundCharge(_ context.Context, req RefundRequest) error {
	g.log.WithFields(map[string]interface{}{
		"payment_id": req.PaymentID,
		"charge_id":  req.ChargeID,
		"amount":     req.Amount.StringFixedBank(2),
	}).Info("noop gateway refund recorded")
	return nil
}
