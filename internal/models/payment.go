package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

// Payment описывает одно движение денег. Шлюз оплаты вне движка.
type Payment struct {
	ID            uuid.UUID                 `db:"id" json:"id"`
	ProjectID     uuid.UUID                 `db:"project_id" json:"project_id"`
	MilestoneID   *int64                    `db:"milestone_id" json:"milestone_id,omitempty"`
	EscrowID      *uuid.UUID                `db:"escrow_id" json:"escrow_id,omitempty"`
	PayerID       uuid.UUID                 `db:"payer_id" json:"payer_id"`
	PayeeID       uuid.UUID                 `db:"payee_id" json:"payee_id"`
	Type          valueobject.PaymentType   `db:"type" json:"type"`
	Amount        decimal.Decimal           `db:"amount" json:"amount"`
	PlatformFee   decimal.Decimal           `db:"platform_fee" json:"platform_fee"`
	NetAmount     decimal.Decimal           `db:"net_amount" json:"net_amount"`
	Status        valueobject.PaymentStatus `db:"status" json:"status"`
	TransactionID *string                   `db:"transaction_id" json:"transaction_id,omitempty"`
	Gateway       *string                   `db:"gateway" json:"gateway,omitempty"`
	PaymentMethod *string                   `db:"payment_method" json:"payment_method,omitempty"`
	PaymentDate   *time.Time                `db:"payment_date" json:"payment_date,omitempty"`
	FailureReason *string                   `db:"failure_reason" json:"failure_reason,omitempty"`
	RefundedAt    *time.Time                `db:"refunded_at" json:"refunded_at,omitempty"`
	CreatedAt     time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time                 `db:"updated_at" json:"updated_at"`
}

// NewPayment создаёт платёж в статусе PENDING с комиссией по проценту проекта.
func NewPayment(projectID uuid.UUID, milestoneID *int64, escrowID *uuid.UUID, payerID, payeeID uuid.UUID,
	amount decimal.Decimal, paymentType valueobject.PaymentType, commissionPct decimal.Decimal, now time.Time) (*Payment, error) {
	if !paymentType.IsValid() {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректный тип платежа")
	}
	if err := valueobject.RequirePositive(amount); err != nil {
		return nil, err
	}

	fee := valueobject.PercentOf(amount, commissionPct)

	return &Payment{
		ID:          uuid.New(),
		ProjectID:   projectID,
		MilestoneID: milestoneID,
		EscrowID:    escrowID,
		PayerID:     payerID,
		PayeeID:     payeeID,
		Type:        paymentType,
		Amount:      amount,
		PlatformFee: fee,
		NetAmount:   amount.Sub(fee),
		Status:      valueobject.PaymentStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// TransitionTo меняет статус по таблице переходов.
func (p *Payment) TransitionTo(next valueobject.PaymentStatus, now time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return apperror.Newf(apperror.ErrCodeInvalidState, "переход платежа %s -> %s запрещён", p.Status, next)
	}
	p.Status = next
	p.UpdatedAt = now
	switch next {
	case valueobject.PaymentStatusCompleted:
		p.PaymentDate = &now
	case valueobject.PaymentStatusRefunded:
		p.RefundedAt = &now
	}
	return nil
}
