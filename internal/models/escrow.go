package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

// Типы записей журнала escrow
const (
	EscrowTxHold        = "hold"
	EscrowTxRelease     = "release"
	EscrowTxRefund      = "refund"
	EscrowTxDisputeHold = "dispute_hold"
)

var (
	ErrEscrowFrozen       = apperror.New(apperror.ErrCodeInvalidState, "escrow заморожен открытым спором")
	ErrEscrowSettled      = apperror.New(apperror.ErrCodeInvalidState, "escrow уже полностью рассчитан")
	ErrEscrowCancelled    = apperror.New(apperror.ErrCodeInvalidState, "escrow отменён")
	ErrMilestoneNotClosed = apperror.New(apperror.ErrCodeInvalidState, "этап не одобрен клиентом")
	ErrAutoReleaseNotDue  = apperror.New(apperror.ErrCodeInvalidState, "escrow не подлежит автоматическому освобождению")
)

// Escrow описывает удержание средств клиента по проекту и, опционально, этапу.
// Инвариант: held = released + refunded + remaining, remaining >= 0.
type Escrow struct {
	ID                 uuid.UUID                `db:"id" json:"id"`
	ProjectID          uuid.UUID                `db:"project_id" json:"project_id"`
	MilestoneID        *int64                   `db:"milestone_id" json:"milestone_id,omitempty"`
	PayerID            uuid.UUID                `db:"payer_id" json:"payer_id"`
	PayeeID            uuid.UUID                `db:"payee_id" json:"payee_id"`
	Amount             decimal.Decimal          `db:"amount" json:"amount"`
	HeldAmount         decimal.Decimal          `db:"held_amount" json:"held_amount"`
	ReleasedAmount     decimal.Decimal          `db:"released_amount" json:"released_amount"`
	RefundedAmount     decimal.Decimal          `db:"refunded_amount" json:"refunded_amount"`
	Status             valueobject.EscrowStatus `db:"status" json:"status"`
	AutoReleaseEnabled bool                     `db:"auto_release_enabled" json:"auto_release_enabled"`
	AutoReleaseDays    int                      `db:"auto_release_days" json:"auto_release_days"`
	ReleaseScheduledAt *time.Time               `db:"release_scheduled_at" json:"release_scheduled_at,omitempty"`
	ReleasedAt         *time.Time               `db:"released_at" json:"released_at,omitempty"`
	RefundedAt         *time.Time               `db:"refunded_at" json:"refunded_at,omitempty"`
	DisputedAt         *time.Time               `db:"disputed_at" json:"disputed_at,omitempty"`
	Version            int64                    `db:"version" json:"version"`
	CreatedAt          time.Time                `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time                `db:"updated_at" json:"updated_at"`
}

// EscrowTransaction представляет неизменяемую запись журнала движений по escrow.
type EscrowTransaction struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	EscrowID  uuid.UUID       `db:"escrow_id" json:"escrow_id"`
	ProjectID uuid.UUID       `db:"project_id" json:"project_id"`
	Type      string          `db:"type" json:"type"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Reason    *string         `db:"reason" json:"reason,omitempty"`
	ActorID   *uuid.UUID      `db:"actor_id" json:"actor_id,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// EscrowTotals содержит агрегаты по всем escrow проекта. Для отчётов, допускает устаревание.
type EscrowTotals struct {
	ProjectID uuid.UUID       `db:"project_id" json:"project_id"`
	Held      decimal.Decimal `db:"held" json:"held"`
	Released  decimal.Decimal `db:"released" json:"released"`
	Refunded  decimal.Decimal `db:"refunded" json:"refunded"`
	Remaining decimal.Decimal `db:"remaining" json:"remaining"`
}

// EscrowMovement описывает запрос на освобождение или возврат части escrow.
type EscrowMovement struct {
	EscrowID uuid.UUID
	Amount   decimal.Decimal
	Reason   *string
	ActorID  *uuid.UUID
	// RequireMilestoneApproval запрещает выплату по этапу, который клиент ещё не одобрил.
	RequireMilestoneApproval bool
	Now                      time.Time
}

// MovementGuard содержит состояние окружения escrow, прочитанное в той же транзакции.
type MovementGuard struct {
	DisputeHold          bool
	MilestoneApproved    bool
	CommissionPercentage decimal.Decimal
}

// MovementResult содержит итог движения: обновлённый escrow и записанный платёж.
type MovementResult struct {
	Escrow  *Escrow  `json:"escrow"`
	Payment *Payment `json:"payment"`
	// MilestonePaid: движение полностью оплатило этап.
	MilestonePaid bool `json:"milestone_paid"`
}

// NewEscrow создаёт escrow в статусе HELD с датой автоосвобождения now + days.
func NewEscrow(projectID uuid.UUID, milestoneID *int64, payerID, payeeID uuid.UUID, amount decimal.Decimal, autoReleaseDays int, now time.Time) (*Escrow, error) {
	if err := valueobject.RequirePositive(amount); err != nil {
		return nil, err
	}
	if autoReleaseDays < 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "срок автоосвобождения не может быть отрицательным")
	}

	scheduled := now.Add(time.Duration(autoReleaseDays) * 24 * time.Hour)
	return &Escrow{
		ID:                 uuid.New(),
		ProjectID:          projectID,
		MilestoneID:        milestoneID,
		PayerID:            payerID,
		PayeeID:            payeeID,
		Amount:             amount,
		HeldAmount:         amount,
		ReleasedAmount:     decimal.Zero,
		RefundedAmount:     decimal.Zero,
		Status:             valueobject.EscrowStatusHeld,
		AutoReleaseEnabled: true,
		AutoReleaseDays:    autoReleaseDays,
		ReleaseScheduledAt: &scheduled,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// Remaining возвращает нераспределённый остаток.
func (e *Escrow) Remaining() decimal.Decimal {
	return e.HeldAmount.Sub(e.ReleasedAmount).Sub(e.RefundedAmount)
}

// Verify сверяет сохранённый статус с суммами. Статус служит кэшем, ему нельзя верить без проверки.
func (e *Escrow) Verify() error {
	remaining := e.Remaining()
	if remaining.IsNegative() || e.ReleasedAmount.IsNegative() || e.RefundedAmount.IsNegative() {
		return fmt.Errorf("escrow %s: нарушен баланс held=%s released=%s refunded=%s",
			e.ID, e.HeldAmount, e.ReleasedAmount, e.RefundedAmount)
	}

	moved := e.ReleasedAmount.Add(e.RefundedAmount)
	var ok bool
	switch e.Status {
	case valueobject.EscrowStatusHeld:
		ok = moved.IsZero() && remaining.IsPositive()
	case valueobject.EscrowStatusPartiallyReleased:
		ok = moved.IsPositive() && remaining.IsPositive()
	case valueobject.EscrowStatusReleased:
		ok = remaining.IsZero() && e.ReleasedAmount.IsPositive()
	case valueobject.EscrowStatusRefunded:
		ok = remaining.IsZero() && e.RefundedAmount.IsPositive()
	case valueobject.EscrowStatusDisputed:
		ok = !e.AutoReleaseEnabled
	case valueobject.EscrowStatusCancelled:
		ok = true
	}
	if !ok {
		return fmt.Errorf("escrow %s: статус %s не соответствует суммам (remaining=%s)", e.ID, e.Status, remaining)
	}
	return nil
}

// CheckMovable проверяет, можно ли двигать средства прямо сейчас.
// disputeHold сообщает, есть ли по проекту спор, удерживающий выплаты.
func (e *Escrow) CheckMovable(disputeHold bool) error {
	if e.Status == valueobject.EscrowStatusCancelled {
		return ErrEscrowCancelled
	}
	if disputeHold {
		return ErrEscrowFrozen
	}
	return nil
}

// ApplyRelease освобождает amount в пользу получателя.
func (e *Escrow) ApplyRelease(amount decimal.Decimal, now time.Time) error {
	if err := valueobject.RequirePositive(amount); err != nil {
		return err
	}
	if amount.GreaterThan(e.Remaining()) {
		return apperror.Wrap(apperror.ErrInsufficientFunds, apperror.ErrCodeInsufficientFunds,
			fmt.Sprintf("запрошено %s, доступно %s", amount, e.Remaining()))
	}

	e.ReleasedAmount = e.ReleasedAmount.Add(amount)
	if e.Remaining().IsZero() {
		e.Status = valueobject.EscrowStatusReleased
		e.ReleasedAt = &now
	} else {
		e.Status = valueobject.EscrowStatusPartiallyReleased
	}
	e.touch(now)
	return nil
}

// ApplyRefund возвращает amount плательщику. Причина обязательна.
func (e *Escrow) ApplyRefund(amount decimal.Decimal, reason *string, now time.Time) error {
	if reason == nil || *reason == "" {
		return apperror.ErrMissingReason
	}
	if err := valueobject.RequirePositive(amount); err != nil {
		return err
	}
	if amount.GreaterThan(e.Remaining()) {
		return apperror.Wrap(apperror.ErrInsufficientFunds, apperror.ErrCodeInsufficientFunds,
			fmt.Sprintf("запрошено %s, доступно %s", amount, e.Remaining()))
	}

	e.RefundedAmount = e.RefundedAmount.Add(amount)
	if e.Remaining().IsZero() {
		e.Status = valueobject.EscrowStatusRefunded
		e.RefundedAt = &now
	} else {
		e.Status = valueobject.EscrowStatusPartiallyReleased
	}
	e.touch(now)
	return nil
}

// ApplyDisputeHold переводит escrow в DISPUTED и выключает автоосвобождение.
// Возвращает false, если escrow уже был в DISPUTED.
func (e *Escrow) ApplyDisputeHold(now time.Time) (bool, error) {
	if e.Status == valueobject.EscrowStatusDisputed {
		return false, nil
	}
	if e.Status == valueobject.EscrowStatusCancelled {
		return false, ErrEscrowCancelled
	}
	if !e.Remaining().IsPositive() {
		return false, ErrEscrowSettled
	}

	e.Status = valueobject.EscrowStatusDisputed
	e.AutoReleaseEnabled = false
	e.DisputedAt = &now
	e.touch(now)
	return true, nil
}

// Release проводит освобождение и готовит PENDING-платёж получателю.
func (e *Escrow) Release(m EscrowMovement, g MovementGuard) (*MovementResult, error) {
	if err := e.CheckMovable(g.DisputeHold); err != nil {
		return nil, err
	}
	if m.RequireMilestoneApproval && e.MilestoneID != nil && !g.MilestoneApproved {
		return nil, ErrMilestoneNotClosed
	}
	if err := e.ApplyRelease(m.Amount, m.Now); err != nil {
		return nil, err
	}

	paymentType := valueobject.PaymentTypeFinal
	if e.MilestoneID != nil {
		paymentType = valueobject.PaymentTypeMilestone
	}
	payment, err := NewPayment(e.ProjectID, e.MilestoneID, &e.ID, e.PayerID, e.PayeeID,
		m.Amount, paymentType, g.CommissionPercentage, m.Now)
	if err != nil {
		return nil, err
	}

	return &MovementResult{
		Escrow:        e,
		Payment:       payment,
		MilestonePaid: e.MilestoneID != nil && e.Status == valueobject.EscrowStatusReleased,
	}, nil
}

// Refund проводит возврат и готовит PENDING-платёж клиенту.
func (e *Escrow) Refund(m EscrowMovement, g MovementGuard) (*MovementResult, error) {
	if err := e.CheckMovable(g.DisputeHold); err != nil {
		return nil, err
	}
	if err := e.ApplyRefund(m.Amount, m.Reason, m.Now); err != nil {
		return nil, err
	}

	payment, err := NewPayment(e.ProjectID, e.MilestoneID, &e.ID, e.PayeeID, e.PayerID,
		m.Amount, valueobject.PaymentTypeRefund, g.CommissionPercentage, m.Now)
	if err != nil {
		return nil, err
	}
	return &MovementResult{Escrow: e, Payment: payment}, nil
}

// AutoRelease освобождает весь остаток по наступлении срока. Одобрение этапа не требуется.
func (e *Escrow) AutoRelease(reason string, now time.Time, g MovementGuard) (*MovementResult, error) {
	if !e.IsDueForAutoRelease(now) {
		return nil, ErrAutoReleaseNotDue
	}
	return e.Release(EscrowMovement{
		EscrowID: e.ID,
		Amount:   e.Remaining(),
		Reason:   &reason,
		Now:      now,
	}, g)
}

// IsDueForAutoRelease сообщает, пора ли автоматически освободить остаток.
func (e *Escrow) IsDueForAutoRelease(now time.Time) bool {
	return e.Status == valueobject.EscrowStatusHeld &&
		e.AutoReleaseEnabled &&
		e.ReleaseScheduledAt != nil &&
		!e.ReleaseScheduledAt.After(now)
}

func (e *Escrow) touch(now time.Time) {
	e.Version++
	e.UpdatedAt = now
}

// MarshalJSON добавляет вычисляемый остаток в ответ.
func (e Escrow) MarshalJSON() ([]byte, error) {
	type alias Escrow
	return json.Marshal(struct {
		alias
		RemainingAmount decimal.Decimal `json:"remaining_amount"`
	}{
		alias:           alias(e),
		RemainingAmount: e.Remaining(),
	})
}
