package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

var ErrDisputeActive = apperror.New(apperror.ErrCodeInvalidState, "по проекту уже открыт спор")

// Dispute описывает спор одной стороны проекта против другой.
type Dispute struct {
	ID                uuid.UUID                   `db:"id" json:"id"`
	ProjectID         uuid.UUID                   `db:"project_id" json:"project_id"`
	EscrowID          *uuid.UUID                  `db:"escrow_id" json:"escrow_id,omitempty"`
	RaisedByID        uuid.UUID                   `db:"raised_by_id" json:"raised_by_id"`
	RespondentID      uuid.UUID                   `db:"respondent_id" json:"respondent_id"`
	ArbitratorID      *uuid.UUID                  `db:"arbitrator_id" json:"arbitrator_id,omitempty"`
	Type              valueobject.DisputeType     `db:"type" json:"type"`
	Title             string                      `db:"title" json:"title"`
	Description       string                      `db:"description" json:"description"`
	EvidenceURLs      pq.StringArray              `db:"evidence_urls" json:"evidence_urls"`
	Status            valueobject.DisputeStatus   `db:"status" json:"status"`
	Outcome           *valueobject.DisputeOutcome `db:"outcome" json:"outcome,omitempty"`
	ResolutionDetails *string                     `db:"resolution_details" json:"resolution_details,omitempty"`
	PaymentHeld       bool                        `db:"payment_held" json:"payment_held"`
	ResolvedAt        *time.Time                  `db:"resolved_at" json:"resolved_at,omitempty"`
	ClosedAt          *time.Time                  `db:"closed_at" json:"closed_at,omitempty"`
	CreatedAt         time.Time                   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time                   `db:"updated_at" json:"updated_at"`
}

// TransitionTo меняет статус спора по машине состояний.
func (d *Dispute) TransitionTo(next valueobject.DisputeStatus, now time.Time) error {
	if !d.Status.CanTransitionTo(next) {
		return apperror.Newf(apperror.ErrCodeInvalidState, "переход спора %s -> %s запрещён", d.Status, next)
	}
	d.Status = next
	d.UpdatedAt = now
	return nil
}

// Resolve выносит решение и снимает удержание выплат.
func (d *Dispute) Resolve(outcome valueobject.DisputeOutcome, details string, now time.Time) error {
	if !outcome.IsValid() {
		return apperror.New(apperror.ErrCodeValidation, "некорректный исход спора")
	}
	if err := d.TransitionTo(valueobject.DisputeStatusResolved, now); err != nil {
		return err
	}
	d.Outcome = &outcome
	if details != "" {
		d.ResolutionDetails = &details
	}
	d.PaymentHeld = false
	d.ResolvedAt = &now
	return nil
}

// IsParticipant сообщает, участвует ли пользователь в споре как сторона или арбитр.
func (d *Dispute) IsParticipant(userID uuid.UUID) bool {
	if userID == d.RaisedByID || userID == d.RespondentID {
		return true
	}
	return d.ArbitratorID != nil && *d.ArbitratorID == userID
}
