package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

// Milestone описывает этап проекта с собственной суммой.
type Milestone struct {
	ID                   int64                       `db:"id" json:"id"`
	ProjectID            uuid.UUID                   `db:"project_id" json:"project_id"`
	Title                string                      `db:"title" json:"title"`
	Description          *string                     `db:"description" json:"description,omitempty"`
	Sequence             int                         `db:"sequence" json:"sequence"`
	Amount               decimal.Decimal             `db:"amount" json:"amount"`
	DueDate              *time.Time                  `db:"due_date" json:"due_date,omitempty"`
	Status               valueobject.MilestoneStatus `db:"status" json:"status"`
	ClientApproved       bool                        `db:"client_approved" json:"client_approved"`
	ApprovedAt           *time.Time                  `db:"approved_at" json:"approved_at,omitempty"`
	PaymentReleased      bool                        `db:"payment_released" json:"payment_released"`
	PaidAt               *time.Time                  `db:"paid_at" json:"paid_at,omitempty"`
	EvidenceURLs         pq.StringArray              `db:"evidence_urls" json:"evidence_urls"`
	ActualCompletionDate *time.Time                  `db:"actual_completion_date" json:"actual_completion_date,omitempty"`
	CreatedAt            time.Time                   `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time                   `db:"updated_at" json:"updated_at"`
}

var ErrMilestoneAlreadyPaid = apperror.New(apperror.ErrCodeInvalidState, "этап уже оплачен")

// Start переводит этап в работу.
func (m *Milestone) Start(now time.Time) error {
	if m.Status != valueobject.MilestoneStatusPending {
		return apperror.New(apperror.ErrCodeInvalidState, "начать можно только ожидающий этап")
	}
	m.Status = valueobject.MilestoneStatusInProgress
	m.UpdatedAt = now
	return nil
}

// Complete фиксирует сдачу этапа исполнителем. Одобренный клиентом этап статус не теряет.
func (m *Milestone) Complete(evidence []string, now time.Time) error {
	if m.Status == valueobject.MilestoneStatusPaid {
		return ErrMilestoneAlreadyPaid
	}
	if m.ActualCompletionDate != nil {
		return apperror.New(apperror.ErrCodeInvalidState, "этап уже сдан")
	}
	m.EvidenceURLs = append(m.EvidenceURLs, evidence...)
	m.ActualCompletionDate = &now
	if !m.ClientApproved {
		m.Status = valueobject.MilestoneStatusCompleted
	}
	m.UpdatedAt = now
	return nil
}

// Approve фиксирует одобрение этапа клиентом.
func (m *Milestone) Approve(now time.Time) error {
	if m.Status == valueobject.MilestoneStatusPaid {
		return ErrMilestoneAlreadyPaid
	}
	if m.ClientApproved {
		return apperror.New(apperror.ErrCodeInvalidState, "этап уже одобрен")
	}
	m.ClientApproved = true
	m.ApprovedAt = &now
	m.Status = valueobject.MilestoneStatusApproved
	m.UpdatedAt = now
	return nil
}
