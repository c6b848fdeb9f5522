package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

// Project описывает проект между клиентом и исполнителем. Ему принадлежат все денежные сущности.
type Project struct {
	ID                   uuid.UUID                 `db:"id" json:"id"`
	ClientID             uuid.UUID                 `db:"client_id" json:"client_id"`
	ProviderID           uuid.UUID                 `db:"provider_id" json:"provider_id"`
	BidID                *uuid.UUID                `db:"bid_id" json:"bid_id,omitempty"`
	Title                string                    `db:"title" json:"title"`
	Description          *string                   `db:"description" json:"description,omitempty"`
	TotalBudget          decimal.Decimal           `db:"total_budget" json:"total_budget"`
	CommissionPercentage decimal.Decimal           `db:"commission_percentage" json:"commission_percentage"`
	CommissionAmount     decimal.Decimal           `db:"commission_amount" json:"commission_amount"`
	ProviderAmount       decimal.Decimal           `db:"provider_amount" json:"provider_amount"`
	Status               valueobject.ProjectStatus `db:"status" json:"status"`
	CreatedAt            time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time                 `db:"updated_at" json:"updated_at"`
}

// NewProject создаёт проект в статусе PLANNING и раскладывает бюджет на комиссию и долю исполнителя.
func NewProject(clientID, providerID uuid.UUID, title string, budget, commissionPct decimal.Decimal, now time.Time) (*Project, error) {
	if clientID == providerID {
		return nil, apperror.New(apperror.ErrCodeValidation, "клиент и исполнитель должны быть разными пользователями")
	}
	if title == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "название проекта обязательно")
	}
	if err := valueobject.RequirePositive(budget); err != nil {
		return nil, err
	}
	if err := valueobject.ValidatePercentage(commissionPct); err != nil {
		return nil, err
	}

	split := valueobject.NewSplit(budget, commissionPct)
	return &Project{
		ID:                   uuid.New(),
		ClientID:             clientID,
		ProviderID:           providerID,
		Title:                title,
		TotalBudget:          budget,
		CommissionPercentage: commissionPct,
		CommissionAmount:     split.Commission,
		ProviderAmount:       split.Rest,
		Status:               valueobject.ProjectStatusPlanning,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// IsParty сообщает, является ли пользователь клиентом или исполнителем проекта.
func (p *Project) IsParty(userID uuid.UUID) bool {
	return userID == p.ClientID || userID == p.ProviderID
}

// Counterparty возвращает вторую сторону проекта для участника userID.
func (p *Project) Counterparty(userID uuid.UUID) (uuid.UUID, error) {
	switch userID {
	case p.ClientID:
		return p.ProviderID, nil
	case p.ProviderID:
		return p.ClientID, nil
	}
	return uuid.Nil, apperror.ErrNotParty
}
