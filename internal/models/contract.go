package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

var (
	ErrContractNotDraft    = apperror.New(apperror.ErrCodeInvalidState, "контракт можно изменять только в статусе черновика")
	ErrContractNotSignable = apperror.New(apperror.ErrCodeInvalidState, "контракт больше не принимает подписи")
	ErrContractNotActive   = apperror.New(apperror.ErrCodeInvalidState, "контракт не активен")
)

// Contract описывает договор по проекту (один на проект) с подписями обеих сторон.
type Contract struct {
	ID                uuid.UUID                  `db:"id" json:"id"`
	ProjectID         uuid.UUID                  `db:"project_id" json:"project_id"`
	Terms             string                     `db:"terms" json:"terms"`
	Amount            decimal.Decimal            `db:"amount" json:"amount"`
	StartDate         *time.Time                 `db:"start_date" json:"start_date,omitempty"`
	EndDate           *time.Time                 `db:"end_date" json:"end_date,omitempty"`
	Status            valueobject.ContractStatus `db:"status" json:"status"`
	ClientSigned      bool                       `db:"client_signed" json:"client_signed"`
	ClientSignedAt    *time.Time                 `db:"client_signed_at" json:"client_signed_at,omitempty"`
	ClientSignedIP    *string                    `db:"client_signed_ip" json:"client_signed_ip,omitempty"`
	ProviderSigned    bool                       `db:"provider_signed" json:"provider_signed"`
	ProviderSignedAt  *time.Time                 `db:"provider_signed_at" json:"provider_signed_at,omitempty"`
	ProviderSignedIP  *string                    `db:"provider_signed_ip" json:"provider_signed_ip,omitempty"`
	ContractStartDate *time.Time                 `db:"contract_start_date" json:"contract_start_date,omitempty"`
	TerminatedAt      *time.Time                 `db:"terminated_at" json:"terminated_at,omitempty"`
	TerminationReason *string                    `db:"termination_reason" json:"termination_reason,omitempty"`
	CreatedAt         time.Time                  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time                  `db:"updated_at" json:"updated_at"`
}

// ContractTerms содержит редактируемую часть контракта.
type ContractTerms struct {
	Terms     string          `json:"terms"`
	Amount    decimal.Decimal `json:"amount"`
	StartDate *time.Time      `json:"start_date,omitempty"`
	EndDate   *time.Time      `json:"end_date,omitempty"`
}

func (t ContractTerms) Validate() error {
	if t.Terms == "" {
		return apperror.New(apperror.ErrCodeValidation, "условия контракта обязательны")
	}
	if err := valueobject.RequirePositive(t.Amount); err != nil {
		return err
	}
	if t.StartDate != nil && t.EndDate != nil && t.EndDate.Before(*t.StartDate) {
		return apperror.New(apperror.ErrCodeValidation, "дата окончания раньше даты начала")
	}
	return nil
}

// ApplyTerms меняет условия черновика.
func (c *Contract) ApplyTerms(t ContractTerms, now time.Time) error {
	if c.Status != valueobject.ContractStatusDraft {
		return ErrContractNotDraft
	}
	if err := t.Validate(); err != nil {
		return err
	}
	c.Terms = t.Terms
	c.Amount = t.Amount
	c.StartDate = t.StartDate
	c.EndDate = t.EndDate
	c.UpdatedAt = now
	return nil
}

// Sign ставит подпись стороны проекта. Возвращает true, если контракт только что стал ACTIVE.
// Повторная подпись той же стороной ничего не меняет.
func (c *Contract) Sign(project *Project, signerID uuid.UUID, ip string, now time.Time) (bool, error) {
	if !project.IsParty(signerID) {
		return false, apperror.ErrNotParty
	}
	if !c.Status.IsSignable() {
		return false, ErrContractNotSignable
	}

	var signerIP *string
	if ip != "" {
		signerIP = &ip
	}

	switch signerID {
	case project.ClientID:
		if c.ClientSigned {
			return false, nil
		}
		c.ClientSigned = true
		c.ClientSignedAt = &now
		c.ClientSignedIP = signerIP
	case project.ProviderID:
		if c.ProviderSigned {
			return false, nil
		}
		c.ProviderSigned = true
		c.ProviderSignedAt = &now
		c.ProviderSignedIP = signerIP
	}

	c.UpdatedAt = now
	if c.ClientSigned && c.ProviderSigned {
		c.Status = valueobject.ContractStatusActive
		c.ContractStartDate = &now
		return true, nil
	}
	c.Status = valueobject.ContractStatusPendingSignature
	return false, nil
}
