package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateProjectRequest создаёт проект после принятия заявки.
type CreateProjectRequest struct {
	ProviderID           uuid.UUID       `json:"provider_id" binding:"required"`
	BidID                *uuid.UUID      `json:"bid_id"`
	Title                string          `json:"title" binding:"required"`
	Description          *string         `json:"description"`
	TotalBudget          decimal.Decimal `json:"total_budget"`
	CommissionPercentage decimal.Decimal `json:"commission_percentage"`
}

type UpdateProjectStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// CreateEscrowRequest удерживает средства по проекту или этапу.
type CreateEscrowRequest struct {
	ProjectID       uuid.UUID       `json:"project_id" binding:"required"`
	MilestoneID     *int64          `json:"milestone_id"`
	PayeeID         uuid.UUID       `json:"payee_id" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
	AutoReleaseDays *int            `json:"auto_release_days"`
}

// EscrowMovementRequest описывает выплату или возврат части escrow.
type EscrowMovementRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason *string         `json:"reason"`
}

type CreateMilestoneRequest struct {
	Title       string          `json:"title" binding:"required"`
	Description *string         `json:"description"`
	Sequence    int             `json:"sequence"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     *time.Time      `json:"due_date"`
}

type EvidenceRequest struct {
	EvidenceURLs []string `json:"evidence_urls" binding:"required,min=1"`
}

type ContractTermsRequest struct {
	Terms     string          `json:"terms" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	StartDate *time.Time      `json:"start_date"`
	EndDate   *time.Time      `json:"end_date"`
}

type TerminateContractRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type CreatePaymentRequest struct {
	ProjectID   uuid.UUID       `json:"project_id" binding:"required"`
	MilestoneID *int64          `json:"milestone_id"`
	PayeeID     uuid.UUID       `json:"payee_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"payment_type" binding:"required"`
}

type ProcessPaymentRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	Gateway       string `json:"gateway" binding:"required"`
	PaymentMethod string `json:"payment_method"`
}

type FailPaymentRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type CreateDisputeRequest struct {
	Type         string   `json:"dispute_type" binding:"required"`
	Title        string   `json:"title" binding:"required"`
	Description  string   `json:"description" binding:"required"`
	EvidenceURLs []string `json:"evidence_urls"`
}

type AssignArbitratorRequest struct {
	ArbitratorID uuid.UUID `json:"arbitrator_id" binding:"required"`
}

type ResolveDisputeRequest struct {
	Outcome           string `json:"outcome" binding:"required"`
	ResolutionDetails string `json:"resolution_details" binding:"required"`
}

// SyncUserRequest содержит проекцию пользователя от провайдера идентификации.
type SyncUserRequest struct {
	Email    string `json:"email" binding:"required"`
	Role     string `json:"role" binding:"required"`
	IsActive *bool  `json:"is_active"`
}
