package valueobject

import "github.com/ignatzorin/escrow-engine/internal/pkg/apperror"

type ProjectStatus string

const (
	ProjectStatusPlanning   ProjectStatus = "planning"
	ProjectStatusPending    ProjectStatus = "pending"
	ProjectStatusAccepted   ProjectStatus = "accepted"
	ProjectStatusRejected   ProjectStatus = "rejected"
	ProjectStatusInProgress ProjectStatus = "in_progress"
	ProjectStatusCompleted  ProjectStatus = "completed"
	ProjectStatusCancelled  ProjectStatus = "cancelled"
	ProjectStatusDisputed   ProjectStatus = "disputed"
)

// Переходы, доступные через обычное обновление статуса.
// DISPUTED выставляется только созданием спора и снимается только его разрешением.
var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectStatusPlanning:   {ProjectStatusPending, ProjectStatusCancelled},
	ProjectStatusPending:    {ProjectStatusAccepted, ProjectStatusRejected, ProjectStatusCancelled},
	ProjectStatusAccepted:   {ProjectStatusInProgress, ProjectStatusCancelled},
	ProjectStatusInProgress: {ProjectStatusCompleted, ProjectStatusCancelled},
	ProjectStatusRejected:   {},
	ProjectStatusCompleted:  {},
	ProjectStatusCancelled:  {},
	ProjectStatusDisputed:   {},
}

func (s ProjectStatus) IsValid() bool {
	_, ok := projectTransitions[s]
	return ok
}

func (s ProjectStatus) CanTransitionTo(next ProjectStatus) bool {
	return contains(projectTransitions[s], next)
}

// IsTerminal сообщает, что проект закрыт и спор по нему открыть нельзя.
func (s ProjectStatus) IsTerminal() bool {
	return s == ProjectStatusRejected || s == ProjectStatusCompleted || s == ProjectStatusCancelled
}

func NewProjectStatus(status string) (ProjectStatus, error) {
	s := ProjectStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус проекта")
	}
	return s, nil
}

type ContractStatus string

const (
	ContractStatusDraft            ContractStatus = "draft"
	ContractStatusPendingSignature ContractStatus = "pending_signature"
	ContractStatusActive           ContractStatus = "active"
	ContractStatusCompleted        ContractStatus = "completed"
	ContractStatusTerminated       ContractStatus = "terminated"
	ContractStatusCancelled        ContractStatus = "cancelled"
)

// IsSignable сообщает, можно ли ещё ставить подписи.
func (s ContractStatus) IsSignable() bool {
	return s == ContractStatusDraft || s == ContractStatusPendingSignature
}

type MilestoneStatus string

const (
	MilestoneStatusPending    MilestoneStatus = "pending"
	MilestoneStatusInProgress MilestoneStatus = "in_progress"
	MilestoneStatusCompleted  MilestoneStatus = "completed"
	MilestoneStatusApproved   MilestoneStatus = "approved"
	MilestoneStatusPaid       MilestoneStatus = "paid"
)

type EscrowStatus string

const (
	EscrowStatusHeld              EscrowStatus = "held"
	EscrowStatusPartiallyReleased EscrowStatus = "partially_released"
	EscrowStatusReleased          EscrowStatus = "released"
	EscrowStatusRefunded          EscrowStatus = "refunded"
	EscrowStatusDisputed          EscrowStatus = "disputed"
	EscrowStatusCancelled         EscrowStatus = "cancelled"
)

type PaymentType string

const (
	PaymentTypeInitialDeposit PaymentType = "initial_deposit"
	PaymentTypeMilestone      PaymentType = "milestone"
	PaymentTypeFinal          PaymentType = "final"
	PaymentTypeRefund         PaymentType = "refund"
	PaymentTypePlatformFee    PaymentType = "platform_fee"
)

func (t PaymentType) IsValid() bool {
	switch t {
	case PaymentTypeInitialDeposit, PaymentTypeMilestone, PaymentTypeFinal, PaymentTypeRefund, PaymentTypePlatformFee:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted:  {PaymentStatusRefunded},
	PaymentStatusFailed:     {},
	PaymentStatusRefunded:   {},
	PaymentStatusCancelled:  {},
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return contains(paymentTransitions[s], next)
}

func (s PaymentStatus) IsTerminal() bool {
	return len(paymentTransitions[s]) == 0
}

type DisputeType string

const (
	DisputeTypeQualityIssue      DisputeType = "quality_issue"
	DisputeTypePaymentIssue      DisputeType = "payment_issue"
	DisputeTypeDelay             DisputeType = "delay"
	DisputeTypeScopeChange       DisputeType = "scope_change"
	DisputeTypeCommunication     DisputeType = "communication"
	DisputeTypeContractViolation DisputeType = "contract_violation"
	DisputeTypeOther             DisputeType = "other"
)

func (t DisputeType) IsValid() bool {
	switch t {
	case DisputeTypeQualityIssue, DisputeTypePaymentIssue, DisputeTypeDelay, DisputeTypeScopeChange,
		DisputeTypeCommunication, DisputeTypeContractViolation, DisputeTypeOther:
		return true
	}
	return false
}

type DisputeStatus string

const (
	DisputeStatusOpen             DisputeStatus = "open"
	DisputeStatusUnderReview      DisputeStatus = "under_review"
	DisputeStatusAwaitingEvidence DisputeStatus = "awaiting_evidence"
	DisputeStatusResolved         DisputeStatus = "resolved"
	DisputeStatusClosed           DisputeStatus = "closed"
)

var disputeTransitions = map[DisputeStatus][]DisputeStatus{
	DisputeStatusOpen:             {DisputeStatusUnderReview, DisputeStatusResolved},
	DisputeStatusUnderReview:      {DisputeStatusAwaitingEvidence, DisputeStatusResolved},
	DisputeStatusAwaitingEvidence: {DisputeStatusUnderReview, DisputeStatusResolved},
	DisputeStatusResolved:         {DisputeStatusClosed},
	DisputeStatusClosed:           {},
}

func (s DisputeStatus) CanTransitionTo(next DisputeStatus) bool {
	return contains(disputeTransitions[s], next)
}

// IsActive сообщает, что спор ещё не разрешён.
func (s DisputeStatus) IsActive() bool {
	return s == DisputeStatusOpen || s == DisputeStatusUnderReview || s == DisputeStatusAwaitingEvidence
}

type DisputeOutcome string

const (
	DisputeOutcomeFavorClient   DisputeOutcome = "favor_client"
	DisputeOutcomeFavorProvider DisputeOutcome = "favor_provider"
	DisputeOutcomeCompromise    DisputeOutcome = "compromise"
	DisputeOutcomeNoFault       DisputeOutcome = "no_fault"
	DisputeOutcomeCancelled     DisputeOutcome = "cancelled"
)

func (o DisputeOutcome) IsValid() bool {
	switch o {
	case DisputeOutcomeFavorClient, DisputeOutcomeFavorProvider, DisputeOutcomeCompromise,
		DisputeOutcomeNoFault, DisputeOutcomeCancelled:
		return true
	}
	return false
}

// ProjectStatusAfter возвращает статус проекта после разрешения спора.
// В пользу клиента проект отменяется, во всех остальных случаях работа продолжается.
func (o DisputeOutcome) ProjectStatusAfter() ProjectStatus {
	if o == DisputeOutcomeFavorClient {
		return ProjectStatusCancelled
	}
	return ProjectStatusInProgress
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
