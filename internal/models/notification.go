package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Типы событий, отправляемых в поток уведомлений
const (
	EventEscrowCreated      = "escrow.created"
	EventEscrowReleased     = "escrow.released"
	EventEscrowRefunded     = "escrow.refunded"
	EventEscrowDisputed     = "escrow.disputed"
	EventEscrowAutoReleased = "escrow.auto_released"
	EventPaymentUpdated     = "payment.updated"
	EventMilestoneCompleted = "milestone.completed"
	EventMilestoneApproved  = "milestone.approved"
	EventContractSigned     = "contract.signed"
	EventContractActivated  = "contract.activated"
	EventDisputeCreated     = "dispute.created"
	EventDisputeUpdated     = "dispute.updated"
	EventDisputeResolved    = "dispute.resolved"
)

// Notification описывает событие, отправленное пользователю.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
