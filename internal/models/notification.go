package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// События, по которым ядро рассылает уведомления.
const (
	EventMatchRequested  = "match.requested"
	EventMatchAccepted   = "match.accepted"
	EventMatchRejected   = "match.rejected"
	EventMatchCancelled  = "match.cancelled"
	EventMatchCompleted  = "match.completed"
	EventDisputeOpened   = "dispute.opened"
	EventDisputeMessage  = "dispute.message"
	EventDisputeResolved = "dispute.resolved"
)

// Notification — сохранённое уведомление пользователя. Доставка — побочный
// эффект вне транзакции ядра: её сбой никогда не откатывает основную операцию.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
