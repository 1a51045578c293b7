package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы матча
const (
	MatchStatusPending   = "pending"
	MatchStatusAccepted  = "accepted"
	MatchStatusRejected  = "rejected"
	MatchStatusCancelled = "cancelled"
	MatchStatusCompleted = "completed"
)

// TerminalMatchStatuses — статусы, из которых обычные переходы невозможны.
var TerminalMatchStatuses = map[string]struct{}{
	MatchStatusRejected:  {},
	MatchStatusCancelled: {},
	MatchStatusCompleted: {},
}

// Match представляет одну заявку на участие во впечатлении: переговоры
// между хостом и заявителем. Строка матча — единственный источник правды
// о статусе брони; деньги живут только в леджере кошелька, матч хранит
// лишь ссылки на вызванные им транзакции.
type Match struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ExperienceID   uuid.UUID  `db:"experience_id" json:"experience_id"`
	HostID         uuid.UUID  `db:"host_id" json:"host_id"`
	RequesterID    uuid.UUID  `db:"requester_id" json:"requester_id"`
	ExperienceType string     `db:"experience_type" json:"experience_type"`
	Status         string     `db:"status" json:"status"`
	Participants   int        `db:"participants" json:"participants"`
	TotalPrice     *float64   `db:"total_price" json:"total_price,omitempty"`
	StartDate      *time.Time `db:"start_date" json:"start_date,omitempty"`
	CancelledBy    *uuid.UUID `db:"cancelled_by" json:"cancelled_by,omitempty"`
	// Процент и сумма возврата фиксируются при отмене для показа пользователю.
	RefundPercentage *int       `db:"refund_percentage" json:"refund_percentage,omitempty"`
	RefundAmount     *float64   `db:"refund_amount" json:"refund_amount,omitempty"`
	RejectReason     *string    `db:"reject_reason" json:"reject_reason,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// FeeApplies возвращает true, если при принятии этого матча взимается комиссия.
// Тип впечатления снимается в момент создания матча и дальше не меняется.
func (m *Match) FeeApplies() bool {
	return FeeApplies(m.ExperienceType)
}

// IsParticipant возвращает true, если пользователь — хост или заявитель матча.
func (m *Match) IsParticipant(userID uuid.UUID) bool {
	return m.HostID == userID || m.RequesterID == userID
}
