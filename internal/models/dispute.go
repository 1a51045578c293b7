package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Статусы спора
const (
	DisputeStatusOpen        = "open"
	DisputeStatusUnderReview = "under_review"
	DisputeStatusResolved    = "resolved"
	DisputeStatusClosed      = "closed"
)

// Исходы спора
const (
	ResolutionRefund        = "RESOLVED_REFUND"
	ResolutionPartialRefund = "RESOLVED_PARTIAL_REFUND"
	ResolutionNoRefund      = "RESOLVED_NO_REFUND"
	ResolutionClosed        = "CLOSED"
)

// Действия администратора над виновной стороной
const (
	AdminActionNone          = "none"
	AdminActionWarning       = "warning"
	AdminActionStrike        = "strike"
	AdminActionBan           = "ban"
	AdminActionRemoveContent = "remove_content"
)

// ValidAdminActions перечисляет допустимые действия администратора.
var ValidAdminActions = map[string]struct{}{
	AdminActionNone:          {},
	AdminActionWarning:       {},
	AdminActionStrike:        {},
	AdminActionBan:           {},
	AdminActionRemoveContent: {},
}

// Dispute представляет оспаривание исхода матча. На один матч может
// существовать не более одного незакрытого спора.
type Dispute struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	MatchID          uuid.UUID  `db:"match_id" json:"match_id"`
	OpenerID         uuid.UUID  `db:"opener_id" json:"opener_id"`
	Reason           string     `db:"reason" json:"reason"`
	Description      string     `db:"description" json:"description"`
	Status           string     `db:"status" json:"status"`
	Resolution       *string    `db:"resolution" json:"resolution,omitempty"`
	RefundPercentage *int       `db:"refund_percentage" json:"refund_percentage,omitempty"`
	AdminAction      *string    `db:"admin_action" json:"admin_action,omitempty"`
	AdminNotes       *string    `db:"admin_notes" json:"admin_notes,omitempty"`
	ResolvedBy       *uuid.UUID `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt       *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Terminal возвращает true, если спор уже разрешён или закрыт.
func (d *Dispute) Terminal() bool {
	return d.Status == DisputeStatusResolved || d.Status == DisputeStatusClosed
}

// DisputeMessage — сообщение в треде спора (участники и администратор).
type DisputeMessage struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DisputeID uuid.UUID `db:"dispute_id" json:"dispute_id"`
	SenderID  uuid.UUID `db:"sender_id" json:"sender_id"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

var (
	ErrUnknownResolution       = errors.New("unknown resolution kind")
	ErrInvalidRefundPercent    = errors.New("partial refund requires percentage strictly between 0 and 100")
	ErrUnexpectedRefundPercent = errors.New("refund percentage is only valid for refund resolutions")
)

// Resolution — закрытый набор исходов спора. Процент возврата обязателен
// только для возвратных вариантов и проверяется при конструировании,
// а не ветвлением в момент применения.
type Resolution struct {
	kind             string
	refundPercentage int
}

// NewRefundResolution — полный возврат, всегда 100%.
func NewRefundResolution() Resolution {
	return Resolution{kind: ResolutionRefund, refundPercentage: 100}
}

// NewPartialRefundResolution — частичный возврат, 0 < pct < 100.
func NewPartialRefundResolution(pct int) (Resolution, error) {
	if pct <= 0 || pct >= 100 {
		return Resolution{}, ErrInvalidRefundPercent
	}
	return Resolution{kind: ResolutionPartialRefund, refundPercentage: pct}, nil
}

// NewNoRefundResolution — спор решён без движения денег.
func NewNoRefundResolution() Resolution {
	return Resolution{kind: ResolutionNoRefund}
}

// NewClosedResolution — спор закрыт без рассмотрения по существу.
func NewClosedResolution() Resolution {
	return Resolution{kind: ResolutionClosed}
}

// ParseResolution собирает Resolution из сырых данных запроса администратора.
func ParseResolution(kind string, refundPercentage *int) (Resolution, error) {
	switch kind {
	case ResolutionRefund:
		if refundPercentage != nil && *refundPercentage != 100 {
			return Resolution{}, ErrUnexpectedRefundPercent
		}
		return NewRefundResolution(), nil
	case ResolutionPartialRefund:
		if refundPercentage == nil {
			return Resolution{}, ErrInvalidRefundPercent
		}
		return NewPartialRefundResolution(*refundPercentage)
	case ResolutionNoRefund:
		if refundPercentage != nil {
			return Resolution{}, ErrUnexpectedRefundPercent
		}
		return NewNoRefundResolution(), nil
	case ResolutionClosed:
		if refundPercentage != nil {
			return Resolution{}, ErrUnexpectedRefundPercent
		}
		return NewClosedResolution(), nil
	default:
		return Resolution{}, ErrUnknownResolution
	}
}

// Kind возвращает имя исхода.
func (r Resolution) Kind() string { return r.kind }

// RefundPercentage возвращает процент возврата (0 для невозвратных исходов).
func (r Resolution) RefundPercentage() int { return r.refundPercentage }

// RequiresRefund возвращает true, если исход подразумевает возврат денег.
func (r Resolution) RequiresRefund() bool {
	return r.kind == ResolutionRefund || r.kind == ResolutionPartialRefund
}

// FinalStatus возвращает терминальный статус спора для этого исхода.
func (r Resolution) FinalStatus() string {
	if r.kind == ResolutionClosed {
		return DisputeStatusClosed
	}
	return DisputeStatusResolved
}
