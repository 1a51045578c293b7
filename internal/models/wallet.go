package models

import (
	"time"

	"github.com/google/uuid"
)

// Типы транзакций леджера
const (
	TransactionTypeTopUp       = "topup"
	TransactionTypePlatformFee = "platform_fee"
	TransactionTypeRefund      = "refund"
	TransactionTypePayout      = "payout"
)

// Статусы транзакций
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// WalletTransaction — неизменяемая запись леджера. Сумма знаковая:
// положительная — зачисление, отрицательная — списание. Исправление —
// это всегда новая транзакция (например возврат), никогда не правка старой.
type WalletTransaction struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	Type           string     `db:"type" json:"type"`
	Amount         float64    `db:"amount" json:"amount"`
	RelatedMatchID *uuid.UUID `db:"related_match_id" json:"related_match_id,omitempty"`
	Status         string     `db:"status" json:"status"`
	Description    *string    `db:"description" json:"description,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// UserBalance — кэшированная проекция леджера. Инвариант: баланс равен
// сумме завершённых транзакций пользователя; расхождение — повод для
// integrity_hold, а не для тихой корректировки.
type UserBalance struct {
	UserID        uuid.UUID `db:"user_id" json:"user_id"`
	Balance       float64   `db:"balance" json:"balance"`
	IntegrityHold bool      `db:"integrity_hold" json:"integrity_hold"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// LedgerAudit — результат сверки кэшированного баланса с леджером.
type LedgerAudit struct {
	ID            uuid.UUID `db:"id" json:"id"`
	UserID        uuid.UUID `db:"user_id" json:"user_id"`
	CachedBalance float64   `db:"cached_balance" json:"cached_balance"`
	LedgerBalance float64   `db:"ledger_balance" json:"ledger_balance"`
	Diverged      bool      `db:"diverged" json:"diverged"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
