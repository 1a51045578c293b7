package repository

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/festmatch/festmatch-backend/internal/models"
	"github.com/festmatch/festmatch-backend/internal/repository/common"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrIntegrityHold     = errors.New("wallet is on integrity hold")
	ErrNonPositiveAmount = errors.New("amount must be positive")
)

// balanceEpsilon — допуск при сравнении кэшированного баланса с суммой
// леджера. Суммы храним в NUMERIC(12,2), так что расхождение меньше цента
// может появиться только из-за float64 на стороне Go.
const balanceEpsilon = 0.005

// FeePair — идентификаторы пары транзакций комиссии (хост + заявитель).
type FeePair struct {
	HostTxID      uuid.UUID `json:"host_tx_id"`
	RequesterTxID uuid.UUID `json:"requester_tx_id"`
}

// LedgerRepository хранит леджер кошельков: append-only журнал транзакций
// и кэшированный баланс на пользователя. Баланс — производная проекция,
// журнал — источник правды.
type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// GetBalance возвращает баланс пользователя, создаёт нулевой если не существует.
func (r *LedgerRepository) GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	var balance models.UserBalance
	query := `
		INSERT INTO user_balances (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		RETURNING user_id, balance, integrity_hold, updated_at
	`
	if err := r.db.GetContext(ctx, &balance, query, userID); err != nil {
		return nil, fmt.Errorf("ledger repository: get balance %w", err)
	}
	return &balance, nil
}

// Credit зачисляет средства: добавляет завершённую транзакцию и увеличивает
// кэшированный баланс. Сумма обязана быть положительной — это контракт
// леджера, а не только валидация вызывающих.
func (r *LedgerRepository) Credit(ctx context.Context, userID uuid.UUID, amount float64, txType string, matchID *uuid.UUID, description *string) (*models.WalletTransaction, error) {
	if amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	var created *models.WalletTransaction
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		created, err = creditTx(ctx, tx, userID, amount, txType, matchID, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Debit списывает средства: проверка достаточности и запись выполняются
// под блокировкой строки баланса, так что два конкурентных списания не
// могут пройти проверку по устаревшему балансу.
func (r *LedgerRepository) Debit(ctx context.Context, userID uuid.UUID, amount float64, txType string, matchID *uuid.UUID, description *string) (*models.WalletTransaction, error) {
	var created *models.WalletTransaction
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		balance, err := lockBalanceTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if balance.IntegrityHold {
			return ErrIntegrityHold
		}
		if balance.Balance < amount {
			return ErrInsufficientFunds
		}
		created, err = debitLockedTx(ctx, tx, userID, amount, txType, matchID, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ChargeFeePair списывает комиссию платформы с обеих сторон матча одной
// транзакцией: либо оба списания проходят, либо ни одно. Строки балансов
// блокируются в порядке возрастания id, чтобы два конкурентных принятия
// с пересекающимися парами пользователей не взаимоблокировались.
func (r *LedgerRepository) ChargeFeePair(ctx context.Context, hostID, requesterID, matchID uuid.UUID, fee float64) (*FeePair, error) {
	var pair *FeePair
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		pair, err = chargeFeePairTx(ctx, tx, hostID, requesterID, matchID, fee)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Reconcile пересчитывает баланс по журналу и сверяет с кэшем. Расхождение
// фиксируется в аудите и ставит integrity_hold: дальнейшие списания
// блокируются до вмешательства оператора, кэш не правится тихо.
func (r *LedgerRepository) Reconcile(ctx context.Context, userID uuid.UUID) (*models.LedgerAudit, error) {
	var audit models.LedgerAudit
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		balance, err := lockBalanceTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		var ledgerBalance float64
		err = tx.GetContext(ctx, &ledgerBalance, `
			SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions
			WHERE user_id = $1 AND status = 'completed'
		`, userID)
		if err != nil {
			return fmt.Errorf("ledger repository: reconcile sum %w", err)
		}

		diverged := math.Abs(balance.Balance-ledgerBalance) > balanceEpsilon

		err = tx.GetContext(ctx, &audit, `
			INSERT INTO ledger_audits (user_id, cached_balance, ledger_balance, diverged)
			VALUES ($1, $2, $3, $4)
			RETURNING id, user_id, cached_balance, ledger_balance, diverged, created_at
		`, userID, balance.Balance, ledgerBalance, diverged)
		if err != nil {
			return fmt.Errorf("ledger repository: reconcile audit %w", err)
		}

		if diverged {
			_, err = tx.ExecContext(ctx, `
				UPDATE user_balances SET integrity_hold = TRUE, updated_at = NOW()
				WHERE user_id = $1
			`, userID)
			if err != nil {
				return fmt.Errorf("ledger repository: reconcile hold %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &audit, nil
}

// ReleaseHold снимает integrity_hold после ручной проверки оператором.
func (r *LedgerRepository) ReleaseHold(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_balances SET integrity_hold = FALSE, updated_at = NOW()
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("ledger repository: release hold %w", err)
	}
	return nil
}

// ListTransactions возвращает историю транзакций пользователя, новые первыми.
// txType фильтрует по типу, пустая строка — без фильтра.
func (r *LedgerRepository) ListTransactions(ctx context.Context, userID uuid.UUID, txType string, limit, offset int) ([]models.WalletTransaction, error) {
	var transactions []models.WalletTransaction
	var err error
	if txType != "" {
		err = r.db.SelectContext(ctx, &transactions, `
			SELECT * FROM wallet_transactions
			WHERE user_id = $1 AND type = $2
			ORDER BY created_at DESC LIMIT $3 OFFSET $4
		`, userID, txType, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &transactions, `
			SELECT * FROM wallet_transactions
			WHERE user_id = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3
		`, userID, limit, offset)
	}
	return transactions, err
}

// ListBalanceUserIDs возвращает идентификаторы всех кошельков (для ночной сверки).
func (r *LedgerRepository) ListBalanceUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM user_balances ORDER BY user_id`)
	return ids, err
}

// lockBalanceTx создаёт строку баланса при необходимости и берёт на неё
// блокировку до конца транзакции.
func lockBalanceTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*models.UserBalance, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO user_balances (user_id, balance) VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger repository: ensure balance %w", err)
	}

	var balance models.UserBalance
	err = tx.GetContext(ctx, &balance, `
		SELECT user_id, balance, integrity_hold, updated_at
		FROM user_balances WHERE user_id = $1 FOR UPDATE
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger repository: lock balance %w", err)
	}
	return &balance, nil
}

// creditTx вставляет завершённое зачисление и увеличивает кэшированный баланс.
// Используется также репозиториями матчей и споров внутри их транзакций.
func creditTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount float64, txType string, matchID *uuid.UUID, description *string) (*models.WalletTransaction, error) {
	if amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if _, err := lockBalanceTx(ctx, tx, userID); err != nil {
		return nil, err
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE user_balances SET balance = balance + $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("ledger repository: credit balance %w", err)
	}

	var transaction models.WalletTransaction
	err = tx.GetContext(ctx, &transaction, `
		INSERT INTO wallet_transactions (user_id, type, amount, related_match_id, status, description)
		VALUES ($1, $2, $3, $4, 'completed', $5)
		RETURNING *
	`, userID, txType, amount, matchID, description)
	if err != nil {
		return nil, fmt.Errorf("ledger repository: credit transaction %w", err)
	}
	return &transaction, nil
}

// debitLockedTx записывает списание. Вызывающий обязан уже держать блокировку
// строки баланса и проверить достаточность средств.
func debitLockedTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount float64, txType string, matchID *uuid.UUID, description *string) (*models.WalletTransaction, error) {
	_, err := tx.ExecContext(ctx, `
		UPDATE user_balances SET balance = balance - $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("ledger repository: debit balance %w", err)
	}

	var transaction models.WalletTransaction
	err = tx.GetContext(ctx, &transaction, `
		INSERT INTO wallet_transactions (user_id, type, amount, related_match_id, status, description)
		VALUES ($1, $2, $3, $4, 'completed', $5)
		RETURNING *
	`, userID, txType, -amount, matchID, description)
	if err != nil {
		return nil, fmt.Errorf("ledger repository: debit transaction %w", err)
	}
	return &transaction, nil
}

// chargeFeePairTx — ядро двустороннего списания комиссии. Блокировки берутся
// в порядке возрастания user id; при нехватке средств у любой из сторон вся
// операция откатывается без единой записи в журнал.
func chargeFeePairTx(ctx context.Context, tx *sqlx.Tx, hostID, requesterID, matchID uuid.UUID, fee float64) (*FeePair, error) {
	first, second := hostID, requesterID
	if second.String() < first.String() {
		first, second = second, first
	}

	for _, id := range []uuid.UUID{first, second} {
		balance, err := lockBalanceTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if balance.IntegrityHold {
			return nil, ErrIntegrityHold
		}
		if balance.Balance < fee {
			return nil, ErrInsufficientFunds
		}
	}

	desc := "Комиссия платформы за принятый матч"
	hostTx, err := debitLockedTx(ctx, tx, hostID, fee, models.TransactionTypePlatformFee, &matchID, &desc)
	if err != nil {
		return nil, err
	}
	requesterTx, err := debitLockedTx(ctx, tx, requesterID, fee, models.TransactionTypePlatformFee, &matchID, &desc)
	if err != nil {
		return nil, err
	}

	return &FeePair{HostTxID: hostTx.ID, RequesterTxID: requesterTx.ID}, nil
}
