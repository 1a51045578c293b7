package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/festmatch/festmatch-backend/internal/logger"
	"github.com/festmatch/festmatch-backend/internal/models"
	"github.com/festmatch/festmatch-backend/internal/pkg/apperror"
	"github.com/festmatch/festmatch-backend/internal/repository"
)

var ErrBelowMinimum = errors.New("amount is below the minimum top-up")

// LedgerRepository описывает взаимодействие сервиса с леджером кошельков.
type LedgerRepository interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error)
	Credit(ctx context.Context, userID uuid.UUID, amount float64, txType string, matchID *uuid.UUID, description *string) (*models.WalletTransaction, error)
	Debit(ctx context.Context, userID uuid.UUID, amount float64, txType string, matchID *uuid.UUID, description *string) (*models.WalletTransaction, error)
	ChargeFeePair(ctx context.Context, hostID, requesterID, matchID uuid.UUID, fee float64) (*repository.FeePair, error)
	Reconcile(ctx context.Context, userID uuid.UUID) (*models.LedgerAudit, error)
	ReleaseHold(ctx context.Context, userID uuid.UUID) error
	ListTransactions(ctx context.Context, userID uuid.UUID, txType string, limit, offset int) ([]models.WalletTransaction, error)
	ListBalanceUserIDs(ctx context.Context) ([]uuid.UUID, error)
}

// WalletConfig — платёжные константы платформы.
type WalletConfig struct {
	// MinTopUp — минимальная сумма пополнения.
	MinTopUp float64
	// PlatformFee — фиксированная комиссия, списываемая с каждой стороны
	// при принятии матча.
	PlatformFee float64
}

// WalletService задаёт бизнес-правила над леджером: минимальное пополнение,
// размер комиссии, проверка платёжеспособности.
type WalletService struct {
	repo LedgerRepository
	cfg  WalletConfig
}

// NewWalletService создаёт сервис кошелька.
func NewWalletService(repo LedgerRepository, cfg WalletConfig) *WalletService {
	return &WalletService{repo: repo, cfg: cfg}
}

// PlatformFee возвращает размер комиссии платформы.
func (s *WalletService) PlatformFee() float64 {
	return s.cfg.PlatformFee
}

// GetBalance возвращает баланс пользователя.
func (s *WalletService) GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	return s.repo.GetBalance(ctx, userID)
}

// CanOperate возвращает true, если баланса хватает на комиссию платформы.
// Только чтение, ничего не меняет.
func (s *WalletService) CanOperate(ctx context.Context, userID uuid.UUID) (bool, error) {
	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return !balance.IntegrityHold && balance.Balance >= s.cfg.PlatformFee, nil
}

// TopUp записывает пополнение. Внешний платёж уже прошёл: ядро не
// инициирует списание с карты, оно только фиксирует зачисление.
func (s *WalletService) TopUp(ctx context.Context, userID uuid.UUID, amount float64, paymentRef string) (*models.WalletTransaction, error) {
	if amount < s.cfg.MinTopUp {
		return nil, fmt.Errorf("wallet service: %w (минимум %.2f)", ErrBelowMinimum, s.cfg.MinTopUp)
	}

	description := "Пополнение кошелька"
	if paymentRef != "" {
		description = fmt.Sprintf("Пополнение кошелька (платёж %s)", paymentRef)
	}
	return s.repo.Credit(ctx, userID, amount, models.TransactionTypeTopUp, nil, &description)
}

// ChargePlatformFee списывает комиссию с хоста и заявителя одной логической
// операцией: либо оба списания, либо ни одного.
func (s *WalletService) ChargePlatformFee(ctx context.Context, hostID, requesterID, matchID uuid.UUID) (*repository.FeePair, error) {
	return s.repo.ChargeFeePair(ctx, hostID, requesterID, matchID, s.cfg.PlatformFee)
}

// Refund зачисляет возврат. Возвраты не ограничены проверкой баланса.
func (s *WalletService) Refund(ctx context.Context, userID uuid.UUID, amount float64, matchID uuid.UUID, reason string) (*models.WalletTransaction, error) {
	if amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма возврата должна быть положительной")
	}
	return s.repo.Credit(ctx, userID, amount, models.TransactionTypeRefund, &matchID, &reason)
}

// Reconcile сверяет кэшированный баланс с журналом. Расхождение логируется
// как целостностная ошибка и блокирует дальнейшие списания пользователя.
func (s *WalletService) Reconcile(ctx context.Context, userID uuid.UUID) (*models.LedgerAudit, error) {
	audit, err := s.repo.Reconcile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if audit.Diverged && logger.Log != nil {
		logger.Log.WithFields(logrus.Fields{
			"user_id":        audit.UserID,
			"cached_balance": audit.CachedBalance,
			"ledger_balance": audit.LedgerBalance,
		}).Error("wallet: расхождение баланса с леджером, кошелёк заморожен")
	}
	return audit, nil
}

// ReconcileAll сверяет все кошельки. Возвращает количество расхождений;
// ошибка по одному кошельку не прерывает обход остальных.
func (s *WalletService) ReconcileAll(ctx context.Context) (int, error) {
	userIDs, err := s.repo.ListBalanceUserIDs(ctx)
	if err != nil {
		return 0, err
	}

	diverged := 0
	for _, userID := range userIDs {
		audit, err := s.Reconcile(ctx, userID)
		if err != nil {
			if logger.Log != nil {
				logger.Log.WithField("user_id", userID).Errorf("wallet: сверка не удалась: %v", err)
			}
			continue
		}
		if audit.Diverged {
			diverged++
		}
	}
	return diverged, nil
}

// ReleaseHold снимает целостностную блокировку после ручной проверки.
func (s *WalletService) ReleaseHold(ctx context.Context, userID uuid.UUID) error {
	return s.repo.ReleaseHold(ctx, userID)
}

// ListTransactions возвращает историю транзакций.
func (s *WalletService) ListTransactions(ctx context.Context, userID uuid.UUID, txType string, limit, offset int) ([]models.WalletTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTransactions(ctx, userID, txType, limit, offset)
}
