// Package jobs управляет фоновыми задачами (cron): авто-отклонением
// зависших заявок и ночной сверкой кошельков с леджером.
package jobs

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/festmatch/festmatch-backend/internal/logger"
)

// MatchExpirer отклоняет зависшие pending заявки.
type MatchExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// WalletReconciler сверяет кэшированные балансы с журналом транзакций.
type WalletReconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron       *cron.Cron
	matches    MatchExpirer
	wallet     WalletReconciler
	expireSpec string
}

// NewScheduler создаёт планировщик задач. expireSpec — cron-выражение
// для прохода по зависшим заявкам, пустая строка — каждые 10 минут.
func NewScheduler(matches MatchExpirer, wallet WalletReconciler, expireSpec string) *Scheduler {
	if expireSpec == "" {
		expireSpec = "@every 10m"
	}
	return &Scheduler{
		cron:       cron.New(),
		matches:    matches,
		wallet:     wallet,
		expireSpec: expireSpec,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.expireSpec, func() {
		if _, err := s.matches.ExpireStale(ctx); err != nil {
			logger.Log.Errorf("jobs: ошибка авто-отклонения заявок: %v", err)
		}
	}); err != nil {
		return err
	}

	// Ночная сверка в 03:00
	if _, err := s.cron.AddFunc("0 3 * * *", func() {
		diverged, err := s.wallet.ReconcileAll(ctx)
		if err != nil {
			logger.Log.Errorf("jobs: ошибка сверки кошельков: %v", err)
			return
		}
		if diverged > 0 {
			logger.Log.Warnf("jobs: сверка нашла расхождения: %d", diverged)
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	logger.Log.Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и дожидается завершения текущих задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Log.Info("Планировщик задач остановлен")
}
