package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/festmatch/festmatch-backend/internal/goroutine"
	"github.com/festmatch/festmatch-backend/internal/logger"
	"github.com/festmatch/festmatch-backend/internal/models"
	"github.com/festmatch/festmatch-backend/internal/pkg/apperror"
	"github.com/festmatch/festmatch-backend/internal/repository"
)

var (
	// ErrFundingFailed — денежная предпосылка не выполнена. Отличается от
	// обычных отказов: после пополнения кошелька операцию можно повторить.
	ErrFundingFailed  = errors.New("funding failed, top-up required")
	ErrNotParticipant = errors.New("user is not a participant of this match")
	ErrSelfMatch      = errors.New("host cannot request own experience")
	ErrNotStarted     = errors.New("match has not started yet")
	ErrOverCapacity   = errors.New("participants exceed experience capacity")
)

// MatchRepository описывает взаимодействие сервиса с хранилищем матчей.
type MatchRepository interface {
	Create(ctx context.Context, m *models.Match) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Match, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Match, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Match, error)
	Accept(ctx context.Context, matchID uuid.UUID, fee *float64) (*models.Match, *repository.FeePair, error)
	Reject(ctx context.Context, matchID uuid.UUID, reason *string) (*models.Match, error)
	Cancel(ctx context.Context, p repository.CancelParams) (*models.Match, error)
	Complete(ctx context.Context, matchID uuid.UUID) (*models.Match, error)
	ExpireStale(ctx context.Context, olderThan time.Duration, reason string) (int64, error)
}

// ExperienceCatalog описывает минимальный контракт с каталогом впечатлений.
type ExperienceCatalog interface {
	GetSummary(ctx context.Context, id uuid.UUID) (*models.ExperienceSummary, error)
}

// UserReader описывает минимальный контракт для чтения пользователей.
type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// WalletChecker описывает операции кошелька, нужные матчам.
type WalletChecker interface {
	CanOperate(ctx context.Context, userID uuid.UUID) (bool, error)
	PlatformFee() float64
}

// Notifier — канал доставки уведомлений пользователю (WebSocket hub).
type Notifier interface {
	BroadcastToUser(userID uuid.UUID, event string, data any) error
}

// MatchPolicy — политика жизненного цикла матча. Проценты возврата при
// отмене и окно авто-истечения заданы конфигурацией, не кодом.
type MatchPolicy struct {
	// ExpireAfter — сколько матч может висеть в pending до авто-отклонения.
	ExpireAfter time.Duration
	// HostCancelRefundPct — процент возврата комиссии при отмене хостом.
	HostCancelRefundPct int
	// RequesterCancelRefundPct — процент возврата при отмене заявителем.
	RequesterCancelRefundPct int
	// RequesterLateCancelRefundPct — процент возврата при отмене заявителем
	// ближе чем LateCancelWindow к дате начала.
	RequesterLateCancelRefundPct int
	// LateCancelWindow — окно «поздней» отмены перед датой начала.
	LateCancelWindow time.Duration
}

// expireReason — системная причина авто-отклонения зависших заявок.
const expireReason = "заявка автоматически отклонена: хост не ответил вовремя"

// MatchService владеет жизненным циклом заявки на бронирование: проверяет
// допустимость переходов и запускает движения по кошельку как побочные
// эффекты переходов.
type MatchService struct {
	repo        MatchRepository
	experiences ExperienceCatalog
	users       UserReader
	wallet      WalletChecker
	policy      MatchPolicy
	notifier    Notifier
}

// NewMatchService создаёт сервис матчей.
func NewMatchService(repo MatchRepository, experiences ExperienceCatalog, users UserReader, wallet WalletChecker, policy MatchPolicy) *MatchService {
	return &MatchService{
		repo:        repo,
		experiences: experiences,
		users:       users,
		wallet:      wallet,
		policy:      policy,
	}
}

// SetNotifier устанавливает канал уведомлений.
func (s *MatchService) SetNotifier(n Notifier) {
	s.notifier = n
}

// CreateMatchInput описывает входные данные заявки.
type CreateMatchInput struct {
	RequesterID  uuid.UUID
	ExperienceID uuid.UUID
	Participants int
	StartDate    *time.Time
}

// Create создаёт заявку в статусе pending. Деньги здесь не двигаются:
// платёжеспособность заявителя проверяется оптимистично и перепроверяется
// при принятии.
func (s *MatchService) Create(ctx context.Context, in CreateMatchInput) (*models.Match, error) {
	if in.Participants < 1 {
		return nil, apperror.New(apperror.ErrCodeValidation, "количество участников должно быть не меньше одного")
	}
	if in.StartDate != nil && in.StartDate.Before(time.Now()) {
		return nil, apperror.New(apperror.ErrCodeValidation, "дата начала не может быть в прошлом")
	}

	experience, err := s.experiences.GetSummary(ctx, in.ExperienceID)
	if err != nil {
		return nil, err
	}
	if experience.HostID == in.RequesterID {
		return nil, fmt.Errorf("match service: %w", ErrSelfMatch)
	}
	if experience.Capacity > 0 && in.Participants > experience.Capacity {
		return nil, fmt.Errorf("match service: %w", ErrOverCapacity)
	}

	requester, err := s.users.GetByID(ctx, in.RequesterID)
	if err != nil {
		return nil, err
	}
	if requester.Banned() {
		return nil, fmt.Errorf("match service: %w", repository.ErrUserBanned)
	}

	var totalPrice *float64
	if models.FeeApplies(experience.Type) {
		ok, err := s.wallet.CanOperate(ctx, in.RequesterID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("match service: %w", ErrFundingFailed)
		}
		if experience.PricePerPerson != nil {
			price := *experience.PricePerPerson * float64(in.Participants)
			totalPrice = &price
		}
	}

	match := &models.Match{
		ExperienceID:   in.ExperienceID,
		HostID:         experience.HostID,
		RequesterID:    in.RequesterID,
		ExperienceType: experience.Type,
		Status:         models.MatchStatusPending,
		Participants:   in.Participants,
		TotalPrice:     totalPrice,
		StartDate:      in.StartDate,
	}
	if err := s.repo.Create(ctx, match); err != nil {
		return nil, err
	}

	s.notify(match.HostID, models.EventMatchRequested, match)
	return match, nil
}

// Accept принимает заявку от имени хоста. Для платных и смешанных
// впечатлений комиссия списывается с обеих сторон в той же транзакции,
// что и смена статуса; при нехватке средств переход не происходит и
// вызывающий получает ErrFundingFailed — после пополнения можно повторить.
func (s *MatchService) Accept(ctx context.Context, matchID, hostID uuid.UUID) (*models.Match, error) {
	match, err := s.repo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.HostID != hostID {
		return nil, fmt.Errorf("match service: %w", ErrNotParticipant)
	}

	var fee *float64
	if match.FeeApplies() {
		f := s.wallet.PlatformFee()
		fee = &f
	}

	accepted, pair, err := s.repo.Accept(ctx, matchID, fee)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return nil, fmt.Errorf("match service: %w", ErrFundingFailed)
		}
		return nil, err
	}

	if pair != nil && logger.Log != nil {
		logger.Log.WithField("match_id", matchID).
			Debugf("match: комиссия списана, транзакции %s/%s", pair.HostTxID, pair.RequesterTxID)
	}

	s.notify(accepted.RequesterID, models.EventMatchAccepted, accepted)
	return accepted, nil
}

// Reject отклоняет заявку от имени хоста. Деньги не двигаются.
func (s *MatchService) Reject(ctx context.Context, matchID, hostID uuid.UUID, reason *string) (*models.Match, error) {
	match, err := s.repo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.HostID != hostID {
		return nil, fmt.Errorf("match service: %w", ErrNotParticipant)
	}

	rejected, err := s.repo.Reject(ctx, matchID, reason)
	if err != nil {
		return nil, err
	}

	s.notify(rejected.RequesterID, models.EventMatchRejected, rejected)
	return rejected, nil
}

// Cancel отменяет матч любой из сторон. При отмене из accepted заявителю
// возвращается доля комиссии по политике; процент и сумма фиксируются
// на матче для показа пользователю.
func (s *MatchService) Cancel(ctx context.Context, matchID, byUserID uuid.UUID) (*models.Match, error) {
	match, err := s.repo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !match.IsParticipant(byUserID) {
		return nil, fmt.Errorf("match service: %w", ErrNotParticipant)
	}

	// Политика возврата передаётся всегда, когда матч комиссионный:
	// прочитанный здесь статус может устареть к моменту блокировки строки,
	// и применять её или нет, репозиторий решает по статусу под блокировкой.
	params := repository.CancelParams{MatchID: matchID, CancelledBy: byUserID}
	if match.FeeApplies() {
		pct := s.refundPercent(match, byUserID)
		amount := s.wallet.PlatformFee() * float64(pct) / 100
		params.RefundPercentage = &pct
		if amount > 0 {
			params.RefundAmount = &amount
			params.RefundUserID = &match.RequesterID
		}
	}

	cancelled, err := s.repo.Cancel(ctx, params)
	if err != nil {
		return nil, err
	}

	other := cancelled.HostID
	if byUserID == cancelled.HostID {
		other = cancelled.RequesterID
	}
	s.notify(other, models.EventMatchCancelled, cancelled)
	return cancelled, nil
}

// Complete завершает матч. Требует прошедшей даты начала; хост может
// завершить досрочно вручную. Деньги не двигаются — комиссия уже удержана
// при принятии, переход лишь открывает возможность взаимных отзывов.
func (s *MatchService) Complete(ctx context.Context, matchID, byUserID uuid.UUID) (*models.Match, error) {
	match, err := s.repo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !match.IsParticipant(byUserID) {
		return nil, fmt.Errorf("match service: %w", ErrNotParticipant)
	}

	started := match.StartDate != nil && match.StartDate.Before(time.Now())
	if !started && byUserID != match.HostID {
		return nil, fmt.Errorf("match service: %w", ErrNotStarted)
	}

	completed, err := s.repo.Complete(ctx, matchID)
	if err != nil {
		return nil, err
	}

	other := completed.HostID
	if byUserID == completed.HostID {
		other = completed.RequesterID
	}
	s.notify(other, models.EventMatchCompleted, completed)
	return completed, nil
}

// Get возвращает матч участнику или администратору.
func (s *MatchService) Get(ctx context.Context, matchID, userID uuid.UUID, isAdmin bool) (*models.Match, error) {
	match, err := s.repo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && !match.IsParticipant(userID) {
		return nil, fmt.Errorf("match service: %w", ErrNotParticipant)
	}
	return match, nil
}

// ListForUser возвращает матчи пользователя.
func (s *MatchService) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Match, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListForUser(ctx, userID, limit, offset)
}

// ListByStatus возвращает матчи по статусу (админка).
func (s *MatchService) ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Match, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByStatus(ctx, status, limit, offset)
}

// ExpireStale отклоняет зависшие pending заявки. Запускается планировщиком.
func (s *MatchService) ExpireStale(ctx context.Context) (int64, error) {
	expired, err := s.repo.ExpireStale(ctx, s.policy.ExpireAfter, expireReason)
	if err != nil {
		return 0, err
	}
	if expired > 0 && logger.Log != nil {
		logger.Log.WithField("expired", expired).Info("match: зависшие заявки авто-отклонены")
	}
	return expired, nil
}

// refundPercent возвращает процент возврата комиссии по политике отмены.
func (s *MatchService) refundPercent(match *models.Match, byUserID uuid.UUID) int {
	if byUserID == match.HostID {
		return s.policy.HostCancelRefundPct
	}
	if match.StartDate != nil && time.Until(*match.StartDate) < s.policy.LateCancelWindow {
		return s.policy.RequesterLateCancelRefundPct
	}
	return s.policy.RequesterCancelRefundPct
}

// notify отправляет уведомление вне транзакции ядра: fire-and-forget,
// сбой доставки логируется и никогда не откатывает основную операцию.
func (s *MatchService) notify(userID uuid.UUID, event string, data any) {
	if s.notifier == nil {
		return
	}
	goroutine.SafeGo(func() {
		if err := s.notifier.BroadcastToUser(userID, event, data); err != nil && logger.Log != nil {
			logger.Log.WithField("event", event).Warnf("match: не удалось доставить уведомление: %v", err)
		}
	})
}
