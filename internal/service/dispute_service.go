package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/festmatch/festmatch-backend/internal/goroutine"
	"github.com/festmatch/festmatch-backend/internal/logger"
	"github.com/festmatch/festmatch-backend/internal/models"
	"github.com/festmatch/festmatch-backend/internal/pkg/apperror"
	"github.com/festmatch/festmatch-backend/internal/repository"
)

var (
	ErrNotDisputable     = errors.New("match state does not allow disputes")
	ErrDisputeWindow     = errors.New("dispute window has closed")
	ErrNoPaidAmount      = errors.New("match has no paid amount to refund")
	ErrInvalidAction     = errors.New("unknown admin action")
	ErrActionNeedsTarget = errors.New("admin action requires a target user")
)

// DisputeRepository описывает взаимодействие сервиса со спорами.
type DisputeRepository interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetForMatch(ctx context.Context, matchID uuid.UUID) (*models.Dispute, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Dispute, error)
	MarkUnderReview(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	Resolve(ctx context.Context, p repository.ResolveParams) (*repository.ResolveResult, error)
	AddMessage(ctx context.Context, msg *models.DisputeMessage) error
	ListMessages(ctx context.Context, disputeID uuid.UUID, limit, offset int) ([]models.DisputeMessage, error)
}

// MatchReader — чтение матчей без права на переходы.
type MatchReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Match, error)
}

// DisputePolicy — политика споров.
type DisputePolicy struct {
	// OpenWindow — сколько после завершения матча спор ещё можно открыть.
	// Ноль отключает ограничение.
	OpenWindow time.Duration
}

// disputableStatuses — статусы матча, по которым допустим спор. Спор по
// pending бессмысленен: деньги ещё не двигались.
var disputableStatuses = map[string]struct{}{
	models.MatchStatusAccepted:  {},
	models.MatchStatusCompleted: {},
	models.MatchStatusCancelled: {},
}

// DisputeService владеет жизненным циклом споров и связанными с ними
// дисциплинарными мерами: страйками и банами виновной стороны.
type DisputeService struct {
	repo     DisputeRepository
	matches  MatchReader
	policy   DisputePolicy
	notifier Notifier
}

// NewDisputeService создаёт сервис споров.
func NewDisputeService(repo DisputeRepository, matches MatchReader, policy DisputePolicy) *DisputeService {
	return &DisputeService{repo: repo, matches: matches, policy: policy}
}

// SetNotifier устанавливает канал уведомлений.
func (s *DisputeService) SetNotifier(n Notifier) {
	s.notifier = n
}

// OpenDisputeInput описывает входные данные открытия спора.
type OpenDisputeInput struct {
	MatchID     uuid.UUID
	OpenerID    uuid.UUID
	Reason      string
	Description string
}

// Open открывает спор по матчу. Открыть может только участник, по матчу
// в допустимом статусе и в пределах окна после завершения. Повторный
// незакрытый спор по тому же матчу отбивается на уровне БД.
func (s *DisputeService) Open(ctx context.Context, in OpenDisputeInput) (*models.Dispute, error) {
	if in.Reason == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "причина спора обязательна")
	}

	match, err := s.matches.GetByID(ctx, in.MatchID)
	if err != nil {
		return nil, err
	}
	if !match.IsParticipant(in.OpenerID) {
		return nil, fmt.Errorf("dispute service: %w", ErrNotParticipant)
	}
	if _, ok := disputableStatuses[match.Status]; !ok {
		return nil, fmt.Errorf("dispute service: %w", ErrNotDisputable)
	}
	if s.policy.OpenWindow > 0 && match.Status == models.MatchStatusCompleted &&
		time.Since(match.UpdatedAt) > s.policy.OpenWindow {
		return nil, fmt.Errorf("dispute service: %w", ErrDisputeWindow)
	}

	dispute := &models.Dispute{
		MatchID:     in.MatchID,
		OpenerID:    in.OpenerID,
		Reason:      in.Reason,
		Description: in.Description,
		Status:      models.DisputeStatusOpen,
	}
	if err := s.repo.Create(ctx, dispute); err != nil {
		return nil, err
	}

	other := match.HostID
	if in.OpenerID == match.HostID {
		other = match.RequesterID
	}
	s.notify(other, models.EventDisputeOpened, dispute)
	return dispute, nil
}

// MarkUnderReview берёт спор в работу администратором. Идемпотентна:
// повторный вызов по спору на рассмотрении ничего не меняет.
func (s *DisputeService) MarkUnderReview(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error) {
	return s.repo.MarkUnderReview(ctx, disputeID)
}

// ResolveInput описывает решение администратора по спору.
type ResolveInput struct {
	DisputeID    uuid.UUID
	ResolvedBy   uuid.UUID
	Resolution   models.Resolution
	AdminAction  string
	ActionTarget *uuid.UUID
	AdminNotes   *string
}

// Resolve закрывает спор решением администратора: фиксирует исход,
// при возвратном исходе кредитует заявителя долей оплаченной суммы и
// применяет дисциплинарную меру — всё в одной транзакции. Третий страйк
// банит пользователя автоматически.
func (s *DisputeService) Resolve(ctx context.Context, in ResolveInput) (*models.Dispute, error) {
	if in.AdminAction == "" {
		in.AdminAction = models.AdminActionNone
	}
	if _, ok := models.ValidAdminActions[in.AdminAction]; !ok {
		return nil, fmt.Errorf("dispute service: %w", ErrInvalidAction)
	}

	dispute, err := s.repo.GetByID(ctx, in.DisputeID)
	if err != nil {
		return nil, err
	}
	match, err := s.matches.GetByID(ctx, dispute.MatchID)
	if err != nil {
		return nil, err
	}

	params := repository.ResolveParams{
		DisputeID:   in.DisputeID,
		Resolution:  in.Resolution,
		AdminAction: in.AdminAction,
		AdminNotes:  in.AdminNotes,
		ResolvedBy:  in.ResolvedBy,
	}

	if in.Resolution.RequiresRefund() {
		if match.TotalPrice == nil {
			return nil, fmt.Errorf("dispute service: %w", ErrNoPaidAmount)
		}
		amount := *match.TotalPrice * float64(in.Resolution.RefundPercentage()) / 100
		params.RefundAmount = &amount
		params.RefundUserID = &match.RequesterID
	}

	switch in.AdminAction {
	case models.AdminActionStrike:
		if in.ActionTarget == nil {
			return nil, fmt.Errorf("dispute service: %w", ErrActionNeedsTarget)
		}
		if !match.IsParticipant(*in.ActionTarget) {
			return nil, fmt.Errorf("dispute service: %w", ErrNotParticipant)
		}
		params.StrikeUserID = in.ActionTarget
	case models.AdminActionBan:
		if in.ActionTarget == nil {
			return nil, fmt.Errorf("dispute service: %w", ErrActionNeedsTarget)
		}
		if !match.IsParticipant(*in.ActionTarget) {
			return nil, fmt.Errorf("dispute service: %w", ErrNotParticipant)
		}
		params.BanUserID = in.ActionTarget
	}

	result, err := s.repo.Resolve(ctx, params)
	if err != nil {
		return nil, err
	}

	if result.PenalizedUser != nil && logger.Log != nil {
		logger.Log.WithFields(logrus.Fields{
			"dispute_id": in.DisputeID,
			"user_id":    result.PenalizedUser.ID,
			"strikes":    result.PenalizedUser.Strikes,
			"banned":     result.PenalizedUser.Banned(),
		}).Info("dispute: дисциплинарная мера применена")
	}

	s.notify(match.HostID, models.EventDisputeResolved, result.Dispute)
	s.notify(match.RequesterID, models.EventDisputeResolved, result.Dispute)
	return result.Dispute, nil
}

// Get возвращает спор участнику матча или администратору.
func (s *DisputeService) Get(ctx context.Context, disputeID, userID uuid.UUID, isAdmin bool) (*models.Dispute, error) {
	dispute, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		if err := s.requireParticipant(ctx, dispute, userID); err != nil {
			return nil, err
		}
	}
	return dispute, nil
}

// GetForMatch возвращает последний спор по матчу.
func (s *DisputeService) GetForMatch(ctx context.Context, matchID, userID uuid.UUID, isAdmin bool) (*models.Dispute, error) {
	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && !match.IsParticipant(userID) {
		return nil, fmt.Errorf("dispute service: %w", ErrNotParticipant)
	}
	return s.repo.GetForMatch(ctx, matchID)
}

// ListForUser возвращает споры по матчам пользователя.
func (s *DisputeService) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListForUser(ctx, userID, limit, offset)
}

// ListByStatus возвращает споры по статусу (админка).
func (s *DisputeService) ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByStatus(ctx, status, limit, offset)
}

// AddMessage добавляет сообщение в тред спора. Писать могут участники
// матча и администратор, пока спор не терминален.
func (s *DisputeService) AddMessage(ctx context.Context, disputeID, senderID uuid.UUID, body string, isAdmin bool) (*models.DisputeMessage, error) {
	if body == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "пустое сообщение")
	}

	dispute, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Terminal() {
		return nil, fmt.Errorf("dispute service: %w", repository.ErrAlreadyResolved)
	}

	match, err := s.matches.GetByID(ctx, dispute.MatchID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && !match.IsParticipant(senderID) {
		return nil, fmt.Errorf("dispute service: %w", ErrNotParticipant)
	}

	msg := &models.DisputeMessage{
		DisputeID: disputeID,
		SenderID:  senderID,
		Body:      body,
	}
	if err := s.repo.AddMessage(ctx, msg); err != nil {
		return nil, err
	}

	other := match.HostID
	if senderID == match.HostID {
		other = match.RequesterID
	}
	if senderID != other {
		s.notify(other, models.EventDisputeMessage, msg)
	}
	return msg, nil
}

// ListMessages возвращает тред спора.
func (s *DisputeService) ListMessages(ctx context.Context, disputeID, userID uuid.UUID, isAdmin bool, limit, offset int) ([]models.DisputeMessage, error) {
	dispute, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		if err := s.requireParticipant(ctx, dispute, userID); err != nil {
			return nil, err
		}
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListMessages(ctx, disputeID, limit, offset)
}

func (s *DisputeService) requireParticipant(ctx context.Context, dispute *models.Dispute, userID uuid.UUID) error {
	match, err := s.matches.GetByID(ctx, dispute.MatchID)
	if err != nil {
		return err
	}
	if !match.IsParticipant(userID) {
		return fmt.Errorf("dispute service: %w", ErrNotParticipant)
	}
	return nil
}

func (s *DisputeService) notify(userID uuid.UUID, event string, data any) {
	if s.notifier == nil {
		return
	}
	goroutine.SafeGo(func() {
		if err := s.notifier.BroadcastToUser(userID, event, data); err != nil && logger.Log != nil {
			logger.Log.WithField("event", event).Warnf("dispute: не удалось доставить уведомление: %v", err)
		}
	})
}
