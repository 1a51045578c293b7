package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/festmatch/festmatch-backend/internal/models"
	"github.com/festmatch/festmatch-backend/internal/repository/common"
)

var (
	ErrDisputeNotFound  = errors.New("dispute not found")
	ErrDuplicateDispute = errors.New("match already has an active dispute")
	ErrAlreadyResolved  = errors.New("dispute is already resolved")
)

// pqUniqueViolation — код ошибки уникальности в PostgreSQL.
const pqUniqueViolation = "23505"

// ResolveParams описывает разрешение спора. RefundUserID/RefundAmount
// заполнены только для возвратных исходов, StrikeUserID/BanUserID — только
// когда административное действие наказывает пользователя.
type ResolveParams struct {
	DisputeID    uuid.UUID
	Resolution   models.Resolution
	AdminAction  string
	AdminNotes   *string
	ResolvedBy   uuid.UUID
	RefundUserID *uuid.UUID
	RefundAmount *float64
	StrikeUserID *uuid.UUID
	BanUserID    *uuid.UUID
}

// ResolveResult — итог разрешения: обновлённый спор, возвратная транзакция
// (если была) и пользователь после наказания (если было).
type ResolveResult struct {
	Dispute       *models.Dispute
	RefundTx      *models.WalletTransaction
	PenalizedUser *models.User
}

// DisputeRepository хранит споры и их треды. Активность спора охраняется
// частичным уникальным индексом по match_id: второй незакрытый спор на тот
// же матч не вставится даже при конкурентных открытиях.
type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create открывает спор. Конфликт по активному спору возвращается как
// ErrDuplicateDispute.
func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute) error {
	query := `
		INSERT INTO disputes (match_id, opener_id, reason, description, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, d.MatchID, d.OpenerID, d.Reason, d.Description, d.Status).
		Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateDispute
		}
		return fmt.Errorf("dispute repository: create %w", err)
	}
	return nil
}

// GetByID возвращает спор по идентификатору.
func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, ErrDisputeNotFound)
}

// GetForMatch возвращает последний спор по матчу.
func (r *DisputeRepository) GetForMatch(ctx context.Context, matchID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM disputes WHERE match_id = $1 ORDER BY created_at DESC LIMIT 1
	`, matchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	return &d, err
}

// ListForUser возвращает споры по матчам, где пользователь был участником.
func (r *DisputeRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT d.* FROM disputes d
		JOIN matches m ON d.match_id = m.id
		WHERE m.host_id = $1 OR m.requester_id = $1
		ORDER BY d.created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return disputes, err
}

// ListByStatus возвращает споры по статусу (для админки), пустой статус — все.
func (r *DisputeRepository) ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	var err error
	if status != "" {
		err = r.db.SelectContext(ctx, &disputes, `
			SELECT * FROM disputes WHERE status = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3
		`, status, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &disputes, `
			SELECT * FROM disputes ORDER BY created_at DESC LIMIT $1 OFFSET $2
		`, limit, offset)
	}
	return disputes, err
}

// MarkUnderReview переводит спор open → under_review. Информационный
// переход, без побочных эффектов.
func (r *DisputeRepository) MarkUnderReview(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockDisputeTx(ctx, tx, id, &d); err != nil {
			return err
		}
		if d.Terminal() {
			return ErrAlreadyResolved
		}
		if d.Status != models.DisputeStatusOpen {
			return nil // уже на рассмотрении
		}
		return tx.GetContext(ctx, &d, `
			UPDATE disputes SET status = $2 WHERE id = $1 RETURNING *
		`, id, models.DisputeStatusUnderReview)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Resolve атомарно разрешает спор: флип статуса, возврат и страйк/бан
// выполняются одной транзакцией. Повторное разрешение наталкивается на
// блокировку строки и терминальный статус и получает ErrAlreadyResolved —
// второй возврат невозможен.
func (r *DisputeRepository) Resolve(ctx context.Context, p ResolveParams) (*ResolveResult, error) {
	result := &ResolveResult{}
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var d models.Dispute
		if err := lockDisputeTx(ctx, tx, p.DisputeID, &d); err != nil {
			return err
		}
		if d.Terminal() {
			return ErrAlreadyResolved
		}

		if p.RefundUserID != nil && p.RefundAmount != nil && *p.RefundAmount > 0 {
			desc := "Возврат по решению спора"
			refundTx, err := creditTx(ctx, tx, *p.RefundUserID, *p.RefundAmount, models.TransactionTypeRefund, &d.MatchID, &desc)
			if err != nil {
				return err
			}
			result.RefundTx = refundTx
		}

		if p.StrikeUserID != nil {
			user, err := addStrikeTx(ctx, tx, *p.StrikeUserID)
			if err != nil {
				return err
			}
			result.PenalizedUser = user
		}
		if p.BanUserID != nil {
			user, err := banUserTx(ctx, tx, *p.BanUserID)
			if err != nil {
				return err
			}
			result.PenalizedUser = user
		}

		var refundPct *int
		if p.Resolution.RequiresRefund() {
			pct := p.Resolution.RefundPercentage()
			refundPct = &pct
		}

		var resolved models.Dispute
		err := tx.GetContext(ctx, &resolved, `
			UPDATE disputes
			SET status = $2, resolution = $3, refund_percentage = $4,
			    admin_action = $5, admin_notes = $6, resolved_by = $7, resolved_at = NOW()
			WHERE id = $1 RETURNING *
		`, p.DisputeID, p.Resolution.FinalStatus(), p.Resolution.Kind(), refundPct,
			p.AdminAction, p.AdminNotes, p.ResolvedBy)
		if err != nil {
			return fmt.Errorf("dispute repository: resolve %w", err)
		}
		result.Dispute = &resolved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddMessage добавляет сообщение в тред спора.
func (r *DisputeRepository) AddMessage(ctx context.Context, msg *models.DisputeMessage) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO dispute_messages (dispute_id, sender_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, msg.DisputeID, msg.SenderID, msg.Body).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("dispute repository: add message %w", err)
	}
	return nil
}

// ListMessages возвращает тред спора в хронологическом порядке.
func (r *DisputeRepository) ListMessages(ctx context.Context, disputeID uuid.UUID, limit, offset int) ([]models.DisputeMessage, error) {
	var messages []models.DisputeMessage
	err := r.db.SelectContext(ctx, &messages, `
		SELECT * FROM dispute_messages WHERE dispute_id = $1
		ORDER BY created_at ASC LIMIT $2 OFFSET $3
	`, disputeID, limit, offset)
	return messages, err
}

// lockDisputeTx читает спор с блокировкой строки до конца транзакции.
func lockDisputeTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, dest *models.Dispute) error {
	err := tx.GetContext(ctx, dest, `SELECT * FROM disputes WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDisputeNotFound
	}
	if err != nil {
		return fmt.Errorf("dispute repository: lock dispute %w", err)
	}
	return nil
}
