package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/festmatch/festmatch-backend/internal/models"
	"github.com/festmatch/festmatch-backend/internal/repository/common"
)

var (
	ErrMatchNotFound     = errors.New("match not found")
	ErrInvalidTransition = errors.New("invalid match status transition")
	ErrUserBanned        = errors.New("user is banned")
)

// CancelParams описывает отмену матча. Поля возврата несут политику
// вызывающего; применяются они только если матч под блокировкой оказался
// accepted — решение по статусу принадлежит транзакции, не вызывающему.
type CancelParams struct {
	MatchID          uuid.UUID
	CancelledBy      uuid.UUID
	RefundPercentage *int
	RefundAmount     *float64
	RefundUserID     *uuid.UUID
}

// MatchRepository хранит матчи. Переходы статусов выполняются под
// блокировкой строки матча: из двух конкурентных переходов выигрывает
// ровно один, второй получает ErrInvalidTransition.
type MatchRepository struct {
	db *sqlx.DB
}

func NewMatchRepository(db *sqlx.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// Create сохраняет новый матч в статусе pending.
func (r *MatchRepository) Create(ctx context.Context, m *models.Match) error {
	query := `
		INSERT INTO matches (experience_id, host_id, requester_id, experience_type, status, participants, total_price, start_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		m.ExperienceID, m.HostID, m.RequesterID, m.ExperienceType,
		m.Status, m.Participants, m.TotalPrice, m.StartDate,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("match repository: create %w", err)
	}
	return nil
}

// GetByID возвращает матч по идентификатору.
func (r *MatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	return common.GetByID[models.Match](ctx, r.db, "matches", id, ErrMatchNotFound)
}

// ListForUser возвращает матчи, где пользователь — хост или заявитель.
func (r *MatchRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Match, error) {
	var matches []models.Match
	err := r.db.SelectContext(ctx, &matches, `
		SELECT * FROM matches
		WHERE host_id = $1 OR requester_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return matches, err
}

// ListByStatus возвращает матчи по статусу (для админки), пустой статус — все.
func (r *MatchRepository) ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Match, error) {
	var matches []models.Match
	var err error
	if status != "" {
		err = r.db.SelectContext(ctx, &matches, `
			SELECT * FROM matches WHERE status = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3
		`, status, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &matches, `
			SELECT * FROM matches ORDER BY created_at DESC LIMIT $1 OFFSET $2
		`, limit, offset)
	}
	return matches, err
}

// Accept переводит матч pending → accepted и, если передана комиссия,
// списывает её с обеих сторон в той же транзакции. Смена статуса и списание —
// одно атомарное целое: комиссия не берётся без принятия, принятие не
// происходит без комиссии. Бан хоста проверяется здесь же, чтобы поставленный
// конкурентно бан не проскочил мимо проверки на уровне сервиса.
func (r *MatchRepository) Accept(ctx context.Context, matchID uuid.UUID, fee *float64) (*models.Match, *FeePair, error) {
	var match models.Match
	var pair *FeePair
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockMatchTx(ctx, tx, matchID, &match); err != nil {
			return err
		}
		if match.Status != models.MatchStatusPending {
			return ErrInvalidTransition
		}

		var bannedAt *time.Time
		if err := tx.GetContext(ctx, &bannedAt, `SELECT banned_at FROM users WHERE id = $1`, match.HostID); err != nil {
			return fmt.Errorf("match repository: accept host lookup %w", err)
		}
		if bannedAt != nil {
			return ErrUserBanned
		}

		if fee != nil {
			var err error
			pair, err = chargeFeePairTx(ctx, tx, match.HostID, match.RequesterID, matchID, *fee)
			if err != nil {
				return err
			}
		}

		return tx.GetContext(ctx, &match, `
			UPDATE matches SET status = $2, updated_at = NOW()
			WHERE id = $1 RETURNING *
		`, matchID, models.MatchStatusAccepted)
	})
	if err != nil {
		return nil, nil, err
	}
	return &match, pair, nil
}

// Reject переводит матч pending → rejected. Деньги не двигаются: на этом
// этапе ещё ничего не списывалось.
func (r *MatchRepository) Reject(ctx context.Context, matchID uuid.UUID, reason *string) (*models.Match, error) {
	var match models.Match
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockMatchTx(ctx, tx, matchID, &match); err != nil {
			return err
		}
		if match.Status != models.MatchStatusPending {
			return ErrInvalidTransition
		}
		return tx.GetContext(ctx, &match, `
			UPDATE matches SET status = $2, reject_reason = $3, updated_at = NOW()
			WHERE id = $1 RETURNING *
		`, matchID, models.MatchStatusRejected, reason)
	})
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// Cancel переводит матч pending|accepted → cancelled. Возвратная политика
// применяется только если под блокировкой матч оказался accepted: вызывающий
// мог прочитать pending до конкурентного принятия, а комиссия к этому
// моменту уже списана. Возврат зачисляется заявителю в той же транзакции,
// его процент и сумма фиксируются на матче.
func (r *MatchRepository) Cancel(ctx context.Context, p CancelParams) (*models.Match, error) {
	var match models.Match
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockMatchTx(ctx, tx, p.MatchID, &match); err != nil {
			return err
		}
		if match.Status != models.MatchStatusPending && match.Status != models.MatchStatusAccepted {
			return ErrInvalidTransition
		}

		var refundPct *int
		var refundAmount *float64
		if match.Status == models.MatchStatusAccepted {
			refundPct = p.RefundPercentage
			if p.RefundAmount != nil && p.RefundUserID != nil && *p.RefundAmount > 0 {
				desc := "Возврат комиссии за отменённый матч"
				if _, err := creditTx(ctx, tx, *p.RefundUserID, *p.RefundAmount, models.TransactionTypeRefund, &p.MatchID, &desc); err != nil {
					return err
				}
				refundAmount = p.RefundAmount
			}
		}

		return tx.GetContext(ctx, &match, `
			UPDATE matches SET status = $2, cancelled_by = $3, refund_percentage = $4, refund_amount = $5, updated_at = NOW()
			WHERE id = $1 RETURNING *
		`, p.MatchID, models.MatchStatusCancelled, p.CancelledBy, refundPct, refundAmount)
	})
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// Complete переводит матч accepted → completed. Деньги не двигаются:
// комиссия уже была удержана при принятии.
func (r *MatchRepository) Complete(ctx context.Context, matchID uuid.UUID) (*models.Match, error) {
	var match models.Match
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockMatchTx(ctx, tx, matchID, &match); err != nil {
			return err
		}
		if match.Status != models.MatchStatusAccepted {
			return ErrInvalidTransition
		}
		return tx.GetContext(ctx, &match, `
			UPDATE matches SET status = $2, updated_at = NOW()
			WHERE id = $1 RETURNING *
		`, matchID, models.MatchStatusCompleted)
	})
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// ExpireStale переводит зависшие pending матчи в rejected с системной
// причиной. Идемпотентна: guard по статусу делает повторный прогон по уже
// истёкшему матчу no-op и не даёт обогнать конкурентный accept.
func (r *MatchRepository) ExpireStale(ctx context.Context, olderThan time.Duration, reason string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE matches SET status = $1, reject_reason = $2, updated_at = NOW()
		WHERE status = $3 AND created_at < NOW() - ($4 * INTERVAL '1 second')
	`, models.MatchStatusRejected, reason, models.MatchStatusPending, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("match repository: expire stale %w", err)
	}
	return res.RowsAffected()
}

// lockMatchTx читает матч с блокировкой строки до конца транзакции.
func lockMatchTx(ctx context.Context, tx *sqlx.Tx, matchID uuid.UUID, dest *models.Match) error {
	err := tx.GetContext(ctx, dest, `SELECT * FROM matches WHERE id = $1 FOR UPDATE`, matchID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrMatchNotFound
	}
	if err != nil {
		return fmt.Errorf("match repository: lock match %w", err)
	}
	return nil
}
