package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/festmatch/festmatch-backend/internal/models"
	"github.com/festmatch/festmatch-backend/internal/repository/common"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository хранит пользователей. Создание учётных записей живёт во
// внешнем сервисе аутентификации; ядру нужны чтение и доверие (страйки, бан).
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return common.GetByID[models.User](ctx, r.db, "users", id, ErrUserNotFound)
}

// AddStrike увеличивает счётчик страйков. Третий страйк в том же UPDATE
// ставит banned_at: между страйком и баном нет окна, в которое пользователь
// мог бы успеть создать или принять матч.
func (r *UserRepository) AddStrike(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		user2, err := addStrikeTx(ctx, tx, id)
		if err != nil {
			return err
		}
		user = *user2
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Ban банит пользователя немедленно, независимо от числа страйков.
func (r *UserRepository) Ban(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		user2, err := banUserTx(ctx, tx, id)
		if err != nil {
			return err
		}
		user = *user2
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// addStrikeTx — общая для админки и разрешения споров часть начисления
// страйка, выполняется внутри транзакции вызывающего.
func addStrikeTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := tx.GetContext(ctx, &user, `
		UPDATE users
		SET strikes = LEAST(strikes + 1, $2),
		    banned_at = CASE WHEN strikes + 1 >= $2 THEN COALESCE(banned_at, NOW()) ELSE banned_at END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`, id, models.MaxStrikes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user repository: add strike %w", err)
	}
	return &user, nil
}

// banUserTx ставит banned_at, если он ещё не стоит.
func banUserTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := tx.GetContext(ctx, &user, `
		UPDATE users SET banned_at = COALESCE(banned_at, NOW()), updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user repository: ban %w", err)
	}
	return &user, nil
}
