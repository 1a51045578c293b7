package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/festmatch/festmatch-backend/internal/models"
)

var ErrExperienceNotFound = errors.New("experience not found")

// ExperienceRepository — read-only проекция каталога впечатлений. CRUD
// каталога принадлежит внешнему сервису; ядру нужны хост, тип, цена и
// вместимость, чтобы решить про комиссию и посчитать стоимость.
type ExperienceRepository struct {
	db *sqlx.DB
}

func NewExperienceRepository(db *sqlx.DB) *ExperienceRepository {
	return &ExperienceRepository{db: db}
}

// GetSummary возвращает минимальную проекцию впечатления.
func (r *ExperienceRepository) GetSummary(ctx context.Context, id uuid.UUID) (*models.ExperienceSummary, error) {
	var summary models.ExperienceSummary
	err := r.db.GetContext(ctx, &summary, `
		SELECT id, host_id, type, price_per_person, capacity
		FROM experiences WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExperienceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("experience repository: get summary %w", err)
	}
	return &summary, nil
}
