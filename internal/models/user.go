package models

import (
	"time"

	"github.com/google/uuid"
)

// Роли пользователей
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// MaxStrikes — количество страйков, после которого пользователь банится автоматически.
const MaxStrikes = 3

// User описывает сущность пользователя платформы.
// Кошелёк хранится отдельно (UserBalance), здесь только доверие и роль.
type User struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Email     string     `db:"email" json:"email"`
	Username  string     `db:"username" json:"username"`
	Role      string     `db:"role" json:"role"`
	Strikes   int        `db:"strikes" json:"strikes"`
	BannedAt  *time.Time `db:"banned_at" json:"banned_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Banned возвращает true, если пользователь забанен.
func (u *User) Banned() bool {
	return u.BannedAt != nil
}
