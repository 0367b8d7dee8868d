package models

import (
	"time"

	"github.com/google/uuid"
)

// User описывает пользователя платформы. Управление профилями живёт в другом сервисе,
// здесь пользователь нужен только для ролей и статистики.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	IsDeleted bool      `db:"is_deleted" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Actor вызывающий пользователь, извлечённый из access токена.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

func (a Actor) IsAdmin() bool      { return a.Role == RoleAdmin }
func (a Actor) IsBuyer() bool      { return a.Role == RoleBuyer }
func (a Actor) IsFreelancer() bool { return a.Role == RoleFreelancer }
