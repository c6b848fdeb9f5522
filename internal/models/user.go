package models

import (
	"time"

	"github.com/google/uuid"
)

// Роли пользователей
const (
	RoleClient     = "client"
	RoleProvider   = "provider"
	RoleArbitrator = "arbitrator"
	RoleAdmin      = "admin"
)

// User представляет проекцию учётной записи из внешнего провайдера идентификации.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CanArbitrate сообщает, может ли пользователь разбирать споры.
func (u *User) CanArbitrate() bool {
	return u.IsActive && (u.Role == RoleArbitrator || u.Role == RoleAdmin)
}

// IsValidRole сообщает, известна ли роль.
func IsValidRole(role string) bool {
	switch role {
	case RoleClient, RoleProvider, RoleArbitrator, RoleAdmin:
		return true
	}
	return false
}
