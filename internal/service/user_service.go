package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/validation"
)

// UserStore добавляет запись проекции пользователей.
type UserStore interface {
	UserRepository
	Upsert(ctx context.Context, user *models.User) error
}

// UserService синхронизирует пользователей провайдера идентификации.
type UserService struct {
	users UserStore
}

func NewUserService(users UserStore) *UserService {
	return &UserService{users: users}
}

type SyncUserInput struct {
	ID       uuid.UUID
	Email    string
	Role     string
	IsActive bool
}

// SyncUser создаёт или обновляет пользователя. Смена роли не затрагивает уже
// открытые проекты: права проверяются по роли на момент запроса.
func (s *UserService) SyncUser(ctx context.Context, in SyncUserInput) (*models.User, error) {
	if in.ID == uuid.Nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "id пользователя обязателен")
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if !models.IsValidRole(in.Role) {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "неизвестная роль %q", in.Role)
	}

	user := &models.User{
		ID:       in.ID,
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		Role:     in.Role,
		IsActive: in.IsActive,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, err
	}

	logger.Log.WithField("user_id", user.ID).WithField("role", user.Role).Info("пользователь синхронизирован")
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}
