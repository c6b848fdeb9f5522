package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

type ProjectRepository interface {
	Create(ctx context.Context, p *models.Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Project, error)
	Update(ctx context.Context, id uuid.UUID, fn func(p *models.Project) error) (*models.Project, error)
}

// UserRepository читает проекцию пользователей провайдера идентификации.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type ProjectService struct {
	projects ProjectRepository
	users    UserRepository
	now      func() time.Time
}

func NewProjectService(projects ProjectRepository, users UserRepository) *ProjectService {
	return &ProjectService{projects: projects, users: users, now: time.Now}
}

type CreateProjectInput struct {
	ClientID             uuid.UUID
	ProviderID           uuid.UUID
	BidID                *uuid.UUID
	Title                string
	Description          *string
	TotalBudget          decimal.Decimal
	CommissionPercentage decimal.Decimal
}

// CreateProject создаёт проект в статусе PLANNING.
func (s *ProjectService) CreateProject(ctx context.Context, in CreateProjectInput) (*models.Project, error) {
	for _, id := range []uuid.UUID{in.ClientID, in.ProviderID} {
		if _, err := s.users.GetByID(ctx, id); err != nil {
			return nil, err
		}
	}

	project, err := models.NewProject(in.ClientID, in.ProviderID, in.Title, in.TotalBudget, in.CommissionPercentage, s.now())
	if err != nil {
		return nil, err
	}
	project.BidID = in.BidID
	project.Description = in.Description

	if err := s.projects.Create(ctx, project); err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"project_id": project.ID,
		"budget":     project.TotalBudget.StringFixed(valueobject.MoneyScale),
	}).Info("проект создан")
	return project, nil
}

// GetProject возвращает проект участнику, арбитру или администратору.
func (s *ProjectService) GetProject(ctx context.Context, id, userID uuid.UUID, role string) (*models.Project, error) {
	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(project, userID, role); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *ProjectService) ListUserProjects(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Project, error) {
	limit, offset = normalizePage(limit, offset)
	return s.projects.ListByUser(ctx, userID, limit, offset)
}

// UpdateProjectStatus переводит проект по таблице переходов.
// DISPUTED этим методом не выставляется и не снимается.
func (s *ProjectService) UpdateProjectStatus(ctx context.Context, id, actorID uuid.UUID, next valueobject.ProjectStatus) (*models.Project, error) {
	if !next.IsValid() {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректный статус проекта")
	}

	return s.projects.Update(ctx, id, func(p *models.Project) error {
		if !p.IsParty(actorID) {
			return apperror.ErrNotParty
		}
		if !p.Status.CanTransitionTo(next) {
			return apperror.Newf(apperror.ErrCodeInvalidState, "переход проекта %s -> %s запрещён", p.Status, next)
		}
		p.Status = next
		p.UpdatedAt = s.now()
		return nil
	})
}

// authorizeRead пропускает участников проекта, арбитров и администраторов.
func authorizeRead(p *models.Project, userID uuid.UUID, role string) error {
	if p.IsParty(userID) || role == models.RoleArbitrator || role == models.RoleAdmin {
		return nil
	}
	return apperror.ErrNotParty
}
