package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/validation"
)

type MilestoneRepository interface {
	Create(ctx context.Context, m *models.Milestone) error
	GetByID(ctx context.Context, id int64) (*models.Milestone, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Milestone, error)
	Update(ctx context.Context, id int64, fn func(m *models.Milestone) error) (*models.Milestone, error)
}

// EscrowReleaser выделяет из EscrowService выплату по одобренному этапу.
type EscrowReleaser interface {
	Release(ctx context.Context, escrowID uuid.UUID, amount decimal.Decimal, reason *string, actorID *uuid.UUID) (*models.MovementResult, error)
}

// MilestoneService ведёт этапы проекта.
type MilestoneService struct {
	milestones MilestoneRepository
	projects   ProjectRepository
	escrows    EscrowRepository
	releaser   EscrowReleaser
	notify     notifier
	now        func() time.Time
	// releaseOnApproval включает выплату всех escrow этапа сразу после одобрения.
	releaseOnApproval bool
}

func NewMilestoneService(milestones MilestoneRepository, projects ProjectRepository, escrows EscrowRepository,
	releaser EscrowReleaser, sink NotificationSink, releaseOnApproval bool) *MilestoneService {
	return &MilestoneService{
		milestones:        milestones,
		projects:          projects,
		escrows:           escrows,
		releaser:          releaser,
		notify:            notifier{sink: sink},
		now:               time.Now,
		releaseOnApproval: releaseOnApproval,
	}
}

type CreateMilestoneInput struct {
	ProjectID   uuid.UUID
	ActorID     uuid.UUID
	Title       string
	Description *string
	Sequence    int
	Amount      decimal.Decimal
	DueDate     *time.Time
}

// CreateMilestone добавляет этап. Нулевой номер заменяется следующим по порядку.
func (s *MilestoneService) CreateMilestone(ctx context.Context, in CreateMilestoneInput) (*models.Milestone, error) {
	project, err := s.projects.GetByID(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	if !project.IsParty(in.ActorID) {
		return nil, apperror.ErrNotParty
	}
	if project.Status.IsTerminal() {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "проект в статусе %s", project.Status)
	}
	if in.Title == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "название этапа обязательно")
	}
	if in.Sequence < 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "номер этапа не может быть отрицательным")
	}
	if err := valueobject.RequirePositive(in.Amount); err != nil {
		return nil, err
	}

	now := s.now()
	milestone := &models.Milestone{
		ProjectID:    in.ProjectID,
		Title:        in.Title,
		Description:  in.Description,
		Sequence:     in.Sequence,
		Amount:       in.Amount,
		DueDate:      in.DueDate,
		Status:       valueobject.MilestoneStatusPending,
		EvidenceURLs: []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.milestones.Create(ctx, milestone); err != nil {
		return nil, err
	}
	return milestone, nil
}

// StartMilestone переводит этап в работу. Доступно исполнителю.
func (s *MilestoneService) StartMilestone(ctx context.Context, id int64, actorID uuid.UUID) (*models.Milestone, error) {
	return s.update(ctx, id, func(m *models.Milestone, p *models.Project) error {
		if actorID != p.ProviderID {
			return apperror.ErrForbidden
		}
		return m.Start(s.now())
	})
}

// CompleteMilestone фиксирует сдачу этапа исполнителем с доказательствами.
func (s *MilestoneService) CompleteMilestone(ctx context.Context, id int64, actorID uuid.UUID, evidenceURLs []string) (*models.Milestone, error) {
	if err := validation.ValidateEvidence(evidenceURLs); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	milestone, err := s.update(ctx, id, func(m *models.Milestone, p *models.Project) error {
		if actorID != p.ProviderID {
			return apperror.ErrForbidden
		}
		return m.Complete(evidenceURLs, s.now())
	})
	if err != nil {
		return nil, err
	}

	if project, err := s.projects.GetByID(ctx, milestone.ProjectID); err == nil {
		s.notify.send(models.EventMilestoneCompleted, milestone, project.ClientID)
	}
	return milestone, nil
}

// ApproveResult содержит одобренный этап и выплаты, проведённые по нему.
// Pending перечисляет escrow этапа, которые остались на ручную выплату.
type ApproveResult struct {
	Milestone *models.Milestone        `json:"milestone"`
	Releases  []*models.MovementResult `json:"releases"`
	Pending   []uuid.UUID              `json:"pending_escrows,omitempty"`
}

// ApproveMilestone фиксирует одобрение клиента. Если включена выплата по одобрению,
// освобождает остатки всех escrow этапа. Одобрение уже сохранено к началу выплат,
// поэтому escrow, который не удалось освободить, попадает в Pending, а не в ошибку.
func (s *MilestoneService) ApproveMilestone(ctx context.Context, id int64, actorID uuid.UUID) (*ApproveResult, error) {
	milestone, err := s.update(ctx, id, func(m *models.Milestone, p *models.Project) error {
		if actorID != p.ClientID {
			return apperror.ErrForbidden
		}
		return m.Approve(s.now())
	})
	if err != nil {
		return nil, err
	}

	result := &ApproveResult{Milestone: milestone}
	if project, err := s.projects.GetByID(ctx, milestone.ProjectID); err == nil {
		s.notify.send(models.EventMilestoneApproved, milestone, project.ProviderID)
	}
	if !s.releaseOnApproval {
		return result, nil
	}

	escrows, err := s.escrows.ListByMilestone(ctx, milestone.ID)
	if err != nil {
		logger.Log.WithError(err).WithField("milestone_id", milestone.ID).Error("не удалось получить escrow одобренного этапа")
		return result, nil
	}
	reason := fmt.Sprintf("этап %d одобрен клиентом", milestone.Sequence)
	for _, e := range escrows {
		if !e.Remaining().IsPositive() || e.Status == valueobject.EscrowStatusCancelled {
			continue
		}
		res, err := s.releaser.Release(ctx, e.ID, e.Remaining(), &reason, &actorID)
		if err == nil {
			result.Releases = append(result.Releases, res)
			continue
		}

		result.Pending = append(result.Pending, e.ID)
		entry := logger.Log.WithError(err).WithFields(logrus.Fields{
			"escrow_id":    e.ID,
			"milestone_id": milestone.ID,
		})
		if errors.Is(err, models.ErrEscrowFrozen) || apperror.IsInsufficientFunds(err) {
			// спор или параллельная выплата
			entry.Warn("выплата по одобренному этапу пропущена")
		} else {
			entry.Error("выплата по одобренному этапу не проведена")
		}
	}

	if len(result.Releases) > 0 {
		if reloaded, err := s.milestones.GetByID(ctx, milestone.ID); err == nil {
			result.Milestone = reloaded
		}
	}
	return result, nil
}

// ListProjectMilestones возвращает этапы проекта по порядку.
func (s *MilestoneService) ListProjectMilestones(ctx context.Context, projectID, userID uuid.UUID, role string) ([]models.Milestone, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(project, userID, role); err != nil {
		return nil, err
	}
	return s.milestones.ListByProject(ctx, projectID)
}

func (s *MilestoneService) update(ctx context.Context, id int64, fn func(m *models.Milestone, p *models.Project) error) (*models.Milestone, error) {
	current, err := s.milestones.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetByID(ctx, current.ProjectID)
	if err != nil {
		return nil, err
	}
	return s.milestones.Update(ctx, id, func(m *models.Milestone) error {
		return fn(m, project)
	})
}
