package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/validation"
)

// DisputeRepository описывает хранилище споров. Open атомарно регистрирует спор,
// переводит проект в DISPUTED и замораживает escrow проекта.
type DisputeRepository interface {
	Open(ctx context.Context, d *models.Dispute, now time.Time) ([]models.Escrow, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Dispute, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	Update(ctx context.Context, id uuid.UUID, fn func(d *models.Dispute, p *models.Project) error) (*models.Dispute, error)
}

// DisputeService ведёт арбитраж споров между сторонами проекта.
type DisputeService struct {
	disputes DisputeRepository
	projects ProjectRepository
	users    UserRepository
	notify   notifier
	now      func() time.Time
}

func NewDisputeService(disputes DisputeRepository, projects ProjectRepository, users UserRepository, sink NotificationSink) *DisputeService {
	return &DisputeService{
		disputes: disputes,
		projects: projects,
		users:    users,
		notify:   notifier{sink: sink},
		now:      time.Now,
	}
}

type CreateDisputeInput struct {
	ProjectID    uuid.UUID
	RaisedByID   uuid.UUID
	Type         valueobject.DisputeType
	Title        string
	Description  string
	EvidenceURLs []string
}

// OpenedDispute содержит открытый спор и escrow, замороженные вместе с ним.
type OpenedDispute struct {
	Dispute     *models.Dispute `json:"dispute"`
	HeldEscrows []models.Escrow `json:"held_escrows"`
}

// CreateDispute открывает спор от имени одной стороны против другой.
func (s *DisputeService) CreateDispute(ctx context.Context, in CreateDisputeInput) (*OpenedDispute, error) {
	project, err := s.projects.GetByID(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	respondentID, err := project.Counterparty(in.RaisedByID)
	if err != nil {
		return nil, err
	}
	if !in.Type.IsValid() {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректный тип спора")
	}
	if err := validation.ValidateDisputeTitle(in.Title); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateDisputeDescription(in.Description); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateEvidence(in.EvidenceURLs); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	now := s.now()
	evidence := in.EvidenceURLs
	if evidence == nil {
		evidence = []string{}
	}
	dispute := &models.Dispute{
		ID:           uuid.New(),
		ProjectID:    project.ID,
		RaisedByID:   in.RaisedByID,
		RespondentID: respondentID,
		Type:         in.Type,
		Title:        in.Title,
		Description:  in.Description,
		EvidenceURLs: evidence,
		Status:       valueobject.DisputeStatusOpen,
		PaymentHeld:  true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	held, err := s.disputes.Open(ctx, dispute, now)
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"dispute_id":   dispute.ID,
		"project_id":   project.ID,
		"raised_by":    in.RaisedByID,
		"held_escrows": len(held),
	}).Info("спор открыт")
	s.notify.send(models.EventDisputeCreated, dispute, respondentID, in.RaisedByID)

	return &OpenedDispute{Dispute: dispute, HeldEscrows: held}, nil
}

// AssignArbitrator назначает арбитра и переводит спор на рассмотрение.
func (s *DisputeService) AssignArbitrator(ctx context.Context, id, arbitratorID uuid.UUID) (*models.Dispute, error) {
	arbitrator, err := s.users.GetByID(ctx, arbitratorID)
	if err != nil {
		return nil, err
	}
	if !arbitrator.CanArbitrate() {
		return nil, apperror.New(apperror.ErrCodeValidation, "пользователь не может быть арбитром")
	}

	return s.update(ctx, id, models.EventDisputeUpdated, func(d *models.Dispute, _ *models.Project) error {
		if d.ArbitratorID != nil && *d.ArbitratorID == arbitratorID {
			return apperror.New(apperror.ErrCodeInvalidState, "арбитр уже назначен")
		}
		if err := d.TransitionTo(valueobject.DisputeStatusUnderReview, s.now()); err != nil {
			return err
		}
		d.ArbitratorID = &arbitratorID
		return nil
	})
}

// RequestEvidence запрашивает у сторон дополнительные доказательства.
func (s *DisputeService) RequestEvidence(ctx context.Context, id, actorID uuid.UUID, role string) (*models.Dispute, error) {
	return s.update(ctx, id, models.EventDisputeUpdated, func(d *models.Dispute, _ *models.Project) error {
		if err := authorizeArbitration(d, actorID, role); err != nil {
			return err
		}
		return d.TransitionTo(valueobject.DisputeStatusAwaitingEvidence, s.now())
	})
}

// SubmitEvidence добавляет доказательства стороны. Ожидавший доказательств спор
// возвращается на рассмотрение.
func (s *DisputeService) SubmitEvidence(ctx context.Context, id, actorID uuid.UUID, urls []string) (*models.Dispute, error) {
	if len(urls) == 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "нужно приложить хотя бы одно доказательство")
	}
	if err := validation.ValidateEvidence(urls); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	return s.update(ctx, id, models.EventDisputeUpdated, func(d *models.Dispute, p *models.Project) error {
		if !p.IsParty(actorID) {
			return apperror.ErrNotParty
		}
		if !d.Status.IsActive() {
			return apperror.New(apperror.ErrCodeInvalidState, "спор уже разрешён")
		}
		now := s.now()
		d.EvidenceURLs = append(d.EvidenceURLs, urls...)
		d.UpdatedAt = now
		if d.Status == valueobject.DisputeStatusAwaitingEvidence {
			return d.TransitionTo(valueobject.DisputeStatusUnderReview, now)
		}
		return nil
	})
}

// ResolveDispute выносит решение, снимает удержание выплат и возвращает проект
// в работу или отменяет его. Деньги из escrow решение не двигает.
func (s *DisputeService) ResolveDispute(ctx context.Context, id, actorID uuid.UUID, role string,
	outcome valueobject.DisputeOutcome, details string) (*models.Dispute, error) {
	return s.update(ctx, id, models.EventDisputeResolved, func(d *models.Dispute, p *models.Project) error {
		if err := authorizeArbitration(d, actorID, role); err != nil {
			return err
		}
		now := s.now()
		if err := d.Resolve(outcome, details, now); err != nil {
			return err
		}
		if p.Status == valueobject.ProjectStatusDisputed {
			p.Status = outcome.ProjectStatusAfter()
			p.UpdatedAt = now
		}
		return nil
	})
}

// CloseDispute архивирует разрешённый спор.
func (s *DisputeService) CloseDispute(ctx context.Context, id, actorID uuid.UUID, role string) (*models.Dispute, error) {
	return s.update(ctx, id, models.EventDisputeUpdated, func(d *models.Dispute, _ *models.Project) error {
		if err := authorizeArbitration(d, actorID, role); err != nil {
			return err
		}
		now := s.now()
		if err := d.TransitionTo(valueobject.DisputeStatusClosed, now); err != nil {
			return err
		}
		d.ClosedAt = &now
		return nil
	})
}

// GetDispute возвращает спор участнику или арбитру.
func (s *DisputeService) GetDispute(ctx context.Context, id, userID uuid.UUID, role string) (*models.Dispute, error) {
	dispute, err := s.disputes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if dispute.IsParticipant(userID) || role == models.RoleArbitrator || role == models.RoleAdmin {
		return dispute, nil
	}
	return nil, apperror.ErrForbidden
}

func (s *DisputeService) ListProjectDisputes(ctx context.Context, projectID, userID uuid.UUID, role string) ([]models.Dispute, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(project, userID, role); err != nil {
		return nil, err
	}
	return s.disputes.ListByProject(ctx, projectID)
}

func (s *DisputeService) ListUserDisputes(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	limit, offset = normalizePage(limit, offset)
	return s.disputes.ListByUser(ctx, userID, limit, offset)
}

func (s *DisputeService) update(ctx context.Context, id uuid.UUID, event string,
	fn func(d *models.Dispute, p *models.Project) error) (*models.Dispute, error) {
	dispute, err := s.disputes.Update(ctx, id, fn)
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"dispute_id": dispute.ID,
		"project_id": dispute.ProjectID,
		"status":     dispute.Status,
	}).Info("спор обновлён")

	recipients := []uuid.UUID{dispute.RaisedByID, dispute.RespondentID}
	if dispute.ArbitratorID != nil {
		recipients = append(recipients, *dispute.ArbitratorID)
	}
	s.notify.send(event, dispute, recipients...)
	return dispute, nil
}

// authorizeArbitration пропускает назначенного арбитра и администратора.
// Пока арбитр не назначен, действовать может любой арбитр.
func authorizeArbitration(d *models.Dispute, actorID uuid.UUID, role string) error {
	switch role {
	case models.RoleAdmin:
		return nil
	case models.RoleArbitrator:
		if d.ArbitratorID == nil || *d.ArbitratorID == actorID {
			return nil
		}
	}
	return apperror.ErrForbidden
}
