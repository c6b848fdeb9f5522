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

// ContractRepository описывает хранилище контрактов. Update блокирует контракт вместе с проектом.
type ContractRepository interface {
	Create(ctx context.Context, c *models.Contract) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	GetByProject(ctx context.Context, projectID uuid.UUID) (*models.Contract, error)
	Update(ctx context.Context, id uuid.UUID, fn func(c *models.Contract, p *models.Project) error) (*models.Contract, error)
}

type ContractService struct {
	contracts ContractRepository
	projects  ProjectRepository
	notify    notifier
	now       func() time.Time
}

func NewContractService(contracts ContractRepository, projects ProjectRepository, sink NotificationSink) *ContractService {
	return &ContractService{contracts: contracts, projects: projects, notify: notifier{sink: sink}, now: time.Now}
}

// CreateContract создаёт черновик контракта. На проект допускается один контракт.
func (s *ContractService) CreateContract(ctx context.Context, projectID, actorID uuid.UUID, terms models.ContractTerms) (*models.Contract, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.IsParty(actorID) {
		return nil, apperror.ErrNotParty
	}
	if project.Status.IsTerminal() {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "проект в статусе %s", project.Status)
	}
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	contract := &models.Contract{
		ID:        uuid.New(),
		ProjectID: projectID,
		Terms:     terms.Terms,
		Amount:    terms.Amount,
		StartDate: terms.StartDate,
		EndDate:   terms.EndDate,
		Status:    valueobject.ContractStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.contracts.Create(ctx, contract); err != nil {
		return nil, err
	}
	return contract, nil
}

// UpdateContract меняет условия. Доступно только для черновика.
func (s *ContractService) UpdateContract(ctx context.Context, id, actorID uuid.UUID, terms models.ContractTerms) (*models.Contract, error) {
	return s.contracts.Update(ctx, id, func(c *models.Contract, p *models.Project) error {
		if !p.IsParty(actorID) {
			return apperror.ErrNotParty
		}
		return c.ApplyTerms(terms, s.now())
	})
}

// SendForSignature переводит черновик в ожидание подписей.
func (s *ContractService) SendForSignature(ctx context.Context, id, actorID uuid.UUID) (*models.Contract, error) {
	return s.contracts.Update(ctx, id, func(c *models.Contract, p *models.Project) error {
		if !p.IsParty(actorID) {
			return apperror.ErrNotParty
		}
		if c.Status != valueobject.ContractStatusDraft {
			return models.ErrContractNotDraft
		}
		c.Status = valueobject.ContractStatusPendingSignature
		c.UpdatedAt = s.now()
		return nil
	})
}

// SignContract ставит подпись клиента или исполнителя. Вторая подпись активирует
// контракт и переводит проект в работу.
func (s *ContractService) SignContract(ctx context.Context, id, signerID uuid.UUID, ip string) (*models.Contract, error) {
	var (
		activated bool
		project   models.Project
	)
	contract, err := s.contracts.Update(ctx, id, func(c *models.Contract, p *models.Project) error {
		now := s.now()
		var err error
		activated, err = c.Sign(p, signerID, ip, now)
		if err != nil {
			return err
		}
		if activated && !p.Status.IsTerminal() && p.Status != valueobject.ProjectStatusDisputed {
			p.Status = valueobject.ProjectStatusInProgress
			p.UpdatedAt = now
		}
		project = *p
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"contract_id": contract.ID,
		"project_id":  contract.ProjectID,
		"signer_id":   signerID,
		"status":      contract.Status,
	}).Info("контракт подписан")

	event := models.EventContractSigned
	if activated {
		event = models.EventContractActivated
	}
	s.notify.send(event, contract, project.ClientID, project.ProviderID)
	return contract, nil
}

// CompleteContract закрывает исполненный контракт.
func (s *ContractService) CompleteContract(ctx context.Context, id, actorID uuid.UUID) (*models.Contract, error) {
	return s.contracts.Update(ctx, id, func(c *models.Contract, p *models.Project) error {
		if !p.IsParty(actorID) {
			return apperror.ErrNotParty
		}
		if c.Status != valueobject.ContractStatusActive {
			return models.ErrContractNotActive
		}
		c.Status = valueobject.ContractStatusCompleted
		c.UpdatedAt = s.now()
		return nil
	})
}

// TerminateContract досрочно расторгает активный контракт. Причина обязательна.
func (s *ContractService) TerminateContract(ctx context.Context, id, actorID uuid.UUID, reason string) (*models.Contract, error) {
	if reason == "" {
		return nil, apperror.New(apperror.ErrCodeMissingReason, "для расторжения нужно указать причину")
	}
	if err := validation.ValidateReason(reason); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	return s.contracts.Update(ctx, id, func(c *models.Contract, p *models.Project) error {
		if !p.IsParty(actorID) {
			return apperror.ErrNotParty
		}
		if c.Status != valueobject.ContractStatusActive {
			return models.ErrContractNotActive
		}
		now := s.now()
		c.Status = valueobject.ContractStatusTerminated
		c.TerminatedAt = &now
		c.TerminationReason = &reason
		c.UpdatedAt = now
		return nil
	})
}

// CancelContract отменяет контракт, который ещё не подписан обеими сторонами.
func (s *ContractService) CancelContract(ctx context.Context, id, actorID uuid.UUID) (*models.Contract, error) {
	return s.contracts.Update(ctx, id, func(c *models.Contract, p *models.Project) error {
		if !p.IsParty(actorID) {
			return apperror.ErrNotParty
		}
		if !c.Status.IsSignable() {
			return models.ErrContractNotSignable
		}
		c.Status = valueobject.ContractStatusCancelled
		c.UpdatedAt = s.now()
		return nil
	})
}

// GetProjectContract возвращает контракт проекта.
func (s *ContractService) GetProjectContract(ctx context.Context, projectID, userID uuid.UUID, role string) (*models.Contract, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(project, userID, role); err != nil {
		return nil, err
	}
	return s.contracts.GetByProject(ctx, projectID)
}
