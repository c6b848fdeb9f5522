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

type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]models.Payment, error)
	Update(ctx context.Context, id uuid.UUID, fn func(p *models.Payment) error) (*models.Payment, error)
}

// PaymentService ведёт журнал платежей. Обращения к шлюзу оплаты вне этого сервиса.
type PaymentService struct {
	payments   PaymentRepository
	projects   ProjectRepository
	milestones MilestoneReader
	notify     notifier
	now        func() time.Time
}

func NewPaymentService(payments PaymentRepository, projects ProjectRepository, milestones MilestoneReader,
	sink NotificationSink) *PaymentService {
	return &PaymentService{
		payments:   payments,
		projects:   projects,
		milestones: milestones,
		notify:     notifier{sink: sink},
		now:        time.Now,
	}
}

type CreatePaymentInput struct {
	ProjectID   uuid.UUID
	MilestoneID *int64
	PayerID     uuid.UUID
	PayeeID     uuid.UUID
	Amount      decimal.Decimal
	Type        valueobject.PaymentType
}

// CreatePayment записывает платёж в PENDING с комиссией по проценту проекта.
// Плательщик и получатель должны быть разными участниками проекта. Получателем
// комиссии платформы может быть любой счёт.
func (s *PaymentService) CreatePayment(ctx context.Context, in CreatePaymentInput) (*models.Payment, error) {
	project, err := s.projects.GetByID(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	if in.PayerID == in.PayeeID {
		return nil, apperror.New(apperror.ErrCodeValidation, "плательщик и получатель совпадают")
	}
	if !project.IsParty(in.PayerID) {
		return nil, apperror.ErrNotParty
	}
	if in.Type != valueobject.PaymentTypePlatformFee && !project.IsParty(in.PayeeID) {
		return nil, apperror.ErrNotParty
	}
	if in.MilestoneID != nil {
		milestone, err := s.milestones.GetByID(ctx, *in.MilestoneID)
		if err != nil {
			return nil, err
		}
		if milestone.ProjectID != project.ID {
			return nil, apperror.ErrMilestoneNotFound
		}
	}

	payment, err := models.NewPayment(project.ID, in.MilestoneID, nil, in.PayerID, in.PayeeID,
		in.Amount, in.Type, project.CommissionPercentage, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	s.log(payment).Info("платёж создан")
	return payment, nil
}

// ProcessPayment фиксирует передачу платежа шлюзу.
func (s *PaymentService) ProcessPayment(ctx context.Context, id uuid.UUID, transactionID, gateway, method string) (*models.Payment, error) {
	if transactionID == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "идентификатор транзакции обязателен")
	}
	return s.transition(ctx, id, valueobject.PaymentStatusProcessing, func(p *models.Payment) {
		p.TransactionID = &transactionID
		if gateway != "" {
			p.Gateway = &gateway
		}
		if method != "" {
			p.PaymentMethod = &method
		}
	})
}

// CompletePayment отмечает платёж проведённым и проставляет дату оплаты.
func (s *PaymentService) CompletePayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return s.transition(ctx, id, valueobject.PaymentStatusCompleted, nil)
}

// RefundPayment возвращает проведённый платёж. Другие статусы отклоняются.
func (s *PaymentService) RefundPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return s.transition(ctx, id, valueobject.PaymentStatusRefunded, nil)
}

// FailPayment завершает платёж ошибкой. Дальнейшие переходы невозможны.
func (s *PaymentService) FailPayment(ctx context.Context, id uuid.UUID, reason string) (*models.Payment, error) {
	return s.transition(ctx, id, valueobject.PaymentStatusFailed, func(p *models.Payment) {
		if reason != "" {
			p.FailureReason = &reason
		}
	})
}

// CancelPayment отменяет ещё не отправленный платёж.
func (s *PaymentService) CancelPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return s.transition(ctx, id, valueobject.PaymentStatusCancelled, nil)
}

// GetPayment возвращает платёж участнику проекта.
func (s *PaymentService) GetPayment(ctx context.Context, id, userID uuid.UUID, role string) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetByID(ctx, payment.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(project, userID, role); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *PaymentService) ListProjectPayments(ctx context.Context, projectID, userID uuid.UUID, role string, limit, offset int) ([]models.Payment, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(project, userID, role); err != nil {
		return nil, err
	}
	limit, offset = normalizePage(limit, offset)
	return s.payments.ListByProject(ctx, projectID, limit, offset)
}

func (s *PaymentService) transition(ctx context.Context, id uuid.UUID, next valueobject.PaymentStatus, mutate func(p *models.Payment)) (*models.Payment, error) {
	payment, err := s.payments.Update(ctx, id, func(p *models.Payment) error {
		if err := p.TransitionTo(next, s.now()); err != nil {
			return err
		}
		if mutate != nil {
			mutate(p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log(payment).Info("статус платежа изменён")
	s.notify.send(models.EventPaymentUpdated, payment, payment.PayerID, payment.PayeeID)
	return payment, nil
}

func (s *PaymentService) log(p *models.Payment) *logrus.Entry {
	return logger.Log.WithFields(logrus.Fields{
		"payment_id": p.ID,
		"project_id": p.ProjectID,
		"type":       p.Type,
		"status":     p.Status,
		"amount":     p.Amount.StringFixed(valueobject.MoneyScale),
		"fee":        p.PlatformFee.StringFixed(valueobject.MoneyScale),
	})
}
