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
)

// EscrowRepository описывает хранилище escrow. Release/Refund/AutoRelease/HoldForDispute
// обязаны проверять остаток и менять суммы атомарно под блокировкой одного escrow.
type EscrowRepository interface {
	Create(ctx context.Context, e *models.Escrow, actorID *uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Escrow, error)
	ListByMilestone(ctx context.Context, milestoneID int64) ([]models.Escrow, error)
	Totals(ctx context.Context, projectID uuid.UUID) (*models.EscrowTotals, error)
	ListTransactions(ctx context.Context, escrowID uuid.UUID) ([]models.EscrowTransaction, error)
	Release(ctx context.Context, m models.EscrowMovement) (*models.MovementResult, error)
	Refund(ctx context.Context, m models.EscrowMovement) (*models.MovementResult, error)
	AutoRelease(ctx context.Context, id uuid.UUID, reason string, now time.Time) (*models.MovementResult, error)
	HoldForDispute(ctx context.Context, id uuid.UUID, now time.Time) (*models.Escrow, error)
	ListDueForAutoRelease(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// MilestoneReader читает этапы для проверки принадлежности проекту.
type MilestoneReader interface {
	GetByID(ctx context.Context, id int64) (*models.Milestone, error)
}

const (
	autoReleaseBatchSize = 500
	autoReleaseReason    = "автоматическое освобождение по истечении срока"
)

// EscrowService управляет удержаниями средств по проектам.
type EscrowService struct {
	escrows    EscrowRepository
	projects   ProjectRepository
	milestones MilestoneReader
	users      UserRepository
	notify     notifier
	now        func() time.Time
	cache      *CacheService
	totalsTTL  time.Duration
	// requireApproval запрещает ручную выплату по неодобренному этапу.
	requireApproval bool
}

func NewEscrowService(escrows EscrowRepository, projects ProjectRepository, milestones MilestoneReader,
	users UserRepository, sink NotificationSink) *EscrowService {
	return &EscrowService{
		escrows:         escrows,
		projects:        projects,
		milestones:      milestones,
		users:           users,
		notify:          notifier{sink: sink},
		now:             time.Now,
		requireApproval: true,
	}
}

type CreateEscrowInput struct {
	ProjectID       uuid.UUID
	MilestoneID     *int64
	PayerID         uuid.UUID
	PayeeID         uuid.UUID
	Amount          decimal.Decimal
	AutoReleaseDays int
	ActorID         *uuid.UUID
}

// SetTotalsCache включает кэширование сводки по escrow проекта.
// Любое движение средств сбрасывает сводку своего проекта.
func (s *EscrowService) SetTotalsCache(cache *CacheService, ttl time.Duration) {
	s.cache = cache
	s.totalsTTL = ttl
}

func (s *EscrowService) invalidateTotals(projectID uuid.UUID) {
	if s.cache != nil {
		s.cache.InvalidateProject(projectID)
	}
}

// CreateEscrow удерживает средства плательщика по проекту или этапу.
func (s *EscrowService) CreateEscrow(ctx context.Context, in CreateEscrowInput) (*models.Escrow, error) {
	project, err := s.projects.GetByID(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.Status.IsTerminal() {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "проект в статусе %s", project.Status)
	}
	if in.ActorID != nil && !project.IsParty(*in.ActorID) {
		return nil, apperror.ErrNotParty
	}
	for _, id := range []uuid.UUID{in.PayerID, in.PayeeID} {
		if _, err := s.users.GetByID(ctx, id); err != nil {
			return nil, err
		}
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

	escrow, err := models.NewEscrow(in.ProjectID, in.MilestoneID, in.PayerID, in.PayeeID, in.Amount, in.AutoReleaseDays, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.escrows.Create(ctx, escrow, in.ActorID); err != nil {
		return nil, err
	}

	s.invalidateTotals(escrow.ProjectID)
	s.log(escrow, in.Amount, nil).Info("средства удержаны")
	s.notify.send(models.EventEscrowCreated, escrow, escrow.PayerID, escrow.PayeeID)
	return escrow, nil
}

// Release освобождает часть escrow в пользу получателя.
func (s *EscrowService) Release(ctx context.Context, escrowID uuid.UUID, amount decimal.Decimal, reason *string, actorID *uuid.UUID) (*models.MovementResult, error) {
	res, err := s.escrows.Release(ctx, models.EscrowMovement{
		EscrowID:                 escrowID,
		Amount:                   amount,
		Reason:                   reason,
		ActorID:                  actorID,
		RequireMilestoneApproval: s.requireApproval,
		Now:                      s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.invalidateTotals(res.Escrow.ProjectID)
	s.log(res.Escrow, amount, reason).Info("средства освобождены")
	s.notify.send(models.EventEscrowReleased, res, res.Escrow.PayerID, res.Escrow.PayeeID)
	return res, nil
}

// Refund возвращает часть escrow плательщику. Причина обязательна.
func (s *EscrowService) Refund(ctx context.Context, escrowID uuid.UUID, amount decimal.Decimal, reason *string, actorID *uuid.UUID) (*models.MovementResult, error) {
	if reason == nil || *reason == "" {
		return nil, apperror.ErrMissingReason
	}

	res, err := s.escrows.Refund(ctx, models.EscrowMovement{
		EscrowID: escrowID,
		Amount:   amount,
		Reason:   reason,
		ActorID:  actorID,
		Now:      s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.invalidateTotals(res.Escrow.ProjectID)
	s.log(res.Escrow, amount, reason).Info("средства возвращены")
	s.notify.send(models.EventEscrowRefunded, res, res.Escrow.PayerID, res.Escrow.PayeeID)
	return res, nil
}

// HoldForDispute замораживает escrow на время спора. Повторный вызов ничего не меняет.
func (s *EscrowService) HoldForDispute(ctx context.Context, escrowID uuid.UUID) (*models.Escrow, error) {
	escrow, err := s.escrows.HoldForDispute(ctx, escrowID, s.now())
	if err != nil {
		return nil, err
	}

	s.invalidateTotals(escrow.ProjectID)
	s.log(escrow, escrow.Remaining(), nil).Info("escrow заморожен")
	s.notify.send(models.EventEscrowDisputed, escrow, escrow.PayerID, escrow.PayeeID)
	return escrow, nil
}

// AutoReleaseReport содержит итог одного прохода автоосвобождения.
type AutoReleaseReport struct {
	Scanned  int         `json:"scanned"`
	Released []uuid.UUID `json:"released"`
	Skipped  []uuid.UUID `json:"skipped"`
	Failed   []uuid.UUID `json:"failed"`
}

// ProcessAutoReleases освобождает остатки escrow с наступившим сроком.
// Каждый escrow освобождается в собственной транзакции. Гонка с ручной выплатой
// или открытием спора (нехватка остатка, потеря права на автоосвобождение,
// заморозка) пропускает escrow,
// прочие ошибки собираются и возвращаются после обработки всей пачки.
func (s *EscrowService) ProcessAutoReleases(ctx context.Context, now time.Time) (*AutoReleaseReport, error) {
	ids, err := s.escrows.ListDueForAutoRelease(ctx, now, autoReleaseBatchSize)
	if err != nil {
		return nil, err
	}

	report := &AutoReleaseReport{Scanned: len(ids)}
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		res, err := s.escrows.AutoRelease(ctx, id, autoReleaseReason, now)
		switch {
		case err == nil:
			report.Released = append(report.Released, id)
			s.invalidateTotals(res.Escrow.ProjectID)
			s.log(res.Escrow, res.Payment.Amount, nil).Info("средства освобождены автоматически")
			s.notify.send(models.EventEscrowAutoReleased, res, res.Escrow.PayerID, res.Escrow.PayeeID)
		case apperror.IsInsufficientFunds(err), errors.Is(err, models.ErrAutoReleaseNotDue),
			errors.Is(err, models.ErrEscrowFrozen):
			report.Skipped = append(report.Skipped, id)
			logger.Log.WithError(err).WithField("escrow_id", id).Warn("escrow пропущен при автоосвобождении")
		default:
			report.Failed = append(report.Failed, id)
			errs = append(errs, fmt.Errorf("escrow %s: %w", id, err))
		}
	}

	return report, errors.Join(errs...)
}

// GetEscrow возвращает escrow участнику проекта.
func (s *EscrowService) GetEscrow(ctx context.Context, id, userID uuid.UUID, role string) (*models.Escrow, error) {
	escrow, err := s.escrows.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeProject(ctx, escrow.ProjectID, userID, role); err != nil {
		return nil, err
	}
	return escrow, nil
}

func (s *EscrowService) ListProjectEscrows(ctx context.Context, projectID, userID uuid.UUID, role string) ([]models.Escrow, error) {
	if err := s.authorizeProject(ctx, projectID, userID, role); err != nil {
		return nil, err
	}
	return s.escrows.ListByProject(ctx, projectID)
}

func (s *EscrowService) GetProjectEscrowTotals(ctx context.Context, projectID, userID uuid.UUID, role string) (*models.EscrowTotals, error) {
	if err := s.authorizeProject(ctx, projectID, userID, role); err != nil {
		return nil, err
	}
	if s.cache == nil {
		return s.escrows.Totals(ctx, projectID)
	}
	value, err := s.cache.GetOrSet(ctx, EscrowTotalsCacheKey(projectID), s.totalsTTL, func() (interface{}, error) {
		return s.escrows.Totals(ctx, projectID)
	})
	if err != nil {
		return nil, err
	}
	totals := *value.(*models.EscrowTotals)
	return &totals, nil
}

func (s *EscrowService) ListEscrowTransactions(ctx context.Context, escrowID, userID uuid.UUID, role string) ([]models.EscrowTransaction, error) {
	if _, err := s.GetEscrow(ctx, escrowID, userID, role); err != nil {
		return nil, err
	}
	return s.escrows.ListTransactions(ctx, escrowID)
}

// AuthorizeMovement проверяет право пользователя двигать средства escrow:
// выплату делает плательщик, возврат получатель, арбитр и администратор могут оба.
func (s *EscrowService) AuthorizeMovement(ctx context.Context, escrowID, userID uuid.UUID, role, kind string) error {
	escrow, err := s.escrows.GetByID(ctx, escrowID)
	if err != nil {
		return err
	}
	if role == models.RoleArbitrator || role == models.RoleAdmin {
		return nil
	}
	switch kind {
	case models.EscrowTxRelease:
		if userID == escrow.PayerID {
			return nil
		}
	case models.EscrowTxRefund:
		if userID == escrow.PayeeID {
			return nil
		}
	case models.EscrowTxDisputeHold:
		if userID == escrow.PayerID || userID == escrow.PayeeID {
			return nil
		}
	}
	return apperror.ErrForbidden
}

func (s *EscrowService) authorizeProject(ctx context.Context, projectID, userID uuid.UUID, role string) error {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	return authorizeRead(project, userID, role)
}

func (s *EscrowService) log(e *models.Escrow, amount decimal.Decimal, reason *string) *logrus.Entry {
	fields := logrus.Fields{
		"escrow_id":  e.ID,
		"project_id": e.ProjectID,
		"amount":     amount.StringFixed(valueobject.MoneyScale),
		"remaining":  e.Remaining().StringFixed(valueobject.MoneyScale),
		"status":     e.Status,
	}
	if reason != nil {
		fields["reason"] = *reason
	}
	return logger.Log.WithFields(fields)
}
