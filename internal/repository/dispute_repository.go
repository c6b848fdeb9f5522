package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/repository/common"
)

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Open регистрирует спор, переводит проект в DISPUTED и замораживает все escrow проекта
// с ненулевым остатком. Всё происходит в одной транзакции.
func (r *DisputeRepository) Open(ctx context.Context, d *models.Dispute, now time.Time) ([]models.Escrow, error) {
	var held []models.Escrow
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		p, err := common.LockByID[models.Project](ctx, tx, "projects", d.ProjectID, apperror.ErrProjectNotFound)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			return apperror.Newf(apperror.ErrCodeInvalidState, "проект в статусе %s, спор открыть нельзя", p.Status)
		}

		var active bool
		if err := tx.GetContext(ctx, &active, `
			SELECT EXISTS (SELECT 1 FROM disputes WHERE project_id = $1 AND status IN ('open', 'under_review', 'awaiting_evidence'))
		`, d.ProjectID); err != nil {
			return fmt.Errorf("dispute repository: active check %w", err)
		}
		if active {
			return models.ErrDisputeActive
		}

		var ids []uuid.UUID
		if err := tx.SelectContext(ctx, &ids, `
			SELECT id FROM escrows
			WHERE project_id = $1 AND status NOT IN ('released', 'refunded', 'cancelled')
			ORDER BY created_at
		`, d.ProjectID); err != nil {
			return fmt.Errorf("dispute repository: project escrows %w", err)
		}
		for _, id := range ids {
			e, err := lockEscrow(ctx, tx, id)
			if err != nil {
				return err
			}
			if !e.Remaining().IsPositive() {
				continue
			}
			if err := holdEscrowTx(ctx, tx, e, now); err != nil {
				return err
			}
			held = append(held, *e)
		}
		if len(held) > 0 && d.EscrowID == nil {
			d.EscrowID = &held[0].ID
		}

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO disputes (id, project_id, escrow_id, raised_by_id, respondent_id, type, title, description,
				evidence_urls, status, payment_held, created_at, updated_at)
			VALUES (:id, :project_id, :escrow_id, :raised_by_id, :respondent_id, :type, :title, :description,
				:evidence_urls, :status, :payment_held, :created_at, :updated_at)
		`, d); err != nil {
			if common.IsUniqueViolation(err) {
				return models.ErrDisputeActive
			}
			return fmt.Errorf("dispute repository: create %w", err)
		}

		p.Status = valueobject.ProjectStatusDisputed
		p.UpdatedAt = now
		return saveProject(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	return held, nil
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, apperror.ErrDisputeNotFound)
}

func (r *DisputeRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Dispute, error) {
	var disputes []models.Dispute
	if err := r.db.SelectContext(ctx, &disputes,
		`SELECT * FROM disputes WHERE project_id = $1 ORDER BY created_at DESC`, projectID); err != nil {
		return nil, fmt.Errorf("dispute repository: list by project %w", err)
	}
	return disputes, nil
}

// ListByUser возвращает споры, где пользователь сторона или арбитр.
func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes
		WHERE raised_by_id = $1 OR respondent_id = $1 OR arbitrator_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list by user %w", err)
	}
	return disputes, nil
}

// Update меняет спор и, при необходимости, статус его проекта в одной транзакции.
func (r *DisputeRepository) Update(ctx context.Context, id uuid.UUID,
	fn func(d *models.Dispute, p *models.Project) error) (*models.Dispute, error) {
	var dispute *models.Dispute
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := common.GetByID[models.Dispute](ctx, tx, "disputes", id, apperror.ErrDisputeNotFound)
		if err != nil {
			return err
		}
		p, err := common.LockByID[models.Project](ctx, tx, "projects", current.ProjectID, apperror.ErrProjectNotFound)
		if err != nil {
			return err
		}
		d, err := common.LockByID[models.Dispute](ctx, tx, "disputes", id, apperror.ErrDisputeNotFound)
		if err != nil {
			return err
		}

		status := p.Status
		if err := fn(d, p); err != nil {
			return err
		}

		_, err = tx.NamedExecContext(ctx, `
			UPDATE disputes SET
				arbitrator_id = :arbitrator_id,
				evidence_urls = :evidence_urls,
				status = :status,
				outcome = :outcome,
				resolution_details = :resolution_details,
				payment_held = :payment_held,
				resolved_at = :resolved_at,
				closed_at = :closed_at,
				updated_at = :updated_at
			WHERE id = :id
		`, d)
		if err != nil {
			return fmt.Errorf("dispute repository: update %w", err)
		}

		if p.Status != status {
			if err := saveProject(ctx, tx, p); err != nil {
				return err
			}
		}
		dispute = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}
