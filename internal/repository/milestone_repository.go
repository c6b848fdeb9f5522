package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/repository/common"
)

type MilestoneRepository struct {
	db *sqlx.DB
}

func NewMilestoneRepository(db *sqlx.DB) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

// Create сохраняет этап. Нулевой sequence заменяется на следующий номер в проекте.
func (r *MilestoneRepository) Create(ctx context.Context, m *models.Milestone) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		// Блокировка проекта сериализует выдачу номеров этапов.
		if _, err := common.LockByID[models.Project](ctx, tx, "projects", m.ProjectID, apperror.ErrProjectNotFound); err != nil {
			return err
		}

		if m.Sequence == 0 {
			if err := tx.GetContext(ctx, &m.Sequence,
				`SELECT COALESCE(MAX(sequence), 0) + 1 FROM milestones WHERE project_id = $1`, m.ProjectID); err != nil {
				return fmt.Errorf("milestone repository: next sequence %w", err)
			}
		}

		rows, err := tx.NamedQuery(`
			INSERT INTO milestones (project_id, title, description, sequence, amount, due_date, status,
				evidence_urls, created_at, updated_at)
			VALUES (:project_id, :title, :description, :sequence, :amount, :due_date, :status,
				:evidence_urls, :created_at, :updated_at)
			RETURNING id
		`, m)
		if err != nil {
			if common.IsUniqueViolation(err) {
				return apperror.Newf(apperror.ErrCodeValidation, "этап с номером %d уже существует", m.Sequence)
			}
			return fmt.Errorf("milestone repository: create %w", err)
		}
		defer rows.Close()
		if rows.Next() {
			if err := rows.Scan(&m.ID); err != nil {
				return fmt.Errorf("milestone repository: scan id %w", err)
			}
		}
		return rows.Err()
	})
}

func (r *MilestoneRepository) GetByID(ctx context.Context, id int64) (*models.Milestone, error) {
	return common.GetByID[models.Milestone](ctx, r.db, "milestones", id, apperror.ErrMilestoneNotFound)
}

func (r *MilestoneRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Milestone, error) {
	var milestones []models.Milestone
	if err := r.db.SelectContext(ctx, &milestones,
		`SELECT * FROM milestones WHERE project_id = $1 ORDER BY sequence`, projectID); err != nil {
		return nil, fmt.Errorf("milestone repository: list by project %w", err)
	}
	return milestones, nil
}

// Update меняет этап под блокировкой строки.
func (r *MilestoneRepository) Update(ctx context.Context, id int64, fn func(m *models.Milestone) error) (*models.Milestone, error) {
	var milestone *models.Milestone
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		m, err := common.LockByID[models.Milestone](ctx, tx, "milestones", id, apperror.ErrMilestoneNotFound)
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}

		_, err = tx.NamedExecContext(ctx, `
			UPDATE milestones SET
				status = :status,
				client_approved = :client_approved,
				approved_at = :approved_at,
				evidence_urls = :evidence_urls,
				actual_completion_date = :actual_completion_date,
				updated_at = :updated_at
			WHERE id = :id
		`, m)
		if err != nil {
			return fmt.Errorf("milestone repository: update %w", err)
		}
		milestone = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return milestone, nil
}
