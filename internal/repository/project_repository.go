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

// ProjectRepository хранит проекты. Проекты не удаляются, история живёт в статусе.
type ProjectRepository struct {
	db *sqlx.DB
}

func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, p *models.Project) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO projects (id, client_id, provider_id, bid_id, title, description, total_budget,
			commission_percentage, commission_amount, provider_amount, status, created_at, updated_at)
		VALUES (:id, :client_id, :provider_id, :bid_id, :title, :description, :total_budget,
			:commission_percentage, :commission_amount, :provider_amount, :status, :created_at, :updated_at)
	`, p)
	if err != nil {
		if common.IsForeignKeyViolation(err) {
			return apperror.ErrUserNotFound
		}
		return fmt.Errorf("project repository: create %w", err)
	}
	return nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return common.GetByID[models.Project](ctx, r.db, "projects", id, apperror.ErrProjectNotFound)
}

// ListByUser возвращает проекты, где пользователь клиент или исполнитель.
func (r *ProjectRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Project, error) {
	var projects []models.Project
	err := r.db.SelectContext(ctx, &projects, `
		SELECT * FROM projects
		WHERE client_id = $1 OR provider_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("project repository: list by user %w", err)
	}
	return projects, nil
}

// Update меняет проект под блокировкой строки.
func (r *ProjectRepository) Update(ctx context.Context, id uuid.UUID, fn func(p *models.Project) error) (*models.Project, error) {
	var project *models.Project
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		p, err := common.LockByID[models.Project](ctx, tx, "projects", id, apperror.ErrProjectNotFound)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		if err := saveProject(ctx, tx, p); err != nil {
			return err
		}
		project = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

func saveProject(ctx context.Context, tx *sqlx.Tx, p *models.Project) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE projects SET status = $2, updated_at = $3 WHERE id = $1`, p.ID, p.Status, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("project repository: save %w", err)
	}
	return nil
}
