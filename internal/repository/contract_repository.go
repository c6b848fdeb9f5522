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

var ErrContractExists = apperror.New(apperror.ErrCodeInvalidState, "контракт для проекта уже создан")

type ContractRepository struct {
	db *sqlx.DB
}

func NewContractRepository(db *sqlx.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

func (r *ContractRepository) Create(ctx context.Context, c *models.Contract) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO contracts (id, project_id, terms, amount, start_date, end_date, status, created_at, updated_at)
		VALUES (:id, :project_id, :terms, :amount, :start_date, :end_date, :status, :created_at, :updated_at)
	`, c)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrContractExists
		}
		if common.IsForeignKeyViolation(err) {
			return apperror.ErrProjectNotFound
		}
		return fmt.Errorf("contract repository: create %w", err)
	}
	return nil
}

func (r *ContractRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	return common.GetByID[models.Contract](ctx, r.db, "contracts", id, apperror.ErrContractNotFound)
}

func (r *ContractRepository) GetByProject(ctx context.Context, projectID uuid.UUID) (*models.Contract, error) {
	return common.GetByField[models.Contract](ctx, r.db, "contracts", "project_id", projectID, apperror.ErrContractNotFound)
}

// Update меняет контракт вместе с его проектом в одной транзакции.
// Проект блокируется первым, как и во всех остальных многострочных изменениях.
func (r *ContractRepository) Update(ctx context.Context, id uuid.UUID,
	fn func(c *models.Contract, p *models.Project) error) (*models.Contract, error) {
	var contract *models.Contract
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := common.GetByID[models.Contract](ctx, tx, "contracts", id, apperror.ErrContractNotFound)
		if err != nil {
			return err
		}
		p, err := common.LockByID[models.Project](ctx, tx, "projects", current.ProjectID, apperror.ErrProjectNotFound)
		if err != nil {
			return err
		}
		c, err := common.LockByID[models.Contract](ctx, tx, "contracts", id, apperror.ErrContractNotFound)
		if err != nil {
			return err
		}

		status := p.Status
		if err := fn(c, p); err != nil {
			return err
		}

		_, err = tx.NamedExecContext(ctx, `
			UPDATE contracts SET
				terms = :terms,
				amount = :amount,
				start_date = :start_date,
				end_date = :end_date,
				status = :status,
				client_signed = :client_signed,
				client_signed_at = :client_signed_at,
				client_signed_ip = :client_signed_ip,
				provider_signed = :provider_signed,
				provider_signed_at = :provider_signed_at,
				provider_signed_ip = :provider_signed_ip,
				contract_start_date = :contract_start_date,
				terminated_at = :terminated_at,
				termination_reason = :termination_reason,
				updated_at = :updated_at
			WHERE id = :id
		`, c)
		if err != nil {
			return fmt.Errorf("contract repository: update %w", err)
		}

		if p.Status != status {
			if err := saveProject(ctx, tx, p); err != nil {
				return err
			}
		}
		contract = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return contract, nil
}
