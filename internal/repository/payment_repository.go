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

type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		return insertPayment(ctx, tx, p)
	})
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return common.GetByID[models.Payment](ctx, r.db, "payments", id, apperror.ErrPaymentNotFound)
}

func (r *PaymentRepository) ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.SelectContext(ctx, &payments, `
		SELECT * FROM payments WHERE project_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("payment repository: list by project %w", err)
	}
	return payments, nil
}

// Update меняет платёж под блокировкой строки. fn получает актуальную версию.
func (r *PaymentRepository) Update(ctx context.Context, id uuid.UUID, fn func(p *models.Payment) error) (*models.Payment, error) {
	var payment *models.Payment
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		p, err := common.LockByID[models.Payment](ctx, tx, "payments", id, apperror.ErrPaymentNotFound)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}

		_, err = tx.NamedExecContext(ctx, `
			UPDATE payments SET
				status = :status,
				transaction_id = :transaction_id,
				gateway = :gateway,
				payment_method = :payment_method,
				payment_date = :payment_date,
				failure_reason = :failure_reason,
				refunded_at = :refunded_at,
				updated_at = :updated_at
			WHERE id = :id
		`, p)
		if err != nil {
			return fmt.Errorf("payment repository: update %w", err)
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func insertPayment(ctx context.Context, tx *sqlx.Tx, p *models.Payment) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO payments (id, project_id, milestone_id, escrow_id, payer_id, payee_id, type, amount,
			platform_fee, net_amount, status, created_at, updated_at)
		VALUES (:id, :project_id, :milestone_id, :escrow_id, :payer_id, :payee_id, :type, :amount,
			:platform_fee, :net_amount, :status, :created_at, :updated_at)
	`, p)
	if err != nil {
		if common.IsForeignKeyViolation(err) {
			return apperror.Wrap(err, apperror.ErrCodeNotFound, "связанная сущность платежа не найдена")
		}
		return fmt.Errorf("payment repository: insert %w", err)
	}
	return nil
}
