package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/repository/common"
)

// EscrowRepository хранит escrow и журнал движений по ним.
// Все изменения одного escrow идут под блокировкой его строки.
type EscrowRepository struct {
	db *sqlx.DB
}

func NewEscrowRepository(db *sqlx.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

// Create сохраняет новый escrow и пишет запись hold в журнал.
// Если по проекту уже открыт спор, удерживающий выплаты, escrow сразу создаётся в DISPUTED.
func (r *EscrowRepository) Create(ctx context.Context, e *models.Escrow, actorID *uuid.UUID) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		// FOR SHARE на проекте упорядочивает создание escrow с открытием спора
		var held bool
		err := tx.GetContext(ctx, &held, `
			SELECT EXISTS (SELECT 1 FROM disputes WHERE project_id = p.id AND payment_held)
			FROM projects p WHERE p.id = $1 FOR SHARE OF p
		`, e.ProjectID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrProjectNotFound
			}
			return fmt.Errorf("escrow repository: dispute hold %w", err)
		}
		if held {
			if _, err := e.ApplyDisputeHold(e.CreatedAt); err != nil {
				return err
			}
		}

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO escrows (id, project_id, milestone_id, payer_id, payee_id, amount, held_amount,
				released_amount, refunded_amount, status, auto_release_enabled, auto_release_days,
				release_scheduled_at, disputed_at, version, created_at, updated_at)
			VALUES (:id, :project_id, :milestone_id, :payer_id, :payee_id, :amount, :held_amount,
				:released_amount, :refunded_amount, :status, :auto_release_enabled, :auto_release_days,
				:release_scheduled_at, :disputed_at, :version, :created_at, :updated_at)
		`, e)
		if err != nil {
			if common.IsForeignKeyViolation(err) {
				return apperror.Wrap(err, apperror.ErrCodeNotFound, "связанная сущность escrow не найдена")
			}
			return fmt.Errorf("escrow repository: create %w", err)
		}

		if err := insertEscrowTx(ctx, tx, e, models.EscrowTxHold, e.HeldAmount, nil, actorID, e.CreatedAt); err != nil {
			return err
		}
		if held {
			return insertEscrowTx(ctx, tx, e, models.EscrowTxDisputeHold, e.Remaining(), nil, nil, e.CreatedAt)
		}
		return nil
	})
}

func (r *EscrowRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	return common.GetByID[models.Escrow](ctx, r.db, "escrows", id, apperror.ErrEscrowNotFound)
}

func (r *EscrowRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Escrow, error) {
	var escrows []models.Escrow
	if err := r.db.SelectContext(ctx, &escrows,
		`SELECT * FROM escrows WHERE project_id = $1 ORDER BY created_at`, projectID); err != nil {
		return nil, fmt.Errorf("escrow repository: list by project %w", err)
	}
	return escrows, nil
}

func (r *EscrowRepository) ListByMilestone(ctx context.Context, milestoneID int64) ([]models.Escrow, error) {
	var escrows []models.Escrow
	if err := r.db.SelectContext(ctx, &escrows,
		`SELECT * FROM escrows WHERE milestone_id = $1 ORDER BY created_at`, milestoneID); err != nil {
		return nil, fmt.Errorf("escrow repository: list by milestone %w", err)
	}
	return escrows, nil
}

// Totals считает суммы по всем escrow проекта без блокировок.
func (r *EscrowRepository) Totals(ctx context.Context, projectID uuid.UUID) (*models.EscrowTotals, error) {
	totals := models.EscrowTotals{ProjectID: projectID}
	err := r.db.QueryRowxContext(ctx, `
		SELECT COALESCE(SUM(held_amount), 0),
		       COALESCE(SUM(released_amount), 0),
		       COALESCE(SUM(refunded_amount), 0)
		FROM escrows WHERE project_id = $1
	`, projectID).Scan(&totals.Held, &totals.Released, &totals.Refunded)
	if err != nil {
		return nil, fmt.Errorf("escrow repository: totals %w", err)
	}
	totals.Remaining = totals.Held.Sub(totals.Released).Sub(totals.Refunded)
	return &totals, nil
}

func (r *EscrowRepository) ListTransactions(ctx context.Context, escrowID uuid.UUID) ([]models.EscrowTransaction, error) {
	var txs []models.EscrowTransaction
	if err := r.db.SelectContext(ctx, &txs,
		`SELECT * FROM escrow_transactions WHERE escrow_id = $1 ORDER BY created_at, id`, escrowID); err != nil {
		return nil, fmt.Errorf("escrow repository: list transactions %w", err)
	}
	return txs, nil
}

// Release освобождает часть escrow. Остаток проверяется под блокировкой строки,
// платёж получателю пишется в той же транзакции.
func (r *EscrowRepository) Release(ctx context.Context, m models.EscrowMovement) (*models.MovementResult, error) {
	return r.move(ctx, m.EscrowID, func(tx *sqlx.Tx, e *models.Escrow, g models.MovementGuard) (*models.MovementResult, error) {
		res, err := e.Release(m, g)
		if err != nil {
			return nil, err
		}
		return res, persistMovement(ctx, tx, res, models.EscrowTxRelease, m.Amount, m.Reason, m.ActorID, m.Now)
	})
}

// Refund возвращает часть escrow плательщику.
func (r *EscrowRepository) Refund(ctx context.Context, m models.EscrowMovement) (*models.MovementResult, error) {
	return r.move(ctx, m.EscrowID, func(tx *sqlx.Tx, e *models.Escrow, g models.MovementGuard) (*models.MovementResult, error) {
		res, err := e.Refund(m, g)
		if err != nil {
			return nil, err
		}
		return res, persistMovement(ctx, tx, res, models.EscrowTxRefund, m.Amount, m.Reason, m.ActorID, m.Now)
	})
}

// AutoRelease освобождает весь остаток, если escrow всё ещё подлежит автоосвобождению.
func (r *EscrowRepository) AutoRelease(ctx context.Context, id uuid.UUID, reason string, now time.Time) (*models.MovementResult, error) {
	return r.move(ctx, id, func(tx *sqlx.Tx, e *models.Escrow, g models.MovementGuard) (*models.MovementResult, error) {
		amount := e.Remaining()
		res, err := e.AutoRelease(reason, now, g)
		if err != nil {
			return nil, err
		}
		return res, persistMovement(ctx, tx, res, models.EscrowTxRelease, amount, &reason, nil, now)
	})
}

// HoldForDispute замораживает escrow. Повторный вызов ничего не пишет.
func (r *EscrowRepository) HoldForDispute(ctx context.Context, id uuid.UUID, now time.Time) (*models.Escrow, error) {
	var escrow *models.Escrow
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		e, err := lockEscrow(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := holdEscrowTx(ctx, tx, e, now); err != nil {
			return err
		}
		escrow = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return escrow, nil
}

// ListDueForAutoRelease возвращает снимок идентификаторов escrow, у которых наступил срок.
// Право на освобождение каждого перепроверяется под блокировкой в AutoRelease.
func (r *EscrowRepository) ListDueForAutoRelease(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM escrows
		WHERE status = 'held' AND auto_release_enabled AND release_scheduled_at <= $1
		ORDER BY release_scheduled_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("escrow repository: list due %w", err)
	}
	return ids, nil
}

type movementFunc func(tx *sqlx.Tx, e *models.Escrow, g models.MovementGuard) (*models.MovementResult, error)

func (r *EscrowRepository) move(ctx context.Context, id uuid.UUID, fn movementFunc) (*models.MovementResult, error) {
	var result *models.MovementResult
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		e, err := lockEscrow(ctx, tx, id)
		if err != nil {
			return err
		}

		g, err := loadGuard(ctx, tx, e)
		if err != nil {
			return err
		}

		result, err = fn(tx, e, g)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// lockEscrow читает escrow под FOR UPDATE и сверяет статус с суммами.
func lockEscrow(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.Escrow, error) {
	e, err := common.LockByID[models.Escrow](ctx, tx, "escrows", id, apperror.ErrEscrowNotFound)
	if err != nil {
		return nil, err
	}
	if err := e.Verify(); err != nil {
		return nil, fmt.Errorf("escrow repository: %w", err)
	}
	return e, nil
}

func loadGuard(ctx context.Context, tx *sqlx.Tx, e *models.Escrow) (models.MovementGuard, error) {
	var g models.MovementGuard

	err := tx.GetContext(ctx, &g.DisputeHold,
		`SELECT EXISTS (SELECT 1 FROM disputes WHERE project_id = $1 AND payment_held)`, e.ProjectID)
	if err != nil {
		return g, fmt.Errorf("escrow repository: dispute hold %w", err)
	}

	err = tx.GetContext(ctx, &g.CommissionPercentage,
		`SELECT commission_percentage FROM projects WHERE id = $1`, e.ProjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return g, apperror.ErrProjectNotFound
		}
		return g, fmt.Errorf("escrow repository: commission %w", err)
	}

	if e.MilestoneID != nil {
		err = tx.GetContext(ctx, &g.MilestoneApproved,
			`SELECT client_approved FROM milestones WHERE id = $1`, *e.MilestoneID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return g, apperror.ErrMilestoneNotFound
			}
			return g, fmt.Errorf("escrow repository: milestone approval %w", err)
		}
	}

	return g, nil
}

func persistMovement(ctx context.Context, tx *sqlx.Tx, res *models.MovementResult, kind string,
	amount decimal.Decimal, reason *string, actorID *uuid.UUID, now time.Time) error {
	if err := saveEscrow(ctx, tx, res.Escrow); err != nil {
		return err
	}
	if err := insertEscrowTx(ctx, tx, res.Escrow, kind, amount, reason, actorID, now); err != nil {
		return err
	}
	if err := insertPayment(ctx, tx, res.Payment); err != nil {
		return err
	}

	if res.MilestonePaid {
		_, err := tx.ExecContext(ctx, `
			UPDATE milestones SET payment_released = TRUE, status = 'paid', paid_at = $2, updated_at = $2
			WHERE id = $1
		`, *res.Escrow.MilestoneID, now)
		if err != nil {
			return fmt.Errorf("escrow repository: mark milestone paid %w", err)
		}
	}
	return nil
}

// holdEscrowTx переводит уже заблокированный escrow в DISPUTED.
func holdEscrowTx(ctx context.Context, tx *sqlx.Tx, e *models.Escrow, now time.Time) error {
	changed, err := e.ApplyDisputeHold(now)
	if err != nil || !changed {
		return err
	}
	if err := saveEscrow(ctx, tx, e); err != nil {
		return err
	}
	return insertEscrowTx(ctx, tx, e, models.EscrowTxDisputeHold, e.Remaining(), nil, nil, now)
}

func saveEscrow(ctx context.Context, tx *sqlx.Tx, e *models.Escrow) error {
	_, err := tx.NamedExecContext(ctx, `
		UPDATE escrows SET
			released_amount = :released_amount,
			refunded_amount = :refunded_amount,
			status = :status,
			auto_release_enabled = :auto_release_enabled,
			released_at = :released_at,
			refunded_at = :refunded_at,
			disputed_at = :disputed_at,
			version = :version,
			updated_at = :updated_at
		WHERE id = :id
	`, e)
	if err != nil {
		return fmt.Errorf("escrow repository: save %w", err)
	}
	return nil
}

func insertEscrowTx(ctx context.Context, tx *sqlx.Tx, e *models.Escrow, kind string,
	amount decimal.Decimal, reason *string, actorID *uuid.UUID, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO escrow_transactions (escrow_id, project_id, type, amount, reason, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.ProjectID, kind, amount, reason, actorID, now)
	if err != nil {
		return fmt.Errorf("escrow repository: insert ledger row %w", err)
	}
	return nil
}
