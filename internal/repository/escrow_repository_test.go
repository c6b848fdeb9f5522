package repository

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"golang.org/x/sync/errgroup"

	"github.com/ignatzorin/escrow-engine/internal/db"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

// startPostgres поднимает Postgres 16 в контейнере и применяет миграции.
// TEST_PG_DSN позволяет использовать уже запущенную базу.
func startPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("интеграционный тест пропущен в режиме -short")
	}
	ctx := context.Background()

	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		pgC, err := postgres.Run(ctx,
			"postgres:16",
			postgres.WithDatabase("escrow_test"),
			postgres.WithUsername("escrow"),
			postgres.WithPassword("escrow"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			t.Skipf("docker недоступен: %v", err)
		}
		t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })

		dsn, err = pgC.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	conn, err := db.NewPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.RunMigrations(ctx, conn, "../../migrations"))
	return conn
}

type pgFixture struct {
	conn     *sqlx.DB
	escrows  *EscrowRepository
	disputes *DisputeRepository
	payments *PaymentRepository
	client   *models.User
	provider *models.User
	project  *models.Project
	now      time.Time
}

func newPGFixture(t *testing.T, conn *sqlx.DB) *pgFixture {
	t.Helper()
	ctx := context.Background()
	users := NewUserRepository(conn)

	f := &pgFixture{
		conn:     conn,
		escrows:  NewEscrowRepository(conn),
		disputes: NewDisputeRepository(conn),
		payments: NewPaymentRepository(conn),
		client:   &models.User{ID: uuid.New(), Email: uuid.NewString() + "@client.test", Role: models.RoleClient, IsActive: true},
		provider: &models.User{ID: uuid.New(), Email: uuid.NewString() + "@provider.test", Role: models.RoleProvider, IsActive: true},
		now:      time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, users.Upsert(ctx, f.client))
	require.NoError(t, users.Upsert(ctx, f.provider))

	project, err := models.NewProject(f.client.ID, f.provider.ID, "Интеграция", decimal.RequireFromString("1000.00"),
		decimal.RequireFromString("10"), f.now)
	require.NoError(t, err)
	require.NoError(t, NewProjectRepository(conn).Create(ctx, project))
	f.project = project
	return f
}

func (f *pgFixture) createEscrow(t *testing.T, amount string, days int) *models.Escrow {
	t.Helper()
	e, err := models.NewEscrow(f.project.ID, nil, f.client.ID, f.provider.ID, decimal.RequireFromString(amount), days, f.now)
	require.NoError(t, err)
	require.NoError(t, f.escrows.Create(context.Background(), e, &f.client.ID))
	return e
}

func TestEscrowRepository_Postgres(t *testing.T) {
	conn := startPostgres(t)

	t.Run("concurrent releases never overdraw", func(t *testing.T) {
		f := newPGFixture(t, conn)
		e := f.createEscrow(t, "100.00", 14)

		var released, rejected atomic.Int32
		g, ctx := errgroup.WithContext(context.Background())
		for i := 0; i < 20; i++ {
			g.Go(func() error {
				_, err := f.escrows.Release(ctx, models.EscrowMovement{
					EscrowID: e.ID,
					Amount:   decimal.RequireFromString("10.00"),
					Now:      time.Now().UTC(),
				})
				switch {
				case err == nil:
					released.Add(1)
				case apperror.IsInsufficientFunds(err):
					rejected.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.Equal(t, int32(10), released.Load())
		assert.Equal(t, int32(10), rejected.Load())

		got, err := f.escrows.GetByID(context.Background(), e.ID)
		require.NoError(t, err)
		assert.Equal(t, valueobject.EscrowStatusReleased, got.Status)
		assert.True(t, got.Remaining().IsZero())
		assert.NoError(t, got.Verify())

		txs, err := f.escrows.ListTransactions(context.Background(), e.ID)
		require.NoError(t, err)
		assert.Len(t, txs, 11)

		payments, err := f.payments.ListByProject(context.Background(), f.project.ID, 100, 0)
		require.NoError(t, err)
		assert.Len(t, payments, 10)
	})

	t.Run("dispute freezes project escrows", func(t *testing.T) {
		f := newPGFixture(t, conn)
		ctx := context.Background()
		e := f.createEscrow(t, "500.00", 14)

		dispute := &models.Dispute{
			ID:           uuid.New(),
			ProjectID:    f.project.ID,
			RaisedByID:   f.client.ID,
			RespondentID: f.provider.ID,
			Type:         valueobject.DisputeTypeQualityIssue,
			Title:        "Качество",
			Description:  "Не работает",
			EvidenceURLs: []string{},
			Status:       valueobject.DisputeStatusOpen,
			PaymentHeld:  true,
			CreatedAt:    f.now,
			UpdatedAt:    f.now,
		}
		held, err := f.disputes.Open(ctx, dispute, f.now)
		require.NoError(t, err)
		require.Len(t, held, 1)
		assert.Equal(t, e.ID, held[0].ID)

		_, err = f.escrows.Release(ctx, models.EscrowMovement{EscrowID: e.ID, Amount: decimal.RequireFromString("1.00"), Now: f.now})
		assert.ErrorIs(t, err, models.ErrEscrowFrozen)

		second := *dispute
		second.ID = uuid.New()
		_, err = f.disputes.Open(ctx, &second, f.now)
		assert.ErrorIs(t, err, models.ErrDisputeActive)

		late := f.createEscrow(t, "70.00", 0)
		assert.Equal(t, valueobject.EscrowStatusDisputed, late.Status)
		stored, err := f.escrows.GetByID(ctx, late.ID)
		require.NoError(t, err)
		assert.Equal(t, valueobject.EscrowStatusDisputed, stored.Status)
		assert.False(t, stored.AutoReleaseEnabled)
		due, err := f.escrows.ListDueForAutoRelease(ctx, f.now.Add(time.Hour), 100)
		require.NoError(t, err)
		assert.NotContains(t, due, late.ID)
		lateTxs, err := f.escrows.ListTransactions(ctx, late.ID)
		require.NoError(t, err)
		assert.Len(t, lateTxs, 2)

		_, err = f.disputes.Update(ctx, dispute.ID, func(d *models.Dispute, p *models.Project) error {
			if err := d.Resolve(valueobject.DisputeOutcomeCompromise, "", f.now); err != nil {
				return err
			}
			p.Status = valueobject.DisputeOutcomeCompromise.ProjectStatusAfter()
			return nil
		})
		require.NoError(t, err)

		res, err := f.escrows.Refund(ctx, models.EscrowMovement{
			EscrowID: e.ID, Amount: decimal.RequireFromString("500.00"), Reason: strPtr("компромисс"), Now: f.now,
		})
		require.NoError(t, err)
		assert.Equal(t, valueobject.EscrowStatusRefunded, res.Escrow.Status)
		assert.True(t, decimal.RequireFromString("50.00").Equal(res.Payment.PlatformFee))
	})

	t.Run("auto release picks only due escrows", func(t *testing.T) {
		f := newPGFixture(t, conn)
		ctx := context.Background()
		due := f.createEscrow(t, "70.00", 0)
		notDue := f.createEscrow(t, "30.00", 30)

		later := f.now.Add(time.Minute)
		ids, err := f.escrows.ListDueForAutoRelease(ctx, later, 500)
		require.NoError(t, err)
		assert.Contains(t, ids, due.ID)
		assert.NotContains(t, ids, notDue.ID)

		res, err := f.escrows.AutoRelease(ctx, due.ID, "срок истёк", later)
		require.NoError(t, err)
		assert.Equal(t, valueobject.EscrowStatusReleased, res.Escrow.Status)

		_, err = f.escrows.AutoRelease(ctx, due.ID, "срок истёк", later)
		assert.ErrorIs(t, err, models.ErrAutoReleaseNotDue)

		_, err = f.escrows.AutoRelease(ctx, notDue.ID, "срок истёк", later)
		assert.ErrorIs(t, err, models.ErrAutoReleaseNotDue)
	})
}

func strPtr(s string) *string {
	return &s
}
