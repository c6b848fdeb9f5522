package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

func (f *fixture) createMilestone(t *testing.T, title, amount string) *models.Milestone {
	t.Helper()
	m, err := f.milestones.CreateMilestone(context.Background(), CreateMilestoneInput{
		ProjectID: f.project.ID,
		ActorID:   f.client.ID,
		Title:     title,
		Amount:    mustDec(amount),
	})
	require.NoError(t, err)
	return m
}

func TestMilestoneService_CreateAssignsSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.createMilestone(t, "Прототип", "100.00")
	second := f.createMilestone(t, "Релиз", "200.00")
	assert.Equal(t, 1, first.Sequence)
	assert.Equal(t, 2, second.Sequence)

	list, err := f.milestones.ListProjectMilestones(ctx, f.project.ID, f.provider.ID, models.RoleProvider)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Прототип", list[0].Title)

	_, err = f.milestones.CreateMilestone(ctx, CreateMilestoneInput{ProjectID: f.project.ID, ActorID: f.client.ID, Amount: mustDec("1")})
	assert.True(t, apperror.IsValidation(err))
	_, err = f.milestones.CreateMilestone(ctx, CreateMilestoneInput{ProjectID: f.project.ID, ActorID: f.arbitrator.ID, Title: "x", Amount: mustDec("1")})
	assert.ErrorIs(t, err, apperror.ErrNotParty)
}

func TestMilestoneService_StartAndCompleteByProviderOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMilestone(t, "Бэкенд", "100.00")

	_, err := f.milestones.StartMilestone(ctx, m.ID, f.client.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	started, err := f.milestones.StartMilestone(ctx, m.ID, f.provider.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.MilestoneStatusInProgress, started.Status)

	done, err := f.milestones.CompleteMilestone(ctx, m.ID, f.provider.ID, []string{"/files/evidence/report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, valueobject.MilestoneStatusCompleted, done.Status)
	assert.NotNil(t, done.ActualCompletionDate)
}

func TestMilestoneService_ManualReleaseNeedsApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMilestone(t, "Дизайн", "300.00")
	e := f.createEscrow(t, "300.00", &m.ID, 14)

	_, err := f.escrows.Release(ctx, e.ID, mustDec("300.00"), nil, &f.client.ID)
	assert.ErrorIs(t, err, models.ErrMilestoneNotClosed)

	_, err = f.milestones.ApproveMilestone(ctx, m.ID, f.provider.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	res, err := f.milestones.ApproveMilestone(ctx, m.ID, f.client.ID)
	require.NoError(t, err)
	require.Len(t, res.Releases, 1)
	assert.Equal(t, valueobject.EscrowStatusReleased, res.Releases[0].Escrow.Status)
	assert.Equal(t, valueobject.PaymentTypeMilestone, res.Releases[0].Payment.Type)
	assert.Equal(t, valueobject.MilestoneStatusPaid, res.Milestone.Status)
	assert.True(t, res.Milestone.PaymentReleased)
}

func TestMilestoneService_ApproveWithoutAutoPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.milestones.releaseOnApproval = false
	m := f.createMilestone(t, "Тесты", "120.00")
	e := f.createEscrow(t, "120.00", &m.ID, 14)

	res, err := f.milestones.ApproveMilestone(ctx, m.ID, f.client.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Releases)
	assert.Equal(t, valueobject.MilestoneStatusApproved, res.Milestone.Status)

	// после одобрения ручная выплата разрешена
	_, err = f.escrows.Release(ctx, e.ID, mustDec("20.00"), nil, &f.client.ID)
	require.NoError(t, err)
}

func TestMilestoneService_ApproveSkipsFrozenEscrow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMilestone(t, "Интеграция", "80.00")
	e := f.createEscrow(t, "80.00", &m.ID, 14)
	f.openDispute(t, f.provider.ID)

	res, err := f.milestones.ApproveMilestone(ctx, m.ID, f.client.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Releases)
	assert.Equal(t, valueobject.MilestoneStatusApproved, res.Milestone.Status)

	got, err := memEscrows{f.store}.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.EscrowStatusDisputed, got.Status)
	assert.True(t, got.ReleasedAmount.IsZero())
	assert.Equal(t, []uuid.UUID{e.ID}, res.Pending)
}

type failingReleaser struct{}

func (failingReleaser) Release(context.Context, uuid.UUID, decimal.Decimal, *string, *uuid.UUID) (*models.MovementResult, error) {
	return nil, errors.New("connection reset")
}

func TestMilestoneService_ApproveKeepsApprovalWhenReleaseFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMilestone(t, "Отчёт", "60.00")
	e := f.createEscrow(t, "60.00", &m.ID, 14)

	f.milestones.releaser = failingReleaser{}
	res, err := f.milestones.ApproveMilestone(ctx, m.ID, f.client.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.MilestoneStatusApproved, res.Milestone.Status)
	assert.Empty(t, res.Releases)
	assert.Equal(t, []uuid.UUID{e.ID}, res.Pending)

	// одобрение сохранено, остаток выплачивается вручную
	paid, err := f.escrows.Release(ctx, e.ID, mustDec("60.00"), nil, &f.client.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.EscrowStatusReleased, paid.Escrow.Status)
}

func TestMilestoneService_ApprovePaidMilestone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMilestone(t, "Деплой", "10.00")
	f.createEscrow(t, "10.00", &m.ID, 14)

	_, err := f.milestones.ApproveMilestone(ctx, m.ID, f.client.ID)
	require.NoError(t, err)

	_, err = f.milestones.ApproveMilestone(ctx, m.ID, f.client.ID)
	assert.ErrorIs(t, err, models.ErrMilestoneAlreadyPaid)
}
