package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

func (f *fixture) draftContract(t *testing.T) *models.Contract {
	t.Helper()
	c, err := f.contracts.CreateContract(context.Background(), f.project.ID, f.client.ID, models.ContractTerms{
		Terms:  "Разработка по ТЗ",
		Amount: mustDec("1000000.00"),
	})
	require.NoError(t, err)
	return c
}

func TestContractService_SignActivatesProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.draftContract(t)

	_, err := f.contracts.SendForSignature(ctx, c.ID, f.provider.ID)
	require.NoError(t, err)

	signed, err := f.contracts.SignContract(ctx, c.ID, f.client.ID, "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, valueobject.ContractStatusPendingSignature, signed.Status)
	assert.Equal(t, valueobject.ProjectStatusPlanning, f.projectStatus(t))

	active, err := f.contracts.SignContract(ctx, c.ID, f.provider.ID, "192.0.2.2")
	require.NoError(t, err)
	assert.Equal(t, valueobject.ContractStatusActive, active.Status)
	assert.NotNil(t, active.ContractStartDate)
	assert.Equal(t, valueobject.ProjectStatusInProgress, f.projectStatus(t))

	_, err = f.contracts.UpdateContract(ctx, c.ID, f.client.ID, models.ContractTerms{Terms: "x", Amount: mustDec("1")})
	assert.ErrorIs(t, err, models.ErrContractNotDraft)
}

func TestContractService_SignByStranger(t *testing.T) {
	f := newFixture(t)
	c := f.draftContract(t)

	_, err := f.contracts.SignContract(context.Background(), c.ID, f.arbitrator.ID, "")
	assert.ErrorIs(t, err, apperror.ErrNotParty)
}

func TestContractService_OnePerProject(t *testing.T) {
	f := newFixture(t)
	f.draftContract(t)

	_, err := f.contracts.CreateContract(context.Background(), f.project.ID, f.provider.ID, models.ContractTerms{
		Terms: "дубль", Amount: mustDec("1.00"),
	})
	assert.Equal(t, apperror.ErrCodeConflict, apperror.CodeOf(err))
}

func TestContractService_TerminateAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.draftContract(t)

	_, err := f.contracts.TerminateContract(ctx, c.ID, f.client.ID, "")
	assert.True(t, apperror.IsMissingReason(err))
	_, err = f.contracts.TerminateContract(ctx, c.ID, f.client.ID, "нарушение сроков")
	assert.ErrorIs(t, err, models.ErrContractNotActive)

	cancelled, err := f.contracts.CancelContract(ctx, c.ID, f.provider.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.ContractStatusCancelled, cancelled.Status)

	_, err = f.contracts.SignContract(ctx, c.ID, f.client.ID, "")
	assert.ErrorIs(t, err, models.ErrContractNotSignable)
}

func TestContractService_TerminateActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.draftContract(t)
	for _, signer := range []*models.User{f.client, f.provider} {
		_, err := f.contracts.SignContract(ctx, c.ID, signer.ID, "")
		require.NoError(t, err)
	}

	terminated, err := f.contracts.TerminateContract(ctx, c.ID, f.provider.ID, "клиент пропал")
	require.NoError(t, err)
	assert.Equal(t, valueobject.ContractStatusTerminated, terminated.Status)
	require.NotNil(t, terminated.TerminationReason)
	assert.Equal(t, "клиент пропал", *terminated.TerminationReason)

	got, err := f.contracts.GetProjectContract(ctx, f.project.ID, f.arbitrator.ID, models.RoleArbitrator)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}
