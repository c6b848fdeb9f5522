package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

func newTestProject(t *testing.T) *Project {
	t.Helper()
	p, err := NewProject(uuid.New(), uuid.New(), "Лендинг", dec("1000000.00"), dec("10"), testNow)
	require.NoError(t, err)
	return p
}

func TestContract_SignByBothPartiesActivates(t *testing.T) {
	p := newTestProject(t)
	c := &Contract{ID: uuid.New(), ProjectID: p.ID, Status: valueobject.ContractStatusDraft}

	activated, err := c.Sign(p, p.ClientID, "10.0.0.1", testNow)
	require.NoError(t, err)
	assert.False(t, activated)
	assert.Equal(t, valueobject.ContractStatusPendingSignature, c.Status)
	require.NotNil(t, c.ClientSignedIP)
	assert.Equal(t, "10.0.0.1", *c.ClientSignedIP)

	// повторная подпись той же стороной ничего не меняет
	activated, err = c.Sign(p, p.ClientID, "10.0.0.2", testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, activated)
	assert.Equal(t, "10.0.0.1", *c.ClientSignedIP)

	later := testNow.Add(time.Hour)
	activated, err = c.Sign(p, p.ProviderID, "", later)
	require.NoError(t, err)
	assert.True(t, activated)
	assert.Equal(t, valueobject.ContractStatusActive, c.Status)
	assert.Nil(t, c.ProviderSignedIP)
	require.NotNil(t, c.ContractStartDate)
	assert.Equal(t, later, *c.ContractStartDate)

	_, err = c.Sign(p, p.ClientID, "", later)
	assert.ErrorIs(t, err, ErrContractNotSignable)
}

func TestContract_SignByStranger(t *testing.T) {
	p := newTestProject(t)
	c := &Contract{ID: uuid.New(), ProjectID: p.ID, Status: valueobject.ContractStatusPendingSignature}

	_, err := c.Sign(p, uuid.New(), "", testNow)
	assert.ErrorIs(t, err, apperror.ErrNotParty)
	assert.False(t, c.ClientSigned)
	assert.False(t, c.ProviderSigned)
}

func TestContract_ApplyTerms(t *testing.T) {
	c := &Contract{Status: valueobject.ContractStatusDraft}
	start := testNow
	end := testNow.Add(-time.Hour)

	err := c.ApplyTerms(ContractTerms{Terms: "t", Amount: dec("10"), StartDate: &start, EndDate: &end}, testNow)
	assert.True(t, apperror.IsValidation(err))

	require.NoError(t, c.ApplyTerms(ContractTerms{Terms: "новые условия", Amount: dec("10.50")}, testNow))
	assert.Equal(t, "новые условия", c.Terms)

	c.Status = valueobject.ContractStatusActive
	assert.ErrorIs(t, c.ApplyTerms(ContractTerms{Terms: "t", Amount: dec("1")}, testNow), ErrContractNotDraft)
}

func TestNewProject(t *testing.T) {
	p := newTestProject(t)
	assert.Equal(t, valueobject.ProjectStatusPlanning, p.Status)
	assert.True(t, dec("100000").Equal(p.CommissionAmount))
	assert.True(t, dec("900000").Equal(p.ProviderAmount))

	same := uuid.New()
	_, err := NewProject(same, same, "x", dec("1"), dec("10"), testNow)
	assert.True(t, apperror.IsValidation(err))

	_, err = NewProject(uuid.New(), uuid.New(), "", dec("1"), dec("10"), testNow)
	assert.True(t, apperror.IsValidation(err))

	_, err = NewProject(uuid.New(), uuid.New(), "x", dec("1"), dec("101"), testNow)
	assert.True(t, apperror.IsValidation(err))
}

func TestProject_Counterparty(t *testing.T) {
	p := newTestProject(t)

	other, err := p.Counterparty(p.ClientID)
	require.NoError(t, err)
	assert.Equal(t, p.ProviderID, other)

	other, err = p.Counterparty(p.ProviderID)
	require.NoError(t, err)
	assert.Equal(t, p.ClientID, other)

	_, err = p.Counterparty(uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotParty)
}
