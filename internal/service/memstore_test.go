package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

// memStore держит данные в памяти с теми же гарантиями, что и репозитории на Postgres:
// всё изменение одной сущности идёт под общим мьютексом и применяется только при успехе.
type memStore struct {
	mu         sync.Mutex
	users      map[uuid.UUID]*models.User
	projects   map[uuid.UUID]*models.Project
	milestones map[int64]*models.Milestone
	escrows    map[uuid.UUID]*models.Escrow
	disputes   map[uuid.UUID]*models.Dispute
	contracts  map[uuid.UUID]*models.Contract
	ledger     []models.EscrowTransaction
	payments   []models.Payment
	lastID     int64
}

func newMemStore() *memStore {
	return &memStore{
		users:      map[uuid.UUID]*models.User{},
		projects:   map[uuid.UUID]*models.Project{},
		milestones: map[int64]*models.Milestone{},
		escrows:    map[uuid.UUID]*models.Escrow{},
		disputes:   map[uuid.UUID]*models.Dispute{},
		contracts:  map[uuid.UUID]*models.Contract{},
	}
}

func (s *memStore) addUser(role string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{ID: uuid.New(), Email: uuid.NewString() + "@test.local", Role: role, IsActive: true}
	s.users[u.ID] = u
	return u
}

func (s *memStore) escrowTxs(escrowID uuid.UUID) []models.EscrowTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EscrowTransaction
	for _, tx := range s.ledger {
		if tx.EscrowID == escrowID {
			out = append(out, tx)
		}
	}
	return out
}

func (s *memStore) escrowPayments(escrowID uuid.UUID) []models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payment
	for _, p := range s.payments {
		if p.EscrowID != nil && *p.EscrowID == escrowID {
			out = append(out, p)
		}
	}
	return out
}

// users

type memUsers struct{ *memStore }

func (r memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperror.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) Upsert(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *user
	if old, ok := r.users[user.ID]; ok {
		cp.CreatedAt = old.CreatedAt
	}
	r.users[user.ID] = &cp
	user.CreatedAt = cp.CreatedAt
	return nil
}

// projects

type memProjects struct{ *memStore }

func (r memProjects) Create(_ context.Context, p *models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.projects[p.ID] = &cp
	return nil
}

func (r memProjects) GetByID(_ context.Context, id uuid.UUID) (*models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, apperror.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memProjects) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Project
	for _, p := range r.projects {
		if p.IsParty(userID) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (r memProjects) Update(_ context.Context, id uuid.UUID, fn func(p *models.Project) error) (*models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, apperror.ErrProjectNotFound
	}
	cp := *p
	if err := fn(&cp); err != nil {
		return nil, err
	}
	r.projects[id] = &cp
	out := cp
	return &out, nil
}

// milestones

type memMilestones struct{ *memStore }

func (r memMilestones) Create(_ context.Context, m *models.Milestone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastID++
	m.ID = r.lastID
	if m.Sequence == 0 {
		seq := 0
		for _, other := range r.milestones {
			if other.ProjectID == m.ProjectID && other.Sequence > seq {
				seq = other.Sequence
			}
		}
		m.Sequence = seq + 1
	}
	cp := *m
	r.milestones[m.ID] = &cp
	return nil
}

func (r memMilestones) GetByID(_ context.Context, id int64) (*models.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.milestones[id]
	if !ok {
		return nil, apperror.ErrMilestoneNotFound
	}
	cp := *m
	return &cp, nil
}

func (r memMilestones) ListByProject(_ context.Context, projectID uuid.UUID) ([]models.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Milestone
	for _, m := range r.milestones {
		if m.ProjectID == projectID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (r memMilestones) Update(_ context.Context, id int64, fn func(m *models.Milestone) error) (*models.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.milestones[id]
	if !ok {
		return nil, apperror.ErrMilestoneNotFound
	}
	cp := *m
	if err := fn(&cp); err != nil {
		return nil, err
	}
	r.milestones[id] = &cp
	out := cp
	return &out, nil
}

// escrows

type memEscrows struct{ *memStore }

func (r memEscrows) Create(_ context.Context, e *models.Escrow, actorID *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[e.ProjectID]; !ok {
		return apperror.ErrProjectNotFound
	}
	g, err := r.guard(e)
	if err != nil {
		return err
	}
	if g.DisputeHold {
		if _, err := e.ApplyDisputeHold(e.CreatedAt); err != nil {
			return err
		}
	}
	cp := *e
	r.escrows[e.ID] = &cp
	r.appendTx(&cp, models.EscrowTxHold, e.HeldAmount, nil, actorID, e.CreatedAt)
	if g.DisputeHold {
		r.appendTx(&cp, models.EscrowTxDisputeHold, e.Remaining(), nil, nil, e.CreatedAt)
	}
	return nil
}

func (r memEscrows) GetByID(_ context.Context, id uuid.UUID) (*models.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.escrows[id]
	if !ok {
		return nil, apperror.ErrEscrowNotFound
	}
	cp := *e
	return &cp, nil
}

func (r memEscrows) ListByProject(_ context.Context, projectID uuid.UUID) ([]models.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterEscrows(func(e *models.Escrow) bool { return e.ProjectID == projectID }), nil
}

func (r memEscrows) ListByMilestone(_ context.Context, milestoneID int64) ([]models.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterEscrows(func(e *models.Escrow) bool {
		return e.MilestoneID != nil && *e.MilestoneID == milestoneID
	}), nil
}

func (r memEscrows) Totals(_ context.Context, projectID uuid.UUID) (*models.EscrowTotals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &models.EscrowTotals{ProjectID: projectID}
	for _, e := range r.escrows {
		if e.ProjectID != projectID {
			continue
		}
		t.Held = t.Held.Add(e.HeldAmount)
		t.Released = t.Released.Add(e.ReleasedAmount)
		t.Refunded = t.Refunded.Add(e.RefundedAmount)
	}
	t.Remaining = t.Held.Sub(t.Released).Sub(t.Refunded)
	return t, nil
}

func (r memEscrows) ListTransactions(_ context.Context, escrowID uuid.UUID) ([]models.EscrowTransaction, error) {
	return r.escrowTxs(escrowID), nil
}

func (r memEscrows) Release(_ context.Context, m models.EscrowMovement) (*models.MovementResult, error) {
	return r.move(m.EscrowID, models.EscrowTxRelease, m.Reason, m.ActorID, m.Now,
		func(e *models.Escrow, g models.MovementGuard) (*models.MovementResult, error) {
			return e.Release(m, g)
		})
}

func (r memEscrows) Refund(_ context.Context, m models.EscrowMovement) (*models.MovementResult, error) {
	return r.move(m.EscrowID, models.EscrowTxRefund, m.Reason, m.ActorID, m.Now,
		func(e *models.Escrow, g models.MovementGuard) (*models.MovementResult, error) {
			return e.Refund(m, g)
		})
}

func (r memEscrows) AutoRelease(_ context.Context, id uuid.UUID, reason string, now time.Time) (*models.MovementResult, error) {
	return r.move(id, models.EscrowTxRelease, &reason, nil, now,
		func(e *models.Escrow, g models.MovementGuard) (*models.MovementResult, error) {
			return e.AutoRelease(reason, now, g)
		})
}

func (r memEscrows) HoldForDispute(_ context.Context, id uuid.UUID, now time.Time) (*models.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.escrows[id]
	if !ok {
		return nil, apperror.ErrEscrowNotFound
	}
	cp := *e
	changed, err := cp.ApplyDisputeHold(now)
	if err != nil {
		return nil, err
	}
	if changed {
		r.escrows[id] = &cp
		r.appendTx(&cp, models.EscrowTxDisputeHold, cp.Remaining(), nil, nil, now)
	}
	out := cp
	return &out, nil
}

func (r memEscrows) ListDueForAutoRelease(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for _, e := range r.escrows {
		if e.IsDueForAutoRelease(now) && len(ids) < limit {
			ids = append(ids, e.ID)
		}
	}
	return ids, nil
}

func (r memEscrows) move(id uuid.UUID, kind string, reason *string, actorID *uuid.UUID, now time.Time,
	fn func(e *models.Escrow, g models.MovementGuard) (*models.MovementResult, error)) (*models.MovementResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.escrows[id]
	if !ok {
		return nil, apperror.ErrEscrowNotFound
	}
	e := *stored
	if err := e.Verify(); err != nil {
		return nil, err
	}
	before := e.Remaining()

	g, err := r.guard(&e)
	if err != nil {
		return nil, err
	}
	res, err := fn(&e, g)
	if err != nil {
		return nil, err
	}

	r.escrows[id] = &e
	r.appendTx(&e, kind, before.Sub(e.Remaining()), reason, actorID, now)
	r.payments = append(r.payments, *res.Payment)
	if res.MilestonePaid {
		if m, ok := r.milestones[*e.MilestoneID]; ok {
			paid := *m
			paid.Status = valueobject.MilestoneStatusPaid
			paid.PaymentReleased = true
			paid.PaidAt = &now
			r.milestones[m.ID] = &paid
		}
	}

	out := e
	res.Escrow = &out
	return res, nil
}

func (r memEscrows) guard(e *models.Escrow) (models.MovementGuard, error) {
	var g models.MovementGuard
	for _, d := range r.disputes {
		if d.ProjectID == e.ProjectID && d.PaymentHeld {
			g.DisputeHold = true
		}
	}
	p, ok := r.projects[e.ProjectID]
	if !ok {
		return g, apperror.ErrProjectNotFound
	}
	g.CommissionPercentage = p.CommissionPercentage
	if e.MilestoneID != nil {
		m, ok := r.milestones[*e.MilestoneID]
		if !ok {
			return g, apperror.ErrMilestoneNotFound
		}
		g.MilestoneApproved = m.ClientApproved
	}
	return g, nil
}

func (s *memStore) appendTx(e *models.Escrow, kind string, amount decimal.Decimal, reason *string, actorID *uuid.UUID, now time.Time) {
	tx := models.EscrowTransaction{
		ID:        uuid.New(),
		EscrowID:  e.ID,
		ProjectID: e.ProjectID,
		Type:      kind,
		Amount:    amount,
		Reason:    reason,
		ActorID:   actorID,
		CreatedAt: now,
	}
	s.ledger = append(s.ledger, tx)
}

func (s *memStore) filterEscrows(keep func(e *models.Escrow) bool) []models.Escrow {
	var out []models.Escrow
	for _, e := range s.escrows {
		if keep(e) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// disputes

type memDisputes struct{ *memStore }

func (r memDisputes) Open(_ context.Context, d *models.Dispute, now time.Time) ([]models.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[d.ProjectID]
	if !ok {
		return nil, apperror.ErrProjectNotFound
	}
	if p.Status.IsTerminal() {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "проект в статусе %s, спор открыть нельзя", p.Status)
	}
	for _, other := range r.disputes {
		if other.ProjectID == d.ProjectID && other.Status.IsActive() {
			return nil, models.ErrDisputeActive
		}
	}

	var held []models.Escrow
	updated := map[uuid.UUID]*models.Escrow{}
	for _, e := range r.filterEscrows(func(e *models.Escrow) bool { return e.ProjectID == d.ProjectID }) {
		if !e.Remaining().IsPositive() || e.Status == valueobject.EscrowStatusCancelled {
			continue
		}
		changed, err := e.ApplyDisputeHold(now)
		if err != nil {
			return nil, err
		}
		if changed {
			cp := e
			updated[e.ID] = &cp
		}
		held = append(held, e)
	}
	for id, e := range updated {
		r.escrows[id] = e
		r.appendTx(e, models.EscrowTxDisputeHold, e.Remaining(), nil, nil, now)
	}
	if len(held) > 0 && d.EscrowID == nil {
		d.EscrowID = &held[0].ID
	}

	cp := *d
	r.disputes[d.ID] = &cp
	project := *p
	project.Status = valueobject.ProjectStatusDisputed
	project.UpdatedAt = now
	r.projects[p.ID] = &project
	return held, nil
}

func (r memDisputes) GetByID(_ context.Context, id uuid.UUID) (*models.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.disputes[id]
	if !ok {
		return nil, apperror.ErrDisputeNotFound
	}
	cp := *d
	return &cp, nil
}

func (r memDisputes) ListByProject(_ context.Context, projectID uuid.UUID) ([]models.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Dispute
	for _, d := range r.disputes {
		if d.ProjectID == projectID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r memDisputes) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Dispute
	for _, d := range r.disputes {
		if d.IsParticipant(userID) {
			out = append(out, *d)
		}
	}
	return page(out, limit, offset), nil
}

func (r memDisputes) Update(_ context.Context, id uuid.UUID, fn func(d *models.Dispute, p *models.Project) error) (*models.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.disputes[id]
	if !ok {
		return nil, apperror.ErrDisputeNotFound
	}
	d := *stored
	p := *r.projects[d.ProjectID]
	if err := fn(&d, &p); err != nil {
		return nil, err
	}
	r.disputes[id] = &d
	r.projects[p.ID] = &p
	out := d
	return &out, nil
}

// contracts

type memContracts struct{ *memStore }

func (r memContracts) Create(_ context.Context, c *models.Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.contracts {
		if other.ProjectID == c.ProjectID {
			return apperror.New(apperror.ErrCodeConflict, "контракт для проекта уже существует")
		}
	}
	cp := *c
	r.contracts[c.ID] = &cp
	return nil
}

func (r memContracts) GetByID(_ context.Context, id uuid.UUID) (*models.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contracts[id]
	if !ok {
		return nil, apperror.ErrContractNotFound
	}
	cp := *c
	return &cp, nil
}

func (r memContracts) GetByProject(_ context.Context, projectID uuid.UUID) (*models.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contracts {
		if c.ProjectID == projectID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperror.ErrContractNotFound
}

func (r memContracts) Update(_ context.Context, id uuid.UUID, fn func(c *models.Contract, p *models.Project) error) (*models.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.contracts[id]
	if !ok {
		return nil, apperror.ErrContractNotFound
	}
	c := *stored
	p := *r.projects[c.ProjectID]
	if err := fn(&c, &p); err != nil {
		return nil, err
	}
	r.contracts[id] = &c
	r.projects[p.ID] = &p
	out := c
	return &out, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}
