package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/google/uuid"

	"vendotrash/internal/domain"
	"vendotrash/internal/repository"
)

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[int]*domain.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int]*domain.User{}, nextID: 1}
}

func (r *fakeUserRepo) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return nil, repository.ErrDuplicateEntry
		}
	}
	u.ID = r.nextID
	r.nextID++
	u.IsActive = true
	u.CreatedAt = time.Now().UTC()
	cp := *u
	r.users[u.ID] = &cp
	return u, nil
}

func (r *fakeUserRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) FindByLogin(_ context.Context, login string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == login || strings.EqualFold(u.Email, login) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) FindByID(_ context.Context, id int) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) List(_ context.Context, skip, limit int) ([]domain.User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []domain.User
	for _, u := range r.users {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, skip, limit), len(all), nil
}

func page[T any](all []T, skip, limit int) []T {
	if skip >= len(all) {
		return nil
	}
	end := skip + limit
	if end > len(all) {
		end = len(all)
	}
	return all[skip:end]
}

type fakeTxRepo struct {
	mu    sync.Mutex
	txs   []domain.Transaction
	users *fakeUserRepo
	err   error
}

func (r *fakeTxRepo) CreateWithCounters(_ context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	t.CreatedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r.txs = append(r.txs, *t)
	if r.users != nil {
		r.users.mu.Lock()
		if u, ok := r.users.users[t.UserID]; ok {
			u.TotalPoints += t.PointsEarned
			u.TotalTransactions++
		}
		r.users.mu.Unlock()
	}
	return t, nil
}

func (r *fakeTxRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.txs {
		if t.ID == id {
			cp := t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeTxRepo) ListByUser(_ context.Context, userID int, skip, limit int) ([]domain.Transaction, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var mine []domain.Transaction
	for _, t := range r.txs {
		if t.UserID == userID {
			mine = append(mine, t)
		}
	}
	return page(mine, skip, limit), len(mine), nil
}

func (r *fakeTxRepo) List(_ context.Context, skip, limit int) ([]domain.Transaction, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return page(r.txs, skip, limit), len(r.txs), nil
}

type fakeRewardRepo struct {
	rewards map[int]*domain.Reward
}

func (r *fakeRewardRepo) Create(_ context.Context, rw *domain.Reward) (*domain.Reward, error) {
	rw.ID = len(r.rewards) + 1
	cp := *rw
	r.rewards[rw.ID] = &cp
	return rw, nil
}

func (r *fakeRewardRepo) FindByID(_ context.Context, id int) (*domain.Reward, error) {
	rw, ok := r.rewards[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rw
	return &cp, nil
}

func (r *fakeRewardRepo) List(_ context.Context, activeOnly bool) ([]domain.Reward, error) {
	var out []domain.Reward
	for i := 1; i <= len(r.rewards); i++ {
		rw, ok := r.rewards[i]
		if !ok || (activeOnly && !rw.IsActive) {
			continue
		}
		out = append(out, *rw)
	}
	return out, nil
}

func (r *fakeRewardRepo) Update(_ context.Context, rw *domain.Reward) (*domain.Reward, error) {
	if _, ok := r.rewards[rw.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rw
	r.rewards[rw.ID] = &cp
	return rw, nil
}

type fakeRedemptionRepo struct {
	users       *fakeUserRepo
	redemptions []domain.Redemption
}

func (r *fakeRedemptionRepo) CreateWithDeduction(_ context.Context, rd *domain.Redemption) (*domain.Redemption, error) {
	r.users.mu.Lock()
	defer r.users.mu.Unlock()
	u, ok := r.users.users[rd.UserID]
	if !ok || u.TotalPoints < rd.PointsUsed {
		return nil, repository.ErrInsufficientPoints
	}
	u.TotalPoints -= rd.PointsUsed
	rd.ID = len(r.redemptions) + 1
	r.redemptions = append(r.redemptions, *rd)
	return rd, nil
}

func (r *fakeRedemptionRepo) FindByID(_ context.Context, id int) (*domain.Redemption, error) {
	for _, rd := range r.redemptions {
		if rd.ID == id {
			cp := rd
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRedemptionRepo) ListByUser(_ context.Context, userID int, skip, limit int) ([]domain.Redemption, int, error) {
	var mine []domain.Redemption
	for _, rd := range r.redemptions {
		if rd.UserID == userID {
			mine = append(mine, rd)
		}
	}
	return page(mine, skip, limit), len(mine), nil
}

func (r *fakeRedemptionRepo) List(_ context.Context, skip, limit int) ([]domain.Redemption, int, error) {
	return page(r.redemptions, skip, limit), len(r.redemptions), nil
}

type statusUpdate struct {
	id     int
	status domain.MachineStatus
}

type fakeMachineRepo struct {
	machines  map[int]*domain.Machine
	statuses  []statusUpdate
	binLevels map[int]int
	touched   []int
	updateErr error
}

func newFakeMachineRepo(machines ...domain.Machine) *fakeMachineRepo {
	r := &fakeMachineRepo{machines: map[int]*domain.Machine{}, binLevels: map[int]int{}}
	for i := range machines {
		m := machines[i]
		r.machines[m.ID] = &m
	}
	return r
}

func (r *fakeMachineRepo) Create(_ context.Context, m *domain.Machine) (*domain.Machine, error) {
	for _, existing := range r.machines {
		if existing.Name == m.Name {
			return nil, repository.ErrDuplicateEntry
		}
	}
	m.ID = len(r.machines) + 1
	cp := *m
	r.machines[m.ID] = &cp
	return m, nil
}

func (r *fakeMachineRepo) FindByID(_ context.Context, id int) (*domain.Machine, error) {
	m, ok := r.machines[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMachineRepo) FindByThingName(_ context.Context, thingName string) (*domain.Machine, error) {
	for _, m := range r.machines {
		if m.ThingName.Valid && m.ThingName.String == thingName {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeMachineRepo) FindAll(_ context.Context) ([]domain.Machine, error) {
	var out []domain.Machine
	for _, m := range r.machines {
		out = append(out, *m)
	}
	return out, nil
}

func (r *fakeMachineRepo) UpdateStatus(_ context.Context, id int, status domain.MachineStatus, _ time.Time) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	m, ok := r.machines[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.Status = status
	r.statuses = append(r.statuses, statusUpdate{id, status})
	return nil
}

func (r *fakeMachineRepo) UpdateBinLevel(_ context.Context, id int, fill int, _ time.Time) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.machines[id]; !ok {
		return repository.ErrNotFound
	}
	r.binLevels[id] = fill
	return nil
}

func (r *fakeMachineRepo) Touch(_ context.Context, id int, _ time.Time) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.touched = append(r.touched, id)
	return nil
}

type fakeEventLog struct {
	entries []domain.MachineEventLog
}

func (r *fakeEventLog) Create(_ context.Context, e *domain.MachineEventLog) error {
	r.entries = append(r.entries, *e)
	return nil
}

type fakeDetector struct {
	labels domain.LabelSet
	err    error
	calls  int
}

func (d *fakeDetector) DetectLabels(_ context.Context, _ []byte) (domain.LabelSet, error) {
	d.calls++
	return d.labels, d.err
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []domain.DetectionEvent
}

func (n *fakeNotifier) NotifyUser(_ int, event domain.DetectionEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

type sortCall struct {
	machineID int
	material  domain.Material
}

type fakeSorter struct {
	calls []sortCall
	err   error
}

func (s *fakeSorter) SendSortCommand(_ context.Context, machineID int, material domain.Material) (string, error) {
	s.calls = append(s.calls, sortCall{machineID, material})
	return "req-1", s.err
}

type fakeRekognition struct {
	out         *rekognition.DetectLabelsOutput
	err         error
	input       *rekognition.DetectLabelsInput
	hadDeadline bool
}

func (f *fakeRekognition) DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, _ ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error) {
	f.input = params
	_, f.hadDeadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fakePublisher struct {
	inputs []*iotdataplane.PublishInput
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, params *iotdataplane.PublishInput, _ ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &iotdataplane.PublishOutput{}, nil
}
