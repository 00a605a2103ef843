package memuow

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"lendfact-backend/internal/domain/currency"
	"lendfact-backend/internal/domain/fees"
	domain "lendfact-backend/internal/domain/loan"
	"lendfact-backend/internal/domain/uow"
)

// Store is an in-memory stand-in for the gorm repositories plus the unit of
// work. WithinTx snapshots the whole store and restores it when fn fails, so
// tests observe the same all-or-nothing behavior as a real transaction.
type Store struct {
	mu    sync.Mutex
	loans map[uint64]domain.Loan
	fees  map[string]currency.Wad
}

func New() *Store {
	return &Store{loans: make(map[uint64]domain.Loan), fees: make(map[string]currency.Wad)}
}

// Put seeds a loan directly.
func (s *Store) Put(l domain.Loan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loans[l.ID] = l
}

// Loan returns a stored loan by value; missing ids return a zero Loan.
func (s *Store) Loan(id uint64) domain.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loans[id]
}

func feeKey(kind fees.Kind, asset string) string { return string(kind) + "|" + asset }

func (s *Store) FeeBalance(kind fees.Kind, asset string) currency.Wad {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fees[feeKey(kind, asset)]
}

func (s *Store) snapshot() (map[uint64]domain.Loan, map[string]currency.Wad) {
	loans := make(map[uint64]domain.Loan, len(s.loans))
	for k, v := range s.loans {
		loans[k] = v
	}
	f := make(map[string]currency.Wad, len(s.fees))
	for k, v := range s.fees {
		f[k] = v
	}
	return loans, f
}

func (s *Store) restore(loans map[uint64]domain.Loan, f map[string]currency.Wad) {
	s.loans = loans
	s.fees = f
}

var _ uow.UnitOfWork = (*Store)(nil)

func (s *Store) repos() uow.Repos {
	return uow.Repos{Loans: &loanRepo{s: s}, Fees: &feeRepo{s: s}}
}

func (s *Store) WithinTx(_ context.Context, fn func(r uow.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loans, f := s.snapshot()
	if err := fn(s.repos()); err != nil {
		s.restore(loans, f)
		return err
	}
	return nil
}

func (s *Store) WithinLoanTx(ctx context.Context, id uint64, fn func(r uow.Repos, l *domain.Loan) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.loans[id]
	if !ok {
		return domain.ErrNotFound
	}
	loans, f := s.snapshot()
	l := stored
	if err := fn(s.repos(), &l); err != nil {
		s.restore(loans, f)
		return err
	}
	return nil
}

// Loans exposes the store as a read repository for engine queries.
func (s *Store) Loans() domain.Repository { return &loanRepo{s: s, external: true} }

type loanRepo struct {
	s *Store
	// external repos take the store lock; repos handed out inside a tx
	// run under the already-held lock.
	external bool
}

func (r *loanRepo) lock() func() {
	if !r.external {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r *loanRepo) Create(_ context.Context, l *domain.Loan) error {
	defer r.lock()()
	r.s.loans[l.ID] = *l
	return nil
}

func (r *loanRepo) Save(_ context.Context, l *domain.Loan) error {
	defer r.lock()()
	r.s.loans[l.ID] = *l
	return nil
}

func (r *loanRepo) GetByID(_ context.Context, id uint64) (*domain.Loan, error) {
	defer r.lock()()
	l, ok := r.s.loans[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := l
	return &out, nil
}

func (r *loanRepo) GetByIDForUpdate(ctx context.Context, id uint64) (*domain.Loan, error) {
	return r.GetByID(ctx, id)
}

func (r *loanRepo) NextID(_ context.Context) (uint64, error) {
	defer r.lock()()
	var next uint64
	for id := range r.s.loans {
		if id+1 > next {
			next = id + 1
		}
	}
	return next, nil
}

func (r *loanRepo) ListPendingUnexpired(_ context.Context, now time.Time) ([]uint64, error) {
	defer r.lock()()
	var ids []uint64
	for id, l := range r.s.loans {
		if l.Status == domain.StatusPending && l.Expiry.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *loanRepo) ListActive(_ context.Context) (map[uint64]string, error) {
	defer r.lock()()
	out := make(map[uint64]string)
	for id, l := range r.s.loans {
		if l.Status == domain.StatusActive {
			out[id] = l.Debtor
		}
	}
	return out, nil
}

type feeRepo struct{ s *Store }

func (r *feeRepo) Credit(_ context.Context, kind fees.Kind, asset string, amount currency.Wad) error {
	k := feeKey(kind, asset)
	r.s.fees[k] = r.s.fees[k].Add(amount)
	return nil
}

func (r *feeRepo) Balance(_ context.Context, kind fees.Kind, asset string) (currency.Wad, error) {
	return r.s.fees[feeKey(kind, asset)], nil
}

func (r *feeRepo) Drain(_ context.Context, kind fees.Kind, asset string) (currency.Wad, error) {
	k := feeKey(kind, asset)
	out := r.s.fees[k]
	r.s.fees[k] = currency.Zero()
	return out, nil
}
