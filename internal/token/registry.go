package token

import (
	"errors"
	"sync"
)

var (
	ErrNonTransferable = errors.New("debt receipt is non-transferable")
	ErrCannotApprove   = errors.New("debt receipt cannot be approved")
	ErrNotPaidOff      = errors.New("loan is not settled")
	ErrAlreadyMinted   = errors.New("receipt already minted for loan")
	ErrNotMinted       = errors.New("no receipt minted for loan")
)

// Registry tracks the per-loan debt receipt: minted exactly once on
// acceptance, burned exactly once on settlement, never transferable and never
// approvable. One token per loan id; a burned id can never be re-minted.
type Registry struct {
	mu     sync.Mutex
	owners map[uint64]string
	burned map[uint64]bool
}

func NewRegistry() *Registry {
	return &Registry{owners: make(map[uint64]string), burned: make(map[uint64]bool)}
}

func (r *Registry) Mint(loanID uint64, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[loanID]; ok {
		return ErrAlreadyMinted
	}
	if r.burned[loanID] {
		return ErrAlreadyMinted
	}
	r.owners[loanID] = to
	return nil
}

// Burn destroys the receipt. The caller asserts the loan reached a terminal
// status; burning the marker of a live obligation is forbidden.
func (r *Registry) Burn(loanID uint64, settled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[loanID]; !ok {
		return ErrNotMinted
	}
	if !settled {
		return ErrNotPaidOff
	}
	delete(r.owners, loanID)
	r.burned[loanID] = true
	return nil
}

// Exists reports whether the receipt for loanID is currently live.
func (r *Registry) Exists(loanID uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.owners[loanID]
	return ok
}

func (r *Registry) OwnerOf(loanID uint64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.owners[loanID]
	return o, ok
}

// Transfer always fails: the receipt is a claim marker, not a tradable asset.
func (r *Registry) Transfer(loanID uint64, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[loanID]; !ok {
		return ErrNotMinted
	}
	return ErrNonTransferable
}

// Approve fails unconditionally.
func (r *Registry) Approve(loanID uint64, spender string) error {
	return ErrCannotApprove
}

// Hydrate seeds the registry from persisted active loans at startup.
func (r *Registry) Hydrate(active map[uint64]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, debtor := range active {
		r.owners[id] = debtor
	}
}
