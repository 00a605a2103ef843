package manager

import (
	"errors"
	"sync"
)

var (
	ErrOwnerCannotBeManager = errors.New("owner cannot be a manager")
	ErrAlreadyManager       = errors.New("account is already a manager")
	ErrNotAManager          = errors.New("account is not a manager")
	// ErrNotManager is the authorization-gate failure: the account is
	// neither a member nor the owner.
	ErrNotManager = errors.New("caller is not a manager")
)

// Set is the mutable set of privileged accounts gating administrative
// operations. The owner is implicitly authorized and may never be an explicit
// member. Removal swaps the target with the last element, so the externally
// observable list order is not stable across removals.
type Set struct {
	mu      sync.Mutex
	owner   string
	members []string
	index   map[string]int
}

func NewSet(owner string) *Set {
	return &Set{owner: owner, index: make(map[string]int)}
}

func (s *Set) Owner() string { return s.owner }

func (s *Set) Add(account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account == "" || account == s.owner {
		return ErrOwnerCannotBeManager
	}
	if _, ok := s.index[account]; ok {
		return ErrAlreadyManager
	}
	s.index[account] = len(s.members)
	s.members = append(s.members, account)
	return nil
}

func (s *Set) Remove(account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[account]
	if !ok {
		return ErrNotAManager
	}
	last := len(s.members) - 1
	if i != last {
		moved := s.members[last]
		s.members[i] = moved
		s.index[moved] = i
	}
	s.members = s.members[:last]
	delete(s.index, account)
	return nil
}

func (s *Set) IsMember(account string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[account]
	return ok
}

// List returns a copy of the current members. Order is not meaningful.
func (s *Set) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.members))
	copy(out, s.members)
	return out
}

// Check passes when account is a member or the owner.
func (s *Set) Check(account string) error {
	if account == s.owner {
		return nil
	}
	if !s.IsMember(account) {
		return ErrNotManager
	}
	return nil
}
