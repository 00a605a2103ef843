package asset

import (
	"context"
	"fmt"
	"sync"

	"lendfact-backend/internal/domain/currency"
)

// LedgerTransferor keeps per-asset balances in memory. It backs development
// wiring and tests; production deployments swap in a chain-backed transferor.
type LedgerTransferor struct {
	mu       sync.Mutex
	self     string
	balances map[string]map[string]currency.Wad // asset → account → balance
}

func NewLedgerTransferor(self string) *LedgerTransferor {
	return &LedgerTransferor{self: self, balances: make(map[string]map[string]currency.Wad)}
}

// Self is the engine's own holding account.
func (t *LedgerTransferor) Self() string { return t.self }

// Credit seeds an account balance.
func (t *LedgerTransferor) Credit(asset, account string, amount currency.Wad) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(asset, account, amount)
}

func (t *LedgerTransferor) credit(asset, account string, amount currency.Wad) {
	m := t.balances[asset]
	if m == nil {
		m = make(map[string]currency.Wad)
		t.balances[asset] = m
	}
	m[account] = m[account].Add(amount)
}

func (t *LedgerTransferor) debit(asset, account string, amount currency.Wad) error {
	m := t.balances[asset]
	if m == nil || m[account].Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s/%s", ErrInsufficientFunds, asset, account)
	}
	m[account] = m[account].Sub(amount)
	return nil
}

func (t *LedgerTransferor) Balance(asset, account string) currency.Wad {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[asset][account]
}

func (t *LedgerTransferor) TransferFrom(_ context.Context, asset, from, to string, amount currency.Wad) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.debit(asset, from, amount); err != nil {
		return err
	}
	t.credit(asset, to, amount)
	return nil
}

func (t *LedgerTransferor) Transfer(ctx context.Context, asset, to string, amount currency.Wad) error {
	return t.TransferFrom(ctx, asset, t.self, to, amount)
}

// NativeLedger is the native-coin counterpart of LedgerTransferor.
type NativeLedger struct {
	mu       sync.Mutex
	self     string
	balances map[string]currency.Wad
}

func NewNativeLedger(self string) *NativeLedger {
	return &NativeLedger{self: self, balances: make(map[string]currency.Wad)}
}

func (n *NativeLedger) Credit(account string, amount currency.Wad) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.balances[account] = n.balances[account].Add(amount)
}

func (n *NativeLedger) Balance(account string) currency.Wad {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.balances[account]
}

// Collect pulls value from an account into the engine's own account.
func (n *NativeLedger) Collect(_ context.Context, from string, amount currency.Wad) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.balances[from].Cmp(amount) < 0 {
		return fmt.Errorf("%w: native/%s", ErrInsufficientFunds, from)
	}
	n.balances[from] = n.balances[from].Sub(amount)
	n.balances[n.self] = n.balances[n.self].Add(amount)
	return nil
}

func (n *NativeLedger) Send(_ context.Context, to string, amount currency.Wad) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.balances[n.self].Cmp(amount) < 0 {
		return fmt.Errorf("%w: native/%s", ErrInsufficientFunds, n.self)
	}
	n.balances[n.self] = n.balances[n.self].Sub(amount)
	n.balances[to] = n.balances[to].Add(amount)
	return nil
}
