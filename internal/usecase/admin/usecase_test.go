package admin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"lendfact-backend/internal/asset"
	"lendfact-backend/internal/domain/currency"
	"lendfact-backend/internal/domain/fees"
	domain "lendfact-backend/internal/domain/loan"
	"lendfact-backend/internal/domain/manager"
	"lendfact-backend/internal/domain/uow"
	"lendfact-backend/internal/testutil/memuow"
)

const (
	engineAcct   = "ffffffffffffffffffffffffffffffff"
	ownerAcct    = "0000000000000000000000000000aaaa"
	treasuryAcct = "0000000000000000000000000000bbbb"
)

type adminFixture struct {
	uc     *Usecase
	store  *memuow.Store
	tokens *asset.LedgerTransferor
	native *asset.NativeLedger
}

func newFixture(t *testing.T) *adminFixture {
	t.Helper()
	policy, err := fees.NewPolicy(100)
	if err != nil {
		t.Fatal(err)
	}
	f := &adminFixture{
		store:  memuow.New(),
		tokens: asset.NewLedgerTransferor(engineAcct),
		native: asset.NewNativeLedger(engineAcct),
	}
	f.uc = NewUsecase(
		manager.NewSet(ownerAcct),
		policy,
		f.store,
		f.tokens,
		f.native,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

func (f *adminFixture) creditFees(t *testing.T, kind fees.Kind, assetID string, amount int64) {
	t.Helper()
	err := f.store.WithinTx(context.Background(), func(r uow.Repos) error {
		return r.Fees.Credit(context.Background(), kind, assetID, currency.FromInt64(amount))
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestManagers_OwnerGated(t *testing.T) {
	f := newFixture(t)

	if err := f.uc.AddManager("stranger", "m1"); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("stranger add: err = %v, want ErrNotAuthorized", err)
	}
	if err := f.uc.AddManager(ownerAcct, "m1"); err != nil {
		t.Fatalf("AddManager: %v", err)
	}
	if !f.uc.IsManager("m1") {
		t.Fatal("m1 not reported as manager")
	}
	if got := f.uc.Managers(); len(got) != 1 || got[0] != "m1" {
		t.Fatalf("Managers = %v", got)
	}
	if err := f.uc.AddManager(ownerAcct, ownerAcct); !errors.Is(err, manager.ErrOwnerCannotBeManager) {
		t.Fatalf("owner as manager: err = %v", err)
	}
	if err := f.uc.RemoveManager("stranger", "m1"); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("stranger remove: err = %v, want ErrNotAuthorized", err)
	}
	if err := f.uc.RemoveManager(ownerAcct, "m1"); err != nil {
		t.Fatalf("RemoveManager: %v", err)
	}
	if f.uc.IsManager("m1") {
		t.Fatal("m1 still reported after removal")
	}
}

func TestSetProtocolFee(t *testing.T) {
	f := newFixture(t)

	if err := f.uc.SetProtocolFee("stranger", 200); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("stranger: err = %v, want ErrNotAuthorized", err)
	}
	if err := f.uc.SetProtocolFee(ownerAcct, domain.MaxProtocolFeeBps+1); !errors.Is(err, domain.ErrInvalidProtocolFee) {
		t.Fatalf("above cap: err = %v, want ErrInvalidProtocolFee", err)
	}
	if err := f.uc.SetProtocolFee(ownerAcct, 250); err != nil {
		t.Fatalf("SetProtocolFee: %v", err)
	}
	if got := f.uc.ProtocolFeeBps(); got != 250 {
		t.Fatalf("fee = %d, want 250", got)
	}
}

func TestWithdrawFees(t *testing.T) {
	f := newFixture(t)
	f.creditFees(t, fees.KindToken, "usdx", 75)
	f.tokens.Credit("usdx", engineAcct, currency.FromInt64(75))

	if _, err := f.uc.WithdrawFees(context.Background(), "stranger", "usdx", treasuryAcct); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("stranger: err = %v, want ErrNotAuthorized", err)
	}
	got, err := f.uc.WithdrawFees(context.Background(), ownerAcct, "usdx", treasuryAcct)
	if err != nil {
		t.Fatalf("WithdrawFees: %v", err)
	}
	if got.Cmp(currency.FromInt64(75)) != 0 {
		t.Fatalf("withdrawn = %s, want 75", got)
	}
	if bal := f.tokens.Balance("usdx", treasuryAcct); bal.Cmp(currency.FromInt64(75)) != 0 {
		t.Fatalf("treasury balance = %s, want 75", bal)
	}
	if bal := f.store.FeeBalance(fees.KindToken, "usdx"); !bal.IsZero() {
		t.Fatalf("fee ledger = %s after drain, want 0", bal)
	}

	// drained ledger: withdrawing again is a no-op, not an error
	got, err = f.uc.WithdrawFees(context.Background(), ownerAcct, "usdx", treasuryAcct)
	if err != nil {
		t.Fatalf("second withdraw: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("second withdraw = %s, want 0", got)
	}
}

func TestWithdrawFees_RollsBackOnTransferFailure(t *testing.T) {
	f := newFixture(t)
	f.creditFees(t, fees.KindToken, "usdx", 75)
	// engine holding account never funded: the outbound transfer fails

	_, err := f.uc.WithdrawFees(context.Background(), ownerAcct, "usdx", treasuryAcct)
	if !errors.Is(err, asset.ErrTransferFailed) {
		t.Fatalf("err = %v, want ErrTransferFailed", err)
	}
	if bal := f.store.FeeBalance(fees.KindToken, "usdx"); bal.Cmp(currency.FromInt64(75)) != 0 {
		t.Fatalf("fee ledger = %s after failed withdraw, want 75", bal)
	}
}

func TestWithdrawNativeFees(t *testing.T) {
	f := newFixture(t)
	f.creditFees(t, fees.KindNative, fees.NativeAsset, 40)
	f.native.Credit(engineAcct, currency.FromInt64(40))

	got, err := f.uc.WithdrawNativeFees(context.Background(), ownerAcct, treasuryAcct)
	if err != nil {
		t.Fatalf("WithdrawNativeFees: %v", err)
	}
	if got.Cmp(currency.FromInt64(40)) != 0 {
		t.Fatalf("withdrawn = %s, want 40", got)
	}
	if bal := f.native.Balance(treasuryAcct); bal.Cmp(currency.FromInt64(40)) != 0 {
		t.Fatalf("treasury native balance = %s, want 40", bal)
	}
	if bal := f.store.FeeBalance(fees.KindNative, fees.NativeAsset); !bal.IsZero() {
		t.Fatalf("native fee ledger = %s after drain, want 0", bal)
	}
}
