package admin

import (
	"context"
	"fmt"
	"log/slog"

	"lendfact-backend/internal/asset"
	"lendfact-backend/internal/domain/currency"
	"lendfact-backend/internal/domain/fees"
	domain "lendfact-backend/internal/domain/loan"
	"lendfact-backend/internal/domain/manager"
	"lendfact-backend/internal/domain/uow"
)

// Usecase covers the owner-gated surface: the authorization set, the protocol
// fee rate, and the fee-ledger withdrawals.
type Usecase struct {
	managers *manager.Set
	policy   *fees.Policy
	uow      uow.UnitOfWork
	tokens   asset.TokenTransferor
	native   asset.NativeTransferor
	log      *slog.Logger
}

func NewUsecase(set *manager.Set, policy *fees.Policy, tx uow.UnitOfWork, tokens asset.TokenTransferor, native asset.NativeTransferor, log *slog.Logger) *Usecase {
	if log == nil {
		log = slog.Default()
	}
	return &Usecase{managers: set, policy: policy, uow: tx, tokens: tokens, native: native, log: log}
}

func (u *Usecase) requireOwner(caller string) error {
	if caller != u.managers.Owner() {
		return domain.ErrNotAuthorized
	}
	return nil
}

func (u *Usecase) AddManager(caller, account string) error {
	if err := u.requireOwner(caller); err != nil {
		return err
	}
	if err := u.managers.Add(account); err != nil {
		return err
	}
	u.log.Info("manager_added", "account", account)
	return nil
}

func (u *Usecase) RemoveManager(caller, account string) error {
	if err := u.requireOwner(caller); err != nil {
		return err
	}
	if err := u.managers.Remove(account); err != nil {
		return err
	}
	u.log.Info("manager_removed", "account", account)
	return nil
}

func (u *Usecase) Managers() []string { return u.managers.List() }

func (u *Usecase) IsManager(account string) bool { return u.managers.IsMember(account) }

func (u *Usecase) ProtocolFeeBps() uint32 { return u.policy.Bps() }

func (u *Usecase) SetProtocolFee(caller string, bps uint32) error {
	if err := u.requireOwner(caller); err != nil {
		return err
	}
	if err := u.policy.SetBps(bps); err != nil {
		return err
	}
	u.log.Info("protocol_fee_set", "bps", bps)
	return nil
}

// WithdrawFees drains the token fee ledger for an asset and transfers it out.
// A zero balance is a no-op, not a failure.
func (u *Usecase) WithdrawFees(ctx context.Context, caller, assetID, to string) (currency.Wad, error) {
	if err := u.requireOwner(caller); err != nil {
		return currency.Wad{}, err
	}
	var amount currency.Wad
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		amount, err = r.Fees.Drain(ctx, fees.KindToken, assetID)
		if err != nil {
			return err
		}
		if amount.IsZero() {
			return nil
		}
		if err := u.tokens.Transfer(ctx, assetID, to, amount); err != nil {
			return fmt.Errorf("%w: %v", asset.ErrTransferFailed, err)
		}
		return nil
	})
	if err != nil {
		return currency.Wad{}, err
	}
	if !amount.IsZero() {
		u.log.Info("fees_withdrawn", "asset", assetID, "to", to, "amount", amount.String())
	}
	return amount, nil
}

// WithdrawNativeFees drains the native-coin fee ledger.
func (u *Usecase) WithdrawNativeFees(ctx context.Context, caller, to string) (currency.Wad, error) {
	if err := u.requireOwner(caller); err != nil {
		return currency.Wad{}, err
	}
	var amount currency.Wad
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		amount, err = r.Fees.Drain(ctx, fees.KindNative, fees.NativeAsset)
		if err != nil {
			return err
		}
		if amount.IsZero() {
			return nil
		}
		if err := u.native.Send(ctx, to, amount); err != nil {
			return fmt.Errorf("%w: %v", asset.ErrTransferFailed, err)
		}
		return nil
	})
	if err != nil {
		return currency.Wad{}, err
	}
	if !amount.IsZero() {
		u.log.Info("native_fees_withdrawn", "to", to, "amount", amount.String())
	}
	return amount, nil
}
