package asset

import (
	"context"
	"errors"

	"lendfact-backend/internal/domain/currency"
)

var (
	ErrTransferFailed = errors.New("asset transfer failed")
	// ErrRefundFailed marks a failed native-coin refund of payoff
	// overpayment, as opposed to the creditor payout leg.
	ErrRefundFailed      = errors.New("native refund failed")
	ErrInsufficientFunds = errors.New("insufficient balance")
)

// TokenTransferor is the fungible-asset collaborator. The engine holds the
// in-flight funds: payments are pulled from the debtor to the engine's own
// account, then pushed out with Transfer. Any failure must abort the whole
// enclosing operation.
type TokenTransferor interface {
	TransferFrom(ctx context.Context, asset, from, to string, amount currency.Wad) error
	Transfer(ctx context.Context, asset, to string, amount currency.Wad) error
}

// NativeTransferor moves the chain's native currency. Collect pulls a
// debtor's declared payment into the engine's own account; Send pushes from
// the engine's account outward. Payment paths collect before they distribute,
// so a debtor who cannot cover the declared value fails the whole operation.
type NativeTransferor interface {
	Collect(ctx context.Context, from string, amount currency.Wad) error
	Send(ctx context.Context, to string, amount currency.Wad) error
}
