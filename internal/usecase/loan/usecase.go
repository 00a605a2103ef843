package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"gorm.io/gorm"

	"lendfact-backend/internal/asset"
	"lendfact-backend/internal/domain/currency"
	"lendfact-backend/internal/domain/fees"
	domain "lendfact-backend/internal/domain/loan"
	"lendfact-backend/internal/domain/manager"
	"lendfact-backend/internal/domain/uow"
	"lendfact-backend/internal/pricefeed"
	"lendfact-backend/internal/token"
)

// Usecase is the loan lifecycle engine. Every mutating operation runs under
// the re-entrancy guard and inside a unit-of-work transaction: record
// mutations are saved before the external transfer legs run, and any failure
// rolls the whole operation back. Receipt mint/burn runs as the final step
// inside the transaction, so a failed operation leaves no token side effect.
type Usecase struct {
	mu sync.Mutex // re-entrancy guard for payment and acceptance paths

	account  string // the engine's own holding account for in-flight funds
	loans    domain.Repository
	uow      uow.UnitOfWork
	conv     *pricefeed.Converter
	tokens   asset.TokenTransferor
	native   asset.NativeTransferor
	receipts *token.Registry
	managers *manager.Set
	policy   *fees.Policy
	log      *slog.Logger
	now      func() time.Time
}

type Deps struct {
	Account   string
	Loans     domain.Repository
	UoW       uow.UnitOfWork
	Converter *pricefeed.Converter
	Tokens    asset.TokenTransferor
	Native    asset.NativeTransferor
	Receipts  *token.Registry
	Managers  *manager.Set
	FeePolicy *fees.Policy
	Logger    *slog.Logger
	Now       func() time.Time
}

func NewUsecase(d Deps) *Usecase {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Usecase{
		account:  d.Account,
		loans:    d.Loans,
		uow:      d.UoW,
		conv:     d.Converter,
		tokens:   d.Tokens,
		native:   d.Native,
		receipts: d.Receipts,
		managers: d.Managers,
		policy:   d.FeePolicy,
		log:      d.Logger,
		now:      d.Now,
	}
}

type RequestLoanInput struct {
	Debtor             string       `json:"debtor"`
	DesignatedCreditor string       `json:"designated_creditor"`
	Asset              string       `json:"asset"`
	Amount             currency.Wad `json:"amount"`
	RateBps            uint32       `json:"rate_bps"`
	DurationSecs       uint64       `json:"duration_secs"`
	Expiry             time.Time    `json:"expiry"`
	Description        string       `json:"description"`
}

type LoanDTO struct {
	ID                 uint64       `json:"id"`
	Debtor             string       `json:"debtor"`
	DesignatedCreditor string       `json:"designated_creditor,omitempty"`
	Asset              string       `json:"asset"`
	Amount             currency.Wad `json:"amount"`
	RateBps            uint32       `json:"rate_bps"`
	DurationSecs       uint64       `json:"duration_secs"`
	Expiry             time.Time    `json:"expiry"`
	Description        string       `json:"description"`
	Status             string       `json:"status"`
	Creditor           string       `json:"creditor,omitempty"`
	StartTime          time.Time    `json:"start_time"`
	AmountPaid         currency.Wad `json:"amount_paid"`
	LastPayment        time.Time    `json:"last_payment"`
	CreatedAt          time.Time    `json:"created_at"`
}

func toDTO(l *domain.Loan) *LoanDTO {
	return &LoanDTO{
		ID:                 l.ID,
		Debtor:             l.Debtor,
		DesignatedCreditor: l.DesignatedCreditor,
		Asset:              l.Asset,
		Amount:             l.Amount,
		RateBps:            l.RateBps,
		DurationSecs:       l.DurationSecs,
		Expiry:             l.Expiry,
		Description:        l.Description,
		Status:             string(l.Status),
		Creditor:           l.Creditor,
		StartTime:          l.StartTime,
		AmountPaid:         l.AmountPaid,
		LastPayment:        l.LastPayment,
		CreatedAt:          l.CreatedAt,
	}
}

// Request creates a pending loan with a freshly allocated identifier.
func (u *Usecase) Request(ctx context.Context, in RequestLoanInput) (*LoanDTO, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := u.now()
	if in.Amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if in.RateBps > domain.MaxInterestRateBps {
		return nil, domain.ErrInvalidInterestRate
	}
	if in.DurationSecs == 0 {
		return nil, domain.ErrInvalidDuration
	}
	if !in.Expiry.After(now) {
		return nil, domain.ErrInvalidExpiry
	}

	var l *domain.Loan
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		id, err := r.Loans.NextID(ctx)
		if err != nil {
			return err
		}
		l = &domain.Loan{
			ID:                 id,
			Debtor:             in.Debtor,
			DesignatedCreditor: in.DesignatedCreditor,
			Asset:              in.Asset,
			Amount:             in.Amount,
			RateBps:            in.RateBps,
			DurationSecs:       in.DurationSecs,
			Expiry:             in.Expiry.UTC(),
			Description:        in.Description,
			Status:             domain.StatusPending,
		}
		return r.Loans.Create(ctx, l)
	})
	if err != nil {
		return nil, err
	}
	u.log.Info("loan_requested", "loan_id", l.ID, "debtor", l.Debtor, "amount", l.Amount.String())
	return toDTO(l), nil
}

// Accept funds a pending loan: principal is pulled from the accepting account
// to the debtor, and the debt receipt is minted to the debtor.
func (u *Usecase) Accept(ctx context.Context, id uint64, caller string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	err := u.uow.WithinLoanTx(ctx, id, func(r uow.Repos, l *domain.Loan) error {
		if l.Status != domain.StatusPending {
			return domain.ErrLoanNotPending
		}
		now := u.now()
		if l.Expired(now) {
			return domain.ErrLoanExpired
		}
		if l.DesignatedCreditor != "" && caller != l.DesignatedCreditor {
			return domain.ErrNotAuthorized
		}
		l.Status = domain.StatusActive
		l.Creditor = caller
		l.StartTime = now
		l.LastPayment = now
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		if err := u.tokens.TransferFrom(ctx, l.Asset, caller, l.Debtor, l.Amount); err != nil {
			return fmt.Errorf("%w: %v", asset.ErrTransferFailed, err)
		}
		return u.receipts.Mint(l.ID, l.Debtor)
	})
	if err != nil {
		return err
	}
	u.log.Info("loan_accepted", "loan_id", id, "creditor", caller)
	return nil
}

// Reject declines a pending request. Only the designated creditor may reject
// a designated request; open requests may be rejected by any caller.
func (u *Usecase) Reject(ctx context.Context, id uint64, caller string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	err := u.uow.WithinLoanTx(ctx, id, func(r uow.Repos, l *domain.Loan) error {
		if l.Status != domain.StatusPending {
			return domain.ErrLoanNotPending
		}
		if l.DesignatedCreditor != "" && caller != l.DesignatedCreditor {
			return domain.ErrNotAuthorized
		}
		l.Status = domain.StatusRejected
		return r.Loans.Save(ctx, l)
	})
	if err != nil {
		return err
	}
	u.log.Info("loan_rejected", "loan_id", id, "caller", caller)
	return nil
}

// Pay applies a partial payment in the loan's token asset.
func (u *Usecase) Pay(ctx context.Context, id uint64, caller string, payment currency.Wad) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if payment.Sign() <= 0 {
		return domain.ErrZeroPayment
	}

	var settled bool
	err := u.uow.WithinLoanTx(ctx, id, func(r uow.Repos, l *domain.Loan) error {
		if err := u.guardDebtorActive(l, caller); err != nil {
			return err
		}
		now := u.now()
		sp, err := splitPartial(l, payment, u.policy.Bps(), now)
		if err != nil {
			return err
		}
		l.AmountPaid = l.AmountPaid.Add(sp.Principal)
		l.LastPayment = now
		if sp.Settles {
			l.Status = domain.StatusPaidOff
		}
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		if sp.Fee.Sign() > 0 {
			if err := r.Fees.Credit(ctx, fees.KindToken, l.Asset, sp.Fee); err != nil {
				return err
			}
		}
		if err := u.pullThenPush(ctx, l, payment, sp.Creditor); err != nil {
			return err
		}
		settled = sp.Settles
		if sp.Settles {
			return u.burnReceipt(l.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	u.finishPayment(id, settled)
	return nil
}

// PayNative applies a partial payment sent in the native coin. The sent value
// is converted into the stable unit first; splitting then behaves exactly as
// the token path, and the creditor is paid out in native coin minus the fee.
func (u *Usecase) PayNative(ctx context.Context, id uint64, caller string, sent currency.Wad) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if sent.Sign() <= 0 {
		return domain.ErrZeroPayment
	}

	var settled bool
	err := u.uow.WithinLoanTx(ctx, id, func(r uow.Repos, l *domain.Loan) error {
		if err := u.guardDebtorActive(l, caller); err != nil {
			return err
		}
		payment, err := u.conv.ToStable(ctx, sent)
		if err != nil {
			return err
		}
		now := u.now()
		sp, err := splitPartial(l, payment, u.policy.Bps(), now)
		if err != nil {
			return err
		}
		l.AmountPaid = l.AmountPaid.Add(sp.Principal)
		l.LastPayment = now
		if sp.Settles {
			l.Status = domain.StatusPaidOff
		}
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		feeNative, err := u.conv.ToNative(ctx, sp.Fee)
		if err != nil {
			return err
		}
		if feeNative.Sign() > 0 {
			if err := r.Fees.Credit(ctx, fees.KindNative, fees.NativeAsset, feeNative); err != nil {
				return err
			}
		}
		if err := u.native.Collect(ctx, l.Debtor, sent); err != nil {
			return fmt.Errorf("%w: %v", asset.ErrTransferFailed, err)
		}
		if err := u.native.Send(ctx, l.Creditor, sent.Sub(feeNative)); err != nil {
			return fmt.Errorf("%w: %v", asset.ErrTransferFailed, err)
		}
		settled = sp.Settles
		if sp.Settles {
			return u.burnReceipt(l.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	u.finishPayment(id, settled)
	return nil
}

// Payoff settles the whole loan in the token asset. The payment must cover
// everything due and stay inside the 0.5% buffer; any excess within the band
// goes to the creditor, not back to the debtor.
func (u *Usecase) Payoff(ctx context.Context, id uint64, caller string, payment currency.Wad) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if payment.Sign() <= 0 {
		return domain.ErrZeroPayment
	}

	err := u.uow.WithinLoanTx(ctx, id, func(r uow.Repos, l *domain.Loan) error {
		if err := u.guardDebtorActive(l, caller); err != nil {
			return err
		}
		now := u.now()
		_, interestDue, totalDue := outstanding(l, now)
		if err := checkPayoffBounds(totalDue, payment); err != nil {
			return err
		}
		fee := protocolFeeOn(interestDue, u.policy.Bps())
		l.AmountPaid = l.Amount
		l.LastPayment = now
		l.Status = domain.StatusPaidOff
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		if fee.Sign() > 0 {
			if err := r.Fees.Credit(ctx, fees.KindToken, l.Asset, fee); err != nil {
				return err
			}
		}
		if err := u.pullThenPush(ctx, l, payment, payment.Sub(fee)); err != nil {
			return err
		}
		return u.burnReceipt(l.ID)
	})
	if err != nil {
		return err
	}
	u.finishPayment(id, true)
	return nil
}

// PayoffNative settles the whole loan in native coin. Unlike the token path,
// the excess above the exact amount due is refunded to the debtor.
func (u *Usecase) PayoffNative(ctx context.Context, id uint64, caller string, sent currency.Wad) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if sent.Sign() <= 0 {
		return domain.ErrZeroPayment
	}

	err := u.uow.WithinLoanTx(ctx, id, func(r uow.Repos, l *domain.Loan) error {
		if err := u.guardDebtorActive(l, caller); err != nil {
			return err
		}
		payment, err := u.conv.ToStable(ctx, sent)
		if err != nil {
			return err
		}
		now := u.now()
		_, interestDue, totalDue := outstanding(l, now)
		if err := checkPayoffBounds(totalDue, payment); err != nil {
			return err
		}
		fee := protocolFeeOn(interestDue, u.policy.Bps())
		l.AmountPaid = l.Amount
		l.LastPayment = now
		l.Status = domain.StatusPaidOff
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		totalDueNative, err := u.conv.ToNative(ctx, totalDue)
		if err != nil {
			return err
		}
		feeNative, err := u.conv.ToNative(ctx, fee)
		if err != nil {
			return err
		}
		if feeNative.Sign() > 0 {
			if err := r.Fees.Credit(ctx, fees.KindNative, fees.NativeAsset, feeNative); err != nil {
				return err
			}
		}
		if err := u.native.Collect(ctx, l.Debtor, sent); err != nil {
			return fmt.Errorf("%w: %v", asset.ErrTransferFailed, err)
		}
		if refund := sent.Sub(totalDueNative); refund.Sign() > 0 {
			if err := u.native.Send(ctx, l.Debtor, refund); err != nil {
				return fmt.Errorf("%w: %v", asset.ErrRefundFailed, err)
			}
		}
		if err := u.native.Send(ctx, l.Creditor, totalDueNative.Sub(feeNative)); err != nil {
			return fmt.Errorf("%w: %v", asset.ErrTransferFailed, err)
		}
		return u.burnReceipt(l.ID)
	})
	if err != nil {
		return err
	}
	u.finishPayment(id, true)
	return nil
}

// UpdateTerms lets an authorized account adjust rate and duration while the
// request is still pending.
func (u *Usecase) UpdateTerms(ctx context.Context, id uint64, caller string, rateBps uint32, durationSecs uint64) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.managers.Check(caller); err != nil {
		return err
	}
	if rateBps > domain.MaxInterestRateBps {
		return domain.ErrInvalidInterestRate
	}
	if durationSecs == 0 {
		return domain.ErrInvalidDuration
	}
	return u.uow.WithinLoanTx(ctx, id, func(r uow.Repos, l *domain.Loan) error {
		if l.Status != domain.StatusPending {
			return domain.ErrLoanNotPending
		}
		l.RateBps = rateBps
		l.DurationSecs = durationSecs
		return r.Loans.Save(ctx, l)
	})
}

// CancelRequest is the administrative pending → rejected transition.
func (u *Usecase) CancelRequest(ctx context.Context, id uint64, caller string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.managers.Check(caller); err != nil {
		return err
	}
	err := u.uow.WithinLoanTx(ctx, id, func(r uow.Repos, l *domain.Loan) error {
		if l.Status != domain.StatusPending {
			return domain.ErrLoanNotPending
		}
		l.Status = domain.StatusRejected
		return r.Loans.Save(ctx, l)
	})
	if err != nil {
		return err
	}
	u.log.Info("loan_cancelled", "loan_id", id, "caller", caller)
	return nil
}

// ForceComplete marks an active or pending loan fully paid regardless of the
// actual amount repaid and burns the receipt if one exists.
func (u *Usecase) ForceComplete(ctx context.Context, id uint64, caller string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.managers.Check(caller); err != nil {
		return err
	}
	err := u.uow.WithinLoanTx(ctx, id, func(r uow.Repos, l *domain.Loan) error {
		if l.Status != domain.StatusActive && l.Status != domain.StatusPending {
			return domain.ErrInvalidLoanStatus
		}
		l.AmountPaid = l.Amount
		l.LastPayment = u.now()
		l.Status = domain.StatusPaidOff
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		return u.burnReceipt(l.ID)
	})
	if err != nil {
		return err
	}
	u.log.Info("loan_force_completed", "loan_id", id, "caller", caller)
	return nil
}

// ForceDelete closes a loan in any non-force-closed state without touching
// amountPaid; the receipt is burned if one exists.
func (u *Usecase) ForceDelete(ctx context.Context, id uint64, caller string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.managers.Check(caller); err != nil {
		return err
	}
	err := u.uow.WithinLoanTx(ctx, id, func(r uow.Repos, l *domain.Loan) error {
		if l.Status == domain.StatusForceClosed {
			return domain.ErrInvalidLoanStatus
		}
		l.Status = domain.StatusForceClosed
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		return u.burnReceipt(l.ID)
	})
	if err != nil {
		return err
	}
	u.log.Info("loan_force_closed", "loan_id", id, "caller", caller)
	return nil
}

// ---- read-only queries ----

func (u *Usecase) Get(ctx context.Context, id uint64) (*LoanDTO, error) {
	l, err := u.getLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	return toDTO(l), nil
}

// TotalDue is remaining principal plus interest accrued to now.
func (u *Usecase) TotalDue(ctx context.Context, id uint64) (currency.Wad, error) {
	l, err := u.activeLoan(ctx, id)
	if err != nil {
		return currency.Wad{}, err
	}
	_, _, totalDue := outstanding(l, u.now())
	return totalDue, nil
}

// PayoffAmount is the upper bound of the payoff band: totalDue plus buffer.
func (u *Usecase) PayoffAmount(ctx context.Context, id uint64) (currency.Wad, error) {
	due, err := u.TotalDue(ctx, id)
	if err != nil {
		return currency.Wad{}, err
	}
	return payoffBuffer(due), nil
}

func (u *Usecase) TotalDueNative(ctx context.Context, id uint64) (currency.Wad, error) {
	due, err := u.TotalDue(ctx, id)
	if err != nil {
		return currency.Wad{}, err
	}
	return u.conv.ToNative(ctx, due)
}

func (u *Usecase) PayoffAmountNative(ctx context.Context, id uint64) (currency.Wad, error) {
	due, err := u.PayoffAmount(ctx, id)
	if err != nil {
		return currency.Wad{}, err
	}
	return u.conv.ToNative(ctx, due)
}

// PendingLoans lists identifiers of pending, unexpired requests.
func (u *Usecase) PendingLoans(ctx context.Context) ([]uint64, error) {
	return u.loans.ListPendingUnexpired(ctx, u.now())
}

func (u *Usecase) CurrentPrice(ctx context.Context) (*big.Int, uint8, error) {
	return u.conv.CurrentPrice(ctx)
}

// ---- internals ----

func (u *Usecase) getLoan(ctx context.Context, id uint64) (*domain.Loan, error) {
	l, err := u.loans.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

func (u *Usecase) activeLoan(ctx context.Context, id uint64) (*domain.Loan, error) {
	l, err := u.getLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Status != domain.StatusActive {
		return nil, domain.ErrLoanNotActive
	}
	return l, nil
}

func (u *Usecase) guardDebtorActive(l *domain.Loan, caller string) error {
	if l.Status != domain.StatusActive {
		return domain.ErrLoanNotActive
	}
	if caller != l.Debtor {
		return domain.ErrNotDebtor
	}
	return nil
}

// pullThenPush pulls the full payment from the debtor into the engine's own
// account, then pushes the creditor's share out; the fee stays behind.
func (u *Usecase) pullThenPush(ctx context.Context, l *domain.Loan, payment, creditorAmount currency.Wad) error {
	if err := u.tokens.TransferFrom(ctx, l.Asset, l.Debtor, u.account, payment); err != nil {
		return fmt.Errorf("%w: %v", asset.ErrTransferFailed, err)
	}
	if err := u.tokens.Transfer(ctx, l.Asset, l.Creditor, creditorAmount); err != nil {
		return fmt.Errorf("%w: %v", asset.ErrTransferFailed, err)
	}
	return nil
}

func (u *Usecase) finishPayment(id uint64, settled bool) {
	if settled {
		u.log.Info("loan_paid_off", "loan_id", id)
		return
	}
	u.log.Info("payment_applied", "loan_id", id)
}

// burnReceipt destroys the loan's receipt if one was minted. It runs inside
// the settlement transaction, so a failed burn aborts the whole operation.
func (u *Usecase) burnReceipt(id uint64) error {
	if !u.receipts.Exists(id) {
		return nil
	}
	return u.receipts.Burn(id, true)
}
