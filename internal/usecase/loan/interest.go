package loan

import (
	"math/big"
	"time"

	"lendfact-backend/internal/domain/currency"
	domain "lendfact-backend/internal/domain/loan"
)

const (
	bpsDenominator  = 10_000
	secondsPerYear  = 365 * 86400 // no leap-year adjustment
	payoffBufferBps = 50          // 0.5% tolerance for price movement between quote and settlement
)

var bpsDen = big.NewInt(bpsDenominator)

// AccruedInterest computes simple, linear, per-second interest:
// floor(principal * rateBps * elapsedSecs / (10000 * secondsPerYear)).
// The intermediate product is held in a big.Int, so it cannot silently wrap.
func AccruedInterest(principal currency.Wad, rateBps uint32, elapsedSecs uint64) currency.Wad {
	mul := new(big.Int).Mul(
		new(big.Int).SetUint64(uint64(rateBps)),
		new(big.Int).SetUint64(elapsedSecs),
	)
	div := big.NewInt(int64(bpsDenominator) * int64(secondsPerYear))
	return principal.MulDiv(mul, div)
}

func elapsedSeconds(from, to time.Time) uint64 {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Second)
}

// outstanding returns the remaining principal, the interest accrued on it
// since the last payment, and their sum.
func outstanding(l *domain.Loan, now time.Time) (remaining, interestDue, totalDue currency.Wad) {
	remaining = l.RemainingPrincipal()
	interestDue = AccruedInterest(remaining, l.RateBps, elapsedSeconds(l.LastPayment, now))
	totalDue = remaining.Add(interestDue)
	return
}

type split struct {
	Interest  currency.Wad
	Principal currency.Wad
	Fee       currency.Wad
	Creditor  currency.Wad
	Settles   bool
}

// splitPartial applies the partial-payment algorithm: interest is paid first,
// the rest reduces principal, and the protocol fee is carved out of the
// interest portion. A payment settles the loan only when it clears all
// outstanding principal AND all outstanding interest in the same call.
func splitPartial(l *domain.Loan, payment currency.Wad, feeBps uint32, now time.Time) (split, error) {
	_, interestDue, totalDue := outstanding(l, now)
	if payment.Cmp(totalDue) > 0 {
		return split{}, domain.ErrPaymentTooLarge
	}
	interestPortion := currency.Min(payment, interestDue)
	principalPortion := payment.Sub(interestPortion)
	fee := interestPortion.MulDiv(big.NewInt(int64(feeBps)), bpsDen)
	settles := l.AmountPaid.Add(principalPortion).Cmp(l.Amount) >= 0 &&
		interestPortion.Cmp(interestDue) == 0
	return split{
		Interest:  interestPortion,
		Principal: principalPortion,
		Fee:       fee,
		Creditor:  payment.Sub(fee),
		Settles:   settles,
	}, nil
}

// payoffBuffer is the upper bound a payoff payment may reach: totalDue plus
// 0.5%, truncated.
func payoffBuffer(totalDue currency.Wad) currency.Wad {
	return totalDue.MulDiv(big.NewInt(bpsDenominator+payoffBufferBps), bpsDen)
}

// checkPayoffBounds validates a payoff payment against the exact amount due
// and the buffer band.
func checkPayoffBounds(totalDue, payment currency.Wad) error {
	if totalDue.Cmp(payment) > 0 {
		return domain.ErrPaymentTooLarge
	}
	if payment.Cmp(payoffBuffer(totalDue)) > 0 {
		return domain.ErrPaymentExceedsBuffer
	}
	return nil
}

func protocolFeeOn(interest currency.Wad, feeBps uint32) currency.Wad {
	return interest.MulDiv(big.NewInt(int64(feeBps)), bpsDen)
}
