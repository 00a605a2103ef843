package pricefeed

import (
	"context"
	"errors"
	"math/big"
	"time"
)

// ErrInvalidPrice guards against stale or broken feeds reporting a
// non-positive price. No staleness timestamp check is performed beyond this.
var ErrInvalidPrice = errors.New("pricefeed: invalid oracle price")

// Round is one oracle observation. Only Answer is consumed by the converter;
// the remaining fields mirror the upstream feed's round metadata.
type Round struct {
	RoundID         uint64
	Answer          *big.Int // signed, at Decimals() fractional digits
	StartedAt       time.Time
	UpdatedAt       time.Time
	AnsweredInRound uint64
}

// Oracle reports the native coin's value in the stable unit of account.
type Oracle interface {
	LatestRoundData(ctx context.Context) (Round, error)
	Decimals() uint8
}
