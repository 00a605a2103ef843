package pricefeed

import (
	"context"
	"math/big"

	"lendfact-backend/internal/domain/currency"
)

// Converter translates amounts between the stable unit of account and the
// native coin. Both sides are 18-decimal fixed-point; the oracle price is at
// the feed's own scale (8 decimals for the reference feed). Conversions
// truncate toward zero; the sub-unit loss is accepted and must stay exactly
// floor-division (no rounding to nearest) so derived figures reproduce.
type Converter struct {
	oracle Oracle
}

func NewConverter(o Oracle) *Converter { return &Converter{oracle: o} }

// CurrentPrice returns the latest positive oracle price and its decimal scale.
func (c *Converter) CurrentPrice(ctx context.Context) (*big.Int, uint8, error) {
	r, err := c.oracle.LatestRoundData(ctx)
	if err != nil {
		return nil, 0, err
	}
	if r.Answer == nil || r.Answer.Sign() <= 0 {
		return nil, 0, ErrInvalidPrice
	}
	return new(big.Int).Set(r.Answer), c.oracle.Decimals(), nil
}

func (c *Converter) priceScale() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(c.oracle.Decimals())), nil)
}

// ToNative converts a stable amount: native = stable * 10^dec / price.
func (c *Converter) ToNative(ctx context.Context, stable currency.Wad) (currency.Wad, error) {
	price, _, err := c.CurrentPrice(ctx)
	if err != nil {
		return currency.Wad{}, err
	}
	return stable.MulDiv(c.priceScale(), price), nil
}

// ToStable converts a native amount: stable = native * price / 10^dec.
func (c *Converter) ToStable(ctx context.Context, native currency.Wad) (currency.Wad, error) {
	price, _, err := c.CurrentPrice(ctx)
	if err != nil {
		return currency.Wad{}, err
	}
	return native.MulDiv(price, c.priceScale()), nil
}
