package currency

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math/big"
)

// Wad is a non-negative integer amount at 18 fractional digits, the common
// scale for both the stable unit of account and the native coin. It persists
// through gorm as a decimal string and never touches float arithmetic.
type Wad struct {
	n *big.Int
}

var ErrInvalidAmountString = errors.New("currency: invalid amount string")

func Zero() Wad { return Wad{} }

func FromInt64(v int64) Wad { return Wad{n: big.NewInt(v)} }

// FromBig copies b; the caller keeps ownership of its big.Int.
func FromBig(b *big.Int) Wad {
	if b == nil {
		return Wad{}
	}
	return Wad{n: new(big.Int).Set(b)}
}

func Parse(s string) (Wad, error) {
	if s == "" {
		return Wad{}, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Wad{}, fmt.Errorf("%w: %q", ErrInvalidAmountString, s)
	}
	return Wad{n: n}, nil
}

// Big returns a copy of the underlying integer.
func (w Wad) Big() *big.Int {
	if w.n == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(w.n)
}

func (w Wad) Add(o Wad) Wad { return Wad{n: new(big.Int).Add(w.Big(), o.Big())} }

func (w Wad) Sub(o Wad) Wad { return Wad{n: new(big.Int).Sub(w.Big(), o.Big())} }

// MulDiv computes w*mul/div with the intermediate product held in full
// precision and the division truncating toward zero. Division by zero panics,
// matching the abort-on-overflow posture of the payment arithmetic.
func (w Wad) MulDiv(mul, div *big.Int) Wad {
	if div == nil || div.Sign() == 0 {
		panic("currency: MulDiv by zero")
	}
	p := new(big.Int).Mul(w.Big(), mul)
	return Wad{n: p.Quo(p, div)}
}

func (w Wad) Cmp(o Wad) int { return w.Big().Cmp(o.Big()) }

func (w Wad) Sign() int {
	if w.n == nil {
		return 0
	}
	return w.n.Sign()
}

func (w Wad) IsZero() bool { return w.Sign() == 0 }

func Min(a, b Wad) Wad {
	if a.Cmp(b) <= 0 {
		return FromBig(a.Big())
	}
	return FromBig(b.Big())
}

func (w Wad) String() string { return w.Big().String() }

func (w Wad) MarshalJSON() ([]byte, error) { return []byte(`"` + w.String() + `"`), nil }

func (w *Wad) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "null" {
		*w = Wad{}
		return nil
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*w = v
	return nil
}

// Scan implements sql.Scanner; columns are decimal strings.
func (w *Wad) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*w = Wad{}
		return nil
	case []byte:
		x, err := Parse(string(v))
		if err != nil {
			return err
		}
		*w = x
		return nil
	case string:
		x, err := Parse(v)
		if err != nil {
			return err
		}
		*w = x
		return nil
	case int64:
		*w = FromInt64(v)
		return nil
	default:
		return fmt.Errorf("currency: cannot scan %T into Wad", src)
	}
}

// Value implements driver.Valuer.
func (w Wad) Value() (driver.Value, error) { return w.String(), nil }
