package fees

import (
	"context"
	"time"

	"lendfact-backend/internal/domain/currency"
)

// Kind separates the token-denominated ledger from the native-coin ledger.
type Kind string

const (
	KindToken  Kind = "token"
	KindNative Kind = "native"
)

// NativeAsset is the asset key used for the native-coin ledger row.
const NativeAsset = "native"

// Entry is one per-asset accumulator of collected protocol fees.
type Entry struct {
	ID        uint64       `gorm:"primaryKey;column:id;autoIncrement"`
	Kind      Kind         `gorm:"size:8;uniqueIndex:ux_fees_kind_asset"`
	Asset     string       `gorm:"size:64;uniqueIndex:ux_fees_kind_asset"`
	Collected currency.Wad `gorm:"type:decimal(38,0)"`
	UpdatedAt time.Time    `gorm:"autoUpdateTime"`
}

func (Entry) TableName() string { return "fee_ledgers" }

type Repository interface {
	Credit(ctx context.Context, kind Kind, asset string, amount currency.Wad) error
	Balance(ctx context.Context, kind Kind, asset string) (currency.Wad, error)
	// Drain zeroes the entry and returns what it held; zero balance is a
	// no-op, not an error.
	Drain(ctx context.Context, kind Kind, asset string) (currency.Wad, error)
}
