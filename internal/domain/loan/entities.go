package loan

import (
	"time"

	"lendfact-backend/internal/domain/currency"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusActive      Status = "active"
	StatusPaidOff     Status = "paid_off"
	StatusRejected    Status = "rejected"
	StatusForceClosed Status = "force_closed"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusPaidOff || s == StatusRejected || s == StatusForceClosed
}

const (
	// MaxInterestRateBps caps the per-loan simple interest rate.
	MaxInterestRateBps = 5000
	// MaxProtocolFeeBps caps the protocol's share of interest payments.
	MaxProtocolFeeBps = 1000
)

// Loan wraps an immutable funding request plus the mutable repayment state.
// IDs are engine-allocated, monotonically increasing from 0, so the primary
// key is written explicitly rather than auto-incremented.
type Loan struct {
	ID uint64 `gorm:"primaryKey;column:id;autoIncrement:false" json:"id"`

	// Request fields, fixed once created.
	Debtor             string       `gorm:"size:32;index:idx_loans_debtor" json:"debtor"`
	DesignatedCreditor string       `gorm:"size:32" json:"designated_creditor,omitempty"` // empty = open to any funder
	Asset              string       `gorm:"size:64" json:"asset"`
	Amount             currency.Wad `gorm:"type:decimal(38,0)" json:"amount"`
	RateBps            uint32       `gorm:"column:rate_bps" json:"rate_bps"`
	DurationSecs       uint64       `gorm:"column:duration_secs" json:"duration_secs"`
	Expiry             time.Time    `json:"expiry"`
	Description        string       `gorm:"type:text" json:"description"`

	// Lifecycle state.
	Status      Status       `gorm:"type:enum('pending','active','paid_off','rejected','force_closed');default:'pending';index:idx_loans_status" json:"status"`
	Creditor    string       `gorm:"size:32" json:"creditor,omitempty"`
	StartTime   time.Time    `json:"start_time"`
	AmountPaid  currency.Wad `gorm:"type:decimal(38,0)" json:"amount_paid"`
	LastPayment time.Time    `json:"last_payment"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (Loan) TableName() string { return "loans" }

// RemainingPrincipal is request amount minus cumulative principal paid.
func (l *Loan) RemainingPrincipal() currency.Wad {
	return l.Amount.Sub(l.AmountPaid)
}

// Expired reports whether the acceptance deadline has passed.
func (l *Loan) Expired(now time.Time) bool {
	return now.After(l.Expiry)
}
