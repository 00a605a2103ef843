package loan

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, l *Loan) error
	GetByID(ctx context.Context, id uint64) (*Loan, error)
	GetByIDForUpdate(ctx context.Context, id uint64) (*Loan, error)
	Save(ctx context.Context, l *Loan) error
	// NextID returns the next free identifier; the first loan gets 0.
	NextID(ctx context.Context) (uint64, error)
	// ListPendingUnexpired returns ids of pending loans whose acceptance
	// deadline is still ahead of now.
	ListPendingUnexpired(ctx context.Context, now time.Time) ([]uint64, error)
	// ListActive returns id → debtor for every active loan; used to rebuild
	// the receipt-token registry on startup.
	ListActive(ctx context.Context) (map[uint64]string, error)
}
