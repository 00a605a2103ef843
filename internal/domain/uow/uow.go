package uow

import (
	"context"

	"lendfact-backend/internal/domain/fees"
	"lendfact-backend/internal/domain/loan"
)

type Repos struct {
	Loans loan.Repository
	Fees  fees.Repository
}

// UnitOfWork is the transactional boundary wrapping every state-mutating
// engine operation: either everything inside fn commits, or nothing does.
type UnitOfWork interface {
	// plain tx
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// convenience: lock the loan row first, then pass it in
	WithinLoanTx(ctx context.Context, id uint64, fn func(r Repos, l *loan.Loan) error) error
}
