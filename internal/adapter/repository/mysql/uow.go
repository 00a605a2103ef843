package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"lendfact-backend/internal/domain/loan"
	"lendfact-backend/internal/domain/uow"
)

type GormUoW struct{ db *gorm.DB }

func NewGormUoW(db *gorm.DB) *GormUoW { return &GormUoW{db: db} }

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := uow.Repos{
			Loans: &LoanRepository{db: tx},
			Fees:  &FeeRepository{db: tx},
		}
		return fn(r)
	})
}

func (u *GormUoW) WithinLoanTx(ctx context.Context, id uint64, fn func(r uow.Repos, l *loan.Loan) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := uow.Repos{
			Loans: &LoanRepository{db: tx},
			Fees:  &FeeRepository{db: tx},
		}
		// lock the loan row up-front to prevent races
		l, err := r.Loans.GetByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return loan.ErrNotFound
			}
			return err
		}
		return fn(r, l)
	})
}
