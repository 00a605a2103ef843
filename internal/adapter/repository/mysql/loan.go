package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	loanDomain "lendfact-backend/internal/domain/loan"
)

type LoanRepository struct{ db *gorm.DB }

func NewLoanRepository(db *gorm.DB) *LoanRepository { return &LoanRepository{db: db} }

func (r *LoanRepository) Create(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Create(l).Error
}

// Save updates by explicit key match. gorm's Save would INSERT a record whose
// primary key is the zero value, and loan identifiers legitimately start at 0.
func (r *LoanRepository) Save(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).
		Model(&loanDomain.Loan{}).
		Where("id = ?", l.ID).
		Select("*").
		Updates(l).Error
}

func (r *LoanRepository) GetByID(ctx context.Context, id uint64) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).Where("id = ?", id).First(&out)
	return &out, res.Error
}

func (r *LoanRepository) GetByIDForUpdate(ctx context.Context, id uint64) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&out)
	return &out, res.Error
}

// NextID allocates identifiers from 0 upward; gorm's autoincrement starts at
// 1, so the key is computed and written explicitly.
func (r *LoanRepository) NextID(ctx context.Context) (uint64, error) {
	var max *uint64
	err := r.db.WithContext(ctx).
		Model(&loanDomain.Loan{}).
		Select("MAX(id)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

func (r *LoanRepository) ListPendingUnexpired(ctx context.Context, now time.Time) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&loanDomain.Loan{}).
		Where("status = ? AND expiry > ?", loanDomain.StatusPending, now).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *LoanRepository) ListActive(ctx context.Context) (map[uint64]string, error) {
	var rows []loanDomain.Loan
	err := r.db.WithContext(ctx).
		Select("id", "debtor").
		Where("status = ?", loanDomain.StatusActive).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]string, len(rows))
	for _, l := range rows {
		out[l.ID] = l.Debtor
	}
	return out, nil
}
