package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lendfact-backend/internal/domain/currency"
	"lendfact-backend/internal/domain/fees"
)

type FeeRepository struct{ db *gorm.DB }

func NewFeeRepository(db *gorm.DB) *FeeRepository { return &FeeRepository{db: db} }

func (r *FeeRepository) Credit(ctx context.Context, kind fees.Kind, asset string, amount currency.Wad) error {
	var e fees.Entry
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("kind = ? AND asset = ?", kind, asset).
		First(&e)
	if res.Error != nil {
		if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return res.Error
		}
		return r.db.WithContext(ctx).Create(&fees.Entry{Kind: kind, Asset: asset, Collected: amount}).Error
	}
	e.Collected = e.Collected.Add(amount)
	return r.db.WithContext(ctx).Save(&e).Error
}

func (r *FeeRepository) Balance(ctx context.Context, kind fees.Kind, asset string) (currency.Wad, error) {
	var e fees.Entry
	res := r.db.WithContext(ctx).Where("kind = ? AND asset = ?", kind, asset).First(&e)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return currency.Zero(), nil
		}
		return currency.Wad{}, res.Error
	}
	return e.Collected, nil
}

func (r *FeeRepository) Drain(ctx context.Context, kind fees.Kind, asset string) (currency.Wad, error) {
	var e fees.Entry
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("kind = ? AND asset = ?", kind, asset).
		First(&e)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return currency.Zero(), nil
		}
		return currency.Wad{}, res.Error
	}
	out := e.Collected
	e.Collected = currency.Zero()
	if err := r.db.WithContext(ctx).Save(&e).Error; err != nil {
		return currency.Wad{}, err
	}
	return out, nil
}
