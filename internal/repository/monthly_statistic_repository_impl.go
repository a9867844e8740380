package repository

import (
	"context"
	"errors"

	"ptm-statistics/internal/domain/entity"
	domainRepo "ptm-statistics/internal/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type monthlyStatisticRepository struct{}

func NewMonthlyStatisticRepository() domainRepo.MonthlyStatisticRepository {
	return &monthlyStatisticRepository{}
}

func (r *monthlyStatisticRepository) FindByKey(ctx context.Context, db *gorm.DB, key entity.StatisticKey) (*entity.MonthlyStatistic, error) {
	var stat entity.MonthlyStatistic
	err := db.WithContext(ctx).
		Where("puskesmas_id = ? AND disease_type = ? AND year = ? AND month = ?", key.PuskesmasID, key.Disease, key.Year, key.Month).
		First(&stat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stat, nil
}

func (r *monthlyStatisticRepository) FindYear(ctx context.Context, db *gorm.DB, puskesmasID int, disease entity.DiseaseType, year int) ([]entity.MonthlyStatistic, error) {
	var stats []entity.MonthlyStatistic
	err := db.WithContext(ctx).
		Where("puskesmas_id = ? AND disease_type = ? AND year = ?", puskesmasID, disease, year).
		Order("month ASC").
		Find(&stats).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *monthlyStatisticRepository) FindYearForUpdate(ctx context.Context, tx *gorm.DB, puskesmasID int, disease entity.DiseaseType, year int) ([]entity.MonthlyStatistic, error) {
	var stats []entity.MonthlyStatistic
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("puskesmas_id = ? AND disease_type = ? AND year = ?", puskesmasID, disease, year).
		Order("month ASC").
		Find(&stats).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Upsert inserts the row or overwrites every counter of the existing row
// with the same key.
func (r *monthlyStatisticRepository) Upsert(ctx context.Context, db *gorm.DB, stat *entity.MonthlyStatistic) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "puskesmas_id"}, {Name: "disease_type"}, {Name: "year"}, {Name: "month"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"target", "total_patients", "standard_patients", "non_standard_patients",
			"male_patients", "female_patients", "percentage", "updated_at",
		}),
	}).Create(stat).Error
}

func (r *monthlyStatisticRepository) Update(ctx context.Context, db *gorm.DB, stat *entity.MonthlyStatistic) error {
	return db.WithContext(ctx).Save(stat).Error
}

func (r *monthlyStatisticRepository) DeleteYear(ctx context.Context, db *gorm.DB, puskesmasID int, disease entity.DiseaseType, year int) (int64, error) {
	result := db.WithContext(ctx).
		Where("puskesmas_id = ? AND disease_type = ? AND year = ?", puskesmasID, disease, year).
		Delete(&entity.MonthlyStatistic{})
	return result.RowsAffected, result.Error
}
