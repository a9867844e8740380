package repository

import (
	"context"

	"ptm-statistics/internal/domain/entity"

	"gorm.io/gorm"
)

type MonthlyStatisticRepository interface {
	// FindByKey returns nil, nil when the row does not exist.
	FindByKey(ctx context.Context, db *gorm.DB, key entity.StatisticKey) (*entity.MonthlyStatistic, error)
	FindYear(ctx context.Context, db *gorm.DB, puskesmasID int, disease entity.DiseaseType, year int) ([]entity.MonthlyStatistic, error)
	// FindYearForUpdate locks the year's rows until the transaction ends.
	FindYearForUpdate(ctx context.Context, tx *gorm.DB, puskesmasID int, disease entity.DiseaseType, year int) ([]entity.MonthlyStatistic, error)
	Upsert(ctx context.Context, db *gorm.DB, stat *entity.MonthlyStatistic) error
	Update(ctx context.Context, db *gorm.DB, stat *entity.MonthlyStatistic) error
	DeleteYear(ctx context.Context, db *gorm.DB, puskesmasID int, disease entity.DiseaseType, year int) (int64, error)
}
