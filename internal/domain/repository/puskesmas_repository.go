package repository

import (
	"context"

	"ptm-statistics/internal/domain/entity"

	"gorm.io/gorm"
)

type PuskesmasRepository interface {
	FindAll(ctx context.Context, db *gorm.DB) ([]entity.Puskesmas, error)
	FindByID(ctx context.Context, db *gorm.DB, id int) (*entity.Puskesmas, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []int) ([]entity.Puskesmas, error)
}
