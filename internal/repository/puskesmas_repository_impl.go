package repository

import (
	"context"
	"errors"

	"ptm-statistics/internal/domain/entity"
	domainRepo "ptm-statistics/internal/domain/repository"

	"gorm.io/gorm"
)

type puskesmasRepository struct{}

func NewPuskesmasRepository() domainRepo.PuskesmasRepository {
	return &puskesmasRepository{}
}

// FindAll returns centers ordered by name; rankings rely on this order for ties.
func (r *puskesmasRepository) FindAll(ctx context.Context, db *gorm.DB) ([]entity.Puskesmas, error) {
	var centers []entity.Puskesmas
	err := db.WithContext(ctx).Order("name ASC, id ASC").Find(&centers).Error
	if err != nil {
		return nil, err
	}
	return centers, nil
}

func (r *puskesmasRepository) FindByID(ctx context.Context, db *gorm.DB, id int) (*entity.Puskesmas, error) {
	var center entity.Puskesmas
	err := db.WithContext(ctx).Where("id = ?", id).First(&center).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &center, nil
}

func (r *puskesmasRepository) FindByIDs(ctx context.Context, db *gorm.DB, ids []int) ([]entity.Puskesmas, error) {
	var centers []entity.Puskesmas
	err := db.WithContext(ctx).Where("id IN ?", ids).Order("name ASC, id ASC").Find(&centers).Error
	if err != nil {
		return nil, err
	}
	return centers, nil
}
