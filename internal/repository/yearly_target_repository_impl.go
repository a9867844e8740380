package repository

import (
	"context"

	"ptm-statistics/internal/domain/entity"
	domainRepo "ptm-statistics/internal/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type yearlyTargetRepository struct{}

func NewYearlyTargetRepository() domainRepo.YearlyTargetRepository {
	return &yearlyTargetRepository{}
}

// GetTarget returns 0 when no target has been set.
func (r *yearlyTargetRepository) GetTarget(ctx context.Context, db *gorm.DB, puskesmasID int, disease entity.DiseaseType, year int) (int, error) {
	var targets []entity.YearlyTarget
	err := db.WithContext(ctx).
		Where("puskesmas_id = ? AND disease_type = ? AND year = ?", puskesmasID, disease, year).
		Limit(1).
		Find(&targets).Error
	if err != nil {
		return 0, err
	}
	if len(targets) == 0 {
		return 0, nil
	}
	return targets[0].TargetCount, nil
}

func (r *yearlyTargetRepository) Upsert(ctx context.Context, db *gorm.DB, target *entity.YearlyTarget) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "puskesmas_id"}, {Name: "disease_type"}, {Name: "year"}},
		DoUpdates: clause.AssignmentColumns([]string{"target_count", "updated_at"}),
	}).Create(target).Error
}
