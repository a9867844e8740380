package repository

import (
	"context"

	"ptm-statistics/internal/domain/entity"

	"gorm.io/gorm"
)

// TargetResolver returns the yearly target of a center, 0 when none is set.
type TargetResolver interface {
	GetTarget(ctx context.Context, db *gorm.DB, puskesmasID int, disease entity.DiseaseType, year int) (int, error)
}

type YearlyTargetRepository interface {
	TargetResolver
	Upsert(ctx context.Context, db *gorm.DB, target *entity.YearlyTarget) error
}
