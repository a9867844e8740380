package repository

import (
	"context"

	"ptm-statistics/internal/domain/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VisitIndex lists, per patient, the distinct months visited in a year.
// An empty slice is a valid "no data" answer.
type VisitIndex interface {
	Disease() entity.DiseaseType
	ListPatientVisits(ctx context.Context, db *gorm.DB, puskesmasID int, year int) ([]entity.PatientVisitRecord, error)
}

// ExaminationRepository stores the examinations of one disease program.
type ExaminationRepository interface {
	VisitIndex
	Create(ctx context.Context, db *gorm.DB, exam *entity.Examination) error
	FindVisitedMonths(ctx context.Context, db *gorm.DB, puskesmasID int, patientID uuid.UUID, year int) (entity.MonthSet, error)
}
