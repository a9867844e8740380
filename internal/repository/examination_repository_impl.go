package repository

import (
	"context"

	"ptm-statistics/internal/domain/entity"
	domainRepo "ptm-statistics/internal/domain/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// examinationRepository is bound to one disease's examination table.
type examinationRepository struct {
	disease entity.DiseaseType
}

func NewExaminationRepository(disease entity.DiseaseType) domainRepo.ExaminationRepository {
	return &examinationRepository{disease: disease}
}

type visitRow struct {
	PatientID uuid.UUID
	Gender    entity.Gender
	Month     int
}

func (r *examinationRepository) Disease() entity.DiseaseType {
	return r.disease
}

func (r *examinationRepository) Create(ctx context.Context, db *gorm.DB, exam *entity.Examination) error {
	return db.WithContext(ctx).Table(r.disease.ExaminationTable()).Create(exam).Error
}

// ListPatientVisits returns one record per patient with the distinct months
// visited, in patient id order.
func (r *examinationRepository) ListPatientVisits(ctx context.Context, db *gorm.DB, puskesmasID int, year int) ([]entity.PatientVisitRecord, error) {
	var rows []visitRow
	err := db.WithContext(ctx).
		Table(r.disease.ExaminationTable()+" AS e").
		Select("e.patient_id, p.gender, e.month").
		Joins("JOIN patients p ON p.id = e.patient_id").
		Where("e.puskesmas_id = ? AND e.year = ?", puskesmasID, year).
		Group("e.patient_id, p.gender, e.month").
		Order("e.patient_id ASC, e.month ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]entity.PatientVisitRecord, 0)
	for _, row := range rows {
		n := len(records)
		if n > 0 && records[n-1].PatientID == row.PatientID {
			records[n-1].Months = append(records[n-1].Months, row.Month)
			continue
		}
		records = append(records, entity.PatientVisitRecord{
			PatientID: row.PatientID,
			Gender:    row.Gender,
			Months:    []int{row.Month},
		})
	}
	return records, nil
}

func (r *examinationRepository) FindVisitedMonths(ctx context.Context, db *gorm.DB, puskesmasID int, patientID uuid.UUID, year int) (entity.MonthSet, error) {
	var months []int
	err := db.WithContext(ctx).
		Table(r.disease.ExaminationTable()).
		Where("puskesmas_id = ? AND patient_id = ? AND year = ?", puskesmasID, patientID, year).
		Distinct("month").
		Pluck("month", &months).Error
	if err != nil {
		return 0, err
	}

	var set entity.MonthSet
	for _, m := range months {
		set = set.With(m)
	}
	return set, nil
}
