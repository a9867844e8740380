package entity

import (
	"time"

	"github.com/google/uuid"
)

// Examination is one recorded visit of a patient for a disease program.
// The same shape is stored in ht_examinations and dm_examinations.
type Examination struct {
	ID                    uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	PatientID             uuid.UUID `gorm:"type:uuid;not null;index" json:"patient_id"`
	PuskesmasID           int       `gorm:"not null;index" json:"puskesmas_id"`
	ExaminationDate       time.Time `gorm:"type:date;not null;index" json:"examination_date"`
	Year                  int       `gorm:"not null;index" json:"year"`
	Month                 int       `gorm:"not null" json:"month"`
	IsFirstVisitThisMonth bool      `gorm:"not null;default:false" json:"is_first_visit_this_month"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
}
