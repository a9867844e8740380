package entity

import (
	"time"

	"github.com/google/uuid"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Patient is a chronic-disease patient registered at a puskesmas.
// HasHT / HasDM mark program enrollment; examinations are kept per disease.
type Patient struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	PuskesmasID int       `gorm:"not null;index" json:"puskesmas_id"`
	NIK         string    `gorm:"type:char(16);uniqueIndex" json:"nik,omitempty"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Gender      Gender    `gorm:"type:varchar(10);not null" json:"gender"`
	BirthDate   time.Time `gorm:"type:date" json:"birth_date"`
	HasHT       bool      `gorm:"column:has_ht;not null;default:false" json:"has_ht"`
	HasDM       bool      `gorm:"column:has_dm;not null;default:false" json:"has_dm"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Puskesmas Puskesmas `gorm:"foreignKey:PuskesmasID" json:"puskesmas,omitempty"`
}

func (Patient) TableName() string {
	return "patients"
}

// EnrolledIn reports whether the patient belongs to the disease program.
func (p *Patient) EnrolledIn(disease DiseaseType) bool {
	switch disease {
	case DiseaseHypertension:
		return p.HasHT
	case DiseaseDiabetes:
		return p.HasDM
	}
	return false
}
