package entity

import "time"

// YearlyTarget is the administrator-set goal of standard patients for a
// puskesmas, disease and year.
type YearlyTarget struct {
	ID          int         `gorm:"primaryKey;autoIncrement" json:"id"`
	PuskesmasID int         `gorm:"not null;uniqueIndex:idx_yearly_target_key" json:"puskesmas_id"`
	DiseaseType DiseaseType `gorm:"type:varchar(2);not null;uniqueIndex:idx_yearly_target_key" json:"disease_type"`
	Year        int         `gorm:"not null;uniqueIndex:idx_yearly_target_key" json:"year"`
	TargetCount int         `gorm:"not null;default:0" json:"target_count"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (YearlyTarget) TableName() string {
	return "yearly_targets"
}
