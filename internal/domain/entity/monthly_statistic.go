package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyStatistic is the persisted cache row for one
// (puskesmas, disease, year, month) key.
type MonthlyStatistic struct {
	ID                  int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PuskesmasID         int             `gorm:"not null;uniqueIndex:idx_monthly_statistic_key" json:"puskesmas_id"`
	DiseaseType         DiseaseType     `gorm:"type:varchar(2);not null;uniqueIndex:idx_monthly_statistic_key" json:"disease_type"`
	Year                int             `gorm:"not null;uniqueIndex:idx_monthly_statistic_key" json:"year"`
	Month               int             `gorm:"not null;uniqueIndex:idx_monthly_statistic_key" json:"month"`
	Target              int             `gorm:"not null;default:0" json:"target"`
	TotalPatients       int             `gorm:"not null;default:0" json:"total_patients"`
	StandardPatients    int             `gorm:"not null;default:0" json:"standard_patients"`
	NonStandardPatients int             `gorm:"not null;default:0" json:"non_standard_patients"`
	MalePatients        int             `gorm:"not null;default:0" json:"male_patients"`
	FemalePatients      int             `gorm:"not null;default:0" json:"female_patients"`
	Percentage          decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"percentage"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MonthlyStatistic) TableName() string {
	return "monthly_statistics"
}

// Key returns the cache key of the row.
func (s *MonthlyStatistic) Key() StatisticKey {
	return StatisticKey{PuskesmasID: s.PuskesmasID, Disease: s.DiseaseType, Year: s.Year, Month: s.Month}
}

// Aggregate converts the row to its engine value.
func (s *MonthlyStatistic) Aggregate() MonthlyAggregate {
	return MonthlyAggregate{
		Month:               s.Month,
		Target:              s.Target,
		TotalPatients:       s.TotalPatients,
		StandardPatients:    s.StandardPatients,
		NonStandardPatients: s.NonStandardPatients,
		MalePatients:        s.MalePatients,
		FemalePatients:      s.FemalePatients,
		Percentage:          s.Percentage,
	}
}

// Apply copies aggregate values into the row, keeping its key and timestamps.
func (s *MonthlyStatistic) Apply(agg MonthlyAggregate) {
	s.Target = agg.Target
	s.TotalPatients = agg.TotalPatients
	s.StandardPatients = agg.StandardPatients
	s.NonStandardPatients = agg.NonStandardPatients
	s.MalePatients = agg.MalePatients
	s.FemalePatients = agg.FemalePatients
	s.Percentage = agg.Percentage
}
