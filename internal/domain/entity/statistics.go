package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const MonthsPerYear = 12

// MonthSet is the set of distinct months (1-12) a patient visited in a year.
type MonthSet uint16

// NewMonthSet builds a set from months, rejecting anything outside 1-12.
func NewMonthSet(months ...int) (MonthSet, error) {
	var s MonthSet
	for _, m := range months {
		if m < 1 || m > MonthsPerYear {
			return 0, fmt.Errorf("%w: month %d", ErrInvalidPeriod, m)
		}
		s = s.With(m)
	}
	return s, nil
}

func (s MonthSet) Has(month int) bool {
	if month < 1 || month > MonthsPerYear {
		return false
	}
	return s&(1<<uint(month-1)) != 0
}

func (s MonthSet) With(month int) MonthSet {
	if month < 1 || month > MonthsPerYear {
		return s
	}
	return s | 1<<uint(month-1)
}

func (s MonthSet) IsEmpty() bool {
	return s == 0
}

// First returns the earliest visited month, 0 for an empty set.
func (s MonthSet) First() int {
	for m := 1; m <= MonthsPerYear; m++ {
		if s.Has(m) {
			return m
		}
	}
	return 0
}

func (s MonthSet) Months() []int {
	months := make([]int, 0, MonthsPerYear)
	for m := 1; m <= MonthsPerYear; m++ {
		if s.Has(m) {
			months = append(months, m)
		}
	}
	return months
}

// PatientVisitRecord is the visit index entry of one patient for a year.
// Months holds the distinct visited months as read from the source.
type PatientVisitRecord struct {
	PatientID uuid.UUID
	Gender    Gender
	Months    []int
}

// ComplianceResult holds, for each month, whether the patient is standard as of that month.
// Index 0 is unused.
type ComplianceResult struct {
	FirstMonth int
	Standard   [MonthsPerYear + 1]bool
}

func (r ComplianceResult) StandardAt(month int) bool {
	if month < 1 || month > MonthsPerYear {
		return false
	}
	return r.Standard[month]
}

// SeenBy reports whether the patient had appeared by the given month.
func (r ComplianceResult) SeenBy(month int) bool {
	return r.FirstMonth > 0 && r.FirstMonth <= month
}

// MonthlyAggregate is the compliance tally of a center/disease/year for one month.
type MonthlyAggregate struct {
	Month               int             `json:"month"`
	Target              int             `json:"target"`
	TotalPatients       int             `json:"total_patients"`
	StandardPatients    int             `json:"standard_patients"`
	NonStandardPatients int             `json:"non_standard_patients"`
	MalePatients        int             `json:"male_patients"`
	FemalePatients      int             `json:"female_patients"`
	Percentage          decimal.Decimal `json:"percentage"`
}

// Recalculate derives the non-standard count and achievement percentage.
func (a *MonthlyAggregate) Recalculate() {
	a.NonStandardPatients = a.TotalPatients - a.StandardPatients
	a.Percentage = AchievementPercentage(a.StandardPatients, a.Target)
}

// YearlyAggregate is the 12-month aggregator output of a center/disease/year.
type YearlyAggregate struct {
	PuskesmasID int
	Disease     DiseaseType
	Year        int
	Target      int
	Months      [MonthsPerYear]MonthlyAggregate
}

// Month returns the aggregate for month m (1-12).
func (y *YearlyAggregate) Month(m int) MonthlyAggregate {
	return y.Months[m-1]
}

// YearlySummary is the headline snapshot of a year, taken from its last
// month with data.
type YearlySummary struct {
	Month               int             `json:"month"`
	Target              int             `json:"target"`
	TotalPatients       int             `json:"total_patients"`
	StandardPatients    int             `json:"standard_patients"`
	NonStandardPatients int             `json:"non_standard_patients"`
	MalePatients        int             `json:"male_patients"`
	FemalePatients      int             `json:"female_patients"`
	Percentage          decimal.Decimal `json:"percentage"`
	StandardPercentage  decimal.Decimal `json:"standard_percentage"`
}

// LatestNonzeroMonth returns the last month whose total is non-zero, or 0.
func LatestNonzeroMonth(months []MonthlyAggregate) int {
	latest := 0
	for _, m := range months {
		if m.TotalPatients > 0 && m.Month > latest {
			latest = m.Month
		}
	}
	return latest
}

// SummarizeYear picks the last month with data. All fields are zero when
// no month has data.
func SummarizeYear(months []MonthlyAggregate) YearlySummary {
	latest := LatestNonzeroMonth(months)
	if latest == 0 {
		return YearlySummary{Percentage: decimal.Zero, StandardPercentage: decimal.Zero}
	}
	for _, m := range months {
		if m.Month == latest {
			return SummaryOf(m)
		}
	}
	return YearlySummary{}
}

// SummaryOf turns one month into a summary.
func SummaryOf(m MonthlyAggregate) YearlySummary {
	return YearlySummary{
		Month:               m.Month,
		Target:              m.Target,
		TotalPatients:       m.TotalPatients,
		StandardPatients:    m.StandardPatients,
		NonStandardPatients: m.NonStandardPatients,
		MalePatients:        m.MalePatients,
		FemalePatients:      m.FemalePatients,
		Percentage:          m.Percentage,
		StandardPercentage:  StandardPercentage(m.StandardPatients, m.TotalPatients),
	}
}

var hundred = decimal.NewFromInt(100)

// AchievementPercentage is standard/target*100 rounded to 2 places, 0 for a zero target.
// The value is not clamped and exceeds 100 when standard patients outnumber the target.
func AchievementPercentage(standard, target int) decimal.Decimal {
	if target <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(standard)).
		Mul(hundred).
		DivRound(decimal.NewFromInt(int64(target)), 2)
}

// StandardPercentage is standard/total*100 rounded to 2 places.
func StandardPercentage(standard, total int) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(standard)).
		Mul(hundred).
		DivRound(decimal.NewFromInt(int64(total)), 2)
}

// StatisticKey addresses one cache row.
type StatisticKey struct {
	PuskesmasID int
	Disease     DiseaseType
	Year        int
	Month       int
}

// NewVisit is the event raised when an examination is recorded.
type NewVisit struct {
	PuskesmasID     int
	Disease         DiseaseType
	PatientID       uuid.UUID
	ExaminationDate time.Time
}

// RebuildScope selects the cache rows a rebuild drops and recomputes.
// Empty PuskesmasIDs or Diseases mean all of them.
type RebuildScope struct {
	Year         int
	Diseases     []DiseaseType
	PuskesmasIDs []int
}

// Summary is the rollup of many centers for one disease and year.
type Summary struct {
	Disease             DiseaseType        `json:"disease_type"`
	Year                int                `json:"year"`
	Month               int                `json:"month,omitempty"`
	Target              int                `json:"target"`
	TotalPatients       int                `json:"total_patients"`
	StandardPatients    int                `json:"standard_patients"`
	NonStandardPatients int                `json:"non_standard_patients"`
	MalePatients        int                `json:"male_patients"`
	FemalePatients      int                `json:"female_patients"`
	Percentage          decimal.Decimal    `json:"percentage"`
	StandardPercentage  decimal.Decimal    `json:"standard_percentage"`
	MonthlyTrend        []MonthlyAggregate `json:"monthly_trend"`
}

// RankingEntry is one center's position in a ranking.
type RankingEntry struct {
	Ranking       int                           `json:"ranking"`
	PuskesmasID   int                           `json:"puskesmas_id"`
	PuskesmasName string                        `json:"puskesmas_name"`
	Score         decimal.Decimal               `json:"score"`
	ByDisease     map[DiseaseType]YearlySummary `json:"by_disease"`
}

// Ranking orders centers by achievement.
type Ranking struct {
	Entries    []RankingEntry `json:"entries"`
	TopFive    []RankingEntry `json:"top_five"`
	BottomFive []RankingEntry `json:"bottom_five,omitempty"`
}
