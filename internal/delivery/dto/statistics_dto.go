package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request DTOs

type YearStatisticsRequest struct {
	PuskesmasID int    `json:"puskesmas_id" validate:"required,min=1"`
	Disease     string `json:"disease_type" validate:"required,oneof=ht dm"`
	Year        int    `json:"year" validate:"required,year"`
}

type MonthStatisticRequest struct {
	PuskesmasID int    `json:"puskesmas_id" validate:"required,min=1"`
	Disease     string `json:"disease_type" validate:"required,oneof=ht dm"`
	Year        int    `json:"year" validate:"required,year"`
	Month       int    `json:"month" validate:"required,gte=1,lte=12"`
}

type DashboardRequest struct {
	Disease      string `json:"disease_type" validate:"required,oneof=ht dm all"`
	Year         int    `json:"year" validate:"required,year"`
	Month        *int   `json:"month,omitempty" validate:"omitempty,gte=1,lte=12"`
	PuskesmasIDs []int  `json:"puskesmas_ids,omitempty" validate:"omitempty,dive,min=1"`
}

type RebuildStatisticsRequest struct {
	Year         int    `json:"year" validate:"required,year"`
	Disease      string `json:"disease_type,omitempty" validate:"omitempty,oneof=ht dm"`
	PuskesmasIDs []int  `json:"puskesmas_ids,omitempty" validate:"omitempty,dive,min=1"`
}

// Response DTOs

type MonthlyStatisticResponse struct {
	Month               int             `json:"month"`
	Target              int             `json:"target"`
	TotalPatients       int             `json:"total_patients"`
	StandardPatients    int             `json:"standard_patients"`
	NonStandardPatients int             `json:"non_standard_patients"`
	MalePatients        int             `json:"male_patients"`
	FemalePatients      int             `json:"female_patients"`
	Percentage          decimal.Decimal `json:"percentage"`
}

type MonthStatisticResponse struct {
	PuskesmasID int                      `json:"puskesmas_id"`
	Disease     string                   `json:"disease_type"`
	Year        int                      `json:"year"`
	HasData     bool                     `json:"has_data"`
	Statistic   MonthlyStatisticResponse `json:"statistic"`
}

type YearlySummaryResponse struct {
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

type YearStatisticsResponse struct {
	PuskesmasID   int                        `json:"puskesmas_id"`
	PuskesmasName string                     `json:"puskesmas_name"`
	Disease       string                     `json:"disease_type"`
	Year          int                        `json:"year"`
	Months        []MonthlyStatisticResponse `json:"months"`
	Summary       YearlySummaryResponse      `json:"summary"`
}

type SummaryResponse struct {
	Disease      string                     `json:"disease_type"`
	Year         int                        `json:"year"`
	Month        int                        `json:"month,omitempty"`
	Totals       YearlySummaryResponse      `json:"totals"`
	MonthlyTrend []MonthlyStatisticResponse `json:"monthly_trend"`
}

type RankingEntryResponse struct {
	Ranking       int                              `json:"ranking"`
	PuskesmasID   int                              `json:"puskesmas_id"`
	PuskesmasName string                           `json:"puskesmas_name"`
	Score         decimal.Decimal                  `json:"score"`
	ByDisease     map[string]YearlySummaryResponse `json:"by_disease"`
}

type RankingResponse struct {
	Entries    []RankingEntryResponse `json:"entries"`
	TopFive    []RankingEntryResponse `json:"top_five"`
	BottomFive []RankingEntryResponse `json:"bottom_five,omitempty"`
}

type DashboardResponse struct {
	Disease   string            `json:"disease_type"`
	Year      int               `json:"year"`
	Month     *int              `json:"month,omitempty"`
	Summaries []SummaryResponse `json:"summaries"`
	Ranking   RankingResponse   `json:"ranking"`
}

type RebuildStatisticsResponse struct {
	Year        int           `json:"year"`
	Centers     int           `json:"centers"`
	YearsBuilt  int64         `json:"years_rebuilt"`
	RowsWritten int64         `json:"rows_written"`
	Duration    time.Duration `json:"duration_ns"`
}

// Examination DTOs

type RecordExaminationRequest struct {
	PatientID       uuid.UUID `json:"patient_id" validate:"required"`
	Disease         string    `json:"disease_type" validate:"required,oneof=ht dm"`
	ExaminationDate string    `json:"examination_date" validate:"required"`
}

type ExaminationResponse struct {
	ID                    uuid.UUID `json:"id"`
	PatientID             uuid.UUID `json:"patient_id"`
	PuskesmasID           int       `json:"puskesmas_id"`
	Disease               string    `json:"disease_type"`
	ExaminationDate       string    `json:"examination_date"`
	IsFirstVisitThisMonth bool      `json:"is_first_visit_this_month"`
}

// Target DTOs

type SetTargetRequest struct {
	PuskesmasID int    `json:"puskesmas_id" validate:"required,min=1"`
	Disease     string `json:"disease_type" validate:"required,oneof=ht dm"`
	Year        int    `json:"year" validate:"required,year"`
	TargetCount int    `json:"target_count" validate:"gte=0"`
}

type TargetResponse struct {
	PuskesmasID int    `json:"puskesmas_id"`
	Disease     string `json:"disease_type"`
	Year        int    `json:"year"`
	TargetCount int    `json:"target_count"`
}
