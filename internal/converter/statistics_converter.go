package converter

import (
	"ptm-statistics/internal/delivery/dto"
	"ptm-statistics/internal/domain/entity"
	"ptm-statistics/internal/service"
)

// AggregateToResponse converts a MonthlyAggregate to its response DTO
func AggregateToResponse(agg entity.MonthlyAggregate) dto.MonthlyStatisticResponse {
	return dto.MonthlyStatisticResponse{
		Month:               agg.Month,
		Target:              agg.Target,
		TotalPatients:       agg.TotalPatients,
		StandardPatients:    agg.StandardPatients,
		NonStandardPatients: agg.NonStandardPatients,
		MalePatients:        agg.MalePatients,
		FemalePatients:      agg.FemalePatients,
		Percentage:          agg.Percentage,
	}
}

// StatisticsToResponses converts cache rows to response DTOs
func StatisticsToResponses(stats []entity.MonthlyStatistic) []dto.MonthlyStatisticResponse {
	responses := make([]dto.MonthlyStatisticResponse, len(stats))
	for i := range stats {
		responses[i] = AggregateToResponse(stats[i].Aggregate())
	}
	return responses
}

func AggregatesToResponses(aggs []entity.MonthlyAggregate) []dto.MonthlyStatisticResponse {
	responses := make([]dto.MonthlyStatisticResponse, len(aggs))
	for i, agg := range aggs {
		responses[i] = AggregateToResponse(agg)
	}
	return responses
}

func YearlySummaryToResponse(s entity.YearlySummary) dto.YearlySummaryResponse {
	return dto.YearlySummaryResponse{
		Month:               s.Month,
		Target:              s.Target,
		TotalPatients:       s.TotalPatients,
		StandardPatients:    s.StandardPatients,
		NonStandardPatients: s.NonStandardPatients,
		MalePatients:        s.MalePatients,
		FemalePatients:      s.FemalePatients,
		Percentage:          s.Percentage,
		StandardPercentage:  s.StandardPercentage,
	}
}

// SummaryToResponse converts a rollup Summary to its response DTO
func SummaryToResponse(s *entity.Summary) dto.SummaryResponse {
	return dto.SummaryResponse{
		Disease: string(s.Disease),
		Year:    s.Year,
		Month:   s.Month,
		Totals: dto.YearlySummaryResponse{
			Month:               s.Month,
			Target:              s.Target,
			TotalPatients:       s.TotalPatients,
			StandardPatients:    s.StandardPatients,
			NonStandardPatients: s.NonStandardPatients,
			MalePatients:        s.MalePatients,
			FemalePatients:      s.FemalePatients,
			Percentage:          s.Percentage,
			StandardPercentage:  s.StandardPercentage,
		},
		MonthlyTrend: AggregatesToResponses(s.MonthlyTrend),
	}
}

func rankingEntriesToResponses(entries []entity.RankingEntry) []dto.RankingEntryResponse {
	responses := make([]dto.RankingEntryResponse, len(entries))
	for i, e := range entries {
		byDisease := make(map[string]dto.YearlySummaryResponse, len(e.ByDisease))
		for d, s := range e.ByDisease {
			byDisease[string(d)] = YearlySummaryToResponse(s)
		}
		responses[i] = dto.RankingEntryResponse{
			Ranking:       e.Ranking,
			PuskesmasID:   e.PuskesmasID,
			PuskesmasName: e.PuskesmasName,
			Score:         e.Score,
			ByDisease:     byDisease,
		}
	}
	return responses
}

// RankingToResponse converts a Ranking to its response DTO
func RankingToResponse(r *entity.Ranking) dto.RankingResponse {
	response := dto.RankingResponse{
		Entries: rankingEntriesToResponses(r.Entries),
		TopFive: rankingEntriesToResponses(r.TopFive),
	}
	if r.BottomFive != nil {
		response.BottomFive = rankingEntriesToResponses(r.BottomFive)
	}
	return response
}

func ExaminationToResponse(exam *entity.Examination, disease entity.DiseaseType) *dto.ExaminationResponse {
	if exam == nil {
		return nil
	}
	return &dto.ExaminationResponse{
		ID:                    exam.ID,
		PatientID:             exam.PatientID,
		PuskesmasID:           exam.PuskesmasID,
		Disease:               string(disease),
		ExaminationDate:       exam.ExaminationDate.Format("2006-01-02"),
		IsFirstVisitThisMonth: exam.IsFirstVisitThisMonth,
	}
}

func RebuildReportToResponse(r *service.RebuildReport) *dto.RebuildStatisticsResponse {
	if r == nil {
		return nil
	}
	return &dto.RebuildStatisticsResponse{
		Year:        r.Year,
		Centers:     r.Centers,
		YearsBuilt:  r.Years,
		RowsWritten: r.Rows,
		Duration:    r.Duration,
	}
}
