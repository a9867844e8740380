package service

import (
	"context"
	"sort"

	"ptm-statistics/internal/domain/entity"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// StatisticsReader returns the 12 cached rows of a center/disease/year.
type StatisticsReader interface {
	GetYear(ctx context.Context, puskesmasID int, disease entity.DiseaseType, year int) ([]entity.MonthlyStatistic, error)
}

// MonthSelector picks the month a center contributes to a summary or ranking.
type MonthSelector func(months []entity.MonthlyAggregate) entity.YearlySummary

// LatestNonzeroMonth selects each center's own last month with data.
func LatestNonzeroMonth() MonthSelector {
	return entity.SummarizeYear
}

// FixedMonth selects the same calendar month for every center.
func FixedMonth(month int) MonthSelector {
	return func(months []entity.MonthlyAggregate) entity.YearlySummary {
		for _, m := range months {
			if m.Month == month {
				return entity.SummaryOf(m)
			}
		}
		return entity.YearlySummary{Month: month}
	}
}

const rankingSliceSize = 5

// SummaryRollup aggregates cached rows across many centers.
type SummaryRollup struct {
	reader StatisticsReader
	log    *logrus.Logger
	period PeriodPolicy
}

func NewSummaryRollup(reader StatisticsReader, log *logrus.Logger, period PeriodPolicy) *SummaryRollup {
	return &SummaryRollup{
		reader: reader,
		log:    log,
		period: period,
	}
}

// LatestNonzeroMonthSummary sums, for every center, the center's own last
// month with a non-zero total. Centers may contribute different months.
func (r *SummaryRollup) LatestNonzeroMonthSummary(ctx context.Context, puskesmasIDs []int, disease entity.DiseaseType, year int) (*entity.Summary, error) {
	if err := r.period.ValidateYear(year); err != nil {
		return nil, err
	}
	return r.summarize(ctx, puskesmasIDs, disease, year, 0, LatestNonzeroMonth())
}

// FixedMonthSummary sums the given month of every center.
func (r *SummaryRollup) FixedMonthSummary(ctx context.Context, puskesmasIDs []int, disease entity.DiseaseType, year, month int) (*entity.Summary, error) {
	if err := r.period.ValidateMonth(year, month); err != nil {
		return nil, err
	}
	return r.summarize(ctx, puskesmasIDs, disease, year, month, FixedMonth(month))
}

// Rank orders centers by achievement percentage of one disease, highest first.
// Ties keep the order of centers.
func (r *SummaryRollup) Rank(ctx context.Context, centers []entity.Puskesmas, disease entity.DiseaseType, year int, pick MonthSelector) (*entity.Ranking, error) {
	return r.rank(ctx, centers, []entity.DiseaseType{disease}, year, pick)
}

// RankCombined orders centers by the sum of their hypertension and diabetes
// achievement percentages.
func (r *SummaryRollup) RankCombined(ctx context.Context, centers []entity.Puskesmas, year int, pick MonthSelector) (*entity.Ranking, error) {
	return r.rank(ctx, centers, entity.DiseaseTypes(), year, pick)
}

func (r *SummaryRollup) summarize(ctx context.Context, puskesmasIDs []int, disease entity.DiseaseType, year, month int, pick MonthSelector) (*entity.Summary, error) {
	if err := validateDisease(disease); err != nil {
		return nil, err
	}

	summary := &entity.Summary{
		Disease:      disease,
		Year:         year,
		Month:        month,
		MonthlyTrend: make([]entity.MonthlyAggregate, entity.MonthsPerYear),
	}
	for m := 1; m <= entity.MonthsPerYear; m++ {
		summary.MonthlyTrend[m-1].Month = m
	}

	for _, id := range puskesmasIDs {
		months, err := r.yearAggregates(ctx, id, disease, year)
		if err != nil {
			return nil, err
		}

		snapshot := pick(months)
		summary.Target += snapshot.Target
		summary.TotalPatients += snapshot.TotalPatients
		summary.StandardPatients += snapshot.StandardPatients
		summary.NonStandardPatients += snapshot.NonStandardPatients
		summary.MalePatients += snapshot.MalePatients
		summary.FemalePatients += snapshot.FemalePatients

		// trend points always align on calendar months
		for _, m := range months {
			point := &summary.MonthlyTrend[m.Month-1]
			point.Target += m.Target
			point.TotalPatients += m.TotalPatients
			point.StandardPatients += m.StandardPatients
			point.MalePatients += m.MalePatients
			point.FemalePatients += m.FemalePatients
		}
	}

	for i := range summary.MonthlyTrend {
		summary.MonthlyTrend[i].Recalculate()
	}
	summary.Percentage = entity.AchievementPercentage(summary.StandardPatients, summary.Target)
	summary.StandardPercentage = entity.StandardPercentage(summary.StandardPatients, summary.TotalPatients)
	return summary, nil
}

func (r *SummaryRollup) rank(ctx context.Context, centers []entity.Puskesmas, diseases []entity.DiseaseType, year int, pick MonthSelector) (*entity.Ranking, error) {
	if err := r.period.ValidateYear(year); err != nil {
		return nil, err
	}
	for _, d := range diseases {
		if err := validateDisease(d); err != nil {
			return nil, err
		}
	}

	entries := make([]entity.RankingEntry, 0, len(centers))
	for _, center := range centers {
		entry := entity.RankingEntry{
			PuskesmasID:   center.ID,
			PuskesmasName: center.Name,
			Score:         decimal.Zero,
			ByDisease:     make(map[entity.DiseaseType]entity.YearlySummary, len(diseases)),
		}
		for _, d := range diseases {
			months, err := r.yearAggregates(ctx, center.ID, d, year)
			if err != nil {
				return nil, err
			}
			snapshot := pick(months)
			entry.ByDisease[d] = snapshot
			entry.Score = entry.Score.Add(snapshot.Percentage)
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score.GreaterThan(entries[j].Score)
	})
	for i := range entries {
		entries[i].Ranking = i + 1
	}

	ranking := &entity.Ranking{
		Entries: entries,
		TopFive: entries[:min(rankingSliceSize, len(entries))],
	}
	// bottom five would overlap the top five below six centers
	if len(entries) > rankingSliceSize {
		ranking.BottomFive = entries[len(entries)-rankingSliceSize:]
	}
	return ranking, nil
}

func (r *SummaryRollup) yearAggregates(ctx context.Context, puskesmasID int, disease entity.DiseaseType, year int) ([]entity.MonthlyAggregate, error) {
	stats, err := r.reader.GetYear(ctx, puskesmasID, disease, year)
	if err != nil {
		r.log.Warnf("Failed to read statistics of puskesmas %d %s %d for rollup: %+v", puskesmasID, disease, year, err)
		return nil, err
	}

	months := make([]entity.MonthlyAggregate, 0, len(stats))
	for i := range stats {
		if stats[i].Month < 1 || stats[i].Month > entity.MonthsPerYear {
			continue
		}
		months = append(months, stats[i].Aggregate())
	}
	return months, nil
}
