package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"ptm-statistics/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubReader serves prepared years; a missing year reads as 12 empty months.
type stubReader struct {
	years map[yearKey][]entity.MonthlyStatistic
	err   error
}

func newStubReader() *stubReader {
	return &stubReader{years: map[yearKey][]entity.MonthlyStatistic{}}
}

func (r *stubReader) GetYear(_ context.Context, puskesmasID int, disease entity.DiseaseType, year int) ([]entity.MonthlyStatistic, error) {
	if r.err != nil {
		return nil, r.err
	}
	if stats, ok := r.years[yearKey{puskesmasID, disease, year}]; ok {
		return stats, nil
	}
	return yearOf(puskesmasID, disease, year, 0, nil), nil
}

// yearOf builds a year where month m has totals[m-1] patients, all standard.
func yearOf(puskesmasID int, disease entity.DiseaseType, year, target int, totals []int) []entity.MonthlyStatistic {
	stats := make([]entity.MonthlyStatistic, entity.MonthsPerYear)
	for m := 1; m <= entity.MonthsPerYear; m++ {
		agg := entity.MonthlyAggregate{Month: m, Target: target}
		if m <= len(totals) {
			agg.TotalPatients = totals[m-1]
			agg.StandardPatients = totals[m-1]
			agg.FemalePatients = totals[m-1]
		}
		agg.Recalculate()
		stats[m-1] = entity.MonthlyStatistic{PuskesmasID: puskesmasID, DiseaseType: disease, Year: year, Month: m}
		stats[m-1].Apply(agg)
	}
	return stats
}

func (r *stubReader) put(puskesmasID int, disease entity.DiseaseType, year, target int, totals ...int) {
	r.years[yearKey{puskesmasID, disease, year}] = yearOf(puskesmasID, disease, year, target, totals)
}

func TestSummaryRollup_LatestNonzeroMonth(t *testing.T) {
	reader := newStubReader()
	// center 1 has data through May, center 2 only through March
	reader.put(1, entity.DiseaseHypertension, 2024, 100, 1, 2, 3, 4, 5)
	reader.put(2, entity.DiseaseHypertension, 2024, 50, 10, 20, 30)
	rollup := NewSummaryRollup(reader, newTestLogger(), testPeriod)

	summary, err := rollup.LatestNonzeroMonthSummary(context.Background(), []int{1, 2}, entity.DiseaseHypertension, 2024)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Month)
	assert.Equal(t, 150, summary.Target)
	assert.Equal(t, 35, summary.TotalPatients)
	assert.Equal(t, 35, summary.StandardPatients)
	assert.Equal(t, 35, summary.FemalePatients)
	assert.Equal(t, "23.33", summary.Percentage.StringFixed(2))
	assert.Equal(t, "100.00", summary.StandardPercentage.StringFixed(2))

	require.Len(t, summary.MonthlyTrend, 12)
	assert.Equal(t, 11, summary.MonthlyTrend[0].TotalPatients)
	assert.Equal(t, 33, summary.MonthlyTrend[2].TotalPatients)
	assert.Equal(t, 4, summary.MonthlyTrend[3].TotalPatients)
	assert.Equal(t, 0, summary.MonthlyTrend[11].TotalPatients)
	assert.Equal(t, 150, summary.MonthlyTrend[11].Target)
}

func TestSummaryRollup_FixedMonth(t *testing.T) {
	reader := newStubReader()
	reader.put(1, entity.DiseaseDiabetes, 2024, 100, 1, 2, 3, 4, 5)
	reader.put(2, entity.DiseaseDiabetes, 2024, 50, 10, 20, 30)
	rollup := NewSummaryRollup(reader, newTestLogger(), testPeriod)

	summary, err := rollup.FixedMonthSummary(context.Background(), []int{1, 2}, entity.DiseaseDiabetes, 2024, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Month)
	assert.Equal(t, 22, summary.TotalPatients)
	assert.Equal(t, "14.67", summary.Percentage.StringFixed(2))

	// a month without data contributes zeros, not an earlier month
	summary, err = rollup.FixedMonthSummary(context.Background(), []int{1, 2}, entity.DiseaseDiabetes, 2024, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TotalPatients)

	_, err = rollup.FixedMonthSummary(context.Background(), []int{1}, entity.DiseaseDiabetes, 2024, 0)
	require.ErrorIs(t, err, entity.ErrInvalidPeriod)
}

func TestSummaryRollup_NoCentersIsZero(t *testing.T) {
	rollup := NewSummaryRollup(newStubReader(), newTestLogger(), testPeriod)

	summary, err := rollup.LatestNonzeroMonthSummary(context.Background(), nil, entity.DiseaseHypertension, 2024)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalPatients)
	assert.True(t, summary.Percentage.IsZero())
	assert.Len(t, summary.MonthlyTrend, 12)
}

func TestSummaryRollup_ReaderErrorPropagates(t *testing.T) {
	reader := newStubReader()
	reader.err = fmt.Errorf("%w: visit index", entity.ErrDataSourceUnavailable)
	rollup := NewSummaryRollup(reader, newTestLogger(), testPeriod)

	_, err := rollup.LatestNonzeroMonthSummary(context.Background(), []int{1}, entity.DiseaseHypertension, 2024)
	require.ErrorIs(t, err, entity.ErrDataSourceUnavailable)

	_, err = rollup.Rank(context.Background(), []entity.Puskesmas{{ID: 1}}, entity.DiseaseHypertension, 2024, LatestNonzeroMonth())
	require.True(t, errors.Is(err, entity.ErrDataSourceUnavailable))
}

func centersN(n int) []entity.Puskesmas {
	centers := make([]entity.Puskesmas, n)
	for i := range centers {
		centers[i] = entity.Puskesmas{ID: i + 1, Name: fmt.Sprintf("Puskesmas %02d", i+1)}
	}
	return centers
}

func rankedIDs(entries []entity.RankingEntry) []int {
	ids := make([]int, len(entries))
	for i, e := range entries {
		ids[i] = e.PuskesmasID
	}
	return ids
}

func TestSummaryRollup_Rank(t *testing.T) {
	reader := newStubReader()
	// achievement: c1 10%, c2 30%, c3 20%, c4 30%, c5 0%, c6 no data, c7 50%
	reader.put(1, entity.DiseaseHypertension, 2024, 10, 1)
	reader.put(2, entity.DiseaseHypertension, 2024, 10, 3)
	reader.put(3, entity.DiseaseHypertension, 2024, 10, 2)
	reader.put(4, entity.DiseaseHypertension, 2024, 10, 1, 3)
	reader.put(5, entity.DiseaseHypertension, 2024, 0, 4)
	reader.put(7, entity.DiseaseHypertension, 2024, 10, 5)
	rollup := NewSummaryRollup(reader, newTestLogger(), testPeriod)

	ranking, err := rollup.Rank(context.Background(), centersN(7), entity.DiseaseHypertension, 2024, LatestNonzeroMonth())
	require.NoError(t, err)

	// ties keep the input order: 2 before 4, 5 before 6
	assert.Equal(t, []int{7, 2, 4, 3, 1, 5, 6}, rankedIDs(ranking.Entries))
	for i, e := range ranking.Entries {
		assert.Equal(t, i+1, e.Ranking)
	}
	assert.Equal(t, []int{7, 2, 4, 3, 1}, rankedIDs(ranking.TopFive))
	assert.Equal(t, []int{4, 3, 1, 5, 6}, rankedIDs(ranking.BottomFive))
	assert.Equal(t, "50.00", ranking.Entries[0].Score.StringFixed(2))
	assert.Equal(t, 2, ranking.Entries[2].ByDisease[entity.DiseaseHypertension].Month)
}

func TestSummaryRollup_RankFewCentersOmitsBottomFive(t *testing.T) {
	reader := newStubReader()
	reader.put(1, entity.DiseaseDiabetes, 2024, 10, 1)
	reader.put(2, entity.DiseaseDiabetes, 2024, 10, 2)
	rollup := NewSummaryRollup(reader, newTestLogger(), testPeriod)

	ranking, err := rollup.Rank(context.Background(), centersN(5), entity.DiseaseDiabetes, 2024, FixedMonth(1))
	require.NoError(t, err)
	assert.Len(t, ranking.TopFive, 5)
	assert.Nil(t, ranking.BottomFive)
	assert.Equal(t, []int{2, 1, 3, 4, 5}, rankedIDs(ranking.Entries))
}

func TestSummaryRollup_RankCombined(t *testing.T) {
	reader := newStubReader()
	reader.put(1, entity.DiseaseHypertension, 2024, 10, 8)
	reader.put(1, entity.DiseaseDiabetes, 2024, 10, 1)
	reader.put(2, entity.DiseaseHypertension, 2024, 10, 5)
	reader.put(2, entity.DiseaseDiabetes, 2024, 10, 5)
	rollup := NewSummaryRollup(reader, newTestLogger(), testPeriod)

	ranking, err := rollup.RankCombined(context.Background(), centersN(2), 2024, LatestNonzeroMonth())
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, rankedIDs(ranking.Entries))
	assert.Equal(t, "100.00", ranking.Entries[0].Score.StringFixed(2))
	assert.Equal(t, "90.00", ranking.Entries[1].Score.StringFixed(2))
	assert.Len(t, ranking.Entries[1].ByDisease, 2)
}
