package service

import (
	"context"
	"errors"
	"fmt"

	"ptm-statistics/internal/domain/entity"
	"ptm-statistics/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// VisitIndexes selects the visit index of each disease program. It is built
// once at startup.
type VisitIndexes map[entity.DiseaseType]repository.VisitIndex

// MonthlyAggregator rolls per-patient compliance into per-month counts for
// one center, disease and year.
type MonthlyAggregator struct {
	db           *gorm.DB
	log          *logrus.Logger
	visitIndexes VisitIndexes
	targets      repository.TargetResolver
	period       PeriodPolicy
}

func NewMonthlyAggregator(
	db *gorm.DB,
	log *logrus.Logger,
	visitIndexes VisitIndexes,
	targets repository.TargetResolver,
	period PeriodPolicy,
) *MonthlyAggregator {
	return &MonthlyAggregator{
		db:           db,
		log:          log,
		visitIndexes: visitIndexes,
		targets:      targets,
		period:       period,
	}
}

// Aggregate computes all 12 months of a center/disease/year from the visit
// index and the yearly target.
//
// A failing visit index or target source fails the whole call with
// entity.ErrDataSourceUnavailable. A malformed patient record is logged and
// skipped.
func (a *MonthlyAggregator) Aggregate(ctx context.Context, puskesmasID int, disease entity.DiseaseType, year int) (*entity.YearlyAggregate, error) {
	if err := a.period.ValidateYear(year); err != nil {
		return nil, err
	}
	index, ok := a.visitIndexes[disease]
	if !ok {
		return nil, fmt.Errorf("%w: %q", entity.ErrInvalidDiseaseType, string(disease))
	}

	target, err := a.targets.GetTarget(ctx, a.db, puskesmasID, disease, year)
	if err != nil {
		a.log.Warnf("Failed to resolve target for puskesmas %d %s %d: %+v", puskesmasID, disease, year, err)
		return nil, unavailable("yearly target", err)
	}

	records, err := index.ListPatientVisits(ctx, a.db, puskesmasID, year)
	if err != nil {
		a.log.Warnf("Failed to list patient visits for puskesmas %d %s %d: %+v", puskesmasID, disease, year, err)
		return nil, unavailable("visit index", err)
	}

	var totals contribution
	skipped := 0
	for _, record := range records {
		months, err := validVisitMonths(record)
		if err != nil {
			skipped++
			a.log.Warnf("Skipping malformed visit record of patient %s (puskesmas %d, %s %d): %+v", record.PatientID, puskesmasID, disease, year, err)
			continue
		}
		totals.add(contributionOf(months, record.Gender))
	}

	result := &entity.YearlyAggregate{
		PuskesmasID: puskesmasID,
		Disease:     disease,
		Year:        year,
		Target:      target,
	}
	for m := 1; m <= entity.MonthsPerYear; m++ {
		agg := entity.MonthlyAggregate{Month: m, Target: target}
		totals.applyTo(&agg)
		result.Months[m-1] = agg
	}

	a.log.Debugf("Aggregated puskesmas %d %s %d: patients=%d skipped=%d target=%d", puskesmasID, disease, year, len(records)-skipped, skipped, target)
	return result, nil
}

func validVisitMonths(record entity.PatientVisitRecord) (entity.MonthSet, error) {
	if record.PatientID == uuid.Nil {
		return 0, errors.New("missing patient id")
	}
	months, err := entity.NewMonthSet(record.Months...)
	if err != nil {
		return 0, err
	}
	if months.IsEmpty() {
		return 0, errors.New("no visited months")
	}
	return months, nil
}
