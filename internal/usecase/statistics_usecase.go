package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ptm-statistics/internal/converter"
	"ptm-statistics/internal/delivery/dto"
	"ptm-statistics/internal/delivery/http/middleware"
	"ptm-statistics/internal/domain/entity"
	"ptm-statistics/internal/domain/repository"
	"ptm-statistics/internal/service"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const examinationDateLayout = "2006-01-02"

var (
	ErrPuskesmasNotFound      = errors.New("puskesmas not found")
	ErrPatientNotEnrolled     = errors.New("patient is not enrolled in the disease program")
	ErrInvalidExaminationDate = errors.New("examination date must be formatted as YYYY-MM-DD")
)

type StatisticsUsecase interface {
	GetYearStatistics(ctx context.Context, req *dto.YearStatisticsRequest) (*dto.YearStatisticsResponse, error)
	GetMonthStatistic(ctx context.Context, req *dto.MonthStatisticRequest) (*dto.MonthStatisticResponse, error)
	GetDashboard(ctx context.Context, req *dto.DashboardRequest) (*dto.DashboardResponse, error)
	RecordExamination(ctx context.Context, req *dto.RecordExaminationRequest) (*dto.ExaminationResponse, error)
	SetTarget(ctx context.Context, req *dto.SetTargetRequest) (*dto.TargetResponse, error)
	RebuildStatistics(ctx context.Context, req *dto.RebuildStatisticsRequest) (*dto.RebuildStatisticsResponse, error)
}

type statisticsUsecase struct {
	db            *gorm.DB
	log           *logrus.Logger
	puskesmasRepo repository.PuskesmasRepository
	patientRepo   repository.PatientRepository
	targetRepo    repository.YearlyTargetRepository
	cache         *service.StatisticsCache
	rollup        *service.SummaryRollup
	auditService  service.AuditService
}

func NewStatisticsUsecase(
	db *gorm.DB,
	log *logrus.Logger,
	puskesmasRepo repository.PuskesmasRepository,
	patientRepo repository.PatientRepository,
	targetRepo repository.YearlyTargetRepository,
	cache *service.StatisticsCache,
	rollup *service.SummaryRollup,
	auditService service.AuditService,
) StatisticsUsecase {
	return &statisticsUsecase{
		db:            db,
		log:           log,
		puskesmasRepo: puskesmasRepo,
		patientRepo:   patientRepo,
		targetRepo:    targetRepo,
		cache:         cache,
		rollup:        rollup,
		auditService:  auditService,
	}
}

// GetYearStatistics returns the 12 monthly rows of a center with the year's headline summary
func (u *statisticsUsecase) GetYearStatistics(ctx context.Context, req *dto.YearStatisticsRequest) (*dto.YearStatisticsResponse, error) {
	disease, err := entity.ParseDiseaseType(req.Disease)
	if err != nil {
		return nil, err
	}

	puskesmas, err := u.puskesmasRepo.FindByID(ctx, u.db, req.PuskesmasID)
	if err != nil {
		u.log.Warnf("Failed to find puskesmas %d: %+v", req.PuskesmasID, err)
		return nil, err
	}
	if puskesmas == nil {
		return nil, ErrPuskesmasNotFound
	}

	stats, err := u.cache.GetYear(ctx, puskesmas.ID, disease, req.Year)
	if err != nil {
		return nil, err
	}

	aggs := make([]entity.MonthlyAggregate, len(stats))
	for i := range stats {
		aggs[i] = stats[i].Aggregate()
	}

	return &dto.YearStatisticsResponse{
		PuskesmasID:   puskesmas.ID,
		PuskesmasName: puskesmas.Name,
		Disease:       string(disease),
		Year:          req.Year,
		Months:        converter.AggregatesToResponses(aggs),
		Summary:       converter.YearlySummaryToResponse(entity.SummarizeYear(aggs)),
	}, nil
}

// GetMonthStatistic returns one cached row; a missing row is reported as zero data
func (u *statisticsUsecase) GetMonthStatistic(ctx context.Context, req *dto.MonthStatisticRequest) (*dto.MonthStatisticResponse, error) {
	disease, err := entity.ParseDiseaseType(req.Disease)
	if err != nil {
		return nil, err
	}

	resp := &dto.MonthStatisticResponse{
		PuskesmasID: req.PuskesmasID,
		Disease:     string(disease),
		Year:        req.Year,
	}

	stat, err := u.cache.Get(ctx, entity.StatisticKey{
		PuskesmasID: req.PuskesmasID,
		Disease:     disease,
		Year:        req.Year,
		Month:       req.Month,
	})
	if errors.Is(err, entity.ErrStatisticNotFound) {
		empty := entity.MonthlyAggregate{Month: req.Month}
		empty.Recalculate()
		resp.Statistic = converter.AggregateToResponse(empty)
		return resp, nil
	}
	if err != nil {
		return nil, err
	}

	resp.HasData = true
	resp.Statistic = converter.AggregateToResponse(stat.Aggregate())
	return resp, nil
}

// GetDashboard rolls up the selected centers and ranks them.
// Without a month each center contributes its own latest month with data.
func (u *statisticsUsecase) GetDashboard(ctx context.Context, req *dto.DashboardRequest) (*dto.DashboardResponse, error) {
	diseases := entity.DiseaseTypes()
	if req.Disease != entity.DiseaseAll {
		disease, err := entity.ParseDiseaseType(req.Disease)
		if err != nil {
			return nil, err
		}
		diseases = []entity.DiseaseType{disease}
	}

	centers, err := u.findCenters(ctx, req.PuskesmasIDs)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(centers))
	for i, c := range centers {
		ids[i] = c.ID
	}

	pick := service.LatestNonzeroMonth()
	if req.Month != nil {
		pick = service.FixedMonth(*req.Month)
	}

	resp := &dto.DashboardResponse{
		Disease:   req.Disease,
		Year:      req.Year,
		Month:     req.Month,
		Summaries: make([]dto.SummaryResponse, 0, len(diseases)),
	}

	for _, d := range diseases {
		var summary *entity.Summary
		if req.Month != nil {
			summary, err = u.rollup.FixedMonthSummary(ctx, ids, d, req.Year, *req.Month)
		} else {
			summary, err = u.rollup.LatestNonzeroMonthSummary(ctx, ids, d, req.Year)
		}
		if err != nil {
			return nil, err
		}
		resp.Summaries = append(resp.Summaries, converter.SummaryToResponse(summary))
	}

	var ranking *entity.Ranking
	if len(diseases) > 1 {
		ranking, err = u.rollup.RankCombined(ctx, centers, req.Year, pick)
	} else {
		ranking, err = u.rollup.Rank(ctx, centers, diseases[0], req.Year, pick)
	}
	if err != nil {
		return nil, err
	}
	resp.Ranking = converter.RankingToResponse(ranking)

	return resp, nil
}

// RecordExamination stores a visit and updates the cached statistics of its year
func (u *statisticsUsecase) RecordExamination(ctx context.Context, req *dto.RecordExaminationRequest) (*dto.ExaminationResponse, error) {
	disease, err := entity.ParseDiseaseType(req.Disease)
	if err != nil {
		return nil, err
	}

	date, err := time.Parse(examinationDateLayout, req.ExaminationDate)
	if err != nil {
		return nil, ErrInvalidExaminationDate
	}

	patient, err := u.patientRepo.FindByID(ctx, u.db, req.PatientID)
	if err != nil {
		u.log.Warnf("Failed to find patient %s: %+v", req.PatientID, err)
		return nil, err
	}
	if patient == nil {
		return nil, entity.ErrPatientNotFound
	}
	if !patient.EnrolledIn(disease) {
		return nil, ErrPatientNotEnrolled
	}

	exam, err := u.cache.ApplyNewVisit(ctx, entity.NewVisit{
		PuskesmasID:     patient.PuskesmasID,
		Disease:         disease,
		PatientID:       patient.ID,
		ExaminationDate: date,
	})
	if err != nil {
		return nil, err
	}

	return converter.ExaminationToResponse(exam, disease), nil
}

// SetTarget stores a yearly target and rewrites the percentages of the cached year
func (u *statisticsUsecase) SetTarget(ctx context.Context, req *dto.SetTargetRequest) (*dto.TargetResponse, error) {
	disease, err := entity.ParseDiseaseType(req.Disease)
	if err != nil {
		return nil, err
	}

	puskesmas, err := u.puskesmasRepo.FindByID(ctx, u.db, req.PuskesmasID)
	if err != nil {
		u.log.Warnf("Failed to find puskesmas %d: %+v", req.PuskesmasID, err)
		return nil, err
	}
	if puskesmas == nil {
		return nil, ErrPuskesmasNotFound
	}

	actorID := actorFromContext(ctx)

	// the target, its audit entry and the cached rows commit together
	err = u.cache.ApplyTarget(ctx, puskesmas.ID, disease, req.Year, req.TargetCount, func(tx *gorm.DB) error {
		oldCount, err := u.targetRepo.GetTarget(ctx, tx, puskesmas.ID, disease, req.Year)
		if err != nil {
			return fmt.Errorf("get target: %w", err)
		}

		target := &entity.YearlyTarget{
			PuskesmasID: puskesmas.ID,
			DiseaseType: disease,
			Year:        req.Year,
			TargetCount: req.TargetCount,
		}
		if err := u.targetRepo.Upsert(ctx, tx, target); err != nil {
			return fmt.Errorf("upsert target: %w", err)
		}

		entityID := strconv.Itoa(puskesmas.ID) + ":" + string(disease) + ":" + strconv.Itoa(req.Year)
		return u.auditService.LogUpdate(ctx, tx, actorID, entity.AuditActionTargetUpdate, "yearly_target", entityID,
			map[string]interface{}{"target_count": oldCount},
			map[string]interface{}{"target_count": req.TargetCount},
		)
	})
	if err != nil {
		u.log.Warnf("Failed to set target for puskesmas %d %s %d: %+v", puskesmas.ID, disease, req.Year, err)
		return nil, err
	}

	return &dto.TargetResponse{
		PuskesmasID: puskesmas.ID,
		Disease:     string(disease),
		Year:        req.Year,
		TargetCount: req.TargetCount,
	}, nil
}

// RebuildStatistics drops and recomputes the cached rows of a year
func (u *statisticsUsecase) RebuildStatistics(ctx context.Context, req *dto.RebuildStatisticsRequest) (*dto.RebuildStatisticsResponse, error) {
	scope := entity.RebuildScope{
		Year:         req.Year,
		PuskesmasIDs: req.PuskesmasIDs,
	}
	if req.Disease != "" {
		disease, err := entity.ParseDiseaseType(req.Disease)
		if err != nil {
			return nil, err
		}
		scope.Diseases = []entity.DiseaseType{disease}
	}

	report, rebuildErr := u.cache.RebuildAll(ctx, scope)
	if report == nil {
		return nil, rebuildErr
	}

	details := entity.JSON{
		"year":          report.Year,
		"disease_type":  req.Disease,
		"puskesmas_ids": req.PuskesmasIDs,
		"centers":       report.Centers,
		"years_rebuilt": report.Years,
		"rows_written":  report.Rows,
		"duration_ms":   report.Duration.Milliseconds(),
		"completed":     rebuildErr == nil,
	}
	if rebuildErr != nil {
		details["error"] = rebuildErr.Error()
	}
	if err := u.auditService.LogAction(ctx, u.db, actorFromContext(ctx), entity.AuditActionStatisticsRebuild, details); err != nil {
		u.log.Warnf("Failed to audit statistics rebuild for %d: %+v", report.Year, err)
	}

	// a stopped rebuild still reports what it wrote before the failure
	return converter.RebuildReportToResponse(report), rebuildErr
}

func (u *statisticsUsecase) findCenters(ctx context.Context, ids []int) ([]entity.Puskesmas, error) {
	if len(ids) == 0 {
		centers, err := u.puskesmasRepo.FindAll(ctx, u.db)
		if err != nil {
			u.log.Warnf("Failed to find puskesmas: %+v", err)
			return nil, err
		}
		return centers, nil
	}

	centers, err := u.puskesmasRepo.FindByIDs(ctx, u.db, ids)
	if err != nil {
		u.log.Warnf("Failed to find puskesmas %v: %+v", ids, err)
		return nil, err
	}
	if len(centers) == 0 {
		return nil, ErrPuskesmasNotFound
	}
	return centers, nil
}

func actorFromContext(ctx context.Context) *uuid.UUID {
	if id, ok := middleware.GetActorIDFromContext(ctx); ok {
		return &id
	}
	return nil
}
