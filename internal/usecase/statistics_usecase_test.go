package usecase

import (
	"context"
	"errors"
	"io"
	"testing"

	"ptm-statistics/internal/delivery/dto"
	"ptm-statistics/internal/domain/entity"
	"ptm-statistics/internal/service"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubPuskesmasRepo struct{}

func (stubPuskesmasRepo) FindAll(_ context.Context, _ *gorm.DB) ([]entity.Puskesmas, error) {
	return []entity.Puskesmas{{ID: 1, Name: "Puskesmas Kenanga"}}, nil
}

func (stubPuskesmasRepo) FindByID(_ context.Context, _ *gorm.DB, id int) (*entity.Puskesmas, error) {
	if id != 1 {
		return nil, nil
	}
	return &entity.Puskesmas{ID: 1, Name: "Puskesmas Kenanga"}, nil
}

func (stubPuskesmasRepo) FindByIDs(ctx context.Context, db *gorm.DB, _ []int) ([]entity.Puskesmas, error) {
	return stubPuskesmasRepo{}.FindAll(ctx, db)
}

type stubPatientRepo struct{}

func (stubPatientRepo) FindByID(_ context.Context, _ *gorm.DB, _ uuid.UUID) (*entity.Patient, error) {
	return nil, nil
}

type recordingTargetRepo struct {
	count    int
	upsertDB *gorm.DB
}

func (r *recordingTargetRepo) GetTarget(_ context.Context, _ *gorm.DB, _ int, _ entity.DiseaseType, _ int) (int, error) {
	return r.count, nil
}

func (r *recordingTargetRepo) Upsert(_ context.Context, db *gorm.DB, target *entity.YearlyTarget) error {
	r.upsertDB = db
	r.count = target.TargetCount
	return nil
}

type recordingStatRepo struct {
	rows      []entity.MonthlyStatistic
	updateErr error
	updateDB  *gorm.DB
	updated   int
}

func newRecordingStatRepo() *recordingStatRepo {
	rows := make([]entity.MonthlyStatistic, 0, entity.MonthsPerYear)
	for m := 1; m <= entity.MonthsPerYear; m++ {
		stat := entity.MonthlyStatistic{PuskesmasID: 1, DiseaseType: entity.DiseaseHypertension, Year: 2024, Month: m}
		stat.Apply(entity.MonthlyAggregate{Month: m, Target: 10, TotalPatients: 4, StandardPatients: 2})
		rows = append(rows, stat)
	}
	return &recordingStatRepo{rows: rows}
}

func (r *recordingStatRepo) FindByKey(_ context.Context, _ *gorm.DB, _ entity.StatisticKey) (*entity.MonthlyStatistic, error) {
	return nil, nil
}

func (r *recordingStatRepo) FindYear(_ context.Context, _ *gorm.DB, _ int, _ entity.DiseaseType, _ int) ([]entity.MonthlyStatistic, error) {
	return append([]entity.MonthlyStatistic(nil), r.rows...), nil
}

func (r *recordingStatRepo) FindYearForUpdate(ctx context.Context, tx *gorm.DB, puskesmasID int, disease entity.DiseaseType, year int) ([]entity.MonthlyStatistic, error) {
	return r.FindYear(ctx, tx, puskesmasID, disease, year)
}

func (r *recordingStatRepo) Upsert(_ context.Context, _ *gorm.DB, _ *entity.MonthlyStatistic) error {
	return nil
}

func (r *recordingStatRepo) Update(_ context.Context, db *gorm.DB, stat *entity.MonthlyStatistic) error {
	r.updateDB = db
	if r.updateErr != nil {
		return r.updateErr
	}
	r.rows[stat.Month-1] = *stat
	r.updated++
	return nil
}

func (r *recordingStatRepo) DeleteYear(_ context.Context, _ *gorm.DB, _ int, _ entity.DiseaseType, _ int) (int64, error) {
	return 0, nil
}

type recordingAuditRepo struct {
	logs     []entity.AuditLog
	createDB *gorm.DB
}

func (r *recordingAuditRepo) Create(_ context.Context, db *gorm.DB, log *entity.AuditLog) error {
	r.createDB = db
	r.logs = append(r.logs, *log)
	return nil
}

func (r *recordingAuditRepo) FindRecent(_ context.Context, _ *gorm.DB, _ int) ([]entity.AuditLog, error) {
	return r.logs, nil
}

type failingVisitIndex struct {
	disease entity.DiseaseType
}

func (f failingVisitIndex) Disease() entity.DiseaseType { return f.disease }

func (f failingVisitIndex) ListPatientVisits(_ context.Context, _ *gorm.DB, _ int, _ int) ([]entity.PatientVisitRecord, error) {
	return nil, errors.New("statement timeout")
}

func (f failingVisitIndex) Create(_ context.Context, _ *gorm.DB, _ *entity.Examination) error {
	return nil
}

func (f failingVisitIndex) FindVisitedMonths(_ context.Context, _ *gorm.DB, _ int, _ uuid.UUID, _ int) (entity.MonthSet, error) {
	return 0, nil
}

type statisticsFixture struct {
	usecase    StatisticsUsecase
	mock       sqlmock.Sqlmock
	targetRepo *recordingTargetRepo
	statRepo   *recordingStatRepo
	auditRepo  *recordingAuditRepo
}

func setupStatisticsUsecase(t *testing.T) *statisticsFixture {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &statisticsFixture{
		mock:       mock,
		targetRepo: &recordingTargetRepo{count: 10},
		statRepo:   newRecordingStatRepo(),
		auditRepo:  &recordingAuditRepo{},
	}

	period := service.PeriodPolicy{MinYear: 2000, MaxYear: 2100}
	indexes := service.VisitIndexes{}
	examRepos := service.ExaminationRepositories{}
	for _, d := range entity.DiseaseTypes() {
		indexes[d] = failingVisitIndex{disease: d}
		examRepos[d] = failingVisitIndex{disease: d}
	}

	cache := service.NewStatisticsCache(db, log, service.StatisticsCacheDeps{
		StatRepo:      f.statRepo,
		ExamRepos:     examRepos,
		PatientRepo:   stubPatientRepo{},
		PuskesmasRepo: stubPuskesmasRepo{},
		Aggregator:    service.NewMonthlyAggregator(db, log, indexes, f.targetRepo, period),
	}, period, 1)
	t.Cleanup(cache.Stop)

	f.usecase = NewStatisticsUsecase(db, log, stubPuskesmasRepo{}, stubPatientRepo{}, f.targetRepo,
		cache, service.NewSummaryRollup(cache, log, period), service.NewAuditService(log, f.auditRepo))
	return f
}

func TestStatisticsUsecase_SetTarget(t *testing.T) {
	f := setupStatisticsUsecase(t)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	resp, err := f.usecase.SetTarget(context.Background(), &dto.SetTargetRequest{
		PuskesmasID: 1, Disease: "ht", Year: 2024, TargetCount: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, resp.TargetCount)

	assert.Equal(t, 4, f.targetRepo.count)
	assert.Equal(t, entity.MonthsPerYear, f.statRepo.updated)
	assert.Equal(t, 4, f.statRepo.rows[0].Target)
	assert.Equal(t, "50.00", f.statRepo.rows[0].Percentage.StringFixed(2))

	require.Len(t, f.auditRepo.logs, 1)
	assert.Equal(t, entity.AuditActionTargetUpdate, f.auditRepo.logs[0].Action)
	assert.Equal(t, map[string]interface{}{"target_count": 10}, f.auditRepo.logs[0].Metadata["old_value"])
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStatisticsUsecase_SetTarget_RowFailureRollsBackTarget(t *testing.T) {
	f := setupStatisticsUsecase(t)
	f.statRepo.updateErr = errors.New("connection reset")

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.usecase.SetTarget(context.Background(), &dto.SetTargetRequest{
		PuskesmasID: 1, Disease: "ht", Year: 2024, TargetCount: 4,
	})
	require.Error(t, err)

	// the target, its audit entry and the rows were written through one transaction
	require.NotNil(t, f.targetRepo.upsertDB)
	assert.Same(t, f.targetRepo.upsertDB, f.statRepo.updateDB)
	assert.Same(t, f.targetRepo.upsertDB, f.auditRepo.createDB)
	assert.Equal(t, 10, f.statRepo.rows[0].Target)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStatisticsUsecase_SetTarget_UnknownPuskesmas(t *testing.T) {
	f := setupStatisticsUsecase(t)

	_, err := f.usecase.SetTarget(context.Background(), &dto.SetTargetRequest{
		PuskesmasID: 9, Disease: "dm", Year: 2024, TargetCount: 4,
	})
	require.ErrorIs(t, err, ErrPuskesmasNotFound)
	assert.Nil(t, f.targetRepo.upsertDB)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStatisticsUsecase_RebuildStatistics_StoppedRunIsReportedAndAudited(t *testing.T) {
	f := setupStatisticsUsecase(t)

	resp, err := f.usecase.RebuildStatistics(context.Background(), &dto.RebuildStatisticsRequest{
		Year: 2024, Disease: "ht", PuskesmasIDs: []int{1},
	})
	require.ErrorIs(t, err, entity.ErrDataSourceUnavailable)
	require.NotNil(t, resp)
	assert.Equal(t, 2024, resp.Year)
	assert.Equal(t, 1, resp.Centers)
	assert.Zero(t, resp.YearsBuilt)

	require.Len(t, f.auditRepo.logs, 1)
	audit := f.auditRepo.logs[0]
	assert.Equal(t, entity.AuditActionStatisticsRebuild, audit.Action)
	assert.Equal(t, false, audit.Metadata["completed"])
	assert.Contains(t, audit.Metadata["error"], "statement timeout")

	// rows are kept when the source fails
	assert.Equal(t, 10, f.statRepo.rows[0].Target)
}

func TestStatisticsUsecase_RebuildStatistics_InvalidYearIsNotAudited(t *testing.T) {
	f := setupStatisticsUsecase(t)

	resp, err := f.usecase.RebuildStatistics(context.Background(), &dto.RebuildStatisticsRequest{Year: 1890})
	require.ErrorIs(t, err, entity.ErrInvalidPeriod)
	assert.Nil(t, resp)
	assert.Empty(t, f.auditRepo.logs)
}
