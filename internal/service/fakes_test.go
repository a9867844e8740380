package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"

	"ptm-statistics/internal/domain/entity"
	"ptm-statistics/internal/domain/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testPeriod = PeriodPolicy{MinYear: 2000, MaxYear: 2100}

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newMockDB opens gorm over sqlmock. The fakes below ignore the handle, so
// only transaction boundaries reach the mock.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Discard,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

type targetKey struct {
	puskesmasID int
	disease     entity.DiseaseType
	year        int
}

// fakeStore is an in-memory stand-in for the tables the engine reads.
type fakeStore struct {
	mu        sync.Mutex
	centers   []entity.Puskesmas
	patients  map[uuid.UUID]entity.Patient
	exams     map[entity.DiseaseType][]entity.Examination
	stats     map[entity.StatisticKey]entity.MonthlyStatistic
	targets   map[targetKey]int
	visitErr  error
	targetErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		patients: map[uuid.UUID]entity.Patient{},
		exams:    map[entity.DiseaseType][]entity.Examination{},
		stats:    map[entity.StatisticKey]entity.MonthlyStatistic{},
		targets:  map[targetKey]int{},
	}
}

func (s *fakeStore) addPatient(puskesmasID int, gender entity.Gender) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.patients[id] = entity.Patient{ID: id, PuskesmasID: puskesmasID, Gender: gender, HasHT: true, HasDM: true}
	return id
}

func (s *fakeStore) addVisits(disease entity.DiseaseType, puskesmasID int, patientID uuid.UUID, year int, months ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range months {
		s.exams[disease] = append(s.exams[disease], entity.Examination{
			ID:          uuid.New(),
			PatientID:   patientID,
			PuskesmasID: puskesmasID,
			Year:        year,
			Month:       m,
		})
	}
}

func (s *fakeStore) setTarget(puskesmasID int, disease entity.DiseaseType, year, target int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[targetKey{puskesmasID, disease, year}] = target
}

func (s *fakeStore) yearRows(puskesmasID int, disease entity.DiseaseType, year int) []entity.MonthlyStatistic {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []entity.MonthlyStatistic
	for key, stat := range s.stats {
		if key.PuskesmasID == puskesmasID && key.Disease == disease && key.Year == year {
			rows = append(rows, stat)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Month < rows[j].Month })
	return rows
}

// fakeExamRepo serves both the visit index and the examination writes of one disease.
type fakeExamRepo struct {
	store   *fakeStore
	disease entity.DiseaseType
}

var _ repository.ExaminationRepository = (*fakeExamRepo)(nil)

func (r *fakeExamRepo) Disease() entity.DiseaseType { return r.disease }

func (r *fakeExamRepo) Create(_ context.Context, _ *gorm.DB, exam *entity.Examination) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	exam.ID = uuid.New()
	r.store.exams[r.disease] = append(r.store.exams[r.disease], *exam)
	return nil
}

func (r *fakeExamRepo) ListPatientVisits(_ context.Context, _ *gorm.DB, puskesmasID int, year int) ([]entity.PatientVisitRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.visitErr != nil {
		return nil, r.store.visitErr
	}

	months := map[uuid.UUID]entity.MonthSet{}
	for _, exam := range r.store.exams[r.disease] {
		if exam.PuskesmasID == puskesmasID && exam.Year == year {
			months[exam.PatientID] = months[exam.PatientID].With(exam.Month)
		}
	}

	records := make([]entity.PatientVisitRecord, 0, len(months))
	for id, set := range months {
		records = append(records, entity.PatientVisitRecord{
			PatientID: id,
			Gender:    r.store.patients[id].Gender,
			Months:    set.Months(),
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].PatientID.String() < records[j].PatientID.String() })
	return records, nil
}

func (r *fakeExamRepo) FindVisitedMonths(_ context.Context, _ *gorm.DB, puskesmasID int, patientID uuid.UUID, year int) (entity.MonthSet, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var set entity.MonthSet
	for _, exam := range r.store.exams[r.disease] {
		if exam.PuskesmasID == puskesmasID && exam.PatientID == patientID && exam.Year == year {
			set = set.With(exam.Month)
		}
	}
	return set, nil
}

type fakeTargetRepo struct{ store *fakeStore }

func (r *fakeTargetRepo) GetTarget(_ context.Context, _ *gorm.DB, puskesmasID int, disease entity.DiseaseType, year int) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.targetErr != nil {
		return 0, r.store.targetErr
	}
	return r.store.targets[targetKey{puskesmasID, disease, year}], nil
}

type fakeStatRepo struct{ store *fakeStore }

var _ repository.MonthlyStatisticRepository = (*fakeStatRepo)(nil)

func (r *fakeStatRepo) FindByKey(_ context.Context, _ *gorm.DB, key entity.StatisticKey) (*entity.MonthlyStatistic, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	stat, ok := r.store.stats[key]
	if !ok {
		return nil, nil
	}
	return &stat, nil
}

func (r *fakeStatRepo) FindYear(_ context.Context, _ *gorm.DB, puskesmasID int, disease entity.DiseaseType, year int) ([]entity.MonthlyStatistic, error) {
	return r.store.yearRows(puskesmasID, disease, year), nil
}

func (r *fakeStatRepo) FindYearForUpdate(ctx context.Context, tx *gorm.DB, puskesmasID int, disease entity.DiseaseType, year int) ([]entity.MonthlyStatistic, error) {
	return r.FindYear(ctx, tx, puskesmasID, disease, year)
}

func (r *fakeStatRepo) Upsert(_ context.Context, _ *gorm.DB, stat *entity.MonthlyStatistic) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.stats[stat.Key()] = *stat
	return nil
}

func (r *fakeStatRepo) Update(ctx context.Context, db *gorm.DB, stat *entity.MonthlyStatistic) error {
	return r.Upsert(ctx, db, stat)
}

func (r *fakeStatRepo) DeleteYear(_ context.Context, _ *gorm.DB, puskesmasID int, disease entity.DiseaseType, year int) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for key := range r.store.stats {
		if key.PuskesmasID == puskesmasID && key.Disease == disease && key.Year == year {
			delete(r.store.stats, key)
			n++
		}
	}
	return n, nil
}

type fakePatientRepo struct{ store *fakeStore }

func (r *fakePatientRepo) FindByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*entity.Patient, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	patient, ok := r.store.patients[id]
	if !ok {
		return nil, nil
	}
	return &patient, nil
}

type fakePuskesmasRepo struct{ store *fakeStore }

func (r *fakePuskesmasRepo) FindAll(_ context.Context, _ *gorm.DB) ([]entity.Puskesmas, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return append([]entity.Puskesmas(nil), r.store.centers...), nil
}

func (r *fakePuskesmasRepo) FindByID(_ context.Context, _ *gorm.DB, id int) (*entity.Puskesmas, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, c := range r.store.centers {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakePuskesmasRepo) FindByIDs(_ context.Context, _ *gorm.DB, ids []int) ([]entity.Puskesmas, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var centers []entity.Puskesmas
	for _, c := range r.store.centers {
		for _, id := range ids {
			if c.ID == id {
				centers = append(centers, c)
			}
		}
	}
	return centers, nil
}

func newTestAggregator(db *gorm.DB, store *fakeStore) *MonthlyAggregator {
	indexes := VisitIndexes{}
	for _, d := range entity.DiseaseTypes() {
		indexes[d] = &fakeExamRepo{store: store, disease: d}
	}
	return NewMonthlyAggregator(db, newTestLogger(), indexes, &fakeTargetRepo{store: store}, testPeriod)
}

func newTestCache(t *testing.T, db *gorm.DB, store *fakeStore, accelerator *StatisticsAccelerator) *StatisticsCache {
	t.Helper()
	return newTestCacheWithStatRepo(t, db, store, accelerator, &fakeStatRepo{store: store})
}

func newTestCacheWithStatRepo(t *testing.T, db *gorm.DB, store *fakeStore, accelerator *StatisticsAccelerator, statRepo repository.MonthlyStatisticRepository) *StatisticsCache {
	t.Helper()

	examRepos := ExaminationRepositories{}
	for _, d := range entity.DiseaseTypes() {
		examRepos[d] = &fakeExamRepo{store: store, disease: d}
	}

	cache := NewStatisticsCache(db, newTestLogger(), StatisticsCacheDeps{
		StatRepo:      statRepo,
		ExamRepos:     examRepos,
		PatientRepo:   &fakePatientRepo{store: store},
		PuskesmasRepo: &fakePuskesmasRepo{store: store},
		Aggregator:    newTestAggregator(db, store),
		Accelerator:   accelerator,
	}, testPeriod, 2)
	t.Cleanup(cache.Stop)
	return cache
}

// monthView flattens an aggregate so decimals compare by value.
type monthView struct {
	Month, Target, Total, Standard, NonStandard, Male, Female int
	Percentage                                                 string
}

func viewOf(agg entity.MonthlyAggregate) monthView {
	return monthView{
		Month:       agg.Month,
		Target:      agg.Target,
		Total:       agg.TotalPatients,
		Standard:    agg.StandardPatients,
		NonStandard: agg.NonStandardPatients,
		Male:        agg.MalePatients,
		Female:      agg.FemalePatients,
		Percentage:  agg.Percentage.StringFixed(2),
	}
}

func viewsOfYear(agg *entity.YearlyAggregate) []monthView {
	views := make([]monthView, 0, entity.MonthsPerYear)
	for _, m := range agg.Months {
		views = append(views, viewOf(m))
	}
	return views
}

func viewsOfRows(rows []entity.MonthlyStatistic) []monthView {
	views := make([]monthView, 0, len(rows))
	for i := range rows {
		views = append(views, viewOf(rows[i].Aggregate()))
	}
	return views
}
