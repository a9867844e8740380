package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ptm-statistics/internal/domain/entity"
	"ptm-statistics/internal/domain/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// Timeout for Redis invalidation after a committed change
	invalidateTimeout = 5 * time.Second

	// Interval for cleaning up stale mutexes
	mutexCleanupInterval = 10 * time.Minute

	// How long a mutex must be unused before cleanup
	mutexStaleThreshold = 10 * time.Minute
)

// =============================================================================
// Types
// =============================================================================

// ExaminationRepositories selects the examination store of each disease.
type ExaminationRepositories map[entity.DiseaseType]repository.ExaminationRepository

// StatisticsCache keeps monthly_statistics equal to what MonthlyAggregator
// computes from the current examinations.
//
// The table is the only source of truth. Writes to one
// (puskesmas, disease, year) are serialized by an in-process mutex and by
// row locks in the database, so two visits landing in the same month cannot
// lose an update.
//
// Lock Ordering (to prevent deadlocks):
// 1. Acquire year mutex FIRST
// 2. Then open the database transaction
type StatisticsCache struct {
	db            *gorm.DB
	log           *logrus.Logger
	statRepo      repository.MonthlyStatisticRepository
	examRepos     ExaminationRepositories
	patientRepo   repository.PatientRepository
	puskesmasRepo repository.PuskesmasRepository
	aggregator    *MonthlyAggregator
	accelerator   *StatisticsAccelerator
	period        PeriodPolicy
	workers       int

	// Per-year mutex for concurrent safety
	yearMu sync.Map // map[yearKey]*mutexWithTimestamp

	// Graceful shutdown
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  atomic.Bool
}

type yearKey struct {
	puskesmasID int
	disease     entity.DiseaseType
	year        int
}

// mutexWithTimestamp tracks mutex usage for cleanup
type mutexWithTimestamp struct {
	mu       sync.Mutex
	lastUsed atomic.Int64 // Unix timestamp
}

// RebuildReport summarizes a RebuildAll run.
type RebuildReport struct {
	Year     int           `json:"year"`
	Centers  int           `json:"centers"`
	Years    int64         `json:"years_rebuilt"`
	Rows     int64         `json:"rows_written"`
	Duration time.Duration `json:"duration"`
}

// StatisticsCacheDeps groups the collaborators of StatisticsCache.
type StatisticsCacheDeps struct {
	StatRepo      repository.MonthlyStatisticRepository
	ExamRepos     ExaminationRepositories
	PatientRepo   repository.PatientRepository
	PuskesmasRepo repository.PuskesmasRepository
	Aggregator    *MonthlyAggregator
	Accelerator   *StatisticsAccelerator
}

// =============================================================================
// Constructor
// =============================================================================

// NewStatisticsCache creates a StatisticsCache.
// Starts background goroutine for mutex cleanup.
// Call Stop() during graceful shutdown.
func NewStatisticsCache(db *gorm.DB, log *logrus.Logger, deps StatisticsCacheDeps, period PeriodPolicy, rebuildWorkers int) *StatisticsCache {
	if rebuildWorkers < 1 {
		rebuildWorkers = 1
	}

	c := &StatisticsCache{
		db:            db,
		log:           log,
		statRepo:      deps.StatRepo,
		examRepos:     deps.ExamRepos,
		patientRepo:   deps.PatientRepo,
		puskesmasRepo: deps.PuskesmasRepo,
		aggregator:    deps.Aggregator,
		accelerator:   deps.Accelerator,
		period:        period,
		workers:       rebuildWorkers,
		stopChan:      make(chan struct{}),
	}

	c.wg.Add(1)
	go c.cleanupMutexMapLoop()

	return c
}

// =============================================================================
// Lifecycle Methods
// =============================================================================

// Stop gracefully shuts down the cache.
// Safe to call multiple times.
func (c *StatisticsCache) Stop() {
	if c.stopped.CompareAndSwap(false, true) {
		close(c.stopChan)
		c.wg.Wait()
		c.log.Info("StatisticsCache stopped")
	}
}

// =============================================================================
// Reads
// =============================================================================

// Get returns one cached row, or entity.ErrStatisticNotFound on a miss.
// A miss means "no data yet" to callers, who may recompute lazily.
func (c *StatisticsCache) Get(ctx context.Context, key entity.StatisticKey) (*entity.MonthlyStatistic, error) {
	if err := c.period.ValidateMonth(key.Year, key.Month); err != nil {
		return nil, err
	}
	if err := validateDisease(key.Disease); err != nil {
		return nil, err
	}

	if cached, ok := c.cachedYear(ctx, key.PuskesmasID, key.Disease, key.Year); ok {
		for i := range cached {
			if cached[i].Month == key.Month {
				return &cached[i], nil
			}
		}
	}

	stat, err := c.statRepo.FindByKey(ctx, c.db, key)
	if err != nil {
		c.log.Warnf("Failed to read statistic %+v: %+v", key, err)
		return nil, fmt.Errorf("read statistic: %w", err)
	}
	if stat == nil {
		return nil, entity.ErrStatisticNotFound
	}
	return stat, nil
}

// GetYear returns the 12 rows of a year, recomputing the whole year when any
// month is missing.
func (c *StatisticsCache) GetYear(ctx context.Context, puskesmasID int, disease entity.DiseaseType, year int) ([]entity.MonthlyStatistic, error) {
	if err := c.period.ValidateYear(year); err != nil {
		return nil, err
	}
	if err := validateDisease(disease); err != nil {
		return nil, err
	}

	if cached, ok := c.cachedYear(ctx, puskesmasID, disease, year); ok {
		return cached, nil
	}

	// Writers invalidate while holding this mutex, so a fill never
	// interleaves with a local write.
	mt := c.getYearMutex(yearKey{puskesmasID, disease, year})
	mt.mu.Lock()
	defer mt.mu.Unlock()

	stats, err := c.loadYear(ctx, puskesmasID, disease, year)
	if err != nil {
		return nil, err
	}
	if len(stats) == entity.MonthsPerYear {
		return stats, nil
	}

	c.log.Debugf("Statistics for puskesmas %d %s %d incomplete (%d rows), recomputing", puskesmasID, disease, year, len(stats))
	if _, err := c.refreshLocked(ctx, puskesmasID, disease, year); err != nil {
		return nil, err
	}
	return c.loadYear(ctx, puskesmasID, disease, year)
}

// =============================================================================
// Writes
// =============================================================================

// Put upserts one aggregate; an existing row for the key is overwritten.
func (c *StatisticsCache) Put(ctx context.Context, puskesmasID int, disease entity.DiseaseType, year int, agg entity.MonthlyAggregate) error {
	if err := c.period.ValidateMonth(year, agg.Month); err != nil {
		return err
	}
	if err := validateDisease(disease); err != nil {
		return err
	}

	stat := &entity.MonthlyStatistic{PuskesmasID: puskesmasID, DiseaseType: disease, Year: year, Month: agg.Month}
	stat.Apply(agg)
	if err := c.statRepo.Upsert(ctx, c.db, stat); err != nil {
		c.log.Warnf("Failed to upsert statistic %+v: %+v", stat.Key(), err)
		return fmt.Errorf("upsert statistic: %w", err)
	}

	c.invalidateYear(puskesmasID, disease, year)
	return nil
}

// Refresh recomputes a year from the visit index and upserts all 12 rows.
func (c *StatisticsCache) Refresh(ctx context.Context, puskesmasID int, disease entity.DiseaseType, year int) ([]entity.MonthlyStatistic, error) {
	if err := validateDisease(disease); err != nil {
		return nil, err
	}

	mt := c.getYearMutex(yearKey{puskesmasID, disease, year})
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return c.refreshLocked(ctx, puskesmasID, disease, year)
}

// ApplyNewVisit records an examination and brings the year's rows up to date
// without recomputing the whole year.
//
// Flow (one transaction):
// 1. Lock the year's rows
// 2. Read the patient's visited months before this visit
// 3. Insert the examination, flagged as first visit of the month when the
// month was not visited yet
// 4. If the month is new, apply the difference between the patient's
// contribution after and before the visit to every month from the patient's
// first visited month through December. An earlier visit can repair or
// extend continuity for later months, so all of them are rewritten.
//
// When the year has no complete set of rows, it is recomputed after commit.
func (c *StatisticsCache) ApplyNewVisit(ctx context.Context, visit entity.NewVisit) (*entity.Examination, error) {
	year := visit.ExaminationDate.Year()
	month := int(visit.ExaminationDate.Month())
	if err := c.period.ValidateMonth(year, month); err != nil {
		return nil, err
	}
	examRepo, ok := c.examRepos[visit.Disease]
	if !ok {
		return nil, fmt.Errorf("%w: %q", entity.ErrInvalidDiseaseType, string(visit.Disease))
	}

	mt := c.getYearMutex(yearKey{visit.PuskesmasID, visit.Disease, year})
	mt.mu.Lock()
	defer mt.mu.Unlock()

	var exam *entity.Examination
	needsRefresh := false

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stats, err := c.statRepo.FindYearForUpdate(ctx, tx, visit.PuskesmasID, visit.Disease, year)
		if err != nil {
			return fmt.Errorf("lock statistics: %w", err)
		}

		patient, err := c.patientRepo.FindByID(ctx, tx, visit.PatientID)
		if err != nil {
			return fmt.Errorf("find patient: %w", err)
		}
		if patient == nil {
			return entity.ErrPatientNotFound
		}

		before, err := examRepo.FindVisitedMonths(ctx, tx, visit.PuskesmasID, visit.PatientID, year)
		if err != nil {
			return fmt.Errorf("find visited months: %w", err)
		}

		firstThisMonth := !before.Has(month)
		exam = &entity.Examination{
			PatientID:             visit.PatientID,
			PuskesmasID:           visit.PuskesmasID,
			ExaminationDate:       visit.ExaminationDate,
			Year:                  year,
			Month:                 month,
			IsFirstVisitThisMonth: firstThisMonth,
		}
		if err := examRepo.Create(ctx, tx, exam); err != nil {
			return fmt.Errorf("create examination: %w", err)
		}

		if !firstThisMonth {
			return nil
		}
		if len(stats) != entity.MonthsPerYear {
			needsRefresh = true
			return nil
		}

		after := before.With(month)
		delta := contributionOf(after, patient.Gender).minus(contributionOf(before, patient.Gender))
		for i := range stats {
			if delta[stats[i].Month].isZero() {
				continue
			}
			agg := stats[i].Aggregate()
			delta.applyTo(&agg)
			stats[i].Apply(agg)
			if err := c.statRepo.Update(ctx, tx, &stats[i]); err != nil {
				return fmt.Errorf("update statistic month %d: %w", stats[i].Month, err)
			}
		}
		return nil
	})
	if err != nil {
		c.log.Warnf("Failed to apply new visit of patient %s (puskesmas %d, %s %s): %+v",
			visit.PatientID, visit.PuskesmasID, visit.Disease, visit.ExaminationDate.Format("2006-01-02"), err)
		return nil, err
	}

	if needsRefresh {
		if _, err := c.refreshLocked(ctx, visit.PuskesmasID, visit.Disease, year); err != nil {
			// The examination is committed; the next GetYear recomputes the year.
			c.log.Warnf("Failed to recompute statistics after visit of patient %s: %+v", visit.PatientID, err)
		}
	} else {
		c.invalidateYear(visit.PuskesmasID, visit.Disease, year)
	}

	c.log.Debugf("Applied visit: patient=%s puskesmas=%d disease=%s month=%d-%02d first=%t",
		visit.PatientID, visit.PuskesmasID, visit.Disease, year, month, exam.IsFirstVisitThisMonth)
	return exam, nil
}

// RefreshTarget rewrites the target and achievement percentage of every
// cached row of a year.
func (c *StatisticsCache) RefreshTarget(ctx context.Context, puskesmasID int, disease entity.DiseaseType, year int, target int) error {
	return c.ApplyTarget(ctx, puskesmasID, disease, year, target, nil)
}

// ApplyTarget runs persist and the rewrite of the year's rows in one
// transaction, so a stored target and its cached percentages commit or roll
// back together. persist may be nil.
func (c *StatisticsCache) ApplyTarget(ctx context.Context, puskesmasID int, disease entity.DiseaseType, year int, target int, persist func(tx *gorm.DB) error) error {
	if err := c.period.ValidateYear(year); err != nil {
		return err
	}
	if err := validateDisease(disease); err != nil {
		return err
	}

	mt := c.getYearMutex(yearKey{puskesmasID, disease, year})
	mt.mu.Lock()
	defer mt.mu.Unlock()

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if persist != nil {
			if err := persist(tx); err != nil {
				return err
			}
		}

		stats, err := c.statRepo.FindYearForUpdate(ctx, tx, puskesmasID, disease, year)
		if err != nil {
			return fmt.Errorf("lock statistics: %w", err)
		}
		for i := range stats {
			agg := stats[i].Aggregate()
			agg.Target = target
			agg.Recalculate()
			stats[i].Apply(agg)
			if err := c.statRepo.Update(ctx, tx, &stats[i]); err != nil {
				return fmt.Errorf("update statistic month %d: %w", stats[i].Month, err)
			}
		}
		return nil
	})
	if err != nil {
		c.log.Warnf("Failed to apply target for puskesmas %d %s %d: %+v", puskesmasID, disease, year, err)
		return err
	}

	c.invalidateYear(puskesmasID, disease, year)
	return nil
}

// RebuildAll drops and recomputes every row in scope.
//
// Each center runs independently, bounded by the configured worker count.
// Every month is upserted on its own, so a crash leaves some years rebuilt
// and others untouched or missing; missing years are recomputed lazily on
// the next read. Readers may see a mix of old and new rows meanwhile.
func (c *StatisticsCache) RebuildAll(ctx context.Context, scope entity.RebuildScope) (*RebuildReport, error) {
	if err := c.period.ValidateYear(scope.Year); err != nil {
		return nil, err
	}
	for _, d := range scope.Diseases {
		if err := validateDisease(d); err != nil {
			return nil, err
		}
	}

	c.log.Infof("Starting statistics rebuild for %d...", scope.Year)
	startTime := time.Now()

	ids := scope.PuskesmasIDs
	if len(ids) == 0 {
		centers, err := c.puskesmasRepo.FindAll(ctx, c.db)
		if err != nil {
			c.log.Errorf("Failed to list puskesmas for rebuild: %+v", err)
			return nil, unavailable("puskesmas list", err)
		}
		for _, center := range centers {
			ids = append(ids, center.ID)
		}
	}
	diseases := scope.Diseases
	if len(diseases) == 0 {
		diseases = entity.DiseaseTypes()
	}

	var years, rows atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, id := range ids {
		g.Go(func() error {
			for _, d := range diseases {
				written, err := c.rebuildYear(gctx, id, d, scope.Year)
				if err != nil {
					return fmt.Errorf("rebuild puskesmas %d %s: %w", id, d, err)
				}
				years.Add(1)
				rows.Add(int64(written))
			}
			return nil
		})
	}
	rebuildErr := g.Wait()

	invalidateCtx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()
	if err := c.accelerator.InvalidateScope(invalidateCtx, entity.RebuildScope{Year: scope.Year, Diseases: diseases, PuskesmasIDs: scope.PuskesmasIDs}); err != nil {
		c.log.Warnf("Failed to invalidate cached statistics after rebuild: %+v", err)
	}

	report := &RebuildReport{
		Year:     scope.Year,
		Centers:  len(ids),
		Years:    years.Load(),
		Rows:     rows.Load(),
		Duration: time.Since(startTime),
	}
	if rebuildErr != nil {
		c.log.Errorf("Statistics rebuild for %d stopped after %d years: %+v", scope.Year, report.Years, rebuildErr)
		return report, rebuildErr
	}

	c.log.Infof("Statistics rebuild completed: %d centers, %d rows in %v", report.Centers, report.Rows, report.Duration)
	return report, nil
}

// =============================================================================
// Private Helper Methods
// =============================================================================

// rebuildYear aggregates first, so a failing data source leaves the old rows
// in place.
func (c *StatisticsCache) rebuildYear(ctx context.Context, puskesmasID int, disease entity.DiseaseType, year int) (int, error) {
	mt := c.getYearMutex(yearKey{puskesmasID, disease, year})
	mt.mu.Lock()
	defer mt.mu.Unlock()

	agg, err := c.aggregator.Aggregate(ctx, puskesmasID, disease, year)
	if err != nil {
		return 0, err
	}

	if _, err := c.statRepo.DeleteYear(ctx, c.db, puskesmasID, disease, year); err != nil {
		return 0, fmt.Errorf("delete statistics: %w", err)
	}

	stats, err := c.upsertYear(ctx, agg)
	return len(stats), err
}

// refreshLocked expects the caller to hold the year mutex.
func (c *StatisticsCache) refreshLocked(ctx context.Context, puskesmasID int, disease entity.DiseaseType, year int) ([]entity.MonthlyStatistic, error) {
	agg, err := c.aggregator.Aggregate(ctx, puskesmasID, disease, year)
	if err != nil {
		return nil, err
	}

	stats, err := c.upsertYear(ctx, agg)
	if err != nil {
		return nil, err
	}

	c.invalidateYear(puskesmasID, disease, year)
	return stats, nil
}

// upsertYear writes the 12 months one statement at a time; each upsert is
// atomic on its own.
func (c *StatisticsCache) upsertYear(ctx context.Context, agg *entity.YearlyAggregate) ([]entity.MonthlyStatistic, error) {
	stats := make([]entity.MonthlyStatistic, 0, entity.MonthsPerYear)
	for _, month := range agg.Months {
		stat := entity.MonthlyStatistic{
			PuskesmasID: agg.PuskesmasID,
			DiseaseType: agg.Disease,
			Year:        agg.Year,
			Month:       month.Month,
		}
		stat.Apply(month)
		if err := c.statRepo.Upsert(ctx, c.db, &stat); err != nil {
			c.log.Warnf("Failed to upsert statistic %+v: %+v", stat.Key(), err)
			return stats, fmt.Errorf("upsert statistic month %d: %w", month.Month, err)
		}
		stats = append(stats, stat)
	}
	return stats, nil
}

// loadYear reads a year from the table and caches it when complete. The
// generation is read before the table, so an invalidation from another
// process landing in between turns the fill into a no-op.
func (c *StatisticsCache) loadYear(ctx context.Context, puskesmasID int, disease entity.DiseaseType, year int) ([]entity.MonthlyStatistic, error) {
	generation, genErr := c.accelerator.Generation(ctx, puskesmasID, disease, year)
	if genErr != nil {
		c.log.Warnf("Failed to read cache generation for puskesmas %d %s %d, not caching: %+v", puskesmasID, disease, year, genErr)
	}

	stats, err := c.statRepo.FindYear(ctx, c.db, puskesmasID, disease, year)
	if err != nil {
		c.log.Warnf("Failed to read statistics for puskesmas %d %s %d: %+v", puskesmasID, disease, year, err)
		return nil, fmt.Errorf("read statistics: %w", err)
	}

	if genErr == nil {
		if err := c.accelerator.SetYear(ctx, puskesmasID, disease, year, generation, stats); err != nil {
			c.log.Warnf("Failed to cache statistics for puskesmas %d %s %d: %+v", puskesmasID, disease, year, err)
		}
	}
	return stats, nil
}

func (c *StatisticsCache) cachedYear(ctx context.Context, puskesmasID int, disease entity.DiseaseType, year int) ([]entity.MonthlyStatistic, bool) {
	stats, ok, err := c.accelerator.GetYear(ctx, puskesmasID, disease, year)
	if err != nil {
		c.log.Warnf("Failed to read cached statistics, falling back to database: %+v", err)
		return nil, false
	}
	return stats, ok
}

// invalidateYear runs after a commit; a failure only delays freshness until
// the key expires.
func (c *StatisticsCache) invalidateYear(puskesmasID int, disease entity.DiseaseType, year int) {
	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()
	if err := c.accelerator.InvalidateYear(ctx, puskesmasID, disease, year); err != nil {
		c.log.Warnf("Failed to invalidate cached statistics for puskesmas %d %s %d: %+v", puskesmasID, disease, year, err)
	}
}

// getYearMutex returns mutex for a specific year key
func (c *StatisticsCache) getYearMutex(key yearKey) *mutexWithTimestamp {
	mt, _ := c.yearMu.LoadOrStore(key, &mutexWithTimestamp{})
	result := mt.(*mutexWithTimestamp)
	result.lastUsed.Store(time.Now().Unix())
	return result
}

// cleanupMutexMapLoop runs in background to clean stale mutexes
func (c *StatisticsCache) cleanupMutexMapLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(mutexCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			c.log.Debug("Mutex cleanup goroutine stopping")
			return
		case <-ticker.C:
			c.cleanupStaleMutexes()
		}
	}
}

// cleanupStaleMutexes removes unused mutexes using TryLock for safety.
// lastUsed is checked inside the lock so a concurrent getYearMutex is not missed.
func (c *StatisticsCache) cleanupStaleMutexes() {
	cutoffTime := time.Now().Add(-mutexStaleThreshold).Unix()
	var cleaned int

	c.yearMu.Range(func(key, value any) bool {
		mt, ok := value.(*mutexWithTimestamp)
		if !ok {
			return true
		}

		if mt.mu.TryLock() {
			if mt.lastUsed.Load() < cutoffTime {
				c.yearMu.Delete(key)
				cleaned++
			}
			mt.mu.Unlock()
		}
		return true
	})

	if cleaned > 0 {
		c.log.Debugf("Cleaned up %d stale mutexes", cleaned)
	}
}
