package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ptm-statistics/internal/domain/entity"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// fillIfGenerationScript stores a year only while its generation still has
// the value the filler read before loading the rows from the database.
//
// KEYS[1] statistics key, KEYS[2] generation key
// ARGV[1] expected generation, ARGV[2] payload, ARGV[3] TTL in milliseconds
var fillIfGenerationScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[2])
	if current ~= ARGV[1] then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
	return 1
`)

// =============================================================================
// Constants
// =============================================================================

const (
	// RedisStatisticsKeyPrefix prefixes one key per (puskesmas, disease, year)
	// holding the year's 12 rows as JSON.
	RedisStatisticsKeyPrefix = "stats:"

	// RedisGenerationKeyPrefix prefixes the invalidation counter of a year.
	// Every invalidation increments it; the counter never expires.
	RedisGenerationKeyPrefix = "stats-gen:"

	// Batch size for SCAN and for DEL pipelines during scope invalidation
	invalidateBatchSize = 500
)

// =============================================================================
// Types
// =============================================================================

// StatisticsAccelerator is a read-through Redis copy of monthly_statistics.
//
// It is never a source of truth: rows are written only after they were read
// from the database, and every mutation of the table is followed by an
// explicit invalidation. A fill carries the generation read before the
// database read, so a fill racing an invalidation (in this process or
// another) is dropped instead of restoring old rows. A nil accelerator, or
// one without a client, disables caching.
type StatisticsAccelerator struct {
	redisClient *redis.Client
	log         *logrus.Logger
	ttl         time.Duration
}

// =============================================================================
// Constructor
// =============================================================================

func NewStatisticsAccelerator(redisClient *redis.Client, log *logrus.Logger, ttl time.Duration) *StatisticsAccelerator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &StatisticsAccelerator{
		redisClient: redisClient,
		log:         log,
		ttl:         ttl,
	}
}

// =============================================================================
// Public Methods
// =============================================================================

// GetYear returns the cached rows of a year. ok is false on a miss.
func (a *StatisticsAccelerator) GetYear(ctx context.Context, puskesmasID int, disease entity.DiseaseType, year int) (stats []entity.MonthlyStatistic, ok bool, err error) {
	if !a.enabled() {
		return nil, false, nil
	}

	raw, err := a.redisClient.Get(ctx, YearCacheKey(puskesmasID, disease, year)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get statistics %d/%s/%d: %w", puskesmasID, disease, year, err)
	}

	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, false, fmt.Errorf("decode cached statistics %d/%s/%d: %w", puskesmasID, disease, year, err)
	}
	return stats, true, nil
}

// Generation returns the invalidation counter of a year, creating it at 0.
// Read it before loading the rows that will be passed to SetYear.
func (a *StatisticsAccelerator) Generation(ctx context.Context, puskesmasID int, disease entity.DiseaseType, year int) (int64, error) {
	if !a.enabled() {
		return 0, nil
	}

	gen, err := a.redisClient.IncrBy(ctx, YearGenerationKey(puskesmasID, disease, year), 0).Result()
	if err != nil {
		return 0, fmt.Errorf("redis generation %d/%s/%d: %w", puskesmasID, disease, year, err)
	}
	return gen, nil
}

// SetYear stores a complete year if no invalidation happened since
// generation was read. Incomplete years are not cached.
func (a *StatisticsAccelerator) SetYear(ctx context.Context, puskesmasID int, disease entity.DiseaseType, year int, generation int64, stats []entity.MonthlyStatistic) error {
	if !a.enabled() || len(stats) != entity.MonthsPerYear {
		return nil
	}

	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode statistics %d/%s/%d: %w", puskesmasID, disease, year, err)
	}

	stored, err := fillIfGenerationScript.Run(ctx, a.redisClient,
		[]string{YearCacheKey(puskesmasID, disease, year), YearGenerationKey(puskesmasID, disease, year)},
		generation, raw, a.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis set statistics %d/%s/%d: %w", puskesmasID, disease, year, err)
	}
	if stored == 0 {
		a.log.Debugf("Skipped caching statistics %d/%s/%d: invalidated since generation %d", puskesmasID, disease, year, generation)
	}
	return nil
}

// InvalidateYear drops the cached copy of one year and bumps its generation.
func (a *StatisticsAccelerator) InvalidateYear(ctx context.Context, puskesmasID int, disease entity.DiseaseType, year int) error {
	if !a.enabled() {
		return nil
	}

	pipe := a.redisClient.TxPipeline()
	pipe.Incr(ctx, YearGenerationKey(puskesmasID, disease, year))
	pipe.Del(ctx, YearCacheKey(puskesmasID, disease, year))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate statistics %d/%s/%d: %w", puskesmasID, disease, year, err)
	}
	return nil
}

// InvalidateScope drops every cached year matched by a rebuild scope.
// With explicit centers the keys are built directly; otherwise the
// generation keys of the year are found with SCAN, batch by batch. Every
// year that was ever filled has a generation key.
func (a *StatisticsAccelerator) InvalidateScope(ctx context.Context, scope entity.RebuildScope) error {
	if !a.enabled() {
		return nil
	}

	diseases := scope.Diseases
	if len(diseases) == 0 {
		diseases = entity.DiseaseTypes()
	}

	if len(scope.PuskesmasIDs) > 0 {
		genKeys := make([]string, 0, len(scope.PuskesmasIDs)*len(diseases))
		for _, id := range scope.PuskesmasIDs {
			for _, d := range diseases {
				genKeys = append(genKeys, YearGenerationKey(id, d, scope.Year))
			}
		}
		return a.invalidateInBatches(ctx, genKeys)
	}

	invalidated := 0
	for _, d := range diseases {
		pattern := fmt.Sprintf("%s*:%s:%d", RedisGenerationKeyPrefix, d, scope.Year)
		var cursor uint64
		for {
			genKeys, next, err := a.redisClient.Scan(ctx, cursor, pattern, invalidateBatchSize).Result()
			if err != nil {
				return fmt.Errorf("redis scan %s: %w", pattern, err)
			}
			if err := a.invalidateInBatches(ctx, genKeys); err != nil {
				return err
			}
			invalidated += len(genKeys)

			cursor = next
			if cursor == 0 {
				break
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
	}

	a.log.Debugf("Invalidated %d cached statistic years for %d", invalidated, scope.Year)
	return nil
}

// YearCacheKey is the Redis key of one cached year.
func YearCacheKey(puskesmasID int, disease entity.DiseaseType, year int) string {
	return fmt.Sprintf("%s%d:%s:%d", RedisStatisticsKeyPrefix, puskesmasID, disease, year)
}

// YearGenerationKey is the Redis key of a year's invalidation counter.
func YearGenerationKey(puskesmasID int, disease entity.DiseaseType, year int) string {
	return fmt.Sprintf("%s%d:%s:%d", RedisGenerationKeyPrefix, puskesmasID, disease, year)
}

// =============================================================================
// Private Helper Methods
// =============================================================================

func (a *StatisticsAccelerator) enabled() bool {
	return a != nil && a.redisClient != nil
}

// invalidateInBatches runs one MULTI/EXEC per batch so large scopes never
// build a single huge command. Each generation key is bumped together with
// the deletion of its statistics key.
func (a *StatisticsAccelerator) invalidateInBatches(ctx context.Context, genKeys []string) error {
	for start := 0; start < len(genKeys); start += invalidateBatchSize {
		end := min(start+invalidateBatchSize, len(genKeys))

		pipe := a.redisClient.TxPipeline()
		for _, genKey := range genKeys[start:end] {
			pipe.Incr(ctx, genKey)
			pipe.Del(ctx, RedisStatisticsKeyPrefix+strings.TrimPrefix(genKey, RedisGenerationKeyPrefix))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis invalidate pipeline at offset %d: %w", start, err)
		}
	}
	return nil
}
