package projection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/refnexus/platform/internal/domain"
)

const defaultStatsTTL = 5 * time.Minute

// StatsCache caches per-referee rating aggregates. Cache errors never fail a
// request: a broken store degrades to a miss.
type StatsCache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewStatsCache creates a stats cache over store. A non-positive ttl uses five minutes.
func NewStatsCache(store Store, ttl time.Duration, logger *slog.Logger) *StatsCache {
	if ttl <= 0 {
		ttl = defaultStatsTTL
	}
	return &StatsCache{store: store, ttl: ttl, logger: logger}
}

func statsKey(refereeID uuid.UUID) string {
	return "referee:stats:" + refereeID.String()
}

// GetMany returns the cached aggregates among ids and the ids that missed.
func (c *StatsCache) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.RatingAggregate, []uuid.UUID) {
	hits := make(map[uuid.UUID]domain.RatingAggregate, len(ids))
	var misses []uuid.UUID
	for _, id := range ids {
		var agg domain.RatingAggregate
		err := GetJSON(ctx, c.store, statsKey(id), &agg)
		if err != nil {
			if !errors.Is(err, ErrMiss) {
				c.logger.Warn("stats cache read failed", "referee_id", id, "error", err)
			}
			misses = append(misses, id)
			continue
		}
		hits[id] = agg
	}
	return hits, misses
}

// PutMany caches the given aggregates.
func (c *StatsCache) PutMany(ctx context.Context, aggs map[uuid.UUID]domain.RatingAggregate) {
	for id, agg := range aggs {
		if err := SetJSON(ctx, c.store, statsKey(id), agg, c.ttl); err != nil {
			c.logger.Warn("stats cache write failed", "referee_id", id, "error", err)
		}
	}
}

// Invalidate drops the cached aggregates of the given referees.
func (c *StatsCache) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = statsKey(id)
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		c.logger.Warn("stats cache invalidate failed", "error", err)
	}
}
