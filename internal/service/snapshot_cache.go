package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/rendus-api/internal/models"
	"github.com/noah-isme/rendus-api/internal/observability"
)

const defaultSnapshotTTL = 30 * time.Second

// SnapshotCache keeps recently loaded course snapshots in redis. A nil client disables it.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewSnapshotCache constructs the course snapshot cache.
func NewSnapshotCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *SnapshotCache {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &SnapshotCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "snapshot_cache").Logger(),
	}
}

func snapshotKey(courseID uint) string {
	return fmt.Sprintf("rendus:course:%d:snapshot", courseID)
}

// Get returns the cached snapshot of a course.
func (c *SnapshotCache) Get(ctx context.Context, courseID uint) (models.Course, bool) {
	if c == nil || c.client == nil {
		return models.Course{}, false
	}

	cached, err := c.client.Get(ctx, snapshotKey(courseID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Uint("course_id", courseID).Msg("failed to read snapshot cache")
		}
		observability.ReportCache().WithLabelValues("miss").Inc()
		return models.Course{}, false
	}

	var course models.Course
	if err := json.Unmarshal([]byte(cached), &course); err != nil {
		c.logger.Warn().Err(err).Uint("course_id", courseID).Msg("discarding corrupt snapshot")
		observability.ReportCache().WithLabelValues("miss").Inc()
		return models.Course{}, false
	}

	observability.ReportCache().WithLabelValues("hit").Inc()
	return course, true
}

// Set stores the snapshot of a course.
func (c *SnapshotCache) Set(ctx context.Context, course models.Course) {
	if c == nil || c.client == nil {
		return
	}

	payload, err := json.Marshal(course)
	if err != nil {
		c.logger.Warn().Err(err).Uint("course_id", course.ID).Msg("failed to encode snapshot")
		return
	}
	if err := c.client.Set(ctx, snapshotKey(course.ID), payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Uint("course_id", course.ID).Msg("failed to store snapshot cache")
	}
}

// Invalidate drops the cached snapshot of a course.
func (c *SnapshotCache) Invalidate(ctx context.Context, courseID uint) {
	if c == nil || c.client == nil || courseID == 0 {
		return
	}
	if err := c.client.Del(ctx, snapshotKey(courseID)).Err(); err != nil {
		c.logger.Warn().Err(err).Uint("course_id", courseID).Msg("failed to invalidate snapshot cache")
	}
}
