package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"orgdirectory/internal/models"
	"orgdirectory/pkg/logger"
)

// EmployeeCache keeps assembled employee views in Redis. Cache errors are
// logged and treated as misses.
//
// Every invalidation bumps a per-employee version key. A view is only stored
// when the version still matches the one read before the view was assembled,
// so a write that commits in between cannot be overwritten by stale data.
type EmployeeCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewEmployeeCache(rdb *redis.Client, ttl time.Duration) *EmployeeCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &EmployeeCache{rdb: rdb, ttl: ttl}
}

func employeeKey(id int) string {
	return fmt.Sprintf("employee:view:%d", id)
}

func versionKey(id int) string {
	return fmt.Sprintf("employee:view:%d:ver", id)
}

// Version reports the current invalidation counter for id. ok is false when
// Redis cannot be read, in which case the caller should not Set.
func (c *EmployeeCache) Version(ctx context.Context, id int) (int64, bool) {
	v, err := c.rdb.Get(ctx, versionKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		logger.ErrorLogger.Error("Error reading employee cache version", zap.Int("employee_id", id), zap.Error(err))
		return 0, false
	}
	return v, true
}

func (c *EmployeeCache) Get(ctx context.Context, id int) (*models.EmployeeView, bool) {
	cached, err := c.rdb.Get(ctx, employeeKey(id)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.ErrorLogger.Error("Error reading employee cache", zap.Int("employee_id", id), zap.Error(err))
		}
		return nil, false
	}
	var view models.EmployeeView
	if err := json.Unmarshal([]byte(cached), &view); err != nil {
		logger.ErrorLogger.Error("Error decoding cached employee", zap.Int("employee_id", id), zap.Error(err))
		return nil, false
	}
	return &view, true
}

// Set stores view if no invalidation happened since version was read.
func (c *EmployeeCache) Set(ctx context.Context, view models.EmployeeView, version int64) {
	data, err := json.Marshal(view)
	if err != nil {
		logger.ErrorLogger.Error("Error encoding employee to JSON", zap.Error(err))
		return
	}
	verKey := versionKey(view.ID)
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, verKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStaleView
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetEX(ctx, employeeKey(view.ID), data, c.ttl)
			return nil
		})
		return err
	}, verKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleView), errors.Is(err, redis.TxFailedErr):
		logger.SystemLogger.Debug("Skipped caching stale employee view", zap.Int("employee_id", view.ID))
	default:
		logger.ErrorLogger.Error("Error caching employee", zap.Int("employee_id", view.ID), zap.Error(err))
	}
}

var errStaleView = errors.New("employee view changed while it was read")

func (c *EmployeeCache) Invalidate(ctx context.Context, ids ...int) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			keys[i] = employeeKey(id)
			pipe.Incr(ctx, versionKey(id))
			pipe.Expire(ctx, versionKey(id), c.ttl)
		}
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		logger.ErrorLogger.Error("Error invalidating employee cache", zap.Ints("employee_ids", ids), zap.Error(err))
	}
}
