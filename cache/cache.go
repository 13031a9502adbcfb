// Package cache 按用户缓存混合推荐快照：新鲜窗口内直接返回，过期后重算并覆盖写入。
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/metrics"
)

// DefaultWindow 默认新鲜窗口（7 天）
const DefaultWindow = 168 * time.Hour

// DefaultPrefix 快照 key 前缀
const DefaultPrefix = "shoprec:rec:"

// Computer 为单个用户计算推荐快照，由 recommender.Recommender 实现
type Computer interface {
	RecommendForUser(ctx context.Context, user core.User) (*core.RecommendationSnapshot, error)
}

// Cache 是推荐快照缓存，一个用户一份快照，覆盖写入以最后一次为准。
type Cache struct {
	Store    core.Store
	Computer Computer

	// Window 为 GetOrCompute 未指定窗口时的新鲜窗口
	Window time.Duration
	Prefix string

	Now    func() time.Time
	Logger zerolog.Logger

	sf singleflight.Group
}

// New 创建缓存，window <= 0 时使用 DefaultWindow
func New(store core.Store, computer Computer, window time.Duration, logger zerolog.Logger) *Cache {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Cache{
		Store:    store,
		Computer: computer,
		Window:   window,
		Prefix:   DefaultPrefix,
		Now:      time.Now,
		Logger:   logger.With().Str("component", "cache").Logger(),
	}
}

// Key 返回用户快照的存储 key
func (c *Cache) Key(userID int64) string {
	return c.Prefix + strconv.FormatInt(userID, 10)
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// GetOrCompute 返回用户快照：
// 存储中的快照满足 now - updated_at < window 时原样返回，否则重算、写入并返回新快照。
// window <= 0 时使用 Cache.Window。同一用户的并发未命中只计算一次，计算失败不写缓存。
func (c *Cache) GetOrCompute(ctx context.Context, user core.User, window time.Duration) (snap *core.RecommendationSnapshot, err error) {
	defer core.Recover(core.ModuleCache, &err)

	if window <= 0 {
		window = c.Window
	}
	cached, err := c.Get(ctx, user.ID)
	switch {
	case err == nil && cached.Fresh(c.now(), window):
		metrics.RecordCache("hit")
		return cached, nil
	case err == nil:
		metrics.RecordCache("stale")
	case core.IsNotFound(err):
		metrics.RecordCache("miss")
	default:
		// 读缓存失败时降级为直接计算
		metrics.RecordCache("error")
		c.Logger.Warn().Err(err).Int64("user_id", user.ID).Msg("read snapshot failed, recomputing")
	}
	return c.compute(ctx, user)
}

// Refresh 忽略已有快照，强制重算并写入
func (c *Cache) Refresh(ctx context.Context, user core.User) (snap *core.RecommendationSnapshot, err error) {
	defer core.Recover(core.ModuleCache, &err)

	metrics.RecordCache("refresh")
	return c.compute(ctx, user)
}

func (c *Cache) compute(ctx context.Context, user core.User) (*core.RecommendationSnapshot, error) {
	v, err, shared := c.sf.Do(c.Key(user.ID), func() (any, error) {
		snap, err := c.Computer.RecommendForUser(ctx, user)
		if err != nil {
			return nil, err
		}
		if err := c.Put(ctx, snap); err != nil {
			return nil, err
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.Logger.Debug().Int64("user_id", user.ID).Msg("shared in-flight computation")
	}
	return v.(*core.RecommendationSnapshot), nil
}

// Get 读取并解码用户快照，不存在时返回 NOT_FOUND
func (c *Cache) Get(ctx context.Context, userID int64) (*core.RecommendationSnapshot, error) {
	data, err := c.Store.Get(ctx, c.Key(userID))
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, core.WrapDomainError(core.ModuleCache, core.ErrorCodeNotFound, "snapshot not found", err)
		}
		return nil, err
	}
	var snap core.RecommendationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, core.WrapDomainError(core.ModuleCache, core.ErrorCodeInternalError, "decode snapshot", err)
	}
	return &snap, nil
}

// Put 编码并覆盖写入快照，不设置过期时间（新鲜度由 updated_at 判断）
func (c *Cache) Put(ctx context.Context, snap *core.RecommendationSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return core.WrapDomainError(core.ModuleCache, core.ErrorCodeInternalError, "encode snapshot", err)
	}
	if err := c.Store.Set(ctx, c.Key(snap.UserID), data, 0); err != nil {
		return err
	}
	c.Logger.Debug().Int64("user_id", snap.UserID).Int("count", len(snap.Recommendations)).Msg("snapshot stored")
	return nil
}

// Users 列出已缓存快照的用户 ID
func (c *Cache) Users(ctx context.Context) ([]int64, error) {
	keys, err := c.Store.Keys(ctx, c.Prefix)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(keys))
	for _, k := range keys {
		id, err := strconv.ParseInt(k[len(c.Prefix):], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
