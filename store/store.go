// Package store 提供 core.Store 的实现：内存、Redis、Badger。
//
// 推荐快照缓存通过 core.Store 落地，按部署选择后端：
//
//	var s core.Store = store.NewMemoryStore()
package store

import (
	"fmt"
	"time"

	"github.com/rushteam/shoprec/core"
)

// Options 是按名称创建 Store 时的连接参数
type Options struct {
	Kind string // memory / redis / badger

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	BadgerDir string
}

// New 按 Kind 创建 Store
func New(o Options) (core.Store, error) {
	switch o.Kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(o.RedisAddr, o.RedisPassword, o.RedisDB)
	case "badger":
		return OpenBadgerStore(o.BadgerDir)
	default:
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeNotSupported, fmt.Sprintf("unknown kind %q", o.Kind), core.ErrStoreNotSupported)
	}
}

func expireAt(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().Add(ttl)
	return &t
}
