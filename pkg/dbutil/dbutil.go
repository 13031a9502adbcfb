// Package dbutil 打开 database/sql 连接并处理不同驱动的占位符差异。
//
// 生产环境使用 postgres（import _ "github.com/lib/pq"），
// 测试与单机部署使用 sqlite（import _ "modernc.org/sqlite"）。
package dbutil

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// 支持的驱动名
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Option 调整连接池
type Option func(*sql.DB)

// WithMaxOpenConns 设置最大连接数
func WithMaxOpenConns(n int) Option {
	return func(db *sql.DB) { db.SetMaxOpenConns(n) }
}

// Open 打开连接并 Ping；sqlite 额外开启外键与 busy_timeout。
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	for _, opt := range opts {
		opt(db)
	}

	if driver == DriverSQLite {
		for _, pragma := range []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA busy_timeout = 10000",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// Rebind 把 '?' 占位符改写为 postgres 的 $1, $2 ...；其他驱动原样返回。
func Rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
