// Package testdb 提供测试用的 sqlite 数据库，表结构与线上订单库一致。
package testdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/rushteam/shoprec/pkg/dbutil"
)

// Schema 是订单库中推荐相关的表
const Schema = `
CREATE TABLE users (
	id    INTEGER PRIMARY KEY,
	email TEXT NOT NULL UNIQUE
);
CREATE TABLE products (
	name      TEXT PRIMARY KEY,
	image     TEXT,
	avg_score REAL
);
CREATE TABLE categories (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE product_categories (
	product_id  TEXT NOT NULL REFERENCES products(name),
	category_id INTEGER NOT NULL REFERENCES categories(id)
);
CREATE TABLE product_properties (
	id          INTEGER PRIMARY KEY,
	product_id  TEXT NOT NULL REFERENCES products(name),
	size        TEXT,
	color       TEXT,
	buy_price   REAL,
	sell_price  REAL,
	weight      REAL,
	can_sale    BOOLEAN,
	total_stock INTEGER
);
CREATE TABLE orders (
	id      INTEGER PRIMARY KEY,
	user_id INTEGER REFERENCES users(id),
	status  TEXT NOT NULL
);
CREATE TABLE order_items (
	id         INTEGER PRIMARY KEY,
	order_id   INTEGER NOT NULL REFERENCES orders(id),
	product_id INTEGER REFERENCES product_properties(id),
	quantity   INTEGER DEFAULT 1
);
CREATE TABLE product_ratings (
	id          INTEGER PRIMARY KEY,
	user_id     INTEGER NOT NULL REFERENCES users(id),
	product_id  TEXT NOT NULL REFERENCES products(name),
	rating      REAL,
	rating_date TIMESTAMP,
	UNIQUE (user_id, product_id)
);
`

// Open 在临时目录创建 sqlite 库并建表
func Open(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := dbutil.Open(ctx, dbutil.DriverSQLite, filepath.Join(t.TempDir(), "shop.db"), dbutil.WithMaxOpenConns(1))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

// Exec 依次执行语句，任一失败即终止测试
func Exec(t *testing.T, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

// Seed 写入一份小型商店数据：
//
//   - alice(1) 两个已支付订单，bob(2) 一个已送达订单与一个已取消订单，carol(3) 无订单
//   - 订单 5 无用户，订单行 7 的规格缺失
//   - "Scarf" 库存不足，"Hat" 只有一个不可售规格，"Jacket" 没有图片
func Seed(t *testing.T, db *sql.DB) {
	t.Helper()
	Exec(t, db,
		`INSERT INTO users (id, email) VALUES (1, 'alice@example.com'), (2, 'bob@example.com'), (3, 'carol@example.com')`,
		`INSERT INTO products (name, image, avg_score) VALUES
			('Boots', 'boots.png', 4.5),
			('Jacket', NULL, 4.0),
			('Scarf', 'scarf.png', 3.5),
			('Hat', 'hat.png', NULL)`,
		`INSERT INTO categories (id, name) VALUES (1, 'shoes'), (2, 'winter'), (3, 'accessories')`,
		`INSERT INTO product_categories (product_id, category_id) VALUES
			('Boots', 1), ('Boots', 2), ('Jacket', 2), ('Scarf', 3), ('Scarf', 2)`,
		`INSERT INTO product_properties (id, product_id, size, color, buy_price, sell_price, weight, can_sale, total_stock) VALUES
			(1, 'Boots', '42', 'black', 50, 80, 1.2, 1, 10),
			(2, 'Jacket', 'L', 'red', 100, 150, 0.9, 1, 4),
			(3, 'Scarf', NULL, 'grey', 10, 25, 0.1, 1, 2),
			(4, 'Hat', 'M', NULL, NULL, 20, NULL, 0, 1)`,
		`INSERT INTO orders (id, user_id, status) VALUES
			(1, 1, 'paid'), (2, 1, 'delivered'), (3, 2, 'delivered'), (4, 2, 'cancelled'), (5, NULL, 'paid')`,
		`INSERT INTO order_items (id, order_id, product_id, quantity) VALUES
			(1, 1, 1, 1), (2, 1, 2, 1), (3, 2, 3, 2), (4, 3, 1, 1), (5, 3, 3, 1), (6, 4, 2, 1), (7, 5, NULL, 1), (8, 5, 4, 1)`,
		`INSERT INTO product_ratings (user_id, product_id, rating, rating_date) VALUES
			(1, 'Boots', 5, NULL), (2, 'Scarf', 3, NULL)`,
	)
}
