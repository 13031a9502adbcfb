// Package catalog 提供商品目录与用户目录的查询实现。
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pkg/dbutil"
)

const (
	productQuery = `SELECT name, image, avg_score FROM products WHERE name = ?`

	productCategoriesQuery = `
		SELECT c.name
		FROM product_categories pc
		INNER JOIN categories c ON c.id = pc.category_id
		WHERE pc.product_id = ?
		ORDER BY c.name`

	productPropertiesQuery = `
		SELECT size, color, buy_price, sell_price, weight, can_sale, total_stock
		FROM product_properties
		WHERE product_id = ?
		ORDER BY id`

	userByEmailQuery = `SELECT id, email FROM users WHERE email = ?`
	orderCountQuery  = `SELECT COUNT(*) FROM orders WHERE user_id = ?`
	usersQuery       = `SELECT id, email FROM users ORDER BY id`
)

// SQLCatalog 直接查询订单库，实现 core.Catalog 与 core.UserDirectory。
type SQLCatalog struct {
	db     *sql.DB
	driver string
}

// NewSQLCatalog driver 决定占位符风格（postgres 使用 $n）
func NewSQLCatalog(db *sql.DB, driver string) *SQLCatalog {
	return &SQLCatalog{db: db, driver: driver}
}

func (c *SQLCatalog) q(query string) string {
	return dbutil.Rebind(c.driver, query)
}

func (c *SQLCatalog) Product(ctx context.Context, name string) (*core.Product, error) {
	var (
		p     core.Product
		image sql.NullString
		score sql.NullFloat64
	)
	err := c.db.QueryRowContext(ctx, c.q(productQuery), name).Scan(&p.Name, &image, &score)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewDomainError(core.ModuleCatalog, core.ErrorCodeNotFound, "product "+name+" not found")
	}
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleCatalog, core.ErrorCodeUnavailable, "query product", err)
	}
	// 图片与评分可为空
	p.Image = image.String
	p.AvgScore = score.Float64

	rows, err := c.db.QueryContext(ctx, c.q(productCategoriesQuery), name)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleCatalog, core.ErrorCodeUnavailable, "query categories", err)
	}
	for rows.Next() {
		var cat string
		if err := rows.Scan(&cat); err != nil {
			rows.Close()
			return nil, core.WrapDomainError(core.ModuleCatalog, core.ErrorCodeInternalError, "scan category", err)
		}
		p.Categories = append(p.Categories, cat)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, core.WrapDomainError(core.ModuleCatalog, core.ErrorCodeUnavailable, "read categories", err)
	}

	props, err := c.properties(ctx, name)
	if err != nil {
		return nil, err
	}
	p.Properties = props
	return &p, nil
}

func (c *SQLCatalog) properties(ctx context.Context, name string) ([]core.ProductProperty, error) {
	rows, err := c.db.QueryContext(ctx, c.q(productPropertiesQuery), name)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleCatalog, core.ErrorCodeUnavailable, "query properties", err)
	}
	defer rows.Close()

	var out []core.ProductProperty
	for rows.Next() {
		var (
			size, color       sql.NullString
			buy, sell, weight sql.NullFloat64
			canSale           sql.NullBool
			stock             sql.NullInt64
		)
		if err := rows.Scan(&size, &color, &buy, &sell, &weight, &canSale, &stock); err != nil {
			return nil, core.WrapDomainError(core.ModuleCatalog, core.ErrorCodeInternalError, "scan property", err)
		}
		out = append(out, core.ProductProperty{
			Size:       size.String,
			Color:      color.String,
			BuyPrice:   buy.Float64,
			SellPrice:  sell.Float64,
			Weight:     weight.Float64,
			CanSale:    canSale.Bool,
			TotalStock: int(stock.Int64),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapDomainError(core.ModuleCatalog, core.ErrorCodeUnavailable, "read properties", err)
	}
	return out, nil
}

func (c *SQLCatalog) UserByEmail(ctx context.Context, email string) (*core.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, core.NewDomainError(core.ModuleCatalog, core.ErrorCodeInvalidInput, "email is required")
	}
	var u core.User
	err := c.db.QueryRowContext(ctx, c.q(userByEmailQuery), email).Scan(&u.ID, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewDomainError(core.ModuleCatalog, core.ErrorCodeNotFound, "user "+email+" not found")
	}
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleCatalog, core.ErrorCodeUnavailable, "query user", err)
	}
	return &u, nil
}

func (c *SQLCatalog) OrderCount(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, c.q(orderCountQuery), userID).Scan(&n); err != nil {
		return 0, core.WrapDomainError(core.ModuleCatalog, core.ErrorCodeUnavailable, "count orders", err)
	}
	return n, nil
}

func (c *SQLCatalog) Users(ctx context.Context) ([]core.User, error) {
	rows, err := c.db.QueryContext(ctx, usersQuery)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleCatalog, core.ErrorCodeUnavailable, "query users", err)
	}
	defer rows.Close()
	var out []core.User
	for rows.Next() {
		var u core.User
		if err := rows.Scan(&u.ID, &u.Email); err != nil {
			return nil, core.WrapDomainError(core.ModuleCatalog, core.ErrorCodeInternalError, "scan user", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

var (
	_ core.Catalog       = (*SQLCatalog)(nil)
	_ core.UserDirectory = (*SQLCatalog)(nil)
)
