package extract

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/rushteam/shoprec/core"
)

// 订单行主查询：可选关联全部 LEFT JOIN，缺失时对应列为 NULL。
// 分类与评分单独查询后在内存中拼接，保持 SQL 在 postgres 与 sqlite 间可移植。
const (
	lineQuery = `
		SELECT
			o.id,
			o.status,
			o.user_id,
			COALESCE(u.email, ''),
			pp.product_id,
			p.avg_score,
			pp.size,
			pp.color,
			pp.buy_price,
			pp.sell_price,
			pp.weight,
			pp.can_sale,
			pp.total_stock,
			oi.quantity
		FROM order_items oi
		INNER JOIN orders o ON o.id = oi.order_id
		LEFT JOIN users u ON u.id = o.user_id
		LEFT JOIN product_properties pp ON pp.id = oi.product_id
		LEFT JOIN products p ON p.name = pp.product_id
		ORDER BY o.id, oi.id`

	categoryQuery = `
		SELECT pc.product_id, c.name
		FROM product_categories pc
		INNER JOIN categories c ON c.id = pc.category_id
		ORDER BY pc.product_id, c.name`

	ratingQuery = `
		SELECT user_id, product_id, rating, rating_date
		FROM product_ratings`
)

// SQLSource 从订单库抽取扁平数据集。
type SQLSource struct {
	DB *sql.DB

	// Statuses 只保留这些状态的订单，为空表示全部（导出时使用）
	Statuses []string

	Logger zerolog.Logger
}

// NewSQLSource 创建只抽取已支付/已送达订单的数据源
func NewSQLSource(db *sql.DB, logger zerolog.Logger) *SQLSource {
	return &SQLSource{
		DB:       db,
		Statuses: []string{core.OrderStatusPaid, core.OrderStatusDelivered},
		Logger:   logger.With().Str("component", "extract.sql").Logger(),
	}
}

func (s *SQLSource) Name() string { return "sql" }

type ratingKey struct {
	userID  int64
	product string
}

type rating struct {
	value float64
	date  sql.NullTime
}

// Records 执行抽取，任一查询失败时返回 UNAVAILABLE。
// 单行数据无法解析时记录日志并跳过该行，不影响其余订单行。
func (s *SQLSource) Records(ctx context.Context) ([]core.Record, error) {
	categories, err := s.categories(ctx)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleExtract, core.ErrorCodeUnavailable, "load categories", err)
	}
	ratings, err := s.ratings(ctx)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleExtract, core.ErrorCodeUnavailable, "load ratings", err)
	}

	rows, err := s.DB.QueryContext(ctx, lineQuery)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleExtract, core.ErrorCodeUnavailable, "query order lines", err)
	}
	defer rows.Close()

	var (
		out     []core.Record
		skipped int
	)
	for rows.Next() {
		var (
			rec        core.Record
			userID     sql.NullInt64
			product    sql.NullString
			avgScore   sql.NullFloat64
			size       sql.NullString
			color      sql.NullString
			buyPrice   sql.NullFloat64
			sellPrice  sql.NullFloat64
			weight     sql.NullFloat64
			canSale    sql.NullBool
			totalStock sql.NullInt64
			quantity   sql.NullInt64
		)
		if err := rows.Scan(
			&rec.OrderID, &rec.OrderStatus, &userID, &rec.UserEmail,
			&product, &avgScore, &size, &color,
			&buyPrice, &sellPrice, &weight, &canSale, &totalStock,
			&quantity,
		); err != nil {
			skipped++
			s.Logger.Warn().Err(err).Msg("skip unreadable order line")
			continue
		}
		if len(s.Statuses) > 0 && !slices.Contains(s.Statuses, rec.OrderStatus) {
			continue
		}

		// 数量缺失按 1 件计
		rec.Quantity = 1
		if quantity.Valid {
			rec.Quantity = int(quantity.Int64)
		}
		rec.UserID = nullInt64(userID)
		rec.ProductName = product.String
		rec.ProductAvgScore = nullFloat(avgScore)
		rec.Categories = categories[product.String]
		rec.Size = size.String
		rec.Color = color.String
		rec.BuyPrice = nullFloat(buyPrice)
		rec.SellPrice = nullFloat(sellPrice)
		rec.Weight = nullFloat(weight)
		if canSale.Valid {
			rec.CanSale = &canSale.Bool
		}
		if totalStock.Valid {
			n := int(totalStock.Int64)
			rec.TotalStock = &n
		}
		if rec.UserID != nil {
			if r, ok := ratings[ratingKey{*rec.UserID, rec.ProductName}]; ok {
				v := r.value
				rec.UserRating = &v
				if r.date.Valid {
					d := r.date.Time
					rec.RatingDate = &d
				}
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapDomainError(core.ModuleExtract, core.ErrorCodeUnavailable, "iterate order lines", err)
	}

	s.Logger.Debug().Int("records", len(out)).Int("skipped", skipped).Msg("order lines extracted")
	return out, nil
}

func (s *SQLSource) categories(ctx context.Context) (map[string][]string, error) {
	rows, err := s.DB.QueryContext(ctx, categoryQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var product, name string
		if err := rows.Scan(&product, &name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out[product] = append(out[product], name)
	}
	return out, rows.Err()
}

func (s *SQLSource) ratings(ctx context.Context) (map[ratingKey]rating, error) {
	rows, err := s.DB.QueryContext(ctx, ratingQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[ratingKey]rating)
	for rows.Next() {
		var (
			k     ratingKey
			r     rating
			value sql.NullFloat64
		)
		if err := rows.Scan(&k.userID, &k.product, &value, &r.date); err != nil {
			s.Logger.Warn().Err(err).Msg("skip unreadable rating")
			continue
		}
		if !value.Valid {
			continue
		}
		r.value = value.Float64
		out[k] = r
	}
	return out, rows.Err()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}
