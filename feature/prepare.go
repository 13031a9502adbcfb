// Package feature 把扁平订单记录加工成推荐所需的内容特征与评分矩阵。
package feature

import (
	"slices"
	"strings"

	"github.com/rushteam/shoprec/core"
)

// Prepare 构建一次推荐运行的特征数据。
//
// 只使用已完成订单中有商品名的行。评分缺失时依次用该用户的平均评分、
// 商品平均分、0 补全；标准化参数在本次数据上拟合，不跨调用复用。
func Prepare(records []core.Record) *core.FeatureData {
	lines := make([]core.Record, 0, len(records))
	for _, r := range records {
		r.ProductName = strings.TrimSpace(r.ProductName)
		if !r.Completed() || r.ProductName == "" {
			continue
		}
		lines = append(lines, r)
	}

	ratings := FillRatings(lines)

	raw := make([][]float64, len(lines))
	for i, r := range lines {
		raw[i] = []float64{
			ProfitMargin(r.BuyPrice, r.SellPrice),
			ratings[i],
			valueOr(r.ProductAvgScore, 0),
		}
	}
	scaler := FitZScore(raw)

	data := &core.FeatureData{Rows: make([]core.FeatureRow, len(lines))}
	for i, r := range lines {
		data.Rows[i] = core.FeatureRow{
			UserID:  r.UserID,
			Product: r.ProductName,
			Values:  scaler.Transform(raw[i]),
			Rating:  ratings[i],
		}
	}

	categoryLists := make([][]string, len(lines))
	for i, r := range lines {
		categoryLists[i] = r.Categories
	}
	enc := NewMultiHotEncoder(categoryLists...)
	data.Categories = enc.Categories

	seen := make(map[string]struct{})
	for i, r := range lines {
		if _, ok := seen[r.ProductName]; ok {
			continue
		}
		seen[r.ProductName] = struct{}{}
		data.Products = append(data.Products, core.ProductVector{
			Product:    r.ProductName,
			Values:     data.Rows[i].Values,
			Categories: r.Categories,
			OneHot:     enc.Encode(r.Categories),
		})
	}

	data.Matrix = BuildRatingMatrix(data.Rows)
	return data
}

// FillRatings 返回与 lines 对齐的补全后评分
func FillRatings(lines []core.Record) []float64 {
	type acc struct {
		sum float64
		n   int
	}
	byUser := make(map[int64]*acc)
	for _, r := range lines {
		if r.UserID == nil || r.UserRating == nil {
			continue
		}
		a, ok := byUser[*r.UserID]
		if !ok {
			a = &acc{}
			byUser[*r.UserID] = a
		}
		a.sum += *r.UserRating
		a.n++
	}

	out := make([]float64, len(lines))
	for i, r := range lines {
		switch {
		case r.UserRating != nil:
			out[i] = *r.UserRating
		case r.UserID != nil && byUser[*r.UserID] != nil:
			a := byUser[*r.UserID]
			out[i] = a.sum / float64(a.n)
		default:
			out[i] = valueOr(r.ProductAvgScore, 0)
		}
	}
	return out
}

// BuildRatingMatrix 构建用户 × 商品评分矩阵。
// 用户与商品均按升序排列；同一 (用户, 商品) 多次出现取平均；匿名行不进入矩阵。
func BuildRatingMatrix(rows []core.FeatureRow) *core.RatingMatrix {
	type cell struct {
		user    int64
		product string
	}
	type acc struct {
		sum float64
		n   int
	}
	cells := make(map[cell]*acc)
	users := make(map[int64]struct{})
	products := make(map[string]struct{})
	for _, r := range rows {
		if r.UserID == nil {
			continue
		}
		users[*r.UserID] = struct{}{}
		products[r.Product] = struct{}{}
		k := cell{*r.UserID, r.Product}
		a, ok := cells[k]
		if !ok {
			a = &acc{}
			cells[k] = a
		}
		a.sum += r.Rating
		a.n++
	}

	userList := make([]int64, 0, len(users))
	for u := range users {
		userList = append(userList, u)
	}
	slices.Sort(userList)
	productList := make([]string, 0, len(products))
	for p := range products {
		productList = append(productList, p)
	}
	slices.Sort(productList)

	m := core.NewRatingMatrix(userList, productList)
	for k, a := range cells {
		m.Set(k.user, k.product, a.sum/float64(a.n))
	}
	return m
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
