package core

import "context"

// Product 是商品目录视图。
type Product struct {
	Name       string            `json:"name"`
	Image      string            `json:"image"`
	AvgScore   float64           `json:"avg_score"`
	Categories []string          `json:"categories"`
	Properties []ProductProperty `json:"properties"`
}

// ProductProperty 是商品的一个规格（尺码/颜色）及其价格与库存。
type ProductProperty struct {
	Size       string  `json:"size"`
	Color      string  `json:"color"`
	BuyPrice   float64 `json:"buy_price"`
	SellPrice  float64 `json:"sell_price"`
	Weight     float64 `json:"weight"`
	CanSale    bool    `json:"can_sale"`
	TotalStock int     `json:"total_stock"`
}

// User 是推荐目标用户。
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// Catalog 查询商品，不存在时返回 NOT_FOUND。
type Catalog interface {
	Product(ctx context.Context, name string) (*Product, error)
}

// UserDirectory 查询用户及其订单数（全部状态）。
type UserDirectory interface {
	UserByEmail(ctx context.Context, email string) (*User, error)
	OrderCount(ctx context.Context, userID int64) (int, error)
	Users(ctx context.Context) ([]User, error)
}
