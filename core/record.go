package core

import (
	"context"
	"time"
)

// 参与挖掘和推荐的订单状态
const (
	OrderStatusPaid      = "paid"
	OrderStatusDelivered = "delivered"
)

// Record 是抽取后的扁平数据行：一个订单行一条。
// 可选关联（用户、评分、商品属性）缺失时对应指针为 nil，不影响整行。
type Record struct {
	OrderID     int64
	OrderStatus string

	UserID    *int64
	UserEmail string

	ProductName     string
	ProductAvgScore *float64
	Categories      []string

	Size       string
	Color      string
	BuyPrice   *float64
	SellPrice  *float64
	Weight     *float64
	CanSale    *bool
	TotalStock *int

	Quantity   int
	UserRating *float64
	RatingDate *time.Time
}

// Completed 返回订单是否已支付或已送达
func (r *Record) Completed() bool {
	return r.OrderStatus == OrderStatusPaid || r.OrderStatus == OrderStatusDelivered
}

// Transaction 是一个订单内共同购买的商品名称。
type Transaction struct {
	OrderID  int64
	Products []string
}

// RecordSource 提供扁平数据集，实现见 extract 包。
type RecordSource interface {
	Name() string
	Records(ctx context.Context) ([]Record, error)
}
