// Package extract 把订单数据转换为扁平数据集，供挖掘与混合推荐共同使用。
package extract

import (
	"slices"
	"strings"

	"github.com/rushteam/shoprec/core"
)

// FilterStatus 只保留指定状态的订单行，未指定状态时原样返回
func FilterStatus(records []core.Record, statuses ...string) []core.Record {
	if len(statuses) == 0 {
		return records
	}
	out := make([]core.Record, 0, len(records))
	for _, r := range records {
		if slices.Contains(statuses, r.OrderStatus) {
			out = append(out, r)
		}
	}
	return out
}

// FilterCompleted 只保留已支付/已送达的订单行
func FilterCompleted(records []core.Record) []core.Record {
	return FilterStatus(records, core.OrderStatusPaid, core.OrderStatusDelivered)
}

// Transactions 按订单号分组已完成订单的商品名，保持首次出现的顺序。
// 商品名去除首尾空白，空名称（缺失的商品规格）被丢弃；没有商品的订单不产生交易。
func Transactions(records []core.Record) []core.Transaction {
	index := make(map[int64]int)
	var out []core.Transaction
	for _, r := range records {
		if !r.Completed() {
			continue
		}
		name := strings.TrimSpace(r.ProductName)
		if name == "" {
			continue
		}
		i, ok := index[r.OrderID]
		if !ok {
			i = len(out)
			index[r.OrderID] = i
			out = append(out, core.Transaction{OrderID: r.OrderID})
		}
		out[i].Products = append(out[i].Products, name)
	}
	return out
}
