package catalog

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/rushteam/shoprec/core"
)

// MemoryCatalog 是内存实现的商品/用户目录，用于 CSV 部署与测试。
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]*core.Product
	users    map[string]core.User
	orders   map[int64]int
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		products: make(map[string]*core.Product),
		users:    make(map[string]core.User),
		orders:   make(map[int64]int),
	}
}

// FromRecords 从扁平记录构建目录。
// 商品取首次出现的平均分与类别，规格按 (size, color) 去重；
// 订单数按用户统计不同订单号，包含所有状态，因此应传入未过滤状态的记录。
func FromRecords(records []core.Record) *MemoryCatalog {
	c := NewMemoryCatalog()
	type spec struct{ size, color string }
	seenSpec := make(map[string]map[spec]struct{})
	seenOrder := make(map[int64]map[int64]struct{})

	for _, r := range records {
		if r.UserID != nil {
			if r.UserEmail != "" {
				c.users[r.UserEmail] = core.User{ID: *r.UserID, Email: r.UserEmail}
			}
			if seenOrder[*r.UserID] == nil {
				seenOrder[*r.UserID] = make(map[int64]struct{})
			}
			seenOrder[*r.UserID][r.OrderID] = struct{}{}
		}

		name := strings.TrimSpace(r.ProductName)
		if name == "" {
			continue
		}
		p, ok := c.products[name]
		if !ok {
			p = &core.Product{Name: name, Categories: slices.Clone(r.Categories)}
			if r.ProductAvgScore != nil {
				p.AvgScore = *r.ProductAvgScore
			}
			c.products[name] = p
			seenSpec[name] = make(map[spec]struct{})
		}
		k := spec{r.Size, r.Color}
		if _, ok := seenSpec[name][k]; ok {
			continue
		}
		seenSpec[name][k] = struct{}{}
		p.Properties = append(p.Properties, core.ProductProperty{
			Size:       r.Size,
			Color:      r.Color,
			BuyPrice:   deref(r.BuyPrice),
			SellPrice:  deref(r.SellPrice),
			Weight:     deref(r.Weight),
			CanSale:    r.CanSale != nil && *r.CanSale,
			TotalStock: derefInt(r.TotalStock),
		})
	}
	for uid, orders := range seenOrder {
		c.orders[uid] = len(orders)
	}
	return c
}

// PutProduct 写入或覆盖商品
func (c *MemoryCatalog) PutProduct(p core.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.Name] = &p
}

// PutUser 写入用户及其订单数
func (c *MemoryCatalog) PutUser(u core.User, orders int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[u.Email] = u
	c.orders[u.ID] = orders
}

func (c *MemoryCatalog) Product(_ context.Context, name string) (*core.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[name]
	if !ok {
		return nil, core.NewDomainError(core.ModuleCatalog, core.ErrorCodeNotFound, "product "+name+" not found")
	}
	cp := *p
	cp.Properties = slices.Clone(p.Properties)
	return &cp, nil
}

func (c *MemoryCatalog) UserByEmail(_ context.Context, email string) (*core.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, core.NewDomainError(core.ModuleCatalog, core.ErrorCodeInvalidInput, "email is required")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[email]
	if !ok {
		return nil, core.NewDomainError(core.ModuleCatalog, core.ErrorCodeNotFound, "user "+email+" not found")
	}
	return &u, nil
}

func (c *MemoryCatalog) OrderCount(_ context.Context, userID int64) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.orders[userID], nil
}

func (c *MemoryCatalog) Users(_ context.Context) ([]core.User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.User, 0, len(c.users))
	for _, u := range c.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b core.User) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return out, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

var (
	_ core.Catalog       = (*MemoryCatalog)(nil)
	_ core.UserDirectory = (*MemoryCatalog)(nil)
)
