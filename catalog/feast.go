package catalog

import (
	"context"
	"fmt"

	feastsdk "github.com/feast-dev/feast/sdk/go"
	"github.com/feast-dev/feast/sdk/go/protos/feast/types"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pkg/conv"
)

// OnlineFeatureReader 读取在线特征。
// 返回值与 entities 一一对应，key 为 "view:feature"，缺失的特征不出现在 map 中。
type OnlineFeatureReader interface {
	OnlineFeatures(ctx context.Context, features []string, entityKey string, entities []string) ([]map[string]any, error)
}

// FeastReader 是基于官方 Feast Go SDK 的 gRPC 实现。
type FeastReader struct {
	client  *feastsdk.GrpcClient
	Project string
}

// NewFeastReader 连接 Feast Serving，token 不为空时使用静态 Token 认证
func NewFeastReader(host string, port int, project, token string) (*FeastReader, error) {
	if port == 0 {
		port = 6565 // 默认 gRPC 端口
	}
	var (
		client *feastsdk.GrpcClient
		err    error
	)
	if token != "" {
		client, err = feastsdk.NewSecureGrpcClient(host, port, feastsdk.SecurityConfig{
			Credential: feastsdk.NewStaticCredential(token),
		})
	} else {
		client, err = feastsdk.NewGrpcClient(host, port)
	}
	if err != nil {
		return nil, fmt.Errorf("connect feast %s:%d: %w", host, port, err)
	}
	return &FeastReader{client: client, Project: project}, nil
}

func (r *FeastReader) OnlineFeatures(ctx context.Context, features []string, entityKey string, entities []string) ([]map[string]any, error) {
	rows := make([]feastsdk.Row, len(entities))
	for i, e := range entities {
		rows[i] = feastsdk.Row{entityKey: feastsdk.StrVal(e)}
	}
	resp, err := r.client.GetOnlineFeatures(ctx, &feastsdk.OnlineFeaturesRequest{
		Features: features,
		Entities: rows,
		Project:  r.Project,
	})
	if err != nil {
		return nil, fmt.Errorf("feast get online features: %w", err)
	}
	got := resp.Rows()
	if len(got) != len(entities) {
		return nil, fmt.Errorf("feast returned %d rows for %d entities", len(got), len(entities))
	}
	out := make([]map[string]any, len(got))
	for i, row := range got {
		values := make(map[string]any, len(features))
		for _, f := range features {
			if v := fromValue(row[f]); v != nil {
				values[f] = v
			}
		}
		out[i] = values
	}
	return out, nil
}

// fromValue 把 Feast Value 转为 Go 值，未设置时返回 nil
func fromValue(v *types.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.GetVal().(type) {
	case *types.Value_StringVal:
		return val.StringVal
	case *types.Value_Int64Val:
		return val.Int64Val
	case *types.Value_Int32Val:
		return int64(val.Int32Val)
	case *types.Value_DoubleVal:
		return val.DoubleVal
	case *types.Value_FloatVal:
		return float64(val.FloatVal)
	case *types.Value_BoolVal:
		return val.BoolVal
	default:
		return nil
	}
}

// FeastCatalog 从 Feast 在线特征视图读取商品的图片、平均分与库存。
// Feast 中商品只有一个汇总规格；用户查询委托给内嵌的 UserDirectory。
type FeastCatalog struct {
	Reader OnlineFeatureReader

	// View 特征视图名，默认 "product_stats"
	View string
	// EntityKey 实体列名，默认 "product_name"
	EntityKey string

	core.UserDirectory
}

func (c *FeastCatalog) feature(name string) string {
	view := c.View
	if view == "" {
		view = "product_stats"
	}
	return view + ":" + name
}

func (c *FeastCatalog) Product(ctx context.Context, name string) (*core.Product, error) {
	entityKey := c.EntityKey
	if entityKey == "" {
		entityKey = "product_name"
	}
	var (
		fImage      = c.feature("image")
		fAvgScore   = c.feature("avg_score")
		fStock      = c.feature("total_stock")
		fCanSale    = c.feature("can_sale")
		fCategories = c.feature("categories")
	)
	rows, err := c.Reader.OnlineFeatures(ctx,
		[]string{fImage, fAvgScore, fStock, fCanSale, fCategories},
		entityKey, []string{name})
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleCatalog, core.ErrorCodeUnavailable, "read product features", err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, core.NewDomainError(core.ModuleCatalog, core.ErrorCodeNotFound, "product "+name+" not found")
	}
	row := rows[0]
	_, hasStock := row[fStock]
	_, hasScore := row[fAvgScore]
	if !hasStock && !hasScore {
		return nil, core.NewDomainError(core.ModuleCatalog, core.ErrorCodeNotFound, "product "+name+" not found")
	}

	p := &core.Product{Name: name}
	if s, ok := row[fImage].(string); ok {
		p.Image = s
	}
	p.AvgScore, _ = conv.ToFloat64(row[fAvgScore])
	if s, ok := row[fCategories].(string); ok {
		p.Categories = conv.SplitList(s)
	}
	stock, _ := conv.ToFloat64(row[fStock])
	canSale := true
	if b, ok := row[fCanSale].(bool); ok {
		canSale = b
	}
	p.Properties = []core.ProductProperty{{CanSale: canSale, TotalStock: int(stock)}}
	return p, nil
}

var _ core.Catalog = (*FeastCatalog)(nil)
