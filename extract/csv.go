package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pkg/conv"
)

// Columns 是扁平导出文件的表头
var Columns = []string{
	"order_id",
	"order_status",
	"user_id",
	"user_email",
	"product_name",
	"product_avg_score",
	"product_categories",
	"size",
	"color",
	"buy_price",
	"sell_price",
	"weight",
	"can_sale",
	"total_stock",
	"order_item_quantity",
	"user_rating",
	"rating_date",
}

// CSVSource 从导出文件读取扁平数据集。
//
// 按表头定位列，缺少的列与空值（"", nan, None）一律记为空；
// 单元格格式错误时只置空该字段并计数告警，不丢弃整行。
type CSVSource struct {
	Path     string
	Statuses []string
	Logger   zerolog.Logger
}

// NewCSVSource 创建只读取已支付/已送达订单的 CSV 数据源
func NewCSVSource(path string, logger zerolog.Logger) *CSVSource {
	return &CSVSource{
		Path:     path,
		Statuses: []string{core.OrderStatusPaid, core.OrderStatusDelivered},
		Logger:   logger.With().Str("component", "extract.csv").Logger(),
	}
}

func (s *CSVSource) Name() string { return "csv" }

func (s *CSVSource) Records(ctx context.Context) ([]core.Record, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, core.WrapDomainError(core.ModuleExtract, core.ErrorCodeNotFound, "dataset not found", err)
		}
		return nil, core.WrapDomainError(core.ModuleExtract, core.ErrorCodeUnavailable, "open dataset", err)
	}
	defer f.Close()

	records, warnings, err := ReadCSV(ctx, f)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleExtract, core.ErrorCodeInvalidInput, "read dataset", err)
	}
	if warnings > 0 {
		s.Logger.Warn().Int("cells", warnings).Str("path", s.Path).Msg("malformed cells recorded as empty")
	}
	return FilterStatus(records, s.Statuses...), nil
}

// ReadCSV 解析导出文件，返回记录与格式错误的单元格数
func ReadCSV(ctx context.Context, r io.Reader) ([]core.Record, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	if _, ok := idx["order_id"]; !ok {
		return nil, 0, errors.New("missing order_id column")
	}

	var (
		out      []core.Record
		warnings int
		line     = 1
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, warnings, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, warnings, err
			}
		}

		p := rowParser{row: row, idx: idx}
		orderID := p.int64Col("order_id")
		if orderID == nil {
			warnings++
			continue
		}
		rec := core.Record{
			OrderID:         *orderID,
			OrderStatus:     p.str("order_status"),
			UserID:          p.int64Col("user_id"),
			UserEmail:       p.str("user_email"),
			ProductName:     p.str("product_name"),
			ProductAvgScore: p.floatCol("product_avg_score"),
			Categories:      conv.SplitList(p.raw("product_categories")),
			Size:            p.str("size"),
			Color:           p.str("color"),
			BuyPrice:        p.floatCol("buy_price"),
			SellPrice:       p.floatCol("sell_price"),
			Weight:          p.floatCol("weight"),
			CanSale:         p.boolCol("can_sale"),
			TotalStock:      p.intCol("total_stock"),
			UserRating:      p.floatCol("user_rating"),
			RatingDate:      p.timeCol("rating_date"),
		}
		if q := p.intCol("order_item_quantity"); q != nil {
			rec.Quantity = *q
		}
		warnings += p.bad
		out = append(out, rec)
	}
	return out, warnings, nil
}

type rowParser struct {
	row []string
	idx map[string]int
	bad int
}

func (p *rowParser) raw(col string) string {
	i, ok := p.idx[col]
	if !ok || i >= len(p.row) {
		return ""
	}
	return p.row[i]
}

func (p *rowParser) str(col string) string {
	v := p.raw(col)
	if conv.IsNull(v) {
		return ""
	}
	return strings.TrimSpace(v)
}

func (p *rowParser) floatCol(col string) *float64 {
	v, err := conv.ParseOptionalFloat(p.raw(col))
	if err != nil {
		p.bad++
	}
	return v
}

func (p *rowParser) intCol(col string) *int {
	v, err := conv.ParseOptionalInt(p.raw(col))
	if err != nil {
		p.bad++
	}
	return v
}

func (p *rowParser) int64Col(col string) *int64 {
	v, err := conv.ParseOptionalInt64(p.raw(col))
	if err != nil {
		p.bad++
	}
	return v
}

func (p *rowParser) boolCol(col string) *bool {
	v, err := conv.ParseOptionalBool(p.raw(col))
	if err != nil {
		p.bad++
	}
	return v
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999-07:00", "2006-01-02 15:04:05", "2006-01-02"}

func (p *rowParser) timeCol(col string) *time.Time {
	v := p.raw(col)
	if conv.IsNull(v) {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
			return &t
		}
	}
	p.bad++
	return nil
}

// WriteCSV 按 Columns 写出记录
func WriteCSV(w io.Writer, records []core.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for i := range records {
		if err := cw.Write(formatRecord(&records[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatRecord(r *core.Record) []string {
	row := []string{
		strconv.FormatInt(r.OrderID, 10),
		r.OrderStatus,
		"",
		r.UserEmail,
		r.ProductName,
		conv.FormatOptionalFloat(r.ProductAvgScore),
		strings.Join(r.Categories, ","),
		r.Size,
		r.Color,
		conv.FormatOptionalFloat(r.BuyPrice),
		conv.FormatOptionalFloat(r.SellPrice),
		conv.FormatOptionalFloat(r.Weight),
		"",
		"",
		strconv.Itoa(r.Quantity),
		conv.FormatOptionalFloat(r.UserRating),
		"",
	}
	if r.UserID != nil {
		row[2] = strconv.FormatInt(*r.UserID, 10)
	}
	if r.CanSale != nil {
		row[12] = strconv.FormatBool(*r.CanSale)
	}
	if r.TotalStock != nil {
		row[13] = strconv.Itoa(*r.TotalStock)
	}
	if r.RatingDate != nil {
		row[16] = r.RatingDate.UTC().Format(time.RFC3339)
	}
	return row
}

// Export 把数据源全部记录写到 path，先写临时文件再重命名，读者不会看到半个文件。
func Export(ctx context.Context, src core.RecordSource, path string) (int, error) {
	records, err := src.Records(ctx)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*.csv")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, records); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("rename export: %w", err)
	}
	return len(records), nil
}
