// Package conv 提供类型转换工具：配置 map 取值，以及抽取数据时对可空单元格的解析。
package conv

import (
	"fmt"
	"strconv"
	"strings"
)

// ToFloat64 将 any 转为 float64。
// 支持 float64、float32、int、int64、int32；bool 视为 1.0/0.0。
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case bool:
		if val {
			return 1.0, true
		}
		return 0.0, true
	default:
		return 0, false
	}
}

// ConfigGet 从 map[string]any（如 YAML 解析结果）按 key 取 T，取不到或类型不符时返回 defaultVal。
func ConfigGet[T any](m map[string]any, key string, defaultVal T) T {
	if m == nil {
		return defaultVal
	}
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	t, ok := v.(T)
	if !ok {
		return defaultVal
	}
	return t
}

// ConfigGetInt64 从 config 取 int64。YAML 常得到 int 或 float64，此处兼容并统一为 int64。
func ConfigGetInt64(m map[string]any, key string, defaultVal int64) int64 {
	if m == nil {
		return defaultVal
	}
	switch val := m[key].(type) {
	case int:
		return int64(val)
	case int64:
		return val
	case float64:
		return int64(val)
	case float32:
		return int64(val)
	default:
		return defaultVal
	}
}

// ConfigGetFloat64 从 config 取 float64，整数也可接受。
func ConfigGetFloat64(m map[string]any, key string, defaultVal float64) float64 {
	if m == nil {
		return defaultVal
	}
	if f, ok := ToFloat64(m[key]); ok {
		return f
	}
	return defaultVal
}

// SliceAnyToString 将 []any 转为 []string，数字格式化为 "%v"。
func SliceAnyToString(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
			continue
		}
		if f, ok := ToFloat64(e); ok {
			out = append(out, fmt.Sprintf("%v", f))
		}
	}
	return out
}

// IsNull 判断单元格是否表示空值（"", "nan", "None", "null"）。
func IsNull(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "none", "null", "nat":
		return true
	}
	return false
}

// ParseOptionalFloat 解析可空浮点数，空值返回 nil。
func ParseOptionalFloat(s string) (*float64, error) {
	if IsNull(s) {
		return nil, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("parse float %q: %w", s, err)
	}
	return &f, nil
}

// ParseOptionalInt 解析可空整数，"3.0" 这类导出格式也可接受。
func ParseOptionalInt(s string) (*int, error) {
	f, err := ParseOptionalFloat(s)
	if err != nil || f == nil {
		return nil, err
	}
	i := int(*f)
	return &i, nil
}

// ParseOptionalInt64 解析可空 int64 标识。
func ParseOptionalInt64(s string) (*int64, error) {
	if IsNull(s) {
		return nil, nil
	}
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parse int %q: %w", s, err)
	}
	i := int64(f)
	return &i, nil
}

// ParseOptionalBool 解析可空布尔值，支持 True/False/1/0。
func ParseOptionalBool(s string) (*bool, error) {
	if IsNull(s) {
		return nil, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parse bool %q: %w", s, err)
	}
	return &b, nil
}

// SplitList 按逗号切分列表并去除空白项。
func SplitList(s string) []string {
	if IsNull(s) {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FormatOptionalFloat 把可空浮点数格式化为单元格，nil 为空串。
func FormatOptionalFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
