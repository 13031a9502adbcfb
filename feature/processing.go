package feature

import "math"

// ZScoreScaler 按列做 Z-score 标准化
// 公式: z = (x - μ) / σ，σ 取总体标准差
// σ 为 0 的列（所有值相同）只做去均值，避免除零
type ZScoreScaler struct {
	Mean []float64 // 每列均值
	Std  []float64 // 每列总体标准差
}

// FitZScore 用给定的行拟合标准化参数，所有行的列数必须一致
func FitZScore(rows [][]float64) *ZScoreScaler {
	if len(rows) == 0 {
		return &ZScoreScaler{}
	}
	cols := len(rows[0])
	s := &ZScoreScaler{
		Mean: make([]float64, cols),
		Std:  make([]float64, cols),
	}
	n := float64(len(rows))
	for _, row := range rows {
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}
	for _, row := range rows {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Std[j] += d * d
		}
	}
	for j := range s.Std {
		s.Std[j] = math.Sqrt(s.Std[j] / n)
	}
	return s
}

// Transform 标准化一行，返回新切片
func (s *ZScoreScaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = s.TransformValue(j, v)
	}
	return out
}

// TransformValue 标准化第 col 列的单个值
func (s *ZScoreScaler) TransformValue(col int, value float64) float64 {
	if col >= len(s.Mean) {
		return value
	}
	if s.Std[col] > 0 {
		return (value - s.Mean[col]) / s.Std[col]
	}
	return value - s.Mean[col]
}

// ProfitMargin 计算利润率 (sell - buy) / buy
// 进价缺失或为 0 时返回 0；售价缺失视为 0 利润
func ProfitMargin(buy, sell *float64) float64 {
	if buy == nil || *buy == 0 || sell == nil {
		return 0
	}
	return (*sell - *buy) / *buy
}
