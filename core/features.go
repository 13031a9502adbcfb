package core

// ContentColumns 是内容特征向量的列顺序，用户画像与商品向量共用。
var ContentColumns = []string{"profit_margin", "user_rating", "product_avg_score"}

// FeatureRow 是一条已补全、已标准化的订单行。
type FeatureRow struct {
	UserID  *int64
	Product string
	Values  []float64 // 标准化后的值，顺序同 ContentColumns
	Rating  float64   // 补全后的原始评分
}

// ProductVector 是商品的内容向量，取该商品在数据集中首次出现的行。
type ProductVector struct {
	Product    string
	Values     []float64
	Categories []string
	OneHot     []float64 // 对应 FeatureData.Categories
}

// FeatureData 是单次推荐运行的全部中间状态，每次调用重新构建，不跨调用共享。
type FeatureData struct {
	Rows       []FeatureRow
	Products   []ProductVector
	Categories []string
	Matrix     *RatingMatrix
}

// UserRows 返回指定用户的所有行
func (d *FeatureData) UserRows(userID int64) []FeatureRow {
	var out []FeatureRow
	for _, r := range d.Rows {
		if r.UserID != nil && *r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

// RatingMatrix 是用户 × 商品评分矩阵，未评分位置为 0。
type RatingMatrix struct {
	Users    []int64
	Products []string
	Values   [][]float64

	userIndex    map[int64]int
	productIndex map[string]int
}

// NewRatingMatrix 按给定的用户与商品顺序创建全 0 矩阵
func NewRatingMatrix(users []int64, products []string) *RatingMatrix {
	m := &RatingMatrix{
		Users:        users,
		Products:     products,
		Values:       make([][]float64, len(users)),
		userIndex:    make(map[int64]int, len(users)),
		productIndex: make(map[string]int, len(products)),
	}
	for i, u := range users {
		m.userIndex[u] = i
		m.Values[i] = make([]float64, len(products))
	}
	for j, p := range products {
		m.productIndex[p] = j
	}
	return m
}

// Set 写入一个评分，用户或商品不存在时忽略
func (m *RatingMatrix) Set(userID int64, product string, v float64) {
	i, ok := m.userIndex[userID]
	if !ok {
		return
	}
	j, ok := m.productIndex[product]
	if !ok {
		return
	}
	m.Values[i][j] = v
}

// Row 返回用户所在行及其下标
func (m *RatingMatrix) Row(userID int64) ([]float64, int, bool) {
	i, ok := m.userIndex[userID]
	if !ok {
		return nil, -1, false
	}
	return m.Values[i], i, true
}

// At 返回 (user, product) 的评分
func (m *RatingMatrix) At(userID int64, product string) float64 {
	i, ok := m.userIndex[userID]
	if !ok {
		return 0
	}
	j, ok := m.productIndex[product]
	if !ok {
		return 0
	}
	return m.Values[i][j]
}
