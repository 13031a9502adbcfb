package core

import "time"

// 推荐来源
const (
	SourceContent       = "content"
	SourceCollaborative = "collaborative"
)

// Recommendation 是混合推荐输出的一条结果。
type Recommendation struct {
	ProductName string  `json:"product_name"`
	Image       string  `json:"image"`
	AvgScore    float64 `json:"avg_score"`
	Score       float64 `json:"score"`
	Source      string  `json:"source"`
}

// Metadata 记录本次推荐的融合权重及原因。
type Metadata struct {
	UserOrderCount int     `json:"user_order_count"`
	Alpha          float64 `json:"alpha"`
	Beta           float64 `json:"beta"`
	Reason         string  `json:"reason"`
}

// BlendWeights 是内容（Alpha）与协同（Beta）的融合权重。
type BlendWeights struct {
	Alpha  float64
	Beta   float64
	Reason string
}

// RecommendationSnapshot 是每个用户的缓存结果，一个用户一份（upsert）。
type RecommendationSnapshot struct {
	UserID          int64            `json:"user_id"`
	Recommendations []Recommendation `json:"recommendations"`
	Metadata        Metadata         `json:"metadata"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Fresh 判断快照在 now 时刻是否仍在新鲜窗口内
func (s *RecommendationSnapshot) Fresh(now time.Time, window time.Duration) bool {
	return now.Sub(s.UpdatedAt) < window
}

// Outcome 是批处理中单个用户的成功/失败结果。
type Outcome struct {
	Email   string `json:"email"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Count   int    `json:"count"`
}
