package reveal

import (
	"time"

	"github.com/SlpAus/style-off-backend/internal/design"
)

// DesignReveal 是揭晓快照中一份作品的展示形态。
type DesignReveal struct {
	DesignerUserID string              `json:"designer_user_id"`
	DesignerAvatar string              `json:"designer_avatar"`
	TargetRole     string              `json:"target_role"`
	StyleChoices   design.StyleChoices `json:"style_choices"`
	StylePoints    int                 `json:"style_points"`
	ImageURL       string              `json:"image_url,omitempty"`
	SubmittedAt    time.Time           `json:"submitted_at"`
}

// RoundReveal 是单个回合的揭晓结果。
type RoundReveal struct {
	RoundNo      int            `json:"round_no"`
	Topic        string         `json:"topic"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
	Designs      []DesignReveal `json:"designs"`
	VoteCounts   map[string]int `json:"vote_counts"`
	WinnerUserID string         `json:"winner_user_id,omitempty"`
}

// Analytics 是附加的汇总统计，只在调用者要求时计算。
type Analytics struct {
	TotalDesigns int `json:"total_designs"`
	// DesignsByRole 按目标角色统计作品数量
	DesignsByRole map[string]int `json:"designs_by_role"`
	// AvgResponseSeconds 是从回合开始到作品提交的平均耗时
	AvgResponseSeconds float64 `json:"avg_response_seconds"`
	// ReactionCounts 按表情类型统计回应数量
	ReactionCounts map[string]int `json:"reaction_counts"`
}

// Payload 是一场会话的完整揭晓快照，整体序列化后进入缓存。
type Payload struct {
	SessionID           string         `json:"session_id"`
	Status              string         `json:"status"`
	GeneratedAt         time.Time      `json:"generated_at"`
	FinalScores         map[string]int `json:"final_scores"`
	SessionWinnerUserID string         `json:"session_winner_user_id,omitempty"`
	Rounds              []RoundReveal  `json:"rounds"`
	Analytics           *Analytics     `json:"analytics,omitempty"`
}

// Result 是一次揭晓查询的返回：序列化后的快照加上缓存元信息。
type Result struct {
	Payload []byte
	ETag    string
	// FromCache 标记本次返回是否命中缓存
	FromCache bool
	// ExpiresAt 是缓存条目的过期时间
	ExpiresAt time.Time
}

// Options 控制一次揭晓查询的行为。
type Options struct {
	// ForceRefresh 为true时跳过缓存读取，强制重新计算
	ForceRefresh bool
	// IncludeAnalytics 为true时附带汇总统计
	IncludeAnalytics bool
	// RoundNo 非0时只返回指定回合
	RoundNo int
}
