package session

import (
	"time"

	"gorm.io/gorm"
)

// Status 定义了会话的生命周期状态枚举。
type Status string

const (
	// StatusWaiting 表示会话已创建，正在等待第二位参与者
	StatusWaiting Status = "waiting"
	// StatusActive 表示会话正在进行中
	StatusActive Status = "active"
	// StatusCompleted 表示所有回合已结束，会话正常完成
	StatusCompleted Status = "completed"
	// StatusTimeout 表示会话因等待超时或参与者中途离开而终止
	StatusTimeout Status = "timeout"
)

// CanTransitionTo 校验状态迁移是否满足单调性约束。
// 合法顺序为 waiting→active→{completed|timeout}，不允许任何回退。
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusWaiting:
		return next == StatusActive || next == StatusTimeout
	case StatusActive:
		return next == StatusCompleted || next == StatusTimeout
	default:
		// completed和timeout是终态
		return false
	}
}

// Finished 判断状态是否为终态。
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusTimeout
}

// Role 定义了参与者在会话中的角色。
type Role string

const (
	RoleA Role = "A"
	RoleB Role = "B"
)

// Session 定义了一场双人对战会话在数据库中的权威记录。
type Session struct {
	gorm.Model

	// SessionID 是会话对外的UUID标识
	SessionID string `gorm:"uniqueIndex;type:varchar(36);not null" json:"session_id"`

	// Status 是会话的当前状态，迁移受CanTransitionTo约束
	Status Status `gorm:"index;type:varchar(16)" json:"status"`

	// IsPrivate 标记会话是否只能凭邀请码加入
	IsPrivate bool `json:"is_private"`

	// InviteCode 是私密会话的自验证邀请码
	InviteCode string `gorm:"index;type:varchar(16)" json:"invite_code,omitempty"`

	// CurrentRound 是当前进行到的回合序号，未开局时为0
	CurrentRound int `json:"current_round"`

	// TotalRounds 是本场会话的回合总数
	TotalRounds int `json:"total_rounds"`

	// StartedAt 是会话转入active的时刻
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt 是会话进入终态的时刻
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// RevealProcessed 标记揭晓汇总是否已处理过，只允许false→true翻转一次
	RevealProcessed bool `json:"reveal_processed"`
}

// Participant 定义了会话参与者的权威记录。
// 每场会话最多两位非机器人参与者，角色互不相同。
type Participant struct {
	gorm.Model

	// SessionID 关联所属会话的UUID
	SessionID string `gorm:"index;uniqueIndex:idx_session_user;type:varchar(36);not null" json:"session_id"`

	// UserID 是参与者的用户UUID；机器人参与者使用bot:前缀的伪ID
	UserID string `gorm:"uniqueIndex:idx_session_user;type:varchar(40);not null" json:"user_id"`

	// Role 是参与者在会话中的角色(A/B)，同一会话内唯一
	Role Role `gorm:"type:varchar(4)" json:"role"`

	// AvatarName 是参与者的虚拟形象名称
	AvatarName string `json:"avatar_name"`

	// IsHost 标记参与者是否是会话的主持人（创建者）
	IsHost bool `json:"is_host"`

	// IsBot 标记该参与者是否是演示用的机器人
	IsBot bool `json:"is_bot"`

	// IsConnected 是在线状态注册表维护的连接标记
	IsConnected bool `json:"is_connected"`

	// LastSeenAt 是最近一次心跳的时刻
	LastSeenAt time.Time `json:"last_seen_at"`

	// CumulativeScore 是会话内的累计得分，单调不减
	CumulativeScore int `json:"cumulative_score"`
}

// Round 定义了会话中单个回合的权威记录。
type Round struct {
	gorm.Model

	// SessionID 关联所属会话的UUID
	SessionID string `gorm:"index;type:varchar(36);not null" json:"session_id"`

	// RoundNo 是回合序号，从1开始严格递增、无间隙
	RoundNo int `json:"round_no"`

	// Topic 是本回合的造型主题
	Topic string `json:"topic"`

	// TimeLimitSeconds 是设计阶段的时长限制
	TimeLimitSeconds int `json:"time_limit_seconds"`

	// StartedAt 是回合开始的时刻
	StartedAt time.Time `json:"started_at"`

	// EndedAt 是回合关闭的时刻；回合开放期间为空。
	// 每场会话同一时间至多存在一个开放回合。
	EndedAt *time.Time `json:"ended_at,omitempty"`
}

// IsOpen 判断回合是否仍处于开放状态。
func (r *Round) IsOpen() bool {
	return r.EndedAt == nil
}
