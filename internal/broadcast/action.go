package broadcast

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType 是会话频道上动作消息的封闭类型集合。
// 新增动作种类必须同时扩展这里的常量、knownActionTypes和各订阅端的
// switch分支，保证是一次编译期可检查的修改。
type ActionType string

const (
	ActionStartGame    ActionType = "START_GAME"
	ActionEndRound     ActionType = "END_ROUND"
	ActionUpdateScore  ActionType = "UPDATE_SCORE"
	ActionPlayerJoin   ActionType = "PLAYER_JOIN"
	ActionPlayerLeave  ActionType = "PLAYER_LEAVE"
	ActionTimeout      ActionType = "TIMEOUT"
	ActionRevealsReady ActionType = "REVEALS_READY"
)

// Valid 判断动作类型是否属于封闭集合。
func (t ActionType) Valid() bool {
	switch t {
	case ActionStartGame, ActionEndRound, ActionUpdateScore,
		ActionPlayerJoin, ActionPlayerLeave, ActionTimeout, ActionRevealsReady:
		return true
	}
	return false
}

// Action 是会话频道承载的结构化动作消息。
// 投递语义为至多一次，除单个发布者内部的顺序外没有全局顺序保证；
// 订阅端必须按消息类型实现幂等的归约逻辑（如UPDATE_SCORE是置位而非累加），
// 离线期间错过広播的客户端应通过全量状态拉取来补齐。
type Action struct {
	Type      ActionType      `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	ActorID   string          `json:"actor_id"`
}

// --- 各动作类型的载荷定义 ---

// StartGamePayload 在会话转入active时广播，携带首回合信息。
type StartGamePayload struct {
	SessionID        string `json:"session_id"`
	CurrentRound     int    `json:"current_round"`
	RoundID          uint   `json:"round_id"`
	Topic            string `json:"topic"`
	TimeLimitSeconds int    `json:"time_limit_seconds"`
}

// EndRoundPayload 在回合关闭时广播；若打开了下一回合则一并携带。
type EndRoundPayload struct {
	RoundID       uint   `json:"round_id"`
	RoundNo       int    `json:"round_no"`
	WinnerUserID  string `json:"winner_user_id,omitempty"`
	SessionStatus string `json:"session_status"`
	NextRoundID   uint   `json:"next_round_id,omitempty"`
	NextRoundNo   int    `json:"next_round_no,omitempty"`
	NextTopic     string `json:"next_topic,omitempty"`
}

// UpdateScorePayload 携带所有参与者的绝对累计分。
// 使用置位语义，重复或乱序投递不会破坏订阅端状态。
type UpdateScorePayload struct {
	Scores map[string]int `json:"scores"`
}

// PlayerJoinPayload 在参与者加入时广播。
type PlayerJoinPayload struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	AvatarName string `json:"avatar_name"`
}

// PlayerLeavePayload 在参与者显式离开时广播。
type PlayerLeavePayload struct {
	UserID string `json:"user_id"`
}

// TimeoutPayload 在会话被判定超时时广播。
type TimeoutPayload struct {
	Reason string `json:"reason"`
}

// RevealsReadyPayload 在揭晓汇总完成后广播，提示客户端拉取揭晓结果。
type RevealsReadyPayload struct {
	SessionID string `json:"session_id"`
	// ETag 是新鲜揭晓快照的校验标签，客户端可直接带上条件请求
	ETag string `json:"etag,omitempty"`
}

// NewAction 构造一条动作消息，载荷会被序列化为JSON。
func NewAction(actionType ActionType, payload interface{}, actorID string) (*Action, error) {
	if !actionType.Valid() {
		return nil, fmt.Errorf("未知的动作类型: %s", actionType)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("无法序列化动作载荷: %w", err)
	}
	return &Action{
		Type:      actionType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
		ActorID:   actorID,
	}, nil
}
