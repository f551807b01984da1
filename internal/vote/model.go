package vote

import (
	"gorm.io/gorm"
)

// Choice 定义了投票选择的枚举类型。
type Choice string

const (
	// ChoiceA 表示投给角色A的作品
	ChoiceA Choice = "A"
	// ChoiceB 表示投给角色B的作品
	ChoiceB Choice = "B"
	// ChoiceTie 表示认为双方平分秋色
	ChoiceTie Choice = "tie"
)

// Valid 判断投票选择是否合法。
func (c Choice) Valid() bool {
	switch c {
	case ChoiceA, ChoiceB, ChoiceTie:
		return true
	}
	return false
}

// Reaction 定义了可选的表情回应类型。
type Reaction string

const (
	ReactionHeart    Reaction = "heart"
	ReactionFire     Reaction = "fire"
	ReactionLaugh    Reaction = "laugh"
	ReactionSurprise Reaction = "surprise"
)

// Valid 判断表情回应是否合法。空值表示未附带回应，同样视为合法。
func (r Reaction) Valid() bool {
	switch r {
	case "", ReactionHeart, ReactionFire, ReactionLaugh, ReactionSurprise:
		return true
	}
	return false
}

// Vote 定义了单条投票/回应记录的数据结构。
// 简化模型下每个用户在一场会话中至多持有一条记录，
// (SessionID, VoterUserID) 上的唯一约束保证后到的投票覆盖先前的。
type Vote struct {
	gorm.Model

	// SessionID 关联所属会话的UUID
	SessionID string `gorm:"index;uniqueIndex:idx_session_voter;type:varchar(36);not null" json:"session_id"`

	// VoterUserID 是投票者的用户UUID
	VoterUserID string `gorm:"uniqueIndex:idx_session_voter;type:varchar(40);not null" json:"voter_user_id"`

	// RoundID 记录投票发生时的开放回合，用于按回合统计
	RoundID uint `gorm:"index" json:"round_id"`

	// Choice 是投票选择
	Choice Choice `gorm:"type:varchar(4)" json:"choice"`

	// Reaction 是可选的表情回应
	Reaction Reaction `gorm:"type:varchar(12)" json:"reaction,omitempty"`
}
