package design

import (
	"gorm.io/gorm"

	"github.com/SlpAus/style-off-backend/internal/session"
)

// StyleChoice 是一条造型选择，由类目和取值组成。
type StyleChoice struct {
	Category string `json:"category"`
	Value    string `json:"value"`
}

// StyleChoices 是有序的造型选择列表，整体以JSON形式持久化。
type StyleChoices []StyleChoice

// Submission 定义了一份造型作品在数据库中的权威记录。
// (RoundID, DesignerUserID, TargetRole) 上有唯一约束：同键的再次提交
// 是对既有记录的覆盖更新，绝不产生重复行。
type Submission struct {
	gorm.Model

	// SessionID 关联所属会话的UUID
	SessionID string `gorm:"index;type:varchar(36);not null" json:"session_id"`

	// RoundID 关联所属回合的主键
	RoundID uint `gorm:"uniqueIndex:idx_round_designer_target;not null" json:"round_id"`

	// DesignerUserID 是作品设计者的用户UUID
	DesignerUserID string `gorm:"uniqueIndex:idx_round_designer_target;type:varchar(40);not null" json:"designer_user_id"`

	// TargetRole 是作品装扮的目标角色
	TargetRole session.Role `gorm:"uniqueIndex:idx_round_designer_target;type:varchar(4);not null" json:"target_role"`

	// StyleChoices 是有序的造型选择列表
	StyleChoices StyleChoices `gorm:"serializer:json" json:"style_choices"`

	// ImageURL 是渲染图的外部地址，渲染由外部协作方完成
	ImageURL string `json:"image_url,omitempty"`

	// StylePoints 是派生的造型分，作为平票时的裁决信号
	StylePoints int `json:"style_points"`
}
