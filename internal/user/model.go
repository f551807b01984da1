package user

import (
	"time"

	"gorm.io/gorm"
)

// User 定义了调用者身份在SQLite数据库中的持久化模型。
// 身份来自客户端Cookie中的UUID，同时充当限流与参赛者归属的依据。
type User struct {
	// UUID 是用户的主键，来自客户端Cookie。
	UUID string `gorm:"primarykey;type:varchar(36)"`

	// AvatarName 是为该用户随机分配的虚拟形象名称
	AvatarName string

	// SessionsPlayed 记录了用户参与过的会话总数
	SessionsPlayed int

	// 部分gorm.Model，由GORM自动管理
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}
