package user

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/SlpAus/style-off-backend/internal/platform/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// avatarNames 是分配给新用户的备选虚拟形象名称。
var avatarNames = []string{
	"晨雾灵狐", "霓虹水母", "星尘貘", "琉璃鹿", "墨羽鸦",
	"绯红锦鲤", "雪顶企鹅", "碧波海獭", "鎏金穿山甲", "暮色猫头鹰",
}

// CreateProvisionalUser 生成一个临时的、尚未持久化的新用户UUID。
// 这个UUID将被设置到cookie中，但此时尚未被“认证”。
func CreateProvisionalUser() (string, error) {
	newUUID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("无法生成UUID v7: %w", err)
	}
	return newUUID.String(), nil
}

// IsValidUUID 检查一个字符串是否是格式合法的UUID。
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// IsUserActivated 检查一个给定的UUID是否已经被认证（即存在于我们的持久化系统中）。
// 它只查询Redis缓存，以获得最高性能。
func IsUserActivated(uuidStr string) (bool, error) {
	if uuidStr == "" {
		return false, nil
	}
	exists, err := database.RDB.SIsMember(database.Ctx, KnownUsersKey, uuidStr).Result()
	if err != nil {
		return false, fmt.Errorf("检查Redis用户缓存时出错: %w", err)
	}
	return exists, nil
}

// ActivateUser 将一个临时的UUID正式持久化到数据库和缓存中。
// 这个操作是原子性的，如果缓存写入失败，数据库写入将被回滚。
func ActivateUser(uuidStr string) error {
	// 首先检查该用户是否已经被激活，避免重复写入
	activated, err := IsUserActivated(uuidStr)
	if err != nil {
		return err
	}
	if activated {
		return nil // 用户已存在，无需操作
	}

	// 开启一个SQLite事务
	tx := database.DB.Begin()
	if tx.Error != nil {
		return fmt.Errorf("无法开始数据库事务: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback() // 如果发生panic，回滚事务
		}
	}()

	// 在事务中创建数据库记录，顺带分配一个虚拟形象名称
	newUser := User{UUID: uuidStr, AvatarName: RandomAvatarName()}
	if err := tx.Create(&newUser).Error; err != nil {
		tx.Rollback()
		// 如果是因为记录已存在而出错，这不是一个真正的错误
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return fmt.Errorf("无法在SQLite中创建新用户: %w", err)
	}

	// 尝试将新UUID添加到Redis缓存中
	if err := database.RDB.SAdd(database.Ctx, KnownUsersKey, uuidStr).Err(); err != nil {
		// 如果Redis写入失败，回滚SQLite的写入，保证数据一致性
		tx.Rollback()
		return fmt.Errorf("无法将新用户 %s 添加到Redis缓存: %w", uuidStr, err)
	}

	// 所有操作都成功，提交事务
	return tx.Commit().Error
}

// GetAvatarName 返回一个用户的虚拟形象名称，用户不存在时返回空串。
func GetAvatarName(uuidStr string) string {
	var u User
	if err := database.DB.Select("avatar_name").Where("uuid = ?", uuidStr).First(&u).Error; err != nil {
		return ""
	}
	return u.AvatarName
}

// RandomAvatarName 从备选名称中随机挑选一个。
func RandomAvatarName() string {
	return avatarNames[rand.Intn(len(avatarNames))]
}
