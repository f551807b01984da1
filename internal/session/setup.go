package session

import (
	"fmt"

	"github.com/SlpAus/style-off-backend/internal/platform/database"
)

// PrimeCachedDB 是session模块的初始化总入口，负责迁移表结构。
func PrimeCachedDB() error {
	if err := database.DB.AutoMigrate(&Session{}, &Participant{}, &Round{}); err != nil {
		return fmt.Errorf("无法迁移session相关表: %w", err)
	}
	fmt.Println("Session数据库表迁移成功。")
	return nil
}
