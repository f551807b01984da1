package design

import (
	"fmt"

	"github.com/SlpAus/style-off-backend/internal/platform/database"
)

// PrimeCachedDB 是design模块的初始化总入口，负责迁移表结构。
func PrimeCachedDB() error {
	if err := database.DB.AutoMigrate(&Submission{}); err != nil {
		return fmt.Errorf("无法迁移submission表: %w", err)
	}
	fmt.Println("Submission数据库表迁移成功。")
	return nil
}
