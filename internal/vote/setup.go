package vote

import (
	"fmt"

	"github.com/SlpAus/style-off-backend/internal/platform/database"
)

// PrimeCachedDB 是vote模块的初始化总入口，负责迁移表结构。
func PrimeCachedDB() error {
	if err := database.DB.AutoMigrate(&Vote{}); err != nil {
		return fmt.Errorf("无法迁移vote表: %w", err)
	}
	fmt.Println("Vote数据库表迁移成功。")
	return nil
}
