package reveal

import (
	"fmt"

	"github.com/SlpAus/style-off-backend/internal/platform/config"
	"github.com/SlpAus/style-off-backend/pkg/kvstore"
)

// defaultService 是应用级的揭晓服务实例，由启动序列初始化
var defaultService *Service

// InitializeModule 以默认的内存缓存和数据库数据源构建揭晓服务。
func InitializeModule(cfg config.RevealConfig) *Service {
	cache := kvstore.NewMemoryStore(cfg.CacheCapacity)
	defaultService = NewService(cfg, cache, NewGormSource())
	fmt.Println("揭晓模块初始化完成。")
	return defaultService
}

// DefaultService 返回应用级的揭晓服务实例。
func DefaultService() *Service {
	return defaultService
}

// TriggerForSession 是注册给对局模块的揭晓回调：
// 会话完成后异步预热揭晓缓存并广播REVEALS_READY。
func TriggerForSession(sessionID string) {
	if defaultService == nil {
		return
	}
	if _, _, err := defaultService.ProcessReveal(sessionID); err != nil {
		fmt.Printf("会话 %s 的揭晓处理失败: %v\n", sessionID, err)
	}
}
