package startup

import (
	"fmt"

	"github.com/SlpAus/style-off-backend/internal/design"
	"github.com/SlpAus/style-off-backend/internal/game"
	"github.com/SlpAus/style-off-backend/internal/platform/config"
	"github.com/SlpAus/style-off-backend/internal/presence"
	"github.com/SlpAus/style-off-backend/internal/reveal"
	"github.com/SlpAus/style-off-backend/internal/session"
	"github.com/SlpAus/style-off-backend/internal/user"
	"github.com/SlpAus/style-off-backend/internal/vote"
)

// InitializeApplication 是应用首次启动时执行的总入口。
// 按依赖顺序完成各模块的建表、缓存预热与配置注入。
func InitializeApplication(cfg *config.Config) error {
	fmt.Println("开始应用首次初始化...")

	// 1. 各模块的数据库迁移与缓存预热
	if err := user.PrimeCachedDB(); err != nil {
		return err
	}
	if err := session.PrimeCachedDB(); err != nil {
		return err
	}
	if err := design.PrimeCachedDB(); err != nil {
		return err
	}
	if err := vote.PrimeCachedDB(); err != nil {
		return err
	}

	// 2. 注入模块配置
	game.ConfigureModule(cfg.Game)
	presence.ConfigureModule(cfg.Game)
	reveal.InitializeModule(cfg.Reveal)

	// 3. 注册跨模块回调：会话完成后触发揭晓处理
	game.SetRevealTrigger(reveal.TriggerForSession)

	fmt.Println("应用初始化完成！")
	return nil
}
