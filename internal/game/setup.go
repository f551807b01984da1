package game

import (
	"fmt"

	"github.com/SlpAus/style-off-backend/internal/platform/config"
)

// gameCfg 是模块级的对局配置，由应用启动序列注入
var gameCfg config.GameConfig

// revealTrigger 是会话完成时的揭晓回调，由启动序列注册，
// 避免本包直接依赖揭晓模块。
var revealTrigger func(sessionID string)

// ConfigureModule 注入对局配置。必须在任何对局操作之前调用。
func ConfigureModule(cfg config.GameConfig) {
	gameCfg = cfg
	fmt.Println("对局模块配置完成。")
}

// SetRevealTrigger 注册会话完成时的揭晓回调。
func SetRevealTrigger(fn func(sessionID string)) {
	revealTrigger = fn
}

// triggerReveal 异步触发揭晓汇总。未注册回调时静默跳过。
func triggerReveal(sessionID string) {
	if revealTrigger == nil {
		return
	}
	go revealTrigger(sessionID)
}
