package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SlpAus/style-off-backend/internal/platform/database"
)

// channelPrefix 是会话动作频道在Redis中的键名前缀。
const channelPrefix = "styleoff:session:"

// ChannelName 返回一个会话的发布/订阅频道名。
func ChannelName(sessionID string) string {
	return channelPrefix + sessionID + ":actions"
}

// Publish 将一条动作消息发布到指定会话的频道。
// 广播与持久层写入之间没有全局事务：消息可能先于或晚于数据库写入
// 对外可见，订阅端只应把它当作"需要重新拉取"的提示。
// 发布失败不应中断上层业务流程，由调用方决定是否仅记录日志。
func Publish(ctx context.Context, sessionID string, action *Action) error {
	if database.RDB == nil {
		return errors.New("Redis未初始化，无法发布会话动作")
	}

	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("无法序列化动作消息: %w", err)
	}

	if err := database.RDB.Publish(ctx, ChannelName(sessionID), data).Err(); err != nil {
		return fmt.Errorf("发布会话动作到Redis失败: %w", err)
	}
	return nil
}

// PublishOrLog 发布一条动作消息，失败时只打印告警。
// 用于那些广播属于尽力而为、不应导致主流程失败的场景。
func PublishOrLog(ctx context.Context, sessionID string, action *Action) {
	if err := Publish(ctx, sessionID, action); err != nil {
		fmt.Printf("警告: 会话 %s 的 %s 广播失败: %v\n", sessionID, action.Type, err)
	}
}
