package presence

import (
	"fmt"
	"time"

	"github.com/SlpAus/style-off-backend/internal/platform/config"
	"github.com/SlpAus/style-off-backend/internal/platform/database"
	"github.com/SlpAus/style-off-backend/internal/session"
	"gorm.io/gorm"
)

// presenceCfg 只使用心跳间隔与断线判定两项配置
var presenceCfg config.GameConfig

// ConfigureModule 注入在线状态模块的配置。
func ConfigureModule(cfg config.GameConfig) {
	presenceCfg = cfg
}

// mirrorKey 是参与者在线状态在Redis中的镜像键。
// 镜像只服务于快速查询，SQLite中的LastSeenAt才是权威记录。
func mirrorKey(sessionID, userID string) string {
	return fmt.Sprintf("styleoff:presence:%s:%s", sessionID, userID)
}

// Heartbeat 刷新参与者的在线状态：更新权威的LastSeenAt，
// 并以心跳间隔三倍的TTL刷新Redis镜像。
func Heartbeat(sessionID, userID string) error {
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		p, err := session.FindParticipant(tx, sessionID, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return session.ErrSessionNotFound
		}
		p.IsConnected = true
		p.LastSeenAt = time.Now()
		if err := tx.Save(p).Error; err != nil {
			return fmt.Errorf("更新参与者心跳失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// 镜像写入失败只影响快速查询，不影响权威状态
	if database.RDB != nil {
		ttl := time.Duration(presenceCfg.HeartbeatSeconds*3) * time.Second
		if err := database.RDB.Set(database.Ctx, mirrorKey(sessionID, userID), time.Now().Unix(), ttl).Err(); err != nil {
			fmt.Printf("写入在线状态镜像失败: %v\n", err)
		}
	}
	return nil
}

// RemoveMirror 清除参与者的在线状态镜像，在离开会话时调用。
func RemoveMirror(sessionID, userID string) {
	if database.RDB == nil {
		return
	}
	if err := database.RDB.Del(database.Ctx, mirrorKey(sessionID, userID)).Err(); err != nil {
		fmt.Printf("清除在线状态镜像失败: %v\n", err)
	}
}

// DemoteSilentParticipants 把心跳静默超过给定时长的参与者标记为离线。
// 只改连接标记，不移除参与者，也不影响会话状态。
// 返回受影响的参与者数量。
func DemoteSilentParticipants(silence time.Duration) (int, error) {
	cutoff := time.Now().Add(-silence)

	result := database.DB.Model(&session.Participant{}).
		Where("is_connected = ? AND is_bot = ? AND last_seen_at < ?", true, false, cutoff).
		Where("session_id IN (?)", database.DB.Model(&session.Session{}).
			Select("session_id").
			Where("status IN ?", []session.Status{session.StatusWaiting, session.StatusActive})).
		Update("is_connected", false)
	if result.Error != nil {
		return 0, fmt.Errorf("降级静默参与者失败: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}
