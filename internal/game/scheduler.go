package game

import (
	"fmt"
	"time"

	"github.com/SlpAus/style-off-backend/internal/broadcast"
	"github.com/SlpAus/style-off-backend/internal/platform/database"
	"github.com/SlpAus/style-off-backend/internal/presence"
	"github.com/SlpAus/style-off-backend/internal/session"
	"github.com/SlpAus/style-off-backend/pkg/lifecycle"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// StartScheduler 启动每秒一次的回合扫描。阶段推进由服务端时钟驱动，
// 即使双方客户端都掉线，到点的回合也会被关闭。
func StartScheduler(mgr *lifecycle.Manager) error {
	return mgr.Go("round-scheduler", func(h *lifecycle.Handle) {
		h.Tick(time.Second, sweepExpiredRounds)
	})
}

// sweepExpiredRounds 找出所有已过截止时间的开放回合并逐个推进。
// 推进与手动advance_round共用同一条加锁路径，重复触发是无害的空操作。
func sweepExpiredRounds() error {
	type openRound struct {
		SessionID        string
		RoundNo          int
		TimeLimitSeconds int
		StartedAt        time.Time
	}

	var rounds []openRound
	err := database.DB.Model(&session.Round{}).
		Select("rounds.session_id, rounds.round_no, rounds.time_limit_seconds, rounds.started_at").
		Joins("JOIN sessions ON sessions.session_id = rounds.session_id").
		Where("rounds.ended_at IS NULL AND sessions.status = ?", session.StatusActive).
		Scan(&rounds).Error
	if err != nil {
		return fmt.Errorf("扫描开放回合失败: %w", err)
	}

	now := time.Now()
	for _, r := range rounds {
		deadline := roundDeadline(&session.Round{
			TimeLimitSeconds: r.TimeLimitSeconds,
			StartedAt:        r.StartedAt,
		})
		if now.Before(deadline) {
			continue
		}
		if _, err := AdvanceRound(r.SessionID, "scheduler"); err != nil {
			fmt.Printf("调度器推进会话 %s 第 %d 回合失败: %v\n", r.SessionID, r.RoundNo, err)
		}
	}
	return nil
}

// NewCronSweeper 构建后台清理任务：
//   - 每分钟把超时未开局的waiting会话标记为timeout
//   - 配置了自动断线判定时，定期降级长时间无心跳的参与者
func NewCronSweeper() (*cron.Cron, error) {
	c := cron.New()

	if _, err := c.AddFunc("@every 1m", sweepStaleWaitingSessions); err != nil {
		return nil, fmt.Errorf("注册会话清理任务失败: %w", err)
	}

	if gameCfg.DisconnectAfterSeconds > 0 {
		silence := time.Duration(gameCfg.DisconnectAfterSeconds) * time.Second
		if _, err := c.AddFunc("@every 30s", func() {
			if n, err := presence.DemoteSilentParticipants(silence); err != nil {
				fmt.Printf("降级静默参与者失败: %v\n", err)
			} else if n > 0 {
				fmt.Printf("已把 %d 个静默参与者标记为断线\n", n)
			}
		}); err != nil {
			return nil, fmt.Errorf("注册断线判定任务失败: %w", err)
		}
	}

	return c, nil
}

// sweepStaleWaitingSessions 终止长时间无人加入的waiting会话。
func sweepStaleWaitingSessions() {
	cutoff := time.Now().Add(-time.Duration(gameCfg.SessionTimeoutMinutes) * time.Minute)

	var stale []session.Session
	err := database.DB.
		Where("status = ? AND created_at < ?", session.StatusWaiting, cutoff).
		Find(&stale).Error
	if err != nil {
		fmt.Printf("查询过期会话失败: %v\n", err)
		return
	}

	for i := range stale {
		s := &stale[i]
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			locked, err := session.FindBySessionIDForUpdate(tx, s.SessionID)
			if err != nil {
				return err
			}
			if locked.Status != session.StatusWaiting {
				return nil // 并发加入抢先了，放过这场
			}
			now := time.Now()
			locked.Status = session.StatusTimeout
			locked.CompletedAt = &now
			return tx.Save(locked).Error
		})
		if err != nil {
			fmt.Printf("终止过期会话 %s 失败: %v\n", s.SessionID, err)
			continue
		}
		if action, err := broadcast.NewAction(broadcast.ActionTimeout, broadcast.TimeoutPayload{Reason: "等待超时，无人加入"}, "server"); err == nil {
			broadcast.PublishOrLog(database.Ctx, s.SessionID, action)
		}
	}
}
