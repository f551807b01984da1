package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/SlpAus/style-off-backend/internal/broadcast"
	"github.com/SlpAus/style-off-backend/internal/design"
	"github.com/SlpAus/style-off-backend/internal/platform/database"
	"github.com/SlpAus/style-off-backend/internal/presence"
	"github.com/SlpAus/style-off-backend/internal/session"
	"github.com/SlpAus/style-off-backend/internal/user"
	"github.com/SlpAus/style-off-backend/internal/vote"
	"github.com/SlpAus/style-off-backend/pkg/token"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNoMatchFound 表示没有可加入的等待中会话且调用者选择不新建
	ErrNoMatchFound = errors.New("没有可加入的会话")
	// ErrInvalidInvite 表示邀请码无效或对应的会话不可加入
	ErrInvalidInvite = errors.New("邀请码无效")
	// ErrNotHost 表示调用者不是会话的主持人
	ErrNotHost = errors.New("只有主持人可以执行此操作")
	// ErrNotParticipant 表示调用者不是会话的参与者
	ErrNotParticipant = errors.New("调用者不是本场会话的参与者")
	// ErrSessionNotActive 表示会话尚未进入active状态
	ErrSessionNotActive = errors.New("会话尚未开始")
	// ErrSessionFinished 表示会话已进入终态
	ErrSessionFinished = errors.New("会话已结束")
)

// JoinParams 是加入对战的入参。
type JoinParams struct {
	UserID string
	// InviteCode 非空时凭邀请码加入私密会话
	InviteCode string
	// CreatePrivate 为true时新建一场私密会话并返回邀请码
	CreatePrivate bool
	// CreateIfMissing 为false时，匹配不到等待中会话直接失败而不新建
	CreateIfMissing bool
}

// JoinResult 是加入对战的出参。
type JoinResult struct {
	SessionID  string         `json:"session_id"`
	Role       session.Role   `json:"role"`
	AvatarName string         `json:"avatar_name"`
	Status     session.Status `json:"status"`
	InviteCode string         `json:"invite_code,omitempty"`
	IsHost     bool           `json:"is_host"`
}

// Join 把调用者分配到一场会话：凭邀请码加入私密会话，或匹配进
// 最早等待中的公开会话，或新建一场。第二个角色补齐时会话自动转入active。
func Join(params JoinParams) (*JoinResult, error) {
	avatarName := user.GetAvatarName(params.UserID)
	if avatarName == "" {
		avatarName = user.RandomAvatarName()
	}

	var result *JoinResult
	var startedInfo *activationInfo
	var joinedSessionID string

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		// 1. 幂等重入：用户已身处未结束的会话时直接返回该会话
		if existing, err := findOngoingParticipation(tx, params.UserID); err != nil {
			return err
		} else if existing != nil {
			result = existing
			return nil
		}

		// 2. 选择目标会话
		var target *session.Session
		switch {
		case params.InviteCode != "":
			if !token.ValidateInviteCode(params.InviteCode) {
				return ErrInvalidInvite
			}
			s, err := session.FindJoinableByInviteCode(tx, params.InviteCode)
			if err != nil {
				if errors.Is(err, session.ErrSessionNotFound) {
					return ErrInvalidInvite
				}
				return err
			}
			target = s

		case params.CreatePrivate:
			s, err := createSession(tx, true)
			if err != nil {
				return err
			}
			target = s

		default:
			s, err := session.FindOldestPublicWaiting(tx, params.UserID)
			if err != nil {
				if !errors.Is(err, session.ErrSessionNotFound) {
					return err
				}
				if !params.CreateIfMissing {
					return ErrNoMatchFound
				}
				s, err = createSession(tx, false)
				if err != nil {
					return err
				}
			}
			target = s
		}

		// 3. 以空闲角色加入目标会话
		joined, err := joinAsFreeRole(tx, target, params.UserID, avatarName)
		if err != nil {
			return err
		}
		joinedSessionID = target.SessionID

		// 4. 两个角色都已就位时，会话转入active并开启首回合
		participants, err := session.ParticipantsOf(tx, target.SessionID)
		if err != nil {
			return err
		}
		if len(participants) >= 2 && target.Status == session.StatusWaiting {
			info, err := activateSession(tx, target)
			if err != nil {
				return err
			}
			startedInfo = info
		}

		result = &JoinResult{
			SessionID:  target.SessionID,
			Role:       joined.Role,
			AvatarName: joined.AvatarName,
			Status:     target.Status,
			IsHost:     joined.IsHost,
		}
		if joined.IsHost && target.IsPrivate {
			result.InviteCode = target.InviteCode
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 5. 事务提交后再广播，广播只是"请重新拉取"的提示
	if joinedSessionID != "" {
		if action, err := broadcast.NewAction(broadcast.ActionPlayerJoin, broadcast.PlayerJoinPayload{
			UserID:     params.UserID,
			Role:       string(result.Role),
			AvatarName: result.AvatarName,
		}, params.UserID); err == nil {
			broadcast.PublishOrLog(database.Ctx, joinedSessionID, action)
		}
	}
	if startedInfo != nil {
		broadcastStartGame(startedInfo, params.UserID)
	}
	return result, nil
}

// StartGame 由主持人手动开局。只有一位参与者时会补入一个演示机器人。
// 会话已是active时是幂等的空操作。
func StartGame(sessionID, userID string) error {
	var startedInfo *activationInfo
	var botJoin *broadcast.PlayerJoinPayload

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		s, err := session.FindBySessionIDForUpdate(tx, sessionID)
		if err != nil {
			return err
		}
		if s.Status == session.StatusActive {
			return nil // 已开局，幂等返回
		}
		if s.Status.Finished() {
			return ErrSessionFinished
		}

		caller, err := session.FindParticipant(tx, sessionID, userID)
		if err != nil {
			return err
		}
		if caller == nil {
			return ErrNotParticipant
		}
		if !caller.IsHost {
			return ErrNotHost
		}

		// 只有主持人一人时，补入一个演示机器人占据空闲角色
		participants, err := session.ParticipantsOf(tx, sessionID)
		if err != nil {
			return err
		}
		if len(participants) < 2 {
			botID := "bot:" + uuid.NewString()[:8]
			bot, err := joinAsFreeRole(tx, s, botID, user.RandomAvatarName())
			if err != nil {
				return err
			}
			bot.IsBot = true
			bot.IsConnected = true
			if err := tx.Save(bot).Error; err != nil {
				return fmt.Errorf("标记机器人参与者失败: %w", err)
			}
			botJoin = &broadcast.PlayerJoinPayload{
				UserID:     bot.UserID,
				Role:       string(bot.Role),
				AvatarName: bot.AvatarName,
			}
		}

		info, err := activateSession(tx, s)
		if err != nil {
			return err
		}
		startedInfo = info
		return nil
	})
	if err != nil {
		return err
	}

	if botJoin != nil {
		if action, err := broadcast.NewAction(broadcast.ActionPlayerJoin, *botJoin, "server"); err == nil {
			broadcast.PublishOrLog(database.Ctx, sessionID, action)
		}
	}
	if startedInfo != nil {
		broadcastStartGame(startedInfo, userID)
	}
	return nil
}

// AdvanceResult 描述一次推进操作的结果。
type AdvanceResult struct {
	// Advanced 标记本次调用是否真的改变了状态
	Advanced bool `json:"advanced"`
	// Completed 标记会话是否随本次推进进入completed
	Completed bool `json:"completed"`
	// ClosedRoundNo 是被关闭回合的序号
	ClosedRoundNo int `json:"closed_round_no,omitempty"`
	// WinnerUserID 是被关闭回合的获胜者
	WinnerUserID string `json:"winner_user_id,omitempty"`
	// NextRound 是新开启的回合（若有）
	NextRound *session.Round `json:"next_round,omitempty"`
}

// AdvanceRound 关闭当前开放回合并计票：还有剩余回合时开启下一回合，
// 否则把会话标记为completed并触发揭晓汇总。
// 对已结束的会话是幂等的空操作，而不是错误。
func AdvanceRound(sessionID, actorID string) (*AdvanceResult, error) {
	result := &AdvanceResult{}
	var scores map[string]int
	var endPayload *broadcast.EndRoundPayload

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		// 1. 锁定会话行，保证状态迁移的单调性
		s, err := session.FindBySessionIDForUpdate(tx, sessionID)
		if err != nil {
			return err
		}
		if s.Status.Finished() {
			return nil // 终态下推进是空操作
		}
		if s.Status == session.StatusWaiting {
			return ErrSessionNotActive
		}

		open, err := session.OpenRoundOf(tx, sessionID)
		if err != nil {
			return err
		}
		if open == nil {
			return nil // 没有开放回合可关闭
		}

		// 2. 关闭当前回合
		now := time.Now()
		open.EndedAt = &now
		if err := tx.Save(open).Error; err != nil {
			return fmt.Errorf("关闭回合失败: %w", err)
		}
		result.Advanced = true
		result.ClosedRoundNo = open.RoundNo

		// 3. 计票并给获胜者加分
		submissions, err := design.ForRound(tx, open.ID)
		if err != nil {
			return err
		}
		votes, err := vote.ForRound(tx, open.ID)
		if err != nil {
			return err
		}
		tally := vote.ResolveRound(submissions, votes)
		if tally.WinnerUserID != "" {
			winner, err := session.FindParticipant(tx, sessionID, tally.WinnerUserID)
			if err != nil {
				return err
			}
			if winner != nil {
				winner.CumulativeScore += gameCfg.WinnerScoreIncrement
				if err := tx.Save(winner).Error; err != nil {
					return fmt.Errorf("更新获胜者得分失败: %w", err)
				}
			}
			result.WinnerUserID = tally.WinnerUserID
		}

		// 4. 收集绝对分数，供置位语义的UPDATE_SCORE广播使用
		participants, err := session.ParticipantsOf(tx, sessionID)
		if err != nil {
			return err
		}
		scores = make(map[string]int, len(participants))
		for _, p := range participants {
			scores[p.UserID] = p.CumulativeScore
		}

		// 5. 开启下一回合或完成会话
		endPayload = &broadcast.EndRoundPayload{
			RoundID:      open.ID,
			RoundNo:      open.RoundNo,
			WinnerUserID: result.WinnerUserID,
		}
		if open.RoundNo < s.TotalRounds {
			next, err := openNextRound(tx, s, open.RoundNo+1)
			if err != nil {
				return err
			}
			result.NextRound = next
			endPayload.NextRoundID = next.ID
			endPayload.NextRoundNo = next.RoundNo
			endPayload.NextTopic = next.Topic
			endPayload.SessionStatus = string(session.StatusActive)
			return nil
		}

		if !s.Status.CanTransitionTo(session.StatusCompleted) {
			return fmt.Errorf("会话 %s 无法从 %s 迁移到 completed", sessionID, s.Status)
		}
		s.Status = session.StatusCompleted
		s.CompletedAt = &now
		if err := tx.Save(s).Error; err != nil {
			return fmt.Errorf("完成会话失败: %w", err)
		}
		result.Completed = true
		endPayload.SessionStatus = string(session.StatusCompleted)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 6. 事务提交后广播；完成时异步触发揭晓汇总
	if result.Advanced {
		if action, err := broadcast.NewAction(broadcast.ActionUpdateScore, broadcast.UpdateScorePayload{Scores: scores}, actorID); err == nil {
			broadcast.PublishOrLog(database.Ctx, sessionID, action)
		}
		if action, err := broadcast.NewAction(broadcast.ActionEndRound, *endPayload, actorID); err == nil {
			broadcast.PublishOrLog(database.Ctx, sessionID, action)
		}
	}
	if result.Completed {
		triggerReveal(sessionID)
	}
	return result, nil
}

// LeaveGame 把参与者从会话中移除。active会话中的离开会让会话以timeout终止。
func LeaveGame(sessionID, userID string) error {
	var timedOut bool

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		s, err := session.FindBySessionIDForUpdate(tx, sessionID)
		if err != nil {
			return err
		}

		p, err := session.FindParticipant(tx, sessionID, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrNotParticipant
		}
		if err := tx.Unscoped().Delete(p).Error; err != nil {
			return fmt.Errorf("删除参与者记录失败: %w", err)
		}

		// 对战进行中的离开直接终止会话
		if s.Status == session.StatusActive && s.Status.CanTransitionTo(session.StatusTimeout) {
			now := time.Now()
			s.Status = session.StatusTimeout
			s.CompletedAt = &now
			if err := tx.Save(s).Error; err != nil {
				return fmt.Errorf("标记会话超时失败: %w", err)
			}
			timedOut = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	presence.RemoveMirror(sessionID, userID)

	if action, err := broadcast.NewAction(broadcast.ActionPlayerLeave, broadcast.PlayerLeavePayload{UserID: userID}, userID); err == nil {
		broadcast.PublishOrLog(database.Ctx, sessionID, action)
	}
	if timedOut {
		if action, err := broadcast.NewAction(broadcast.ActionTimeout, broadcast.TimeoutPayload{Reason: "参与者中途离开"}, userID); err == nil {
			broadcast.PublishOrLog(database.Ctx, sessionID, action)
		}
	}
	return nil
}

// --- 内部辅助 ---

// activationInfo 携带广播START_GAME所需的信息。
type activationInfo struct {
	sessionID string
	round     *session.Round
}

// findOngoingParticipation 查询用户是否已身处未结束的会话。
func findOngoingParticipation(tx *gorm.DB, userID string) (*JoinResult, error) {
	var participants []session.Participant
	if err := tx.Where("user_id = ?", userID).Order("id desc").Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("查询用户的参与记录失败: %w", err)
	}
	for i := range participants {
		p := &participants[i]
		s, err := session.FindBySessionID(tx, p.SessionID)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				continue
			}
			return nil, err
		}
		if s.Status.Finished() {
			continue
		}
		result := &JoinResult{
			SessionID:  s.SessionID,
			Role:       p.Role,
			AvatarName: p.AvatarName,
			Status:     s.Status,
			IsHost:     p.IsHost,
		}
		if p.IsHost && s.IsPrivate {
			result.InviteCode = s.InviteCode
		}
		return result, nil
	}
	return nil, nil
}

// createSession 新建一场等待中的会话。私密会话会生成自验证邀请码。
func createSession(tx *gorm.DB, private bool) (*session.Session, error) {
	s := &session.Session{
		SessionID:   uuid.NewString(),
		Status:      session.StatusWaiting,
		IsPrivate:   private,
		TotalRounds: gameCfg.TotalRounds,
	}
	if private {
		code, err := token.NewInviteCode()
		if err != nil {
			return nil, err
		}
		s.InviteCode = code
	}
	if err := tx.Create(s).Error; err != nil {
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}
	return s, nil
}

// joinAsFreeRole 以空闲角色把用户插入会话。
// 角色唯一性在事务内通过已有参与者的角色集合保证。
func joinAsFreeRole(tx *gorm.DB, s *session.Session, userID, avatarName string) (*session.Participant, error) {
	participants, err := session.ParticipantsOf(tx, s.SessionID)
	if err != nil {
		return nil, err
	}
	if len(participants) >= 2 {
		return nil, ErrNoMatchFound
	}

	role := session.RoleA
	isHost := len(participants) == 0
	for _, p := range participants {
		if p.Role == session.RoleA {
			role = session.RoleB
		}
	}

	p := &session.Participant{
		SessionID:   s.SessionID,
		UserID:      userID,
		Role:        role,
		AvatarName:  avatarName,
		IsHost:      isHost,
		IsConnected: true,
		LastSeenAt:  time.Now(),
	}
	if err := tx.Create(p).Error; err != nil {
		if database.IsDuplicateKeyError(err) {
			return nil, ErrNoMatchFound
		}
		return nil, fmt.Errorf("创建参与者记录失败: %w", err)
	}
	return p, nil
}

// activateSession 把会话从waiting迁移到active并开启首回合。
func activateSession(tx *gorm.DB, s *session.Session) (*activationInfo, error) {
	if !s.Status.CanTransitionTo(session.StatusActive) {
		return nil, fmt.Errorf("会话 %s 无法从 %s 迁移到 active", s.SessionID, s.Status)
	}
	now := time.Now()
	s.Status = session.StatusActive
	s.StartedAt = &now
	s.CurrentRound = 1
	if err := tx.Save(s).Error; err != nil {
		return nil, fmt.Errorf("激活会话失败: %w", err)
	}

	round, err := openNextRound(tx, s, 1)
	if err != nil {
		return nil, err
	}
	return &activationInfo{sessionID: s.SessionID, round: round}, nil
}

// openNextRound 开启指定序号的回合并推进会话的CurrentRound。
func openNextRound(tx *gorm.DB, s *session.Session, roundNo int) (*session.Round, error) {
	round := &session.Round{
		SessionID:        s.SessionID,
		RoundNo:          roundNo,
		Topic:            session.TopicForRound(roundNo),
		TimeLimitSeconds: gameCfg.StylingSeconds,
		StartedAt:        time.Now(),
	}
	if err := tx.Create(round).Error; err != nil {
		return nil, fmt.Errorf("开启第 %d 回合失败: %w", roundNo, err)
	}
	s.CurrentRound = roundNo
	if err := tx.Save(s).Error; err != nil {
		return nil, fmt.Errorf("推进会话回合序号失败: %w", err)
	}
	return round, nil
}

// broadcastStartGame 发布START_GAME动作。
func broadcastStartGame(info *activationInfo, actorID string) {
	payload := broadcast.StartGamePayload{
		SessionID:        info.sessionID,
		CurrentRound:     info.round.RoundNo,
		RoundID:          info.round.ID,
		Topic:            info.round.Topic,
		TimeLimitSeconds: info.round.TimeLimitSeconds,
	}
	if action, err := broadcast.NewAction(broadcast.ActionStartGame, payload, actorID); err == nil {
		broadcast.PublishOrLog(database.Ctx, info.sessionID, action)
	}
}
