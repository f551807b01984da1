package vote

import (
	"errors"
	"fmt"

	"github.com/SlpAus/style-off-backend/internal/platform/database"
	"github.com/SlpAus/style-off-backend/internal/session"
	"gorm.io/gorm"
)

var (
	// ErrNotParticipant 表示投票者不是会话的参与者
	ErrNotParticipant = errors.New("投票者不是本场会话的参与者")
	// ErrInvalidChoice 表示投票选择或表情回应不合法
	ErrInvalidChoice = errors.New("无效的投票选择或表情回应")
	// ErrSessionFinished 表示会话已进入终态，不再接受投票
	ErrSessionFinished = errors.New("会话已结束，无法投票")
)

// ReactionParams 是提交投票/回应的入参。Choice与Reaction至少要有一个。
type ReactionParams struct {
	SessionID   string
	VoterUserID string
	Choice      Choice
	Reaction    Reaction
}

// AddReaction 记录或更新调用者在一场会话中的投票与表情回应。
// 简化模型下每位用户每场会话只保留一条记录，后到的提交覆盖先前的。
func AddReaction(params ReactionParams) (*Vote, error) {
	// 1. 在所有数据库操作前校验入参
	if params.Choice != "" && !params.Choice.Valid() {
		return nil, ErrInvalidChoice
	}
	if !params.Reaction.Valid() {
		return nil, ErrInvalidChoice
	}
	if params.Choice == "" && params.Reaction == "" {
		return nil, ErrInvalidChoice
	}

	var result *Vote
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		// 2. 会话必须存在且未结束
		s, err := session.FindBySessionID(tx, params.SessionID)
		if err != nil {
			return err
		}
		if s.Status.Finished() {
			return ErrSessionFinished
		}

		// 3. 投票者必须是会话参与者
		participant, err := session.FindParticipant(tx, params.SessionID, params.VoterUserID)
		if err != nil {
			return err
		}
		if participant == nil {
			return ErrNotParticipant
		}

		// 4. 绑定到当前开放回合（若有）
		var roundID uint
		if open, err := session.OpenRoundOf(tx, params.SessionID); err != nil {
			return err
		} else if open != nil {
			roundID = open.ID
		}

		// 5. 单票覆盖语义：存在则更新，不存在则创建
		var existing Vote
		err = tx.Where("session_id = ? AND voter_user_id = ?", params.SessionID, params.VoterUserID).
			First(&existing).Error
		if err == nil {
			if params.Choice != "" {
				existing.Choice = params.Choice
			}
			if params.Reaction != "" {
				existing.Reaction = params.Reaction
			}
			existing.RoundID = roundID
			if err := tx.Save(&existing).Error; err != nil {
				return fmt.Errorf("更新投票记录失败: %w", err)
			}
			result = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("查询既有投票失败: %w", err)
		}

		newVote := Vote{
			SessionID:   params.SessionID,
			VoterUserID: params.VoterUserID,
			RoundID:     roundID,
			Choice:      params.Choice,
			Reaction:    params.Reaction,
		}
		if err := tx.Create(&newVote).Error; err != nil {
			return fmt.Errorf("创建投票记录失败: %w", err)
		}
		result = &newVote
		return nil
	})

	if err != nil {
		return nil, err
	}
	return result, nil
}

// ForSession 返回一场会话的全部投票记录。
func ForSession(tx *gorm.DB, sessionID string) ([]Vote, error) {
	var votes []Vote
	if err := tx.Where("session_id = ?", sessionID).Find(&votes).Error; err != nil {
		return nil, fmt.Errorf("查询会话投票失败: %w", err)
	}
	return votes, nil
}

// ForRound 返回绑定到某回合的全部投票记录。
func ForRound(tx *gorm.DB, roundID uint) ([]Vote, error) {
	var votes []Vote
	if err := tx.Where("round_id = ?", roundID).Find(&votes).Error; err != nil {
		return nil, fmt.Errorf("查询回合投票失败: %w", err)
	}
	return votes, nil
}
