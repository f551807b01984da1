package design

import (
	"errors"
	"fmt"

	"github.com/SlpAus/style-off-backend/internal/platform/database"
	"github.com/SlpAus/style-off-backend/internal/session"
	"gorm.io/gorm"
)

var (
	// ErrNotParticipant 表示调用者不是会话的参与者
	ErrNotParticipant = errors.New("调用者不是本场会话的参与者")
	// ErrRoundClosed 表示目标回合已经关闭，不再接受提交
	ErrRoundClosed = errors.New("回合已结束，无法提交作品")
	// ErrRoundNotFound 表示目标回合不存在或不属于该会话
	ErrRoundNotFound = errors.New("回合不存在")
)

// SubmitParams 是提交作品的入参。
type SubmitParams struct {
	SessionID      string
	RoundID        uint
	DesignerUserID string
	TargetRole     session.Role
	StyleChoices   StyleChoices
	ImageURL       string
}

// SubmitDesign 提交或更新一份造型作品。
// 对相同的(RoundID, DesignerUserID, TargetRole)键，后到的提交覆盖先前的
// 记录（幂等upsert）；回合已关闭时返回ErrRoundClosed。
func SubmitDesign(params SubmitParams) (*Submission, error) {
	var result *Submission

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		// 1. 会话必须存在且未进入终态
		s, err := session.FindBySessionID(tx, params.SessionID)
		if err != nil {
			return err
		}
		if s.Status.Finished() {
			return ErrRoundClosed
		}

		// 2. 调用者必须是会话参与者
		participant, err := session.FindParticipant(tx, params.SessionID, params.DesignerUserID)
		if err != nil {
			return err
		}
		if participant == nil {
			return ErrNotParticipant
		}

		// 3. 回合必须存在、属于该会话且仍然开放
		round, err := session.FindRoundByID(tx, params.SessionID, params.RoundID)
		if err != nil {
			return err
		}
		if round == nil {
			return ErrRoundNotFound
		}
		if !round.IsOpen() {
			return ErrRoundClosed
		}

		// 4. 幂等upsert：同键的再次提交更新既有记录
		var existing Submission
		err = tx.Where(
			"round_id = ? AND designer_user_id = ? AND target_role = ?",
			params.RoundID, params.DesignerUserID, params.TargetRole,
		).First(&existing).Error

		points := CalculateStylePoints(params.StyleChoices, params.ImageURL)

		if err == nil {
			existing.StyleChoices = params.StyleChoices
			existing.ImageURL = params.ImageURL
			existing.StylePoints = points
			if err := tx.Save(&existing).Error; err != nil {
				return fmt.Errorf("更新作品记录失败: %w", err)
			}
			result = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("查询既有作品失败: %w", err)
		}

		submission := Submission{
			SessionID:      params.SessionID,
			RoundID:        params.RoundID,
			DesignerUserID: params.DesignerUserID,
			TargetRole:     params.TargetRole,
			StyleChoices:   params.StyleChoices,
			ImageURL:       params.ImageURL,
			StylePoints:    points,
		}
		if err := tx.Create(&submission).Error; err != nil {
			// 并发的同键插入会触发唯一约束，此时回退为一次覆盖更新
			if database.IsDuplicateKeyError(err) {
				return retryAsUpdate(tx, &submission, &result)
			}
			return fmt.Errorf("创建作品记录失败: %w", err)
		}
		result = &submission
		return nil
	})

	if err != nil {
		return nil, err
	}
	return result, nil
}

// retryAsUpdate 在唯一约束冲突后重新加载既有记录并覆盖它。
func retryAsUpdate(tx *gorm.DB, submission *Submission, result **Submission) error {
	var existing Submission
	err := tx.Where(
		"round_id = ? AND designer_user_id = ? AND target_role = ?",
		submission.RoundID, submission.DesignerUserID, submission.TargetRole,
	).First(&existing).Error
	if err != nil {
		return fmt.Errorf("唯一约束冲突后重查作品失败: %w", err)
	}
	existing.StyleChoices = submission.StyleChoices
	existing.ImageURL = submission.ImageURL
	existing.StylePoints = submission.StylePoints
	if err := tx.Save(&existing).Error; err != nil {
		return fmt.Errorf("唯一约束冲突后覆盖作品失败: %w", err)
	}
	*result = &existing
	return nil
}

// ForRound 返回一个回合内的全部作品。
func ForRound(tx *gorm.DB, roundID uint) ([]Submission, error) {
	var submissions []Submission
	if err := tx.Where("round_id = ?", roundID).Order("id asc").Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("查询回合作品失败: %w", err)
	}
	return submissions, nil
}

// ForSession 返回一场会话的全部作品。
func ForSession(tx *gorm.DB, sessionID string) ([]Submission, error) {
	var submissions []Submission
	if err := tx.Where("session_id = ?", sessionID).Order("id asc").Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("查询会话作品失败: %w", err)
	}
	return submissions, nil
}

// ForSessionByUser 返回某用户在一场会话中的全部作品。
func ForSessionByUser(tx *gorm.DB, sessionID, userID string) ([]Submission, error) {
	var submissions []Submission
	err := tx.Where("session_id = ? AND designer_user_id = ?", sessionID, userID).
		Order("id asc").Find(&submissions).Error
	if err != nil {
		return nil, fmt.Errorf("查询用户作品失败: %w", err)
	}
	return submissions, nil
}

// CalculateStylePoints 根据造型选择派生造型分。
// 规则是确定性的：基础40分，每覆盖一个新类目+8（至多5个类目），
// 每条选择+2（至多10条），附带渲染图+10，上限100。
// 确定性保证了平票裁决信号在重算时可复现。
func CalculateStylePoints(choices StyleChoices, imageURL string) int {
	points := 40

	categories := make(map[string]bool)
	for _, choice := range choices {
		if choice.Category != "" {
			categories[choice.Category] = true
		}
	}
	categoryCount := len(categories)
	if categoryCount > 5 {
		categoryCount = 5
	}
	points += categoryCount * 8

	choiceCount := len(choices)
	if choiceCount > 10 {
		choiceCount = 10
	}
	points += choiceCount * 2

	if imageURL != "" {
		points += 10
	}

	if points > 100 {
		points = 100
	}
	return points
}
