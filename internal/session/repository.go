package session

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSessionNotFound 表示指定的会话不存在。
var ErrSessionNotFound = errors.New("会话不存在")

// FindBySessionID 按对外UUID查询会话。
func FindBySessionID(tx *gorm.DB, sessionID string) (*Session, error) {
	var s Session
	if err := tx.Where("session_id = ?", sessionID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	return &s, nil
}

// FindBySessionIDForUpdate 按对外UUID查询会话并锁定行，用于事务内的状态迁移。
func FindBySessionIDForUpdate(tx *gorm.DB, sessionID string) (*Session, error) {
	var s Session
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("session_id = ?", sessionID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("查询并锁定会话失败: %w", err)
	}
	return &s, nil
}

// FindJoinableByInviteCode 查询一个可凭邀请码加入的等待中会话。
func FindJoinableByInviteCode(tx *gorm.DB, inviteCode string) (*Session, error) {
	var s Session
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("invite_code = ? AND status = ?", inviteCode, StatusWaiting).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("按邀请码查询会话失败: %w", err)
	}
	return &s, nil
}

// FindOldestPublicWaiting 查询最早创建的、仍在等待中的公开会话。
// excludeUserID 用于避免把用户匹配进自己创建的会话。
func FindOldestPublicWaiting(tx *gorm.DB, excludeUserID string) (*Session, error) {
	var s Session
	sub := tx.Model(&Participant{}).Select("session_id").Where("user_id = ?", excludeUserID)
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status = ? AND is_private = ? AND session_id NOT IN (?)", StatusWaiting, false, sub).
		Order("created_at asc").
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("匹配等待中会话失败: %w", err)
	}
	return &s, nil
}

// ParticipantsOf 返回会话的全部参与者，按角色排序。
func ParticipantsOf(tx *gorm.DB, sessionID string) ([]Participant, error) {
	var participants []Participant
	if err := tx.Where("session_id = ?", sessionID).Order("role asc").Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("查询会话参与者失败: %w", err)
	}
	return participants, nil
}

// FindParticipant 查询某用户在会话中的参与者记录，不存在时返回nil。
func FindParticipant(tx *gorm.DB, sessionID, userID string) (*Participant, error) {
	var p Participant
	err := tx.Where("session_id = ? AND user_id = ?", sessionID, userID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询参与者记录失败: %w", err)
	}
	return &p, nil
}

// RoundsOf 返回会话的全部回合，按回合序号升序。
func RoundsOf(tx *gorm.DB, sessionID string) ([]Round, error) {
	var rounds []Round
	if err := tx.Where("session_id = ?", sessionID).Order("round_no asc").Find(&rounds).Error; err != nil {
		return nil, fmt.Errorf("查询会话回合失败: %w", err)
	}
	return rounds, nil
}

// OpenRoundOf 返回会话当前的开放回合，没有开放回合时返回nil。
// 不变量保证同一会话至多存在一个开放回合。
func OpenRoundOf(tx *gorm.DB, sessionID string) (*Round, error) {
	var r Round
	err := tx.Where("session_id = ? AND ended_at IS NULL", sessionID).First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询开放回合失败: %w", err)
	}
	return &r, nil
}

// FindRoundByID 按主键查询回合并校验其归属的会话。
func FindRoundByID(tx *gorm.DB, sessionID string, roundID uint) (*Round, error) {
	var r Round
	err := tx.Where("id = ? AND session_id = ?", roundID, sessionID).First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询回合失败: %w", err)
	}
	return &r, nil
}
