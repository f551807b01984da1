package reveal

import (
	"fmt"

	"github.com/SlpAus/style-off-backend/internal/design"
	"github.com/SlpAus/style-off-backend/internal/platform/database"
	"github.com/SlpAus/style-off-backend/internal/session"
	"github.com/SlpAus/style-off-backend/internal/vote"
	"gorm.io/gorm"
)

// SourceData 是构建揭晓快照所需的全部原始数据。
type SourceData struct {
	Session      *session.Session
	Participants []session.Participant
	Rounds       []session.Round
	Submissions  []design.Submission
	Votes        []vote.Vote
}

// DataSource 抽象了快照原始数据的加载，便于在测试中替换和计数。
type DataSource interface {
	Load(sessionID string) (*SourceData, error)
	// PendingSessions 返回已完成但尚未揭晓处理的会话ID
	PendingSessions(limit int) ([]string, error)
	// MarkProcessed 原子地打上揭晓处理标记，
	// 返回false表示此前已经处理过（幂等检测）。
	MarkProcessed(sessionID string) (bool, error)
}

// gormSource 是DataSource的默认实现，直接读取SQLite。
type gormSource struct{}

// NewGormSource 返回基于数据库的默认数据源。
func NewGormSource() DataSource {
	return &gormSource{}
}

func (g *gormSource) Load(sessionID string) (*SourceData, error) {
	data := &SourceData{}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		s, err := session.FindBySessionID(tx, sessionID)
		if err != nil {
			return err
		}
		data.Session = s

		if data.Participants, err = session.ParticipantsOf(tx, sessionID); err != nil {
			return err
		}
		if data.Rounds, err = session.RoundsOf(tx, sessionID); err != nil {
			return err
		}
		if data.Submissions, err = design.ForSession(tx, sessionID); err != nil {
			return err
		}
		data.Votes, err = vote.ForSession(tx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (g *gormSource) PendingSessions(limit int) ([]string, error) {
	var ids []string
	err := database.DB.Model(&session.Session{}).
		Where("status IN ? AND reveal_processed = ?",
			[]session.Status{session.StatusCompleted, session.StatusTimeout}, false).
		Order("completed_at asc").
		Limit(limit).
		Pluck("session_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("查询待揭晓会话失败: %w", err)
	}
	return ids, nil
}

func (g *gormSource) MarkProcessed(sessionID string) (bool, error) {
	var first bool
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		s, err := session.FindBySessionIDForUpdate(tx, sessionID)
		if err != nil {
			return err
		}
		if s.RevealProcessed {
			first = false
			return nil
		}
		s.RevealProcessed = true
		if err := tx.Save(s).Error; err != nil {
			return fmt.Errorf("写入揭晓处理标记失败: %w", err)
		}
		first = true
		return nil
	})
	return first, err
}
