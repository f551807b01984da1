package design

import (
	"errors"
	"testing"
	"time"

	"github.com/SlpAus/style-off-backend/internal/platform/database"
	"github.com/SlpAus/style-off-backend/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 为每个测试准备一个独立的内存SQLite数据库。
func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&session.Session{}, &session.Participant{}, &session.Round{}, &Submission{},
	))
	database.DB = db
}

// seedActiveSession 建立一场active会话，带两位参与者和一个开放回合。
func seedActiveSession(t *testing.T) (sessionID string, roundID uint) {
	t.Helper()
	now := time.Now()
	s := session.Session{
		SessionID:    "sess-1",
		Status:       session.StatusActive,
		TotalRounds:  3,
		CurrentRound: 1,
		StartedAt:    &now,
	}
	require.NoError(t, database.DB.Create(&s).Error)

	for _, p := range []session.Participant{
		{SessionID: s.SessionID, UserID: "alice", Role: session.RoleA, AvatarName: "晨雾灵狐", IsHost: true, LastSeenAt: now},
		{SessionID: s.SessionID, UserID: "bob", Role: session.RoleB, AvatarName: "霓虹水母", LastSeenAt: now},
	} {
		require.NoError(t, database.DB.Create(&p).Error)
	}

	round := session.Round{
		SessionID:        s.SessionID,
		RoundNo:          1,
		Topic:            session.TopicForRound(1),
		TimeLimitSeconds: 60,
		StartedAt:        now,
	}
	require.NoError(t, database.DB.Create(&round).Error)
	return s.SessionID, round.ID
}

func TestSubmitDesignCreatesSubmission(t *testing.T) {
	setupTestDB(t)
	sessionID, roundID := seedActiveSession(t)

	sub, err := SubmitDesign(SubmitParams{
		SessionID:      sessionID,
		RoundID:        roundID,
		DesignerUserID: "alice",
		TargetRole:     session.RoleB,
		StyleChoices: StyleChoices{
			{Category: "hat", Value: "beret"},
			{Category: "coat", Value: "trench"},
		},
		ImageURL: "https://cdn.example.com/a.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", sub.DesignerUserID)
	assert.Equal(t, session.RoleB, sub.TargetRole)
	assert.NotZero(t, sub.StylePoints)
}

func TestSubmitDesignUpsertsSameKey(t *testing.T) {
	setupTestDB(t)
	sessionID, roundID := seedActiveSession(t)

	params := SubmitParams{
		SessionID:      sessionID,
		RoundID:        roundID,
		DesignerUserID: "alice",
		TargetRole:     session.RoleB,
		StyleChoices:   StyleChoices{{Category: "hat", Value: "beret"}},
	}
	first, err := SubmitDesign(params)
	require.NoError(t, err)

	// 同键重复提交应覆盖而不是新增
	params.StyleChoices = StyleChoices{{Category: "hat", Value: "crown"}, {Category: "shoes", Value: "boots"}}
	second, err := SubmitDesign(params)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.StyleChoices, 2)

	var count int64
	require.NoError(t, database.DB.Model(&Submission{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSubmitDesignDistinctTargetsCoexist(t *testing.T) {
	setupTestDB(t)
	sessionID, roundID := seedActiveSession(t)

	for _, role := range []session.Role{session.RoleA, session.RoleB} {
		_, err := SubmitDesign(SubmitParams{
			SessionID:      sessionID,
			RoundID:        roundID,
			DesignerUserID: "alice",
			TargetRole:     role,
			StyleChoices:   StyleChoices{{Category: "hat", Value: "beret"}},
		})
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, database.DB.Model(&Submission{}).Count(&count).Error)
	assert.Equal(t, int64(2), count, "不同目标角色的提交应各自独立")
}

func TestSubmitDesignRejectsClosedRound(t *testing.T) {
	setupTestDB(t)
	sessionID, roundID := seedActiveSession(t)

	now := time.Now()
	require.NoError(t, database.DB.Model(&session.Round{}).
		Where("id = ?", roundID).Update("ended_at", &now).Error)

	_, err := SubmitDesign(SubmitParams{
		SessionID:      sessionID,
		RoundID:        roundID,
		DesignerUserID: "alice",
		TargetRole:     session.RoleB,
	})
	assert.True(t, errors.Is(err, ErrRoundClosed))
}

func TestSubmitDesignRejectsNonParticipant(t *testing.T) {
	setupTestDB(t)
	sessionID, roundID := seedActiveSession(t)

	_, err := SubmitDesign(SubmitParams{
		SessionID:      sessionID,
		RoundID:        roundID,
		DesignerUserID: "mallory",
		TargetRole:     session.RoleA,
	})
	assert.True(t, errors.Is(err, ErrNotParticipant))
}

func TestSubmitDesignRejectsUnknownRound(t *testing.T) {
	setupTestDB(t)
	sessionID, _ := seedActiveSession(t)

	_, err := SubmitDesign(SubmitParams{
		SessionID:      sessionID,
		RoundID:        999,
		DesignerUserID: "alice",
		TargetRole:     session.RoleA,
	})
	assert.True(t, errors.Is(err, ErrRoundNotFound))
}

func TestCalculateStylePoints(t *testing.T) {
	// 空作品只有基础分
	assert.Equal(t, 40, CalculateStylePoints(nil, ""))

	// 一个类目一条选择：40 + 8 + 2
	one := StyleChoices{{Category: "hat", Value: "beret"}}
	assert.Equal(t, 50, CalculateStylePoints(one, ""))

	// 附图加10分
	assert.Equal(t, 60, CalculateStylePoints(one, "https://cdn.example.com/a.png"))

	// 总分封顶100
	var maxed StyleChoices
	for i := 0; i < 12; i++ {
		maxed = append(maxed, StyleChoice{Category: string(rune('a' + i)), Value: "v"})
	}
	assert.Equal(t, 100, CalculateStylePoints(maxed, "https://cdn.example.com/a.png"))
}
