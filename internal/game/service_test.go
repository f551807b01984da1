package game

import (
	"errors"
	"testing"
	"time"

	"github.com/SlpAus/style-off-backend/internal/design"
	"github.com/SlpAus/style-off-backend/internal/platform/config"
	"github.com/SlpAus/style-off-backend/internal/platform/database"
	"github.com/SlpAus/style-off-backend/internal/session"
	"github.com/SlpAus/style-off-backend/internal/vote"
	"github.com/SlpAus/style-off-backend/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupGameTest 准备内存数据库并注入默认配置。
func setupGameTest(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&session.Session{}, &session.Participant{}, &session.Round{},
		&design.Submission{}, &vote.Vote{},
	))
	database.DB = db

	gameCfg = config.Default().Game
	token.GenerateSecretKey()
	revealTrigger = nil
}

func TestJoinCreatesWaitingSession(t *testing.T) {
	setupGameTest(t)

	result, err := Join(JoinParams{UserID: "alice", CreateIfMissing: true})
	require.NoError(t, err)
	assert.Equal(t, session.StatusWaiting, result.Status)
	assert.Equal(t, session.RoleA, result.Role)
	assert.True(t, result.IsHost)
	assert.Empty(t, result.InviteCode, "公开会话没有邀请码")
}

func TestJoinMatchesAndActivates(t *testing.T) {
	setupGameTest(t)

	first, err := Join(JoinParams{UserID: "alice", CreateIfMissing: true})
	require.NoError(t, err)
	second, err := Join(JoinParams{UserID: "bob", CreateIfMissing: true})
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, session.RoleB, second.Role)
	assert.Equal(t, session.StatusActive, second.Status)

	// 第二人加入后首回合应已开放
	s, err := session.FindBySessionID(database.DB, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, s.Status)
	assert.Equal(t, 1, s.CurrentRound)

	open, err := session.OpenRoundOf(database.DB, first.SessionID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, 1, open.RoundNo)
	assert.NotEmpty(t, open.Topic)
}

func TestJoinIsIdempotentForOngoingSession(t *testing.T) {
	setupGameTest(t)

	first, err := Join(JoinParams{UserID: "alice", CreateIfMissing: true})
	require.NoError(t, err)
	again, err := Join(JoinParams{UserID: "alice", CreateIfMissing: true})
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, again.SessionID)

	var count int64
	require.NoError(t, database.DB.Model(&session.Session{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "重复加入不应创建新会话")
}

func TestJoinWithoutCreateFailsWhenNoMatch(t *testing.T) {
	setupGameTest(t)

	_, err := Join(JoinParams{UserID: "alice", CreateIfMissing: false})
	assert.True(t, errors.Is(err, ErrNoMatchFound))
}

func TestJoinPrivateSessionWithInviteCode(t *testing.T) {
	setupGameTest(t)

	host, err := Join(JoinParams{UserID: "alice", CreatePrivate: true, CreateIfMissing: true})
	require.NoError(t, err)
	require.NotEmpty(t, host.InviteCode, "私密会话的主持人应拿到邀请码")

	// 私密会话不参与公开匹配
	_, err = Join(JoinParams{UserID: "carol", CreateIfMissing: false})
	assert.True(t, errors.Is(err, ErrNoMatchFound))

	guest, err := Join(JoinParams{UserID: "bob", InviteCode: host.InviteCode, CreateIfMissing: true})
	require.NoError(t, err)
	assert.Equal(t, host.SessionID, guest.SessionID)
	assert.Equal(t, session.StatusActive, guest.Status)
}

func TestJoinRejectsInvalidInviteCode(t *testing.T) {
	setupGameTest(t)

	_, err := Join(JoinParams{UserID: "alice", InviteCode: "AAAABBBBCCCC", CreateIfMissing: true})
	assert.True(t, errors.Is(err, ErrInvalidInvite))
}

func TestStartGameSubstitutesBot(t *testing.T) {
	setupGameTest(t)

	host, err := Join(JoinParams{UserID: "alice", CreatePrivate: true, CreateIfMissing: true})
	require.NoError(t, err)

	require.NoError(t, StartGame(host.SessionID, "alice"))

	s, err := session.FindBySessionID(database.DB, host.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, s.Status)

	participants, err := session.ParticipantsOf(database.DB, host.SessionID)
	require.NoError(t, err)
	require.Len(t, participants, 2)

	var botCount int
	for _, p := range participants {
		if p.IsBot {
			botCount++
		}
	}
	assert.Equal(t, 1, botCount, "单人开局应补入一个机器人")

	// 已激活会话上的再次开局是幂等空操作
	require.NoError(t, StartGame(host.SessionID, "alice"))
}

func TestStartGameRequiresHost(t *testing.T) {
	setupGameTest(t)

	host, err := Join(JoinParams{UserID: "alice", CreateIfMissing: true})
	require.NoError(t, err)

	err = StartGame(host.SessionID, "mallory")
	assert.True(t, errors.Is(err, ErrNotParticipant))
}

func TestAdvanceRoundScoresWinnerAndOpensNext(t *testing.T) {
	setupGameTest(t)

	host, err := Join(JoinParams{UserID: "alice", CreateIfMissing: true})
	require.NoError(t, err)
	_, err = Join(JoinParams{UserID: "bob", CreateIfMissing: true})
	require.NoError(t, err)

	open, err := session.OpenRoundOf(database.DB, host.SessionID)
	require.NoError(t, err)

	// alice为角色A设计的作品将得到两票
	_, err = design.SubmitDesign(design.SubmitParams{
		SessionID:      host.SessionID,
		RoundID:        open.ID,
		DesignerUserID: "alice",
		TargetRole:     session.RoleA,
		StyleChoices:   design.StyleChoices{{Category: "hat", Value: "beret"}},
	})
	require.NoError(t, err)
	_, err = design.SubmitDesign(design.SubmitParams{
		SessionID:      host.SessionID,
		RoundID:        open.ID,
		DesignerUserID: "bob",
		TargetRole:     session.RoleB,
		StyleChoices:   design.StyleChoices{{Category: "hat", Value: "crown"}},
	})
	require.NoError(t, err)

	for _, voter := range []string{"alice", "bob"} {
		_, err = vote.AddReaction(vote.ReactionParams{
			SessionID:   host.SessionID,
			VoterUserID: voter,
			Choice:      vote.ChoiceA,
		})
		require.NoError(t, err)
	}

	result, err := AdvanceRound(host.SessionID, "test")
	require.NoError(t, err)
	assert.True(t, result.Advanced)
	assert.False(t, result.Completed)
	assert.Equal(t, 1, result.ClosedRoundNo)
	assert.Equal(t, "alice", result.WinnerUserID)
	require.NotNil(t, result.NextRound)
	assert.Equal(t, 2, result.NextRound.RoundNo)

	winner, err := session.FindParticipant(database.DB, host.SessionID, "alice")
	require.NoError(t, err)
	assert.Equal(t, gameCfg.WinnerScoreIncrement, winner.CumulativeScore)
}

func TestAdvanceRoundCompletesSessionAndTriggersReveal(t *testing.T) {
	setupGameTest(t)

	triggered := make(chan string, 1)
	SetRevealTrigger(func(sessionID string) {
		triggered <- sessionID
	})

	host, err := Join(JoinParams{UserID: "alice", CreateIfMissing: true})
	require.NoError(t, err)
	_, err = Join(JoinParams{UserID: "bob", CreateIfMissing: true})
	require.NoError(t, err)

	for i := 0; i < gameCfg.TotalRounds; i++ {
		result, err := AdvanceRound(host.SessionID, "test")
		require.NoError(t, err)
		require.True(t, result.Advanced)
	}

	s, err := session.FindBySessionID(database.DB, host.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, s.Status)
	require.NotNil(t, s.CompletedAt)

	select {
	case id := <-triggered:
		assert.Equal(t, host.SessionID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("会话完成后应触发揭晓回调")
	}

	// 终态下的再次推进是无害的空操作
	result, err := AdvanceRound(host.SessionID, "test")
	require.NoError(t, err)
	assert.False(t, result.Advanced)
}

func TestAdvanceRoundRejectsWaitingSession(t *testing.T) {
	setupGameTest(t)

	host, err := Join(JoinParams{UserID: "alice", CreateIfMissing: true})
	require.NoError(t, err)

	_, err = AdvanceRound(host.SessionID, "test")
	assert.True(t, errors.Is(err, ErrSessionNotActive))
}

func TestLeaveGameTimesOutActiveSession(t *testing.T) {
	setupGameTest(t)

	host, err := Join(JoinParams{UserID: "alice", CreateIfMissing: true})
	require.NoError(t, err)
	_, err = Join(JoinParams{UserID: "bob", CreateIfMissing: true})
	require.NoError(t, err)

	require.NoError(t, LeaveGame(host.SessionID, "bob"))

	s, err := session.FindBySessionID(database.DB, host.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusTimeout, s.Status)

	p, err := session.FindParticipant(database.DB, host.SessionID, "bob")
	require.NoError(t, err)
	assert.Nil(t, p, "离开后参与者记录应被删除")
}

func TestLeaveGameRejectsNonParticipant(t *testing.T) {
	setupGameTest(t)

	host, err := Join(JoinParams{UserID: "alice", CreateIfMissing: true})
	require.NoError(t, err)

	err = LeaveGame(host.SessionID, "mallory")
	assert.True(t, errors.Is(err, ErrNotParticipant))
}

func TestGetSessionHidesDesignsUntilCompleted(t *testing.T) {
	setupGameTest(t)

	host, err := Join(JoinParams{UserID: "alice", CreateIfMissing: true})
	require.NoError(t, err)
	_, err = Join(JoinParams{UserID: "bob", CreateIfMissing: true})
	require.NoError(t, err)

	open, err := session.OpenRoundOf(database.DB, host.SessionID)
	require.NoError(t, err)

	for _, designer := range []string{"alice", "bob"} {
		_, err = design.SubmitDesign(design.SubmitParams{
			SessionID:      host.SessionID,
			RoundID:        open.ID,
			DesignerUserID: designer,
			TargetRole:     session.RoleA,
			StyleChoices:   design.StyleChoices{{Category: "hat", Value: "beret"}},
		})
		require.NoError(t, err)
	}

	view, err := GetSession(host.SessionID, "alice")
	require.NoError(t, err)
	assert.Empty(t, view.Designs, "会话进行中不应暴露全部设计")
	assert.Len(t, view.OwnDesigns, 1, "调用者始终能看到自己的设计")
	assert.Equal(t, PhaseStyling, view.CurrentPhase)

	for i := 0; i < gameCfg.TotalRounds; i++ {
		_, err = AdvanceRound(host.SessionID, "test")
		require.NoError(t, err)
	}

	view, err = GetSession(host.SessionID, "alice")
	require.NoError(t, err)
	assert.Len(t, view.Designs, 2, "会话完成后全部设计可见")
	assert.Equal(t, PhaseCompleted, view.CurrentPhase)
}
