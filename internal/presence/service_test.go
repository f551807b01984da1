package presence

import (
	"errors"
	"testing"
	"time"

	"github.com/SlpAus/style-off-backend/internal/platform/config"
	"github.com/SlpAus/style-off-backend/internal/platform/database"
	"github.com/SlpAus/style-off-backend/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupPresenceTest(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&session.Session{}, &session.Participant{},
	))
	database.DB = db
	presenceCfg = config.Default().Game
}

func seedParticipant(t *testing.T, sessionID, userID string, status session.Status, lastSeen time.Time, isBot bool) {
	t.Helper()
	var s session.Session
	err := database.DB.Where("session_id = ?", sessionID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s = session.Session{SessionID: sessionID, Status: status, TotalRounds: 3}
		require.NoError(t, database.DB.Create(&s).Error)
	}
	p := session.Participant{
		SessionID:   sessionID,
		UserID:      userID,
		Role:        session.RoleA,
		IsBot:       isBot,
		IsConnected: true,
		LastSeenAt:  lastSeen,
	}
	if userID == "bob" {
		p.Role = session.RoleB
	}
	require.NoError(t, database.DB.Create(&p).Error)
}

func TestHeartbeatRefreshesLastSeen(t *testing.T) {
	setupPresenceTest(t)
	stale := time.Now().Add(-time.Hour)
	seedParticipant(t, "sess-1", "alice", session.StatusActive, stale, false)

	require.NoError(t, Heartbeat("sess-1", "alice"))

	p, err := session.FindParticipant(database.DB, "sess-1", "alice")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.IsConnected)
	assert.WithinDuration(t, time.Now(), p.LastSeenAt, 5*time.Second)
}

func TestHeartbeatUnknownParticipant(t *testing.T) {
	setupPresenceTest(t)
	seedParticipant(t, "sess-1", "alice", session.StatusActive, time.Now(), false)

	err := Heartbeat("sess-1", "mallory")
	assert.True(t, errors.Is(err, session.ErrSessionNotFound))
}

func TestDemoteSilentParticipants(t *testing.T) {
	setupPresenceTest(t)
	now := time.Now()
	stale := now.Add(-10 * time.Minute)

	seedParticipant(t, "sess-1", "alice", session.StatusActive, stale, false)
	seedParticipant(t, "sess-1", "bob", session.StatusActive, now, false)

	n, err := DemoteSilentParticipants(5 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	alice, err := session.FindParticipant(database.DB, "sess-1", "alice")
	require.NoError(t, err)
	assert.False(t, alice.IsConnected, "静默超时的参与者应被标记离线")

	bob, err := session.FindParticipant(database.DB, "sess-1", "bob")
	require.NoError(t, err)
	assert.True(t, bob.IsConnected, "心跳正常的参与者不受影响")
}

func TestDemoteSkipsBotsAndFinishedSessions(t *testing.T) {
	setupPresenceTest(t)
	stale := time.Now().Add(-time.Hour)

	seedParticipant(t, "sess-bot", "alice", session.StatusActive, stale, true)
	seedParticipant(t, "sess-done", "bob", session.StatusCompleted, stale, false)

	n, err := DemoteSilentParticipants(5 * time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n, "机器人和已结束会话的参与者不参与降级")
}
