package game

import (
	"errors"
	"net/http"

	"github.com/SlpAus/style-off-backend/internal/session"
	"github.com/SlpAus/style-off-backend/internal/user"
	"github.com/gin-gonic/gin"
)

// joinRequest 是加入对战接口的请求体。所有字段都是可选的：
// 空请求体等价于"快速匹配，匹配不到就新建"。
type joinRequest struct {
	InviteCode      string `json:"invite_code"`
	CreatePrivate   bool   `json:"create_private"`
	CreateIfMissing *bool  `json:"create_if_missing"`
}

// JoinSession 处理 POST /api/sessions/join
func JoinSession(c *gin.Context) {
	userID := c.GetString(user.UserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无法识别用户身份"})
		return
	}

	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
		return
	}

	createIfMissing := true
	if req.CreateIfMissing != nil {
		createIfMissing = *req.CreateIfMissing
	}

	// 加入即视为激活：先持久化用户档案并分配头像名
	if err := user.ActivateUser(userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "激活用户失败"})
		return
	}

	result, err := Join(JoinParams{
		UserID:          userID,
		InviteCode:      req.InviteCode,
		CreatePrivate:   req.CreatePrivate,
		CreateIfMissing: createIfMissing,
	})
	if err != nil {
		respondGameError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// StartSession 处理 POST /api/sessions/:id/start
func StartSession(c *gin.Context) {
	userID := c.GetString(user.UserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无法识别用户身份"})
		return
	}

	if err := StartGame(c.Param("id"), userID); err != nil {
		respondGameError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "对战已开始"})
}

// AdvanceSession 处理 POST /api/sessions/:id/advance
func AdvanceSession(c *gin.Context) {
	userID := c.GetString(user.UserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无法识别用户身份"})
		return
	}

	result, err := AdvanceRound(c.Param("id"), userID)
	if err != nil {
		respondGameError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// LeaveSession 处理 POST /api/sessions/:id/leave
func LeaveSession(c *gin.Context) {
	userID := c.GetString(user.UserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无法识别用户身份"})
		return
	}

	if err := LeaveGame(c.Param("id"), userID); err != nil {
		respondGameError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已离开对战"})
}

// GetSessionView 处理 GET /api/sessions/:id
func GetSessionView(c *gin.Context) {
	userID := c.GetString(user.UserIDKey)

	view, err := GetSession(c.Param("id"), userID)
	if err != nil {
		respondGameError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// respondGameError 把业务错误映射为HTTP状态码。
func respondGameError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
	case errors.Is(err, ErrNoMatchFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidInvite):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotHost), errors.Is(err, ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrSessionNotActive), errors.Is(err, ErrSessionFinished):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
	}
}
