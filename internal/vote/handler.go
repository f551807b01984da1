package vote

import (
	"errors"
	"net/http"

	"github.com/SlpAus/style-off-backend/internal/session"
	"github.com/SlpAus/style-off-backend/internal/user"
	"github.com/gin-gonic/gin"
)

// reactionRequest 是投票/回应接口的请求体。两个字段至少要有一个。
type reactionRequest struct {
	Choice   string `json:"choice"`
	Reaction string `json:"reaction"`
}

// ReactionHandler 处理 POST /api/sessions/:id/reactions
func ReactionHandler(c *gin.Context) {
	userID := c.GetString(user.UserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无法识别用户身份"})
		return
	}

	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
		return
	}

	v, err := AddReaction(ReactionParams{
		SessionID:   c.Param("id"),
		VoterUserID: userID,
		Choice:      Choice(req.Choice),
		Reaction:    Reaction(req.Reaction),
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		case errors.Is(err, ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, ErrInvalidChoice):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ErrSessionFinished):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		}
		return
	}
	c.JSON(http.StatusOK, v)
}
